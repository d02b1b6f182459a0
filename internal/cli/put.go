package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/k0sti/snowclaw-memory/internal/ingest"
	"github.com/k0sti/snowclaw-memory/internal/model"
	"github.com/k0sti/snowclaw-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [summary]",
		Short: "Store a locally authored claim",
		Long:  "Store a claim. The summary can be a positional arg or piped via stdin.",
		Run:   runPut,
	}

	cmd.Flags().String("id", "", "Claim id (default: new ULID)")
	cmd.Flags().StringP("topic", "t", "", "Topic (required)")
	cmd.Flags().String("tier", "public", "Tier: public or group:<name>")
	cmd.Flags().String("detail", "", "Detail text")
	cmd.Flags().String("context", "", "Where the claim came from")
	cmd.Flags().StringP("source", "s", "", "Author npub (required)")
	cmd.Flags().StringP("model", "m", "", "Model that produced the claim (required)")
	cmd.Flags().Float64("confidence", 0.8, "Confidence in [0,1]")
	cmd.Flags().String("supersedes", "", "Id of the claim this one replaces")
	cmd.Flags().Int("version", 0, "Version (default: predecessor's version + 1, or 1)")
	cmd.Flags().String("tags", "", "Comma-separated tags")
	cmd.Flags().Bool("publish", false, "Also publish to the configured NATS bus")

	cmd.MarkFlagRequired("topic")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("model")

	RootCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetString("id")
	topic, _ := cmd.Flags().GetString("topic")
	tierStr, _ := cmd.Flags().GetString("tier")
	detail, _ := cmd.Flags().GetString("detail")
	ctxText, _ := cmd.Flags().GetString("context")
	source, _ := cmd.Flags().GetString("source")
	modelName, _ := cmd.Flags().GetString("model")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	supersedes, _ := cmd.Flags().GetString("supersedes")
	version, _ := cmd.Flags().GetInt("version")
	tagsStr, _ := cmd.Flags().GetString("tags")
	publish, _ := cmd.Flags().GetBool("publish")

	var summary string
	if len(args) > 0 {
		summary = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			summary = strings.TrimSpace(string(b))
		}
	}
	if summary == "" {
		exitErr("put", fmt.Errorf("summary is required (positional arg or stdin)"))
	}

	tier, err := model.ParseTier(tierStr)
	if err != nil {
		exitErr("put", err)
	}

	cfg, s := mustOpen()
	defer s.Close()

	if version == 0 {
		version, err = nextVersion(cmd.Context(), s, supersedes)
		if err != nil {
			exitErr("put", err)
		}
	}
	if id == "" {
		id = newID()
	}

	m := model.Memory{
		ID:         id,
		Tier:       tier,
		Topic:      topic,
		Summary:    summary,
		Detail:     detail,
		Context:    ctxText,
		Source:     source,
		Model:      modelName,
		Confidence: confidence,
		Supersedes: supersedes,
		Version:    version,
		Tags:       parseTags(tagsStr),
		CreatedAt:  time.Now().Unix(),
	}
	if err := s.Upsert(cmd.Context(), m, nil); err != nil {
		exitErr("put", err)
	}

	if publish {
		if cfg.NATS.URL == "" {
			exitErr("publish", fmt.Errorf("nats.url is not configured"))
		}
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("snowclaw-memory put"))
		if err != nil {
			exitErr("connect nats", err)
		}
		defer nc.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		if err := ingest.NewPublisher(nc, cfg.NATS.PublishPrefix).Publish(ctx, m); err != nil {
			exitErr("publish", err)
		}
	}

	printJSON(m)
}

func newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.DefaultEntropy()).String()
}

// nextVersion returns one past the predecessor's version, or 1 when there is
// no known predecessor.
func nextVersion(ctx context.Context, s store.Store, supersedes string) (int, error) {
	if supersedes == "" {
		return 1, nil
	}
	prev, err := s.Get(ctx, supersedes)
	if err != nil {
		return 0, err
	}
	if prev == nil {
		return 1, nil
	}
	return prev.Version + 1, nil
}

func parseTags(s string) []string {
	var tags []string
	seen := map[string]bool{}
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" && !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	return tags
}
