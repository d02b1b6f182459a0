package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/k0sti/snowclaw-memory/internal/conflict"
	"github.com/k0sti/snowclaw-memory/internal/model"
	"github.com/k0sti/snowclaw-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search claims, ranked by trust",
		Long:  "Search topic, summary, detail and tags. Results are ranked by source trust, model tier, relevance and recency; conflicting claims among the results are reported alongside.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().String("tier", "", "Filter by tier: public or group")
	cmd.Flags().StringP("group", "g", "", "Filter by group name (with --tier group)")
	cmd.Flags().StringP("topic", "t", "", "Filter by exact topic")
	cmd.Flags().IntP("limit", "l", store.DefaultSearchLimit, "Max results")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	tier, _ := cmd.Flags().GetString("tier")
	group, _ := cmd.Flags().GetString("group")
	topic, _ := cmd.Flags().GetString("topic")
	limit, _ := cmd.Flags().GetInt("limit")

	cfg, s := mustOpen()
	defer s.Close()

	results, err := store.RankedSearch(cmd.Context(), s, store.SearchParams{
		Query: strings.Join(args, " "),
		Tier:  tier,
		Group: group,
		Topic: topic,
		Limit: limit,
	}, &cfg.Memory)
	if err != nil {
		exitErr("search", err)
	}

	memories := make([]model.Memory, len(results))
	for i, r := range results {
		memories[i] = r.Memory
	}
	printJSON(map[string]interface{}{
		"results":   results,
		"conflicts": conflict.Detect(memories),
	})
}
