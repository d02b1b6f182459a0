package cli

import (
	"github.com/spf13/cobra"

	"github.com/k0sti/snowclaw-memory/internal/conflict"
	"github.com/k0sti/snowclaw-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Report topics with competing claims",
		Long:  "Collapse supersedes chains and report every topic still holding two or more independent claims, with the claim the trust document prefers.",
		Run:   runConflicts,
	}

	cmd.Flags().StringP("topic", "t", "", "Only check this topic")
	cmd.Flags().String("tier", "", "Filter by tier: public or group")

	RootCmd.AddCommand(cmd)
}

type conflictReport struct {
	model.Conflict
	Preferred *model.Memory `json:"preferred,omitempty"`
}

func runConflicts(cmd *cobra.Command, args []string) {
	topic, _ := cmd.Flags().GetString("topic")
	tier, _ := cmd.Flags().GetString("tier")

	cfg, s := mustOpen()
	defer s.Close()

	memories, err := s.ExportAll(cmd.Context(), tier)
	if err != nil {
		exitErr("conflicts", err)
	}
	if topic != "" {
		filtered := memories[:0]
		for _, m := range memories {
			if m.Topic == topic {
				filtered = append(filtered, m)
			}
		}
		memories = filtered
	}

	conflicts := conflict.Detect(memories)
	reports := make([]conflictReport, len(conflicts))
	for i, c := range conflicts {
		reports[i] = conflictReport{Conflict: c}
		if winner, ok := conflict.Resolve(c, &cfg.Memory); ok {
			reports[i].Preferred = &winner
		}
	}
	printJSON(reports)
}
