package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Run:   runStats,
	}

	topicsCmd := &cobra.Command{
		Use:   "topics",
		Short: "List the busiest topics",
		Run:   runTopics,
	}

	RootCmd.AddCommand(cmd)
	RootCmd.AddCommand(topicsCmd)
}

func runStats(cmd *cobra.Command, args []string) {
	_, s := mustOpen()
	defer s.Close()

	stats, err := s.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}
	printJSON(stats)
}

func runTopics(cmd *cobra.Command, args []string) {
	_, s := mustOpen()
	defer s.Close()

	stats, err := s.Stats(cmd.Context())
	if err != nil {
		exitErr("topics", err)
	}
	printJSON(stats.Topics)
}
