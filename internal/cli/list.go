package cli

import (
	"github.com/spf13/cobra"

	"github.com/k0sti/snowclaw-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the newest claims",
		Run:   runList,
	}

	cmd.Flags().String("tier", "", "Filter by tier: public or group")
	cmd.Flags().StringP("group", "g", "", "Filter by group name (with --tier group)")
	cmd.Flags().StringP("topic", "t", "", "Filter by exact topic")
	cmd.Flags().IntP("limit", "l", 50, "Max results")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	tier, _ := cmd.Flags().GetString("tier")
	group, _ := cmd.Flags().GetString("group")
	topic, _ := cmd.Flags().GetString("topic")
	limit, _ := cmd.Flags().GetInt("limit")

	_, s := mustOpen()
	defer s.Close()

	hits, err := s.Search(cmd.Context(), store.SearchParams{
		Tier:  tier,
		Group: group,
		Topic: topic,
		Limit: limit,
	})
	if err != nil {
		exitErr("list", err)
	}

	memories := make([]interface{}, len(hits))
	for i, h := range hits {
		memories[i] = h.Memory
	}
	printJSON(memories)
}
