package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export claims as JSON",
		Long:  "Export every claim, superseded versions included, as a JSON array. Filter by scope with --tier.",
		Run:   runExport,
	}

	cmd.Flags().String("tier", "", "Filter by tier: public or group")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	tier, _ := cmd.Flags().GetString("tier")

	_, s := mustOpen()
	defer s.Close()

	memories, err := s.ExportAll(cmd.Context(), tier)
	if err != nil {
		exitErr("export", err)
	}
	printJSON(memories)
}
