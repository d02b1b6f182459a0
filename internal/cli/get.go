package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Retrieve a claim",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	cmd.Flags().Bool("raw", false, "Print the stored transport payload instead")

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	raw, _ := cmd.Flags().GetBool("raw")

	_, s := mustOpen()
	defer s.Close()

	if raw {
		payload, err := s.RawPayload(cmd.Context(), args[0])
		if err != nil {
			exitErr("get", err)
		}
		if payload == nil {
			exitErr("get", fmt.Errorf("no payload stored for %s", args[0]))
		}
		fmt.Println(string(payload))
		return
	}

	m, err := s.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}
	if m == nil {
		exitErr("get", fmt.Errorf("memory %s not found", args[0]))
	}
	printJSON(m)
}
