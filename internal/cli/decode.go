package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/k0sti/snowclaw-memory/internal/bindings"
)

func init() {
	cmd := &cobra.Command{
		Use:   "decode [event-json]",
		Short: "Decode a transport event into a claim",
		Long:  "Decode one memory event (positional arg or stdin) and print the claim it carries.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runDecode,
	}

	RootCmd.AddCommand(cmd)
}

func runDecode(cmd *cobra.Command, args []string) {
	var data []byte
	if len(args) > 0 {
		data = []byte(args[0])
	} else {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		data = b
	}

	out, err := bindings.DecodeEventJSON(data)
	if err != nil {
		exitErr("decode", err)
	}
	fmt.Println(string(out))
}
