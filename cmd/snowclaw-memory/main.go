package main

import (
	"os"

	"github.com/k0sti/snowclaw-memory/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
