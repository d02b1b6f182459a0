package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/k0sti/snowclaw-memory/internal/cache"
)

func init() {
	cmd := &cobra.Command{
		Use:   "evict",
		Short: "Remove received claims older than the TTL",
		Long:  "Remove claims received as events (ingest, serve) that are older than the TTL. Claims written with put or import are kept.",
		Run:   runEvict,
	}

	cmd.Flags().Duration("ttl", 0, "Maximum claim age (default: cache.ttl from config)")

	RootCmd.AddCommand(cmd)
}

func runEvict(cmd *cobra.Command, args []string) {
	ttl, _ := cmd.Flags().GetDuration("ttl")

	cfg, s := mustOpen()
	defer s.Close()

	if ttl <= 0 {
		ttl = cfg.Cache.TTL.Duration()
	}
	n, err := cache.New(s, ttl).EvictStale(cmd.Context())
	if err != nil {
		exitErr("evict", err)
	}

	fmt.Printf(`{"ok":true,"evicted":%d,"ttl":%q}`+"\n", n, ttl.Round(time.Second).String())
}
