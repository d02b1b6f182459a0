package cli

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/k0sti/snowclaw-memory/internal/cache"
	"github.com/k0sti/snowclaw-memory/internal/codec"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Cache memory events read from stdin",
		Long:  "Read transport events from stdin, one JSON object per line, decode them and cache them. Undecodable lines are reported and skipped.",
		Run:   runIngest,
	}

	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	cfg, s := mustOpen()
	defer s.Close()

	c := cache.New(s, cfg.Cache.TTL.Duration())

	var stored, skipped int
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for line := 1; sc.Scan(); line++ {
		data := bytes.TrimSpace(sc.Bytes())
		if len(data) == 0 {
			continue
		}
		m, err := codec.DecodeJSON(data)
		if err == nil {
			err = c.CacheMemory(cmd.Context(), m, append([]byte(nil), data...))
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "line %d: %v\n", line, err)
			skipped++
			continue
		}
		stored++
	}
	if err := sc.Err(); err != nil {
		exitErr("read stdin", err)
	}

	fmt.Printf(`{"ok":true,"stored":%d,"skipped":%d}`+"\n", stored, skipped)
}
