package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/k0sti/snowclaw-memory/internal/cache"
	"github.com/k0sti/snowclaw-memory/internal/ingest"
	"github.com/k0sti/snowclaw-memory/internal/logging"
	"github.com/k0sti/snowclaw-memory/internal/metrics"
	"github.com/k0sti/snowclaw-memory/internal/server"
)

// Set via -ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, NATS ingest and periodic eviction",
		RunE:  runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (default: http.addr from config)")
	cmd.Flags().String("nats", "", "NATS URL (default: nats.url from config; empty disables ingest)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("snowclaw-memory %s\n", VersionString())
		},
	}

	RootCmd.AddCommand(cmd)
	RootCmd.AddCommand(versionCmd)
}

// VersionString returns a formatted version string.
func VersionString() string {
	return fmt.Sprintf("%s (%s)", Version, Commit)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTP.Addr = addr
	}
	if url, _ := cmd.Flags().GetString("nats"); url != "" {
		cfg.NATS.URL = url
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logging.Sync(log)

	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	m := metrics.New()
	c := cache.New(s, cfg.Cache.TTL.Duration(),
		cache.WithLogger(log.Named("cache")),
		cache.WithMetrics(m),
		cache.WithBackend(cfg.Store.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name("snowclaw-memory"),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()

		sub := ingest.NewSubscriber(nc, c, cfg.NATS.Subjects,
			ingest.WithLogger(log.Named("ingest")),
			ingest.WithMetrics(m),
		)
		if err := sub.Start(); err != nil {
			return err
		}
		defer sub.Stop()
	}

	go evictLoop(ctx, c, cfg.Cache.EvictInterval.Duration(), log)

	srv := server.New(c, &cfg.Memory,
		server.WithLogger(log.Named("http")),
		server.WithMetrics(m),
		server.WithVersion(VersionString()),
	)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("serving",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("backend", cfg.Store.Backend),
			zap.String("db", cfg.Store.Path),
			zap.Bool("nats", cfg.NATS.URL != ""),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// evictLoop runs eviction every interval until ctx ends.
func evictLoop(ctx context.Context, c *cache.Cache, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.EvictStale(ctx); err != nil {
				log.Warn("periodic eviction", zap.Error(err))
			}
		}
	}
}
