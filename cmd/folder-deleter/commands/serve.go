package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maruaican/Quick-Folder-Deleter/internal/config"
	"github.com/maruaican/Quick-Folder-Deleter/internal/database"
	"github.com/maruaican/Quick-Folder-Deleter/internal/disk"
	"github.com/maruaican/Quick-Folder-Deleter/internal/exitcodes"
	"github.com/maruaican/Quick-Folder-Deleter/internal/logging"
	"github.com/maruaican/Quick-Folder-Deleter/internal/metrics"
	"github.com/maruaican/Quick-Folder-Deleter/internal/server"
)

const (
	healthInterval = 30 * time.Second
	pruneInterval  = 24 * time.Hour
)

func (c *CLI) newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server with the operator page and streaming endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return serve(cmd.Context(), cfg, logging.NewWithConfig(cfg))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	logger.Println("[INFO] folder-deleter starting")
	logger.Printf("[INFO] allowed roots: %v, item pause: %v", cfg.AllowedRoots, cfg.Pause())
	if !cfg.AuthEnabled() {
		logger.Println("[WARN] auth.jwt_secret not set: streaming endpoints are unauthenticated")
	}

	metrics.Init()

	logger.Printf("[INFO] opening history database: %s", cfg.DatabasePath)
	db, err := database.NewHistoryDB(cfg.DatabasePath)
	if err != nil {
		return withCode(exitcodes.RuntimeError, fmt.Errorf("open history: %w", err))
	}
	// Deferred first so it runs last, after Run has drained running deletions
	defer func() {
		if err := db.Close(); err != nil {
			logger.Printf("[ERROR] failed to close database: %v", err)
		}
	}()

	hc := newHealthChecker(cfg, db)
	metrics.SetHealthChecker(hc)
	hc.Start()
	defer hc.Stop()

	srv := server.New(cfg, server.Options{Logger: logger, History: db})
	defer srv.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(ctx)
	})

	if !cfg.MetricsOnMainRouter() {
		g.Go(func() error {
			return metrics.Serve(ctx, cfg.PrometheusAddress(), logger)
		})
	}

	g.Go(func() error {
		pruneHistory(ctx, db, cfg.HistoryDays, pruneInterval, logger)
		return nil
	})

	err = g.Wait()
	logger.Println("[INFO] folder-deleter stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		metrics.ErrorsTotal.Inc()
		return withCode(exitcodes.RuntimeError, err)
	}
	return nil
}

func newHealthChecker(cfg *config.Config, db *database.HistoryDB) *metrics.HealthChecker {
	hc := metrics.NewHealthChecker(healthInterval)
	hc.RegisterComponent("history_db", db.Ping, 5*time.Second)

	if len(cfg.AllowedRoots) > 0 {
		roots := cfg.AllowedRoots
		hc.RegisterComponent("allowed_roots", func() error {
			var errs []error
			for _, root := range roots {
				u, err := disk.GetDiskUsage(root)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", root, err))
					continue
				}
				metrics.UpdateDiskMetrics(u)
			}
			return errors.Join(errs...)
		}, cfg.NFSProbeTimeout())
	}
	return hc
}

// pruneHistory drops operations older than days, once at start and then
// every interval, until ctx is done
func pruneHistory(ctx context.Context, db *database.HistoryDB, days int, interval time.Duration, logger *log.Logger) {
	prune := func() {
		n, err := db.DeleteOldRecords(days)
		if err != nil {
			logger.Printf("[WARN] history pruning failed: %v", err)
			metrics.ErrorsTotal.Inc()
			return
		}
		if n > 0 {
			logger.Printf("[INFO] pruned %d operations older than %d days", n, days)
			if err := db.Vacuum(); err != nil {
				logger.Printf("[WARN] history vacuum failed: %v", err)
			}
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
