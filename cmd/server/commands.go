package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/warp/personnel-engine/api"
	"github.com/warp/personnel-engine/config"
	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/identity"
	"github.com/warp/personnel-engine/personnel"
	"github.com/warp/personnel-engine/store/memory"
	"github.com/warp/personnel-engine/store/redis"
	"github.com/warp/personnel-engine/store/sqlite"
)

// app holds the wired dependencies shared by all commands.
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	clock   generic.Clock
	store   *sqlite.Store
	cache   personnel.Cache
	service *personnel.Service

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("close failed")
		}
	}
}

// wire loads configuration and builds the service. Flag values override
// the environment when set.
func wire(ctx context.Context, dbPath string, port int, clock generic.Clock) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if port != 0 {
		cfg.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: cfg.Logger(), clock: clock}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	if cfg.RedisURL != "" {
		rc, err := redis.New(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initialize redis: %w", err)
		}
		if err := rc.Ping(ctx); err != nil {
			a.log.WithError(err).Warn("redis unreachable at startup; warning feed publishes will fail until it recovers")
		}
		a.cache = rc
		a.closers = append(a.closers, rc.Close)
	} else {
		a.cache = memory.NewCache(clock)
	}

	ids := identity.NewGenerator(clock)
	ids.MaxAttempts = cfg.IDMaxAttempts

	a.service = personnel.NewService(store, clock,
		personnel.WithLogger(a.log.WithField("component", "personnel")),
		personnel.WithGenerator(ids),
		personnel.WithWarningFeed(personnel.NewWarningFeed(a.cache, cfg.WarningFeedKey, cfg.WarningTTL)),
		personnel.WithWarningWindow(cfg.WarningWindowDays),
	)
	return a, nil
}

// =============================================================================
// SERVE
// =============================================================================

func newServeCmd(dbPath *string, port *int) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic expiry sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wire(cmd.Context(), *dbPath, *port, generic.SystemClock{})
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(a)
		},
	}
}

func serve(a *app) error {
	log := a.log.WithField("component", "http")

	scheduler := api.NewSweepScheduler(a.service, a.log.WithField("component", "sweep"))
	scheduler.Enabled = a.cfg.SweepEnabled
	scheduler.Interval = a.cfg.SweepInterval

	handler := api.NewHandler(a.service, scheduler, a.clock, log)
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins:    a.cfg.CORSOrigins,
		MetricsEnabled: a.cfg.MetricsEnabled,
		MetricsPath:    a.cfg.MetricsPath,
		Health:         a.store.Ping,
	})

	server := &http.Server{
		Addr:         a.cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	scheduler.Start()
	defer scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": server.Addr, "db": a.cfg.DBPath}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	}

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

// =============================================================================
// SWEEP
// =============================================================================

func newSweepCmd(dbPath *string) *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue internships once and publish expiry warnings",
		RunE: func(cmd *cobra.Command, args []string) error {
			var clock generic.Clock = generic.SystemClock{}
			if asOf != "" {
				day, err := generic.ParseDate(asOf)
				if err != nil {
					return fmt.Errorf("invalid --as-of: %w", err)
				}
				clock = generic.FixedClock{At: day.Time}
			}

			a, err := wire(cmd.Context(), *dbPath, 0, clock)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.service.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "Run the sweep as of this date (YYYY-MM-DD)")
	return cmd
}
