package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/certflow/certflow/core/config"
	"github.com/certflow/certflow/core/scheduler"
)

// daemonConfig is loaded from the environment; flags stay for the
// ad-hoc commands, the long-running daemon is configured the twelve-factor
// way.
type daemonConfig struct {
	CheckInterval   time.Duration `env:"CERTFLOW_CHECK_INTERVAL" envDefault:"24h"`
	NoticeWindow    time.Duration `env:"CERTFLOW_NOTICE_WINDOW" envDefault:"720h"`
	ShutdownTimeout time.Duration `env:"CERTFLOW_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the renewal scheduler",
	Long: `Run the expiry scheduler in the foreground. Orders marked for automatic
renewal are renewed when their expiry falls inside the notice window. The
scheduler checks immediately on startup and then on every check interval.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	var cfg daemonConfig
	if err := config.Load(&cfg); err != nil {
		return fmt.Errorf("load daemon config: %w", err)
	}

	svc, store, err := newService(cmd.Context())
	if err != nil {
		return err
	}

	log := newLogger()
	sched, err := scheduler.New(store, svc,
		scheduler.WithCheckInterval(cfg.CheckInterval),
		scheduler.WithNoticeWindow(cfg.NoticeWindow),
		scheduler.WithShutdownTimeout(cfg.ShutdownTimeout),
		scheduler.WithLogger(log),
	)
	if err != nil {
		return err
	}

	log.Info("renewal scheduler starting",
		"check_interval", cfg.CheckInterval,
		"notice_window", cfg.NoticeWindow,
	)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(sched.Run(ctx))
	return g.Wait()
}
