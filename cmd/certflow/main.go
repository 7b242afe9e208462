// Command certflow issues and renews TLS certificates over ACME DNS-01.
// State lives in a local JSON file; DNS providers are configured once and
// referenced by order domains.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/certflow/certflow/core/acmeorder"
	"github.com/certflow/certflow/core/renewal"
	"github.com/certflow/certflow/integration/dns"
	redissession "github.com/certflow/certflow/integration/session/redis"
	"github.com/certflow/certflow/integration/storage/jsonfile"
)

var (
	statePath    string
	directoryURL string
	staging      bool
	redisURL     string
	verbose      bool

	// Version is set via ldflags during build.
	Version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "certflow",
	Short: "Issue and renew TLS certificates over ACME DNS-01",
	Long: `Certflow automates certificate issuance through the ACME DNS-01 challenge.
It publishes validation records through your DNS provider's API, waits for
them to propagate, and stores the issued certificate on disk. Persisted
orders can be renewed unattended by the built-in scheduler.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&statePath, "state", defaultStatePath(), "path to the state file")
	rootCmd.PersistentFlags().StringVar(&directoryURL, "directory-url", "", "ACME directory URL (defaults to Let's Encrypt production)")
	rootCmd.PersistentFlags().BoolVar(&staging, "staging", false, "use the Let's Encrypt staging environment")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis-url", os.Getenv("REDIS_URL"), "Redis URL for shared renewal sessions (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func defaultStatePath() string {
	if p := os.Getenv("CERTFLOW_STATE"); p != "" {
		return p
	}
	return "certflow.json"
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openStore() (*jsonfile.Store, error) {
	store, err := jsonfile.Open(statePath)
	if err != nil {
		return nil, fmt.Errorf("open state file: %w", err)
	}
	return store, nil
}

// newService wires the renewal service from the command-line flags: the
// JSON file store, the full DNS provider registry, and, when a Redis URL
// is given, a shared session store so manual renewals survive between
// invocations.
func newService(ctx context.Context) (*renewal.Service, *jsonfile.Store, error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}

	opts := []renewal.Option{
		renewal.WithLogger(newLogger()),
	}
	switch {
	case directoryURL != "":
		opts = append(opts, renewal.WithDirectoryURL(directoryURL))
	case staging:
		opts = append(opts, renewal.WithDirectoryURL(acmeorder.LetsEncryptStaging))
	}
	if redisURL != "" {
		client, err := redissession.Connect(ctx, redissession.Config{ConnectionURL: redisURL})
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		opts = append(opts, renewal.WithSessionStore(redissession.NewStore(client)))
	}

	return renewal.New(store, dns.DefaultRegistry(), opts...), store, nil
}
