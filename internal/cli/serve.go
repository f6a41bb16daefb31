package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pulseboard/pulseboard/internal/api"
	"github.com/pulseboard/pulseboard/internal/config"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and the background poller",
	Long: `Start the Pulseboard HTTP server.

The server exposes the dashboard, the TikTok authorization callback, the
token exchange backend and health and metrics endpoints. The poller
refreshes both platforms on collector.interval.

Edits to the config file are picked up while the server runs.

Example:
  pulseboard serve --config config.yaml
  pulseboard serve --port 9090`,
	RunE: runServe,
}

var (
	serveHost    string
	servePort    int
	serveTimeout time.Duration
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", os.Getenv("PULSEBOARD_HOST"), "Listen host (overrides server.host)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", envInt("PULSEBOARD_PORT", 0), "Listen port (overrides server.http_port)")
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", envDuration("PULSEBOARD_SHUTDOWN_TIMEOUT", 0), "Graceful shutdown timeout")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cfg)

	a, err := openApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := os.Stat(globalFlags.Config); err == nil {
		if err := a.WatchConfig(config.NewLoader(globalFlags.Config)); err != nil {
			a.Logger.Warn("config hot reload disabled", "error", err.Error())
		}
	}

	ctx, stop := api.SignalContext(contextOrBackground(cmd.Context()))
	defer stop()

	return a.Serve(ctx)
}

func applyServeFlags(cfg *config.Config) {
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort > 0 {
		cfg.Server.HTTPPort = servePort
	}
	if serveTimeout > 0 {
		cfg.Server.ShutdownTimeout = serveTimeout
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ignoring %s=%q: %v\n", key, raw, err)
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ignoring %s=%q: %v\n", key, raw, err)
		return fallback
	}
	return n
}
