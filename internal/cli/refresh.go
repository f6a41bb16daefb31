package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/pulseboard/pulseboard/internal/api"
	"github.com/pulseboard/pulseboard/internal/display"
	"github.com/pulseboard/pulseboard/internal/models"
)

// refreshCmd polls once and prints the result.
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Poll once and print the dashboard",
	Long: `Fetch channel statistics and videos for every configured platform and
print the dashboard.

Deltas need a previous observation, so a one-shot refresh shows totals
without change indicators.

Example:
  pulseboard refresh
  pulseboard refresh --json`,
	RunE: runRefresh,
}

// watchCmd polls on the collector interval and redraws after every cycle.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll on an interval and redraw the dashboard",
	Long: `Poll every collector.interval and redraw the dashboard after each
cycle. Press Ctrl+C to stop.

Example:
  pulseboard watch`,
	RunE: runWatch,
}

func init() {
	RootCmd.AddCommand(refreshCmd)
	RootCmd.AddCommand(watchCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := api.SignalContext(contextOrBackground(cmd.Context()))
	defer stop()

	vm, err := a.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	return writeViewModel(cmd.OutOrStdout(), a.Renderer, vm)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	a.Engine.AddListener(&redrawListener{
		out:      cmd.OutOrStdout(),
		renderer: a.Renderer,
		clear:    !globalFlags.JSON,
	})

	ctx, stop := api.SignalContext(contextOrBackground(cmd.Context()))
	defer stop()

	if err := a.Poller.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return a.Poller.Stop()
}

func writeViewModel(w io.Writer, renderer *display.Terminal, vm *models.ViewModel) error {
	if globalFlags.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(vm)
	}
	_, err := fmt.Fprintln(w, renderer.Render(vm))
	return err
}

// redrawListener rewrites the terminal after every refresh cycle.
type redrawListener struct {
	mu       sync.Mutex
	out      io.Writer
	renderer *display.Terminal
	clear    bool
}

func (l *redrawListener) OnPlatform(*models.PlatformView) {}

func (l *redrawListener) OnRefresh(vm *models.ViewModel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.clear {
		termenv.NewOutput(l.out).ClearScreen()
	}
	_ = writeViewModel(l.out, l.renderer, vm)
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
