package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pulseboard/pulseboard/internal/api"
	"github.com/pulseboard/pulseboard/internal/models"
)

// authCmd groups platform authorization flows.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Connect a platform account",
}

var authTikTokCmd = &cobra.Command{
	Use:   "tiktok",
	Short: "Authorize TikTok through the browser",
	Long: `Start the local server, print the TikTok authorization URL and wait
until the browser is redirected back to the callback.

The redirect URI registered with TikTok must point at this server,
by default http://127.0.0.1:8080/callback.

Example:
  pulseboard auth tiktok
  pulseboard auth tiktok --timeout 2m`,
	RunE: runAuthTikTok,
}

var authTimeout time.Duration

func init() {
	authTikTokCmd.Flags().DurationVar(&authTimeout, "timeout", 5*time.Minute, "How long to wait for the callback")

	authCmd.AddCommand(authTikTokCmd)
	RootCmd.AddCommand(authCmd)
}

// stateSource is the part of the OAuth controller the wait loop reads.
type stateSource interface {
	State() models.OAuthState
}

func runAuthTikTok(cmd *cobra.Command, args []string) error {
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
	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.Serve(serveCtx)
	}()

	authURL, err := a.OAuth.BeginAuthorization(ctx)
	if err != nil {
		cancelServe()
		<-serveErr
		return fmt.Errorf("failed to start authorization: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Open this URL in your browser to connect TikTok:")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  "+authURL)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Waiting for the callback on %s ...\n", a.OAuth.RedirectURI())

	waitCtx, cancelWait := context.WithTimeout(ctx, authTimeout)
	defer cancelWait()

	// a server that fails to bind ends the wait early
	var (
		served    bool
		serverErr error
	)
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		select {
		case serverErr = <-serveErr:
			served = true
			cancelWait()
		case <-waitCtx.Done():
		}
	}()

	state, err := waitForAuthorization(waitCtx, a.OAuth, 250*time.Millisecond)
	cancelWait()
	<-serverDone

	if serverErr != nil {
		return serverErr
	}
	if !served {
		cancelServe()
		if serr := <-serveErr; serr != nil {
			a.Logger.Warn("server shutdown failed", "error", serr.Error())
		}
	}

	if err != nil {
		return fmt.Errorf("authorization not completed: %w", err)
	}
	if state != models.OAuthConnected {
		return fmt.Errorf("authorization failed, check the log for the provider error")
	}
	creds := a.Credentials.Load(models.PlatformTikTok)
	fmt.Fprintf(out, "✓ TikTok connected (open_id %s)\n", creds.OpenID)
	return nil
}

// waitForAuthorization polls src until the flow reaches a terminal state or
// ctx ends.
func waitForAuthorization(ctx context.Context, src stateSource, interval time.Duration) (models.OAuthState, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if s := src.State(); s.IsTerminal() {
			return s, nil
		}
		select {
		case <-ctx.Done():
			return src.State(), ctx.Err()
		case <-ticker.C:
		}
	}
}
