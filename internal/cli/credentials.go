package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/store"
)

// credentialsCmd manages stored platform credentials.
var credentialsCmd = &cobra.Command{
	Use:     "credentials",
	Aliases: []string{"creds"},
	Short:   "Show or update stored platform credentials",
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set <platform>",
	Short: "Store credentials for a platform",
	Long: `Store credentials for youtube or tiktok. Only the flags given are
written; other stored values are kept.

Example:
  pulseboard credentials set youtube --api-key AIza... --channel-id UC...
  pulseboard credentials set tiktok --access-token act.... --open-id ...`,
	Args: cobra.ExactArgs(1),
	RunE: runCredentialsSet,
}

var credentialsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show stored credentials with secrets masked",
	RunE:  runCredentialsShow,
}

var credentialsClearCmd = &cobra.Command{
	Use:   "clear <platform>",
	Short: "Remove stored credentials of a platform",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialsClear,
}

type credentialFlags struct {
	APIKey       string
	ChannelID    string
	AccessToken  string
	OpenID       string
	RefreshToken string
}

var credFlags credentialFlags

func init() {
	f := credentialsSetCmd.Flags()
	f.StringVar(&credFlags.APIKey, "api-key", "", "YouTube Data API key")
	f.StringVar(&credFlags.ChannelID, "channel-id", "", "YouTube channel ID")
	f.StringVar(&credFlags.AccessToken, "access-token", "", "TikTok access token")
	f.StringVar(&credFlags.OpenID, "open-id", "", "TikTok open ID")
	f.StringVar(&credFlags.RefreshToken, "refresh-token", "", "TikTok refresh token")

	credentialsCmd.AddCommand(credentialsSetCmd, credentialsShowCmd, credentialsClearCmd)
	RootCmd.AddCommand(credentialsCmd)
}

// CredentialStatus is one row of `credentials show`.
type CredentialStatus struct {
	Platform    models.PlatformID          `json:"platform"`
	Configured  bool                       `json:"configured"`
	Credentials models.PlatformCredentials `json:"credentials"`
}

func runCredentialsSet(cmd *cobra.Command, args []string) error {
	id, err := models.ParsePlatformID(args[0])
	if err != nil {
		return err
	}
	creds := models.PlatformCredentials{
		Platform:     id,
		APIKey:       strings.TrimSpace(credFlags.APIKey),
		ChannelID:    strings.TrimSpace(credFlags.ChannelID),
		AccessToken:  strings.TrimSpace(credFlags.AccessToken),
		OpenID:       strings.TrimSpace(credFlags.OpenID),
		RefreshToken: strings.TrimSpace(credFlags.RefreshToken),
	}

	return withCredentialStore(cmd, func(cs *store.CredentialStore) error {
		if err := cs.Save(creds); err != nil {
			return err
		}
		saved := cs.Load(id)
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved %s credentials\n", id.DisplayName())
		if !saved.Present() {
			fmt.Fprintf(cmd.OutOrStdout(), "! %s is still missing required fields and will be skipped\n", id.DisplayName())
		}
		return nil
	})
}

func runCredentialsShow(cmd *cobra.Command, args []string) error {
	return withCredentialStore(cmd, func(cs *store.CredentialStore) error {
		return writeCredentialStatus(cmd.OutOrStdout(), credentialStatus(cs))
	})
}

func runCredentialsClear(cmd *cobra.Command, args []string) error {
	id, err := models.ParsePlatformID(args[0])
	if err != nil {
		return err
	}
	return withCredentialStore(cmd, func(cs *store.CredentialStore) error {
		if err := cs.Clear(id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared %s credentials\n", id.DisplayName())
		return nil
	})
}

func withCredentialStore(cmd *cobra.Command, fn func(*store.CredentialStore) error) error {
	path := globalFlags.DBPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Storage.DBPath
	}
	db, err := store.NewSQLiteStore(path)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(store.NewCredentialStore(db.Settings()))
}

func credentialStatus(cs *store.CredentialStore) []CredentialStatus {
	all := cs.LoadAll()
	out := make([]CredentialStatus, 0, len(models.AllPlatforms))
	for _, id := range models.AllPlatforms {
		creds := all[id]
		out = append(out, CredentialStatus{
			Platform:    id,
			Configured:  creds.Present(),
			Credentials: creds.Redacted(),
		})
	}
	return out
}

func writeCredentialStatus(w io.Writer, rows []CredentialStatus) error {
	if globalFlags.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLATFORM\tSTATUS\tDETAILS")
	for _, r := range rows {
		status := "not configured"
		if r.Configured {
			status = "configured"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Platform.DisplayName(), status, credentialDetails(r.Credentials))
	}
	return tw.Flush()
}

func credentialDetails(c models.PlatformCredentials) string {
	var parts []string
	add := func(name, value string) {
		if value != "" {
			parts = append(parts, name+"="+value)
		}
	}
	switch c.Platform {
	case models.PlatformYouTube:
		add("api_key", c.APIKey)
		add("channel_id", c.ChannelID)
	case models.PlatformTikTok:
		add("access_token", c.AccessToken)
		add("open_id", c.OpenID)
		add("refresh_token", c.RefreshToken)
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
