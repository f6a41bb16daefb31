package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/store"
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose configuration issues",
	Long: `Check everything Pulseboard needs before it can show data.

This command checks:
- Configuration file and validation
- Database access
- Stored credentials for each platform
- TikTok app credentials for the token exchange
- Telegram notifications

Example:
  pulseboard doctor
  pulseboard doctor --json`,
	RunE: runDoctor,
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}

// Check statuses.
const (
	StatusOK   = "OK"
	StatusWarn = "WARN"
	StatusFail = "FAIL"
)

// DoctorReport represents the complete diagnostic report
type DoctorReport struct {
	Timestamp       time.Time     `json:"timestamp"`
	Version         VersionInfo   `json:"version"`
	Checks          []DoctorCheck `json:"checks"`
	Recommendations []string      `json:"recommendations"`
}

// DoctorCheck represents a single diagnostic check
type DoctorCheck struct {
	Category    string `json:"category"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Message     string `json:"message"`
	Severity    string `json:"severity,omitempty"`
	Remediation string `json:"remediation,omitempty"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	report := DoctorReport{
		Timestamp: time.Now().UTC(),
		Version:   GetVersionInfo(),
	}

	cfg, check := checkConfigFile(globalFlags.Config)
	report.Checks = append(report.Checks, check)
	report.Checks = append(report.Checks, checkConfiguration(cfg)...)

	dbPath := globalFlags.DBPath
	if dbPath == "" {
		dbPath = cfg.Storage.DBPath
	}
	creds, check := checkDatabase(contextOrBackground(cmd.Context()), dbPath)
	report.Checks = append(report.Checks, check)
	if creds != nil {
		report.Checks = append(report.Checks, checkCredentials(creds)...)
	}

	report.Recommendations = generateRecommendations(report.Checks)

	return outputDoctorReport(cmd.OutOrStdout(), report)
}

// checkConfigFile always returns a usable config: the parsed file, or the
// defaults when the file is missing or broken.
func checkConfigFile(path string) (*config.Config, DoctorCheck) {
	check := DoctorCheck{Category: "Configuration", Name: "Config File"}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, _ := config.LoadOrDefault(path)
		if cfg == nil {
			cfg = config.Default()
		}
		check.Status = StatusWarn
		check.Message = fmt.Sprintf("%s not found, using defaults", path)
		check.Severity = "low"
		check.Remediation = "Create config.yaml or pass --config to change the interval or listen address"
		return cfg, check
	}

	cfg, err := config.NewLoader(path).Load()
	if err != nil {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("Config file invalid: %v", err)
		check.Severity = "high"
		check.Remediation = "Check config.yaml syntax and values"
		return config.Default(), check
	}

	check.Status = StatusOK
	check.Message = fmt.Sprintf("Loaded %s", path)
	return cfg, check
}

func checkDatabase(ctx context.Context, path string) (*store.CredentialStore, DoctorCheck) {
	check := DoctorCheck{Category: "Storage", Name: "Database"}

	db, err := store.NewSQLiteStore(path)
	if err != nil {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("Cannot open %s: %v", path, err)
		check.Severity = "high"
		check.Remediation = fmt.Sprintf("Make sure %s is writable", filepath.Dir(path))
		return nil, check
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("Database not responding: %v", err)
		check.Severity = "high"
		return nil, check
	}

	// credentials are copied out before the database closes
	mem := store.NewMemorySettingsStore()
	snapshot := store.NewCredentialStore(mem)
	for _, creds := range store.NewCredentialStore(db.Settings()).LoadAll() {
		_ = snapshot.Save(creds)
	}

	check.Status = StatusOK
	check.Message = fmt.Sprintf("Database path: %s", path)
	return snapshot, check
}

func checkCredentials(cs *store.CredentialStore) []DoctorCheck {
	remediation := map[models.PlatformID]string{
		models.PlatformYouTube: "Run: pulseboard credentials set youtube --api-key KEY --channel-id ID",
		models.PlatformTikTok:  "Run: pulseboard auth tiktok",
	}

	var checks []DoctorCheck
	all := cs.LoadAll()
	for _, id := range models.AllPlatforms {
		check := DoctorCheck{Category: "Credentials", Name: id.DisplayName()}
		if all[id].Present() {
			check.Status = StatusOK
			check.Message = "Credentials stored"
		} else {
			check.Status = StatusWarn
			check.Message = "Not configured, platform is skipped"
			check.Severity = "medium"
			check.Remediation = remediation[id]
		}
		checks = append(checks, check)
	}
	return checks
}

func checkConfiguration(cfg *config.Config) []DoctorCheck {
	var checks []DoctorCheck

	exchange := DoctorCheck{Category: "Configuration", Name: "TikTok App"}
	switch {
	case cfg.Backend.BaseURL != "":
		exchange.Status = StatusOK
		exchange.Message = fmt.Sprintf("Token exchange via %s", cfg.Backend.BaseURL)
	case cfg.TikTok.ClientKey == "" || cfg.TikTok.ClientSecret == "":
		exchange.Status = StatusWarn
		exchange.Message = "TikTok client key or secret not set, auth tiktok will fail"
		exchange.Severity = "medium"
		exchange.Remediation = fmt.Sprintf("Set %s and %s or tiktok.client_key and tiktok.client_secret", config.EnvTikTokClientKey, config.EnvTikTokClientSecret)
	default:
		exchange.Status = StatusOK
		exchange.Message = "Token exchange runs in process"
	}
	checks = append(checks, exchange)

	checks = append(checks, DoctorCheck{
		Category: "Configuration",
		Name:     "Redirect URI",
		Status:   StatusOK,
		Message:  cfg.RedirectURI(),
	})

	tg := DoctorCheck{Category: "Notifications", Name: "Telegram"}
	switch {
	case !cfg.Telegram.Enabled:
		tg.Status = StatusOK
		tg.Message = "Disabled"
	case cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == 0:
		tg.Status = StatusWarn
		tg.Message = "Enabled but bot token or chat ID missing"
		tg.Severity = "low"
		tg.Remediation = fmt.Sprintf("Set %s and telegram.chat_id", config.EnvTelegramBotToken)
	default:
		tg.Status = StatusOK
		tg.Message = fmt.Sprintf("Sending to chat %d", cfg.Telegram.ChatID)
	}
	checks = append(checks, tg)

	return checks
}

func generateRecommendations(checks []DoctorCheck) []string {
	recommendations := []string{}

	failCount := 0
	warnCount := 0

	for _, check := range checks {
		switch check.Status {
		case StatusFail:
			failCount++
		case StatusWarn:
			warnCount++
		default:
			continue
		}
		if check.Remediation != "" {
			recommendations = append(recommendations, fmt.Sprintf("[%s] %s: %s", check.Category, check.Name, check.Remediation))
		}
	}

	if failCount == 0 && warnCount == 0 {
		recommendations = append(recommendations, "Everything looks good.")
	} else if failCount > 0 {
		recommendations = append(recommendations, fmt.Sprintf("Found %d critical issue(s) and %d warning(s). Please address the critical issues first.", failCount, warnCount))
	}

	return recommendations
}

func outputDoctorReport(w io.Writer, report DoctorReport) error {
	if globalFlags.JSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}
	return outputDoctorReportTable(w, report)
}

func outputDoctorReportTable(w io.Writer, report DoctorReport) error {
	fmt.Fprintln(w, "=== Pulseboard Doctor Report ===")
	fmt.Fprintf(w, "Generated: %s\n", report.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "Version: %s (%s, %s/%s)\n", report.Version.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)

	category := ""
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, check := range report.Checks {
		if check.Category != category {
			category = check.Category
			fmt.Fprintf(tw, "\n--- %s ---\n", category)
		}
		fmt.Fprintf(tw, "%s %s:\t%s\n", statusIcon(check.Status), check.Name, check.Message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, "\n--- Recommendations ---")
	for _, rec := range report.Recommendations {
		fmt.Fprintf(w, "• %s\n", rec)
	}
	return nil
}

func statusIcon(status string) string {
	switch status {
	case StatusFail:
		return "✗"
	case StatusWarn:
		return "!"
	default:
		return "✓"
	}
}
