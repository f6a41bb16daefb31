package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pulseboard/pulseboard/internal/app"
	"github.com/pulseboard/pulseboard/internal/config"
)

// Environment variables used as flag defaults.
const (
	EnvDBPath  = "PULSEBOARD_DB_PATH"
	EnvEnvFile = "PULSEBOARD_ENV_FILE"
)

// Version is set at build time with -ldflags.
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

// GlobalFlags contains global flags available for all commands
type GlobalFlags struct {
	Config  string
	DBPath  string
	EnvFile string
	Verbose bool
	JSON    bool
	NoColor bool
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "pulseboard",
	Short: "Pulseboard - live YouTube and TikTok channel dashboard",
	Long: `Pulseboard polls the YouTube Data API and the TikTok Open API and shows
follower counts, totals, deltas since the previous poll and the top and
latest videos of each channel.

It also serves the TikTok token exchange backend and runs the TikTok
authorization flow.

Usage:
  pulseboard [command] [flags]

Available Commands:
  serve        Start the HTTP server and the background poller
  refresh      Poll once and print the dashboard
  watch        Poll on an interval and redraw the dashboard
  auth         Connect a platform account
  credentials  Show or update stored platform credentials
  doctor       Diagnose configuration issues

Use "pulseboard [command] --help" for more information about a command.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnvFile(globalFlags.EnvFile)
	},
}

// InitRoot initializes the root command with global flags
func InitRoot() {
	configPath := os.Getenv(config.EnvConfigPath)
	if configPath == "" {
		configPath = "config.yaml"
	}
	envFile := os.Getenv(EnvEnvFile)
	if envFile == "" {
		envFile = ".env"
	}

	RootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", configPath, "Path to configuration file")
	RootCmd.PersistentFlags().StringVar(&globalFlags.DBPath, "db", os.Getenv(EnvDBPath), "Path to SQLite database (overrides storage.db_path)")
	RootCmd.PersistentFlags().StringVar(&globalFlags.EnvFile, "env-file", envFile, "Dotenv file loaded before the config")
	RootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose output")
	RootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format")
	RootCmd.PersistentFlags().BoolVar(&globalFlags.NoColor, "no-color", false, "Disable colored output")

	RootCmd.AddCommand(versionCmd)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of Pulseboard",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout())
	},
}

var globalFlags GlobalFlags

// GetGlobalFlags returns the global flags
func GetGlobalFlags() GlobalFlags {
	return globalFlags
}

func printVersion(w io.Writer) {
	info := GetVersionInfo()
	fmt.Fprintln(w, "Pulseboard Version:", info.Version)
	fmt.Fprintln(w, "Go Version:", info.GoVersion)
	fmt.Fprintln(w, "OS/Arch:", info.OS+"/"+info.Arch)
	fmt.Fprintln(w, "Build Date:", info.BuildDate)
}

// VersionInfo contains version information
type VersionInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	BuildDate string `json:"build_date"`
}

// GetVersionInfo returns version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		BuildDate: BuildDate,
	}
}

// loadEnvFile reads path into the environment. Variables already set win
// and a missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// loadConfig reads --config, falling back to defaults when the file is absent.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(globalFlags.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// openApp builds the application for a command. Logs go to stderr so that
// stdout carries only command output.
func openApp(cmd *cobra.Command, cfg *config.Config) (*app.App, error) {
	return app.New(cfg, app.Options{
		DBPath:    globalFlags.DBPath,
		LogOutput: cmd.ErrOrStderr(),
		Verbose:   globalFlags.Verbose,
		Color:     !globalFlags.NoColor,
	})
}
