// Package cli implements the vali command-line interface.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/vali/internal/config"
	"github.com/mrz1836/vali/internal/output"
	"github.com/mrz1836/vali/internal/services"
	versionpkg "github.com/mrz1836/vali/internal/version"
	valierr "github.com/mrz1836/vali/pkg/errors"
)

// BuildInfo carries version metadata injected at build time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
var (
	// buildInfo holds the version metadata passed to Execute.
	buildInfo BuildInfo

	// homeDir is the --home flag value.
	homeDir string
	// outputFormat is the --output flag value.
	outputFormat string
	// verbose is the --verbose flag value.
	verbose bool
	// versionCheck is the version --check flag value.
	versionCheck bool

	// cfg is the loaded configuration, set by initGlobals.
	cfg *config.Config
	// logger is the application logger, set by initGlobals.
	logger *config.Logger
	// formatter is the output formatter, set by initGlobals.
	formatter *output.Formatter
	// cmdCtx is the command dependency container, set by initGlobals.
	cmdCtx *CommandContext
)

// rootCmd is the base command for vali.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var rootCmd = &cobra.Command{
	Use:   "vali",
	Short: "Check utility-bill balances on the TBC Pay portal",
	Long: `Check utility-bill balances on the TBC Pay portal from the command line.

vali drives a real browser once to mint reCAPTCHA tokens, then talks to the
portal's internal API directly. Results come back structured: tables for
humans, JSON for scripts (-o json).

Successful checks are cached locally so repeat lookups are instant, and
frequently used account numbers can be saved under short labels in an
encrypted accounts book.`,
	Example: `  vali check water 1234567
  vali check home-water
  vali check --all
  vali accounts add home-water water 1234567
  vali token`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initGlobals(cmd)
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// versionCmd prints version information.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Show the vali version, commit, and build date.

With --check, also query GitHub for the latest released version.`,
	Example: `  vali version
  vali version --check`,
	RunE: runVersion,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "vali home directory (default ~/.vali)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format (text, json, auto)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "check", Title: "Balance Commands:"},
		&cobra.Group{ID: "security", Title: "Accounts & Security Commands:"},
		&cobra.Group{ID: "config", Title: "Configuration Commands:"},
	)
	rootCmd.SetHelpCommandGroupID("config")

	versionCmd.GroupID = "config"
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check GitHub for a newer release")
	rootCmd.AddCommand(versionCmd)
}

// initGlobals loads configuration and wires the logger, formatter, and
// command context. Called once per invocation via PersistentPreRunE.
func initGlobals(cmd *cobra.Command) error {
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}

	loaded, err := config.Load(config.Path(home))
	if err != nil {
		loaded = config.Defaults()
	}
	cfg = loaded
	cfg.Home = home

	config.ApplyEnvironment(cfg)

	// Explicit flags win over both the config file and the environment.
	if homeDir != "" {
		cfg.Home = homeDir
	}
	if outputFormat != "" {
		cfg.Output.DefaultFormat = outputFormat
	}
	if verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = "debug"
	}

	logger, err = config.NewLogger(config.ParseLogLevel(cfg.Logging.Level), cfg.Logging.File)
	if err != nil {
		logger = config.NullLogger()
	}

	format := output.DetectFormat(os.Stdout, output.ParseFormat(cfg.Output.DefaultFormat))
	formatter = output.NewFormatter(format, os.Stdout)
	switch cfg.Output.Color {
	case "always":
		formatter.SetColor(true)
	case "never":
		formatter.SetColor(false)
	default:
		formatter.SetColor(output.DetectColor(os.Stdout, true))
	}

	cmdCtx = NewCommandContext(cfg, logger, formatter).
		WithRegistry(services.NewRegistry(customServices(cfg)...))
	SetCmdContext(cmd, cmdCtx)

	logger.Debug("initialized: home=%s format=%s", cfg.Home, format)

	return nil
}

// customServices converts config service entries to registry entries.
func customServices(c *config.Config) []services.Service {
	if len(c.Services) == 0 {
		return nil
	}

	custom := make([]services.Service, 0, len(c.Services))
	for _, sc := range c.Services {
		custom = append(custom, services.Service{
			Name:      sc.Name,
			Display:   sc.Display,
			ID:        int64(sc.ServiceID),
			StepOrder: sc.StepOrder,
		})
	}
	return custom
}

// cleanup releases resources acquired by initGlobals.
func cleanup() {
	if logger != nil {
		_ = logger.Close()
	}
}

// formatErr prints an error using the structured error format.
func formatErr(err error) {
	format := output.FormatText
	if formatter != nil {
		format = formatter.Format()
	}
	_ = output.FormatError(os.Stderr, err, format)
}

// Execute runs the root command. Errors are printed in the structured
// error format; the caller maps the returned error to an exit code.
func Execute(info BuildInfo) error {
	buildInfo = info
	rootCmd.Version = formatVersion(info)

	walkCommands(rootCmd, enrichParentLong)

	err := rootCmd.Execute()
	if err != nil {
		formatErr(err)
	}
	return err
}

// ExitCode returns the process exit code for an error.
func ExitCode(err error) int {
	return valierr.ExitCode(err)
}

// formatVersion renders build info as a one-line version string.
func formatVersion(info BuildInfo) string {
	version := info.Version
	if version == "" {
		version = "dev"
	}
	commit := info.Commit
	if commit == "" {
		commit = "unknown"
	}
	date := info.Date
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

func runVersion(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()

	var info *versionpkg.Info
	if versionCheck {
		ctx, cancel := contextWithTimeout(cmd, 15*time.Second)
		defer cancel()

		checked, err := versionpkg.CheckForUpdate(ctx, upgradeOwner, upgradeRepo, GetCurrentVersion())
		if err != nil {
			return fmt.Errorf("checking for updates: %w", err)
		}
		info = checked
	}

	if formatter != nil && formatter.IsJSON() {
		payload := struct {
			Version string `json:"version"`
			Commit  string `json:"commit"`
			Built   string `json:"built"`
			Latest  string `json:"latest,omitempty"`
			Newer   *bool  `json:"update_available,omitempty"`
		}{
			Version: GetCurrentVersion(),
			Commit:  buildInfo.Commit,
			Built:   buildInfo.Date,
		}
		if info != nil {
			payload.Latest = info.Latest
			payload.Newer = &info.IsNewer
		}
		return writeJSON(w, payload)
	}

	outln(w, formatVersion(buildInfo))
	if info != nil {
		if info.IsNewer {
			out(w, "Update available: %s -> %s\n", info.Current, info.Latest)
			outln(w, "Run 'vali upgrade' to install it")
		} else {
			outln(w, "You are on the latest version")
		}
	}
	return nil
}

// Config returns the loaded configuration.
func Config() *config.Config {
	return cfg
}

// Logger returns the application logger.
func Logger() *config.Logger {
	return logger
}

// Formatter returns the output formatter.
func Formatter() *output.Formatter {
	return formatter
}

// Context returns the command dependency container.
func Context() *CommandContext {
	return cmdCtx
}
