package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/vali/internal/config"
	valierr "github.com/mrz1836/vali/pkg/errors"
)

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and modify vali configuration settings.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file at ~/.vali/config.yaml.

An existing file is left alone unless --force is given.`,
	Example: `  vali config init
  vali config init --force`,
	RunE: runConfigInit,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration settings.`,
	Example: `  vali config show
  vali config show -o json`,
	RunE: runConfigShow,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Get a configuration value",
	Long: `Print a single configuration value. Values are addressed by
dot-separated paths, section.key.`,
	Example: `  vali config get portal.api_url
  vali config get output.default_format
  vali config get logging.level`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configSetCmd = &cobra.Command{
	Use:   "set <path> <value>",
	Short: "Set a configuration value",
	Long: `Write a single configuration value, addressed the same way as
'vali config get', and save the file immediately.`,
	Example: `  vali config set portal.request_timeout_seconds 15
  vali config set output.default_format json
  vali config set checks.max_concurrent 4`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Long: `Print the path of the configuration file vali reads, whether or not
it exists yet.`,
	Example: `  vali config path`,
	RunE:    runConfigPath,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	configCmd.GroupID = "config"
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	configPath := config.Path(cfg.Home)

	if _, err := os.Stat(configPath); err == nil && !configForce {
		return valierr.WithSuggestion(
			valierr.ErrGeneral,
			fmt.Sprintf("configuration already exists at %s. Use --force to overwrite.", configPath),
		)
	}

	defaultCfg := config.Defaults()
	defaultCfg.Home = cfg.Home

	if err := config.Save(defaultCfg, configPath); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	w := cmd.OutOrStdout()
	out(w, "Configuration initialized at %s\n", configPath)
	outln(w)
	outln(w, "Edit this file to configure:")
	outln(w, "  - portal.request_timeout_seconds: Portal API request timeout")
	outln(w, "  - browser.headless: Run the token browser headless (true/false)")
	outln(w, "  - checks.max_concurrent: Parallel account checks in --all mode")
	outln(w, "  - output.default_format: Output format (text/json/auto)")
	outln(w, "  - logging.level: Log level (off/error/debug)")

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	if formatter.IsJSON() {
		return writeJSON(w, cfg)
	}
	return displayConfigText(w, cfg)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	f, ok := lookupConfigField(args[0])
	if !ok {
		return unknownConfigKey(args[0])
	}

	outln(cmd.OutOrStdout(), f.get(cfg))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path, value := args[0], args[1]

	f, ok := lookupConfigField(path)
	if !ok {
		return unknownConfigKey(path)
	}

	// The running config may already carry flag and environment overrides,
	// so edits apply to a fresh copy loaded from disk.
	configPath := config.Path(cfg.Home)
	fileCfg, err := config.Load(configPath)
	if err != nil {
		fileCfg = config.Defaults()
	}

	if err := f.set(fileCfg, value); err != nil {
		return err
	}
	if err := config.Save(fileCfg, configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	out(cmd.OutOrStdout(), "Set %s = %s\n", path, value)
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	cmdCtx := GetCmdContext(cmd)
	configPath := config.Path(cfg.Home)

	if cmdCtx.Fmt.IsJSON() {
		_, statErr := os.Stat(configPath)
		return writeJSON(cmd.OutOrStdout(), struct {
			Path   string `json:"path"`
			Exists bool   `json:"exists"`
		}{Path: configPath, Exists: statErr == nil})
	}

	outln(cmd.OutOrStdout(), configPath)
	return nil
}

// configField binds one dot-separated path to a leaf of the Config tree.
type configField struct {
	key   string
	blank string // stands in for an empty value in the text view
	get   func(*config.Config) string
	set   func(*config.Config, string) error
}

// configFields lists every addressable configuration key, in the order the
// text view prints them.
func configFields() []configField {
	return []configField{
		stringField("home", func(c *config.Config) *string { return &c.Home }),

		urlField("portal.api_url", func(c *config.Config) *string { return &c.Portal.APIURL }),
		urlField("portal.page_url", func(c *config.Config) *string { return &c.Portal.PageURL }),
		intField("portal.request_timeout_seconds", func(c *config.Config) *int { return &c.Portal.RequestTimeoutSeconds }),
		intField("portal.rate_per_second", func(c *config.Config) *int { return &c.Portal.RatePerSecond }),
		intField("portal.rate_burst", func(c *config.Config) *int { return &c.Portal.RateBurst }),

		autoField("recaptcha.site_key", func(c *config.Config) *string { return &c.Recaptcha.SiteKey }),
		stringField("recaptcha.action", func(c *config.Config) *string { return &c.Recaptcha.Action }),
		intField("recaptcha.solve_timeout_seconds", func(c *config.Config) *int { return &c.Recaptcha.SolveTimeoutSeconds }),
		countField("recaptcha.settle_seconds", func(c *config.Config) *int { return &c.Recaptcha.SettleSeconds }),

		boolField("browser.headless", func(c *config.Config) *bool { return &c.Browser.Headless }),
		autoField("browser.chrome_path", func(c *config.Config) *string { return &c.Browser.ChromePath }),

		intField("checks.max_concurrent", func(c *config.Config) *int { return &c.Checks.MaxConcurrent }),
		countField("checks.cache_staleness_minutes", func(c *config.Config) *int { return &c.Checks.CacheStalenessMinutes }),
		countField("checks.retries", func(c *config.Config) *int { return &c.Checks.Retries }),

		boolField("security.memory_lock", func(c *config.Config) *bool { return &c.Security.MemoryLock }),
		boolField("security.session_enabled", func(c *config.Config) *bool { return &c.Security.SessionEnabled }),
		intField("security.session_ttl_minutes", func(c *config.Config) *int { return &c.Security.SessionTTLMinutes }),

		enumField("output.default_format", func(c *config.Config) *string { return &c.Output.DefaultFormat }, "text", "json", "auto"),
		boolField("output.verbose", func(c *config.Config) *bool { return &c.Output.Verbose }),
		enumField("output.color", func(c *config.Config) *string { return &c.Output.Color }, "auto", "always", "never"),

		enumField("logging.level", func(c *config.Config) *string { return &c.Logging.Level }, "off", "error", "debug"),
		stringField("logging.file", func(c *config.Config) *string { return &c.Logging.File }),
	}
}

func lookupConfigField(key string) (configField, bool) {
	for _, f := range configFields() {
		if f.key == key {
			return f, true
		}
	}
	return configField{}, false
}

func unknownConfigKey(path string) error {
	err := valierr.WithDetails(valierr.ErrUnknownConfigKey, map[string]string{"key": path})
	return valierr.WithSuggestion(err, fmt.Sprintf("no such key '%s'. Run 'vali config show' to list every key", path))
}

func invalidConfigValue(value, valid string) error {
	return valierr.WithDetails(
		valierr.ErrConfigInvalid,
		map[string]string{"value": value, "valid": valid},
	)
}

func stringField(key string, ref func(*config.Config) *string) configField {
	return configField{
		key: key,
		get: func(c *config.Config) string { return *ref(c) },
		set: func(c *config.Config, v string) error { *ref(c) = v; return nil },
	}
}

// autoField is a string key whose empty value means auto-detection.
func autoField(key string, ref func(*config.Config) *string) configField {
	f := stringField(key, ref)
	f.blank = "(auto-detect)"
	return f
}

func urlField(key string, ref func(*config.Config) *string) configField {
	return configField{
		key: key,
		get: func(c *config.Config) string { return *ref(c) },
		set: func(c *config.Config, v string) error {
			sanitized := config.SanitizeURL(v)
			if sanitized == "" {
				return invalidConfigValue(v, "an http(s) URL")
			}
			*ref(c) = sanitized
			return nil
		},
	}
}

// intField accepts strictly positive integers.
func intField(key string, ref func(*config.Config) *int) configField {
	return configField{
		key: key,
		get: func(c *config.Config) string { return strconv.Itoa(*ref(c)) },
		set: func(c *config.Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return invalidConfigValue(v, "a positive integer")
			}
			*ref(c) = n
			return nil
		},
	}
}

// countField accepts zero as well, for keys where zero means "disabled".
func countField(key string, ref func(*config.Config) *int) configField {
	return configField{
		key: key,
		get: func(c *config.Config) string { return strconv.Itoa(*ref(c)) },
		set: func(c *config.Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return invalidConfigValue(v, "zero or a positive integer")
			}
			*ref(c) = n
			return nil
		},
	}
}

func boolField(key string, ref func(*config.Config) *bool) configField {
	return configField{
		key: key,
		get: func(c *config.Config) string { return strconv.FormatBool(*ref(c)) },
		set: func(c *config.Config, v string) error {
			switch v {
			case "true":
				*ref(c) = true
			case "false":
				*ref(c) = false
			default:
				return invalidConfigValue(v, "true or false")
			}
			return nil
		},
	}
}

func enumField(key string, ref func(*config.Config) *string, allowed ...string) configField {
	return configField{
		key: key,
		get: func(c *config.Config) string { return *ref(c) },
		set: func(c *config.Config, v string) error {
			for _, a := range allowed {
				if v == a {
					*ref(c) = v
					return nil
				}
			}
			return invalidConfigValue(v, oneOf(allowed))
		},
	}
}

// oneOf renders an allowed-values list as "a, b, or c".
func oneOf(values []string) string {
	if len(values) < 2 {
		return strings.Join(values, "")
	}
	return strings.Join(values[:len(values)-1], ", ") + ", or " + values[len(values)-1]
}

// displayConfigText renders the whole tree grouped by section, walking the
// same field table that get and set use.
func displayConfigText(w io.Writer, c *config.Config) error {
	outln(w, "Configuration:")

	section := ""
	for _, f := range configFields() {
		dot := strings.IndexByte(f.key, '.')
		if dot < 0 {
			outln(w)
			out(w, "  %s: %s\n", sectionTitle(f.key), f.get(c))
			continue
		}
		if sec := f.key[:dot]; sec != section {
			section = sec
			outln(w)
			out(w, "  %s:\n", sectionTitle(sec))
		}

		val := f.get(c)
		if val == "" && f.blank != "" {
			val = f.blank
		}
		out(w, "    %s: %s\n", f.key[dot+1:], val)
	}

	if len(c.Services) > 0 {
		outln(w)
		outln(w, "  Custom services:")
		for _, svc := range c.Services {
			out(w, "    %s: id=%d step=%d\n", svc.Name, svc.ServiceID, svc.StepOrder)
		}
	}

	return nil
}

func sectionTitle(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
