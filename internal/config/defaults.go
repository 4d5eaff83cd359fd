package config

// DefaultAPIURL is the portal's internal API base URL.
const DefaultAPIURL = "https://api.tbcpay.ge"

// DefaultPageURL is the portal page that loads the reCAPTCHA challenge script.
const DefaultPageURL = "https://tbcpay.ge"

// DefaultRecaptchaAction is the action name passed to grecaptcha.execute.
const DefaultRecaptchaAction = "payment"

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.vali",
		Portal: PortalConfig{
			APIURL:                DefaultAPIURL,
			PageURL:               DefaultPageURL,
			RequestTimeoutSeconds: 15,
			RatePerSecond:         2,
			RateBurst:             4,
		},
		Recaptcha: RecaptchaConfig{
			SiteKey:             "", // auto-detected, falls back to the portal's published key
			Action:              DefaultRecaptchaAction,
			SolveTimeoutSeconds: 30,
			SettleSeconds:       3,
		},
		Browser: BrowserConfig{
			Headless: true,
		},
		Checks: ChecksConfig{
			MaxConcurrent:         4,
			CacheStalenessMinutes: 5,
			Retries:               0,
		},
		Security: SecurityConfig{
			MemoryLock:        true,
			SessionEnabled:    true,
			SessionTTLMinutes: 15,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.vali/vali.log",
		},
	}
}
