package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/vali/internal/accounts"
	"github.com/mrz1836/vali/internal/cache"
	"github.com/mrz1836/vali/internal/config"
	"github.com/mrz1836/vali/internal/output"
	"github.com/mrz1836/vali/internal/services"
	"github.com/mrz1836/vali/internal/session"
)

// cmdContextKey is the context key type for CommandContext values.
type cmdContextKey struct{}

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	// Cfg is the loaded configuration.
	Cfg *config.Config

	// Log is the application logger.
	Log *config.Logger

	// Fmt is the output formatter.
	Fmt *output.Formatter

	// Registry resolves service names to portal service descriptors.
	// Always set; built from the built-ins plus config custom services.
	Registry *services.Registry

	// Storage is the accounts book storage.
	Storage accounts.Storage

	// ResultCache is the balance result cache.
	ResultCache cache.Cache

	// SessionMgr manages accounts book unlock sessions.
	SessionMgr session.Manager
}

// NewCommandContext creates a context with the given dependencies.
func NewCommandContext(
	cfg *config.Config,
	logger *config.Logger,
	formatter *output.Formatter,
) *CommandContext {
	return &CommandContext{
		Cfg:      cfg,
		Log:      logger,
		Fmt:      formatter,
		Registry: services.NewRegistry(),
	}
}

// WithRegistry replaces the service registry.
func (c *CommandContext) WithRegistry(r *services.Registry) *CommandContext {
	c.Registry = r
	return c
}

// WithStorage sets the accounts book storage.
func (c *CommandContext) WithStorage(s accounts.Storage) *CommandContext {
	c.Storage = s
	return c
}

// WithCache sets the result cache.
func (c *CommandContext) WithCache(resultCache cache.Cache) *CommandContext {
	c.ResultCache = resultCache
	return c
}

// WithSessionManager sets the unlock session manager.
func (c *CommandContext) WithSessionManager(m session.Manager) *CommandContext {
	c.SessionMgr = m
	return c
}

// SetCmdContext attaches the CommandContext to the command's context.
// The command must already have a context set.
func SetCmdContext(cmd *cobra.Command, cc *CommandContext) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	cmd.SetContext(context.WithValue(base, cmdContextKey{}, cc))
}

// GetCmdContext retrieves the CommandContext from the command's context.
// Returns nil if no context was set.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	base := cmd.Context()
	if base == nil {
		return nil
	}
	cc, _ := base.Value(cmdContextKey{}).(*CommandContext)
	return cc
}

// contextWithTimeout derives a deadline context from the command's
// context, falling back to Background when cobra carries none.
func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	if base := cmd.Context(); base != nil {
		return context.WithTimeout(base, d)
	}
	return context.WithTimeout(context.Background(), d)
}
