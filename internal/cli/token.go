package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// tokenSolveGrace pads the solve timeout so the command context does not
// expire before the provider's own deadline fires.
const tokenSolveGrace = 30 * time.Second

// tokenRefresh forces a fresh token even if a cached one is still valid.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var tokenRefresh bool

// tokenCmd mints a reCAPTCHA token without querying any balances.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a reCAPTCHA token for manual portal requests",
	Long: `Mint a reCAPTCHA v3 token by loading the portal page in an automated
browser and print it to stdout.

Tokens are short-lived (about two minutes) and single-use on the portal
side, so pipe the output straight into whatever request needs it.`,
	Example: `  # Mint a token
  vali token

  # Force a fresh token
  vali token --refresh

  # Use the token in a manual curl request
  TOKEN=$(vali token)`,
	RunE: runToken,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	tokenCmd.GroupID = "check"
	tokenCmd.Flags().BoolVar(&tokenRefresh, "refresh", false, "Force a fresh token even if a cached one is valid")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	cmdCtx := GetCmdContext(cmd)

	provider := newTokenProvider(cmdCtx)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Close(closeCtx); err != nil {
			cmdCtx.Log.Debug("closing token provider: %v", err)
		}
	}()

	ctx, cancel := contextWithTimeout(cmd, cmdCtx.Cfg.SolveTimeout()+tokenSolveGrace)
	defer cancel()

	var (
		token string
		err   error
	)
	if tokenRefresh {
		token, err = provider.Refresh(ctx)
	} else {
		token, err = provider.Token(ctx)
	}
	if err != nil {
		return fmt.Errorf("minting token: %w", err)
	}

	if cmdCtx.Fmt.IsJSON() {
		return writeJSON(cmd.OutOrStdout(), struct {
			Token string `json:"token"`
		}{Token: token})
	}

	outln(cmd.OutOrStdout(), token)
	return nil
}
