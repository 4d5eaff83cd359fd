package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/mrz1836/vali/internal/output"
	valierr "github.com/mrz1836/vali/pkg/errors"
)

// linkQR renders the payment link as a terminal QR code.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var linkQR bool

// linkCmd prints the portal payment page URL for an account.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var linkCmd = &cobra.Command{
	Use:   "link [service] <account or label>",
	Short: "Print the portal payment page link for an account",
	Long: `Print the portal payment page URL for an account, so the bill can be
paid in a browser or on a phone. vali never performs payments itself.

Accepts a service and account number, a saved label, or a bare account
number. With --qr the link is also rendered as a QR code when stdout is
a terminal.`,
	Example: `  # Link for an explicit service and account
  vali link water 730512

  # Link for a saved label
  vali link home-water

  # Bare account number
  vali link 730512

  # Render a scannable QR code
  vali link home-water --qr`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runLink,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	linkCmd.GroupID = "check"
	linkCmd.Flags().BoolVar(&linkQR, "qr", false, "Render the link as a QR code")
	rootCmd.AddCommand(linkCmd)
}

// LinkResponse is the JSON shape for the link command.
type LinkResponse struct {
	URL     string `json:"url"`
	Account string `json:"account"`
	Service string `json:"service,omitempty"`
	Label   string `json:"label,omitempty"`
}

func runLink(cmd *cobra.Command, args []string) error {
	cmdCtx := GetCmdContext(cmd)

	resp, err := resolveLink(cmd, cmdCtx, args)
	if err != nil {
		return err
	}

	if cmdCtx.Fmt.IsJSON() {
		return writeJSON(cmd.OutOrStdout(), resp)
	}

	w := cmd.OutOrStdout()
	outln(w, resp.URL)

	if linkQR {
		if !output.CanRenderQR(w) {
			outln(cmd.ErrOrStderr(), "QR rendering needs a terminal; printed the link only.")
			return nil
		}
		outln(w, "")
		if err := output.RenderQR(w, resp.URL); err != nil {
			return fmt.Errorf("rendering QR code: %w", err)
		}
	}

	return nil
}

// resolveLink maps the positional arguments to a payment link.
func resolveLink(cmd *cobra.Command, cmdCtx *CommandContext, args []string) (*LinkResponse, error) {
	// Service plus account number.
	if len(args) == 2 {
		svc, ok := cmdCtx.Registry.Lookup(args[0])
		if !ok {
			return nil, unknownServiceError(cmdCtx, args[0])
		}
		return &LinkResponse{
			URL:     paymentURL(cmdCtx, args[1]),
			Account: args[1],
			Service: svc.Display,
		}, nil
	}

	// A bare account number needs no resolution; the search page matches on
	// the number alone.
	if isDigits(args[0]) {
		return &LinkResponse{
			URL:     paymentURL(cmdCtx, args[0]),
			Account: args[0],
		}, nil
	}

	// Saved label.
	item, err := resolveLabelItem(cmd, cmdCtx, args[0])
	if err != nil {
		return nil, valierr.Wrap(err, "resolving %q", args[0])
	}
	return &LinkResponse{
		URL:     paymentURL(cmdCtx, item.item.AccountID),
		Account: item.item.AccountID,
		Service: item.svc.Name,
		Label:   item.item.Label,
	}, nil
}

// paymentURL builds the portal search URL that lands on the pay flow for
// the given account number.
func paymentURL(cmdCtx *CommandContext, account string) string {
	return fmt.Sprintf("%s/en/search?query=%s", cmdCtx.Cfg.Portal.PageURL, url.QueryEscape(account))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
