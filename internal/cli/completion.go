package cli

import (
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Emit a completion script for your shell",
	Long: `Generate a shell completion script for vali.

Bash:
  $ source <(vali completion bash)

  # To install permanently (Linux):
  $ vali completion bash > /etc/bash_completion.d/vali
  # or on macOS:
  $ vali completion bash > $(brew --prefix)/etc/bash_completion.d/vali

Zsh:
  # Enable completion support once, if not already on:
  $ echo 'autoload -U compinit; compinit' >> ~/.zshrc

  # Then install the script and start a new shell:
  $ vali completion zsh > "${fpath[1]}/_vali"

Fish:
  $ vali completion fish | source

  # To install permanently:
  $ vali completion fish > ~/.config/fish/completions/vali.fish

PowerShell:
  PS> vali completion powershell | Out-String | Invoke-Expression

  # To install permanently, write the script to a file sourced from
  # your PowerShell profile:
  PS> vali completion powershell > vali.ps1
`,
	Example:               `  vali completion zsh > "${fpath[1]}/_vali"`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(w)
		case "zsh":
			return cmd.Root().GenZshCompletion(w)
		case "fish":
			return cmd.Root().GenFishCompletion(w, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(w)
		}
		return nil
	},
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	completionCmd.GroupID = "config"
	rootCmd.AddCommand(completionCmd)
}
