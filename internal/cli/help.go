package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// walkCommands calls fn on cmd and every command below it.
func walkCommands(cmd *cobra.Command, fn func(*cobra.Command)) {
	queue := []*cobra.Command{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = append(queue[1:], c.Commands()...)
		fn(c)
	}
}

// enrichParentLong tacks the current subcommand listing onto a parent
// command's Long text, so the help never drifts out of date as
// subcommands come and go.
func enrichParentLong(cmd *cobra.Command) {
	if !cmd.HasSubCommands() {
		return
	}

	var b strings.Builder
	b.WriteString(cmd.Long)
	b.WriteString("\n\nSubcommands:\n")
	for _, sc := range cmd.Commands() {
		if !sc.IsAvailableCommand() {
			continue
		}
		fmt.Fprintf(&b, "  %-16s %s\n", sc.Name(), sc.Short)
	}
	cmd.Long = b.String()
}
