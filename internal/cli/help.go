package cli

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Help text is enriched once per process
var enrichHelpOnce sync.Once

// prepareHelp lists subcommands in the Long text of every nested parent.
// It runs after all init functions have registered their commands.
func prepareHelp(root *cobra.Command) {
	enrichHelpOnce.Do(func() {
		walkCommands(root, func(cmd *cobra.Command) {
			if cmd.HasParent() {
				enrichParentLong(cmd)
			}
		})
	})
}

// walkCommands visits every command in the tree depth-first.
func walkCommands(cmd *cobra.Command, fn func(*cobra.Command)) {
	fn(cmd)
	for _, sub := range cmd.Commands() {
		walkCommands(sub, fn)
	}
}

// enrichParentLong appends the subcommand list to a parent's Long text.
func enrichParentLong(cmd *cobra.Command) {
	if !cmd.HasSubCommands() {
		return
	}

	var sb strings.Builder
	sb.WriteString(cmd.Long)
	sb.WriteString("\n\nSubcommands:\n")

	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			sb.WriteString(fmt.Sprintf("  %-16s %s\n", sub.Name(), sub.Short))
		}
	}

	cmd.Long = sb.String()
}
