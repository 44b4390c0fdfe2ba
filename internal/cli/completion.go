package cli

import (
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

// completionGenerators writes the completion script for each supported shell.
//
//nolint:gochecknoglobals // static table shared by the command definition
var completionGenerators = map[string]func(root *cobra.Command, w io.Writer) error{
	"bash":       func(root *cobra.Command, w io.Writer) error { return root.GenBashCompletionV2(w, true) },
	"zsh":        (*cobra.Command).GenZshCompletion,
	"fish":       func(root *cobra.Command, w io.Writer) error { return root.GenFishCompletion(w, true) },
	"powershell": (*cobra.Command).GenPowerShellCompletionWithDesc,
}

func completionShells() []string {
	shells := make([]string, 0, len(completionGenerators))
	for name := range completionGenerators {
		shells = append(shells, name)
	}
	slices.Sort(shells)
	return shells
}

// completionCmd prints a completion script for kpxc.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var completionCmd = &cobra.Command{
	Use:   "completion <" + strings.Join(completionShells(), "|") + ">",
	Short: "Generate shell completion script",
	Long: `Print a completion script for kpxc to stdout.

Load it for the current session, for example:
  source <(kpxc completion bash)
  kpxc completion fish | source
  kpxc completion powershell | Out-String | Invoke-Expression

For zsh, write it to a directory on $fpath:
  kpxc completion zsh > "${fpath[1]}/_kpxc"

Entry names are never completed, since that would need the passphrase.`,
	DisableFlagsInUseLine: true,
	ValidArgs:             completionShells(),
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		return completionGenerators[args[0]](cmd.Root(), cmd.OutOrStdout())
	},
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(completionCmd)
}
