package keepassxc

import "strings"

// keepassxc-cli subcommands used by the session.
const (
	cmdList   = "ls"
	cmdSearch = "search"
	cmdShow   = "show"
)

// DefaultCLI is the executable name looked up on PATH.
const DefaultCLI = "keepassxc-cli"

// noResultsMarker is how keepassxc-cli reports an empty search on stderr.
const noResultsMarker = "No results for that"

// entrySeparator prefixes every entry path in keepassxc-cli input and output.
const entrySeparator = "/"

// buildArgs assembles the argument vector for one invocation.
//
// The key file must come directly after the subcommand as "-k <path>".
// keepassxc-cli silently ignores it in other positions, so this order is
// part of the tool contract and must not change.
func buildArgs(keyFile, subcommand string, rest []string) []string {
	args := make([]string, 0, len(rest)+3)
	args = append(args, subcommand)
	if keyFile != "" {
		args = append(args, "-k", keyFile)
	}
	return append(args, rest...)
}

// redacted replaces the search query or entry path in logged argument vectors.
const redacted = "<redacted>"

// loggedArgs renders args for the log. The last argument of search and show
// is what the user looked for, and is hidden.
func loggedArgs(args []string) string {
	if len(args) < 2 || (args[0] != cmdSearch && args[0] != cmdShow) {
		return strings.Join(args, " ")
	}
	shown := make([]string, len(args))
	copy(shown, args)
	shown[len(shown)-1] = redacted
	return strings.Join(shown, " ")
}
