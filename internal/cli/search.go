package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/kpxc/internal/output"
)

// searchCmd searches entry names.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search entries by name",
	Long: `Unlock the database and list entries matching the query.

At most search.max_results names are printed; use --limit to change that
for one call.

Example:
  kpxc search mail
  echo "$PASSPHRASE" | kpxc search bank --password-stdin -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	searchPasswordStdin bool
	searchLimit         int
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().BoolVar(&searchPasswordStdin, "password-stdin", false, "read the passphrase from stdin")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum number of names to print (default: search.max_results)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cc := Context()
	ctx := cmd.Context()

	db, err := cc.OpenDatabase(ctx)
	if err != nil {
		return err
	}
	if err := unlockOnce(ctx, cmd, db, searchPasswordStdin); err != nil {
		return err
	}
	defer db.Lock()

	names, err := db.Search(ctx, args[0])
	if err != nil {
		return err
	}

	limit := cc.Cfg.Search.MaxResults
	if searchLimit > 0 {
		limit = searchLimit
	}
	list := output.NewResultList(names, limit)

	return cc.Fmt.Render(cmd.OutOrStdout(), list, func(w io.Writer) error {
		return output.WriteResults(w, list, cc.Styles)
	})
}
