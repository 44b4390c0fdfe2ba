package cli

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/kpxc/internal/keepassxc"
	"github.com/mrz1836/kpxc/internal/output"
	kpxcerr "github.com/mrz1836/kpxc/pkg/errors"
)

// showCmd prints one entry.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var showCmd = &cobra.Command{
	Use:   "show <entry>",
	Short: "Show an entry's attributes",
	Long: `Unlock the database and print the attributes of one entry.

The entry is named as search prints it, without a leading slash. The
password is masked unless --reveal is given.

Example:
  kpxc show "Email/work"
  kpxc show "Email/work" --attr UserName
  kpxc show "Email/work" --attr Password --reveal`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	showAttr          string
	showReveal        bool
	showPasswordStdin bool
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().StringVar(&showAttr, "attr", "", "print only this attribute: "+strings.Join(keepassxc.EntryAttributes(), ", "))
	showCmd.Flags().BoolVar(&showReveal, "reveal", false, "print the password in clear text")
	showCmd.Flags().BoolVar(&showPasswordStdin, "password-stdin", false, "read the passphrase from stdin")
	_ = showCmd.RegisterFlagCompletionFunc("attr", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return keepassxc.EntryAttributes(), cobra.ShellCompDirectiveNoFileComp
	})
}

func runShow(cmd *cobra.Command, args []string) error {
	cc := Context()
	ctx := cmd.Context()

	if showAttr != "" {
		attr, ok := keepassxc.CanonicalAttribute(showAttr)
		if !ok {
			return kpxcerr.WithSuggestion(
				kpxcerr.WithDetails(kpxcerr.ErrInvalidInput, map[string]string{"attr": showAttr}),
				"use one of "+strings.Join(keepassxc.EntryAttributes(), ", "),
			)
		}
		showAttr = attr
	}

	db, err := cc.OpenDatabase(ctx)
	if err != nil {
		return err
	}
	if err := unlockOnce(ctx, cmd, db, showPasswordStdin); err != nil {
		return err
	}
	defer db.Lock()

	entry, err := db.Entry(ctx, strings.TrimPrefix(args[0], "/"))
	if err != nil {
		return err
	}
	if !showReveal {
		entry.Password = output.MaskSecret(entry.Password)
	}

	w := cmd.OutOrStdout()
	if showAttr != "" {
		value, _ := entry.Get(showAttr)
		attr := map[string]string{"name": entry.Name, "attribute": showAttr, "value": value}
		return cc.Fmt.Render(w, attr, func(w io.Writer) error {
			outln(w, value)
			return nil
		})
	}

	return cc.Fmt.Render(w, entry, func(w io.Writer) error {
		return writeEntry(w, entry, cc.Styles)
	})
}

// writeEntry prints an entry as an attribute table under its name.
func writeEntry(w io.Writer, entry *keepassxc.Entry, st *output.Styles) error {
	outln(w, st.Name.Render(entry.Name))

	table := output.NewTable()
	for _, attr := range keepassxc.EntryAttributes() {
		value, _ := entry.Get(attr)
		lines := strings.Split(value, "\n")
		table.AddRow(st.Label.Render(attr), lines[0])
		for _, more := range lines[1:] {
			table.AddRow("", more)
		}
	}
	return table.Render(w)
}
