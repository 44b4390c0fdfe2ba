package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/mrz1836/kpxc/internal/output"
	kpxcerr "github.com/mrz1836/kpxc/pkg/errors"
)

// checkCmd verifies that a database can be opened.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check keepassxc-cli, the database and the key file",
	Long: `Check that keepassxc-cli can be executed and that the configured database
and key file exist. With --unlock the passphrase is verified as well.

Example:
  kpxc check
  kpxc check -d ~/vault.kdbx -k ~/vault.key --unlock`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	checkUnlock        bool
	checkPasswordStdin bool
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkUnlock, "unlock", false, "also verify the passphrase")
	checkCmd.Flags().BoolVar(&checkPasswordStdin, "password-stdin", false, "read the passphrase from stdin")
}

// checkStatus values.
const (
	checkOK      = "ok"
	checkFailed  = "failed"
	checkSkipped = "skipped"
	checkUnset   = "not configured"
)

// checkReport is the outcome of each check, in the order they run.
type checkReport struct {
	CLI      string `json:"cli"`
	Database string `json:"database"`
	KeyFile  string `json:"key_file"`
	Unlock   string `json:"unlock"`
	OK       bool   `json:"ok"`
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cc := Context()
	ctx := cmd.Context()

	report := checkReport{
		CLI:      checkSkipped,
		Database: checkSkipped,
		KeyFile:  checkSkipped,
		Unlock:   checkSkipped,
	}

	db := cc.NewDatabase()
	err := db.Initialize(ctx, cc.DatabaseOptions())
	report.fromInitialize(err, cc.Cfg.Database.KeyFile != "")

	if err == nil && checkUnlock {
		err = unlockOnce(ctx, cmd, db, checkPasswordStdin)
		report.Unlock = checkOK
		if err != nil {
			report.Unlock = checkFailed
		}
	}
	report.OK = err == nil

	if cc.Fmt.IsJSON() {
		if jsonErr := output.EncodeJSON(cmd.OutOrStdout(), report); jsonErr != nil {
			return jsonErr
		}
		return err
	}

	st := cc.Styles
	table := output.NewTable()
	table.AddRow(st.Label.Render("keepassxc-cli"), cc.Cfg.CLI.Binary, renderCheck(st, report.CLI))
	table.AddRow(st.Label.Render("database"), cc.Cfg.Database.Path, renderCheck(st, report.Database))
	table.AddRow(st.Label.Render("key file"), cc.Cfg.Database.KeyFile, renderCheck(st, report.KeyFile))
	table.AddRow(st.Label.Render("passphrase"), "", renderCheck(st, report.Unlock))
	if renderErr := table.Render(cmd.OutOrStdout()); renderErr != nil {
		return renderErr
	}
	return err
}

// fromInitialize marks each step up to the one Initialize failed on.
func (r *checkReport) fromInitialize(err error, hasKeyFile bool) {
	switch {
	case err == nil:
		r.CLI, r.Database, r.KeyFile = checkOK, checkOK, checkOK
		if !hasKeyFile {
			r.KeyFile = checkUnset
		}
	case errors.Is(err, kpxcerr.ErrToolNotFound):
		r.CLI = checkFailed
	case errors.Is(err, kpxcerr.ErrDatabaseNotFound), errors.Is(err, kpxcerr.ErrNotInitialized):
		r.CLI, r.Database = checkOK, checkFailed
	case errors.Is(err, kpxcerr.ErrKeyFileNotFound):
		r.CLI, r.Database, r.KeyFile = checkOK, checkOK, checkFailed
	}
}

func renderCheck(st *output.Styles, status string) string {
	switch status {
	case checkOK:
		return st.Success.Render(status)
	case checkFailed:
		return st.Error.Render(status)
	default:
		return st.Muted.Render(status)
	}
}
