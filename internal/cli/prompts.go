package cli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mrz1836/kpxc/internal/keepassxc"
	kpxcerr "github.com/mrz1836/kpxc/pkg/errors"
)

// Prompt functions are variables so tests can replace them.
//
//nolint:gochecknoglobals // Swappable for tests
var (
	promptPasswordFn = promptPassword
	stdinIsTerminal  = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) } //nolint:gosec // G115: Fd() fits in int
)

// promptPassword prompts on stderr and reads a line with echo disabled.
// The caller is responsible for zeroing the returned bytes after use.
func promptPassword(prompt string) ([]byte, error) {
	out(os.Stderr, "%s", prompt)

	password, err := term.ReadPassword(int(os.Stdin.Fd())) //nolint:gosec // G115: Fd() fits in int
	outln(os.Stderr)

	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	return password, nil
}

// readPasswordLine reads the first line of r, without its line ending.
func readPasswordLine(r io.Reader) ([]byte, error) {
	line, err := bufio.NewReader(r).ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading passphrase from stdin: %w", err)
	}
	line = bytes.TrimRight(line, "\r\n")
	if len(line) == 0 {
		return nil, kpxcerr.WithSuggestion(kpxcerr.ErrInvalidInput, "no passphrase on stdin")
	}
	return line, nil
}

// unlockPrompt names the database, and the key file when one is in use.
func unlockPrompt(st keepassxc.Status) string {
	if st.KeyFile != "" {
		return fmt.Sprintf("Passphrase for %s (key file %s): ", st.Path, st.KeyFile)
	}
	return fmt.Sprintf("Passphrase for %s: ", st.Path)
}

// readPassphrase takes the passphrase from stdin when --password-stdin is
// set, otherwise prompts for it.
func readPassphrase(cmd *cobra.Command, fromStdin bool, st keepassxc.Status) ([]byte, error) {
	if fromStdin {
		return readPasswordLine(cmd.InOrStdin())
	}
	if !stdinIsTerminal() {
		return nil, kpxcerr.WithSuggestion(kpxcerr.ErrInvalidInput,
			"stdin is not a terminal; pipe the passphrase with --password-stdin")
	}
	return promptPasswordFn(unlockPrompt(st))
}

// unlockOnce unlocks db for a one-shot command.
// A rejected passphrase becomes ErrAuthentication.
func unlockOnce(ctx context.Context, cmd *cobra.Command, db *keepassxc.Database, fromStdin bool) error {
	st := db.Status()
	passphrase, err := readPassphrase(cmd, fromStdin, st)
	if err != nil {
		return err
	}
	defer clear(passphrase)

	ok, err := db.Unlock(ctx, string(passphrase))
	if err != nil {
		return err
	}
	if !ok {
		return kpxcerr.WithDetails(kpxcerr.ErrAuthentication, map[string]string{"path": st.Path})
	}
	return nil
}
