package keepassxc

import (
	"strings"
	"unicode/utf8"

	kpxcerr "github.com/mrz1836/kpxc/pkg/errors"
)

// Attribute names accepted by "keepassxc-cli show -a".
const (
	AttrUserName = "UserName"
	AttrPassword = "Password"
	AttrURL      = "URL"
	AttrNotes    = "Notes"
)

// EntryAttributes returns the attributes read for every entry, in fetch order.
func EntryAttributes() []string {
	return []string{AttrUserName, AttrPassword, AttrURL, AttrNotes}
}

// Entry is a single database record. Missing attributes are empty strings.
type Entry struct {
	Name     string `json:"name"`
	UserName string `json:"username"`
	Password string `json:"password"`
	URL      string `json:"url"`
	Notes    string `json:"notes"`
}

// Attributes returns the entry's attribute values keyed by attribute name.
func (e *Entry) Attributes() map[string]string {
	return map[string]string{
		AttrUserName: e.UserName,
		AttrPassword: e.Password,
		AttrURL:      e.URL,
		AttrNotes:    e.Notes,
	}
}

// CanonicalAttribute maps a case-insensitive attribute name to the
// spelling keepassxc-cli expects.
func CanonicalAttribute(name string) (string, bool) {
	for _, attr := range EntryAttributes() {
		if strings.EqualFold(attr, name) {
			return attr, true
		}
	}
	return "", false
}

// Get returns one attribute by name. Matching is case-insensitive.
func (e *Entry) Get(attr string) (string, bool) {
	name, ok := CanonicalAttribute(attr)
	if !ok {
		return "", false
	}
	return e.Attributes()[name], true
}

func (e *Entry) set(attr, value string) {
	switch attr {
	case AttrUserName:
		e.UserName = value
	case AttrPassword:
		e.Password = value
	case AttrURL:
		e.URL = value
	case AttrNotes:
		e.Notes = value
	}
}

// ToolOutput returns the stderr text keepassxc-cli printed for a failed
// invocation, or "" when err did not come from one.
func ToolOutput(err error) string {
	return kpxcerr.Detail(err, "stderr")
}

// parseEntryNames turns "search" output into entry names.
// Blank lines are skipped. Every other line loses exactly its first
// character, which is the leading "/" of the entry path.
func parseEntryNames(stdout string) []string {
	lines := strings.Split(stdout, "\n")
	names := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		_, size := utf8.DecodeRuneInString(line)
		names = append(names, line[size:])
	}
	return names
}

// entryArg converts an entry name into the path form keepassxc-cli expects.
func entryArg(name string) string {
	return entrySeparator + name
}

// attributeValue trims the newlines keepassxc-cli puts around a value.
func attributeValue(stdout string) string {
	return strings.Trim(stdout, "\r\n")
}
