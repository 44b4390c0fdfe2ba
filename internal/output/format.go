// Package output renders kpxc results and errors as text or JSON.
package output

import (
	"encoding/json"
	"io"
	"strings"

	"golang.org/x/term"
)

// Format selects how command results are written.
type Format string

// Supported formats. FormatAuto resolves to text on a terminal and JSON otherwise.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatAuto Format = "auto"
)

// Formatter carries the resolved format and the default destination.
type Formatter struct {
	format Format
	writer io.Writer
}

// NewFormatter returns a formatter bound to w.
func NewFormatter(format Format, w io.Writer) *Formatter {
	return &Formatter{format: format, writer: w}
}

// Format reports the resolved format.
func (f *Formatter) Format() Format { return f.format }

// Writer is the destination given to NewFormatter.
func (f *Formatter) Writer() io.Writer { return f.writer }

// IsJSON reports whether results are written as JSON.
func (f *Formatter) IsJSON() bool { return f.format == FormatJSON }

// Render writes v to w as JSON in JSON mode. In text mode it calls text
// with w, or writes nothing when text is nil.
func (f *Formatter) Render(w io.Writer, v any, text func(io.Writer) error) error {
	if f.IsJSON() {
		return EncodeJSON(w, v)
	}
	if text == nil {
		return nil
	}
	return text(w)
}

// EncodeJSON writes v as two-space indented JSON followed by a newline.
func EncodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fdWriter is satisfied by *os.File.
type fdWriter interface {
	Fd() uintptr
}

// DetectFormat resolves FormatAuto against w: text when w is a terminal,
// JSON for pipes and files. Explicit formats pass through.
func DetectFormat(w io.Writer, explicit Format) Format {
	if explicit != FormatAuto {
		return explicit
	}
	if f, ok := w.(fdWriter); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // G115: descriptor fits in int
		return FormatText
	}
	return FormatJSON
}

var formatNames = map[string]Format{ //nolint:gochecknoglobals // lookup table
	"json": FormatJSON,
	"text": FormatText,
}

// ParseFormat maps a config or flag value to a Format. Unknown values
// mean auto.
func ParseFormat(s string) Format {
	if f, ok := formatNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return f
	}
	return FormatAuto
}
