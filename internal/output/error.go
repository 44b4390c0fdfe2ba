package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	kpxcerr "github.com/mrz1836/kpxc/pkg/errors"
)

// ErrorOutput represents a structured error for JSON output.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	ExitCode   int               `json:"exit_code"`
}

// FormatError formats an error for display.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}

	if format == FormatJSON {
		return formatErrorJSON(w, err)
	}
	return formatErrorText(w, err)
}

func errorDetail(err error) ErrorDetail {
	var ke *kpxcerr.KpxcError
	if errors.As(err, &ke) {
		msg := ke.Message
		if ke.Cause != nil {
			msg = fmt.Sprintf("%s: %v", msg, ke.Cause)
		}
		return ErrorDetail{
			Code:       ke.Code,
			Message:    msg,
			Details:    ke.Details,
			Suggestion: ke.Suggestion,
			ExitCode:   ke.ExitCode,
		}
	}
	return ErrorDetail{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		ExitCode: kpxcerr.ExitGeneral,
	}
}

func formatErrorJSON(w io.Writer, err error) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ErrorOutput{Error: errorDetail(err)})
}

// formatErrorText prints the message, then details in key order, then the
// suggestion. Multi-line detail values such as tool stderr are indented.
func formatErrorText(w io.Writer, err error) error {
	d := errorDetail(err)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", d.Message)

	if len(d.Details) > 0 {
		keys := make([]string, 0, len(d.Details))
		for k := range d.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("\nDetails:\n")
		for _, k := range keys {
			value := strings.ReplaceAll(d.Details[k], "\n", "\n    ")
			fmt.Fprintf(&sb, "  %s: %s\n", k, value)
		}
	}

	if d.Suggestion != "" {
		fmt.Fprintf(&sb, "\nSuggestion: %s\n", d.Suggestion)
	}

	_, writeErr := io.WriteString(w, sb.String())
	return writeErr
}

// FormatSuccess formats a success message.
func FormatSuccess(w io.Writer, message string, format Format) error {
	if format == FormatJSON {
		out := map[string]string{"status": "success", "message": message}
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	}
	_, err := fmt.Fprintln(w, message)
	return err
}
