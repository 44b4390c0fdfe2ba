package output

import (
	"fmt"
	"io"
	"strings"
)

// maskedSecret replaces secret values in text output.
const maskedSecret = "••••••••"

// MaskSecret hides a non-empty secret. Empty values stay empty.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	return maskedSecret
}

// ResultList is a possibly truncated list of entry names.
type ResultList struct {
	Names     []string `json:"names"`
	Total     int      `json:"total"`
	Truncated bool     `json:"truncated"`
}

// NewResultList keeps at most limit names. A limit below one keeps all.
func NewResultList(names []string, limit int) ResultList {
	list := ResultList{Names: names, Total: len(names)}
	if limit > 0 && len(names) > limit {
		list.Names = names[:limit]
		list.Truncated = true
	}
	if list.Names == nil {
		list.Names = []string{}
	}
	return list
}

// Remaining is the number of names left out.
func (l ResultList) Remaining() int {
	return l.Total - len(l.Names)
}

// WriteResults prints numbered entry names followed by a notice when the
// list was truncated. The numbers are the #index accepted by the shell.
func WriteResults(w io.Writer, list ResultList, st *Styles) error {
	if list.Total == 0 {
		_, err := fmt.Fprintln(w, st.Muted.Render("No matching entries."))
		return err
	}

	width := len(fmt.Sprint(len(list.Names)))
	var sb strings.Builder
	for i, name := range list.Names {
		idx := fmt.Sprintf("#%-*d", width, i+1)
		fmt.Fprintf(&sb, "%s  %s\n", st.Index.Render(idx), st.Name.Render(name))
	}
	if list.Truncated {
		sb.WriteString(st.Muted.Render(fmt.Sprintf("%d more results available, refine your search.", list.Remaining())))
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
