package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// renderMarkdown prints md styled when stdout is a terminal and raw otherwise,
// so piped output stays valid markdown.
func renderMarkdown(w io.Writer, md string) error {
	fd := int(os.Stdout.Fd())
	if w != os.Stdout || !term.IsTerminal(fd) {
		_, err := fmt.Fprintln(w, md)
		return err
	}

	width := 100
	if cols, _, err := term.GetSize(fd); err == nil && cols > 0 && cols < width {
		width = cols
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		_, err = fmt.Fprintln(w, md)
		return err
	}
	out, err := r.Render(md)
	if err != nil {
		_, err = fmt.Fprintln(w, md)
		return err
	}
	_, err = fmt.Fprint(w, out)
	return err
}
