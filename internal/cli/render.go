package cli

import (
	"io"

	"github.com/charmbracelet/glamour"
)

const reportWrap = 100

// writeMarkdown renders markdown for the terminal. plain, or a renderer
// failure, writes the markdown unchanged.
func writeMarkdown(w io.Writer, markdown string, plain bool) error {
	if !plain {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(reportWrap),
		)
		if err == nil {
			if out, err := renderer.Render(markdown); err == nil {
				_, err = io.WriteString(w, out)
				return err
			}
		}
	}
	_, err := io.WriteString(w, markdown)
	return err
}
