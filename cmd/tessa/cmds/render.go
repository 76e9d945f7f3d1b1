package cmds

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
)

// Printer writes assistant replies, styled as markdown on a terminal.
type Printer struct {
	w        io.Writer
	renderer *glamour.TermRenderer
}

func NewPrinter(w io.Writer) *Printer {
	p := &Printer{w: w}
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err != nil {
			log.Warn().Err(err).Msg("could not create markdown renderer")
		} else {
			p.renderer = r
		}
	}
	return p
}

func (p *Printer) Print(prefix, text string) error {
	if p.renderer != nil {
		styled, err := p.renderer.Render(text)
		if err == nil {
			_, err = fmt.Fprintf(p.w, "%s\n%s", prefix, styled)
			return err
		}
		log.Debug().Err(err).Msg("markdown rendering failed, printing plain text")
	}
	_, err := fmt.Fprintf(p.w, "%s %s\n", prefix, strings.TrimSpace(text))
	return err
}
