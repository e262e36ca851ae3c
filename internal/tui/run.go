// Package tui renders live audit progress with bubbletea when stdout is
// an interactive terminal.
package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/katiefenn/warden/internal/progress"
)

type Options struct {
	Events <-chan progress.Event
}

func Run(opts Options) error {
	if opts.Events == nil {
		return fmt.Errorf("tui events channel is required")
	}

	m := newModel(opts.Events)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
