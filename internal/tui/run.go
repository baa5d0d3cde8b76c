package tui

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Veraticus/runway/internal/pipeline"
	"github.com/Veraticus/runway/internal/tui/themes"
	tea "github.com/charmbracelet/bubbletea"
)

// Options configures the viewer program.
type Options struct {
	Input     io.Reader
	Output    io.Writer
	Theme     themes.Theme
	AltScreen bool
}

// Run shows an apply result until the user quits or ctx is cancelled.
func Run(ctx context.Context, res *pipeline.ApplyResult, opts Options) error {
	if res == nil {
		return fmt.Errorf("apply result is required")
	}

	progOpts := []tea.ProgramOption{tea.WithContext(ctx)}
	if opts.Input != nil {
		progOpts = append(progOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		progOpts = append(progOpts, tea.WithOutput(opts.Output))
	}
	if opts.AltScreen {
		progOpts = append(progOpts, tea.WithAltScreen())
	}

	_, err := tea.NewProgram(New(res, opts.Theme), progOpts...).Run()
	if err != nil {
		// Cancellation is a normal way to leave the viewer.
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("comparison viewer failed: %w", err)
	}
	return nil
}
