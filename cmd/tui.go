package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/stemdeck/internal/shared"
	"github.com/desertthunder/stemdeck/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive library, scan and mixer UI.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Logs go to a file while the TUI owns the terminal
	fileLogger, closer, err := shared.NewFileLogger(r.config.Log.File)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer closer.Close()
	if level, err := shared.ParseLogLevel(r.config.Log.Level); err == nil {
		shared.SetLogLevel(fileLogger, level)
	}
	r.SetLogger(fileLogger)

	engine, err := r.library()
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, ui.Opts{
		Engine:   engine,
		NewMixer: r.newMixer,
		AudioURL: r.api.AudioURL,
		Model:    r.config.Backend.Model,
		Ping:     r.api.Ping,
		Logger:   fileLogger,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
