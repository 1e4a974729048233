package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up      key.Binding
	down    key.Binding
	enter   key.Binding
	analyze key.Binding
	back    key.Binding
	play    key.Binding
	main    key.Binding
	stems   key.Binding
	rewind  key.Binding
	forward key.Binding
	again   key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		analyze: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "analyze file")),
		back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		play:    key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
		main:    key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "main mix")),
		stems:   key.NewBinding(key.WithKeys("1", "2", "3", "4", "5", "6", "7"), key.WithHelp("1-7", "stems")),
		rewind:  key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "-5s")),
		forward: key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "+5s")),
		again:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "re-analyze (hi-fi)")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.enter, k.analyze},
		{k.play, k.main, k.stems, k.rewind, k.forward},
		{k.again, k.back, k.quit},
	}
}
