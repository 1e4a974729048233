package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/stemdeck/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// stemColors mirror the waveform colors the backend assigns per stem.
var stemColors = map[models.StemID]string{
	models.StemMain:   "#E6E6E6",
	models.StemVocal:  "#FF5F87",
	models.StemBass:   "#5FAFFF",
	models.StemKick:   "#FF8700",
	models.StemHihats: "#FFD75F",
	models.StemPiano:  "#AF87FF",
	models.StemGuitar: "#87D787",
	models.StemOther:  "#8A8A8A",
}

// Painter colors text with [lipgloss] styles.
type Painter interface {
	On(string, lipgloss.Color) string // Sets background color
	As(string, lipgloss.Color) string // Sets foreground color
}

// Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	label lipgloss.Style
	tile  lipgloss.Style
}

var _ Painter = (*Palette)(nil)

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
		label: NewStyle(h).Width(14),
		tile:  lipgloss.NewStyle().Padding(0, 1).MarginRight(1),
	}
}

func (p *Palette) On(s string, c lipgloss.Color) string {
	return p.tile.Background(c).Foreground(lipgloss.Color("#1C1C1C")).Bold(true).Render(s)
}

func (p *Palette) As(s string, c lipgloss.Color) string {
	return p.tile.Foreground(c).Render(s)
}

// stemTile renders one mixer strip entry: lit when audible, colored when selectable, dim otherwise.
func (p *Palette) stemTile(label string, id models.StemID, available, audible bool) string {
	switch {
	case audible:
		return p.On(label, lipgloss.Color(stemColors[id]))
	case available:
		return p.As(label, lipgloss.Color(stemColors[id]))
	default:
		return p.tile.Foreground(lipgloss.Color("#3A3A3A")).Strikethrough(true).Render(label)
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
