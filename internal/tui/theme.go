package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// DefaultTheme names the palette used when none is configured.
const DefaultTheme = "outrun"

type palette struct {
	accent     lipgloss.Color
	border     lipgloss.Color
	controlsFG lipgloss.Color
	controlsBG lipgloss.Color
	dim        lipgloss.Color
	err        lipgloss.Color
}

var palettes = map[string]palette{
	"outrun": {
		accent:     "#00E5FF",
		border:     "#3C4FB8",
		controlsFG: "#F0F1FF",
		controlsBG: "#200838",
		dim:        "#9AA3B2",
		err:        "#FF6B6B",
	},
	"gruvbox": {
		accent:     "#FABD2F",
		border:     "#504945",
		controlsFG: "#EBDBB2",
		controlsBG: "#3C3836",
		dim:        "#928374",
		err:        "#FB4934",
	},
	"tokyo-midnight": {
		accent:     "#7AA2F7",
		border:     "#3B4F9F",
		controlsFG: "#C0CAF5",
		controlsBG: "#1A1B26",
		dim:        "#7F85A3",
		err:        "#F7768E",
	},
}

// Themes lists the palette names ParseTheme accepts.
func Themes() []string {
	names := make([]string, 0, len(palettes))
	for name := range palettes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseTheme canonicalizes a theme name. Empty selects DefaultTheme.
func ParseTheme(name string) (string, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	switch normalized {
	case "":
		return DefaultTheme, nil
	case "outrun", "outrun-electric":
		return "outrun", nil
	case "gruvbox":
		return "gruvbox", nil
	case "tokyo-midnight", "tokyo":
		return "tokyo-midnight", nil
	}
	return "", fmt.Errorf("unknown theme %q (available: %s)", name, strings.Join(Themes(), ", "))
}

type styles struct {
	title        lipgloss.Style
	frame        lipgloss.Style
	focusedFrame lipgloss.Style
	controls     lipgloss.Style
	dim          lipgloss.Style
	err          lipgloss.Style
	help         lipgloss.Style
}

// newStyles builds the styles of a theme, falling back to DefaultTheme for
// unknown names.
func newStyles(theme string) styles {
	p, ok := palettes[theme]
	if !ok {
		p = palettes[DefaultTheme]
	}
	frame := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.border).
		Padding(0, 1)
	return styles{
		title:        lipgloss.NewStyle().Bold(true).Foreground(p.accent).Padding(0, 1),
		frame:        frame,
		focusedFrame: frame.BorderForeground(p.accent),
		controls:     lipgloss.NewStyle().Foreground(p.controlsFG).Background(p.controlsBG).Padding(0, 1),
		dim:          lipgloss.NewStyle().Foreground(p.dim),
		err:          lipgloss.NewStyle().Foreground(p.err),
		help:         lipgloss.NewStyle().Foreground(p.dim),
	}
}
