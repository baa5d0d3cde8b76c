package themes

import "github.com/charmbracelet/lipgloss"

// Theme defines the visual style for the comparison viewer.
type Theme struct {
	Title       lipgloss.Style
	Subtitle    lipgloss.Style
	Bold        lipgloss.Style
	Muted       lipgloss.Style
	ActiveTab   lipgloss.Style
	InactiveTab lipgloss.Style
	TableHeader lipgloss.Style
	Selected    lipgloss.Style
	RoundedBox  lipgloss.Style
	Gain        lipgloss.Style
	Loss        lipgloss.Style
	Critical    lipgloss.Style
	Warning     lipgloss.Style
	Info        lipgloss.Style
	Border      lipgloss.Color
	Primary     lipgloss.Color
}

func build(primary, fg, muted, border, gain, loss, warn, info lipgloss.Color) Theme {
	return Theme{
		Primary: primary,
		Border:  border,

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(fg),
		Subtitle: lipgloss.NewStyle().
			Foreground(muted),
		Bold: lipgloss.NewStyle().
			Bold(true).
			Foreground(fg),
		Muted: lipgloss.NewStyle().
			Foreground(muted),

		ActiveTab: lipgloss.NewStyle().
			Bold(true).
			Foreground(fg).
			Background(primary).
			Padding(0, 2),
		InactiveTab: lipgloss.NewStyle().
			Foreground(muted).
			Padding(0, 2),

		TableHeader: lipgloss.NewStyle().
			Bold(true).
			Foreground(primary).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(border).
			BorderBottom(true),
		Selected: lipgloss.NewStyle().
			Bold(true).
			Foreground(fg).
			Background(border),
		RoundedBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1),

		Gain:     lipgloss.NewStyle().Foreground(gain),
		Loss:     lipgloss.NewStyle().Foreground(loss),
		Critical: lipgloss.NewStyle().Foreground(loss).Bold(true),
		Warning:  lipgloss.NewStyle().Foreground(warn).Bold(true),
		Info:     lipgloss.NewStyle().Foreground(info),
	}
}

// Default is the default theme.
var Default = build(
	lipgloss.Color("#5B8DEF"),
	lipgloss.Color("#fafafa"),
	lipgloss.Color("#737373"),
	lipgloss.Color("#404040"),
	lipgloss.Color("#4ECDC4"),
	lipgloss.Color("#FF6B6B"),
	lipgloss.Color("#FFE66D"),
	lipgloss.Color("#95E1D3"),
)

// CatppuccinMocha is the Catppuccin Mocha theme.
var CatppuccinMocha = build(
	lipgloss.Color("#cba6f7"),
	lipgloss.Color("#cdd6f4"),
	lipgloss.Color("#6c7086"),
	lipgloss.Color("#45475a"),
	lipgloss.Color("#a6e3a1"),
	lipgloss.Color("#f38ba8"),
	lipgloss.Color("#f9e2af"),
	lipgloss.Color("#89dceb"),
)

// ByName returns a theme by its config name, falling back to Default.
func ByName(name string) Theme {
	switch name {
	case "catppuccin", "catppuccin-mocha":
		return CatppuccinMocha
	default:
		return Default
	}
}
