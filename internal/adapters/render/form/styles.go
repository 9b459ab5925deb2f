package form

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title       lipgloss.Style
	header      lipgloss.Style
	content     lipgloss.Style
	section     lipgloss.Style
	button      lipgloss.Style
	buttonKey   lipgloss.Style
	label       lipgloss.Style
	value       lipgloss.Style
	placeholder lipgloss.Style
	empty       lipgloss.Style
	warning     lipgloss.Style
	info        lipgloss.Style
	barBracket  lipgloss.Style
	barFill     lipgloss.Style
	barEmpty    lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:       lipgloss.NewStyle().Bold(true),
		header:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		content:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		section:     lipgloss.NewStyle().MarginTop(1),
		button:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		buttonKey:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		label:       lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		value:       lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
		placeholder: lipgloss.NewStyle().Faint(true),
		empty:       lipgloss.NewStyle().Faint(true),
		warning:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		info:        lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		barBracket:  lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		barFill:     lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
		barEmpty:    lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
	}
}
