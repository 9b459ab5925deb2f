package form

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/formflow/internal/domain"
)

type RenderOptions struct {
	Frame uint64
}

func renderView(form *domain.Form, opts RenderOptions, s styles) string {
	if form == nil {
		return s.empty.Render("Nothing to show.")
	}

	lines := []string{s.title.Render(titleOrDefault(form.Title))}
	if header := headerLine(form, opts); header != "" {
		lines = append(lines, s.header.Render(header))
	}
	if strings.TrimSpace(form.Content) != "" {
		lines = append(lines, s.section.Render(s.content.Render(form.Content)))
	}

	if len(form.Components) > 0 {
		parts := make([]string, 0, len(form.Components))
		for _, component := range form.Components {
			parts = append(parts, componentLine(component, s))
		}
		lines = append(lines, s.section.Render(lipgloss.JoinVertical(lipgloss.Left, parts...)))
	}

	switch {
	case len(form.Buttons) > 0:
		parts := make([]string, 0, len(form.Buttons))
		for i, button := range form.Buttons {
			parts = append(parts, buttonLine(i, button, s))
		}
		lines = append(lines, s.section.Render(lipgloss.JoinVertical(lipgloss.Left, parts...)))
	case form.Kind == domain.FormKindSimple:
		lines = append(lines, s.section.Render(s.empty.Render("No options available.")))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func headerLine(form *domain.Form, opts RenderOptions) string {
	parts := []string{string(form.Kind)}
	if opts.Frame != 0 {
		parts = append(parts, fmt.Sprintf("frame %d", opts.Frame))
	}
	return strings.Join(parts, " · ")
}

func titleOrDefault(title string) string {
	if trimmed := strings.TrimSpace(title); trimmed != "" {
		return trimmed
	}
	return "Untitled"
}

func buttonLine(index int, button domain.Button, s styles) string {
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.buttonKey.Render(fmt.Sprintf("[%d]", index+1)),
		" ",
		s.button.Render(button.Label),
	)
}

func componentLine(c domain.Component, s styles) string {
	label := s.label.Render(c.Label + ":")

	var value string
	switch c.Kind {
	case domain.ComponentLabel:
		return s.content.Render(c.Label)
	case domain.ComponentToggle:
		value = s.value.Render(toggleText(c.Default))
	case domain.ComponentDropdown:
		value = s.value.Render(dropdownText(c))
	case domain.ComponentSlider:
		current, _ := toFloat(c.Default)
		value = lipgloss.JoinHorizontal(
			lipgloss.Top,
			renderProgressBar(sliderPercent(current, c.Min, c.Max), 20, s),
			" ",
			s.value.Render(trimFloat(current)),
		)
	default:
		if text := fmt.Sprint(valueOrEmpty(c.Default)); text != "" {
			value = s.value.Render(text)
		} else {
			value = s.placeholder.Render(c.Placeholder)
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, label, " ", value)
}

func toggleText(v any) string {
	if on, _ := v.(bool); on {
		return "[x]"
	}
	return "[ ]"
}

func dropdownText(c domain.Component) string {
	if len(c.Options) == 0 {
		return "(no options)"
	}
	selected := 0
	if f, ok := toFloat(c.Default); ok {
		selected = int(f)
	}
	if selected < 0 || selected >= len(c.Options) {
		selected = 0
	}
	return fmt.Sprintf("%s (%d of %d)", c.Options[selected], selected+1, len(c.Options))
}

func valueOrEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func trimFloat(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

func sliderPercent(value, min, max float64) float64 {
	if max <= min {
		return 0
	}
	return clampPercent((value - min) / (max - min) * 100)
}

func renderProgressBar(percent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	filled := int(math.Round(float64(width) * clampPercent(percent) / 100))
	if filled > width {
		filled = width
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Countdown tells how long until a form times out.
func Countdown(deadline, now time.Time) string {
	return newStyles().header.Render(formatRemaining(deadline, now))
}

func formatRemaining(deadline, now time.Time) string {
	if !deadline.After(now) {
		return "closing now"
	}

	remaining := deadline.Sub(now)
	if remaining < time.Minute {
		return fmt.Sprintf("closes in %ds", int(math.Ceil(remaining.Seconds())))
	}
	minutes := int(math.Ceil(remaining.Minutes()))
	suffix := "minutes"
	if minutes == 1 {
		suffix = "minute"
	}
	return fmt.Sprintf("closes in %d %s", minutes, suffix)
}
