package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// barWidth is the number of cells on each side of 0 dB
const barWidth = 15

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2E86DE"))
	subtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Italic(true)
	cursorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFA500"))
	boostStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AA00"))
	cutStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#A40000"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A40000"))
)

func render(m Model) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Tab Equalizer"))
	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render(renderSubtitle(m)))
	b.WriteString("\n\n")

	if m.Err != nil {
		b.WriteString(errorStyle.Render("Error: ") + m.Err.Error())
		b.WriteString("\n\n")
	}
	if !m.Loaded {
		if m.Err == nil {
			b.WriteString(mutedStyle.Render("Loading bands..."))
			b.WriteString("\n")
		}
		return b.String()
	}

	for i, band := range m.Bands {
		b.WriteString(renderBand(band.Label, band.Filter, m.Gains[i], m.GainLimit, i == m.Cursor))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(renderStatus(m))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("←/→ band  ↑/↓ gain  0 reset  f flat  e enable  q quit"))
	b.WriteString("\n")
	return b.String()
}

func renderSubtitle(m Model) string {
	state := "disabled"
	if m.Enabled {
		state = "enabled"
	}
	target := "focused tab"
	if m.tab != nil {
		target = fmt.Sprintf("tab %d", *m.tab)
	}
	return fmt.Sprintf("%s, %s", state, target)
}

// renderBand draws one horizontal slider centred on 0 dB
func renderBand(label, filter string, gain, limit float64, selected bool) string {
	if limit <= 0 {
		limit = 15
	}
	cells := int(math.Round(math.Abs(gain) / limit * barWidth))
	if cells > barWidth {
		cells = barWidth
	}

	left := strings.Repeat(" ", barWidth)
	right := strings.Repeat(" ", barWidth)
	switch {
	case gain > 0:
		right = boostStyle.Render(strings.Repeat("█", cells)) + strings.Repeat(" ", barWidth-cells)
	case gain < 0:
		left = strings.Repeat(" ", barWidth-cells) + cutStyle.Render(strings.Repeat("█", cells))
	}

	name := fmt.Sprintf("%6s", label)
	marker := "  "
	if selected {
		name = cursorStyle.Render(name)
		marker = cursorStyle.Render("▶ ")
	}
	return fmt.Sprintf("%s%s %s│%s %+5.1f dB %s", marker, name, left, right, gain, mutedStyle.Render(filter))
}

func renderStatus(m Model) string {
	if m.Pending {
		return mutedStyle.Render("applying...")
	}
	session := "session " + m.Session.Phase
	if m.Session.Phase == "" {
		session = "no session yet"
	}
	if m.Session.TabID != nil {
		session += fmt.Sprintf(" on tab %d", *m.Session.TabID)
	}
	if m.Status != "" {
		session += " | " + m.Status
	}
	return mutedStyle.Render(session)
}
