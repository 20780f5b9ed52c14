// Package cli holds the terminal output helpers for eqctl
package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/RMahshie/tabeq/pkg/models"
)

// Color palette
var (
	primaryColor = lipgloss.Color("#2E86DE")
	errorColor   = lipgloss.Color("#A40000")
	mutedColor   = lipgloss.Color("#888888")
	textColor    = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)

	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)
)

// PrintVersion prints version information
func PrintVersion(version string) {
	fmt.Println(TitleStyle.Render("eqctl"))
	fmt.Printf("%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), message)
}

// PrintKV prints one labelled value
func PrintKV(w io.Writer, key string, value any) {
	fmt.Fprintf(w, "%s %s\n", KeyStyle.Render(fmt.Sprintf("%-10s", key+":")), ValueStyle.Render(fmt.Sprint(value)))
}

// PrintSession prints a session summary
func PrintSession(w io.Writer, s models.SessionBody) {
	PrintKV(w, "Phase", s.Phase)
	if s.TabID != nil {
		PrintKV(w, "Tab", *s.TabID)
	}
	if s.Since != nil {
		PrintKV(w, "Since", s.Since.Format("15:04:05"))
	}
	if len(s.Gains) > 0 {
		PrintKV(w, "Gains", FormatGains(s.Gains))
	}
}

// PrintApplyResult prints the outcome of an apply request
func PrintApplyResult(w io.Writer, r *models.ApplySettingsResponseBody) {
	if r.Success {
		PrintKV(w, "Result", "applied")
	} else {
		fmt.Fprintf(w, "%s %s (%s)\n", ErrorStyle.Render("Failed:"), r.Error, r.Reason)
	}
	PrintSession(w, r.Session)
}

// FormatGains renders gains in ascending frequency order
func FormatGains(gains map[string]float64) string {
	freqs := make([]int, 0, len(gains))
	for k := range gains {
		if f, err := strconv.Atoi(k); err == nil {
			freqs = append(freqs, f)
		}
	}
	sort.Ints(freqs)

	parts := make([]string, 0, len(freqs))
	for _, f := range freqs {
		parts = append(parts, fmt.Sprintf("%s=%+.1f", models.Label(f), gains[strconv.Itoa(f)]))
	}
	return strings.Join(parts, " ")
}

// ParseGains reads "freq=dB" pairs such as "32=3,1000=-2.5"
func ParseGains(s string) (map[string]float64, error) {
	out := map[string]float64{}
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("invalid gain %q, want freq=dB", part)
		}
		f, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid frequency %q", k)
		}
		db, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid gain for %d Hz: %w", f, err)
		}
		out[strconv.Itoa(f)] = db
	}
	return out, nil
}
