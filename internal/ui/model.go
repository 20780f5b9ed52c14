// Package ui provides the Bubbletea slider interface for eqctl
package ui

import (
	"context"
	"math"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/RMahshie/tabeq/pkg/models"
)

// Step is the gain change per key press in dB
const Step = 1.0

// API is what the sliders need from the server
type API interface {
	Bands(ctx context.Context) ([]models.BandInfo, float64, error)
	Settings(ctx context.Context) (*models.SettingsBody, error)
	Apply(ctx context.Context, gains map[string]float64, enabled bool, tab *int) (*models.ApplySettingsResponseBody, error)
}

// Model is the Bubbletea model for the equalizer sliders
type Model struct {
	api     API
	tab     *int
	timeout time.Duration

	Bands     []models.BandInfo
	GainLimit float64
	Gains     []float64
	Enabled   bool
	Cursor    int

	// seq numbers apply requests so stale replies are ignored
	seq     int
	Pending bool
	Session models.SessionBody
	Status  string
	Err     error
	Loaded  bool
	Quit    bool
}

// NewModel creates the slider model. tab may be nil for the focused tab.
func NewModel(api API, tab *int) Model {
	return Model{api: api, tab: tab, timeout: 10 * time.Second}
}

// Init loads the band layout and settings
func (m Model) Init() tea.Cmd {
	api, timeout := m.api, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		bands, limit, err := api.Bands(ctx)
		if err != nil {
			return LoadedMsg{Err: err}
		}
		settings, err := api.Settings(ctx)
		return LoadedMsg{Bands: bands, GainLimit: limit, Settings: settings, Err: err}
	}
}

// Update handles key presses and server replies
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		if msg.Err != nil {
			m.Err = msg.Err
			return m, nil
		}
		m.Loaded = true
		m.Bands = msg.Bands
		m.GainLimit = msg.GainLimit
		m.Gains = make([]float64, len(msg.Bands))
		if msg.Settings != nil {
			m.Enabled = msg.Settings.Enabled
			for i, b := range msg.Bands {
				m.Gains[i] = msg.Settings.Gains[strconv.Itoa(b.Frequency)]
			}
		}
		return m, nil

	case AppliedMsg:
		if msg.Seq != m.seq {
			return m, nil
		}
		m.Pending = false
		m.Err = msg.Err
		if msg.Result != nil {
			m.Session = msg.Result.Session
			if msg.Result.Success {
				m.Status = "applied"
			} else {
				m.Status = msg.Result.Reason + ": " + msg.Result.Error
			}
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.Quit = true
		return m, tea.Quit
	}
	if !m.Loaded {
		return m, nil
	}

	switch msg.String() {
	case "left", "h":
		if m.Cursor > 0 {
			m.Cursor--
		}
		return m, nil
	case "right", "l":
		if m.Cursor < len(m.Bands)-1 {
			m.Cursor++
		}
		return m, nil
	case "up", "k":
		m.nudge(Step)
	case "down", "j":
		m.nudge(-Step)
	case "0":
		m.Gains[m.Cursor] = 0
	case "f":
		for i := range m.Gains {
			m.Gains[i] = 0
		}
	case "e", " ":
		m.Enabled = !m.Enabled
	case "enter", "r":
	default:
		return m, nil
	}
	return m.apply()
}

func (m *Model) nudge(delta float64) {
	v := m.Gains[m.Cursor] + delta
	if m.GainLimit > 0 {
		v = math.Max(-m.GainLimit, math.Min(m.GainLimit, v))
	}
	m.Gains[m.Cursor] = v
}

// apply sends the current sliders to the server
func (m Model) apply() (tea.Model, tea.Cmd) {
	m.seq++
	m.Pending = true
	seq, api, tab, timeout := m.seq, m.api, m.tab, m.timeout
	gains, enabled := m.wire(), m.Enabled
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		res, err := api.Apply(ctx, gains, enabled, tab)
		return AppliedMsg{Seq: seq, Result: res, Err: err}
	}
}

func (m Model) wire() map[string]float64 {
	out := make(map[string]float64, len(m.Bands))
	for i, b := range m.Bands {
		out[strconv.Itoa(b.Frequency)] = m.Gains[i]
	}
	return out
}

// View renders the sliders
func (m Model) View() string {
	return render(m)
}
