// Package sim is an in-process browser host. Every tab plays a sine tone, so
// the equalizer can run on machines without Chrome.
package sim

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/generators"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/tabeq/internal/audio/graph"
	"github.com/RMahshie/tabeq/internal/host"
)

// TabConfig describes a simulated tab
type TabConfig struct {
	Title string
	URL   string
	Tone  float64
}

// DefaultTabs are used when no tabs are configured
var DefaultTabs = []TabConfig{
	{Title: "Music", URL: "https://music.example.com", Tone: 440},
	{Title: "Podcast", URL: "https://podcast.example.com", Tone: 220},
}

// ParseTabs reads a comma separated list of title:tone pairs, for example
// "Music:440,Podcast:220". An empty string yields DefaultTabs.
func ParseTabs(s string) ([]TabConfig, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultTabs, nil
	}

	var tabs []TabConfig
	for _, part := range strings.Split(s, ",") {
		title, tone, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || title == "" {
			return nil, fmt.Errorf("invalid simulated tab %q, want title:tone", part)
		}
		hz, err := strconv.ParseFloat(tone, 64)
		if err != nil || hz <= 0 {
			return nil, fmt.Errorf("invalid tone for simulated tab %q", title)
		}
		tabs = append(tabs, TabConfig{
			Title: title,
			URL:   "https://" + strings.ToLower(strings.ReplaceAll(title, " ", "-")) + ".example.com",
			Tone:  hz,
		})
	}
	return tabs, nil
}

type tab struct {
	cfg     TabConfig
	id      host.TabID
	muted   bool
	streams []*graph.MediaStream
}

// Host is a simulated browser
type Host struct {
	sampleRate beep.SampleRate

	mu         sync.Mutex
	tabs       map[host.TabID]*tab
	order      []host.TabID
	active     host.TabID
	nextID     host.TabID
	handles    map[string]host.TabID
	muteErr    error
	captureErr error
	closed     bool

	events chan host.TabEvent
}

// New creates a host with the given tabs. The first tab has focus.
func New(sampleRate beep.SampleRate, tabs []TabConfig) *Host {
	h := &Host{
		sampleRate: sampleRate,
		tabs:       make(map[host.TabID]*tab),
		handles:    make(map[string]host.TabID),
		nextID:     1,
		events:     make(chan host.TabEvent, 16),
	}
	for _, cfg := range tabs {
		h.AddTab(cfg)
	}
	return h
}

// AddTab opens a tab and returns its id. The tab gets focus if none has it.
func (h *Host) AddTab(cfg TabConfig) host.TabID {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	h.tabs[id] = &tab{cfg: cfg, id: id}
	h.order = append(h.order, id)
	if h.active == 0 {
		h.active = id
	}
	return id
}

// List returns all open tabs in opening order
func (h *Host) List(_ context.Context) ([]host.Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]host.Tab, 0, len(h.order))
	for _, id := range h.order {
		t := h.tabs[id]
		out = append(out, host.Tab{ID: id, Title: t.cfg.Title, URL: t.cfg.URL, Active: id == h.active})
	}
	return out, nil
}

// Active returns the focused tab
func (h *Host) Active(_ context.Context) (host.TabID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == 0 {
		return 0, host.ErrNoActiveTab
	}
	return h.active, nil
}

// SetMuted sets the tab's native output muting
func (h *Host) SetMuted(ctx context.Context, id host.TabID, muted bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.muteErr != nil {
		return h.muteErr
	}
	t, ok := h.tabs[id]
	if !ok {
		return fmt.Errorf("%w: %s", host.ErrUnknownTab, id)
	}
	t.muted = muted
	log.Debug().Str("tab", id.String()).Bool("muted", muted).Msg("Simulated tab mute changed")
	return nil
}

// Muted reports whether the tab is muted
func (h *Host) Muted(id host.TabID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tabs[id]
	return ok && t.muted
}

// GetMediaStreamID issues a single-use capture handle for the tab
func (h *Host) GetMediaStreamID(ctx context.Context, id host.TabID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.captureErr != nil {
		return "", h.captureErr
	}
	if _, ok := h.tabs[id]; !ok {
		return "", fmt.Errorf("%w: %s", host.ErrUnknownTab, id)
	}
	handle := uuid.NewString()
	h.handles[handle] = id
	return handle, nil
}

// GetUserMedia redeems a capture handle for a stream of the tab's tone. The
// stream ends when the tab closes.
func (h *Host) GetUserMedia(ctx context.Context, streamID string) (*graph.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	id, ok := h.handles[streamID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", host.ErrUnknownStream, streamID)
	}
	delete(h.handles, streamID)

	t, ok := h.tabs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", host.ErrUnknownTab, id)
	}
	tone, err := generators.SineTone(h.sampleRate, t.cfg.Tone)
	if err != nil {
		return nil, fmt.Errorf("failed to create tone: %w", err)
	}
	stream := graph.NewPullStream(streamID, h.sampleRate, tone)
	t.streams = append(t.streams, stream)
	stream.OnStop(func() { h.release(id, stream) })
	return stream, nil
}

// release forgets a stream once it has stopped
func (h *Host) release(id host.TabID, stream *graph.MediaStream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tabs[id]
	if !ok {
		return
	}
	for i, s := range t.streams {
		if s == stream {
			t.streams = append(t.streams[:i], t.streams[i+1:]...)
			return
		}
	}
}

// Focus moves focus to the tab. The previously focused tab reports blurred.
func (h *Host) Focus(id host.TabID) error {
	h.mu.Lock()
	if _, ok := h.tabs[id]; !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", host.ErrUnknownTab, id)
	}
	prev := h.active
	h.active = id
	h.mu.Unlock()

	if prev != 0 && prev != id {
		h.emit(host.TabEvent{Tab: prev, Kind: host.TabBlurred})
	}
	return nil
}

// Navigate changes the tab's URL
func (h *Host) Navigate(id host.TabID, url string) error {
	h.mu.Lock()
	t, ok := h.tabs[id]
	if ok {
		t.cfg.URL = url
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", host.ErrUnknownTab, id)
	}
	h.emit(host.TabEvent{Tab: id, Kind: host.TabNavigated})
	return nil
}

// CloseTab closes the tab and ends its captured streams
func (h *Host) CloseTab(id host.TabID) error {
	h.mu.Lock()
	t, ok := h.tabs[id]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", host.ErrUnknownTab, id)
	}
	delete(h.tabs, id)
	for i, o := range h.order {
		if o == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	if h.active == id {
		h.active = 0
		if len(h.order) > 0 {
			h.active = h.order[0]
		}
	}
	streams := t.streams
	h.mu.Unlock()

	for _, s := range streams {
		s.Stop()
	}
	h.emit(host.TabEvent{Tab: id, Kind: host.TabClosed})
	return nil
}

// FailMute makes every SetMuted call return err until cleared with nil
func (h *Host) FailMute(err error) {
	h.mu.Lock()
	h.muteErr = err
	h.mu.Unlock()
}

// FailCapture makes every GetMediaStreamID call return err until cleared
// with nil
func (h *Host) FailCapture(err error) {
	h.mu.Lock()
	h.captureErr = err
	h.mu.Unlock()
}

// Events returns the tab lifecycle events
func (h *Host) Events() <-chan host.TabEvent {
	return h.events
}

// Close ends every stream and the event channel
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	var streams []*graph.MediaStream
	for _, t := range h.tabs {
		streams = append(streams, t.streams...)
	}
	close(h.events)
	h.mu.Unlock()

	for _, s := range streams {
		s.Stop()
	}
	return nil
}

func (h *Host) emit(ev host.TabEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.events <- ev:
	default:
		log.Warn().Str("tab", ev.Tab.String()).Str("kind", string(ev.Kind)).Msg("Dropping tab event, no listener")
	}
}
