// Package chrome implements the browser host on a Chrome instance driven over
// the DevTools protocol. Tabs are page targets; capture runs inside the page
// and ships PCM frames back through an exposed binding.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"

	"github.com/RMahshie/tabeq/internal/audio/graph"
	"github.com/RMahshie/tabeq/internal/host"
)

const (
	bindingName      = "__tabeqPush"
	focusBindingName = "__tabeqBlur"
)

// Options configures the Chrome host
type Options struct {
	// ControlURL is the DevTools websocket of a running Chrome. When empty a
	// browser is launched.
	ControlURL string
	Headless   bool
	SampleRate beep.SampleRate
	Timeout    time.Duration
}

// Host drives Chrome tabs
type Host struct {
	browser    *rod.Browser
	launched   bool
	sampleRate beep.SampleRate
	timeout    time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	nextID   host.TabID
	ids      map[proto.TargetTargetID]host.TabID
	targets  map[host.TabID]proto.TargetTargetID
	urls     map[host.TabID]string
	handles  map[string]host.TabID
	streams  map[string]*capture
	watches  map[host.TabID]*watch
	closed   bool

	events chan host.TabEvent
}

type capture struct {
	tab    host.TabID
	stream *graph.MediaStream
}

// watch holds the per-tab page hooks installed on first capture
type watch struct {
	cancel context.CancelFunc
	stop   []func() error
}

// pageState is what a page reports about its visibility
type pageState struct {
	tab     host.TabID
	visible bool
	focused bool
}

// New connects to (or launches) Chrome and starts watching targets
func New(ctx context.Context, opts Options) (*Host, error) {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 48000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	url := opts.ControlURL
	launched := false
	if url == "" {
		l := launcher.New().
			Headless(opts.Headless).
			Set("no-sandbox").
			Set("disable-gpu").
			Set("autoplay-policy", "no-user-gesture-required")

		var err error
		url, err = l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch Chrome: %w", err)
		}
		launched = true
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to Chrome: %w", err)
	}

	hctx, cancel := context.WithCancel(ctx)
	h := &Host{
		browser:    browser,
		launched:   launched,
		sampleRate: opts.SampleRate,
		timeout:    opts.Timeout,
		ctx:        hctx,
		cancel:     cancel,
		nextID:     1,
		ids:        make(map[proto.TargetTargetID]host.TabID),
		targets:    make(map[host.TabID]proto.TargetTargetID),
		urls:       make(map[host.TabID]string),
		handles:    make(map[string]host.TabID),
		streams:    make(map[string]*capture),
		watches:    make(map[host.TabID]*watch),
		events:     make(chan host.TabEvent, 16),
	}

	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(browser); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to enable target discovery: %w", err)
	}
	wait := browser.Context(hctx).EachEvent(h.onTargetDestroyed, h.onTargetInfoChanged)
	go wait()

	log.Info().Str("controlURL", url).Bool("launched", launched).Msg("Connected to Chrome")
	return h, nil
}

// List returns the open page targets
func (h *Host) List(ctx context.Context) ([]host.Tab, error) {
	tabs, _, err := h.scan(ctx)
	return tabs, err
}

// Active returns the visible, focused page. When no page reports focus the
// first visible one is used.
func (h *Host) Active(ctx context.Context) (host.TabID, error) {
	_, states, err := h.scan(ctx)
	if err != nil {
		return 0, err
	}
	return pickActive(states)
}

func (h *Host) scan(ctx context.Context) ([]host.Tab, []pageState, error) {
	pages, err := h.browser.Context(ctx).Pages()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list pages: %w", err)
	}

	tabs := make([]host.Tab, 0, len(pages))
	states := make([]pageState, 0, len(pages))
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			log.Warn().Err(err).Str("target", string(p.TargetID)).Msg("Failed to read page info")
			continue
		}
		id := h.register(p.TargetID, info.URL)
		st := h.state(ctx, p)
		st.tab = id
		states = append(states, st)
		tabs = append(tabs, host.Tab{
			ID:     id,
			Title:  info.Title,
			URL:    info.URL,
			Active: st.focused,
		})
	}
	return tabs, states, nil
}

// pickActive prefers a focused page, then a visible one. Headless and
// background browsers never report focus.
func pickActive(states []pageState) (host.TabID, error) {
	for _, st := range states {
		if st.focused {
			return st.tab, nil
		}
	}
	for _, st := range states {
		if st.visible {
			return st.tab, nil
		}
	}
	return 0, host.ErrNoActiveTab
}

// SetMuted mutes or unmutes every media element of the tab
func (h *Host) SetMuted(ctx context.Context, id host.TabID, muted bool) error {
	page, err := h.page(ctx, id)
	if err != nil {
		return err
	}
	if _, err := page.Eval(muteJS, muted); err != nil {
		return fmt.Errorf("failed to set tab %s muted=%t: %w", id, muted, err)
	}
	return nil
}

// GetMediaStreamID issues a single-use capture handle for the tab
func (h *Host) GetMediaStreamID(ctx context.Context, id host.TabID) (string, error) {
	if _, err := h.page(ctx, id); err != nil {
		return "", err
	}
	handle := uuid.NewString()
	h.mu.Lock()
	h.handles[handle] = id
	h.mu.Unlock()
	return handle, nil
}

// GetUserMedia starts capture in the tab and returns the stream fed by it
func (h *Host) GetUserMedia(ctx context.Context, streamID string) (*graph.MediaStream, error) {
	h.mu.Lock()
	id, ok := h.handles[streamID]
	delete(h.handles, streamID)
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", host.ErrUnknownStream, streamID)
	}

	page, err := h.page(ctx, id)
	if err != nil {
		return nil, err
	}
	// the binding and the release outlive the request
	long := page.Context(h.ctx)
	if err := h.watchTab(id, long); err != nil {
		return nil, err
	}

	stream := graph.NewPushStream(streamID, h.sampleRate, 0)
	h.mu.Lock()
	h.streams[streamID] = &capture{tab: id, stream: stream}
	h.mu.Unlock()

	if _, err := page.Eval(captureJS, streamID, bindingName, int(h.sampleRate)); err != nil {
		h.forget(streamID)
		stream.Stop()
		return nil, fmt.Errorf("failed to start capture in tab %s: %w", id, err)
	}

	stream.OnStop(func() {
		h.forget(streamID)
		// the page may already be gone
		if _, err := long.Timeout(h.timeout).Eval(releaseJS, streamID); err != nil {
			log.Debug().Err(err).Str("streamID", streamID).Msg("Failed to release capture in page")
		}
	})
	log.Info().Str("tab", id.String()).Str("streamID", streamID).Msg("Tab capture started")
	return stream, nil
}

// Open creates a tab showing url
func (h *Host) Open(ctx context.Context, url string) (host.TabID, error) {
	page, err := h.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return 0, fmt.Errorf("failed to load %s: %w", url, err)
	}
	return h.register(page.TargetID, url), nil
}

// CloseTab closes the tab's page
func (h *Host) CloseTab(ctx context.Context, id host.TabID) error {
	page, err := h.page(ctx, id)
	if err != nil {
		return err
	}
	return page.Close()
}

// Events returns tab lifecycle events
func (h *Host) Events() <-chan host.TabEvent {
	return h.events
}

// Close stops all captures and disconnects. A launched browser is closed.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	streams := make([]*graph.MediaStream, 0, len(h.streams))
	for _, c := range h.streams {
		streams = append(streams, c.stream)
	}
	watches := h.watches
	h.watches = nil
	close(h.events)
	h.mu.Unlock()

	for _, s := range streams {
		s.Stop()
	}
	for _, w := range watches {
		w.close()
	}
	h.cancel()

	if h.launched {
		return h.browser.Close()
	}
	return nil
}

// watchTab installs the page hooks once per tab: the frame sink binding, a
// blur listener and a main-frame navigation watcher. The hooks survive
// reloads.
func (h *Host) watchTab(id host.TabID, page *rod.Page) error {
	h.mu.Lock()
	_, done := h.watches[id]
	h.mu.Unlock()
	if done {
		return nil
	}

	w := &watch{}
	stop, err := page.Expose(bindingName, h.receive)
	if err != nil {
		return fmt.Errorf("failed to expose capture binding: %w", err)
	}
	w.stop = append(w.stop, stop)

	stop, err = page.Expose(focusBindingName, func(gson.JSON) (interface{}, error) {
		h.emit(host.TabEvent{Tab: id, Kind: host.TabBlurred})
		return true, nil
	})
	if err != nil {
		w.close()
		return fmt.Errorf("failed to expose focus binding: %w", err)
	}
	w.stop = append(w.stop, stop)

	remove, err := page.EvalOnNewDocument(fmt.Sprintf("(%s)(%q)", blurJS, focusBindingName))
	if err != nil {
		w.close()
		return fmt.Errorf("failed to install blur listener: %w", err)
	}
	w.stop = append(w.stop, remove)
	if _, err := page.Eval(blurJS, focusBindingName); err != nil {
		w.close()
		return fmt.Errorf("failed to install blur listener: %w", err)
	}

	wctx, cancel := context.WithCancel(h.ctx)
	w.cancel = cancel
	wait := page.Context(wctx).EachEvent(func(e *proto.PageFrameNavigated) {
		if e.Frame == nil || e.Frame.ParentID != "" {
			return
		}
		h.navigated(id, e.Frame.URL)
	})
	go wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		w.close()
		return errors.New("chrome host is closed")
	}
	h.watches[id] = w
	return nil
}

func (w *watch) close() {
	if w.cancel != nil {
		w.cancel()
	}
	for _, stop := range w.stop {
		_ = stop()
	}
}

// receive is called by the page for every captured block
func (h *Host) receive(msg gson.JSON) (interface{}, error) {
	id := msg.Get("id").Str()
	h.mu.Lock()
	c, ok := h.streams[id]
	h.mu.Unlock()
	if !ok {
		return false, nil
	}

	frames, err := decodeFrames(msg.Get("data").Str())
	if err != nil {
		return nil, err
	}
	if err := c.stream.Write(frames); err != nil {
		if errors.Is(err, graph.ErrStreamStopped) {
			return false, nil
		}
		return nil, err
	}
	return true, nil
}

func (h *Host) page(ctx context.Context, id host.TabID) (*rod.Page, error) {
	h.mu.Lock()
	target, ok := h.targets[id]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", host.ErrUnknownTab, id)
	}
	page, err := h.browser.PageFromTarget(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", host.ErrUnknownTab, id, err)
	}
	return page.Context(ctx), nil
}

func (h *Host) state(ctx context.Context, p *rod.Page) pageState {
	res, err := p.Context(ctx).Timeout(h.timeout).Eval(stateJS)
	if err != nil {
		return pageState{}
	}
	return pageState{
		visible: res.Value.Get("visible").Bool(),
		focused: res.Value.Get("focused").Bool(),
	}
}

// register assigns a stable tab id to a target
func (h *Host) register(target proto.TargetTargetID, url string) host.TabID {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id, ok := h.ids[target]; ok {
		return id
	}
	id := h.nextID
	h.nextID++
	h.ids[target] = id
	h.targets[id] = target
	h.urls[id] = url
	return id
}

func (h *Host) forget(streamID string) {
	h.mu.Lock()
	delete(h.streams, streamID)
	h.mu.Unlock()
}

// stopTab ends every capture of the tab
func (h *Host) stopTab(id host.TabID) {
	h.mu.Lock()
	var streams []*graph.MediaStream
	for _, c := range h.streams {
		if c.tab == id {
			streams = append(streams, c.stream)
		}
	}
	h.mu.Unlock()
	for _, s := range streams {
		s.Stop()
	}
}

func (h *Host) onTargetDestroyed(e *proto.TargetTargetDestroyed) {
	h.mu.Lock()
	id, ok := h.ids[e.TargetID]
	if ok {
		delete(h.ids, e.TargetID)
		delete(h.targets, id)
		delete(h.urls, id)
	}
	w := h.watches[id]
	delete(h.watches, id)
	h.mu.Unlock()
	if !ok {
		return
	}
	// the page is gone, only the watcher goroutine needs stopping
	if w != nil && w.cancel != nil {
		w.cancel()
	}
	h.stopTab(id)
	h.emit(host.TabEvent{Tab: id, Kind: host.TabClosed})
}

func (h *Host) onTargetInfoChanged(e *proto.TargetTargetInfoChanged) {
	info := e.TargetInfo
	if info == nil || info.Type != proto.TargetTargetInfoTypePage {
		return
	}
	h.mu.Lock()
	id, ok := h.ids[info.TargetID]
	_, watched := h.watches[id]
	changed := ok && !watched && h.urls[id] != info.URL
	if changed {
		h.urls[id] = info.URL
	}
	h.mu.Unlock()
	// watched tabs report through their frame watcher, reloads included
	if !changed {
		return
	}
	h.stopTab(id)
	h.emit(host.TabEvent{Tab: id, Kind: host.TabNavigated})
}

// navigated handles a main-frame commit in a watched tab. It fires for
// reloads too, which also destroy the page's capture graph.
func (h *Host) navigated(id host.TabID, url string) {
	h.mu.Lock()
	if _, ok := h.targets[id]; !ok {
		h.mu.Unlock()
		return
	}
	h.urls[id] = url
	h.mu.Unlock()

	h.stopTab(id)
	h.emit(host.TabEvent{Tab: id, Kind: host.TabNavigated})
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
