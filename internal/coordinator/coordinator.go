// Package coordinator owns the single equalizer session. It mutes the target
// tab, obtains a capture handle and drives the audio processor, serializing
// every state change and reacting to tab lifecycle events.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RMahshie/tabeq/internal/host"
	"github.com/RMahshie/tabeq/internal/processing"
	"github.com/RMahshie/tabeq/pkg/models"
)

var (
	// ErrMuteFailure means the tab's native output could not be muted, so
	// capture was not attempted
	ErrMuteFailure = errors.New("mute failure")

	// ErrStartCancelled means a stop or tab event pre-empted a start
	ErrStartCancelled = errors.New("start cancelled")

	ErrCaptureFailure    = processing.ErrCaptureFailure
	ErrGraphConstruction = processing.ErrGraphConstruction
)

// Options tunes coordinator policy
type Options struct {
	// StopOnFocusLoss stops the session when its tab loses focus
	StopOnFocusLoss bool
}

// Status is a snapshot of the session
type Status struct {
	Phase   processing.State
	Tab     *host.TabID
	Enabled bool
	Gains   models.GainProfile
	Since   time.Time
}

type session struct {
	tab   host.TabID
	gains models.GainProfile
	since time.Time
}

// Coordinator serializes session changes
type Coordinator struct {
	tabs    host.Tabs
	capture host.TabCapture
	audio   processing.Service
	opts    Options

	// one in-flight state change; callers queue on it
	queue chan struct{}

	mu          sync.Mutex
	session     *session
	starting    host.TabID
	startCancel context.CancelFunc
}

// New creates a coordinator
func New(tabs host.Tabs, capture host.TabCapture, audio processing.Service, opts Options) *Coordinator {
	return &Coordinator{
		tabs:    tabs,
		capture: capture,
		audio:   audio,
		opts:    opts,
		queue:   make(chan struct{}, 1),
	}
}

// ApplySettings makes the session reflect the settings for tab. Disabled
// settings stop any session. An active session on the same tab only gets
// its gains updated; otherwise the current session is stopped and a new one
// started. The tab is muted before capture and unmuted only after the
// session is torn down.
func (c *Coordinator) ApplySettings(ctx context.Context, tab host.TabID, gains models.GainProfile, enabled bool) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	if !enabled {
		c.teardown(ctx, "disabled")
		return nil
	}

	c.mu.Lock()
	s := c.session
	c.mu.Unlock()

	if s != nil && s.tab == tab && c.audio.State() == processing.Active {
		c.audio.UpdateGains(gains)
		c.mu.Lock()
		s.gains = gains.Clone()
		c.mu.Unlock()
		log.Debug().Str("tab", tab.String()).Msg("Updated equalizer gains")
		return nil
	}

	if s != nil {
		c.teardown(ctx, "switching tab")
	}
	return c.start(ctx, tab, gains)
}

// Stop cancels any in-flight start, then stops the session and unmutes its tab
func (c *Coordinator) Stop(ctx context.Context) error {
	c.cancelStart()
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	c.teardown(ctx, "stopped")
	return nil
}

// HandleTabEvent stops the session when its tab closes or navigates, and on
// focus loss when the policy asks for it. Failures are logged.
func (c *Coordinator) HandleTabEvent(ctx context.Context, ev host.TabEvent) {
	switch ev.Kind {
	case host.TabClosed, host.TabNavigated:
	case host.TabBlurred:
		if !c.opts.StopOnFocusLoss {
			return
		}
	default:
		log.Warn().Str("kind", string(ev.Kind)).Msg("Ignoring unknown tab event")
		return
	}

	c.mu.Lock()
	starting := c.startCancel != nil && c.starting == ev.Tab
	if starting {
		c.startCancel()
	}
	active := c.session != nil && c.session.tab == ev.Tab
	c.mu.Unlock()
	if !starting && !active {
		return
	}

	log.Info().Str("tab", ev.Tab.String()).Str("event", string(ev.Kind)).Msg("Stopping equalizer for tab event")
	if err := c.acquire(ctx); err != nil {
		log.Warn().Err(err).Str("tab", ev.Tab.String()).Msg("Failed to handle tab event")
		return
	}
	defer c.release()

	c.mu.Lock()
	active = c.session != nil && c.session.tab == ev.Tab
	c.mu.Unlock()
	if active {
		c.teardown(ctx, string(ev.Kind))
	}
}

// Watch feeds host events to HandleTabEvent until ctx ends or events closes
func (c *Coordinator) Watch(ctx context.Context, events <-chan host.TabEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.HandleTabEvent(ctx, ev)
		}
	}
}

// Shutdown stops everything before the process exits
func (c *Coordinator) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down equalizer session")
	return c.Stop(ctx)
}

// Status reports the current session
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{Phase: c.audio.State()}
	if c.session != nil {
		tab := c.session.tab
		st.Tab = &tab
		st.Enabled = true
		st.Gains = c.session.gains.Clone()
		st.Since = c.session.since
	} else if c.startCancel != nil {
		tab := c.starting
		st.Tab = &tab
		st.Phase = processing.Starting
	}
	return st
}

func (c *Coordinator) start(ctx context.Context, tab host.TabID, gains models.GainProfile) error {
	startCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.starting = tab
	c.startCancel = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		c.mu.Lock()
		c.startCancel = nil
		c.starting = 0
		c.mu.Unlock()
	}()

	logger := log.With().Str("tab", tab.String()).Logger()

	if err := c.tabs.SetMuted(startCtx, tab, true); err != nil {
		if cerr := c.cancelled(ctx, startCtx); cerr != nil {
			// the mute may have landed before the cancellation
			c.unmute(context.WithoutCancel(ctx), tab)
			return cerr
		}
		logger.Error().Err(err).Msg("Failed to mute tab")
		return fmt.Errorf("%w: %w", ErrMuteFailure, err)
	}

	handle, err := c.capture.GetMediaStreamID(startCtx, tab)
	if err != nil {
		c.abort(ctx, tab)
		if cerr := c.cancelled(ctx, startCtx); cerr != nil {
			return cerr
		}
		logger.Error().Err(err).Msg("Failed to obtain capture handle")
		return fmt.Errorf("%w: %w", ErrCaptureFailure, err)
	}

	if err := c.audio.Start(startCtx, handle, gains); err != nil {
		c.abort(ctx, tab)
		if cerr := c.cancelled(ctx, startCtx); cerr != nil {
			return cerr
		}
		logger.Error().Err(err).Msg("Failed to start audio session")
		return err
	}

	c.mu.Lock()
	c.session = &session{tab: tab, gains: gains.Clone(), since: time.Now()}
	c.mu.Unlock()
	logger.Info().Msg("Equalizer session started")
	return nil
}

// cancelled classifies a failure seen after startCtx ended
func (c *Coordinator) cancelled(ctx, startCtx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if startCtx.Err() != nil {
		return ErrStartCancelled
	}
	return nil
}

// abort unwinds a failed start: the processor is stopped, then the tab is
// unmuted
func (c *Coordinator) abort(ctx context.Context, tab host.TabID) {
	cleanup := context.WithoutCancel(ctx)
	if err := c.audio.Stop(cleanup); err != nil {
		log.Warn().Err(err).Str("tab", tab.String()).Msg("Failed to stop audio after failed start")
	}
	c.unmute(cleanup, tab)
}

// teardown stops the session, then unmutes its tab. The caller holds the
// queue.
func (c *Coordinator) teardown(ctx context.Context, reason string) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return
	}

	cleanup := context.WithoutCancel(ctx)
	if err := c.audio.Stop(cleanup); err != nil {
		log.Warn().Err(err).Str("tab", s.tab.String()).Msg("Failed to stop audio session")
	}
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	c.unmute(cleanup, s.tab)

	log.Info().Str("tab", s.tab.String()).Str("reason", reason).Msg("Equalizer session stopped")
}

func (c *Coordinator) unmute(ctx context.Context, tab host.TabID) {
	if err := c.tabs.SetMuted(ctx, tab, false); err != nil {
		if errors.Is(err, host.ErrUnknownTab) {
			log.Debug().Str("tab", tab.String()).Msg("Tab gone before unmute")
			return
		}
		log.Warn().Err(err).Str("tab", tab.String()).Msg("Failed to unmute tab")
	}
}

func (c *Coordinator) cancelStart() {
	c.mu.Lock()
	if c.startCancel != nil {
		c.startCancel()
	}
	c.mu.Unlock()
}

func (c *Coordinator) acquire(ctx context.Context) error {
	select {
	case c.queue <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) release() {
	<-c.queue
}
