// Package processing runs the audio session: it turns a capture handle into
// a live stream, routes it through the equalizer to the output and tears it
// down again. It runs in its own goroutine and is driven only by messages.
package processing

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/tabeq/internal/audio/filterchain"
	"github.com/RMahshie/tabeq/internal/audio/graph"
	"github.com/RMahshie/tabeq/internal/host"
	"github.com/RMahshie/tabeq/pkg/models"
)

var (
	// ErrCaptureFailure means the capture handle could not be redeemed
	ErrCaptureFailure = errors.New("capture failure")

	// ErrGraphConstruction means the audio graph could not be built after
	// the stream was acquired
	ErrGraphConstruction = errors.New("audio graph construction failure")

	// ErrNotRunning is returned when the processor loop is not running
	ErrNotRunning = errors.New("audio processor is not running")
)

// Service is the processor as seen by the coordinator
type Service interface {
	Start(ctx context.Context, streamID string, gains models.GainProfile) error
	UpdateGains(gains models.GainProfile)
	Stop(ctx context.Context) error
	State() State
	Gains() models.GainProfile
}

// Config configures the processor
type Config struct {
	SampleRate beep.SampleRate
	Bands      models.BandLayout
	Filter     filterchain.Options
	Sink       graph.Sink
}

// Manager owns at most one audio session
type Manager struct {
	devices host.MediaDevices
	cfg     Config

	inbox      chan Message
	gainsReady chan struct{}
	pending    atomic.Pointer[Message]

	state   atomic.Int32
	session atomic.Pointer[session]
	running atomic.Bool
	done    chan struct{}
}

type session struct {
	streamID string
	stream   *graph.MediaStream
	ctx      *graph.Context
	source   *graph.MediaStreamSource
	chain    *filterchain.Chain
}

// NewManager creates a processor. Call Run to start its loop.
func NewManager(devices host.MediaDevices, cfg Config) *Manager {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if len(cfg.Bands) == 0 {
		cfg.Bands = models.TenBandLayout
	}
	if cfg.Sink == nil {
		cfg.Sink = &graph.NullSink{}
	}
	return &Manager{
		devices:    devices,
		cfg:        cfg,
		inbox:      make(chan Message),
		gainsReady: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Run processes messages until ctx is cancelled, then tears down any active
// session.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("audio processor already running")
	}
	defer close(m.done)

	log.Info().Int("sampleRate", int(m.cfg.SampleRate)).Int("bands", len(m.cfg.Bands)).Msg("Audio processor started")
	for {
		select {
		case <-ctx.Done():
			m.teardown()
			log.Info().Msg("Audio processor stopped")
			return nil
		case msg := <-m.inbox:
			m.handle(msg)
		case <-m.gainsReady:
			if msg := m.pending.Swap(nil); msg != nil {
				m.handle(*msg)
			}
		}
	}
}

// Start sends START_AUDIO and waits for the session to become active or fail.
// The reply is always awaited so the caller never misreads a session that
// came up; cancelling ctx makes the processor unwind the start.
func (m *Manager) Start(ctx context.Context, streamID string, gains models.GainProfile) error {
	msg := newRequest(ctx, StartAudio)
	msg.StreamID = streamID
	msg.Gains = gains.Clone()
	return m.request(ctx, msg)
}

// Stop sends STOP_AUDIO and waits for teardown to complete
func (m *Manager) Stop(ctx context.Context) error {
	return m.request(ctx, newRequest(ctx, StopAudio))
}

// UpdateGains sends UPDATE_GAINS without waiting. Delivery is best effort:
// updates are coalesced so only the latest profile is applied, and they are
// ignored unless a session is active.
func (m *Manager) UpdateGains(gains models.GainProfile) {
	msg := Message{Type: UpdateGains, Gains: gains.Clone()}
	m.pending.Store(&msg)
	select {
	case m.gainsReady <- struct{}{}:
	default:
	}
}

// State returns the current lifecycle phase
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Gains returns the target gains of the active session, nil when idle
func (m *Manager) Gains() models.GainProfile {
	if s := m.session.Load(); s != nil {
		return s.chain.Targets()
	}
	return nil
}

func (m *Manager) request(ctx context.Context, msg Message) error {
	select {
	case m.inbox <- msg:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrNotRunning
	}

	select {
	case err := <-msg.reply:
		return err
	case <-m.done:
		return ErrNotRunning
	}
}

func (m *Manager) handle(msg Message) {
	var err error
	switch msg.Type {
	case StartAudio:
		err = m.start(msg.ctx, msg.StreamID, msg.Gains)
	case StopAudio:
		m.teardown()
	case UpdateGains:
		m.apply(msg.Gains)
	default:
		err = fmt.Errorf("unexpected message type %q", msg.Type)
	}
	if msg.reply != nil {
		msg.reply <- err
	}
}

func (m *Manager) start(ctx context.Context, streamID string, gains models.GainProfile) error {
	if m.session.Load() != nil {
		m.teardown()
	}
	// stale updates belong to the previous session
	m.pending.Store(nil)

	m.setState(Starting)
	s, err := m.open(ctx, streamID, gains)
	if err != nil {
		m.setState(Idle)
		log.Error().Err(err).Str("streamID", streamID).Msg("Failed to start audio processing")
		return err
	}

	m.session.Store(s)
	m.setState(Active)
	log.Info().Str("streamID", streamID).Msg("Audio processing started")
	return nil
}

// open acquires the stream and builds source → chain → destination. Anything
// acquired is released again when a later step fails or ctx is cancelled.
func (m *Manager) open(ctx context.Context, streamID string, gains models.GainProfile) (*session, error) {
	stream, err := m.devices.GetUserMedia(ctx, streamID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailure, err)
	}
	s := &session{streamID: streamID, stream: stream}

	if err := ctx.Err(); err != nil {
		s.close()
		return nil, err
	}

	actx, err := graph.NewContext(m.cfg.SampleRate, m.cfg.Sink)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("%w: %w", ErrGraphConstruction, err)
	}
	s.ctx = actx

	src, err := actx.NewMediaStreamSource(stream)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("%w: %w", ErrGraphConstruction, err)
	}
	s.source = src

	chain, err := filterchain.Build(actx, src, actx.Destination(), m.cfg.Bands, gains, m.cfg.Filter)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("%w: %w", ErrGraphConstruction, err)
	}
	s.chain = chain

	if err := ctx.Err(); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (m *Manager) apply(gains models.GainProfile) {
	s := m.session.Load()
	if s == nil || m.State() != Active {
		log.Debug().Str("state", m.State().String()).Msg("Ignoring gain update without an active session")
		return
	}
	s.chain.UpdateGains(gains)
}

func (m *Manager) teardown() {
	s := m.session.Load()
	if s == nil {
		m.setState(Idle)
		return
	}
	m.setState(Stopping)
	s.close()
	m.session.Store(nil)
	m.setState(Idle)
	log.Info().Str("streamID", s.streamID).Msg("Audio processing stopped")
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

// close releases the stream tracks, disconnects every node and closes the
// context. It tolerates a partially built session.
func (s *session) close() {
	if s.stream != nil {
		s.stream.Stop()
	}
	if s.source != nil {
		s.source.Disconnect()
	}
	s.chain.Disconnect()
	if s.ctx != nil {
		if err := s.ctx.Close(); err != nil {
			log.Warn().Err(err).Str("streamID", s.streamID).Msg("Failed to close audio context")
		}
	}
}
