package graph

import (
	"errors"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

// ErrStreamStopped is returned when a stopped stream is used
var ErrStreamStopped = errors.New("media stream is stopped")

// MediaStream is a captured audio stream. It is either pushed (a host writes
// frames as they arrive) or pulled (wrapping a beep streamer). Stopping the
// stream ends its tracks and runs the registered stop hooks once.
type MediaStream struct {
	id         string
	sampleRate beep.SampleRate

	mu      sync.Mutex
	source  beep.Streamer
	queue   [][2]float64
	limit   int
	dropped int
	stopped bool
	onStop  []func()
}

// NewPushStream creates a stream fed through Write. At most bufferFrames are
// queued; older frames are discarded when a writer outpaces playback.
func NewPushStream(id string, sampleRate beep.SampleRate, bufferFrames int) *MediaStream {
	if bufferFrames <= 0 {
		bufferFrames = sampleRate.N(time.Second / 2)
	}
	return &MediaStream{id: id, sampleRate: sampleRate, limit: bufferFrames}
}

// NewPullStream creates a stream reading from source
func NewPullStream(id string, sampleRate beep.SampleRate, source beep.Streamer) *MediaStream {
	return &MediaStream{id: id, sampleRate: sampleRate, source: source}
}

// ID returns the stream identifier
func (m *MediaStream) ID() string { return m.id }

// SampleRate returns the stream's native rate
func (m *MediaStream) SampleRate() beep.SampleRate { return m.sampleRate }

// Write queues captured frames
func (m *MediaStream) Write(frames [][2]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStreamStopped
	}
	if m.source != nil {
		return errors.New("pull stream does not accept writes")
	}
	m.queue = append(m.queue, frames...)
	if over := len(m.queue) - m.limit; over > 0 {
		m.queue = append(m.queue[:0], m.queue[over:]...)
		m.dropped += over
	}
	return nil
}

// Dropped returns the number of frames discarded on overflow
func (m *MediaStream) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Stream implements beep.Streamer. A push stream that runs dry yields
// silence rather than ending.
func (m *MediaStream) Stream(samples [][2]float64) (int, bool) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return 0, false
	}
	src := m.source
	if src == nil {
		n := copy(samples, m.queue)
		m.queue = m.queue[:copy(m.queue, m.queue[n:])]
		m.mu.Unlock()
		for i := n; i < len(samples); i++ {
			samples[i] = [2]float64{}
		}
		return len(samples), true
	}
	m.mu.Unlock()
	return src.Stream(samples)
}

// Err implements beep.Streamer
func (m *MediaStream) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.source != nil {
		return m.source.Err()
	}
	return nil
}

// OnStop registers fn to run when the stream stops. If the stream is already
// stopped fn runs immediately.
func (m *MediaStream) OnStop(fn func()) {
	m.mu.Lock()
	if !m.stopped {
		m.onStop = append(m.onStop, fn)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	fn()
}

// Stop ends all tracks. Calling it again is a no-op.
func (m *MediaStream) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.queue = nil
	hooks := m.onStop
	m.onStop = nil
	m.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// Stopped reports whether Stop was called
func (m *MediaStream) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}
