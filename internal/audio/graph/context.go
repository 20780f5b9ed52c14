// Package graph provides the audio-graph primitives the equalizer pipeline is
// assembled from: a rendering context with a sample clock, media stream
// sources, biquad filters with automatable parameters and an output
// destination. Nodes are beep streamers pulled by the destination.
package graph

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
)

// ErrContextClosed is returned when a closed context is used
var ErrContextClosed = errors.New("audio context is closed")

// Context owns a render clock and the destination node. Time advances as the
// sink pulls frames from the destination.
type Context struct {
	sampleRate beep.SampleRate
	sink       Sink
	dest       *Destination

	frames atomic.Int64
	closed atomic.Bool

	closeOnce sync.Once
}

// NewContext creates a context rendering through sink
func NewContext(sampleRate beep.SampleRate, sink Sink) (*Context, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	if sink == nil {
		return nil, errors.New("sink is required")
	}

	c := &Context{
		sampleRate: sampleRate,
		sink:       sink,
	}
	c.dest = &Destination{ctx: c}

	if err := sink.Play(sampleRate, c.dest); err != nil {
		return nil, err
	}
	return c, nil
}

// SampleRate returns the render sample rate
func (c *Context) SampleRate() beep.SampleRate {
	return c.sampleRate
}

// CurrentTime returns the render position in seconds
func (c *Context) CurrentTime() float64 {
	return float64(c.frames.Load()) / float64(c.sampleRate)
}

// Destination returns the output node
func (c *Context) Destination() *Destination {
	return c.dest
}

// Closed reports whether Close was called
func (c *Context) Closed() bool {
	return c.closed.Load()
}

// Close stops rendering. The destination reports end of stream on its next
// pull so the sink drops it. Closing twice is a no-op.
func (c *Context) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.dest.setInput(nil)
		err = c.sink.Remove(c.dest)
	})
	return err
}

func (c *Context) advance(n int) {
	c.frames.Add(int64(n))
}
