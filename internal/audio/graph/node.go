package graph

import (
	"errors"
	"sync"

	"github.com/gopxl/beep/v2"
)

// ErrNoInput is returned when connecting into a node that accepts no input
var ErrNoInput = errors.New("node does not accept input")

// Node is an element of the audio graph. Each node has at most one
// downstream node; connecting again replaces it.
type Node interface {
	Context() *Context
	Connect(dst Node) error
	Disconnect()

	output() beep.Streamer
	setInput(src beep.Streamer) error
}

// port holds the wiring shared by all nodes
type port struct {
	mu    sync.Mutex
	input beep.Streamer
	down  Node
}

func (p *port) getInput() beep.Streamer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input
}

func (p *port) setInput(src beep.Streamer) error {
	p.mu.Lock()
	p.input = src
	p.mu.Unlock()
	return nil
}

func (p *port) connect(self, dst Node) error {
	if dst == nil {
		return errors.New("destination node is nil")
	}
	if self.Context() != dst.Context() {
		return errors.New("nodes belong to different contexts")
	}
	if self.Context().Closed() {
		return ErrContextClosed
	}

	p.mu.Lock()
	prev := p.down
	p.mu.Unlock()
	if prev != nil && prev != dst {
		_ = prev.setInput(nil)
	}

	if err := dst.setInput(self.output()); err != nil {
		return err
	}
	p.mu.Lock()
	p.down = dst
	p.mu.Unlock()
	return nil
}

func (p *port) disconnect() {
	p.mu.Lock()
	down := p.down
	p.down = nil
	p.mu.Unlock()
	if down != nil {
		_ = down.setInput(nil)
	}
}

// pull reads from src into samples, padding with silence. A nil source, an
// exhausted source and a short read all produce silence for the remainder.
func pull(src beep.Streamer, samples [][2]float64) {
	n := 0
	if src != nil {
		n, _ = src.Stream(samples)
		if n < 0 {
			n = 0
		}
	}
	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
}

// Destination is the context's output; the sink pulls from it.
type Destination struct {
	ctx *Context
	port
}

// Context returns the owning context
func (d *Destination) Context() *Context { return d.ctx }

// Connect always fails: the destination is a terminal node
func (d *Destination) Connect(Node) error { return errors.New("destination has no outputs") }

// Disconnect is a no-op for the destination
func (d *Destination) Disconnect() {}

func (d *Destination) output() beep.Streamer { return nil }

// Stream renders one block. It reports end of stream once the context is closed.
func (d *Destination) Stream(samples [][2]float64) (int, bool) {
	if d.ctx.Closed() {
		return 0, false
	}
	pull(d.getInput(), samples)
	d.ctx.advance(len(samples))
	return len(samples), true
}

// Err implements beep.Streamer
func (d *Destination) Err() error { return nil }

// MediaStreamSource feeds a MediaStream into the graph, resampling when the
// stream rate differs from the context rate.
type MediaStreamSource struct {
	ctx    *Context
	stream *MediaStream
	out    beep.Streamer
	port
}

// NewMediaStreamSource creates a source node for stream
func (c *Context) NewMediaStreamSource(stream *MediaStream) (*MediaStreamSource, error) {
	if c.Closed() {
		return nil, ErrContextClosed
	}
	if stream == nil {
		return nil, errors.New("media stream is nil")
	}
	if stream.Stopped() {
		return nil, ErrStreamStopped
	}

	var out beep.Streamer = stream
	if stream.SampleRate() != c.sampleRate {
		out = beep.Resample(4, stream.SampleRate(), c.sampleRate, stream)
	}
	return &MediaStreamSource{ctx: c, stream: stream, out: out}, nil
}

// Context returns the owning context
func (s *MediaStreamSource) Context() *Context { return s.ctx }

// Stream returns the captured stream
func (s *MediaStreamSource) Stream() *MediaStream { return s.stream }

// Connect wires the source into dst
func (s *MediaStreamSource) Connect(dst Node) error { return s.port.connect(s, dst) }

// Disconnect detaches the downstream node
func (s *MediaStreamSource) Disconnect() { s.port.disconnect() }

func (s *MediaStreamSource) output() beep.Streamer { return s.out }

func (s *MediaStreamSource) setInput(beep.Streamer) error { return ErrNoInput }
