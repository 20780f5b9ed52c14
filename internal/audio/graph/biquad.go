package graph

import (
	"fmt"
	"math"
	"sync"

	"github.com/gopxl/beep/v2"
)

// FilterType selects the biquad response
type FilterType string

const (
	LowShelf  FilterType = "lowshelf"
	HighShelf FilterType = "highshelf"
	Peaking   FilterType = "peaking"
)

// BiquadFilter is a second-order IIR filter node using the Audio EQ Cookbook
// responses. Q is ignored by the shelving types, whose slope is fixed at 1.
type BiquadFilter struct {
	ctx *Context
	typ FilterType
	port

	Frequency *Param
	Q         *Param
	Gain      *Param

	mu     sync.Mutex
	coeffs biquadCoefficients
	last   [3]float64
	primed bool
	state  [2]biquadState
}

type biquadCoefficients struct {
	b0, b1, b2, a1, a2 float64
}

type biquadState struct {
	x1, x2, y1, y2 float64
}

// NewBiquadFilter creates a filter with the given type, all params at defaults
// (350 Hz, Q 1, 0 dB)
func (c *Context) NewBiquadFilter(typ FilterType) (*BiquadFilter, error) {
	if c.Closed() {
		return nil, ErrContextClosed
	}
	switch typ {
	case LowShelf, HighShelf, Peaking:
	default:
		return nil, fmt.Errorf("unsupported filter type %q", typ)
	}

	nyquist := float64(c.sampleRate) / 2
	return &BiquadFilter{
		ctx:       c,
		typ:       typ,
		Frequency: newParam(c, 350, 0, nyquist),
		Q:         newParam(c, 1, 1e-4, 1000),
		Gain:      newParam(c, 0, -40, 40),
	}, nil
}

// Type returns the filter response type
func (f *BiquadFilter) Type() FilterType { return f.typ }

// Context returns the owning context
func (f *BiquadFilter) Context() *Context { return f.ctx }

// Connect wires the filter output into dst
func (f *BiquadFilter) Connect(dst Node) error { return f.port.connect(f, dst) }

// Disconnect detaches the downstream node
func (f *BiquadFilter) Disconnect() { f.port.disconnect() }

func (f *BiquadFilter) output() beep.Streamer { return f }

// Stream pulls one block from the input and filters it in place
func (f *BiquadFilter) Stream(samples [][2]float64) (int, bool) {
	pull(f.getInput(), samples)

	t := f.ctx.CurrentTime()
	freq, q, gain := f.Frequency.ValueAt(t), f.Q.ValueAt(t), f.Gain.ValueAt(t)

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.primed || f.last != [3]float64{freq, q, gain} {
		f.coeffs = f.compute(freq, q, gain)
		f.last = [3]float64{freq, q, gain}
		f.primed = true
	}

	c := f.coeffs
	for i := range samples {
		for ch := 0; ch < 2; ch++ {
			s := &f.state[ch]
			x := samples[i][ch]
			y := c.b0*x + c.b1*s.x1 + c.b2*s.x2 - c.a1*s.y1 - c.a2*s.y2
			s.x2, s.x1 = s.x1, x
			s.y2, s.y1 = s.y1, y
			samples[i][ch] = y
		}
	}
	return len(samples), true
}

// Err implements beep.Streamer
func (f *BiquadFilter) Err() error { return nil }

// Coefficients returns the normalized coefficients for the current values
func (f *BiquadFilter) Coefficients() (b0, b1, b2, a1, a2 float64) {
	t := f.ctx.CurrentTime()
	c := f.compute(f.Frequency.ValueAt(t), f.Q.ValueAt(t), f.Gain.ValueAt(t))
	return c.b0, c.b1, c.b2, c.a1, c.a2
}

func (f *BiquadFilter) compute(freq, q, gain float64) biquadCoefficients {
	nyquist := float64(f.ctx.sampleRate) / 2
	freq = math.Min(math.Max(freq, 1), nyquist*0.999)

	a := math.Pow(10, gain/40)
	w0 := 2 * math.Pi * freq / float64(f.ctx.sampleRate)
	cos, sin := math.Cos(w0), math.Sin(w0)

	var b0, b1, b2, a0, a1, a2 float64
	switch f.typ {
	case Peaking:
		alpha := sin / (2 * q)
		b0 = 1 + alpha*a
		b1 = -2 * cos
		b2 = 1 - alpha*a
		a0 = 1 + alpha/a
		a1 = -2 * cos
		a2 = 1 - alpha/a
	case LowShelf:
		k := 2 * math.Sqrt(a) * sin / 2 * math.Sqrt2
		b0 = a * ((a + 1) - (a-1)*cos + k)
		b1 = 2 * a * ((a - 1) - (a+1)*cos)
		b2 = a * ((a + 1) - (a-1)*cos - k)
		a0 = (a + 1) + (a-1)*cos + k
		a1 = -2 * ((a - 1) + (a+1)*cos)
		a2 = (a + 1) + (a-1)*cos - k
	case HighShelf:
		k := 2 * math.Sqrt(a) * sin / 2 * math.Sqrt2
		b0 = a * ((a + 1) + (a-1)*cos + k)
		b1 = -2 * a * ((a - 1) + (a+1)*cos)
		b2 = a * ((a + 1) + (a-1)*cos - k)
		a0 = (a + 1) - (a-1)*cos + k
		a1 = 2 * ((a - 1) - (a+1)*cos)
		a2 = (a + 1) - (a-1)*cos - k
	}

	return biquadCoefficients{
		b0: b0 / a0,
		b1: b1 / a0,
		b2: b2 / a0,
		a1: a1 / a0,
		a2: a2 / a0,
	}
}
