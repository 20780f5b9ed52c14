// Package filterchain builds the equalizer: one biquad per band, shelving at
// the two ends and peaking in between, wired in series.
package filterchain

import (
	"errors"
	"fmt"
	"time"

	"github.com/RMahshie/tabeq/internal/audio/graph"
	"github.com/RMahshie/tabeq/pkg/models"
)

const (
	// DefaultQ is the resonance of the peaking bands
	DefaultQ = 1.41

	// DefaultRamp is the time constant of gain transitions
	DefaultRamp = 15 * time.Millisecond
)

// Options tunes the chain
type Options struct {
	Q    float64
	Ramp time.Duration
}

func (o Options) withDefaults() Options {
	if o.Q <= 0 {
		o.Q = DefaultQ
	}
	if o.Ramp <= 0 {
		o.Ramp = DefaultRamp
	}
	return o
}

// Band is one filter of the chain
type Band struct {
	Frequency int
	Filter    *graph.BiquadFilter
}

// Chain is an ordered series of band filters
type Chain struct {
	ctx   *graph.Context
	opts  Options
	bands []Band
}

// TypeFor returns the filter shape for band index i of n
func TypeFor(i, n int) graph.FilterType {
	switch {
	case i == 0:
		return graph.LowShelf
	case i == n-1:
		return graph.HighShelf
	default:
		return graph.Peaking
	}
}

// Build creates one filter per frequency, initialises its gain from
// initialGains (0 dB when absent) and connects input → bands → output.
func Build(ctx *graph.Context, input, output graph.Node, frequencies []int, initialGains models.GainProfile, opts Options) (*Chain, error) {
	if ctx == nil {
		return nil, errors.New("audio context is nil")
	}
	if len(frequencies) == 0 {
		return nil, errors.New("no band frequencies")
	}
	for i := 1; i < len(frequencies); i++ {
		if frequencies[i] <= frequencies[i-1] {
			return nil, fmt.Errorf("band frequencies must ascend: %d after %d", frequencies[i], frequencies[i-1])
		}
	}
	opts = opts.withDefaults()

	c := &Chain{ctx: ctx, opts: opts, bands: make([]Band, 0, len(frequencies))}
	for i, freq := range frequencies {
		f, err := ctx.NewBiquadFilter(TypeFor(i, len(frequencies)))
		if err != nil {
			c.Disconnect()
			return nil, fmt.Errorf("failed to create %d Hz filter: %w", freq, err)
		}
		f.Frequency.SetValue(float64(freq))
		f.Q.SetValue(opts.Q)
		f.Gain.SetValue(initialGains[freq])
		c.bands = append(c.bands, Band{Frequency: freq, Filter: f})
	}

	for i := 0; i < len(c.bands)-1; i++ {
		if err := c.bands[i].Filter.Connect(c.bands[i+1].Filter); err != nil {
			c.Disconnect()
			return nil, fmt.Errorf("failed to connect bands: %w", err)
		}
	}
	if input != nil {
		if err := input.Connect(c.bands[0].Filter); err != nil {
			c.Disconnect()
			return nil, fmt.Errorf("failed to connect chain input: %w", err)
		}
	}
	if output != nil {
		if err := c.bands[len(c.bands)-1].Filter.Connect(output); err != nil {
			if input != nil {
				input.Disconnect()
			}
			c.Disconnect()
			return nil, fmt.Errorf("failed to connect chain output: %w", err)
		}
	}
	return c, nil
}

// UpdateGains ramps every band towards gains[frequency], keeping the current
// target for bands the profile omits. A nil chain is a no-op.
func (c *Chain) UpdateGains(gains models.GainProfile) {
	if c == nil || gains == nil {
		return
	}
	now := c.ctx.CurrentTime()
	tc := c.opts.Ramp.Seconds()
	for _, b := range c.bands {
		target, ok := gains[b.Frequency]
		if !ok {
			target = b.Filter.Gain.Target()
		}
		b.Filter.Gain.SetTargetAtTime(target, now, tc)
	}
}

// Gains returns the current gain of every band
func (c *Chain) Gains() models.GainProfile {
	if c == nil {
		return nil
	}
	out := make(models.GainProfile, len(c.bands))
	for _, b := range c.bands {
		out[b.Frequency] = b.Filter.Gain.Value()
	}
	return out
}

// Targets returns the gain every band is heading towards
func (c *Chain) Targets() models.GainProfile {
	if c == nil {
		return nil
	}
	out := make(models.GainProfile, len(c.bands))
	for _, b := range c.bands {
		out[b.Frequency] = b.Filter.Gain.Target()
	}
	return out
}

// Bands returns the chain's filters in order
func (c *Chain) Bands() []Band {
	if c == nil {
		return nil
	}
	return append([]Band(nil), c.bands...)
}

// Disconnect detaches every filter. A nil chain is a no-op.
func (c *Chain) Disconnect() {
	if c == nil {
		return
	}
	for _, b := range c.bands {
		b.Filter.Disconnect()
	}
}
