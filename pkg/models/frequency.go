package models

import (
	"math"
	"sort"
	"strconv"
)

// BandLayout is the ordered set of equalizer centre frequencies in Hz
type BandLayout []int

var (
	// TenBandLayout matches the octave sliders of the settings UI
	TenBandLayout = BandLayout{32, 64, 125, 250, 500, 1000, 2000, 4000, 8000, 16000}

	// TwentyBandLayout is the finer-grained layout
	TwentyBandLayout = BandLayout{
		32, 45, 63, 87, 123, 173, 243, 341, 479, 672,
		944, 1325, 1860, 2610, 3663, 5141, 7216, 10126, 14212, 16000,
	}
)

// DefaultGainLimit is the maximum boost or cut per band in dB
const DefaultGainLimit = 15.0

// LayoutByName returns a band layout by its band count ("10" or "20")
func LayoutByName(name string) (BandLayout, bool) {
	switch name {
	case "10", "":
		return TenBandLayout, true
	case "20":
		return TwentyBandLayout, true
	}
	return nil, false
}

// Contains reports whether freq is one of the layout's bands
func (l BandLayout) Contains(freq int) bool {
	for _, f := range l {
		if f == freq {
			return true
		}
	}
	return false
}

// Label formats a frequency the way the sliders show it (32, 500, 1k, 16k)
func Label(freq int) string {
	if freq < 1000 {
		return strconv.Itoa(freq)
	}
	return strconv.FormatFloat(float64(freq)/1000, 'f', -1, 64) + "k"
}

// GainProfile maps a band frequency (Hz) to a gain in dB
type GainProfile map[int]float64

// Flat returns an all-zero profile for the layout
func Flat(layout BandLayout) GainProfile {
	p := make(GainProfile, len(layout))
	for _, f := range layout {
		p[f] = 0
	}
	return p
}

// Normalize returns a profile with exactly one value per layout band.
// Missing bands get 0 dB, unknown frequencies are dropped and values are
// clamped to +-limit. NaN is treated as 0.
func (p GainProfile) Normalize(layout BandLayout, limit float64) GainProfile {
	out := make(GainProfile, len(layout))
	for _, f := range layout {
		v := p[f]
		if math.IsNaN(v) {
			v = 0
		}
		out[f] = clamp(v, limit)
	}
	return out
}

// Clone copies the profile
func (p GainProfile) Clone() GainProfile {
	if p == nil {
		return nil
	}
	out := make(GainProfile, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Equal reports whether both profiles hold the same values within tolerance
func (p GainProfile) Equal(other GainProfile, tolerance float64) bool {
	if len(p) != len(other) {
		return false
	}
	for k, v := range p {
		o, ok := other[k]
		if !ok || math.Abs(o-v) > tolerance {
			return false
		}
	}
	return true
}

// Frequencies returns the profile's keys in ascending order
func (p GainProfile) Frequencies() []int {
	out := make([]int, 0, len(p))
	for f := range p {
		out = append(out, f)
	}
	sort.Ints(out)
	return out
}

// Wire converts the profile to its JSON shape with decimal string keys
func (p GainProfile) Wire() map[string]float64 {
	out := make(map[string]float64, len(p))
	for f, v := range p {
		out[strconv.Itoa(f)] = v
	}
	return out
}

// ParseGainProfile converts the wire shape into a profile. Keys that are not
// integral frequencies are ignored.
func ParseGainProfile(wire map[string]float64) GainProfile {
	out := make(GainProfile, len(wire))
	for k, v := range wire {
		f, err := strconv.Atoi(k)
		if err != nil || f <= 0 {
			continue
		}
		out[f] = v
	}
	return out
}

func clamp(v, limit float64) float64 {
	if limit <= 0 {
		return v
	}
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
