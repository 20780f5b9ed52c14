package graph

import (
	"math"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = beep.SampleRate(48000)

func newTestContext(t *testing.T) (*Context, *RenderSink) {
	t.Helper()
	sink := &RenderSink{}
	ctx, err := NewContext(testRate, sink)
	require.NoError(t, err)
	return ctx, sink
}

// sine returns a pull stream producing a stereo sine at freq
func sine(freq float64) *MediaStream {
	phase := 0.0
	step := 2 * math.Pi * freq / float64(testRate)
	return NewPullStream("sine", testRate, beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			v := 0.5 * math.Sin(phase)
			samples[i] = [2]float64{v, v}
			phase += step
		}
		return len(samples), true
	}))
}

func TestContextClock(t *testing.T) {
	ctx, sink := newTestContext(t)

	assert.Equal(t, 0.0, ctx.CurrentTime())
	sink.Render(4800)
	assert.InDelta(t, 0.1, ctx.CurrentTime(), 1e-9)

	require.NoError(t, ctx.Close())
	require.NoError(t, ctx.Close())
	assert.True(t, ctx.Closed())
	assert.Equal(t, 0, sink.Len())

	_, err := ctx.NewBiquadFilter(Peaking)
	assert.ErrorIs(t, err, ErrContextClosed)
}

func TestNewContextValidation(t *testing.T) {
	_, err := NewContext(0, &RenderSink{})
	assert.Error(t, err)

	_, err = NewContext(testRate, nil)
	assert.Error(t, err)
}

func TestBiquadTransparentAtZeroGain(t *testing.T) {
	for _, typ := range []FilterType{LowShelf, Peaking, HighShelf} {
		t.Run(string(typ), func(t *testing.T) {
			ctx, sink := newTestContext(t)
			src, err := ctx.NewMediaStreamSource(sine(440))
			require.NoError(t, err)
			f, err := ctx.NewBiquadFilter(typ)
			require.NoError(t, err)
			f.Frequency.SetValue(1000)
			f.Q.SetValue(1.41)

			require.NoError(t, src.Connect(f))
			require.NoError(t, f.Connect(ctx.Destination()))

			out := sink.Render(1024)
			ref := sine(440)
			want := make([][2]float64, 1024)
			ref.Stream(want)

			for i := range out {
				assert.InDelta(t, want[i][0], out[i][0], 1e-9)
				assert.InDelta(t, want[i][1], out[i][1], 1e-9)
			}
		})
	}
}

func TestBiquadPeakingBoostsCentre(t *testing.T) {
	ctx, sink := newTestContext(t)
	src, err := ctx.NewMediaStreamSource(sine(1000))
	require.NoError(t, err)
	f, err := ctx.NewBiquadFilter(Peaking)
	require.NoError(t, err)
	f.Frequency.SetValue(1000)
	f.Q.SetValue(1.41)
	f.Gain.SetValue(12)

	require.NoError(t, src.Connect(f))
	require.NoError(t, f.Connect(ctx.Destination()))

	// let the filter settle, then measure the peak amplitude
	sink.Render(4800)
	out := sink.Render(4800)
	peak := 0.0
	for _, s := range out {
		peak = math.Max(peak, math.Abs(s[0]))
	}

	// +12 dB is a factor of ~3.98 on the 0.5 input amplitude
	assert.InDelta(t, 0.5*math.Pow(10, 12.0/20), peak, 0.02)
}

func TestBiquadShelfCoefficients(t *testing.T) {
	ctx, _ := newTestContext(t)

	low, err := ctx.NewBiquadFilter(LowShelf)
	require.NoError(t, err)
	low.Frequency.SetValue(32)
	low.Gain.SetValue(6)

	b0, b1, b2, a1, a2 := low.Coefficients()
	// DC gain of a low shelf equals the shelf gain
	dc := (b0 + b1 + b2) / (1 + a1 + a2)
	assert.InDelta(t, math.Pow(10, 6.0/20), dc, 1e-6)

	high, err := ctx.NewBiquadFilter(HighShelf)
	require.NoError(t, err)
	high.Frequency.SetValue(16000)
	high.Gain.SetValue(-6)

	b0, b1, b2, a1, a2 = high.Coefficients()
	// the Nyquist gain of a high shelf equals the shelf gain
	ny := (b0 - b1 + b2) / (1 - a1 + a2)
	assert.InDelta(t, math.Pow(10, -6.0/20), ny, 1e-6)
}

func TestUnsupportedFilterType(t *testing.T) {
	ctx, _ := newTestContext(t)
	_, err := ctx.NewBiquadFilter(FilterType("bandpass"))
	assert.Error(t, err)
}

func TestParamSetTargetAtTime(t *testing.T) {
	ctx, sink := newTestContext(t)
	p := newParam(ctx, 0, -40, 40)

	p.SetTargetAtTime(10, 0, 0.015)
	assert.Equal(t, 10.0, p.Target())
	assert.Equal(t, 0.0, p.Value())

	// one time constant covers ~63% of the distance
	assert.InDelta(t, 10*(1-math.Exp(-1)), p.ValueAt(0.015), 1e-9)

	sink.Render(testRate.N(300 * time.Millisecond)) // 20 time constants
	assert.InDelta(t, 10, p.Value(), 1e-6)

	// retargeting mid-curve starts from the current value
	now := ctx.CurrentTime()
	p.SetTargetAtTime(-5, now, 0.015)
	assert.InDelta(t, 10, p.ValueAt(now), 1e-6)
	assert.InDelta(t, -5, p.ValueAt(now+1), 1e-6)

	p.SetTargetAtTime(3, now, 0)
	assert.Equal(t, 3.0, p.ValueAt(now))

	p.SetValue(100)
	assert.Equal(t, 40.0, p.Value())
}

func TestConnectDisconnect(t *testing.T) {
	ctx, sink := newTestContext(t)
	src, err := ctx.NewMediaStreamSource(sine(440))
	require.NoError(t, err)

	require.NoError(t, src.Connect(ctx.Destination()))
	out := sink.Render(64)
	assert.NotZero(t, out[10][0])

	src.Disconnect()
	out = sink.Render(64)
	for _, s := range out {
		assert.Zero(t, s[0])
	}

	assert.Error(t, ctx.Destination().Connect(src))

	other, _ := newTestContext(t)
	f, err := other.NewBiquadFilter(Peaking)
	require.NoError(t, err)
	assert.Error(t, src.Connect(f))
	assert.ErrorIs(t, f.Connect(src), ErrNoInput)
}

func TestReconnectReplacesDownstream(t *testing.T) {
	ctx, _ := newTestContext(t)
	src, err := ctx.NewMediaStreamSource(sine(440))
	require.NoError(t, err)
	a, _ := ctx.NewBiquadFilter(Peaking)
	b, _ := ctx.NewBiquadFilter(Peaking)

	require.NoError(t, src.Connect(a))
	require.NoError(t, src.Connect(b))

	assert.Nil(t, a.getInput())
	assert.NotNil(t, b.getInput())
}

func TestPushStream(t *testing.T) {
	s := NewPushStream("tab", testRate, 4)

	require.NoError(t, s.Write([][2]float64{{1, 1}, {2, 2}, {3, 3}}))
	require.NoError(t, s.Write([][2]float64{{4, 4}, {5, 5}}))
	assert.Equal(t, 1, s.Dropped())

	buf := make([][2]float64, 6)
	n, ok := s.Stream(buf)
	assert.True(t, ok)
	assert.Equal(t, 6, n)
	assert.Equal(t, [][2]float64{{2, 2}, {3, 3}, {4, 4}, {5, 5}, {0, 0}, {0, 0}}, buf)

	stops := 0
	s.OnStop(func() { stops++ })
	s.Stop()
	s.Stop()
	assert.Equal(t, 1, stops)
	assert.True(t, s.Stopped())

	_, ok = s.Stream(buf)
	assert.False(t, ok)
	assert.ErrorIs(t, s.Write(buf), ErrStreamStopped)

	s.OnStop(func() { stops++ })
	assert.Equal(t, 2, stops)
}

func TestSourceResamples(t *testing.T) {
	ctx, sink := newTestContext(t)
	stream := NewPushStream("tab", 44100, 0)
	src, err := ctx.NewMediaStreamSource(stream)
	require.NoError(t, err)
	require.NoError(t, src.Connect(ctx.Destination()))
	_, resampled := src.output().(*beep.Resampler)
	assert.True(t, resampled)

	sink.Render(128)

	stream.Stop()
	_, err = ctx.NewMediaStreamSource(stream)
	assert.ErrorIs(t, err, ErrStreamStopped)
}
