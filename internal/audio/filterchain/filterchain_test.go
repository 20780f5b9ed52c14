package filterchain

import (
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/tabeq/internal/audio/graph"
	"github.com/RMahshie/tabeq/pkg/models"
)

const rate = beep.SampleRate(48000)

func setup(t *testing.T) (*graph.Context, *graph.RenderSink, *graph.MediaStreamSource) {
	t.Helper()
	sink := &graph.RenderSink{}
	ctx, err := graph.NewContext(rate, sink)
	require.NoError(t, err)
	src, err := ctx.NewMediaStreamSource(graph.NewPushStream("tab-1", rate, 0))
	require.NoError(t, err)
	return ctx, sink, src
}

func TestBuildFilterTypes(t *testing.T) {
	ctx, _, src := setup(t)

	chain, err := Build(ctx, src, ctx.Destination(), models.TenBandLayout, models.GainProfile{32: 3, 1000: -4.5}, Options{})
	require.NoError(t, err)

	bands := chain.Bands()
	require.Len(t, bands, len(models.TenBandLayout))
	for i, b := range bands {
		assert.Equal(t, models.TenBandLayout[i], b.Frequency)
		assert.Equal(t, float64(b.Frequency), b.Filter.Frequency.Value())
		assert.Equal(t, DefaultQ, b.Filter.Q.Value())
		switch i {
		case 0:
			assert.Equal(t, graph.LowShelf, b.Filter.Type())
		case len(bands) - 1:
			assert.Equal(t, graph.HighShelf, b.Filter.Type())
		default:
			assert.Equal(t, graph.Peaking, b.Filter.Type())
		}
	}

	gains := chain.Gains()
	assert.Equal(t, 3.0, gains[32])
	assert.Equal(t, -4.5, gains[1000])
	assert.Equal(t, 0.0, gains[16000])
}

func TestBuildValidation(t *testing.T) {
	ctx, _, src := setup(t)

	_, err := Build(ctx, src, ctx.Destination(), nil, nil, Options{})
	assert.Error(t, err)

	_, err = Build(ctx, src, ctx.Destination(), []int{100, 50}, nil, Options{})
	assert.Error(t, err)

	_, err = Build(nil, src, nil, models.TenBandLayout, nil, Options{})
	assert.Error(t, err)

	require.NoError(t, ctx.Close())
	_, err = Build(ctx, nil, nil, models.TenBandLayout, nil, Options{})
	assert.ErrorIs(t, err, graph.ErrContextClosed)
}

func TestUpdateGainsSettles(t *testing.T) {
	for _, layout := range []models.BandLayout{models.TenBandLayout, models.TwentyBandLayout} {
		ctx, sink, src := setup(t)
		chain, err := Build(ctx, src, ctx.Destination(), layout, nil, Options{Q: 4})
		require.NoError(t, err)

		profile := models.GainProfile{}
		for i, f := range layout {
			profile[f] = float64(i%7) - 3.5
		}

		chain.UpdateGains(profile)
		assert.True(t, chain.Targets().Equal(profile, 1e-9))

		// gains ramp rather than step
		assert.True(t, chain.Gains().Equal(models.Flat(layout), 1e-9))

		sink.Render(rate.N(300 * time.Millisecond))
		assert.True(t, chain.Gains().Equal(profile, 1e-4), "gains %v", chain.Gains())
	}
}

func TestUpdateGainsKeepsAbsentBands(t *testing.T) {
	ctx, sink, src := setup(t)
	chain, err := Build(ctx, src, ctx.Destination(), models.TenBandLayout, models.GainProfile{64: 6}, Options{Ramp: time.Millisecond})
	require.NoError(t, err)

	chain.UpdateGains(models.GainProfile{32: -2, 99: 10})
	sink.Render(rate.N(50 * time.Millisecond))

	gains := chain.Gains()
	assert.InDelta(t, -2, gains[32], 1e-6)
	assert.InDelta(t, 6, gains[64], 1e-6)
	_, ok := gains[99]
	assert.False(t, ok)
}

func TestNilChainIsNoop(t *testing.T) {
	var chain *Chain
	assert.NotPanics(t, func() {
		chain.UpdateGains(models.GainProfile{32: 1})
		chain.Disconnect()
	})
	assert.Nil(t, chain.Gains())
	assert.Nil(t, chain.Bands())
}

func TestDisconnectSilencesOutput(t *testing.T) {
	ctx, sink, src := setup(t)
	stream := src.Stream()
	chain, err := Build(ctx, src, ctx.Destination(), models.TenBandLayout, nil, Options{})
	require.NoError(t, err)

	frames := make([][2]float64, 256)
	for i := range frames {
		frames[i] = [2]float64{0.25, 0.25}
	}
	require.NoError(t, stream.Write(frames))
	out := sink.Render(256)
	assert.NotZero(t, out[200][0])

	src.Disconnect()
	chain.Disconnect()
	require.NoError(t, stream.Write(frames))
	out = sink.Render(256)
	for _, s := range out {
		assert.Zero(t, s[0])
	}
}

func TestTypeFor(t *testing.T) {
	assert.Equal(t, graph.LowShelf, TypeFor(0, 3))
	assert.Equal(t, graph.Peaking, TypeFor(1, 3))
	assert.Equal(t, graph.HighShelf, TypeFor(2, 3))
}
