package processing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/generators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/tabeq/internal/audio/graph"
	"github.com/RMahshie/tabeq/internal/host"
	"github.com/RMahshie/tabeq/pkg/models"
)

const testRate = beep.SampleRate(48000)

// fakeDevices hands out sine streams and records what it issued
type fakeDevices struct {
	mu      sync.Mutex
	streams map[string]*graph.MediaStream
	err     error
	block   chan struct{}
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{streams: make(map[string]*graph.MediaStream)}
}

func (f *fakeDevices) GetUserMedia(ctx context.Context, streamID string) (*graph.MediaStream, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	tone, err := generators.SineTone(testRate, 440)
	if err != nil {
		return nil, err
	}
	s := graph.NewPullStream(streamID, testRate, tone)
	f.mu.Lock()
	f.streams[streamID] = s
	f.mu.Unlock()
	return s, nil
}

func (f *fakeDevices) stream(id string) *graph.MediaStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[id]
}

func startManager(t *testing.T, devices host.MediaDevices) (*Manager, *graph.RenderSink) {
	t.Helper()
	sink := &graph.RenderSink{}
	m := NewManager(devices, Config{SampleRate: testRate, Bands: models.TenBandLayout, Sink: sink})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return m, sink
}

func TestStartAndStop(t *testing.T) {
	devices := newFakeDevices()
	m, sink := startManager(t, devices)
	ctx := context.Background()

	assert.Equal(t, Idle, m.State())

	gains := models.GainProfile{1000: 6}
	require.NoError(t, m.Start(ctx, "stream-1", gains))
	assert.Equal(t, Active, m.State())
	assert.Equal(t, 1, sink.Len())
	assert.Equal(t, 6.0, m.Gains()[1000])
	assert.Equal(t, 0.0, m.Gains()[32])

	out := sink.Render(1024)
	assert.NotZero(t, out[100][0])

	require.NoError(t, m.Stop(ctx))
	assert.Equal(t, Idle, m.State())
	assert.Nil(t, m.Gains())
	assert.True(t, devices.stream("stream-1").Stopped())
	assert.Equal(t, 0, sink.Len())

	// stopping while idle is a no-op
	require.NoError(t, m.Stop(ctx))
	assert.Equal(t, Idle, m.State())
}

func TestStartCaptureFailure(t *testing.T) {
	devices := newFakeDevices()
	devices.err = errors.New("tab capture denied")
	m, sink := startManager(t, devices)

	err := m.Start(context.Background(), "stream-1", nil)
	assert.ErrorIs(t, err, ErrCaptureFailure)
	assert.Contains(t, err.Error(), "tab capture denied")
	assert.Equal(t, Idle, m.State())
	assert.Equal(t, 0, sink.Len())
}

func TestStartGraphFailureReleasesStream(t *testing.T) {
	devices := newFakeDevices()
	sink := &graph.RenderSink{}
	m := NewManager(devices, Config{
		SampleRate: testRate,
		// descending frequencies cannot be built into a chain
		Bands: models.BandLayout{1000, 500},
		Sink:  sink,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	err := m.Start(context.Background(), "stream-1", nil)
	assert.ErrorIs(t, err, ErrGraphConstruction)
	assert.Equal(t, Idle, m.State())
	assert.True(t, devices.stream("stream-1").Stopped())
	assert.Equal(t, 0, sink.Len())
}

func TestStartCancelled(t *testing.T) {
	devices := newFakeDevices()
	devices.block = make(chan struct{})
	m, sink := startManager(t, devices)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- m.Start(ctx, "stream-1", nil) }()

	assert.Eventually(t, func() bool { return m.State() == Starting }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("start did not return after cancellation")
	}
	assert.Equal(t, Idle, m.State())
	assert.Equal(t, 0, sink.Len())
}

func TestStartReplacesActiveSession(t *testing.T) {
	devices := newFakeDevices()
	m, sink := startManager(t, devices)
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, "stream-1", nil))
	require.NoError(t, m.Start(ctx, "stream-2", models.GainProfile{32: -3}))

	assert.True(t, devices.stream("stream-1").Stopped())
	assert.False(t, devices.stream("stream-2").Stopped())
	assert.Equal(t, 1, sink.Len())
	assert.Equal(t, -3.0, m.Gains()[32])
}

func TestUpdateGains(t *testing.T) {
	m, sink := startManager(t, newFakeDevices())
	require.NoError(t, m.Start(context.Background(), "stream-1", nil))

	m.UpdateGains(models.GainProfile{1000: 3})
	m.UpdateGains(models.GainProfile{1000: 9, 16000: -4})

	assert.Eventually(t, func() bool {
		g := m.Gains()
		return g[1000] == 9 && g[16000] == -4
	}, time.Second, time.Millisecond)

	// the ramp settles within a few time constants
	sink.Render(testRate.N(200 * time.Millisecond))
	assert.Equal(t, 9.0, m.Gains()[1000])
}

func TestUpdateGainsCoalescesMessages(t *testing.T) {
	m := NewManager(newFakeDevices(), Config{Sink: &graph.RenderSink{}})

	m.UpdateGains(models.GainProfile{1000: 3})
	m.UpdateGains(models.GainProfile{1000: 9})

	msg := m.pending.Load()
	require.NotNil(t, msg)
	assert.Equal(t, UpdateGains, msg.Type)
	assert.Equal(t, 9.0, msg.Gains[1000])
	assert.Nil(t, msg.reply)
	assert.Len(t, m.gainsReady, 1)
}

func TestUpdateGainsIgnoredWhenIdle(t *testing.T) {
	m, _ := startManager(t, newFakeDevices())

	m.UpdateGains(models.GainProfile{1000: 3})
	require.NoError(t, m.Stop(context.Background()))

	require.NoError(t, m.Start(context.Background(), "stream-1", nil))
	assert.Equal(t, 0.0, m.Gains()[1000])
}

func TestRequestsAfterShutdown(t *testing.T) {
	m := NewManager(newFakeDevices(), Config{Sink: &graph.RenderSink{}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.NoError(t, m.Start(context.Background(), "stream-1", nil))
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, Idle, m.State())
	assert.ErrorIs(t, m.Start(context.Background(), "stream-2", nil), ErrNotRunning)
	assert.ErrorIs(t, m.Stop(context.Background()), ErrNotRunning)
	assert.Error(t, m.Run(context.Background()))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "starting", Starting.String())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "stopping", Stopping.String())
	assert.Equal(t, "unknown", State(42).String())
}
