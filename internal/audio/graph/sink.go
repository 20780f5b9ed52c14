package graph

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

// Sink pulls rendered audio from a context's destination
type Sink interface {
	Play(sampleRate beep.SampleRate, s beep.Streamer) error
	Remove(s beep.Streamer) error
}

// SpeakerSink plays through the default output device. The device is opened
// on first use at that context's sample rate; later contexts at a different
// rate are resampled.
type SpeakerSink struct {
	BufferDuration time.Duration

	mu         sync.Mutex
	sampleRate beep.SampleRate
}

// Play starts pulling s on the speaker
func (k *SpeakerSink) Play(sampleRate beep.SampleRate, s beep.Streamer) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.sampleRate == 0 {
		buf := k.BufferDuration
		if buf <= 0 {
			buf = 50 * time.Millisecond
		}
		if err := speaker.Init(sampleRate, sampleRate.N(buf)); err != nil {
			return fmt.Errorf("failed to open output device: %w", err)
		}
		k.sampleRate = sampleRate
		log.Info().Int("sampleRate", int(sampleRate)).Dur("buffer", buf).Msg("Output device opened")
	}

	if sampleRate != k.sampleRate {
		s = beep.Resample(4, sampleRate, k.sampleRate, s)
	}
	speaker.Play(s)
	return nil
}

// Remove is a no-op: a closed destination ends its stream and the speaker
// mixer drops it on the next pull.
func (k *SpeakerSink) Remove(beep.Streamer) error { return nil }

// Close releases the output device
func (k *SpeakerSink) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.sampleRate != 0 {
		speaker.Clear()
		speaker.Close()
		k.sampleRate = 0
	}
}

// NullSink renders in real time and discards the output. It keeps the
// context clock running on machines without an audio device.
type NullSink struct {
	Block time.Duration

	mu      sync.Mutex
	running map[beep.Streamer]chan struct{}
}

// Play starts a render loop for s
func (k *NullSink) Play(sampleRate beep.SampleRate, s beep.Streamer) error {
	block := k.Block
	if block <= 0 {
		block = 10 * time.Millisecond
	}

	done := make(chan struct{})
	k.mu.Lock()
	if k.running == nil {
		k.running = make(map[beep.Streamer]chan struct{})
	}
	k.running[s] = done
	k.mu.Unlock()

	go func() {
		buf := make([][2]float64, sampleRate.N(block))
		ticker := time.NewTicker(block)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if _, ok := s.Stream(buf); !ok {
					k.forget(s)
					return
				}
			}
		}
	}()
	return nil
}

// Remove stops the render loop for s
func (k *NullSink) Remove(s beep.Streamer) error {
	k.mu.Lock()
	done, ok := k.running[s]
	delete(k.running, s)
	k.mu.Unlock()
	if ok {
		close(done)
	}
	return nil
}

func (k *NullSink) forget(s beep.Streamer) {
	k.mu.Lock()
	delete(k.running, s)
	k.mu.Unlock()
}

// RenderSink renders only when asked to. Tests use it to drive the clock.
type RenderSink struct {
	mu      sync.Mutex
	streams []beep.Streamer
}

// Play registers s
func (k *RenderSink) Play(_ beep.SampleRate, s beep.Streamer) error {
	k.mu.Lock()
	k.streams = append(k.streams, s)
	k.mu.Unlock()
	return nil
}

// Remove unregisters s
func (k *RenderSink) Remove(s beep.Streamer) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i, st := range k.streams {
		if st == s {
			k.streams = append(k.streams[:i], k.streams[i+1:]...)
			break
		}
	}
	return nil
}

// Render pulls frames from every registered stream and returns their mix
func (k *RenderSink) Render(frames int) [][2]float64 {
	k.mu.Lock()
	streams := append([]beep.Streamer(nil), k.streams...)
	k.mu.Unlock()

	out := make([][2]float64, frames)
	buf := make([][2]float64, frames)
	for _, s := range streams {
		n, ok := s.Stream(buf)
		if !ok {
			_ = k.Remove(s)
			continue
		}
		for i := 0; i < n; i++ {
			out[i][0] += buf[i][0]
			out[i][1] += buf[i][1]
		}
	}
	return out
}

// Len returns the number of registered streams
func (k *RenderSink) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.streams)
}
