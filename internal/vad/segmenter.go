// Package vad segments a continuous PCM stream into discrete utterances
// using energy-based voice activity detection.
package vad

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MPBloo/LoopHR-iterate-Paris/internal/metrics"
)

// Config holds the segmentation thresholds.
type Config struct {
	// VolumeThreshold is the RMS volume (0-100 scale) above which the stream
	// counts as sound.
	VolumeThreshold float64
	// SilenceThreshold is how long volume must stay below the threshold
	// before a capture closes.
	SilenceThreshold time.Duration
	// MinRecordingDuration is the minimum capture length worth submitting.
	MinRecordingDuration time.Duration
	// SampleInterval is the cadence of the analysis tick.
	SampleInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.VolumeThreshold == 0 {
		c.VolumeThreshold = 5
	}
	if c.SilenceThreshold == 0 {
		c.SilenceThreshold = 2000 * time.Millisecond
	}
	if c.MinRecordingDuration == 0 {
		c.MinRecordingDuration = 1000 * time.Millisecond
	}
	if c.SampleInterval == 0 {
		c.SampleInterval = 500 * time.Millisecond
	}
	return c
}

// Utterance is a contiguous span of captured audio bounded by onset and
// sustained silence. The buffer is owned by the receiver of the callback.
type Utterance struct {
	Audio    []byte // PCM16LE
	Start    time.Time
	Duration time.Duration
}

// Recorder is an optional external capture device. The segmenter's state is
// authoritative; a recorder reporting active while the segmenter is idle is
// force-stopped to resynchronize.
type Recorder interface {
	Active() bool
	Stop()
}

// Segmenter converts a continuous audio stream into utterance boundaries.
// Feed may be called from any goroutine; analysis happens on the sampling
// tick.
type Segmenter struct {
	cfg         Config
	log         zerolog.Logger
	onUtterance func(Utterance)
	recorder    Recorder

	mu        sync.Mutex
	pending   []byte
	capturing bool
	buf       []byte
	startedAt time.Time
	lastSound time.Time
}

// New constructs a segmenter. onUtterance receives every closed utterance
// that passed the minimum-duration gate.
func New(cfg Config, log zerolog.Logger, onUtterance func(Utterance)) *Segmenter {
	return &Segmenter{cfg: cfg.withDefaults(), log: log, onUtterance: onUtterance}
}

// SetRecorder attaches an external recorder for the desynchronization check.
func (s *Segmenter) SetRecorder(r Recorder) {
	s.mu.Lock()
	s.recorder = r
	s.mu.Unlock()
}

// Feed appends PCM16LE audio to the current analysis window.
func (s *Segmenter) Feed(pcm []byte) {
	if len(pcm) < 2 {
		return
	}
	s.mu.Lock()
	s.pending = append(s.pending, pcm...)
	s.mu.Unlock()
}

// Run drives the sampling tick until the context is cancelled, then closes
// out any in-flight capture.
func (s *Segmenter) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case now := <-ticker.C:
			s.step(now)
		}
	}
}

// Capturing reports whether an utterance is currently open.
func (s *Segmenter) Capturing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturing
}

// step runs one analysis tick over the audio fed since the previous tick.
func (s *Segmenter) step(now time.Time) {
	s.mu.Lock()
	window := s.pending
	s.pending = nil
	vol := Volume(window)

	if !s.capturing {
		if s.recorder != nil && s.recorder.Active() {
			// Recorder drifted from the state machine; force it back.
			s.log.Warn().Msg("recorder active while segmenter idle, forcing stop")
			s.recorder.Stop()
		}
		if vol > s.cfg.VolumeThreshold {
			s.capturing = true
			s.startedAt = now
			s.lastSound = now
			s.buf = append(s.buf[:0], window...)
		}
		s.mu.Unlock()
		return
	}

	s.buf = append(s.buf, window...)
	if vol >= s.cfg.VolumeThreshold {
		s.lastSound = now
		s.mu.Unlock()
		return
	}

	silence := now.Sub(s.lastSound)
	duration := now.Sub(s.startedAt)
	if silence > s.cfg.SilenceThreshold && duration > s.cfg.MinRecordingDuration {
		u := Utterance{Audio: s.buf, Start: s.startedAt, Duration: duration}
		s.buf = nil
		s.capturing = false
		cb := s.onUtterance
		s.mu.Unlock()
		metrics.UtterancesClosed.Inc()
		if cb != nil {
			cb(u)
		}
		return
	}
	s.mu.Unlock()
}

// Stop closes any in-flight capture. Captures shorter than the minimum
// recording duration are discarded silently.
func (s *Segmenter) Stop() {
	s.mu.Lock()
	if !s.capturing {
		s.pending = nil
		s.mu.Unlock()
		return
	}
	duration := time.Since(s.startedAt)
	u := Utterance{Audio: s.buf, Start: s.startedAt, Duration: duration}
	s.buf = nil
	s.pending = nil
	s.capturing = false
	cb := s.onUtterance
	s.mu.Unlock()

	if duration < s.cfg.MinRecordingDuration {
		metrics.UtterancesDiscarded.Inc()
		return
	}
	metrics.UtterancesClosed.Inc()
	if cb != nil {
		cb(u)
	}
}

// Volume computes the RMS volume of a PCM16LE buffer: each sample is
// normalized to [-1, 1], squared, averaged, rooted, and scaled by 100. The
// result is a percentage-like figure, not calibrated to dBFS.
func Volume(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		f := float64(v) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum/float64(n)) * 100
}
