package vad

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func pcmTone(amplitude int16, durMs, sampleRate int) []byte {
	n := sampleRate * durMs / 1000
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(float64(amplitude) * math.Sin(2*math.Pi*220*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(out[i*2:(i+1)*2], uint16(v))
	}
	return out
}

func pcmSilence(durMs, sampleRate int) []byte {
	return make([]byte, sampleRate*durMs/1000*2)
}

func TestVolume_ScalesToPercentageFigure(t *testing.T) {
	if v := Volume(nil); v != 0 {
		t.Fatalf("empty buffer volume = %v, want 0", v)
	}
	if v := Volume(pcmSilence(100, 16000)); v != 0 {
		t.Fatalf("silence volume = %v, want 0", v)
	}
	loud := Volume(pcmTone(16000, 100, 16000))
	if loud < 20 || loud > 50 {
		t.Fatalf("tone volume = %v, want a mid-range figure", loud)
	}
}

func TestSegmenter_SingleUtteranceFromVolumeTrace(t *testing.T) {
	var got []Utterance
	s := New(Config{}, zerolog.Nop(), func(u Utterance) { got = append(got, u) })

	base := time.Now()
	tick := func(i int, pcm []byte) {
		s.Feed(pcm)
		s.step(base.Add(time.Duration(i) * 500 * time.Millisecond))
	}

	loud := pcmTone(16000, 500, 16000)
	quiet := pcmSilence(500, 16000)

	// silence, loud x3, silence x5 (spanning >2000ms of silence)
	tick(0, quiet)
	for i := 1; i <= 3; i++ {
		tick(i, loud)
	}
	for i := 4; i <= 8; i++ {
		tick(i, quiet)
	}

	if len(got) != 1 {
		t.Fatalf("expected exactly one utterance, got %d", len(got))
	}
	u := got[0]
	// capture opened at tick 1 and closed at tick 8
	if want := 3500 * time.Millisecond; u.Duration != want {
		t.Fatalf("duration = %v, want %v", u.Duration, want)
	}
	if len(u.Audio) == 0 {
		t.Fatalf("expected captured audio")
	}
	if s.Capturing() {
		t.Fatalf("expected segmenter back in idle after closure")
	}
}

func TestSegmenter_NoClosureBeforeBothGates(t *testing.T) {
	var got []Utterance
	s := New(Config{}, zerolog.Nop(), func(u Utterance) { got = append(got, u) })

	base := time.Now()
	loud := pcmTone(16000, 500, 16000)
	quiet := pcmSilence(500, 16000)

	s.Feed(loud)
	s.step(base)
	// 1500ms of silence: above min duration but below the silence threshold
	for i := 1; i <= 3; i++ {
		s.Feed(quiet)
		s.step(base.Add(time.Duration(i) * 500 * time.Millisecond))
	}
	if len(got) != 0 {
		t.Fatalf("expected no utterance before silence threshold, got %d", len(got))
	}
	if !s.Capturing() {
		t.Fatalf("expected capture to remain open")
	}
}

func TestSegmenter_StopDiscardsShortCapture(t *testing.T) {
	var got []Utterance
	s := New(Config{}, zerolog.Nop(), func(u Utterance) { got = append(got, u) })

	s.Feed(pcmTone(16000, 500, 16000))
	s.step(time.Now())
	if !s.Capturing() {
		t.Fatalf("expected capture to open")
	}
	// Stop immediately: duration is far below the minimum.
	s.Stop()
	if len(got) != 0 {
		t.Fatalf("expected short capture to be discarded, got %d utterances", len(got))
	}
	if s.Capturing() {
		t.Fatalf("expected idle after stop")
	}
}

type fakeRecorder struct {
	active  bool
	stopped bool
}

func (f *fakeRecorder) Active() bool { return f.active }
func (f *fakeRecorder) Stop()        { f.stopped = true; f.active = false }

func TestSegmenter_ForceStopsDesyncedRecorder(t *testing.T) {
	s := New(Config{}, zerolog.Nop(), nil)
	rec := &fakeRecorder{active: true}
	s.SetRecorder(rec)

	// Idle tick over silence: recorder claims active, segmenter says idle.
	s.Feed(pcmSilence(500, 16000))
	s.step(time.Now())
	if !rec.stopped {
		t.Fatalf("expected desynced recorder to be force-stopped")
	}
}
