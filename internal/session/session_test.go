package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"

	"github.com/MPBloo/LoopHR-iterate-Paris/internal/agent"
	"github.com/MPBloo/LoopHR-iterate-Paris/internal/signal"
	"github.com/MPBloo/LoopHR-iterate-Paris/internal/transcript"
)

type fakePC struct {
	tracks []webrtc.TrackLocal
	closed bool
}

func (f *fakePC) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (f *fakePC) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (f *fakePC) SetLocalDescription(webrtc.SessionDescription) error  { return nil }
func (f *fakePC) SetRemoteDescription(webrtc.SessionDescription) error { return nil }
func (f *fakePC) AddICECandidate(webrtc.ICECandidateInit) error        { return nil }

func (f *fakePC) OnICECandidate(func(*webrtc.ICECandidate)) {}

func (f *fakePC) OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {}

func (f *fakePC) OnConnectionStateChange(func(webrtc.PeerConnectionState)) {}

func (f *fakePC) AddTrack(t webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	f.tracks = append(f.tracks, t)
	return nil, nil
}

func (f *fakePC) Close() error { f.closed = true; return nil }

type fakeMedia struct {
	err     error
	stopped bool
	tracks  []webrtc.TrackLocal
}

func (m *fakeMedia) Acquire(context.Context) (*Media, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &Media{Tracks: m.tracks, Stop: func() { m.stopped = true }}, nil
}

type fakeProvider struct{}

func (fakeProvider) Convert(context.Context, []byte, transcript.ConvertOptions) (transcript.Result, error) {
	return transcript.Result{}, nil
}

func interviewerOptions(relay signal.Relay) Options {
	return Options{
		Role:       transcript.RoleInterviewer,
		RoomID:     "main-room",
		Relay:      relay,
		Provider:   fakeProvider{},
		Detector:   agent.KeywordDetector{},
		JobProfile: "Consultant role",
		Log:        zerolog.Nop(),
	}
}

func TestSenderIDEncodesRole(t *testing.T) {
	relay := signal.NewMemoryRelay()
	defer relay.Close()

	s := New(&fakePC{}, interviewerOptions(relay))
	if !strings.HasPrefix(s.SenderID(), "interviewer-") {
		t.Fatalf("sender id = %q, want interviewer- prefix", s.SenderID())
	}
	if _, err := uuid.Parse(strings.TrimPrefix(s.SenderID(), "interviewer-")); err != nil {
		t.Fatalf("sender id suffix is not a uuid: %v", err)
	}
}

func TestIntervieweeRunsNoPipeline(t *testing.T) {
	relay := signal.NewMemoryRelay()
	defer relay.Close()

	opts := interviewerOptions(relay)
	opts.Role = transcript.RoleInterviewee
	s := New(&fakePC{}, opts)

	if s.Store() != nil || s.Scheduler() != nil {
		t.Fatal("interviewee session built transcription state")
	}
	// Must be a harmless no-op without a local segmenter.
	s.FeedLocalAudio([]byte{1, 2, 3, 4})
}

func TestStartMediaFailureIsFatal(t *testing.T) {
	relay := signal.NewMemoryRelay()
	defer relay.Close()

	s := New(&fakePC{}, interviewerOptions(relay))
	src := &fakeMedia{err: errors.New("camera busy")}
	if err := s.Start(context.Background(), src); err == nil {
		t.Fatal("Start succeeded despite media failure")
	}
	if len(relay.Log()) != 0 {
		t.Fatal("negotiation started without media")
	}
}

func TestStartPublishesInitialOffer(t *testing.T) {
	relay := signal.NewMemoryRelay()
	defer relay.Close()

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1},
		"mic", "local",
	)
	if err != nil {
		t.Fatalf("create track: %v", err)
	}

	pc := &fakePC{}
	s := New(pc, interviewerOptions(relay))
	src := &fakeMedia{tracks: []webrtc.TrackLocal{track}}

	if err := s.Start(context.Background(), src); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	if len(pc.tracks) != 1 {
		t.Fatalf("local tracks added = %d, want 1", len(pc.tracks))
	}
	log := relay.Log()
	if len(log) != 1 || log[0].Type != signal.KindOffer {
		t.Fatalf("relay log = %+v, want one offer", log)
	}
	if log[0].SenderID != s.SenderID() {
		t.Fatalf("offer sender = %q, want %q", log[0].SenderID, s.SenderID())
	}
}

func TestCloseReleasesMediaAndPeer(t *testing.T) {
	relay := signal.NewMemoryRelay()
	defer relay.Close()

	pc := &fakePC{}
	s := New(pc, interviewerOptions(relay))
	src := &fakeMedia{}
	if err := s.Start(context.Background(), src); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !src.stopped {
		t.Fatal("media not released")
	}
	if !pc.closed {
		t.Fatal("peer connection not closed")
	}
}

type eofReader struct{}

func (eofReader) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	return nil, nil, io.EOF
}

func TestRemoteTranscriptionStartsOnce(t *testing.T) {
	relay := signal.NewMemoryRelay()
	defer relay.Close()

	s := New(&fakePC{}, interviewerOptions(relay))
	if !s.tapRemote(eofReader{}) {
		t.Fatal("first remote track did not start transcription")
	}
	if s.tapRemote(eofReader{}) {
		t.Fatal("second remote track started a duplicate tap")
	}
}
