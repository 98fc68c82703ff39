// Package session wires one participant's meeting lifecycle: media
// acquisition, peer negotiation, and, for the interviewer, the transcription
// and suggestion pipelines.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"

	"github.com/MPBloo/LoopHR-iterate-Paris/internal/agent"
	"github.com/MPBloo/LoopHR-iterate-Paris/internal/rtc"
	"github.com/MPBloo/LoopHR-iterate-Paris/internal/signal"
	"github.com/MPBloo/LoopHR-iterate-Paris/internal/transcript"
	"github.com/MPBloo/LoopHR-iterate-Paris/internal/vad"
)

// Media is an acquired local media set. Stop releases the capture device.
type Media struct {
	Tracks []webrtc.TrackLocal
	Stop   func()
}

// MediaSource acquires the participant's local tracks. Acquisition failure
// aborts the session; a meeting without media is not degraded, it is broken.
type MediaSource interface {
	Acquire(ctx context.Context) (*Media, error)
}

// PeerConnection extends the negotiator's view with local track attachment.
// *webrtc.PeerConnection satisfies it.
type PeerConnection interface {
	rtc.PeerConnection
	AddTrack(webrtc.TrackLocal) (*webrtc.RTPSender, error)
}

// Options configures a meeting session.
type Options struct {
	Role   transcript.Role
	RoomID string
	Relay  signal.Relay

	// Provider and Detector drive the interviewer pipeline; ignored for the
	// interviewee. Suggester may be nil, which disables the agents.
	Provider  transcript.Provider
	Detector  agent.QuestionDetector
	Suggester agent.SuggestionProvider

	JobProfile string
	VAD        vad.Config
	Log        zerolog.Logger
}

// Session is one participant's connection to the meeting. The interviewer
// runs the full pipeline; the interviewee only negotiates media.
type Session struct {
	role     transcript.Role
	senderID string
	log      zerolog.Logger

	pc         PeerConnection
	negotiator *rtc.Negotiator
	media      *Media

	store     *transcript.Store
	pipeline  *transcript.Pipeline
	scheduler *agent.Scheduler
	localSeg  *vad.Segmenter
	remoteSeg *vad.Segmenter

	mu           sync.Mutex
	remoteTapped bool

	cancel context.CancelFunc
}

// New builds a session around an existing peer connection. Sender ids are
// "<role>-<uuid>" so the glare tie-break orders deterministically.
func New(pc PeerConnection, opts Options) *Session {
	senderID := fmt.Sprintf("%s-%s", opts.Role, uuid.NewString())
	log := opts.Log.With().Str("session", senderID).Logger()

	s := &Session{
		role:     opts.Role,
		senderID: senderID,
		log:      log,
		pc:       pc,
	}
	s.negotiator = rtc.NewNegotiator(pc, opts.Relay, opts.RoomID, senderID, log)

	if opts.Role == transcript.RoleInterviewer {
		detector := opts.Detector
		if detector == nil {
			detector = agent.KeywordDetector{}
		}
		s.store = transcript.NewStore()
		s.pipeline = transcript.NewPipeline(opts.Provider, s.store, log)
		s.scheduler = agent.NewScheduler(s.store, detector, opts.Suggester, senderID, opts.JobProfile, log)
		s.localSeg = vad.New(opts.VAD, log.With().Str("stream", "local").Logger(), s.utteranceHandler(transcript.RoleInterviewer))
		s.remoteSeg = vad.New(opts.VAD, log.With().Str("stream", "remote").Logger(), s.utteranceHandler(transcript.RoleInterviewee))
	}
	return s
}

// Start acquires media, begins negotiation, and launches the interviewer's
// pipelines. It publishes the initial offer before returning.
func (s *Session) Start(ctx context.Context, source MediaSource) error {
	media, err := source.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire media: %w", err)
	}
	s.media = media
	for _, track := range media.Tracks {
		if _, err := s.pc.AddTrack(track); err != nil {
			media.Stop()
			return fmt.Errorf("add local track: %w", err)
		}
	}

	ctx, s.cancel = context.WithCancel(ctx)

	if s.role == transcript.RoleInterviewer {
		s.negotiator.SetOnRemoteTrack(s.startRemoteTranscription)
		go s.localSeg.Run(ctx)
		go s.remoteSeg.Run(ctx)
		go s.scheduler.Run(ctx)
	}

	if err := s.negotiator.Start(ctx); err != nil {
		media.Stop()
		return err
	}
	// Both sides offer unconditionally; glare resolution sorts out who
	// answers.
	if err := s.negotiator.Offer(ctx); err != nil {
		s.log.Warn().Err(err).Msg("initial offer failed, peer may retry")
	}
	return nil
}

func (s *Session) startRemoteTranscription(remote *webrtc.TrackRemote) {
	s.tapRemote(remote)
}

// tapRemote decodes the remote track into the interviewee segmenter. It runs
// at most once per session: renegotiated tracks never spawn a second tap.
func (s *Session) tapRemote(track rtc.RTPReader) bool {
	s.mu.Lock()
	if s.remoteTapped {
		s.mu.Unlock()
		return false
	}
	s.remoteTapped = true
	s.mu.Unlock()

	tap, err := rtc.NewTrackTap(s.remoteSeg, s.log.With().Str("stream", "remote").Logger())
	if err != nil {
		s.log.Error().Err(err).Msg("remote tap setup failed, remote transcription disabled")
		return false
	}
	s.log.Info().Msg("starting remote transcription")
	go tap.Run(track)
	return true
}

func (s *Session) utteranceHandler(speaker transcript.Role) func(vad.Utterance) {
	return func(u vad.Utterance) {
		go s.pipeline.Process(context.Background(), speaker, u.Audio)
	}
}

// FeedLocalAudio pushes captured microphone PCM into the local segmenter.
// No-op for the interviewee.
func (s *Session) FeedLocalAudio(pcm []byte) {
	if s.localSeg != nil {
		s.localSeg.Feed(pcm)
	}
}

// SenderID returns the session's relay identity.
func (s *Session) SenderID() string { return s.senderID }

// Store returns the transcript store, nil for the interviewee.
func (s *Session) Store() *transcript.Store { return s.store }

// Scheduler returns the suggestion scheduler, nil for the interviewee.
func (s *Session) Scheduler() *agent.Scheduler { return s.scheduler }

// Close stops the pipelines, releases media, and tears the peer down.
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.media != nil && s.media.Stop != nil {
		s.media.Stop()
	}
	return s.negotiator.Close()
}
