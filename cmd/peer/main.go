// Command peer runs one headless meeting participant: it joins the signaling
// room, negotiates media, and, as the interviewer, runs transcription and the
// suggestion agents.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"

	"github.com/MPBloo/LoopHR-iterate-Paris/internal/agent"
	"github.com/MPBloo/LoopHR-iterate-Paris/internal/config"
	"github.com/MPBloo/LoopHR-iterate-Paris/internal/logging"
	"github.com/MPBloo/LoopHR-iterate-Paris/internal/rtc"
	"github.com/MPBloo/LoopHR-iterate-Paris/internal/session"
	sig "github.com/MPBloo/LoopHR-iterate-Paris/internal/signal"
	"github.com/MPBloo/LoopHR-iterate-Paris/internal/transcript"
	"github.com/MPBloo/LoopHR-iterate-Paris/internal/vad"
)

func main() {
	roleFlag := flag.String("role", "interviewer", "participant role: interviewer or interviewee")
	flag.Parse()

	cfg := config.Load()
	log := logging.New(cfg.Env)

	role := transcript.Role(*roleFlag)
	if role != transcript.RoleInterviewer && role != transcript.RoleInterviewee {
		log.Fatal().Str("role", *roleFlag).Msg("unknown role")
	}

	ctx := context.Background()

	relay := buildRelay(ctx, cfg, log)
	servers := buildICEServers(ctx, cfg, log)

	pc, err := rtc.NewPeerConnection(servers)
	if err != nil {
		log.Fatal().Err(err).Msg("peer connection init failed")
	}

	opts := session.Options{
		Role:       role,
		RoomID:     cfg.RoomID,
		Relay:      relay,
		JobProfile: cfg.JobProfile,
		VAD: vad.Config{
			VolumeThreshold:      cfg.VolumeThreshold,
			SilenceThreshold:     cfg.SilenceThreshold,
			MinRecordingDuration: cfg.MinRecordingDuration,
		},
		Log: log,
	}
	if role == transcript.RoleInterviewer {
		opts.Provider = transcript.NewElevenLabsClient(cfg.ElevenLabsKey)
		opts.Detector, opts.Suggester = buildAgents(cfg, log)
	}

	sess := session.New(pc, opts)
	if err := sess.Start(ctx, localMedia{}); err != nil {
		log.Fatal().Err(err).Msg("session start failed")
	}
	log.Info().Str("sender", sess.SenderID()).Str("room", cfg.RoomID).Msg("joined meeting")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	s := <-sigChan
	log.Info().Str("signal", s.String()).Msg("leaving meeting")

	if err := sess.Close(); err != nil {
		log.Error().Err(err).Msg("session close failed")
	}
}

func buildRelay(ctx context.Context, cfg config.Config, log zerolog.Logger) sig.Relay {
	switch {
	case cfg.RedisURL != "":
		r, err := sig.NewRedisRelay(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis relay init failed")
		}
		log.Info().Msg("signaling relay: redis")
		return r
	case cfg.SupabaseURL != "" && cfg.SupabaseKey != "":
		r, err := sig.NewSupabaseRelay(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			log.Fatal().Err(err).Msg("supabase relay init failed")
		}
		log.Info().Msg("signaling relay: supabase")
		return r
	default:
		log.Warn().Msg("signaling relay: in-memory, peers must share this process")
		return sig.NewMemoryRelay()
	}
}

// buildICEServers starts from the configured STUN list and appends Twilio
// TURN credentials when account credentials are present. TURN failure is not
// fatal: STUN-only still connects on permissive networks.
func buildICEServers(ctx context.Context, cfg config.Config, log zerolog.Logger) []webrtc.ICEServer {
	servers := rtc.ParseICEServers(cfg.ICEServersJSON)
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" {
		return servers
	}
	turn, err := rtc.NewTwilioICEProvider(cfg.TwilioAccountSID, cfg.TwilioAuthToken).Servers(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("twilio turn credentials unavailable, continuing with stun only")
		return servers
	}
	return append(servers, turn...)
}

func buildAgents(cfg config.Config, log zerolog.Logger) (agent.QuestionDetector, agent.SuggestionProvider) {
	if cfg.AnthropicKey == "" {
		log.Warn().Msg("no anthropic key, question detection degrades to keywords and agents are disabled")
		return agent.KeywordDetector{}, nil
	}
	client := agent.NewAnthropicClient(cfg.AnthropicKey, cfg.AnthropicModelID)
	return client, client
}

// localMedia publishes a placeholder opus track. A capture front-end feeds
// real microphone audio through Session.FeedLocalAudio.
type localMedia struct{}

func (localMedia) Acquire(context.Context) (*session.Media, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1},
		"mic-audio", "peer",
	)
	if err != nil {
		return nil, err
	}
	return &session.Media{Tracks: []webrtc.TrackLocal{track}, Stop: func() {}}, nil
}
