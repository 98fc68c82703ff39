// Package rtc owns the WebRTC surface: peer construction, relay-mediated
// offer/answer negotiation with glare resolution, and the remote audio tap.
package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"

	"github.com/MPBloo/LoopHR-iterate-Paris/internal/metrics"
	"github.com/MPBloo/LoopHR-iterate-Paris/internal/signal"
)

// PeerConnection is the slice of *webrtc.PeerConnection the negotiator
// depends on. Tests substitute a fake.
type PeerConnection interface {
	CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	OnICECandidate(func(*webrtc.ICECandidate))
	OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	Close() error
}

// NewPeerConnection builds a pion peer with default codecs and interceptors.
func NewPeerConnection(servers []webrtc.ICEServer) (*webrtc.PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))
	return api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
}

type negotiationState int

const (
	stateStable negotiationState = iota
	stateHaveLocalOffer
	stateHaveRemoteOffer
)

func (s negotiationState) String() string {
	switch s {
	case stateHaveLocalOffer:
		return "have-local-offer"
	case stateHaveRemoteOffer:
		return "have-remote-offer"
	default:
		return "stable"
	}
}

// candidatePayload is the wire form of a trickled ICE candidate.
type candidatePayload struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// Negotiator drives offer/answer exchange for one peer over the relay.
//
// Glare (both sides holding a local offer) is resolved deterministically:
// the peer with the lexicographically lower sender id discards its own offer
// and answers the remote one; the higher id ignores the remote offer and
// keeps waiting for an answer to its own.
//
// The local description is deliberately not committed when the offer is
// published: it is held in pendingOffer and applied only once the answer
// arrives. The signaling state therefore stays stable until glare is ruled
// out, so the yielding peer can apply the remote offer directly. pion v3 has
// no rollback; an eagerly committed offer could never be abandoned.
type Negotiator struct {
	pc       PeerConnection
	relay    signal.Relay
	roomID   string
	senderID string
	log      zerolog.Logger

	mu            sync.Mutex
	state         negotiationState
	pendingOffer  *webrtc.SessionDescription
	remoteSet     bool
	lastRemoteSDP string
	pending       []webrtc.ICECandidateInit

	trackOnce     sync.Once
	onRemoteTrack func(*webrtc.TrackRemote)

	unsubscribe func()
}

// NewNegotiator binds a peer connection to a relay room under senderID.
func NewNegotiator(pc PeerConnection, relay signal.Relay, roomID, senderID string, log zerolog.Logger) *Negotiator {
	return &Negotiator{
		pc:       pc,
		relay:    relay,
		roomID:   roomID,
		senderID: senderID,
		log:      log.With().Str("room", roomID).Str("sender", senderID).Logger(),
	}
}

// SetOnRemoteTrack registers the callback fired for the first remote audio
// track. Renegotiations must not restart downstream consumers, so later
// tracks are dropped.
func (n *Negotiator) SetOnRemoteTrack(fn func(*webrtc.TrackRemote)) {
	n.onRemoteTrack = fn
}

// Start subscribes to the room and wires the peer's callbacks. It returns
// once the subscription is live; message handling runs in a goroutine until
// ctx is cancelled or Close is called.
func (n *Negotiator) Start(ctx context.Context) error {
	n.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		payload, _ := json.Marshal(candidatePayload{Candidate: c.ToJSON()})
		n.publish(ctx, signal.KindICECandidate, payload)
	})
	n.pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		n.log.Info().Str("codec", remote.Codec().MimeType).Msg("remote audio track received")
		n.trackOnce.Do(func() {
			if n.onRemoteTrack != nil {
				n.onRemoteTrack(remote)
			}
		})
	})
	n.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		n.log.Info().Str("state", state.String()).Msg("peer connection state")
	})

	msgs, unsubscribe, err := n.relay.Subscribe(ctx, n.roomID)
	if err != nil {
		return fmt.Errorf("subscribe to signaling room: %w", err)
	}
	n.unsubscribe = unsubscribe

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				n.handle(ctx, msg)
			}
		}
	}()
	return nil
}

// Offer creates and publishes a local offer. If a remote offer is already
// being answered the call is a no-op; the answer path completes negotiation.
// The offer is committed via SetLocalDescription only when its answer
// arrives, never here.
func (n *Negotiator) Offer(ctx context.Context) error {
	n.mu.Lock()
	if n.state == stateHaveRemoteOffer {
		n.mu.Unlock()
		n.log.Debug().Msg("skipping offer, remote offer in progress")
		return nil
	}
	offer, err := n.pc.CreateOffer(nil)
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("create offer: %w", err)
	}
	n.pendingOffer = &offer
	n.state = stateHaveLocalOffer
	n.mu.Unlock()

	payload, _ := json.Marshal(offer)
	n.publish(ctx, signal.KindOffer, payload)
	return nil
}

func (n *Negotiator) handle(ctx context.Context, msg signal.Message) {
	if msg.SenderID == n.senderID {
		return
	}
	switch msg.Type {
	case signal.KindOffer:
		n.handleOffer(ctx, msg)
	case signal.KindAnswer:
		n.handleAnswer(msg)
	case signal.KindICECandidate:
		n.handleCandidate(msg)
	}
}

func (n *Negotiator) handleOffer(ctx context.Context, msg signal.Message) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(msg.Payload, &offer); err != nil || offer.SDP == "" {
		n.log.Warn().Err(err).Msg("malformed offer payload")
		return
	}

	n.mu.Lock()
	// The relay is at-least-once; an offer already applied is a duplicate.
	if offer.SDP == n.lastRemoteSDP {
		n.mu.Unlock()
		return
	}
	if n.state == stateHaveLocalOffer {
		if n.senderID > msg.SenderID {
			n.mu.Unlock()
			n.log.Debug().Str("from", msg.SenderID).Msg("glare: holding local offer, expecting answer")
			return
		}
		// We yield: drop our uncommitted offer and answer theirs. The
		// signaling state is still stable because the offer was never set
		// as the local description.
		n.log.Info().Str("from", msg.SenderID).Msg("glare: yielding local offer")
		n.pendingOffer = nil
		n.state = stateStable
	}
	n.state = stateHaveRemoteOffer

	answer, err := n.answerLocked(offer)
	if err != nil {
		n.state = stateStable
		n.mu.Unlock()
		n.log.Error().Err(err).Msg("answering offer failed")
		return
	}
	n.state = stateStable
	n.mu.Unlock()

	payload, _ := json.Marshal(answer)
	n.publish(ctx, signal.KindAnswer, payload)
}

// answerLocked applies the remote offer and produces a local answer.
// Caller holds n.mu.
func (n *Negotiator) answerLocked(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := n.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set remote offer: %w", err)
	}
	n.lastRemoteSDP = offer.SDP
	n.drainPendingLocked()

	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := n.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local answer: %w", err)
	}
	return answer, nil
}

func (n *Negotiator) handleAnswer(msg signal.Message) {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(msg.Payload, &answer); err != nil || answer.SDP == "" {
		n.log.Warn().Err(err).Msg("malformed answer payload")
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != stateHaveLocalOffer || n.pendingOffer == nil {
		// Duplicate delivery, or an answer to an offer we abandoned.
		n.log.Debug().Str("state", n.state.String()).Msg("ignoring answer")
		return
	}
	// Commit the deferred offer, then apply the answer to it.
	if err := n.pc.SetLocalDescription(*n.pendingOffer); err != nil {
		n.log.Error().Err(err).Msg("set local offer failed")
		return
	}
	if err := n.pc.SetRemoteDescription(answer); err != nil {
		n.log.Error().Err(err).Msg("set remote answer failed")
		return
	}
	n.pendingOffer = nil
	n.lastRemoteSDP = answer.SDP
	n.state = stateStable
	n.drainPendingLocked()
}

func (n *Negotiator) handleCandidate(msg signal.Message) {
	var p candidatePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.Candidate.Candidate == "" {
		n.log.Warn().Err(err).Msg("malformed candidate payload")
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	// Candidates can outrun the description that introduces them; buffer
	// until a remote description is applied.
	if !n.remoteSet {
		n.pending = append(n.pending, p.Candidate)
		return
	}
	if err := n.pc.AddICECandidate(p.Candidate); err != nil {
		n.log.Warn().Err(err).Msg("add ice candidate failed")
	}
}

// drainPendingLocked flushes buffered candidates. Caller holds n.mu.
func (n *Negotiator) drainPendingLocked() {
	n.remoteSet = true
	for _, c := range n.pending {
		if err := n.pc.AddICECandidate(c); err != nil {
			n.log.Warn().Err(err).Msg("add buffered candidate failed")
		}
	}
	n.pending = nil
}

// publish sends a message to the relay. Failures are logged and counted but
// never abort negotiation; the peer retries on the next state transition.
func (n *Negotiator) publish(ctx context.Context, kind signal.Kind, payload json.RawMessage) {
	msg := signal.Message{
		RoomID:    n.roomID,
		SenderID:  n.senderID,
		Type:      kind,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := n.relay.Publish(ctx, msg); err != nil {
		metrics.SignalPublishFailures.Inc()
		n.log.Warn().Err(err).Str("type", string(kind)).Msg("relay publish failed")
		return
	}
	metrics.SignalMessagesPublished.WithLabelValues(string(kind)).Inc()
}

// Close unsubscribes from the relay and tears the peer down.
func (n *Negotiator) Close() error {
	if n.unsubscribe != nil {
		n.unsubscribe()
	}
	return n.pc.Close()
}
