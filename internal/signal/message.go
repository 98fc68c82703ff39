// Package signal provides the room-scoped broadcast relay used for WebRTC
// signaling. Messages are append-only and delivered at-least-once; consumers
// must tolerate duplicates.
package signal

import (
	"context"
	"encoding/json"
	"time"
)

// Kind enumerates the signaling message types understood by peers.
type Kind string

const (
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice-candidate"
	// KindCustom carries opaque application payloads (e.g. game-state gossip)
	// that the relay forwards untouched.
	KindCustom Kind = "custom"
)

// Message is one immutable relay entry. CreatedAt is relay-assigned.
type Message struct {
	RoomID    string          `json:"room_id"`
	SenderID  string          `json:"sender_id"`
	Type      Kind            `json:"message_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at,omitempty"`
}

// Relay is an ordered, append-only broadcast channel keyed by room.
type Relay interface {
	// Publish appends a message to the room's log.
	Publish(ctx context.Context, msg Message) error
	// Subscribe returns a channel of messages for the room, starting from the
	// moment of subscription, plus a function to unsubscribe. Messages from
	// all senders are delivered, including the subscriber's own.
	Subscribe(ctx context.Context, roomID string) (<-chan Message, func(), error)
}
