package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

// signalingTable is the append-only table shared by all participants.
const signalingTable = "signaling_messages"

// defaultPollInterval is how often the subscription polls for new rows. The
// hosted realtime channel pushes INSERT events; this client approximates that
// with short polling, which keeps the at-least-once contract.
const defaultPollInterval = 500 * time.Millisecond

// SupabaseRelay stores signaling messages in a Supabase table and polls for
// new inserts matching the room filter.
type SupabaseRelay struct {
	client       *supabase.Client
	pollInterval time.Duration
}

type supabaseRow struct {
	RoomID    string          `json:"room_id"`
	SenderID  string          `json:"sender_id"`
	Type      string          `json:"message_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewSupabaseRelay constructs a relay against the given project.
func NewSupabaseRelay(url, serviceRoleKey string) (*SupabaseRelay, error) {
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseRelay{client: client, pollInterval: defaultPollInterval}, nil
}

// Publish inserts one row into the signaling table. CreatedAt is assigned by
// the database.
func (r *SupabaseRelay) Publish(ctx context.Context, msg Message) error {
	row := supabaseRow{
		RoomID:   msg.RoomID,
		SenderID: msg.SenderID,
		Type:     string(msg.Type),
		Payload:  msg.Payload,
	}
	_, _, err := r.client.From(signalingTable).
		Insert(row, false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("insert signaling message: %w", err)
	}
	return nil
}

// Subscribe polls the table for rows newer than the last seen timestamp.
func (r *SupabaseRelay) Subscribe(ctx context.Context, roomID string) (<-chan Message, func(), error) {
	out := make(chan Message, subscriberBuffer)
	done := make(chan struct{})

	go func() {
		defer close(out)
		lastSeen := time.Now().UTC()
		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				rows, err := r.fetchSince(roomID, lastSeen)
				if err != nil {
					continue
				}
				for _, row := range rows {
					if row.CreatedAt.After(lastSeen) {
						lastSeen = row.CreatedAt
					}
					msg := Message{
						RoomID:    row.RoomID,
						SenderID:  row.SenderID,
						Type:      Kind(row.Type),
						Payload:   row.Payload,
						CreatedAt: row.CreatedAt,
					}
					select {
					case out <- msg:
					case <-done:
						return
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() { once.Do(func() { close(done) }) }
	return out, cancel, nil
}

func (r *SupabaseRelay) fetchSince(roomID string, since time.Time) ([]supabaseRow, error) {
	var rows []supabaseRow
	_, err := r.client.From(signalingTable).
		Select("*", "", false).
		Eq("room_id", roomID).
		Gt("created_at", since.Format(time.RFC3339Nano)).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
