package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/MPBloo/LoopHR-iterate-Paris/internal/signal"
)

type fakeMinter struct {
	token string
	err   error
}

func (m *fakeMinter) MintRealtimeToken(context.Context) (string, error) {
	return m.token, m.err
}

func newTestServer(relay signal.Relay, minter TokenMinter) *Server {
	return New(relay, minter, zerolog.Nop())
}

func TestHealth(t *testing.T) {
	srv := newTestServer(signal.NewMemoryRelay(), nil)
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" || body["message"] == "" {
		t.Fatalf("body = %v", body)
	}
}

func TestTokenMinted(t *testing.T) {
	srv := newTestServer(signal.NewMemoryRelay(), &fakeMinter{token: "tok-123"})
	r := httptest.NewRequest(http.MethodPost, "/token", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["token"] != "tok-123" {
		t.Fatalf("body = %v", body)
	}
}

func TestTokenWithoutMinter(t *testing.T) {
	srv := newTestServer(signal.NewMemoryRelay(), nil)
	r := httptest.NewRequest(http.MethodPost, "/token", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] == "" {
		t.Fatalf("body = %v, want error field", body)
	}
}

func TestTokenUpstreamFailure(t *testing.T) {
	srv := newTestServer(signal.NewMemoryRelay(), &fakeMinter{err: errors.New("401 from upstream")})
	r := httptest.NewRequest(http.MethodPost, "/token", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestMetricsExposed(t *testing.T) {
	srv := newTestServer(signal.NewMemoryRelay(), nil)
	r := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Fatal("metrics body missing default collectors")
	}
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	return conn
}

func TestWSSubscribeDeliversRelayMessages(t *testing.T) {
	relay := signal.NewMemoryRelay()
	defer relay.Close()
	ts := httptest.NewServer(newTestServer(relay, nil).Handler())
	defer ts.Close()

	conn := dialWS(t, ts)
	defer conn.Close()

	if err := conn.WriteJSON(wsFrame{Action: "subscribe", RoomID: "main-room"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	// The subscribe frame races the publish; republish until the message
	// comes back. Duplicate deliveries are within the relay contract.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			_ = relay.Publish(context.Background(), signal.Message{
				RoomID:   "main-room",
				SenderID: "peer-a",
				Type:     signal.KindCustom,
				Payload:  json.RawMessage(`{"move":4}`),
			})
			time.Sleep(20 * time.Millisecond)
		}
	}()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got signal.Message
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read relayed message: %v", err)
	}
	if got.SenderID != "peer-a" || got.Type != signal.KindCustom {
		t.Fatalf("relayed message = %+v", got)
	}
	if string(got.Payload) != `{"move":4}` {
		t.Fatalf("payload = %s", got.Payload)
	}
}

func TestWSPublishReachesRelay(t *testing.T) {
	relay := signal.NewMemoryRelay()
	defer relay.Close()
	ts := httptest.NewServer(newTestServer(relay, nil).Handler())
	defer ts.Close()

	conn := dialWS(t, ts)
	defer conn.Close()

	msg := signal.Message{
		RoomID:   "main-room",
		SenderID: "peer-b",
		Type:     signal.KindOffer,
		Payload:  json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
	}
	if err := conn.WriteJSON(wsFrame{Action: "publish", Message: &msg}); err != nil {
		t.Fatalf("publish frame: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if log := relay.Log(); len(log) == 1 {
			if log[0].SenderID != "peer-b" || log[0].Type != signal.KindOffer {
				t.Fatalf("relayed message = %+v", log[0])
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("published message never reached the relay")
}

func TestWSRejectsUnknownAction(t *testing.T) {
	relay := signal.NewMemoryRelay()
	defer relay.Close()
	ts := httptest.NewServer(newTestServer(relay, nil).Handler())
	defer ts.Close()

	conn := dialWS(t, ts)
	defer conn.Close()

	if err := conn.WriteJSON(wsFrame{Action: "dance"}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var body map[string]string
	if err := conn.ReadJSON(&body); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if body["error"] == "" {
		t.Fatalf("body = %v, want error field", body)
	}
}
