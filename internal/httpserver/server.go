// Package httpserver exposes the meeting core over HTTP: health, metrics,
// scribe token minting, and the websocket bridge to the signaling relay.
package httpserver

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/MPBloo/LoopHR-iterate-Paris/internal/signal"
)

// TokenMinter mints single-use realtime transcription tokens.
// *transcript.ElevenLabsClient satisfies it.
type TokenMinter interface {
	MintRealtimeToken(ctx context.Context) (string, error)
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Browser peers connect from a separately served frontend.
		return true
	},
}

// wsFrame is one client request over the signaling socket.
// Actions: "subscribe" (RoomID) and "publish" (Message).
type wsFrame struct {
	Action  string          `json:"action"`
	RoomID  string          `json:"room_id,omitempty"`
	Message *signal.Message `json:"message,omitempty"`
}

// Server is the configured HTTP surface.
type Server struct {
	echo   *echo.Echo
	relay  signal.Relay
	minter TokenMinter
	log    zerolog.Logger
}

// New builds the echo server with all routes registered.
func New(relay signal.Relay, minter TokenMinter, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{echo: e, relay: relay, minter: minter, log: log}
	e.GET("/health", s.handleHealth)
	e.POST("/token", s.handleToken)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/ws", s.handleWS)
	return s
}

// Handler exposes the router for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error { return s.echo.Start(addr) }

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "meeting core running",
	})
}

// handleToken mints a realtime scribe token for the browser. The server key
// never reaches the client; only the short-lived token does.
func (s *Server) handleToken(c echo.Context) error {
	if s.minter == nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "transcription is not configured"})
	}
	token, err := s.minter.MintRealtimeToken(c.Request().Context())
	if err != nil {
		s.log.Error().Err(err).Msg("token mint failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to mint transcription token"})
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

// handleWS bridges one websocket client onto the relay. The client sends
// subscribe/publish frames; relay messages for the subscribed room flow back
// as-is.
func (s *Server) handleWS(c echo.Context) error {
	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	var (
		writeMu     sync.Mutex
		unsubscribe func()
	)
	defer func() {
		if unsubscribe != nil {
			unsubscribe()
		}
	}()
	writeJSON := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Msg("ws read error")
			}
			return nil
		}

		switch frame.Action {
		case "subscribe":
			if unsubscribe != nil {
				_ = writeJSON(map[string]string{"error": "already subscribed"})
				continue
			}
			if frame.RoomID == "" {
				_ = writeJSON(map[string]string{"error": "room_id required"})
				continue
			}
			msgs, unsub, err := s.relay.Subscribe(ctx, frame.RoomID)
			if err != nil {
				_ = writeJSON(map[string]string{"error": "subscribe failed"})
				continue
			}
			unsubscribe = unsub
			go func() {
				for msg := range msgs {
					if err := writeJSON(msg); err != nil {
						cancel()
						return
					}
				}
			}()

		case "publish":
			if frame.Message == nil || frame.Message.RoomID == "" {
				_ = writeJSON(map[string]string{"error": "message with room_id required"})
				continue
			}
			if err := s.relay.Publish(ctx, *frame.Message); err != nil {
				s.log.Warn().Err(err).Msg("ws publish failed")
				_ = writeJSON(map[string]string{"error": "publish failed"})
			}

		default:
			_ = writeJSON(map[string]string{"error": "unknown action"})
		}
	}
}
