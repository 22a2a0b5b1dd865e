package hub

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tenant-telemetry/internal/apperr"
	"tenant-telemetry/internal/auth"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	maxReadBytes = 64 * 1024
)

// WSHandler je websocketový transport hubu (GET /ws).
type WSHandler struct {
	hub      *Hub
	auth     auth.Authenticator
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWSHandler(h *Hub, a auth.Authenticator, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub:  h,
		auth: a,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Stejně jako CORS middleware povolujeme libovolný origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP ověří identitu ještě před upgradem; neověřený klient dostane 401.
func (s *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.FromRequest(r, s.auth)
	if err != nil {
		s.logger.Warn("Odmítnuto websocket spojení", "remote", r.RemoteAddr, "error", err)
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade už odpověděl klientovi chybou.
		s.logger.Warn("Websocket upgrade selhal", "error", err)
		return
	}

	c := NewConn(uuid.NewString(), s.hub.cfg.QueueSize)
	// Close frame jde přes WriteControl, který smí běžet souběžně s writerem.
	c.OnClose(func() {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = ws.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.writeLoop(ws, c)

	if err := s.hub.Attach(ctx, c, principal); err != nil {
		s.logger.Error("Nelze připojit klienta", "error", err)
		s.hub.Disconnect(c)
		return
	}
	s.readLoop(ctx, ws, c)
}

func (s *WSHandler) readLoop(ctx context.Context, ws *websocket.Conn, c *Conn) {
	defer s.hub.Disconnect(c)

	ws.SetReadLimit(maxReadBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("Websocket čtení skončilo", "conn", c.ID, "error", err)
			}
			return
		}
		s.hub.Dispatch(ctx, c, data)
	}
}

// writeLoop je jediný zapisovatel do websocketu daného spojení.
func (s *WSHandler) writeLoop(ws *websocket.Conn, c *Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.hub.Disconnect(c)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.hub.Disconnect(c)
				return
			}
		case <-c.Done():
			return
		}
	}
}
