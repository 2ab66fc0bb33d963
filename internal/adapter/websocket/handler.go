package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zetsu101/PostPal-sub002/internal/adapter/metrics"
	"github.com/zetsu101/PostPal-sub002/internal/platform/correlation"
	"github.com/zetsu101/PostPal-sub002/internal/platform/logging"
	"github.com/zetsu101/PostPal-sub002/internal/realtime"
)

const (
	readLimit       = 64 * 1024
	registerTimeout = 5 * time.Second
)

// SessionService is the part of realtime.Service a connection needs.
type SessionService interface {
	Register(ctx context.Context, sessionID, userID string, transport realtime.Transport) error
	Remove(sessionID string)
	HandleMessage(sessionID string, raw []byte) error
	MarkAlive(sessionID string)
}

type Handler struct {
	service  SessionService
	upgrader websocket.Upgrader
	pongWait time.Duration
	metrics  *metrics.WebSocketMetrics
}

// NewHandler builds the upgrade handler. pongWait bounds how long a silent
// connection is read before the read pump gives up; it should exceed two
// heartbeat intervals so the liveness monitor decides first.
func NewHandler(service SessionService, checkOrigin func(*http.Request) bool, pongWait time.Duration, m *metrics.WebSocketMetrics) *Handler {
	if m == nil {
		m = metrics.NewWebSocketMetrics(prometheus.NewRegistry())
	}
	return &Handler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		pongWait: pongWait,
		metrics:  m,
	}
}

// Serve upgrades the request, registers a session for userID and reads client
// messages until the connection ends. It blocks for the connection lifetime.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.metrics.Connections.WithLabelValues("upgrade_failed").Inc()
		// Upgrade has already written the HTTP error response.
		return nil
	}

	sessionID := uuid.New().String()
	ctx, _ := correlation.Ensure(context.WithoutCancel(r.Context()), r.Header.Get(correlation.Header))
	logger := logging.WithSession(sessionID, userID)

	conn := NewConn(ws)
	regCtx, cancel := context.WithTimeout(ctx, registerTimeout)
	err = h.service.Register(regCtx, sessionID, userID, conn)
	cancel()
	if err != nil {
		h.metrics.Connections.WithLabelValues("rejected").Inc()
		logger.WarnContext(ctx, "WebSocket session rejected", "error", err)
		return nil
	}

	h.metrics.Connections.WithLabelValues("accepted").Inc()
	h.metrics.ActiveConnections.Inc()
	logger.InfoContext(ctx, "WebSocket session opened", "remote_addr", r.RemoteAddr)

	defer func() {
		h.service.Remove(sessionID)
		h.metrics.ActiveConnections.Dec()
	}()

	err = h.readPump(ctx, ws, sessionID, logger)
	logger.InfoContext(ctx, "WebSocket session closed", "reason", err)
	return nil
}

func (h *Handler) readPump(ctx context.Context, ws *websocket.Conn, sessionID string, logger *slog.Logger) error {
	ws.SetReadLimit(readLimit)
	h.extendReadDeadline(ws)
	ws.SetPongHandler(func(string) error {
		h.extendReadDeadline(ws)
		h.service.MarkAlive(sessionID)
		return nil
	})

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			return closeCause(err)
		}
		h.extendReadDeadline(ws)

		if messageType != websocket.TextMessage {
			logger.DebugContext(ctx, "Ignoring non-text client frame", "message_type", messageType)
			continue
		}

		h.metrics.MessagesReceived.Inc()
		if err := h.service.HandleMessage(sessionID, data); err != nil {
			logger.DebugContext(ctx, "Dropping malformed client message", "error", err)
		}
	}
}

func (h *Handler) extendReadDeadline(ws *websocket.Conn) {
	if h.pongWait > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(h.pongWait))
	}
}

func closeCause(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return fmt.Errorf("client closed: code=%d text=%q", closeErr.Code, closeErr.Text)
	}
	return err
}
