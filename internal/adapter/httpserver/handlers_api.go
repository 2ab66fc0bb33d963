package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/zetsu101/PostPal-sub002/internal/domain"
	apperrors "github.com/zetsu101/PostPal-sub002/internal/platform/errors"
)

const maxBodyBytes = 256 * 1024

func (s *Server) registerAPIRoutes() {
	api := s.echo.Group("/api", s.requireAdmin)
	api.GET("/stats", s.handleStats)
	api.GET("/stats/users/:id", s.handleUserStats)
	api.POST("/users/:id/messages", s.handleSendToUser)
	api.POST("/broadcast", s.handleBroadcast)
	api.POST("/insights", s.handlePublishInsight)
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.realtime.Stats(c.Request().Context())
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}
	return writeJSON(c, http.StatusOK, stats)
}

func (s *Server) handleUserStats(c echo.Context) error {
	userID := c.Param("id")
	stats, err := s.realtime.UserStats(c.Request().Context(), userID)
	if err != nil {
		return fmt.Errorf("load user stats: %w", err)
	}
	return writeJSON(c, http.StatusOK, stats)
}

type deliveryResponse struct {
	Delivered int `json:"delivered"`
}

func (s *Server) handleSendToUser(c echo.Context) error {
	userID := c.Param("id")
	message, err := readMessage(c)
	if err != nil {
		return err
	}

	n, err := s.realtime.SendToUser(c.Request().Context(), userID, message)
	if err != nil {
		return fmt.Errorf("send to user %s: %w", userID, err)
	}
	return writeJSON(c, http.StatusOK, deliveryResponse{Delivered: n})
}

func (s *Server) handleBroadcast(c echo.Context) error {
	message, err := readMessage(c)
	if err != nil {
		return err
	}

	n, err := s.realtime.Broadcast(c.Request().Context(), message)
	if err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	return writeJSON(c, http.StatusOK, deliveryResponse{Delivered: n})
}

type publishInsightRequest struct {
	Type     string          `json:"type"`
	UserID   string          `json:"userId"`
	Data     json.RawMessage `json:"data"`
	Priority string          `json:"priority"`
}

func (s *Server) handlePublishInsight(c echo.Context) error {
	var req publishInsightRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}

	topic, err := domain.ParseTopic(req.Type)
	if err != nil {
		return apperrors.ValidationError("unknown insight type").WithField("type", req.Type)
	}
	if req.UserID == "" {
		return apperrors.ValidationError("userId is required")
	}

	var priority domain.Priority
	if req.Priority != "" {
		if priority, err = domain.ParsePriority(req.Priority); err != nil {
			return apperrors.ValidationError("unknown priority").WithField("priority", req.Priority)
		}
	}

	var payload any = req.Data
	if len(req.Data) == 0 {
		payload = nil
	}
	s.insights.Publish(topic, req.UserID, payload, priority)

	return writeJSON(c, http.StatusAccepted, map[string]string{"status": "queued"})
}

// readMessage reads an arbitrary JSON object to forward verbatim to clients.
func readMessage(c echo.Context) (json.RawMessage, error) {
	var message map[string]json.RawMessage
	if err := decodeBody(c, &message); err != nil {
		return nil, err
	}
	if len(message) == 0 {
		return nil, apperrors.ValidationError("message must be a non-empty JSON object")
	}

	raw, err := json.Marshal(message)
	if err != nil {
		return nil, apperrors.InternalError("failed to re-encode message", err)
	}
	return raw, nil
}

func decodeBody(c echo.Context, dst any) error {
	body := http.MaxBytesReader(c.Response(), c.Request().Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.ValidationError("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.ValidationError("request body too large").WithField("limit_bytes", tooLarge.Limit)
		}
		return apperrors.ValidationError("request body must be valid JSON")
	}
	return nil
}

func writeJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
