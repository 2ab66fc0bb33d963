package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	apperrors "github.com/zetsu101/PostPal-sub002/internal/platform/errors"
)

// handleWebSocket authenticates the upgrade request and hands the connection
// to the websocket adapter. Browsers cannot set headers on upgrades, so the
// token is also accepted as a query parameter.
func (s *Server) handleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		token = bearerToken(c.Request())
	}
	if token == "" {
		return apperrors.UnauthorizedError("missing access token")
	}

	userID, err := s.tokens.verify(token)
	if err != nil {
		slog.DebugContext(c.Request().Context(), "Rejecting websocket token", "error", err)
		return apperrors.UnauthorizedError("invalid access token")
	}

	c.Set("userID", userID)
	return s.connections.Serve(c.Response(), c.Request(), userID)
}
