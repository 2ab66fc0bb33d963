package httpserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/zetsu101/PostPal-sub002/internal/platform/correlation"
	apperrors "github.com/zetsu101/PostPal-sub002/internal/platform/errors"
)

const correlationHeader = correlation.Header

var errMissingSubject = errors.New("token has no subject")

// tokenVerifier resolves HS256 access tokens to the user id in their sub claim.
type tokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func newTokenVerifier(secret string) *tokenVerifier {
	return &tokenVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

func (v *tokenVerifier) verify(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	if _, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	if claims.Subject == "" {
		return "", errMissingSubject
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get(echo.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireAdmin guards operator endpoints with the static ADMIN_TOKEN. An empty
// token disables them.
func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.config.AdminToken == "" {
			return apperrors.UnauthorizedError("admin API disabled")
		}

		token := bearerToken(c.Request())
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.config.AdminToken)) != 1 {
			return apperrors.UnauthorizedError("invalid admin token")
		}
		return next(c)
	}
}

func correlationContext(c echo.Context) (context.Context, string) {
	return correlation.Ensure(c.Request().Context(), c.Request().Header.Get(correlationHeader))
}
