package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/uwrealitylabs/humanoid-server/internal/domain"
	"github.com/uwrealitylabs/humanoid-server/internal/metrics"
	apperrors "github.com/uwrealitylabs/humanoid-server/internal/platform/errors"
)

const (
	tokenClassDefault = "default"
	tokenClassShort   = "short"
)

type tokenResponse struct {
	Token      string    `json:"token"`
	ExpiryDate time.Time `json:"expiryDate"`
}

type tokenStatusResponse struct {
	Valid      bool       `json:"valid"`
	ExpiryDate *time.Time `json:"expiryDate,omitempty"`
	Message    string     `json:"message,omitempty"`
}

func (s *Server) registerTokenRoutes() {
	g := s.echo.Group("/api/tokens", newRateLimiter(s.config.TokenRatePerSecond, s.config.TokenRateBurst))
	g.POST("", s.handleIssueToken)
	g.POST("/short", s.handleIssueShortToken)
	g.GET("/:token", s.handleTokenStatus)
}

func (s *Server) handleIssueToken(c echo.Context) error {
	return s.issueToken(c, s.config.TokenTTL, tokenClassDefault)
}

// handleIssueShortToken issues a token that lapses within seconds, for
// exercising the expiry path end to end.
func (s *Server) handleIssueShortToken(c echo.Context) error {
	if !s.config.EnableShortTokens {
		return apperrors.NotFoundError("short-lived tokens are disabled")
	}
	return s.issueToken(c, s.config.ShortTokenTTL, tokenClassShort)
}

func (s *Server) issueToken(c echo.Context, ttl time.Duration, class string) error {
	tok, err := s.tokens.Issue(ttl)
	if err != nil {
		return apperrors.InternalError("failed to issue token", err).WithField("class", class)
	}

	metrics.TokensIssuedTotal.WithLabelValues(class).Inc()
	slog.InfoContext(c.Request().Context(), "Token issued", "class", class, "expires_at", tok.ExpiresAt)

	if err := c.JSON(http.StatusCreated, tokenResponse{Token: tok.Value, ExpiryDate: tok.ExpiresAt}); err != nil {
		return fmt.Errorf("failed to write token response: %w", err)
	}
	return nil
}

func (s *Server) handleTokenStatus(c echo.Context) error {
	tok, err := s.tokens.Lookup(c.Param("token"))

	var (
		status   int
		response tokenStatusResponse
		result   string
	)
	switch {
	case err == nil:
		status, result = http.StatusOK, "valid"
		response = tokenStatusResponse{Valid: true, ExpiryDate: &tok.ExpiresAt}
	case errors.Is(err, domain.ErrTokenNotFound):
		status, result = http.StatusNotFound, "not_found"
		response = tokenStatusResponse{Message: "Token not found"}
	case errors.Is(err, domain.ErrTokenExpired):
		status, result = http.StatusNotFound, "expired"
		response = tokenStatusResponse{Message: "Token expired"}
	default:
		return apperrors.InternalError("failed to look up token", err)
	}

	metrics.TokenValidationsTotal.WithLabelValues(result).Inc()
	if err := c.JSON(status, response); err != nil {
		return fmt.Errorf("failed to write token status response: %w", err)
	}
	return nil
}
