package authclient

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/wolfeidau/vitameals/internal/models"
)

// accessClaims are the access token claims the client reads.
type accessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// parseAccessClaims decodes the access token without verifying its signature.
// The claims only fill gaps in the service response; they are never used to
// make an authorization decision.
func parseAccessClaims(token string) (*accessClaims, error) {
	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}
	return &claims, nil
}

// normalizeSession fills the expiry and identity from expires_in or the
// access token claims when the response omitted them.
func normalizeSession(sess *models.Session, now time.Time) {
	if sess.TokenType == "" {
		sess.TokenType = "bearer"
	}

	if sess.ExpiresAt == 0 && sess.ExpiresIn > 0 {
		sess.ExpiresAt = now.Add(time.Duration(sess.ExpiresIn) * time.Second).Unix()
	}

	if sess.ExpiresAt != 0 && sess.User != nil {
		return
	}

	claims, err := parseAccessClaims(sess.AccessToken)
	if err != nil {
		return
	}

	if sess.ExpiresAt == 0 && claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Unix()
	}

	if sess.User == nil && claims.Subject != "" {
		id, err := uuid.Parse(claims.Subject)
		if err != nil {
			return
		}
		sess.User = &models.User{ID: id, Email: claims.Email, Role: claims.Role}
	}
}
