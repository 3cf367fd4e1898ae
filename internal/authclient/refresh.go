package authclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vitameals/internal/models"
	"golang.org/x/oauth2"
)

// refreshTokenSource is an oauth2.TokenSource that exchanges a refresh token
// for a new session and remembers it.
type refreshTokenSource struct {
	ctx          context.Context
	client       *GoTrue
	refreshToken string

	session *models.Session
}

func (s *refreshTokenSource) Token() (*oauth2.Token, error) {
	sess, err := s.client.refresh(s.ctx, s.refreshToken)
	if err != nil {
		return nil, err
	}
	s.session = sess
	return sessionToken(sess), nil
}

func sessionToken(sess *models.Session) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  sess.AccessToken,
		TokenType:    sess.TokenType,
		RefreshToken: sess.RefreshToken,
		Expiry:       sess.Expiry(),
	}
}

// refreshWithinLocked refreshes sess if it expires within the given window.
// A refresh token the service rejects clears the session and returns nil.
func (g *GoTrue) refreshWithinLocked(ctx context.Context, sess *models.Session, within time.Duration) (*models.Session, error) {
	src := &refreshTokenSource{ctx: ctx, client: g, refreshToken: sess.RefreshToken}

	if _, err := oauth2.ReuseTokenSourceWithExpiry(sessionToken(sess), src, within).Token(); err != nil {
		var se *ServiceError
		if errors.As(err, &se) && se.IsClientError() {
			log.Info().
				Str("refresh", Fingerprint(sess.RefreshToken)).
				Str("code", se.Code).
				Msg("Refresh token rejected, clearing session")
			g.removeSessionLocked()
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrSessionResolution, err)
	}

	if src.session == nil {
		return sess, nil
	}

	g.setSessionLocked(EventTokenRefreshed, src.session)

	log.Debug().
		Str("user", src.session.Email()).
		Str("refresh", Fingerprint(src.session.RefreshToken)).
		Msg("Session refreshed")

	return src.session, nil
}

// refresh exchanges a refresh token, retrying transport failures, 5xx and
// 429 responses with exponential backoff.
func (g *GoTrue) refresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	body := map[string]string{"refresh_token": refreshToken}

	operation := func() (*models.Session, error) {
		var sess models.Session
		err := g.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", body, g.cfg.AnonKey, &sess)
		if err != nil {
			var se *ServiceError
			if errors.As(err, &se) && se.IsClientError() {
				return nil, backoff.Permanent(err)
			}
			log.Debug().Err(err).Msg("Refresh attempt failed, retrying")
			return nil, err
		}
		return &sess, nil
	}

	sess, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(g.cfg.RetryMaxElapsed),
	)
	if err != nil {
		return nil, err
	}

	normalizeSession(sess, time.Now())
	return sess, nil
}
