package http

import (
	"context"
	"io"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vitameals/internal/authclient"
	"github.com/wolfeidau/vitameals/internal/models"
	"github.com/wolfeidau/vitameals/internal/routes"
	"github.com/wolfeidau/vitameals/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ClientFactory builds a request-scoped auth client over the given storage.
type ClientFactory func(storage authclient.Storage) (authclient.Client, error)

// ActivityRecorder receives guard redirects for the activity log.
type ActivityRecorder interface {
	Record(ctx context.Context, activity *models.Activity) error
}

// SessionGateOptions configures SessionGate.
type SessionGateOptions struct {
	Cookies authclient.CookieOptions

	// ResolveTimeout bounds session resolution per request. Default: 10s
	ResolveTimeout time.Duration

	// Activity is optional.
	Activity ActivityRecorder
}

// SessionFromContext returns the session resolved by SessionGate, or nil.
func SessionFromContext(ctx context.Context) *models.Session {
	sess, _ := ctx.Value(sessionContextKey).(*models.Session)
	return sess
}

// ContextWithSession returns a copy of ctx carrying sess.
func ContextWithSession(ctx context.Context, sess *models.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// SessionGate resolves the session from the request cookies on every
// intercepted request and applies the route policy in order:
//
//   - session present on an auth-only path: redirect to the landing route
//   - no session on a protected path: redirect to the login route
//   - otherwise: pass through
//
// Cookies written while resolving the session, such as a refreshed token, are
// set on the response in every case. A session that cannot be resolved is
// treated as absent.
func SessionGate(table routes.Table, factory ClientFactory, opts SessionGateOptions) func(http.Handler) http.Handler {
	if opts.ResolveTimeout == 0 {
		opts.ResolveTimeout = 10 * time.Second
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !table.Intercepts(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			storage := authclient.NewCookieStorage(r, opts.Cookies)
			sess := resolveSession(r.Context(), storage, factory, opts.ResolveTimeout)

			ForwardCookies(w, storage)
			r = WithCookies(r, storage.Mutations())

			path := routes.Clean(r.URL.Path)
			class := table.Classify(path)

			decision, target := "pass", ""
			switch {
			case sess != nil && class == routes.AuthOnly:
				decision, target = "redirect_landing", table.Landing
			case sess == nil && class == routes.Protected:
				decision, target = "redirect_login", table.Login
			}

			telemetry.GetMetrics().GateDecisionsTotal.Add(r.Context(), 1, metric.WithAttributes(
				attribute.String("surface", "web"),
				attribute.String("decision", decision),
			))

			if target != "" {
				zerolog.Ctx(r.Context()).Debug().
					Str("class", string(class)).
					Str("redirect", target).
					Msg("session gate redirect")

				recordRedirect(r, opts.Activity, sess, target)
				http.Redirect(w, r, target, http.StatusTemporaryRedirect)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), sess)))
		})
	}
}

// ResolveSession resolves the session for a request SessionGate does not
// intercept and sets any cookies written while doing so on w.
func ResolveSession(w http.ResponseWriter, r *http.Request, factory ClientFactory, opts SessionGateOptions) *models.Session {
	if opts.ResolveTimeout == 0 {
		opts.ResolveTimeout = 10 * time.Second
	}

	storage := authclient.NewCookieStorage(r, opts.Cookies)
	sess := resolveSession(r.Context(), storage, factory, opts.ResolveTimeout)
	ForwardCookies(w, storage)
	return sess
}

func resolveSession(ctx context.Context, storage authclient.Storage, factory ClientFactory, timeout time.Duration) *models.Session {
	m := telemetry.GetMetrics()
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		m.SessionResolveDuration.Record(ctx, float64(time.Since(started).Milliseconds()))
	}()

	client, err := factory(storage)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to create auth client")
		m.SessionResolutionFailures.Add(ctx, 1)
		return nil
	}
	if c, ok := client.(io.Closer); ok {
		defer c.Close()
	}

	sess, err := client.GetSession(ctx)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("session resolution failed, treating as signed out")
		m.SessionResolutionFailures.Add(ctx, 1)
		return nil
	}

	return sess
}

func recordRedirect(r *http.Request, recorder ActivityRecorder, sess *models.Session, target string) {
	if recorder == nil {
		return
	}

	err := recorder.Record(r.Context(), &models.Activity{
		Email:     sess.Email(),
		Kind:      models.ActivityGuardRedirect,
		Path:      r.URL.Path + " -> " + target,
		IPAddress: ClientIPFromContext(r.Context()),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("failed to record guard redirect")
	}
}

// ForwardCookies sets every cookie written through storage on the response.
func ForwardCookies(w http.ResponseWriter, storage *authclient.CookieStorage) {
	for _, c := range storage.Mutations() {
		http.SetCookie(w, c)
	}
}

// WithCookies returns a copy of r with mutations applied to its Cookie
// header. Cookies that were not mutated keep their raw header text. With no
// mutations r is returned unchanged.
func WithCookies(r *http.Request, mutations []*http.Cookie) *http.Request {
	if len(mutations) == 0 {
		return r
	}

	mutated := make(map[string]bool, len(mutations))
	for _, c := range mutations {
		mutated[c.Name] = true
	}

	var pairs []string
	for _, line := range r.Header.Values("Cookie") {
		for _, part := range strings.Split(line, ";") {
			part = textproto.TrimString(part)
			if part == "" {
				continue
			}
			name, _, _ := strings.Cut(part, "=")
			if mutated[textproto.TrimString(name)] {
				continue
			}
			pairs = append(pairs, part)
		}
	}

	for _, c := range mutations {
		if c.MaxAge < 0 {
			continue
		}
		pairs = append(pairs, c.Name+"="+c.Value)
	}

	r2 := r.Clone(r.Context())
	r2.Header.Del("Cookie")
	if len(pairs) > 0 {
		r2.Header.Set("Cookie", strings.Join(pairs, "; "))
	}
	return r2
}
