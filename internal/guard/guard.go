// Package guard decides whether the interactive app may show a screen.
package guard

import (
	"context"

	"github.com/wolfeidau/vitameals/internal/routes"
	"github.com/wolfeidau/vitameals/internal/session"
	"github.com/wolfeidau/vitameals/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Decision is the guard state for a screen.
type Decision int

const (
	// Undetermined means the session is still loading; render nothing.
	Undetermined Decision = iota
	// Unauthorized means the screen must not render; replace it with the redirect.
	Unauthorized
	// Authorized means the screen may render.
	Authorized
)

func (d Decision) String() string {
	switch d {
	case Undetermined:
		return "undetermined"
	case Unauthorized:
		return "unauthorized"
	case Authorized:
		return "authorized"
	}
	return "unknown"
}

// Verdict is the result of evaluating a path against a session state.
// RedirectTo is set when Decision is Unauthorized.
type Verdict struct {
	Decision   Decision
	RedirectTo string
}

// Gate evaluates screens against a route table. It holds no state of its
// own and is re-evaluated on every store publication.
type Gate struct {
	table routes.Table
}

// NewGate creates a gate for the given route table.
func NewGate(table routes.Table) *Gate {
	return &Gate{table: table}
}

// Evaluate applies the transition table:
//
//	loading                       -> Undetermined
//	protected, no session         -> Unauthorized, redirect to login
//	auth-only, session            -> Unauthorized, redirect to landing
//	otherwise                     -> Authorized
//
// Public routes never wait for the session.
func (g *Gate) Evaluate(path string, st session.State) Verdict {
	class := g.table.Classify(path)

	if class == routes.Public {
		return Verdict{Decision: Authorized}
	}

	if st.Loading {
		return Verdict{Decision: Undetermined}
	}

	switch {
	case class == routes.Protected && st.Session == nil:
		return Verdict{Decision: Unauthorized, RedirectTo: g.table.Login}
	case class == routes.AuthOnly && st.Session != nil:
		return Verdict{Decision: Unauthorized, RedirectTo: g.table.Landing}
	}

	return Verdict{Decision: Authorized}
}

// Record counts a verdict for the app surface.
func Record(ctx context.Context, v Verdict) {
	telemetry.GetMetrics().GateDecisionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("surface", "app"),
		attribute.String("decision", v.Decision.String()),
	))
}
