// Package session holds the process-wide reactive session state for the
// interactive app.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/vitameals/internal/authclient"
	"github.com/wolfeidau/vitameals/internal/models"
	"github.com/wolfeidau/vitameals/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrAlreadyInitialized is returned by a second call to Store.Initialize.
var ErrAlreadyInitialized = errors.New("session store already initialized")

// State is a published snapshot of the store.
type State struct {
	Session *models.Session
	Loading bool

	// Version increases with every publication.
	Version uint64
}

// SignedIn returns true once loading has finished with a session present.
func (s State) SignedIn() bool {
	return !s.Loading && s.Session != nil
}

// Listener receives every published State in publication order. Listeners run
// synchronously on the publishing goroutine and must not call back into the
// Store's credential operations.
type Listener func(State)

type listener struct {
	id uint64
	fn Listener
}

// Store republishes the auth client's session changes to listeners.
//
// The session is only ever changed by notifications from the auth client;
// SignIn, SignUp and SignOut forward to the client and report a Result.
type Store struct {
	client authclient.Client
	logger zerolog.Logger

	// pubMu serialises apply-and-deliver so listeners observe states in order.
	pubMu sync.Mutex

	mu          sync.Mutex
	state       State
	notified    bool
	initialized bool
	released    bool
	listeners   []listener
	nextID      uint64
}

// NewStore creates a Store in the loading state.
func NewStore(client authclient.Client, logger zerolog.Logger) *Store {
	return &Store{
		client: client,
		logger: logger,
		state:  State{Loading: true},
	}
}

// Initialize subscribes to the auth client and starts the initial session
// fetch. The returned release function unsubscribes, cancels the fetch if it
// is still running, and stops all further publications. It is safe to call
// more than once.
func (s *Store) Initialize(ctx context.Context) (func(), error) {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil, ErrAlreadyInitialized
	}
	s.initialized = true
	s.state = State{Loading: true, Version: s.state.Version}
	s.mu.Unlock()

	unsubscribe := s.client.OnAuthStateChange(s.handleChange)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.fetchInitial(ctx)
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			s.released = true
			s.mu.Unlock()

			cancel()
			unsubscribe()
			<-done

			s.logger.Debug().Msg("session store released")
		})
	}

	return release, nil
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for future publications and returns a function that
// removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// SignIn forwards to the auth client. The session changes through the
// resulting notification, not through this call.
func (s *Store) SignIn(ctx context.Context, email, password string) Result {
	return s.record(ctx, "sign_in", func(ctx context.Context) (Result, error) {
		return Succeeded(), s.client.SignIn(ctx, email, password)
	})
}

// SignUp forwards to the auth client.
func (s *Store) SignUp(ctx context.Context, email, password string) Result {
	return s.record(ctx, "sign_up", func(ctx context.Context) (Result, error) {
		res, err := s.client.SignUp(ctx, email, password)
		if err != nil {
			return Result{}, err
		}
		r := Succeeded()
		r.ConfirmationRequired = res.ConfirmationRequired
		return r, nil
	})
}

// SignOut forwards to the auth client. Signing out while signed out succeeds.
func (s *Store) SignOut(ctx context.Context) Result {
	return s.record(ctx, "sign_out", func(ctx context.Context) (Result, error) {
		return Succeeded(), s.client.SignOut(ctx)
	})
}

func (s *Store) record(ctx context.Context, op string, fn func(context.Context) (Result, error)) Result {
	started := time.Now()

	res, err := fn(ctx)
	if err != nil {
		res = Failed(err)
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", res.Kind.String()),
		attribute.String("error_kind", string(res.ErrorKind)),
	)
	m := telemetry.GetMetrics()
	m.AuthOperationsTotal.Add(ctx, 1, attrs)
	m.AuthOperationDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)

	if !res.OK() {
		s.logger.Debug().Err(err).Str("operation", op).Str("error_kind", string(res.ErrorKind)).Msg("auth operation failed")
	}

	return res
}

func (s *Store) handleChange(event authclient.Event, sess *models.Session) {
	s.logger.Debug().Str("event", string(event)).Str("user", sess.Email()).Msg("session change")

	s.publish(func(st *State) bool {
		s.notified = true
		st.Session = sess
		st.Loading = false
		return true
	})
}

func (s *Store) fetchInitial(ctx context.Context) {
	sess, err := s.client.GetSession(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn().Err(err).Msg("failed to fetch initial session")
		sess = nil
	}

	s.publish(func(st *State) bool {
		// a notification has already delivered a fresher session
		if s.notified {
			return false
		}
		st.Session = sess
		st.Loading = false
		return true
	})
}

// publish applies mutate under the lock and delivers the new state to every
// listener. Nothing is published after release.
func (s *Store) publish(mutate func(*State) bool) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}

	next := s.state
	if !mutate(&next) {
		s.mu.Unlock()
		return
	}
	next.Version = s.state.Version + 1
	s.state = next

	fns := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		fns = append(fns, l.fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
}
