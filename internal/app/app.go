// Package app is the consumer app: a terminal UI driven by a single event
// loop. Session store publications, user input and the completions of
// asynchronous auth operations are all handled on that loop, and the route
// guard is re-evaluated on every publication.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/vitameals/internal/authclient"
	"github.com/wolfeidau/vitameals/internal/guard"
	"github.com/wolfeidau/vitameals/internal/routes"
	"github.com/wolfeidau/vitameals/internal/session"
)

// SessionStore is the part of session.Store the app consumes.
type SessionStore interface {
	State() session.State
	Subscribe(fn session.Listener) func()
	SignIn(ctx context.Context, email, password string) session.Result
	SignUp(ctx context.Context, email, password string) session.Result
	SignOut(ctx context.Context) session.Result
}

// Options configures an App.
type Options struct {
	Store  SessionStore
	Routes routes.Table
	In     io.Reader
	Out    io.Writer

	// Settings is optional. When set, the sign up screen says whether the
	// email address must be confirmed.
	Settings func(ctx context.Context) (*authclient.Settings, error)

	Logger zerolog.Logger
}

// App is the interactive surface. It is not safe for concurrent use; all
// of its state is owned by Run.
type App struct {
	opts   Options
	gate   *guard.Gate
	router *Router
	out    *bufio.Writer

	events chan event
	done   chan struct{}
	ctx    context.Context

	state session.State

	// gen identifies the mounted screen. Completions started by an earlier
	// screen carry a stale gen and are dropped.
	gen         uint64
	mounted     screen
	mountedPath string
	placeholder bool
	quit        bool
}

type event interface{ isEvent() }

type stateEvent struct{ state session.State }

type inputEvent struct {
	line string
	eof  bool
}

type completion struct {
	gen   uint64
	apply func()
}

func (stateEvent) isEvent() {}
func (inputEvent) isEvent() {}
func (completion) isEvent() {}

// New creates an app positioned at the entry route.
func New(opts Options) (*App, error) {
	if opts.Store == nil {
		return nil, errors.New("session store is required")
	}
	if opts.In == nil || opts.Out == nil {
		return nil, errors.New("input and output are required")
	}
	if err := opts.Routes.Validate(); err != nil {
		return nil, err
	}

	return &App{
		opts:   opts,
		gate:   guard.NewGate(opts.Routes),
		router: NewRouter("/"),
		out:    bufio.NewWriter(opts.Out),
		events: make(chan event, 16),
	}, nil
}

// Router returns the navigation history.
func (a *App) Router() *Router {
	return a.router
}

// Run drives the event loop until the input ends, the user quits or ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.ctx = ctx
	a.done = make(chan struct{})

	unsubscribe := a.opts.Store.Subscribe(a.onState)
	defer unsubscribe()
	// listeners blocked on the event channel are released before unsubscribing
	defer close(a.done)
	defer a.out.Flush()

	go a.readInput()

	a.state = a.opts.Store.State()
	a.evaluate()
	a.flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-a.events:
			a.dispatch(ev)
			a.flush()
			if a.quit {
				return nil
			}
		}
	}
}

func (a *App) dispatch(ev event) {
	switch ev := ev.(type) {
	case stateEvent:
		if ev.state.Version <= a.state.Version {
			return
		}
		a.state = ev.state
		a.evaluate()

	case inputEvent:
		if ev.eof {
			a.quit = true
			return
		}
		a.handleInput(ev.line)

	case completion:
		if ev.gen != a.gen {
			a.opts.Logger.Debug().Uint64("gen", ev.gen).Msg("dropping completion for unmounted screen")
			return
		}
		ev.apply()
	}
}

// onState is the store listener. It runs on the publishing goroutine.
func (a *App) onState(st session.State) {
	select {
	case a.events <- stateEvent{state: st}:
	case <-a.done:
	}
}

func (a *App) readInput() {
	scanner := bufio.NewScanner(a.opts.In)
	for scanner.Scan() {
		select {
		case a.events <- inputEvent{line: strings.TrimSuffix(scanner.Text(), "\r")}:
		case <-a.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		a.opts.Logger.Warn().Err(err).Msg("failed to read input")
	}

	select {
	case a.events <- inputEvent{eof: true}:
	case <-a.done:
	}
}

// handleInput passes line to the mounted screen as typed, so password
// fields keep their surrounding whitespace. Commands are matched trimmed.
func (a *App) handleInput(line string) {
	switch command(line) {
	case "quit", "exit":
		a.quit = true
		return
	}

	if a.mounted == nil {
		// the guard has not decided yet
		return
	}
	a.mounted.handle(a, line)
}

func command(line string) string {
	return strings.TrimSpace(line)
}

// evaluate applies the guard to the current route and mounts the screen
// when it may render.
func (a *App) evaluate() {
	path := a.router.Current()
	v := a.gate.Evaluate(path, a.state)
	guard.Record(a.ctx, v)

	switch v.Decision {
	case guard.Undetermined:
		if !a.placeholder || a.mountedPath != path {
			a.unmount()
			a.mountedPath = path
			a.placeholder = true
			a.println("Loading...")
		}
		return

	case guard.Unauthorized:
		a.opts.Logger.Debug().Str("path", path).Str("redirect", v.RedirectTo).Msg("guard redirect")
		a.router.NavigateReplace(v.RedirectTo)
		a.evaluate()
		return
	}

	if a.mounted != nil && a.mountedPath == path {
		if s, ok := a.mounted.(stateAware); ok {
			s.stateChanged(a)
		}
		return
	}

	a.mount(path)
}

func (a *App) mount(path string) {
	a.unmount()
	a.mounted = screenFor(path)
	a.mountedPath = path
	a.placeholder = false
	a.mounted.mount(a)
}

func (a *App) unmount() {
	a.gen++
	a.mounted = nil
}

// navigateReplace replaces the current screen with path.
func (a *App) navigateReplace(path string) {
	a.router.NavigateReplace(path)
	a.evaluate()
}

// push opens path on top of the current screen.
func (a *App) push(path string) {
	a.router.Push(path)
	a.evaluate()
}

// back returns to the previous screen, or to fallback when there is none.
func (a *App) back(fallback string) {
	if !a.router.NavigateBack() {
		a.router.NavigateReplace(fallback)
	}
	a.unmount()
	a.evaluate()
}

// async runs op off the loop. The function it returns is applied on the
// loop, unless the screen that started it has been unmounted by then.
func (a *App) async(op func(ctx context.Context) func()) {
	gen := a.gen
	go func() {
		apply := op(a.ctx)
		select {
		case a.events <- completion{gen: gen, apply: apply}:
		case <-a.done:
		}
	}()
}

// alert shows a blocking notification.
func (a *App) alert(title, message string) {
	a.printf("[%s] %s\n", title, message)
}

func (a *App) println(s string) {
	_, _ = a.out.WriteString(s + "\n")
}

func (a *App) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

func (a *App) flush() {
	if err := a.out.Flush(); err != nil {
		a.opts.Logger.Warn().Err(err).Msg("failed to write output")
	}
}
