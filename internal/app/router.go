package app

import "sync"

// Router is the navigation history of the app. The last entry is the
// current screen. It is safe for concurrent use.
type Router struct {
	mu      sync.Mutex
	history []string
}

// NewRouter creates a router positioned at initial.
func NewRouter(initial string) *Router {
	return &Router{history: []string{initial}}
}

// Current returns the path of the visible screen.
func (r *Router) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history[len(r.history)-1]
}

// Depth returns the number of history entries.
func (r *Router) Depth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}

// Push navigates to path, keeping the current screen in the history.
func (r *Router) Push(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, path)
}

// NavigateReplace navigates to path in place of the current screen so a
// bounced navigation never grows the history.
func (r *Router) NavigateReplace(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[len(r.history)-1] = path
}

// NavigateBack returns to the previous screen. It returns false, leaving
// the history unchanged, when there is nothing to go back to.
func (r *Router) NavigateBack() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) < 2 {
		return false
	}
	r.history = r.history[:len(r.history)-1]
	return true
}
