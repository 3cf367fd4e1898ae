// Package routes holds the static route classification consulted by both
// route guards.
package routes

import (
	_ "embed"
	"errors"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed routes.yaml
var defaultRoutes []byte

// Class is the access policy of a route.
type Class string

const (
	Public    Class = "public"
	AuthOnly  Class = "auth-only"
	Protected Class = "protected"
)

func (c Class) valid() bool {
	switch c {
	case Public, AuthOnly, Protected:
		return true
	}
	return false
}

// Route maps a path pattern to a class. A pattern ending in /* matches every
// path below its prefix but not the prefix itself.
type Route struct {
	Pattern string `yaml:"pattern"`
	Class   Class  `yaml:"class"`
}

// Table is the classification for one surface.
type Table struct {
	Login   string   `yaml:"login"`
	Landing string   `yaml:"landing"`
	Matcher []string `yaml:"matcher"`
	Routes  []Route  `yaml:"routes"`
}

// Config holds the tables of both surfaces.
type Config struct {
	Web Table `yaml:"web"`
	App Table `yaml:"app"`
}

// Load parses and validates a YAML route document.
func Load(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse routes: %w", err)
	}

	if err := cfg.Web.Validate(); err != nil {
		return nil, fmt.Errorf("invalid web routes: %w", err)
	}
	if err := cfg.App.Validate(); err != nil {
		return nil, fmt.Errorf("invalid app routes: %w", err)
	}

	return &cfg, nil
}

// Default returns the embedded route configuration.
func Default() *Config {
	cfg, err := Load(defaultRoutes)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks that patterns are absolute, classes are known, and that
// the login and landing routes are classified consistently.
func (t *Table) Validate() error {
	if t.Login == "" || t.Landing == "" {
		return errors.New("login and landing routes are required")
	}

	for _, r := range t.Routes {
		if !strings.HasPrefix(r.Pattern, "/") {
			return fmt.Errorf("route pattern %q must start with /", r.Pattern)
		}
		if !r.Class.valid() {
			return fmt.Errorf("route %q has unknown class %q", r.Pattern, r.Class)
		}
	}

	for _, m := range t.Matcher {
		if !strings.HasPrefix(m, "/") {
			return fmt.Errorf("matcher %q must start with /", m)
		}
	}

	if t.Classify(t.Login) == Protected {
		return fmt.Errorf("login route %q must not be protected", t.Login)
	}
	if t.Classify(t.Landing) != Protected {
		return fmt.Errorf("landing route %q must be protected", t.Landing)
	}

	return nil
}

// Classify returns the class of p. Exact patterns win over wildcards and
// longer wildcards over shorter ones; unmatched paths are public.
func (t *Table) Classify(p string) Class {
	p = Clean(p)

	class := Public
	best := -1
	for _, r := range t.Routes {
		score, ok := matchScore(r.Pattern, p)
		if ok && score > best {
			best = score
			class = r.Class
		}
	}
	return class
}

// Intercepts returns true if the server-side guard should run for p.
// An empty matcher intercepts everything.
func (t *Table) Intercepts(p string) bool {
	if len(t.Matcher) == 0 {
		return true
	}

	p = Clean(p)
	for _, m := range t.Matcher {
		if _, ok := matchScore(m, p); ok {
			return true
		}
	}
	return false
}

// Clean normalises a request path.
func Clean(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// matchScore reports whether pattern matches p. Exact matches score above
// any wildcard.
func matchScore(pattern, p string) (int, bool) {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if prefix == "" {
			return len(pattern), p != "/"
		}
		return len(pattern), strings.HasPrefix(p, prefix+"/")
	}

	if pattern == p {
		return len(pattern) + 1<<16, true
	}
	return 0, false
}
