package website

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vitameals/internal/models"
)

//go:embed templates/*.html
var templatesFS embed.FS

const layoutTemplate = "templates/layout.html"

// pages holds one template set per page, each sharing the layout.
type pages struct {
	byName map[string]*template.Template
}

func loadPages() (*pages, error) {
	funcs := template.FuncMap{
		"formatTime": func(t time.Time) string {
			return t.UTC().Format("02 Jan 2006 15:04 MST")
		},
		"activityLabel": activityLabel,
	}

	layout, err := template.New(path.Base(layoutTemplate)).Funcs(funcs).ParseFS(templatesFS, layoutTemplate)
	if err != nil {
		return nil, err
	}

	names, err := fs.Glob(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	p := &pages{byName: make(map[string]*template.Template)}
	for _, name := range names {
		if name == layoutTemplate {
			continue
		}

		t, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		if _, err = t.ParseFS(templatesFS, name); err != nil {
			return nil, err
		}
		p.byName[strings.TrimSuffix(path.Base(name), ".html")] = t
	}

	return p, nil
}

// pageData is passed to every template.
type pageData struct {
	Title   string
	Session *models.Session
	Error   string
	Notice  string

	// form values echoed back after a failed submission
	Email string

	ConfirmationRequired bool
	Cards                []card
	Section              *section
	Activities           []*models.Activity
}

func (d pageData) DisplayName() string {
	if d.Session == nil {
		return ""
	}
	return d.Session.User.DisplayName()
}

// render executes the named page into a buffer so template errors never
// produce a partial response.
func (p *pages) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	t, ok := p.byName[name]
	if !ok {
		log.Ctx(r.Context()).Error().Str("page", name).Msg("Unknown page")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, path.Base(layoutTemplate), data); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("page", name).Msg("Failed to render template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// section is a dashboard area that is not built yet.
type section struct {
	Slug       string
	Title      string
	ComingSoon []string
}

var sections = []section{
	{
		Slug:  "orders",
		Title: "Incoming Orders",
		ComingSoon: []string{
			"View incoming orders from schools",
			"Accept or decline order requests",
			"Set order preparation times",
			"Track order status and delivery",
			"Generate invoices and receipts",
			"Communicate with school administrators",
		},
	},
	{
		Slug:  "meals",
		Title: "Menu Items",
		ComingSoon: []string{
			"Add and edit menu items",
			"Set nutritional information",
			"Manage pricing and availability",
			"Upload food photos",
			"Track ingredient inventory",
		},
	},
	{
		Slug:  "nutrition",
		Title: "Business Analytics",
		ComingSoon: []string{
			"Revenue and sales tracking",
			"Popular menu item analytics",
			"Customer demographics insights",
			"Order volume trends and forecasting",
			"Peak hours and scheduling analytics",
			"Performance comparison with other partners",
		},
	},
	{
		Slug:  "profile",
		Title: "Restaurant Profile",
		ComingSoon: []string{
			"Restaurant information and branding",
			"Business hours and availability settings",
			"Contact and delivery preferences",
			"Payment and banking information",
			"Food safety certifications",
			"Notification and communication preferences",
		},
	},
}

func findSection(slug string) (*section, bool) {
	for i := range sections {
		if sections[i].Slug == slug {
			return &sections[i], true
		}
	}
	return nil, false
}

func activityLabel(kind string) string {
	switch kind {
	case models.ActivitySignIn:
		return "Signed in"
	case models.ActivitySignInFailed:
		return "Failed sign in"
	case models.ActivitySignUp:
		return "Registered"
	case models.ActivitySignOut:
		return "Signed out"
	case models.ActivityGuardRedirect:
		return "Redirected"
	default:
		return kind
	}
}
