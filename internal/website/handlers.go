package website

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vitameals/internal/authclient"
	"github.com/wolfeidau/vitameals/internal/forms"
	httpmiddleware "github.com/wolfeidau/vitameals/internal/http"
	"github.com/wolfeidau/vitameals/internal/models"
	"github.com/wolfeidau/vitameals/internal/session"
	"github.com/wolfeidau/vitameals/internal/store"
)

const (
	msgVerifyEmail        = "Please check your email to verify your account before signing in."
	msgSignupDisabled     = "Registration is currently closed."
	msgLogoutFailed       = "Failed to logout. Please try again."
	msgServiceUnavailable = "The sign in service is unavailable. Please try again later."
)

const (
	loginTitle     = "Partner Login"
	registerTitle  = "Become a Partner"
	dashboardTitle = "Vitameals Dashboard"
)

// registeredParam is set on the login redirect after a registration that
// needs email confirmation.
const registeredParam = "registered"

// card links the dashboard to a section.
type card struct {
	Title       string
	Description string
	Href        string
}

var dashboardCards = []card{
	{Title: "Upcoming Meals", Description: "View and manage scheduled meals for this week.", Href: "/dashboard/meals"},
	{Title: "Order History", Description: "Check your previous meal orders and receipts.", Href: "/dashboard/orders"},
	{Title: "Nutrition Tracking", Description: "Monitor nutritional intake and dietary preferences.", Href: "/dashboard/nutrition"},
}

func (s *Site) home(w http.ResponseWriter, r *http.Request) {
	sess := httpmiddleware.ResolveSession(w, r, s.cfg.Factory, s.gateOptions())
	if sess != nil {
		http.Redirect(w, r, s.cfg.Routes.Landing, http.StatusTemporaryRedirect)
		return
	}

	s.pages.render(w, r, http.StatusOK, "home", pageData{Title: "Vitameals"})
}

func (s *Site) loginPage(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: loginTitle}
	if r.URL.Query().Has(registeredParam) {
		data.Notice = msgVerifyEmail
	}
	s.pages.render(w, r, http.StatusOK, "login", data)
}

func (s *Site) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	form := forms.LoginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	data := pageData{Title: loginTitle, Email: form.Email}

	if err := form.Validate(); err != nil {
		data.Error = err.Error()
		s.pages.render(w, r, http.StatusUnprocessableEntity, "login", data)
		return
	}

	email := form.NormalizedEmail()
	res := s.withStore(w, r, func(ctx context.Context, st *session.Store) session.Result {
		return st.SignIn(ctx, email, form.Password)
	})
	if !res.OK() {
		s.recordActivity(r, email, models.ActivitySignInFailed)
		status, msg := failure(res)
		data.Error = msg
		s.pages.render(w, r, status, "login", data)
		return
	}

	s.recordActivity(r, email, models.ActivitySignIn)
	http.Redirect(w, r, s.cfg.Routes.Landing, http.StatusSeeOther)
}

func (s *Site) registerPage(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: registerTitle}

	if s.cfg.Settings != nil {
		settings, err := s.cfg.Settings(r.Context())
		switch {
		case err != nil:
			log.Ctx(r.Context()).Warn().Err(err).Msg("failed to load auth settings")
		case settings.DisableSignup:
			data.Error = msgSignupDisabled
		default:
			data.ConfirmationRequired = !settings.MailerAutoconfirm
		}
	}

	s.pages.render(w, r, http.StatusOK, "register", data)
}

func (s *Site) register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	form := forms.SignupForm{
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
	data := pageData{Title: registerTitle, Email: form.Email}

	if err := form.Validate(); err != nil {
		data.Error = err.Error()
		s.pages.render(w, r, http.StatusUnprocessableEntity, "register", data)
		return
	}

	email := form.NormalizedEmail()
	res := s.withStore(w, r, func(ctx context.Context, st *session.Store) session.Result {
		return st.SignUp(ctx, email, form.Password)
	})
	if !res.OK() {
		status, msg := failure(res)
		data.Error = msg
		s.pages.render(w, r, status, "register", data)
		return
	}

	s.recordActivity(r, email, models.ActivitySignUp)

	if res.ConfirmationRequired {
		http.Redirect(w, r, s.cfg.Routes.Login+"?"+registeredParam+"=1", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, s.cfg.Routes.Landing, http.StatusSeeOther)
}

func (s *Site) logout(w http.ResponseWriter, r *http.Request) {
	sess := httpmiddleware.SessionFromContext(r.Context())

	res := s.withStore(w, r, func(ctx context.Context, st *session.Store) session.Result {
		return st.SignOut(ctx)
	})
	if !res.OK() {
		s.pages.render(w, r, http.StatusBadGateway, "dashboard", pageData{
			Title:   dashboardTitle,
			Session: sess,
			Error:   msgLogoutFailed,
			Cards:   dashboardCards,
		})
		return
	}

	if sess != nil {
		s.recordActivity(r, sess.Email(), models.ActivitySignOut)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Site) dashboard(w http.ResponseWriter, r *http.Request) {
	s.pages.render(w, r, http.StatusOK, "dashboard", pageData{
		Title:   dashboardTitle,
		Session: httpmiddleware.SessionFromContext(r.Context()),
		Cards:   dashboardCards,
	})
}

func (s *Site) section(w http.ResponseWriter, r *http.Request) {
	sec, ok := findSection(r.PathValue("section"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	sess := httpmiddleware.SessionFromContext(r.Context())
	data := pageData{
		Title:   sec.Title,
		Session: sess,
		Section: sec,
	}

	if sec.Slug == "profile" && s.cfg.Activity != nil {
		activities, err := s.cfg.Activity.ListByEmail(r.Context(), sess.Email(), store.DefaultListLimit)
		if err != nil {
			log.Ctx(r.Context()).Warn().Err(err).Msg("failed to list activity")
		}
		data.Activities = activities
	}

	s.pages.render(w, r, http.StatusOK, "section", data)
}

// sessionResponse is the JSON view of the session. Tokens are never exposed.
type sessionResponse struct {
	SignedIn    bool       `json:"signed_in"`
	UserID      string     `json:"user_id,omitempty"`
	Email       string     `json:"email,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func (s *Site) apiSession(w http.ResponseWriter, r *http.Request) {
	sess := httpmiddleware.ResolveSession(w, r, s.cfg.Factory, s.gateOptions())

	var resp sessionResponse
	if sess != nil {
		resp.SignedIn = true
		resp.Email = sess.Email()
		resp.DisplayName = sess.User.DisplayName()
		if sess.User != nil {
			resp.UserID = sess.User.ID.String()
		}
		if exp := sess.Expiry(); !exp.IsZero() {
			resp.ExpiresAt = &exp
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to encode session response")
	}
}

// withStore runs op against a request-scoped session store and forwards any
// cookies it wrote.
func (s *Site) withStore(w http.ResponseWriter, r *http.Request, op func(context.Context, *session.Store) session.Result) session.Result {
	storage := authclient.NewCookieStorage(r, s.cfg.Cookies)

	client, err := s.cfg.Factory(storage)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("failed to create auth client")
		return session.Failed(fmt.Errorf("%w: %w", authclient.ErrServiceUnavailable, err))
	}
	if c, ok := client.(io.Closer); ok {
		defer c.Close()
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ResolveTimeout)
	defer cancel()

	res := op(ctx, session.NewStore(client, *zerolog.Ctx(r.Context())))
	httpmiddleware.ForwardCookies(w, storage)
	return res
}

// failure maps a failed result to a response status and the message shown
// on the form. Messages from the auth service are shown as sent; only
// transport failures get the generic text.
func failure(res session.Result) (int, string) {
	var se *authclient.ServiceError
	switch {
	case res.ErrorKind == session.ErrorKindValidation:
		return http.StatusUnprocessableEntity, res.Message
	case errors.As(res.Cause, &se) && se.IsClientError():
		return http.StatusUnprocessableEntity, res.Message
	case se != nil:
		return http.StatusServiceUnavailable, res.Message
	default:
		return http.StatusServiceUnavailable, msgServiceUnavailable
	}
}
