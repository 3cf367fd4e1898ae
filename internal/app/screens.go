package app

import (
	"context"
	"strings"

	"github.com/wolfeidau/vitameals/internal/forms"
	"github.com/wolfeidau/vitameals/internal/session"
)

const (
	pathEntry    = "/"
	pathLogin    = "/(auth)/login"
	pathSignup   = "/(auth)/signup"
	pathHome     = "/(tabs)"
	pathSettings = "/(tabs)/settings"
	pathOrders   = "/my-orders"
	pathReserve  = "/reserve-meal"
)

const msgVerifyEmail = "Please check your email to verify your account before signing in."

// screen is a mounted route. Methods run on the event loop.
type screen interface {
	mount(a *App)
	handle(a *App, line string)
}

// stateAware screens react to session publications while mounted.
type stateAware interface {
	stateChanged(a *App)
}

func screenFor(path string) screen {
	switch path {
	case pathEntry:
		return &entryScreen{}
	case pathLogin:
		return &loginScreen{form: newForm("Email", "Password")}
	case pathSignup:
		return &signupScreen{form: newForm("Email", "Password", "Confirm Password")}
	case pathHome:
		return &homeScreen{}
	case pathSettings:
		return &settingsScreen{}
	case pathOrders:
		return &placeholderScreen{
			title:       "My Orders",
			description: "View your order history and track the status of your current meal reservations.",
		}
	case pathReserve:
		return &placeholderScreen{
			title:       "Reserve a Meal",
			description: "Schedule and reserve meals for your child during school hours.",
		}
	default:
		return &placeholderScreen{title: "Not Found", description: "This screen does not exist."}
	}
}

// entryScreen shows a spinner until the session is known, then sends the
// user to the home tab or the login screen.
type entryScreen struct{}

func (s *entryScreen) mount(a *App) {
	s.stateChanged(a)
}

func (s *entryScreen) stateChanged(a *App) {
	switch {
	case a.state.Loading:
		a.println("Loading...")
	case a.state.SignedIn():
		a.navigateReplace(pathHome)
	default:
		a.navigateReplace(pathLogin)
	}
}

func (s *entryScreen) handle(*App, string) {}

// form collects field values one line at a time.
type form struct {
	labels []string
	values []string
}

func newForm(labels ...string) *form {
	return &form{labels: labels}
}

func (f *form) prompt(a *App) {
	a.printf("%s: ", f.labels[len(f.values)])
}

// fill stores the next field value and reports whether the form is complete.
func (f *form) fill(v string) bool {
	f.values = append(f.values, v)
	return len(f.values) == len(f.labels)
}

func (f *form) reset() {
	f.values = f.values[:0]
}

type loginScreen struct {
	form *form
	busy bool
}

func (s *loginScreen) mount(a *App) {
	a.println("Welcome Back")
	a.println("Sign in to your Vitameals account")
	a.println("Don't have an account? Enter :signup to Sign Up")
	s.form.prompt(a)
}

func (s *loginScreen) handle(a *App, line string) {
	if s.busy {
		return
	}
	if command(line) == ":signup" {
		a.push(pathSignup)
		return
	}
	if !s.form.fill(line) {
		s.form.prompt(a)
		return
	}

	f := forms.LoginForm{Email: s.form.values[0], Password: s.form.values[1]}
	s.form.reset()

	if err := f.Validate(); err != nil {
		a.alert("Error", err.Error())
		s.form.prompt(a)
		return
	}

	s.busy = true
	a.println("Signing In...")

	email := f.NormalizedEmail()
	a.async(func(ctx context.Context) func() {
		res := a.opts.Store.SignIn(ctx, email, f.Password)
		return func() {
			s.busy = false
			if !res.OK() {
				a.alert("Login Error", res.Message)
				s.form.prompt(a)
				return
			}
			a.navigateReplace(pathHome)
		}
	})
}

type signupScreen struct {
	form *form
	busy bool
}

func (s *signupScreen) mount(a *App) {
	a.println("Create Account")
	a.println("Join Vitameals to reserve healthy school meals")
	a.println("Already have an account? Enter :login to Sign In")

	if a.opts.Settings != nil {
		a.async(func(ctx context.Context) func() {
			settings, err := a.opts.Settings(ctx)
			return func() {
				if err != nil {
					a.opts.Logger.Debug().Err(err).Msg("failed to load auth settings")
					return
				}
				if !settings.MailerAutoconfirm {
					a.println("You will need to verify your email address before signing in.")
				}
			}
		})
	}

	s.form.prompt(a)
}

func (s *signupScreen) handle(a *App, line string) {
	if s.busy {
		return
	}
	if command(line) == ":login" {
		a.back(pathLogin)
		return
	}
	if !s.form.fill(line) {
		s.form.prompt(a)
		return
	}

	f := forms.SignupForm{Email: s.form.values[0], Password: s.form.values[1], ConfirmPassword: s.form.values[2]}
	s.form.reset()

	if err := f.Validate(); err != nil {
		a.alert("Error", err.Error())
		s.form.prompt(a)
		return
	}

	s.busy = true
	a.println("Creating Account...")

	email := f.NormalizedEmail()
	a.async(func(ctx context.Context) func() {
		res := a.opts.Store.SignUp(ctx, email, f.Password)
		return func() {
			s.busy = false
			if !res.OK() {
				a.alert("Signup Error", res.Message)
				s.form.prompt(a)
				return
			}
			if !res.ConfirmationRequired {
				// the sign in notification normally redirects first
				a.navigateReplace(pathHome)
				return
			}
			a.alert("Account Created", msgVerifyEmail)
			a.navigateReplace(pathLogin)
		}
	})
}

type menuItem struct {
	title string
	path  string
}

var homeMenu = []menuItem{
	{title: "Reserve a Meal", path: pathReserve},
	{title: "Explore Menu"},
	{title: "My Orders", path: pathOrders},
	{title: "Profile"},
}

type homeScreen struct{}

func (s *homeScreen) mount(a *App) {
	a.printf("Welcome, %s!\n", displayName(a.state))
	for i, item := range homeMenu {
		a.printf("  %d. %s\n", i+1, item.title)
	}
	a.println("Tabs: [Home] Settings (enter :settings)")
}

func (s *homeScreen) handle(a *App, line string) {
	line = command(line)
	if line == ":settings" {
		a.navigateReplace(pathSettings)
		return
	}

	for i, item := range homeMenu {
		if line != string(rune('1'+i)) && !strings.EqualFold(line, item.title) {
			continue
		}
		if item.path == "" {
			a.alert(item.title, "Coming soon.")
			return
		}
		a.push(item.path)
		return
	}
}

type settingsScreen struct {
	confirming bool
	busy       bool
}

func (s *settingsScreen) mount(a *App) {
	a.println("Settings")
	a.println("Manage your account and app preferences")
	a.println("Enter logout to sign out")
	a.println("Tabs: Home [Settings] (enter :home)")
}

func (s *settingsScreen) handle(a *App, line string) {
	if s.busy {
		return
	}
	line = command(line)

	if s.confirming {
		s.confirming = false
		if !strings.EqualFold(line, "y") && !strings.EqualFold(line, "logout") {
			return
		}
		s.logout(a)
		return
	}

	switch line {
	case ":home":
		a.navigateReplace(pathHome)
	case "logout":
		s.confirming = true
		a.alert("Logout", "Are you sure you want to logout? (y/N)")
	}
}

func (s *settingsScreen) logout(a *App) {
	s.busy = true
	a.println("Logging out...")

	a.async(func(ctx context.Context) func() {
		res := a.opts.Store.SignOut(ctx)
		return func() {
			s.busy = false
			if res.OK() {
				// the guard moves the user to the login screen
				return
			}
			a.alert("Error", "Failed to logout. Please try again.")
		}
	})
}

// placeholderScreen is a screen with no behaviour beyond going back.
type placeholderScreen struct {
	title       string
	description string
}

func (s *placeholderScreen) mount(a *App) {
	a.println(s.title)
	a.println(s.description)
	a.println("Enter :back to go back")
}

func (s *placeholderScreen) handle(a *App, line string) {
	if command(line) == ":back" {
		a.back(pathHome)
	}
}

func displayName(st session.State) string {
	if st.Session == nil {
		return ""
	}
	return st.Session.User.DisplayName()
}
