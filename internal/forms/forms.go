// Package forms validates credential form input before it reaches the auth
// service.
package forms

import "strings"

// MinPasswordLength is the shortest password a sign up form accepts.
const MinPasswordLength = 6

const (
	MsgMissingFields    = "Please fill in all fields"
	MsgPasswordMismatch = "Passwords do not match"
	MsgPasswordTooShort = "Password must be at least 6 characters long"
)

// ValidationError is a form input problem. Message is shown to the user as is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// LoginForm is the input of a sign in form.
type LoginForm struct {
	Email    string
	Password string
}

// Validate checks that every field is filled in.
func (f LoginForm) Validate() error {
	switch {
	case strings.TrimSpace(f.Email) == "":
		return &ValidationError{Field: "email", Message: MsgMissingFields}
	case f.Password == "":
		return &ValidationError{Field: "password", Message: MsgMissingFields}
	}
	return nil
}

// SignupForm is the input of a registration form.
type SignupForm struct {
	Email           string
	Password        string
	ConfirmPassword string
}

// Validate checks, in order, that every field is filled in, that the
// passwords match and that the password is long enough.
func (f SignupForm) Validate() error {
	if field := missingField(f.Email, f.Password, f.ConfirmPassword); field != "" {
		return &ValidationError{Field: field, Message: MsgMissingFields}
	}
	if f.Password != f.ConfirmPassword {
		return &ValidationError{Field: "confirm_password", Message: MsgPasswordMismatch}
	}
	if len([]rune(f.Password)) < MinPasswordLength {
		return &ValidationError{Field: "password", Message: MsgPasswordTooShort}
	}
	return nil
}

// NormalizedEmail returns the email with surrounding whitespace removed.
func (f LoginForm) NormalizedEmail() string {
	return strings.TrimSpace(f.Email)
}

// NormalizedEmail returns the email with surrounding whitespace removed.
func (f SignupForm) NormalizedEmail() string {
	return strings.TrimSpace(f.Email)
}

func missingField(email, password, confirm string) string {
	switch {
	case strings.TrimSpace(email) == "":
		return "email"
	case password == "":
		return "password"
	case confirm == "":
		return "confirm_password"
	}
	return ""
}
