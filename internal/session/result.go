package session

import (
	"errors"

	"github.com/wolfeidau/vitameals/internal/authclient"
	"github.com/wolfeidau/vitameals/internal/forms"
)

// Kind discriminates a Result.
type Kind int

const (
	Success Kind = iota
	Failure
)

func (k Kind) String() string {
	if k == Success {
		return "success"
	}
	return "failure"
}

// ErrorKind classifies a failed Result.
type ErrorKind string

const (
	ErrorKindNone              ErrorKind = ""
	ErrorKindValidation        ErrorKind = "validation"
	ErrorKindAuthService       ErrorKind = "auth_service"
	ErrorKindSessionResolution ErrorKind = "session_resolution"
)

// Result is the outcome of a credential operation. Failures carry a message
// fit to show the user unchanged.
type Result struct {
	Kind      Kind
	ErrorKind ErrorKind
	Message   string
	Cause     error

	// ConfirmationRequired is set on a successful sign up that did not
	// issue a session.
	ConfirmationRequired bool
}

// OK returns true if the operation succeeded.
func (r Result) OK() bool {
	return r.Kind == Success
}

// Succeeded returns a successful Result.
func Succeeded() Result {
	return Result{Kind: Success}
}

// Failed converts err into a failed Result, classifying it by type.
func Failed(err error) Result {
	if err == nil {
		return Succeeded()
	}

	kind := ErrorKindAuthService

	var ve *forms.ValidationError
	switch {
	case errors.As(err, &ve):
		kind = ErrorKindValidation
	case errors.Is(err, authclient.ErrSessionResolution):
		kind = ErrorKindSessionResolution
	}

	return Result{
		Kind:      Failure,
		ErrorKind: kind,
		Message:   err.Error(),
		Cause:     err,
	}
}
