package arcgis

import (
	"errors"
	"fmt"

	"github.com/dusk-indust/herrenlos/internal/parcel"
)

// Error is a failed feature query. Kind is one of the parcel failure kinds.
type Error struct {
	Kind       parcel.FailureKind
	Message    string
	StatusCode int
	Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("arcgis: %s: HTTP %d: %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("arcgis: %s: %s", e.Kind, e.Message)
}

// Unwrap supports error unwrapping.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Failure converts the error into its outcome form. The HTTP status, when
// known, prefixes the message.
func (e *Error) Failure() *parcel.Failure {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("HTTP %d: %s", e.StatusCode, msg)
	}
	return &parcel.Failure{Kind: e.Kind, Message: msg}
}

// KindOf classifies err. Errors that did not come from this package are
// treated as network failures.
func KindOf(err error) parcel.FailureKind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return parcel.KindNetwork
}

// FailureOf returns the outcome failure for err, or nil for a nil error.
func FailureOf(err error) *parcel.Failure {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Failure()
	}
	return &parcel.Failure{Kind: parcel.KindNetwork, Message: err.Error()}
}

func networkError(msg string, status int, err error) *Error {
	return &Error{Kind: parcel.KindNetwork, Message: msg, StatusCode: status, Underlying: err}
}

func parseError(msg string, err error) *Error {
	return &Error{Kind: parcel.KindResponseParse, Message: msg, Underlying: err}
}
