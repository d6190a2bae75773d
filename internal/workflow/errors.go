package workflow

import (
	"errors"
	"fmt"
)

// Kind classifies workflow failures.
type Kind string

const (
	// KindPermissionDenied means a device capability was not granted. The
	// user must act outside the app; the session is left untouched.
	KindPermissionDenied Kind = "permission_denied"
	// KindTransport means a collaborator was unreachable or failed. The
	// message is also stored in State.Error.
	KindTransport Kind = "transport"
	// KindValidation means an operation was attempted without its
	// precondition. State is unchanged.
	KindValidation Kind = "validation"
	// KindSuperseded means a newer operation, a discard or a new image
	// replaced this one before it finished. Its result was dropped.
	KindSuperseded Kind = "superseded"
)

// Error is returned by workflow operations.
type Error struct {
	Kind    Kind
	Op      string
	Message string // safe to show to the user
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors that carry only a Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrTransport        = &Error{Kind: KindTransport}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrSuperseded       = &Error{Kind: KindSuperseded}
)

// ErrPickCanceled is returned by a Picker when the user closes it without
// choosing a photo.
var ErrPickCanceled = errors.New("image selection canceled")

// KindOf returns the Kind of a workflow error, or "" for other errors.
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return ""
}

// PermissionDenied builds the error a Picker returns when access to the
// camera or photo library is refused.
func PermissionDenied(op, message string) error {
	return &Error{Kind: KindPermissionDenied, Op: op, Message: message}
}

func validationf(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

func transport(op, message string, err error) error {
	return &Error{Kind: KindTransport, Op: op, Message: message, Err: err}
}

func superseded(op string) error {
	return &Error{Kind: KindSuperseded, Op: op, Message: "operation superseded by a newer request"}
}
