package scout

import (
	"errors"
	"fmt"
)

// ErrNoPushFeed is wrapped when a push-feed operation runs in polling mode.
var ErrNoPushFeed = errors.New("push feed not configured")

// Kind classifies a facade error.
type Kind string

const (
	KindInvalidAddress Kind = "invalid_address"
	KindNotAToken      Kind = "not_a_token"
	KindNotFound       Kind = "not_found"
	KindUnavailable    Kind = "unavailable"
)

// Error is returned by every Service method.
type Error struct {
	Kind    Kind
	Address string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Address != "" && e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Address, e.Err)
	case e.Address != "":
		return fmt.Sprintf("%s %s", e.Kind, e.Address)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind so callers can test with
// errors.Is(err, &scout.Error{Kind: scout.KindNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of err, or "" if err is not a facade error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
