package workqueue

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoItems is returned by ReadOne when the group has nothing to deliver.
	ErrNoItems       = errors.New("workqueue: no items available")
	ErrInvalidConfig = errors.New("workqueue: invalid configuration")
	ErrInvalidItem   = errors.New("workqueue: invalid item")
)

func invalidConfig(msg string, args ...any) error {
	return fmt.Errorf("%w: "+msg, append([]any{ErrInvalidConfig}, args...)...)
}

func invalidItem(msg string, args ...any) error {
	return fmt.Errorf("%w: "+msg, append([]any{ErrInvalidItem}, args...)...)
}

type retriable interface {
	Retriable() bool
}

// Terminal reports whether err declares itself non-retriable. Unclassified errors
// and context errors are retriable. A joined error is terminal when any of its
// parts is.
func Terminal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return declaredTerminal(err)
}

func declaredTerminal(err error) bool {
	if r, ok := err.(retriable); ok {
		return !r.Retriable()
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if e != nil && declaredTerminal(e) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		if next := u.Unwrap(); next != nil {
			return declaredTerminal(next)
		}
	}
	return false
}
