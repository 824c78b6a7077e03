package source

import (
	"context"
	"errors"
	"fmt"

	"netwatch/pkg/models"
)

// ErrSource matches every transient connection source failure via errors.Is.
var ErrSource = errors.New("connection source error")

// Error wraps a failure from a connection source.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("source %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports true for ErrSource so callers need not know the concrete type.
func (e *Error) Is(target error) bool { return target == ErrSource }

// Wrap returns err as a source Error, or nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// Source yields the host's current connection tuples. A smaller result than
// last time is a complete answer, not a partial one to merge.
type Source interface {
	Connections(ctx context.Context) ([]models.RawConnection, error)
}

// Func adapts a function to Source.
type Func func(ctx context.Context) ([]models.RawConnection, error)

// Connections calls f.
func (f Func) Connections(ctx context.Context) ([]models.RawConnection, error) {
	return f(ctx)
}
