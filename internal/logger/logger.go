// Package logger provides a configured zerolog logger.
package logger

import (
	"io"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

// New returns a logger writing JSON to stderr with the component name attached.
// Call sites should use .Stack() on error events to include stacks.
func New(component string) zerolog.Logger {
	return NewWithWriter(component, os.Stderr)
}

// NewWithWriter is New with an explicit sink; tests pass a buffer.
func NewWithWriter(component string, w io.Writer) zerolog.Logger {
	// Marshal github.com/pkg/errors stack traces when present and attach a
	// stack to plain errors so .Stack() always has something to render.
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		type stackTracer interface{ StackTrace() pkgerrors.StackTrace }
		if _, ok := err.(stackTracer); !ok {
			err = pkgerrors.WithStack(err)
		}
		return zpkgerrors.MarshalStack(err)
	}

	return zerolog.New(w).With().
		Str("component", component).
		Timestamp().
		Logger()
}
