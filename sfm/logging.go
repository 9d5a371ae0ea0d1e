package sfm

import (
	"io"
	"log"
)

// Logger receives diagnostic output from the cleaner. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}

// NewLogger returns a logger writing to w with the given prefix.
// A nil writer yields a logger that discards everything.
func NewLogger(prefix string, w io.Writer) Logger {
	if w == nil {
		return nopLogger{}
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// orNop substitutes a discarding logger for nil
func orNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
