// Package clipboard copies exported text to the system clipboard.
package clipboard

import (
	"log/slog"

	"github.com/atotto/clipboard"
)

// Sink receives copied text.
type Sink interface {
	WriteAll(text string) error
}

// System writes to the OS clipboard.
type System struct{}

// WriteAll implements Sink.
func (System) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}

// Available reports whether the OS clipboard can be used on this machine.
func Available() bool {
	return !clipboard.Unsupported
}

// Copy writes text to sink and reports whether it succeeded.
// Failures are logged and never returned: a failed copy must not fail the
// operation that produced the text.
func Copy(sink Sink, text string) bool {
	if sink == nil {
		return false
	}
	if err := sink.WriteAll(text); err != nil {
		slog.Warn("clipboard copy failed", "error", err, "chars", len(text))
		return false
	}
	return true
}
