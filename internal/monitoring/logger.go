// Package monitoring holds the process-wide diagnostic logger. Subsystems
// log through Logf so tests can mute output and embedders can redirect it.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// Discard is a no-op logger, useful for muting output in tests.
func Discard(string, ...interface{}) {}

// SetLogger replaces the package logger. Passing nil installs Discard.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = Discard
		return
	}
	Logf = f
}
