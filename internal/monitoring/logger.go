// Package monitoring holds the pipeline's diagnostic logger.
package monitoring

import "log"

// Logf is the package-level diagnostic logger used by every pipeline stage.
// It defaults to log.Printf; tests usually mute it with SetLogger(nil).
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Tagged returns a logger that prefixes each line with "[tag] " and writes
// through whatever Logf is current at call time.
func Tagged(tag string) func(format string, v ...interface{}) {
	prefix := "[" + tag + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
