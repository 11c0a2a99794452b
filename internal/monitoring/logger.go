// Package monitoring holds the package-level logger used by the
// infrastructure packages (storage, publisher, monitor).
package monitoring

import (
	"io"
	"log"
)

// Logf is the infrastructure logger. It defaults to log.Printf and may be
// replaced by SetLogger or SetOutput; tests usually mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetOutput routes Logf to w with an "[infra] " prefix, matching the
// spatial log streams. A nil writer mutes it.
func SetOutput(w io.Writer) {
	if w == nil {
		SetLogger(nil)
		return
	}
	SetLogger(log.New(w, "[infra] ", log.LstdFlags|log.Lmicroseconds).Printf)
}
