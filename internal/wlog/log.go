// Package wlog provides the structured-logging helper shared by every wacore
// package, grounded on the teacher's crypto/logging.go: a small
// logrus.Fields wrapper with a fluent With* API, so call sites read
// "wlog.New(pkg, fn).WithField(...).Info(...)" instead of repeating
// logrus.Fields{...} boilerplate at every call site. Each With* call
// returns a new Logger rather than mutating the receiver, so a Logger
// cached on a long-lived struct can be reused safely from concurrent
// call sites without fields from one call bleeding into another.
package wlog

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Logger accumulates structured fields for a single call and emits them at
// whatever level the caller chooses.
type Logger struct {
	fields logrus.Fields
}

// New starts a logger scoped to a package and function name.
func New(pkg, function string) *Logger {
	return &Logger{
		fields: logrus.Fields{
			"package":  pkg,
			"function": function,
		},
	}
}

// clone copies l's fields so a With* call never mutates the fields map of
// a Logger some other call site or goroutine is still holding.
func (l *Logger) clone() *Logger {
	fields := make(logrus.Fields, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	return &Logger{fields: fields}
}

// WithField returns a new Logger with a single field added, leaving l and
// its fields untouched.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	n := l.clone()
	n.fields[key] = value
	return n
}

// WithFields returns a new Logger with additional fields merged in,
// leaving l and its fields untouched.
func (l *Logger) WithFields(fields logrus.Fields) *Logger {
	n := l.clone()
	for k, v := range fields {
		n.fields[k] = v
	}
	return n
}

// WithError returns a new Logger with err's message recorded, leaving l
// and its fields untouched.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	n := l.clone()
	n.fields["error"] = err.Error()
	return n
}

func (l *Logger) Debug(msg string) { logrus.WithFields(l.fields).Debug(msg) }
func (l *Logger) Info(msg string)  { logrus.WithFields(l.fields).Info(msg) }
func (l *Logger) Warn(msg string)  { logrus.WithFields(l.fields).Warn(msg) }
func (l *Logger) Error(msg string) { logrus.WithFields(l.fields).Error(msg) }

// BytesPreview renders the first few bytes of sensitive data for debug
// logging without leaking the whole secret.
func BytesPreview(data []byte) string {
	if len(data) == 0 {
		return "nil"
	}
	n := 8
	if len(data) < n {
		n = len(data)
	}
	preview := fmt.Sprintf("%x", data[:n])
	if len(data) > n {
		preview += "..."
	}
	return preview
}
