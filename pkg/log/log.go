// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log implements a library for logging.
//
// This is separate from the standard logging package because logging may be a
// high-impact activity, and therefore we wanted to provide as much flexibility
// as possible in the underlying implementation.
package log

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Level is the log level.
type Level uint32

// The following levels are fixed, and can never be changed. Since some control
// RPCs allow for changing the level as an integer, it is only possible to add
// additional levels, and the existing one cannot be removed.
const (
	// Warning indicates that output should always be emitted.
	Warning Level = iota

	// Info indicates that output should normally be emitted.
	Info

	// Debug indicates that output should not normally be emitted.
	Debug
)

func (l Level) String() string {
	switch l {
	case Warning:
		return "Warning"
	case Info:
		return "Info"
	case Debug:
		return "Debug"
	default:
		return fmt.Sprintf("Invalid level: %d", l)
	}
}

func (l Level) logrus() logrus.Level {
	switch l {
	case Warning:
		return logrus.WarnLevel
	case Info:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

// Logger is a high-level logging interface.
type Logger interface {
	// Debugf logs a debug statement.
	Debugf(format string, v ...any)

	// Infof logs at an info level.
	Infof(format string, v ...any)

	// Warningf logs at a warning level.
	Warningf(format string, v ...any)

	// IsLogging returns true iff this level is being logged. This may be
	// used to short-circuit expensive operations for debugging calls.
	IsLogging(level Level) bool
}

// BasicLogger is the default implementation of Logger.
type BasicLogger struct {
	Level
	entry *logrus.Logger
}

// NewBasicLogger returns a logger at the given level writing to w.
func NewBasicLogger(level Level, w io.Writer) *BasicLogger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level.logrus())
	l.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	return &BasicLogger{Level: level, entry: l}
}

// Debugf implements Logger.Debugf.
func (l *BasicLogger) Debugf(format string, v ...any) {
	if l.IsLogging(Debug) {
		l.entry.Debugf(format, v...)
	}
}

// Infof implements Logger.Infof.
func (l *BasicLogger) Infof(format string, v ...any) {
	if l.IsLogging(Info) {
		l.entry.Infof(format, v...)
	}
}

// Warningf implements Logger.Warningf.
func (l *BasicLogger) Warningf(format string, v ...any) {
	if l.IsLogging(Warning) {
		l.entry.Warnf(format, v...)
	}
}

// IsLogging implements Logger.IsLogging.
func (l *BasicLogger) IsLogging(level Level) bool {
	return atomic.LoadUint32((*uint32)(&l.Level)) >= uint32(level)
}

// SetLevel sets the logging level.
func (l *BasicLogger) SetLevel(level Level) {
	atomic.StoreUint32((*uint32)(&l.Level), uint32(level))
	l.entry.SetLevel(level.logrus())
}

// SetJSON switches between JSON and text output.
func (l *BasicLogger) SetJSON(json bool) {
	if json {
		l.entry.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	l.entry.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
}

// WithField returns a logrus entry carrying key, for callers that want
// structured fields.
func (l *BasicLogger) WithField(key string, value any) *logrus.Entry {
	return l.entry.WithField(key, value)
}

// logger is the default logger.
var logger atomic.Pointer[BasicLogger]

func init() {
	logger.Store(NewBasicLogger(Info, os.Stderr))
}

// Log retrieves the global logger.
func Log() *BasicLogger {
	return logger.Load()
}

// SetTarget sets the log target.
//
// This is not thread safe and shouldn't be called concurrently with any
// logging calls.
func SetTarget(w io.Writer) {
	logger.Store(NewBasicLogger(Log().Level, w))
}

// SetLevel sets the level of the global logger.
func SetLevel(level Level) {
	Log().SetLevel(level)
}

// IsLogging returns whether the global logger is logging.
func IsLogging(level Level) bool {
	return Log().IsLogging(level)
}

// Debugf logs to the global logger.
func Debugf(format string, v ...any) {
	Log().Debugf(format, v...)
}

// Infof logs to the global logger.
func Infof(format string, v ...any) {
	Log().Infof(format, v...)
}

// Warningf logs to the global logger.
func Warningf(format string, v ...any) {
	Log().Warningf(format, v...)
}

// Fatalf logs and exits the process with status 1.
func Fatalf(format string, v ...any) {
	Log().entry.Fatalf(format, v...)
}
