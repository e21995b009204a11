// Package logsink implements the 3-level log sink shared by the API
// session, the orchestrator and the background daemon: per-level enable
// flags and a pluggable callback, in the two explicit shapes the spec
// calls for (level-aware and single-string).
package logsink

import (
	"fmt"
	"sync"
	"time"
)

// Level is one of the three severities a message can be logged at.
type Level string

const (
	Info    Level = "info"
	Warning Level = "warning"
	Error   Level = "error"
)

// LevelCallback receives the raw message and its level separately.
type LevelCallback func(message string, level Level)

// PlainCallback receives a single formatted string with the level folded
// in as a "[level] message" prefix. Mutually exclusive with LevelCallback
// — a Sink is constructed with exactly one.
type PlainCallback func(message string)

// Sink is a 3-level logger with independent display toggles per level,
// matching ecmwfapi's display_info_messages / display_warning_messages /
// display_error_messages flags. It keeps a history of messages per level
// (queryable via Messages) the way the original log module does.
type Sink struct {
	mu sync.Mutex

	displayInfo    bool
	displayWarning bool
	displayError   bool

	levelCB LevelCallback
	plainCB PlainCallback

	infoMsgs    []string
	warningMsgs []string
	errorMsgs   []string
}

// Option configures a Sink at construction.
type Option func(*Sink)

// WithDisplay sets the three display flags in one call.
func WithDisplay(info, warning, error bool) Option {
	return func(s *Sink) {
		s.displayInfo = info
		s.displayWarning = warning
		s.displayError = error
	}
}

// New constructs a Sink backed by the level-aware callback shape. All
// three display flags default to enabled.
func New(cb LevelCallback, opts ...Option) *Sink {
	s := &Sink{displayInfo: true, displayWarning: true, displayError: true, levelCB: cb}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewPlain constructs a Sink backed by the single-string callback shape;
// the level is folded into the message text as "[level] message".
func NewPlain(cb PlainCallback, opts ...Option) *Sink {
	s := &Sink{displayInfo: true, displayWarning: true, displayError: true, plainCB: cb}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Log dispatches message at the given level. An optional positive
// requestID is prefixed as "(Request N) message" for log correlation
// across concurrent requests, matching the original's request-id
// annotation.
func (s *Sink) Log(message string, level Level, requestID int) {
	if requestID > 0 {
		message = fmt.Sprintf("(Request %d) %s", requestID, message)
	}
	switch level {
	case Error:
		s.dispatch(message, Error, s.displayError, &s.errorMsgs)
	case Warning:
		s.dispatch(message, Warning, s.displayWarning, &s.warningMsgs)
	default:
		s.dispatch(message, Info, s.displayInfo, &s.infoMsgs)
	}
}

func (s *Sink) dispatch(message string, level Level, display bool, history *[]string) {
	s.mu.Lock()
	*history = append(*history, message)
	s.mu.Unlock()

	if !display {
		return
	}
	if s.levelCB != nil {
		s.levelCB(message, level)
		return
	}
	if s.plainCB != nil {
		s.plainCB(fmt.Sprintf("[%s] %s", level, message))
	}
}

func (s *Sink) Info(message string)    { s.Log(message, Info, 0) }
func (s *Sink) Warning(message string) { s.Log(message, Warning, 0) }
func (s *Sink) Err(message string)     { s.Log(message, Error, 0) }

// Messages returns the message history for the given level, in order.
func (s *Sink) Messages(level Level) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch level {
	case Error:
		return append([]string(nil), s.errorMsgs...)
	case Warning:
		return append([]string(nil), s.warningMsgs...)
	default:
		return append([]string(nil), s.infoMsgs...)
	}
}

// StdoutCallback is the default level-aware callback: prints timestamped,
// bracket-tagged lines to stdout the way ecmwfapi's Log.log does.
func StdoutCallback() LevelCallback {
	return func(message string, level Level) {
		tag := map[Level]string{Info: "Info", Warning: "Warning", Error: "Error"}[level]
		fmt.Printf("[%-7s] %s - %s\n", tag, time.Now().Format("02-01-2006 15:04:05"), message)
	}
}
