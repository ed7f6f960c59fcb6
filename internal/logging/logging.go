// Package logging wires the core's per-category log categories onto
// github.com/btcsuite/btclog, the same leveled-logger convention every
// package in the toole-brendan-shell node uses (a package-level
// `var log btclog.Logger` set once via UseLogger at start-up).
//
// spec §6 describes log_event/log_message with categories
// {system, power, mining, network, asic, api, theme, settings} and
// levels {none, error, warn, info, debug, trace}, each sink
// (serial/database) independently leveled. The core never persists
// events itself (SPIFFS storage is an external collaborator) — it
// only routes formatted lines to whatever Sink the embedder wires in.
package logging

import (
	"fmt"
	"io"
	"sync"

	"github.com/btcsuite/btclog"
)

// Category names the log subsystem, matching spec §6 exactly.
type Category string

const (
	CategorySystem   Category = "system"
	CategoryPower    Category = "power"
	CategoryMining   Category = "mining"
	CategoryNetwork  Category = "network"
	CategoryASIC     Category = "asic"
	CategoryAPI      Category = "api"
	CategoryTheme    Category = "theme"
	CategorySettings Category = "settings"
)

var allCategories = []Category{
	CategorySystem, CategoryPower, CategoryMining, CategoryNetwork,
	CategoryASIC, CategoryAPI, CategoryTheme, CategorySettings,
}

// Sink is a destination for formatted log lines, independent of
// btclog's own writer plumbing — it lets an embedder fan every event
// out to the database sink spec §6 says receives everything
// "regardless of level".
type Sink interface {
	Write(cat Category, level btclog.Level, line string)
}

// Loggers holds one independently-leveled btclog.Logger per category,
// backed by one or more io.Writer backends (typically a rotating file
// backend from internal/logging's caller plus a database Sink fan-out).
type Loggers struct {
	mu    sync.RWMutex
	byCat map[Category]btclog.Logger
	sinks []Sink
}

// New builds a Loggers instance with a single backend writer (e.g. the
// rotating serial log file) at the given default level, per-category
// overridable via SetLevel.
func New(serial io.Writer, defaultLevel btclog.Level) *Loggers {
	backend := btclog.NewBackend(serial)
	l := &Loggers{byCat: make(map[Category]btclog.Logger, len(allCategories))}
	for _, c := range allCategories {
		logger := backend.Logger(string(c))
		logger.SetLevel(defaultLevel)
		l.byCat[c] = logger
	}
	return l
}

// AddSink registers an additional sink that receives every formatted
// event regardless of the category's configured level (the spec §6
// "database" sink, which is always written to).
func (l *Loggers) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// SetLevel changes the minimum level for one category's serial sink.
func (l *Loggers) SetLevel(cat Category, level btclog.Level) {
	l.mu.RLock()
	logger, ok := l.byCat[cat]
	l.mu.RUnlock()
	if !ok {
		return
	}
	logger.SetLevel(level)
}

// For returns the category's logger (used by package-level UseLogger
// hooks the way toole-brendan-shell's subsystems take one at init).
func (l *Loggers) For(cat Category) btclog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if logger, ok := l.byCat[cat]; ok {
		return logger
	}
	return btclog.Disabled
}

// Event logs a structured line to both the category's leveled logger
// and every registered sink, mirroring spec §6's log_event(category,
// level, message, json_data?). jsonData may be nil.
func (l *Loggers) Event(cat Category, level btclog.Level, message string, jsonData any) {
	line := message
	if jsonData != nil {
		line = fmt.Sprintf("%s %+v", message, jsonData)
	}
	logAtLevel(l.For(cat), level, line)

	l.mu.RLock()
	sinks := append([]Sink(nil), l.sinks...)
	l.mu.RUnlock()
	for _, s := range sinks {
		s.Write(cat, level, line)
	}
}

// Message is log_message(category, level, fmt, ...) from spec §6.
func (l *Loggers) Message(cat Category, level btclog.Level, format string, args ...any) {
	l.Event(cat, level, fmt.Sprintf(format, args...), nil)
}

func logAtLevel(logger btclog.Logger, level btclog.Level, line string) {
	switch level {
	case btclog.LevelTrace:
		logger.Trace(line)
	case btclog.LevelDebug:
		logger.Debug(line)
	case btclog.LevelInfo:
		logger.Info(line)
	case btclog.LevelWarn:
		logger.Warn(line)
	case btclog.LevelError:
		logger.Error(line)
	case btclog.LevelCritical:
		logger.Critical(line)
	default:
		// LevelOff / unknown: swallow.
	}
}

// RingSink is an in-memory database-sink substitute: the last N
// events, used by tests and by the bench monitor in place of the
// out-of-scope SPIFFS-backed recentLogs.json.
type RingSink struct {
	mu      sync.Mutex
	records []Record
	cap     int
}

// Record is one captured event.
type Record struct {
	Category Category
	Level    btclog.Level
	Line     string
}

// NewRingSink builds a RingSink holding at most capacity records.
func NewRingSink(capacity int) *RingSink {
	return &RingSink{cap: capacity}
}

func (r *RingSink) Write(cat Category, level btclog.Level, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, Record{Category: cat, Level: level, Line: line})
	if len(r.records) > r.cap {
		r.records = r.records[len(r.records)-r.cap:]
	}
}

// Snapshot copies the currently-held records.
func (r *RingSink) Snapshot() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}
