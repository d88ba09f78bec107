// Package observability wires structured logging (github.com/rs/zerolog)
// and metrics (github.com/prometheus/client_golang) into the
// eventmachine.Observer contract.
//
// The teacher exposes only an in-process LoggingObserver that formats
// lines with fmt.Sprintf over an io.Writer (observers/logging_observer.go).
// The rest of the retrieved pack standardizes on zerolog for structured
// logging (r3e-network-service_layer); ZerologObserver keeps the
// teacher's LogLevel shape but routes through zerolog so
// every trace record becomes a structured log line instead of a bare
// string.
package observability

import (
	"os"

	"github.com/rs/zerolog"

	eventmachine "github.com/tarfin-labs/event-machine"
)

// LogLevel mirrors the teacher's LogError < LogWarning < LogInfo <
// LogDebug ordering.
type LogLevel int

const (
	LogError LogLevel = iota
	LogWarning
	LogInfo
	LogDebug
)

func (l LogLevel) zerologLevel() zerolog.Level {
	switch l {
	case LogError:
		return zerolog.ErrorLevel
	case LogWarning:
		return zerolog.WarnLevel
	case LogInfo:
		return zerolog.InfoLevel
	case LogDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger wraps a zerolog.Logger at a configured minimum level.
type Logger struct {
	zl    zerolog.Logger
	level LogLevel
}

// NewLogger returns a Logger writing JSON lines to os.Stderr at level.
func NewLogger(level LogLevel) *Logger {
	return &Logger{
		zl:    zerolog.New(os.Stderr).With().Timestamp().Logger(),
		level: level,
	}
}

func (l *Logger) enabled(at LogLevel) bool {
	return at <= l.level
}

// ZerologObserver implements eventmachine.ExtendedObserver, emitting one
// structured log line per notification. The event log itself remains
// the source of truth (spec.md §10.2) — this observer is a side channel.
type ZerologObserver struct {
	eventmachine.BaseObserver
	log *Logger
}

// NewZerologObserver returns an Observer ready to Register on a
// TransitionEngine.
func NewZerologObserver(log *Logger) *ZerologObserver {
	return &ZerologObserver{log: log}
}

func (o *ZerologObserver) OnTransition(rec eventmachine.EventRecord) {
	if !o.log.enabled(LogDebug) {
		return
	}
	o.log.zl.Debug().
		Str("machine_id", rec.MachineID).
		Str("root_event_id", rec.RootEventID).
		Str("type", rec.Type).
		Strs("active_leaves", rec.MachineValue).
		Msg("transition trace")
}

func (o *ZerologObserver) OnGuardEvaluation(rec eventmachine.EventRecord, passed bool) {
	if !o.log.enabled(LogInfo) {
		return
	}
	o.log.zl.Info().
		Str("root_event_id", rec.RootEventID).
		Str("type", rec.Type).
		Bool("passed", passed).
		Msg("guard evaluated")
}

func (o *ZerologObserver) OnEventRejected(rootEventID, eventType string, err error) {
	if !o.log.enabled(LogWarning) {
		return
	}
	o.log.zl.Warn().
		Str("root_event_id", rootEventID).
		Str("event_type", eventType).
		Err(err).
		Msg("event rejected")
}

func (o *ZerologObserver) OnError(rootEventID string, err error) {
	if !o.log.enabled(LogError) {
		return
	}
	o.log.zl.Error().
		Str("root_event_id", rootEventID).
		Err(err).
		Msg("machine error")
}

func (o *ZerologObserver) OnMachineStarted(rootEventID string) {
	if !o.log.enabled(LogInfo) {
		return
	}
	o.log.zl.Info().Str("root_event_id", rootEventID).Msg("machine started")
}

func (o *ZerologObserver) OnMachineStopped(rootEventID string) {
	if !o.log.enabled(LogInfo) {
		return
	}
	o.log.zl.Info().Str("root_event_id", rootEventID).Msg("machine stopped")
}
