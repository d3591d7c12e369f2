package event

import (
	"github.com/rs/zerolog"
)

// Multi fans one event out to several sinks. A failing sink is logged
// and skipped; the remaining sinks still receive the event.
type Multi struct {
	sinks  []Sink
	logger zerolog.Logger
}

func NewMulti(logger zerolog.Logger, sinks ...Sink) *Multi {
	return &Multi{
		sinks:  sinks,
		logger: logger,
	}
}

func (m *Multi) Add(sink Sink) {
	m.sinks = append(m.sinks, sink)
}

func (m *Multi) Emit(ev Event) error {
	for _, sink := range m.sinks {
		if err := sink.Emit(ev); err != nil {
			m.logger.Warn().
				Err(err).
				Str("event_type", string(ev.Type)).
				Str("request_id", ev.RequestID).
				Msg("event sink failed")
		}
	}
	return nil
}

// LogSink writes every event as a structured log line.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ev Event) error {
	entry := s.logger.Info().
		Str("event_type", string(ev.Type)).
		Time("at", ev.Timestamp)
	if ev.Action != "" {
		entry = entry.Str("action", ev.Action)
	}
	if ev.RequestID != "" {
		entry = entry.Str("request_id", ev.RequestID)
	}
	if ev.Principal != "" {
		entry = entry.Str("principal", ev.Principal)
	}
	for k, v := range ev.Fields {
		entry = entry.Str(k, v)
	}
	entry.Msg("governance event")
	return nil
}
