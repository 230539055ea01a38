package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

type watermillLogger struct {
	log    zerolog.Logger
	fields watermill.LogFields
}

// NewWatermillLogger adapts zerolog to watermill's logger interface.
func NewWatermillLogger(log zerolog.Logger) watermill.LoggerAdapter {
	return &watermillLogger{log: log.With().Str("component", "watermill").Logger()}
}

func (w *watermillLogger) event(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	return e.Fields(map[string]interface{}(w.fields.Add(fields)))
}

func (w *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.event(w.log.Error().Err(err), fields).Msg(msg)
}

func (w *watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.event(w.log.Info(), fields).Msg(msg)
}

func (w *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.event(w.log.Debug(), fields).Msg(msg)
}

func (w *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.event(w.log.Trace(), fields).Msg(msg)
}

func (w *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{log: w.log, fields: w.fields.Add(fields)}
}
