package credgate

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/ohgun/credgate/internal/audit"
)

// AuditEvent is one credential lifecycle event delivered to an AuditSink.
type AuditEvent = audit.Event

// AuditSink receives audit events from the Engine's dispatcher goroutine.
// Emit must not block for long; a full buffer drops events when
// Audit.DropIfFull is set.
type AuditSink = audit.Sink

// NoOpSink discards every event.
type NoOpSink = audit.NoOpSink

// ChannelSink forwards events into a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// LoggerSink writes events through a charmbracelet logger.
type LoggerSink = audit.LoggerSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func NewLoggerSink(logger *log.Logger) *LoggerSink {
	return audit.NewLoggerSink(logger)
}

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc = audit.SinkFunc

// MultiAuditSink delivers each event to several sinks in order.
type MultiAuditSink = audit.MultiSink
