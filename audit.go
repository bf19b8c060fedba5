package goSession

import (
	"io"

	"github.com/MrEthical07/goSession/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one session lifecycle event.
type AuditEvent = audit.Event

// AuditSink receives audit events from the manager's dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// Audit event types.
const (
	AuditSessionCreated     = audit.EventSessionCreated
	AuditSessionRotated     = audit.EventSessionRotated
	AuditSessionReplay      = audit.EventSessionReplay
	AuditRotationRejected   = audit.EventRotationRejected
	AuditSessionInvalidated = audit.EventSessionInvalidated
	AuditSessionExpired     = audit.EventSessionExpired
	AuditAccessIssued       = audit.EventAccessIssued
)

// NewChannelSink returns a sink that buffers events in a channel of the given size.
func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink that writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewZapSink returns a sink that logs events through logger.
func NewZapSink(logger *zap.Logger) *audit.ZapSink {
	return audit.NewZapSink(logger)
}
