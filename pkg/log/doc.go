// Package log provides structured protocol logging for LWM2M client nodes.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, service).
// It is separate from operational logging (slog): protocol capture provides
// a complete machine-readable trace of CoAP exchanges, registration state
// changes and observe notifications.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/lwm2m/node.llog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: ping, reset and close of peer connections (ControlMsgEvent)
//   - Wire: decoded CoAP requests and responses (MessageEvent)
//   - Service: registration state changes and notifications
//     (StateChangeEvent, NotificationEvent)
//
// Errors at any layer have a dedicated event type.
//
// # File Format
//
// Log files hold a sequence of CBOR-encoded events with integer keys. The
// lwm2m-log CLI tool provides viewing, filtering, and export.
package log
