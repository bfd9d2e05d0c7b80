// Package commands implements the lwm2m-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lwm2m-node/lwm2m-go/pkg/log"
	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// RunView prints the events of path matching opts in human-readable form.
func RunView(path string, opts FilterOptions, w io.Writer) error {
	filter, err := opts.Build()
	if err != nil {
		return err
	}
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	events, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read event: %w", err)
	}
	for _, event := range events {
		formatEvent(w, event)
	}
	return nil
}

// eventLabel names the payload kind of an event.
func eventLabel(event log.Event) string {
	switch {
	case event.Message != nil:
		return event.Message.Type.String()
	case event.Notification != nil:
		return "NOTIFY"
	case event.StateChange != nil:
		return "STATE"
	case event.ControlMsg != nil:
		return event.ControlMsg.Type.String()
	case event.Error != nil:
		return "ERROR"
	}
	return "UNKNOWN"
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	layer := event.Layer.String()
	if event.Category == log.CategoryControl {
		layer = "CTRL"
	}

	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s", ts, shortenConnID(event.ConnectionID),
		event.Direction, layer, eventLabel(event))
	if event.RemoteAddr != "" {
		fmt.Fprintf(w, " %s", event.RemoteAddr)
	}
	fmt.Fprintln(w)

	switch {
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.Notification != nil:
		n := event.Notification
		fmt.Fprintf(w, "  Path: %s  Seq: %d", n.Path, n.Sequence)
		if n.Forced {
			fmt.Fprint(w, "  (pmax)")
		}
		fmt.Fprintln(w)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.ControlMsg != nil:
		if event.ControlMsg.Reason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", event.ControlMsg.Reason)
		}
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	switch msg.Type {
	case log.MessageTypeRequest:
		uri := msg.Path
		if len(msg.Query) > 0 {
			uri += "?" + strings.Join(msg.Query, "&")
		}
		fmt.Fprintf(w, "  %s %s\n", msg.Method, uri)
		if msg.Observe != nil {
			switch *msg.Observe {
			case wire.ObserveRegister:
				fmt.Fprintln(w, "  Observe: register")
			case wire.ObserveDeregister:
				fmt.Fprintln(w, "  Observe: deregister")
			}
		}
	case log.MessageTypeResponse, log.MessageTypeNotification:
		if msg.Path != "" {
			fmt.Fprintf(w, "  Path: %s\n", msg.Path)
		}
		if msg.Code != nil {
			fmt.Fprintf(w, "  Code: %s %s\n", msg.Code.Dotted(), msg.Code)
		}
		if msg.Observe != nil {
			fmt.Fprintf(w, "  Seq: %d\n", *msg.Observe)
		}
		if msg.ProcessingTime != nil {
			fmt.Fprintf(w, "  Duration: %s\n", formatDuration(*msg.ProcessingTime))
		}
	}

	if msg.ContentFormat != nil {
		fmt.Fprintf(w, "  Format: %s\n", msg.ContentFormat)
	}
	if msg.PayloadSize > 0 {
		fmt.Fprintf(w, "  Payload (%d bytes): %s\n", msg.PayloadSize, formatPayload(msg.Payload))
	}
}

// formatPayload quotes text payloads and hex-dumps binary ones.
func formatPayload(p []byte) string {
	if utf8.Valid(p) {
		return fmt.Sprintf("%q", p)
	}
	return fmt.Sprintf("%x", p)
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer)
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}
