package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/lwm2m-node/lwm2m-go/pkg/log"
)

// RunExport writes the events of path to output (stdout when empty) in
// the given format.
func RunExport(path, format, output string, opts FilterOptions) error {
	filter, err := opts.Build()
	if err != nil {
		return err
	}
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	events, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read event: %w", err)
	}

	switch format {
	case "jsonl":
		return exportJSONL(events, w)
	case "csv":
		return exportCSV(events, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(events []log.Event, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for _, event := range events {
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

func exportCSV(events []log.Event, w io.Writer) error {
	cw := csv.NewWriter(w)

	header := []string{"timestamp", "connection_id", "direction", "layer", "category",
		"endpoint", "remote_addr", "type", "path", "code"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, event := range events {
		var path, code string
		switch {
		case event.Message != nil:
			path = event.Message.Path
			if event.Message.Code != nil {
				code = event.Message.Code.Dotted()
			}
		case event.Notification != nil:
			path = event.Notification.Path
		case event.Error != nil && event.Error.Code != nil:
			code = strconv.Itoa(*event.Error.Code)
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.ConnectionID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.Endpoint,
			event.RemoteAddr,
			eventLabel(event),
			path,
			code,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
