// Command lwm2m-log views and analyzes protocol log files.
//
// Log files are written by lwm2m-client with the --protocol-log flag.
//
// Usage:
//
//	lwm2m-log <command> [flags] <file.mlog>
//
// Examples:
//
//	# View all events
//	lwm2m-log view node.mlog
//
//	# View only incoming wire messages under /3303
//	lwm2m-log view --layer wire --direction in --path /3303 node.mlog
//
//	# Export to CSV
//	lwm2m-log export --format csv -o node.csv node.mlog
//
//	# Keep only errors
//	lwm2m-log filter --category error -o errors.mlog node.mlog
//
//	# Show statistics
//	lwm2m-log stats node.mlog
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lwm2m-node/lwm2m-go/cmd/lwm2m-log/commands"
)

var filterOpts commands.FilterOptions

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "lwm2m-log",
	Short:         "LWM2M protocol log analyzer",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var viewCmd = &cobra.Command{
	Use:   "view <file.mlog>",
	Short: "View log file in human-readable format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commands.RunView(args[0], filterOpts, cmd.OutOrStdout())
	},
}

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export <file.mlog>",
	Short: "Export log file to JSON lines or CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commands.RunExport(args[0], exportFormat, exportOutput, filterOpts)
	},
}

var filterOutput string

var filterCmd = &cobra.Command{
	Use:   "filter <file.mlog>",
	Short: "Filter log file and write to new file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if filterOutput == "" {
			return errors.New("output file (-o) required")
		}
		return commands.RunFilter(args[0], filterOutput, filterOpts, cmd.OutOrStdout())
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <file.mlog>",
	Short: "Show statistics about the log file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commands.RunStats(args[0], cmd.OutOrStdout())
	},
}

func addFilterFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&filterOpts.Layer, "layer", "", "Filter by layer (transport, wire, service)")
	f.StringVar(&filterOpts.Direction, "direction", "", "Filter by direction (in, out)")
	f.StringVar(&filterOpts.Category, "category", "", "Filter by category (message, control, state, error)")
	f.StringVar(&filterOpts.ConnID, "conn-id", "", "Filter by connection ID")
	f.StringVar(&filterOpts.Endpoint, "endpoint", "", "Filter by endpoint client name")
	f.StringVar(&filterOpts.Path, "path", "", "Filter by resource path prefix")
	f.StringVar(&filterOpts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	f.StringVar(&filterOpts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
}

func init() {
	for _, cmd := range []*cobra.Command{viewCmd, exportCmd, filterCmd} {
		addFilterFlags(cmd)
	}
	exportCmd.Flags().StringVar(&exportFormat, "format", "jsonl", "Output format (jsonl, csv)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
	filterCmd.Flags().StringVarP(&filterOutput, "output", "o", "", "Output file (required)")

	rootCmd.AddCommand(viewCmd, exportCmd, filterCmd, statsCmd)
}
