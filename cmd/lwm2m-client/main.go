// Command lwm2m-client runs an LWM2M client node.
//
// The node registers with an LWM2M server, serves its resource tree to
// the server and keeps the registration alive until it is stopped.
//
// Usage:
//
//	lwm2m-client run [flags]
//	lwm2m-client version
//
// Examples:
//
//	# Register with a local server using defaults
//	lwm2m-client run --server localhost
//
//	# Run from a configuration file with the admin API and a console
//	lwm2m-client run --config node.yaml --admin 127.0.0.1:8080 --interactive
//
//	# Record protocol events for lwm2m-log
//	lwm2m-client run --config node.yaml --protocol-log node.mlog
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Persistent flags
var (
	configFile string
	debug      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "lwm2m-client",
	Short:         "LWM2M client node",
	Version:       fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "lwm2m-client %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(versionCmd)
}
