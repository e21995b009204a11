// Command retriever is the CLI entrypoint: cobra subcommands for
// managing the background daemon (start/stop/status), submitting and
// inspecting transfers against it, and a one-shot retrieval that runs
// in-process without a daemon at all.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set via ldflags during build.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "retriever",
	Short:   "Asynchronous poll-based client for the ECMWF-style web API",
	Long:    "retriever submits requests to an ECMWF-style web API, polls them to completion, and downloads the result — either directly, or queued against a background daemon.",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate("retriever version {{.Version}}\n")
	rootCmd.AddCommand(daemonCmd, transferCmd, retrieveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
