package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "icafetch",
	Short: "Download per-feeder ICA timeseries data from a utility map portal",
	Long: `icafetch acquires Integration Capacity Analysis (ICA) timeseries data
for every feeder in a utility's circuit-segment shapefile.

It drives a headless browser through the portal login, requests each
feeder's zip export, extracts the contained csv, and stores one csv per
feeder in the output directory. The output directory doubles as the
checkpoint: re-running only downloads feeders that are still missing.

Credentials can be stored securely with 'icafetch auth login', supplied
through ICAFETCH_USERNAME / ICAFETCH_PASSWORD, or set in the config file.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.icafetch.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`icafetch {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
