package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "meridian",
	Short: "Meridian - policy-pipeline API gateway",
	Long: `Meridian is an API gateway that runs every inbound request through an
ordered, conditional policy pipeline.

It matches requests to configured API endpoints and executes the pipeline
resolved for that endpoint:
  - OAuth2 implicit-grant token issuance and bearer validation
  - Scripted request rewriting (sandboxed expressions)
  - Template-driven structured logging
  - Fixed-window rate limiting over a shared store
  - Backend proxying to configured service endpoints`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
