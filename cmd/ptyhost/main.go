//go:build linux || darwin

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "ptyhost",
	Short: "Pseudo-terminal session host",
	Long: `ptyhost allocates pseudo-terminals, runs shells on them and serves
their sessions to local clients over a UNIX socket.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(probeCmd)

	rootCmd.PersistentFlags().String("config", "", "Path to configuration file (default: ~/.ptyhost/config.yml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Shorthand for --log-level=debug")
}
