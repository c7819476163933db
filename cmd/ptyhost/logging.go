//go:build linux || darwin

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// configureLogger builds the daemon logger. --log-level wins over
// --verbose, which wins over the configured level.
func configureLogger(cmd *cobra.Command, configured string) (*logrus.Logger, error) {
	levelStr := configured
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		levelStr = "debug"
	}
	if s, _ := cmd.Flags().GetString("log-level"); s != "" {
		levelStr = s
	}
	if levelStr == "" {
		levelStr = "info"
	}

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", levelStr)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}
