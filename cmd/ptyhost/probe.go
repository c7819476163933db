//go:build linux || darwin

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/PiranhaCodes/ptyhost/internal/config"
	"github.com/PiranhaCodes/ptyhost/internal/pty"
	"github.com/PiranhaCodes/ptyhost/internal/sys"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Report host PTY capabilities and allocate a test terminal",
	Args:  cobra.NoArgs,
	RunE:  runProbe,
}

func init() {
	config.RegisterFlags(probeCmd.Flags())
}

func runProbe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg.LogLevel)
	if err != nil {
		return err
	}
	backend, err := pty.ParseBackend(cfg.Backend)
	if err != nil {
		return err
	}
	strategy, err := pty.ParseStrategy(cfg.Strategy)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	if sysname, release, err := (sys.Host{}).Uname(); err == nil {
		fmt.Fprintf(w, "kernel:\t%s %s\n", sysname, release)
	}
	fmt.Fprintf(w, "host backend:\t%s\n", pty.HostBackend())
	fmt.Fprintf(w, "selected:\t%s / %s\n", backend, strategy)

	s, err := pty.Open(false, cfg.PreserveOutput,
		pty.WithBackend(backend),
		pty.WithStrategy(strategy),
		pty.WithLogger(logrus.NewEntry(logger)))
	if err != nil {
		fmt.Fprintf(w, "allocation:\tFAILED\t%v\n", err)
		return err
	}
	defer s.Close()

	fmt.Fprintf(w, "allocation:\tok\t%s (master fd %d)\n", s.SlaveName(), s.MasterFD())
	if ws, err := s.GetWinSize(nil); err != nil {
		fmt.Fprintf(w, "window size:\tFAILED\t%v\n", err)
	} else {
		fmt.Fprintf(w, "window size:\tok\t%dx%d\n", ws.Cols, ws.Rows)
	}
	return nil
}
