//go:build linux || darwin

package main

import (
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/PiranhaCodes/ptyhost/internal/api"
	"github.com/PiranhaCodes/ptyhost/internal/config"
	"github.com/PiranhaCodes/ptyhost/internal/shell"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	config.RegisterFlags(serveCmd.Flags())
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg.LogLevel)
	if err != nil {
		return err
	}
	log := logrus.NewEntry(logger)

	manager := shell.NewManager()
	spawner, err := shell.NewSpawner(cfg, manager, log)
	if err != nil {
		return err
	}
	server := api.NewServer(cfg.SocketPath, manager, spawner, log)
	if err := server.Listen(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	served := make(chan error, 1)
	go func() { served <- server.Serve() }()

	log.WithFields(logrus.Fields{
		"backend":  cfg.Backend,
		"strategy": cfg.Strategy,
		"log_dir":  cfg.LogDir,
	}).Info("ptyhost started")

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal, cleaning up")
	case err = <-served:
		log.WithError(err).Error("server stopped unexpectedly")
	}

	manager.CleanupAll()
	server.Stop()
	log.Info("shutdown complete")
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
