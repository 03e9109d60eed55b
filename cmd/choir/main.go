package main

import (
	"os"

	"github.com/mohammad-safakhou/choir/config"
	"github.com/mohammad-safakhou/choir/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cfgPath string

func main() {
	var root = &cobra.Command{
		Use:           "choir",
		Short:         "Multi-agent LLM orchestration service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default searches ./config and .)")

	root.AddCommand(serveCMD(), askCMD(), toolsCMD())
	if err := root.Execute(); err != nil {
		logrus.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(cfg.General.LogLevel, cfg.General.LogFormat), nil
}
