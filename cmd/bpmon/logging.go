package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/bpmon/internal/config"
)

// commandLogger builds a command's logger through config.NewLogger so every
// command shares one construction path. The --log-level flag overrides the
// config file level. Commands that run without a config file pass a nil cfg
// and stay quiet unless the flag is given, keeping log lines out of their
// normal output.
func commandLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	if cfg == nil {
		cfg = config.Default()
		cfg.LogLevel = logrus.PanicLevel.String()
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	return cfg.NewLogger()
}
