package main

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/bpmon/internal/config"
)

func loggingCmd(t *testing.T, level string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "")
	if level != "" {
		require.NoError(t, cmd.Flags().Set("log-level", level))
	}
	return cmd
}

// GOAL: Verify every command builds its logger through the config layer,
// with the --log-level flag overriding the configured level.
//
// TEST SCENARIO: Build loggers with and without a config and with the flag
// set, then check the resulting logrus level.
func TestCommandLogger(t *testing.T) {
	t.Run("quiet without config or flag", func(t *testing.T) {
		logger, err := commandLogger(loggingCmd(t, ""), nil)
		require.NoError(t, err)
		assert.Equal(t, logrus.PanicLevel, logger.GetLevel(),
			"commands without a config file MUST stay quiet by default")
	})

	t.Run("flag overrides missing config", func(t *testing.T) {
		logger, err := commandLogger(loggingCmd(t, "debug"), nil)
		require.NoError(t, err)
		assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	})

	t.Run("config level used when flag unset", func(t *testing.T) {
		cfg := config.Default()
		cfg.LogLevel = "warn"

		logger, err := commandLogger(loggingCmd(t, ""), cfg)
		require.NoError(t, err)
		assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	})

	t.Run("flag overrides config level", func(t *testing.T) {
		cfg := config.Default()
		cfg.LogLevel = "error"

		logger, err := commandLogger(loggingCmd(t, "debug"), cfg)
		require.NoError(t, err)
		assert.Equal(t, logrus.DebugLevel, logger.GetLevel(),
			"--log-level MUST take precedence over the config file")
	})

	t.Run("invalid level rejected", func(t *testing.T) {
		_, err := commandLogger(loggingCmd(t, "loud"), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}
