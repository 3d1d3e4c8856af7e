package logging_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ClusterCockpit/cc-frontend/internal/logging"
	"github.com/stretchr/testify/require"
)

type loggerConfig struct {
	level slog.Level
	file  string
}

func (c loggerConfig) LogLevel() slog.Level { return c.level }
func (c loggerConfig) LogFile() string      { return c.file }

func TestNewLogger(t *testing.T) {
	t.Parallel()

	t.Run("stdout only", func(t *testing.T) {
		t.Parallel()

		logger, closeFunc := logging.NewLogger(loggerConfig{level: slog.LevelWarn})
		require.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
		require.True(t, logger.Enabled(t.Context(), slog.LevelWarn))
		require.NoError(t, closeFunc())
	})

	t.Run("writes to the log file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "client.log")
		logger, closeFunc := logging.NewLogger(loggerConfig{level: slog.LevelDebug, file: path})

		logger.Debug("written to file")
		require.NoError(t, closeFunc())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(data), "written to file")
	})
}
