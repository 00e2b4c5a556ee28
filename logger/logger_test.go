package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "clicktrack.log")

	require.NoError(t, Configure(Options{Level: "debug", File: logFile, MaxSizeMB: 1}))
	t.Cleanup(func() {
		require.NoError(t, Configure(Options{}))
	})

	entry := GetProjectLogger()
	assert.Equal(t, logrus.DebugLevel, entry.Logger.GetLevel())
	assert.Equal(t, projectName, entry.Data["name"])

	entry.Debug("written to file")
	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestConfigureRejectsUnknownLevel(t *testing.T) {
	require.Error(t, Configure(Options{Level: "loud"}))
}
