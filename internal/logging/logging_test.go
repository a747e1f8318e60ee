package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareLogs_StdoutOnly(t *testing.T) {
	require.NoError(t, PrepareLogs(""))
}

func TestPrepareLogs_WritesJSONToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")
	require.NoError(t, PrepareLogs(logFile))
	defer log.SetOutput(os.Stdout)

	LogInfo("pipeline started")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"pipeline started"`)
	assert.Contains(t, string(data), `"job":`)
}

func TestPrepareLogs_InvalidPath(t *testing.T) {
	err := PrepareLogs("/nonexistent/dir/test.log")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open log file")
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stdout)
	log.SetFormatter(&log.JSONFormatter{})

	LogError("send failed")

	assert.Contains(t, buf.String(), `"msg":"send failed"`)
	assert.Contains(t, buf.String(), `"level":"error"`)
}

func TestLogPanic(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stdout)

	assert.Panics(t, func() {
		LogPanic(os.ErrClosed)
	})
}
