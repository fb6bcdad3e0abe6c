package log

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringToLogLevel(t *testing.T) {
	assert.Equal(t, LOG_LEVEL_FATAL, StringToLogLevel("fatal"))
	assert.Equal(t, LOG_LEVEL_ERROR, StringToLogLevel("error"))
	assert.Equal(t, LOG_LEVEL_WARN, StringToLogLevel("warn"))
	assert.Equal(t, LOG_LEVEL_WARN, StringToLogLevel("WARNING"))
	assert.Equal(t, LOG_LEVEL_INFO, StringToLogLevel("info"))
	assert.Equal(t, LOG_LEVEL_DEBUG, StringToLogLevel("nonsense"))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.SetLevel(LOG_LEVEL_WARN)

	l.Infof("hidden %d", 1)
	l.Warningf("shown %d", 2)
	assert.NoError(t, l.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "WARN")

	buf.Reset()
	l.SetLevelByString("debug")
	l.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
	assert.Equal(t, LOG_LEVEL_DEBUG, l.Level())
}

func TestCallerIsLoggingSite(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Info("from a method")
	assert.Contains(t, buf.String(), "log/log_test.go:")
	assert.NotContains(t, buf.String(), "testing/testing.go")

	buf.Reset()
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	Info("from the package")
	assert.Contains(t, buf.String(), "log/log_test.go:")

	buf.Reset()
	GlobalLogger().Warningf("from the global %s", "logger")
	assert.Contains(t, buf.String(), "log/log_test.go:")
	assert.Contains(t, buf.String(), "from the global logger")
}
