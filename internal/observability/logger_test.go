package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/v0xg/studiopilot/internal/config"
)

func TestNewLogger_ConsoleLevels(t *testing.T) {
	cfg := config.NewDefaultConfig().Logger
	var buf bytes.Buffer

	log, err := NewLogger(cfg, zapcore.AddSync(&buf), false)
	require.NoError(t, err)
	log.Debug("hidden")
	log.Named("resolver").Info("visible")
	require.NoError(t, log.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "studiopilot.resolver.")
	assert.Contains(t, out, colorGreen+"INFO"+colorReset)
}

func TestNewLogger_Verbose(t *testing.T) {
	cfg := config.NewDefaultConfig().Logger
	var buf bytes.Buffer
	log, err := NewLogger(cfg, zapcore.AddSync(&buf), true)
	require.NoError(t, err)
	log.Debug("strategy missed")
	assert.Contains(t, buf.String(), "strategy missed")
}

func TestNewLogger_FileIsJSON(t *testing.T) {
	cfg := config.NewDefaultConfig().Logger
	cfg.LogFile = filepath.Join(t.TempDir(), "run.log")
	var buf bytes.Buffer

	log, err := NewLogger(cfg, zapcore.AddSync(&buf), false)
	require.NoError(t, err)
	log.Warn("language not selected")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "language not selected", entry["msg"])
}

func TestNewLogger_BadLevel(t *testing.T) {
	cfg := config.NewDefaultConfig().Logger
	cfg.Level = "chatty"
	_, err := NewLogger(cfg, zapcore.AddSync(&bytes.Buffer{}), false)
	assert.Error(t, err)
}

func TestNewConsoleLogger_WritesToStderr(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	stderr := os.Stderr
	os.Stderr = w
	t.Cleanup(func() { os.Stderr = stderr })

	log, err := NewConsoleLogger(config.NewDefaultConfig().Logger, false)
	os.Stderr = stderr
	require.NoError(t, err)
	log.Info("kept off stdout")
	require.NoError(t, w.Close())

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "kept off stdout")
}
