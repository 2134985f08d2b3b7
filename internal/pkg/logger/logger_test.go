package logger

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesErrorAndSecurityFiles(t *testing.T) {
	dir := t.TempDir()
	var stderr bytes.Buffer
	l, err := New(Config{
		Level:        "info",
		SecurityPath: filepath.Join(dir, "security.log"),
		ErrorPath:    filepath.Join(dir, "error.log"),
		MaxSize:      1,
		Stderr:       &stderr,
	})
	require.NoError(t, err)

	l.App.Info("started")
	l.App.Warn("remediation failed")
	l.Security.Info("alert stored")
	require.NoError(t, l.Close())

	errLog, err := os.ReadFile(filepath.Join(dir, "error.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errLog), "remediation failed")
	assert.NotContains(t, string(errLog), "started")

	secLog, err := os.ReadFile(filepath.Join(dir, "security.log"))
	require.NoError(t, err)
	assert.Contains(t, string(secLog), "alert stored")

	assert.True(t, strings.Contains(stderr.String(), "started"))
}

func TestSetLevel(t *testing.T) {
	var stderr bytes.Buffer
	l, err := New(Config{Level: "info", Stderr: &stderr})
	require.NoError(t, err)

	l.App.Debug("hidden")
	require.NoError(t, l.SetLevel("debug"))
	l.App.Debug("visible")

	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "visible")
	assert.Error(t, l.SetLevel("loud"))
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "verbose"})
	assert.Error(t, err)
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", FromContext(ctx))
	assert.Empty(t, FromContext(context.Background()))
}
