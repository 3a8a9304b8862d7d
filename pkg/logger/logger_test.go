package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "lld.log")
	l, err := New(Config{Level: "debug", Format: "json", Output: "file", FilePath: path, MaxSize: 1})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	l.WithField("rule_id", 42).Info("run completed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"rule_id":42`)
	assert.Contains(t, string(data), `"msg":"run completed"`)
}

func TestSetLevelFallsBackToInfo(t *testing.T) {
	require.NoError(t, Init(Config{Level: "warn", Output: "stderr"}))
	assert.Equal(t, logrus.WarnLevel, GetLogger().GetLevel())

	SetLevel("debug")
	assert.Equal(t, logrus.DebugLevel, GetLogger().GetLevel())

	SetLevel("nonsense")
	assert.Equal(t, logrus.InfoLevel, GetLogger().GetLevel())
}

func TestInitReconfiguresInPlace(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")

	require.NoError(t, Init(Config{Level: "info", Output: "file", FilePath: first}))
	l := GetLogger()
	Run(7, "run-a").Info("first")

	require.NoError(t, Init(Config{Level: "debug", Format: "json", Output: "file", FilePath: second}))
	assert.Same(t, l, GetLogger())
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	Run(7, "run-b").Debug("second")

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run_id=run-a")
	assert.NotContains(t, string(data), "run-b")

	data, err = os.ReadFile(second)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"rule_id":7`)
	assert.Contains(t, string(data), `"run_id":"run-b"`)
}
