package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lldsync/lldsync/internal/config"
	"github.com/lldsync/lldsync/internal/lld"
)

func sampleResult() *lld.Result {
	return &lld.Result{
		RuleID:  42,
		RunID:   "3f1c",
		Status:  lld.StatusCompleted,
		Started: time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC),
		Audit: []lld.AuditEntry{
			{Kind: lld.KindHost, ID: 7, ResourceID: 7, ResourceName: "srv1", Path: "host.host", Action: 0, New: "srv1"},
			{Kind: lld.KindMacro, ID: 9, ResourceID: 7, ResourceName: "srv1", Path: "host.macros[9].value", Action: 1, Old: lld.AuditMask, New: lld.AuditMask},
		},
	}
}

func TestEncodeWritesOneLinePerEntry(t *testing.T) {
	data, err := Encode(sampleResult())
	require.NoError(t, err)

	var lines []map[string]interface{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "3f1c", lines[0]["run_id"])
	assert.Equal(t, float64(42), lines[0]["rule_id"])
	assert.Equal(t, "host.host", lines[0]["path"])
	assert.Equal(t, lld.AuditMask, lines[1]["new"])
}

func TestLocalArchiver(t *testing.T) {
	dir := t.TempDir()
	a := NewLocalArchiver(config.LocalAuditConfig{BaseDir: dir, MkdirIfMissing: true})

	obj, err := a.Archive(context.Background(), sampleResult())
	require.NoError(t, err)

	want := filepath.Join(dir, "rule_42", "20240501", "102030_3f1c.jsonl")
	assert.Equal(t, "file://"+want, obj.URI)
	assert.True(t, strings.HasPrefix(obj.Checksum, "sha256:"))

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, obj.Size, int64(len(data)))
}

func TestLocalArchiverWithoutMkdir(t *testing.T) {
	a := NewLocalArchiver(config.LocalAuditConfig{BaseDir: t.TempDir()})
	_, err := a.Archive(context.Background(), sampleResult())
	assert.Error(t, err)
}

func TestNewSelectsBackend(t *testing.T) {
	assert.Nil(t, New(config.AuditConfig{Archive: "none"}))
	assert.IsType(t, &LocalArchiver{}, New(config.AuditConfig{Archive: "local"}))

	// MinIO 配置不完整时回退到本地
	dir := t.TempDir()
	a := New(config.AuditConfig{Archive: "minio", Local: config.LocalAuditConfig{BaseDir: dir, MkdirIfMissing: true}})
	require.IsType(t, &DelegatingArchiver{}, a)
	obj, err := a.Archive(context.Background(), sampleResult())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obj.URI, "file://"))
}
