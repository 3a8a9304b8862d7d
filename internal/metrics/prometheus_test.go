package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lldsync/lldsync/internal/lld"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Counter != nil {
		return out.GetCounter().GetValue()
	}
	return out.GetGauge().GetValue()
}

func TestRecordRun(t *testing.T) {
	c := NewCollector()
	before := value(t, RunTotal.WithLabelValues("completed"))
	created := value(t, EntityChanges.WithLabelValues("host", "create"))

	c.RecordRun(&lld.Result{
		Status:   lld.StatusCompleted,
		Duration: 20 * time.Millisecond,
		Messages: []string{"warning"},
		Stats:    lld.Stats{Rows: 3, HostsCreated: 2},
	})

	assert.Equal(t, before+1, value(t, RunTotal.WithLabelValues("completed")))
	assert.Equal(t, created+2, value(t, EntityChanges.WithLabelValues("host", "create")))
}

func TestRunStartedTracksActiveRuns(t *testing.T) {
	c := NewCollector()
	base := value(t, ActiveRuns)
	done := c.RunStarted()
	assert.Equal(t, base+1, value(t, ActiveRuns))
	done()
	assert.Equal(t, base, value(t, ActiveRuns))
}

func TestRecordArchive(t *testing.T) {
	c := NewCollector()
	before := value(t, ArchiveWrites.WithLabelValues("local", "error"))
	c.RecordArchive("local", errors.New("disk full"))
	assert.Equal(t, before+1, value(t, ArchiveWrites.WithLabelValues("local", "error")))
}
