package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lldsync/lldsync/internal/lld"
)

// Prometheus 指标
var (
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lld_run_duration_seconds",
			Help:    "Time spent reconciling one discovery rule",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	RunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lld_runs_total",
			Help: "Total number of discovery runs",
		},
		[]string{"status"},
	)

	RowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lld_rows_total",
			Help: "Total number of discovery rows processed",
		},
	)

	WarningsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lld_warnings_total",
			Help: "Total number of user-facing warnings produced by runs",
		},
	)

	EntityChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lld_entity_changes_total",
			Help: "Entities written by discovery runs",
		},
		[]string{"entity", "operation"},
	)

	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lld_active_runs",
			Help: "Number of discovery runs in progress",
		},
	)

	ArchiveWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lld_audit_archive_writes_total",
			Help: "Audit archive writes by backend and outcome",
		},
		[]string{"backend", "status"},
	)
)

// Collector 记录发现运行指标
type Collector struct{}

// NewCollector 创建指标收集器
func NewCollector() *Collector {
	return &Collector{}
}

// RunStarted 标记运行开始，返回结束时调用的函数
func (c *Collector) RunStarted() func() {
	ActiveRuns.Inc()
	return func() { ActiveRuns.Dec() }
}

// RecordRun 记录一次运行结果
func (c *Collector) RecordRun(res *lld.Result) {
	status := string(res.Status)
	RunTotal.WithLabelValues(status).Inc()
	RunDuration.WithLabelValues(status).Observe(res.Duration.Seconds())
	RowsTotal.Add(float64(res.Stats.Rows))
	WarningsTotal.Add(float64(len(res.Messages)))

	s := res.Stats
	add := func(entity, op string, n int) {
		if n > 0 {
			EntityChanges.WithLabelValues(entity, op).Add(float64(n))
		}
	}
	add("host", "create", s.HostsCreated)
	add("host", "update", s.HostsUpdated)
	add("host", "delete", s.HostsDeleted)
	add("host", "reject", s.HostsRejected)
	add("group", "create", s.GroupsCreated)
	add("group", "update", s.GroupsUpdated)
	add("group", "delete", s.GroupsDeleted)
}

// RecordArchive 记录一次审计归档写入
func (c *Collector) RecordArchive(backend string, err error) {
	ArchiveWrites.WithLabelValues(backend, getStatusLabel(err)).Inc()
}

// ObserveDuration 记录不经过引擎的运行耗时（例如请求解析失败）
func (c *Collector) ObserveDuration(status lld.RunStatus, d time.Duration) {
	RunDuration.WithLabelValues(string(status)).Observe(d.Seconds())
}

func getStatusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
