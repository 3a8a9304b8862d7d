package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/lldsync/lldsync/internal/audit"
	"github.com/lldsync/lldsync/internal/config"
	"github.com/lldsync/lldsync/internal/lld"
	"github.com/lldsync/lldsync/internal/metrics"
	"github.com/lldsync/lldsync/internal/model"
	"github.com/lldsync/lldsync/internal/repository"
	"github.com/lldsync/lldsync/pkg/logger"
)

// LLDService 发现运行服务：调度引擎、记录指标与日志、归档审计
type LLDService struct {
	config   *config.Config
	db       *gorm.DB
	engine   *lld.Engine
	audits   *repository.AuditRepo
	metrics  *metrics.Collector
	archiver audit.Archiver

	mutex   sync.RWMutex
	running bool
	runs    map[uint64]map[*RunContext]struct{}
	total   int64
	aborted int64
}

// RunContext 正在进行的运行
type RunContext struct {
	RuleID    uint64
	Cancel    context.CancelFunc
	StartTime time.Time
}

// RuleRows 批量处理中的一条规则及其发现行
type RuleRows struct {
	RuleID uint64              `json:"rule_id"`
	Rows   []*lld.DiscoveryRow `json:"data"`
}

// ServiceOption 服务选项
type ServiceOption func(*LLDService)

// WithArchiver 替换审计归档器
func WithArchiver(a audit.Archiver) ServiceOption {
	return func(s *LLDService) { s.archiver = a }
}

// WithEngineOptions 追加引擎选项
func WithEngineOptions(opts ...lld.Option) ServiceOption {
	return func(s *LLDService) {
		s.engine = s.newEngine(opts...)
	}
}

// NewLLDService 创建发现运行服务
func NewLLDService(cfg *config.Config, db *gorm.DB, opts ...ServiceOption) *LLDService {
	s := &LLDService{
		config:   cfg,
		db:       db,
		audits:   repository.NewAuditRepo(db),
		metrics:  metrics.NewCollector(),
		archiver: audit.New(cfg.Audit),
		runs:     make(map[uint64]map[*RunContext]struct{}),
	}
	s.engine = s.newEngine()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LLDService) newEngine(opts ...lld.Option) *lld.Engine {
	l := s.config.LLD
	repo := repository.NewLLDRepo(s.db, repository.WithRetry(l.TxRetry.Attempts, l.TxRetry.Sleep))
	base := []lld.Option{lld.WithLimits(lld.Limits{
		HostName:    l.Limits.HostName,
		VisibleName: l.Limits.VisibleName,
		GroupName:   l.Limits.GroupName,
		TagName:     l.Limits.TagName,
		TagValue:    l.Limits.TagValue,
	})}
	return lld.NewEngine(repo, append(base, opts...)...)
}

// Start 启动服务
func (s *LLDService) Start(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return fmt.Errorf("lld service is already running")
	}
	s.running = true
	logger.Info("LLD service started")
	return nil
}

// Stop 停止服务并取消正在进行的运行
func (s *LLDService) Stop() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	for _, set := range s.runs {
		for rc := range set {
			rc.Cancel()
		}
	}
	logger.Info("LLD service stopped")
	return nil
}

// Running 服务是否在运行
func (s *LLDService) Running() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

func (s *LLDService) addRun(rc *RunContext) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.running {
		return fmt.Errorf("lld service is not running")
	}
	set, ok := s.runs[rc.RuleID]
	if !ok {
		set = make(map[*RunContext]struct{})
		s.runs[rc.RuleID] = set
	}
	set[rc] = struct{}{}
	return nil
}

func (s *LLDService) removeRun(rc *RunContext, res *lld.Result) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if set, ok := s.runs[rc.RuleID]; ok {
		delete(set, rc)
		if len(set) == 0 {
			delete(s.runs, rc.RuleID)
		}
	}
	s.total++
	if res.Status == lld.StatusAborted {
		s.aborted++
	}
}

// Run 以一批发现行协调一条规则，运行内的错误体现在结果中
func (s *LLDService) Run(ctx context.Context, ruleID uint64, rows []*lld.DiscoveryRow) (*lld.Result, error) {
	cfg, engine, archiver := s.snapshot()
	timeout := cfg.LLD.RunTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rc := &RunContext{RuleID: ruleID, Cancel: cancel, StartTime: time.Now()}
	if err := s.addRun(rc); err != nil {
		return nil, err
	}
	done := s.metrics.RunStarted()
	res := engine.Run(runCtx, ruleID, rows)
	done()
	s.removeRun(rc, res)

	s.metrics.RecordRun(res)
	s.logResult(res)
	s.archive(ctx, archiver, cfg.Audit.Archive, res)
	return res, nil
}

func (s *LLDService) snapshot() (*config.Config, *lld.Engine, audit.Archiver) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.config, s.engine, s.archiver
}

// Reload 应用新配置：重建引擎与归档器，正在进行的运行不受影响
func (s *LLDService) Reload(cfg *config.Config) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.config = cfg
	s.engine = s.newEngine()
	s.archiver = audit.New(cfg.Audit)
	logger.WithFields(logrus.Fields{
		"workers":     cfg.LLD.Workers,
		"run_timeout": cfg.LLD.RunTimeout,
		"archive":     cfg.Audit.Archive,
	}).Info("LLD service reloaded")
}

func (s *LLDService) logResult(res *lld.Result) {
	entry := logger.Run(res.RuleID, res.RunID).WithFields(logrus.Fields{
		"rows":     res.Stats.Rows,
		"created":  res.Stats.HostsCreated,
		"updated":  res.Stats.HostsUpdated,
		"deleted":  res.Stats.HostsDeleted,
		"rejected": res.Stats.HostsRejected,
		"groups":   res.Stats.GroupsCreated + res.Stats.GroupsUpdated + res.Stats.GroupsDeleted,
		"warnings": len(res.Messages),
		"duration": res.Duration,
	})
	switch {
	case res.Status == lld.StatusAborted:
		entry.WithError(res.Err).Error("Discovery run aborted")
	case len(res.Messages) > 0:
		entry.Warn("Discovery run " + res.Summary())
		for _, m := range res.Messages {
			logger.Debugf("rule %d: %s", res.RuleID, m)
		}
	default:
		entry.Info("Discovery run completed")
	}
}

// archive 归档失败只记录日志，不影响已提交的运行
func (s *LLDService) archive(ctx context.Context, archiver audit.Archiver, backend string, res *lld.Result) {
	if archiver == nil || res.Status != lld.StatusCompleted || len(res.Audit) == 0 {
		return
	}
	obj, err := archiver.Archive(ctx, res)
	s.metrics.RecordArchive(backend, err)
	if err != nil {
		logger.Run(res.RuleID, res.RunID).WithField("backend", backend).
			WithError(err).Warn("Audit archive failed")
		return
	}
	logger.Run(res.RuleID, res.RunID).WithFields(logrus.Fields{"uri": obj.URI, "size": obj.Size}).
		Debug("Audit archived")
}

// ProcessBatch 并发处理多条规则，并发数受 lld.workers 限制，结果与输入顺序一致
func (s *LLDService) ProcessBatch(ctx context.Context, batch []RuleRows) ([]*lld.Result, error) {
	cfg, _, _ := s.snapshot()
	results := make([]*lld.Result, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	workers := cfg.LLD.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i := range batch {
		i := i
		g.Go(func() error {
			res, err := s.Run(gctx, batch[i].RuleID, batch[i].Rows)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// CancelRule 取消某条规则正在进行的运行，返回取消的数量
func (s *LLDService) CancelRule(ruleID uint64) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	n := 0
	for rc := range s.runs[ruleID] {
		rc.Cancel()
		n++
	}
	return n
}

// Seed 写入规则定义
func (s *LLDService) Seed(ctx context.Context, set *repository.SeedSet) error {
	return repository.Seed(ctx, s.db, set)
}

// Rules 列出发现规则
func (s *LLDService) Rules(ctx context.Context) ([]model.LLDRule, error) {
	return repository.ListRules(ctx, s.db)
}

// RunAudit 查询一次运行写入的审计记录
func (s *LLDService) RunAudit(ctx context.Context, runID string) ([]model.AuditLog, error) {
	return s.audits.ListByRecordset(ctx, runID)
}

// ResourceAudit 分页查询某个主机或主机组的审计历史
func (s *LLDService) ResourceAudit(ctx context.Context, resourceType int, resourceID uint64, page, pageSize int) ([]model.AuditLog, int64, error) {
	return s.audits.ListByResource(ctx, resourceType, resourceID, page, pageSize)
}

// GetStats 获取统计信息
func (s *LLDService) GetStats() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	active := 0
	for _, set := range s.runs {
		active += len(set)
	}
	return map[string]interface{}{
		"running":      s.running,
		"active_runs":  active,
		"total_runs":   s.total,
		"aborted_runs": s.aborted,
		"max_workers":  s.config.LLD.Workers,
		"archive":      s.config.Audit.Archive,
	}
}
