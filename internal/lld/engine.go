package lld

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus 单次运行结果
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusAborted   RunStatus = "aborted"
)

// Stats 单次运行的写入统计
type Stats struct {
	Rows          int `json:"rows"`
	HostsCreated  int `json:"hosts_created"`
	HostsUpdated  int `json:"hosts_updated"`
	HostsDeleted  int `json:"hosts_deleted"`
	HostsRejected int `json:"hosts_rejected"`
	GroupsCreated int `json:"groups_created"`
	GroupsUpdated int `json:"groups_updated"`
	GroupsDeleted int `json:"groups_deleted"`
}

// Result 单次运行结果，运行内的错误不会以 error 形式返回给调用方
type Result struct {
	RuleID   uint64        `json:"rule_id"`
	RunID    string        `json:"run_id"`
	Status   RunStatus     `json:"status"`
	Messages []string      `json:"messages,omitempty"`
	Stats    Stats         `json:"stats"`
	Audit    []AuditEntry  `json:"-"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	// Err 导致运行中止的错误
	Err error `json:"-"`
}

// Summary 结果摘要："completed"、"completed with N warnings" 或 "aborted"
func (r *Result) Summary() string {
	if r.Status == StatusAborted {
		return string(StatusAborted)
	}
	if n := len(r.Messages); n > 0 {
		return fmt.Sprintf("%s with %d warnings", StatusCompleted, n)
	}
	return string(StatusCompleted)
}

// Engine 低级发现协调引擎。同一实例可被多个协程并发使用，每次运行互不共享状态
type Engine struct {
	store    Store
	expander Expander
	limits   Limits
	clock    func() time.Time
}

// Option 引擎选项
type Option func(*Engine)

// WithClock 替换时钟
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithExpander 替换宏展开器
func WithExpander(x Expander) Option {
	return func(e *Engine) { e.expander = x }
}

// WithLimits 替换名称长度上限
func WithLimits(l Limits) Option {
	return func(e *Engine) { e.limits = l.withDefaults() }
}

// NewEngine 创建引擎
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		expander: RowExpander{},
		limits:   DefaultLimits(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run 单次运行的全部状态
type run struct {
	rule   *Rule
	now    int64
	hosts  []*Host
	groups []*Group
	msgs   Messages
	audit  *Audit
	stats  Stats
}

// Run 以一批发现行协调一条规则下的主机与主机组
func (e *Engine) Run(ctx context.Context, ruleID uint64, rows []*DiscoveryRow) *Result {
	started := e.clock()
	res := &Result{
		RuleID:  ruleID,
		RunID:   uuid.NewString(),
		Started: started,
	}

	r := &run{
		now:   started.Unix(),
		audit: NewAudit(res.RunID, started.Unix()),
	}
	r.stats.Rows = len(rows)

	err := e.process(ctx, r, ruleID, rows)

	res.Status = StatusCompleted
	res.Stats = r.stats
	res.Audit = r.audit.Entries()
	if err != nil {
		// 事务已回滚，不报告任何写入
		res.Status = StatusAborted
		res.Err = err
		res.Stats = Stats{Rows: len(rows)}
		res.Audit = nil
		r.msgs.Addf("Cannot process discovery rule: %s.", abortReason(err))
	}
	res.Messages = r.msgs.Lines()
	res.Duration = e.clock().Sub(started)
	return res
}

func abortReason(err error) string {
	switch {
	case errors.Is(err, ErrRuleNotFound):
		return ErrRuleNotFound.Error()
	case errors.Is(err, ErrLockFailed):
		return ErrLockFailed.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "run cancelled"
	}
	return err.Error()
}

func (e *Engine) process(ctx context.Context, r *run, ruleID uint64, rows []*DiscoveryRow) error {
	rule, err := e.store.LoadRule(ctx, ruleID)
	if err != nil {
		return fmt.Errorf("load rule %d: %w", ruleID, err)
	}
	r.rule = rule

	for _, proto := range rule.Prototypes {
		hosts, err := e.store.LoadHosts(ctx, proto.ID)
		if err != nil {
			return fmt.Errorf("load hosts of prototype %d: %w", proto.ID, err)
		}
		e.matchHosts(r, proto, hosts, rows)

		if len(proto.GroupPrototypes) == 0 {
			continue
		}
		ids := make([]uint64, 0, len(proto.GroupPrototypes))
		for _, gp := range proto.GroupPrototypes {
			ids = append(ids, gp.ID)
		}
		groups, err := e.store.LoadGroups(ctx, ids)
		if err != nil {
			return fmt.Errorf("load groups of prototype %d: %w", proto.ID, err)
		}
		e.matchGroups(r, proto, groups)
	}

	for _, h := range r.hosts {
		if !h.Valid() {
			continue
		}
		e.assembleInterfaces(r, h)
		e.assembleMacros(r, h)
		e.assembleTags(r, h)
		e.assembleGroups(r, h)
		e.assembleTemplates(r, h)
	}

	if err := e.validate(ctx, r); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.write(ctx, r); err != nil {
		return err
	}

	for _, h := range r.hosts {
		if h.rejected {
			r.stats.HostsRejected++
		}
	}
	return nil
}
