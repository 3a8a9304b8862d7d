package lld

import (
	"context"
	"errors"

	"github.com/lldsync/lldsync/internal/model"
)

var (
	// ErrRuleNotFound 发现规则不存在（可能已被并发删除）
	ErrRuleNotFound = errors.New("discovery rule not found")
	// ErrLockFailed 无法锁定规则锚点行
	ErrLockFailed = errors.New("cannot lock discovery rule")
)

// Store 引擎使用的关系存储
type Store interface {
	// LoadRule 读取规则、规则主机可继承的设置与全部主机原型
	LoadRule(ctx context.Context, ruleID uint64) (*Rule, error)
	// LoadHosts 读取由指定主机原型发现的主机及其接口、宏、标签、组与模板
	LoadHosts(ctx context.Context, prototypeID uint64) ([]*Host, error)
	// LoadGroups 读取由指定组原型发现的主机组
	LoadGroups(ctx context.Context, groupPrototypeIDs []uint64) ([]*Group, error)

	// HostNamesInUse 返回已被其他主机占用的名称，column 为 host 或 name
	HostNamesInUse(ctx context.Context, column string, names []string, excludeHostIDs []uint64) (map[string]bool, error)
	// GroupNamesInUse 返回已被其他主机组占用的名称
	GroupNamesInUse(ctx context.Context, names []string, excludeGroupIDs []uint64) (map[string]bool, error)
	// InterfacesInUse 返回被监控项引用的接口
	InterfacesInUse(ctx context.Context, interfaceIDs []uint64) (map[uint64]bool, error)
	// ExistingTemplates 返回存在的模板 ID
	ExistingTemplates(ctx context.Context, templateIDs []uint64) (map[uint64]bool, error)

	// InTx 在单个事务内执行 fn，fn 返回错误时回滚
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx 事务内的批量写操作
type Tx interface {
	// LockRule 锁定规则锚点行，规则不存在时返回 ErrRuleNotFound
	LockRule(ctx context.Context, ruleID uint64) error
	// ReserveIDs 为 table.field 分配连续的 n 个 ID，返回第一个
	ReserveIDs(ctx context.Context, table, field string, n int) (uint64, error)
	// HostNamesInUse 与 Store 相同，在事务内查询
	HostNamesInUse(ctx context.Context, column string, names []string, excludeHostIDs []uint64) (map[string]bool, error)
	// GroupNamesInUse 与 Store 相同，在事务内查询
	GroupNamesInUse(ctx context.Context, names []string, excludeGroupIDs []uint64) (map[string]bool, error)
	// GroupsByName 按名称查询主机组 ID
	GroupsByName(ctx context.Context, names []string) (map[string]uint64, error)
	// Rights 读取主机组上的访问权限
	Rights(ctx context.Context, groupIDs []uint64) (map[uint64][]model.Right, error)

	Insert(ctx context.Context, batch *InsertBatch) error
	Update(ctx context.Context, updates []Update) error
	Delete(ctx context.Context, batch *DeleteBatch) error
	WriteAudit(ctx context.Context, records []model.AuditLog) error
}

// InsertBatch 每类记录一次多行插入
type InsertBatch struct {
	Hosts              []model.Host
	HostDiscovery      []model.HostDiscovery
	Groups             []model.HostGroup
	GroupDiscovery     []model.GroupDiscovery
	Interfaces         []model.Interface
	InterfaceSNMP      []model.InterfaceSNMP
	InterfaceDiscovery []model.InterfaceDiscovery
	Macros             []model.HostMacro
	Tags               []model.HostTag
	HostGroups         []model.HostGroupLink
	HostTemplates      []model.HostTemplate
	Rights             []model.Right
}

// Len 待插入记录总数
func (b *InsertBatch) Len() int {
	return len(b.Hosts) + len(b.HostDiscovery) + len(b.Groups) + len(b.GroupDiscovery) +
		len(b.Interfaces) + len(b.InterfaceSNMP) + len(b.InterfaceDiscovery) + len(b.Macros) +
		len(b.Tags) + len(b.HostGroups) + len(b.HostTemplates) + len(b.Rights)
}

// Update 单行更新
type Update struct {
	Table  string
	Key    string
	ID     uint64
	Values map[string]interface{}
}

// DeleteTarget 按列值删除一张表中的记录
type DeleteTarget struct {
	Table  string
	Column string
	IDs    []uint64
}

// DeleteBatch 多表删除，按添加顺序执行
type DeleteBatch struct {
	Targets []DeleteTarget
}

// Add 追加删除条件，同表同列合并
func (b *DeleteBatch) Add(table, column string, ids ...uint64) {
	if len(ids) == 0 {
		return
	}
	for i := range b.Targets {
		if b.Targets[i].Table == table && b.Targets[i].Column == column {
			b.Targets[i].IDs = append(b.Targets[i].IDs, ids...)
			return
		}
	}
	b.Targets = append(b.Targets, DeleteTarget{Table: table, Column: column, IDs: append([]uint64(nil), ids...)})
}

// Len 删除条件中的 ID 总数
func (b *DeleteBatch) Len() int {
	n := 0
	for _, t := range b.Targets {
		n += len(t.IDs)
	}
	return n
}
