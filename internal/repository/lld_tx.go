package repository

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/lldsync/lldsync/internal/lld"
	"github.com/lldsync/lldsync/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// lldTx 事务内的写操作，实现 lld.Tx
type lldTx struct {
	db     *gorm.DB
	locked bool
}

var _ lld.Tx = (*lldTx)(nil)

func checkIdent(names ...string) error {
	for _, name := range names {
		if !identRe.MatchString(name) {
			return fmt.Errorf("invalid identifier %q", name)
		}
	}
	return nil
}

// LockRule 锁定规则锚点行
//
// SQLite 没有行锁，以自增 revision 的写操作获取库级写锁；其他方言使用 SELECT ... FOR UPDATE。
func (t *lldTx) LockRule(ctx context.Context, ruleID uint64) error {
	db := t.db.WithContext(ctx)

	if db.Dialector.Name() == "sqlite" {
		res := db.Model(&model.LLDRule{}).Where("ruleid = ?", ruleID).
			UpdateColumn("revision", gorm.Expr("revision + 1"))
		if res.Error != nil {
			return fmt.Errorf("%w: %v", lld.ErrLockFailed, res.Error)
		}
		if res.RowsAffected == 0 {
			return lld.ErrRuleNotFound
		}
		t.locked = true
		return nil
	}

	var rows []model.LLDRule
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("ruleid = ?", ruleID).Find(&rows).Error; err != nil {
		return fmt.Errorf("%w: %v", lld.ErrLockFailed, err)
	}
	if len(rows) == 0 {
		return lld.ErrRuleNotFound
	}
	t.locked = true
	return nil
}

// ReserveIDs 为 table.field 分配连续的 n 个 ID
//
// 起点取 ids 表记录与表内当前最大值 +1 中的较大者，兼容绕过分配器写入的记录。
func (t *lldTx) ReserveIDs(ctx context.Context, table, field string, n int) (uint64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("reserve %d ids", n)
	}
	if err := checkIdent(table, field); err != nil {
		return 0, err
	}
	db := t.db.WithContext(ctx)

	var maxID uint64
	if err := db.Table(table).Select(fmt.Sprintf("COALESCE(MAX(%s), 0)", field)).Scan(&maxID).Error; err != nil {
		return 0, err
	}

	var rows []model.ID
	if err := db.Where("table_name = ? AND field_name = ?", table, field).Find(&rows).Error; err != nil {
		return 0, err
	}

	first := maxID + 1
	if len(rows) > 0 && rows[0].NextID > first {
		first = rows[0].NextID
	}
	next := first + uint64(n)

	if len(rows) == 0 {
		err := db.Create(&model.ID{Table: table, FieldName: field, NextID: next}).Error
		return first, err
	}
	err := db.Model(&model.ID{}).Where("table_name = ? AND field_name = ?", table, field).
		UpdateColumn("nextid", next).Error
	return first, err
}

// HostNamesInUse 在事务内查询已占用的主机名，锁定规则后读到的是其他运行已提交的结果
func (t *lldTx) HostNamesInUse(ctx context.Context, column string, names []string, excludeHostIDs []uint64) (map[string]bool, error) {
	return hostNamesInUse(t.db.WithContext(ctx), column, names, excludeHostIDs)
}

// GroupNamesInUse 在事务内查询已占用的主机组名
func (t *lldTx) GroupNamesInUse(ctx context.Context, names []string, excludeGroupIDs []uint64) (map[string]bool, error) {
	return groupNamesInUse(t.db.WithContext(ctx), names, excludeGroupIDs)
}

// GroupsByName 按名称查询主机组
func (t *lldTx) GroupsByName(ctx context.Context, names []string) (map[string]uint64, error) {
	db := t.db.WithContext(ctx)
	out := make(map[string]uint64)
	err := stringChunks(names, func(part []string) error {
		var rows []model.HostGroup
		if err := db.Where("name IN ?", part).Find(&rows).Error; err != nil {
			return err
		}
		for _, row := range rows {
			out[row.Name] = row.GroupID
		}
		return nil
	})
	return out, err
}

// Rights 读取主机组上的权限
func (t *lldTx) Rights(ctx context.Context, groupIDs []uint64) (map[uint64][]model.Right, error) {
	db := t.db.WithContext(ctx)
	out := make(map[uint64][]model.Right)
	err := chunks(groupIDs, func(part []uint64) error {
		var rows []model.Right
		if err := db.Where("id IN ?", part).Order("rightid").Find(&rows).Error; err != nil {
			return err
		}
		for _, row := range rows {
			out[row.HstGrpID] = append(out[row.HstGrpID], row)
		}
		return nil
	})
	return out, err
}

func createInBatches[T any](db *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return db.CreateInBatches(rows, chunkSize).Error
}

// Insert 每类记录一次分批多行插入，父表在前
func (t *lldTx) Insert(ctx context.Context, b *lld.InsertBatch) error {
	db := t.db.WithContext(ctx)
	steps := []struct {
		name string
		fn   func() error
	}{
		{"hstgrp", func() error { return createInBatches(db, b.Groups) }},
		{"group_discovery", func() error { return createInBatches(db, b.GroupDiscovery) }},
		{"hosts", func() error { return createInBatches(db, b.Hosts) }},
		{"host_discovery", func() error { return createInBatches(db, b.HostDiscovery) }},
		{"interface", func() error { return createInBatches(db, b.Interfaces) }},
		{"interface_snmp", func() error { return createInBatches(db, b.InterfaceSNMP) }},
		{"interface_discovery", func() error { return createInBatches(db, b.InterfaceDiscovery) }},
		{"hostmacro", func() error { return createInBatches(db, b.Macros) }},
		{"host_tag", func() error { return createInBatches(db, b.Tags) }},
		{"hosts_groups", func() error { return createInBatches(db, b.HostGroups) }},
		{"hosts_templates", func() error { return createInBatches(db, b.HostTemplates) }},
		{"rights", func() error { return createInBatches(db, b.Rights) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("insert %s: %w", step.name, err)
		}
	}
	return nil
}

// updateChunk 单条 UPDATE 语句覆盖的最大行数
const updateChunk = 100

// updateBatch 同表、同主键列、同一组变更列的行
type updateBatch struct {
	table   string
	key     string
	columns []string
	rows    []lld.Update
}

// groupUpdates 合并同一行的多次更新，再按 (表, 列集合) 分组，保持首次出现的顺序
func groupUpdates(updates []lld.Update) []*updateBatch {
	var merged []lld.Update
	rowIndex := make(map[string]int)
	for _, u := range updates {
		if len(u.Values) == 0 {
			continue
		}
		k := fmt.Sprintf("%s.%s.%d", u.Table, u.Key, u.ID)
		if i, ok := rowIndex[k]; ok {
			for col, v := range u.Values {
				merged[i].Values[col] = v
			}
			continue
		}
		values := make(map[string]interface{}, len(u.Values))
		for col, v := range u.Values {
			values[col] = v
		}
		rowIndex[k] = len(merged)
		merged = append(merged, lld.Update{Table: u.Table, Key: u.Key, ID: u.ID, Values: values})
	}

	var batches []*updateBatch
	byShape := make(map[string]*updateBatch)
	for _, u := range merged {
		columns := make([]string, 0, len(u.Values))
		for col := range u.Values {
			columns = append(columns, col)
		}
		sort.Strings(columns)
		shape := u.Table + "." + u.Key + ":" + strings.Join(columns, ",")
		b, ok := byShape[shape]
		if !ok {
			b = &updateBatch{table: u.Table, key: u.Key, columns: columns}
			byShape[shape] = b
			batches = append(batches, b)
		}
		b.rows = append(b.rows, u)
	}
	return batches
}

// statement UPDATE t SET c = CASE key WHEN ? THEN ? ... END, ... WHERE key IN ?
func (b *updateBatch) statement(rows []lld.Update) (string, []interface{}) {
	var sql strings.Builder
	args := make([]interface{}, 0, len(rows)*(2*len(b.columns)+1))
	fmt.Fprintf(&sql, "UPDATE %s SET ", b.table)
	for i, col := range b.columns {
		if i > 0 {
			sql.WriteString(", ")
		}
		fmt.Fprintf(&sql, "%s = CASE %s", col, b.key)
		for _, u := range rows {
			sql.WriteString(" WHEN ? THEN ?")
			args = append(args, u.ID, u.Values[col])
		}
		sql.WriteString(" END")
	}
	ids := make([]uint64, 0, len(rows))
	for _, u := range rows {
		ids = append(ids, u.ID)
	}
	fmt.Fprintf(&sql, " WHERE %s IN ?", b.key)
	args = append(args, ids)
	return sql.String(), args
}

// Update 将同形的行更新合并为一条 CASE 语句
func (t *lldTx) Update(ctx context.Context, updates []lld.Update) error {
	db := t.db.WithContext(ctx)
	for _, b := range groupUpdates(updates) {
		if err := checkIdent(append([]string{b.table, b.key}, b.columns...)...); err != nil {
			return err
		}
		for start := 0; start < len(b.rows); start += updateChunk {
			end := min(start+updateChunk, len(b.rows))
			stmt, args := b.statement(b.rows[start:end])
			if err := db.Exec(stmt, args...).Error; err != nil {
				return fmt.Errorf("update %s: %w", b.table, err)
			}
		}
	}
	return nil
}

// Delete 按添加顺序删除，子表在前
func (t *lldTx) Delete(ctx context.Context, b *lld.DeleteBatch) error {
	db := t.db.WithContext(ctx)
	for _, target := range b.Targets {
		if err := checkIdent(target.Table, target.Column); err != nil {
			return err
		}
		stmt := fmt.Sprintf("DELETE FROM %s WHERE %s IN ?", target.Table, target.Column)
		if err := chunks(target.IDs, func(part []uint64) error {
			return db.Exec(stmt, part).Error
		}); err != nil {
			return fmt.Errorf("delete from %s: %w", target.Table, err)
		}
	}
	return nil
}

// WriteAudit 写入审计日志
func (t *lldTx) WriteAudit(ctx context.Context, records []model.AuditLog) error {
	return createInBatches(t.db.WithContext(ctx), records)
}
