package repository

import (
	"context"
	"fmt"

	"github.com/lldsync/lldsync/internal/database"
	"github.com/lldsync/lldsync/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedSet 规则、主机原型及其依赖的静态记录
type SeedSet struct {
	Rules           []model.LLDRule
	Hosts           []model.Host
	Prototypes      []model.HostPrototype
	GroupPrototypes []model.GroupPrototype
	Groups          []model.HostGroup
	Interfaces      []model.Interface
	InterfaceSNMP   []model.InterfaceSNMP
	Macros          []model.HostMacro
	Tags            []model.HostTag
	Templates       []model.HostTemplate
	Items           []model.Item
	Rights          []model.Right
}

// Len 记录总数
func (s *SeedSet) Len() int {
	return len(s.Rules) + len(s.Hosts) + len(s.Prototypes) + len(s.GroupPrototypes) + len(s.Groups) +
		len(s.Interfaces) + len(s.InterfaceSNMP) + len(s.Macros) + len(s.Tags) + len(s.Templates) +
		len(s.Items) + len(s.Rights)
}

func upsert[T any](db *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return db.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(rows, chunkSize).Error
}

// Seed 在一个事务内写入或覆盖静态记录
func Seed(ctx context.Context, db *gorm.DB, set *SeedSet) error {
	return database.TransactionWithRetry(ctx, db, func(tx *gorm.DB) error {
		steps := []struct {
			name string
			fn   func() error
		}{
			{"hosts", func() error { return upsert(tx, set.Hosts) }},
			{"lld_rules", func() error { return upsert(tx, set.Rules) }},
			{"host_prototypes", func() error { return upsert(tx, set.Prototypes) }},
			{"hstgrp", func() error { return upsert(tx, set.Groups) }},
			{"group_prototype", func() error { return upsert(tx, set.GroupPrototypes) }},
			{"interface", func() error { return upsert(tx, set.Interfaces) }},
			{"interface_snmp", func() error { return upsert(tx, set.InterfaceSNMP) }},
			{"hostmacro", func() error { return upsert(tx, set.Macros) }},
			{"host_tag", func() error { return upsert(tx, set.Tags) }},
			{"hosts_templates", func() error { return upsert(tx, set.Templates) }},
			{"items", func() error { return upsert(tx, set.Items) }},
			{"rights", func() error { return upsert(tx, set.Rights) }},
		}
		for _, step := range steps {
			if err := step.fn(); err != nil {
				return fmt.Errorf("seed %s: %w", step.name, err)
			}
		}
		return nil
	}, 3, 0)
}

// ListRules 列出全部发现规则
func ListRules(ctx context.Context, db *gorm.DB) ([]model.LLDRule, error) {
	var rules []model.LLDRule
	err := db.WithContext(ctx).Order("ruleid").Find(&rules).Error
	return rules, err
}
