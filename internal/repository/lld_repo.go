package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lldsync/lldsync/internal/database"
	"github.com/lldsync/lldsync/internal/lld"
	"github.com/lldsync/lldsync/internal/model"
	"gorm.io/gorm"
)

// chunkSize IN 列表与批量插入的分块大小
const chunkSize = 500

// LLDRepo 发现引擎的数据访问层，实现 lld.Store
type LLDRepo struct {
	db         *gorm.DB
	attempts   int
	retrySleep time.Duration
}

// Option 仓库选项
type Option func(*LLDRepo)

// WithRetry 设置 SQLite 忙时的事务重试
func WithRetry(attempts int, sleep time.Duration) Option {
	return func(r *LLDRepo) {
		r.attempts = attempts
		r.retrySleep = sleep
	}
}

// NewLLDRepo 创建仓库
func NewLLDRepo(db *gorm.DB, opts ...Option) *LLDRepo {
	r := &LLDRepo{db: db, attempts: 1}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ lld.Store = (*LLDRepo)(nil)

func chunks(ids []uint64, fn func([]uint64) error) error {
	for start := 0; start < len(ids); start += chunkSize {
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := fn(ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func stringChunks(names []string, fn func([]string) error) error {
	for start := 0; start < len(names); start += chunkSize {
		end := start + chunkSize
		if end > len(names) {
			end = len(names)
		}
		if err := fn(names[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// LoadRule 读取规则、规则主机与全部主机原型
func (r *LLDRepo) LoadRule(ctx context.Context, ruleID uint64) (*lld.Rule, error) {
	db := r.db.WithContext(ctx)

	var row model.LLDRule
	if err := db.Where("ruleid = ?", ruleID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, lld.ErrRuleNotFound
		}
		return nil, err
	}

	rule := &lld.Rule{
		ID:       row.RuleID,
		Name:     row.Name,
		Lifetime: time.Duration(row.Lifetime) * time.Second,
		Parent:   lld.ParentHost{ID: row.HostID},
	}

	var parent model.Host
	err := db.Where("hostid = ?", row.HostID).First(&parent).Error
	switch {
	case err == nil:
		rule.Parent.ProxyID = parent.ProxyHostID
		rule.Parent.IPMI = lld.IPMISettings{
			AuthType:  parent.IPMIAuthType,
			Privilege: parent.IPMIPrivilege,
			Username:  parent.IPMIUsername,
			Password:  parent.IPMIPassword,
		}
		rule.Parent.TLS = lld.TLSSettings{
			Connect:     parent.TLSConnect,
			Accept:      parent.TLSAccept,
			Issuer:      parent.TLSIssuer,
			Subject:     parent.TLSSubject,
			PSKIdentity: parent.TLSPSKIdentity,
			PSK:         parent.TLSPSK,
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	if rule.Parent.Interfaces, err = r.interfaceTemplates(db, row.HostID); err != nil {
		return nil, err
	}
	if rule.Parent.Macros, err = r.macroTemplates(db, row.HostID); err != nil {
		return nil, err
	}

	var protoIDs []uint64
	if err := db.Model(&model.HostPrototype{}).Where("ruleid = ?", ruleID).
		Order("hostid").Pluck("hostid", &protoIDs).Error; err != nil {
		return nil, err
	}
	if len(protoIDs) == 0 {
		return rule, nil
	}

	var protos []model.Host
	if err := db.Where("hostid IN ?", protoIDs).Order("hostid").Find(&protos).Error; err != nil {
		return nil, err
	}
	for _, p := range protos {
		proto, err := r.prototype(db, p)
		if err != nil {
			return nil, fmt.Errorf("load prototype %d: %w", p.HostID, err)
		}
		rule.Prototypes = append(rule.Prototypes, proto)
	}
	return rule, nil
}

func (r *LLDRepo) prototype(db *gorm.DB, p model.Host) (*lld.HostPrototype, error) {
	proto := &lld.HostPrototype{
		ID:               p.HostID,
		Host:             p.Host,
		Name:             p.Name,
		Status:           lld.HostStatus(p.Status),
		Discover:         p.Discover == 0,
		CustomInterfaces: p.CustomInterfaces == 1,
		InventoryMode:    lld.InventoryMode(p.InventoryMode),
	}

	var err error
	if proto.Interfaces, err = r.interfaceTemplates(db, p.HostID); err != nil {
		return nil, err
	}
	if proto.Macros, err = r.macroTemplates(db, p.HostID); err != nil {
		return nil, err
	}

	var tags []model.HostTag
	if err := db.Where("hostid = ?", p.HostID).Order("hosttagid").Find(&tags).Error; err != nil {
		return nil, err
	}
	for _, t := range tags {
		proto.Tags = append(proto.Tags, lld.TagTemplate{Tag: t.Tag, Value: t.Value})
	}

	if err := db.Model(&model.HostTemplate{}).Where("hostid = ?", p.HostID).
		Order("templateid").Pluck("templateid", &proto.TemplateIDs).Error; err != nil {
		return nil, err
	}

	var gps []model.GroupPrototype
	if err := db.Where("hostid = ?", p.HostID).Order("group_prototypeid").Find(&gps).Error; err != nil {
		return nil, err
	}
	for _, gp := range gps {
		if gp.GroupID != 0 {
			proto.GroupIDs = append(proto.GroupIDs, gp.GroupID)
			continue
		}
		proto.GroupPrototypes = append(proto.GroupPrototypes, lld.GroupPrototype{ID: gp.GroupPrototypeID, Name: gp.Name})
	}
	return proto, nil
}

func (r *LLDRepo) interfaceTemplates(db *gorm.DB, hostID uint64) ([]lld.InterfaceTemplate, error) {
	var rows []model.Interface
	if err := db.Where("hostid = ?", hostID).Order("interfaceid").Find(&rows).Error; err != nil {
		return nil, err
	}
	snmp, err := r.snmpDetails(db, interfaceIDs(rows))
	if err != nil {
		return nil, err
	}

	out := make([]lld.InterfaceTemplate, 0, len(rows))
	for _, row := range rows {
		out = append(out, lld.InterfaceTemplate{
			ID:    row.InterfaceID,
			Type:  lld.InterfaceType(row.Type),
			Main:  row.Main == 1,
			UseIP: row.UseIP == 1,
			IP:    row.IP,
			DNS:   row.DNS,
			Port:  row.Port,
			SNMP:  snmp[row.InterfaceID],
		})
	}
	return out, nil
}

func (r *LLDRepo) macroTemplates(db *gorm.DB, hostID uint64) ([]lld.MacroTemplate, error) {
	var rows []model.HostMacro
	if err := db.Where("hostid = ?", hostID).Order("hostmacroid").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]lld.MacroTemplate, 0, len(rows))
	for _, row := range rows {
		out = append(out, lld.MacroTemplate{
			Macro:       row.Macro,
			Value:       row.Value,
			Description: row.Description,
			Type:        lld.MacroType(row.Type),
		})
	}
	return out, nil
}

func interfaceIDs(rows []model.Interface) []uint64 {
	ids := make([]uint64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.InterfaceID)
	}
	return ids
}

func (r *LLDRepo) snmpDetails(db *gorm.DB, ids []uint64) (map[uint64]*lld.SNMPDetail, error) {
	out := make(map[uint64]*lld.SNMPDetail)
	err := chunks(ids, func(part []uint64) error {
		var rows []model.InterfaceSNMP
		if err := db.Where("interfaceid IN ?", part).Find(&rows).Error; err != nil {
			return err
		}
		for _, row := range rows {
			out[row.InterfaceID] = &lld.SNMPDetail{
				Version:        row.Version,
				Bulk:           row.Bulk == 1,
				Community:      row.Community,
				SecurityName:   row.SecurityName,
				SecurityLevel:  row.SecurityLevel,
				AuthPassphrase: row.AuthPassphrase,
				PrivPassphrase: row.PrivPassphrase,
				AuthProtocol:   row.AuthProtocol,
				PrivProtocol:   row.PrivProtocol,
				ContextName:    row.ContextName,
			}
		}
		return nil
	})
	return out, err
}

// LoadHosts 读取由主机原型发现的主机及其从属记录
func (r *LLDRepo) LoadHosts(ctx context.Context, prototypeID uint64) ([]*lld.Host, error) {
	db := r.db.WithContext(ctx)

	var links []model.HostDiscovery
	if err := db.Where("parent_hostid = ?", prototypeID).Order("hostid").Find(&links).Error; err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, nil
	}

	ids := make([]uint64, 0, len(links))
	byID := make(map[uint64]*lld.Host, len(links))
	for _, l := range links {
		ids = append(ids, l.HostID)
	}

	var hosts []*lld.Host
	err := chunks(ids, func(part []uint64) error {
		var rows []model.Host
		if err := db.Where("hostid IN ?", part).Order("hostid").Find(&rows).Error; err != nil {
			return err
		}
		for _, row := range rows {
			h := hostFromRow(row)
			byID[h.ID] = h
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		h, ok := byID[l.HostID]
		if !ok {
			continue
		}
		h.NameProto = l.Host
		h.LastCheck = l.LastCheck
		h.TSDelete = l.TSDelete
		hosts = append(hosts, h)
	}

	if err := r.loadInterfaces(db, ids, byID); err != nil {
		return nil, fmt.Errorf("load interfaces: %w", err)
	}
	if err := r.loadMacrosAndTags(db, ids, byID); err != nil {
		return nil, err
	}
	if err := r.loadLinks(db, ids, byID); err != nil {
		return nil, err
	}
	return hosts, nil
}

func hostFromRow(row model.Host) *lld.Host {
	return &lld.Host{
		ID:               row.HostID,
		Host:             row.Host,
		Name:             row.Name,
		Status:           lld.HostStatus(row.Status),
		CustomInterfaces: row.CustomInterfaces == 1,
		InventoryMode:    lld.InventoryMode(row.InventoryMode),
		ProxyID:          row.ProxyHostID,
		IPMI: lld.IPMISettings{
			AuthType:  row.IPMIAuthType,
			Privilege: row.IPMIPrivilege,
			Username:  row.IPMIUsername,
			Password:  row.IPMIPassword,
		},
		TLS: lld.TLSSettings{
			Connect:     row.TLSConnect,
			Accept:      row.TLSAccept,
			Issuer:      row.TLSIssuer,
			Subject:     row.TLSSubject,
			PSKIdentity: row.TLSPSKIdentity,
			PSK:         row.TLSPSK,
		},
		GroupLinks:    make(map[uint64]uint64),
		TemplateLinks: make(map[uint64]uint64),
	}
}

func (r *LLDRepo) loadInterfaces(db *gorm.DB, hostIDs []uint64, byID map[uint64]*lld.Host) error {
	return chunks(hostIDs, func(part []uint64) error {
		var rows []model.Interface
		if err := db.Where("hostid IN ?", part).Order("interfaceid").Find(&rows).Error; err != nil {
			return err
		}
		ids := interfaceIDs(rows)
		snmp, err := r.snmpDetails(db, ids)
		if err != nil {
			return err
		}
		parents := make(map[uint64]uint64)
		if err := chunks(ids, func(ifaces []uint64) error {
			var links []model.InterfaceDiscovery
			if err := db.Where("interfaceid IN ?", ifaces).Find(&links).Error; err != nil {
				return err
			}
			for _, l := range links {
				parents[l.InterfaceID] = l.ParentInterfaceID
			}
			return nil
		}); err != nil {
			return err
		}

		for _, row := range rows {
			h := byID[row.HostID]
			if h == nil {
				continue
			}
			h.Interfaces = append(h.Interfaces, &lld.Interface{
				ID:       row.InterfaceID,
				ParentID: parents[row.InterfaceID],
				Type:     lld.InterfaceType(row.Type),
				Main:     row.Main == 1,
				UseIP:    row.UseIP == 1,
				IP:       row.IP,
				DNS:      row.DNS,
				Port:     row.Port,
				SNMP:     snmp[row.InterfaceID],
			})
		}
		return nil
	})
}

func (r *LLDRepo) loadMacrosAndTags(db *gorm.DB, hostIDs []uint64, byID map[uint64]*lld.Host) error {
	return chunks(hostIDs, func(part []uint64) error {
		var macros []model.HostMacro
		if err := db.Where("hostid IN ?", part).Order("hostmacroid").Find(&macros).Error; err != nil {
			return fmt.Errorf("load macros: %w", err)
		}
		for _, m := range macros {
			if h := byID[m.HostID]; h != nil {
				h.Macros = append(h.Macros, &lld.HostMacro{
					ID:          m.HostMacroID,
					Macro:       m.Macro,
					Value:       m.Value,
					Description: m.Description,
					Type:        lld.MacroType(m.Type),
				})
			}
		}

		var tags []model.HostTag
		if err := db.Where("hostid IN ?", part).Order("hosttagid").Find(&tags).Error; err != nil {
			return fmt.Errorf("load tags: %w", err)
		}
		for _, t := range tags {
			if h := byID[t.HostID]; h != nil {
				h.Tags = append(h.Tags, &lld.HostTag{ID: t.HostTagID, Tag: t.Tag, Value: t.Value})
			}
		}
		return nil
	})
}

func (r *LLDRepo) loadLinks(db *gorm.DB, hostIDs []uint64, byID map[uint64]*lld.Host) error {
	return chunks(hostIDs, func(part []uint64) error {
		var groups []model.HostGroupLink
		if err := db.Where("hostid IN ?", part).Find(&groups).Error; err != nil {
			return fmt.Errorf("load group links: %w", err)
		}
		for _, l := range groups {
			if h := byID[l.HostID]; h != nil {
				h.GroupLinks[l.GroupID] = l.HostGroupID
			}
		}

		var templates []model.HostTemplate
		if err := db.Where("hostid IN ?", part).Find(&templates).Error; err != nil {
			return fmt.Errorf("load template links: %w", err)
		}
		for _, l := range templates {
			if h := byID[l.HostID]; h != nil {
				h.TemplateLinks[l.TemplateID] = l.HostTemplateID
			}
		}
		return nil
	})
}

// LoadGroups 读取由组原型发现的主机组
func (r *LLDRepo) LoadGroups(ctx context.Context, groupPrototypeIDs []uint64) ([]*lld.Group, error) {
	db := r.db.WithContext(ctx)

	var links []model.GroupDiscovery
	err := chunks(groupPrototypeIDs, func(part []uint64) error {
		var rows []model.GroupDiscovery
		if err := db.Where("parent_group_prototypeid IN ?", part).Order("groupid").Find(&rows).Error; err != nil {
			return err
		}
		links = append(links, rows...)
		return nil
	})
	if err != nil || len(links) == 0 {
		return nil, err
	}

	ids := make([]uint64, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.GroupID)
	}
	names := make(map[uint64]string, len(ids))
	if err := chunks(ids, func(part []uint64) error {
		var rows []model.HostGroup
		if err := db.Where("groupid IN ?", part).Find(&rows).Error; err != nil {
			return err
		}
		for _, row := range rows {
			names[row.GroupID] = row.Name
		}
		return nil
	}); err != nil {
		return nil, err
	}

	groups := make([]*lld.Group, 0, len(links))
	for _, l := range links {
		name, ok := names[l.GroupID]
		if !ok {
			continue
		}
		groups = append(groups, &lld.Group{
			ID:          l.GroupID,
			PrototypeID: l.ParentGroupPrototypeID,
			Name:        name,
			NameProto:   l.Name,
			LastCheck:   l.LastCheck,
			TSDelete:    l.TSDelete,
		})
	}
	return groups, nil
}

// HostNamesInUse 返回已被其他主机或模板占用的名称
func (r *LLDRepo) HostNamesInUse(ctx context.Context, column string, names []string, excludeHostIDs []uint64) (map[string]bool, error) {
	return hostNamesInUse(r.db.WithContext(ctx), column, names, excludeHostIDs)
}

func hostNamesInUse(db *gorm.DB, column string, names []string, excludeHostIDs []uint64) (map[string]bool, error) {
	if column != "host" && column != "name" {
		return nil, fmt.Errorf("unsupported host name column %q", column)
	}
	out := make(map[string]bool)
	err := stringChunks(names, func(part []string) error {
		q := db.Model(&model.Host{}).Where(column+" IN ?", part).Where("flags <> ?", model.HostFlagPrototype)
		if len(excludeHostIDs) > 0 {
			q = q.Where("hostid NOT IN ?", excludeHostIDs)
		}
		var found []string
		if err := q.Distinct().Pluck(column, &found).Error; err != nil {
			return err
		}
		for _, name := range found {
			out[name] = true
		}
		return nil
	})
	return out, err
}

// GroupNamesInUse 返回已被其他主机组占用的名称
func (r *LLDRepo) GroupNamesInUse(ctx context.Context, names []string, excludeGroupIDs []uint64) (map[string]bool, error) {
	return groupNamesInUse(r.db.WithContext(ctx), names, excludeGroupIDs)
}

func groupNamesInUse(db *gorm.DB, names []string, excludeGroupIDs []uint64) (map[string]bool, error) {
	out := make(map[string]bool)
	err := stringChunks(names, func(part []string) error {
		q := db.Model(&model.HostGroup{}).Where("name IN ?", part)
		if len(excludeGroupIDs) > 0 {
			q = q.Where("groupid NOT IN ?", excludeGroupIDs)
		}
		var found []string
		if err := q.Pluck("name", &found).Error; err != nil {
			return err
		}
		for _, name := range found {
			out[name] = true
		}
		return nil
	})
	return out, err
}

// InterfacesInUse 返回被监控项引用的接口
func (r *LLDRepo) InterfacesInUse(ctx context.Context, interfaceIDs []uint64) (map[uint64]bool, error) {
	db := r.db.WithContext(ctx)
	out := make(map[uint64]bool)
	err := chunks(interfaceIDs, func(part []uint64) error {
		var found []uint64
		if err := db.Model(&model.Item{}).Where("interfaceid IN ?", part).
			Distinct().Pluck("interfaceid", &found).Error; err != nil {
			return err
		}
		for _, id := range found {
			out[id] = true
		}
		return nil
	})
	return out, err
}

// ExistingTemplates 返回存在的模板 ID
func (r *LLDRepo) ExistingTemplates(ctx context.Context, templateIDs []uint64) (map[uint64]bool, error) {
	db := r.db.WithContext(ctx)
	out := make(map[uint64]bool)
	err := chunks(templateIDs, func(part []uint64) error {
		var found []uint64
		if err := db.Model(&model.Host{}).Where("hostid IN ?", part).
			Where("status = ?", model.HostStatusTemplate).Pluck("hostid", &found).Error; err != nil {
			return err
		}
		for _, id := range found {
			out[id] = true
		}
		return nil
	})
	return out, err
}

// InTx 在事务内执行。SQLite 忙时按配置重试，但锁定规则之后的失败（包括提交失败）不再重试：
// 锁定后 fn 会为新实体分配 ID，重放会把它们当作已存在的记录。
func (r *LLDRepo) InTx(ctx context.Context, fn func(tx lld.Tx) error) error {
	var locked bool
	return database.TransactionWithRetry(ctx, r.db, func(tx *gorm.DB) error {
		t := &lldTx{db: tx}
		err := fn(t)
		locked = t.locked
		if err != nil && t.locked {
			return database.NoRetry(err)
		}
		return err
	}, r.attempts, r.retrySleep, func() bool { return !locked })
}
