package lld

import (
	"context"
	"fmt"
)

// validate 批量校验：语法、批内重名、与存储重名、接口引用、模板存在性
func (e *Engine) validate(ctx context.Context, r *run) error {
	e.checkGroupSyntax(r)
	e.checkHostSyntax(r)

	if err := e.checkNames(ctx, r, e.store); err != nil {
		return err
	}
	if err := e.checkInterfaces(ctx, r); err != nil {
		return err
	}
	return e.checkTemplates(ctx, r)
}

// nameLookup 按名称查询存储中已占用的主机与主机组，Store 与 Tx 均实现
type nameLookup interface {
	HostNamesInUse(ctx context.Context, column string, names []string, excludeHostIDs []uint64) (map[string]bool, error)
	GroupNamesInUse(ctx context.Context, names []string, excludeGroupIDs []uint64) (map[string]bool, error)
}

// checkNames 检查主机组名、主机名与可见名的唯一性
//
// 锁定规则前以 Store 查询一次，锁定后在事务内以 Tx 再查一次：
// 其他规则的运行可能在两次查询之间写入了同名记录。
func (e *Engine) checkNames(ctx context.Context, r *run, names nameLookup) error {
	if err := e.checkGroupDuplicates(ctx, r, names); err != nil {
		return err
	}
	if err := e.checkHostDuplicates(ctx, r, names, hostColumn); err != nil {
		return err
	}
	if err := e.checkHostDuplicates(ctx, r, names, nameColumn); err != nil {
		return err
	}
	for _, h := range r.hosts {
		h.dropRejectedGroups()
	}
	return nil
}

// rejectHostField 新主机整体丢弃，已存主机只回滚对应字段
func rejectHostField(h *Host, column string) {
	if h.IsNew() {
		h.rejected = true
		return
	}
	switch column {
	case hostColumn:
		if h.Changes.Host != nil {
			h.SetHost(h.Changes.Host.Old)
		}
		if h.Changes.NameProto != nil {
			h.SetNameProto(h.Changes.NameProto.Old)
		}
	case nameColumn:
		if h.Changes.Name != nil {
			h.SetName(h.Changes.Name.Old)
		}
	}
}

func rejectGroup(g *Group) {
	if g.IsNew() {
		g.rejected = true
		return
	}
	if g.Changes.Name != nil {
		g.SetName(g.Changes.Name.Old)
	}
	if g.Changes.NameProto != nil {
		g.SetNameProto(g.Changes.NameProto.Old)
	}
}

func (e *Engine) checkHostSyntax(r *run) {
	for _, h := range r.hosts {
		if !h.Valid() {
			continue
		}
		if h.IsNew() || h.Changes.Host != nil {
			if err := e.limits.checkHostName(h.Host); err != nil {
				r.msgs.Addf("Cannot %s host: invalid host name \"%s\": %s.", createOrUpdate(h.IsNew()), h.Host, err)
				rejectHostField(h, hostColumn)
				if h.rejected {
					continue
				}
			}
		}
		if h.IsNew() || h.Changes.Name != nil {
			if err := e.limits.checkVisibleName(h.Name); err != nil {
				r.msgs.Addf("Cannot %s host: invalid visible host name \"%s\": %s.", createOrUpdate(h.IsNew()), h.Name, err)
				rejectHostField(h, nameColumn)
			}
		}
	}
}

func (e *Engine) checkGroupSyntax(r *run) {
	for _, g := range r.groups {
		if !g.Valid() || !(g.IsNew() || g.Changes.Name != nil) {
			continue
		}
		if err := e.limits.checkGroupName(g.Name); err != nil {
			r.msgs.Addf("Cannot %s group: invalid group name \"%s\": %s.", createOrUpdate(g.IsNew()), g.Name, err)
			rejectGroup(g)
		}
	}
}

const (
	hostColumn = "host"
	nameColumn = "name"
)

func hostNameOf(h *Host, column string) (string, bool) {
	if column == hostColumn {
		return h.Host, h.Changes.Host != nil
	}
	return h.Name, h.Changes.Name != nil
}

// checkHostDuplicates 新建或改名的主机之间、与本规则其余主机之间、与存储中其他主机之间不得重名
func (e *Engine) checkHostDuplicates(ctx context.Context, r *run, names nameLookup, column string) error {
	what := "name"
	if column == nameColumn {
		what = "visible name"
	}

	taken := make(map[string]bool)
	claims := make(map[string][]*Host)
	var order []string
	var ownIDs []uint64

	for _, h := range r.hosts {
		if !h.IsNew() {
			ownIDs = append(ownIDs, h.ID)
		}
		name, changed := hostNameOf(h, column)
		if h.Valid() && (h.IsNew() || changed) {
			if _, ok := claims[name]; !ok {
				order = append(order, name)
			}
			claims[name] = append(claims[name], h)
			continue
		}
		if !h.IsNew() {
			taken[name] = true
		}
	}

	reject := func(name string) {
		hosts := claims[name]
		r.msgs.Addf("Cannot %s host: host with the same %s \"%s\" already exists.", createOrUpdate(hosts[0].IsNew()), what, name)
		for _, h := range hosts {
			rejectHostField(h, column)
		}
		delete(claims, name)
	}

	var remaining []string
	for _, name := range order {
		if len(claims[name]) > 1 || taken[name] {
			reject(name)
			continue
		}
		remaining = append(remaining, name)
	}
	if len(remaining) == 0 {
		return nil
	}

	inUse, err := names.HostNamesInUse(ctx, column, remaining, ownIDs)
	if err != nil {
		return fmt.Errorf("check host %s uniqueness: %w", column, err)
	}
	for _, name := range remaining {
		if inUse[name] {
			reject(name)
		}
	}
	return nil
}

func (e *Engine) checkGroupDuplicates(ctx context.Context, r *run, names nameLookup) error {
	taken := make(map[string]bool)
	claims := make(map[string][]*Group)
	var order []string
	var ownIDs []uint64

	for _, g := range r.groups {
		if !g.IsNew() {
			ownIDs = append(ownIDs, g.ID)
		}
		if g.Valid() && (g.IsNew() || g.Changes.Name != nil) {
			if _, ok := claims[g.Name]; !ok {
				order = append(order, g.Name)
			}
			claims[g.Name] = append(claims[g.Name], g)
			continue
		}
		if !g.IsNew() {
			taken[g.Name] = true
		}
	}

	reject := func(name string) {
		groups := claims[name]
		r.msgs.Addf("Cannot %s group: group with the same name \"%s\" already exists.", createOrUpdate(groups[0].IsNew()), name)
		for _, g := range groups {
			rejectGroup(g)
		}
		delete(claims, name)
	}

	var remaining []string
	for _, name := range order {
		if len(claims[name]) > 1 || taken[name] {
			reject(name)
			continue
		}
		remaining = append(remaining, name)
	}
	if len(remaining) == 0 {
		return nil
	}

	inUse, err := names.GroupNamesInUse(ctx, remaining, ownIDs)
	if err != nil {
		return fmt.Errorf("check group name uniqueness: %w", err)
	}
	for _, name := range remaining {
		if inUse[name] {
			reject(name)
		}
	}
	return nil
}

var interfaceTypeNames = map[InterfaceType]string{
	InterfaceAgent: "Agent",
	InterfaceSNMP:  "SNMP",
	InterfaceIPMI:  "IPMI",
	InterfaceJMX:   "JMX",
}

func (t InterfaceType) String() string {
	if s, ok := interfaceTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type %d", int(t))
}

// checkInterfaces 被监控项引用的接口不能改类型也不能删除，违例时回退并重新平衡主接口
func (e *Engine) checkInterfaces(ctx context.Context, r *run) error {
	var ids []uint64
	for _, h := range r.hosts {
		if !h.Valid() {
			continue
		}
		for _, iface := range h.Interfaces {
			if !iface.IsNew() && (iface.Remove || iface.Changes.Type != nil) {
				ids = append(ids, iface.ID)
			}
		}
	}

	var inUse map[uint64]bool
	if len(ids) > 0 {
		var err error
		if inUse, err = e.store.InterfacesInUse(ctx, ids); err != nil {
			return fmt.Errorf("check interface references: %w", err)
		}
	}

	for _, h := range r.hosts {
		if !h.Valid() {
			continue
		}
		for _, iface := range h.Interfaces {
			if !inUse[iface.ID] {
				continue
			}
			if iface.Changes.Type != nil {
				r.msgs.Addf("Cannot update host \"%s\": cannot change interface type from %s to %s, interface is used by items.",
					h.Host, iface.Changes.Type.Old, iface.Changes.Type.New)
				iface.setType(iface.Changes.Type.Old)
				iface.setSNMP(iface.origSNMP)
			}
			if iface.Remove {
				r.msgs.Addf("Cannot update host \"%s\": cannot remove %s interface \"%s\", interface is used by items.",
					h.Host, iface.Type, interfaceAddress(iface))
				iface.Remove = false
				iface.setMain(false)
			}
		}
		rebalanceMain(h)
	}
	return nil
}

func interfaceAddress(iface *Interface) string {
	addr := iface.DNS
	if iface.UseIP {
		addr = iface.IP
	}
	return addr + ":" + iface.Port
}

// rebalanceMain 每种类型恰好一个主接口，优先保留模板匹配到的接口
func rebalanceMain(h *Host) {
	byType := make(map[InterfaceType][]*Interface)
	var types []InterfaceType
	for _, pass := range []bool{true, false} {
		for _, iface := range h.Interfaces {
			if iface.Remove || iface.matched != pass {
				continue
			}
			if _, ok := byType[iface.Type]; !ok {
				types = append(types, iface.Type)
			}
			byType[iface.Type] = append(byType[iface.Type], iface)
		}
	}

	for _, typ := range types {
		list := byType[typ]
		var main *Interface
		for _, iface := range list {
			if iface.Main {
				main = iface
				break
			}
		}
		if main == nil {
			main = list[0]
		}
		for _, iface := range list {
			iface.setMain(iface == main)
		}
	}
}

// checkTemplates 链接不存在的模板时按主机报告并跳过该链接
func (e *Engine) checkTemplates(ctx context.Context, r *run) error {
	var ids []uint64
	seen := make(map[uint64]bool)
	for _, h := range r.hosts {
		if !h.Valid() {
			continue
		}
		for _, id := range h.linkTemplateIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	exists, err := e.store.ExistingTemplates(ctx, ids)
	if err != nil {
		return fmt.Errorf("check templates: %w", err)
	}
	for _, h := range r.hosts {
		if !h.Valid() {
			continue
		}
		kept := h.linkTemplateIDs[:0]
		for _, id := range h.linkTemplateIDs {
			if !exists[id] {
				r.msgs.Addf("Cannot %s host \"%s\": cannot link template with ID %d: template does not exist.",
					createOrUpdate(h.IsNew()), h.Host, id)
				continue
			}
			kept = append(kept, id)
		}
		h.linkTemplateIDs = kept
	}
	return nil
}
