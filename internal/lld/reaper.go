package lld

import "github.com/lldsync/lldsync/internal/model"

// reapPlan 生命周期处理计划
type reapPlan struct {
	touchHosts   []*Host
	graceHosts   []*Host
	deleteHosts  []*Host
	touchGroups  []*Group
	graceGroups  []*Group
	deleteGroups []*Group

	hostDeadlines  map[*Host]int64
	groupDeadlines map[*Group]int64
}

func (p *reapPlan) len() int {
	return len(p.touchHosts) + len(p.graceHosts) + len(p.deleteHosts) +
		len(p.touchGroups) + len(p.graceGroups) + len(p.deleteGroups)
}

// expired 未被发现的实体在 lifetime 后删除，lifetime 为 0 时立即删除
func expired(lastCheck, lifetime, now int64) (deadline int64, remove bool) {
	deadline = lastCheck + lifetime
	return deadline, lifetime == 0 || now > deadline
}

// planReap 本次发现到的实体刷新 lastcheck，未发现的计算删除期限
func planReap(r *run) *reapPlan {
	p := &reapPlan{
		hostDeadlines:  make(map[*Host]int64),
		groupDeadlines: make(map[*Group]int64),
	}
	lifetime := int64(r.rule.Lifetime.Seconds())

	for _, h := range r.hosts {
		if h.IsNew() {
			continue
		}
		if h.Discovered {
			if h.LastCheck != r.now || h.TSDelete != 0 {
				p.touchHosts = append(p.touchHosts, h)
			}
			continue
		}
		deadline, remove := expired(h.LastCheck, lifetime, r.now)
		switch {
		case remove:
			p.deleteHosts = append(p.deleteHosts, h)
		case h.TSDelete != deadline:
			p.hostDeadlines[h] = deadline
			p.graceHosts = append(p.graceHosts, h)
		}
	}

	for _, g := range r.groups {
		if g.IsNew() {
			continue
		}
		if g.Discovered {
			if g.LastCheck != r.now || g.TSDelete != 0 {
				p.touchGroups = append(p.touchGroups, g)
			}
			continue
		}
		deadline, remove := expired(g.LastCheck, lifetime, r.now)
		switch {
		case remove:
			p.deleteGroups = append(p.deleteGroups, g)
		case g.TSDelete != deadline:
			p.groupDeadlines[g] = deadline
			p.graceGroups = append(p.graceGroups, g)
		}
	}
	return p
}

// applyReap 将生命周期变更并入当前事务
func (w *writer) applyReap(p *reapPlan) {
	r := w.run

	for _, h := range p.touchHosts {
		h.LastCheck, h.TSDelete = r.now, 0
		w.update("host_discovery", "hostid", h.ID, map[string]interface{}{"lastcheck": r.now, "ts_delete": int64(0)})
	}
	for _, h := range p.graceHosts {
		h.TSDelete = p.hostDeadlines[h]
		w.update("host_discovery", "hostid", h.ID, map[string]interface{}{"ts_delete": h.TSDelete})
	}
	for _, h := range p.deleteHosts {
		w.deleteHost(h)
	}

	for _, g := range p.touchGroups {
		g.LastCheck, g.TSDelete = r.now, 0
		w.update("group_discovery", "groupid", g.ID, map[string]interface{}{"lastcheck": r.now, "ts_delete": int64(0)})
	}
	for _, g := range p.graceGroups {
		g.TSDelete = p.groupDeadlines[g]
		w.update("group_discovery", "groupid", g.ID, map[string]interface{}{"ts_delete": g.TSDelete})
	}
	for _, g := range p.deleteGroups {
		w.deleteGroup(g)
	}
}

// deleteHost 删除主机及其全部从属记录
func (w *writer) deleteHost(h *Host) {
	var interfaceIDs []uint64
	for _, iface := range h.Interfaces {
		if !iface.IsNew() {
			interfaceIDs = append(interfaceIDs, iface.ID)
		}
	}
	d := w.deletes
	d.Add("interface_discovery", "interfaceid", interfaceIDs...)
	d.Add("interface_snmp", "interfaceid", interfaceIDs...)
	d.Add("items", "hostid", h.ID)
	d.Add("interface", "hostid", h.ID)
	d.Add("hostmacro", "hostid", h.ID)
	d.Add("host_tag", "hostid", h.ID)
	d.Add("hosts_groups", "hostid", h.ID)
	d.Add("hosts_templates", "hostid", h.ID)
	d.Add("host_discovery", "hostid", h.ID)
	d.Add("hosts", "hostid", h.ID)

	w.audit.field(hostResource(h), KindHost, h.ID, "host", model.AuditActionDelete, h.Host, nil, false)
	w.run.stats.HostsDeleted++
}

// deleteGroup 删除主机组、成员关系与权限
func (w *writer) deleteGroup(g *Group) {
	d := w.deletes
	d.Add("hosts_groups", "groupid", g.ID)
	d.Add("rights", "id", g.ID)
	d.Add("group_discovery", "groupid", g.ID)
	d.Add("hstgrp", "groupid", g.ID)

	w.audit.field(groupResource(g), KindGroup, g.ID, "hostgroup", model.AuditActionDelete, g.Name, nil, false)
	w.run.stats.GroupsDeleted++
}
