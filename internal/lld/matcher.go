package lld

import "strings"

// discoverRow 行是否需要发现：覆盖项优先于原型设置
func discoverRow(proto *HostPrototype, row *DiscoveryRow) bool {
	if row.Overrides.Discover != nil {
		return *row.Overrides.Discover
	}
	return proto.Discover
}

// matchHosts 为每一行找到或新建目标主机
func (e *Engine) matchHosts(r *run, proto *HostPrototype, persisted []*Host, rows []*DiscoveryRow) {
	byName := make(map[string][]*Host, len(persisted))
	for _, h := range persisted {
		h.prototype = proto
		r.hosts = append(r.hosts, h)
		if h.NameProto == proto.Host {
			byName[h.Host] = append(byName[h.Host], h)
		}
	}

	for _, row := range rows {
		if !discoverRow(proto, row) {
			continue
		}

		name := strings.TrimSpace(e.expander.Expand(proto.Host, row))

		h := firstUndiscovered(byName[name])
		if h == nil {
			h = e.renamedHost(persisted, proto, row, name)
		}
		if h == nil {
			h = &Host{
				Host:      name,
				NameProto: proto.Host,
				Status:    proto.Status,
				prototype: proto,
			}
			if row.Overrides.Status != nil {
				h.Status = *row.Overrides.Status
			}
			r.hosts = append(r.hosts, h)
		} else if row.Overrides.Status != nil {
			h.SetStatus(*row.Overrides.Status)
		}

		h.Discovered = true
		h.Rows = append(h.Rows, row)

		visible := name
		if proto.Name != "" {
			if v := strings.TrimSpace(e.expander.Expand(proto.Name, row)); v != "" {
				visible = v
			}
		}
		h.SetName(visible)

		mode := proto.InventoryMode
		if row.Overrides.InventoryMode != nil {
			mode = *row.Overrides.InventoryMode
		}
		h.SetInventoryMode(mode)
		h.SetCustomInterfaces(proto.CustomInterfaces)
		h.SetProxyID(r.rule.Parent.ProxyID)
		h.SetIPMI(r.rule.Parent.IPMI)
		h.SetTLS(r.rule.Parent.TLS)
	}
}

// renamedHost 原型名称模板已变化时，用旧模板展开本行并与已存名称比较
func (e *Engine) renamedHost(persisted []*Host, proto *HostPrototype, row *DiscoveryRow, name string) *Host {
	for _, h := range persisted {
		if h.Discovered || h.NameProto == proto.Host {
			continue
		}
		if strings.TrimSpace(e.expander.Expand(h.NameProto, row)) != h.Host {
			continue
		}
		h.SetHost(name)
		h.SetNameProto(proto.Host)
		return h
	}
	return nil
}

func firstUndiscovered(hosts []*Host) *Host {
	for _, h := range hosts {
		if !h.Discovered {
			return h
		}
	}
	return nil
}

// matchGroups 为本原型发现的主机展开组原型，同名组在一次运行中共享
func (e *Engine) matchGroups(r *run, proto *HostPrototype, persisted []*Group) {
	if len(proto.GroupPrototypes) == 0 {
		return
	}
	r.groups = append(r.groups, persisted...)

	for _, h := range r.hosts {
		if h.prototype != proto || !h.Discovered {
			continue
		}
		row := h.Rows[len(h.Rows)-1]
		for _, gp := range proto.GroupPrototypes {
			name := strings.TrimSpace(e.expander.Expand(gp.Name, row))
			g := e.findGroup(r, gp, row, name)
			if g == nil {
				g = &Group{PrototypeID: gp.ID, Name: name, NameProto: gp.Name}
				r.groups = append(r.groups, g)
			}
			g.Discovered = true
			g.Rows = append(g.Rows, row)
			g.Hosts = append(g.Hosts, h)
			h.groups = append(h.groups, g)
		}
	}
}

func (e *Engine) findGroup(r *run, gp GroupPrototype, row *DiscoveryRow, name string) *Group {
	// 本次运行中已生成的同名组
	for _, g := range r.groups {
		if g.Discovered && g.PrototypeID == gp.ID && g.Name == name {
			return g
		}
	}
	for _, g := range r.groups {
		if !g.Discovered && g.PrototypeID == gp.ID && g.NameProto == gp.Name && g.Name == name {
			return g
		}
	}
	for _, g := range r.groups {
		if g.Discovered || g.PrototypeID != gp.ID || g.NameProto == gp.Name {
			continue
		}
		if strings.TrimSpace(e.expander.Expand(g.NameProto, row)) != g.Name {
			continue
		}
		g.SetName(name)
		g.SetNameProto(gp.Name)
		return g
	}
	return nil
}
