package lld

import (
	"context"
	"fmt"

	"github.com/lldsync/lldsync/internal/model"
)

// writeCounts 待写入记录数，全部为 0 时跳过事务
type writeCounts struct {
	hosts         int
	groups        int
	interfaces    int
	macros        int
	tags          int
	hostGroups    int
	hostTemplates int
	updates       int
	deletes       int
}

func (c writeCounts) empty() bool {
	return c == writeCounts{}
}

func countWrites(r *run) writeCounts {
	var c writeCounts
	for _, g := range r.groups {
		if !g.Valid() {
			continue
		}
		if g.IsNew() {
			c.groups++
		} else if g.Dirty.Len() > 0 {
			c.updates++
		}
	}
	for _, h := range r.hosts {
		if !h.Valid() {
			continue
		}
		if h.IsNew() {
			c.hosts++
		} else if h.Dirty.Len() > 0 {
			c.updates++
		}
		for _, iface := range h.Interfaces {
			switch {
			case iface.IsNew():
				c.interfaces++
			case iface.Remove:
				c.deletes++
			case iface.Dirty.Len() > 0 || iface.snmpOp != snmpNone:
				c.updates++
			}
		}
		for _, m := range h.Macros {
			switch {
			case m.ID == 0:
				c.macros++
			case m.Remove:
				c.deletes++
			case m.Dirty.Len() > 0:
				c.updates++
			}
		}
		for _, t := range h.Tags {
			switch {
			case t.ID == 0:
				c.tags++
			case t.Remove:
				c.deletes++
			case t.Dirty.Len() > 0:
				c.updates++
			}
		}
		c.hostGroups += len(h.linkGroupIDs) + len(h.linkGroups)
		c.hostTemplates += len(h.linkTemplateIDs)
		c.deletes += len(h.unlinkGroups) + len(h.unlinkTemplateIDs)
	}
	return c
}

// idRange 预留的连续 ID 区间
type idRange struct {
	next uint64
	left int
}

func (r *idRange) take() uint64 {
	if r.left <= 0 {
		panic("lld: id range exhausted")
	}
	id := r.next
	r.next++
	r.left--
	return id
}

// writer 单个事务内的写入计划
type writer struct {
	tx      Tx
	run     *run
	audit   *Audit
	insert  *InsertBatch
	updates []Update
	deletes *DeleteBatch

	createdGroups []*Group

	hostIDs, groupIDs, interfaceIDs, macroIDs, tagIDs, hostGroupIDs, hostTemplateIDs idRange
}

// write 在一个事务内持久化本次运行的全部变更
func (e *Engine) write(ctx context.Context, r *run) error {
	counts := countWrites(r)
	reap := planReap(r)
	if counts.empty() && reap.len() == 0 {
		return nil
	}

	return e.store.InTx(ctx, func(tx Tx) error {
		if err := tx.LockRule(ctx, r.rule.ID); err != nil {
			return err
		}
		if err := e.checkNames(ctx, r, tx); err != nil {
			return err
		}
		counts = countWrites(r)

		w := &writer{
			tx:      tx,
			run:     r,
			audit:   r.audit,
			insert:  &InsertBatch{},
			deletes: &DeleteBatch{},
		}
		if err := w.reserve(ctx, counts); err != nil {
			return err
		}

		w.writeGroups()
		if err := e.propagateRights(ctx, w); err != nil {
			return err
		}
		for _, h := range r.hosts {
			if h.Valid() {
				w.writeHost(h)
			}
		}
		w.applyReap(reap)

		if err := tx.Delete(ctx, w.deletes); err != nil {
			return fmt.Errorf("delete records: %w", err)
		}
		if err := tx.Update(ctx, w.updates); err != nil {
			return fmt.Errorf("update records: %w", err)
		}
		if err := tx.Insert(ctx, w.insert); err != nil {
			return fmt.Errorf("insert records: %w", err)
		}

		records, err := w.audit.Flush()
		if err != nil {
			return err
		}
		if err := tx.WriteAudit(ctx, records); err != nil {
			return fmt.Errorf("write audit: %w", err)
		}
		return nil
	})
}

func (w *writer) reserve(ctx context.Context, c writeCounts) error {
	ranges := []struct {
		table, field string
		n            int
		dst          *idRange
	}{
		{"hosts", "hostid", c.hosts, &w.hostIDs},
		{"hstgrp", "groupid", c.groups, &w.groupIDs},
		{"interface", "interfaceid", c.interfaces, &w.interfaceIDs},
		{"hostmacro", "hostmacroid", c.macros, &w.macroIDs},
		{"host_tag", "hosttagid", c.tags, &w.tagIDs},
		{"hosts_groups", "hostgroupid", c.hostGroups, &w.hostGroupIDs},
		{"hosts_templates", "hosttemplateid", c.hostTemplates, &w.hostTemplateIDs},
	}
	for _, rg := range ranges {
		if rg.n == 0 {
			continue
		}
		first, err := w.tx.ReserveIDs(ctx, rg.table, rg.field, rg.n)
		if err != nil {
			return fmt.Errorf("reserve %s ids: %w", rg.table, err)
		}
		*rg.dst = idRange{next: first, left: rg.n}
	}
	return nil
}

func (w *writer) update(table, key string, id uint64, values map[string]interface{}) {
	if len(values) == 0 {
		return
	}
	w.updates = append(w.updates, Update{Table: table, Key: key, ID: id, Values: values})
}

func (w *writer) writeGroups() {
	r := w.run
	for _, g := range r.groups {
		if !g.Valid() {
			continue
		}
		if g.IsNew() {
			g.ID = w.groupIDs.take()
			g.LastCheck = r.now
			w.insert.Groups = append(w.insert.Groups, model.HostGroup{
				GroupID: g.ID,
				Name:    g.Name,
				Flags:   model.GroupFlagDiscovered,
			})
			w.insert.GroupDiscovery = append(w.insert.GroupDiscovery, model.GroupDiscovery{
				GroupID:                g.ID,
				ParentGroupPrototypeID: g.PrototypeID,
				Name:                   g.NameProto,
				LastCheck:              r.now,
			})
			w.audit.field(groupResource(g), KindGroup, g.ID, "hostgroup.name", model.AuditActionAdd, nil, g.Name, false)
			w.createdGroups = append(w.createdGroups, g)
			r.stats.GroupsCreated++
			continue
		}
		if g.Dirty.Len() == 0 {
			continue
		}
		if c := g.Changes.Name; c != nil {
			w.update("hstgrp", "groupid", g.ID, map[string]interface{}{"name": c.New})
			w.audit.field(groupResource(g), KindGroup, g.ID, "hostgroup.name", model.AuditActionUpdate, c.Old, c.New, false)
		}
		if c := g.Changes.NameProto; c != nil {
			w.update("group_discovery", "groupid", g.ID, map[string]interface{}{"name": c.New})
		}
		r.stats.GroupsUpdated++
	}
}

func (w *writer) writeHost(h *Host) {
	r := w.run
	if h.IsNew() {
		h.ID = w.hostIDs.take()
		h.LastCheck = r.now
		w.insert.Hosts = append(w.insert.Hosts, hostRow(h))
		w.insert.HostDiscovery = append(w.insert.HostDiscovery, model.HostDiscovery{
			HostID:       h.ID,
			ParentHostID: h.prototype.ID,
			Host:         h.NameProto,
			LastCheck:    r.now,
		})
		res := hostResource(h)
		for _, col := range hostColumns(h) {
			w.audit.field(res, KindHost, h.ID, "host."+col.name, model.AuditActionAdd, nil, col.value, col.secret)
		}
		r.stats.HostsCreated++
	} else if h.Dirty.Len() > 0 {
		res := hostResource(h)
		changes := diffColumns(hostColumns(h.previous()), hostColumns(h))
		w.update("hosts", "hostid", h.ID, changeValues(changes))
		for _, c := range changes {
			w.audit.field(res, KindHost, h.ID, "host."+c.name, model.AuditActionUpdate, c.old, c.new, c.secret)
		}
		if c := h.Changes.NameProto; c != nil {
			w.update("host_discovery", "hostid", h.ID, map[string]interface{}{"host": c.New})
		}
		r.stats.HostsUpdated++
	}

	w.writeInterfaces(h)
	w.writeMacros(h)
	w.writeTags(h)
	w.writeGroupLinks(h)
	w.writeTemplateLinks(h)
}

func (w *writer) writeInterfaces(h *Host) {
	res := hostResource(h)
	for _, iface := range h.Interfaces {
		switch {
		case iface.IsNew():
			iface.ID = w.interfaceIDs.take()
			w.insert.Interfaces = append(w.insert.Interfaces, interfaceRow(h.ID, iface))
			prefix := fmt.Sprintf("host.interfaces[%d].", iface.ID)
			for _, col := range interfaceColumns(iface) {
				w.audit.field(res, KindInterface, iface.ID, prefix+col.name, model.AuditActionAdd, nil, col.value, false)
			}
			if iface.ParentID != 0 {
				w.insert.InterfaceDiscovery = append(w.insert.InterfaceDiscovery, model.InterfaceDiscovery{
					InterfaceID:       iface.ID,
					ParentInterfaceID: iface.ParentID,
				})
			}
			if iface.SNMP != nil {
				w.createSNMP(res, iface)
			}
		case iface.Remove:
			w.deletes.Add("interface_discovery", "interfaceid", iface.ID)
			w.deletes.Add("interface_snmp", "interfaceid", iface.ID)
			w.deletes.Add("interface", "interfaceid", iface.ID)
			w.audit.field(res, KindInterface, iface.ID, fmt.Sprintf("host.interfaces[%d]", iface.ID),
				model.AuditActionDelete, iface.ID, nil, false)
		default:
			w.updateInterface(res, iface)
		}
	}
}

func (w *writer) updateInterface(res auditResource, iface *Interface) {
	prefix := fmt.Sprintf("host.interfaces[%d].", iface.ID)

	changes := diffColumns(interfaceColumns(iface.previous()), interfaceColumns(iface))
	w.update("interface", "interfaceid", iface.ID, changeValues(changes))
	for _, c := range changes {
		w.audit.field(res, KindInterface, iface.ID, prefix+c.name, model.AuditActionUpdate, c.old, c.new, false)
	}

	if c := iface.Changes.ParentID; c != nil {
		switch {
		case c.Old == 0:
			w.insert.InterfaceDiscovery = append(w.insert.InterfaceDiscovery, model.InterfaceDiscovery{
				InterfaceID:       iface.ID,
				ParentInterfaceID: c.New,
			})
		case c.New == 0:
			w.deletes.Add("interface_discovery", "interfaceid", iface.ID)
		default:
			w.update("interface_discovery", "interfaceid", iface.ID, map[string]interface{}{"parent_interfaceid": c.New})
		}
	}

	switch iface.snmpOp {
	case snmpCreate:
		w.createSNMP(res, iface)
	case snmpUpdate:
		c := iface.Changes.SNMP
		changes := diffColumns(snmpColumns(c.Old), snmpColumns(c.New))
		w.update("interface_snmp", "interfaceid", iface.ID, changeValues(changes))
		for _, ch := range changes {
			w.audit.field(res, KindSNMP, iface.ID, prefix+"details."+ch.name, model.AuditActionUpdate, ch.old, ch.new, ch.secret)
		}
	case snmpDelete:
		w.deletes.Add("interface_snmp", "interfaceid", iface.ID)
		w.audit.field(res, KindSNMP, iface.ID, prefix+"details", model.AuditActionDelete, iface.ID, nil, false)
	}
}

func (w *writer) createSNMP(res auditResource, iface *Interface) {
	w.insert.InterfaceSNMP = append(w.insert.InterfaceSNMP, snmpRow(iface.ID, iface.SNMP))
	prefix := fmt.Sprintf("host.interfaces[%d].details.", iface.ID)
	for _, col := range snmpColumns(*iface.SNMP) {
		w.audit.field(res, KindSNMP, iface.ID, prefix+col.name, model.AuditActionAdd, nil, col.value, col.secret)
	}
}

func (w *writer) writeMacros(h *Host) {
	res := hostResource(h)
	for _, m := range h.Macros {
		switch {
		case m.ID == 0:
			m.ID = w.macroIDs.take()
			w.insert.Macros = append(w.insert.Macros, model.HostMacro{
				HostMacroID: m.ID,
				HostID:      h.ID,
				Macro:       m.Macro,
				Value:       m.Value,
				Description: m.Description,
				Type:        int(m.Type),
			})
			prefix := fmt.Sprintf("host.macros[%d].", m.ID)
			w.audit.field(res, KindMacro, m.ID, prefix+"macro", model.AuditActionAdd, nil, m.Macro, false)
			w.audit.field(res, KindMacro, m.ID, prefix+"value", model.AuditActionAdd, nil, m.Value, m.secret())
			if m.Description != "" {
				w.audit.field(res, KindMacro, m.ID, prefix+"description", model.AuditActionAdd, nil, m.Description, false)
			}
			w.audit.field(res, KindMacro, m.ID, prefix+"type", model.AuditActionAdd, nil, int(m.Type), false)
		case m.Remove:
			w.deletes.Add("hostmacro", "hostmacroid", m.ID)
			w.audit.field(res, KindMacro, m.ID, fmt.Sprintf("host.macros[%d]", m.ID), model.AuditActionDelete, m.Macro, nil, false)
		case m.Dirty.Len() > 0:
			prefix := fmt.Sprintf("host.macros[%d].", m.ID)
			values := make(map[string]interface{})
			if c := m.Changes.Value; c != nil {
				values["value"] = c.New
				w.audit.field(res, KindMacro, m.ID, prefix+"value", model.AuditActionUpdate, c.Old, c.New, m.secret())
			}
			if c := m.Changes.Description; c != nil {
				values["description"] = c.New
				w.audit.field(res, KindMacro, m.ID, prefix+"description", model.AuditActionUpdate, c.Old, c.New, false)
			}
			if c := m.Changes.Type; c != nil {
				values["type"] = int(c.New)
				w.audit.field(res, KindMacro, m.ID, prefix+"type", model.AuditActionUpdate, int(c.Old), int(c.New), false)
			}
			w.update("hostmacro", "hostmacroid", m.ID, values)
		}
	}
}

func (w *writer) writeTags(h *Host) {
	res := hostResource(h)
	for _, t := range h.Tags {
		switch {
		case t.ID == 0:
			t.ID = w.tagIDs.take()
			w.insert.Tags = append(w.insert.Tags, model.HostTag{HostTagID: t.ID, HostID: h.ID, Tag: t.Tag, Value: t.Value})
			prefix := fmt.Sprintf("host.tags[%d].", t.ID)
			w.audit.field(res, KindTag, t.ID, prefix+"tag", model.AuditActionAdd, nil, t.Tag, false)
			w.audit.field(res, KindTag, t.ID, prefix+"value", model.AuditActionAdd, nil, t.Value, false)
		case t.Remove:
			w.deletes.Add("host_tag", "hosttagid", t.ID)
			w.audit.field(res, KindTag, t.ID, fmt.Sprintf("host.tags[%d]", t.ID), model.AuditActionDelete, t.Tag, nil, false)
		case t.Dirty.Len() > 0:
			prefix := fmt.Sprintf("host.tags[%d].", t.ID)
			values := make(map[string]interface{})
			if c := t.Changes.Tag; c != nil {
				values["tag"] = c.New
				w.audit.field(res, KindTag, t.ID, prefix+"tag", model.AuditActionUpdate, c.Old, c.New, false)
			}
			if c := t.Changes.Value; c != nil {
				values["value"] = c.New
				w.audit.field(res, KindTag, t.ID, prefix+"value", model.AuditActionUpdate, c.Old, c.New, false)
			}
			w.update("host_tag", "hosttagid", t.ID, values)
		}
	}
}

func (w *writer) writeGroupLinks(h *Host) {
	res := hostResource(h)
	link := func(groupID uint64) {
		id := w.hostGroupIDs.take()
		w.insert.HostGroups = append(w.insert.HostGroups, model.HostGroupLink{HostGroupID: id, HostID: h.ID, GroupID: groupID})
		w.audit.field(res, KindGroupLink, id, fmt.Sprintf("host.groups[%d]", id), model.AuditActionAttach, nil, groupID, false)
	}
	for _, groupID := range h.linkGroupIDs {
		link(groupID)
	}
	for _, g := range h.linkGroups {
		link(g.ID)
	}
	for _, groupID := range h.unlinkGroups {
		id := h.GroupLinks[groupID]
		w.deletes.Add("hosts_groups", "hostgroupid", id)
		w.audit.field(res, KindGroupLink, id, fmt.Sprintf("host.groups[%d]", id), model.AuditActionDetach, groupID, nil, false)
	}
}

func (w *writer) writeTemplateLinks(h *Host) {
	res := hostResource(h)
	for _, templateID := range h.linkTemplateIDs {
		id := w.hostTemplateIDs.take()
		w.insert.HostTemplates = append(w.insert.HostTemplates, model.HostTemplate{HostTemplateID: id, HostID: h.ID, TemplateID: templateID})
		w.audit.field(res, KindTemplateLink, id, fmt.Sprintf("host.templates[%d]", id), model.AuditActionAttach, nil, templateID, false)
	}
	for _, templateID := range h.unlinkTemplateIDs {
		id := h.TemplateLinks[templateID]
		w.deletes.Add("hosts_templates", "hosttemplateid", id)
		w.audit.field(res, KindTemplateLink, id, fmt.Sprintf("host.templates[%d]", id), model.AuditActionDetach, templateID, nil, false)
	}
}
