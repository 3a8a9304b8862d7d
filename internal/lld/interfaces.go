package lld

import "strings"

// assembleInterfaces 将接口模板展开并与主机已存接口比较
func (e *Engine) assembleInterfaces(r *run, h *Host) {
	proto := h.prototype
	row := h.Rows[len(h.Rows)-1]

	templates := r.rule.Parent.Interfaces
	if proto.CustomInterfaces {
		templates = proto.Interfaces
	}

	for _, iface := range h.Interfaces {
		iface.origSNMP = iface.SNMP
	}

	var pending []InterfaceTemplate
	for _, tmpl := range templates {
		if iface := linkedInterface(h.Interfaces, tmpl.ID); iface != nil {
			e.applyInterface(iface, tmpl, row)
			continue
		}
		pending = append(pending, tmpl)
	}

	for _, tmpl := range pending {
		// 复用同类型但未关联的已存接口
		if iface := unmatchedInterface(h.Interfaces, tmpl.Type); iface != nil {
			e.applyInterface(iface, tmpl, row)
			continue
		}
		iface := &Interface{}
		e.applyInterface(iface, tmpl, row)
		h.Interfaces = append(h.Interfaces, iface)
	}

	for _, iface := range h.Interfaces {
		if !iface.matched {
			iface.Remove = true
		}
	}
}

func linkedInterface(ifaces []*Interface, parentID uint64) *Interface {
	for _, iface := range ifaces {
		if !iface.matched && !iface.IsNew() && iface.ParentID == parentID {
			return iface
		}
	}
	return nil
}

func unmatchedInterface(ifaces []*Interface, typ InterfaceType) *Interface {
	for _, iface := range ifaces {
		if !iface.matched && !iface.IsNew() && iface.Type == typ {
			return iface
		}
	}
	return nil
}

func (e *Engine) applyInterface(iface *Interface, tmpl InterfaceTemplate, row *DiscoveryRow) {
	iface.matched = true
	iface.setParentID(tmpl.ID)
	iface.setType(tmpl.Type)
	iface.setMain(tmpl.Main)
	iface.setUseIP(tmpl.UseIP)
	iface.setIP(strings.TrimSpace(e.expander.Expand(tmpl.IP, row)))
	iface.setDNS(strings.TrimSpace(e.expander.Expand(tmpl.DNS, row)))
	iface.setPort(strings.TrimSpace(e.expander.Expand(tmpl.Port, row)))

	var snmp *SNMPDetail
	if tmpl.Type == InterfaceSNMP && tmpl.SNMP != nil {
		d := *tmpl.SNMP
		d.Community = e.expander.Expand(d.Community, row)
		d.SecurityName = e.expander.Expand(d.SecurityName, row)
		d.ContextName = e.expander.Expand(d.ContextName, row)
		d.AuthPassphrase = e.expander.Expand(d.AuthPassphrase, row)
		d.PrivPassphrase = e.expander.Expand(d.PrivPassphrase, row)
		snmp = &d
	}
	iface.setSNMP(snmp)
}
