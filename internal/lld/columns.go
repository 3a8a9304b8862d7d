package lld

import "github.com/lldsync/lldsync/internal/model"

// column 一个持久化列及其取值，secret 列在审计中脱敏
type column struct {
	name   string
	value  interface{}
	secret bool
}

// columnChange 一个列的新旧值
type columnChange struct {
	name     string
	old, new interface{}
	secret   bool
}

// diffColumns 按位置比较同一实体前后的列，只返回变化的列
func diffColumns(old, new []column) []columnChange {
	var out []columnChange
	for i := range new {
		if old[i].value == new[i].value {
			continue
		}
		out = append(out, columnChange{
			name:   new[i].name,
			old:    old[i].value,
			new:    new[i].value,
			secret: new[i].secret,
		})
	}
	return out
}

func changeValues(changes []columnChange) map[string]interface{} {
	values := make(map[string]interface{}, len(changes))
	for _, c := range changes {
		values[c.name] = c.new
	}
	return values
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func hostColumns(h *Host) []column {
	return []column{
		{name: "host", value: h.Host},
		{name: "name", value: h.Name},
		{name: "status", value: int(h.Status)},
		{name: "custom_interfaces", value: boolInt(h.CustomInterfaces)},
		{name: "inventory_mode", value: int(h.InventoryMode)},
		{name: "proxy_hostid", value: h.ProxyID},
		{name: "ipmi_authtype", value: h.IPMI.AuthType},
		{name: "ipmi_privilege", value: h.IPMI.Privilege},
		{name: "ipmi_username", value: h.IPMI.Username},
		{name: "ipmi_password", value: h.IPMI.Password, secret: true},
		{name: "tls_connect", value: h.TLS.Connect},
		{name: "tls_accept", value: h.TLS.Accept},
		{name: "tls_issuer", value: h.TLS.Issuer},
		{name: "tls_subject", value: h.TLS.Subject},
		{name: "tls_psk_identity", value: h.TLS.PSKIdentity, secret: true},
		{name: "tls_psk", value: h.TLS.PSK, secret: true},
	}
}

// previous 以变更记录还原主机在本次运行前的取值
func (h *Host) previous() *Host {
	p := *h
	c := h.Changes
	if c.Host != nil {
		p.Host = c.Host.Old
	}
	if c.Name != nil {
		p.Name = c.Name.Old
	}
	if c.Status != nil {
		p.Status = c.Status.Old
	}
	if c.ProxyID != nil {
		p.ProxyID = c.ProxyID.Old
	}
	if c.IPMI != nil {
		p.IPMI = c.IPMI.Old
	}
	if c.TLS != nil {
		p.TLS = c.TLS.Old
	}
	if c.CustomInterfaces != nil {
		p.CustomInterfaces = c.CustomInterfaces.Old
	}
	if c.InventoryMode != nil {
		p.InventoryMode = c.InventoryMode.Old
	}
	return &p
}

func hostRow(h *Host) model.Host {
	return model.Host{
		HostID:           h.ID,
		Host:             h.Host,
		Name:             h.Name,
		Status:           int(h.Status),
		Flags:            model.HostFlagDiscovered,
		CustomInterfaces: boolInt(h.CustomInterfaces),
		InventoryMode:    int(h.InventoryMode),
		ProxyHostID:      h.ProxyID,
		IPMIAuthType:     h.IPMI.AuthType,
		IPMIPrivilege:    h.IPMI.Privilege,
		IPMIUsername:     h.IPMI.Username,
		IPMIPassword:     h.IPMI.Password,
		TLSConnect:       h.TLS.Connect,
		TLSAccept:        h.TLS.Accept,
		TLSIssuer:        h.TLS.Issuer,
		TLSSubject:       h.TLS.Subject,
		TLSPSKIdentity:   h.TLS.PSKIdentity,
		TLSPSK:           h.TLS.PSK,
	}
}

func interfaceColumns(i *Interface) []column {
	return []column{
		{name: "type", value: int(i.Type)},
		{name: "main", value: boolInt(i.Main)},
		{name: "useip", value: boolInt(i.UseIP)},
		{name: "ip", value: i.IP},
		{name: "dns", value: i.DNS},
		{name: "port", value: i.Port},
	}
}

func (i *Interface) previous() *Interface {
	p := *i
	c := i.Changes
	if c.Type != nil {
		p.Type = c.Type.Old
	}
	if c.Main != nil {
		p.Main = c.Main.Old
	}
	if c.UseIP != nil {
		p.UseIP = c.UseIP.Old
	}
	if c.IP != nil {
		p.IP = c.IP.Old
	}
	if c.DNS != nil {
		p.DNS = c.DNS.Old
	}
	if c.Port != nil {
		p.Port = c.Port.Old
	}
	return &p
}

func interfaceRow(hostID uint64, i *Interface) model.Interface {
	return model.Interface{
		InterfaceID: i.ID,
		HostID:      hostID,
		Main:        boolInt(i.Main),
		Type:        int(i.Type),
		UseIP:       boolInt(i.UseIP),
		IP:          i.IP,
		DNS:         i.DNS,
		Port:        i.Port,
	}
}

func snmpColumns(d SNMPDetail) []column {
	return []column{
		{name: "version", value: d.Version},
		{name: "bulk", value: boolInt(d.Bulk)},
		{name: "community", value: d.Community},
		{name: "securityname", value: d.SecurityName},
		{name: "securitylevel", value: d.SecurityLevel},
		{name: "authpassphrase", value: d.AuthPassphrase, secret: true},
		{name: "privpassphrase", value: d.PrivPassphrase, secret: true},
		{name: "authprotocol", value: d.AuthProtocol},
		{name: "privprotocol", value: d.PrivProtocol},
		{name: "contextname", value: d.ContextName},
	}
}

func snmpRow(interfaceID uint64, d *SNMPDetail) model.InterfaceSNMP {
	return model.InterfaceSNMP{
		InterfaceID:    interfaceID,
		Version:        d.Version,
		Bulk:           boolInt(d.Bulk),
		Community:      d.Community,
		SecurityName:   d.SecurityName,
		SecurityLevel:  d.SecurityLevel,
		AuthPassphrase: d.AuthPassphrase,
		PrivPassphrase: d.PrivPassphrase,
		AuthProtocol:   d.AuthProtocol,
		PrivProtocol:   d.PrivProtocol,
		ContextName:    d.ContextName,
	}
}
