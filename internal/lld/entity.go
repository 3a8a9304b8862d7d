package lld

// HostChanges 主机已变更字段
type HostChanges struct {
	Host             *Change[string]
	Name             *Change[string]
	Status           *Change[HostStatus]
	ProxyID          *Change[uint64]
	IPMI             *Change[IPMISettings]
	TLS              *Change[TLSSettings]
	CustomInterfaces *Change[bool]
	InventoryMode    *Change[InventoryMode]
	NameProto        *Change[string]
}

// Host 发现的主机。ID 为 0 表示本次运行新建
type Host struct {
	ID               uint64
	Host             string
	Name             string
	Status           HostStatus
	CustomInterfaces bool
	InventoryMode    InventoryMode
	ProxyID          uint64
	IPMI             IPMISettings
	TLS              TLSSettings
	// NameProto 生成该主机时使用的原型名称模板
	NameProto string
	LastCheck int64
	TSDelete  int64

	Changes    HostChanges
	Dirty      FieldSet
	Discovered bool
	Rows       []*DiscoveryRow

	Interfaces []*Interface
	Macros     []*HostMacro
	Tags       []*HostTag

	// 持久化的组成员关系 groupid -> hostgroupid
	GroupLinks map[uint64]uint64
	// 持久化的模板链接 templateid -> hosttemplateid
	TemplateLinks map[uint64]uint64

	groupIDs          []uint64
	groups            []*Group
	linkGroupIDs      []uint64
	linkGroups        []*Group
	unlinkGroups      []uint64
	linkTemplateIDs   []uint64
	unlinkTemplateIDs []uint64

	prototype *HostPrototype
	rejected  bool
}

// IsNew 主机是否在本次运行中新建
func (h *Host) IsNew() bool {
	return h.ID == 0
}

// Valid 主机是否通过校验并参与持久化
func (h *Host) Valid() bool {
	return h.Discovered && !h.rejected
}

// SetHost 修改技术名称
func (h *Host) SetHost(v string) {
	if !h.IsNew() {
		track(&h.Dirty, FieldHost, &h.Changes.Host, h.Host, v)
	}
	h.Host = v
}

// SetName 修改可见名称
func (h *Host) SetName(v string) {
	if !h.IsNew() {
		track(&h.Dirty, FieldName, &h.Changes.Name, h.Name, v)
	}
	h.Name = v
}

// SetStatus 修改监控状态
func (h *Host) SetStatus(v HostStatus) {
	if !h.IsNew() {
		track(&h.Dirty, FieldStatus, &h.Changes.Status, h.Status, v)
	}
	h.Status = v
}

// SetProxyID 修改代理
func (h *Host) SetProxyID(v uint64) {
	if !h.IsNew() {
		track(&h.Dirty, FieldProxy, &h.Changes.ProxyID, h.ProxyID, v)
	}
	h.ProxyID = v
}

// SetIPMI 修改 IPMI 设置
func (h *Host) SetIPMI(v IPMISettings) {
	if !h.IsNew() {
		track(&h.Dirty, FieldIPMI, &h.Changes.IPMI, h.IPMI, v)
	}
	h.IPMI = v
}

// SetTLS 修改加密设置
func (h *Host) SetTLS(v TLSSettings) {
	if !h.IsNew() {
		track(&h.Dirty, FieldTLS, &h.Changes.TLS, h.TLS, v)
	}
	h.TLS = v
}

// SetCustomInterfaces 修改自定义接口标志
func (h *Host) SetCustomInterfaces(v bool) {
	if !h.IsNew() {
		track(&h.Dirty, FieldCustomInterfaces, &h.Changes.CustomInterfaces, h.CustomInterfaces, v)
	}
	h.CustomInterfaces = v
}

// SetInventoryMode 修改资产模式
func (h *Host) SetInventoryMode(v InventoryMode) {
	if !h.IsNew() {
		track(&h.Dirty, FieldInventoryMode, &h.Changes.InventoryMode, h.InventoryMode, v)
	}
	h.InventoryMode = v
}

// SetNameProto 修改名称模板
func (h *Host) SetNameProto(v string) {
	if !h.IsNew() {
		track(&h.Dirty, FieldNameProto, &h.Changes.NameProto, h.NameProto, v)
	}
	h.NameProto = v
}

// InterfaceChanges 接口已变更字段
type InterfaceChanges struct {
	ParentID *Change[uint64]
	Type     *Change[InterfaceType]
	Main     *Change[bool]
	UseIP    *Change[bool]
	IP       *Change[string]
	DNS      *Change[string]
	Port     *Change[string]
	SNMP     *Change[SNMPDetail]
}

// snmpOp SNMP 附加记录需要执行的操作
type snmpOp int

const (
	snmpNone snmpOp = iota
	snmpCreate
	snmpUpdate
	snmpDelete
)

// Interface 主机接口
type Interface struct {
	ID       uint64
	ParentID uint64
	Type     InterfaceType
	Main     bool
	UseIP    bool
	IP       string
	DNS      string
	Port     string
	SNMP     *SNMPDetail

	Changes InterfaceChanges
	Dirty   FieldSet
	Remove  bool

	matched  bool
	snmpOp   snmpOp
	origSNMP *SNMPDetail
}

// IsNew 接口是否为新建
func (i *Interface) IsNew() bool {
	return i.ID == 0
}

func (i *Interface) setParentID(v uint64) {
	if !i.IsNew() {
		track(&i.Dirty, FieldIfaceParent, &i.Changes.ParentID, i.ParentID, v)
	}
	i.ParentID = v
}

func (i *Interface) setType(v InterfaceType) {
	if !i.IsNew() {
		track(&i.Dirty, FieldIfaceType, &i.Changes.Type, i.Type, v)
	}
	i.Type = v
}

func (i *Interface) setMain(v bool) {
	if !i.IsNew() {
		track(&i.Dirty, FieldIfaceMain, &i.Changes.Main, i.Main, v)
	}
	i.Main = v
}

func (i *Interface) setUseIP(v bool) {
	if !i.IsNew() {
		track(&i.Dirty, FieldIfaceUseIP, &i.Changes.UseIP, i.UseIP, v)
	}
	i.UseIP = v
}

func (i *Interface) setIP(v string) {
	if !i.IsNew() {
		track(&i.Dirty, FieldIfaceIP, &i.Changes.IP, i.IP, v)
	}
	i.IP = v
}

func (i *Interface) setDNS(v string) {
	if !i.IsNew() {
		track(&i.Dirty, FieldIfaceDNS, &i.Changes.DNS, i.DNS, v)
	}
	i.DNS = v
}

func (i *Interface) setPort(v string) {
	if !i.IsNew() {
		track(&i.Dirty, FieldIfacePort, &i.Changes.Port, i.Port, v)
	}
	i.Port = v
}

// setSNMP 设置 SNMP 附加记录并推导需要的操作
func (i *Interface) setSNMP(v *SNMPDetail) {
	i.SNMP = v
	i.Changes.SNMP = nil
	i.Dirty.Remove(FieldIfaceSNMP)
	i.snmpOp = snmpNone
	if i.IsNew() {
		if v != nil {
			i.snmpOp = snmpCreate
		}
		return
	}
	switch {
	case i.origSNMP == nil && v != nil:
		i.snmpOp = snmpCreate
		i.Changes.SNMP = &Change[SNMPDetail]{New: *v}
		i.Dirty.Add(FieldIfaceSNMP)
	case i.origSNMP != nil && v == nil:
		i.snmpOp = snmpDelete
		i.Changes.SNMP = &Change[SNMPDetail]{Old: *i.origSNMP}
		i.Dirty.Add(FieldIfaceSNMP)
	case i.origSNMP != nil && v != nil && *i.origSNMP != *v:
		i.snmpOp = snmpUpdate
		i.Changes.SNMP = &Change[SNMPDetail]{Old: *i.origSNMP, New: *v}
		i.Dirty.Add(FieldIfaceSNMP)
	}
}

// MacroChanges 宏已变更字段
type MacroChanges struct {
	Value       *Change[string]
	Description *Change[string]
	Type        *Change[MacroType]
}

// HostMacro 主机宏
type HostMacro struct {
	ID          uint64
	Macro       string
	Value       string
	Description string
	Type        MacroType

	Changes MacroChanges
	Dirty   FieldSet
	Remove  bool
}

func (m *HostMacro) update(value, description string, typ MacroType) {
	track(&m.Dirty, FieldMacroValue, &m.Changes.Value, m.Value, value)
	track(&m.Dirty, FieldMacroDescription, &m.Changes.Description, m.Description, description)
	track(&m.Dirty, FieldMacroType, &m.Changes.Type, m.Type, typ)
	m.Value, m.Description, m.Type = value, description, typ
}

// secret 旧值或新值任一为密文即需要脱敏
func (m *HostMacro) secret() bool {
	if m.Type == MacroSecret {
		return true
	}
	return m.Changes.Type != nil && m.Changes.Type.Old == MacroSecret
}

// TagChanges 标签已变更字段
type TagChanges struct {
	Tag   *Change[string]
	Value *Change[string]
}

// HostTag 主机标签
type HostTag struct {
	ID    uint64
	Tag   string
	Value string

	Changes TagChanges
	Dirty   FieldSet
	Remove  bool
}

func (t *HostTag) update(tag, value string) {
	track(&t.Dirty, FieldTagTag, &t.Changes.Tag, t.Tag, tag)
	track(&t.Dirty, FieldTagValue, &t.Changes.Value, t.Value, value)
	t.Tag, t.Value = tag, value
}

// GroupChanges 主机组已变更字段
type GroupChanges struct {
	Name      *Change[string]
	NameProto *Change[string]
}

// Group 发现的主机组
type Group struct {
	ID          uint64
	PrototypeID uint64
	Name        string
	NameProto   string
	LastCheck   int64
	TSDelete    int64

	Changes    GroupChanges
	Dirty      FieldSet
	Discovered bool
	Rows       []*DiscoveryRow
	Hosts      []*Host

	rejected bool
}

// IsNew 主机组是否在本次运行中新建
func (g *Group) IsNew() bool {
	return g.ID == 0
}

// Valid 主机组是否通过校验并参与持久化
func (g *Group) Valid() bool {
	return g.Discovered && !g.rejected
}

// SetName 修改组名
func (g *Group) SetName(v string) {
	if !g.IsNew() {
		track(&g.Dirty, FieldGroupName, &g.Changes.Name, g.Name, v)
	}
	g.Name = v
}

// SetNameProto 修改组名模板
func (g *Group) SetNameProto(v string) {
	if !g.IsNew() {
		track(&g.Dirty, FieldGroupNameProto, &g.Changes.NameProto, g.NameProto, v)
	}
	g.NameProto = v
}
