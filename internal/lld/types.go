package lld

import (
	"sort"
	"time"
)

// HostStatus 主机监控状态
type HostStatus int

const (
	HostStatusMonitored    HostStatus = 0
	HostStatusNotMonitored HostStatus = 1
)

// InventoryMode 主机资产模式
type InventoryMode int

const (
	InventoryDisabled  InventoryMode = -1
	InventoryManual    InventoryMode = 0
	InventoryAutomatic InventoryMode = 1
)

// InterfaceType 接口类型
type InterfaceType int

const (
	InterfaceAgent InterfaceType = 1
	InterfaceSNMP  InterfaceType = 2
	InterfaceIPMI  InterfaceType = 3
	InterfaceJMX   InterfaceType = 4
)

// MacroType 宏类型
type MacroType int

const (
	MacroText   MacroType = 0
	MacroSecret MacroType = 1
)

// Change 单个字段的旧值与新值，仅对实际变化的字段存在
type Change[T comparable] struct {
	Old T
	New T
}

// Field 可变更字段标识
type Field uint8

const (
	FieldHost Field = iota + 1
	FieldName
	FieldStatus
	FieldProxy
	FieldIPMI
	FieldTLS
	FieldCustomInterfaces
	FieldInventoryMode
	FieldNameProto
	FieldGroupName
	FieldGroupNameProto
	FieldIfaceParent
	FieldIfaceType
	FieldIfaceMain
	FieldIfaceUseIP
	FieldIfaceIP
	FieldIfaceDNS
	FieldIfacePort
	FieldIfaceSNMP
	FieldMacroValue
	FieldMacroDescription
	FieldMacroType
	FieldTagTag
	FieldTagValue
)

var fieldNames = map[Field]string{
	FieldHost:             "host",
	FieldName:             "name",
	FieldStatus:           "status",
	FieldProxy:            "proxy_hostid",
	FieldIPMI:             "ipmi",
	FieldTLS:              "tls",
	FieldCustomInterfaces: "custom_interfaces",
	FieldInventoryMode:    "inventory_mode",
	FieldNameProto:        "host_proto",
	FieldGroupName:        "name",
	FieldGroupNameProto:   "name_proto",
	FieldIfaceParent:      "parent_interfaceid",
	FieldIfaceType:        "type",
	FieldIfaceMain:        "main",
	FieldIfaceUseIP:       "useip",
	FieldIfaceIP:          "ip",
	FieldIfaceDNS:         "dns",
	FieldIfacePort:        "port",
	FieldIfaceSNMP:        "details",
	FieldMacroValue:       "value",
	FieldMacroDescription: "description",
	FieldMacroType:        "type",
	FieldTagTag:           "tag",
	FieldTagValue:         "value",
}

func (f Field) String() string {
	if s, ok := fieldNames[f]; ok {
		return s
	}
	return "unknown"
}

// FieldSet 已变更字段集合
type FieldSet map[Field]struct{}

// Add 标记字段已变更
func (s *FieldSet) Add(f Field) {
	if *s == nil {
		*s = make(FieldSet)
	}
	(*s)[f] = struct{}{}
}

// Remove 取消字段变更标记
func (s FieldSet) Remove(f Field) {
	delete(s, f)
}

// Has 字段是否已变更
func (s FieldSet) Has(f Field) bool {
	_, ok := s[f]
	return ok
}

// Len 已变更字段数量
func (s FieldSet) Len() int {
	return len(s)
}

// Fields 按定义顺序返回已变更字段
func (s FieldSet) Fields() []Field {
	out := make([]Field, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// track 比较旧值与新值，不同则记录变更并返回 true
func track[T comparable](set *FieldSet, f Field, dst **Change[T], old, new T) bool {
	if old == new {
		return false
	}
	if *dst != nil {
		// 保留最初的旧值
		old = (*dst).Old
		if old == new {
			*dst = nil
			set.Remove(f)
			return false
		}
	}
	*dst = &Change[T]{Old: old, New: new}
	set.Add(f)
	return true
}

// DiscoveryRow 一条发现结果：LLD 宏取值与覆盖项
type DiscoveryRow struct {
	Macros    map[string]string `json:"macros"`
	Overrides Overrides         `json:"overrides"`
}

// Overrides 行级覆盖项
type Overrides struct {
	Status        *HostStatus    `json:"status,omitempty"`
	Discover      *bool          `json:"discover,omitempty"`
	Tags          []TagTemplate  `json:"tags,omitempty"`
	InventoryMode *InventoryMode `json:"inventory_mode,omitempty"`
	TemplateIDs   []uint64       `json:"templateids,omitempty"`
}

// IPMISettings 主机 IPMI 连接参数
type IPMISettings struct {
	AuthType  int
	Privilege int
	Username  string
	Password  string
}

// TLSSettings 主机加密连接参数
type TLSSettings struct {
	Connect     int
	Accept      int
	Issuer      string
	Subject     string
	PSKIdentity string
	PSK         string
}

// SNMPDetail SNMP 接口附加参数
type SNMPDetail struct {
	Version        int
	Bulk           bool
	Community      string
	SecurityName   string
	SecurityLevel  int
	AuthPassphrase string
	PrivPassphrase string
	AuthProtocol   int
	PrivProtocol   int
	ContextName    string
}

// InterfaceTemplate 规则主机或主机原型上的接口定义
type InterfaceTemplate struct {
	ID    uint64
	Type  InterfaceType
	Main  bool
	UseIP bool
	IP    string
	DNS   string
	Port  string
	SNMP  *SNMPDetail
}

// MacroTemplate 宏定义
type MacroTemplate struct {
	Macro       string
	Value       string
	Description string
	Type        MacroType
}

// TagTemplate 标签定义
type TagTemplate struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// GroupPrototype 组原型
type GroupPrototype struct {
	ID   uint64
	Name string
}

// ParentHost 发现规则所属主机上可被继承的设置
type ParentHost struct {
	ID         uint64
	ProxyID    uint64
	IPMI       IPMISettings
	TLS        TLSSettings
	Interfaces []InterfaceTemplate
	Macros     []MacroTemplate
}

// HostPrototype 主机原型
type HostPrototype struct {
	ID               uint64
	Host             string
	Name             string
	Status           HostStatus
	Discover         bool
	CustomInterfaces bool
	InventoryMode    InventoryMode
	Interfaces       []InterfaceTemplate
	Macros           []MacroTemplate
	Tags             []TagTemplate
	TemplateIDs      []uint64
	GroupIDs         []uint64
	GroupPrototypes  []GroupPrototype
}

// Rule 发现规则及其原型
type Rule struct {
	ID         uint64
	Name       string
	Lifetime   time.Duration
	Parent     ParentHost
	Prototypes []*HostPrototype
}
