package model

// 主机状态
const (
	HostStatusMonitored    = 0
	HostStatusNotMonitored = 1
	HostStatusTemplate     = 3
)

// 主机标志
const (
	HostFlagPlain      = 0
	HostFlagPrototype  = 2
	HostFlagDiscovered = 4
)

// 资产模式
const (
	InventoryModeDisabled  = -1
	InventoryModeManual    = 0
	InventoryModeAutomatic = 1
)

// Host 主机（普通主机、模板、主机原型与发现的主机共用）
type Host struct {
	HostID           uint64 `json:"hostid" gorm:"column:hostid;primaryKey;autoIncrement:false"`
	Host             string `json:"host" gorm:"column:host;type:varchar(128);not null;index"`
	Name             string `json:"name" gorm:"column:name;type:varchar(128);not null;index"`
	Status           int    `json:"status" gorm:"column:status;not null"`
	Flags            int    `json:"flags" gorm:"column:flags;not null"`
	CustomInterfaces int    `json:"custom_interfaces" gorm:"column:custom_interfaces;not null"`
	InventoryMode    int    `json:"inventory_mode" gorm:"column:inventory_mode;not null"`
	ProxyHostID      uint64 `json:"proxy_hostid" gorm:"column:proxy_hostid;not null"`
	IPMIAuthType     int    `json:"ipmi_authtype" gorm:"column:ipmi_authtype;not null"`
	IPMIPrivilege    int    `json:"ipmi_privilege" gorm:"column:ipmi_privilege;not null"`
	IPMIUsername     string `json:"ipmi_username" gorm:"column:ipmi_username;type:varchar(16);not null"`
	IPMIPassword     string `json:"-" gorm:"column:ipmi_password;type:varchar(20);not null"`
	TLSConnect       int    `json:"tls_connect" gorm:"column:tls_connect;not null"`
	TLSAccept        int    `json:"tls_accept" gorm:"column:tls_accept;not null"`
	TLSIssuer        string `json:"tls_issuer" gorm:"column:tls_issuer;type:varchar(1024);not null"`
	TLSSubject       string `json:"tls_subject" gorm:"column:tls_subject;type:varchar(1024);not null"`
	TLSPSKIdentity   string `json:"-" gorm:"column:tls_psk_identity;type:varchar(128);not null"`
	TLSPSK           string `json:"-" gorm:"column:tls_psk;type:varchar(512);not null"`
	// Discover 仅对主机原型有效：0 发现，1 不发现
	Discover int `json:"discover" gorm:"column:discover;not null"`
}

// TableName 表名
func (Host) TableName() string {
	return "hosts"
}

// HostPrototype 主机原型与所属发现规则的关联
type HostPrototype struct {
	HostID uint64 `json:"hostid" gorm:"column:hostid;primaryKey;autoIncrement:false"`
	RuleID uint64 `json:"ruleid" gorm:"column:ruleid;not null;index"`
}

// TableName 表名
func (HostPrototype) TableName() string {
	return "host_prototypes"
}

// HostDiscovery 发现的主机与主机原型的关联，记录生命周期
type HostDiscovery struct {
	HostID       uint64 `json:"hostid" gorm:"column:hostid;primaryKey;autoIncrement:false"`
	ParentHostID uint64 `json:"parent_hostid" gorm:"column:parent_hostid;not null;index"`
	// Host 生成该主机时使用的原型名称模板
	Host      string `json:"host" gorm:"column:host;type:varchar(128);not null"`
	LastCheck int64  `json:"lastcheck" gorm:"column:lastcheck;not null"`
	TSDelete  int64  `json:"ts_delete" gorm:"column:ts_delete;not null"`
}

// TableName 表名
func (HostDiscovery) TableName() string {
	return "host_discovery"
}

// HostMacro 主机宏
type HostMacro struct {
	HostMacroID uint64 `json:"hostmacroid" gorm:"column:hostmacroid;primaryKey;autoIncrement:false"`
	HostID      uint64 `json:"hostid" gorm:"column:hostid;not null;index"`
	Macro       string `json:"macro" gorm:"column:macro;type:varchar(255);not null"`
	Value       string `json:"value" gorm:"column:value;type:varchar(2048);not null"`
	Description string `json:"description" gorm:"column:description;type:text;not null"`
	Type        int    `json:"type" gorm:"column:type;not null"` // 0 文本，1 密文
}

// TableName 表名
func (HostMacro) TableName() string {
	return "hostmacro"
}

// HostTag 主机标签
type HostTag struct {
	HostTagID uint64 `json:"hosttagid" gorm:"column:hosttagid;primaryKey;autoIncrement:false"`
	HostID    uint64 `json:"hostid" gorm:"column:hostid;not null;index"`
	Tag       string `json:"tag" gorm:"column:tag;type:varchar(255);not null"`
	Value     string `json:"value" gorm:"column:value;type:varchar(255);not null"`
}

// TableName 表名
func (HostTag) TableName() string {
	return "host_tag"
}

// HostTemplate 主机与模板的链接
type HostTemplate struct {
	HostTemplateID uint64 `json:"hosttemplateid" gorm:"column:hosttemplateid;primaryKey;autoIncrement:false"`
	HostID         uint64 `json:"hostid" gorm:"column:hostid;not null;index"`
	TemplateID     uint64 `json:"templateid" gorm:"column:templateid;not null;index"`
}

// TableName 表名
func (HostTemplate) TableName() string {
	return "hosts_templates"
}
