package model

// 接口类型
const (
	InterfaceTypeAgent = 1
	InterfaceTypeSNMP  = 2
	InterfaceTypeIPMI  = 3
	InterfaceTypeJMX   = 4
)

// Interface 主机接口
type Interface struct {
	InterfaceID uint64 `json:"interfaceid" gorm:"column:interfaceid;primaryKey;autoIncrement:false"`
	HostID      uint64 `json:"hostid" gorm:"column:hostid;not null;index"`
	Main        int    `json:"main" gorm:"column:main;not null"`
	Type        int    `json:"type" gorm:"column:type;not null"`
	UseIP       int    `json:"useip" gorm:"column:useip;not null"`
	IP          string `json:"ip" gorm:"column:ip;type:varchar(64);not null"`
	DNS         string `json:"dns" gorm:"column:dns;type:varchar(255);not null"`
	Port        string `json:"port" gorm:"column:port;type:varchar(64);not null"`
}

// TableName 表名
func (Interface) TableName() string {
	return "interface"
}

// InterfaceSNMP SNMP 接口的附加参数
type InterfaceSNMP struct {
	InterfaceID    uint64 `json:"interfaceid" gorm:"column:interfaceid;primaryKey;autoIncrement:false"`
	Version        int    `json:"version" gorm:"column:version;not null"`
	Bulk           int    `json:"bulk" gorm:"column:bulk;not null"`
	Community      string `json:"community" gorm:"column:community;type:varchar(64);not null"`
	SecurityName   string `json:"securityname" gorm:"column:securityname;type:varchar(64);not null"`
	SecurityLevel  int    `json:"securitylevel" gorm:"column:securitylevel;not null"`
	AuthPassphrase string `json:"-" gorm:"column:authpassphrase;type:varchar(64);not null"`
	PrivPassphrase string `json:"-" gorm:"column:privpassphrase;type:varchar(64);not null"`
	AuthProtocol   int    `json:"authprotocol" gorm:"column:authprotocol;not null"`
	PrivProtocol   int    `json:"privprotocol" gorm:"column:privprotocol;not null"`
	ContextName    string `json:"contextname" gorm:"column:contextname;type:varchar(255);not null"`
}

// TableName 表名
func (InterfaceSNMP) TableName() string {
	return "interface_snmp"
}

// InterfaceDiscovery 发现的接口与父接口（规则主机或主机原型上的接口）的关联
type InterfaceDiscovery struct {
	InterfaceID       uint64 `json:"interfaceid" gorm:"column:interfaceid;primaryKey;autoIncrement:false"`
	ParentInterfaceID uint64 `json:"parent_interfaceid" gorm:"column:parent_interfaceid;not null;index"`
}

// TableName 表名
func (InterfaceDiscovery) TableName() string {
	return "interface_discovery"
}
