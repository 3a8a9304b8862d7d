package model

// LLDRule 低级发现规则（锚点行）
// 并发运行同一规则时通过锁定该行串行化
type LLDRule struct {
	RuleID   uint64 `json:"ruleid" gorm:"column:ruleid;primaryKey;autoIncrement:false"`
	HostID   uint64 `json:"hostid" gorm:"column:hostid;not null;index"`
	Name     string `json:"name" gorm:"column:name;type:varchar(255);not null"`
	Lifetime int64  `json:"lifetime" gorm:"column:lifetime;not null"` // 秒
	Status   int    `json:"status" gorm:"column:status;not null"`
	// Revision 每次加锁时递增，用于在 SQLite 上获取写锁
	Revision int64 `json:"revision" gorm:"column:revision;not null"`
}

// TableName 表名
func (LLDRule) TableName() string {
	return "lld_rules"
}

// ID 分配器：按表/字段维护下一个可用 ID
type ID struct {
	Table     string `gorm:"column:table_name;primaryKey;type:varchar(64)"`
	FieldName string `gorm:"column:field_name;primaryKey;type:varchar(64)"`
	NextID    uint64 `gorm:"column:nextid;not null"`
}

// TableName 表名
func (ID) TableName() string {
	return "ids"
}

// Item 监控项，仅用于判断接口是否被引用
type Item struct {
	ItemID      uint64 `json:"itemid" gorm:"column:itemid;primaryKey;autoIncrement:false"`
	HostID      uint64 `json:"hostid" gorm:"column:hostid;not null;index"`
	InterfaceID uint64 `json:"interfaceid" gorm:"column:interfaceid;not null;index"`
	Name        string `json:"name" gorm:"column:name;type:varchar(255);not null"`
}

// TableName 表名
func (Item) TableName() string {
	return "items"
}
