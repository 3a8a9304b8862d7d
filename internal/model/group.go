package model

// 主机组标志
const (
	GroupFlagPlain      = 0
	GroupFlagDiscovered = 4
)

// HostGroup 主机组，名称以 "/" 分隔层级
type HostGroup struct {
	GroupID uint64 `json:"groupid" gorm:"column:groupid;primaryKey;autoIncrement:false"`
	Name    string `json:"name" gorm:"column:name;type:varchar(255);not null;uniqueIndex"`
	Flags   int    `json:"flags" gorm:"column:flags;not null"`
}

// TableName 表名
func (HostGroup) TableName() string {
	return "hstgrp"
}

// GroupPrototype 主机原型上的组定义：GroupID 非 0 为固定组，否则 Name 为组名模板
type GroupPrototype struct {
	GroupPrototypeID uint64 `json:"group_prototypeid" gorm:"column:group_prototypeid;primaryKey;autoIncrement:false"`
	HostID           uint64 `json:"hostid" gorm:"column:hostid;not null;index"`
	Name             string `json:"name" gorm:"column:name;type:varchar(255);not null"`
	GroupID          uint64 `json:"groupid" gorm:"column:groupid;not null"`
}

// TableName 表名
func (GroupPrototype) TableName() string {
	return "group_prototype"
}

// GroupDiscovery 发现的主机组与组原型的关联
type GroupDiscovery struct {
	GroupID                uint64 `json:"groupid" gorm:"column:groupid;primaryKey;autoIncrement:false"`
	ParentGroupPrototypeID uint64 `json:"parent_group_prototypeid" gorm:"column:parent_group_prototypeid;not null;index"`
	Name                   string `json:"name" gorm:"column:name;type:varchar(255);not null"`
	LastCheck              int64  `json:"lastcheck" gorm:"column:lastcheck;not null"`
	TSDelete               int64  `json:"ts_delete" gorm:"column:ts_delete;not null"`
}

// TableName 表名
func (GroupDiscovery) TableName() string {
	return "group_discovery"
}

// HostGroupLink 主机组成员关系
type HostGroupLink struct {
	HostGroupID uint64 `json:"hostgroupid" gorm:"column:hostgroupid;primaryKey;autoIncrement:false"`
	HostID      uint64 `json:"hostid" gorm:"column:hostid;not null;index"`
	GroupID     uint64 `json:"groupid" gorm:"column:groupid;not null;index"`
}

// TableName 表名
func (HostGroupLink) TableName() string {
	return "hosts_groups"
}

// Right 用户组对主机组的访问权限
type Right struct {
	RightID    uint64 `json:"rightid" gorm:"column:rightid;primaryKey;autoIncrement:false"`
	GroupID    uint64 `json:"groupid" gorm:"column:groupid;not null;index"` // 用户组
	Permission int    `json:"permission" gorm:"column:permission;not null"`
	HstGrpID   uint64 `json:"id" gorm:"column:id;not null;index"` // 主机组
}

// TableName 表名
func (Right) TableName() string {
	return "rights"
}
