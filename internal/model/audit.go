package model

// 审计动作
const (
	AuditActionAdd    = 0
	AuditActionUpdate = 1
	AuditActionDelete = 2
	AuditActionAttach = 3
	AuditActionDetach = 4
)

// 审计资源类型
const (
	AuditResourceHost      = 4
	AuditResourceHostGroup = 14
)

// AuditLog 审计日志，同一次发现运行的记录共享 RecordsetID
type AuditLog struct {
	AuditID      string `json:"auditid" gorm:"column:auditid;primaryKey;type:varchar(36)"`
	RecordsetID  string `json:"recordsetid" gorm:"column:recordsetid;type:varchar(36);not null;index"`
	Clock        int64  `json:"clock" gorm:"column:clock;not null;index"`
	Action       int    `json:"action" gorm:"column:action;not null"`
	ResourceType int    `json:"resourcetype" gorm:"column:resourcetype;not null"`
	ResourceID   uint64 `json:"resourceid" gorm:"column:resourceid;not null;index"`
	ResourceName string `json:"resourcename" gorm:"column:resourcename;type:varchar(255);not null"`
	Details      string `json:"details" gorm:"column:details;type:text;not null"`
}

// TableName 表名
func (AuditLog) TableName() string {
	return "auditlog"
}
