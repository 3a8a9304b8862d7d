package repository

import (
	"context"

	"github.com/lldsync/lldsync/internal/model"
	"gorm.io/gorm"
)

// AuditRepo 审计日志查询
type AuditRepo struct {
	db *gorm.DB
}

// NewAuditRepo 创建仓库
func NewAuditRepo(db *gorm.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// ListByRecordset 查询一次发现运行写入的审计记录
func (r *AuditRepo) ListByRecordset(ctx context.Context, recordsetID string) ([]model.AuditLog, error) {
	var logs []model.AuditLog
	err := r.db.WithContext(ctx).Where("recordsetid = ?", recordsetID).
		Order("resourcetype, resourceid").Find(&logs).Error
	return logs, err
}

// ListByResource 按资源分页查询审计记录，按时间倒序
func (r *AuditRepo) ListByResource(ctx context.Context, resourceType int, resourceID uint64, page, pageSize int) ([]model.AuditLog, int64, error) {
	var logs []model.AuditLog
	var total int64

	query := r.db.WithContext(ctx).Model(&model.AuditLog{}).
		Where("resourcetype = ? AND resourceid = ?", resourceType, resourceID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	err := query.Order("clock DESC").Limit(pageSize).Offset((page - 1) * pageSize).Find(&logs).Error
	return logs, total, err
}
