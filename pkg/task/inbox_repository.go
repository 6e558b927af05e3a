package task

import (
	"time"

	"gorm.io/gorm"
)

// InboxRepository InboxMessage 数据访问层
type InboxRepository struct {
	db *gorm.DB
}

// NewInboxRepository 创建 Repository
func NewInboxRepository(db *gorm.DB) *InboxRepository {
	return &InboxRepository{db: db}
}

// Enqueue 入队一条待投递消息
func (r *InboxRepository) Enqueue(msg *InboxMessage) error {
	return r.db.Create(msg).Error
}

// ListPending 列出任务的待投递消息，按入队顺序
func (r *InboxRepository) ListPending(taskID string, limit int) ([]InboxMessage, error) {
	var msgs []InboxMessage
	query := r.db.Model(&InboxMessage{}).
		Where("task_id = ? AND status = ?", taskID, MessagePending).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&msgs).Error
	return msgs, err
}

// ListByTask 列出任务的全部消息，最新的在前
func (r *InboxRepository) ListByTask(taskID string, limit int) ([]InboxMessage, error) {
	var msgs []InboxMessage
	query := r.db.Model(&InboxMessage{}).
		Where("task_id = ?", taskID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&msgs).Error
	return msgs, err
}

// MarkDelivered 批量标记消息已投递
func (r *InboxRepository) MarkDelivered(ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&InboxMessage{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":       MessageDelivered,
			"delivered_at": &at,
		}).Error
}

// MarkConsumed 批量标记消息已消费（所属执行成功结束）
func (r *InboxRepository) MarkConsumed(ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&InboxMessage{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":      MessageConsumed,
			"consumed_at": &at,
		}).Error
}

// Requeue 把已投递但未消费的消息退回待投递状态，并记录原因
// 执行失败后消息有机会随下次执行重新投递
func (r *InboxRepository) Requeue(ids []string, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&InboxMessage{}).
		Where("id IN ? AND status = ?", ids, MessageDelivered).
		Updates(map[string]interface{}{
			"status":       MessagePending,
			"error":        reason,
			"delivered_at": gorm.Expr("NULL"),
		}).Error
}

// CountPending 统计任务的待投递消息数量
func (r *InboxRepository) CountPending(taskID string) (int64, error) {
	var count int64
	err := r.db.Model(&InboxMessage{}).
		Where("task_id = ? AND status = ?", taskID, MessagePending).
		Count(&count).Error
	return count, err
}

// DeleteByTask 删除任务的全部消息
func (r *InboxRepository) DeleteByTask(taskID string) error {
	return r.db.Delete(&InboxMessage{}, "task_id = ?", taskID).Error
}
