package task

import "gorm.io/gorm"

// EventRepository TaskEvent 数据访问层
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository 创建 Repository
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append 追加一条执行事件
func (r *EventRepository) Append(ev *TaskEvent) error {
	return r.db.Create(ev).Error
}

// ListByTask 列出任务的执行事件，最新的在前
func (r *EventRepository) ListByTask(taskID string, limit int) ([]TaskEvent, error) {
	var events []TaskEvent
	query := r.db.Model(&TaskEvent{}).
		Where("task_id = ?", taskID).
		Order("timestamp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&events).Error
	return events, err
}

// CountByTask 统计任务的事件数量
func (r *EventRepository) CountByTask(taskID string) (int64, error) {
	var count int64
	err := r.db.Model(&TaskEvent{}).Where("task_id = ?", taskID).Count(&count).Error
	return count, err
}

// DeleteByTask 删除任务的全部事件
func (r *EventRepository) DeleteByTask(taskID string) error {
	return r.db.Delete(&TaskEvent{}, "task_id = ?", taskID).Error
}
