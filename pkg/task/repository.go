package task

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Repository AgentTask 数据访问层
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建 Repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create 创建任务
func (r *Repository) Create(t *AgentTask) error {
	return r.db.Create(t).Error
}

// GetByID 根据 ID 获取任务
func (r *Repository) GetByID(id string) (*AgentTask, error) {
	var t AgentTask
	err := r.db.First(&t, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Update 全量更新任务
// 用 Where + Updates 而不是 Save：任务在执行期间被删除时，
// 收尾写回不能把记录复活
func (r *Repository) Update(t *AgentTask) error {
	res := r.db.Model(&AgentTask{}).
		Where("id = ?", t.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(t)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// UpdateFields 按字段更新任务
func (r *Repository) UpdateFields(id string, fields map[string]interface{}) error {
	res := r.db.Model(&AgentTask{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// DeleteByID 删除任务及其附属数据
// 事件和收件箱消息随任务一起删除；长期记忆块保留（内容寻址，按 task_id 可追溯）
func (r *Repository) DeleteByID(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&TaskEvent{}, "task_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&InboxMessage{}, "task_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&TaskMemory{}, "task_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&AgentTask{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTaskNotFound
		}
		return nil
	})
}

// List 列出任务
func (r *Repository) List(status *TaskStatus, limit, offset int) ([]AgentTask, error) {
	var tasks []AgentTask
	query := r.db.Model(&AgentTask{})

	if status != nil {
		query = query.Where("status = ?", *status)
	}

	if limit > 0 {
		query = query.Limit(limit)
	}

	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Order("created_at DESC").Find(&tasks).Error
	return tasks, err
}

// ListByStatus 根据状态列出任务
func (r *Repository) ListByStatus(status TaskStatus) ([]AgentTask, error) {
	return r.List(&status, 0, 0)
}

// ListDue 列出所有已到期、可派发的任务，按到期时间升序
func (r *Repository) ListDue(now time.Time) ([]AgentTask, error) {
	var tasks []AgentTask
	err := r.db.Model(&AgentTask{}).
		Where("status = ?", StatusActive).
		Where("next_run_at IS NOT NULL AND next_run_at <= ?", now).
		Order("next_run_at ASC").
		Find(&tasks).Error
	return tasks, err
}

// Count 统计任务数量
func (r *Repository) Count(status *TaskStatus) (int64, error) {
	var count int64
	query := r.db.Model(&AgentTask{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	err := query.Count(&count).Error
	return count, err
}

// ResetRunning 把所有 running 状态的任务重置为 active
// 进程启动时调用：上次进程退出时没收尾的任务重新变得可派发
func (r *Repository) ResetRunning() (int64, error) {
	res := r.db.Model(&AgentTask{}).
		Where("status = ?", StatusRunning).
		Update("status", StatusActive)
	return res.RowsAffected, res.Error
}
