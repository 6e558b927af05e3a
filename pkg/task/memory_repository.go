package task

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MemoryRepository TaskMemory 与 MemoryChunk 数据访问层
type MemoryRepository struct {
	db *gorm.DB
}

// NewMemoryRepository 创建 Repository
func NewMemoryRepository(db *gorm.DB) *MemoryRepository {
	return &MemoryRepository{db: db}
}

// Get 获取任务的活跃记忆，没有记录时返回空记忆
func (r *MemoryRepository) Get(taskID string) (*TaskMemory, error) {
	var mem TaskMemory
	err := r.db.First(&mem, "task_id = ?", taskID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &TaskMemory{TaskID: taskID}, nil
		}
		return nil, err
	}
	return &mem, nil
}

// Save 写回任务的活跃记忆
func (r *MemoryRepository) Save(taskID string, turns []ConversationTurn, at time.Time) error {
	mem := &TaskMemory{
		TaskID:    taskID,
		Turns:     turns,
		UpdatedAt: at,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}},
		UpdateAll: true,
	}).Create(mem).Error
}

// Delete 删除任务的活跃记忆
func (r *MemoryRepository) Delete(taskID string) error {
	return r.db.Delete(&TaskMemory{}, "task_id = ?", taskID).Error
}

// SaveChunk 写入长期记忆块
// 内容寻址：同样内容的块只存一份，重复写入不报错
func (r *MemoryRepository) SaveChunk(chunk *MemoryChunk) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "digest"}},
		DoNothing: true,
	}).Create(chunk).Error
}

// ListChunksByTask 列出任务的长期记忆块，最新的在前
func (r *MemoryRepository) ListChunksByTask(taskID string, limit int) ([]MemoryChunk, error) {
	var chunks []MemoryChunk
	query := r.db.Model(&MemoryChunk{}).
		Where("task_id = ?", taskID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&chunks).Error
	return chunks, err
}
