package task

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// EventType 执行事件类型
type EventType string

const (
	EventStarted   EventType = "started"   // 一次执行开始
	EventProgress  EventType = "progress"  // 执行过程中的辅助信息
	EventCompleted EventType = "completed" // 执行成功
	EventFailed    EventType = "failed"    // 执行失败
)

// maxEventOutputBytes 事件中保留的输出上限
// 完整输出走通知渠道，事件日志只留摘要
const maxEventOutputBytes = 5000

// TaskEvent 任务执行事件，构成每个任务的审计日志
type TaskEvent struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	TaskID     string    `gorm:"not null;index" json:"task_id"`
	EventType  EventType `gorm:"not null" json:"event_type"`
	Message    string    `gorm:"type:text" json:"message,omitempty"`
	Output     string    `gorm:"type:text" json:"output,omitempty"`
	DurationMs *int64    `json:"duration_ms,omitempty"`
	Timestamp  time.Time `gorm:"not null;index" json:"timestamp"`
}

// TableName 指定表名
func (TaskEvent) TableName() string {
	return "task_events"
}

// NewEvent 创建执行事件
func NewEvent(taskID string, eventType EventType, message string, at time.Time) *TaskEvent {
	return &TaskEvent{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		EventType: eventType,
		Message:   message,
		Timestamp: at,
	}
}

// WithOutput 附加执行输出，超长部分按 UTF-8 边界截断
func (e *TaskEvent) WithOutput(output string) *TaskEvent {
	e.Output = TruncateOutput(output, maxEventOutputBytes)
	return e
}

// WithDuration 附加执行耗时
func (e *TaskEvent) WithDuration(d time.Duration) *TaskEvent {
	ms := d.Milliseconds()
	e.DurationMs = &ms
	return e
}

// TruncateOutput 按字节上限截断字符串，保证不切坏多字节字符
func TruncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n... (truncated)"
}
