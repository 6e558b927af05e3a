package task

import (
	"time"

	"github.com/google/uuid"
)

// MessageStatus 收件箱消息状态
type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"   // 等待投递
	MessageDelivered MessageStatus = "delivered" // 已随一次执行投递给 Agent
	MessageConsumed  MessageStatus = "consumed"  // 所属执行成功结束
)

// 消息来源
const (
	SourceUser   = "user"
	SourceAgent  = "agent"
	SourceSystem = "system"
)

// InboxMessage 任务收件箱消息
// 外部在两次执行之间投递给任务的引导信息，下次执行开始时按 FIFO 顺序取走
type InboxMessage struct {
	ID          string        `gorm:"primaryKey" json:"id"`
	TaskID      string        `gorm:"not null;index" json:"task_id"`
	Source      string        `gorm:"not null" json:"source"`
	Message     string        `gorm:"type:text;not null" json:"message"`
	Status      MessageStatus `gorm:"default:pending;index" json:"status"`
	Error       string        `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	DeliveredAt *time.Time    `json:"delivered_at,omitempty"`
	ConsumedAt  *time.Time    `json:"consumed_at,omitempty"`
}

// TableName 指定表名
func (InboxMessage) TableName() string {
	return "inbox_messages"
}

// NewInboxMessage 创建待投递的消息
func NewInboxMessage(taskID, source, message string) *InboxMessage {
	return &InboxMessage{
		ID:      uuid.NewString(),
		TaskID:  taskID,
		Source:  source,
		Message: message,
		Status:  MessagePending,
	}
}
