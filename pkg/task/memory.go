package task

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// 对话角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn 一轮对话
type ConversationTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskMemory 任务的活跃记忆
// 保存最近若干轮对话，作为下次执行的上下文注入
type TaskMemory struct {
	TaskID    string             `gorm:"primaryKey" json:"task_id"`
	Turns     []ConversationTurn `gorm:"serializer:json;type:text" json:"turns"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// TableName 指定表名
func (TaskMemory) TableName() string {
	return "task_memories"
}

// MemoryChunk 长期记忆块
// 从活跃记忆溢出或任务终结时落盘的对话片段，内容寻址（sha256），天然去重
type MemoryChunk struct {
	Digest    string    `gorm:"primaryKey" json:"digest"`
	TaskID    string    `gorm:"index" json:"task_id"`
	AgentID   string    `gorm:"index" json:"agent_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定表名
func (MemoryChunk) TableName() string {
	return "memory_chunks"
}

// NewMemoryChunk 把一段对话轮次编码为长期记忆块
func NewMemoryChunk(taskID, agentID string, turns []ConversationTurn) (*MemoryChunk, error) {
	content, err := json.Marshal(turns)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(content)
	return &MemoryChunk{
		Digest:  hex.EncodeToString(sum[:]),
		TaskID:  taskID,
		AgentID: agentID,
		Content: string(content),
	}, nil
}
