package task

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	StatusActive    TaskStatus = "active"    // 等待调度
	StatusPaused    TaskStatus = "paused"    // 已暂停
	StatusRunning   TaskStatus = "running"   // 正在执行
	StatusCompleted TaskStatus = "completed" // 正常终结（不会再触发）
	StatusFailed    TaskStatus = "failed"    // 失败终结
)

// IsTerminal 判断是否为终结状态
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// NotificationConfig 执行结果通知配置
type NotificationConfig struct {
	Enabled             bool   `json:"enabled"`
	ChannelTarget       string `json:"channel_target,omitempty"`   // 渠道地址（Telegram chat_id）
	NotifyOnFailureOnly bool   `json:"notify_on_failure_only"`     // 只在失败时通知
	IncludeOutput       bool   `json:"include_output"`             // 通知中附带执行输出
}

// MemoryConfig 跨次执行的会话记忆配置
type MemoryConfig struct {
	MaxMessages       int  `json:"max_messages"`        // 活跃记忆中保留的最大轮次
	EnableFileMemory  bool `json:"enable_file_memory"`  // 超限轮次转存到长期记忆块
	PersistOnComplete bool `json:"persist_on_complete"` // 任务终结时把剩余记忆落盘
}

// DefaultMemoryConfig 返回默认记忆配置
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MaxMessages:       100,
		EnableFileMemory:  true,
		PersistOnComplete: true,
	}
}

// AgentTask 后台任务
// 描述一个按计划自主执行的 Agent：执行什么、何时执行、结果如何通知
type AgentTask struct {
	ID            string `gorm:"primaryKey" json:"id"`
	Name          string `gorm:"not null;index" json:"name"`
	Description   string `gorm:"type:text" json:"description,omitempty"`
	AgentID       string `gorm:"not null;index" json:"agent_id"`
	Input         string `gorm:"type:text" json:"input"`
	InputTemplate string `gorm:"type:text" json:"input_template,omitempty"` // 每次执行前渲染，替代 Input

	Schedule     Schedule           `gorm:"serializer:json;type:text" json:"schedule"`
	Notification NotificationConfig `gorm:"serializer:json;type:text" json:"notification"`
	Memory       MemoryConfig       `gorm:"serializer:json;type:text" json:"memory"`

	Status    TaskStatus `gorm:"default:active;index" json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `gorm:"index" json:"next_run_at,omitempty"`

	SuccessCount        int    `gorm:"default:0" json:"success_count"`
	FailureCount        int    `gorm:"default:0" json:"failure_count"`
	ConsecutiveFailures int    `gorm:"default:0" json:"consecutive_failures"`
	LastError           string `gorm:"type:text" json:"last_error,omitempty"`
}

// TableName 指定表名
func (AgentTask) TableName() string {
	return "agent_tasks"
}

// NewTask 创建新任务，状态为 active
func NewTask(name, agentID, input string, sched Schedule) *AgentTask {
	return &AgentTask{
		ID:       uuid.NewString(),
		Name:     name,
		AgentID:  agentID,
		Input:    input,
		Schedule: sched,
		Memory:   DefaultMemoryConfig(),
		Status:   StatusActive,
	}
}

// IsDue 判断任务是否已到期
func (t *AgentTask) IsDue(now time.Time) bool {
	return t.Status == StatusActive && t.NextRunAt != nil && !t.NextRunAt.After(now)
}

// CanDispatch 判断任务当前是否允许被派发执行
func (t *AgentTask) CanDispatch() bool {
	return t.Status == StatusActive
}
