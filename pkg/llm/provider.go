// Package llm 提供 LLM 适配层接口和实现
package llm

import (
	"context"
)

// Provider LLM 提供商接口
// 所有 LLM 实现（OpenAI、Claude 等）都需要实现此接口
type Provider interface {
	// Chat 发送对话请求
	// messages 是对话历史
	// 返回 AI 的回复内容
	Chat(ctx context.Context, messages []Message) (string, error)

	// Name 返回提供商名称
	Name() string
}

// Message 对话消息
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role 消息角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Usage Token 使用统计
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
