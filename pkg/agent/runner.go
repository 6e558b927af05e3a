// Package agent 提供基于 LLM 的任务执行器
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/KodaTao/AgentPilot/pkg/llm"
)

// defaultSystemPrompt 未注册 Agent 的兜底系统提示词
const defaultSystemPrompt = "You are an autonomous background agent. " +
	"You are invoked on a schedule without a human in the loop. " +
	"Complete the task described in the input and reply with a concise report of what you did and found."

// Definition 一个可被任务引用的 Agent 定义
type Definition struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
}

// Runner LLM 执行器
// 把调度层交来的输入包装成对话请求发给 LLM Provider
// agent_id 解析为注册过的 Agent 定义，未注册时使用兜底提示词
type Runner struct {
	provider llm.Provider
	logger   *slog.Logger

	mu     sync.RWMutex
	agents map[string]Definition
}

// NewRunner 创建执行器
func NewRunner(provider llm.Provider, logger *slog.Logger) *Runner {
	return &Runner{
		provider: provider,
		logger:   logger,
		agents:   make(map[string]Definition),
	}
}

// Register 注册 Agent 定义，同 ID 重复注册时覆盖
func (r *Runner) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[def.ID] = def
	r.logger.Info("agent registered", "agent_id", def.ID, "name", def.Name)
}

// Lookup 查找 Agent 定义
func (r *Runner) Lookup(agentID string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.agents[agentID]
	return def, ok
}

// Execute 以 input 调用 agentID 对应的 Agent，实现 scheduler.AgentRunner
func (r *Runner) Execute(ctx context.Context, agentID, input string) (string, error) {
	if r.provider == nil {
		return "", fmt.Errorf("no llm provider configured")
	}

	systemPrompt := defaultSystemPrompt
	if def, ok := r.Lookup(agentID); ok && def.SystemPrompt != "" {
		systemPrompt = def.SystemPrompt
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: input},
	}

	output, err := r.provider.Chat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("agent %s execution failed: %w", agentID, err)
	}
	return output, nil
}
