// Package scheduler 提供后台任务的派发与执行
package scheduler

import "context"

// AgentRunner Agent 执行器接口
// 调度层只关心"把输入交给某个 Agent 并拿回输出"，
// 具体的 Agent 实现通过依赖注入传入，避免包之间的循环依赖
type AgentRunner interface {
	// Execute 以 input 调用 agentID 对应的 Agent，返回最终输出
	// ctx 携带执行超时与取消信号，实现方必须尊重 ctx
	Execute(ctx context.Context, agentID, input string) (string, error)
}

// RunnerFunc 函数适配器，便于测试和简单场景
type RunnerFunc func(ctx context.Context, agentID, input string) (string, error)

// Execute 实现 AgentRunner
func (f RunnerFunc) Execute(ctx context.Context, agentID, input string) (string, error) {
	return f(ctx, agentID, input)
}
