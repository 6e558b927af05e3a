// Package notify 提供任务执行结果的通知派发
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KodaTao/AgentPilot/pkg/task"
)

// maxNotifyOutputBytes 通知正文中附带的输出上限
// Telegram 单条消息上限 4096 字符，留出头部余量
const maxNotifyOutputBytes = 3500

// Channel 通知渠道接口
// target 的含义由具体渠道解释（Telegram 下是 chat_id）
type Channel interface {
	Send(ctx context.Context, target, text string) error
}

// Outcome 一次执行的结果摘要
type Outcome struct {
	TaskID     string
	TaskName   string
	Success    bool
	Output     string
	Error      string
	DurationMs int64
}

// Result 一次通知派发的结果
// 通知失败以返回值形式暴露，由调用方决定如何记录，绝不上抛成执行失败
type Result struct {
	Attempted bool
	Err       error
}

// Dispatcher 通知派发器
// 根据任务的通知配置决定是否发送、发给谁、带不带输出
type Dispatcher struct {
	channel Channel
	logger  *slog.Logger
}

// NewDispatcher 创建通知派发器
// channel 可以为 nil，表示没有配置任何通知渠道
func NewDispatcher(channel Channel, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		channel: channel,
		logger:  logger,
	}
}

// Dispatch 按任务配置派发一次结果通知
func (d *Dispatcher) Dispatch(ctx context.Context, cfg task.NotificationConfig, outcome Outcome) Result {
	if !cfg.Enabled {
		return Result{}
	}
	if cfg.NotifyOnFailureOnly && outcome.Success {
		return Result{}
	}
	if d.channel == nil {
		d.logger.Warn("notification enabled but no channel configured",
			"task_id", outcome.TaskID,
		)
		return Result{}
	}

	text := composeMessage(cfg, outcome)
	if err := d.channel.Send(ctx, cfg.ChannelTarget, text); err != nil {
		d.logger.Error("failed to dispatch notification",
			"task_id", outcome.TaskID,
			"target", cfg.ChannelTarget,
			"error", err,
		)
		return Result{Attempted: true, Err: err}
	}

	d.logger.Debug("notification dispatched",
		"task_id", outcome.TaskID,
		"target", cfg.ChannelTarget,
	)
	return Result{Attempted: true}
}

// composeMessage 组装通知正文
func composeMessage(cfg task.NotificationConfig, outcome Outcome) string {
	var header string
	if outcome.Success {
		header = fmt.Sprintf("✅ Task succeeded: %s", outcome.TaskName)
	} else {
		header = fmt.Sprintf("❌ Task failed: %s", outcome.TaskName)
	}

	text := fmt.Sprintf("%s\nDuration: %s", header, formatDuration(outcome.DurationMs))

	if !outcome.Success && outcome.Error != "" {
		text += fmt.Sprintf("\n\nError:\n%s", task.TruncateOutput(outcome.Error, maxNotifyOutputBytes))
	}
	if outcome.Success && cfg.IncludeOutput && outcome.Output != "" {
		text += fmt.Sprintf("\n\nOutput:\n%s", task.TruncateOutput(outcome.Output, maxNotifyOutputBytes))
	}
	return text
}

// formatDuration 把毫秒耗时格式化成人类可读形式
func formatDuration(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Round(100 * time.Millisecond).String()
}
