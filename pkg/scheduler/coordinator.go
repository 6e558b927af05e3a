package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/KodaTao/AgentPilot/pkg/notify"
	"github.com/KodaTao/AgentPilot/pkg/task"
)

// CoordinatorConfig 单次执行的协调配置
type CoordinatorConfig struct {
	// RunTimeout 单次执行的最长时间，超时按失败处理
	RunTimeout time.Duration

	// FailureThreshold 连续失败多少次后把任务置为 failed
	FailureThreshold int

	// InboxBatchSize 单次执行最多带走的收件箱消息数
	InboxBatchSize int
}

// DefaultCoordinatorConfig 返回默认协调配置
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		RunTimeout:       30 * time.Minute,
		FailureThreshold: 3,
		InboxBatchSize:   32,
	}
}

// Coordinator 执行协调器
// 驱动一次完整的任务执行：状态迁移、收件箱投递、记忆注入、
// Agent 调用、结果记账和通知，每一步的顺序都是固定的
type Coordinator struct {
	tasks    *task.Repository
	events   *task.EventRepository
	inbox    *task.InboxRepository
	memory   *MemoryPolicy
	calc     *task.Calculator
	runner   AgentRunner
	notifier *notify.Dispatcher
	leases   *LeaseTable
	clock    clockwork.Clock
	logger   *slog.Logger
	cfg      CoordinatorConfig
}

// NewCoordinator 创建执行协调器
func NewCoordinator(
	tasks *task.Repository,
	events *task.EventRepository,
	inbox *task.InboxRepository,
	memory *MemoryPolicy,
	calc *task.Calculator,
	runner AgentRunner,
	notifier *notify.Dispatcher,
	leases *LeaseTable,
	clock clockwork.Clock,
	logger *slog.Logger,
	cfg CoordinatorConfig,
) *Coordinator {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultCoordinatorConfig().RunTimeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultCoordinatorConfig().FailureThreshold
	}
	if cfg.InboxBatchSize <= 0 {
		cfg.InboxBatchSize = DefaultCoordinatorConfig().InboxBatchSize
	}
	return &Coordinator{
		tasks:    tasks,
		events:   events,
		inbox:    inbox,
		memory:   memory,
		calc:     calc,
		runner:   runner,
		notifier: notifier,
		leases:   leases,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
	}
}

// Run 执行一次任务
// 调用方必须已经为 taskID 持有执行租约；Run 返回后由调用方释放
func (c *Coordinator) Run(ctx context.Context, taskID string) {
	start := c.clock.Now()

	t, err := c.tasks.GetByID(taskID)
	if err != nil {
		c.logger.Error("failed to load task for run", "task_id", taskID, "error", err)
		return
	}
	if !t.CanDispatch() {
		c.logger.Debug("task no longer dispatchable, skipping run", "task_id", taskID, "status", t.Status)
		return
	}

	// 安全点：执行开始前收到取消请求，直接落回 paused
	if c.leases.CancelRequested(taskID) {
		c.settleCancelled(t, "run cancelled before start")
		return
	}

	// active -> running
	if err := task.Transition(t, task.StatusRunning); err != nil {
		c.logger.Error("failed to mark task running", "task_id", taskID, "error", err)
		return
	}
	prevLastRun := t.LastRunAt
	t.LastRunAt = &start
	t.UpdatedAt = start
	if err := c.tasks.Update(t); err != nil {
		c.logger.Error("failed to persist running status", "task_id", taskID, "error", err)
		return
	}
	c.appendEvent(task.NewEvent(t.ID, task.EventStarted, "task run started", start))

	// 取走收件箱里积压的消息
	msgs, err := c.inbox.ListPending(t.ID, c.cfg.InboxBatchSize)
	if err != nil {
		c.logger.Error("failed to drain inbox", "task_id", t.ID, "error", err)
		msgs = nil
	}

	// 安全点：消息还未标记投递，取消后它们原样留在收件箱
	// Agent 没有被调用，这次不算一次执行，执行时间回滚
	if c.leases.CancelRequested(taskID) {
		t.LastRunAt = prevLastRun
		c.settleCancelled(t, "run cancelled before agent invocation")
		return
	}

	msgIDs := make([]string, 0, len(msgs))
	for _, m := range msgs {
		msgIDs = append(msgIDs, m.ID)
	}
	if err := c.inbox.MarkDelivered(msgIDs, c.clock.Now()); err != nil {
		c.logger.Error("failed to mark messages delivered", "task_id", t.ID, "error", err)
	}

	// 组装本次执行的输入：历史记忆 + 基础输入 + 新消息
	prompt := composePrompt(RenderInput(t, start), msgs)
	if strings.TrimSpace(prompt) == "" {
		// 模板渲染出了空输入，不值得调用 Agent
		c.settleFailure(ctx, t, msgIDs, "resolved task input is empty", c.clock.Now().Sub(start))
		return
	}
	effective := composeEffectiveInput(c.memory.Load(t.ID), prompt)

	c.logger.Info("executing task",
		"task_id", t.ID,
		"name", t.Name,
		"agent_id", t.AgentID,
		"inbox_messages", len(msgs),
	)

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.RunTimeout)
	defer cancel()

	output, runErr := c.runner.Execute(runCtx, t.AgentID, effective)
	duration := c.clock.Now().Sub(start)

	if runErr != nil {
		// 停机取消不是任务自身的失败：不动计数器，任务保持 running，
		// 下次启动的恢复扫描把它重置为 active 后按原到期时间重新派发
		if errors.Is(ctx.Err(), context.Canceled) {
			c.abortRun(t, msgIDs)
			return
		}

		errMsg := runErr.Error()
		if errors.Is(runErr, context.DeadlineExceeded) {
			errMsg = fmt.Sprintf("task run timed out after %s", c.cfg.RunTimeout)
		}
		c.settleFailure(ctx, t, msgIDs, errMsg, duration)
		return
	}
	c.settleSuccess(ctx, t, msgIDs, prompt, output, duration)
}

// settleSuccess 成功执行的收尾：记账、消费消息、写记忆、算下次时间、通知
func (c *Coordinator) settleSuccess(ctx context.Context, t *task.AgentTask, msgIDs []string, prompt, output string, duration time.Duration) {
	now := c.clock.Now()

	t.SuccessCount++
	t.ConsecutiveFailures = 0
	t.LastError = ""

	c.appendEvent(task.NewEvent(t.ID, task.EventCompleted, "task run completed", now).
		WithOutput(output).
		WithDuration(duration))

	if err := c.inbox.MarkConsumed(msgIDs, now); err != nil {
		c.logger.Error("failed to mark messages consumed", "task_id", t.ID, "error", err)
	}

	if err := c.memory.RecordRun(t, prompt, output); err != nil {
		c.logger.Error("failed to record run into memory", "task_id", t.ID, "error", err)
	}

	c.settleNextState(t, now, true)

	t.UpdatedAt = now
	if err := c.tasks.Update(t); err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			// 任务在执行期间被删除，结果丢弃
			c.logger.Warn("task deleted during run, dropping result", "task_id", t.ID)
			return
		}
		c.logger.Error("failed to persist run result", "task_id", t.ID, "error", err)
	}

	c.logger.Info("task run succeeded",
		"task_id", t.ID,
		"name", t.Name,
		"duration_ms", duration.Milliseconds(),
		"status", t.Status,
	)

	c.notifyOutcome(ctx, t, notify.Outcome{
		TaskID:     t.ID,
		TaskName:   t.Name,
		Success:    true,
		Output:     output,
		DurationMs: duration.Milliseconds(),
	})
}

// settleFailure 失败执行的收尾：计数、退回消息、阈值判定、通知
func (c *Coordinator) settleFailure(ctx context.Context, t *task.AgentTask, msgIDs []string, errMsg string, duration time.Duration) {
	now := c.clock.Now()

	t.FailureCount++
	t.ConsecutiveFailures++
	t.LastError = errMsg

	c.appendEvent(task.NewEvent(t.ID, task.EventFailed, errMsg, now).
		WithDuration(duration))

	// 失败的执行没有消费引导消息，退回收件箱等下次执行
	if err := c.inbox.Requeue(msgIDs, errMsg); err != nil {
		c.logger.Error("failed to requeue messages", "task_id", t.ID, "error", err)
	}

	if t.ConsecutiveFailures >= c.cfg.FailureThreshold {
		c.settleTerminal(t, task.StatusFailed)
	} else {
		c.settleNextState(t, now, false)
	}

	t.UpdatedAt = now
	if err := c.tasks.Update(t); err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			c.logger.Warn("task deleted during run, dropping result", "task_id", t.ID)
			return
		}
		c.logger.Error("failed to persist run result", "task_id", t.ID, "error", err)
	}

	c.logger.Warn("task run failed",
		"task_id", t.ID,
		"name", t.Name,
		"error", errMsg,
		"consecutive_failures", t.ConsecutiveFailures,
		"status", t.Status,
	)

	c.notifyOutcome(ctx, t, notify.Outcome{
		TaskID:     t.ID,
		TaskName:   t.Name,
		Success:    false,
		Error:      errMsg,
		DurationMs: duration.Milliseconds(),
	})
}

// settleNextState 计算下次执行时间并迁移到对应状态
// 执行期间收到过暂停请求的任务落到 paused，调度不会再触发
func (c *Coordinator) settleNextState(t *task.AgentTask, now time.Time, success bool) {
	// 调度不会再触发：直接终结，暂停一个不可能再执行的任务没有意义
	next := c.calc.Next(t.Schedule, now, t.LastRunAt, t.CreatedAt)
	if next == nil {
		if success {
			c.settleTerminal(t, task.StatusCompleted)
		} else {
			c.settleTerminal(t, task.StatusFailed)
		}
		return
	}

	if c.leases.CancelRequested(t.ID) {
		if err := task.Transition(t, task.StatusPaused); err == nil {
			t.NextRunAt = nil
			return
		}
	}

	if err := task.Transition(t, task.StatusActive); err == nil {
		t.NextRunAt = next
	}
}

// settleTerminal 把任务迁移到终结状态并收尾记忆
func (c *Coordinator) settleTerminal(t *task.AgentTask, status task.TaskStatus) {
	if err := task.Transition(t, status); err != nil {
		c.logger.Error("failed to terminate task", "task_id", t.ID, "status", status, "error", err)
		return
	}
	t.NextRunAt = nil
	if err := c.memory.FlushTerminal(t); err != nil {
		c.logger.Error("failed to flush terminal memory", "task_id", t.ID, "error", err)
	}
}

// abortRun 停机打断执行的收尾
// 不记成败、不迁移状态；消息退回收件箱，留一条事件说明发生了什么
func (c *Coordinator) abortRun(t *task.AgentTask, msgIDs []string) {
	if err := c.inbox.Requeue(msgIDs, "run interrupted by shutdown"); err != nil {
		c.logger.Error("failed to requeue messages", "task_id", t.ID, "error", err)
	}
	c.appendEvent(task.NewEvent(t.ID, task.EventProgress, "run interrupted by shutdown", c.clock.Now()))
	c.logger.Warn("task run interrupted by shutdown", "task_id", t.ID, "name", t.Name)
}

// settleCancelled 在安全点响应取消：执行没有发生，任务落回 paused
func (c *Coordinator) settleCancelled(t *task.AgentTask, reason string) {
	now := c.clock.Now()
	if err := task.Transition(t, task.StatusPaused); err != nil {
		c.logger.Error("failed to pause cancelled task", "task_id", t.ID, "error", err)
		return
	}
	t.NextRunAt = nil
	t.UpdatedAt = now
	if err := c.tasks.Update(t); err != nil && !errors.Is(err, task.ErrTaskNotFound) {
		c.logger.Error("failed to persist cancelled task", "task_id", t.ID, "error", err)
	}
	c.appendEvent(task.NewEvent(t.ID, task.EventProgress, reason, now))
	c.logger.Info("task run cancelled", "task_id", t.ID, "reason", reason)
}

// notifyOutcome 派发结果通知并把通知结果记入事件日志
// 通知失败只记录，绝不反过来影响任务状态
func (c *Coordinator) notifyOutcome(ctx context.Context, t *task.AgentTask, outcome notify.Outcome) {
	res := c.notifier.Dispatch(ctx, t.Notification, outcome)
	if !res.Attempted {
		return
	}

	msg := "notification sent"
	if res.Err != nil {
		msg = "notification failed: " + res.Err.Error()
	}
	c.appendEvent(task.NewEvent(t.ID, task.EventProgress, msg, c.clock.Now()))
}

// appendEvent 写入事件，失败只记日志
func (c *Coordinator) appendEvent(ev *task.TaskEvent) {
	if err := c.events.Append(ev); err != nil {
		c.logger.Error("failed to append task event", "task_id", ev.TaskID, "event_type", ev.EventType, "error", err)
	}
}

// composePrompt 把基础输入和新消息拼成本次执行的提示
// 消息按入队顺序编号，Agent 能看到谁在什么语境下说了什么
func composePrompt(base string, msgs []task.InboxMessage) string {
	if len(msgs) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nNew messages received since the last run:\n")
	for i, m := range msgs {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, m.Source, m.Message)
	}
	return b.String()
}

// composeEffectiveInput 在提示前注入历史对话记忆
func composeEffectiveInput(turns []task.ConversationTurn, prompt string) string {
	if len(turns) == 0 {
		return prompt
	}

	var b strings.Builder
	b.WriteString("Previous conversation context:\n")
	for _, turn := range turns {
		fmt.Fprintf(&b, "[%s] %s\n", turn.Role, turn.Content)
	}
	b.WriteString("\n")
	b.WriteString(prompt)
	return b.String()
}
