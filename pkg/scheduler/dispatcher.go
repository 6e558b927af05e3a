package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/KodaTao/AgentPilot/pkg/task"
)

// DispatcherConfig 派发循环配置
type DispatcherConfig struct {
	// TickInterval 扫描到期任务的固定周期
	TickInterval time.Duration

	// LeaseTTL 执行租约的最长持有时间，应大于 RunTimeout
	LeaseTTL time.Duration

	// MaxConcurrent 同时执行的任务上限
	MaxConcurrent int
}

// DefaultDispatcherConfig 返回默认派发配置
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		TickInterval:  10 * time.Second,
		LeaseTTL:      35 * time.Minute,
		MaxConcurrent: 5,
	}
}

// Dispatcher 任务派发器
// 固定周期扫描到期任务，逐个抢租约后交给 Coordinator 执行
// 存储层故障时宁可跳过一轮也不盲目派发
type Dispatcher struct {
	tasks       *task.Repository
	coordinator *Coordinator
	leases      *LeaseTable
	clock       clockwork.Clock
	logger      *slog.Logger
	cfg         DispatcherConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher 创建派发器
func NewDispatcher(
	tasks *task.Repository,
	coordinator *Coordinator,
	leases *LeaseTable,
	clock clockwork.Clock,
	logger *slog.Logger,
	cfg DispatcherConfig,
) *Dispatcher {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultDispatcherConfig().TickInterval
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultDispatcherConfig().LeaseTTL
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultDispatcherConfig().MaxConcurrent
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		tasks:       tasks,
		coordinator: coordinator,
		leases:      leases,
		clock:       clock,
		logger:      logger,
		cfg:         cfg,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start 启动派发循环
// 先做一次启动恢复：上次进程异常退出时卡在 running 的任务重置为 active，
// 它们的 next_run_at 已经过期，下一轮扫描会立即重新派发
func (d *Dispatcher) Start() error {
	recovered, err := d.tasks.ResetRunning()
	if err != nil {
		return fmt.Errorf("failed to recover running tasks: %w", err)
	}
	if recovered > 0 {
		d.logger.Warn("recovered tasks stuck in running status", "count", recovered)
	}

	d.wg.Add(1)
	go d.loop()

	d.logger.Info("dispatcher started",
		"tick_interval", d.cfg.TickInterval,
		"max_concurrent", d.cfg.MaxConcurrent,
	)
	return nil
}

// Stop 停止派发循环，等待在途执行收尾
func (d *Dispatcher) Stop() {
	d.logger.Info("stopping dispatcher")
	d.cancel()
	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

// loop 派发主循环
func (d *Dispatcher) loop() {
	defer d.wg.Done()

	ticker := d.clock.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.Chan():
			d.Tick()
		}
	}
}

// Tick 执行一轮派发
// 导出是为了让上层按需手动触发（测试、run-now 后的加速）
func (d *Dispatcher) Tick() {
	now := d.clock.Now()

	// 回收过期租约：超过 TTL 还没收尾的执行视为失联，
	// 数据库侧重置后任务在下一轮重新到期，每轮最多补派发一次
	for _, id := range d.leases.ExpireStale() {
		d.recoverStale(id)
	}

	due, err := d.tasks.ListDue(now)
	if err != nil {
		// 存储层故障时跳过本轮，不在状态不明的情况下派发
		d.logger.Error("failed to list due tasks, skipping tick", "error", err)
		return
	}

	for i := range due {
		t := due[i]

		if d.leases.Len() >= d.cfg.MaxConcurrent {
			d.logger.Debug("concurrency limit reached, deferring remaining due tasks",
				"deferred", len(due)-i,
			)
			return
		}

		// 抢不到租约说明上一次执行还在途，跳过
		token, ok := d.leases.Acquire(t.ID)
		if !ok {
			continue
		}

		d.wg.Add(1)
		go func(taskID string, token uint64) {
			defer d.wg.Done()
			defer d.leases.Release(taskID, token)
			d.coordinator.Run(d.ctx, taskID)
		}(t.ID, token)
	}
}

// recoverStale 把租约过期的任务从 running 重置回 active
func (d *Dispatcher) recoverStale(taskID string) {
	t, err := d.tasks.GetByID(taskID)
	if err != nil {
		d.logger.Error("failed to load task for stale recovery", "task_id", taskID, "error", err)
		return
	}
	if t.Status != task.StatusRunning {
		return
	}

	if err := d.tasks.UpdateFields(taskID, map[string]interface{}{
		"status": task.StatusActive,
	}); err != nil {
		d.logger.Error("failed to reset stale running task", "task_id", taskID, "error", err)
		return
	}
	d.logger.Warn("reclaimed expired execution lease", "task_id", taskID, "name", t.Name)
}
