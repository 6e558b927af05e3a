// Package pilot 提供 AgentPilot 核心框架
package pilot

import (
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"github.com/KodaTao/AgentPilot/pkg/agent"
	"github.com/KodaTao/AgentPilot/pkg/llm"
	"github.com/KodaTao/AgentPilot/pkg/llm/openai"
	"github.com/KodaTao/AgentPilot/pkg/notify"
	"github.com/KodaTao/AgentPilot/pkg/observability"
	"github.com/KodaTao/AgentPilot/pkg/scheduler"
	"github.com/KodaTao/AgentPilot/pkg/storage"
	"github.com/KodaTao/AgentPilot/pkg/task"
	"github.com/KodaTao/AgentPilot/pkg/telegram"
)

// App AgentPilot 应用实例
// 这是整个框架的入口点：组装存储、调度、执行和通知，并管理它们的生命周期
type App struct {
	config *Config

	db         *gorm.DB
	runner     scheduler.AgentRunner
	agentHub   *agent.Runner
	service    *scheduler.Service
	dispatcher *scheduler.Dispatcher
	leases     *scheduler.LeaseTable
	clock      clockwork.Clock
}

// New 创建新的 App 实例
func New(opts ...Option) *App {
	// 应用默认配置
	config := DefaultConfig()

	// 应用选项
	for _, opt := range opts {
		opt(config)
	}

	return &App{
		config: config,
		clock:  clockwork.NewRealClock(),
	}
}

// SetRunner 注入自定义的任务执行器
// 不注入时 Initialize 会按 LLM 配置构建默认执行器
func (a *App) SetRunner(r scheduler.AgentRunner) {
	a.runner = r
}

// Initialize 初始化应用
// 包括：日志、数据库、执行器、调度器
func (a *App) Initialize() error {
	// 1. 初始化日志
	if err := observability.InitLogger(observability.LogConfig{
		Level:    a.config.Log.Level,
		Format:   a.config.Log.Format,
		Output:   a.config.Log.Output,
		FilePath: a.config.Log.FilePath,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := slog.Default()

	observability.Info("Initializing AgentPilot",
		"server_port", a.config.Server.Port,
		"database_path", a.config.Database.Path,
		"tick_interval", a.config.Scheduler.TickInterval,
	)

	// 2. 初始化数据库
	db, err := storage.Open(storage.Config{
		Path: a.config.Database.Path,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.db = db
	if err := storage.Migrate(db,
		&task.AgentTask{},
		&task.TaskEvent{},
		&task.InboxMessage{},
		&task.TaskMemory{},
		&task.MemoryChunk{},
	); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}

	tasks := task.NewRepository(db)
	events := task.NewEventRepository(db)
	inbox := task.NewInboxRepository(db)
	memories := task.NewMemoryRepository(db)

	// 3. 初始化执行器
	// 未注入自定义执行器时，按 LLM 配置构建默认的 LLM 执行器
	if a.runner == nil {
		apiKey := llm.ResolveAPIKey(a.config.LLM.APIKey)
		if apiKey == "" {
			return fmt.Errorf("LLM API key is required")
		}

		var provider llm.Provider
		switch a.config.LLM.Provider {
		case "openai", "azure", "custom":
			cfg := a.config.LLM
			cfg.APIKey = apiKey
			provider = openai.NewProviderFromLLMConfig(cfg)
		default:
			return fmt.Errorf("unsupported LLM provider: %s", a.config.LLM.Provider)
		}

		a.agentHub = agent.NewRunner(provider, logger)
		a.runner = a.agentHub

		observability.Info("LLM runner initialized",
			"provider", provider.Name(),
			"model", a.config.LLM.Model,
			"api_key", llm.MaskAPIKey(apiKey),
		)
	}

	// 4. 初始化通知渠道（可选）
	var channel notify.Channel
	if a.config.Telegram.Enabled {
		if err := a.config.Telegram.Validate(); err != nil {
			return fmt.Errorf("invalid telegram config: %w", err)
		}
		sender, err := telegram.NewSender(a.config.Telegram.Token, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize telegram sender: %w", err)
		}
		channel = sender
	}
	notifier := notify.NewDispatcher(channel, logger)

	// 5. 组装调度组件
	// 租约必须比单次执行活得久，否则在途执行会被误判为失联
	if a.config.Scheduler.LeaseTTL <= a.config.Scheduler.RunTimeout {
		return fmt.Errorf("scheduler lease_ttl (%s) must exceed run_timeout (%s)",
			a.config.Scheduler.LeaseTTL, a.config.Scheduler.RunTimeout)
	}

	calc := task.NewCalculator()
	if a.config.Scheduler.CatchUp == string(task.CatchUpSkip) {
		calc.CatchUp = task.CatchUpSkip
	}

	a.leases = scheduler.NewLeaseTable(a.config.Scheduler.LeaseTTL, a.clock)

	memoryPolicy := scheduler.NewMemoryPolicy(memories, a.clock, logger)
	coordinator := scheduler.NewCoordinator(
		tasks, events, inbox, memoryPolicy, calc,
		a.runner, notifier, a.leases, a.clock, logger,
		scheduler.CoordinatorConfig{
			RunTimeout:       a.config.Scheduler.RunTimeout,
			FailureThreshold: a.config.Scheduler.FailureThreshold,
			InboxBatchSize:   a.config.Scheduler.InboxBatchSize,
		},
	)

	a.dispatcher = scheduler.NewDispatcher(
		tasks, coordinator, a.leases, a.clock, logger,
		scheduler.DispatcherConfig{
			TickInterval:  a.config.Scheduler.TickInterval,
			LeaseTTL:      a.config.Scheduler.LeaseTTL,
			MaxConcurrent: a.config.Scheduler.MaxConcurrent,
		},
	)

	a.service = scheduler.NewService(tasks, events, inbox, a.leases, calc, a.clock, logger)

	// 6. 启动派发循环
	if err := a.dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}

	observability.Info("AgentPilot initialized")
	return nil
}

// GetService 获取任务管理服务
func (a *App) GetService() *scheduler.Service {
	return a.service
}

// GetAgentHub 获取默认的 LLM 执行器（注入自定义执行器时为 nil）
func (a *App) GetAgentHub() *agent.Runner {
	return a.agentHub
}

// Config 获取应用配置
func (a *App) Config() *Config {
	return a.config
}

// Shutdown 优雅关闭应用
func (a *App) Shutdown() {
	observability.Info("Shutting down AgentPilot")

	if a.dispatcher != nil {
		a.dispatcher.Stop()
	}

	if err := storage.Close(a.db); err != nil {
		observability.Error("Failed to close database", "error", err)
	}

	observability.Info("AgentPilot shutdown complete")
}
