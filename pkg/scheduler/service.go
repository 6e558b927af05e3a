package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/KodaTao/AgentPilot/pkg/task"
)

// CreateTaskRequest 创建任务的入参
type CreateTaskRequest struct {
	Name          string                   `json:"name"`
	Description   string                   `json:"description"`
	AgentID       string                   `json:"agent_id"`
	Input         string                   `json:"input"`
	InputTemplate string                   `json:"input_template"`
	Schedule      task.Schedule            `json:"schedule"`
	Notification  *task.NotificationConfig `json:"notification,omitempty"`
	Memory        *task.MemoryConfig       `json:"memory,omitempty"`
}

// Service 任务管理服务
// 对外的控制面：创建、查询、暂停、恢复、删除、手动触发、投递消息
// 执行面的事情（派发、跑 Agent）归 Dispatcher 和 Coordinator
type Service struct {
	tasks  *task.Repository
	events *task.EventRepository
	inbox  *task.InboxRepository
	leases *LeaseTable
	calc   *task.Calculator
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewService 创建任务管理服务
func NewService(
	tasks *task.Repository,
	events *task.EventRepository,
	inbox *task.InboxRepository,
	leases *LeaseTable,
	calc *task.Calculator,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Service {
	return &Service{
		tasks:  tasks,
		events: events,
		inbox:  inbox,
		leases: leases,
		calc:   calc,
		clock:  clock,
		logger: logger,
	}
}

// Create 创建并激活任务
// 非法的调度定义在这里就被拒绝，不会入库
func (s *Service) Create(req CreateTaskRequest) (*task.AgentTask, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("task name cannot be empty")
	}
	if req.AgentID == "" {
		return nil, fmt.Errorf("agent_id cannot be empty")
	}
	if req.Input == "" && req.InputTemplate == "" {
		return nil, fmt.Errorf("task input cannot be empty")
	}
	if err := req.Schedule.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now()

	t := task.NewTask(req.Name, req.AgentID, req.Input, req.Schedule)
	t.Description = req.Description
	t.InputTemplate = req.InputTemplate
	t.CreatedAt = now
	t.UpdatedAt = now
	if req.Notification != nil {
		t.Notification = *req.Notification
	}
	if req.Memory != nil {
		t.Memory = *req.Memory
	}
	t.NextRunAt = s.calc.Next(t.Schedule, now, nil, now)

	if err := s.tasks.Create(t); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.Info("task created",
		"task_id", t.ID,
		"name", t.Name,
		"agent_id", t.AgentID,
		"schedule_type", t.Schedule.Type,
		"next_run_at", t.NextRunAt,
	)
	return t, nil
}

// Get 获取任务
func (s *Service) Get(id string) (*task.AgentTask, error) {
	return s.tasks.GetByID(id)
}

// List 列出任务
func (s *Service) List(status *task.TaskStatus, limit, offset int) ([]task.AgentTask, error) {
	return s.tasks.List(status, limit, offset)
}

// Pause 暂停任务
// active 任务直接落 paused；running 任务请求取消，在途执行到安全点后落 paused；
// 重复暂停是幂等的
func (s *Service) Pause(id string) (*task.AgentTask, error) {
	t, err := s.tasks.GetByID(id)
	if err != nil {
		return nil, err
	}

	switch t.Status {
	case task.StatusPaused:
		return t, nil
	case task.StatusRunning:
		if s.leases.RequestCancel(id) {
			s.logger.Info("pause requested for running task", "task_id", id)
			return t, nil
		}
		// 没有在途租约：要么执行刚收尾（按最新状态重来一次），
		// 要么是进程重启留下的孤儿 running，没有执行者替它落 paused
		fresh, err := s.tasks.GetByID(id)
		if err != nil {
			return nil, err
		}
		if fresh.Status != task.StatusRunning {
			return s.Pause(id)
		}
		if err := task.Transition(fresh, task.StatusPaused); err != nil {
			return nil, err
		}
		fresh.NextRunAt = nil
		fresh.UpdatedAt = s.clock.Now()
		if err := s.tasks.Update(fresh); err != nil {
			return nil, err
		}
		s.logger.Info("orphaned running task paused", "task_id", id, "name", fresh.Name)
		return fresh, nil
	case task.StatusActive:
		if err := task.Transition(t, task.StatusPaused); err != nil {
			return nil, err
		}
		t.NextRunAt = nil
		t.UpdatedAt = s.clock.Now()
		if err := s.tasks.Update(t); err != nil {
			return nil, err
		}
		s.logger.Info("task paused", "task_id", id, "name", t.Name)
		return t, nil
	default:
		return nil, fmt.Errorf("%w: cannot pause %s task", task.ErrTaskNotRunnable, t.Status)
	}
}

// Resume 恢复已暂停的任务
// 下次执行时间从当前时刻重新计算：暂停期间错过的重复性执行点不回放
// 重复恢复是幂等的
func (s *Service) Resume(id string) (*task.AgentTask, error) {
	t, err := s.tasks.GetByID(id)
	if err != nil {
		return nil, err
	}

	switch t.Status {
	case task.StatusActive, task.StatusRunning:
		return t, nil
	case task.StatusPaused:
		now := s.clock.Now()
		next := s.resumeNextRun(t, now)

		// 调度已经耗尽（例如暂停前就跑完了的一次性任务），恢复等价于确认终结；
		// 激活一个没有下次执行时间的任务会让它永远卡在 active
		if next == nil {
			if err := task.Transition(t, task.StatusCompleted); err != nil {
				return nil, err
			}
			t.NextRunAt = nil
			t.UpdatedAt = now
			if err := s.tasks.Update(t); err != nil {
				return nil, err
			}
			s.logger.Info("task completed on resume, schedule exhausted", "task_id", id, "name", t.Name)
			return t, nil
		}

		if err := task.Transition(t, task.StatusActive); err != nil {
			return nil, err
		}
		t.NextRunAt = next
		t.UpdatedAt = now
		if err := s.tasks.Update(t); err != nil {
			return nil, err
		}
		s.logger.Info("task resumed", "task_id", id, "name", t.Name, "next_run_at", t.NextRunAt)
		return t, nil
	default:
		return nil, fmt.Errorf("%w: cannot resume %s task", task.ErrTaskNotRunnable, t.Status)
	}
}

// resumeNextRun 恢复时的下次执行时间
// 重复性调度以 now 为上次执行时间计算，保证结果在未来；
// 一次性任务保留真实的执行记录：没跑过的过期 once 恢复后立即到期
func (s *Service) resumeNextRun(t *task.AgentTask, now time.Time) *time.Time {
	if t.Schedule.Type == task.ScheduleOnce {
		return s.calc.Next(t.Schedule, now, t.LastRunAt, t.CreatedAt)
	}
	return s.calc.Next(t.Schedule, now, &now, t.CreatedAt)
}

// Delete 删除任务及其事件、收件箱消息
// 在途执行收到取消请求，其结果写回会因记录不存在而被丢弃
func (s *Service) Delete(id string) error {
	s.leases.RequestCancel(id)

	if err := s.tasks.DeleteByID(id); err != nil {
		return err
	}
	s.logger.Info("task deleted", "task_id", id)
	return nil
}

// RunNow 手动触发任务
// 只是把到期时间提前到现在，仍然由派发循环按正常流程执行
func (s *Service) RunNow(id string) error {
	t, err := s.tasks.GetByID(id)
	if err != nil {
		return err
	}
	if !t.CanDispatch() {
		return fmt.Errorf("%w: status is %s", task.ErrTaskNotRunnable, t.Status)
	}

	now := s.clock.Now()
	if err := s.tasks.UpdateFields(id, map[string]interface{}{
		"next_run_at": &now,
	}); err != nil {
		return err
	}
	s.logger.Info("task scheduled for immediate run", "task_id", id)
	return nil
}

// Events 列出任务的执行事件
func (s *Service) Events(id string, limit int) ([]task.TaskEvent, error) {
	if _, err := s.tasks.GetByID(id); err != nil {
		return nil, err
	}
	return s.events.ListByTask(id, limit)
}

// SendMessage 向任务投递一条消息，下次执行开始时交给 Agent
func (s *Service) SendMessage(id, source, message string) (*task.InboxMessage, error) {
	if message == "" {
		return nil, fmt.Errorf("message cannot be empty")
	}
	if source == "" {
		source = task.SourceUser
	}

	t, err := s.tasks.GetByID(id)
	if err != nil {
		return nil, err
	}
	if t.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot message %s task", task.ErrTaskNotRunnable, t.Status)
	}

	msg := task.NewInboxMessage(id, source, message)
	msg.CreatedAt = s.clock.Now()
	if err := s.inbox.Enqueue(msg); err != nil {
		return nil, fmt.Errorf("failed to enqueue message: %w", err)
	}

	s.logger.Info("message queued for task", "task_id", id, "message_id", msg.ID, "source", source)
	return msg, nil
}

// Messages 列出任务收件箱里的消息
func (s *Service) Messages(id string, limit int) ([]task.InboxMessage, error) {
	if _, err := s.tasks.GetByID(id); err != nil {
		return nil, err
	}
	return s.inbox.ListByTask(id, limit)
}
