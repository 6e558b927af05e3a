package scheduler

import (
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/KodaTao/AgentPilot/pkg/task"
)

// MemoryPolicy 会话记忆策略
// 负责在每次执行前后维护任务的活跃记忆：加载、追加、裁剪、终结时落盘
// 记忆操作失败不影响任务执行本身，只记日志
type MemoryPolicy struct {
	memories *task.MemoryRepository
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewMemoryPolicy 创建记忆策略
func NewMemoryPolicy(memories *task.MemoryRepository, clock clockwork.Clock, logger *slog.Logger) *MemoryPolicy {
	return &MemoryPolicy{
		memories: memories,
		clock:    clock,
		logger:   logger,
	}
}

// Load 加载任务的活跃记忆轮次
// 读失败按空记忆处理，保证执行不被记忆层故障阻塞
func (p *MemoryPolicy) Load(taskID string) []task.ConversationTurn {
	mem, err := p.memories.Get(taskID)
	if err != nil {
		p.logger.Error("failed to load task memory", "task_id", taskID, "error", err)
		return nil
	}
	return mem.Turns
}

// RecordRun 把一次成功执行记入活跃记忆
// 超出 MaxMessages 的最旧轮次按配置转存为长期记忆块或直接丢弃
func (p *MemoryPolicy) RecordRun(t *task.AgentTask, input, output string) error {
	now := p.clock.Now()
	turns := append(p.Load(t.ID),
		task.ConversationTurn{Role: task.RoleUser, Content: input, Timestamp: now},
		task.ConversationTurn{Role: task.RoleAssistant, Content: output, Timestamp: now},
	)

	if max := t.Memory.MaxMessages; max > 0 && len(turns) > max {
		overflow := turns[:len(turns)-max]
		turns = turns[len(turns)-max:]

		if t.Memory.EnableFileMemory {
			if err := p.archive(t, overflow); err != nil {
				p.logger.Error("failed to archive overflow memory", "task_id", t.ID, "error", err)
			}
		}
	}

	return p.memories.Save(t.ID, turns, now)
}

// FlushTerminal 任务终结时的记忆收尾
// persist_on_complete 开启时，剩余的活跃记忆整体落盘后清空
func (p *MemoryPolicy) FlushTerminal(t *task.AgentTask) error {
	if !t.Memory.PersistOnComplete {
		return nil
	}

	turns := p.Load(t.ID)
	if len(turns) > 0 {
		if err := p.archive(t, turns); err != nil {
			return fmt.Errorf("failed to persist terminal memory: %w", err)
		}
	}
	return p.memories.Delete(t.ID)
}

// archive 把一段轮次编码为长期记忆块写入存储
func (p *MemoryPolicy) archive(t *task.AgentTask, turns []task.ConversationTurn) error {
	chunk, err := task.NewMemoryChunk(t.ID, t.AgentID, turns)
	if err != nil {
		return err
	}
	chunk.CreatedAt = p.clock.Now()
	return p.memories.SaveChunk(chunk)
}
