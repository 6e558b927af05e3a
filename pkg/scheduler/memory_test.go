package scheduler

import (
	"context"
	"testing"

	"github.com/KodaTao/AgentPilot/pkg/task"
)

func newMemoryTestEnv(t *testing.T) (*MemoryPolicy, *testEnv) {
	t.Helper()
	env := newTestEnv(t, RunnerFunc(func(ctx context.Context, agentID, input string) (string, error) {
		return "ok", nil
	}))
	return NewMemoryPolicy(env.memories, env.clock, env.logger), env
}

func TestMemoryPolicy_RecordRunAppendsTurns(t *testing.T) {
	policy, env := newMemoryTestEnv(t)
	tk := env.createIntervalTask(t, "chatty")

	if err := policy.RecordRun(tk, "check disks", "disks fine"); err != nil {
		t.Fatalf("Failed to record run: %v", err)
	}
	if err := policy.RecordRun(tk, "check again", "still fine"); err != nil {
		t.Fatalf("Failed to record run: %v", err)
	}

	turns := policy.Load(tk.ID)
	if len(turns) != 4 {
		t.Fatalf("Expected 4 turns after 2 runs, got %d", len(turns))
	}
	if turns[0].Role != task.RoleUser || turns[0].Content != "check disks" {
		t.Errorf("Expected oldest turn first, got [%s] %q", turns[0].Role, turns[0].Content)
	}
	if turns[3].Role != task.RoleAssistant || turns[3].Content != "still fine" {
		t.Errorf("Expected newest turn last, got [%s] %q", turns[3].Role, turns[3].Content)
	}
}

func TestMemoryPolicy_OverflowArchivesOldestTurns(t *testing.T) {
	policy, env := newMemoryTestEnv(t)
	tk := env.createIntervalTask(t, "bounded")
	tk.Memory.MaxMessages = 4

	for i, pair := range [][2]string{{"q1", "a1"}, {"q2", "a2"}, {"q3", "a3"}} {
		if err := policy.RecordRun(tk, pair[0], pair[1]); err != nil {
			t.Fatalf("Failed to record run %d: %v", i, err)
		}
	}

	// 上限 4：最旧的一轮被挤出活跃记忆
	turns := policy.Load(tk.ID)
	if len(turns) != 4 {
		t.Fatalf("Expected active memory trimmed to 4 turns, got %d", len(turns))
	}
	if turns[0].Content != "q2" {
		t.Errorf("Expected oldest surviving turn q2, got %q", turns[0].Content)
	}

	// 挤出的轮次转存为长期记忆块
	chunks, err := env.memories.ListChunksByTask(tk.ID, 0)
	if err != nil {
		t.Fatalf("Failed to list chunks: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 archived chunk, got %d", len(chunks))
	}
	if chunks[0].AgentID != tk.AgentID {
		t.Errorf("Expected chunk tagged with agent id, got %s", chunks[0].AgentID)
	}
}

func TestMemoryPolicy_OverflowDiscardedWithoutFileMemory(t *testing.T) {
	policy, env := newMemoryTestEnv(t)
	tk := env.createIntervalTask(t, "forgetful")
	tk.Memory.MaxMessages = 2
	tk.Memory.EnableFileMemory = false

	policy.RecordRun(tk, "q1", "a1")
	policy.RecordRun(tk, "q2", "a2")

	turns := policy.Load(tk.ID)
	if len(turns) != 2 {
		t.Fatalf("Expected 2 turns, got %d", len(turns))
	}
	chunks, _ := env.memories.ListChunksByTask(tk.ID, 0)
	if len(chunks) != 0 {
		t.Errorf("Expected overflow discarded, got %d chunks", len(chunks))
	}
}

func TestMemoryPolicy_FlushTerminal(t *testing.T) {
	policy, env := newMemoryTestEnv(t)
	tk := env.createIntervalTask(t, "finishing")

	policy.RecordRun(tk, "final question", "final answer")
	if err := policy.FlushTerminal(tk); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	if turns := policy.Load(tk.ID); len(turns) != 0 {
		t.Errorf("Expected active memory cleared, got %d turns", len(turns))
	}
	chunks, _ := env.memories.ListChunksByTask(tk.ID, 0)
	if len(chunks) != 1 {
		t.Errorf("Expected remaining turns archived, got %d chunks", len(chunks))
	}
}

func TestMemoryPolicy_FlushTerminalWithoutPersist(t *testing.T) {
	policy, env := newMemoryTestEnv(t)
	tk := env.createIntervalTask(t, "ephemeral")
	tk.Memory.PersistOnComplete = false

	policy.RecordRun(tk, "q", "a")
	if err := policy.FlushTerminal(tk); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	// persist_on_complete 关闭时记忆原样留在表里
	if turns := policy.Load(tk.ID); len(turns) != 2 {
		t.Errorf("Expected memory untouched, got %d turns", len(turns))
	}
	chunks, _ := env.memories.ListChunksByTask(tk.ID, 0)
	if len(chunks) != 0 {
		t.Errorf("Expected no chunks, got %d", len(chunks))
	}
}
