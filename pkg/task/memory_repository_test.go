package task

import (
	"testing"
	"time"
)

func TestMemoryRepository_GetEmptyMemory(t *testing.T) {
	memories := NewMemoryRepository(setupTestDB(t))

	mem, err := memories.Get("task-1")
	if err != nil {
		t.Fatalf("Failed to get memory: %v", err)
	}
	if mem.TaskID != "task-1" {
		t.Errorf("Expected task_id task-1, got %s", mem.TaskID)
	}
	if len(mem.Turns) != 0 {
		t.Errorf("Expected empty turns, got %d", len(mem.Turns))
	}
}

func TestMemoryRepository_SaveRoundTrip(t *testing.T) {
	memories := NewMemoryRepository(setupTestDB(t))

	now := time.Now().UTC().Truncate(time.Second)
	turns := []ConversationTurn{
		{Role: RoleUser, Content: "check the weather", Timestamp: now},
		{Role: RoleAssistant, Content: "sunny, 25C", Timestamp: now},
	}
	if err := memories.Save("task-1", turns, now); err != nil {
		t.Fatalf("Failed to save memory: %v", err)
	}

	mem, err := memories.Get("task-1")
	if err != nil {
		t.Fatalf("Failed to get memory: %v", err)
	}
	if len(mem.Turns) != 2 {
		t.Fatalf("Expected 2 turns, got %d", len(mem.Turns))
	}
	if mem.Turns[1].Content != "sunny, 25C" {
		t.Errorf("Expected assistant turn to round-trip, got %q", mem.Turns[1].Content)
	}

	// 覆盖写
	if err := memories.Save("task-1", turns[:1], now); err != nil {
		t.Fatalf("Failed to overwrite memory: %v", err)
	}
	mem, _ = memories.Get("task-1")
	if len(mem.Turns) != 1 {
		t.Errorf("Expected overwrite to replace turns, got %d", len(mem.Turns))
	}
}

func TestMemoryRepository_ChunkDeduplication(t *testing.T) {
	memories := NewMemoryRepository(setupTestDB(t))

	turns := []ConversationTurn{{Role: RoleUser, Content: "same content"}}
	chunk1, err := NewMemoryChunk("task-1", "agent-1", turns)
	if err != nil {
		t.Fatalf("Failed to build chunk: %v", err)
	}
	chunk2, _ := NewMemoryChunk("task-1", "agent-1", turns)

	if chunk1.Digest != chunk2.Digest {
		t.Fatal("Expected identical content to produce identical digest")
	}

	if err := memories.SaveChunk(chunk1); err != nil {
		t.Fatalf("Failed to save chunk: %v", err)
	}
	// 同内容重复写入不报错
	if err := memories.SaveChunk(chunk2); err != nil {
		t.Fatalf("Expected duplicate chunk save to be a no-op, got %v", err)
	}

	chunks, err := memories.ListChunksByTask("task-1", 0)
	if err != nil {
		t.Fatalf("Failed to list chunks: %v", err)
	}
	if len(chunks) != 1 {
		t.Errorf("Expected 1 deduplicated chunk, got %d", len(chunks))
	}
}
