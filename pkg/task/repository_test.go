package task

import (
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB 创建测试数据库
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	// 自动迁移
	if err := db.AutoMigrate(&AgentTask{}, &TaskEvent{}, &InboxMessage{}, &TaskMemory{}, &MemoryChunk{}); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	return db
}

func newTestTask(name string) *AgentTask {
	runAt := time.Now().Add(time.Hour)
	task := NewTask(name, "agent-1", "do something", Schedule{Type: ScheduleOnce, RunAt: &runAt})
	task.NextRunAt = &runAt
	return task
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	task := newTestTask("daily-report")
	if err := repo.Create(task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	got, err := repo.GetByID(task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if got.Name != "daily-report" {
		t.Errorf("Expected name 'daily-report', got '%s'", got.Name)
	}
	if got.Status != StatusActive {
		t.Errorf("Expected status active, got %s", got.Status)
	}
	if got.Schedule.Type != ScheduleOnce {
		t.Errorf("Expected once schedule, got %s", got.Schedule.Type)
	}
	if got.Memory.MaxMessages != 100 {
		t.Errorf("Expected default memory config to round-trip, got max_messages=%d", got.Memory.MaxMessages)
	}
}

func TestRepository_GetNotFound(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	_, err := repo.GetByID("missing")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
}

func TestRepository_UpdateDeletedTask(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	task := newTestTask("ephemeral")
	if err := repo.Create(task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if err := repo.DeleteByID(task.ID); err != nil {
		t.Fatalf("Failed to delete task: %v", err)
	}

	// 删除后的写回不能复活记录
	task.Status = StatusCompleted
	if err := repo.Update(task); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound on update after delete, got %v", err)
	}

	if _, err := repo.GetByID(task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Error("Expected task to stay deleted")
	}
}

func TestRepository_ListDue(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	now := time.Now()

	past1 := now.Add(-2 * time.Minute)
	past2 := now.Add(-1 * time.Minute)
	future := now.Add(time.Hour)

	t1 := newTestTask("due-later")
	t1.NextRunAt = &past2
	t2 := newTestTask("due-first")
	t2.NextRunAt = &past1
	t3 := newTestTask("not-due")
	t3.NextRunAt = &future
	t4 := newTestTask("paused")
	t4.NextRunAt = &past1
	t4.Status = StatusPaused
	t5 := newTestTask("no-next")
	t5.NextRunAt = nil

	for _, task := range []*AgentTask{t1, t2, t3, t4, t5} {
		if err := repo.Create(task); err != nil {
			t.Fatalf("Failed to create task: %v", err)
		}
	}

	due, err := repo.ListDue(now)
	if err != nil {
		t.Fatalf("Failed to list due tasks: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("Expected 2 due tasks, got %d", len(due))
	}
	if due[0].Name != "due-first" || due[1].Name != "due-later" {
		t.Errorf("Expected due tasks ordered by next_run_at, got [%s, %s]", due[0].Name, due[1].Name)
	}
}

func TestRepository_DeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	events := NewEventRepository(db)
	inbox := NewInboxRepository(db)

	task := newTestTask("cascade")
	if err := repo.Create(task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if err := events.Append(NewEvent(task.ID, EventStarted, "run started", time.Now())); err != nil {
		t.Fatalf("Failed to append event: %v", err)
	}
	if err := inbox.Enqueue(NewInboxMessage(task.ID, SourceUser, "hello")); err != nil {
		t.Fatalf("Failed to enqueue message: %v", err)
	}

	if err := repo.DeleteByID(task.ID); err != nil {
		t.Fatalf("Failed to delete task: %v", err)
	}

	evs, err := events.ListByTask(task.ID, 0)
	if err != nil {
		t.Fatalf("Failed to list events: %v", err)
	}
	if len(evs) != 0 {
		t.Errorf("Expected events deleted with task, got %d", len(evs))
	}

	msgs, err := inbox.ListByTask(task.ID, 0)
	if err != nil {
		t.Fatalf("Failed to list messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("Expected messages deleted with task, got %d", len(msgs))
	}
}

func TestRepository_ResetRunning(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	t1 := newTestTask("stuck")
	t1.Status = StatusRunning
	t2 := newTestTask("fine")

	for _, task := range []*AgentTask{t1, t2} {
		if err := repo.Create(task); err != nil {
			t.Fatalf("Failed to create task: %v", err)
		}
	}

	count, err := repo.ResetRunning()
	if err != nil {
		t.Fatalf("Failed to reset running tasks: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 task reset, got %d", count)
	}

	got, _ := repo.GetByID(t1.ID)
	if got.Status != StatusActive {
		t.Errorf("Expected stuck task reset to active, got %s", got.Status)
	}
}

func TestRepository_CountByStatus(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	t1 := newTestTask("a")
	t2 := newTestTask("b")
	t2.Status = StatusPaused

	for _, task := range []*AgentTask{t1, t2} {
		if err := repo.Create(task); err != nil {
			t.Fatalf("Failed to create task: %v", err)
		}
	}

	paused := StatusPaused
	count, err := repo.Count(&paused)
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 paused task, got %d", count)
	}

	total, err := repo.Count(nil)
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if total != 2 {
		t.Errorf("Expected 2 tasks total, got %d", total)
	}
}
