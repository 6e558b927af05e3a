// Package task 提供后台任务的数据模型与调度计算
package task

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("Failed to parse time %q: %v", value, err)
	}
	return ts
}

func TestCalculator_Once_Future(t *testing.T) {
	calc := NewCalculator()
	now := mustTime(t, "2026-01-01T10:00:00Z")
	runAt := mustTime(t, "2026-01-01T12:00:00Z")

	next := calc.Next(Schedule{Type: ScheduleOnce, RunAt: &runAt}, now, nil, now)
	if next == nil {
		t.Fatal("Expected next run time, got nil")
	}
	if !next.Equal(runAt) {
		t.Errorf("Expected next %v, got %v", runAt, *next)
	}
}

func TestCalculator_Once_PastIsDueImmediately(t *testing.T) {
	calc := NewCalculator()
	now := mustTime(t, "2026-01-01T10:00:00Z")
	runAt := mustTime(t, "2026-01-01T08:00:00Z")

	next := calc.Next(Schedule{Type: ScheduleOnce, RunAt: &runAt}, now, nil, now)
	if next == nil {
		t.Fatal("Expected next run time, got nil")
	}
	if next.After(now) {
		t.Errorf("Expected past run_at to be due immediately, got %v", *next)
	}
}

func TestCalculator_Once_AfterRunNeverFiresAgain(t *testing.T) {
	calc := NewCalculator()
	now := mustTime(t, "2026-01-01T10:00:00Z")
	runAt := mustTime(t, "2026-01-01T09:00:00Z")
	lastRun := mustTime(t, "2026-01-01T09:00:01Z")

	next := calc.Next(Schedule{Type: ScheduleOnce, RunAt: &runAt}, now, &lastRun, now)
	if next != nil {
		t.Errorf("Expected nil after the task has run, got %v", *next)
	}
}

func TestCalculator_Interval_FirstRunAtAnchor(t *testing.T) {
	calc := NewCalculator()
	now := mustTime(t, "2026-01-01T10:00:00Z")
	startAt := mustTime(t, "2026-01-01T11:00:00Z")

	sched := Schedule{Type: ScheduleInterval, IntervalMs: 60_000, StartAt: &startAt}
	next := calc.Next(sched, now, nil, now)
	if next == nil {
		t.Fatal("Expected next run time, got nil")
	}
	if !next.Equal(startAt) {
		t.Errorf("Expected first run at anchor %v, got %v", startAt, *next)
	}
}

func TestCalculator_Interval_StaysOnGrid(t *testing.T) {
	calc := NewCalculator()
	createdAt := mustTime(t, "2026-01-01T10:00:00Z")

	// 实际执行比网格点晚 7 秒，下一格不应该跟着漂移
	lastRun := mustTime(t, "2026-01-01T10:05:07Z")
	now := lastRun

	sched := Schedule{Type: ScheduleInterval, IntervalMs: 5 * 60 * 1000}
	next := calc.Next(sched, now, &lastRun, createdAt)
	if next == nil {
		t.Fatal("Expected next run time, got nil")
	}
	expected := mustTime(t, "2026-01-01T10:10:00Z")
	if !next.Equal(expected) {
		t.Errorf("Expected grid-aligned next %v, got %v", expected, *next)
	}
}

func TestCalculator_Interval_FireOnceCatchUp(t *testing.T) {
	calc := NewCalculator()
	createdAt := mustTime(t, "2026-01-01T10:00:00Z")
	lastRun := mustTime(t, "2026-01-01T10:05:00Z")

	// 停机两小时后恢复：fire_once 返回最早错过的网格点，立即到期
	now := mustTime(t, "2026-01-01T12:05:00Z")

	sched := Schedule{Type: ScheduleInterval, IntervalMs: 5 * 60 * 1000}
	next := calc.Next(sched, now, &lastRun, createdAt)
	if next == nil {
		t.Fatal("Expected next run time, got nil")
	}
	expected := mustTime(t, "2026-01-01T10:10:00Z")
	if !next.Equal(expected) {
		t.Errorf("Expected overdue grid point %v, got %v", expected, *next)
	}
	if next.After(now) {
		t.Error("Expected catch-up run to be due immediately")
	}
}

func TestCalculator_Interval_SkipCatchUp(t *testing.T) {
	calc := &Calculator{CatchUp: CatchUpSkip}
	createdAt := mustTime(t, "2026-01-01T10:00:00Z")
	lastRun := mustTime(t, "2026-01-01T10:05:00Z")
	now := mustTime(t, "2026-01-01T12:03:00Z")

	sched := Schedule{Type: ScheduleInterval, IntervalMs: 5 * 60 * 1000}
	next := calc.Next(sched, now, &lastRun, createdAt)
	if next == nil {
		t.Fatal("Expected next run time, got nil")
	}
	expected := mustTime(t, "2026-01-01T12:05:00Z")
	if !next.Equal(expected) {
		t.Errorf("Expected skip policy to land on next future grid point %v, got %v", expected, *next)
	}
}

func TestCalculator_Cron_NextOccurrence(t *testing.T) {
	calc := NewCalculator()
	now := mustTime(t, "2026-01-01T10:30:00Z")

	// 每天 12:00
	sched := Schedule{Type: ScheduleCron, Expression: "0 0 12 * * *"}
	next := calc.Next(sched, now, nil, now)
	if next == nil {
		t.Fatal("Expected next run time, got nil")
	}
	expected := mustTime(t, "2026-01-01T12:00:00Z")
	if !next.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, *next)
	}
}

func TestCalculator_Cron_FiveFieldExpression(t *testing.T) {
	calc := NewCalculator()
	now := mustTime(t, "2026-01-01T10:30:10Z")

	// 5 段表达式：每小时第 45 分
	sched := Schedule{Type: ScheduleCron, Expression: "45 * * * *"}
	next := calc.Next(sched, now, nil, now)
	if next == nil {
		t.Fatal("Expected next run time, got nil")
	}
	expected := mustTime(t, "2026-01-01T10:45:00Z")
	if !next.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, *next)
	}
}

func TestCalculator_Cron_Timezone(t *testing.T) {
	calc := NewCalculator()
	now := mustTime(t, "2026-01-01T10:00:00Z")

	// 东京时间每天 09:00 = UTC 00:00
	sched := Schedule{Type: ScheduleCron, Expression: "0 0 9 * * *", Timezone: "Asia/Tokyo"}
	next := calc.Next(sched, now, nil, now)
	if next == nil {
		t.Fatal("Expected next run time, got nil")
	}
	expected := mustTime(t, "2026-01-02T00:00:00Z")
	if !next.Equal(expected) {
		t.Errorf("Expected %v (09:00 JST), got %v", expected, next.UTC())
	}
}

func TestCalculator_Cron_FireOnceAfterDowntime(t *testing.T) {
	calc := NewCalculator()
	lastRun := mustTime(t, "2026-01-01T12:00:00Z")

	// 停机跨过了 1 月 2 日的 12:00，恢复后应补跑错过的那次
	now := mustTime(t, "2026-01-03T08:00:00Z")

	sched := Schedule{Type: ScheduleCron, Expression: "0 0 12 * * *"}
	next := calc.Next(sched, now, &lastRun, lastRun)
	if next == nil {
		t.Fatal("Expected next run time, got nil")
	}
	expected := mustTime(t, "2026-01-02T12:00:00Z")
	if !next.Equal(expected) {
		t.Errorf("Expected missed occurrence %v, got %v", expected, next.UTC())
	}
}

func TestCalculator_UnknownTypeReturnsNil(t *testing.T) {
	calc := NewCalculator()
	now := time.Now()

	next := calc.Next(Schedule{Type: "weekly"}, now, nil, now)
	if next != nil {
		t.Errorf("Expected nil for unknown schedule type, got %v", *next)
	}
}
