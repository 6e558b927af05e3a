// Package scheduler 提供后台任务的派发与执行
package scheduler

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestLeaseTable_MutualExclusion(t *testing.T) {
	clock := clockwork.NewFakeClock()
	leases := NewLeaseTable(time.Minute, clock)

	token, ok := leases.Acquire("task-1")
	if !ok {
		t.Fatal("Expected first acquire to succeed")
	}
	if _, ok := leases.Acquire("task-1"); ok {
		t.Error("Expected second acquire to fail while lease is held")
	}
	if _, ok := leases.Acquire("task-2"); !ok {
		t.Error("Expected acquire for a different task to succeed")
	}

	leases.Release("task-1", token)
	if _, ok := leases.Acquire("task-1"); !ok {
		t.Error("Expected acquire to succeed after release")
	}
}

func TestLeaseTable_ExpiredLeaseCanBeTakenOver(t *testing.T) {
	clock := clockwork.NewFakeClock()
	leases := NewLeaseTable(time.Minute, clock)

	if _, ok := leases.Acquire("task-1"); !ok {
		t.Fatal("Expected acquire to succeed")
	}

	clock.Advance(2 * time.Minute)

	if _, ok := leases.Acquire("task-1"); !ok {
		t.Error("Expected expired lease to be taken over")
	}
}

func TestLeaseTable_StaleHolderCannotReleaseTakenOverLease(t *testing.T) {
	clock := clockwork.NewFakeClock()
	leases := NewLeaseTable(time.Minute, clock)

	staleToken, ok := leases.Acquire("task-1")
	if !ok {
		t.Fatal("Expected first acquire to succeed")
	}

	// TTL 过后第二个持有者接管
	clock.Advance(2 * time.Minute)
	if _, ok := leases.Acquire("task-1"); !ok {
		t.Fatal("Expected takeover to succeed")
	}

	// 过期持有者迟到的释放不能动新持有者的租约
	leases.Release("task-1", staleToken)
	if !leases.Held("task-1") {
		t.Fatal("Expected new holder's lease to survive the stale release")
	}
	if _, ok := leases.Acquire("task-1"); ok {
		t.Error("Expected acquire to fail while the new holder is still in flight")
	}
}

func TestLeaseTable_ExpireStale(t *testing.T) {
	clock := clockwork.NewFakeClock()
	leases := NewLeaseTable(time.Minute, clock)

	leases.Acquire("old")
	clock.Advance(30 * time.Second)
	leases.Acquire("fresh")

	clock.Advance(45 * time.Second)

	expired := leases.ExpireStale()
	if len(expired) != 1 || expired[0] != "old" {
		t.Errorf("Expected only 'old' lease expired, got %v", expired)
	}
	if !leases.Held("fresh") {
		t.Error("Expected fresh lease to survive the sweep")
	}
	if leases.Held("old") {
		t.Error("Expected expired lease to be removed")
	}

	// 再扫一遍不会重复回收
	if again := leases.ExpireStale(); len(again) != 0 {
		t.Errorf("Expected second sweep to find nothing, got %v", again)
	}
}

func TestLeaseTable_CancelRequest(t *testing.T) {
	clock := clockwork.NewFakeClock()
	leases := NewLeaseTable(time.Minute, clock)

	// 没有在途执行时取消请求无处落地
	if leases.RequestCancel("task-1") {
		t.Error("Expected cancel request without a lease to report false")
	}

	token, _ := leases.Acquire("task-1")
	if !leases.RequestCancel("task-1") {
		t.Error("Expected cancel request with a held lease to report true")
	}
	if !leases.CancelRequested("task-1") {
		t.Error("Expected cancel flag to be visible")
	}

	// 释放后标记随租约一起消失
	leases.Release("task-1", token)
	if leases.CancelRequested("task-1") {
		t.Error("Expected cancel flag cleared after release")
	}
}
