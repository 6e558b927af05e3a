package scheduler

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// lease 一次执行的租约
type lease struct {
	token           uint64
	acquiredAt      time.Time
	expiresAt       time.Time
	cancelRequested bool
}

// LeaseTable 进程内执行租约表
// 同一任务同一时刻最多持有一个租约，保证不会被并发执行两次
// 单进程部署下这张表就是互斥协调点，崩溃后靠数据库状态恢复
type LeaseTable struct {
	mu     sync.Mutex
	ttl    time.Duration
	clock  clockwork.Clock
	nextID uint64
	leases map[string]*lease
}

// NewLeaseTable 创建租约表
// ttl 是单个租约的最长持有时间，应大于执行超时
func NewLeaseTable(ttl time.Duration, clock clockwork.Clock) *LeaseTable {
	return &LeaseTable{
		ttl:    ttl,
		clock:  clock,
		leases: make(map[string]*lease),
	}
}

// Acquire 尝试获取任务的执行租约
// 已有未过期租约时返回 false；过期租约视为失效，可被接管
// 返回的 token 标识这一次持有，Release 必须带着它
func (lt *LeaseTable) Acquire(taskID string) (uint64, bool) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	now := lt.clock.Now()
	if l, ok := lt.leases[taskID]; ok && l.expiresAt.After(now) {
		return 0, false
	}

	lt.nextID++
	lt.leases[taskID] = &lease{
		token:      lt.nextID,
		acquiredAt: now,
		expiresAt:  now.Add(lt.ttl),
	}
	return lt.nextID, true
}

// Release 释放任务的执行租约
// token 不匹配说明租约已被接管，此时是过期持有者在释放，不能动新持有者的租约
func (lt *LeaseTable) Release(taskID string, token uint64) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if l, ok := lt.leases[taskID]; ok && l.token == token {
		delete(lt.leases, taskID)
	}
}

// Held 判断任务当前是否持有未过期租约
func (lt *LeaseTable) Held(taskID string) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	l, ok := lt.leases[taskID]
	return ok && l.expiresAt.After(lt.clock.Now())
}

// Len 返回当前持有的租约数量（含已过期未回收的）
func (lt *LeaseTable) Len() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return len(lt.leases)
}

// RequestCancel 请求取消正在执行的任务
// 返回 true 表示确有在途执行收到了请求；执行方只在安全点检查该标记
func (lt *LeaseTable) RequestCancel(taskID string) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	l, ok := lt.leases[taskID]
	if !ok {
		return false
	}
	l.cancelRequested = true
	return true
}

// CancelRequested 查询任务的在途执行是否被请求取消
func (lt *LeaseTable) CancelRequested(taskID string) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	l, ok := lt.leases[taskID]
	return ok && l.cancelRequested
}

// ExpireStale 回收所有已过期的租约，返回对应的任务 ID
// 由派发循环周期性调用，过期任务在数据库侧重置后等待下轮重新派发
func (lt *LeaseTable) ExpireStale() []string {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	now := lt.clock.Now()
	var expired []string
	for id, l := range lt.leases {
		if !l.expiresAt.After(now) {
			expired = append(expired, id)
			delete(lt.leases, id)
		}
	}
	return expired
}
