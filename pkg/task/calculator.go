package task

import "time"

// CatchUpPolicy 控制停机期间错过的执行点如何补偿
type CatchUpPolicy string

const (
	// CatchUpFireOnce 错过的执行点只立即补跑一次，之后回到网格
	CatchUpFireOnce CatchUpPolicy = "fire_once"
	// CatchUpSkip 丢弃所有错过的执行点，只调度未来的时间
	CatchUpSkip CatchUpPolicy = "skip"
)

// Calculator 下次执行时间计算器
// 纯计算组件：不读库、不取当前时间，时间一律由调用方传入
type Calculator struct {
	CatchUp CatchUpPolicy
}

// NewCalculator 创建计算器，默认采用 fire_once 补偿策略
func NewCalculator() *Calculator {
	return &Calculator{CatchUp: CatchUpFireOnce}
}

// Next 计算下次执行时间
// 返回 nil 表示该调度不会再触发（例如已执行过的一次性任务）
// 返回的时间可能早于 now，含义是"已到期，应立即执行"
func (c *Calculator) Next(sched Schedule, now time.Time, lastRun *time.Time, createdAt time.Time) *time.Time {
	switch sched.Type {
	case ScheduleOnce:
		return c.nextOnce(sched, lastRun)
	case ScheduleInterval:
		return c.nextInterval(sched, now, lastRun, createdAt)
	case ScheduleCron:
		return c.nextCron(sched, now, lastRun)
	default:
		return nil
	}
}

// nextOnce 一次性任务：执行过即终结
func (c *Calculator) nextOnce(sched Schedule, lastRun *time.Time) *time.Time {
	if lastRun != nil || sched.RunAt == nil {
		return nil
	}
	runAt := *sched.RunAt
	return &runAt
}

// nextInterval 间隔任务：候选时间始终落在 anchor + k*interval 网格上
// 实际执行时间的抖动不会累积成漂移
func (c *Calculator) nextInterval(sched Schedule, now time.Time, lastRun *time.Time, createdAt time.Time) *time.Time {
	interval := sched.Interval()
	if interval <= 0 {
		return nil
	}

	anchor := createdAt
	if sched.StartAt != nil {
		anchor = *sched.StartAt
	}

	var next time.Time
	if lastRun == nil {
		// 从未执行：第一格就是锚点本身
		next = anchor
	} else {
		next = alignAfter(anchor, interval, *lastRun)
	}

	// skip 策略下丢弃已经错过的网格点
	if c.CatchUp == CatchUpSkip && next.Before(now) {
		next = alignAfter(anchor, interval, now)
	}

	return &next
}

// nextCron 表达式任务：在配置的时区内求下一个匹配时刻
func (c *Calculator) nextCron(sched Schedule, now time.Time, lastRun *time.Time) *time.Time {
	spec, err := cronParser.Parse(sched.Expression)
	if err != nil {
		// 表达式在创建时已校验过，这里视为无法再触发
		return nil
	}

	base := now
	if lastRun != nil && c.CatchUp == CatchUpFireOnce && lastRun.Before(now) {
		// 从上次执行之后找起，停机期间错过的时刻会以"已到期"形式补跑一次
		base = *lastRun
	}

	next := spec.Next(base.In(sched.Location()))
	if next.IsZero() {
		return nil
	}
	return &next
}

// alignAfter 返回网格 anchor + k*interval 上严格晚于 after 的最小时间点
func alignAfter(anchor time.Time, interval time.Duration, after time.Time) time.Time {
	if anchor.After(after) {
		return anchor
	}
	k := after.Sub(anchor)/interval + 1
	return anchor.Add(k * interval)
}
