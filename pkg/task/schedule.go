// Package task 提供后台任务的数据模型与调度计算
package task

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleType 调度类型
type ScheduleType string

const (
	ScheduleOnce     ScheduleType = "once"     // 一次性任务
	ScheduleInterval ScheduleType = "interval" // 固定间隔任务
	ScheduleCron     ScheduleType = "cron"     // Cron 表达式任务
)

// cronParser 统一的 Cron 解析器
// 秒字段可选，同时兼容 5 段和 6 段表达式，支持 @hourly 等描述符
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule 任务调度定义
// Type 决定哪些字段生效：
//   - once:     RunAt
//   - interval: IntervalMs + 可选 StartAt
//   - cron:     Expression + 可选 Timezone
type Schedule struct {
	Type       ScheduleType `json:"type"`
	RunAt      *time.Time   `json:"run_at,omitempty"`
	IntervalMs int64        `json:"interval_ms,omitempty"`
	StartAt    *time.Time   `json:"start_at,omitempty"`
	Expression string       `json:"expression,omitempty"`
	Timezone   string       `json:"timezone,omitempty"`
}

// Validate 校验调度定义
// 非法的 Cron 表达式和时区在创建时就拒绝，而不是等到计算下次执行时间时才发现
func (s *Schedule) Validate() error {
	switch s.Type {
	case ScheduleOnce:
		if s.RunAt == nil {
			return fmt.Errorf("%w: once schedule requires run_at", ErrInvalidSchedule)
		}
	case ScheduleInterval:
		if s.IntervalMs <= 0 {
			return fmt.Errorf("%w: interval_ms must be positive, got %d", ErrInvalidSchedule, s.IntervalMs)
		}
	case ScheduleCron:
		if s.Expression == "" {
			return fmt.Errorf("%w: cron schedule requires expression", ErrInvalidSchedule)
		}
		if _, err := cronParser.Parse(s.Expression); err != nil {
			return fmt.Errorf("%w: invalid cron expression %q: %v", ErrInvalidSchedule, s.Expression, err)
		}
		if s.Timezone != "" {
			if _, err := time.LoadLocation(s.Timezone); err != nil {
				return fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, s.Timezone)
			}
		}
	default:
		return fmt.Errorf("%w: unknown schedule type %q", ErrInvalidSchedule, s.Type)
	}
	return nil
}

// Interval 返回间隔时长
func (s *Schedule) Interval() time.Duration {
	return time.Duration(s.IntervalMs) * time.Millisecond
}

// Location 返回 Cron 调度使用的时区，未配置或未知时定回 UTC
func (s *Schedule) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsRecurring 判断是否为重复性调度
func (s *Schedule) IsRecurring() bool {
	return s.Type == ScheduleInterval || s.Type == ScheduleCron
}
