package task

import "fmt"

// validTransitions 任务状态机的合法迁移表
// completed 和 failed 是终结状态，没有出边
var validTransitions = map[TaskStatus]map[TaskStatus]bool{
	StatusActive: {
		StatusRunning: true, // 派发执行
		StatusPaused:  true, // 暂停
	},
	StatusRunning: {
		StatusActive:    true, // 执行结束，等待下次调度
		StatusPaused:    true, // 执行期间收到暂停请求
		StatusCompleted: true, // 不会再触发，正常终结
		StatusFailed:    true, // 失败终结
	},
	StatusPaused: {
		StatusActive:    true, // 恢复
		StatusCompleted: true, // 恢复时发现调度已耗尽，直接终结
	},
}

// CanTransition 判断状态迁移是否合法
func CanTransition(from, to TaskStatus) bool {
	return validTransitions[from][to]
}

// Transition 执行状态迁移，非法迁移返回 ErrInvalidTransition 且不修改任务
func Transition(t *AgentTask, to TaskStatus) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	return nil
}
