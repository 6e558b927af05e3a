package task

import "errors"

// 错误定义
var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidSchedule   = errors.New("invalid schedule")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTaskNotRunnable   = errors.New("task is not in a runnable status")
	ErrMessageNotFound   = errors.New("inbox message not found")
)
