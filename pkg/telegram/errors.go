package telegram

import "errors"

var (
	// ErrTokenRequired Token 未配置
	ErrTokenRequired = errors.New("telegram bot token is required")

	// ErrInvalidChatID 通知目标不是合法的 chat_id
	ErrInvalidChatID = errors.New("notification target is not a valid telegram chat id")
)
