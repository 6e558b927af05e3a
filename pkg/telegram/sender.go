package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender Telegram 消息发送器
// 实现 notify.Channel，把任务结果通知投递到指定的 chat
type Sender struct {
	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

// NewSender 创建消息发送器
func NewSender(token string, logger *slog.Logger) (*Sender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger.Info("telegram sender initialized", "bot_username", bot.Self.UserName)
	return &Sender{
		bot:    bot,
		logger: logger,
	}, nil
}

// Send 发送消息到 target 指定的 chat
// 优先按 MarkdownV2 发送，解析失败时降级为纯文本重试
func (s *Sender) Send(ctx context.Context, target, text string) error {
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidChatID, target)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	sent, err := s.bot.Send(msg)
	if err != nil {
		// 如果 Markdown 解析失败，尝试以纯文本发送
		s.logger.Warn("failed to send markdown message, retrying as plain text",
			"chat_id", chatID,
			"error", err,
		)
		msg.ParseMode = ""
		sent, err = s.bot.Send(msg)
		if err != nil {
			return fmt.Errorf("failed to send notification: %w", err)
		}
	}

	s.logger.Debug("notification sent",
		"chat_id", chatID,
		"message_id", sent.MessageID,
	)
	return nil
}
