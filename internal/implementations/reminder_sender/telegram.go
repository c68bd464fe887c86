package remindersender

import (
	"context"
	"errors"
	"fmt"
	"repeatme/internal/core/domain/bot"
	e "repeatme/internal/core/domain/errors"
	"repeatme/internal/core/domain/reminder"
	"strconv"
)

type TelegramSender struct {
	botMessageSender bot.TelegramBotMessageSender
}

func NewTelegram(botMessageSender bot.TelegramBotMessageSender) *TelegramSender {
	if botMessageSender == nil {
		panic(e.NewNilArgumentError("botMessageSender"))
	}
	return &TelegramSender{botMessageSender: botMessageSender}
}

func ReminderText(payload string) string {
	return "🔁 Time to review:\n📘 " + payload
}

func (s *TelegramSender) Deliver(ctx context.Context, address string, payload string) error {
	chatID, err := strconv.ParseInt(address, 10, 64)
	if err != nil {
		return reminder.PermanentFailure(fmt.Errorf("invalid telegram chat id %q", address))
	}

	err = s.botMessageSender.SendTelegramBotMessage(
		ctx,
		bot.TelegramBotMessage{
			ChatID: bot.TelegramChatID(chatID),
			Text:   ReminderText(payload),
		},
	)
	var apiErr *bot.TelegramAPIError
	if errors.As(err, &apiErr) && apiErr.IsPermanent() {
		return reminder.PermanentFailure(err)
	}
	return err
}
