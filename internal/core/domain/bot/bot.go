package bot

import (
	"context"
	"fmt"
	"net/http"
)

type TelegramChatID int64

type TelegramBotMessage struct {
	ChatID TelegramChatID
	Text   string
}

type TelegramBotMessageSender interface {
	SendTelegramBotMessage(ctx context.Context, m TelegramBotMessage) error
}

// TelegramAPIError is returned when the Bot API answers with a non-200 status.
type TelegramAPIError struct {
	StatusCode  int
	Description string
}

func (e *TelegramAPIError) Error() string {
	return fmt.Sprintf("telegram bot api responded with %d: %s", e.StatusCode, e.Description)
}

// IsPermanent reports whether resending the same message can never succeed,
// e.g. the chat does not exist or the bot was blocked by the user.
func (e *TelegramAPIError) IsPermanent() bool {
	return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusForbidden
}
