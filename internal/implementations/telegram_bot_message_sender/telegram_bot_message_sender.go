package telegrambotmessagesender

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"repeatme/internal/core/domain/bot"
	"time"
)

type telegramMessage struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

type TelegramBotMessageSender struct {
	httpClient http.Client
	baseURL    url.URL
	token      string
}

func New(
	baseURL url.URL,
	token string,
	timeout time.Duration,
) *TelegramBotMessageSender {
	return &TelegramBotMessageSender{
		baseURL:    baseURL,
		token:      token,
		httpClient: http.Client{Timeout: timeout},
	}
}

func (s *TelegramBotMessageSender) SendTelegramBotMessage(ctx context.Context, m bot.TelegramBotMessage) error {
	if s.token == "" {
		return errors.New("telegram bot token is not configured")
	}
	url := s.baseURL.JoinPath(fmt.Sprintf("bot%s", s.token), "sendMessage")
	var body bytes.Buffer
	encoder := json.NewEncoder(&body)
	err := encoder.Encode(telegramMessage{ChatID: int64(m.ChatID), Text: m.Text})
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url.String(), &body)
	if err != nil {
		return err
	}
	request.Header.Add("content-type", "application/json")
	resp, err := s.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		apiErr := &bot.TelegramAPIError{StatusCode: resp.StatusCode, Description: string(raw)}
		var decoded telegramResponse
		if json.Unmarshal(raw, &decoded) == nil && decoded.Description != "" {
			apiErr.Description = decoded.Description
		}
		return apiErr
	}
	return nil
}
