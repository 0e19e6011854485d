package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"airdropbot/internal/metrics"
	"airdropbot/internal/models"
)

// telegramAPI is the part of *tgbotapi.BotAPI the transport uses.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// TelegramService delivers rendered outbounds and receives updates.
type TelegramService struct {
	bot      telegramAPI
	renderer *MessageRenderer
	limiter  *rate.Limiter
	log      *zap.Logger
}

// NewTelegramService paces all sends to perSecond messages (Telegram's global
// bot limit is about 30/s).
func NewTelegramService(bot telegramAPI, renderer *MessageRenderer, perSecond float64, log *zap.Logger) *TelegramService {
	if log == nil {
		log = zap.NewNop()
	}
	if perSecond <= 0 {
		perSecond = 25
	}
	return &TelegramService{
		bot:      bot,
		renderer: renderer,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
		log:      log.Named("tg"),
	}
}

// Send renders out and sends it. A 429 is retried once after the delay
// Telegram asks for.
func (t *TelegramService) Send(ctx context.Context, out models.Outbound) error {
	if out.ChatID == 0 {
		t.log.Warn("skip send: empty chat id", zap.String("kind", string(out.Kind)))
		return nil
	}
	msg := t.renderer.Render(out)

	err := t.send(ctx, msg)
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 429 && apiErr.RetryAfter > 0 {
		t.log.Warn("rate limited by telegram", zap.Int("retry_after", apiErr.RetryAfter))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(apiErr.RetryAfter) * time.Second):
		}
		err = t.send(ctx, msg)
	}
	metrics.ObserveSend(err)
	if err != nil {
		return fmt.Errorf("telegram send to %d: %w", out.ChatID, err)
	}
	t.log.Debug("sent", zap.Int64("chat_id", out.ChatID), zap.String("kind", string(out.Kind)))
	return nil
}

func (t *TelegramService) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := t.bot.Send(msg)
	return err
}

// AnswerCallback stops the spinner on an inline button.
func (t *TelegramService) AnswerCallback(ctx context.Context, callbackID string) error {
	if callbackID == "" {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := t.bot.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// SetWebhook registers url; secret is echoed back by Telegram in the
// X-Telegram-Bot-Api-Secret-Token header.
func (t *TelegramService) SetWebhook(url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	if _, err := t.bot.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("setWebhook: %w", err)
	}
	t.log.Info("webhook registered", zap.String("url", url))
	return nil
}

// DeleteWebhook switches the bot back to getUpdates.
func (t *TelegramService) DeleteWebhook() error {
	if _, err := t.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("deleteWebhook: %w", err)
	}
	return nil
}

// Poll long-polls getUpdates and hands every update to handle until ctx ends.
func (t *TelegramService) Poll(ctx context.Context, handle func(tgbotapi.Update)) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)
	t.log.Info("polling started")

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			t.log.Info("polling stopped")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return errors.New("updates channel closed")
			}
			handle(upd)
		}
	}
}
