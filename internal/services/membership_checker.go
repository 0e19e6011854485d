package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"airdropbot/internal/models"
)

// MembershipChecker reports a user's status in one chat.
type MembershipChecker interface {
	GetStatus(ctx context.Context, chatID, userID int64) (models.MembershipStatus, error)
}

// chatMemberGetter is the slice of *tgbotapi.BotAPI the checker needs.
type chatMemberGetter interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

type telegramMembershipChecker struct {
	bot chatMemberGetter
}

// NewTelegramMembershipChecker: проверка подписки через getChatMember.
// Бот должен быть администратором канала, иначе Telegram вернёт ошибку.
func NewTelegramMembershipChecker(bot chatMemberGetter) MembershipChecker {
	return &telegramMembershipChecker{bot: bot}
}

func (c *telegramMembershipChecker) GetStatus(ctx context.Context, chatID, userID int64) (models.MembershipStatus, error) {
	type result struct {
		member tgbotapi.ChatMember
		err    error
	}
	// tgbotapi не принимает context, поэтому ждём ответ в отдельной горутине.
	done := make(chan result, 1)
	go func() {
		m, err := c.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
			ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
		})
		done <- result{member: m, err: err}
	}()

	select {
	case <-ctx.Done():
		return models.MembershipUnknown, fmt.Errorf("get chat member %d: %w", chatID, ctx.Err())
	case r := <-done:
		if r.err != nil {
			if isUserNotFound(r.err) {
				return models.MembershipLeft, nil
			}
			return models.MembershipUnknown, fmt.Errorf("get chat member %d: %w", chatID, r.err)
		}
		return models.ParseMembershipStatus(r.member.Status), nil
	}
}

// isUserNotFound: пользователь ни разу не заходил в чат, считаем "не подписан".
func isUserNotFound(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return apiErr.Code == 400 && (strings.Contains(msg, "user not found") || strings.Contains(msg, "participant_id_invalid"))
}
