package services

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"airdropbot/internal/models"
)

// EventHandler is implemented by ConversationEngine.
type EventHandler interface {
	Handle(ctx context.Context, ev models.Event) (models.Outbound, error)
}

// Messenger delivers outbounds back to the user.
type Messenger interface {
	Send(ctx context.Context, out models.Outbound) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// UpdateDispatcher converts Telegram updates into engine events.
// Updates of one user are handled strictly in arrival order by a single
// worker goroutine; different users run in parallel. A panic inside a
// handler is logged and does not affect other updates.
type UpdateDispatcher struct {
	engine    EventHandler
	messenger Messenger
	log       *zap.Logger

	ctx context.Context
	wg  sync.WaitGroup

	mu     sync.Mutex
	queues map[int64][]tgbotapi.Update
}

// NewUpdateDispatcher: ctx ограничивает жизнь всех обработчиков.
func NewUpdateDispatcher(ctx context.Context, engine EventHandler, messenger Messenger, log *zap.Logger) *UpdateDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &UpdateDispatcher{
		engine:    engine,
		messenger: messenger,
		log:       log.Named("dispatch"),
		ctx:       ctx,
		queues:    make(map[int64][]tgbotapi.Update),
	}
}

// Dispatch queues upd behind earlier updates of the same user and returns
// immediately.
func (d *UpdateDispatcher) Dispatch(upd tgbotapi.Update) {
	userID := updateUserID(upd)

	d.mu.Lock()
	pending, running := d.queues[userID]
	d.queues[userID] = append(pending, upd)
	if !running {
		d.wg.Add(1)
	}
	d.mu.Unlock()

	if !running {
		go d.drain(userID)
	}
}

// drain обрабатывает очередь пользователя и завершается, когда она пуста.
func (d *UpdateDispatcher) drain(userID int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		pending := d.queues[userID]
		if len(pending) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		upd := pending[0]
		d.queues[userID] = pending[1:]
		d.mu.Unlock()

		d.handleSafe(upd)
	}
}

func (d *UpdateDispatcher) handleSafe(upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic while handling update", zap.Int("update_id", upd.UpdateID), zap.Any("panic", r))
		}
	}()
	d.handle(d.ctx, upd)
}

// Wait blocks until all queued updates are done.
func (d *UpdateDispatcher) Wait() {
	d.wg.Wait()
}

// updateUserID is the queue key; updates without a sender share key 0.
func updateUserID(upd tgbotapi.Update) int64 {
	if cq := upd.CallbackQuery; cq != nil && cq.From != nil {
		return cq.From.ID
	}
	if msg := upd.Message; msg != nil && msg.From != nil {
		return msg.From.ID
	}
	return 0
}

func (d *UpdateDispatcher) handle(ctx context.Context, upd tgbotapi.Update) {
	if cq := upd.CallbackQuery; cq != nil {
		if err := d.messenger.AnswerCallback(ctx, cq.ID); err != nil {
			d.log.Warn("answer callback failed", zap.Error(err))
		}
	}

	ev, kind := ToEvent(upd)
	switch kind {
	case UpdateIgnored:
		return
	case UpdateUnknownCommand:
		d.reply(ctx, models.Outbound{Kind: models.OutboundUnexpected, UserID: ev.UserID, ChatID: ev.ChatID})
		return
	}

	out, err := d.engine.Handle(ctx, ev)
	if err != nil {
		d.log.Error("event failed",
			zap.Int64("user_id", ev.UserID),
			zap.String("event", string(ev.Kind)),
			zap.Error(err),
		)
		out = models.Outbound{
			Kind:   models.OutboundInvalid,
			Reason: models.ReasonTransientFailure,
			UserID: ev.UserID,
			ChatID: ev.ChatID,
		}
		if out.ChatID == 0 {
			out.ChatID = ev.UserID
		}
	}
	d.reply(ctx, out)
}

func (d *UpdateDispatcher) reply(ctx context.Context, out models.Outbound) {
	if err := d.messenger.Send(ctx, out); err != nil {
		d.log.Warn("reply failed", zap.Int64("user_id", out.UserID), zap.Error(err))
	}
}

type UpdateKind int

const (
	UpdateEvent UpdateKind = iota
	UpdateIgnored
	UpdateUnknownCommand
)

// ToEvent maps a Telegram update to an engine event.
// Only private chats are handled: in groups every message would otherwise be
// read as a wallet address.
func ToEvent(upd tgbotapi.Update) (models.Event, UpdateKind) {
	if cq := upd.CallbackQuery; cq != nil {
		if cq.From == nil || cq.Data != VerifyCallbackData {
			return models.Event{}, UpdateIgnored
		}
		ev := models.Event{
			Kind:       models.EventVerify,
			UserID:     cq.From.ID,
			FirstName:  cq.From.FirstName,
			CallbackID: cq.ID,
		}
		if cq.Message != nil && cq.Message.Chat != nil {
			ev.ChatID = cq.Message.Chat.ID
		}
		return ev, UpdateEvent
	}

	msg := upd.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
		return models.Event{}, UpdateIgnored
	}
	ev := models.Event{UserID: msg.From.ID, ChatID: msg.Chat.ID, FirstName: msg.From.FirstName}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			ev.Kind = models.EventStart
		case "cancel":
			ev.Kind = models.EventCancel
		default:
			return ev, UpdateUnknownCommand
		}
		return ev, UpdateEvent
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		// стикеры, фото и прочее без текста
		return models.Event{}, UpdateIgnored
	}
	ev.Kind = models.EventText
	ev.Text = msg.Text
	return ev, UpdateEvent
}
