package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateDispatcher is satisfied by *services.UpdateDispatcher.
type UpdateDispatcher interface {
	Dispatch(upd tgbotapi.Update)
}

type IntegrationsHandler struct {
	Dispatcher UpdateDispatcher
	Secret     string
	log        *zap.Logger
}

func NewIntegrationsHandler(dispatcher UpdateDispatcher, secret string, log *zap.Logger) *IntegrationsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &IntegrationsHandler{Dispatcher: dispatcher, Secret: secret, log: log.Named("tg.webhook")}
}

// Webhook принимает апдейты от Telegram. Отвечаем 200 сразу: обработка идёт
// асинхронно, а не-200 заставит Telegram слать апдейт повторно.
func (h *IntegrationsHandler) Webhook(c *gin.Context) {
	if h.Secret != "" {
		got := c.GetHeader(telegramSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
			h.log.Warn("webhook secret mismatch", zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
	}

	var upd tgbotapi.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		h.log.Warn("bind json error", zap.Error(err))
		c.Status(http.StatusOK)
		return
	}
	h.log.Debug("incoming update", zap.Int("update_id", upd.UpdateID))

	h.Dispatcher.Dispatch(upd)
	c.Status(http.StatusOK)
}
