package logger

import (
	"fmt"
	"runtime/debug"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Alerter sends critical messages to the admin chat.
type Alerter struct {
	bot     Sender
	adminID int64
	log     *zap.Logger
}

// NewAlerter returns an alerter that only logs when bot is nil or adminID is 0.
func NewAlerter(bot Sender, adminID int64, log *zap.Logger) *Alerter {
	return &Alerter{bot: bot, adminID: adminID, log: log.Named("alert")}
}

func (a *Alerter) Alert(msg string) {
	a.log.Warn("admin alert", zap.String("msg", msg))
	if a.bot == nil || a.adminID == 0 {
		return
	}
	if _, err := a.bot.Send(tgbotapi.NewMessage(a.adminID, "[ALERT] "+msg)); err != nil {
		a.log.Error("alert delivery failed", zap.Error(err))
	}
}

// Recover must be deferred directly. It logs and alerts a panic and lets
// the caller continue.
func (a *Alerter) Recover(where string) {
	r := recover()
	if r == nil {
		return
	}
	a.log.Error("panic recovered",
		zap.String("where", where),
		zap.Any("panic", r),
		zap.ByteString("stack", debug.Stack()),
	)
	a.Alert(fmt.Sprintf("Panic in %s: %v", where, r))
}
