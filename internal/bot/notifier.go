package bot

import (
	"context"
	"fmt"

	"amega-vpn-bot/internal/db"
	"amega-vpn-bot/internal/services"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UserNotifier delivers workflow messages through the user-facing bot,
// whichever process triggers them.
type UserNotifier struct {
	bot        Sender
	supportURL string
}

var _ services.Notifier = (*UserNotifier)(nil)

func NewUserNotifier(bot Sender, supportURL string) *UserNotifier {
	return &UserNotifier{bot: bot, supportURL: supportURL}
}

func (n *UserNotifier) send(msg tgbotapi.MessageConfig) error {
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send to %d: %w", msg.ChatID, err)
	}
	return nil
}

func (n *UserNotifier) KeyIssued(_ context.Context, p db.Payment, key db.VPNKey) error {
	expires := p.NextPaymentDate
	if key.ActivationDate != nil {
		expires = key.ActivationDate.Add(services.EntitlementPeriod)
	}
	msg := tgbotapi.NewMessage(p.UserID, keyIssuedText(key.Key, expires))
	msg.ReplyMarkup = issuedKeyboard(key.ID)
	return n.send(msg)
}

func (n *UserNotifier) PaymentRejected(_ context.Context, p db.Payment) error {
	msg := tgbotapi.NewMessage(p.UserID, rejectedText)
	msg.ReplyMarkup = supportKeyboard(n.supportURL)
	return n.send(msg)
}

func (n *UserNotifier) KeysExhausted(_ context.Context, p db.Payment) error {
	msg := tgbotapi.NewMessage(p.UserID, keysExhaustedText)
	msg.ReplyMarkup = supportKeyboard(n.supportURL)
	return n.send(msg)
}

func (n *UserNotifier) RenewalReminder(_ context.Context, key db.VPNKey, days int) error {
	if key.UserID == nil {
		return fmt.Errorf("key %d has no owner", key.ID)
	}
	msg := tgbotapi.NewMessage(*key.UserID, reminderText(days))
	msg.ReplyMarkup = MainMenu()
	return n.send(msg)
}
