package bot

import (
	"context"
	"errors"
	"strings"

	"amega-vpn-bot/internal/services"
	"amega-vpn-bot/internal/xui"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (c *Controller) limited(userID, chatID int64, action string) bool {
	if c.Limiter == nil || !c.Limiter.IsLimited(userID, action) {
		return false
	}
	c.send(chatID, tooFastText, nil)
	return true
}

func (c *Controller) userMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	conv := c.state(ctx, userID)

	if msg.Contact != nil {
		if msg.Contact.UserID != 0 && msg.Contact.UserID != userID {
			c.send(chatID, useMenuText, MainMenu())
			return
		}
		conv.Phone = msg.Contact.PhoneNumber
		c.setState(ctx, userID, conv)
		c.send(chatID, phoneSaved, MainMenu())
		return
	}

	if msg.IsCommand() {
		c.reset(ctx, userID, conv)
		switch msg.Command() {
		case "start", "cancel":
			c.send(chatID, welcomeText, MainMenu())
		case "help":
			c.send(chatID, helpText, MainMenu())
		default:
			c.send(chatID, useMenuText, MainMenu())
		}
		return
	}

	text := strings.TrimSpace(msg.Text)
	if isMenuButton(text) {
		conv = c.reset(ctx, userID, conv)
		switch text {
		case BtnBuy:
			if !c.limited(userID, chatID, "buy") {
				c.buy(ctx, chatID, userID, conv)
			}
		case BtnStatus:
			if !c.limited(userID, chatID, "status") {
				c.status(ctx, chatID, userID)
			}
		case BtnSupport:
			if !c.limited(userID, chatID, "support") {
				c.send(chatID, supportText(c.SupportURL), supportKeyboard(c.SupportURL))
			}
		case BtnAbout:
			c.send(chatID, aboutText, supportKeyboard(c.SupportURL))
		}
		return
	}

	switch conv.State {
	case StateAwaitingPayment:
		if len(msg.Photo) == 0 {
			c.send(chatID, sendScreenshotText, nil)
			return
		}
		if !c.limited(userID, chatID, "receipt") {
			c.submitReceipt(ctx, msg, conv)
		}
	case StateAwaitingAdminDecision:
		c.checkPayment(ctx, chatID, userID, conv)
	default:
		c.send(chatID, useMenuText, MainMenu())
	}
}

func (c *Controller) userCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	parsed, err := ParseCallback(cb.Data)
	if err != nil || cb.Message == nil {
		c.log.Debug("unknown callback", zap.String("data", cb.Data), zap.Error(err))
		c.answer(cb, useMenuText)
		return
	}
	userID := cb.From.ID
	chatID := cb.Message.Chat.ID

	switch parsed.Action {
	case ActionCopy:
		if !c.limited(userID, chatID, "copy") {
			c.copyKey(ctx, chatID, userID, parsed.ID)
		}
	case ActionVPNStatus:
		if !c.limited(userID, chatID, "status") {
			c.status(ctx, chatID, userID)
		}
	case ActionRenew:
		if !c.limited(userID, chatID, "renew") {
			c.startPayment(ctx, chatID, userID, c.state(ctx, userID))
		}
	default:
		c.answer(cb, useMenuText)
		return
	}
	c.answer(cb, "")
}

// buy shows the current key while it is active; otherwise it starts a payment.
func (c *Controller) buy(ctx context.Context, chatID, userID int64, conv Conversation) {
	ent, err := c.Entitlements.Check(ctx, userID)
	if err != nil {
		c.log.Error("entitlement check", zap.Int64("user_id", userID), zap.Error(err))
		c.send(chatID, statusFailedText, nil)
		return
	}
	if ent.Status == services.StatusActive {
		c.send(chatID, activeKeyText(ent.Key.Key, ent.DaysLeft), statusKeyboard(ent.Key.ID, true))
		return
	}
	c.startPayment(ctx, chatID, userID, conv)
}

func (c *Controller) startPayment(ctx context.Context, chatID, userID int64, conv Conversation) {
	conv.State = StateAwaitingPayment
	c.setState(ctx, userID, conv)
	c.send(chatID, paymentText(c.PriceRUB), supportKeyboard(c.SupportURL))
}

func (c *Controller) status(ctx context.Context, chatID, userID int64) {
	ent, err := c.Entitlements.Check(ctx, userID)
	if err != nil {
		c.log.Error("entitlement check", zap.Int64("user_id", userID), zap.Error(err))
		c.send(chatID, statusFailedText, nil)
		return
	}
	if ent.Status == services.StatusNoKey {
		c.send(chatID, noKeyStatusText, MainMenu())
		return
	}

	var (
		panel    *xui.ClientStatus
		panelErr error
	)
	if c.Panel != nil {
		email := ""
		if ent.Key.XUIIdentifier != nil {
			email = *ent.Key.XUIIdentifier
		}
		st, err := c.Panel.ClientStatus(ctx, email, ent.Key.XUIID)
		switch {
		case err == nil:
			panel = &st
		case errors.Is(err, xui.ErrClientNotFound):
			c.log.Info("key not found on panel", zap.Uint("key_id", ent.Key.ID))
			panelErr = err
		default:
			c.log.Warn("panel stats unavailable", zap.Error(err))
			panelErr = err
		}
	}
	c.send(chatID, statusText(ent, panel, panelErr), statusKeyboard(ent.Key.ID, ent.Status == services.StatusActive))
}

// copyKey resends a key. On the user bot only the owner may copy it.
func (c *Controller) copyKey(ctx context.Context, chatID, userID int64, keyID uint) {
	key, err := c.Store.Keys().Get(ctx, keyID)
	if err != nil {
		if !errors.Is(err, services.ErrNotFound) {
			c.log.Error("load key", zap.Uint("key_id", keyID), zap.Error(err))
		}
		c.send(chatID, copyFailText, nil)
		return
	}
	if c.Role == RoleUser && (key.UserID == nil || *key.UserID != userID) {
		c.log.Warn("copy of foreign key refused", zap.Uint("key_id", keyID), zap.Int64("user_id", userID))
		c.send(chatID, copyFailText, nil)
		return
	}
	c.send(chatID, keyText(key.Key), nil)
}
