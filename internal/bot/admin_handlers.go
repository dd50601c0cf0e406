package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"amega-vpn-bot/internal/db"
	"amega-vpn-bot/internal/logger"
	"amega-vpn-bot/internal/services"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (c *Controller) adminMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	if err := c.Guard.Authorize(userID); err != nil {
		c.log.Warn("unauthorized admin access", zap.Int64("user_id", userID))
		c.send(chatID, noAccessText, nil)
		return
	}
	conv := c.state(ctx, userID)

	if msg.IsCommand() {
		logger.LogAdminAction(c.log, userID, msg.Command(), msg.CommandArguments())
		switch msg.Command() {
		case "start", "admin":
			c.reset(ctx, userID, conv)
			c.send(chatID, adminPanelText, adminPanelKeyboard())
		case "cancel":
			c.reset(ctx, userID, conv)
			if conv.State == StateAwaitingKeys {
				c.send(chatID, addKeysCanceled, backKeyboard(ActionManageKeys))
			} else {
				c.send(chatID, adminPanelText, adminPanelKeyboard())
			}
		case "payments":
			c.showPayments(ctx, chatID)
		case "stats":
			c.showStats(ctx, chatID)
		case "backup":
			c.sendBackup(ctx, chatID)
		default:
			c.send(chatID, adminPanelText, adminPanelKeyboard())
		}
		return
	}

	if conv.State == StateAwaitingKeys {
		c.addKeys(ctx, chatID, userID, conv, msg.Text)
		return
	}
	c.send(chatID, adminPanelText, adminPanelKeyboard())
}

func (c *Controller) adminCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	userID := cb.From.ID
	if err := c.Guard.Authorize(userID); err != nil {
		c.log.Warn("unauthorized admin callback", zap.Int64("user_id", userID), zap.String("data", cb.Data))
		c.answer(cb, "Нет доступа")
		return
	}
	parsed, err := ParseCallback(cb.Data)
	if err != nil || cb.Message == nil {
		c.log.Debug("unknown callback", zap.String("data", cb.Data), zap.Error(err))
		c.answer(cb, "Неизвестная команда")
		return
	}
	chatID := cb.Message.Chat.ID
	logger.LogAdminAction(c.log, userID, parsed.Action, fmt.Sprint(parsed.ID))

	switch parsed.Action {
	case ActionApprove:
		c.decide(ctx, cb, parsed.ID, services.DecisionApprove)
		return
	case ActionReject:
		c.decide(ctx, cb, parsed.ID, services.DecisionReject)
		return
	case ActionAdminPanel:
		c.reset(ctx, userID, c.state(ctx, userID))
		c.send(chatID, adminPanelText, adminPanelKeyboard())
	case ActionShowPayments:
		c.showPayments(ctx, chatID)
	case ActionManageKeys:
		c.send(chatID, manageKeysText, manageKeysKeyboard())
	case ActionShowStats:
		c.showStats(ctx, chatID)
	case ActionListAll:
		c.listKeys(ctx, chatID, db.KeysAll)
	case ActionListFree:
		c.listKeys(ctx, chatID, db.KeysFree)
	case ActionListUsed:
		c.listKeys(ctx, chatID, db.KeysUsed)
	case ActionAddKeys:
		conv := c.state(ctx, userID)
		conv.State = StateAwaitingKeys
		c.setState(ctx, userID, conv)
		c.send(chatID, addKeysPrompt, nil)
	case ActionPanelStatus:
		c.panelStatus(ctx, chatID)
	case ActionBackup:
		c.answer(cb, "Создаю бэкап...")
		c.sendBackup(ctx, chatID)
		return
	case ActionCopy:
		c.copyKey(ctx, chatID, userID, parsed.ID)
	default:
		c.answer(cb, "Неизвестная команда")
		return
	}
	c.answer(cb, "")
}

// decide applies the admin's decision and rewrites the payment card in place.
func (c *Controller) decide(ctx context.Context, cb *tgbotapi.CallbackQuery, paymentID uint, d services.Decision) {
	chatID := cb.Message.Chat.ID
	out, err := c.Workflow.Decide(ctx, paymentID, d)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrNoKeyAvailable):
		c.answer(cb, "Нет доступных ключей")
		c.send(chatID, noKeysForAdmin, backKeyboard(ActionManageKeys))
		return
	case errors.Is(err, services.ErrAlreadyProcessed):
		c.answer(cb, "Платеж уже обработан")
		c.send(chatID, processedText, nil)
		return
	case errors.Is(err, services.ErrNotFound):
		c.answer(cb, "Платеж не найден")
		c.send(chatID, notFoundText, nil)
		return
	default:
		c.log.Error("decide payment", zap.Uint("payment_id", paymentID), zap.String("decision", string(d)), zap.Error(err))
		c.answer(cb, "Ошибка")
		c.send(chatID, "❌ Ошибка при обработке платежа: "+esc(err.Error()), nil)
		return
	}

	if d == services.DecisionApprove {
		c.answer(cb, "Платеж подтвержден")
	} else {
		c.answer(cb, "Платеж отклонен")
	}
	c.editDecided(cb.Message, out)
}

func (c *Controller) editDecided(msg *tgbotapi.Message, out services.Outcome) {
	text := decidedCard(out)
	var edit tgbotapi.Chattable
	if len(msg.Photo) > 0 {
		e := tgbotapi.NewEditMessageCaption(msg.Chat.ID, msg.MessageID, text)
		e.ParseMode = tgbotapi.ModeHTML
		edit = e
	} else {
		e := tgbotapi.NewEditMessageText(msg.Chat.ID, msg.MessageID, text)
		e.ParseMode = tgbotapi.ModeHTML
		edit = e
	}
	if _, err := c.Bot.Request(edit); err != nil {
		c.log.Warn("edit payment card", zap.Int("message_id", msg.MessageID), zap.Error(err))
		c.send(msg.Chat.ID, text, nil)
	}
}

func (c *Controller) showPayments(ctx context.Context, chatID int64) {
	pending, err := c.Workflow.Pending(ctx)
	if err != nil {
		c.log.Error("list pending payments", zap.Error(err))
		c.send(chatID, "❌ Ошибка при получении списка платежей.", nil)
		return
	}
	if len(pending) == 0 {
		c.send(chatID, noPendingText, backKeyboard(ActionAdminPanel))
		return
	}
	for _, p := range pending {
		if p.ReceiptPath != nil {
			if _, err := os.Stat(*p.ReceiptPath); err == nil {
				photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(*p.ReceiptPath))
				photo.Caption = paymentCard(p)
				photo.ParseMode = tgbotapi.ModeHTML
				photo.ReplyMarkup = decisionKeyboard(p.ID)
				_, err := c.Bot.Send(photo)
				if err == nil {
					continue
				}
				c.log.Warn("send receipt photo", zap.Uint("payment_id", p.ID), zap.Error(err))
			}
		}
		c.send(chatID, missingReceiptCard(p), decisionKeyboard(p.ID))
	}
}

func (c *Controller) showStats(ctx context.Context, chatID int64) {
	counts, err := c.Store.Keys().Count(ctx)
	if err != nil {
		c.log.Error("count keys", zap.Error(err))
		c.send(chatID, "❌ Ошибка при получении статистики.", nil)
		return
	}
	c.send(chatID, statsText(counts), backKeyboard(ActionAdminPanel))
}

func (c *Controller) listKeys(ctx context.Context, chatID int64, filter db.KeyFilter) {
	keys, err := c.Store.Keys().List(ctx, filter)
	if err != nil {
		c.log.Error("list keys", zap.String("filter", string(filter)), zap.Error(err))
		c.send(chatID, "❌ Ошибка при получении списка ключей.", nil)
		return
	}
	parts := keyListMessages(keys, filter)
	for i, part := range parts {
		var markup any
		if i == len(parts)-1 {
			markup = backKeyboard(ActionManageKeys)
		}
		c.send(chatID, part, markup)
	}
}

func (c *Controller) addKeys(ctx context.Context, chatID, userID int64, conv Conversation, text string) {
	if strings.TrimSpace(text) == "" {
		c.send(chatID, addKeysEmpty, nil)
		return
	}
	rep, err := c.Loader.AddBatch(ctx, text)
	if err != nil {
		c.log.Error("add keys", zap.Error(err))
		c.send(chatID, "❌ Ошибка при добавлении ключей: "+esc(err.Error()), backKeyboard(ActionManageKeys))
		return
	}
	logger.LogAdminAction(c.log, userID, "add_keys", fmt.Sprintf("added=%d duplicates=%d malformed=%d", rep.Added, rep.Duplicates, rep.Malformed))
	c.reset(ctx, userID, conv)
	c.send(chatID, addKeysResult(rep), backKeyboard(ActionManageKeys))
}

func (c *Controller) panelStatus(ctx context.Context, chatID int64) {
	var st services.PanelStatus
	if c.Monitor != nil {
		st = c.Monitor.Check(ctx)
	}
	c.send(chatID, panelStatusText(st), backKeyboard(ActionAdminPanel))
}

func (c *Controller) sendBackup(ctx context.Context, chatID int64) {
	if c.Backups == nil {
		c.send(chatID, backupFailText, nil)
		return
	}
	path, err := c.Backups.Backup(ctx, "manual")
	if err != nil {
		c.log.Error("manual backup", zap.Error(err))
		c.send(chatID, backupFailText, nil)
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	doc.Caption = "💾 Бэкап базы данных"
	if _, err := c.Bot.Send(doc); err != nil {
		c.log.Warn("send backup file", zap.String("path", path), zap.Error(err))
		c.send(chatID, "💾 Бэкап сохранен: <code>"+esc(path)+"</code>", nil)
	}
}
