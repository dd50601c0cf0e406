package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"amega-vpn-bot/internal/db"
	"amega-vpn-bot/internal/services"

	"github.com/google/uuid"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func usernameOf(u *tgbotapi.User) *string {
	if u == nil || u.UserName == "" {
		return nil
	}
	return strPtr("@" + u.UserName)
}

// submitReceipt stores the photo, records a pending payment and forwards the
// receipt to the admin chat. The user moves on to AwaitingAdminDecision even
// when forwarding fails; the payment is still listed in the admin panel.
func (c *Controller) submitReceipt(ctx context.Context, msg *tgbotapi.Message, conv Conversation) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	photo := msg.Photo[len(msg.Photo)-1]

	path, err := c.saveReceipt(ctx, userID, photo.FileID)
	if err != nil {
		c.log.Error("save receipt", zap.Int64("user_id", userID), zap.Error(err))
		c.send(chatID, receiptFailedText, supportKeyboard(c.SupportURL))
		return
	}

	p, err := c.Workflow.Submit(ctx, services.Submission{
		UserID:      userID,
		Username:    usernameOf(msg.From),
		Phone:       strPtr(conv.Phone),
		ReceiptPath: &path,
	})
	if err != nil {
		c.log.Error("submit payment", zap.Int64("user_id", userID), zap.Error(err))
		c.send(chatID, receiptFailedText, supportKeyboard(c.SupportURL))
		return
	}

	if err := c.forwardReceipt(p, path); err != nil {
		c.log.Error("forward receipt to admin", zap.Uint("payment_id", p.ID), zap.Error(err))
		c.Alert.Alert(fmt.Sprintf("Чек по платежу #%d не доставлен администратору: %v", p.ID, err))
	}

	conv.State = StateAwaitingAdminDecision
	c.setState(ctx, userID, conv)
	c.send(chatID, receiptAcceptedText, MainMenu())
}

func (c *Controller) saveReceipt(ctx context.Context, userID int64, fileID string) (string, error) {
	url, err := c.Bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download receipt: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download receipt: status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(c.ReceiptsDir, 0o755); err != nil {
		return "", fmt.Errorf("create receipts dir: %w", err)
	}
	path := filepath.Join(c.ReceiptsDir, fmt.Sprintf("%d_%s.jpg", userID, uuid.NewString()))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write receipt: %w", err)
	}
	return path, f.Close()
}

func (c *Controller) forwardReceipt(p db.Payment, path string) error {
	if c.AdminBot == nil || c.Guard.AdminID == 0 {
		return errors.New("admin chat not configured")
	}
	photo := tgbotapi.NewPhoto(c.Guard.AdminID, tgbotapi.FilePath(path))
	photo.Caption = paymentCard(p)
	photo.ParseMode = tgbotapi.ModeHTML
	photo.ReplyMarkup = decisionKeyboard(p.ID)
	if _, err := c.AdminBot.Send(photo); err != nil {
		return fmt.Errorf("%w: %v", services.ErrTransportUnavailable, err)
	}
	return nil
}

// checkPayment answers free text while a receipt is under review.
func (c *Controller) checkPayment(ctx context.Context, chatID, userID int64, conv Conversation) {
	p, err := c.Workflow.Latest(ctx, userID)
	if errors.Is(err, services.ErrNotFound) {
		c.reset(ctx, userID, conv)
		c.send(chatID, useMenuText, MainMenu())
		return
	}
	if err != nil {
		c.log.Error("latest payment", zap.Int64("user_id", userID), zap.Error(err))
		c.send(chatID, statusFailedText, nil)
		return
	}

	switch p.Status {
	case db.PaymentPending:
		c.send(chatID, stillCheckingText, nil)
	case db.PaymentApproved:
		c.reset(ctx, userID, conv)
		if p.IssuedKeyID == nil {
			c.status(ctx, chatID, userID)
			return
		}
		key, err := c.Store.Keys().Get(ctx, *p.IssuedKeyID)
		if err != nil {
			c.log.Error("load issued key", zap.Uint("payment_id", p.ID), zap.Error(err))
			c.status(ctx, chatID, userID)
			return
		}
		expires := p.NextPaymentDate
		if key.ActivationDate != nil {
			expires = key.ActivationDate.Add(services.EntitlementPeriod)
		}
		c.send(chatID, keyIssuedText(key.Key, expires), issuedKeyboard(key.ID))
	case db.PaymentRejected:
		c.reset(ctx, userID, conv)
		c.send(chatID, rejectedText, supportKeyboard(c.SupportURL))
	}
}
