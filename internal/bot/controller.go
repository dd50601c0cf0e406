package bot

import (
	"context"
	"net/http"
	"time"

	"amega-vpn-bot/internal/admin"
	"amega-vpn-bot/internal/db"
	"amega-vpn-bot/internal/logger"
	"amega-vpn-bot/internal/metrics"
	"amega-vpn-bot/internal/services"
	"amega-vpn-bot/internal/xui"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender is the part of *tgbotapi.BotAPI the controllers use.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// PanelStats looks up live traffic for a key.
type PanelStats interface {
	ClientStatus(ctx context.Context, email string, id *string) (xui.ClientStatus, error)
}

// Deps wires a Controller. Fields marked per role may be nil for the other role.
type Deps struct {
	Role         Role
	Bot          Sender
	Guard        admin.Guard
	Store        db.Store
	Workflow     *services.Workflow
	Entitlements *services.EntitlementCalculator
	States       StateStore
	Alert        *logger.Alerter
	Log          *zap.Logger

	// user role
	AdminBot    Sender
	Panel       PanelStats
	Limiter     *RateLimiter
	ReceiptsDir string
	SupportURL  string
	PriceRUB    int
	HTTPClient  *http.Client

	// admin role
	Loader  *services.KeyLoader
	Monitor *services.PanelMonitor
	Backups *admin.Backuper
}

// Controller dispatches chat updates for one bot role.
type Controller struct {
	Deps
	log *zap.Logger
}

func NewController(d Deps) *Controller {
	if d.States == nil {
		d.States = NewMemoryStateStore()
	}
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if d.ReceiptsDir == "" {
		d.ReceiptsDir = "receipts"
	}
	return &Controller{Deps: d, log: d.Log.Named(string(d.Role) + "_bot")}
}

// HandleUpdate processes one update. A panic is recovered and alerted so
// the update loop keeps running.
func (c *Controller) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer c.Alert.Recover(string(c.Role) + " update")

	switch {
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		if cb.From == nil {
			return
		}
		metrics.IncUpdate(string(c.Role), "callback")
		c.log.Debug("callback", zap.Int64("user_id", cb.From.ID), zap.String("data", cb.Data))
		if c.Role == RoleAdmin {
			c.adminCallback(ctx, cb)
		} else {
			c.userCallback(ctx, cb)
		}
	case update.Message != nil && update.Message.From != nil:
		msg := update.Message
		metrics.IncUpdate(string(c.Role), messageKind(msg))
		if c.Role == RoleAdmin {
			c.adminMessage(ctx, msg)
		} else {
			c.userMessage(ctx, msg)
		}
	}
}

func messageKind(msg *tgbotapi.Message) string {
	switch {
	case msg.IsCommand():
		return "command"
	case len(msg.Photo) > 0:
		return "photo"
	case msg.Contact != nil:
		return "contact"
	case msg.Document != nil:
		return "document"
	default:
		return "text"
	}
}

func (c *Controller) state(ctx context.Context, userID int64) Conversation {
	conv, err := c.States.Get(ctx, userID)
	if err != nil {
		c.log.Error("load conversation", zap.Int64("user_id", userID), zap.Error(err))
	}
	return conv
}

func (c *Controller) setState(ctx context.Context, userID int64, conv Conversation) {
	if err := c.States.Set(ctx, userID, conv); err != nil {
		c.log.Error("save conversation", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// reset returns the conversation to Idle, keeping the captured phone.
func (c *Controller) reset(ctx context.Context, userID int64, conv Conversation) Conversation {
	conv = Conversation{Phone: conv.Phone}
	c.setState(ctx, userID, conv)
	return conv
}

func (c *Controller) send(chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := c.Bot.Send(msg); err != nil {
		c.log.Warn("send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (c *Controller) answer(cb *tgbotapi.CallbackQuery, text string) {
	if _, err := c.Bot.Request(tgbotapi.NewCallback(cb.ID, text)); err != nil {
		c.log.Debug("answer callback failed", zap.Error(err))
	}
}
