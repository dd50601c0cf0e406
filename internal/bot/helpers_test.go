package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"amega-vpn-bot/internal/admin"
	"amega-vpn-bot/internal/db"
	"amega-vpn-bot/internal/logger"
	"amega-vpn-bot/internal/services"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testAdminID    int64 = 1000
	testUserID     int64 = 42
	testSupportURL       = "https://t.me/support"
)

// fakeSender records everything a controller sends instead of calling Telegram.
type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	fileURL  string
	fail     bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return tgbotapi.Message{}, errors.New("network is unreachable")
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) GetFileDirectURL(string) (string, error) {
	if f.fileURL == "" {
		return "", errors.New("file not found")
	}
	return f.fileURL, nil
}

func chattableText(c tgbotapi.Chattable) (int64, string, bool) {
	switch v := c.(type) {
	case tgbotapi.MessageConfig:
		return v.ChatID, v.Text, true
	case tgbotapi.PhotoConfig:
		return v.ChatID, v.Caption, true
	case tgbotapi.DocumentConfig:
		return v.ChatID, v.Caption, true
	case tgbotapi.EditMessageCaptionConfig:
		return v.ChatID, v.Caption, true
	case tgbotapi.EditMessageTextConfig:
		return v.ChatID, v.Text, true
	}
	return 0, "", false
}

// textsTo returns the text of every message sent to chatID.
func (f *fakeSender) textsTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if id, text, ok := chattableText(c); ok && id == chatID {
			out = append(out, text)
		}
	}
	return out
}

func (f *fakeSender) lastTo(chatID int64) string {
	texts := f.textsTo(chatID)
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (f *fakeSender) photos() []tgbotapi.PhotoConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.PhotoConfig
	for _, c := range f.sent {
		if p, ok := c.(tgbotapi.PhotoConfig); ok {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeSender) edits() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.requests {
		switch c.(type) {
		case tgbotapi.EditMessageCaptionConfig, tgbotapi.EditMessageTextConfig:
			_, text, _ := chattableText(c)
			out = append(out, text)
		}
	}
	return out
}

func countContaining(texts []string, sub string) int {
	n := 0
	for _, t := range texts {
		if strings.Contains(t, sub) {
			n++
		}
	}
	return n
}

type testEnv struct {
	store    *db.MemoryStore
	userBot  *fakeSender
	adminBot *fakeSender
	user     *Controller
	admin    *Controller
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zaptest.NewLogger(t)
	store := db.NewMemoryStore()
	userBot := &fakeSender{}
	adminBot := &fakeSender{}
	alert := logger.NewAlerter(adminBot, testAdminID, log)
	wf := services.NewWorkflow(store,
		services.NewAllocator(store, time.Now, log),
		NewUserNotifier(userBot, testSupportURL),
		alert, time.Now, log)
	ents := services.NewEntitlementCalculator(store, time.Now)
	guard := admin.Guard{AdminID: testAdminID}

	return &testEnv{
		store:    store,
		userBot:  userBot,
		adminBot: adminBot,
		user: NewController(Deps{
			Role:         RoleUser,
			Bot:          userBot,
			Guard:        guard,
			Store:        store,
			Workflow:     wf,
			Entitlements: ents,
			Alert:        alert,
			Log:          log,
			AdminBot:     adminBot,
			ReceiptsDir:  t.TempDir(),
			SupportURL:   testSupportURL,
			PriceRUB:     200,
		}),
		admin: NewController(Deps{
			Role:         RoleAdmin,
			Bot:          adminBot,
			Guard:        guard,
			Store:        store,
			Workflow:     wf,
			Entitlements: ents,
			Alert:        alert,
			Log:          log,
			Loader:       services.NewKeyLoader(store, log),
		}),
	}
}

func (e *testEnv) seedKeys(t *testing.T, keys ...string) []db.VPNKey {
	t.Helper()
	ctx := context.Background()
	rows := make([]db.VPNKey, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, db.VPNKey{Key: k})
	}
	n, err := e.store.Keys().Add(ctx, rows)
	require.NoError(t, err)
	require.Equal(t, len(keys), n)
	free, err := e.store.Keys().List(ctx, db.KeysFree)
	require.NoError(t, err)
	return free
}

func (e *testEnv) conversation(t *testing.T, c *Controller, userID int64) Conversation {
	t.Helper()
	conv, err := c.States.Get(context.Background(), userID)
	require.NoError(t, err)
	return conv
}

func textUpdate(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, UserName: "tester"},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
	}}
}

func commandUpdate(userID int64, cmd string) tgbotapi.Update {
	u := textUpdate(userID, "/"+cmd)
	u.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd) + 1}}
	return u
}

func photoUpdate(userID int64) tgbotapi.Update {
	u := textUpdate(userID, "")
	u.Message.Photo = []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}}
	return u
}

func callbackUpdate(userID int64, data string, withPhoto bool) tgbotapi.Update {
	msg := &tgbotapi.Message{MessageID: 77, Chat: &tgbotapi.Chat{ID: userID}}
	if withPhoto {
		msg.Photo = []tgbotapi.PhotoSize{{FileID: "receipt"}}
	}
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Message: msg,
		Data:    data,
	}}
}
