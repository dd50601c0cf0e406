package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"amega-vpn-bot/internal/db"
	"amega-vpn-bot/internal/logger"
	"amega-vpn-bot/internal/services"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testKey = "vless://7b1f3c2e@de.example.net:443?type=tcp#AmegaVPN-vpn-germany-1"

func TestStartShowsMenu(t *testing.T) {
	env := newTestEnv(t)

	env.user.HandleUpdate(context.Background(), commandUpdate(testUserID, "start"))

	assert.Equal(t, welcomeText, env.userBot.lastTo(testUserID))
}

func TestBuySubmitAndCheckPayment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("jpeg bytes"))
	}))
	defer srv.Close()
	env.userBot.fileURL = srv.URL + "/receipt.jpg"

	env.user.HandleUpdate(ctx, textUpdate(testUserID, BtnBuy))
	assert.Equal(t, StateAwaitingPayment, env.conversation(t, env.user, testUserID).State)
	assert.Contains(t, env.userBot.lastTo(testUserID), "200₽")

	env.user.HandleUpdate(ctx, textUpdate(testUserID, "I paid"))
	assert.Equal(t, sendScreenshotText, env.userBot.lastTo(testUserID))

	env.user.HandleUpdate(ctx, photoUpdate(testUserID))
	assert.Equal(t, receiptAcceptedText, env.userBot.lastTo(testUserID))
	assert.Equal(t, StateAwaitingAdminDecision, env.conversation(t, env.user, testUserID).State)

	pending, err := env.user.Workflow.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, testUserID, pending[0].UserID)
	require.NotNil(t, pending[0].Username)
	assert.Equal(t, "@tester", *pending[0].Username)
	require.NotNil(t, pending[0].ReceiptPath)
	data, err := os.ReadFile(*pending[0].ReceiptPath)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))

	photos := env.adminBot.photos()
	require.Len(t, photos, 1)
	assert.Equal(t, testAdminID, photos[0].ChatID)
	assert.Contains(t, photos[0].Caption, "Ожидает подтверждения")

	env.user.HandleUpdate(ctx, textUpdate(testUserID, "ну что там?"))
	assert.Equal(t, stillCheckingText, env.userBot.lastTo(testUserID))
}

func TestReceiptDownloadFailureKeepsAwaitingPayment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.user.HandleUpdate(ctx, textUpdate(testUserID, BtnBuy))
	env.user.HandleUpdate(ctx, photoUpdate(testUserID))

	assert.Equal(t, receiptFailedText, env.userBot.lastTo(testUserID))
	assert.Equal(t, StateAwaitingPayment, env.conversation(t, env.user, testUserID).State)
	pending, err := env.user.Workflow.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestContactIsAttachedToPayment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()
	env.userBot.fileURL = srv.URL

	contact := textUpdate(testUserID, "")
	contact.Message.Contact = &tgbotapi.Contact{PhoneNumber: "+79990001122", UserID: testUserID}
	env.user.HandleUpdate(ctx, contact)
	env.user.HandleUpdate(ctx, textUpdate(testUserID, BtnBuy))
	env.user.HandleUpdate(ctx, photoUpdate(testUserID))

	p, err := env.user.Workflow.Latest(ctx, testUserID)
	require.NoError(t, err)
	require.NotNil(t, p.Phone)
	assert.Equal(t, "+79990001122", *p.Phone)
}

func TestApproveFromAdminBot(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedKeys(t, testKey)
	p, err := env.user.Workflow.Submit(ctx, services.Submission{UserID: testUserID})
	require.NoError(t, err)
	require.NoError(t, env.user.States.Set(ctx, testUserID, Conversation{State: StateAwaitingAdminDecision}))

	env.admin.HandleUpdate(ctx, callbackUpdate(testAdminID, CallbackData(ActionApprove, p.ID), true))

	edits := env.adminBot.edits()
	require.Len(t, edits, 1)
	assert.Contains(t, edits[0], "Подтвержден")
	assert.Contains(t, edits[0], esc(testKey))
	assert.Equal(t, 1, countContaining(env.userBot.textsTo(testUserID), "Оплата подтверждена"))

	got, err := env.store.Payments().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, db.PaymentApproved, got.Status)

	env.user.HandleUpdate(ctx, textUpdate(testUserID, "готово?"))
	assert.Contains(t, env.userBot.lastTo(testUserID), esc(testKey))
	assert.Equal(t, StateIdle, env.conversation(t, env.user, testUserID).State)

	env.user.HandleUpdate(ctx, textUpdate(testUserID, BtnBuy))
	assert.Contains(t, env.userBot.lastTo(testUserID), "уже есть активный ключ")
	assert.Equal(t, StateIdle, env.conversation(t, env.user, testUserID).State)
}

func TestApproveWithoutKeysLeavesPaymentPending(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p, err := env.user.Workflow.Submit(ctx, services.Submission{UserID: testUserID})
	require.NoError(t, err)

	env.admin.HandleUpdate(ctx, callbackUpdate(testAdminID, CallbackData(ActionApprove, p.ID), true))

	assert.Equal(t, 1, countContaining(env.adminBot.textsTo(testAdminID), noKeysForAdmin))
	assert.Equal(t, 1, countContaining(env.adminBot.textsTo(testAdminID), "[ALERT]"))
	assert.Equal(t, []string{keysExhaustedText}, env.userBot.textsTo(testUserID))
	assert.Empty(t, env.adminBot.edits())

	got, err := env.store.Payments().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, db.PaymentPending, got.Status)
}

func TestRejectTwiceIsAlreadyProcessed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p, err := env.user.Workflow.Submit(ctx, services.Submission{UserID: testUserID})
	require.NoError(t, err)

	env.admin.HandleUpdate(ctx, callbackUpdate(testAdminID, CallbackData(ActionReject, p.ID), false))
	env.admin.HandleUpdate(ctx, callbackUpdate(testAdminID, CallbackData(ActionReject, p.ID), false))

	edits := env.adminBot.edits()
	require.Len(t, edits, 1)
	assert.Contains(t, edits[0], "Отклонен")
	assert.Equal(t, processedText, env.adminBot.lastTo(testAdminID))
	assert.Equal(t, []string{rejectedText}, env.userBot.textsTo(testUserID))
}

func TestDecideUnknownPayment(t *testing.T) {
	env := newTestEnv(t)

	env.admin.HandleUpdate(context.Background(), callbackUpdate(testAdminID, CallbackData(ActionApprove, 404), false))

	assert.Equal(t, notFoundText, env.adminBot.lastTo(testAdminID))
}

func TestAdminGuard(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p, err := env.user.Workflow.Submit(ctx, services.Submission{UserID: testUserID})
	require.NoError(t, err)

	env.admin.HandleUpdate(ctx, commandUpdate(testUserID, "start"))
	assert.Equal(t, noAccessText, env.adminBot.lastTo(testUserID))

	env.admin.HandleUpdate(ctx, callbackUpdate(testUserID, CallbackData(ActionApprove, p.ID), false))
	got, err := env.store.Payments().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, db.PaymentPending, got.Status)
	assert.Empty(t, env.adminBot.edits())
}

func TestAddKeysFlow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.admin.HandleUpdate(ctx, callbackUpdate(testAdminID, ActionAddKeys, false))
	assert.Equal(t, StateAwaitingKeys, env.conversation(t, env.admin, testAdminID).State)
	assert.Equal(t, addKeysPrompt, env.adminBot.lastTo(testAdminID))

	env.admin.HandleUpdate(ctx, textUpdate(testAdminID, "vless://a@h:443#AmegaVPN-a\nnot a key\nvless://b@h:443#AmegaVPN-b\n"))

	counts, err := env.store.Keys().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.Total)
	last := env.adminBot.lastTo(testAdminID)
	assert.Contains(t, last, "Добавлено 2")
	assert.Contains(t, last, "некорректных строк: 1")
	assert.Equal(t, StateIdle, env.conversation(t, env.admin, testAdminID).State)
}

func TestCancelAddKeys(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.admin.HandleUpdate(ctx, callbackUpdate(testAdminID, ActionAddKeys, false))
	env.admin.HandleUpdate(ctx, commandUpdate(testAdminID, "cancel"))

	assert.Equal(t, addKeysCanceled, env.adminBot.lastTo(testAdminID))
	assert.Equal(t, StateIdle, env.conversation(t, env.admin, testAdminID).State)
}

func TestShowPaymentsFallsBackWithoutReceipt(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	missing := "/nonexistent/receipt.jpg"
	p, err := env.user.Workflow.Submit(ctx, services.Submission{UserID: testUserID, ReceiptPath: &missing})
	require.NoError(t, err)

	env.admin.HandleUpdate(ctx, callbackUpdate(testAdminID, ActionShowPayments, false))

	assert.Equal(t, missingReceiptCard(p), env.adminBot.lastTo(testAdminID))
	assert.Empty(t, env.adminBot.photos())
}

func TestShowStatsAndLists(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedKeys(t, "vless://a@h#x", "vless://b@h#y")

	env.admin.HandleUpdate(ctx, commandUpdate(testAdminID, "stats"))
	assert.Contains(t, env.adminBot.lastTo(testAdminID), "<code>2</code>")

	env.admin.HandleUpdate(ctx, callbackUpdate(testAdminID, ActionListUsed, false))
	assert.Equal(t, keyListEmpty[db.KeysUsed], env.adminBot.lastTo(testAdminID))

	env.admin.HandleUpdate(ctx, callbackUpdate(testAdminID, ActionListFree, false))
	assert.Contains(t, env.adminBot.lastTo(testAdminID), "vless://b@h#y")
}

func TestCopyKeyOnlyToOwner(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedKeys(t, testKey)
	p, err := env.user.Workflow.Submit(ctx, services.Submission{UserID: testUserID})
	require.NoError(t, err)
	out, err := env.user.Workflow.Decide(ctx, p.ID, services.DecisionApprove)
	require.NoError(t, err)
	require.NotNil(t, out.Key)
	data := CallbackData(ActionCopy, out.Key.ID)

	env.user.HandleUpdate(ctx, callbackUpdate(testUserID+1, data, false))
	assert.Equal(t, copyFailText, env.userBot.lastTo(testUserID+1))

	env.user.HandleUpdate(ctx, callbackUpdate(testUserID, data, false))
	assert.Equal(t, keyText(testKey), env.userBot.lastTo(testUserID))

	env.admin.HandleUpdate(ctx, callbackUpdate(testAdminID, data, false))
	assert.Equal(t, keyText(testKey), env.adminBot.lastTo(testAdminID))
}

func TestStatusWithoutKey(t *testing.T) {
	env := newTestEnv(t)

	env.user.HandleUpdate(context.Background(), textUpdate(testUserID, BtnStatus))

	assert.Equal(t, noKeyStatusText, env.userBot.lastTo(testUserID))
}

func TestRateLimitedStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.user.Limiter = NewRateLimiter(env.user.Guard.IsAdmin)

	env.user.HandleUpdate(ctx, textUpdate(testUserID, BtnStatus))
	env.user.HandleUpdate(ctx, textUpdate(testUserID, BtnStatus))

	texts := env.userBot.textsTo(testUserID)
	require.Len(t, texts, 2)
	assert.Equal(t, noKeyStatusText, texts[0])
	assert.Equal(t, tooFastText, texts[1])
}

func TestUnknownCallbackIsAnswered(t *testing.T) {
	env := newTestEnv(t)

	env.user.HandleUpdate(context.Background(), callbackUpdate(testUserID, "approve_abc", false))

	require.Len(t, env.userBot.requests, 1)
	cb, ok := env.userBot.requests[0].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.Equal(t, useMenuText, cb.Text)
}

type panickingSender struct {
	fakeSender
}

func (p *panickingSender) Send(tgbotapi.Chattable) (tgbotapi.Message, error) {
	panic("boom")
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	log := zaptest.NewLogger(t)
	adminBot := &fakeSender{}
	c := NewController(Deps{
		Role:  RoleUser,
		Bot:   &panickingSender{},
		Store: db.NewMemoryStore(),
		Alert: logger.NewAlerter(adminBot, testAdminID, log),
		Log:   log,
	})

	require.NotPanics(t, func() {
		c.HandleUpdate(context.Background(), commandUpdate(testUserID, "start"))
	})
	assert.Equal(t, "[ALERT] Panic in user update: boom", adminBot.lastTo(testAdminID))
}
