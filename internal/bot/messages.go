package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"amega-vpn-bot/internal/db"
	"amega-vpn-bot/internal/services"
	"amega-vpn-bot/internal/xui"
)

// Telegram rejects messages longer than this.
const maxMessageLen = 4096

const dateLayout = "02.01.2006"

func esc(s string) string { return html.EscapeString(s) }

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "Не указан"
	}
	return esc(*s)
}

// pluralDays returns the Russian form of "day" for n.
func pluralDays(n int) string {
	if n < 0 {
		n = -n
	}
	switch {
	case n%10 == 1 && n%100 != 11:
		return "день"
	case n%10 >= 2 && n%10 <= 4 && (n%100 < 12 || n%100 > 14):
		return "дня"
	default:
		return "дней"
	}
}

func formatBytes(b int64) string {
	const gb = 1 << 30
	return fmt.Sprintf("%.2f ГБ", float64(b)/gb)
}

const welcomeText = "🌟 <b>Добро пожаловать в AmegaVPN!</b>\n\n" +
	"🔐 <b>Безопасный и быстрый VPN сервис</b>\n\n" +
	"Выберите действие в меню ниже:"

const helpText = "🤖 <b>AmegaVPN Bot</b>\n\n" +
	"<b>Доступные команды:</b>\n" +
	"/start - Начать работу с ботом\n" +
	"/help - Показать это сообщение\n" +
	"/cancel - Начать сначала\n\n" +
	"<b>Основные функции:</b>\n" +
	"• " + BtnBuy + " - Приобрести подписку\n" +
	"• " + BtnStatus + " - Проверить статус подписки\n" +
	"• " + BtnSupport + " - Связаться с поддержкой"

const aboutText = "🌟 <b>О AmegaVPN</b>\n\n" +
	"🔐 <b>Безопасность:</b> шифрование трафика, защита от утечек DNS, отсутствие логирования\n\n" +
	"⚡️ <b>Скорость:</b> высокоскоростные серверы и стабильное соединение\n\n" +
	"🌍 <b>Локации:</b> Германия, Австрия, Болгария, Франция\n\n" +
	"💎 <b>Преимущества:</b> простая настройка, поддержка 24/7, доступная цена"

func supportText(url string) string {
	return "👨‍💻 <b>Техническая поддержка</b>\n\n" +
		"Для получения помощи напишите администратору: " + esc(url) + "\n\n" +
		"Наш специалист свяжется с вами в ближайшее время."
}

func paymentText(price int) string {
	return fmt.Sprintf("💳 <b>Оплата VPN</b>\n\n"+
		"💰 <b>Стоимость:</b> %d₽ в месяц\n\n"+
		"📝 <b>После оплаты вы получите ключ доступа</b>\n\n"+
		"⚠️ Ключ рассчитан на <b>1 пользователя</b>. При активации на других устройствах он будет заблокирован.\n\n"+
		"📸 После оплаты пришлите скриншот чека для подтверждения.", price)
}

func activeKeyText(key string, daysLeft int) string {
	return fmt.Sprintf("⚠️ <b>У вас уже есть активный ключ VPN!</b>\n\n"+
		"🔑 <b>Ваш текущий ключ:</b> <code>%s</code>\n"+
		"⏳ <b>Осталось:</b> %d %s\n\n"+
		"Для продления используйте кнопку «🔄 Продлить подписку» в статусе VPN.",
		esc(key), daysLeft, pluralDays(daysLeft))
}

const (
	sendScreenshotText = "❌ <b>Ошибка!</b>\nПожалуйста, отправьте скриншот чека об оплате."
	receiptAcceptedText = "✅ <b>Спасибо!</b>\n\n" +
		"📝 Ваш чек отправлен на проверку.\n" +
		"🔑 Вы получите ключ VPN сразу после подтверждения оплаты."
	receiptFailedText = "❌ <b>Произошла ошибка при обработке чека.</b>\n" +
		"Пожалуйста, попробуйте позже или обратитесь в техподдержку."
	keysExhaustedText = "❌ <b>К сожалению, в данный момент нет доступных ключей.</b>\n\n" +
		"Ваш платеж остается на проверке. Пожалуйста, свяжитесь с техподдержкой."
	stillCheckingText = "⏳ Ваш платёж ещё проверяется. Мы сообщим, как только администратор его рассмотрит."
	rejectedText      = "❌ <b>Платеж отклонен!</b>\n\n" +
		"Пожалуйста, проверьте правильность оплаты и попробуйте снова или обратитесь в техподдержку."
	noKeyStatusText = "❌ У вас нет активного ключа VPN.\n\n" +
		"Для покупки ключа нажмите кнопку «" + BtnBuy + "»."
	statusFailedText = "❌ Произошла ошибка при получении статуса VPN.\n" +
		"Пожалуйста, попробуйте позже или обратитесь в техподдержку."
	useMenuText  = "Пожалуйста, используйте кнопки меню для навигации."
	tooFastText  = "Пожалуйста, не так быстро! Подождите пару секунд..."
	phoneSaved   = "📱 Телефон сохранён и будет указан в следующем платеже."
	copyFailText = "❌ <b>Ошибка при копировании ключа</b>\n\nПожалуйста, воспользуйтесь меню."
)

func keyText(key string) string {
	return "🔑 <b>Ваш ключ VPN:</b>\n<code>" + esc(key) + "</code>\n\n" +
		"📱 <b>Используйте его для подключения к VPN сервису</b>\n\n" +
		"⚠️ <b>Важно:</b> Не передавайте ключ третьим лицам!"
}

func keyIssuedText(key string, expires time.Time) string {
	return "🎉 <b>Оплата подтверждена!</b>\n\n" + keyText(key) +
		"\n\n📅 <b>Срок действия:</b> до " + expires.Format(dateLayout)
}

func reminderText(days int) string {
	return fmt.Sprintf("⚠️ <b>Напоминание об оплате!</b>\n\n"+
		"До окончания подписки осталось <b>%d</b> %s.\n\n"+
		"Для продления подписки используйте кнопку «%s».", days, pluralDays(days), BtnBuy)
}

func statusText(ent services.Entitlement, panel *xui.ClientStatus, panelErr error) string {
	var b strings.Builder
	b.WriteString("📊 <b>Статус вашего VPN</b>\n\n")
	fmt.Fprintf(&b, "🔑 <b>Ключ:</b> <code>%s</code>\n", esc(ent.Key.Key))
	fmt.Fprintf(&b, "📡 <b>Локация:</b> %s\n", esc(ent.Location))
	fmt.Fprintf(&b, "📅 <b>Дата покупки:</b> %s\n", ent.ActivatedAt.Format(dateLayout))
	fmt.Fprintf(&b, "⏳ <b>Срок действия:</b> %s\n", ent.ExpiresAt.Format(dateLayout))
	if ent.Status == services.StatusActive {
		fmt.Fprintf(&b, "📊 <b>Статус:</b> ✅ Активен (%d %s)\n", ent.DaysLeft, pluralDays(ent.DaysLeft))
	} else {
		b.WriteString("📊 <b>Статус:</b> ❌ Истек срок действия\n")
	}
	switch {
	case panel != nil:
		b.WriteString("\n📶 <b>Трафик</b>\n")
		if panel.Enabled {
			b.WriteString("Клиент: ✅ включен\n")
		} else {
			b.WriteString("Клиент: ⛔️ отключен\n")
		}
		fmt.Fprintf(&b, "Использовано: %s\n", formatBytes(panel.UsedBytes))
		if panel.Unlimited() {
			b.WriteString("Лимит: без ограничений\n")
		} else {
			fmt.Fprintf(&b, "Лимит: %s\nОсталось: %s\n", formatBytes(panel.TotalBytes), formatBytes(panel.RemainingBytes))
		}
	case panelErr != nil:
		b.WriteString("\n📶 Статистика трафика временно недоступна\n")
	}
	return b.String()
}

// Admin side.

const (
	noAccessText    = "❌ <b>У вас нет доступа к этой команде.</b>"
	adminPanelText  = "👨‍💼 <b>Панель администратора AmegaVPN</b>\n\nВыберите действие:"
	manageKeysText  = "🔑 <b>Управление ключами VPN</b>\n\nВыберите действие:"
	noPendingText   = "📭 <b>Нет ожидающих подтверждения платежей.</b>"
	addKeysPrompt   = "➕ <b>Добавление новых ключей</b>\n\nОтправьте список ключей VPN, каждый с новой строки.\n/cancel - отмена"
	addKeysEmpty    = "❌ <b>Ошибка!</b>\nПожалуйста, отправьте список ключей."
	addKeysCanceled = "Добавление ключей отменено."
	notFoundText    = "❌ <b>Платеж не найден.</b>"
	processedText   = "ℹ️ Этот платеж уже обработан."
	noKeysForAdmin  = "❌ <b>Ошибка! Нет доступных ключей.</b>\nПлатеж остается в ожидании. Добавьте новые ключи и подтвердите снова."
	backupFailText  = "❌ Не удалось создать бэкап базы данных."
)

func paymentCard(p db.Payment) string {
	return fmt.Sprintf("📨 <b>Новый платеж</b>\n\n"+
		"👤 <b>Пользователь:</b>\n"+
		"ID: <code>%d</code>\n"+
		"Username: %s\n"+
		"Телефон: <code>%s</code>\n\n"+
		"🆔 <b>ID платежа:</b> <code>%d</code>\n"+
		"📊 <b>Статус:</b> Ожидает подтверждения",
		p.UserID, orDash(p.Username), orDash(p.Phone), p.ID)
}

func missingReceiptCard(p db.Payment) string {
	return paymentCard(p) + "\n❌ <b>Ошибка:</b> Чек не найден"
}

func decidedCard(out services.Outcome) string {
	p := out.Payment
	var b strings.Builder
	fmt.Fprintf(&b, "📨 <b>Платеж обработан</b>\n\n"+
		"👤 <b>Пользователь:</b>\n"+
		"ID: <code>%d</code>\n"+
		"Username: %s\n"+
		"Телефон: <code>%s</code>\n\n"+
		"🆔 <b>ID платежа:</b> <code>%d</code>\n",
		p.UserID, orDash(p.Username), orDash(p.Phone), p.ID)
	if out.Key != nil {
		b.WriteString("✅ <b>Статус:</b> Подтвержден\n")
		fmt.Fprintf(&b, "🔑 <b>Выдан ключ:</b> <code>%s</code>\n", esc(out.Key.Key))
		if out.Key.ActivationDate != nil {
			fmt.Fprintf(&b, "📅 <b>Срок действия:</b> до %s\n", out.Key.ActivationDate.Add(services.EntitlementPeriod).Format(dateLayout))
		}
	} else {
		b.WriteString("❌ <b>Статус:</b> Отклонен\n")
	}
	if out.NotifyErr != nil {
		fmt.Fprintf(&b, "\n⚠️ <b>Пользователь не уведомлен:</b> %s", esc(out.NotifyErr.Error()))
	}
	return b.String()
}

func statsText(c db.KeyCounts) string {
	usage := 0.0
	if c.Total > 0 {
		usage = float64(c.Used) / float64(c.Total) * 100
	}
	return fmt.Sprintf("📊 <b>Статистика ключей VPN:</b>\n\n"+
		"📦 <b>Всего ключей:</b> <code>%d</code>\n"+
		"🔒 <b>Использовано:</b> <code>%d</code>\n"+
		"✅ <b>Свободно:</b> <code>%d</code>\n"+
		"📈 <b>Процент использования:</b> <code>%.1f%%</code>",
		c.Total, c.Used, c.Free(), usage)
}

func addKeysResult(rep services.LoadReport) string {
	s := fmt.Sprintf("✅ <b>Добавлено %d новых ключей.</b>", rep.Added)
	if rep.Duplicates > 0 {
		s += fmt.Sprintf("\nПропущено дубликатов: %d", rep.Duplicates)
	}
	if rep.Malformed > 0 {
		s += fmt.Sprintf("\nПропущено некорректных строк: %d", rep.Malformed)
	}
	return s
}

func panelStatusText(st services.PanelStatus) string {
	switch {
	case !st.Configured:
		return "🛰 Панель 3x-ui не настроена."
	case st.Up:
		return "🛰 Панель 3x-ui: ✅ доступна\nПроверено: " + st.LastChecked.Format("02.01.2006 15:04:05")
	default:
		return "🛰 Панель 3x-ui: ❌ недоступна\n" + esc(st.LastError)
	}
}

var keyListTitles = map[db.KeyFilter]string{
	db.KeysAll:  "📋 <b>Список всех ключей:</b>",
	db.KeysFree: "🔍 <b>Список свободных ключей:</b>",
	db.KeysUsed: "🔒 <b>Список использованных ключей:</b>",
}

var keyListEmpty = map[db.KeyFilter]string{
	db.KeysAll:  "❌ <b>Нет доступных ключей.</b>",
	db.KeysFree: "❌ <b>Нет свободных ключей.</b>",
	db.KeysUsed: "❌ <b>Нет использованных ключей.</b>",
}

func keyEntry(k db.VPNKey, filter db.KeyFilter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🆔 <b>ID:</b> <code>%d</code>\n🔑 <b>Ключ:</b> <code>%s</code>\n", k.ID, esc(k.Key))
	switch filter {
	case db.KeysAll:
		if k.IsUsed {
			b.WriteString("📊 <b>Статус:</b> 🔒 Использован\n")
		} else {
			b.WriteString("📊 <b>Статус:</b> ✅ Свободен\n")
		}
	case db.KeysUsed:
		if k.UserID != nil {
			fmt.Fprintf(&b, "👤 <b>Пользователь:</b> <code>%d</code>\n", *k.UserID)
		}
	}
	return b.String()
}

// keyListMessages renders keys into as many messages as needed to stay
// under the Telegram length limit. Entries are never split.
func keyListMessages(keys []db.VPNKey, filter db.KeyFilter) []string {
	if len(keys) == 0 {
		return []string{keyListEmpty[filter]}
	}
	var (
		out []string
		cur strings.Builder
	)
	cur.WriteString(keyListTitles[filter] + "\n\n")
	for _, k := range keys {
		entry := keyEntry(k, filter) + "\n"
		if cur.Len()+len(entry) > maxMessageLen {
			out = append(out, cur.String())
			cur.Reset()
		}
		cur.WriteString(entry)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
