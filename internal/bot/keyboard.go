package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	BtnBuy     = "🔐 Купить VPN"
	BtnStatus  = "📊 Статус VPN"
	BtnSupport = "👨‍💻 Тех поддержка"
	BtnAbout   = "ℹ️ О нас"
	BtnPhone   = "📱 Отправить телефон"
)

func isMenuButton(text string) bool {
	switch text {
	case BtnBuy, BtnStatus, BtnSupport, BtnAbout:
		return true
	}
	return false
}

func MainMenu() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnBuy),
			tgbotapi.NewKeyboardButton(BtnStatus),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnSupport),
			tgbotapi.NewKeyboardButton(BtnAbout),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButtonContact(BtnPhone),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func supportKeyboard(url string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("📞 Техподдержка", url)),
	)
}

func copyRow(keyID uint) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📋 Скопировать ключ", CallbackData(ActionCopy, keyID)))
}

func issuedKeyboard(keyID uint) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		copyRow(keyID),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📊 Статус VPN", ActionVPNStatus)),
	)
}

// statusKeyboard offers renewal only while the key is active; an expired
// key is renewed through the Buy button.
func statusKeyboard(keyID uint, active bool) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{copyRow(keyID)}
	if active {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔄 Продлить подписку", ActionRenew)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func decisionKeyboard(paymentID uint) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", CallbackData(ActionApprove, paymentID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", CallbackData(ActionReject, paymentID)),
		),
	)
}

func adminPanelKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📝 Показать ожидающие платежи", ActionShowPayments)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔑 Управление ключами", ActionManageKeys)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📊 Статистика ключей", ActionShowStats)),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🛰 Панель 3x-ui", ActionPanelStatus),
			tgbotapi.NewInlineKeyboardButtonData("💾 Бэкап БД", ActionBackup),
		),
	)
}

func manageKeysKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📋 Список всех ключей", ActionListAll),
			tgbotapi.NewInlineKeyboardButtonData("➕ Добавить ключи", ActionAddKeys),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔍 Свободные ключи", ActionListFree),
			tgbotapi.NewInlineKeyboardButtonData("🔒 Использованные ключи", ActionListUsed),
		),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", ActionAdminPanel)),
	)
}

func backKeyboard(action string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", action)),
	)
}
