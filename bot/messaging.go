package bot

import (
	"log/slog"

	"refhub/lib/sl"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
)

// SendMessage delivers a Markdown message to every configured admin chat.
func (t *TgBot) SendMessage(text string) {
	for _, chatId := range t.adminIds {
		t.send(chatId, text)
	}
}

// SendMessageWithLevel delivers a message to admin chats with a level
// marker prefix. Called from the slog handler bridge; filtering by level
// happens there, not here.
func (t *TgBot) SendMessageWithLevel(text string, level slog.Level) {
	marker := "ℹ️"
	switch {
	case level >= slog.LevelError:
		marker = "🔴"
	case level >= slog.LevelWarn:
		marker = "⚠️"
	}
	t.SendMessage(marker + " " + text)
}

func (t *TgBot) send(chatId int64, text string) {
	_, err := t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{
		ParseMode: "Markdown",
	})
	if err != nil {
		t.log.With(
			slog.Int64("chat_id", chatId),
			sl.Err(err),
		).Error("send message")
	}
}

func (t *TgBot) plainResponse(chatId int64, text string) {
	t.send(chatId, text)
}
