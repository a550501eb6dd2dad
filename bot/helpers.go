package bot

import "strings"

// Sanitize escapes characters reserved by Telegram's Markdown parser.
func Sanitize(input string) string {
	reservedChars := "\\_{}#+-.!|()[]=*"
	sanitized := ""
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sanitized += "\\" + string(char)
		} else {
			sanitized += string(char)
		}
	}
	return sanitized
}

func (t *TgBot) isAdmin(chatId int64) bool {
	for _, id := range t.adminIds {
		if id == chatId {
			return true
		}
	}
	return false
}
