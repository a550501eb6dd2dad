// Package bot implements a small Telegram notifier for the referral service.
//
// Unlike a full subscriber bot there is no registration flow: the set of
// admin chats comes from configuration. The bot answers two commands
// (/start echoes the chat id so it can be added to the config, /stats
// reports store counts to admins) and otherwise exists to receive
// notifications pushed through lib/logger.TelegramHandler.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"refhub/lib/sl"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
)

// Database defines the store reads the bot depends on.
// Implemented by internal/database adapters.
type Database interface {
	ReferrerCount(ctx context.Context) (int64, error)
	RedemptionCount(ctx context.Context) (int64, error)
}

// TgBot sends service notifications to the configured admin chats.
type TgBot struct {
	log      *slog.Logger
	api      *tgbotapi.Bot
	db       Database
	adminIds []int64
	updater  *ext.Updater
}

func NewTgBot(apiKey string, adminIds []int64, db Database, log *slog.Logger) (*TgBot, error) {
	tgBot := &TgBot{
		log:      log.With(sl.Module("tgbot")),
		db:       db,
		adminIds: adminIds,
	}

	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %v", err)
	}
	tgBot.api = api

	return tgBot, nil
}

func (t *TgBot) Start() error {
	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			t.log.Error("handling update:", sl.Err(err))
			return ext.DispatcherActionNoop
		},
		MaxRoutines: ext.DefaultMaxRoutines,
	})
	dispatcher.AddHandler(handlers.NewCommand("start", t.commandStart))
	dispatcher.AddHandler(handlers.NewCommand("stats", t.commandStats))

	t.updater = ext.NewUpdater(dispatcher, nil)
	err := t.updater.StartPolling(t.api, &ext.PollingOpts{DropPendingUpdates: true})
	if err != nil {
		return fmt.Errorf("start polling: %w", err)
	}

	t.log.Info("telegram bot started", slog.String("username", t.api.User.Username))
	return nil
}

func (t *TgBot) Stop() {
	if t.updater != nil {
		_ = t.updater.Stop()
	}
}

func (t *TgBot) commandStart(b *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveChat.Id
	text := fmt.Sprintf("Referral service notifier\nThis chat id: `%d`", chatId)
	t.plainResponse(chatId, text)
	return nil
}

func (t *TgBot) commandStats(b *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveChat.Id
	if !t.isAdmin(chatId) {
		t.plainResponse(chatId, "Not authorized")
		return nil
	}

	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	referrers, err := t.db.ReferrerCount(c)
	if err != nil {
		t.log.Error("referrer count", sl.Err(err))
		t.plainResponse(chatId, "Stats unavailable")
		return nil
	}
	redemptions, err := t.db.RedemptionCount(c)
	if err != nil {
		t.log.Error("redemption count", sl.Err(err))
		t.plainResponse(chatId, "Stats unavailable")
		return nil
	}

	text := fmt.Sprintf("*Referral program*\nreferrers: %d\nredemptions: %d", referrers, redemptions)
	t.plainResponse(chatId, text)
	return nil
}
