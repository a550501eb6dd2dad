package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"path/filepath"
	"time"

	"refhub/bot"
	"refhub/impl/auth"
	"refhub/impl/core"
	"refhub/impl/referral"
	"refhub/internal/config"
	"refhub/internal/database"
	"refhub/internal/http-server/api"
	"refhub/internal/http-server/middleware/ratelimit"
	"refhub/lib/logger"
	"refhub/lib/sl"

	"github.com/redis/go-redis/v9"
)

const logFileName = "refhub.log"

// Store is everything the service needs from a storage adapter.
// Both the Mongo and MySQL adapters satisfy it.
type Store interface {
	referral.Database
	auth.Database
	bot.Database
}

func main() {
	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	lg := logger.SetupLogger(conf.Env, filepath.Join(*logPath, logFileName))
	lg.Info("starting refhub", slog.String("config", *configPath), slog.String("env", conf.Env))

	db := setupStore(conf, lg)

	if conf.Telegram.Enabled {
		tgBot, err := bot.NewTgBot(conf.Telegram.ApiKey, conf.Telegram.AdminIds, db, lg)
		if err != nil {
			lg.Error("telegram bot init", sl.Err(err))
		} else {
			if err = tgBot.Start(); err != nil {
				lg.Error("telegram bot start", sl.Err(err))
			} else {
				level := notifyLevel(conf.Telegram.NotifyLevel)
				lg = slog.New(logger.NewTelegramHandler(lg.Handler(), tgBot, level))
				defer tgBot.Stop()
			}
		}
	}

	refService := referral.New(db, referral.Config(conf.Referral), lg)
	authService := auth.New(db)
	handler := core.New(refService, authService, lg)

	limitStore := setupLimitStore(conf, lg)

	if err := api.New(conf, lg, handler, limitStore); err != nil {
		lg.Error("api server stopped", sl.Err(err))
	}
}

func setupStore(conf *config.Config, lg *slog.Logger) Store {
	switch conf.Storage.Driver {
	case "mongo":
		db := database.NewMongoClient(conf)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.EnsureIndexes(ctx); err != nil {
			log.Fatal("ensure indexes: ", err)
		}
		lg.Info("using mongo store", slog.String("database", conf.Mongo.Database))
		return db
	case "mysql":
		db, err := database.NewSQLClient(conf)
		if err != nil {
			log.Fatal("mysql client: ", err)
		}
		lg.Info("using mysql store", slog.String("database", conf.MySql.Database))
		return db
	default:
		log.Fatal("unknown storage driver: ", conf.Storage.Driver)
		return nil
	}
}

func setupLimitStore(conf *config.Config, lg *slog.Logger) ratelimit.Store {
	if !conf.RateLimit.Enabled {
		return nil
	}
	if conf.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Host + ":" + conf.Redis.Port,
			Password: conf.Redis.Password,
			DB:       conf.Redis.Db,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			lg.Warn("redis unreachable, falling back to memory limiter", sl.Err(err))
			return ratelimit.NewMemoryStore()
		}
		lg.Info("using redis rate limiter")
		return ratelimit.NewRedisStore(client)
	}
	return ratelimit.NewMemoryStore()
}

func notifyLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
