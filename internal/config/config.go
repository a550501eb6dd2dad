package config

import (
	"fmt"
	"github.com/ilyakaznacheev/cleanenv"
	"log"
	"sync"
)

type Listen struct {
	BindIp string `yaml:"bind_ip" env-default:"0.0.0.0"`
	Port   string `yaml:"port" env-default:"8080"`
}

type StorageConfig struct {
	// Driver selects the store adapter: "mongo" or "mysql".
	Driver string `yaml:"driver" env-default:"mongo"`
}

type MongoConfig struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     string `yaml:"port" env-default:"27017"`
	User     string `yaml:"user" env-default:""`
	Password string `yaml:"password" env-default:""`
	Database string `yaml:"database" env-default:"refhub"`
}

type MySqlConfig struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     string `yaml:"port" env-default:"3306"`
	User     string `yaml:"user" env-default:"refhub"`
	Password string `yaml:"password" env-default:""`
	Database string `yaml:"database" env-default:"refhub"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env-default:"false"`
	Host     string `yaml:"host" env-default:"localhost"`
	Port     string `yaml:"port" env-default:"6379"`
	Password string `yaml:"password" env-default:""`
	Db       int    `yaml:"db" env-default:"0"`
}

type RateLimitConfig struct {
	Enabled       bool  `yaml:"enabled" env-default:"true"`
	Limit         int64 `yaml:"limit" env-default:"30"`
	WindowSeconds int   `yaml:"window_seconds" env-default:"60"`
}

// ReferralConfig carries the reward amounts applied on each redemption.
// Kept configurable per campaign; the historical defaults are 50/50.
type ReferralConfig struct {
	ReferrerReward int64 `yaml:"referrer_reward" env-default:"50"`
	FriendReward   int64 `yaml:"friend_reward" env-default:"50"`
}

type TelegramConfig struct {
	Enabled     bool    `yaml:"enabled" env-default:"false"`
	ApiKey      string  `yaml:"api_key" env-default:""`
	AdminIds    []int64 `yaml:"admin_ids"`
	NotifyLevel string  `yaml:"notify_level" env-default:"warn"`
}

type Config struct {
	Listen    Listen          `yaml:"listen"`
	Storage   StorageConfig   `yaml:"storage"`
	Mongo     MongoConfig     `yaml:"mongo"`
	MySql     MySqlConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Referral  ReferralConfig  `yaml:"referral"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Env       string          `yaml:"env" env-default:"local"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("config: %s; %s", err, desc)
			instance = nil
			log.Fatal(err)
		}
	})
	return instance
}
