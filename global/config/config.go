package config

import (
	"strings"
	"time"

	"PPAdmin/tools/errs"
)

const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"

	EventsNone  = "none"
	EventsNats  = "nats"
	EventsKafka = "kafka"
)

type Config struct {
	App     AppConfig     `koanf:"app"`
	Log     LogConfig     `koanf:"log"`
	Mongo   MongoConfig   `koanf:"mongo"`
	Redis   RedisConfig   `koanf:"redis"`
	JWT     JWTConfig     `koanf:"jwt"`
	WS      WSConfig      `koanf:"ws"`
	Storage StorageConfig `koanf:"storage"`
	Events  EventsConfig  `koanf:"events"`
}

type AppConfig struct {
	Name   string `koanf:"name"`
	Port   int    `koanf:"port"`
	Env    string `koanf:"env"`
	NodeID int64  `koanf:"node_id"` // 雪花ID节点 0~1023
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type MongoConfig struct {
	Uri         string `koanf:"uri"`
	Database    string `koanf:"database"`
	Username    string `koanf:"username"`
	Password    string `koanf:"password"`
	AuthSource  string `koanf:"auth_source"`
	MaxPoolSize int    `koanf:"max_pool_size"`
	MaxRetry    int    `koanf:"max_retry"`
}

type RedisConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Addr        string        `koanf:"addr"`
	Password    string        `koanf:"password"`
	DB          int           `koanf:"db"`
	PresenceTTL time.Duration `koanf:"presence_ttl"`
}

type JWTConfig struct {
	Secret string        `koanf:"secret"`
	Alg    string        `koanf:"alg"`
	TTL    time.Duration `koanf:"ttl"`
}

type WSConfig struct {
	ReadLimit       int64         `koanf:"read_limit"`
	PongWait        time.Duration `koanf:"pong_wait"`
	PingInterval    time.Duration `koanf:"ping_interval"`
	WriteWait       time.Duration `koanf:"write_wait"`
	FramesPerSecond float64       `koanf:"frames_per_second"`
	FrameBurst      int           `koanf:"frame_burst"`
}

type StorageConfig struct {
	Driver string `koanf:"driver"`
}

type EventsConfig struct {
	Driver       string        `koanf:"driver"`
	Subject      string        `koanf:"subject"`
	NatsServers  string        `koanf:"nats_servers"`
	NatsTimeout  time.Duration `koanf:"nats_timeout"`
	KafkaBrokers []string      `koanf:"kafka_brokers"`
	KafkaTopic   string        `koanf:"kafka_topic"`
}

func defaultConfig() Config {
	return Config{
		App: AppConfig{
			Name:   "ppadmin",
			Port:   8080,
			Env:    "dev",
			NodeID: 1,
		},
		Log: LogConfig{Level: "info"},
		Mongo: MongoConfig{
			Uri:         "mongodb://localhost:27017",
			Database:    "ppadmin",
			MaxPoolSize: 20,
			MaxRetry:    3,
		},
		Redis: RedisConfig{
			Addr:        "127.0.0.1:6379",
			PresenceTTL: 2 * time.Minute,
		},
		JWT: JWTConfig{
			Alg: "HS256",
			TTL: 24 * time.Hour,
		},
		WS: WSConfig{
			ReadLimit:       1 << 20,
			PongWait:        60 * time.Second,
			PingInterval:    25 * time.Second,
			WriteWait:       10 * time.Second,
			FramesPerSecond: 20,
			FrameBurst:      40,
		},
		Storage: StorageConfig{Driver: StorageMongo},
		Events: EventsConfig{
			Driver:      EventsNone,
			Subject:     "chat.message.created",
			NatsServers: "nats://127.0.0.1:4222",
			NatsTimeout: 5 * time.Second,
			KafkaTopic:  "chat_message_created",
		},
	}
}

// Validate rejects configurations the process cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errs.ErrArgs.WrapMsg("jwt.secret is required")
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return errs.ErrArgs.WrapMsg("app.port out of range", "port", c.App.Port)
	}
	switch c.Storage.Driver {
	case StorageMongo, StorageMemory:
	default:
		return errs.ErrArgs.WrapMsg("unknown storage.driver", "driver", c.Storage.Driver)
	}
	switch c.Events.Driver {
	case EventsNone, EventsNats:
	case EventsKafka:
		if len(c.Events.KafkaBrokers) == 0 {
			return errs.ErrArgs.WrapMsg("events.kafka_brokers is required for kafka")
		}
	default:
		return errs.ErrArgs.WrapMsg("unknown events.driver", "driver", c.Events.Driver)
	}
	if c.WS.PingInterval >= c.WS.PongWait {
		return errs.ErrArgs.WrapMsg("ws.ping_interval must be shorter than ws.pong_wait")
	}
	return nil
}
