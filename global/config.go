package global

import (
	"context"
	"io"

	"PPAdmin/data/database/mgo/mongoutil"
	"PPAdmin/global/config"
	"PPAdmin/logger"
	ka "PPAdmin/service/kafka"
	mgoSrv "PPAdmin/service/mgo"
	"PPAdmin/service/natsx"
	"PPAdmin/service/storage"
	redisx "PPAdmin/service/storage/redis"
	"PPAdmin/tools/ids"

	"go.uber.org/zap"
)

// EventPublisher 领域事件出口（nats / kafka）
type EventPublisher interface {
	Publish(ctx context.Context, key string, data []byte) error
	io.Closer
}

func ConfigIds(cfg *config.Config) {
	ids.SetNodeID(cfg.App.NodeID)
}

// ConfigMgo 异步连接 mongo，连上后执行 indexes
func ConfigMgo(ctx context.Context, cfg *config.Config, indexes ...mgoSrv.IndexSetup) *mgoSrv.MongoManager {
	m := mgoSrv.NewManager(&mongoutil.Config{
		Uri:         cfg.Mongo.Uri,
		Database:    cfg.Mongo.Database,
		Username:    cfg.Mongo.Username,
		Password:    cfg.Mongo.Password,
		AuthSource:  cfg.Mongo.AuthSource,
		MaxPoolSize: cfg.Mongo.MaxPoolSize,
		MaxRetry:    cfg.Mongo.MaxRetry,
	}, indexes...)
	m.StartAsync(ctx)
	return m
}

// ConfigRedis returns nil when the presence mirror is disabled or redis
// cannot be reached; presence keeps working without it.
func ConfigRedis(ctx context.Context, cfg *config.Config) (*storage.PresenceMirror, io.Closer) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rdb, err := redisx.NewClient(ctx, redisx.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Warn("[Redis] presence mirror disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		return nil, nil
	}
	return storage.NewPresenceMirror(rdb, cfg.App.Name+"-"+ids.GenerateString(), cfg.Redis.PresenceTTL), rdb
}

// ConfigEvents builds the configured publisher; nil for driver "none".
func ConfigEvents(cfg *config.Config) (EventPublisher, error) {
	switch cfg.Events.Driver {
	case config.EventsNats:
		nc, err := natsx.Connect(natsx.NatsxConfig{
			Servers: natsx.SplitServers(cfg.Events.NatsServers),
			Name:    cfg.App.Name,
			Timeout: cfg.Events.NatsTimeout,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("[Events] nats publisher", zap.String("subject", cfg.Events.Subject))
		return natsx.NewNatsxProducer(nc, cfg.Events.Subject), nil
	case config.EventsKafka:
		p, err := ka.NewProducer(ka.Config{
			Brokers: cfg.Events.KafkaBrokers,
			Topic:   cfg.Events.KafkaTopic,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("[Events] kafka publisher", zap.String("topic", cfg.Events.KafkaTopic), zap.Strings("brokers", cfg.Events.KafkaBrokers))
		return p, nil
	default:
		return nil, nil
	}
}
