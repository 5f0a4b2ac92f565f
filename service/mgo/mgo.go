package mgo

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"PPAdmin/data/database/mgo/mongoutil"
	"PPAdmin/logger"
	"PPAdmin/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// IndexSetup creates the indexes a store relies on; run once per connect.
type IndexSetup func(ctx context.Context, db *mongo.Database) error

type MongoManager struct {
	cfg     *mongoutil.Config
	indexes []IndexSetup

	mu        sync.RWMutex
	client    *mongoutil.Client
	readyCh   chan struct{} // 首次就绪通知；只会被 close 一次
	readyOnce sync.Once

	lastErr atomic.Value // error
}

func NewManager(cfg *mongoutil.Config, indexes ...IndexSetup) *MongoManager {
	return &MongoManager{
		cfg:     cfg,
		indexes: indexes,
		readyCh: make(chan struct{}),
	}
}

// StartAsync 一直运行到 ctx.Done()；首次连上时 close readyCh，掉线后自动重连
func (m *MongoManager) StartAsync(ctx context.Context) {
	go m.run(ctx)
}

func (m *MongoManager) run(ctx context.Context) {
	const (
		baseBackoff = 200 * time.Millisecond
		maxBackoff  = 5 * time.Second
		healthEvery = 10 * time.Second
		failThresh  = 3
	)

	for {
		// ===== 连接阶段（带退避重试） =====
		attempt := 0
		for {
			if ctx.Err() != nil {
				return
			}
			cli, err := m.connect(ctx)
			if err == nil {
				m.mu.Lock()
				m.client = cli
				m.mu.Unlock()
				m.readyOnce.Do(func() { close(m.readyCh) })
				logger.Info("[Mongo] connected", zap.String("database", m.cfg.Database))
				break
			}
			m.lastErr.Store(err)
			logger.Warn("[Mongo] connect failed", zap.Int("attempt", attempt), zap.Error(err))

			backoff := baseBackoff << attempt
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			jitter := time.Duration(rand.Int63n(int64(backoff/5) + 1))
			timer := time.NewTimer(backoff - jitter/2)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			if attempt < 6 {
				attempt++
			}
		}

		// ===== 健康检查阶段 =====
		if !m.watch(ctx, healthEvery, failThresh) {
			return
		}
	}
}

func (m *MongoManager) connect(ctx context.Context) (*mongoutil.Client, error) {
	cli, err := mongoutil.NewMongoDB(ctx, m.cfg)
	if err != nil {
		return nil, err
	}
	for _, setup := range m.indexes {
		if err := setup(ctx, cli.GetDB()); err != nil {
			_ = cli.Disconnect(context.Background())
			return nil, errs.WrapMsg(err, "ensure indexes")
		}
	}
	return cli, nil
}

// watch pings until ctx ends (returns false) or the connection is
// considered lost (returns true).
func (m *MongoManager) watch(ctx context.Context, every time.Duration, failThresh int) bool {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	fail := 0
	for {
		select {
		case <-ctx.Done():
			m.drop()
			return false
		case <-ticker.C:
			m.mu.RLock()
			c := m.client
			m.mu.RUnlock()
			if c == nil {
				return true
			}
			if err := c.GetDB().Client().Ping(ctx, nil); err != nil {
				fail++
				m.lastErr.Store(err)
				logger.Warn("[Mongo] ping failed", zap.Int("fail", fail), zap.Error(err))
				if fail >= failThresh {
					m.drop()
					return true
				}
				continue
			}
			fail = 0
		}
	}
}

func (m *MongoManager) drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		_ = m.client.Disconnect(context.Background())
		m.client = nil
	}
}

// Ready 首次连接成功时会 close
func (m *MongoManager) Ready() <-chan struct{} {
	return m.readyCh
}

// Err 最近一次错误
func (m *MongoManager) Err() error {
	if v := m.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (m *MongoManager) TryGetDB() (*mongo.Database, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, false
	}
	return m.client.GetDB(), true
}

// WaitReady blocks until the first successful connect or ctx ends.
func (m *MongoManager) WaitReady(ctx context.Context) (*mongo.Database, error) {
	select {
	case <-m.readyCh:
	case <-ctx.Done():
		if err := m.Err(); err != nil {
			return nil, errs.WrapMsg(err, "mongo not ready")
		}
		return nil, errs.Wrap(ctx.Err())
	}
	db, ok := m.TryGetDB()
	if !ok {
		return nil, errs.New("mongo connection lost")
	}
	return db, nil
}

// Close disconnects the current client, if any.
func (m *MongoManager) Close() {
	m.drop()
}
