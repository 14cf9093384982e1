package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/socialgraph/internal/model"
	"github.com/d60-Lab/socialgraph/internal/repository"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repository.AutoMigrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type feedBackend struct {
	name string
	open func(t *testing.T) repository.FeedStores
}

func feedBackends() []feedBackend {
	return []feedBackend{
		{"redis", func(t *testing.T) repository.FeedStores {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return repository.NewRedisFeedStores(rdb, 0)
		}},
		{"gorm", func(t *testing.T) repository.FeedStores {
			return repository.NewGormFeedStores(setupTestDB(t), 0)
		}},
	}
}

func at(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// fakePublisher 记录发布的事件，可注入失败
type fakePublisher struct {
	mu     sync.Mutex
	events []model.DomainEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, ev model.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) published() []model.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.DomainEvent(nil), p.events...)
}
