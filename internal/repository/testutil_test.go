package repository

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(tb, err)
	sqlDB, err := db.DB()
	require.NoError(tb, err)
	// 单连接：:memory: 库按连接隔离
	sqlDB.SetMaxOpenConns(1)
	require.NoError(tb, AutoMigrate(db))
	tb.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func setupTestRedis(tb testing.TB) *redis.Client {
	tb.Helper()
	mr := miniredis.RunT(tb)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tb.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

type feedBackend struct {
	name string
	open func(t *testing.T, timelineCap int) FeedStores
}

func feedBackends() []feedBackend {
	return []feedBackend{
		{"redis", func(t *testing.T, c int) FeedStores { return NewRedisFeedStores(setupTestRedis(t), c) }},
		{"gorm", func(t *testing.T, c int) FeedStores { return NewGormFeedStores(setupTestDB(t), c) }},
	}
}
