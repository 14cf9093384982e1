package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/socialgraph/config"
	"github.com/d60-Lab/socialgraph/internal/api"
	"github.com/d60-Lab/socialgraph/internal/api/handler"
	"github.com/d60-Lab/socialgraph/internal/eventbus"
	"github.com/d60-Lab/socialgraph/internal/repository"
	"github.com/d60-Lab/socialgraph/internal/service"
	"github.com/d60-Lab/socialgraph/pkg/database"
	"github.com/d60-Lab/socialgraph/pkg/logger"
	"github.com/d60-Lab/socialgraph/pkg/tracing"
)

// @title Social Graph API
// @version 1.0
// @description 社交关系图与写扩散时间线
// @BasePath /
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment}); err != nil {
			return fmt.Errorf("sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	db, err := database.InitDB(cfg)
	if err != nil {
		return err
	}
	if cfg.Database.AutoMigrate {
		if err := repository.AutoMigrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	graph, closeGraph, err := openGraph(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeGraph()

	feed, closeFeed, err := openFeed(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeFeed()

	bus, err := eventbus.Open(ctx, cfg.Bus)
	if err != nil {
		return err
	}
	defer func() { _ = bus.Close() }()

	socialSvc := service.NewSocialService(graph, eventbus.NewPublisher(bus))
	timelineSvc := service.NewTimelineService(feed.Timelines, feed.Activity)

	var stops []func(context.Context) error
	for _, d := range []*eventbus.Dispatcher{
		eventbus.NewDispatcher(bus.Subscriber("social-graph"), service.NewGraphProjector(graph), eventbus.DispatcherConfig{
			Group:          "social-graph",
			Actions:        service.ProjectedActions,
			Workers:        cfg.Materializer.Workers,
			HandlerTimeout: cfg.Materializer.HandlerTimeout,
			RetryDelay:     cfg.Materializer.RetryDelay,
		}),
		eventbus.NewDispatcher(bus.Subscriber("home-timeline"), service.NewMaterializer(feed, cfg.Materializer.FanoutConcurrency), eventbus.DispatcherConfig{
			Group:          "home-timeline",
			Actions:        service.MaterializedActions,
			Workers:        cfg.Materializer.Workers,
			HandlerTimeout: cfg.Materializer.HandlerTimeout,
			RetryDelay:     cfg.Materializer.RetryDelay,
		}),
	} {
		stop, err := d.Start(ctx)
		if err != nil {
			return err
		}
		stops = append(stops, stop)
	}

	router := api.SetupRouter(cfg.Server, cfg.Tracing.ServiceName, handler.NewHandler(socialSvc, timelineSvc))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	// 先停 HTTP 再停消费者，正在处理的事件在超时前完成
	for _, stop := range stops {
		if err := stop(shutdownCtx); err != nil {
			logger.Warn("dispatcher shutdown", zap.Error(err))
		}
	}
	return nil
}

func openGraph(ctx context.Context, cfg *config.Config, db *gorm.DB) (repository.RelationshipStore, func(), error) {
	if cfg.Graph.Driver != "neo4j" {
		return repository.NewGormRelationshipStore(db), func() {}, nil
	}
	driver, err := database.InitNeo4j(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := repository.EnsureNeo4jSchema(ctx, driver, cfg.Graph.Neo4jDatabase); err != nil {
		_ = driver.Close(ctx)
		return nil, nil, err
	}
	return repository.NewNeo4jRelationshipStore(driver, cfg.Graph.Neo4jDatabase),
		func() { _ = driver.Close(context.Background()) }, nil
}

func openFeed(ctx context.Context, cfg *config.Config, db *gorm.DB) (repository.FeedStores, func(), error) {
	if cfg.Feed.Driver != "redis" {
		return repository.NewGormFeedStores(db, cfg.Feed.TimelineCap), func() {}, nil
	}
	rdb, err := database.InitRedis(ctx, cfg)
	if err != nil {
		return repository.FeedStores{}, nil, err
	}
	return repository.NewRedisFeedStores(rdb, cfg.Feed.TimelineCap), func() { _ = rdb.Close() }, nil
}
