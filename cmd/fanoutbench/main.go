package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/socialgraph/config"
	"github.com/d60-Lab/socialgraph/internal/eventbus"
	"github.com/d60-Lab/socialgraph/internal/model"
	"github.com/d60-Lab/socialgraph/internal/repository"
	"github.com/d60-Lab/socialgraph/internal/service"
	"github.com/d60-Lab/socialgraph/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			return v
		}
	}
	return def
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range vs {
		sum += d
	}
	return sum / time.Duration(len(vs))
}

func main() {
	ctx := context.Background()
	cfg := must(config.Load())

	var stores repository.FeedStores
	if cfg.Feed.Driver == "redis" {
		stores = repository.NewRedisFeedStores(must(database.InitRedis(ctx, cfg)), cfg.Feed.TimelineCap)
	} else {
		db := must(database.InitDB(cfg))
		if err := repository.AutoMigrate(db); err != nil {
			panic(err)
		}
		stores = repository.NewGormFeedStores(db, cfg.Feed.TimelineCap)
	}

	// params
	N := envInt("N", 5000)          // followers of the author
	POSTS := envInt("POSTS", 100)   // posts to publish
	WORKERS := envInt("WORKERS", 8) // dispatcher workers
	FANOUT := envInt("FANOUT", 16)  // concurrent timeline writes per event

	// seed one author and N followers; ids are fresh per run
	run := uuid.New().String()[:8]
	author := "author-" + run
	for i := 0; i < N; i++ {
		if err := stores.Follows.AddFollow(ctx, fmt.Sprintf("u%s-%d", run, i), author); err != nil {
			panic(err)
		}
	}
	lastFollower := fmt.Sprintf("u%s-%d", run, N-1)

	bus := eventbus.NewMemoryBus()
	defer bus.Close()
	d := eventbus.NewDispatcher(bus.Subscriber("home-timeline"), service.NewMaterializer(stores, FANOUT), eventbus.DispatcherConfig{
		Group:   "home-timeline",
		Actions: []model.ActionType{model.ActionPostCreated},
		Workers: WORKERS,
	})
	stop := must(d.Start(ctx))
	defer stop(ctx)
	pub := eventbus.NewPublisher(bus)

	pubDurations := make([]time.Duration, 0, POSTS)
	start := time.Now()
	for i := 0; i < POSTS; i++ {
		st := time.Now()
		ev := model.PostCreated{Author: author, PostID: fmt.Sprintf("p%s-%d", run, i), At: time.Now()}
		if err := pub.Publish(ctx, ev); err != nil {
			panic(err)
		}
		pubDurations = append(pubDurations, time.Since(st))
	}

	// landing latency: publish -> all followers written -> ack
	landed := make([]time.Duration, 0, POSTS)
	timeout := time.After(5 * time.Minute)
	for len(landed) < POSTS {
		select {
		case l := <-d.Metrics():
			landed = append(landed, l)
		case <-timeout:
			fmt.Printf("timeout: %d/%d events landed\n", len(landed), POSTS)
			POSTS = len(landed)
		}
	}
	total := time.Since(start)

	tl := must(stores.Timelines.List(ctx, lastFollower, 0, 0))
	handled, failed, dropped := d.Stats()
	fmt.Printf("FEED=%s N=%d POSTS=%d WORKERS=%d FANOUT=%d\n", cfg.Feed.Driver, N, POSTS, WORKERS, FANOUT)
	fmt.Printf("Publish: avg=%v p95=%v p99=%v\n", avg(pubDurations), pct(pubDurations, 0.95), pct(pubDurations, 0.99))
	fmt.Printf("Landing: avg=%v p50=%v p95=%v p99=%v\n", avg(landed), pct(landed, 0.50), pct(landed, 0.95), pct(landed, 0.99))
	fmt.Printf("Total %v, %.0f timeline writes/s\n", total, float64(N*POSTS)/total.Seconds())
	fmt.Printf("handled=%d failed=%d dropped=%d last follower timeline=%d\n", handled, failed, dropped, len(tl))
}
