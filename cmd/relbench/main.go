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

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			return v
		}
	}
	return def
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

// relbench 测量 Follow 的同步写图耗时，以及 UserFollowed 事件落到时间线侧关注索引的延迟
func main() {
	ctx := context.Background()
	cfg := must(config.Load())

	var graph repository.RelationshipStore
	if cfg.Graph.Driver == "neo4j" {
		driver := must(database.InitNeo4j(ctx, cfg))
		defer driver.Close(ctx)
		check(repository.EnsureNeo4jSchema(ctx, driver, cfg.Graph.Neo4jDatabase))
		graph = repository.NewNeo4jRelationshipStore(driver, cfg.Graph.Neo4jDatabase)
	} else {
		db := must(database.InitDB(cfg))
		check(repository.AutoMigrate(db))
		graph = repository.NewGormRelationshipStore(db)
	}
	var feed repository.FeedStores
	if cfg.Feed.Driver == "redis" {
		feed = repository.NewRedisFeedStores(must(database.InitRedis(ctx, cfg)), 0)
	} else {
		db := must(database.InitDB(cfg))
		check(repository.AutoMigrate(db))
		feed = repository.NewGormFeedStores(db, 0)
	}

	N := envInt("N", 10000)
	CONC := envInt("CONC", 1)
	PAGE := envInt("PAGE", 50)

	// seed users: celeb is followed by everyone else
	run := uuid.New().String()[:8]
	celeb := "celeb-" + run
	check(graph.CreateNode(ctx, model.UserNode(celeb)))
	users := make([]string, N)
	for i := range users {
		users[i] = fmt.Sprintf("u%s-%d", run, i)
		check(graph.CreateNode(ctx, model.UserNode(users[i])))
	}

	bus := eventbus.NewMemoryBus()
	defer bus.Close()
	d := eventbus.NewDispatcher(bus.Subscriber("home-timeline"), service.NewMaterializer(feed, 16), eventbus.DispatcherConfig{
		Group:   "home-timeline",
		Actions: []model.ActionType{model.ActionUserFollowed},
		Workers: 8,
	})
	stop := must(d.Start(ctx))
	socialSvc := service.NewSocialService(graph, eventbus.NewPublisher(bus))

	repRecs := make([]time.Duration, 0, N)
	doneRep := make(chan struct{})
	go func() {
		defer close(doneRep)
		timeout := time.NewTimer(5 * time.Minute)
		defer timeout.Stop()
		for len(repRecs) < N {
			select {
			case l := <-d.Metrics():
				repRecs = append(repRecs, l)
			case <-timeout.C:
				return
			}
		}
	}()

	t0 := time.Now()
	workers := CONC
	if workers > N {
		workers = N
	}
	jobs := make(chan int, N)
	for i := 0; i < N; i++ {
		jobs <- i
	}
	close(jobs)
	latCh := make(chan time.Duration, N)
	done := make(chan struct{}, workers)
	for w := 0; w < workers; w++ {
		go func() {
			for i := range jobs {
				st := time.Now()
				_ = socialSvc.Follow(ctx, users[i], celeb)
				latCh <- time.Since(st)
			}
			done <- struct{}{}
		}()
	}
	for w := 0; w < workers; w++ {
		<-done
	}
	close(latCh)
	followRecs := make([]time.Duration, 0, N)
	for l := range latCh {
		followRecs = append(followRecs, l)
	}
	followDur := time.Since(t0)

	drainStart := time.Now()
	<-doneRep
	drainDur := time.Since(drainStart)
	_ = stop(ctx)

	q0 := time.Now()
	followers, _ := socialSvc.Followers(ctx, celeb)
	graphDur := time.Since(q0)

	q1 := time.Now()
	replica, _ := feed.Follows.Followers(ctx, celeb)
	replicaDur := time.Since(q1)

	if len(followers) > PAGE {
		followers = followers[:PAGE]
	}
	fmt.Printf("GRAPH=%s FEED=%s N=%d CONC=%d\n", cfg.Graph.Driver, cfg.Feed.Driver, N, CONC)
	fmt.Printf("Follow latency total: %v, per op: %v, p50: %v, p95: %v, p99: %v\n",
		followDur, followDur/time.Duration(N), pct(followRecs, 0.50), pct(followRecs, 0.95), pct(followRecs, 0.99))
	fmt.Printf("Query graph followers: %v (first page %d)\n", graphDur, len(followers))
	fmt.Printf("Query follow index: %v (%d rows)\n", replicaDur, len(replica))
	if len(repRecs) > 0 {
		fmt.Printf("Follow index landing: samples=%d, p50=%v, p95=%v, p99=%v, drain=%v\n",
			len(repRecs), pct(repRecs, 0.50), pct(repRecs, 0.95), pct(repRecs, 0.99), drainDur)
	}
}
