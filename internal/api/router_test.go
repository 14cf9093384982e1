package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/socialgraph/config"
	"github.com/d60-Lab/socialgraph/internal/api/handler"
	"github.com/d60-Lab/socialgraph/internal/eventbus"
	"github.com/d60-Lab/socialgraph/internal/model"
	"github.com/d60-Lab/socialgraph/internal/repository"
	"github.com/d60-Lab/socialgraph/internal/service"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router *gin.Engine
	graph  repository.RelationshipStore
	feed   repository.FeedStores
}

func newTestServer(t *testing.T, cfg config.ServerConfig) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repository.AutoMigrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	bus := eventbus.NewMemoryBus()
	t.Cleanup(func() { _ = bus.Close() })

	graph := repository.NewGormRelationshipStore(db)
	feed := repository.NewRedisFeedStores(rdb, 0)
	h := handler.NewHandler(
		service.NewSocialService(graph, eventbus.NewPublisher(bus)),
		service.NewTimelineService(feed.Timelines, feed.Activity),
	)
	if cfg.Mode == "" {
		cfg.Mode = gin.TestMode
	}
	return &testServer{router: SetupRouter(cfg, "socialgraph-test", h), graph: graph, feed: feed}
}

func (s *testServer) do(t *testing.T, method, path string) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (s *testServer) seed(t *testing.T) {
	ctx := context.Background()
	for _, u := range []string{"alice", "bob"} {
		require.NoError(t, s.graph.CreateNode(ctx, model.UserNode(u)))
	}
	require.NoError(t, s.graph.UpsertEdge(ctx, model.Edge{Source: "alice", Target: "p1", Type: model.EdgePosted}))
}

func TestRouter_Healthz(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})
	code, env := s.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, env.Code)
}

func TestRouter_SwaggerDoc(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		Swagger string                     `json:"swagger"`
		Paths   map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc), w.Body.String())
	assert.Equal(t, "2.0", doc.Swagger)
	assert.Contains(t, doc.Paths, "/api/v1/timelines/home/{username}")
	assert.Contains(t, doc.Paths, "/api/v1/timelines/user/{username}")
	assert.Contains(t, doc.Paths, "/api/v1/social/{username}/follow/{target}")
}

func TestRouter_FollowFlow(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})
	s.seed(t)

	code, _ := s.do(t, http.MethodPost, "/api/v1/social/bob/follow/alice")
	assert.Equal(t, http.StatusOK, code)

	code, env := s.do(t, http.MethodPost, "/api/v1/social/bob/follow/alice")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, http.StatusConflict, env.Code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/social/bob/follow/bob")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/social/bob/follow/ghost")
	assert.Equal(t, http.StatusNotFound, code)

	code, env = s.do(t, http.MethodGet, "/api/v1/social/users/alice/followers")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"list":["bob"]}`, string(env.Data))

	code, _ = s.do(t, http.MethodPost, "/api/v1/social/alice/block/bob")
	assert.Equal(t, http.StatusOK, code)
	code, env = s.do(t, http.MethodGet, "/api/v1/social/users/alice/followers")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"list":[]}`, string(env.Data))
	_, env = s.do(t, http.MethodGet, "/api/v1/social/users/bob/blocked-by")
	assert.JSONEq(t, `{"list":["alice"]}`, string(env.Data))

	code, _ = s.do(t, http.MethodPost, "/api/v1/social/bob/follow/alice")
	assert.Equal(t, http.StatusForbidden, code)
}

func TestRouter_PostReads(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})
	s.seed(t)

	code, _ := s.do(t, http.MethodPost, "/api/v1/social/bob/like/p1")
	require.Equal(t, http.StatusOK, code)

	_, env := s.do(t, http.MethodGet, "/api/v1/social/posts/p1/like-users")
	assert.JSONEq(t, `{"list":["bob"]}`, string(env.Data))
	_, env = s.do(t, http.MethodGet, "/api/v1/social/posts/p1/author")
	assert.JSONEq(t, `{"author":"alice"}`, string(env.Data))
	_, env = s.do(t, http.MethodGet, "/api/v1/social/users/bob/liked-posts")
	assert.JSONEq(t, `{"list":["p1"]}`, string(env.Data))

	code, _ = s.do(t, http.MethodGet, "/api/v1/social/posts/nope/like-users")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(t, http.MethodGet, "/api/v1/social/posts/nope/author")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(t, http.MethodGet, "/api/v1/social/users/ghost/follows")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRouter_HomeTimeline(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})
	_, err := s.feed.Timelines.Upsert(context.Background(), "bob",
		model.TimelineEntry{PostID: "p1", AuthorID: "alice", Type: model.EntryAuthored, Timestamp: model.FromMillis(1)},
		model.TimelineEntry{PostID: "p2", AuthorID: "alice", Type: model.EntryAuthored, Timestamp: model.FromMillis(2)},
	)
	require.NoError(t, err)

	code, env := s.do(t, http.MethodGet, "/api/v1/timelines/home/bob?page=1&page_size=1")
	require.Equal(t, http.StatusOK, code)
	var data struct {
		Page     int                   `json:"page"`
		PageSize int                   `json:"page_size"`
		List     []model.TimelineEntry `json:"list"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 1, data.PageSize)
	require.Len(t, data.List, 1)
	assert.Equal(t, "p2", data.List[0].PostID)

	_, env = s.do(t, http.MethodGet, "/api/v1/timelines/home/nobody")
	assert.JSONEq(t, `{"page":1,"page_size":20,"list":[]}`, string(env.Data))
}

func TestRouter_RateLimited(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{RateLimitRPS: 0.001, RateLimitBurst: 1})

	code, _ := s.do(t, http.MethodGet, "/api/v1/timelines/home/bob")
	assert.Equal(t, http.StatusOK, code)
	code, env := s.do(t, http.MethodGet, "/api/v1/timelines/home/bob")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, http.StatusTooManyRequests, env.Code)

	code, _ = s.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, code)
}

func TestRouter_UserTimeline(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})
	s.seed(t)
	ctx := context.Background()
	_, err := s.feed.Activity.Append(ctx, "alice", model.ActivityEntry{PostID: "p1", Type: model.EntryAuthored, Timestamp: model.FromMillis(5)})
	require.NoError(t, err)

	code, env := s.do(t, http.MethodGet, "/api/v1/timelines/user/alice")
	require.Equal(t, http.StatusOK, code)
	var data struct {
		List []model.ActivityEntry `json:"list"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, []model.ActivityEntry{{PostID: "p1", Type: model.EntryAuthored, Timestamp: model.FromMillis(5)}}, data.List)

	_, env = s.do(t, http.MethodGet, "/api/v1/timelines/user/bob")
	assert.JSONEq(t, `{"page":1,"page_size":20,"list":[]}`, string(env.Data))

	code, _ = s.do(t, http.MethodGet, "/api/v1/timelines/user/ghost")
	assert.Equal(t, http.StatusNotFound, code)
}
