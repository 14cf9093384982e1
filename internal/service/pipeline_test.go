package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/socialgraph/internal/eventbus"
	"github.com/d60-Lab/socialgraph/internal/model"
	"github.com/d60-Lab/socialgraph/internal/repository"
)

// 完整链路：SocialService -> 总线 -> GraphProjector / Materializer -> 时间线
func TestPipeline_EndToEnd(t *testing.T) {
	ctx := context.Background()
	graph := repository.NewGormRelationshipStore(setupTestDB(t))
	stores := feedBackends()[0].open(t)

	bus := eventbus.NewMemoryBus()
	t.Cleanup(func() { _ = bus.Close() })
	pub := eventbus.NewPublisher(bus)

	start := func(group string, h eventbus.Handler, actions []model.ActionType) {
		d := eventbus.NewDispatcher(bus.Subscriber(group), h, eventbus.DispatcherConfig{
			Group: group, Actions: actions, Workers: 4, RetryDelay: time.Millisecond,
		})
		stop, err := d.Start(ctx)
		require.NoError(t, err)
		t.Cleanup(func() {
			sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			_ = stop(sctx)
		})
	}
	start("social-graph", NewGraphProjector(graph), ProjectedActions)
	start("home-timeline", NewMaterializer(stores, 4), MaterializedActions)

	social := NewSocialService(graph, pub)
	timelines := NewTimelineService(stores.Timelines, stores.Activity)

	for _, u := range []string{"alice", "bob", "carol", "dave"} {
		require.NoError(t, pub.Publish(ctx, model.UserCreated{Username: u}))
	}
	require.Eventually(t, func() bool {
		for _, u := range []string{"alice", "bob", "carol", "dave"} {
			if ok, err := social.UserExists(ctx, u); err != nil || !ok {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, social.Follow(ctx, "bob", "alice"))
	require.NoError(t, social.Follow(ctx, "dave", "carol"))
	require.NoError(t, pub.Publish(ctx, model.PostCreated{Author: "alice", PostID: "p1", At: at(1000)}))

	require.Eventually(t, func() bool {
		ok, err := social.PostExists(ctx, "p1")
		return err == nil && ok
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, social.Like(ctx, "carol", "p1"))

	home := func(user string) []model.TimelineEntry {
		got, err := timelines.HomeTimeline(ctx, user, 1, 20)
		require.NoError(t, err)
		return got
	}
	require.Eventually(t, func() bool {
		return len(home("bob")) == 1 && len(home("dave")) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []model.TimelineEntry{authored("p1", "alice", 1000)}, home("bob"))
	assert.Equal(t, "carol", home("dave")[0].AuthorID)
	assert.Equal(t, model.EntryLiked, home("dave")[0].Type)

	// 拉黑后关注关系与时间线都被清理
	require.NoError(t, social.Block(ctx, "alice", "bob"))
	require.Eventually(t, func() bool { return len(home("bob")) == 0 }, 2*time.Second, 5*time.Millisecond)
	followers, err := social.Followers(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, followers)

	require.NoError(t, pub.Publish(ctx, model.PostDeleted{Author: "alice", PostID: "p1"}))
	require.Eventually(t, func() bool { return len(home("dave")) == 0 }, 2*time.Second, 5*time.Millisecond)
	likers, err := graph.Sources(ctx, "p1", model.EdgeLikes)
	require.NoError(t, err)
	assert.Empty(t, likers)
}
