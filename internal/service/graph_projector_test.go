package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/socialgraph/internal/model"
	"github.com/d60-Lab/socialgraph/internal/repository"
)

func nodeExists(t *testing.T, store repository.RelationshipStore, n model.Node) bool {
	t.Helper()
	ok, err := store.NodeExists(context.Background(), n)
	require.NoError(t, err)
	return ok
}

func TestGraphProjector_Lifecycle(t *testing.T) {
	store := repository.NewGormRelationshipStore(setupTestDB(t))
	p := NewGraphProjector(store)
	ctx := context.Background()

	for _, ev := range []model.DomainEvent{
		model.UserCreated{Username: "alice", UserID: "1"},
		model.UserCreated{Username: "bob", UserID: "2"},
		model.UserCreated{Username: "bob", UserID: "2"},
		model.PostCreated{Author: "alice", PostID: "p1", At: at(10)},
		model.PostCreated{Author: "alice", PostID: "p2", At: at(20)},
		model.PostCreated{Author: "alice", PostID: "p2", At: at(20)},
	} {
		require.NoError(t, p.Handle(ctx, ev))
	}
	require.NoError(t, store.UpsertEdge(ctx, model.Edge{Source: "bob", Target: "p1", Type: model.EdgeLikes, Since: at(30)}))

	assert.True(t, nodeExists(t, store, model.UserNode("bob")))
	posts, err := store.Targets(ctx, "alice", model.EdgePosted)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1"}, posts)

	require.NoError(t, p.Handle(ctx, model.PostDeleted{Author: "alice", PostID: "p1"}))
	assert.False(t, nodeExists(t, store, model.PostNode("p1")))
	assert.False(t, edgeExists(t, store, "bob", "p1", model.EdgeLikes))

	require.NoError(t, p.Handle(ctx, model.UserDeleted{Username: "alice"}))
	require.NoError(t, p.Handle(ctx, model.UserDeleted{Username: "alice"}))
	assert.False(t, nodeExists(t, store, model.UserNode("alice")))
	assert.False(t, nodeExists(t, store, model.PostNode("p2")))
	assert.True(t, nodeExists(t, store, model.UserNode("bob")))
}

func TestGraphProjector_IgnoresRelationshipEvents(t *testing.T) {
	store := repository.NewGormRelationshipStore(setupTestDB(t))
	p := NewGraphProjector(store)

	require.NoError(t, p.Handle(context.Background(), model.UserFollowed{Follower: "a", Followee: "b"}))
	assert.False(t, nodeExists(t, store, model.UserNode("a")))
}

// 乱序：早到的 POST_CREATED 必须建出作者；删除后迟到的同样会重建
func TestGraphProjector_PostCreatedCreatesAuthor(t *testing.T) {
	store := repository.NewGormRelationshipStore(setupTestDB(t))
	p := NewGraphProjector(store)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, model.PostCreated{Author: "carol", PostID: "p1", At: at(10)}))
	assert.True(t, nodeExists(t, store, model.UserNode("carol")))
	require.NoError(t, p.Handle(ctx, model.UserCreated{Username: "carol", UserID: "3"}))

	require.NoError(t, p.Handle(ctx, model.UserDeleted{Username: "carol"}))
	require.NoError(t, p.Handle(ctx, model.PostCreated{Author: "carol", PostID: "p2", At: at(20)}))
	assert.True(t, nodeExists(t, store, model.UserNode("carol")))
}
