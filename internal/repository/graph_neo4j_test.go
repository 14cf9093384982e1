package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/socialgraph/internal/apperr"
	"github.com/d60-Lab/socialgraph/internal/model"
)

// setupNeo4j 需要 SOCIAL_TEST_NEO4J_URI，例如 bolt://localhost:7687
func setupNeo4j(t *testing.T) RelationshipStore {
	t.Helper()
	uri := os.Getenv("SOCIAL_TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("SOCIAL_TEST_NEO4J_URI not set")
	}
	driver, err := neo4j.NewDriverWithContext(uri,
		neo4j.BasicAuth(os.Getenv("SOCIAL_TEST_NEO4J_USER"), os.Getenv("SOCIAL_TEST_NEO4J_PASSWORD"), ""))
	require.NoError(t, err)
	ctx := context.Background()
	t.Cleanup(func() { _ = driver.Close(ctx) })
	require.NoError(t, driver.VerifyConnectivity(ctx))
	require.NoError(t, EnsureNeo4jSchema(ctx, driver, ""))
	return NewNeo4jRelationshipStore(driver, "")
}

func TestNeo4jRelationshipStore_EdgesAndNodes(t *testing.T) {
	store := setupNeo4j(t)
	ctx := context.Background()
	// 共享库，用随机前缀隔离
	p := uuid.NewString()[:8] + "-"
	alice, bob, carol, post := p+"alice", p+"bob", p+"carol", p+"p1"

	require.NoError(t, store.UpsertEdge(ctx, model.Edge{Source: bob, Target: alice, Type: model.EdgeFollows, Since: time.UnixMilli(2_000)}))
	require.NoError(t, store.UpsertEdge(ctx, model.Edge{Source: bob, Target: alice, Type: model.EdgeFollows, Since: time.UnixMilli(1_000)}))
	require.NoError(t, store.UpsertEdge(ctx, model.Edge{Source: carol, Target: alice, Type: model.EdgeFollows, Since: time.UnixMilli(1_500)}))
	require.NoError(t, store.UpsertEdge(ctx, model.Edge{Source: alice, Target: post, Type: model.EdgePosted, Since: time.UnixMilli(3_000)}))
	require.NoError(t, store.UpsertEdge(ctx, model.Edge{Source: bob, Target: post, Type: model.EdgeLikes, Since: time.UnixMilli(4_000)}))

	followers, err := store.Sources(ctx, alice, model.EdgeFollows)
	require.NoError(t, err)
	assert.Equal(t, []string{bob, carol}, followers, "since keeps the larger value")

	ok, err := store.EdgeExists(ctx, bob, alice, model.EdgeFollows)
	require.NoError(t, err)
	assert.True(t, ok)

	removed, err := store.DeleteEdge(ctx, carol, alice, model.EdgeFollows)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = store.DeleteEdge(ctx, carol, alice, model.EdgeFollows)
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, store.CreateNode(ctx, model.UserNode(carol)))
	ok, err = store.NodeExists(ctx, model.UserNode(carol))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.DeleteNode(ctx, model.PostNode(post)))
	likes, err := store.Targets(ctx, bob, model.EdgeLikes)
	require.NoError(t, err)
	assert.Empty(t, likes)
	ok, err = store.NodeExists(ctx, model.PostNode(post))
	require.NoError(t, err)
	assert.False(t, ok)

	for _, u := range []string{alice, bob, carol} {
		require.NoError(t, store.DeleteNode(ctx, model.UserNode(u)))
	}
}

func TestNeo4jRelationshipStore_FailsFastWithoutServer(t *testing.T) {
	driver, err := neo4j.NewDriverWithContext("bolt://127.0.0.1:1", neo4j.NoAuth())
	require.NoError(t, err)
	ctx := context.Background()
	t.Cleanup(func() { _ = driver.Close(ctx) })
	store := NewNeo4jRelationshipStore(driver, "")

	start := time.Now()
	err = store.CreateNode(ctx, model.UserNode("alice"))
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
	// 驱动内置的事务重试会持续约 30 秒
	assert.Less(t, time.Since(start), 10*time.Second)
}
