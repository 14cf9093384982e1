package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/socialgraph/internal/model"
)

func ms(v int64) time.Time { return time.UnixMilli(v).UTC() }

func postIDs(entries []model.TimelineEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.PostID
	}
	return out
}

func TestTimelineStore_UpsertIsIdempotentAndSorted(t *testing.T) {
	for _, b := range feedBackends() {
		t.Run(b.name, func(t *testing.T) {
			tl := b.open(t, 0).Timelines
			ctx := context.Background()
			p1 := model.TimelineEntry{PostID: "p1", AuthorID: "alice", Type: model.EntryAuthored, Timestamp: ms(1_000)}
			p2 := model.TimelineEntry{PostID: "p2", AuthorID: "alice", Type: model.EntryAuthored, Timestamp: ms(2_000)}

			n, err := tl.Upsert(ctx, "bob", p1, p2)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			n, err = tl.Upsert(ctx, "bob", p1)
			require.NoError(t, err)
			assert.Equal(t, 0, n)

			got, err := tl.List(ctx, "bob", 0, 0)
			require.NoError(t, err)
			assert.Equal(t, []model.TimelineEntry{p2, p1}, got)
		})
	}
}

func TestTimelineStore_SamePostFromTwoLikers(t *testing.T) {
	for _, b := range feedBackends() {
		t.Run(b.name, func(t *testing.T) {
			tl := b.open(t, 0).Timelines
			ctx := context.Background()
			_, err := tl.Upsert(ctx, "bob",
				model.TimelineEntry{PostID: "p9", AuthorID: "alice", Type: model.EntryLiked, Timestamp: ms(5)},
				model.TimelineEntry{PostID: "p9", AuthorID: "carol", Type: model.EntryLiked, Timestamp: ms(6)},
			)
			require.NoError(t, err)

			n, err := tl.RemoveEntries(ctx, "bob", model.EntryFilter{PostID: "p9", AuthorID: "alice", Type: model.EntryLiked})
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			got, err := tl.List(ctx, "bob", 0, 0)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "carol", got[0].AuthorID)
		})
	}
}

func TestTimelineStore_RemovePostAcrossOwners(t *testing.T) {
	for _, b := range feedBackends() {
		t.Run(b.name, func(t *testing.T) {
			tl := b.open(t, 0).Timelines
			ctx := context.Background()
			authored := model.TimelineEntry{PostID: "p1", AuthorID: "alice", Type: model.EntryAuthored, Timestamp: ms(1)}
			liked := model.TimelineEntry{PostID: "p1", AuthorID: "dave", Type: model.EntryLiked, Timestamp: ms(2)}
			other := model.TimelineEntry{PostID: "p2", AuthorID: "alice", Type: model.EntryAuthored, Timestamp: ms(3)}
			_, err := tl.Upsert(ctx, "bob", authored, other)
			require.NoError(t, err)
			_, err = tl.Upsert(ctx, "carol", liked)
			require.NoError(t, err)

			n, err := tl.RemovePost(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			got, err := tl.List(ctx, "bob", 0, 0)
			require.NoError(t, err)
			assert.Equal(t, []string{"p2"}, postIDs(got))
			got, err = tl.List(ctx, "carol", 0, 0)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestTimelineStore_PagingAndCap(t *testing.T) {
	for _, b := range feedBackends() {
		t.Run(b.name, func(t *testing.T) {
			tl := b.open(t, 3).Timelines
			ctx := context.Background()
			for i, id := range []string{"p1", "p2", "p3", "p4"} {
				_, err := tl.Upsert(ctx, "bob", model.TimelineEntry{PostID: id, AuthorID: "alice", Type: model.EntryAuthored, Timestamp: ms(int64(i + 1))})
				require.NoError(t, err)
			}

			all, err := tl.List(ctx, "bob", 0, 0)
			require.NoError(t, err)
			assert.Equal(t, []string{"p4", "p3", "p2"}, postIDs(all))

			page, err := tl.List(ctx, "bob", 1, 1)
			require.NoError(t, err)
			assert.Equal(t, []string{"p3"}, postIDs(page))

			require.NoError(t, tl.DeleteTimeline(ctx, "bob"))
			all, err = tl.List(ctx, "bob", 0, 0)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestActivityLog_AppendRemoveHolders(t *testing.T) {
	for _, b := range feedBackends() {
		t.Run(b.name, func(t *testing.T) {
			log := b.open(t, 0).Activity
			ctx := context.Background()

			added, err := log.Append(ctx, "alice", model.ActivityEntry{PostID: "p1", Type: model.EntryAuthored, Timestamp: ms(1)})
			require.NoError(t, err)
			assert.True(t, added)
			added, err = log.Append(ctx, "alice", model.ActivityEntry{PostID: "p1", Type: model.EntryAuthored, Timestamp: ms(1)})
			require.NoError(t, err)
			assert.False(t, added)
			_, err = log.Append(ctx, "alice", model.ActivityEntry{PostID: "p2", Type: model.EntryLiked, Timestamp: ms(2)})
			require.NoError(t, err)
			_, err = log.Append(ctx, "bob", model.ActivityEntry{PostID: "p1", Type: model.EntryLiked, Timestamp: ms(3)})
			require.NoError(t, err)

			entries, err := log.ListAll(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, []model.ActivityEntry{
				{PostID: "p2", Type: model.EntryLiked, Timestamp: ms(2)},
				{PostID: "p1", Type: model.EntryAuthored, Timestamp: ms(1)},
			}, entries)

			holders, err := log.Holders(ctx, "p1")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"alice", "bob"}, holders)

			n, err := log.RemoveActivity(ctx, "alice", model.EntryFilter{PostID: "p2", Type: model.EntryLiked})
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			require.NoError(t, log.DeleteLog(ctx, "alice"))
			entries, err = log.ListAll(ctx, "alice")
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestActivityLog_Tombstone(t *testing.T) {
	for _, b := range feedBackends() {
		t.Run(b.name, func(t *testing.T) {
			log := b.open(t, 0).Activity
			ctx := context.Background()

			gone, err := log.IsTombstoned(ctx, "p1")
			require.NoError(t, err)
			assert.False(t, gone)

			require.NoError(t, log.Tombstone(ctx, "p1"))
			require.NoError(t, log.Tombstone(ctx, "p1"))
			gone, err = log.IsTombstoned(ctx, "p1")
			require.NoError(t, err)
			assert.True(t, gone)
		})
	}
}

func TestFollowIndex(t *testing.T) {
	for _, b := range feedBackends() {
		t.Run(b.name, func(t *testing.T) {
			idx := b.open(t, 0).Follows
			ctx := context.Background()
			require.NoError(t, idx.AddFollow(ctx, "bob", "alice"))
			require.NoError(t, idx.AddFollow(ctx, "bob", "alice"))
			require.NoError(t, idx.AddFollow(ctx, "carol", "alice"))
			require.NoError(t, idx.AddFollow(ctx, "alice", "carol"))

			followers, err := idx.Followers(ctx, "alice")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"bob", "carol"}, followers)

			require.NoError(t, idx.RemoveFollow(ctx, "bob", "alice"))
			followers, err = idx.Followers(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, []string{"carol"}, followers)

			require.NoError(t, idx.DeleteUser(ctx, "carol"))
			followers, err = idx.Followers(ctx, "alice")
			require.NoError(t, err)
			assert.Empty(t, followers)
			following, err := idx.Following(ctx, "alice")
			require.NoError(t, err)
			assert.Empty(t, following)
		})
	}
}
