package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/socialgraph/internal/model"
)

func TestHomeTimeline_Paging(t *testing.T) {
	for _, b := range feedBackends() {
		t.Run(b.name, func(t *testing.T) {
			stores := b.open(t)
			ctx := context.Background()
			var entries []model.TimelineEntry
			for i := 1; i <= 5; i++ {
				entries = append(entries, authored(fmt.Sprintf("p%d", i), "A", int64(i)))
			}
			_, err := stores.Timelines.Upsert(ctx, "B", entries...)
			require.NoError(t, err)
			svc := NewTimelineService(stores.Timelines, stores.Activity)

			all, err := svc.HomeTimeline(ctx, "B", 0, 0)
			require.NoError(t, err)
			require.Len(t, all, 5)
			assert.Equal(t, "p5", all[0].PostID)

			page2, err := svc.HomeTimeline(ctx, "B", 2, 2)
			require.NoError(t, err)
			assert.Equal(t, []model.TimelineEntry{authored("p3", "A", 3), authored("p2", "A", 2)}, page2)

			last, err := svc.HomeTimeline(ctx, "B", 3, 2)
			require.NoError(t, err)
			assert.Equal(t, []model.TimelineEntry{authored("p1", "A", 1)}, last)

			beyond, err := svc.HomeTimeline(ctx, "B", 9, 2)
			require.NoError(t, err)
			assert.Empty(t, beyond)

			unknown, err := svc.HomeTimeline(ctx, "nobody", 1, 10)
			require.NoError(t, err)
			assert.Empty(t, unknown)
		})
	}
}

func TestUserTimeline_ListsOwnActivity(t *testing.T) {
	for _, b := range feedBackends() {
		t.Run(b.name, func(t *testing.T) {
			stores := b.open(t)
			ctx := context.Background()
			apply(t, NewMaterializer(stores, 2),
				model.PostCreated{Author: "A", PostID: "p1", At: at(1)},
				model.PostLiked{User: "A", PostID: "p9", At: at(2)},
				model.PostCreated{Author: "A", PostID: "p2", At: at(3)},
				model.PostCreated{Author: "B", PostID: "pb", At: at(4)},
			)
			svc := NewTimelineService(stores.Timelines, stores.Activity)

			all, err := svc.UserTimeline(ctx, "A", 1, 0)
			require.NoError(t, err)
			assert.Equal(t, []model.ActivityEntry{
				{PostID: "p2", Type: model.EntryAuthored, Timestamp: at(3)},
				{PostID: "p9", Type: model.EntryLiked, Timestamp: at(2)},
				{PostID: "p1", Type: model.EntryAuthored, Timestamp: at(1)},
			}, all)

			page2, err := svc.UserTimeline(ctx, "A", 2, 2)
			require.NoError(t, err)
			assert.Equal(t, []model.ActivityEntry{{PostID: "p1", Type: model.EntryAuthored, Timestamp: at(1)}}, page2)

			beyond, err := svc.UserTimeline(ctx, "A", 5, 2)
			require.NoError(t, err)
			assert.Empty(t, beyond)
		})
	}
}
