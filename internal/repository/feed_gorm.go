package repository

import (
	"context"
	"math"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/socialgraph/internal/apperr"
	"github.com/d60-Lab/socialgraph/internal/model"
)

// NewGormFeedStores 基于关系库的时间线存储（inbox / outbox 表）
func NewGormFeedStores(db *gorm.DB, timelineCap int) FeedStores {
	return FeedStores{
		Activity:  &gormActivityLog{db: db},
		Timelines: &gormTimelineStore{db: db, cap: timelineCap},
		Follows:   NewGormFollowIndex(db),
	}
}

const inboxOrder = "score DESC, type DESC, post_id DESC, author_id DESC"

type gormTimelineStore struct {
	db  *gorm.DB
	cap int
}

func (r *gormTimelineStore) Upsert(ctx context.Context, owner string, entries ...model.TimelineEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	records := make([]model.Inbox, len(entries))
	for i, e := range entries {
		records[i] = model.Inbox{OwnerID: owner, PostID: e.PostID, Type: string(e.Type), AuthorID: e.AuthorID, Score: e.Timestamp.UnixMilli()}
	}
	var added int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// upsert ignore duplicates
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&records)
		if res.Error != nil {
			return res.Error
		}
		added = res.RowsAffected
		if r.cap <= 0 {
			return nil
		}
		var overflow []model.Inbox
		if err := tx.Where("owner_id = ?", owner).Order(inboxOrder).Offset(r.cap).Limit(math.MaxInt32).Find(&overflow).Error; err != nil {
			return err
		}
		for _, o := range overflow {
			if err := tx.Where("owner_id = ? AND post_id = ? AND type = ? AND author_id = ?",
				o.OwnerID, o.PostID, o.Type, o.AuthorID).Delete(&model.Inbox{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, apperr.Unavailable("timeline.upsert", err)
	}
	return int(added), nil
}

func (r *gormTimelineStore) RemoveEntries(ctx context.Context, owner string, f model.EntryFilter) (int, error) {
	q := filterInbox(r.db.WithContext(ctx).Where("owner_id = ?", owner), f)
	res := q.Delete(&model.Inbox{})
	if res.Error != nil {
		return 0, apperr.Unavailable("timeline.remove", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (r *gormTimelineStore) RemovePost(ctx context.Context, postID string) (int, error) {
	res := r.db.WithContext(ctx).Where("post_id = ?", postID).Delete(&model.Inbox{})
	if res.Error != nil {
		return 0, apperr.Unavailable("timeline.remove_post", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (r *gormTimelineStore) List(ctx context.Context, owner string, offset, limit int) ([]model.TimelineEntry, error) {
	q := r.db.WithContext(ctx).Where("owner_id = ?", owner).Order(inboxOrder)
	if limit > 0 {
		q = q.Limit(limit)
	} else if offset > 0 {
		q = q.Limit(math.MaxInt32)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var rows []model.Inbox
	if err := q.Find(&rows).Error; err != nil {
		return nil, apperr.Unavailable("timeline.list", err)
	}
	out := make([]model.TimelineEntry, len(rows))
	for i, row := range rows {
		out[i] = row.Entry()
	}
	return out, nil
}

func (r *gormTimelineStore) DeleteTimeline(ctx context.Context, owner string) error {
	err := r.db.WithContext(ctx).Where("owner_id = ?", owner).Delete(&model.Inbox{}).Error
	return apperr.Unavailable("timeline.delete", err)
}

func filterInbox(q *gorm.DB, f model.EntryFilter) *gorm.DB {
	if f.PostID != "" {
		q = q.Where("post_id = ?", f.PostID)
	}
	if f.AuthorID != "" {
		q = q.Where("author_id = ?", f.AuthorID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", string(f.Type))
	}
	return q
}

type gormActivityLog struct {
	db *gorm.DB
}

func (r *gormActivityLog) Append(ctx context.Context, user string, e model.ActivityEntry) (bool, error) {
	row := model.Outbox{UserID: user, PostID: e.PostID, Type: string(e.Type), Score: e.Timestamp.UnixMilli()}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, apperr.Unavailable("activity.append", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *gormActivityLog) RemoveActivity(ctx context.Context, user string, f model.EntryFilter) (int, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", user)
	if f.PostID != "" {
		q = q.Where("post_id = ?", f.PostID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", string(f.Type))
	}
	res := q.Delete(&model.Outbox{})
	if res.Error != nil {
		return 0, apperr.Unavailable("activity.remove", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (r *gormActivityLog) ListAll(ctx context.Context, user string) ([]model.ActivityEntry, error) {
	var rows []model.Outbox
	if err := r.db.WithContext(ctx).Where("user_id = ?", user).
		Order("score DESC, type DESC, post_id DESC").Find(&rows).Error; err != nil {
		return nil, apperr.Unavailable("activity.list", err)
	}
	out := make([]model.ActivityEntry, len(rows))
	for i, row := range rows {
		out[i] = row.Entry()
	}
	return out, nil
}

func (r *gormActivityLog) DeleteLog(ctx context.Context, user string) error {
	err := r.db.WithContext(ctx).Where("user_id = ?", user).Delete(&model.Outbox{}).Error
	return apperr.Unavailable("activity.delete", err)
}

func (r *gormActivityLog) Holders(ctx context.Context, postID string) ([]string, error) {
	var users []string
	err := r.db.WithContext(ctx).Model(&model.Outbox{}).
		Where("post_id = ?", postID).
		Distinct().Pluck("user_id", &users).Error
	return users, apperr.Unavailable("activity.holders", err)
}

func (r *gormActivityLog) Tombstone(ctx context.Context, postID string) error {
	row := model.PostTombstone{PostID: postID, DeletedAt: time.Now()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	return apperr.Unavailable("activity.tombstone", err)
}

func (r *gormActivityLog) IsTombstoned(ctx context.Context, postID string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).Model(&model.PostTombstone{}).
		Where("post_id = ?", postID).Count(&cnt).Error; err != nil {
		return false, apperr.Unavailable("activity.is_tombstoned", err)
	}
	return cnt > 0, nil
}
