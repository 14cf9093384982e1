package repository

import (
	"context"

	"github.com/d60-Lab/socialgraph/internal/model"
)

// ActivityLog 每个用户自己的发帖 / 点赞记录，仅由 Materializer 写入
type ActivityLog interface {
	// Append 已存在同 (PostID, Type) 时为 no-op，返回是否新增
	Append(ctx context.Context, user string, e model.ActivityEntry) (bool, error)
	RemoveActivity(ctx context.Context, user string, f model.EntryFilter) (int, error)
	// ListAll 按时间倒序返回全部记录
	ListAll(ctx context.Context, user string) ([]model.ActivityEntry, error)
	DeleteLog(ctx context.Context, user string) error
	// Holders 返回活动日志中引用过该帖子的用户（可能多于实际）
	Holders(ctx context.Context, postID string) ([]string, error)
	Tombstone(ctx context.Context, postID string) error
	IsTombstoned(ctx context.Context, postID string) (bool, error)
}

// TimelineStore 物化的主页时间线，按时间倒序
type TimelineStore interface {
	// Upsert 跳过已存在的 (PostID, Type, AuthorID)，返回新增条数
	Upsert(ctx context.Context, owner string, entries ...model.TimelineEntry) (int, error)
	RemoveEntries(ctx context.Context, owner string, f model.EntryFilter) (int, error)
	// RemovePost 从所有时间线中删除引用该帖子的记录
	RemovePost(ctx context.Context, postID string) (int, error)
	// List limit <= 0 返回全部
	List(ctx context.Context, owner string, offset, limit int) ([]model.TimelineEntry, error)
	DeleteTimeline(ctx context.Context, owner string) error
}

// FollowIndex 时间线侧的关注关系副本，由 UserFollowed / UserUnfollowed 事件维护
type FollowIndex interface {
	AddFollow(ctx context.Context, follower, followee string) error
	RemoveFollow(ctx context.Context, follower, followee string) error
	Followers(ctx context.Context, user string) ([]string, error)
	Following(ctx context.Context, user string) ([]string, error)
	DeleteUser(ctx context.Context, user string) error
}

// FeedStores 时间线侧的三个存储
type FeedStores struct {
	Activity  ActivityLog
	Timelines TimelineStore
	Follows   FollowIndex
}
