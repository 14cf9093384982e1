package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/socialgraph/internal/model"
	"github.com/d60-Lab/socialgraph/internal/repository"
	"github.com/d60-Lab/socialgraph/pkg/logger"
)

// MaterializedActions 时间线侧消费的事件
var MaterializedActions = []model.ActionType{
	model.ActionUserDeleted,
	model.ActionUserBlocked,
	model.ActionUserFollowed,
	model.ActionUserUnfollowed,
	model.ActionPostCreated,
	model.ActionPostDeleted,
	model.ActionPostLiked,
	model.ActionPostUnliked,
}

// Materializer 增量维护每个用户的主页时间线（写扩散）
//
// 每个 handler 都可以整体重放：写入按键 upsert，删除按条件匹配，
// 部分失败时返回错误，消息被重投后从头再执行一遍。
// 同一 owner 时间线的读改写经 keyLock 串行。
type Materializer struct {
	activity  repository.ActivityLog
	timelines repository.TimelineStore
	follows   repository.FollowIndex

	locks       *keyLock
	fanoutLimit int
	now         func() time.Time
}

func NewMaterializer(stores repository.FeedStores, fanoutLimit int) *Materializer {
	return &Materializer{
		activity:    stores.Activity,
		timelines:   stores.Timelines,
		follows:     stores.Follows,
		locks:       newKeyLock(256),
		fanoutLimit: fanoutLimit,
		now:         time.Now,
	}
}

func (m *Materializer) Handle(ctx context.Context, ev model.DomainEvent) error {
	logger.Debug("materialize", eventFields(ev)...)
	switch e := ev.(type) {
	case model.PostCreated:
		return m.postCreated(ctx, e)
	case model.PostDeleted:
		return m.postDeleted(ctx, e.Author, e.PostID)
	case model.PostLiked:
		return m.postLiked(ctx, e)
	case model.PostUnliked:
		return m.postUnliked(ctx, e)
	case model.UserFollowed:
		return m.userFollowed(ctx, e)
	case model.UserUnfollowed:
		return m.userUnfollowed(ctx, e)
	case model.UserBlocked:
		return m.userBlocked(ctx, e)
	case model.UserDeleted:
		return m.userDeleted(ctx, e)
	case model.UserCreated, model.UserUnblocked:
		// 没有需要物化的内容；解除拉黑不会恢复关注
		return nil
	default:
		logger.Warn("materializer: ignoring unknown event", eventFields(ev)...)
		return nil
	}
}

// stamp 事件自带时间优先，保证重投时写入相同的时间戳
func (m *Materializer) stamp(at time.Time) time.Time {
	if at.IsZero() {
		at = m.now()
	}
	return at.UTC().Truncate(time.Millisecond)
}

// withOwner 串行化对同一时间线的修改
func (m *Materializer) withOwner(owner string, fn func() error) error {
	unlock := m.locks.Lock(owner)
	defer unlock()
	return fn()
}

// pushToFollowers 把 entry 写入 actor 所有关注者的时间线
func (m *Materializer) pushToFollowers(ctx context.Context, actor string, entry model.TimelineEntry) error {
	followers, err := m.follows.Followers(ctx, actor)
	if err != nil {
		return err
	}
	return fanout(ctx, m.fanoutLimit, followers, func(ctx context.Context, owner string) error {
		return m.withOwner(owner, func() error {
			_, err := m.timelines.Upsert(ctx, owner, entry)
			return err
		})
	})
}

func (m *Materializer) stripFromFollowers(ctx context.Context, actor string, f model.EntryFilter) error {
	followers, err := m.follows.Followers(ctx, actor)
	if err != nil {
		return err
	}
	return fanout(ctx, m.fanoutLimit, followers, func(ctx context.Context, owner string) error {
		return m.withOwner(owner, func() error {
			_, err := m.timelines.RemoveEntries(ctx, owner, f)
			return err
		})
	})
}

// resurrected 扇出结束后再查一次删除标记，清理与 PostDeleted 并发写入的记录
func (m *Materializer) resurrected(ctx context.Context, postID string) error {
	gone, err := m.activity.IsTombstoned(ctx, postID)
	if err != nil || !gone {
		return err
	}
	return m.postDeleted(ctx, "", postID)
}

func (m *Materializer) postCreated(ctx context.Context, e model.PostCreated) error {
	if gone, err := m.activity.IsTombstoned(ctx, e.PostID); err != nil || gone {
		return err
	}
	entry := model.ActivityEntry{PostID: e.PostID, Type: model.EntryAuthored, Timestamp: m.stamp(e.At)}
	// 已存在也继续扇出：上一次投递可能在扇出中途失败
	if _, err := m.activity.Append(ctx, e.Author, entry); err != nil {
		return err
	}
	if err := m.pushToFollowers(ctx, e.Author, entry.ToTimeline(e.Author)); err != nil {
		return err
	}
	return m.resurrected(ctx, e.PostID)
}

// postDeleted 删除所有活动日志与时间线中对该帖子的引用（作者的 AUTHORED 与他人的 LIKED）
func (m *Materializer) postDeleted(ctx context.Context, author, postID string) error {
	if err := m.activity.Tombstone(ctx, postID); err != nil {
		return err
	}
	holders, err := m.activity.Holders(ctx, postID)
	if err != nil {
		return err
	}
	if author != "" {
		holders = append(holders, author)
	}
	for _, user := range holders {
		if _, err := m.activity.RemoveActivity(ctx, user, model.EntryFilter{PostID: postID}); err != nil {
			return err
		}
	}
	_, err = m.timelines.RemovePost(ctx, postID)
	return err
}

func (m *Materializer) postLiked(ctx context.Context, e model.PostLiked) error {
	if gone, err := m.activity.IsTombstoned(ctx, e.PostID); err != nil || gone {
		return err
	}
	entry := model.ActivityEntry{PostID: e.PostID, Type: model.EntryLiked, Timestamp: m.stamp(e.At)}
	if _, err := m.activity.Append(ctx, e.User, entry); err != nil {
		return err
	}
	// 时间线中 LIKED 记录的作者是点赞者
	if err := m.pushToFollowers(ctx, e.User, entry.ToTimeline(e.User)); err != nil {
		return err
	}
	return m.resurrected(ctx, e.PostID)
}

func (m *Materializer) postUnliked(ctx context.Context, e model.PostUnliked) error {
	f := model.EntryFilter{PostID: e.PostID, Type: model.EntryLiked}
	if _, err := m.activity.RemoveActivity(ctx, e.User, f); err != nil {
		return err
	}
	f.AuthorID = e.User
	return m.stripFromFollowers(ctx, e.User, f)
}

// userFollowed 记录关注关系，并把被关注者的全部活动回放到关注者时间线
func (m *Materializer) userFollowed(ctx context.Context, e model.UserFollowed) error {
	if err := m.follows.AddFollow(ctx, e.Follower, e.Followee); err != nil {
		return err
	}
	activity, err := m.activity.ListAll(ctx, e.Followee)
	if err != nil {
		return err
	}
	if len(activity) == 0 {
		return nil
	}
	entries := make([]model.TimelineEntry, len(activity))
	for i, a := range activity {
		entries[i] = a.ToTimeline(e.Followee)
	}
	return m.withOwner(e.Follower, func() error {
		_, err := m.timelines.Upsert(ctx, e.Follower, entries...)
		return err
	})
}

func (m *Materializer) userUnfollowed(ctx context.Context, e model.UserUnfollowed) error {
	if err := m.follows.RemoveFollow(ctx, e.Follower, e.Followee); err != nil {
		return err
	}
	return m.withOwner(e.Follower, func() error {
		_, err := m.timelines.RemoveEntries(ctx, e.Follower, model.EntryFilter{AuthorID: e.Followee})
		return err
	})
}

// userBlocked 拉黑隐含双向取消关注
func (m *Materializer) userBlocked(ctx context.Context, e model.UserBlocked) error {
	pairs := [][2]string{{e.Blocker, e.Blocked}, {e.Blocked, e.Blocker}}
	for _, p := range pairs {
		if err := m.userUnfollowed(ctx, model.UserUnfollowed{Follower: p[0], Followee: p[1]}); err != nil {
			return err
		}
	}
	return nil
}

// userDeleted 先清理他人时间线与活动日志中的引用，最后删除用户自己的时间线与活动日志
func (m *Materializer) userDeleted(ctx context.Context, e model.UserDeleted) error {
	activity, err := m.activity.ListAll(ctx, e.Username)
	if err != nil {
		return err
	}
	for _, a := range activity {
		if a.Type == model.EntryAuthored {
			if err := m.postDeleted(ctx, e.Username, a.PostID); err != nil {
				return err
			}
		}
	}
	if err := m.stripFromFollowers(ctx, e.Username, model.EntryFilter{AuthorID: e.Username}); err != nil {
		return err
	}
	if err := m.follows.DeleteUser(ctx, e.Username); err != nil {
		return err
	}
	if err := m.withOwner(e.Username, func() error {
		return m.timelines.DeleteTimeline(ctx, e.Username)
	}); err != nil {
		return err
	}
	return m.activity.DeleteLog(ctx, e.Username)
}

func eventFields(ev model.DomainEvent) []zap.Field {
	user, post := model.Subject(ev)
	return []zap.Field{
		zap.String("action", string(ev.Action())),
		zap.String("user", user),
		zap.String("post", post),
	}
}
