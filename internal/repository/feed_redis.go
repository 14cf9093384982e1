package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/socialgraph/internal/apperr"
	"github.com/d60-Lab/socialgraph/internal/model"
)

// Redis key 布局
//   timeline:{owner}         ZSET member=TYPE:post:author score=unix ms
//   activity:{user}          ZSET member=TYPE:post        score=unix ms
//   post:{id}:timelines      SET  可能包含该帖子的时间线 owner
//   post:{id}:activities     SET  可能包含该帖子的活动日志 user
//   post:{id}:deleted        STRING 删除标记
//   following:{u} / followers:{u}  SET
const (
	tombstoneTTL   = 7 * 24 * time.Hour
	maxWatchRetry  = 8
	keyTimeline    = "timeline:%s"
	keyActivity    = "activity:%s"
	keyPostTLs     = "post:%s:timelines"
	keyPostActs    = "post:%s:activities"
	keyPostDeleted = "post:%s:deleted"
	keyFollowing   = "following:%s"
	keyFollowers   = "followers:%s"
)

// NewRedisFeedStores 基于 redis 的时间线存储；timelineCap > 0 时只保留最新的 N 条
func NewRedisFeedStores(rdb *redis.Client, timelineCap int) FeedStores {
	return FeedStores{
		Activity:  &redisActivityLog{rdb: rdb},
		Timelines: &redisTimelineStore{rdb: rdb, cap: timelineCap},
		Follows:   &redisFollowIndex{rdb: rdb},
	}
}

func timelineMember(e model.TimelineEntry) string {
	return string(e.Type) + ":" + e.PostID + ":" + e.AuthorID
}

func parseTimelineMember(m string, score float64) (model.TimelineEntry, bool) {
	parts := strings.SplitN(m, ":", 3)
	if len(parts) != 3 {
		return model.TimelineEntry{}, false
	}
	return model.TimelineEntry{
		Type:      model.EntryType(parts[0]),
		PostID:    parts[1],
		AuthorID:  parts[2],
		Timestamp: model.FromMillis(int64(score)),
	}, true
}

func activityMember(e model.ActivityEntry) string { return string(e.Type) + ":" + e.PostID }

func parseActivityMember(m string, score float64) (model.ActivityEntry, bool) {
	typ, post, ok := strings.Cut(m, ":")
	if !ok {
		return model.ActivityEntry{}, false
	}
	return model.ActivityEntry{Type: model.EntryType(typ), PostID: post, Timestamp: model.FromMillis(int64(score))}, true
}

// removeMatching 在 WATCH 下读出 key 的成员，删除 match 命中的部分；并发修改时重试
func removeMatching(ctx context.Context, rdb *redis.Client, key string, match func(string) bool) (int, error) {
	removed := 0
	txf := func(tx *redis.Tx) error {
		members, err := tx.ZRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}
		var hit []interface{}
		for _, m := range members {
			if match(m) {
				hit = append(hit, m)
			}
		}
		removed = len(hit)
		if len(hit) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, key, hit...)
			return nil
		})
		return err
	}
	for i := 0; i < maxWatchRetry; i++ {
		err := rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return removed, err
	}
	return 0, fmt.Errorf("watch %s: %w", key, redis.TxFailedErr)
}

type redisTimelineStore struct {
	rdb *redis.Client
	cap int
}

func (s *redisTimelineStore) Upsert(ctx context.Context, owner string, entries ...model.TimelineEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	key := fmt.Sprintf(keyTimeline, owner)
	members := make([]redis.Z, len(entries))
	for i, e := range entries {
		members[i] = redis.Z{Score: float64(e.Timestamp.UnixMilli()), Member: timelineMember(e)}
	}
	var added *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		// NX：已存在的成员保持原样
		added = pipe.ZAddNX(ctx, key, members...)
		for _, e := range entries {
			pipe.SAdd(ctx, fmt.Sprintf(keyPostTLs, e.PostID), owner)
		}
		if s.cap > 0 {
			pipe.ZRemRangeByRank(ctx, key, 0, int64(-s.cap-1))
		}
		return nil
	})
	if err != nil {
		return 0, apperr.Unavailable("timeline.upsert", err)
	}
	return int(added.Val()), nil
}

func (s *redisTimelineStore) RemoveEntries(ctx context.Context, owner string, f model.EntryFilter) (int, error) {
	n, err := removeMatching(ctx, s.rdb, fmt.Sprintf(keyTimeline, owner), func(m string) bool {
		e, ok := parseTimelineMember(m, 0)
		return ok && f.MatchTimeline(e)
	})
	return n, apperr.Unavailable("timeline.remove", err)
}

func (s *redisTimelineStore) RemovePost(ctx context.Context, postID string) (int, error) {
	idx := fmt.Sprintf(keyPostTLs, postID)
	owners, err := s.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, apperr.Unavailable("timeline.remove_post", err)
	}
	total := 0
	cleaned := make([]interface{}, 0, len(owners))
	for _, owner := range owners {
		n, err := s.RemoveEntries(ctx, owner, model.EntryFilter{PostID: postID})
		if err != nil {
			return total, err
		}
		total += n
		cleaned = append(cleaned, owner)
	}
	if len(cleaned) == 0 {
		return total, nil
	}
	// 只移除已清理的 owner：读索引之后并发加入的 owner 留给下一次清理
	if err := s.rdb.SRem(ctx, idx, cleaned...).Err(); err != nil {
		return total, apperr.Unavailable("timeline.remove_post", err)
	}
	return total, nil
}

func (s *redisTimelineStore) List(ctx context.Context, owner string, offset, limit int) ([]model.TimelineEntry, error) {
	if offset < 0 {
		offset = 0
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}
	zs, err := s.rdb.ZRevRangeWithScores(ctx, fmt.Sprintf(keyTimeline, owner), int64(offset), stop).Result()
	if err != nil {
		return nil, apperr.Unavailable("timeline.list", err)
	}
	out := make([]model.TimelineEntry, 0, len(zs))
	for _, z := range zs {
		m, _ := z.Member.(string)
		if e, ok := parseTimelineMember(m, z.Score); ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *redisTimelineStore) DeleteTimeline(ctx context.Context, owner string) error {
	return apperr.Unavailable("timeline.delete", s.rdb.Del(ctx, fmt.Sprintf(keyTimeline, owner)).Err())
}

type redisActivityLog struct {
	rdb *redis.Client
}

func (s *redisActivityLog) Append(ctx context.Context, user string, e model.ActivityEntry) (bool, error) {
	var added *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.ZAddNX(ctx, fmt.Sprintf(keyActivity, user), redis.Z{
			Score:  float64(e.Timestamp.UnixMilli()),
			Member: activityMember(e),
		})
		pipe.SAdd(ctx, fmt.Sprintf(keyPostActs, e.PostID), user)
		return nil
	})
	if err != nil {
		return false, apperr.Unavailable("activity.append", err)
	}
	return added.Val() > 0, nil
}

func (s *redisActivityLog) RemoveActivity(ctx context.Context, user string, f model.EntryFilter) (int, error) {
	n, err := removeMatching(ctx, s.rdb, fmt.Sprintf(keyActivity, user), func(m string) bool {
		e, ok := parseActivityMember(m, 0)
		return ok && f.MatchActivity(e)
	})
	return n, apperr.Unavailable("activity.remove", err)
}

func (s *redisActivityLog) ListAll(ctx context.Context, user string) ([]model.ActivityEntry, error) {
	zs, err := s.rdb.ZRevRangeWithScores(ctx, fmt.Sprintf(keyActivity, user), 0, -1).Result()
	if err != nil {
		return nil, apperr.Unavailable("activity.list", err)
	}
	out := make([]model.ActivityEntry, 0, len(zs))
	for _, z := range zs {
		m, _ := z.Member.(string)
		if e, ok := parseActivityMember(m, z.Score); ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *redisActivityLog) DeleteLog(ctx context.Context, user string) error {
	return apperr.Unavailable("activity.delete", s.rdb.Del(ctx, fmt.Sprintf(keyActivity, user)).Err())
}

func (s *redisActivityLog) Holders(ctx context.Context, postID string) ([]string, error) {
	users, err := s.rdb.SMembers(ctx, fmt.Sprintf(keyPostActs, postID)).Result()
	return users, apperr.Unavailable("activity.holders", err)
}

func (s *redisActivityLog) Tombstone(ctx context.Context, postID string) error {
	err := s.rdb.Set(ctx, fmt.Sprintf(keyPostDeleted, postID), 1, tombstoneTTL).Err()
	return apperr.Unavailable("activity.tombstone", err)
}

func (s *redisActivityLog) IsTombstoned(ctx context.Context, postID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, fmt.Sprintf(keyPostDeleted, postID)).Result()
	if err != nil {
		return false, apperr.Unavailable("activity.is_tombstoned", err)
	}
	return n > 0, nil
}

type redisFollowIndex struct {
	rdb *redis.Client
}

func (s *redisFollowIndex) AddFollow(ctx context.Context, follower, followee string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, fmt.Sprintf(keyFollowing, follower), followee)
		pipe.SAdd(ctx, fmt.Sprintf(keyFollowers, followee), follower)
		return nil
	})
	return apperr.Unavailable("follows.add", err)
}

func (s *redisFollowIndex) RemoveFollow(ctx context.Context, follower, followee string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, fmt.Sprintf(keyFollowing, follower), followee)
		pipe.SRem(ctx, fmt.Sprintf(keyFollowers, followee), follower)
		return nil
	})
	return apperr.Unavailable("follows.remove", err)
}

func (s *redisFollowIndex) Followers(ctx context.Context, user string) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, fmt.Sprintf(keyFollowers, user)).Result()
	return ids, apperr.Unavailable("follows.followers", err)
}

func (s *redisFollowIndex) Following(ctx context.Context, user string) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, fmt.Sprintf(keyFollowing, user)).Result()
	return ids, apperr.Unavailable("follows.following", err)
}

func (s *redisFollowIndex) DeleteUser(ctx context.Context, user string) error {
	followers, err := s.Followers(ctx, user)
	if err != nil {
		return err
	}
	following, err := s.Following(ctx, user)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, f := range followers {
			pipe.SRem(ctx, fmt.Sprintf(keyFollowing, f), user)
		}
		for _, f := range following {
			pipe.SRem(ctx, fmt.Sprintf(keyFollowers, f), user)
		}
		pipe.Del(ctx, fmt.Sprintf(keyFollowers, user), fmt.Sprintf(keyFollowing, user))
		return nil
	})
	return apperr.Unavailable("follows.delete_user", err)
}
