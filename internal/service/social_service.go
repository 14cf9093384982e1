package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/socialgraph/internal/apperr"
	"github.com/d60-Lab/socialgraph/internal/model"
	"github.com/d60-Lab/socialgraph/internal/repository"
	"github.com/d60-Lab/socialgraph/pkg/logger"
)

// EventPublisher 发布领域事件（eventbus.Publisher 实现）
type EventPublisher interface {
	Publish(ctx context.Context, ev model.DomainEvent) error
}

// SocialService 关系链服务
// 每个变更操作：校验端点存在 → 校验前置条件 → 写关系存储 → 发布一个事件
type SocialService interface {
	Follow(ctx context.Context, user, target string) error
	Unfollow(ctx context.Context, user, target string) error
	Block(ctx context.Context, user, target string) error
	Unblock(ctx context.Context, user, target string) error
	Like(ctx context.Context, user, postID string) error
	Unlike(ctx context.Context, user, postID string) error

	Followers(ctx context.Context, user string) ([]string, error)
	Follows(ctx context.Context, user string) ([]string, error)
	// BlockedBy 返回 user 拉黑的用户
	BlockedBy(ctx context.Context, user string) ([]string, error)
	// BlockersOf 返回拉黑了 user 的用户
	BlockersOf(ctx context.Context, user string) ([]string, error)
	Likers(ctx context.Context, postID string) ([]string, error)
	LikedPosts(ctx context.Context, user string) ([]string, error)
	// AuthorOf 未知帖子返回空字符串
	AuthorOf(ctx context.Context, postID string) (string, error)

	UserExists(ctx context.Context, user string) (bool, error)
	PostExists(ctx context.Context, postID string) (bool, error)
}

type socialService struct {
	store repository.RelationshipStore
	pub   EventPublisher
	now   func() time.Time
}

func NewSocialService(store repository.RelationshipStore, pub EventPublisher) SocialService {
	return &socialService{store: store, pub: pub, now: time.Now}
}

// stamp 存储精度为毫秒
func (s *socialService) stamp() time.Time { return s.now().UTC().Truncate(time.Millisecond) }

func (s *socialService) Follow(ctx context.Context, user, target string) error {
	if err := s.checkPair(ctx, user, target, "follow"); err != nil {
		return err
	}
	if blocked, err := s.blockedEitherWay(ctx, user, target); err != nil {
		return err
	} else if blocked {
		return apperr.Forbidden("%s and %s have a block between them", user, target)
	}
	if err := s.requireEdge(ctx, user, target, model.EdgeFollows, false); err != nil {
		return err
	}
	at := s.stamp()
	if err := s.store.UpsertEdge(ctx, model.Edge{Source: user, Target: target, Type: model.EdgeFollows, Since: at}); err != nil {
		return err
	}
	return s.publish(ctx, model.UserFollowed{Follower: user, Followee: target, At: at})
}

func (s *socialService) Unfollow(ctx context.Context, user, target string) error {
	if err := s.checkPair(ctx, user, target, "unfollow"); err != nil {
		return err
	}
	if err := s.requireEdge(ctx, user, target, model.EdgeFollows, true); err != nil {
		return err
	}
	if _, err := s.store.DeleteEdge(ctx, user, target, model.EdgeFollows); err != nil {
		return err
	}
	return s.publish(ctx, model.UserUnfollowed{Follower: user, Followee: target, At: s.stamp()})
}

// Block 拉黑会同时删除双方之间的关注关系，不单独发布取消关注事件
func (s *socialService) Block(ctx context.Context, user, target string) error {
	if err := s.checkPair(ctx, user, target, "block"); err != nil {
		return err
	}
	if err := s.requireEdge(ctx, user, target, model.EdgeBlocks, false); err != nil {
		return err
	}
	at := s.stamp()
	if err := s.store.UpsertEdge(ctx, model.Edge{Source: user, Target: target, Type: model.EdgeBlocks, Since: at}); err != nil {
		return err
	}
	if _, err := s.store.DeleteEdge(ctx, user, target, model.EdgeFollows); err != nil {
		return err
	}
	if _, err := s.store.DeleteEdge(ctx, target, user, model.EdgeFollows); err != nil {
		return err
	}
	return s.publish(ctx, model.UserBlocked{Blocker: user, Blocked: target, At: at})
}

func (s *socialService) Unblock(ctx context.Context, user, target string) error {
	if err := s.checkPair(ctx, user, target, "unblock"); err != nil {
		return err
	}
	if err := s.requireEdge(ctx, user, target, model.EdgeBlocks, true); err != nil {
		return err
	}
	if _, err := s.store.DeleteEdge(ctx, user, target, model.EdgeBlocks); err != nil {
		return err
	}
	return s.publish(ctx, model.UserUnblocked{Blocker: user, Blocked: target, At: s.stamp()})
}

func (s *socialService) Like(ctx context.Context, user, postID string) error {
	if err := s.checkUserPost(ctx, user, postID); err != nil {
		return err
	}
	if err := s.requireEdge(ctx, user, postID, model.EdgeLikes, false); err != nil {
		return err
	}
	author, err := s.AuthorOf(ctx, postID)
	if err != nil {
		return err
	}
	if author != "" && author != user {
		if blocked, err := s.blockedEitherWay(ctx, user, author); err != nil {
			return err
		} else if blocked {
			return apperr.Forbidden("%s and the author of post %s have a block between them", user, postID)
		}
	}
	at := s.stamp()
	if err := s.store.UpsertEdge(ctx, model.Edge{Source: user, Target: postID, Type: model.EdgeLikes, Since: at}); err != nil {
		return err
	}
	return s.publish(ctx, model.PostLiked{User: user, PostID: postID, At: at})
}

func (s *socialService) Unlike(ctx context.Context, user, postID string) error {
	if err := s.checkUserPost(ctx, user, postID); err != nil {
		return err
	}
	if err := s.requireEdge(ctx, user, postID, model.EdgeLikes, true); err != nil {
		return err
	}
	if _, err := s.store.DeleteEdge(ctx, user, postID, model.EdgeLikes); err != nil {
		return err
	}
	return s.publish(ctx, model.PostUnliked{User: user, PostID: postID, At: s.stamp()})
}

func (s *socialService) Followers(ctx context.Context, user string) ([]string, error) {
	return s.store.Sources(ctx, user, model.EdgeFollows)
}

func (s *socialService) Follows(ctx context.Context, user string) ([]string, error) {
	return s.store.Targets(ctx, user, model.EdgeFollows)
}

func (s *socialService) BlockedBy(ctx context.Context, user string) ([]string, error) {
	return s.store.Targets(ctx, user, model.EdgeBlocks)
}

func (s *socialService) BlockersOf(ctx context.Context, user string) ([]string, error) {
	return s.store.Sources(ctx, user, model.EdgeBlocks)
}

func (s *socialService) Likers(ctx context.Context, postID string) ([]string, error) {
	return s.store.Sources(ctx, postID, model.EdgeLikes)
}

func (s *socialService) LikedPosts(ctx context.Context, user string) ([]string, error) {
	return s.store.Targets(ctx, user, model.EdgeLikes)
}

func (s *socialService) AuthorOf(ctx context.Context, postID string) (string, error) {
	authors, err := s.store.Sources(ctx, postID, model.EdgePosted)
	if err != nil || len(authors) == 0 {
		return "", err
	}
	return authors[0], nil
}

func (s *socialService) UserExists(ctx context.Context, user string) (bool, error) {
	return s.store.NodeExists(ctx, model.UserNode(user))
}

func (s *socialService) PostExists(ctx context.Context, postID string) (bool, error) {
	return s.store.NodeExists(ctx, model.PostNode(postID))
}

// checkPair 自身操作 → BadRequest；任一用户不存在 → NotFound
func (s *socialService) checkPair(ctx context.Context, user, target, op string) error {
	if user == target {
		return apperr.BadRequest("cannot %s self", op)
	}
	for _, u := range []string{user, target} {
		ok, err := s.UserExists(ctx, u)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("user %s", u)
		}
	}
	return nil
}

func (s *socialService) checkUserPost(ctx context.Context, user, postID string) error {
	ok, err := s.UserExists(ctx, user)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("user %s", user)
	}
	if ok, err = s.PostExists(ctx, postID); err != nil {
		return err
	} else if !ok {
		return apperr.NotFound("post %s", postID)
	}
	return nil
}

// requireEdge want=true 要求边存在，want=false 要求边不存在，否则 Conflict
func (s *socialService) requireEdge(ctx context.Context, source, target string, t model.EdgeType, want bool) error {
	exists, err := s.store.EdgeExists(ctx, source, target, t)
	if err != nil {
		return err
	}
	if exists == want {
		return nil
	}
	if exists {
		return apperr.Conflict("%s %s -> %s already exists", t, source, target)
	}
	return apperr.Conflict("%s %s -> %s does not exist", t, source, target)
}

func (s *socialService) blockedEitherWay(ctx context.Context, a, b string) (bool, error) {
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		ok, err := s.store.EdgeExists(ctx, pair[0], pair[1], model.EdgeBlocks)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// publish 写入已提交，发布失败时只记录并上抛，不回滚关系存储
func (s *socialService) publish(ctx context.Context, ev model.DomainEvent) error {
	if err := s.pub.Publish(ctx, ev); err != nil {
		logger.Error("publish event failed after graph write",
			zap.String("action", string(ev.Action())),
			zap.Error(err))
		return fmt.Errorf("publish %s: %w", ev.Action(), err)
	}
	return nil
}
