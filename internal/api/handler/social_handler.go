package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/socialgraph/internal/apperr"
	"github.com/d60-Lab/socialgraph/pkg/response"
)

type pairOp func(ctx context.Context, user, target string) error

func (h *Handler) pair(c *gin.Context, op pairOp, param string) {
	if err := op(c.Request.Context(), c.Param("username"), c.Param(param)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Follow 关注用户
// @Summary 关注用户
// @Tags 社交关系
// @Param username path string true "发起者"
// @Param target path string true "被关注者"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/social/{username}/follow/{target} [post]
func (h *Handler) Follow(c *gin.Context) { h.pair(c, h.socialSvc.Follow, "target") }

// Unfollow 取消关注
// @Summary 取消关注
// @Tags 社交关系
// @Router /api/v1/social/{username}/unfollow/{target} [post]
func (h *Handler) Unfollow(c *gin.Context) { h.pair(c, h.socialSvc.Unfollow, "target") }

// Block 拉黑，同时解除双向关注
// @Summary 拉黑用户
// @Tags 社交关系
// @Router /api/v1/social/{username}/block/{target} [post]
func (h *Handler) Block(c *gin.Context) { h.pair(c, h.socialSvc.Block, "target") }

// @Summary 解除拉黑
// @Tags 社交关系
// @Router /api/v1/social/{username}/unblock/{target} [post]
func (h *Handler) Unblock(c *gin.Context) { h.pair(c, h.socialSvc.Unblock, "target") }

// Like 点赞帖子
// @Summary 点赞
// @Tags 社交关系
// @Param username path string true "用户"
// @Param postId path string true "帖子ID"
// @Router /api/v1/social/{username}/like/{postId} [post]
func (h *Handler) Like(c *gin.Context) { h.pair(c, h.socialSvc.Like, "postId") }

// @Summary 取消点赞
// @Tags 社交关系
// @Router /api/v1/social/{username}/unlike/{postId} [post]
func (h *Handler) Unlike(c *gin.Context) { h.pair(c, h.socialSvc.Unlike, "postId") }

type listFn func(ctx context.Context, id string) ([]string, error)

// userList 用户不存在时返回 404，存在但无数据时返回空列表
func (h *Handler) userList(c *gin.Context, fn listFn) {
	ctx := c.Request.Context()
	user := c.Param("userId")
	ok, err := h.socialSvc.UserExists(ctx, user)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !ok {
		response.Error(c, apperr.NotFound("user %s not found", user))
		return
	}
	list, err := fn(ctx, user)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"list": nonNil(list)})
}

func (h *Handler) postList(c *gin.Context, fn listFn) {
	ctx := c.Request.Context()
	postID := c.Param("postId")
	ok, err := h.socialSvc.PostExists(ctx, postID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !ok {
		response.Error(c, apperr.NotFound("post %s not found", postID))
		return
	}
	list, err := fn(ctx, postID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"list": nonNil(list)})
}

// Followers 查询粉丝
// @Summary 粉丝列表
// @Tags 社交关系
// @Param userId path string true "用户名"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Failure 404 {object} response.Response
// @Router /api/v1/social/users/{userId}/followers [get]
func (h *Handler) Followers(c *gin.Context) { h.userList(c, h.socialSvc.Followers) }

// Follows 查询关注列表
// @Router /api/v1/social/users/{userId}/follows [get]
func (h *Handler) Follows(c *gin.Context) { h.userList(c, h.socialSvc.Follows) }

// Blocked 该用户拉黑的人
// @Router /api/v1/social/users/{userId}/blocked [get]
func (h *Handler) Blocked(c *gin.Context) { h.userList(c, h.socialSvc.BlockedBy) }

// BlockedBy 拉黑了该用户的人
// @Router /api/v1/social/users/{userId}/blocked-by [get]
func (h *Handler) BlockedBy(c *gin.Context) { h.userList(c, h.socialSvc.BlockersOf) }

// @Router /api/v1/social/users/{userId}/liked-posts [get]
func (h *Handler) LikedPosts(c *gin.Context) { h.userList(c, h.socialSvc.LikedPosts) }

// LikeUsers 点赞过该帖子的用户
// @Router /api/v1/social/posts/{postId}/like-users [get]
func (h *Handler) LikeUsers(c *gin.Context) { h.postList(c, h.socialSvc.Likers) }

// PostAuthor 帖子作者
// @Router /api/v1/social/posts/{postId}/author [get]
func (h *Handler) PostAuthor(c *gin.Context) {
	postID := c.Param("postId")
	author, err := h.socialSvc.AuthorOf(c.Request.Context(), postID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if author == "" {
		response.Error(c, apperr.NotFound("post %s not found", postID))
		return
	}
	response.Success(c, gin.H{"author": author})
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
