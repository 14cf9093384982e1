package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/socialgraph/internal/apperr"
	"github.com/d60-Lab/socialgraph/internal/model"
	"github.com/d60-Lab/socialgraph/pkg/response"
)

// HomeTimeline 查询主页时间线
// @Summary 主页时间线（写扩散物化结果）
// @Tags 时间线
// @Param username path string true "用户名"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量，0 表示全部" default(20)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/timelines/home/{username} [get]
func (h *Handler) HomeTimeline(c *gin.Context) {
	page, pageSize := paging(c, 20)
	list, err := h.timelineSvc.HomeTimeline(c.Request.Context(), c.Param("username"), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	if list == nil {
		list = []model.TimelineEntry{}
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}

// UserTimeline 查询用户自己发布和点赞的帖子
// @Summary 用户时间线（活动日志）
// @Tags 时间线
// @Param username path string true "用户名"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量，0 表示全部" default(20)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Failure 404 {object} response.Response
// @Router /api/v1/timelines/user/{username} [get]
func (h *Handler) UserTimeline(c *gin.Context) {
	ctx := c.Request.Context()
	user := c.Param("username")
	ok, err := h.socialSvc.UserExists(ctx, user)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !ok {
		response.Error(c, apperr.NotFound("user %s not found", user))
		return
	}
	page, pageSize := paging(c, 20)
	list, err := h.timelineSvc.UserTimeline(ctx, user, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	if list == nil {
		list = []model.ActivityEntry{}
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}
