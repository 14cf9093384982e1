package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/socialgraph/internal/service"
)

// Handler HTTP 入口，只做参数解析与错误映射
type Handler struct {
	socialSvc   service.SocialService
	timelineSvc service.TimelineService
}

func NewHandler(socialSvc service.SocialService, timelineSvc service.TimelineService) *Handler {
	return &Handler{socialSvc: socialSvc, timelineSvc: timelineSvc}
}

// paging 解析 page / page_size；非法值回落到默认值
func paging(c *gin.Context, defaultSize int) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultSize)))
	if err != nil || pageSize < 0 {
		pageSize = defaultSize
	}
	return page, pageSize
}
