package service

import (
	"context"

	"github.com/d60-Lab/socialgraph/internal/model"
	"github.com/d60-Lab/socialgraph/internal/repository"
)

// TimelineService 时间线查询
type TimelineService interface {
	// HomeTimeline pageSize <= 0 返回完整时间线；未知用户返回空
	HomeTimeline(ctx context.Context, user string, page, pageSize int) ([]model.TimelineEntry, error)
	// UserTimeline 用户自己发布和点赞的帖子，即活动日志，按时间倒序
	UserTimeline(ctx context.Context, user string, page, pageSize int) ([]model.ActivityEntry, error)
}

type timelineService struct {
	timelines repository.TimelineStore
	activity  repository.ActivityLog
}

func NewTimelineService(timelines repository.TimelineStore, activity repository.ActivityLog) TimelineService {
	return &timelineService{timelines: timelines, activity: activity}
}

func (s *timelineService) HomeTimeline(ctx context.Context, user string, page, pageSize int) ([]model.TimelineEntry, error) {
	if pageSize <= 0 {
		return s.timelines.List(ctx, user, 0, 0)
	}
	if page < 1 {
		page = 1
	}
	return s.timelines.List(ctx, user, (page-1)*pageSize, pageSize)
}

func (s *timelineService) UserTimeline(ctx context.Context, user string, page, pageSize int) ([]model.ActivityEntry, error) {
	all, err := s.activity.ListAll(ctx, user)
	if err != nil || pageSize <= 0 {
		return all, err
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []model.ActivityEntry{}, nil
	}
	return all[start:min(start+pageSize, len(all))], nil
}
