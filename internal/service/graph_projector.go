package service

import (
	"context"

	"github.com/d60-Lab/socialgraph/internal/model"
	"github.com/d60-Lab/socialgraph/internal/repository"
	"github.com/d60-Lab/socialgraph/pkg/logger"
)

// ProjectedActions 关系存储消费的事件
var ProjectedActions = []model.ActionType{
	model.ActionUserCreated,
	model.ActionUserDeleted,
	model.ActionPostCreated,
	model.ActionPostDeleted,
}

// GraphProjector 把用户 / 帖子的生命周期事件投影到关系存储
type GraphProjector struct {
	store repository.RelationshipStore
}

func NewGraphProjector(store repository.RelationshipStore) *GraphProjector {
	return &GraphProjector{store: store}
}

func (p *GraphProjector) Handle(ctx context.Context, ev model.DomainEvent) error {
	switch e := ev.(type) {
	case model.UserCreated:
		return p.store.CreateNode(ctx, model.UserNode(e.Username))
	case model.UserDeleted:
		// 先删帖子再删用户；失败重投时已删除的部分是 no-op
		posts, err := p.store.Targets(ctx, e.Username, model.EdgePosted)
		if err != nil {
			return err
		}
		for _, postID := range posts {
			if err := p.store.DeleteNode(ctx, model.PostNode(postID)); err != nil {
				return err
			}
		}
		return p.store.DeleteNode(ctx, model.UserNode(e.Username))
	case model.PostCreated:
		return p.store.UpsertEdge(ctx, model.Edge{
			Source: e.Author,
			Target: e.PostID,
			Type:   model.EdgePosted,
			Since:  e.At,
		})
	case model.PostDeleted:
		return p.store.DeleteNode(ctx, model.PostNode(e.PostID))
	default:
		logger.Debug("graph projector: ignoring event", eventFields(ev)...)
		return nil
	}
}
