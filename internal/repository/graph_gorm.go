package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/socialgraph/internal/apperr"
	"github.com/d60-Lab/socialgraph/internal/model"
)

// maxSince 冲突时保留较大的时间戳（postgres / sqlite 通用写法）
const maxSince = "CASE WHEN excluded.since > graph_edges.since THEN excluded.since ELSE graph_edges.since END"

type gormRelationshipStore struct {
	db *gorm.DB
}

func NewGormRelationshipStore(db *gorm.DB) RelationshipStore {
	return &gormRelationshipStore{db: db}
}

func (r *gormRelationshipStore) UpsertEdge(ctx context.Context, e model.Edge) error {
	if err := e.Validate(); err != nil {
		return apperr.BadRequest("%v", err)
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		nodes := []model.GraphNode{
			{Type: string(e.SourceNode().Type), ID: e.Source, CreatedAt: now},
			{Type: string(e.TargetNode().Type), ID: e.Target, CreatedAt: now},
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&nodes).Error; err != nil {
			return err
		}
		row := model.GraphEdge{SourceID: e.Source, TargetID: e.Target, Type: string(e.Type), Since: e.Since.UnixMilli()}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_id"}, {Name: "target_id"}, {Name: "type"}},
			DoUpdates: clause.Set{{Column: clause.Column{Name: "since"}, Value: gorm.Expr(maxSince)}},
		}).Create(&row).Error
	})
	return apperr.Unavailable("graph.upsert_edge", err)
}

func (r *gormRelationshipStore) DeleteEdge(ctx context.Context, source, target string, t model.EdgeType) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("source_id = ? AND target_id = ? AND type = ?", source, target, string(t)).
		Delete(&model.GraphEdge{})
	if res.Error != nil {
		return false, apperr.Unavailable("graph.delete_edge", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRelationshipStore) EdgeExists(ctx context.Context, source, target string, t model.EdgeType) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.GraphEdge{}).
		Where("source_id = ? AND target_id = ? AND type = ?", source, target, string(t)).
		Count(&cnt).Error; err != nil {
		return false, apperr.Unavailable("graph.edge_exists", err)
	}
	return cnt > 0, nil
}

func (r *gormRelationshipStore) NodeExists(ctx context.Context, n model.Node) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.GraphNode{}).
		Where("type = ? AND id = ?", string(n.Type), n.ID).
		Count(&cnt).Error; err != nil {
		return false, apperr.Unavailable("graph.node_exists", err)
	}
	return cnt > 0, nil
}

func (r *gormRelationshipStore) CreateNode(ctx context.Context, n model.Node) error {
	row := model.GraphNode{Type: string(n.Type), ID: n.ID, CreatedAt: time.Now()}
	// 幂等：重复创建不报错
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	return apperr.Unavailable("graph.create_node", err)
}

func (r *gormRelationshipStore) DeleteNode(ctx context.Context, n model.Node) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if types := typeNames(model.EdgeTypesFrom(n.Type)); len(types) > 0 {
			if err := tx.Where("source_id = ? AND type IN ?", n.ID, types).Delete(&model.GraphEdge{}).Error; err != nil {
				return err
			}
		}
		if types := typeNames(model.EdgeTypesInto(n.Type)); len(types) > 0 {
			if err := tx.Where("target_id = ? AND type IN ?", n.ID, types).Delete(&model.GraphEdge{}).Error; err != nil {
				return err
			}
		}
		return tx.Where("type = ? AND id = ?", string(n.Type), n.ID).Delete(&model.GraphNode{}).Error
	})
	return apperr.Unavailable("graph.delete_node", err)
}

func (r *gormRelationshipStore) Sources(ctx context.Context, target string, t model.EdgeType) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&model.GraphEdge{}).
		Where("target_id = ? AND type = ?", target, string(t)).
		Order("since DESC").
		Pluck("source_id", &ids).Error; err != nil {
		return nil, apperr.Unavailable("graph.sources", err)
	}
	return ids, nil
}

func (r *gormRelationshipStore) Targets(ctx context.Context, source string, t model.EdgeType) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&model.GraphEdge{}).
		Where("source_id = ? AND type = ?", source, string(t)).
		Order("since DESC").
		Pluck("target_id", &ids).Error; err != nil {
		return nil, apperr.Unavailable("graph.targets", err)
	}
	return ids, nil
}

func typeNames(ts []model.EdgeType) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}
