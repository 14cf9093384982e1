package repository

import (
	"context"

	"github.com/d60-Lab/socialgraph/internal/model"
)

// RelationshipStore 关系存储：节点与有向边的原子操作
// 所有后端错误以 apperr.ErrStoreUnavailable 返回，不在内部重试
type RelationshipStore interface {
	// UpsertEdge 幂等写入；两端节点不存在时一并创建，Since 取较大值
	UpsertEdge(ctx context.Context, e model.Edge) error
	// DeleteEdge 不存在时为 no-op，返回是否删除了记录
	DeleteEdge(ctx context.Context, source, target string, t model.EdgeType) (bool, error)
	EdgeExists(ctx context.Context, source, target string, t model.EdgeType) (bool, error)
	NodeExists(ctx context.Context, n model.Node) (bool, error)
	CreateNode(ctx context.Context, n model.Node) error
	// DeleteNode 删除节点及其全部关联边
	DeleteNode(ctx context.Context, n model.Node) error
	// Sources 返回所有 source -t-> target 的 source
	Sources(ctx context.Context, target string, t model.EdgeType) ([]string, error)
	// Targets 返回所有 source -t-> target 的 target
	Targets(ctx context.Context, source string, t model.EdgeType) ([]string, error)
}
