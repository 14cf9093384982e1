package model

import "time"

// GraphNode 关系存储中的节点
type GraphNode struct {
	Type      string `gorm:"primaryKey;type:varchar(8)"`
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	CreatedAt time.Time
}

func (GraphNode) TableName() string { return "graph_nodes" }

// GraphEdge 关系存储中的有向边
// 主键 (source_id, target_id, type)，端点类型由 type 决定
type GraphEdge struct {
	SourceID string `gorm:"primaryKey;type:varchar(64);index:idx_edge_source_type,priority:1"`
	TargetID string `gorm:"primaryKey;type:varchar(64);index:idx_edge_target_type,priority:1"`
	Type     string `gorm:"primaryKey;type:varchar(8);index:idx_edge_source_type,priority:2;index:idx_edge_target_type,priority:2"`
	Since    int64  `gorm:"not null"` // unix millis
}

func (GraphEdge) TableName() string { return "graph_edges" }
