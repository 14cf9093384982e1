package repository

import (
	"gorm.io/gorm"

	"github.com/d60-Lab/socialgraph/internal/model"
)

// AutoMigrate 创建关系存储与时间线存储使用的全部表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.GraphNode{},
		&model.GraphEdge{},
		&model.Inbox{},
		&model.Outbox{},
		&model.Follow{},
		&model.PostTombstone{},
	)
}
