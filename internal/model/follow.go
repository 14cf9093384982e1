package model

import "time"

// Follow 时间线侧的关注索引（follower 关注 followee），由事件维护
type Follow struct {
	FollowerID string `gorm:"primaryKey;type:varchar(64)"`
	FolloweeID string `gorm:"primaryKey;type:varchar(64);index:idx_feed_follow_followee"`
	CreatedAt  time.Time
}

func (Follow) TableName() string { return "feed_follows" }
