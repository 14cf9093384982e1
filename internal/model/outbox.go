package model

import "time"

// Outbox 用户自己的活动日志（发帖 / 点赞），关注时回放到关注者的 Inbox
type Outbox struct {
	UserID string `gorm:"primaryKey;type:varchar(64)"`
	PostID string `gorm:"primaryKey;type:varchar(64);index:idx_outbox_post"`
	Type   string `gorm:"primaryKey;type:varchar(16)"`
	Score  int64  `gorm:"not null"` // unix millis
}

func (Outbox) TableName() string { return "activity_entries" }

func (r Outbox) Entry() ActivityEntry {
	return ActivityEntry{PostID: r.PostID, Type: EntryType(r.Type), Timestamp: FromMillis(r.Score)}
}

// PostTombstone 已删除帖子的标记，阻止乱序到达的旧事件复活该帖子
type PostTombstone struct {
	PostID    string `gorm:"primaryKey;type:varchar(64)"`
	DeletedAt time.Time
}

func (PostTombstone) TableName() string { return "post_tombstones" }

// FromMillis converts a stored score back to UTC time.
func FromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
