package model

// Inbox 时间线项（按 owner_id 切分）
// 复合主键 (owner_id, post_id, type, author_id)，避免重复写入
type Inbox struct {
	OwnerID  string `gorm:"primaryKey;type:varchar(64);index:idx_inbox_owner_score,priority:1"`
	PostID   string `gorm:"primaryKey;type:varchar(64);index:idx_inbox_post"`
	Type     string `gorm:"primaryKey;type:varchar(16)"`
	AuthorID string `gorm:"primaryKey;type:varchar(64)"`
	Score    int64  `gorm:"not null;index:idx_inbox_owner_score,priority:2"` // unix millis
}

func (Inbox) TableName() string { return "timeline_entries" }

func (r Inbox) Entry() TimelineEntry {
	return TimelineEntry{PostID: r.PostID, AuthorID: r.AuthorID, Type: EntryType(r.Type), Timestamp: FromMillis(r.Score)}
}
