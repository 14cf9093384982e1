package model

import (
	"sort"
	"time"
)

// EntryType 活动类型
type EntryType string

const (
	EntryAuthored EntryType = "AUTHORED"
	EntryLiked    EntryType = "LIKED"
)

func (t EntryType) Valid() bool { return t == EntryAuthored || t == EntryLiked }

// ActivityEntry 用户自身的发帖 / 点赞记录
type ActivityEntry struct {
	PostID    string    `json:"postId"`
	Type      EntryType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// TimelineEntry 时间线中的一条冗余记录，AuthorID 是产生该活动的关注对象
type TimelineEntry struct {
	PostID    string    `json:"postId"`
	AuthorID  string    `json:"authorId"`
	Type      EntryType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// ToTimeline copies an activity entry of author into timeline form.
func (a ActivityEntry) ToTimeline(author string) TimelineEntry {
	return TimelineEntry{PostID: a.PostID, AuthorID: author, Type: a.Type, Timestamp: a.Timestamp}
}

// EntryFilter selects entries for removal. Empty fields match anything.
type EntryFilter struct {
	PostID   string
	AuthorID string
	Type     EntryType
}

func (f EntryFilter) MatchTimeline(e TimelineEntry) bool {
	return (f.PostID == "" || f.PostID == e.PostID) &&
		(f.AuthorID == "" || f.AuthorID == e.AuthorID) &&
		(f.Type == "" || f.Type == e.Type)
}

// MatchActivity ignores AuthorID: an activity log belongs to a single user.
func (f EntryFilter) MatchActivity(e ActivityEntry) bool {
	return (f.PostID == "" || f.PostID == e.PostID) &&
		(f.Type == "" || f.Type == e.Type)
}

// SortTimeline orders entries newest first. Ties are broken on
// (type, post, author) descending so every backend returns the same order.
func SortTimeline(entries []TimelineEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		if a.Type != b.Type {
			return a.Type > b.Type
		}
		if a.PostID != b.PostID {
			return a.PostID > b.PostID
		}
		return a.AuthorID > b.AuthorID
	})
}
