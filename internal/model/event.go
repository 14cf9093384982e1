package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ActionType 事件类型，同时决定发布的频道
type ActionType string

const (
	ActionUserCreated    ActionType = "USER_CREATED"
	ActionUserDeleted    ActionType = "USER_DELETED"
	ActionUserBlocked    ActionType = "USER_BLOCKED"
	ActionUserUnblocked  ActionType = "USER_UNBLOCKED"
	ActionUserFollowed   ActionType = "USER_FOLLOWED"
	ActionUserUnfollowed ActionType = "USER_UNFOLLOWED"
	ActionPostCreated    ActionType = "POST_CREATED"
	ActionPostDeleted    ActionType = "POST_DELETED"
	ActionPostLiked      ActionType = "POST_LIKED"
	ActionPostUnliked    ActionType = "POST_UNLIKED"
)

var (
	ErrUnknownAction = errors.New("unknown action type")
	ErrMalformed     = errors.New("malformed event")
)

// AllActions lists every action type the system understands.
func AllActions() []ActionType {
	return []ActionType{
		ActionUserCreated, ActionUserDeleted, ActionUserBlocked, ActionUserUnblocked,
		ActionUserFollowed, ActionUserUnfollowed,
		ActionPostCreated, ActionPostDeleted, ActionPostLiked, ActionPostUnliked,
	}
}

// Channel returns the pub/sub channel name, e.g. USER_FOLLOWED → user-followed.
func (a ActionType) Channel() string {
	return strings.ReplaceAll(strings.ToLower(string(a)), "_", "-")
}

// Event is the wire shape shared by inbound and outbound events.
type Event struct {
	ActionType     ActionType `json:"actionType" validate:"required"`
	UserID         string     `json:"userId,omitempty" validate:"max=64"`
	Username       string     `json:"username" validate:"max=64"`
	TargetUsername string     `json:"targetUsername,omitempty" validate:"max=64"`
	PostID         string     `json:"postId,omitempty" validate:"max=64"`
	PostContent    string     `json:"postContent,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}

// DomainEvent is the closed set of events. Only the types in this file
// implement it.
type DomainEvent interface {
	Action() ActionType
	OccurredAt() time.Time
	domainEvent()
}

type UserCreated struct {
	Username string
	UserID   string
	At       time.Time
}

type UserDeleted struct {
	Username string
	At       time.Time
}

type UserBlocked struct {
	Blocker string
	Blocked string
	At      time.Time
}

type UserUnblocked struct {
	Blocker string
	Blocked string
	At      time.Time
}

type UserFollowed struct {
	Follower string
	Followee string
	At       time.Time
}

type UserUnfollowed struct {
	Follower string
	Followee string
	At       time.Time
}

type PostCreated struct {
	Author  string
	PostID  string
	Content string
	At      time.Time
}

// PostDeleted 的 Author 可能为空，删除按 PostID 进行
type PostDeleted struct {
	Author string
	PostID string
	At     time.Time
}

type PostLiked struct {
	User   string
	PostID string
	At     time.Time
}

type PostUnliked struct {
	User   string
	PostID string
	At     time.Time
}

func (UserCreated) Action() ActionType    { return ActionUserCreated }
func (UserDeleted) Action() ActionType    { return ActionUserDeleted }
func (UserBlocked) Action() ActionType    { return ActionUserBlocked }
func (UserUnblocked) Action() ActionType  { return ActionUserUnblocked }
func (UserFollowed) Action() ActionType   { return ActionUserFollowed }
func (UserUnfollowed) Action() ActionType { return ActionUserUnfollowed }
func (PostCreated) Action() ActionType    { return ActionPostCreated }
func (PostDeleted) Action() ActionType    { return ActionPostDeleted }
func (PostLiked) Action() ActionType      { return ActionPostLiked }
func (PostUnliked) Action() ActionType    { return ActionPostUnliked }

func (e UserCreated) OccurredAt() time.Time    { return e.At }
func (e UserDeleted) OccurredAt() time.Time    { return e.At }
func (e UserBlocked) OccurredAt() time.Time    { return e.At }
func (e UserUnblocked) OccurredAt() time.Time  { return e.At }
func (e UserFollowed) OccurredAt() time.Time   { return e.At }
func (e UserUnfollowed) OccurredAt() time.Time { return e.At }
func (e PostCreated) OccurredAt() time.Time    { return e.At }
func (e PostDeleted) OccurredAt() time.Time    { return e.At }
func (e PostLiked) OccurredAt() time.Time      { return e.At }
func (e PostUnliked) OccurredAt() time.Time    { return e.At }

func (UserCreated) domainEvent()    {}
func (UserDeleted) domainEvent()    {}
func (UserBlocked) domainEvent()    {}
func (UserUnblocked) domainEvent()  {}
func (UserFollowed) domainEvent()   {}
func (UserUnfollowed) domainEvent() {}
func (PostCreated) domainEvent()    {}
func (PostDeleted) domainEvent()    {}
func (PostLiked) domainEvent()      {}
func (PostUnliked) domainEvent()    {}

// Subject 返回事件涉及的用户与帖子，用于日志；不涉及帖子时 post 为空
func Subject(ev DomainEvent) (user, post string) {
	switch e := ev.(type) {
	case UserCreated:
		return e.Username, ""
	case UserDeleted:
		return e.Username, ""
	case UserBlocked:
		return e.Blocker, ""
	case UserUnblocked:
		return e.Blocker, ""
	case UserFollowed:
		return e.Follower, ""
	case UserUnfollowed:
		return e.Follower, ""
	case PostCreated:
		return e.Author, e.PostID
	case PostDeleted:
		return e.Author, e.PostID
	case PostLiked:
		return e.User, e.PostID
	case PostUnliked:
		return e.User, e.PostID
	}
	return "", ""
}

// ToDomain maps a wire event onto the closed union. Unknown action types
// return ErrUnknownAction; missing fields return ErrMalformed.
func (e Event) ToDomain() (DomainEvent, error) {
	need := func(fields ...string) error {
		for _, f := range fields {
			if f == "" {
				return fmt.Errorf("%w: %s is missing required fields", ErrMalformed, e.ActionType)
			}
		}
		return nil
	}
	at := e.Timestamp.UTC()
	switch e.ActionType {
	case ActionUserCreated:
		if err := need(e.Username); err != nil {
			return nil, err
		}
		return UserCreated{Username: e.Username, UserID: e.UserID, At: at}, nil
	case ActionUserDeleted:
		if err := need(e.Username); err != nil {
			return nil, err
		}
		return UserDeleted{Username: e.Username, At: at}, nil
	case ActionUserBlocked:
		if err := need(e.Username, e.TargetUsername); err != nil {
			return nil, err
		}
		return UserBlocked{Blocker: e.Username, Blocked: e.TargetUsername, At: at}, nil
	case ActionUserUnblocked:
		if err := need(e.Username, e.TargetUsername); err != nil {
			return nil, err
		}
		return UserUnblocked{Blocker: e.Username, Blocked: e.TargetUsername, At: at}, nil
	case ActionUserFollowed:
		if err := need(e.Username, e.TargetUsername); err != nil {
			return nil, err
		}
		return UserFollowed{Follower: e.Username, Followee: e.TargetUsername, At: at}, nil
	case ActionUserUnfollowed:
		if err := need(e.Username, e.TargetUsername); err != nil {
			return nil, err
		}
		return UserUnfollowed{Follower: e.Username, Followee: e.TargetUsername, At: at}, nil
	case ActionPostCreated:
		if err := need(e.Username, e.PostID); err != nil {
			return nil, err
		}
		return PostCreated{Author: e.Username, PostID: e.PostID, Content: e.PostContent, At: at}, nil
	case ActionPostDeleted:
		if err := need(e.PostID); err != nil {
			return nil, err
		}
		return PostDeleted{Author: e.Username, PostID: e.PostID, At: at}, nil
	case ActionPostLiked:
		if err := need(e.Username, e.PostID); err != nil {
			return nil, err
		}
		return PostLiked{User: e.Username, PostID: e.PostID, At: at}, nil
	case ActionPostUnliked:
		if err := need(e.Username, e.PostID); err != nil {
			return nil, err
		}
		return PostUnliked{User: e.Username, PostID: e.PostID, At: at}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, e.ActionType)
	}
}

// FromDomain builds the wire form of a domain event.
func FromDomain(d DomainEvent) Event {
	ev := Event{ActionType: d.Action(), Timestamp: d.OccurredAt()}
	switch e := d.(type) {
	case UserCreated:
		ev.Username, ev.UserID = e.Username, e.UserID
	case UserDeleted:
		ev.Username = e.Username
	case UserBlocked:
		ev.Username, ev.TargetUsername = e.Blocker, e.Blocked
	case UserUnblocked:
		ev.Username, ev.TargetUsername = e.Blocker, e.Blocked
	case UserFollowed:
		ev.Username, ev.TargetUsername = e.Follower, e.Followee
	case UserUnfollowed:
		ev.Username, ev.TargetUsername = e.Follower, e.Followee
	case PostCreated:
		ev.Username, ev.PostID, ev.PostContent = e.Author, e.PostID, e.Content
	case PostDeleted:
		ev.Username, ev.PostID = e.Author, e.PostID
	case PostLiked:
		ev.Username, ev.PostID = e.User, e.PostID
	case PostUnliked:
		ev.Username, ev.PostID = e.User, e.PostID
	}
	return ev
}
