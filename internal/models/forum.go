package models

import (
	"time"

	"github.com/google/uuid"
)

// Defaults applied to the forum created with every group.
const (
	DefaultForumName        = "General Discussion"
	DefaultForumDescription = "Main discussion forum for the group"
)

// DeletedReplyContent replaces the content of a tombstoned reply.
const DeletedReplyContent = "[This reply has been deleted]"

// MaxThreadTitleLength bounds Thread.Title.
const MaxThreadTitleLength = 255

// Forum is the single discussion board of a group.
type Forum struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	GroupID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"group_id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`
	Threads     []Thread  `gorm:"foreignKey:ForumID" json:"threads,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Thread is a discussion topic inside a forum.
//
// ViewCount, ReplyCount, LastReplyAt and LastReplyBy are maintained by the
// forum repository with single-statement updates and are never written from
// a loaded struct.
type Thread struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	ForumID     uint       `gorm:"not null;index" json:"forum_id"`
	AuthorID    uint       `gorm:"not null;index" json:"author_id"`
	Author      *User      `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Content     string     `gorm:"type:text;not null" json:"content"`
	IsPinned    bool       `gorm:"default:false;index" json:"is_pinned"`
	IsLocked    bool       `gorm:"default:false" json:"is_locked"`
	ViewCount   int        `gorm:"not null;default:0" json:"view_count"`
	ReplyCount  int        `gorm:"not null;default:0" json:"reply_count"`
	LastReplyAt *time.Time `gorm:"index" json:"last_reply_at"`
	LastReplyBy *uint      `json:"last_reply_by"`
	LastReplier *User      `gorm:"foreignKey:LastReplyBy" json:"last_replier,omitempty"`
	Replies     []Reply    `gorm:"foreignKey:ThreadID" json:"replies,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Reply is a post in a thread. Replies form a two-level tree: top-level
// replies have no parent, nested replies point at a top-level reply.
// Deleted replies are tombstoned, never removed.
type Reply struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ThreadID      uint       `gorm:"not null;index" json:"thread_id"`
	AuthorID      uint       `gorm:"not null;index" json:"author_id"`
	Author        *User      `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Content       string     `gorm:"type:text;not null" json:"content"`
	ParentReplyID *uint      `gorm:"index" json:"parent_reply_id"`
	Children      []Reply    `gorm:"foreignKey:ParentReplyID" json:"child_replies,omitempty"`
	IsDeleted     bool       `gorm:"default:false" json:"is_deleted"`
	IsEdited      bool       `gorm:"default:false" json:"is_edited"`
	EditedAt      *time.Time `json:"edited_at"`
	LikeCount     int        `gorm:"not null;default:0" json:"like_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ReactionType is the kind of a stored reaction.
type ReactionType string

const (
	ReactionLike    ReactionType = "like"
	ReactionDislike ReactionType = "dislike"
)

// ReplyLike is the at-most-one reaction of a user to a reply.
type ReplyLike struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	UserID    uint         `gorm:"not null;uniqueIndex:idx_reply_like_user_reply" json:"user_id"`
	ReplyID   uint         `gorm:"not null;uniqueIndex:idx_reply_like_user_reply;index" json:"reply_id"`
	LikeType  ReactionType `gorm:"type:varchar(10);not null" json:"like_type"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
