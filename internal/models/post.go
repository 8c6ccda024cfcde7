package models

import (
	"time"

	"gorm.io/gorm"
)

// PostStatus is the publication state of a post.
type PostStatus string

const (
	PostStatusPublished PostStatus = "published"
	PostStatusDraft     PostStatus = "draft"
)

// Valid reports whether s is a known status.
func (s PostStatus) Valid() bool {
	return s == PostStatusPublished || s == PostStatusDraft
}

// Post represents a blog post.
type Post struct {
	ID      uint       `gorm:"primaryKey" json:"id"`
	Title   string     `gorm:"size:250;not null" json:"title"`
	Content string     `gorm:"type:text;not null" json:"content"`
	Status  PostStatus `gorm:"size:16;not null;default:published;index" json:"status"`
	UserID  uint       `gorm:"not null;index" json:"user_id"`
	User    User       `gorm:"foreignKey:UserID" json:"user"`
	// LikesCount is the persisted number of like rows for this post.
	// Only the reaction store changes it, always by a relative delta.
	LikesCount int `gorm:"not null;default:0;check:likes_count >= 0" json:"likes_count"`
	// CommentsCount is not persisted; computed at query time
	CommentsCount int `gorm:"->;-:migration" json:"comments_count"`
	// Liked indicates whether the current requesting user liked this post (computed)
	Liked bool `gorm:"-" json:"liked"`
	// UserEmoji is the requesting user's emoji reaction, if any (computed)
	UserEmoji *EmojiKind `gorm:"-" json:"user_emoji"`
	// EmojiSummary counts emoji reactions by kind (computed)
	EmojiSummary EmojiHistogram `gorm:"-" json:"emojis_summary"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}
