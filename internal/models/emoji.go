package models

import (
	"strings"
	"time"
)

// EmojiKind is one of the fixed reaction kinds a user can leave on a post.
type EmojiKind string

const (
	EmojiLike  EmojiKind = "like"
	EmojiLove  EmojiKind = "love"
	EmojiLaugh EmojiKind = "laugh"
	EmojiWow   EmojiKind = "wow"
	EmojiSad   EmojiKind = "sad"
	EmojiAngry EmojiKind = "angry"
)

// EmojiKinds lists every kind in display order.
var EmojiKinds = []EmojiKind{EmojiLike, EmojiLove, EmojiLaugh, EmojiWow, EmojiSad, EmojiAngry}

var emojiGlyphs = map[EmojiKind]string{
	EmojiLike:  "👍",
	EmojiLove:  "❤️",
	EmojiLaugh: "😂",
	EmojiWow:   "😮",
	EmojiSad:   "😢",
	EmojiAngry: "😠",
}

// Valid reports whether k is one of the known kinds.
func (k EmojiKind) Valid() bool {
	_, ok := emojiGlyphs[k]
	return ok
}

// Glyph returns the display symbol for k, or "" for unknown kinds.
func (k EmojiKind) Glyph() string {
	return emojiGlyphs[k]
}

// ErrInvalidEmoji is returned for kinds outside the closed set.
var ErrInvalidEmoji = NewValidationError("Invalid emoji type")

// ParseEmojiKind validates raw input. Matching is exact; "Love" is rejected.
func ParseEmojiKind(raw string) (EmojiKind, error) {
	k := EmojiKind(strings.TrimSpace(raw))
	if !k.Valid() {
		return "", ErrInvalidEmoji
	}
	return k, nil
}

// EmojiHistogram counts reactions per kind. Kinds with no reactions are absent.
type EmojiHistogram map[EmojiKind]int

// Total returns the number of reactions in the histogram.
func (h EmojiHistogram) Total() int {
	n := 0
	for _, c := range h {
		n += c
	}
	return n
}

// EmojiReaction is a user's single emoji reaction on a post.
// The combination of PostID and UserID must be unique.
type EmojiReaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_emoji_post_user" json:"post_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_emoji_post_user;index" json:"user_id"`
	EmojiType EmojiKind `gorm:"size:10;not null" json:"emoji_type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Post Post `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}
