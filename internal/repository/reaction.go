package repository

import (
	"context"
	"errors"
	"time"

	"quill/internal/models"
	"quill/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCounterUnderflow means a post's likes_count is lower than the like rows
// being removed.
var ErrCounterUnderflow = errors.New("likes_count would go below zero")

// ReactionRepository persists likes and emoji reactions. A single instance
// is either bound to the pool or, inside Atomic, to one transaction.
type ReactionRepository interface {
	// Atomic runs fn against a transaction-bound repository. The transaction
	// commits when fn returns nil and rolls back otherwise.
	Atomic(ctx context.Context, fn func(ReactionRepository) error) error
	// LockPost loads the post and, on PostgreSQL, holds its row lock until
	// the surrounding transaction ends.
	LockPost(ctx context.Context, postID uint) (*models.Post, error)

	HasLike(ctx context.Context, postID, userID uint) (bool, error)
	AddLike(ctx context.Context, postID, userID uint) (bool, error)
	RemoveLike(ctx context.Context, postID, userID uint) (bool, error)
	AdjustLikeCount(ctx context.Context, postID uint, delta int) (int, error)
	CountLikes(ctx context.Context, postID uint) (int64, error)
	LikeCounts(ctx context.Context, postIDs []uint) (map[uint]int, error)

	GetEmoji(ctx context.Context, postID, userID uint) (models.EmojiKind, bool, error)
	SetEmoji(ctx context.Context, postID, userID uint, kind models.EmojiKind) error
	ClearEmoji(ctx context.Context, postID, userID uint) (bool, error)
	EmojiHistogram(ctx context.Context, postID uint) (models.EmojiHistogram, error)

	LikedPostIDs(ctx context.Context, userID uint, postIDs []uint) ([]uint, error)
	UserEmojis(ctx context.Context, userID uint, postIDs []uint) (map[uint]models.EmojiKind, error)
	EmojiHistograms(ctx context.Context, postIDs []uint) (map[uint]models.EmojiHistogram, error)
}

type reactionRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewReactionRepository creates a new ReactionRepository
func NewReactionRepository(db *gorm.DB) ReactionRepository {
	return &reactionRepository{db: db, log: observability.NewRepoLogger("reactions")}
}

var postUserColumns = []clause.Column{{Name: "post_id"}, {Name: "user_id"}}

func (r *reactionRepository) Atomic(ctx context.Context, fn func(ReactionRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&reactionRepository{db: tx, log: r.log})
	})
}

func (r *reactionRepository) LockPost(ctx context.Context, postID uint) (*models.Post, error) {
	q := r.db.WithContext(ctx)
	// SQLite has no row locks; its single writer already serializes the transaction.
	if q.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var post models.Post
	if err := q.First(&post, postID).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *reactionRepository) HasLike(ctx context.Context, postID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Like{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *reactionRepository) AddLike(ctx context.Context, postID, userID uint) (bool, error) {
	like := models.Like{PostID: postID, UserID: userID}
	res := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{Columns: postUserColumns, DoNothing: true}).
		Create(&like)
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "add_like")
		return false, res.Error
	}
	added := res.RowsAffected > 0
	if added {
		r.log.LogCreate(ctx, map[string]any{"kind": "like", "post_id": postID, "user_id": userID})
	}
	return added, nil
}

func (r *reactionRepository) RemoveLike(ctx context.Context, postID, userID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&models.Like{})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "remove_like")
		return false, res.Error
	}
	removed := res.RowsAffected > 0
	if removed {
		r.log.LogDelete(ctx, map[string]any{"kind": "like", "post_id": postID, "user_id": userID})
	}
	return removed, nil
}

// AdjustLikeCount applies a relative delta to the stored counter and returns
// the new value. A decrement the counter cannot absorb fails with
// ErrCounterUnderflow instead of taking it below zero.
func (r *reactionRepository) AdjustLikeCount(ctx context.Context, postID uint, delta int) (int, error) {
	db := r.db.WithContext(ctx)
	if delta != 0 {
		q := db.Model(&models.Post{}).Where("id = ?", postID)
		if delta < 0 {
			q = q.Where("likes_count >= ?", -delta)
		}
		res := q.UpdateColumn("likes_count", gorm.Expr("likes_count + ?", delta))
		if res.Error != nil {
			r.log.LogError(ctx, res.Error, "adjust_like_count")
			return 0, res.Error
		}
		if res.RowsAffected == 0 {
			if delta > 0 {
				return 0, gorm.ErrRecordNotFound
			}
			r.log.LogError(ctx, ErrCounterUnderflow, "adjust_like_count")
			return 0, ErrCounterUnderflow
		}
	}

	var post models.Post
	if err := db.Select("id", "likes_count").First(&post, postID).Error; err != nil {
		return 0, err
	}
	return post.LikesCount, nil
}

func (r *reactionRepository) CountLikes(ctx context.Context, postID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Like{}).Where("post_id = ?", postID).Count(&count).Error
	return count, err
}

// LikeCounts reads the stored counters of several posts in one query.
func (r *reactionRepository) LikeCounts(ctx context.Context, postIDs []uint) (map[uint]int, error) {
	out := make(map[uint]int, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	var posts []models.Post
	err := r.db.WithContext(ctx).
		Select("id", "likes_count").
		Where("id IN ?", postIDs).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		out[p.ID] = p.LikesCount
	}
	return out, nil
}

func (r *reactionRepository) GetEmoji(ctx context.Context, postID, userID uint) (models.EmojiKind, bool, error) {
	var reaction models.EmojiReaction
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Take(&reaction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return reaction.EmojiType, true, nil
}

// SetEmoji stores kind as the user's only reaction on the post, replacing
// any previous kind in the same statement.
func (r *reactionRepository) SetEmoji(ctx context.Context, postID, userID uint, kind models.EmojiKind) error {
	reaction := models.EmojiReaction{PostID: postID, UserID: userID, EmojiType: kind}
	err := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns: postUserColumns,
			DoUpdates: clause.Assignments(map[string]interface{}{
				"emoji_type": kind,
				"updated_at": time.Now(),
			}),
		}).
		Create(&reaction).Error
	if err != nil {
		r.log.LogError(ctx, err, "set_emoji")
		return err
	}
	r.log.LogUpdate(ctx, map[string]any{"kind": string(kind), "post_id": postID, "user_id": userID})
	return nil
}

func (r *reactionRepository) ClearEmoji(ctx context.Context, postID, userID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&models.EmojiReaction{})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "clear_emoji")
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	r.log.LogDelete(ctx, map[string]any{"kind": "emoji", "post_id": postID, "user_id": userID})
	return true, nil
}

type emojiCountRow struct {
	PostID    uint
	EmojiType models.EmojiKind
	Count     int
}

// EmojiHistogram counts reactions per kind. Kinds nobody used are absent.
func (r *reactionRepository) EmojiHistogram(ctx context.Context, postID uint) (models.EmojiHistogram, error) {
	var rows []emojiCountRow
	err := r.db.WithContext(ctx).
		Model(&models.EmojiReaction{}).
		Select("emoji_type, COUNT(*) AS count").
		Where("post_id = ?", postID).
		Group("emoji_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	hist := make(models.EmojiHistogram, len(rows))
	for _, row := range rows {
		if row.Count > 0 {
			hist[row.EmojiType] = row.Count
		}
	}
	return hist, nil
}

func (r *reactionRepository) LikedPostIDs(ctx context.Context, userID uint, postIDs []uint) ([]uint, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}
	var liked []uint
	err := r.db.WithContext(ctx).
		Model(&models.Like{}).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Pluck("post_id", &liked).Error
	return liked, err
}

func (r *reactionRepository) UserEmojis(ctx context.Context, userID uint, postIDs []uint) (map[uint]models.EmojiKind, error) {
	out := make(map[uint]models.EmojiKind)
	if len(postIDs) == 0 {
		return out, nil
	}
	var reactions []models.EmojiReaction
	err := r.db.WithContext(ctx).
		Select("post_id", "emoji_type").
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Find(&reactions).Error
	if err != nil {
		return nil, err
	}
	for _, re := range reactions {
		out[re.PostID] = re.EmojiType
	}
	return out, nil
}

func (r *reactionRepository) EmojiHistograms(ctx context.Context, postIDs []uint) (map[uint]models.EmojiHistogram, error) {
	out := make(map[uint]models.EmojiHistogram, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	var rows []emojiCountRow
	err := r.db.WithContext(ctx).
		Model(&models.EmojiReaction{}).
		Select("post_id, emoji_type, COUNT(*) AS count").
		Where("post_id IN ?", postIDs).
		Group("post_id, emoji_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, id := range postIDs {
		out[id] = models.EmojiHistogram{}
	}
	for _, row := range rows {
		if row.Count > 0 {
			out[row.PostID][row.EmojiType] = row.Count
		}
	}
	return out, nil
}
