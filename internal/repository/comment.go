package repository

import (
	"context"

	"quill/internal/models"

	"gorm.io/gorm"
)

// CommentRepository stores comments. Missing rows surface as
// gorm.ErrRecordNotFound.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	ListByPost(ctx context.Context, postID uint, includeHidden bool) ([]*models.Comment, error)
	SetActive(ctx context.Context, id uint, active bool) error
	Delete(ctx context.Context, id uint) error
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository returns the gorm-backed CommentRepository.
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

// withAuthor loads the commenter for rendering.
func withAuthor(db *gorm.DB) *gorm.DB { return db.Preload("User") }

// visibleOnly drops comments a moderator has hidden.
func visibleOnly(db *gorm.DB) *gorm.DB { return db.Where("is_active = ?", true) }

// Create inserts the comment without touching its associations.
func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Omit("User", "Post").Create(comment).Error
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	comment := new(models.Comment)
	if err := r.db.WithContext(ctx).Scopes(withAuthor).First(comment, id).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

// ListByPost returns a post's thread oldest first. Hidden comments are only
// included when asked for.
func (r *commentRepository) ListByPost(ctx context.Context, postID uint, includeHidden bool) ([]*models.Comment, error) {
	scopes := []func(*gorm.DB) *gorm.DB{withAuthor}
	if !includeHidden {
		scopes = append(scopes, visibleOnly)
	}
	var comments []*models.Comment
	err := r.db.WithContext(ctx).
		Scopes(scopes...).
		Where("post_id = ?", postID).
		Order("created_at ASC").Order("id ASC").
		Find(&comments).Error
	return comments, err
}

// SetActive shows or hides a comment.
func (r *commentRepository) SetActive(ctx context.Context, id uint, active bool) error {
	res := r.db.WithContext(ctx).Model(&models.Comment{}).Where("id = ?", id).Update("is_active", active)
	switch {
	case res.Error != nil:
		return res.Error
	case res.RowsAffected == 0:
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes the comment row.
func (r *commentRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Comment{}, id).Error
}
