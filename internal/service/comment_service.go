package service

import (
	"context"
	"strings"

	"quill/internal/cache"
	"quill/internal/models"
	"quill/internal/repository"
	"quill/internal/validation"
)

type CommentService struct {
	commentRepo repository.CommentRepository
	postRepo    repository.PostRepository
	isAdmin     AdminChecker
}

type CreateCommentInput struct {
	UserID  uint   `json:"-"`
	PostID  uint   `json:"-"`
	Content string `json:"content" validate:"trimlen=3-1000"`
}

type DeleteCommentInput struct {
	UserID    uint
	CommentID uint
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	postRepo repository.PostRepository,
	isAdmin AdminChecker,
) *CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		postRepo:    postRepo,
		isAdmin:     isAdmin,
	}
}

func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := s.requirePost(ctx, in.PostID); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		Content:  strings.TrimSpace(in.Content),
		UserID:   in.UserID,
		PostID:   in.PostID,
		IsActive: true,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, models.NewInternalError(err)
	}
	cache.Invalidate(ctx, cache.PostKey(in.PostID))

	return s.commentRepo.GetByID(ctx, comment.ID)
}

// ListComments returns the visible comments of a post, oldest first.
func (s *CommentService) ListComments(ctx context.Context, postID uint) ([]*models.Comment, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}
	comments, err := s.commentRepo.ListByPost(ctx, postID, false)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if comments == nil {
		comments = []*models.Comment{}
	}
	return comments, nil
}

// DeleteComment permanently removes a comment. Authors may delete their own
// comments, administrators any.
func (s *CommentService) DeleteComment(ctx context.Context, in DeleteCommentInput) (*models.Comment, error) {
	comment, err := s.getComment(ctx, in.CommentID)
	if err != nil {
		return nil, err
	}

	if comment.UserID != in.UserID {
		if err := s.isAdmin.require(ctx, in.UserID, "You can only delete your own comments"); err != nil {
			return nil, err
		}
	}

	if err := s.commentRepo.Delete(ctx, in.CommentID); err != nil {
		return nil, models.NewInternalError(err)
	}
	cache.Invalidate(ctx, cache.PostKey(comment.PostID))
	return comment, nil
}

// ToggleActive flips a comment's moderation flag. Administrators only.
func (s *CommentService) ToggleActive(ctx context.Context, commentID, userID uint) (*models.Comment, error) {
	if err := s.isAdmin.require(ctx, userID, "Only administrators can moderate comments"); err != nil {
		return nil, err
	}
	comment, err := s.getComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if err := s.commentRepo.SetActive(ctx, commentID, !comment.IsActive); err != nil {
		if models.IsNotFound(err) {
			return nil, models.NewNotFoundError("Comment", commentID)
		}
		return nil, models.NewInternalError(err)
	}
	comment.IsActive = !comment.IsActive
	cache.Invalidate(ctx, cache.PostKey(comment.PostID))
	return comment, nil
}

func (s *CommentService) getComment(ctx context.Context, id uint) (*models.Comment, error) {
	comment, err := s.commentRepo.GetByID(ctx, id)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, models.NewNotFoundError("Comment", id)
		}
		return nil, models.NewInternalError(err)
	}
	return comment, nil
}

func (s *CommentService) requirePost(ctx context.Context, postID uint) error {
	if _, err := s.postRepo.GetByID(ctx, postID); err != nil {
		if models.IsNotFound(err) {
			return models.NewNotFoundError("Post", postID)
		}
		return models.NewInternalError(err)
	}
	return nil
}
