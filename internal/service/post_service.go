package service

import (
	"context"
	"strings"

	"quill/internal/models"
	"quill/internal/repository"
	"quill/internal/validation"
)

const defaultPageSize = 6

// AdminChecker reports whether a user holds the administrator role.
type AdminChecker func(ctx context.Context, userID uint) (bool, error)

// require returns FORBIDDEN with the denied message unless userID is an admin.
// A nil checker denies everyone.
func (c AdminChecker) require(ctx context.Context, userID uint, denied string) error {
	if c == nil {
		return models.NewForbiddenError(denied)
	}
	admin, err := c(ctx, userID)
	if err != nil {
		return err
	}
	if !admin {
		return models.NewForbiddenError(denied)
	}
	return nil
}

// PostService implements post authoring and reading.
type PostService struct {
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
	reactions   *ReactionService
	isAdmin     AdminChecker
	pageSize    int
}

type CreatePostInput struct {
	UserID  uint              `json:"-"`
	Title   string            `json:"title" validate:"trimlen=5-250"`
	Content string            `json:"content" validate:"trimlen=10-50000"`
	Status  models.PostStatus `json:"status" validate:"poststatus"`
}

type UpdatePostInput struct {
	UserID  uint               `json:"-"`
	PostID  uint               `json:"-"`
	Title   *string            `json:"title" validate:"omitnil,trimlen=5-250"`
	Content *string            `json:"content" validate:"omitnil,trimlen=10-50000"`
	Status  *models.PostStatus `json:"status" validate:"omitnil,poststatus"`
}

type ListPostsInput struct {
	Page          int
	Query         string
	CurrentUserID uint
}

// PostPage is one page of the published feed.
type PostPage struct {
	Posts      []*models.Post `json:"posts"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	Total      int64          `json:"total"`
	TotalPages int            `json:"total_pages"`
}

// PostDetail is a post with its visible comments.
type PostDetail struct {
	*models.Post
	Comments []*models.Comment `json:"comments"`
}

func NewPostService(
	postRepo repository.PostRepository,
	commentRepo repository.CommentRepository,
	reactions *ReactionService,
	isAdmin AdminChecker,
	pageSize int,
) *PostService {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &PostService{
		postRepo:    postRepo,
		commentRepo: commentRepo,
		reactions:   reactions,
		isAdmin:     isAdmin,
		pageSize:    pageSize,
	}
}

// CreatePost publishes a new post. Only administrators may author posts.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if err := s.isAdmin.require(ctx, in.UserID, "Only administrators can create posts"); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = models.PostStatusPublished
	}

	post := &models.Post{
		Title:   strings.TrimSpace(in.Title),
		Content: strings.TrimSpace(in.Content),
		Status:  status,
		UserID:  in.UserID,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, models.NewInternalError(err)
	}
	return s.loadPost(ctx, post.ID, in.UserID)
}

// ListPosts returns one page of published posts, newest activity first.
func (s *PostService) ListPosts(ctx context.Context, in ListPostsInput) (*PostPage, error) {
	page := in.Page
	if page < 1 {
		page = 1
	}
	posts, total, err := s.postRepo.List(ctx, repository.PostFilter{
		Status: models.PostStatusPublished,
		Query:  in.Query,
	}, s.pageSize, (page-1)*s.pageSize)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	if s.reactions != nil {
		if err := s.reactions.Annotate(ctx, posts, in.CurrentUserID); err != nil {
			return nil, models.NewInternalError(err)
		}
	}
	return &PostPage{
		Posts:      posts,
		Page:       page,
		PageSize:   s.pageSize,
		Total:      total,
		TotalPages: int((total + int64(s.pageSize) - 1) / int64(s.pageSize)),
	}, nil
}

// GetPost returns any post by id together with its active comments and the
// caller's reaction state.
func (s *PostService) GetPost(ctx context.Context, id, currentUserID uint) (*PostDetail, error) {
	post, err := s.loadPost(ctx, id, currentUserID)
	if err != nil {
		return nil, err
	}
	detail := &PostDetail{Post: post, Comments: []*models.Comment{}}
	if s.commentRepo != nil {
		comments, err := s.commentRepo.ListByPost(ctx, id, false)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		if comments != nil {
			detail.Comments = comments
		}
	}
	return detail, nil
}

// UpdatePost edits a post. Authors may edit their own posts, administrators any.
func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	post, err := s.getOwned(ctx, in.PostID, in.UserID, "You can only edit your own posts")
	if err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	if in.Title != nil {
		post.Title = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		post.Content = strings.TrimSpace(*in.Content)
	}
	if in.Status != nil {
		post.Status = *in.Status
	}
	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, models.NewInternalError(err)
	}
	return s.loadPost(ctx, post.ID, in.UserID)
}

// DeletePost removes a post. Authors may delete their own posts, administrators any.
func (s *PostService) DeletePost(ctx context.Context, postID, userID uint) error {
	if _, err := s.getOwned(ctx, postID, userID, "You can only delete your own posts"); err != nil {
		return err
	}
	if err := s.postRepo.Delete(ctx, postID); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (s *PostService) loadPost(ctx context.Context, id, currentUserID uint) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, id)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, models.NewNotFoundError("Post", id)
		}
		return nil, models.NewInternalError(err)
	}
	if s.reactions != nil {
		if err := s.reactions.Annotate(ctx, []*models.Post{post}, currentUserID); err != nil {
			return nil, models.NewInternalError(err)
		}
	}
	return post, nil
}

func (s *PostService) getOwned(ctx context.Context, postID, userID uint, denied string) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, models.NewNotFoundError("Post", postID)
		}
		return nil, models.NewInternalError(err)
	}
	if post.UserID != userID {
		if err := s.isAdmin.require(ctx, userID, denied); err != nil {
			return nil, err
		}
	}
	return post, nil
}
