package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"quill/internal/cache"
	"quill/internal/models"
	"quill/internal/repository"
	"quill/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// postRepoStub is a stub for repository.PostRepository.
type postRepoStub struct {
	createFn  func(context.Context, *models.Post) error
	getByIDFn func(context.Context, uint) (*models.Post, error)
	listFn    func(context.Context, repository.PostFilter, int, int) ([]*models.Post, int64, error)
	updateFn  func(context.Context, *models.Post) error
	deleteFn  func(context.Context, uint) error
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post) error {
	return s.createFn(ctx, post)
}
func (s *postRepoStub) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	return s.getByIDFn(ctx, id)
}
func (s *postRepoStub) List(ctx context.Context, filter repository.PostFilter, limit, offset int) ([]*models.Post, int64, error) {
	return s.listFn(ctx, filter, limit, offset)
}
func (s *postRepoStub) Update(ctx context.Context, post *models.Post) error {
	return s.updateFn(ctx, post)
}
func (s *postRepoStub) Delete(ctx context.Context, id uint) error {
	return s.deleteFn(ctx, id)
}

func noopPostRepo() *postRepoStub {
	return &postRepoStub{
		createFn: func(_ context.Context, _ *models.Post) error { return nil },
		getByIDFn: func(_ context.Context, id uint) (*models.Post, error) {
			return &models.Post{ID: id, UserID: 1, Title: "A title", Content: "Some content here"}, nil
		},
		listFn: func(_ context.Context, _ repository.PostFilter, _, _ int) ([]*models.Post, int64, error) {
			return nil, 0, nil
		},
		updateFn: func(_ context.Context, _ *models.Post) error { return nil },
		deleteFn: func(_ context.Context, _ uint) error { return nil },
	}
}

func adminIs(ids ...uint) AdminChecker {
	return func(_ context.Context, userID uint) (bool, error) {
		for _, id := range ids {
			if id == userID {
				return true, nil
			}
		}
		return false, nil
	}
}

// assertValidationError asserts that err is an AppError with code VALIDATION_ERROR.
func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertCode(t, err, models.CodeValidation)
}

func strPtr(s string) *string { return &s }

func TestPostService_CreatePost_Validation(t *testing.T) {
	t.Parallel()

	svc := NewPostService(noopPostRepo(), nil, nil, adminIs(1), 6)
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreatePostInput
	}{
		{"title too short", CreatePostInput{UserID: 1, Title: "Hey", Content: "Long enough body"}},
		{"blank title", CreatePostInput{UserID: 1, Title: "      ", Content: "Long enough body"}},
		{"title too long", CreatePostInput{UserID: 1, Title: strings.Repeat("x", 251), Content: "Long enough body"}},
		{"body too short", CreatePostInput{UserID: 1, Title: "Valid title", Content: "short"}},
		{"invalid status", CreatePostInput{UserID: 1, Title: "Valid title", Content: "Long enough body", Status: "archived"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.CreatePost(ctx, tc.input)
			assertValidationError(t, err)
		})
	}
}

func TestPostService_CreatePost_RequiresAdmin(t *testing.T) {
	t.Parallel()

	repo := noopPostRepo()
	repo.createFn = func(context.Context, *models.Post) error {
		t.Fatal("non-admins must not reach the repository")
		return nil
	}
	svc := NewPostService(repo, nil, nil, adminIs(1), 6)

	_, err := svc.CreatePost(context.Background(), CreatePostInput{UserID: 2, Title: "Valid title", Content: "Long enough body"})
	assertCode(t, err, models.CodeForbidden)

	svc = NewPostService(repo, nil, nil, nil, 6)
	_, err = svc.CreatePost(context.Background(), CreatePostInput{UserID: 1, Title: "Valid title", Content: "Long enough body"})
	assertCode(t, err, models.CodeForbidden)
}

func TestPostService_CreatePost_DefaultsToPublished(t *testing.T) {
	t.Parallel()

	var created *models.Post
	repo := noopPostRepo()
	repo.createFn = func(_ context.Context, p *models.Post) error {
		p.ID = 7
		created = p
		return nil
	}
	repo.getByIDFn = func(_ context.Context, id uint) (*models.Post, error) {
		return &models.Post{ID: id, Title: created.Title, Status: created.Status}, nil
	}
	svc := NewPostService(repo, nil, nil, adminIs(1), 6)

	post, err := svc.CreatePost(context.Background(), CreatePostInput{UserID: 1, Title: "  Hello world  ", Content: "A body long enough"})
	require.NoError(t, err)
	assert.Equal(t, uint(7), post.ID)
	assert.Equal(t, "Hello world", created.Title)
	assert.Equal(t, models.PostStatusPublished, created.Status)
	assert.Equal(t, uint(1), created.UserID)
}

func TestPostService_UpdateAndDelete_Ownership(t *testing.T) {
	t.Parallel()

	repo := noopPostRepo()
	var updated *models.Post
	repo.updateFn = func(_ context.Context, p *models.Post) error {
		updated = p
		return nil
	}
	svc := NewPostService(repo, nil, nil, adminIs(99), 6)
	ctx := context.Background()

	_, err := svc.UpdatePost(ctx, UpdatePostInput{UserID: 2, PostID: 5, Title: strPtr("Hijacked title")})
	assertCode(t, err, models.CodeForbidden)
	assert.Nil(t, updated)

	err = svc.DeletePost(ctx, 5, 2)
	assertCode(t, err, models.CodeForbidden)

	_, err = svc.UpdatePost(ctx, UpdatePostInput{UserID: 1, PostID: 5, Title: strPtr("Edited by author")})
	require.NoError(t, err)
	assert.Equal(t, "Edited by author", updated.Title)
	assert.Equal(t, "Some content here", updated.Content, "absent fields are left alone")

	status := models.PostStatusDraft
	_, err = svc.UpdatePost(ctx, UpdatePostInput{UserID: 99, PostID: 5, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusDraft, updated.Status)

	_, err = svc.UpdatePost(ctx, UpdatePostInput{UserID: 1, PostID: 5, Content: strPtr("tiny")})
	assertValidationError(t, err)

	assert.NoError(t, svc.DeletePost(ctx, 5, 99))
}

func TestPostService_MissingPost(t *testing.T) {
	t.Parallel()

	repo := noopPostRepo()
	repo.getByIDFn = func(context.Context, uint) (*models.Post, error) { return nil, gorm.ErrRecordNotFound }
	svc := NewPostService(repo, nil, nil, adminIs(1), 6)
	ctx := context.Background()

	_, err := svc.GetPost(ctx, 3, 0)
	assertCode(t, err, models.CodeNotFound)
	_, err = svc.UpdatePost(ctx, UpdatePostInput{UserID: 1, PostID: 3})
	assertCode(t, err, models.CodeNotFound)
	assertCode(t, svc.DeletePost(ctx, 3, 1), models.CodeNotFound)
}

func TestPostService_ListPosts_Pagination(t *testing.T) {
	t.Parallel()

	var gotFilter repository.PostFilter
	var gotLimit, gotOffset int
	repo := noopPostRepo()
	repo.listFn = func(_ context.Context, f repository.PostFilter, limit, offset int) ([]*models.Post, int64, error) {
		gotFilter, gotLimit, gotOffset = f, limit, offset
		return nil, 13, nil
	}
	svc := NewPostService(repo, nil, nil, nil, 6)

	page, err := svc.ListPosts(context.Background(), ListPostsInput{Page: 3, Query: "go"})
	require.NoError(t, err)
	assert.Equal(t, repository.PostFilter{Status: models.PostStatusPublished, Query: "go"}, gotFilter)
	assert.Equal(t, 6, gotLimit)
	assert.Equal(t, 12, gotOffset)
	assert.Equal(t, 3, page.TotalPages)
	assert.NotNil(t, page.Posts)

	_, err = svc.ListPosts(context.Background(), ListPostsInput{Page: -4})
	require.NoError(t, err)
	assert.Zero(t, gotOffset)
}

func TestPostService_ListPosts_RepoError(t *testing.T) {
	t.Parallel()

	repo := noopPostRepo()
	repo.listFn = func(context.Context, repository.PostFilter, int, int) ([]*models.Post, int64, error) {
		return nil, 0, errors.New("db down")
	}
	svc := NewPostService(repo, nil, nil, nil, 6)
	_, err := svc.ListPosts(context.Background(), ListPostsInput{})
	assertCode(t, err, models.CodeInternal)
}

func TestPostService_GetPost_WithReactionsAndComments(t *testing.T) {
	db := testutil.NewDB(t)
	author := testutil.CreateUser(t, db, "author", true)
	reader := testutil.CreateUser(t, db, "reader", false)
	post := testutil.CreatePost(t, db, author.ID, "Detailed", models.PostStatusDraft)

	reactions := NewReactionService(repository.NewReactionRepository(db), nil, nil)
	commentRepo := repository.NewCommentRepository(db)
	svc := NewPostService(repository.NewPostRepository(db), commentRepo, reactions, adminIs(author.ID), 6)
	ctx := context.Background()

	_, err := reactions.ToggleLike(ctx, reader.ID, post.ID)
	require.NoError(t, err)
	_, err = reactions.AddOrReplaceEmoji(ctx, reader.ID, post.ID, "love")
	require.NoError(t, err)
	require.NoError(t, commentRepo.Create(ctx, &models.Comment{PostID: post.ID, UserID: reader.ID, Content: "Nice one", IsActive: true}))

	detail, err := svc.GetPost(ctx, post.ID, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusDraft, detail.Status, "detail shows drafts too")
	assert.Equal(t, 1, detail.LikesCount)
	assert.True(t, detail.Liked)
	require.NotNil(t, detail.UserEmoji)
	assert.Equal(t, models.EmojiLove, *detail.UserEmoji)
	assert.Equal(t, models.EmojiHistogram{models.EmojiLove: 1}, detail.EmojiSummary)
	require.Len(t, detail.Comments, 1)
	assert.Equal(t, 1, detail.CommentsCount)

	anon, err := svc.GetPost(ctx, post.ID, 0)
	require.NoError(t, err)
	assert.False(t, anon.Liked)
	assert.Nil(t, anon.UserEmoji)

	page, err := svc.ListPosts(ctx, ListPostsInput{Page: 1, CurrentUserID: reader.ID})
	require.NoError(t, err)
	assert.Empty(t, page.Posts, "drafts are not listed")
}

func TestPostService_GetPost_StaleCachedDetailAfterToggle(t *testing.T) {
	db := testutil.NewDB(t)
	_, rdb := testutil.NewRedis(t)
	cache.SetClient(rdb)
	t.Cleanup(func() { cache.SetClient(nil) })

	author := testutil.CreateUser(t, db, "author", true)
	reader := testutil.CreateUser(t, db, "reader", false)
	post := testutil.CreatePost(t, db, author.ID, "Racy", models.PostStatusPublished)

	reactions := NewReactionService(repository.NewReactionRepository(db), nil, nil)
	svc := NewPostService(repository.NewPostRepository(db), nil, reactions, nil, 6)
	ctx := context.Background()

	// A detail load that read the row before the toggle committed fills the
	// cache after the toggle invalidated it.
	var before models.Post
	require.NoError(t, db.First(&before, post.ID).Error)
	_, err := reactions.ToggleLike(ctx, reader.ID, post.ID)
	require.NoError(t, err)
	require.NoError(t, cache.SetJSON(ctx, cache.PostKey(post.ID), &before, cache.PostTTL))

	detail, err := svc.GetPost(ctx, post.ID, reader.ID)
	require.NoError(t, err)
	assert.True(t, detail.Liked)
	assert.Equal(t, 1, detail.LikesCount)

	page, err := svc.ListPosts(ctx, ListPostsInput{Page: 1, CurrentUserID: reader.ID})
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, 1, page.Posts[0].LikesCount)
}
