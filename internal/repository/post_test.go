package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"quill/internal/models"
	"quill/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestPostRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db)

	post := &models.Post{Title: "Test Post", Content: "Content body", Status: models.PostStatusPublished, UserID: 1}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "posts"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), post))
	assert.EqualValues(t, 1, post.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_GetByID(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := testutil.CreateUser(t, db, "writer", true)
	post := testutil.CreatePost(t, db, author.ID, "Hello world", models.PostStatusPublished)
	require.NoError(t, db.Create(&models.Comment{PostID: post.ID, UserID: author.ID, Content: "visible"}).Error)
	hidden := &models.Comment{PostID: post.ID, UserID: author.ID, Content: "hidden"}
	require.NoError(t, db.Create(hidden).Error)
	require.NoError(t, db.Model(hidden).Update("is_active", false).Error)

	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", got.Title)
	assert.Equal(t, "writer", got.User.Username)
	assert.Equal(t, 1, got.CommentsCount)

	_, err = repo.GetByID(ctx, 999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestPostRepository_ListFiltersAndOrders(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "alice", true)
	bob := testutil.CreateUser(t, db, "bobby", true)

	old := testutil.CreatePost(t, db, alice.ID, "Gardening notes", models.PostStatusPublished)
	newer := testutil.CreatePost(t, db, bob.ID, "Cooking 100% pasta", models.PostStatusPublished)
	testutil.CreatePost(t, db, alice.ID, "Secret draft", models.PostStatusDraft)

	require.NoError(t, db.Model(old).UpdateColumn("updated_at", time.Now().Add(-time.Hour)).Error)

	posts, total, err := repo.List(ctx, PostFilter{Status: models.PostStatusPublished}, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, posts, 2)
	assert.Equal(t, newer.ID, posts[0].ID, "most recently modified first")
	assert.Equal(t, old.ID, posts[1].ID)

	posts, total, err = repo.List(ctx, PostFilter{Status: models.PostStatusPublished, Query: "BOBBY"}, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, posts, 1)
	assert.Equal(t, newer.ID, posts[0].ID)

	posts, _, err = repo.List(ctx, PostFilter{Status: models.PostStatusPublished, Query: "100%"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, newer.ID, posts[0].ID)

	posts, _, err = repo.List(ctx, PostFilter{Status: models.PostStatusPublished, Query: "%"}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, posts, 1, "wildcards in the query match literally")

	posts, total, err = repo.List(ctx, PostFilter{Status: models.PostStatusPublished}, 1, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, posts, 1)
	assert.Equal(t, old.ID, posts[0].ID)

	posts, total, err = repo.List(ctx, PostFilter{}, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, posts, 3)
}

func TestPostRepository_UpdateKeepsLikesCount(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := testutil.CreateUser(t, db, "author", true)
	post := testutil.CreatePost(t, db, author.ID, "Original", models.PostStatusPublished)
	require.NoError(t, db.Model(post).UpdateColumn("likes_count", 3).Error)

	edit := &models.Post{ID: post.ID, Title: "Edited title", Content: "Edited content", Status: models.PostStatusDraft, LikesCount: 0}
	require.NoError(t, repo.Update(ctx, edit))

	var got models.Post
	require.NoError(t, db.First(&got, post.ID).Error)
	assert.Equal(t, "Edited title", got.Title)
	assert.Equal(t, models.PostStatusDraft, got.Status)
	assert.Equal(t, 3, got.LikesCount)
	assert.Equal(t, author.ID, got.UserID)
}

func TestPostRepository_Delete(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := testutil.CreateUser(t, db, "author", true)
	post := testutil.CreatePost(t, db, author.ID, "Doomed", models.PostStatusPublished)

	require.NoError(t, repo.Delete(ctx, post.ID))
	_, err := repo.GetByID(ctx, post.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\%\_off\\`, escapeLike(`50%_off\`))
}
