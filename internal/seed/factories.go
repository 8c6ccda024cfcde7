// Package seed generates demo data for development databases. Reactions go
// through the reaction engine so stored counters match the membership rows.
package seed

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"quill/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password every seeded account shares.
const DefaultPassword = "Quill-demo-pass1"

// Options tune the factories.
type Options struct {
	// Seed makes generated content reproducible. Zero picks a random seed.
	Seed       int64
	MaxDays    int
	Password   string
	BcryptCost int
}

func (o Options) withDefaults() Options {
	if o.MaxDays <= 0 {
		o.MaxDays = 90
	}
	if o.Password == "" {
		o.Password = DefaultPassword
	}
	if o.BcryptCost == 0 {
		o.BcryptCost = bcrypt.DefaultCost
	}
	return o
}

var usernameJunk = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db    *gorm.DB
	opts  Options
	faker *gofakeit.Faker
	now   time.Time
	seq   int

	hashOnce sync.Once
	hash     string
	hashErr  error
}

// NewFactory creates a Factory bound to db.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	return &Factory{
		db:    db,
		opts:  opts.withDefaults(),
		faker: gofakeit.New(opts.Seed),
		now:   time.Now(),
	}
}

// Faker exposes the factory's random source so callers draw from the same seed.
func (f *Factory) Faker() *gofakeit.Faker {
	return f.faker
}

func (f *Factory) passwordHash() (string, error) {
	f.hashOnce.Do(func() {
		b, err := bcrypt.GenerateFromPassword([]byte(f.opts.Password), f.opts.BcryptCost)
		f.hash, f.hashErr = string(b), err
	})
	return f.hash, f.hashErr
}

// username derives a unique handle that passes signup validation.
func (f *Factory) username() string {
	f.seq++
	base := usernameJunk.ReplaceAllString(f.faker.Username(), "")
	if len(base) > 20 {
		base = base[:20]
	}
	if len(base) < 3 {
		base = "reader"
	}
	return strings.ToLower(fmt.Sprintf("%s%d", base, f.seq))
}

// pastTime returns a moment within the last MaxDays, never before notBefore.
func (f *Factory) pastTime(notBefore time.Time) time.Time {
	span := time.Duration(f.opts.MaxDays) * 24 * time.Hour
	start := f.now.Add(-span)
	if notBefore.After(start) {
		start = notBefore
	}
	window := f.now.Sub(start)
	if window <= 0 {
		return f.now
	}
	offset := time.Duration(f.faker.Float64Range(0, float64(window)))
	return start.Add(offset).Truncate(time.Second)
}

// CreateUser persists a sample user. Optional override functions may modify
// the generated user before saving.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	hash, err := f.passwordHash()
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}

	name := f.username()
	user := &models.User{
		Username: name,
		Email:    name + "@example.com",
		Password: hash,
	}
	for _, override := range overrides {
		override(user)
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// BuildPost constructs a post by author without persisting it.
func (f *Factory) BuildPost(author *models.User, overrides ...func(*models.Post)) *models.Post {
	title := strings.TrimSuffix(f.faker.Sentence(f.faker.Number(4, 9)), ".")
	if len(title) > 250 {
		title = title[:250]
	}
	created := f.pastTime(time.Time{})

	post := &models.Post{
		Title:     title,
		Content:   f.faker.Paragraph(f.faker.Number(2, 5), f.faker.Number(3, 6), 12, "\n\n"),
		Status:    models.PostStatusPublished,
		UserID:    author.ID,
		CreatedAt: created,
		UpdatedAt: created,
	}
	for _, override := range overrides {
		override(post)
	}
	return post
}

// CreatePost persists a sample post by author.
func (f *Factory) CreatePost(author *models.User, overrides ...func(*models.Post)) (*models.Post, error) {
	post := f.BuildPost(author, overrides...)
	if err := f.db.Create(post).Error; err != nil {
		return nil, err
	}
	return post, nil
}

// CreateComment persists a sample comment by user on post, dated after the post.
func (f *Factory) CreateComment(user *models.User, post *models.Post, overrides ...func(*models.Comment)) (*models.Comment, error) {
	created := f.pastTime(post.CreatedAt)
	comment := &models.Comment{
		Content:   f.faker.Sentence(f.faker.Number(3, 20)),
		UserID:    user.ID,
		PostID:    post.ID,
		IsActive:  true,
		CreatedAt: created,
		UpdatedAt: created,
	}
	for _, override := range overrides {
		override(comment)
	}

	if err := f.db.Create(comment).Error; err != nil {
		return nil, err
	}
	return comment, nil
}
