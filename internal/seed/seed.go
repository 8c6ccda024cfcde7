package seed

import (
	"context"
	"fmt"
	"log/slog"

	"quill/internal/cache"
	"quill/internal/middleware"
	"quill/internal/models"
	"quill/internal/repository"
	"quill/internal/service"

	"gorm.io/gorm"
)

// Summary counts what a seeding run created.
type Summary struct {
	Users    int
	Admins   int
	Posts    int
	Drafts   int
	Comments int
	Likes    int
	Emojis   int
}

// Seeder fills a database from a Preset.
type Seeder struct {
	db        *gorm.DB
	factory   *Factory
	reactions *service.ReactionService
	log       *slog.Logger
}

// NewSeeder creates a Seeder. Reactions are recorded without realtime
// broadcasts.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	return &Seeder{
		db:        db,
		factory:   NewFactory(db, opts),
		reactions: service.NewReactionService(repository.NewReactionRepository(db), nil, nil),
		log:       middleware.Logger,
	}
}

// ClearAll removes every row the seeder can create, children first.
func (s *Seeder) ClearAll(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec(`TRUNCATE TABLE emoji_reactions, likes, comments, posts, users RESTART IDENTITY CASCADE`).Error; err != nil {
			return fmt.Errorf("truncate tables: %w", err)
		}
		s.log.Info("seed data cleared")
		return nil
	}

	for _, model := range []any{&models.EmojiReaction{}, &models.Like{}, &models.Comment{}, &models.Post{}, &models.User{}} {
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(model).Error; err != nil {
			return fmt.Errorf("clear %T: %w", model, err)
		}
	}
	s.log.Info("seed data cleared")
	return nil
}

// Run creates the users, posts, comments and reactions p describes.
func (s *Seeder) Run(ctx context.Context, p Preset) (*Summary, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s.factory.opts.MaxDays = p.MaxDays
	s.factory.opts = s.factory.opts.withDefaults()

	var sum Summary
	admins, err := s.createUsers(p.Admins, true)
	if err != nil {
		return nil, err
	}
	sum.Admins = len(admins)

	readers, err := s.createUsers(p.Users, false)
	if err != nil {
		return nil, err
	}
	sum.Users = len(readers)
	s.log.Info("seeded users", "admins", sum.Admins, "users", sum.Users)

	everyone := append(append([]*models.User{}, admins...), readers...)
	faker := s.factory.Faker()

	for i := 0; i < p.Posts; i++ {
		author := admins[faker.Number(0, len(admins)-1)]
		status := models.PostStatusPublished
		if faker.Float64() < p.DraftRatio {
			status = models.PostStatusDraft
		}
		post, err := s.factory.CreatePost(author, func(post *models.Post) { post.Status = status })
		if err != nil {
			return nil, fmt.Errorf("create post: %w", err)
		}
		cache.InvalidatePost(ctx, post.ID)
		sum.Posts++
		if status == models.PostStatusDraft {
			sum.Drafts++
			continue
		}

		if len(everyone) > 0 && p.CommentsPerPost > 0 {
			for n := faker.Number(0, p.CommentsPerPost); n > 0; n-- {
				commenter := everyone[faker.Number(0, len(everyone)-1)]
				if _, err := s.factory.CreateComment(commenter, post); err != nil {
					return nil, fmt.Errorf("create comment: %w", err)
				}
				sum.Comments++
			}
		}

		likes, emojis, err := s.react(ctx, post, everyone, p)
		if err != nil {
			return nil, err
		}
		sum.Likes += likes
		sum.Emojis += emojis
	}

	s.log.Info("seeding complete",
		"posts", sum.Posts, "drafts", sum.Drafts, "comments", sum.Comments,
		"likes", sum.Likes, "emojis", sum.Emojis)
	return &sum, nil
}

func (s *Seeder) createUsers(n int, admin bool) ([]*models.User, error) {
	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		u, err := s.factory.CreateUser(func(u *models.User) { u.IsAdmin = admin })
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		users = append(users, u)
	}
	return users, nil
}

// react has each user like and emoji-react to post with the preset's odds.
func (s *Seeder) react(ctx context.Context, post *models.Post, users []*models.User, p Preset) (likes, emojis int, err error) {
	faker := s.factory.Faker()
	for _, u := range users {
		if faker.Float64() < p.LikeRate {
			if _, err := s.reactions.ToggleLike(ctx, u.ID, post.ID); err != nil {
				return likes, emojis, fmt.Errorf("like post %d: %w", post.ID, err)
			}
			likes++
		}
		if faker.Float64() < p.EmojiRate {
			kind := models.EmojiKinds[faker.Number(0, len(models.EmojiKinds)-1)]
			if _, err := s.reactions.AddOrReplaceEmoji(ctx, u.ID, post.ID, string(kind)); err != nil {
				return likes, emojis, fmt.Errorf("react to post %d: %w", post.ID, err)
			}
			emojis++
		}
	}
	return likes, emojis, nil
}
