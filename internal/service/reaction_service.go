// Package service holds the application's use cases on top of the repositories.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"quill/internal/cache"
	"quill/internal/featureflags"
	"quill/internal/models"
	"quill/internal/observability"
	"quill/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// EventPostReactionUpdated is broadcast after every like or emoji change.
const EventPostReactionUpdated = "post_reaction_updated"

// ErrNothingToRemove is reported by handlers when RemoveEmoji finds no reaction.
var ErrNothingToRemove = models.NewValidationError("No reaction found to remove")

// EventPublisher fans realtime events out to connected clients.
type EventPublisher interface {
	Broadcast(ctx context.Context, eventType string, payload any) error
}

// LikeResult is the outcome of a like toggle.
type LikeResult struct {
	PostID     uint `json:"post_id"`
	Liked      bool `json:"is_liked"`
	LikesCount int  `json:"likes_count"`
}

// EmojiResult is the outcome of an emoji mutation.
type EmojiResult struct {
	PostID    uint                  `json:"post_id"`
	Removed   bool                  `json:"-"`
	Histogram models.EmojiHistogram `json:"emojis_summary"`
	UserEmoji *models.EmojiKind     `json:"user_emoji"`
}

// ReactionService implements the like toggle and emoji reactions.
type ReactionService struct {
	reactions repository.ReactionRepository
	events    EventPublisher
	flags     *featureflags.Manager
}

// NewReactionService wires the reaction engine. events and flags may be nil,
// which disables realtime broadcasts.
func NewReactionService(
	reactions repository.ReactionRepository,
	events EventPublisher,
	flags *featureflags.Manager,
) *ReactionService {
	return &ReactionService{
		reactions: reactions,
		events:    events,
		flags:     flags,
	}
}

// ToggleLike flips the caller's like on a post. Membership and the stored
// counter change in one transaction while the post row is locked.
func (s *ReactionService) ToggleLike(ctx context.Context, userID, postID uint) (*LikeResult, error) {
	if userID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	span, ctx := observability.NewSpan(ctx, "reaction.toggle_like", reactionAttrs(userID, postID)...)
	defer span.End()

	res := LikeResult{PostID: postID}
	start := time.Now()
	err := s.reactions.Atomic(ctx, func(tx repository.ReactionRepository) error {
		if _, err := tx.LockPost(ctx, postID); err != nil {
			return err
		}
		liked, err := tx.HasLike(ctx, postID, userID)
		if err != nil {
			return err
		}

		delta := 0
		if liked {
			removed, err := tx.RemoveLike(ctx, postID, userID)
			if err != nil {
				return err
			}
			if removed {
				delta = -1
			}
		} else {
			added, err := tx.AddLike(ctx, postID, userID)
			if err != nil {
				return err
			}
			if added {
				delta = 1
			}
		}
		res.Liked = !liked

		count, err := tx.AdjustLikeCount(ctx, postID, delta)
		if err != nil {
			return err
		}
		res.LikesCount = count
		return nil
	})
	observability.ReactionTxDuration.WithLabelValues("toggle_like").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, s.fail(span, "toggle_like", postID, err)
	}

	cache.Invalidate(ctx, cache.PostKey(postID))
	state := "unliked"
	if res.Liked {
		state = "liked"
	}
	observability.LikeToggles.WithLabelValues(state).Inc()
	span.AddAttributes(attribute.Bool("reaction.liked", res.Liked), attribute.Int("reaction.likes_count", res.LikesCount))

	s.publish(ctx, userID, map[string]any{
		"post_id":     postID,
		"user_id":     userID,
		"action":      state,
		"likes_count": res.LikesCount,
	})
	return &res, nil
}

// AddOrReplaceEmoji stores kind as the caller's single reaction on the post,
// replacing any previous kind, and returns the updated histogram.
func (s *ReactionService) AddOrReplaceEmoji(ctx context.Context, userID, postID uint, rawKind string) (*EmojiResult, error) {
	if userID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	kind, err := models.ParseEmojiKind(rawKind)
	if err != nil {
		observability.ReactionFailures.WithLabelValues("set_emoji", models.CodeValidation).Inc()
		return nil, err
	}

	span, ctx := observability.NewSpan(ctx, "reaction.set_emoji",
		append(reactionAttrs(userID, postID), attribute.String("reaction.kind", string(kind)))...)
	defer span.End()

	var hist models.EmojiHistogram
	start := time.Now()
	err = s.reactions.Atomic(ctx, func(tx repository.ReactionRepository) error {
		if _, err := tx.LockPost(ctx, postID); err != nil {
			return err
		}
		if err := tx.SetEmoji(ctx, postID, userID, kind); err != nil {
			return err
		}
		var err error
		hist, err = tx.EmojiHistogram(ctx, postID)
		return err
	})
	observability.ReactionTxDuration.WithLabelValues("set_emoji").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, s.fail(span, "set_emoji", postID, err)
	}

	observability.EmojiReactions.WithLabelValues("set", string(kind)).Inc()

	s.publish(ctx, userID, map[string]any{
		"post_id":        postID,
		"user_id":        userID,
		"action":         "emoji_set",
		"emojis_summary": hist,
	})
	return &EmojiResult{PostID: postID, Histogram: hist, UserEmoji: &kind}, nil
}

// RemoveEmoji clears the caller's reaction. Removing an absent reaction is not
// an error; the result reports Removed=false.
func (s *ReactionService) RemoveEmoji(ctx context.Context, userID, postID uint) (*EmojiResult, error) {
	if userID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	span, ctx := observability.NewSpan(ctx, "reaction.remove_emoji", reactionAttrs(userID, postID)...)
	defer span.End()

	res := EmojiResult{PostID: postID}
	var previous models.EmojiKind
	start := time.Now()
	err := s.reactions.Atomic(ctx, func(tx repository.ReactionRepository) error {
		if _, err := tx.LockPost(ctx, postID); err != nil {
			return err
		}
		kind, found, err := tx.GetEmoji(ctx, postID, userID)
		if err != nil {
			return err
		}
		if found {
			previous = kind
			if res.Removed, err = tx.ClearEmoji(ctx, postID, userID); err != nil {
				return err
			}
		}
		res.Histogram, err = tx.EmojiHistogram(ctx, postID)
		return err
	})
	observability.ReactionTxDuration.WithLabelValues("remove_emoji").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, s.fail(span, "remove_emoji", postID, err)
	}
	span.AddAttributes(attribute.Bool("reaction.removed", res.Removed))
	if !res.Removed {
		return &res, nil
	}

	observability.EmojiReactions.WithLabelValues("remove", string(previous)).Inc()

	s.publish(ctx, userID, map[string]any{
		"post_id":        postID,
		"user_id":        userID,
		"action":         "emoji_removed",
		"emojis_summary": res.Histogram,
	})
	return &res, nil
}

// IsLikedBy reports whether userID likes the post. Anonymous callers are
// answered without touching the store.
func (s *ReactionService) IsLikedBy(ctx context.Context, userID, postID uint) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	return s.reactions.HasLike(ctx, postID, userID)
}

// CurrentEmoji returns the caller's reaction on the post, or nil.
func (s *ReactionService) CurrentEmoji(ctx context.Context, userID, postID uint) (*models.EmojiKind, error) {
	if userID == 0 {
		return nil, nil
	}
	kind, found, err := s.reactions.GetEmoji(ctx, postID, userID)
	if err != nil || !found {
		return nil, err
	}
	return &kind, nil
}

// EmojiSummary returns the post's emoji histogram.
func (s *ReactionService) EmojiSummary(ctx context.Context, postID uint) (models.EmojiHistogram, error) {
	hist, err := s.reactions.EmojiHistogram(ctx, postID)
	if err != nil {
		return nil, err
	}
	if hist == nil {
		hist = models.EmojiHistogram{}
	}
	return hist, nil
}

// Annotate fills the reaction fields of a page of posts using one query per
// field. likes_count is re-read from the store since posts may come from the
// detail cache. Anonymous callers get counts and histograms only.
func (s *ReactionService) Annotate(ctx context.Context, posts []*models.Post, userID uint) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]uint, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}

	counts, err := s.reactions.LikeCounts(ctx, ids)
	if err != nil {
		return err
	}
	hists, err := s.reactions.EmojiHistograms(ctx, ids)
	if err != nil {
		return err
	}
	for _, p := range posts {
		if n, ok := counts[p.ID]; ok {
			p.LikesCount = n
		}
		p.EmojiSummary = hists[p.ID]
		if p.EmojiSummary == nil {
			p.EmojiSummary = models.EmojiHistogram{}
		}
		p.Liked = false
		p.UserEmoji = nil
	}
	if userID == 0 {
		return nil
	}

	likedIDs, err := s.reactions.LikedPostIDs(ctx, userID, ids)
	if err != nil {
		return err
	}
	liked := make(map[uint]bool, len(likedIDs))
	for _, id := range likedIDs {
		liked[id] = true
	}
	emojis, err := s.reactions.UserEmojis(ctx, userID, ids)
	if err != nil {
		return err
	}
	for _, p := range posts {
		p.Liked = liked[p.ID]
		if kind, ok := emojis[p.ID]; ok {
			p.UserEmoji = &kind
		}
	}
	return nil
}

// fail normalizes an engine error: missing posts become NOT_FOUND, app errors
// pass through, anything else is INTERNAL.
func (s *ReactionService) fail(span *observability.Span, op string, postID uint, err error) error {
	var appErr *models.AppError
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		appErr = models.NewNotFoundError("Post", postID)
	case errors.As(err, &appErr):
	default:
		appErr = models.NewInternalError(err)
	}
	span.SetError(err)
	observability.ReactionFailures.WithLabelValues(op, appErr.Code).Inc()
	if appErr.Code == models.CodeInternal {
		observability.GlobalLogger.Error("reaction operation failed",
			slog.String("operation", op),
			slog.Uint64("post_id", uint64(postID)),
			slog.String("error", err.Error()),
		)
	}
	return appErr
}

func (s *ReactionService) publish(ctx context.Context, userID uint, payload map[string]any) {
	if s.events == nil || !s.flags.Enabled(featureflags.ReactionBroadcast, userID) {
		return
	}
	if err := s.events.Broadcast(ctx, EventPostReactionUpdated, payload); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "failed to publish reaction event",
			slog.Any("post_id", payload["post_id"]),
			slog.String("error", err.Error()),
		)
	}
}

func reactionAttrs(userID, postID uint) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("user.id", int64(userID)),
		attribute.Int64("post.id", int64(postID)),
	}
}
