package server

import (
	"errors"

	"quill/internal/models"
	"quill/internal/service"

	"github.com/gofiber/fiber/v2"
)

const internalErrorMessage = "An internal server error occurred."

// reactionFailure writes the reaction endpoints' {success:false} envelope.
// Validation problems are reported with 200 so clients treat them as a
// normal outcome.
func reactionFailure(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		appErr = models.NewInternalError(err)
	}

	status := models.StatusFor(appErr)
	message := appErr.Message
	switch appErr.Code {
	case models.CodeValidation:
		status = fiber.StatusOK
	case models.CodeNotFound:
		message = "Post not found"
	case models.CodeInternal:
		message = internalErrorMessage
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// reactionPostID parses the :id param, answering 400 in the reaction
// envelope when it is not a positive integer.
func reactionPostID(c *fiber.Ctx) (uint, bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid post id",
		})
		return 0, false
	}
	return uint(id), true
}

// ToggleLike handles POST /post/:id/like/
// @Summary Toggle like
// @Description Like the post, or remove the caller's like if present
// @Tags reactions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Success 200 {object} object{success=bool,likes_count=int,is_liked=bool,post_id=int}
// @Failure 400 {object} object{success=bool,error=string}
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} object{success=bool,error=string}
// @Router /post/{id}/like/ [post]
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	postID, ok := reactionPostID(c)
	if !ok {
		return nil
	}

	res, err := s.reactionService.ToggleLike(c.UserContext(), currentUserID(c), postID)
	if err != nil {
		return reactionFailure(c, err)
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"likes_count": res.LikesCount,
		"is_liked":    res.Liked,
		"post_id":     res.PostID,
	})
}

// AddEmojiReaction handles POST /post/:id/emoji/
// @Summary Set emoji reaction
// @Description Store emoji_type as the caller's single reaction, replacing any previous one
// @Tags reactions
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Param request body object{emoji_type=string} true "Emoji kind"
// @Success 200 {object} object{success=bool,emojis_summary=object,user_emoji=string}
// @Failure 400 {object} object{success=bool,error=string}
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} object{success=bool,error=string}
// @Router /post/{id}/emoji/ [post]
func (s *Server) AddEmojiReaction(c *fiber.Ctx) error {
	postID, ok := reactionPostID(c)
	if !ok {
		return nil
	}

	var req struct {
		EmojiType string `json:"emoji_type" form:"emoji_type"`
	}
	if err := c.BodyParser(&req); err != nil {
		req.EmojiType = c.Query("emoji_type")
	}

	res, err := s.reactionService.AddOrReplaceEmoji(c.UserContext(), currentUserID(c), postID, req.EmojiType)
	if err != nil {
		return reactionFailure(c, err)
	}

	return c.JSON(fiber.Map{
		"success":        true,
		"emojis_summary": res.Histogram,
		"user_emoji":     res.UserEmoji,
	})
}

// RemoveEmojiReaction handles POST /post/:id/emoji/remove/
// @Summary Remove emoji reaction
// @Tags reactions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Success 200 {object} object{success=bool,emojis_summary=object,user_emoji=string}
// @Failure 400 {object} object{success=bool,error=string}
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} object{success=bool,error=string}
// @Router /post/{id}/emoji/remove/ [post]
func (s *Server) RemoveEmojiReaction(c *fiber.Ctx) error {
	postID, ok := reactionPostID(c)
	if !ok {
		return nil
	}

	res, err := s.reactionService.RemoveEmoji(c.UserContext(), currentUserID(c), postID)
	if err != nil {
		return reactionFailure(c, err)
	}
	if !res.Removed {
		return reactionFailure(c, service.ErrNothingToRemove)
	}

	return c.JSON(fiber.Map{
		"success":        true,
		"emojis_summary": res.Histogram,
		"user_emoji":     nil,
	})
}
