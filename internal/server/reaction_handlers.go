package server

import (
	"studyhub/internal/service"

	"github.com/gofiber/fiber/v2"
)

// LikeReply handles POST /api/replies/:replyId/like
func (s *Server) LikeReply(c *fiber.Ctx) error {
	return s.react(c, service.ActionLike)
}

// DislikeReply handles POST /api/replies/:replyId/dislike
func (s *Server) DislikeReply(c *fiber.Ctx) error {
	return s.react(c, service.ActionDislike)
}

func (s *Server) react(c *fiber.Ctx, action service.ReactionAction) error {
	userID, err := currentUser(c)
	if err != nil {
		return nil
	}
	replyID, err := parseID(c, "replyId")
	if err != nil {
		return nil
	}

	result, err := s.reactionService.React(c.UserContext(), userID, replyID, action)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(result)
}

// GetMyReaction handles GET /api/replies/:replyId/reaction
func (s *Server) GetMyReaction(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return nil
	}
	replyID, err := parseID(c, "replyId")
	if err != nil {
		return nil
	}

	state, err := s.reactionService.GetUserReaction(c.UserContext(), userID, replyID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{
		"reply_id": replyID,
		"reaction": state,
	})
}
