package server

import (
	"context"

	"studyhub/internal/models"
	"studyhub/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetGroupForum handles GET /api/groups/:groupCode/forum
func (s *Server) GetGroupForum(c *fiber.Ctx) error {
	forum, err := s.forumService.GetGroupForum(c.UserContext(), c.Params("groupCode"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(forum)
}

// CreateThread handles POST /api/groups/:groupCode/threads
func (s *Server) CreateThread(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return nil
	}

	var req struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	thread, err := s.forumService.CreateThread(c.UserContext(), service.CreateThreadInput{
		GroupCode: c.Params("groupCode"),
		UserID:    userID,
		Title:     req.Title,
		Content:   req.Content,
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(thread)
}

// GetThread handles GET /api/threads/:threadId. Every call counts as a view.
func (s *Server) GetThread(c *fiber.Ctx) error {
	threadID, err := parseID(c, "threadId")
	if err != nil {
		return nil
	}

	thread, err := s.forumService.GetThreadDetails(c.UserContext(), threadID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(thread)
}

// CreateReply handles POST /api/threads/:threadId/replies
func (s *Server) CreateReply(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return nil
	}
	threadID, err := parseID(c, "threadId")
	if err != nil {
		return nil
	}

	var req struct {
		Content       string `json:"content"`
		ParentReplyID *uint  `json:"parentReplyId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	reply, err := s.forumService.CreateReply(c.UserContext(), service.CreateReplyInput{
		ThreadID:      threadID,
		UserID:        userID,
		Content:       req.Content,
		ParentReplyID: req.ParentReplyID,
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(reply)
}

// EditReply handles PUT /api/replies/:replyId
func (s *Server) EditReply(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return nil
	}
	replyID, err := parseID(c, "replyId")
	if err != nil {
		return nil
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	reply, err := s.forumService.EditReply(c.UserContext(), service.EditReplyInput{
		UserID:  userID,
		ReplyID: replyID,
		Content: req.Content,
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(reply)
}

// DeleteReply handles DELETE /api/replies/:replyId. Authors and admins of
// the reply's group may delete.
func (s *Server) DeleteReply(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID, err := currentUser(c)
	if err != nil {
		return nil
	}
	replyID, err := parseID(c, "replyId")
	if err != nil {
		return nil
	}

	isAdmin, err := s.forumService.CanModerateReply(ctx, userID, replyID)
	if err != nil {
		return respondErr(c, err)
	}

	reply, err := s.forumService.DeleteReply(ctx, service.DeleteReplyInput{
		UserID:  userID,
		ReplyID: replyID,
		IsAdmin: isAdmin,
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(reply)
}

// TogglePin handles PATCH /api/groups/:groupCode/threads/:threadId/pin
func (s *Server) TogglePin(c *fiber.Ctx) error {
	return s.toggleThread(c, s.forumService.TogglePin, "is_pinned")
}

// ToggleLock handles PATCH /api/groups/:groupCode/threads/:threadId/lock
func (s *Server) ToggleLock(c *fiber.Ctx) error {
	return s.toggleThread(c, s.forumService.ToggleLock, "is_locked")
}

type threadToggle func(ctx context.Context, userID, threadID uint, groupCode string) (bool, error)

func (s *Server) toggleThread(c *fiber.Ctx, toggle threadToggle, field string) error {
	userID, err := currentUser(c)
	if err != nil {
		return nil
	}
	threadID, err := parseID(c, "threadId")
	if err != nil {
		return nil
	}

	state, err := toggle(c.UserContext(), userID, threadID, c.Params("groupCode"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{
		"thread_id": threadID,
		field:       state,
	})
}
