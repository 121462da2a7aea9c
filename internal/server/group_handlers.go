package server

import (
	"encoding/json"
	"mime/multipart"
	"strconv"
	"strings"

	"studyhub/internal/models"
	"studyhub/internal/service"
	"studyhub/internal/storage"

	"github.com/gofiber/fiber/v2"
)

// CreateGroup handles POST /api/groups. The body is multipart: name,
// description, isPrivate, syllabus (JSON) and any number of "files".
func (s *Server) CreateGroup(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID, err := currentUser(c)
	if err != nil {
		return nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Expected a multipart form"))
	}

	syllabus, err := parseSyllabus(formValue(form, "syllabus"))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Syllabus must be valid JSON"))
	}

	isPrivate := false
	if raw := formValue(form, "isPrivate"); raw != "" {
		isPrivate, err = strconv.ParseBool(raw)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("isPrivate must be a boolean"))
		}
	}

	uploads, err := s.saveUploads(form.File["files"])
	if err != nil {
		s.stager.Discard(ctx, uploads)
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}

	// CreateGroup discards the temp uploads itself when it fails.
	graph, err := s.groupService.CreateGroup(ctx, service.CreateGroupInput{
		CreatorID:   userID,
		Name:        formValue(form, "name"),
		Description: formValue(form, "description"),
		IsPrivate:   isPrivate,
		Syllabus:    syllabus,
		Uploads:     uploads,
	})
	if err != nil {
		return respondErr(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(graph)
}

// parseSyllabus accepts {"topics":[...]} and the wrapped
// {"syllabus":{"topics":[...]}} that older clients send.
func parseSyllabus(raw string) (models.SyllabusInput, error) {
	if raw == "" {
		return models.SyllabusInput{}, nil
	}
	var body struct {
		models.SyllabusInput
		Syllabus *models.SyllabusInput `json:"syllabus"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return models.SyllabusInput{}, err
	}
	if body.Syllabus != nil && body.Syllabus.Topics != nil {
		return *body.Syllabus, nil
	}
	return body.SyllabusInput, nil
}

// saveUploads parks every received file in the temp dir. On error the
// uploads saved so far are returned so the caller can discard them.
func (s *Server) saveUploads(files []*multipart.FileHeader) ([]storage.Upload, error) {
	uploads := make([]storage.Upload, 0, len(files))
	for _, fh := range files {
		src, err := fh.Open()
		if err != nil {
			return uploads, err
		}
		up, err := s.stager.SaveTemp(src, fh.Filename)
		_ = src.Close()
		if err != nil {
			return uploads, err
		}
		uploads = append(uploads, up)
	}
	return uploads, nil
}

func formValue(form *multipart.Form, key string) string {
	if vals := form.Value[key]; len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

// ListGroups handles GET /api/groups
func (s *Server) ListGroups(c *fiber.Ctx) error {
	groups, err := s.groupService.ListPublicGroups(c.UserContext())
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(groups)
}

// GetGroup handles GET /api/groups/:groupCode
func (s *Server) GetGroup(c *fiber.Ctx) error {
	graph, err := s.groupService.GetGroupGraph(c.UserContext(), c.Params("groupCode"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(graph)
}

// JoinGroup handles POST /api/groups/:groupCode/join
func (s *Server) JoinGroup(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return nil
	}

	var req struct {
		IsAnonymous bool `json:"isAnonymous"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body"))
		}
	}

	membership, err := s.groupService.JoinGroup(c.UserContext(), service.JoinGroupInput{
		GroupCode:   c.Params("groupCode"),
		UserID:      userID,
		IsAnonymous: req.IsAnonymous,
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(membership)
}
