package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"studyhub/internal/cache"
	"studyhub/internal/models"
	"studyhub/internal/observability"
	"studyhub/internal/repository"
	"studyhub/internal/storage"
	"studyhub/internal/validation"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const defaultCodeAttempts = 5

// ResourceStager moves uploads into a group's resource directory.
type ResourceStager interface {
	Stage(ctx context.Context, groupID uuid.UUID, up storage.Upload) (*storage.StagedFile, error)
	Discard(ctx context.Context, uploads []storage.Upload)
	RemoveGroupDir(groupID uuid.UUID) error
}

// GroupService provisions groups and manages membership.
type GroupService struct {
	groupRepo repository.GroupRepository
	userRepo  repository.UserRepository
	graph     *repository.EntityGraph
	stager    ResourceStager
	lookup    *GroupLookup
	cfg       GroupServiceConfig
	newCode   func() (string, error)
}

// GroupServiceConfig bounds provisioning requests.
type GroupServiceConfig struct {
	CodeAttempts int
	MaxResources int
}

type CreateGroupInput struct {
	CreatorID   uint
	Name        string `validate:"notblank" label:"Group name"`
	Description string
	IsPrivate   bool
	Syllabus    models.SyllabusInput `validate:"-"` // checked after the creator lookup
	Uploads     []storage.Upload
}

type JoinGroupInput struct {
	GroupCode   string
	UserID      uint
	IsAnonymous bool
}

func NewGroupService(
	groupRepo repository.GroupRepository,
	userRepo repository.UserRepository,
	graph *repository.EntityGraph,
	stager ResourceStager,
	lookup *GroupLookup,
	cfg GroupServiceConfig,
) *GroupService {
	if cfg.CodeAttempts <= 0 {
		cfg.CodeAttempts = defaultCodeAttempts
	}
	return &GroupService{
		groupRepo: groupRepo,
		userRepo:  userRepo,
		graph:     graph,
		stager:    stager,
		lookup:    lookup,
		cfg:       cfg,
		newCode:   GenerateGroupCode,
	}
}

// CreateGroup validates the request, then writes the group, the creator's
// admin membership, staged resources, the syllabus tree and the forum in one
// entity graph. On any failure no row survives and no uploaded file is left
// on disk, neither staged nor in the temp dir.
func (s *GroupService) CreateGroup(ctx context.Context, in CreateGroupInput) (result *models.GroupGraph, err error) {
	ctx, span := observability.StartSpan(ctx, "group_service", "create_group",
		attribute.Int("uploads", len(in.Uploads)),
		attribute.Int("topics", len(in.Syllabus.Topics)),
	)
	defer func() {
		span.End(err)
		observability.GroupProvisioning.WithLabelValues(provisioningOutcome(err)).Inc()
		if err != nil {
			s.stager.Discard(ctx, in.Uploads)
		}
	}()

	if err := s.validateCreate(ctx, in); err != nil {
		return nil, err
	}

	group := &models.Group{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		CreatorID:   in.CreatorID,
		IsPrivate:   in.IsPrivate,
	}
	var syllabus models.Syllabus

	err = s.graph.Execute(ctx,
		repository.GraphStep{Name: "group", Run: func(ctx context.Context, gtx *repository.EntityGraphTx) error {
			groups := s.groupRepo.WithTx(gtx.DB)
			code, err := s.allocateCode(ctx, groups)
			if err != nil {
				return err
			}
			group.GroupCode = code
			return groups.Create(ctx, group)
		}},
		repository.GraphStep{Name: "membership", Run: func(ctx context.Context, gtx *repository.EntityGraphTx) error {
			return s.groupRepo.WithTx(gtx.DB).AddMember(ctx, &models.Membership{
				UserID:  in.CreatorID,
				GroupID: group.ID,
				Role:    models.MembershipRoleAdmin,
			})
		}},
		repository.GraphStep{Name: "resources", Run: func(ctx context.Context, gtx *repository.EntityGraphTx) error {
			if len(in.Uploads) == 0 {
				return nil
			}
			gtx.OnRollback(func() error { return s.stager.RemoveGroupDir(group.ID) })

			groups := s.groupRepo.WithTx(gtx.DB)
			for _, up := range in.Uploads {
				staged, err := s.stager.Stage(ctx, group.ID, up)
				if err != nil {
					return fmt.Errorf("stage %q: %w", up.OriginalName, err)
				}
				gtx.TrackFile(staged.Path)

				resource := &models.Resource{
					GroupID:      group.ID,
					FilePath:     staged.Path,
					OriginalName: staged.OriginalName,
					FileType:     staged.FileType,
					UploaderID:   in.CreatorID,
					Status:       models.ResourceStatusApproved,
				}
				if err := groups.CreateResource(ctx, resource); err != nil {
					return fmt.Errorf("insert resource %q: %w", up.OriginalName, err)
				}
			}
			return nil
		}},
		repository.GraphStep{Name: "syllabus", Run: func(ctx context.Context, gtx *repository.EntityGraphTx) error {
			syllabus = models.Syllabus{GroupID: group.ID}
			return s.groupRepo.WithTx(gtx.DB).CreateSyllabus(ctx, &syllabus)
		}},
		repository.GraphStep{Name: "topics", Run: func(ctx context.Context, gtx *repository.EntityGraphTx) error {
			groups := s.groupRepo.WithTx(gtx.DB)
			for _, t := range in.Syllabus.Topics {
				topic := &models.Topic{
					SyllabusID:  syllabus.ID,
					Title:       strings.TrimSpace(t.Title),
					Description: t.Description,
				}
				if err := groups.CreateTopic(ctx, topic); err != nil {
					return err
				}
				for _, st := range t.SubTopics {
					if err := groups.CreateSubTopic(ctx, &models.SubTopic{
						TopicID: topic.ID,
						Title:   strings.TrimSpace(st.Title),
						Content: st.Content,
					}); err != nil {
						return err
					}
				}
			}
			return nil
		}},
		repository.GraphStep{Name: "forum", Run: func(ctx context.Context, gtx *repository.EntityGraphTx) error {
			return s.groupRepo.WithTx(gtx.DB).CreateForum(ctx, &models.Forum{
				GroupID:     group.ID,
				Name:        models.DefaultForumName,
				Description: models.DefaultForumDescription,
				IsActive:    true,
			})
		}},
	)
	if err != nil {
		return nil, err
	}

	span.AddAttributes(attribute.String("group.id", group.ID.String()))
	observability.Logger.InfoContext(ctx, "group provisioned",
		slog.String("group_id", group.ID.String()),
		slog.String("group_code", group.GroupCode),
		slog.Int("resources", len(in.Uploads)),
	)
	if !group.IsPrivate {
		cache.Invalidate(ctx, cache.PublicGroupsKey)
	}

	graph, err := s.groupRepo.GetGraph(ctx, group.ID)
	if err != nil {
		return nil, notFound(err, "Group", group.ID)
	}
	return graph, nil
}

func (s *GroupService) validateCreate(ctx context.Context, in CreateGroupInput) error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	if s.cfg.MaxResources > 0 && len(in.Uploads) > s.cfg.MaxResources {
		return models.NewValidationError(fmt.Sprintf("A group can have at most %d resources", s.cfg.MaxResources))
	}

	exists, err := s.userRepo.Exists(ctx, in.CreatorID)
	if err != nil {
		return err
	}
	if !exists {
		return models.NewNotFoundError("User", in.CreatorID)
	}

	return validation.ValidateSyllabus(in.Syllabus)
}

// allocateCode draws codes until one is unused. The unique index on
// group_code still guards against a concurrent insert of the same code.
func (s *GroupService) allocateCode(ctx context.Context, groups repository.GroupRepository) (string, error) {
	for attempt := 0; attempt < s.cfg.CodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return "", err
		}
		taken, err := groups.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("no unused group code after %d attempts", s.cfg.CodeAttempts)
}

// GenerateGroupCode returns a random code drawn from models.GroupCodeAlphabet.
func GenerateGroupCode() (string, error) {
	limit := big.NewInt(int64(len(models.GroupCodeAlphabet)))
	code := make([]byte, models.GroupCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate group code: %w", err)
		}
		code[i] = models.GroupCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

func provisioningOutcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case models.IsCode(err, models.CodeValidation), models.IsCode(err, models.CodeNotFound):
		return "rejected"
	default:
		return "failed"
	}
}

func (s *GroupService) GetGroupGraph(ctx context.Context, groupCode string) (*models.GroupGraph, error) {
	group, err := s.lookup.ByCode(ctx, groupCode)
	if err != nil {
		return nil, err
	}
	graph, err := s.groupRepo.GetGraph(ctx, group.ID)
	if err != nil {
		return nil, notFound(err, "Group", groupCode)
	}
	return graph, nil
}

func (s *GroupService) JoinGroup(ctx context.Context, in JoinGroupInput) (*models.Membership, error) {
	group, err := s.lookup.ByCode(ctx, in.GroupCode)
	if err != nil {
		return nil, err
	}

	membership := &models.Membership{
		UserID:      in.UserID,
		GroupID:     group.ID,
		IsAnonymous: in.IsAnonymous,
		Role:        models.MembershipRoleMember,
	}
	if err := s.groupRepo.AddMember(ctx, membership); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, models.NewConflictError("You are already a member of this group")
		}
		return nil, err
	}
	return membership, nil
}

func (s *GroupService) ListPublicGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	err := cache.Aside(ctx, cache.PublicGroupsKey, &groups, cache.PublicGroupsTTL, func() error {
		var err error
		groups, err = s.groupRepo.ListPublic(ctx)
		return err
	})
	return groups, err
}
