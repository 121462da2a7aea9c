package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"studyhub/internal/models"
	"studyhub/internal/repository"
	"studyhub/internal/storage"
	"studyhub/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestGroupService_CreateGroup_ProvisionsFullGraph(t *testing.T) {
	t.Parallel()
	h := newGroupHarness(t)
	creator := testutil.CreateUser(t, h.db, "provisioner")
	ctx := context.Background()

	notes := h.upload(t, "notes.pdf")
	diagram := h.upload(t, "diagram.PNG")
	outline := h.upload(t, "outline.pdf")

	graph, err := h.svc.CreateGroup(ctx, CreateGroupInput{
		CreatorID:   creator.ID,
		Name:        "  Calculus I  ",
		Description: "Weekly problem sets",
		Syllabus: models.SyllabusInput{Topics: []models.TopicInput{
			{Title: "Limits", SubTopics: []models.SubTopicInput{{Title: "One-sided"}, {Title: "Epsilon-delta"}}},
			{Title: "Derivatives", Description: "rules", SubTopics: []models.SubTopicInput{{Title: "Chain rule", Content: "f(g(x))"}}},
		}},
		Uploads: []storage.Upload{notes, diagram, outline},
	})
	require.NoError(t, err)

	assert.Equal(t, "Calculus I", graph.Name)
	assert.Len(t, graph.GroupCode, models.GroupCodeLength)
	assert.Equal(t, int64(1), graph.MemberCount)

	require.Len(t, graph.Resources, 3)
	dir := h.stager.GroupDir(graph.ID)
	assert.Equal(t, filepath.Join(dir, "1.pdf"), graph.Resources[0].FilePath)
	assert.Equal(t, models.FileTypePDF, graph.Resources[0].FileType)
	assert.Equal(t, "notes.pdf", graph.Resources[0].OriginalName)
	assert.Equal(t, filepath.Join(dir, "2.PNG"), graph.Resources[1].FilePath)
	assert.Equal(t, models.FileTypeImage, graph.Resources[1].FileType)
	assert.Equal(t, filepath.Join(dir, "3.pdf"), graph.Resources[2].FilePath, "numbers run across extensions")
	for _, r := range graph.Resources {
		assert.Equal(t, models.ResourceStatusApproved, r.Status)
		assert.Equal(t, creator.ID, r.UploaderID)
		assert.FileExists(t, r.FilePath)
	}
	assert.NoFileExists(t, notes.TempPath)
	assert.NoFileExists(t, diagram.TempPath)

	require.NotNil(t, graph.Syllabus)
	require.Len(t, graph.Syllabus.Topics, 2)
	assert.Equal(t, "Limits", graph.Syllabus.Topics[0].Title)
	require.Len(t, graph.Syllabus.Topics[0].SubTopics, 2)
	assert.Equal(t, "One-sided", graph.Syllabus.Topics[0].SubTopics[0].Title)
	assert.Equal(t, "f(g(x))", graph.Syllabus.Topics[1].SubTopics[0].Content)

	require.NotNil(t, graph.Forum)
	assert.Equal(t, models.DefaultForumName, graph.Forum.Name)
	assert.Equal(t, models.DefaultForumDescription, graph.Forum.Description)

	isAdmin, err := repository.NewGroupRepository(h.db).IsAdmin(ctx, graph.ID, creator.ID)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	var membership models.Membership
	require.NoError(t, h.db.Where("group_id = ? AND user_id = ?", graph.ID, creator.ID).First(&membership).Error)
	assert.Equal(t, models.MembershipRoleAdmin, membership.Role)
}

func TestGroupService_CreateGroup_SecondResourceInsertFailsLeavesNothing(t *testing.T) {
	t.Parallel()
	h := newGroupHarness(t)
	creator := testutil.CreateUser(t, h.db, "unlucky")

	inserts := 0
	err := h.db.Callback().Create().Before("gorm:create").Register("test:fail_second_resource", func(tx *gorm.DB) {
		if tx.Statement.Schema == nil || tx.Statement.Schema.Table != "resources" {
			return
		}
		inserts++
		if inserts == 2 {
			_ = tx.AddError(errors.New("UNIQUE constraint failed: resources.file_path"))
		}
	})
	require.NoError(t, err)

	first := h.upload(t, "week1.pdf")
	second := h.upload(t, "week2.pdf")

	_, err = h.svc.CreateGroup(context.Background(), CreateGroupInput{
		CreatorID: creator.ID,
		Name:      "Doomed",
		Syllabus:  oneTopicSyllabus(),
		Uploads:   []storage.Upload{first, second},
	})
	assertCode(t, err, models.CodeTransactionFailure)
	assert.Equal(t, 2, inserts)

	for _, model := range []interface{}{
		&models.Group{}, &models.Membership{}, &models.Resource{},
		&models.Syllabus{}, &models.Topic{}, &models.SubTopic{}, &models.Forum{},
	} {
		assert.Zero(t, countRows(t, h.db, model), "%T rows left behind", model)
	}
	assert.Empty(t, filesUnder(t, h.root), "no staged or temp file may survive")
	assert.Empty(t, resourceDirs(t, h.root), "the group resource dir is removed on rollback")
}

func TestGroupService_CreateGroup_ValidationBeforeAnyWrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(in *CreateGroupInput)
		wantCode string
	}{
		{"blank name", func(in *CreateGroupInput) { in.Name = "  " }, models.CodeValidation},
		{"unknown creator", func(in *CreateGroupInput) { in.CreatorID = 4242 }, models.CodeNotFound},
		{"empty syllabus", func(in *CreateGroupInput) { in.Syllabus = models.SyllabusInput{} }, models.CodeValidation},
		{"topic without subtopics", func(in *CreateGroupInput) {
			in.Syllabus.Topics = append(in.Syllabus.Topics, models.TopicInput{Title: "Series"})
		}, models.CodeValidation},
		{"blank subtopic title", func(in *CreateGroupInput) {
			in.Syllabus.Topics[0].SubTopics = []models.SubTopicInput{{Title: ""}}
		}, models.CodeValidation},
		{"too many uploads", func(in *CreateGroupInput) {
			in.Uploads = append(in.Uploads, make([]storage.Upload, 5)...)
		}, models.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newGroupHarness(t)
			creator := testutil.CreateUser(t, h.db, "validator")
			up := h.upload(t, "slides.pptx")

			in := CreateGroupInput{
				CreatorID: creator.ID,
				Name:      "Valid name",
				Syllabus:  oneTopicSyllabus(),
				Uploads:   []storage.Upload{up},
			}
			tt.mutate(&in)

			_, err := h.svc.CreateGroup(context.Background(), in)
			assertCode(t, err, tt.wantCode)
			assert.Zero(t, countRows(t, h.db, &models.Group{}))
			assert.NoFileExists(t, up.TempPath, "rejected uploads are discarded")
			assert.Empty(t, filesUnder(t, h.root))
		})
	}
}

func TestGroupService_CreateGroup_RetriesTakenCode(t *testing.T) {
	t.Parallel()
	h := newGroupHarness(t)
	creator := testutil.CreateUser(t, h.db, "coder")
	testutil.CreateGroupWithForum(t, h.db, creator, "TAKEN1")

	codes := []string{"TAKEN1", "TAKEN1", "FRESH1"}
	h.svc.newCode = func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}

	graph, err := h.svc.CreateGroup(context.Background(), CreateGroupInput{
		CreatorID: creator.ID,
		Name:      "Second",
		Syllabus:  oneTopicSyllabus(),
	})
	require.NoError(t, err)
	assert.Equal(t, "FRESH1", graph.GroupCode)
}

func TestGroupService_CreateGroup_ExhaustedCodesRollBack(t *testing.T) {
	t.Parallel()
	h := newGroupHarness(t)
	creator := testutil.CreateUser(t, h.db, "exhausted")
	testutil.CreateGroupWithForum(t, h.db, creator, "TAKEN2")
	h.svc.newCode = func() (string, error) { return "TAKEN2", nil }

	up := h.upload(t, "a.txt")
	_, err := h.svc.CreateGroup(context.Background(), CreateGroupInput{
		CreatorID: creator.ID,
		Name:      "Never",
		Syllabus:  oneTopicSyllabus(),
		Uploads:   []storage.Upload{up},
	})
	assertCode(t, err, models.CodeTransactionFailure)
	assert.Equal(t, int64(1), countRows(t, h.db, &models.Group{}))
	assert.Empty(t, filesUnder(t, h.root))
}

func TestGroupService_CreateGroup_StubbedCollaborators(t *testing.T) {
	t.Parallel()

	t.Run("creator lookup error propagates", func(t *testing.T) {
		t.Parallel()
		repoErr := errors.New("connection refused")
		stager := &recordingStager{}
		svc := NewGroupService(nil, &userRepoStub{existsFn: func(context.Context, uint) (bool, error) {
			return false, repoErr
		}}, nil, stager, nil, GroupServiceConfig{})

		uploads := []storage.Upload{{TempPath: "/tmp/x.pdf", OriginalName: "x.pdf"}}
		_, err := svc.CreateGroup(context.Background(), CreateGroupInput{
			CreatorID: 1,
			Name:      "G",
			Syllabus:  oneTopicSyllabus(),
			Uploads:   uploads,
		})
		assert.ErrorIs(t, err, repoErr)
		assert.Equal(t, uploads, stager.discarded)
	})

	t.Run("staging failure rolls back", func(t *testing.T) {
		t.Parallel()
		db := testutil.NewDB(t)
		creator := testutil.CreateUser(t, db, "stagefail")
		moveErr := errors.New("cross-device link")
		stager := &recordingStager{stageFn: func(context.Context, uuid.UUID, storage.Upload) (*storage.StagedFile, error) {
			return nil, moveErr
		}}
		groups := repository.NewGroupRepository(db)
		svc := NewGroupService(groups, repository.NewUserRepository(db),
			repository.NewEntityGraph(db, nil), stager, NewGroupLookup(groups, 0), GroupServiceConfig{})

		_, err := svc.CreateGroup(context.Background(), CreateGroupInput{
			CreatorID: creator.ID,
			Name:      "G",
			Syllabus:  oneTopicSyllabus(),
			Uploads:   []storage.Upload{{TempPath: "/tmp/y.pdf", OriginalName: "y.pdf"}},
		})
		assertCode(t, err, models.CodeTransactionFailure)
		assert.ErrorIs(t, err, moveErr)
		assert.Len(t, stager.discarded, 1)
		assert.Equal(t, 1, stager.removedDirs)
		assert.Zero(t, countRows(t, db, &models.Group{}))
	})
}

func TestGroupService_JoinGroup(t *testing.T) {
	t.Parallel()
	h := newGroupHarness(t)
	ctx := context.Background()
	creator := testutil.CreateUser(t, h.db, "owner")
	joiner := testutil.CreateUser(t, h.db, "joiner")
	fx := testutil.CreateGroupWithForum(t, h.db, creator, "JOINME")

	m, err := h.svc.JoinGroup(ctx, JoinGroupInput{GroupCode: " joinme ", UserID: joiner.ID, IsAnonymous: true})
	require.NoError(t, err)
	assert.Equal(t, fx.Group.ID, m.GroupID)
	assert.Equal(t, models.MembershipRoleMember, m.Role)
	assert.True(t, m.IsAnonymous)

	_, err = h.svc.JoinGroup(ctx, JoinGroupInput{GroupCode: "JOINME", UserID: joiner.ID})
	assertCode(t, err, models.CodeConflict)
	assert.Equal(t, 409, models.StatusFor(err))

	_, err = h.svc.JoinGroup(ctx, JoinGroupInput{GroupCode: "NOPE42", UserID: joiner.ID})
	assertCode(t, err, models.CodeNotFound)
}

func TestGroupService_ReadOperations(t *testing.T) {
	t.Parallel()
	h := newGroupHarness(t)
	ctx := context.Background()
	creator := testutil.CreateUser(t, h.db, "reader")

	public, err := h.svc.CreateGroup(ctx, CreateGroupInput{CreatorID: creator.ID, Name: "Open", Syllabus: oneTopicSyllabus()})
	require.NoError(t, err)
	_, err = h.svc.CreateGroup(ctx, CreateGroupInput{CreatorID: creator.ID, Name: "Hidden", IsPrivate: true, Syllabus: oneTopicSyllabus()})
	require.NoError(t, err)

	groups, err := h.svc.ListPublicGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Open", groups[0].Name)

	graph, err := h.svc.GetGroupGraph(ctx, strings.ToLower(public.GroupCode))
	require.NoError(t, err)
	assert.Equal(t, public.ID, graph.ID)
	require.NotNil(t, graph.Syllabus)
	assert.Len(t, graph.Syllabus.Topics, 1)

	_, err = h.svc.GetGroupGraph(ctx, "ZZZZZZ")
	assertCode(t, err, models.CodeNotFound)
}

func TestGenerateGroupCode(t *testing.T) {
	t.Parallel()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateGroupCode()
		require.NoError(t, err)
		require.Len(t, code, models.GroupCodeLength)
		for _, r := range code {
			assert.Contains(t, models.GroupCodeAlphabet, string(r))
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}
