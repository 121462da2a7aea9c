package service

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
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

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, models.IsCode(err, code), "expected %s, got %v", code, err)
}

type groupHarness struct {
	db     *gorm.DB
	svc    *GroupService
	stager *storage.ResourceStager
	root   string
}

func newGroupHarness(t *testing.T) *groupHarness {
	t.Helper()
	db := testutil.NewDB(t)
	root := filepath.Join(t.TempDir(), "resources")
	stager := storage.NewResourceStager(root, filepath.Join(root, "temp"))
	groups := repository.NewGroupRepository(db)

	svc := NewGroupService(
		groups,
		repository.NewUserRepository(db),
		repository.NewEntityGraph(db, stager),
		stager,
		NewGroupLookup(groups, 0),
		GroupServiceConfig{CodeAttempts: 3, MaxResources: 5},
	)
	return &groupHarness{db: db, svc: svc, stager: stager, root: root}
}

func (h *groupHarness) upload(t *testing.T, name string) storage.Upload {
	t.Helper()
	up, err := h.stager.SaveTemp(strings.NewReader("contents of "+name), name)
	require.NoError(t, err)
	return up
}

// filesUnder lists regular files below root, temp dir included.
func filesUnder(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil && !strings.Contains(err.Error(), "no such file") {
		require.NoError(t, err)
	}
	return files
}

// resourceDirs lists the group resource directories directly under root.
func resourceDirs(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), "_resources") {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func oneTopicSyllabus() models.SyllabusInput {
	return models.SyllabusInput{Topics: []models.TopicInput{
		{Title: "Limits", SubTopics: []models.SubTopicInput{{Title: "Epsilon-delta"}}},
	}}
}

// recordingStager is a ResourceStager that never touches the filesystem.
type recordingStager struct {
	mu          sync.Mutex
	discarded   []storage.Upload
	removedDirs int
	stageFn     func(context.Context, uuid.UUID, storage.Upload) (*storage.StagedFile, error)
}

func (s *recordingStager) Stage(ctx context.Context, groupID uuid.UUID, up storage.Upload) (*storage.StagedFile, error) {
	return s.stageFn(ctx, groupID, up)
}

func (s *recordingStager) RemoveGroupDir(uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removedDirs++
	return nil
}

func (s *recordingStager) Discard(_ context.Context, uploads []storage.Upload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discarded = append(s.discarded, uploads...)
}

// userRepoStub is a stub for repository.UserRepository.
type userRepoStub struct {
	existsFn func(context.Context, uint) (bool, error)
}

func (s *userRepoStub) Create(_ context.Context, _ *models.User) error { return nil }
func (s *userRepoStub) GetByID(_ context.Context, id uint) (*models.User, error) {
	return &models.User{ID: id}, nil
}
func (s *userRepoStub) Exists(ctx context.Context, id uint) (bool, error) {
	return s.existsFn(ctx, id)
}
func (s *userRepoStub) WithTx(_ *gorm.DB) repository.UserRepository { return s }
