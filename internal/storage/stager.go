package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"studyhub/internal/models"
	"studyhub/internal/observability"

	"github.com/google/uuid"
)

// maxSlotAttempts bounds the search for a free file number in one directory.
const maxSlotAttempts = 10000

// Upload is a file received by the request layer and parked in the temp dir.
type Upload struct {
	TempPath     string
	OriginalName string
	Size         int64
}

// StagedFile is an upload that now lives in its group's resource directory.
type StagedFile struct {
	Path         string
	OriginalName string
	FileType     models.FileType
}

// ResourceStager moves uploads from the temp dir into
// {root}/{groupID}_resources/{n}{ext}. Numbers start at 1 and are shared by
// every file of a group whatever its extension.
type ResourceStager struct {
	root    string
	tempDir string
	dirLock sync.Map // group dir -> *sync.Mutex
}

// NewResourceStager creates a stager rooted at root with uploads parked in tempDir.
func NewResourceStager(root, tempDir string) *ResourceStager {
	return &ResourceStager{root: root, tempDir: tempDir}
}

// GroupDir returns the resource directory of a group.
func (s *ResourceStager) GroupDir(groupID uuid.UUID) string {
	return filepath.Join(s.root, groupID.String()+"_resources")
}

// SaveTemp writes r into the temp dir under a random name that keeps the
// original extension.
func (s *ResourceStager) SaveTemp(r io.Reader, originalName string) (Upload, error) {
	if err := os.MkdirAll(s.tempDir, 0o755); err != nil {
		return Upload{}, fmt.Errorf("create temp dir: %w", err)
	}

	path := filepath.Join(s.tempDir, uuid.NewString()+filepath.Ext(originalName))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Upload{}, fmt.Errorf("create temp file: %w", err)
	}

	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return Upload{}, fmt.Errorf("write temp file: %w", err)
	}

	return Upload{TempPath: path, OriginalName: originalName, Size: n}, nil
}

// Stage moves an upload into the group's resource directory. The next free
// number is picked under a per-directory lock and reserved with an exclusive
// create before the rename, so concurrent stagers never receive the same
// number. On failure nothing is left at the target and the upload stays
// where it was.
func (s *ResourceStager) Stage(ctx context.Context, groupID uuid.UUID, up Upload) (*StagedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := s.GroupDir(groupID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create resource dir: %w", err)
	}

	target, err := s.reserveSlot(dir, filepath.Ext(up.OriginalName))
	if err != nil {
		return nil, err
	}

	if err := os.Rename(up.TempPath, target); err != nil {
		if rmErr := os.Remove(target); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			observability.Logger.WarnContext(ctx, "failed to release reserved resource slot",
				slog.String("path", target), slog.String("error", rmErr.Error()))
		}
		return nil, fmt.Errorf("move upload %q: %w", up.OriginalName, err)
	}

	fileType := ClassifyFileType(up.OriginalName)
	observability.ResourcesStaged.WithLabelValues(string(fileType)).Inc()

	return &StagedFile{
		Path:         target,
		OriginalName: up.OriginalName,
		FileType:     fileType,
	}, nil
}

func (s *ResourceStager) lockDir(dir string) func() {
	mu, _ := s.dirLock.LoadOrStore(dir, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

func (s *ResourceStager) reserveSlot(dir, ext string) (string, error) {
	unlock := s.lockDir(dir)
	defer unlock()

	used, err := usedNumbers(dir)
	if err != nil {
		return "", err
	}

	for n := 1; n <= maxSlotAttempts; n++ {
		if used[n] {
			continue
		}
		candidate := filepath.Join(dir, strconv.Itoa(n)+ext)
		f, err := os.OpenFile(candidate, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			if closeErr := f.Close(); closeErr != nil {
				_ = os.Remove(candidate)
				return "", fmt.Errorf("reserve %s: %w", candidate, closeErr)
			}
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("reserve %s: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("no free resource slot in %s", dir)
}

// usedNumbers collects the numbers already taken in dir. "3.pdf" and "3"
// both take 3.
func usedNumbers(dir string) (map[int]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list resource dir: %w", err)
	}
	used := make(map[int]bool, len(entries))
	for _, e := range entries {
		stem, _, _ := strings.Cut(e.Name(), ".")
		if n, err := strconv.Atoi(stem); err == nil && n > 0 {
			used[n] = true
		}
	}
	return used, nil
}

// RemoveGroupDir deletes a group's resource directory when it is empty. A
// missing directory is not an error.
func (s *ResourceStager) RemoveGroupDir(groupID uuid.UUID) error {
	if err := os.Remove(s.GroupDir(groupID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Remove deletes a staged or temp file. A missing file is not an error.
func (s *ResourceStager) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Discard removes the temp files of uploads that were never staged.
func (s *ResourceStager) Discard(ctx context.Context, uploads []Upload) {
	for _, up := range uploads {
		if err := s.Remove(up.TempPath); err != nil {
			observability.GraphCleanupFailures.WithLabelValues("temp_upload").Inc()
			observability.Logger.WarnContext(ctx, "failed to discard temp upload",
				slog.String("path", up.TempPath), slog.String("error", err.Error()))
		}
	}
}
