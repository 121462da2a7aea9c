package service

import (
	"context"
	"strings"
	"time"

	"studyhub/internal/cache"
	"studyhub/internal/models"
	"studyhub/internal/repository"
)

// GroupLookup resolves group codes to groups. Codes are immutable once a
// group commits, so hits are served from Redis when a client is configured.
type GroupLookup struct {
	groups repository.GroupRepository
	ttl    time.Duration
}

// NewGroupLookup returns a GroupLookup caching entries for ttl.
func NewGroupLookup(groups repository.GroupRepository, ttl time.Duration) *GroupLookup {
	if ttl <= 0 {
		ttl = cache.DefaultGroupTTL
	}
	return &GroupLookup{groups: groups, ttl: ttl}
}

// ByCode returns the group with the given code or a NotFound error.
func (l *GroupLookup) ByCode(ctx context.Context, code string) (*models.Group, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, models.NewValidationError("Group code is required")
	}

	var group models.Group
	err := cache.Aside(ctx, cache.GroupCodeKey(code), &group, l.ttl, func() error {
		found, err := l.groups.FindByCode(ctx, code)
		if err != nil {
			return err
		}
		group = *found
		return nil
	})
	if err != nil {
		return nil, notFound(err, "Group", code)
	}
	return &group, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// notFound converts a missing-row error into a NotFound AppError and passes
// every other error through.
func notFound(err error, resource string, id interface{}) error {
	if repository.IsNotFound(err) {
		return models.NewNotFoundError(resource, id)
	}
	return err
}
