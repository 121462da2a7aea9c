package cache

import (
	"fmt"
	"time"
)

const (
	GroupCodeKeyPrefix = "group:code:%s"
	PublicGroupsKey    = "groups:public"
)

const (
	// DefaultGroupTTL applies when no TTL is configured. Group codes never
	// change, so entries only go stale when a group row is removed.
	DefaultGroupTTL = 5 * time.Minute
	PublicGroupsTTL = 30 * time.Second
)

func GroupCodeKey(code string) string {
	return fmt.Sprintf(GroupCodeKeyPrefix, code)
}
