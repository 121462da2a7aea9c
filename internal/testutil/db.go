// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"fmt"
	"testing"

	"studyhub/internal/database"
	"studyhub/internal/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated in-memory SQLite database. The pool is pinned to
// one connection so every query sees the same in-memory schema; callers that
// run transactions concurrently must issue every statement through the
// transaction handle.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	cfg := database.GormConfig()
	cfg.Logger = database.NewGormLogger(logger.Silent)

	db, err := gorm.Open(sqlite.Open(":memory:"), cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(database.PersistentModels()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}

// CreateUser inserts a user with a unique username and email.
func CreateUser(t testing.TB, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{
		Username: username,
		FullName: "Test " + username,
		Email:    fmt.Sprintf("%s@example.com", username),
		Password: "hashed",
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// ForumFixture is a group with its forum, creator and an optional member.
type ForumFixture struct {
	Creator *models.User
	Group   *models.Group
	Forum   *models.Forum
}

// CreateGroupWithForum inserts a group, the creator's admin membership and
// the group's forum without going through provisioning.
func CreateGroupWithForum(t testing.TB, db *gorm.DB, creator *models.User, code string) *ForumFixture {
	t.Helper()
	group := &models.Group{
		ID:        uuid.New(),
		Name:      "Group " + code,
		CreatorID: creator.ID,
		GroupCode: code,
	}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("create group: %v", err)
	}
	AddMember(t, db, group, creator, models.MembershipRoleAdmin)

	forum := &models.Forum{
		GroupID:     group.ID,
		Name:        models.DefaultForumName,
		Description: models.DefaultForumDescription,
		IsActive:    true,
	}
	if err := db.Create(forum).Error; err != nil {
		t.Fatalf("create forum: %v", err)
	}
	return &ForumFixture{Creator: creator, Group: group, Forum: forum}
}

// AddMember inserts a membership with the given role.
func AddMember(t testing.TB, db *gorm.DB, group *models.Group, user *models.User, role models.MembershipRole) {
	t.Helper()
	m := &models.Membership{UserID: user.ID, GroupID: group.ID, Role: role}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("create membership: %v", err)
	}
}

// CreateThread inserts a thread authored by author in the fixture's forum.
func (f *ForumFixture) CreateThread(t testing.TB, db *gorm.DB, author *models.User, title string) *models.Thread {
	t.Helper()
	th := &models.Thread{ForumID: f.Forum.ID, AuthorID: author.ID, Title: title, Content: "content of " + title}
	if err := db.Create(th).Error; err != nil {
		t.Fatalf("create thread: %v", err)
	}
	return th
}
