// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the account that owns groups, memberships, threads and replies.
// Registration and login live outside this service; rows are provisioned by
// the identity collaborator and read here for existence and author display.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"uniqueIndex;not null" json:"username"`
	FullName  string         `json:"full_name"`
	Email     string         `gorm:"uniqueIndex;not null" json:"email,omitempty"`
	Password  string         `gorm:"not null" json:"-"`
	IsAdmin   bool           `gorm:"default:false" json:"-"`
	CreatedAt time.Time      `json:"-"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// AuthorColumns is the projection used when a user is embedded as an author.
var AuthorColumns = []string{"id", "username", "full_name"}

// SelectAuthor restricts an author preload to the public projection.
func SelectAuthor(db *gorm.DB) *gorm.DB {
	return db.Select(AuthorColumns)
}
