package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GroupCodeLength is the length of the public join code.
const GroupCodeLength = 6

// GroupCodeAlphabet is the character set group codes are drawn from.
const GroupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Group is a study group. It becomes visible only once the provisioning
// transaction that created it has committed.
type Group struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string     `gorm:"not null" json:"name"`
	Description string     `gorm:"type:text" json:"description"`
	CreatorID   uint       `gorm:"not null;index" json:"creator_id"`
	Creator     *User      `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	IsPrivate   bool       `gorm:"default:false" json:"is_private"`
	GroupCode   string     `gorm:"<-:create;size:6;uniqueIndex;not null" json:"group_code"`
	Resources   []Resource `gorm:"foreignKey:GroupID" json:"resources,omitempty"`
	Syllabus    *Syllabus  `gorm:"foreignKey:GroupID" json:"syllabus,omitempty"`
	Forum       *Forum     `gorm:"foreignKey:GroupID" json:"forum,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BeforeCreate assigns a UUID when the caller did not pick one.
func (g *Group) BeforeCreate(_ *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// GroupGraph is a fully hydrated group: resources, syllabus tree and forum.
type GroupGraph struct {
	Group
	MemberCount int64 `json:"member_count"`
}

// MembershipRole defines a member's role in a group.
type MembershipRole string

const (
	// MembershipRoleAdmin can pin and lock threads and moderate replies.
	MembershipRoleAdmin MembershipRole = "admin"
	// MembershipRoleMember is the default member role.
	MembershipRoleMember MembershipRole = "member"
)

// Membership maps users to groups and tracks role.
type Membership struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"not null;uniqueIndex:idx_membership_user_group" json:"user_id"`
	User        *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	GroupID     uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_membership_user_group;index" json:"group_id"`
	IsAnonymous bool           `gorm:"default:false" json:"is_anonymous"`
	Role        MembershipRole `gorm:"type:varchar(20);not null;default:'member'" json:"role"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
