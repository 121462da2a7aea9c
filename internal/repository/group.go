package repository

import (
	"context"

	"studyhub/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GroupRepository covers groups, memberships and the rows hung off a group
// during provisioning.
type GroupRepository interface {
	Create(ctx context.Context, group *models.Group) error
	CodeExists(ctx context.Context, code string) (bool, error)
	FindByCode(ctx context.Context, code string) (*models.Group, error)
	GetGraph(ctx context.Context, id uuid.UUID) (*models.GroupGraph, error)
	ListPublic(ctx context.Context) ([]models.Group, error)

	AddMember(ctx context.Context, membership *models.Membership) error
	IsMember(ctx context.Context, groupID uuid.UUID, userID uint) (bool, error)
	IsAdmin(ctx context.Context, groupID uuid.UUID, userID uint) (bool, error)

	CreateResource(ctx context.Context, resource *models.Resource) error
	CreateSyllabus(ctx context.Context, syllabus *models.Syllabus) error
	CreateTopic(ctx context.Context, topic *models.Topic) error
	CreateSubTopic(ctx context.Context, subTopic *models.SubTopic) error
	CreateForum(ctx context.Context, forum *models.Forum) error

	WithTx(tx *gorm.DB) GroupRepository
}

type groupRepository struct {
	db *gorm.DB
}

// NewGroupRepository creates a new GroupRepository
func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

func (r *groupRepository) WithTx(tx *gorm.DB) GroupRepository {
	return &groupRepository{db: tx}
}

func (r *groupRepository) Create(ctx context.Context, group *models.Group) error {
	return r.db.WithContext(ctx).Omit("Creator", "Resources", "Syllabus", "Forum").Create(group).Error
}

func (r *groupRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Group{}).Where("group_code = ?", code).Count(&count).Error
	return count > 0, err
}

func (r *groupRepository) FindByCode(ctx context.Context, code string) (*models.Group, error) {
	var group models.Group
	if err := r.db.WithContext(ctx).Where("group_code = ?", code).First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *groupRepository) GetGraph(ctx context.Context, id uuid.UUID) (*models.GroupGraph, error) {
	var graph models.GroupGraph
	err := r.db.WithContext(ctx).
		Model(&models.Group{}).
		Preload("Creator", models.SelectAuthor).
		Preload("Resources", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Syllabus").
		Preload("Syllabus.Topics", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Syllabus.Topics.SubTopics", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Forum").
		Where("id = ?", id).
		First(&graph.Group).Error
	if err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Model(&models.Membership{}).
		Where("group_id = ?", id).
		Count(&graph.MemberCount).Error; err != nil {
		return nil, err
	}
	return &graph, nil
}

func (r *groupRepository) ListPublic(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.WithContext(ctx).
		Where("is_private = ?", false).
		Order("created_at DESC").
		Find(&groups).Error
	return groups, err
}

func (r *groupRepository) AddMember(ctx context.Context, membership *models.Membership) error {
	return r.db.WithContext(ctx).Omit("User").Create(membership).Error
}

func (r *groupRepository) IsMember(ctx context.Context, groupID uuid.UUID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Membership{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	return count > 0, err
}

// IsAdmin is true for the group's creator and for members holding the admin role.
func (r *groupRepository) IsAdmin(ctx context.Context, groupID uuid.UUID, userID uint) (bool, error) {
	var creators int64
	if err := r.db.WithContext(ctx).Model(&models.Group{}).
		Where("id = ? AND creator_id = ?", groupID, userID).
		Count(&creators).Error; err != nil {
		return false, err
	}
	if creators > 0 {
		return true, nil
	}

	var admins int64
	err := r.db.WithContext(ctx).Model(&models.Membership{}).
		Where("group_id = ? AND user_id = ? AND role = ?", groupID, userID, models.MembershipRoleAdmin).
		Count(&admins).Error
	return admins > 0, err
}

func (r *groupRepository) CreateResource(ctx context.Context, resource *models.Resource) error {
	return r.db.WithContext(ctx).Create(resource).Error
}

func (r *groupRepository) CreateSyllabus(ctx context.Context, syllabus *models.Syllabus) error {
	return r.db.WithContext(ctx).Omit("Topics").Create(syllabus).Error
}

func (r *groupRepository) CreateTopic(ctx context.Context, topic *models.Topic) error {
	return r.db.WithContext(ctx).Omit("SubTopics").Create(topic).Error
}

func (r *groupRepository) CreateSubTopic(ctx context.Context, subTopic *models.SubTopic) error {
	return r.db.WithContext(ctx).Create(subTopic).Error
}

func (r *groupRepository) CreateForum(ctx context.Context, forum *models.Forum) error {
	return r.db.WithContext(ctx).Omit("Threads").Create(forum).Error
}
