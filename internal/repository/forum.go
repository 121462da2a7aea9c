package repository

import (
	"context"
	"time"

	"studyhub/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ThreadFlag is a boolean thread column that moderators toggle.
type ThreadFlag string

const (
	ThreadFlagPinned ThreadFlag = "is_pinned"
	ThreadFlagLocked ThreadFlag = "is_locked"
)

// ForumRepository covers forums, threads, replies and reactions. Counter
// columns only change through the Increment/Adjust/Record methods, each a
// single UPDATE with an arithmetic expression.
type ForumRepository interface {
	GetForum(ctx context.Context, id uint) (*models.Forum, error)
	GetForumByGroupID(ctx context.Context, groupID uuid.UUID) (*models.Forum, error)
	ListThreads(ctx context.Context, forumID uint) ([]models.Thread, error)

	CreateThread(ctx context.Context, thread *models.Thread) error
	GetThread(ctx context.Context, id uint) (*models.Thread, error)
	GetThreadForUpdate(ctx context.Context, id uint) (*models.Thread, error)
	GetThreadWithAuthors(ctx context.Context, id uint) (*models.Thread, error)
	GetThreadInForum(ctx context.Context, threadID, forumID uint) (*models.Thread, error)
	IncrementViewCount(ctx context.Context, threadID uint) error
	RecordReply(ctx context.Context, threadID, userID uint, at time.Time) error
	ToggleThreadFlag(ctx context.Context, threadID uint, flag ThreadFlag) (bool, error)

	CreateReply(ctx context.Context, reply *models.Reply) error
	GetReply(ctx context.Context, id uint) (*models.Reply, error)
	GetReplyForUpdate(ctx context.Context, id uint) (*models.Reply, error)
	GetReplyWithAuthor(ctx context.Context, id uint) (*models.Reply, error)
	ListReplies(ctx context.Context, threadID uint) ([]models.Reply, error)
	UpdateReplyContent(ctx context.Context, id uint, content string, editedAt time.Time) error
	TombstoneReply(ctx context.Context, id uint) error

	GetReaction(ctx context.Context, userID, replyID uint) (*models.ReplyLike, error)
	CreateReaction(ctx context.Context, reaction *models.ReplyLike) error
	UpdateReactionType(ctx context.Context, id uint, likeType models.ReactionType) error
	DeleteReaction(ctx context.Context, id uint) error
	AdjustLikeCount(ctx context.Context, replyID uint, delta int) error
	GetLikeCount(ctx context.Context, replyID uint) (int, error)

	WithTx(tx *gorm.DB) ForumRepository
}

type forumRepository struct {
	db *gorm.DB
}

// NewForumRepository creates a new ForumRepository
func NewForumRepository(db *gorm.DB) ForumRepository {
	return &forumRepository{db: db}
}

func (r *forumRepository) WithTx(tx *gorm.DB) ForumRepository {
	return &forumRepository{db: tx}
}

func (r *forumRepository) GetForum(ctx context.Context, id uint) (*models.Forum, error) {
	var forum models.Forum
	if err := r.db.WithContext(ctx).First(&forum, id).Error; err != nil {
		return nil, err
	}
	return &forum, nil
}

func (r *forumRepository) GetForumByGroupID(ctx context.Context, groupID uuid.UUID) (*models.Forum, error) {
	var forum models.Forum
	if err := r.db.WithContext(ctx).Where("group_id = ?", groupID).First(&forum).Error; err != nil {
		return nil, err
	}
	return &forum, nil
}

// ListThreads orders pinned threads first, then by latest activity. Threads
// that never received a reply sort after those that did.
func (r *forumRepository) ListThreads(ctx context.Context, forumID uint) ([]models.Thread, error) {
	var threads []models.Thread
	err := r.db.WithContext(ctx).
		Preload("Author", models.SelectAuthor).
		Preload("LastReplier", models.SelectAuthor).
		Where("forum_id = ?", forumID).
		Order("is_pinned DESC").
		Order("CASE WHEN last_reply_at IS NULL THEN 1 ELSE 0 END").
		Order("last_reply_at DESC").
		Order("created_at DESC").
		Order("id DESC").
		Find(&threads).Error
	return threads, err
}

func (r *forumRepository) CreateThread(ctx context.Context, thread *models.Thread) error {
	return r.db.WithContext(ctx).Omit("Author", "LastReplier", "Replies").Create(thread).Error
}

func (r *forumRepository) GetThread(ctx context.Context, id uint) (*models.Thread, error) {
	var thread models.Thread
	if err := r.db.WithContext(ctx).First(&thread, id).Error; err != nil {
		return nil, err
	}
	return &thread, nil
}

func (r *forumRepository) GetThreadForUpdate(ctx context.Context, id uint) (*models.Thread, error) {
	var thread models.Thread
	if err := forUpdate(r.db.WithContext(ctx)).First(&thread, id).Error; err != nil {
		return nil, err
	}
	return &thread, nil
}

func (r *forumRepository) GetThreadWithAuthors(ctx context.Context, id uint) (*models.Thread, error) {
	var thread models.Thread
	err := r.db.WithContext(ctx).
		Preload("Author", models.SelectAuthor).
		Preload("LastReplier", models.SelectAuthor).
		First(&thread, id).Error
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

func (r *forumRepository) GetThreadInForum(ctx context.Context, threadID, forumID uint) (*models.Thread, error) {
	var thread models.Thread
	if err := r.db.WithContext(ctx).
		Where("id = ? AND forum_id = ?", threadID, forumID).
		First(&thread).Error; err != nil {
		return nil, err
	}
	return &thread, nil
}

func (r *forumRepository) IncrementViewCount(ctx context.Context, threadID uint) error {
	return r.db.WithContext(ctx).Model(&models.Thread{}).Where("id = ?", threadID).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
}

func (r *forumRepository) RecordReply(ctx context.Context, threadID, userID uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Thread{}).Where("id = ?", threadID).
		UpdateColumns(map[string]interface{}{
			"reply_count":   gorm.Expr("reply_count + 1"),
			"last_reply_at": at,
			"last_reply_by": userID,
		}).Error
}

// ToggleThreadFlag flips the column in one statement and returns its new value.
// Callers wanting the read-back to be consistent run it inside a transaction.
func (r *forumRepository) ToggleThreadFlag(ctx context.Context, threadID uint, flag ThreadFlag) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Thread{}).Where("id = ?", threadID).
		UpdateColumn(string(flag), gorm.Expr("NOT "+string(flag)))
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, gorm.ErrRecordNotFound
	}

	var thread models.Thread
	if err := r.db.WithContext(ctx).Select("id", string(flag)).First(&thread, threadID).Error; err != nil {
		return false, err
	}
	if flag == ThreadFlagLocked {
		return thread.IsLocked, nil
	}
	return thread.IsPinned, nil
}

func (r *forumRepository) CreateReply(ctx context.Context, reply *models.Reply) error {
	return r.db.WithContext(ctx).Omit("Author", "Children").Create(reply).Error
}

func (r *forumRepository) GetReply(ctx context.Context, id uint) (*models.Reply, error) {
	var reply models.Reply
	if err := r.db.WithContext(ctx).First(&reply, id).Error; err != nil {
		return nil, err
	}
	return &reply, nil
}

func (r *forumRepository) GetReplyForUpdate(ctx context.Context, id uint) (*models.Reply, error) {
	var reply models.Reply
	if err := forUpdate(r.db.WithContext(ctx)).First(&reply, id).Error; err != nil {
		return nil, err
	}
	return &reply, nil
}

func (r *forumRepository) GetReplyWithAuthor(ctx context.Context, id uint) (*models.Reply, error) {
	var reply models.Reply
	if err := r.db.WithContext(ctx).Preload("Author", models.SelectAuthor).First(&reply, id).Error; err != nil {
		return nil, err
	}
	return &reply, nil
}

// ListReplies returns every reply of a thread, deleted ones included, in
// creation order.
func (r *forumRepository) ListReplies(ctx context.Context, threadID uint) ([]models.Reply, error) {
	var replies []models.Reply
	err := r.db.WithContext(ctx).
		Preload("Author", models.SelectAuthor).
		Where("thread_id = ?", threadID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&replies).Error
	return replies, err
}

// UpdateReplyContent rewrites a live reply. It returns ErrReplyDeleted when
// the reply was tombstoned before the update landed.
func (r *forumRepository) UpdateReplyContent(ctx context.Context, id uint, content string, editedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Reply{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{
			"content":   content,
			"is_edited": true,
			"edited_at": editedAt,
		})
	return liveRowResult(res)
}

// TombstoneReply marks a live reply deleted and replaces its content. It
// returns ErrReplyDeleted when the reply is already a tombstone.
func (r *forumRepository) TombstoneReply(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.Reply{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"content":    models.DeletedReplyContent,
		})
	return liveRowResult(res)
}

func liveRowResult(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrReplyDeleted
	}
	return nil
}

func (r *forumRepository) GetReaction(ctx context.Context, userID, replyID uint) (*models.ReplyLike, error) {
	var reaction models.ReplyLike
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND reply_id = ?", userID, replyID).
		First(&reaction).Error; err != nil {
		return nil, err
	}
	return &reaction, nil
}

func (r *forumRepository) CreateReaction(ctx context.Context, reaction *models.ReplyLike) error {
	return r.db.WithContext(ctx).Create(reaction).Error
}

func (r *forumRepository) UpdateReactionType(ctx context.Context, id uint, likeType models.ReactionType) error {
	return r.db.WithContext(ctx).Model(&models.ReplyLike{}).Where("id = ?", id).
		Update("like_type", likeType).Error
}

func (r *forumRepository) DeleteReaction(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.ReplyLike{}, id).Error
}

func (r *forumRepository) AdjustLikeCount(ctx context.Context, replyID uint, delta int) error {
	if delta == 0 {
		return nil
	}
	expr := gorm.Expr("like_count + ?", delta)
	if delta < 0 {
		expr = gorm.Expr("like_count - ?", -delta)
	}
	return r.db.WithContext(ctx).Model(&models.Reply{}).Where("id = ?", replyID).
		UpdateColumn("like_count", expr).Error
}

func (r *forumRepository) GetLikeCount(ctx context.Context, replyID uint) (int, error) {
	var reply models.Reply
	if err := r.db.WithContext(ctx).Select("id", "like_count").First(&reply, replyID).Error; err != nil {
		return 0, err
	}
	return reply.LikeCount, nil
}
