package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"studyhub/internal/models"
	"studyhub/internal/observability"
	"studyhub/internal/repository"
	"studyhub/internal/validation"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// ForumService implements threads, replies and moderation for group forums.
type ForumService struct {
	db        *gorm.DB
	forumRepo repository.ForumRepository
	groupRepo repository.GroupRepository
	lookup    *GroupLookup
	now       func() time.Time
}

type CreateThreadInput struct {
	GroupCode string
	UserID    uint
	Title     string `validate:"notblank,max=255"`
	Content   string `validate:"notblank"`
}

type CreateReplyInput struct {
	ThreadID      uint
	UserID        uint
	Content       string `validate:"notblank"`
	ParentReplyID *uint
}

type EditReplyInput struct {
	UserID  uint
	ReplyID uint
	Content string `validate:"notblank"`
}

type DeleteReplyInput struct {
	UserID  uint
	ReplyID uint
	IsAdmin bool
}

// GroupForum is the forum landing page of a group.
type GroupForum struct {
	GroupName string          `json:"group_name"`
	GroupCode string          `json:"group_code"`
	Forum     *models.Forum   `json:"forum"`
	Threads   []models.Thread `json:"threads"`
}

func NewForumService(
	db *gorm.DB,
	forumRepo repository.ForumRepository,
	groupRepo repository.GroupRepository,
	lookup *GroupLookup,
) *ForumService {
	return &ForumService{
		db:        db,
		forumRepo: forumRepo,
		groupRepo: groupRepo,
		lookup:    lookup,
		now:       time.Now,
	}
}

func (s *ForumService) GetGroupForum(ctx context.Context, groupCode string) (*GroupForum, error) {
	group, err := s.lookup.ByCode(ctx, groupCode)
	if err != nil {
		return nil, err
	}
	forum, err := s.forumRepo.GetForumByGroupID(ctx, group.ID)
	if err != nil {
		return nil, notFound(err, "Forum for group", group.GroupCode)
	}
	threads, err := s.forumRepo.ListThreads(ctx, forum.ID)
	if err != nil {
		return nil, err
	}
	return &GroupForum{
		GroupName: group.Name,
		GroupCode: group.GroupCode,
		Forum:     forum,
		Threads:   threads,
	}, nil
}

func (s *ForumService) CreateThread(ctx context.Context, in CreateThreadInput) (*models.Thread, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	group, err := s.lookup.ByCode(ctx, in.GroupCode)
	if err != nil {
		return nil, err
	}
	member, err := s.groupRepo.IsMember(ctx, group.ID, in.UserID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, models.NewNotMemberError()
	}
	forum, err := s.forumRepo.GetForumByGroupID(ctx, group.ID)
	if err != nil {
		return nil, notFound(err, "Forum for group", group.GroupCode)
	}

	thread := &models.Thread{
		ForumID:  forum.ID,
		AuthorID: in.UserID,
		Title:    in.Title,
		Content:  in.Content,
	}
	if err := s.forumRepo.CreateThread(ctx, thread); err != nil {
		return nil, err
	}
	return s.forumRepo.GetThreadWithAuthors(ctx, thread.ID)
}

// GetThreadDetails counts a view and returns the thread with its reply tree.
// Every call is a view; the returned ViewCount includes this one.
func (s *ForumService) GetThreadDetails(ctx context.Context, threadID uint) (*models.Thread, error) {
	if err := s.forumRepo.IncrementViewCount(ctx, threadID); err != nil {
		return nil, err
	}
	thread, err := s.forumRepo.GetThreadWithAuthors(ctx, threadID)
	if err != nil {
		return nil, notFound(err, "Thread", threadID)
	}
	replies, err := s.forumRepo.ListReplies(ctx, threadID)
	if err != nil {
		return nil, err
	}
	thread.Replies = BuildReplyTree(replies)
	return thread, nil
}

// BuildReplyTree nests replies under their top-level parent, both levels in
// input order. Deleted replies are dropped, except a deleted top-level reply
// that still has live children: it stays, already tombstoned, so those
// children keep their place in the thread.
func BuildReplyTree(replies []models.Reply) []models.Reply {
	children := make(map[uint][]models.Reply)
	roots := make([]models.Reply, 0, len(replies))
	for _, r := range replies {
		if r.ParentReplyID == nil {
			roots = append(roots, r)
			continue
		}
		if !r.IsDeleted {
			children[*r.ParentReplyID] = append(children[*r.ParentReplyID], r)
		}
	}

	tree := make([]models.Reply, 0, len(roots))
	for _, root := range roots {
		kids := children[root.ID]
		if root.IsDeleted && len(kids) == 0 {
			continue
		}
		root.Children = kids
		tree = append(tree, root)
	}
	return tree
}

// CreateReply adds a reply and bumps the thread's reply counters in the same
// transaction. The thread row is locked first, so concurrent replies to one
// thread serialize on it. A locked thread rejects the reply before
// membership is considered.
func (s *ForumService) CreateReply(ctx context.Context, in CreateReplyInput) (*models.Reply, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	reply := &models.Reply{
		ThreadID: in.ThreadID,
		AuthorID: in.UserID,
		Content:  in.Content,
	}

	err := inTx(ctx, s.db, func(tx *gorm.DB) error {
		forums := s.forumRepo.WithTx(tx)

		thread, err := forums.GetThreadForUpdate(ctx, in.ThreadID)
		if err != nil {
			return notFound(err, "Thread", in.ThreadID)
		}
		if thread.IsLocked {
			return models.NewForbiddenError("This thread is locked")
		}

		forum, err := forums.GetForum(ctx, thread.ForumID)
		if err != nil {
			return notFound(err, "Forum", thread.ForumID)
		}
		member, err := s.groupRepo.WithTx(tx).IsMember(ctx, forum.GroupID, in.UserID)
		if err != nil {
			return err
		}
		if !member {
			return models.NewNotMemberError()
		}

		if in.ParentReplyID != nil {
			anchor, err := resolveParent(ctx, forums, thread.ID, *in.ParentReplyID)
			if err != nil {
				return err
			}
			reply.ParentReplyID = &anchor
		}

		if err := forums.CreateReply(ctx, reply); err != nil {
			return err
		}
		return forums.RecordReply(ctx, thread.ID, in.UserID, s.now())
	})
	if err != nil {
		return nil, err
	}

	depth := "top_level"
	if reply.ParentReplyID != nil {
		depth = "nested"
	}
	observability.RepliesCreated.WithLabelValues(depth).Inc()

	return s.forumRepo.GetReplyWithAuthor(ctx, reply.ID)
}

// resolveParent checks that parentID is a live reply of the thread and
// returns the top-level reply the new reply hangs under. Replies nest one
// level deep, so answering a nested reply attaches to its top-level parent.
func resolveParent(ctx context.Context, forums repository.ForumRepository, threadID, parentID uint) (uint, error) {
	parent, err := forums.GetReply(ctx, parentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return 0, models.NewParentNotFoundError(parentID)
		}
		return 0, err
	}
	if parent.ThreadID != threadID || parent.IsDeleted {
		return 0, models.NewParentNotFoundError(parentID)
	}
	if parent.ParentReplyID != nil {
		return *parent.ParentReplyID, nil
	}
	return parent.ID, nil
}

func (s *ForumService) EditReply(ctx context.Context, in EditReplyInput) (*models.Reply, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	reply, err := s.forumRepo.GetReply(ctx, in.ReplyID)
	if err != nil {
		return nil, notFound(err, "Reply", in.ReplyID)
	}
	if reply.AuthorID != in.UserID {
		return nil, models.NewForbiddenError("You can only edit your own replies")
	}
	if reply.IsDeleted {
		return nil, models.NewAlreadyDeletedError("Reply")
	}

	// The update only matches a live row, so a delete that lands after the
	// check above still wins.
	if err := s.forumRepo.UpdateReplyContent(ctx, reply.ID, in.Content, s.now()); err != nil {
		return nil, alreadyDeleted(err)
	}
	return s.forumRepo.GetReplyWithAuthor(ctx, reply.ID)
}

// DeleteReply tombstones a reply. The thread's ReplyCount is left alone: it
// counts replies ever posted, not replies currently visible.
func (s *ForumService) DeleteReply(ctx context.Context, in DeleteReplyInput) (*models.Reply, error) {
	reply, err := s.forumRepo.GetReply(ctx, in.ReplyID)
	if err != nil {
		return nil, notFound(err, "Reply", in.ReplyID)
	}
	if reply.AuthorID != in.UserID && !in.IsAdmin {
		return nil, models.NewForbiddenError("You can only delete your own replies")
	}
	if reply.IsDeleted {
		return nil, models.NewAlreadyDeletedError("Reply")
	}

	if err := s.forumRepo.TombstoneReply(ctx, reply.ID); err != nil {
		return nil, alreadyDeleted(err)
	}
	observability.Logger.InfoContext(ctx, "reply deleted",
		slog.Uint64("reply_id", uint64(reply.ID)),
		slog.Bool("by_admin", reply.AuthorID != in.UserID),
	)
	return s.forumRepo.GetReplyWithAuthor(ctx, reply.ID)
}

func alreadyDeleted(err error) error {
	if errors.Is(err, repository.ErrReplyDeleted) {
		return models.NewAlreadyDeletedError("Reply")
	}
	return err
}

// CanModerateReply reports whether userID administers the group owning the
// reply's thread.
func (s *ForumService) CanModerateReply(ctx context.Context, userID, replyID uint) (bool, error) {
	reply, err := s.forumRepo.GetReply(ctx, replyID)
	if err != nil {
		return false, notFound(err, "Reply", replyID)
	}
	thread, err := s.forumRepo.GetThread(ctx, reply.ThreadID)
	if err != nil {
		return false, notFound(err, "Thread", reply.ThreadID)
	}
	forum, err := s.forumRepo.GetForum(ctx, thread.ForumID)
	if err != nil {
		return false, notFound(err, "Forum", thread.ForumID)
	}
	return s.groupRepo.IsAdmin(ctx, forum.GroupID, userID)
}

func (s *ForumService) TogglePin(ctx context.Context, userID, threadID uint, groupCode string) (bool, error) {
	return s.toggle(ctx, userID, threadID, groupCode, repository.ThreadFlagPinned, "pin")
}

func (s *ForumService) ToggleLock(ctx context.Context, userID, threadID uint, groupCode string) (bool, error) {
	return s.toggle(ctx, userID, threadID, groupCode, repository.ThreadFlagLocked, "lock")
}

func (s *ForumService) toggle(ctx context.Context, userID, threadID uint, groupCode string, flag repository.ThreadFlag, action string) (state bool, err error) {
	ctx, span := observability.StartSpan(ctx, "forum_service", "toggle_"+action,
		attribute.Int64("thread.id", int64(threadID)))
	defer func() { span.End(err) }()

	group, err := s.lookup.ByCode(ctx, groupCode)
	if err != nil {
		return false, err
	}
	admin, err := s.groupRepo.IsAdmin(ctx, group.ID, userID)
	if err != nil {
		return false, err
	}
	if !admin {
		return false, models.NewForbiddenError(fmt.Sprintf("Only group admins can %s threads", action))
	}

	err = inTx(ctx, s.db, func(tx *gorm.DB) error {
		forums := s.forumRepo.WithTx(tx)
		forum, err := forums.GetForumByGroupID(ctx, group.ID)
		if err != nil {
			return notFound(err, "Forum for group", group.GroupCode)
		}
		if _, err := forums.GetThreadInForum(ctx, threadID, forum.ID); err != nil {
			return notFound(err, "Thread", threadID)
		}
		state, err = forums.ToggleThreadFlag(ctx, threadID, flag)
		return notFound(err, "Thread", threadID)
	})
	if err != nil {
		return false, err
	}

	observability.ThreadModeration.WithLabelValues(action, onOff(state)).Inc()
	return state, nil
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
