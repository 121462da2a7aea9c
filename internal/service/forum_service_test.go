package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"studyhub/internal/models"
	"studyhub/internal/repository"
	"studyhub/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type forumHarness struct {
	db      *gorm.DB
	svc     *ForumService
	fx      *testutil.ForumFixture
	admin   *models.User
	member  *models.User
	outside *models.User
}

func newForumHarness(t *testing.T) *forumHarness {
	t.Helper()
	db := testutil.NewDB(t)
	groups := repository.NewGroupRepository(db)
	svc := NewForumService(db, repository.NewForumRepository(db), groups, NewGroupLookup(groups, 0))

	admin := testutil.CreateUser(t, db, "admin")
	member := testutil.CreateUser(t, db, "member")
	outside := testutil.CreateUser(t, db, "outsider")
	fx := testutil.CreateGroupWithForum(t, db, admin, "FORUM1")
	testutil.AddMember(t, db, fx.Group, member, models.MembershipRoleMember)

	return &forumHarness{db: db, svc: svc, fx: fx, admin: admin, member: member, outside: outside}
}

func (h *forumHarness) reply(t *testing.T, threadID uint, author *models.User, content string, parent *uint) *models.Reply {
	t.Helper()
	r, err := h.svc.CreateReply(context.Background(), CreateReplyInput{
		ThreadID:      threadID,
		UserID:        author.ID,
		Content:       content,
		ParentReplyID: parent,
	})
	require.NoError(t, err)
	return r
}

func (h *forumHarness) reloadThread(t *testing.T, id uint) models.Thread {
	t.Helper()
	var th models.Thread
	require.NoError(t, h.db.First(&th, id).Error)
	return th
}

func TestForumService_CreateThread(t *testing.T) {
	t.Parallel()
	h := newForumHarness(t)
	ctx := context.Background()

	thread, err := h.svc.CreateThread(ctx, CreateThreadInput{
		GroupCode: "forum1",
		UserID:    h.member.ID,
		Title:     " Midterm review ",
		Content:   "Which chapters?",
	})
	require.NoError(t, err)
	assert.Equal(t, "Midterm review", thread.Title)
	assert.Equal(t, h.fx.Forum.ID, thread.ForumID)
	assert.Zero(t, thread.ReplyCount)
	require.NotNil(t, thread.Author)
	assert.Equal(t, "member", thread.Author.Username)
	assert.Empty(t, thread.Author.Email)

	tests := []struct {
		name string
		in   CreateThreadInput
		code string
	}{
		{"non-member", CreateThreadInput{GroupCode: "FORUM1", UserID: h.outside.ID, Title: "t", Content: "c"}, models.CodeNotMember},
		{"unknown group", CreateThreadInput{GroupCode: "NOPE99", UserID: h.member.ID, Title: "t", Content: "c"}, models.CodeNotFound},
		{"blank title", CreateThreadInput{GroupCode: "FORUM1", UserID: h.member.ID, Title: " ", Content: "c"}, models.CodeValidation},
		{"title too long", CreateThreadInput{GroupCode: "FORUM1", UserID: h.member.ID, Title: strings.Repeat("é", models.MaxThreadTitleLength+1), Content: "c"}, models.CodeValidation},
		{"blank content", CreateThreadInput{GroupCode: "FORUM1", UserID: h.member.ID, Title: "t", Content: "\n"}, models.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.CreateThread(ctx, tt.in)
			assertCode(t, err, tt.code)
		})
	}

	_, err = h.svc.CreateThread(ctx, CreateThreadInput{GroupCode: "FORUM1", UserID: h.member.ID, Title: strings.Repeat("é", models.MaxThreadTitleLength), Content: "c"})
	assert.NoError(t, err, "255 characters is within the limit")
}

func TestForumService_CreateReply_NonMemberIsForbidden(t *testing.T) {
	t.Parallel()
	h := newForumHarness(t)
	thread := h.fx.CreateThread(t, h.db, h.admin, "Welcome")

	_, err := h.svc.CreateReply(context.Background(), CreateReplyInput{
		ThreadID: thread.ID,
		UserID:   h.outside.ID,
		Content:  "let me in",
	})
	assertCode(t, err, models.CodeNotMember)
	assert.Equal(t, 403, models.StatusFor(err))
	assert.Zero(t, h.reloadThread(t, thread.ID).ReplyCount)
}

func TestForumService_CreateReply_UpdatesThreadCounters(t *testing.T) {
	t.Parallel()
	h := newForumHarness(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.svc.now = func() time.Time { return fixed }
	thread := h.fx.CreateThread(t, h.db, h.admin, "Counters")

	reply := h.reply(t, thread.ID, h.member, "first!", nil)
	require.NotNil(t, reply.Author)
	assert.Equal(t, "member", reply.Author.Username)
	assert.Nil(t, reply.ParentReplyID)

	got := h.reloadThread(t, thread.ID)
	assert.Equal(t, 1, got.ReplyCount)
	require.NotNil(t, got.LastReplyBy)
	assert.Equal(t, h.member.ID, *got.LastReplyBy)
	require.NotNil(t, got.LastReplyAt)
	assert.True(t, fixed.Equal(*got.LastReplyAt))

	_, err := h.svc.CreateReply(context.Background(), CreateReplyInput{ThreadID: 9999, UserID: h.member.ID, Content: "x"})
	assertCode(t, err, models.CodeNotFound)
	_, err = h.svc.CreateReply(context.Background(), CreateReplyInput{ThreadID: thread.ID, UserID: h.member.ID, Content: "  "})
	assertCode(t, err, models.CodeValidation)
}

func TestForumService_CreateReply_ConcurrentRepliesAreAllCounted(t *testing.T) {
	t.Parallel()
	h := newForumHarness(t)
	thread := h.fx.CreateThread(t, h.db, h.admin, "Busy")
	const n = 20

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		author := h.member
		if i%2 == 0 {
			author = h.admin
		}
		g.Go(func() error {
			_, err := h.svc.CreateReply(ctx, CreateReplyInput{
				ThreadID: thread.ID,
				UserID:   author.ID,
				Content:  "concurrent",
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, n, h.reloadThread(t, thread.ID).ReplyCount)
	assert.Equal(t, int64(n), countRows(t, h.db, &models.Reply{}))
}

func TestForumService_LockedThreadRejectsReplies(t *testing.T) {
	t.Parallel()
	h := newForumHarness(t)
	ctx := context.Background()
	thread := h.fx.CreateThread(t, h.db, h.admin, "Closing soon")
	for i := 0; i < 5; i++ {
		h.reply(t, thread.ID, h.member, "reply", nil)
	}

	locked, err := h.svc.ToggleLock(ctx, h.admin.ID, thread.ID, "FORUM1")
	require.NoError(t, err)
	require.True(t, locked)

	for _, user := range []*models.User{h.admin, h.member, h.outside} {
		_, err := h.svc.CreateReply(ctx, CreateReplyInput{ThreadID: thread.ID, UserID: user.ID, Content: "too late"})
		assertCode(t, err, models.CodeForbidden)
	}
	assert.Equal(t, 5, h.reloadThread(t, thread.ID).ReplyCount)

	locked, err = h.svc.ToggleLock(ctx, h.admin.ID, thread.ID, "FORUM1")
	require.NoError(t, err)
	assert.False(t, locked)
	h.reply(t, thread.ID, h.member, "reopened", nil)
}

func TestForumService_SoftDeletedParent(t *testing.T) {
	t.Parallel()
	h := newForumHarness(t)
	ctx := context.Background()
	thread := h.fx.CreateThread(t, h.db, h.admin, "History")

	r1 := h.reply(t, thread.ID, h.member, "R1", nil)
	r2 := h.reply(t, thread.ID, h.admin, "R2", &r1.ID)
	lonely := h.reply(t, thread.ID, h.member, "delete me", nil)

	deleted, err := h.svc.DeleteReply(ctx, DeleteReplyInput{UserID: h.member.ID, ReplyID: r1.ID})
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, models.DeletedReplyContent, deleted.Content)
	_, err = h.svc.DeleteReply(ctx, DeleteReplyInput{UserID: h.member.ID, ReplyID: lonely.ID})
	require.NoError(t, err)

	_, err = h.svc.CreateReply(ctx, CreateReplyInput{ThreadID: thread.ID, UserID: h.admin.ID, Content: "R3", ParentReplyID: &r1.ID})
	assertCode(t, err, models.CodeParentNotFound)
	assert.Equal(t, 404, models.StatusFor(err))

	details, err := h.svc.GetThreadDetails(ctx, thread.ID)
	require.NoError(t, err)
	require.Len(t, details.Replies, 1, "tombstone kept only as an anchor for live children")
	anchor := details.Replies[0]
	assert.Equal(t, r1.ID, anchor.ID)
	assert.True(t, anchor.IsDeleted)
	assert.Equal(t, models.DeletedReplyContent, anchor.Content)
	require.Len(t, anchor.Children, 1)
	assert.Equal(t, r2.ID, anchor.Children[0].ID)
	assert.Equal(t, "R2", anchor.Children[0].Content)

	assert.Equal(t, 3, details.ReplyCount, "deletes keep the historical count")
}

func TestForumService_CreateReply_ParentRules(t *testing.T) {
	t.Parallel()
	h := newForumHarness(t)
	ctx := context.Background()
	thread := h.fx.CreateThread(t, h.db, h.admin, "A")
	other := h.fx.CreateThread(t, h.db, h.admin, "B")

	root := h.reply(t, thread.ID, h.member, "root", nil)
	child := h.reply(t, thread.ID, h.member, "child", &root.ID)
	foreign := h.reply(t, other.ID, h.member, "elsewhere", nil)

	t.Run("parent in another thread", func(t *testing.T) {
		_, err := h.svc.CreateReply(ctx, CreateReplyInput{ThreadID: thread.ID, UserID: h.member.ID, Content: "x", ParentReplyID: &foreign.ID})
		assertCode(t, err, models.CodeParentNotFound)
	})

	t.Run("missing parent", func(t *testing.T) {
		missing := uint(424242)
		_, err := h.svc.CreateReply(ctx, CreateReplyInput{ThreadID: thread.ID, UserID: h.member.ID, Content: "x", ParentReplyID: &missing})
		assertCode(t, err, models.CodeParentNotFound)
	})

	t.Run("answering a nested reply attaches to its top-level parent", func(t *testing.T) {
		nested := h.reply(t, thread.ID, h.admin, "grandchild?", &child.ID)
		require.NotNil(t, nested.ParentReplyID)
		assert.Equal(t, root.ID, *nested.ParentReplyID)
	})
}

func TestForumService_GetThreadDetails_CountsEveryView(t *testing.T) {
	t.Parallel()
	h := newForumHarness(t)
	ctx := context.Background()
	thread := h.fx.CreateThread(t, h.db, h.admin, "Viewed")
	h.reply(t, thread.ID, h.member, "a", nil)

	first, err := h.svc.GetThreadDetails(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ViewCount)
	require.NotNil(t, first.LastReplier)
	assert.Equal(t, "member", first.LastReplier.Username)

	second, err := h.svc.GetThreadDetails(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.ViewCount)

	_, err = h.svc.GetThreadDetails(ctx, 31337)
	assertCode(t, err, models.CodeNotFound)
}

func TestForumService_EditReply(t *testing.T) {
	t.Parallel()
	h := newForumHarness(t)
	ctx := context.Background()
	thread := h.fx.CreateThread(t, h.db, h.admin, "Edits")
	reply := h.reply(t, thread.ID, h.member, "draft", nil)

	_, err := h.svc.EditReply(ctx, EditReplyInput{UserID: h.admin.ID, ReplyID: reply.ID, Content: "hijack"})
	assertCode(t, err, models.CodeForbidden)

	edited, err := h.svc.EditReply(ctx, EditReplyInput{UserID: h.member.ID, ReplyID: reply.ID, Content: "final"})
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Content)
	assert.True(t, edited.IsEdited)
	assert.NotNil(t, edited.EditedAt)

	_, err = h.svc.DeleteReply(ctx, DeleteReplyInput{UserID: h.member.ID, ReplyID: reply.ID})
	require.NoError(t, err)
	_, err = h.svc.EditReply(ctx, EditReplyInput{UserID: h.member.ID, ReplyID: reply.ID, Content: "resurrect"})
	assertCode(t, err, models.CodeAlreadyDeleted)

	_, err = h.svc.EditReply(ctx, EditReplyInput{UserID: h.member.ID, ReplyID: 777, Content: "x"})
	assertCode(t, err, models.CodeNotFound)
}

func TestForumService_DeleteReply_Permissions(t *testing.T) {
	t.Parallel()
	h := newForumHarness(t)
	ctx := context.Background()
	thread := h.fx.CreateThread(t, h.db, h.admin, "Moderation")
	reply := h.reply(t, thread.ID, h.member, "spam", nil)

	canModerate, err := h.svc.CanModerateReply(ctx, h.member.ID, reply.ID)
	require.NoError(t, err)
	assert.False(t, canModerate)
	_, err = h.svc.DeleteReply(ctx, DeleteReplyInput{UserID: h.outside.ID, ReplyID: reply.ID, IsAdmin: false})
	assertCode(t, err, models.CodeForbidden)

	canModerate, err = h.svc.CanModerateReply(ctx, h.admin.ID, reply.ID)
	require.NoError(t, err)
	assert.True(t, canModerate)
	_, err = h.svc.DeleteReply(ctx, DeleteReplyInput{UserID: h.admin.ID, ReplyID: reply.ID, IsAdmin: canModerate})
	require.NoError(t, err)

	_, err = h.svc.DeleteReply(ctx, DeleteReplyInput{UserID: h.member.ID, ReplyID: reply.ID})
	assertCode(t, err, models.CodeAlreadyDeleted)
	assert.Equal(t, 400, models.StatusFor(err))

	_, err = h.svc.CanModerateReply(ctx, h.admin.ID, 5555)
	assertCode(t, err, models.CodeNotFound)
}

func TestForumService_TogglePin(t *testing.T) {
	t.Parallel()
	h := newForumHarness(t)
	ctx := context.Background()
	thread := h.fx.CreateThread(t, h.db, h.member, "Pin candidate")

	promoted := testutil.CreateUser(t, h.db, "promoted")
	testutil.AddMember(t, h.db, h.fx.Group, promoted, models.MembershipRoleAdmin)

	otherOwner := testutil.CreateUser(t, h.db, "other-owner")
	otherFx := testutil.CreateGroupWithForum(t, h.db, otherOwner, "OTHER1")
	foreign := otherFx.CreateThread(t, h.db, otherOwner, "not yours")

	_, err := h.svc.TogglePin(ctx, h.member.ID, thread.ID, "FORUM1")
	assertCode(t, err, models.CodeForbidden)

	pinned, err := h.svc.TogglePin(ctx, h.admin.ID, thread.ID, "FORUM1")
	require.NoError(t, err)
	assert.True(t, pinned)

	pinned, err = h.svc.TogglePin(ctx, promoted.ID, thread.ID, "FORUM1")
	require.NoError(t, err)
	assert.False(t, pinned, "admin-role members moderate too")

	_, err = h.svc.TogglePin(ctx, h.admin.ID, foreign.ID, "FORUM1")
	assertCode(t, err, models.CodeNotFound)

	_, err = h.svc.TogglePin(ctx, h.admin.ID, thread.ID, "GONE00")
	assertCode(t, err, models.CodeNotFound)

	assert.False(t, h.reloadThread(t, thread.ID).IsLocked, "pin and lock are independent")
}

func TestForumService_GetGroupForum(t *testing.T) {
	t.Parallel()
	h := newForumHarness(t)
	ctx := context.Background()
	quiet := h.fx.CreateThread(t, h.db, h.admin, "quiet")
	active := h.fx.CreateThread(t, h.db, h.admin, "active")
	h.reply(t, active.ID, h.member, "bump", nil)

	forum, err := h.svc.GetGroupForum(ctx, "FORUM1")
	require.NoError(t, err)
	assert.Equal(t, h.fx.Group.Name, forum.GroupName)
	assert.Equal(t, h.fx.Forum.ID, forum.Forum.ID)
	require.Len(t, forum.Threads, 2)
	assert.Equal(t, active.ID, forum.Threads[0].ID)
	assert.Equal(t, quiet.ID, forum.Threads[1].ID)

	_, err = h.svc.GetGroupForum(ctx, "MISSNG")
	assertCode(t, err, models.CodeNotFound)
}

func TestBuildReplyTree(t *testing.T) {
	t.Parallel()
	ptr := func(v uint) *uint { return &v }

	replies := []models.Reply{
		{ID: 1, Content: "root"},
		{ID: 2, Content: "tombstone without children", IsDeleted: true},
		{ID: 3, ParentReplyID: ptr(1), Content: "child"},
		{ID: 4, Content: "tombstone anchor", IsDeleted: true},
		{ID: 5, ParentReplyID: ptr(4), Content: "orphan-ish child"},
		{ID: 6, ParentReplyID: ptr(1), Content: "deleted child", IsDeleted: true},
		{ID: 7, ParentReplyID: ptr(1), Content: "second child"},
	}

	tree := BuildReplyTree(replies)
	require.Len(t, tree, 2)
	assert.Equal(t, uint(1), tree[0].ID)
	require.Len(t, tree[0].Children, 2)
	assert.Equal(t, uint(3), tree[0].Children[0].ID)
	assert.Equal(t, uint(7), tree[0].Children[1].ID)
	assert.Equal(t, uint(4), tree[1].ID)
	require.Len(t, tree[1].Children, 1)
	assert.Equal(t, uint(5), tree[1].Children[0].ID)

	assert.Empty(t, BuildReplyTree(nil))
}

// deleteAfterRead tombstones a reply right after the service has read it,
// so the write that follows races a concurrent delete.
type deleteAfterRead struct {
	repository.ForumRepository
	once bool
}

func (r *deleteAfterRead) GetReply(ctx context.Context, id uint) (*models.Reply, error) {
	reply, err := r.ForumRepository.GetReply(ctx, id)
	if err != nil || r.once {
		return reply, err
	}
	r.once = true
	return reply, r.ForumRepository.TombstoneReply(ctx, id)
}

func TestForumService_DeleteBetweenReadAndWrite(t *testing.T) {
	t.Parallel()

	t.Run("edit keeps the tombstone", func(t *testing.T) {
		t.Parallel()
		h := newForumHarness(t)
		ctx := context.Background()
		thread := h.fx.CreateThread(t, h.db, h.admin, "Racy")
		r := h.reply(t, thread.ID, h.member, "draft", nil)

		groups := repository.NewGroupRepository(h.db)
		racing := NewForumService(h.db, &deleteAfterRead{ForumRepository: repository.NewForumRepository(h.db)},
			groups, NewGroupLookup(groups, 0))

		_, err := racing.EditReply(ctx, EditReplyInput{UserID: h.member.ID, ReplyID: r.ID, Content: "final"})
		assertCode(t, err, models.CodeAlreadyDeleted)

		var stored models.Reply
		require.NoError(t, h.db.First(&stored, r.ID).Error)
		assert.True(t, stored.IsDeleted)
		assert.Equal(t, models.DeletedReplyContent, stored.Content)
		assert.False(t, stored.IsEdited)
	})

	t.Run("second delete reports already deleted", func(t *testing.T) {
		t.Parallel()
		h := newForumHarness(t)
		ctx := context.Background()
		thread := h.fx.CreateThread(t, h.db, h.admin, "Racy")
		r := h.reply(t, thread.ID, h.member, "draft", nil)

		groups := repository.NewGroupRepository(h.db)
		racing := NewForumService(h.db, &deleteAfterRead{ForumRepository: repository.NewForumRepository(h.db)},
			groups, NewGroupLookup(groups, 0))

		_, err := racing.DeleteReply(ctx, DeleteReplyInput{UserID: h.member.ID, ReplyID: r.ID})
		assertCode(t, err, models.CodeAlreadyDeleted)
	})
}
