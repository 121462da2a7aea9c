package seed

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"studyhub/internal/models"
	"studyhub/internal/observability"
	"studyhub/internal/repository"
	"studyhub/internal/service"
	"studyhub/internal/storage"

	"gorm.io/gorm"
)

// Options configures the seeder.
type Options struct {
	NumUsers         int
	NumGroups        int
	ThreadsPerGroup  int
	RepliesPerThread int
	// ResourceRoot receives the seeded sample resource files.
	ResourceRoot string
	SkipBcrypt   bool
	RandSeed     int64
}

// DefaultOptions is a small but lively dataset.
func DefaultOptions() Options {
	return Options{
		NumUsers:         20,
		NumGroups:        5,
		ThreadsPerGroup:  4,
		RepliesPerThread: 8,
		ResourceRoot:     "resources",
	}
}

// Summary counts what a Run created.
type Summary struct {
	Users     int
	Groups    int
	Members   int
	Threads   int
	Replies   int
	Reactions int
}

// Seeder drives the application services with fake data.
type Seeder struct {
	db        *gorm.DB
	opts      Options
	factory   *Factory
	stager    *storage.ResourceStager
	groups    *service.GroupService
	forums    *service.ForumService
	reactions *service.ReactionService
}

// NewSeeder wires the services on top of db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	if opts.ResourceRoot == "" {
		opts.ResourceRoot = "resources"
	}
	stager := storage.NewResourceStager(opts.ResourceRoot, filepath.Join(opts.ResourceRoot, "temp"))
	groupRepo := repository.NewGroupRepository(db)
	forumRepo := repository.NewForumRepository(db)
	lookup := service.NewGroupLookup(groupRepo, 0)

	return &Seeder{
		db:      db,
		opts:    opts,
		factory: NewFactory(db, opts),
		stager:  stager,
		groups: service.NewGroupService(
			groupRepo,
			repository.NewUserRepository(db),
			repository.NewEntityGraph(db, stager),
			stager,
			lookup,
			service.GroupServiceConfig{},
		),
		forums:    service.NewForumService(db, forumRepo, groupRepo, lookup),
		reactions: service.NewReactionService(db, forumRepo),
	}
}

// Run creates users, then groups with members, threads, replies and
// reactions.
func (s *Seeder) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{}
	if s.opts.NumUsers < 1 {
		return sum, nil
	}

	users := make([]*models.User, 0, s.opts.NumUsers)
	for i := 0; i < s.opts.NumUsers; i++ {
		u, err := s.factory.CreateUser(i + 1)
		if err != nil {
			return sum, err
		}
		users = append(users, u)
	}
	sum.Users = len(users)

	for g := 0; g < s.opts.NumGroups; g++ {
		if err := s.seedGroup(ctx, users, sum); err != nil {
			return sum, err
		}
	}

	observability.Logger.InfoContext(ctx, "seed complete",
		slog.Int("users", sum.Users),
		slog.Int("groups", sum.Groups),
		slog.Int("members", sum.Members),
		slog.Int("threads", sum.Threads),
		slog.Int("replies", sum.Replies),
		slog.Int("reactions", sum.Reactions))
	return sum, nil
}

func (s *Seeder) seedGroup(ctx context.Context, users []*models.User, sum *Summary) error {
	creator := users[s.factory.Intn(len(users))]

	uploads, err := s.sampleUploads()
	if err != nil {
		return err
	}
	graph, err := s.groups.CreateGroup(ctx, service.CreateGroupInput{
		CreatorID:   creator.ID,
		Name:        s.factory.GroupName(),
		Description: s.factory.Sentence(12),
		IsPrivate:   s.factory.Chance(20),
		Syllabus:    s.factory.Syllabus(),
		Uploads:     uploads,
	})
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	sum.Groups++

	members := []*models.User{creator}
	for _, u := range users {
		if u.ID == creator.ID || !s.factory.Chance(60) {
			continue
		}
		if _, err := s.groups.JoinGroup(ctx, service.JoinGroupInput{
			GroupCode:   graph.GroupCode,
			UserID:      u.ID,
			IsAnonymous: s.factory.Chance(10),
		}); err != nil {
			return fmt.Errorf("join group: %w", err)
		}
		members = append(members, u)
		sum.Members++
	}

	for t := 0; t < s.opts.ThreadsPerGroup; t++ {
		if err := s.seedThread(ctx, graph.GroupCode, members, sum); err != nil {
			return err
		}
	}

	if s.factory.Chance(30) && s.opts.ThreadsPerGroup > 0 {
		forum, err := s.forums.GetGroupForum(ctx, graph.GroupCode)
		if err != nil {
			return err
		}
		if len(forum.Threads) > 0 {
			if _, err := s.forums.TogglePin(ctx, creator.ID, forum.Threads[0].ID, graph.GroupCode); err != nil {
				return fmt.Errorf("pin thread: %w", err)
			}
		}
	}
	return nil
}

func (s *Seeder) seedThread(ctx context.Context, code string, members []*models.User, sum *Summary) error {
	author := members[s.factory.Intn(len(members))]
	thread, err := s.forums.CreateThread(ctx, service.CreateThreadInput{
		GroupCode: code,
		UserID:    author.ID,
		Title:     s.factory.Sentence(6),
		Content:   s.factory.Paragraph(),
	})
	if err != nil {
		return fmt.Errorf("create thread: %w", err)
	}
	sum.Threads++

	var topLevel []uint
	for r := 0; r < s.opts.RepliesPerThread; r++ {
		in := service.CreateReplyInput{
			ThreadID: thread.ID,
			UserID:   members[s.factory.Intn(len(members))].ID,
			Content:  s.factory.Paragraph(),
		}
		if len(topLevel) > 0 && s.factory.Chance(40) {
			parent := topLevel[s.factory.Intn(len(topLevel))]
			in.ParentReplyID = &parent
		}
		reply, err := s.forums.CreateReply(ctx, in)
		if err != nil {
			return fmt.Errorf("create reply: %w", err)
		}
		sum.Replies++
		if reply.ParentReplyID == nil {
			topLevel = append(topLevel, reply.ID)
		}

		for _, m := range members {
			if !s.factory.Chance(25) {
				continue
			}
			action := service.ActionLike
			if s.factory.Chance(20) {
				action = service.ActionDislike
			}
			if _, err := s.reactions.React(ctx, m.ID, reply.ID, action); err != nil {
				return fmt.Errorf("react: %w", err)
			}
			sum.Reactions++
		}
	}
	return nil
}

// sampleUploads parks a short reading list in the temp dir so every seeded
// group owns one resource file.
func (s *Seeder) sampleUploads() ([]storage.Upload, error) {
	note := fmt.Sprintf("# Reading list\n\n%s\n", s.factory.Paragraph())
	up, err := s.stager.SaveTemp(strings.NewReader(note), "reading-list.txt")
	if err != nil {
		return nil, err
	}
	return []storage.Upload{up}, nil
}

// ClearAll deletes every seeded row, children first.
func (s *Seeder) ClearAll(ctx context.Context) error {
	tables := []any{
		&models.ReplyLike{},
		&models.Reply{},
		&models.Thread{},
		&models.Forum{},
		&models.SubTopic{},
		&models.Topic{},
		&models.Syllabus{},
		&models.Resource{},
		&models.Membership{},
		&models.Group{},
		&models.User{},
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range tables {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(t).Error; err != nil {
				return fmt.Errorf("clear %T: %w", t, err)
			}
		}
		return nil
	})
}
