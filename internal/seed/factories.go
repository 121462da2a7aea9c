// Package seed populates a database with demo study groups for local
// development. Groups, threads, replies and reactions go through the same
// services the API uses, so seeded data respects every counter rule.
package seed

import (
	"fmt"

	"studyhub/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the plaintext password of every seeded user.
const DefaultPassword = "password123"

// Factory builds and persists users and random study content.
type Factory struct {
	db    *gorm.DB
	faker *gofakeit.Faker
	opts  Options
	hash  string
}

// NewFactory creates a Factory. A zero Options.RandSeed picks a random seed.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	return &Factory{db: db, faker: gofakeit.New(opts.RandSeed), opts: opts}
}

func (f *Factory) passwordHash() (string, error) {
	if f.opts.SkipBcrypt {
		return DefaultPassword, nil
	}
	if f.hash == "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
		if err != nil {
			return "", fmt.Errorf("hash seed password: %w", err)
		}
		f.hash = string(hashed)
	}
	return f.hash, nil
}

// CreateUser persists a user with fake identity fields. Usernames and
// emails carry n so repeated calls never collide.
func (f *Factory) CreateUser(n int, overrides ...func(*models.User)) (*models.User, error) {
	password, err := f.passwordHash()
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username: fmt.Sprintf("%s%d", f.faker.Username(), n),
		FullName: f.faker.Name(),
		Email:    fmt.Sprintf("user%d.%s", n, f.faker.Email()),
		Password: password,
	}
	for _, override := range overrides {
		override(user)
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Syllabus builds a random syllabus with 2-4 topics of 1-3 subtopics each.
func (f *Factory) Syllabus() models.SyllabusInput {
	topics := make([]models.TopicInput, f.faker.Number(2, 4))
	for i := range topics {
		subs := make([]models.SubTopicInput, f.faker.Number(1, 3))
		for j := range subs {
			subs[j] = models.SubTopicInput{
				Title:   f.faker.Sentence(3),
				Content: f.faker.Paragraph(1, 2, 8, " "),
			}
		}
		topics[i] = models.TopicInput{
			Title:       fmt.Sprintf("Week %d: %s", i+1, f.faker.Sentence(2)),
			Description: f.faker.Sentence(8),
			SubTopics:   subs,
		}
	}
	return models.SyllabusInput{Topics: topics}
}

// GroupName returns a plausible study group name.
func (f *Factory) GroupName() string {
	return fmt.Sprintf("%s %s study group", f.faker.JobDescriptor(), f.faker.Noun())
}

func (f *Factory) Sentence(words int) string { return f.faker.Sentence(words) }

func (f *Factory) Paragraph() string { return f.faker.Paragraph(1, 3, 12, "\n") }

// Intn returns a random int in [0, n).
func (f *Factory) Intn(n int) int {
	if n <= 1 {
		return 0
	}
	return f.faker.Number(0, n-1)
}

// Chance reports true with probability pct/100.
func (f *Factory) Chance(pct int) bool {
	return f.faker.Number(1, 100) <= pct
}
