package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"studyhub/internal/models"
	"studyhub/internal/observability"

	"gorm.io/gorm"
)

// FileRemover deletes files created by a graph step.
type FileRemover interface {
	Remove(path string) error
}

// GraphStep is one named write in an entity graph. Steps run in order and
// share state through closures, so a later step can read the IDs an earlier
// one produced.
type GraphStep struct {
	Name string
	Run  func(ctx context.Context, gtx *EntityGraphTx) error
}

// EntityGraphTx is the unit of work handed to every step: the transactional
// DB handle plus side effects to undo if the graph does not commit.
type EntityGraphTx struct {
	DB    *gorm.DB
	files []string
	hooks []func() error
}

// TrackFile registers a file that must be removed if the graph rolls back.
func (t *EntityGraphTx) TrackFile(path string) {
	t.files = append(t.files, path)
}

// OnRollback registers a compensating action run if the graph rolls back.
// Hooks run in reverse registration order, after tracked files are removed.
func (t *EntityGraphTx) OnRollback(fn func() error) {
	t.hooks = append(t.hooks, fn)
}

// TrackedFiles returns the files registered so far.
func (t *EntityGraphTx) TrackedFiles() []string {
	return append([]string(nil), t.files...)
}

// EntityGraph executes multi-entity writes atomically. Either every row of
// the graph commits or none does; in the latter case every tracked file is
// removed on a best-effort basis.
type EntityGraph struct {
	db    *gorm.DB
	files FileRemover
}

// NewEntityGraph creates an EntityGraph writing to db and cleaning up
// tracked files through files.
func NewEntityGraph(db *gorm.DB, files FileRemover) *EntityGraph {
	return &EntityGraph{db: db, files: files}
}

// Execute runs steps inside one transaction.
//
// An *models.AppError returned by a step is propagated unchanged. Any other
// failure, including a commit error or a panic inside a step, becomes a
// TRANSACTION_FAILURE wrapping the cause. Cleanup errors are logged and
// counted, never returned.
func (g *EntityGraph) Execute(ctx context.Context, steps ...GraphStep) (err error) {
	gtx := &EntityGraphTx{}

	defer func() {
		if r := recover(); r != nil {
			observability.Logger.ErrorContext(ctx, "entity graph step panicked", slog.Any("panic", r))
			g.compensate(ctx, gtx)
			err = models.NewTransactionFailure(fmt.Errorf("panic: %v", r))
		}
	}()

	txErr := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		gtx.DB = tx
		for _, step := range steps {
			done := observability.TrackQuery(step.Name, "entity_graph")
			stepErr := step.Run(ctx, gtx)
			done()
			if stepErr != nil {
				observability.GraphStepFailures.WithLabelValues(step.Name).Inc()
				observability.Logger.WarnContext(ctx, "entity graph step failed",
					slog.String("step", step.Name),
					slog.String("error", stepErr.Error()),
				)
				return stepErr
			}
		}
		return nil
	})
	if txErr != nil {
		g.compensate(ctx, gtx)
		return translateGraphError(txErr)
	}
	return nil
}

func translateGraphError(err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewTransactionFailure(err)
}

func (g *EntityGraph) compensate(ctx context.Context, gtx *EntityGraphTx) {
	if g.files != nil {
		for _, path := range gtx.files {
			if err := g.files.Remove(path); err != nil {
				observability.GraphCleanupFailures.WithLabelValues("file").Inc()
				observability.Logger.ErrorContext(ctx, "failed to remove staged file after rollback",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	// Hooks run after tracked files are gone, so they can clean up the
	// directories that held them.
	for i := len(gtx.hooks) - 1; i >= 0; i-- {
		if err := gtx.hooks[i](); err != nil {
			observability.GraphCleanupFailures.WithLabelValues("hook").Inc()
			observability.Logger.ErrorContext(ctx, "entity graph rollback hook failed",
				slog.String("error", err.Error()))
		}
	}
}
