package service

import (
	"context"

	"studyhub/internal/models"
	"studyhub/internal/observability"
	"studyhub/internal/repository"

	"gorm.io/gorm"
)

// ReactionState is a user's current reaction to a reply.
type ReactionState string

const (
	ReactionNone     ReactionState = "none"
	ReactionLiked    ReactionState = "liked"
	ReactionDisliked ReactionState = "disliked"
)

// ReactionAction is what the user asked for.
type ReactionAction string

const (
	ActionLike    ReactionAction = "like"
	ActionDislike ReactionAction = "dislike"
)

// ReactionOutcome names a transition for clients and metrics.
type ReactionOutcome string

const (
	OutcomeAddedLike        ReactionOutcome = "added_like"
	OutcomeAddedDislike     ReactionOutcome = "added_dislike"
	OutcomeRemovedLike      ReactionOutcome = "removed_like"
	OutcomeRemovedDislike   ReactionOutcome = "removed_dislike"
	OutcomeChangedToLike    ReactionOutcome = "changed_to_like"
	OutcomeChangedToDislike ReactionOutcome = "changed_to_dislike"
)

var outcomeMessages = map[ReactionOutcome]string{
	OutcomeAddedLike:        "Reply liked",
	OutcomeAddedDislike:     "Reply disliked",
	OutcomeRemovedLike:      "Like removed",
	OutcomeRemovedDislike:   "Dislike removed",
	OutcomeChangedToLike:    "Changed to like",
	OutcomeChangedToDislike: "Changed to dislike",
}

// Transition is one cell of the reaction table.
type Transition struct {
	Next      ReactionState
	LikeDelta int
	Outcome   ReactionOutcome
}

// transitions is keyed by current state then action. LikeCount tracks like
// weight only: a dislike never subtracts unless it replaces a like.
var transitions = map[ReactionState]map[ReactionAction]Transition{
	ReactionNone: {
		ActionLike:    {ReactionLiked, 1, OutcomeAddedLike},
		ActionDislike: {ReactionDisliked, 0, OutcomeAddedDislike},
	},
	ReactionLiked: {
		ActionLike:    {ReactionNone, -1, OutcomeRemovedLike},
		ActionDislike: {ReactionDisliked, -1, OutcomeChangedToDislike},
	},
	ReactionDisliked: {
		ActionLike:    {ReactionLiked, 1, OutcomeChangedToLike},
		ActionDislike: {ReactionNone, 0, OutcomeRemovedDislike},
	},
}

// NextReactionState applies action to current. The second return is false
// for an unknown state or action.
func NextReactionState(current ReactionState, action ReactionAction) (Transition, bool) {
	byAction, ok := transitions[current]
	if !ok {
		return Transition{}, false
	}
	t, ok := byAction[action]
	return t, ok
}

// ReactionResult is returned to the client after a reaction call.
type ReactionResult struct {
	ReplyID   uint            `json:"reply_id"`
	Outcome   ReactionOutcome `json:"outcome"`
	Previous  ReactionState   `json:"previous"`
	Current   ReactionState   `json:"current"`
	LikeCount int             `json:"like_count"`
	Message   string          `json:"message"`
}

// ReactionService applies like/dislike transitions.
type ReactionService struct {
	db        *gorm.DB
	forumRepo repository.ForumRepository
}

func NewReactionService(db *gorm.DB, forumRepo repository.ForumRepository) *ReactionService {
	return &ReactionService{db: db, forumRepo: forumRepo}
}

func (s *ReactionService) LikeReply(ctx context.Context, userID, replyID uint) (*ReactionResult, error) {
	return s.React(ctx, userID, replyID, ActionLike)
}

func (s *ReactionService) DislikeReply(ctx context.Context, userID, replyID uint) (*ReactionResult, error) {
	return s.React(ctx, userID, replyID, ActionDislike)
}

// React runs one transition in a transaction. The reply row is locked before
// the existing reaction is read, so concurrent calls for the same reply
// cannot both act on a stale state.
func (s *ReactionService) React(ctx context.Context, userID, replyID uint, action ReactionAction) (*ReactionResult, error) {
	if action != ActionLike && action != ActionDislike {
		return nil, models.NewValidationError("Reaction must be like or dislike")
	}

	result := &ReactionResult{ReplyID: replyID}
	err := inTx(ctx, s.db, func(tx *gorm.DB) error {
		forums := s.forumRepo.WithTx(tx)

		reply, err := forums.GetReplyForUpdate(ctx, replyID)
		if err != nil {
			return notFound(err, "Reply", replyID)
		}
		if reply.IsDeleted {
			return models.NewAlreadyDeletedError("Reply")
		}

		existing, err := forums.GetReaction(ctx, userID, replyID)
		if err != nil && !repository.IsNotFound(err) {
			return err
		}
		current := stateOf(existing)

		t, _ := NextReactionState(current, action)
		switch {
		case existing == nil:
			err = forums.CreateReaction(ctx, &models.ReplyLike{
				UserID:   userID,
				ReplyID:  replyID,
				LikeType: reactionTypeOf(t.Next),
			})
		case t.Next == ReactionNone:
			err = forums.DeleteReaction(ctx, existing.ID)
		default:
			err = forums.UpdateReactionType(ctx, existing.ID, reactionTypeOf(t.Next))
		}
		if err != nil {
			return err
		}

		if err := forums.AdjustLikeCount(ctx, replyID, t.LikeDelta); err != nil {
			return err
		}
		count, err := forums.GetLikeCount(ctx, replyID)
		if err != nil {
			return err
		}

		result.Outcome = t.Outcome
		result.Previous = current
		result.Current = t.Next
		result.LikeCount = count
		result.Message = outcomeMessages[t.Outcome]
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.ReactionTransitions.WithLabelValues(string(result.Outcome)).Inc()
	return result, nil
}

// GetUserReaction returns the caller's current state for a reply.
func (s *ReactionService) GetUserReaction(ctx context.Context, userID, replyID uint) (ReactionState, error) {
	if _, err := s.forumRepo.GetReply(ctx, replyID); err != nil {
		return ReactionNone, notFound(err, "Reply", replyID)
	}
	existing, err := s.forumRepo.GetReaction(ctx, userID, replyID)
	if err != nil && !repository.IsNotFound(err) {
		return ReactionNone, err
	}
	return stateOf(existing), nil
}

func stateOf(r *models.ReplyLike) ReactionState {
	if r == nil {
		return ReactionNone
	}
	if r.LikeType == models.ReactionDislike {
		return ReactionDisliked
	}
	return ReactionLiked
}

func reactionTypeOf(s ReactionState) models.ReactionType {
	if s == ReactionDisliked {
		return models.ReactionDislike
	}
	return models.ReactionLike
}
