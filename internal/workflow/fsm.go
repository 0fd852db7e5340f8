// Package workflow holds the evaluation state machine. The functions here are
// pure: they decide whether a transition is allowed and what it does, and the
// services apply the decision inside a transaction.
package workflow

import (
	"strings"

	"github.com/huangang/perfsentry/internal/domain"
	"github.com/huangang/perfsentry/internal/models"
)

// validTransitions defines the legal status transitions.
// MANAGER_REVIEW_COMPLETED -> MANAGER_REVIEW_COMPLETED is a manager resubmission.
var validTransitions = map[models.EvaluationStatus]map[models.EvaluationStatus]bool{
	models.StatusPending: {models.StatusSelfEvalCompleted: true},
	models.StatusSelfEvalCompleted: {
		models.StatusManagerReviewCompleted: true,
		models.StatusFinalized:              true,
	},
	models.StatusManagerReviewCompleted: {
		models.StatusManagerReviewCompleted: true,
		models.StatusFinalized:              true,
	},
}

// CanTransition checks if a status transition is legal.
func CanTransition(from, to models.EvaluationStatus) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Subject is the part of an evaluation row the decisions depend on.
type Subject struct {
	Status      models.EvaluationStatus
	EvaluatorID uint
	EvaluatedID uint
}

func SubjectOf(e *models.Evaluation) Subject {
	return Subject{Status: e.Status, EvaluatorID: e.EvaluatorUserID, EvaluatedID: e.EvaluatedUserID}
}

// Decision is an approved transition.
type Decision struct {
	From models.EvaluationStatus
	To   models.EvaluationStatus
	// Role the submitted answers are recorded under. Empty for finalize.
	Role models.AuthorRole
	// Self is true when the subject is submitting their own evaluation, which
	// hands the row over to the manager.
	Self bool
}

// DecideSubmit validates a submission by actorID. Authorization is checked
// before state, so a stranger always gets ErrNotAuthorized.
func DecideSubmit(s Subject, actorID uint) (Decision, error) {
	if actorID != s.EvaluatorID {
		return Decision{}, domain.NotAuthorized("user %d is not the evaluator of this evaluation", actorID)
	}

	if actorID == s.EvaluatedID {
		if s.Status != models.StatusPending {
			return Decision{}, domain.InvalidTransition("self evaluation cannot be submitted in status %s", s.Status)
		}
		return Decision{
			From: s.Status,
			To:   models.StatusSelfEvalCompleted,
			Role: models.AuthorEmployee,
			Self: true,
		}, nil
	}

	switch s.Status {
	case models.StatusSelfEvalCompleted, models.StatusManagerReviewCompleted:
		return Decision{
			From: s.Status,
			To:   models.StatusManagerReviewCompleted,
			Role: models.AuthorManager,
		}, nil
	default:
		return Decision{}, domain.InvalidTransition("manager review cannot be submitted in status %s", s.Status)
	}
}

// Authority describes who is asking to finalize.
type Authority struct {
	ActorID uint
	IsAdmin bool
	// ManagerID is the evaluated user's current manager, if any.
	ManagerID *uint
}

// DecideFinalize allows the subject's manager, the current non-self evaluator
// or an admin to finalize. The subject never finalizes their own evaluation.
func DecideFinalize(s Subject, a Authority) (Decision, error) {
	if a.ActorID == s.EvaluatedID {
		return Decision{}, domain.NotAuthorized("user %d cannot finalize their own evaluation", a.ActorID)
	}
	isManager := a.ManagerID != nil && *a.ManagerID == a.ActorID
	isEvaluator := a.ActorID == s.EvaluatorID && s.EvaluatorID != s.EvaluatedID
	if !a.IsAdmin && !isManager && !isEvaluator {
		return Decision{}, domain.NotAuthorized("user %d may not finalize this evaluation", a.ActorID)
	}

	if !CanTransition(s.Status, models.StatusFinalized) {
		return Decision{}, domain.InvalidTransition("cannot finalize evaluation in status %s", s.Status)
	}
	return Decision{From: s.Status, To: models.StatusFinalized}, nil
}

// NextActor returns who may act on the evaluation now. ok is false once the
// evaluation is finalized.
func NextActor(s Subject) (userID uint, ok bool) {
	switch s.Status {
	case models.StatusPending:
		return s.EvaluatedID, true
	case models.StatusSelfEvalCompleted, models.StatusManagerReviewCompleted:
		return s.EvaluatorID, true
	default:
		return 0, false
	}
}

// legacyStatuses maps values written by older releases onto the current
// states. The two-state schema only knew pending and done.
var legacyStatuses = map[string]models.EvaluationStatus{
	"COMPLETED":            models.StatusFinalized,
	"GÖZLƏMƏDƏ":            models.StatusPending,
	"TAMAMLANMIŞ":          models.StatusFinalized,
	"İŞÇİ DƏYƏRLƏNDİRDİ":   models.StatusSelfEvalCompleted,
	"RƏHBƏR DƏYƏRLƏNDİRDİ": models.StatusManagerReviewCompleted,
	"YEKUNLAŞDIRILDI":      models.StatusFinalized,
}

// ParseStatus accepts current and legacy status spellings.
func ParseStatus(raw string) (models.EvaluationStatus, error) {
	v := strings.TrimSpace(raw)
	switch s := models.EvaluationStatus(strings.ToUpper(v)); s {
	case models.StatusPending, models.StatusSelfEvalCompleted,
		models.StatusManagerReviewCompleted, models.StatusFinalized:
		return s, nil
	}
	if s, ok := legacyStatuses[v]; ok {
		return s, nil
	}
	if s, ok := legacyStatuses[strings.ToUpper(v)]; ok {
		return s, nil
	}
	return "", domain.Validation("unknown evaluation status %q", raw)
}
