package workflow

import (
	"errors"
	"testing"

	"github.com/huangang/perfsentry/internal/domain"
	"github.com/huangang/perfsentry/internal/models"
)

const (
	employee uint = 10
	manager  uint = 20
	stranger uint = 30
	admin    uint = 1
)

func TestCanTransition(t *testing.T) {
	all := []models.EvaluationStatus{
		models.StatusPending,
		models.StatusSelfEvalCompleted,
		models.StatusManagerReviewCompleted,
		models.StatusFinalized,
	}
	allowed := map[[2]models.EvaluationStatus]bool{
		{models.StatusPending, models.StatusSelfEvalCompleted}:                      true,
		{models.StatusSelfEvalCompleted, models.StatusManagerReviewCompleted}:       true,
		{models.StatusSelfEvalCompleted, models.StatusFinalized}:                    true,
		{models.StatusManagerReviewCompleted, models.StatusManagerReviewCompleted}: true,
		{models.StatusManagerReviewCompleted, models.StatusFinalized}:               true,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]models.EvaluationStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransition_NoEdgeIntoPending(t *testing.T) {
	for from := range validTransitions {
		if CanTransition(from, models.StatusPending) {
			t.Errorf("transition %s -> PENDING must not exist", from)
		}
	}
	if _, ok := validTransitions[models.StatusFinalized]; ok {
		t.Error("FINALIZED must have no outgoing transitions")
	}
}

func TestDecideSubmit(t *testing.T) {
	tests := []struct {
		name     string
		subject  Subject
		actor    uint
		wantErr  error
		wantTo   models.EvaluationStatus
		wantRole models.AuthorRole
		wantSelf bool
	}{
		{
			name:     "self evaluation from pending",
			subject:  Subject{Status: models.StatusPending, EvaluatorID: employee, EvaluatedID: employee},
			actor:    employee,
			wantTo:   models.StatusSelfEvalCompleted,
			wantRole: models.AuthorEmployee,
			wantSelf: true,
		},
		{
			name:    "self resubmission rejected",
			subject: Subject{Status: models.StatusSelfEvalCompleted, EvaluatorID: employee, EvaluatedID: employee},
			actor:   employee,
			wantErr: domain.ErrInvalidStateTransition,
		},
		{
			name:     "manager review",
			subject:  Subject{Status: models.StatusSelfEvalCompleted, EvaluatorID: manager, EvaluatedID: employee},
			actor:    manager,
			wantTo:   models.StatusManagerReviewCompleted,
			wantRole: models.AuthorManager,
		},
		{
			name:     "manager resubmission",
			subject:  Subject{Status: models.StatusManagerReviewCompleted, EvaluatorID: manager, EvaluatedID: employee},
			actor:    manager,
			wantTo:   models.StatusManagerReviewCompleted,
			wantRole: models.AuthorManager,
		},
		{
			name:    "manager before self evaluation",
			subject: Subject{Status: models.StatusPending, EvaluatorID: manager, EvaluatedID: employee},
			actor:   manager,
			wantErr: domain.ErrInvalidStateTransition,
		},
		{
			name:    "stranger",
			subject: Subject{Status: models.StatusSelfEvalCompleted, EvaluatorID: manager, EvaluatedID: employee},
			actor:   stranger,
			wantErr: domain.ErrNotAuthorized,
		},
		{
			name:    "subject after handoff",
			subject: Subject{Status: models.StatusSelfEvalCompleted, EvaluatorID: manager, EvaluatedID: employee},
			actor:   employee,
			wantErr: domain.ErrNotAuthorized,
		},
		{
			name:    "finalized",
			subject: Subject{Status: models.StatusFinalized, EvaluatorID: manager, EvaluatedID: employee},
			actor:   manager,
			wantErr: domain.ErrInvalidStateTransition,
		},
		{
			name:    "stranger on finalized gets not authorized",
			subject: Subject{Status: models.StatusFinalized, EvaluatorID: manager, EvaluatedID: employee},
			actor:   stranger,
			wantErr: domain.ErrNotAuthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := DecideSubmit(tt.subject, tt.actor)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecideSubmit() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecideSubmit() unexpected error: %v", err)
			}
			if d.To != tt.wantTo || d.Role != tt.wantRole || d.Self != tt.wantSelf {
				t.Errorf("DecideSubmit() = %+v", d)
			}
			if d.From != tt.subject.Status {
				t.Errorf("From = %s, want %s", d.From, tt.subject.Status)
			}
		})
	}
}

func TestDecideFinalize(t *testing.T) {
	mgr := manager
	tests := []struct {
		name    string
		subject Subject
		auth    Authority
		wantErr error
	}{
		{
			name:    "manager after review",
			subject: Subject{Status: models.StatusManagerReviewCompleted, EvaluatorID: manager, EvaluatedID: employee},
			auth:    Authority{ActorID: manager, ManagerID: &mgr},
		},
		{
			name:    "manager directly after self evaluation",
			subject: Subject{Status: models.StatusSelfEvalCompleted, EvaluatorID: manager, EvaluatedID: employee},
			auth:    Authority{ActorID: manager, ManagerID: &mgr},
		},
		{
			name:    "evaluator without manager link",
			subject: Subject{Status: models.StatusSelfEvalCompleted, EvaluatorID: manager, EvaluatedID: employee},
			auth:    Authority{ActorID: manager},
		},
		{
			name:    "admin",
			subject: Subject{Status: models.StatusSelfEvalCompleted, EvaluatorID: employee, EvaluatedID: employee},
			auth:    Authority{ActorID: admin, IsAdmin: true},
		},
		{
			name:    "subject cannot finalize",
			subject: Subject{Status: models.StatusSelfEvalCompleted, EvaluatorID: employee, EvaluatedID: employee},
			auth:    Authority{ActorID: employee},
			wantErr: domain.ErrNotAuthorized,
		},
		{
			name:    "admin subject cannot finalize",
			subject: Subject{Status: models.StatusSelfEvalCompleted, EvaluatorID: manager, EvaluatedID: admin},
			auth:    Authority{ActorID: admin, IsAdmin: true},
			wantErr: domain.ErrNotAuthorized,
		},
		{
			name:    "stranger",
			subject: Subject{Status: models.StatusManagerReviewCompleted, EvaluatorID: manager, EvaluatedID: employee},
			auth:    Authority{ActorID: stranger, ManagerID: &mgr},
			wantErr: domain.ErrNotAuthorized,
		},
		{
			name:    "pending",
			subject: Subject{Status: models.StatusPending, EvaluatorID: employee, EvaluatedID: employee},
			auth:    Authority{ActorID: manager, ManagerID: &mgr},
			wantErr: domain.ErrInvalidStateTransition,
		},
		{
			name:    "already finalized",
			subject: Subject{Status: models.StatusFinalized, EvaluatorID: manager, EvaluatedID: employee},
			auth:    Authority{ActorID: manager, ManagerID: &mgr},
			wantErr: domain.ErrInvalidStateTransition,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := DecideFinalize(tt.subject, tt.auth)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecideFinalize() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecideFinalize() unexpected error: %v", err)
			}
			if d.To != models.StatusFinalized {
				t.Errorf("To = %s, want FINALIZED", d.To)
			}
		})
	}
}

func TestNextActor(t *testing.T) {
	tests := []struct {
		status models.EvaluationStatus
		want   uint
		ok     bool
	}{
		{models.StatusPending, employee, true},
		{models.StatusSelfEvalCompleted, manager, true},
		{models.StatusManagerReviewCompleted, manager, true},
		{models.StatusFinalized, 0, false},
	}
	for _, tt := range tests {
		got, ok := NextActor(Subject{Status: tt.status, EvaluatorID: manager, EvaluatedID: employee})
		if got != tt.want || ok != tt.ok {
			t.Errorf("NextActor(%s) = (%d, %v), want (%d, %v)", tt.status, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    models.EvaluationStatus
		wantErr bool
	}{
		{"PENDING", models.StatusPending, false},
		{"self_eval_completed", models.StatusSelfEvalCompleted, false},
		{" FINALIZED ", models.StatusFinalized, false},
		{"COMPLETED", models.StatusFinalized, false},
		{"GÖZLƏMƏDƏ", models.StatusPending, false},
		{"TAMAMLANMIŞ", models.StatusFinalized, false},
		{"RƏHBƏR DƏYƏRLƏNDİRDİ", models.StatusManagerReviewCompleted, false},
		{"ARCHIVED", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStatus(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrValidation) {
			t.Errorf("ParseStatus(%q) error should be ErrValidation, got %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
