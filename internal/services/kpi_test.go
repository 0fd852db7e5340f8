package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/huangang/perfsentry/internal/domain"
	"github.com/huangang/perfsentry/internal/models"
	"gorm.io/gorm"
)

type kpiFixture struct {
	db        *gorm.DB
	svc       *KPIService
	notes     *recordingNotifier
	admin     *models.User
	manager   *models.User
	employee  *models.User
	questions []*models.Question
}

func newKPIFixture(t *testing.T) *kpiFixture {
	t.Helper()
	db := newTestDB(t)
	notes := &recordingNotifier{}
	f := &kpiFixture{db: db, svc: NewKPIService(db, notes), notes: notes}
	f.admin = createUser(t, db, "root", models.RoleAdmin, nil)
	f.manager = createUser(t, db, "maria", models.RoleManager, nil)
	f.employee = createUser(t, db, "emil", models.RoleEmployee, &f.manager.ID)
	f.questions = []*models.Question{
		createQuestion(t, db, "Delivers on commitments", 0.5, true),
		createQuestion(t, db, "Collaborates with the team", 0.4, true),
		createQuestion(t, db, "Documents their work", 0.1, true),
	}
	return f
}

func (f *kpiFixture) answers(scores ...int) map[uint]AnswerInput {
	out := make(map[uint]AnswerInput, len(scores))
	for i, s := range scores {
		out[f.questions[i].ID] = AnswerInput{Score: s}
	}
	return out
}

func (f *kpiFixture) openPeriod(t *testing.T, name string) *models.EvaluationPeriod {
	t.Helper()
	p, err := f.svc.OpenPeriod(context.Background(), name, date(2025, 1, 1), date(2025, 3, 31))
	if err != nil {
		t.Fatalf("OpenPeriod(%s) error = %v", name, err)
	}
	return p
}

func (f *kpiFixture) evaluationOf(t *testing.T, periodID, userID uint) *models.Evaluation {
	t.Helper()
	var ev models.Evaluation
	if err := f.db.Where("period_id = ? AND evaluated_user_id = ?", periodID, userID).First(&ev).Error; err != nil {
		t.Fatalf("load evaluation: %v", err)
	}
	return &ev
}

func TestKPIService_EndToEnd(t *testing.T) {
	db := newTestDB(t)
	notes := &recordingNotifier{}
	svc := NewKPIService(db, notes)
	ctx := context.Background()

	manager := createUser(t, db, "manager", models.RoleManager, nil)
	userA := createUser(t, db, "usera", models.RoleEmployee, &manager.ID)
	userB := createUser(t, db, "userb", models.RoleEmployee, nil)
	q1 := createQuestion(t, db, "q1", 0.5, true)
	q2 := createQuestion(t, db, "q2", 0.4, true)
	q3 := createQuestion(t, db, "q3", 0.1, true)

	// The manager is inactive while the period opens, so only A and B are
	// evaluated in it.
	db.Model(manager).Update("is_active", false)
	period, err := svc.OpenPeriod(ctx, "2025-Q1", date(2025, 1, 1), date(2025, 3, 31))
	if err != nil {
		t.Fatalf("OpenPeriod() error = %v", err)
	}
	db.Model(manager).Update("is_active", true)

	var evs []models.Evaluation
	db.Where("period_id = ?", period.ID).Order("evaluated_user_id").Find(&evs)
	if len(evs) != 2 {
		t.Fatalf("expected 2 evaluations, got %d", len(evs))
	}
	for _, ev := range evs {
		if ev.Status != models.StatusPending {
			t.Errorf("evaluation %d status = %s, want PENDING", ev.ID, ev.Status)
		}
		if ev.EvaluatorUserID != ev.EvaluatedUserID {
			t.Errorf("evaluation %d should start as a self evaluation", ev.ID)
		}
	}
	if got := len(notes.For(userB.ID)); got != 1 {
		t.Errorf("userB notifications = %d, want 1", got)
	}

	evA := evs[0]
	if evA.EvaluatedUserID != userA.ID {
		evA = evs[1]
	}
	answers := map[uint]AnswerInput{q1.ID: {Score: 5}, q2.ID: {Score: 4}, q3.ID: {Score: 3}}

	if err := svc.SubmitEvaluation(ctx, evA.ID, userA.ID, answers); err != nil {
		t.Fatalf("self SubmitEvaluation() error = %v", err)
	}
	score, err := svc.CalculateEvaluationScore(ctx, evA.ID)
	if err != nil {
		t.Fatalf("CalculateEvaluationScore() error = %v", err)
	}
	if math.Abs(score-4.4) > 1e-9 {
		t.Errorf("score = %v, want 4.4", score)
	}

	got, _ := svc.GetEvaluation(ctx, evA.ID)
	if got.Status != models.StatusSelfEvalCompleted {
		t.Errorf("status = %s, want SELF_EVAL_COMPLETED", got.Status)
	}
	if got.EvaluatorUserID != manager.ID {
		t.Errorf("evaluator = %d, want manager %d", got.EvaluatorUserID, manager.ID)
	}
	if msgs := notes.For(manager.ID); len(msgs) != 1 || !strings.Contains(msgs[0], "Usera") {
		t.Errorf("manager notifications = %v", msgs)
	}

	if err := svc.SubmitEvaluation(ctx, evA.ID, manager.ID, answers); err != nil {
		t.Fatalf("manager SubmitEvaluation() error = %v", err)
	}
	got, _ = svc.GetEvaluation(ctx, evA.ID)
	if got.Status != models.StatusManagerReviewCompleted {
		t.Errorf("status = %s, want MANAGER_REVIEW_COMPLETED", got.Status)
	}
	if len(got.Answers) != 6 {
		t.Errorf("answers = %d, want 3 employee + 3 manager", len(got.Answers))
	}

	if err := svc.FinalizeEvaluation(ctx, evA.ID, manager.ID); err != nil {
		t.Fatalf("FinalizeEvaluation() error = %v", err)
	}
	got, _ = svc.GetEvaluation(ctx, evA.ID)
	if got.Status != models.StatusFinalized {
		t.Errorf("status = %s, want FINALIZED", got.Status)
	}
	if got.FinalScore == nil || math.Abs(*got.FinalScore-4.4) > 1e-9 {
		t.Errorf("FinalScore = %v, want 4.4", got.FinalScore)
	}

	trend, err := svc.GetUserPerformanceTrend(ctx, userA.ID)
	if err != nil {
		t.Fatalf("GetUserPerformanceTrend() error = %v", err)
	}
	if len(trend) != 1 || trend[0].PeriodName != "2025-Q1" || math.Abs(trend[0].Score-4.4) > 1e-9 {
		t.Errorf("trend = %+v, want one 2025-Q1 point at 4.4", trend)
	}
	if msgs := notes.For(userA.ID); len(msgs) != 2 || !strings.Contains(msgs[1], "4.40") {
		t.Errorf("employee notifications = %v", msgs)
	}
}

func TestKPIService_OpenPeriodValidation(t *testing.T) {
	f := newKPIFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		period  string
		wantErr error
	}{
		{"empty name", "  ", domain.ErrValidation},
		{"first", "2025-Q1", nil},
		{"duplicate", "2025-Q1", domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.OpenPeriod(ctx, tt.period, date(2025, 1, 1), date(2025, 3, 31))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("OpenPeriod() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := f.svc.OpenPeriod(ctx, "backwards", date(2025, 3, 1), date(2025, 1, 1)); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("end before start: error = %v, want ErrValidation", err)
	}

	var count int64
	f.db.Model(&models.EvaluationPeriod{}).Count(&count)
	if count != 1 {
		t.Errorf("periods = %d, want 1", count)
	}
	f.db.Model(&models.Evaluation{}).Count(&count)
	if count != 3 {
		t.Errorf("evaluations = %d, want one per active user", count)
	}
}

func TestKPIService_SubmitValidation(t *testing.T) {
	f := newKPIFixture(t)
	ctx := context.Background()
	period := f.openPeriod(t, "2025-Q1")
	ev := f.evaluationOf(t, period.ID, f.employee.ID)
	inactive := createQuestion(t, f.db, "retired", 0.3, false)

	tests := []struct {
		name    string
		answers map[uint]AnswerInput
	}{
		{"no answers", map[uint]AnswerInput{}},
		{"score too high", f.answers(6, 4, 3)},
		{"score too low", f.answers(0, 4, 3)},
		{"missing answer", f.answers(5, 4)},
		{"unknown question", func() map[uint]AnswerInput {
			a := f.answers(5, 4, 3)
			a[9999] = AnswerInput{Score: 3}
			return a
		}()},
		{"inactive question", func() map[uint]AnswerInput {
			a := f.answers(5, 4, 3)
			a[inactive.ID] = AnswerInput{Score: 3}
			return a
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.SubmitEvaluation(ctx, ev.ID, f.employee.ID, tt.answers)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("SubmitEvaluation() error = %v, want ErrValidation", err)
			}
		})
	}

	// Nothing was written by the rejected submissions.
	var answers int64
	f.db.Model(&models.Answer{}).Where("evaluation_id = ?", ev.ID).Count(&answers)
	if answers != 0 {
		t.Errorf("answers written = %d, want 0", answers)
	}
	after := f.evaluationOf(t, period.ID, f.employee.ID)
	if after.Status != models.StatusPending || after.Version != 1 {
		t.Errorf("evaluation changed: status=%s version=%d", after.Status, after.Version)
	}
}

func TestKPIService_SubmitRejectsInvalidWeightSet(t *testing.T) {
	f := newKPIFixture(t)
	ctx := context.Background()
	period := f.openPeriod(t, "2025-Q1")
	ev := f.evaluationOf(t, period.ID, f.employee.ID)

	// Bypass the question service to simulate a legacy invalid set.
	f.db.Model(f.questions[2]).Update("weight", 0.3)

	err := f.svc.SubmitEvaluation(ctx, ev.ID, f.employee.ID, f.answers(5, 4, 3))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("SubmitEvaluation() error = %v, want ErrValidation", err)
	}
}

func TestKPIService_SubmitAuthorizationAndState(t *testing.T) {
	f := newKPIFixture(t)
	ctx := context.Background()
	period := f.openPeriod(t, "2025-Q1")
	ev := f.evaluationOf(t, period.ID, f.employee.ID)

	if err := f.svc.SubmitEvaluation(ctx, 4242, f.employee.ID, f.answers(5, 4, 3)); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing evaluation: error = %v, want ErrNotFound", err)
	}
	if err := f.svc.SubmitEvaluation(ctx, ev.ID, f.manager.ID, f.answers(5, 4, 3)); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Errorf("manager before self evaluation: error = %v, want ErrNotAuthorized", err)
	}
	// Authorization is checked before validation.
	if err := f.svc.SubmitEvaluation(ctx, ev.ID, f.admin.ID, nil); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Errorf("stranger with empty answers: error = %v, want ErrNotAuthorized", err)
	}

	if err := f.svc.SubmitEvaluation(ctx, ev.ID, f.employee.ID, f.answers(5, 4, 3)); err != nil {
		t.Fatalf("self SubmitEvaluation() error = %v", err)
	}
	// The subject no longer holds the evaluation.
	if err := f.svc.SubmitEvaluation(ctx, ev.ID, f.employee.ID, f.answers(5, 5, 5)); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Errorf("self resubmission: error = %v, want ErrNotAuthorized", err)
	}

	if err := f.svc.SubmitEvaluation(ctx, ev.ID, f.manager.ID, f.answers(3, 3, 3)); err != nil {
		t.Fatalf("manager SubmitEvaluation() error = %v", err)
	}
	// Resubmission by the manager replaces the manager's answers only.
	if err := f.svc.SubmitEvaluation(ctx, ev.ID, f.manager.ID, f.answers(4, 4, 4)); err != nil {
		t.Fatalf("manager resubmission error = %v", err)
	}
	var managerAnswers []models.Answer
	f.db.Where("evaluation_id = ? AND author_role = ?", ev.ID, models.AuthorManager).Find(&managerAnswers)
	if len(managerAnswers) != 3 {
		t.Fatalf("manager answers = %d, want 3", len(managerAnswers))
	}
	for _, a := range managerAnswers {
		if a.Score != 4 {
			t.Errorf("manager answer for question %d = %d, want 4", a.QuestionID, a.Score)
		}
	}

	if err := f.svc.FinalizeEvaluation(ctx, ev.ID, f.manager.ID); err != nil {
		t.Fatalf("FinalizeEvaluation() error = %v", err)
	}
	if err := f.svc.SubmitEvaluation(ctx, ev.ID, f.manager.ID, f.answers(5, 5, 5)); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Errorf("submit after finalize: error = %v, want ErrInvalidStateTransition", err)
	}
	if err := f.svc.FinalizeEvaluation(ctx, ev.ID, f.manager.ID); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Errorf("second finalize: error = %v, want ErrInvalidStateTransition", err)
	}
}

func TestKPIService_FinalizeAuthority(t *testing.T) {
	f := newKPIFixture(t)
	ctx := context.Background()
	period := f.openPeriod(t, "2025-Q1")
	ev := f.evaluationOf(t, period.ID, f.employee.ID)

	if err := f.svc.FinalizeEvaluation(ctx, ev.ID, f.manager.ID); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Errorf("finalize pending: error = %v, want ErrInvalidStateTransition", err)
	}
	if err := f.svc.SubmitEvaluation(ctx, ev.ID, f.employee.ID, f.answers(5, 4, 3)); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.FinalizeEvaluation(ctx, ev.ID, f.employee.ID); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Errorf("subject finalizing: error = %v, want ErrNotAuthorized", err)
	}
	outsider := createUser(t, f.db, "otto", models.RoleManager, nil)
	if err := f.svc.FinalizeEvaluation(ctx, ev.ID, outsider.ID); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Errorf("unrelated manager: error = %v, want ErrNotAuthorized", err)
	}
	// Manager may finalize straight after the self evaluation.
	if err := f.svc.FinalizeEvaluation(ctx, ev.ID, f.manager.ID); err != nil {
		t.Fatalf("FinalizeEvaluation() error = %v", err)
	}
	got, _ := f.svc.GetEvaluation(ctx, ev.ID)
	if got.FinalizedBy == nil || *got.FinalizedBy != f.manager.ID || got.FinalizedAt == nil {
		t.Errorf("finalization not recorded: %+v", got)
	}
}

func TestKPIService_NoManagerNeedsAdmin(t *testing.T) {
	f := newKPIFixture(t)
	ctx := context.Background()
	loner := createUser(t, f.db, "lena", models.RoleEmployee, nil)
	period := f.openPeriod(t, "2025-Q1")
	ev := f.evaluationOf(t, period.ID, loner.ID)

	if err := f.svc.SubmitEvaluation(ctx, ev.ID, loner.ID, f.answers(4, 4, 4)); err != nil {
		t.Fatalf("SubmitEvaluation() error = %v", err)
	}
	got := f.evaluationOf(t, period.ID, loner.ID)
	if got.EvaluatorUserID != loner.ID || got.Status != models.StatusSelfEvalCompleted {
		t.Errorf("evaluation = %+v, want self-held SELF_EVAL_COMPLETED", got)
	}
	if err := f.svc.FinalizeEvaluation(ctx, ev.ID, loner.ID); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Errorf("self finalize: error = %v, want ErrNotAuthorized", err)
	}
	if err := f.svc.FinalizeEvaluation(ctx, ev.ID, f.admin.ID); err != nil {
		t.Errorf("admin finalize: error = %v", err)
	}
}

func TestKPIService_SubmitAndFinalize(t *testing.T) {
	f := newKPIFixture(t)
	ctx := context.Background()
	period := f.openPeriod(t, "2025-Q1")
	ev := f.evaluationOf(t, period.ID, f.employee.ID)

	if err := f.svc.SubmitAndFinalize(ctx, ev.ID, f.employee.ID, f.answers(5, 4, 3)); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Errorf("self direct finalize: error = %v, want ErrInvalidStateTransition", err)
	}
	if err := f.svc.SubmitEvaluation(ctx, ev.ID, f.employee.ID, f.answers(5, 4, 3)); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.SubmitAndFinalize(ctx, ev.ID, f.manager.ID, f.answers(5, 4, 3)); err != nil {
		t.Fatalf("SubmitAndFinalize() error = %v", err)
	}
	got, _ := f.svc.GetEvaluation(ctx, ev.ID)
	if got.Status != models.StatusFinalized {
		t.Errorf("status = %s, want FINALIZED", got.Status)
	}
	if got.Version != 3 {
		t.Errorf("version = %d, want 3", got.Version)
	}
}

func TestKPIService_StaleVersionConflicts(t *testing.T) {
	f := newKPIFixture(t)
	period := f.openPeriod(t, "2025-Q1")
	ev := f.evaluationOf(t, period.ID, f.employee.ID)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		stale := *ev
		stale.Version = 0
		return casUpdate(tx, &stale, map[string]interface{}{"status": models.StatusSelfEvalCompleted})
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("casUpdate with stale version: error = %v, want ErrConflict", err)
	}
}

func TestKPIService_NotificationFailureDoesNotRollBack(t *testing.T) {
	f := newKPIFixture(t)
	f.notes.err = errors.New("queue down")
	ctx := context.Background()
	period := f.openPeriod(t, "2025-Q1")
	ev := f.evaluationOf(t, period.ID, f.employee.ID)

	if err := f.svc.SubmitEvaluation(ctx, ev.ID, f.employee.ID, f.answers(5, 4, 3)); err != nil {
		t.Fatalf("SubmitEvaluation() error = %v", err)
	}
	if got := f.evaluationOf(t, period.ID, f.employee.ID); got.Status != models.StatusSelfEvalCompleted {
		t.Errorf("status = %s, want SELF_EVAL_COMPLETED", got.Status)
	}
}

func TestKPIService_ScoreUsesLiveWeights(t *testing.T) {
	f := newKPIFixture(t)
	ctx := context.Background()
	period := f.openPeriod(t, "2025-Q1")
	ev := f.evaluationOf(t, period.ID, f.employee.ID)

	if _, err := f.svc.CalculateEvaluationScore(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing evaluation: error = %v, want ErrNotFound", err)
	}
	if score, _ := f.svc.CalculateEvaluationScore(ctx, ev.ID); score != 0 {
		t.Errorf("no answers: score = %v, want 0", score)
	}

	if err := f.svc.SubmitEvaluation(ctx, ev.ID, f.employee.ID, f.answers(5, 4, 3)); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.FinalizeEvaluation(ctx, ev.ID, f.manager.ID); err != nil {
		t.Fatal(err)
	}

	// Answers of a deleted question drop out of the live score, the
	// snapshot used by the trend stays.
	f.db.Delete(&models.Question{}, f.questions[2].ID)
	live, _ := f.svc.CalculateEvaluationScore(ctx, ev.ID)
	if want := (5*0.5 + 4*0.4) / 0.9; math.Abs(live-want) > 1e-9 {
		t.Errorf("live score = %v, want %v", live, want)
	}
	trend, _ := f.svc.GetUserPerformanceTrend(ctx, f.employee.ID)
	if len(trend) != 1 || math.Abs(trend[0].Score-4.4) > 1e-9 {
		t.Errorf("trend = %+v, want snapshot 4.4", trend)
	}
}

func TestKPIService_TrendOrderAndFinalizedOnly(t *testing.T) {
	f := newKPIFixture(t)
	ctx := context.Background()

	q2, _ := f.svc.OpenPeriod(ctx, "2025-Q2", date(2025, 4, 1), date(2025, 6, 30))
	q1, _ := f.svc.OpenPeriod(ctx, "2025-Q1", date(2025, 1, 1), date(2025, 3, 31))
	q3, _ := f.svc.OpenPeriod(ctx, "2025-Q3", date(2025, 7, 1), date(2025, 9, 30))

	finalize := func(p *models.EvaluationPeriod, scores ...int) {
		ev := f.evaluationOf(t, p.ID, f.employee.ID)
		if err := f.svc.SubmitEvaluation(ctx, ev.ID, f.employee.ID, f.answers(scores...)); err != nil {
			t.Fatal(err)
		}
		if err := f.svc.FinalizeEvaluation(ctx, ev.ID, f.manager.ID); err != nil {
			t.Fatal(err)
		}
	}
	finalize(q2, 4, 4, 4)
	finalize(q1, 3, 3, 3)
	// Q3 stays SELF_EVAL_COMPLETED and must not appear.
	ev3 := f.evaluationOf(t, q3.ID, f.employee.ID)
	if err := f.svc.SubmitEvaluation(ctx, ev3.ID, f.employee.ID, f.answers(5, 5, 5)); err != nil {
		t.Fatal(err)
	}

	trend, err := f.svc.GetUserPerformanceTrend(ctx, f.employee.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(trend) != 2 {
		t.Fatalf("trend has %d points, want 2", len(trend))
	}
	if trend[0].PeriodName != "2025-Q1" || trend[1].PeriodName != "2025-Q2" {
		t.Errorf("trend order = %s, %s", trend[0].PeriodName, trend[1].PeriodName)
	}
	if math.Abs(trend[0].Score-3) > 1e-9 || math.Abs(trend[1].Score-4) > 1e-9 {
		t.Errorf("trend scores = %v, %v", trend[0].Score, trend[1].Score)
	}
}

func TestKPIService_Reporting(t *testing.T) {
	f := newKPIFixture(t)
	ctx := context.Background()
	sales := createUser(t, f.db, "sam", models.RoleEmployee, &f.manager.ID)
	f.db.Model(sales).Update("department", "Sales")

	p := f.openPeriod(t, "2025-Q1")
	for _, tc := range []struct {
		user   *models.User
		scores []int
	}{
		{f.employee, []int{4, 4, 4}},
		{sales, []int{2, 2, 2}},
	} {
		ev := f.evaluationOf(t, p.ID, tc.user.ID)
		if err := f.svc.SubmitEvaluation(ctx, ev.ID, tc.user.ID, f.answers(tc.scores...)); err != nil {
			t.Fatal(err)
		}
		if err := f.svc.FinalizeEvaluation(ctx, ev.ID, f.manager.ID); err != nil {
			t.Fatal(err)
		}
	}

	perf, err := f.svc.GetPeriodPerformance(ctx, p.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(perf) != 2 || perf[0].UserID != f.employee.ID || perf[0].Score != 4 {
		t.Errorf("GetPeriodPerformance() = %+v", perf)
	}
	filtered, _ := f.svc.GetPeriodPerformance(ctx, p.ID, "Sales")
	if len(filtered) != 1 || filtered[0].UserID != sales.ID {
		t.Errorf("department filter = %+v", filtered)
	}
	if _, err := f.svc.GetPeriodPerformance(ctx, 999, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing period: error = %v, want ErrNotFound", err)
	}

	depts, _ := f.svc.GetDepartmentPerformance(ctx, p.ID)
	if len(depts) != 2 || depts[0].Department != "Engineering" || depts[1].Average != 2 {
		t.Errorf("GetDepartmentPerformance() = %+v", depts)
	}

	cmp, err := f.svc.ComparePeriods(ctx, []uint{p.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(cmp) != 1 || cmp[0].Average != 3 || cmp[0].Evaluations != 2 {
		t.Errorf("ComparePeriods() = %+v", cmp)
	}
	if _, err := f.svc.ComparePeriods(ctx, nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("ComparePeriods(nil) error = %v, want ErrValidation", err)
	}
}

func TestKPIService_WorkQueuesAndDelete(t *testing.T) {
	f := newKPIFixture(t)
	ctx := context.Background()
	p := f.openPeriod(t, "2025-Q1")
	ev := f.evaluationOf(t, p.ID, f.employee.ID)

	pending, _ := f.svc.PendingEvaluationsFor(ctx, f.employee.ID)
	if len(pending) != 1 || pending[0].Period == nil || pending[0].Period.Name != "2025-Q1" {
		t.Errorf("PendingEvaluationsFor() = %+v", pending)
	}

	if err := f.svc.SubmitEvaluation(ctx, ev.ID, f.employee.ID, f.answers(5, 4, 3)); err != nil {
		t.Fatal(err)
	}
	if pending, _ := f.svc.PendingEvaluationsFor(ctx, f.employee.ID); len(pending) != 0 {
		t.Errorf("pending after submit = %d", len(pending))
	}
	awaiting, _ := f.svc.AwaitingReviewFor(ctx, f.manager.ID)
	if len(awaiting) != 1 || awaiting[0].ID != ev.ID {
		t.Errorf("AwaitingReviewFor() = %+v", awaiting)
	}

	if _, err := f.svc.ViewEvaluation(ctx, ev.ID, f.employee.ID); err != nil {
		t.Errorf("subject view: %v", err)
	}
	if _, err := f.svc.ViewEvaluation(ctx, ev.ID, f.admin.ID); err != nil {
		t.Errorf("admin view: %v", err)
	}
	other := createUser(t, f.db, "olga", models.RoleEmployee, nil)
	if _, err := f.svc.ViewEvaluation(ctx, ev.ID, other.ID); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Errorf("stranger view: error = %v, want ErrNotAuthorized", err)
	}

	if err := f.svc.FinalizeEvaluation(ctx, ev.ID, f.manager.ID); err != nil {
		t.Fatal(err)
	}
	done, _ := f.svc.CompletedEvaluationsFor(ctx, f.manager.ID)
	if len(done) != 1 {
		t.Errorf("CompletedEvaluationsFor(manager) = %d, want 1", len(done))
	}

	if err := f.svc.SetPeriodActive(ctx, p.ID, false); err != nil {
		t.Fatal(err)
	}
	if got, _ := f.svc.GetPeriod(ctx, p.ID); got.IsActive {
		t.Error("period should be inactive")
	}

	if err := f.svc.DeletePeriod(ctx, p.ID); err != nil {
		t.Fatalf("DeletePeriod() error = %v", err)
	}
	var count int64
	f.db.Model(&models.Evaluation{}).Count(&count)
	if count != 0 {
		t.Errorf("evaluations after delete = %d", count)
	}
	f.db.Model(&models.Answer{}).Count(&count)
	if count != 0 {
		t.Errorf("answers after delete = %d", count)
	}
	if err := f.svc.DeletePeriod(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second delete: error = %v, want ErrNotFound", err)
	}
}
