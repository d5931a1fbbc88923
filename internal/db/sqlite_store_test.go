package db

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/oraz/quizadmin/internal/services"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })
	if err := RunMigrations(conn, ""); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := NewSQLiteStore(conn)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	return store
}

func TestSQLiteQuizRoundTrip(t *testing.T) {
	store := newTestStore(t)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	quiz := &services.Quiz{ID: "Q1", Title: "Culture 2026", Tags: []string{"culture"}, Status: services.QuizActive, CreatedAt: created}
	if err := store.AddQuiz(quiz); err != nil {
		t.Fatalf("add quiz: %v", err)
	}
	got, err := store.GetQuiz("Q1")
	if err != nil || got == nil {
		t.Fatalf("get quiz: %v %v", got, err)
	}
	if got.Title != "Culture 2026" || got.Status != services.QuizActive || len(got.Tags) != 1 {
		t.Fatalf("quiz mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("created_at mismatch: %v", got.CreatedAt)
	}

	q := &services.Question{ID: "QU1", QuizID: "Q1", Title: "How was it?", Required: true,
		Options: []services.AnswerOption{{ID: "A", Text: "Bad", Weight: 0}, {ID: "B", Text: "Good", Weight: 4}}}
	if err := store.AddQuestion(q); err != nil {
		t.Fatalf("add question: %v", err)
	}
	questions, err := store.ListQuestions("Q1")
	if err != nil || len(questions) != 1 || len(questions[0].Options) != 2 {
		t.Fatalf("list questions: %v %v", questions, err)
	}

	// Cascade removal.
	if ok, err := store.DeleteQuiz("Q1"); err != nil || !ok {
		t.Fatalf("delete quiz: %v %v", ok, err)
	}
	questions, err = store.ListQuestions("Q1")
	if err != nil || len(questions) != 0 {
		t.Fatalf("cascade left questions: %v %v", questions, err)
	}
}

func TestSQLiteSessionUniqueRecipient(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	if err := store.AddQuiz(&services.Quiz{ID: "Q1", Title: "Q", Status: services.QuizActive, CreatedAt: now}); err != nil {
		t.Fatalf("add quiz: %v", err)
	}
	first := &services.Session{ID: "S1", QuizID: "Q1", Email: "ann@corp.kz", Status: services.SessionNotStarted, CreatedAt: now}
	if err := store.AddSession(first); err != nil {
		t.Fatalf("add session: %v", err)
	}
	dup := &services.Session{ID: "S2", QuizID: "Q1", Email: "Ann@corp.kz", Status: services.SessionNotStarted, CreatedAt: now}
	if err := store.AddSession(dup); !errors.Is(err, services.ErrDuplicateRecipient) {
		t.Fatalf("expected duplicate recipient, got %v", err)
	}
	// Anonymous sessions are exempt from the uniqueness rule.
	for _, id := range []string{"S3", "S4"} {
		if err := store.AddSession(&services.Session{ID: id, QuizID: "Q1", Status: services.SessionNotStarted, CreatedAt: now}); err != nil {
			t.Fatalf("add anonymous session %s: %v", id, err)
		}
	}

	found, err := store.FindSessionByEmail("Q1", "ANN@corp.kz")
	if err != nil || found == nil || found.ID != "S1" {
		t.Fatalf("find by email: %v %v", found, err)
	}
}

func TestSQLiteSessionLifecycleFields(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC)
	if err := store.AddQuiz(&services.Quiz{ID: "Q1", Title: "Q", Status: services.QuizActive, CreatedAt: now}); err != nil {
		t.Fatalf("add quiz: %v", err)
	}
	sess := &services.Session{ID: "S1", QuizID: "Q1", Email: "ann@corp.kz", Status: services.SessionNotStarted, CreatedAt: now}
	if err := store.AddSession(sess); err != nil {
		t.Fatalf("add session: %v", err)
	}
	started := now.Add(time.Hour)
	completed := now.Add(2 * time.Hour)
	sess.Status = services.SessionCompleted
	sess.StartedAt = &started
	sess.CompletedAt = &completed
	sess.Submission = []services.Answer{{QuestionID: "QU1", AnswerID: "A"}}
	if err := store.UpdateSession(sess); err != nil {
		t.Fatalf("update session: %v", err)
	}
	got, err := store.GetSession("S1")
	if err != nil || got == nil {
		t.Fatalf("get session: %v %v", got, err)
	}
	if got.Status != services.SessionCompleted || got.StartedAt == nil || got.CompletedAt == nil {
		t.Fatalf("lifecycle fields lost: %+v", got)
	}
	if !got.CompletedAt.Equal(completed) || len(got.Submission) != 1 {
		t.Fatalf("session mismatch: %+v", got)
	}
}

func TestSQLiteVerificationCodeUpsert(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	if err := store.AddQuiz(&services.Quiz{ID: "Q1", Title: "Q", Status: services.QuizActive, CreatedAt: now}); err != nil {
		t.Fatalf("add quiz: %v", err)
	}
	first := &services.VerificationCode{QuizID: "Q1", Email: "ann@corp.kz", Code: "111111", ExpiresAt: now.Add(time.Minute)}
	if err := store.UpsertVerificationCode(first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second := &services.VerificationCode{QuizID: "Q1", Email: "ann@corp.kz", Code: "222222", ExpiresAt: now.Add(2 * time.Minute)}
	if err := store.UpsertVerificationCode(second); err != nil {
		t.Fatalf("upsert replace: %v", err)
	}
	got, err := store.GetVerificationCode("Q1", "ann@corp.kz")
	if err != nil || got == nil || got.Code != "222222" {
		t.Fatalf("get code: %v %v", got, err)
	}
	if err := store.DeleteVerificationCode("Q1", "ann@corp.kz"); err != nil {
		t.Fatalf("delete code: %v", err)
	}
	if got, _ := store.GetVerificationCode("Q1", "ann@corp.kz"); got != nil {
		t.Fatalf("code not consumed: %+v", got)
	}
}
