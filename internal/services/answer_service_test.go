package services

import (
	"errors"
	"testing"
)

type stubAnswerStore struct {
	sessions  map[string]*Session
	questions map[string]*Question
}

func (s *stubAnswerStore) GetSession(id string) (*Session, error) { return s.sessions[id], nil }

func (s *stubAnswerStore) GetQuestion(id string) (*Question, error) { return s.questions[id], nil }

func (s *stubAnswerStore) UpdateSession(sess *Session) error {
	s.sessions[sess.ID] = sess
	return nil
}

func newAnswerFixture() (*AnswerService, *stubAnswerStore) {
	store := &stubAnswerStore{
		sessions: map[string]*Session{
			"S1": {ID: "S1", QuizID: "Q1", Status: SessionInProgress},
		},
		questions: map[string]*Question{
			"QU1": {ID: "QU1", QuizID: "Q1", Options: []AnswerOption{{ID: "O1", Weight: 1}, {ID: "O2", Weight: 5}}},
			"QU2": {ID: "QU2", QuizID: "Q1", Options: []AnswerOption{{ID: "O3", Weight: 1}}},
		},
	}
	return NewAnswerService(store), store
}

func TestRecordAnswerUpsert(t *testing.T) {
	svc, store := newAnswerFixture()

	if err := svc.Record("S1", "QU1", "O1"); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if err := svc.Record("S1", "QU2", "O3"); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	// Last write wins per question, order preserved.
	if err := svc.Record("S1", "QU1", "O2"); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	sub := store.sessions["S1"].Submission
	if len(sub) != 2 {
		t.Fatalf("submission length = %d, want 2", len(sub))
	}
	if sub[0].QuestionID != "QU1" || sub[0].AnswerID != "O2" {
		t.Fatalf("first entry = %+v, want QU1/O2", sub[0])
	}
	if sub[1].QuestionID != "QU2" || sub[1].AnswerID != "O3" {
		t.Fatalf("second entry = %+v, want QU2/O3", sub[1])
	}
}

func TestRecordAnswerRequiresInProgress(t *testing.T) {
	svc, store := newAnswerFixture()
	for _, status := range []SessionStatus{SessionNotStarted, SessionMailSended} {
		store.sessions["S1"].Status = status
		if err := svc.Record("S1", "QU1", "O1"); !errors.Is(err, ErrSessionNotActive) {
			t.Fatalf("status %s: error = %v, want ErrSessionNotActive", status, err)
		}
	}
	if len(store.sessions["S1"].Submission) != 0 {
		t.Fatalf("submission mutated: %+v", store.sessions["S1"].Submission)
	}
}

func TestRecordAnswerAfterCompletionFails(t *testing.T) {
	svc, store := newAnswerFixture()
	if err := svc.Record("S1", "QU1", "O1"); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	store.sessions["S1"].Status = SessionCompleted

	if err := svc.Record("S1", "QU1", "O2"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("error = %v, want ErrSessionClosed", err)
	}
	if got := store.sessions["S1"].Submission[0].AnswerID; got != "O1" {
		t.Fatalf("frozen submission mutated: answer = %s, want O1", got)
	}
}

func TestRecordAnswerValidatesTarget(t *testing.T) {
	svc, _ := newAnswerFixture()

	if err := svc.Record("S1", "missing", "O1"); err == nil {
		t.Fatalf("expected unknown question error")
	}
	err := svc.Record("S1", "QU1", "bogus")
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorInvalid {
		t.Fatalf("error = %v, want invalid", err)
	}
}
