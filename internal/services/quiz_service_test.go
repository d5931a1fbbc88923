package services

import (
	"sort"
	"strings"
	"testing"
)

type stubQuizStore struct {
	quizzes   map[string]*Quiz
	questions map[string]*Question
	audit     []AuditEntry
}

func newStubQuizStore() *stubQuizStore {
	return &stubQuizStore{quizzes: map[string]*Quiz{}, questions: map[string]*Question{}}
}

func (s *stubQuizStore) AddQuiz(q *Quiz) error        { s.quizzes[q.ID] = q; return nil }
func (s *stubQuizStore) GetQuiz(id string) (*Quiz, error) { return s.quizzes[id], nil }
func (s *stubQuizStore) UpdateQuiz(q *Quiz) error     { s.quizzes[q.ID] = q; return nil }

func (s *stubQuizStore) DeleteQuiz(id string) (bool, error) {
	if _, ok := s.quizzes[id]; !ok {
		return false, nil
	}
	delete(s.quizzes, id)
	for qid, q := range s.questions {
		if q.QuizID == id {
			delete(s.questions, qid)
		}
	}
	return true, nil
}

func (s *stubQuizStore) ListQuizzes(search string, status QuizStatus, page, perPage int) ([]*Quiz, int, error) {
	matched := []*Quiz{}
	for _, q := range s.quizzes {
		if search != "" && !strings.Contains(strings.ToLower(q.Title), strings.ToLower(search)) {
			continue
		}
		if status != "" && q.Status != status {
			continue
		}
		matched = append(matched, q)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := len(matched)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *stubQuizStore) AddQuestion(q *Question) error { s.questions[q.ID] = q; return nil }

func (s *stubQuizStore) GetQuestion(id string) (*Question, error) { return s.questions[id], nil }

func (s *stubQuizStore) DeleteQuestion(id string) (bool, error) {
	if _, ok := s.questions[id]; !ok {
		return false, nil
	}
	delete(s.questions, id)
	return true, nil
}

func (s *stubQuizStore) ListQuestions(quizID string) ([]*Question, error) {
	out := []*Question{}
	for _, q := range s.questions {
		if q.QuizID == quizID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *stubQuizStore) AddAudit(entry AuditEntry) { s.audit = append(s.audit, entry) }

func TestCreateQuizDefaultsToDraft(t *testing.T) {
	svc := NewQuizService(newStubQuizStore())
	quiz, err := svc.Create(CreateQuizRequest{Title: "Safety survey", Tags: []string{"hse"}})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if quiz.Status != QuizDraft {
		t.Fatalf("status = %s, want DRAFT", quiz.Status)
	}
	if quiz.ID == "" || quiz.CreatedAt.IsZero() {
		t.Fatalf("quiz not initialized: %+v", quiz)
	}
}

func TestCreateQuizValidation(t *testing.T) {
	svc := NewQuizService(newStubQuizStore())
	if _, err := svc.Create(CreateQuizRequest{Title: ""}); err == nil {
		t.Fatalf("expected validation error for empty title")
	}
	if _, err := svc.Create(CreateQuizRequest{Title: "ok", Status: "BOGUS"}); err == nil {
		t.Fatalf("expected validation error for unknown status")
	}
}

func TestUpdateQuizPartialPatch(t *testing.T) {
	store := newStubQuizStore()
	svc := NewQuizService(store)
	quiz, _ := svc.Create(CreateQuizRequest{Title: "Before", Description: "keep me"})

	title := "After"
	status := QuizActive
	updated, err := svc.Update(quiz.ID, UpdateQuizRequest{Title: &title, Status: &status})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if updated.Title != "After" || updated.Status != QuizActive {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if updated.Description != "keep me" {
		t.Fatalf("untouched field changed: %q", updated.Description)
	}
}

func TestListQuizzesPagination(t *testing.T) {
	store := newStubQuizStore()
	svc := NewQuizService(store)
	for i := 0; i < 25; i++ {
		if _, err := svc.Create(CreateQuizRequest{Title: "Survey", Status: QuizActive}); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}
	page, err := svc.List("", QuizActive, 3, 10)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(page.Data) != 5 {
		t.Fatalf("page 3 size = %d, want 5", len(page.Data))
	}
	if page.Meta.Total != 25 || page.Meta.LastPage != 3 {
		t.Fatalf("meta = %+v, want total 25 lastPage 3", page.Meta)
	}
}

func TestAddQuestionRequiresTwoOptions(t *testing.T) {
	store := newStubQuizStore()
	svc := NewQuizService(store)
	quiz, _ := svc.Create(CreateQuizRequest{Title: "Survey"})

	_, err := svc.AddQuestion(quiz.ID, CreateQuestionRequest{
		Title:   "Lonely",
		Options: []QuestionOptionInput{{Text: "only", Weight: 1}},
	})
	if err == nil {
		t.Fatalf("expected validation error for a single option")
	}

	q, err := svc.AddQuestion(quiz.ID, CreateQuestionRequest{
		Title:    "Proper",
		Required: true,
		Options:  []QuestionOptionInput{{Text: "no", Weight: 0}, {Text: "yes", Weight: 5}},
	})
	if err != nil {
		t.Fatalf("AddQuestion error: %v", err)
	}
	if len(q.Options) != 2 || q.Options[0].ID == q.Options[1].ID {
		t.Fatalf("options not initialized: %+v", q.Options)
	}
	if q.MaxWeight() != 5 {
		t.Fatalf("MaxWeight = %d, want 5", q.MaxWeight())
	}
}

func TestDeleteQuizCascades(t *testing.T) {
	store := newStubQuizStore()
	svc := NewQuizService(store)
	quiz, _ := svc.Create(CreateQuizRequest{Title: "Survey"})
	if _, err := svc.AddQuestion(quiz.ID, CreateQuestionRequest{
		Title:   "Q",
		Options: []QuestionOptionInput{{Text: "a"}, {Text: "b"}},
	}); err != nil {
		t.Fatalf("AddQuestion error: %v", err)
	}
	if err := svc.Delete(quiz.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if len(store.questions) != 0 {
		t.Fatalf("questions not cascaded: %d left", len(store.questions))
	}
}
