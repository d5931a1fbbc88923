package services

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// QuizStore abstracts persistence operations required by QuizService.
type QuizStore interface {
	AddQuiz(q *Quiz) error
	GetQuiz(id string) (*Quiz, error)
	UpdateQuiz(q *Quiz) error
	DeleteQuiz(id string) (bool, error)
	ListQuizzes(search string, status QuizStatus, page, perPage int) ([]*Quiz, int, error)
	AddQuestion(q *Question) error
	GetQuestion(id string) (*Question, error)
	DeleteQuestion(id string) (bool, error)
	ListQuestions(quizID string) ([]*Question, error)
	AddAudit(entry AuditEntry)
}

type PaginationMeta struct {
	Total    int `json:"total"`
	Page     int `json:"page"`
	PerPage  int `json:"perPage"`
	LastPage int `json:"lastPage"`
}

func NewPaginationMeta(total, page, perPage int) PaginationMeta {
	last := (total + perPage - 1) / perPage
	if last < 1 {
		last = 1
	}
	return PaginationMeta{Total: total, Page: page, PerPage: perPage, LastPage: last}
}

type QuizPage struct {
	Data []*Quiz        `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

// CreateQuizRequest carries the sanitized handler input.
type CreateQuizRequest struct {
	Title       string     `json:"title" validate:"required,min=1,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	Tags        []string   `json:"tags" validate:"dive,min=1,max=50"`
	Status      QuizStatus `json:"status"`
}

type UpdateQuizRequest struct {
	Title       *string     `json:"title"`
	Description *string     `json:"description"`
	Tags        []string    `json:"tags"`
	Status      *QuizStatus `json:"status"`
}

type QuestionOptionInput struct {
	Text   string `json:"text" validate:"required,min=1"`
	Weight int    `json:"weight" validate:"min=0"`
}

type CreateQuestionRequest struct {
	Title    string                `json:"title" validate:"required,min=1,max=500"`
	Required bool                  `json:"required"`
	Options  []QuestionOptionInput `json:"options" validate:"required,min=2,dive"`
}

type QuizService struct {
	store    QuizStore
	validate *validator.Validate
	now      func() time.Time
	idGen    func() string
}

func NewQuizService(store QuizStore) *QuizService {
	return &QuizService{
		store:    store,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
		idGen:    func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:12] },
	}
}

func (s *QuizService) Create(req CreateQuizRequest) (*Quiz, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewInvalidError(err.Error())
	}
	status := req.Status
	switch status {
	case "":
		status = QuizDraft
	case QuizActive, QuizInactive, QuizDraft:
	default:
		return nil, NewInvalidError("unknown quiz status")
	}
	quiz := &Quiz{
		ID:          s.idGen(),
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Tags:        req.Tags,
		Status:      status,
		CreatedAt:   s.now(),
	}
	if err := s.store.AddQuiz(quiz); err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: quiz.CreatedAt, Actor: "admin", Action: "create_quiz", Target: quiz.ID})
	return quiz, nil
}

func (s *QuizService) Get(id string) (*Quiz, error) {
	quiz, err := s.store.GetQuiz(id)
	if err != nil {
		return nil, err
	}
	if quiz == nil {
		return nil, NewNotFoundError("quiz not found")
	}
	return quiz, nil
}

func (s *QuizService) Update(id string, req UpdateQuizRequest) (*Quiz, error) {
	quiz, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, NewInvalidError("title must not be empty")
		}
		quiz.Title = title
	}
	if req.Description != nil {
		quiz.Description = strings.TrimSpace(*req.Description)
	}
	if req.Tags != nil {
		quiz.Tags = req.Tags
	}
	if req.Status != nil {
		switch *req.Status {
		case QuizActive, QuizInactive, QuizDraft:
			quiz.Status = *req.Status
		default:
			return nil, NewInvalidError("unknown quiz status")
		}
	}
	if err := s.store.UpdateQuiz(quiz); err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: "admin", Action: "update_quiz", Target: quiz.ID})
	return quiz, nil
}

// Delete removes the quiz; the store cascades to its questions and sessions.
func (s *QuizService) Delete(id string) error {
	ok, err := s.store.DeleteQuiz(id)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("quiz not found")
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: "admin", Action: "delete_quiz", Target: id})
	return nil
}

func (s *QuizService) List(search string, status QuizStatus, page, perPage int) (*QuizPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 10
	}
	quizzes, total, err := s.store.ListQuizzes(strings.TrimSpace(search), status, page, perPage)
	if err != nil {
		return nil, err
	}
	return &QuizPage{Data: quizzes, Meta: NewPaginationMeta(total, page, perPage)}, nil
}

func (s *QuizService) AddQuestion(quizID string, req CreateQuestionRequest) (*Question, error) {
	if _, err := s.Get(quizID); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, NewInvalidError(err.Error())
	}
	existing, err := s.store.ListQuestions(quizID)
	if err != nil {
		return nil, err
	}
	q := &Question{
		ID:       s.idGen(),
		QuizID:   quizID,
		Title:    strings.TrimSpace(req.Title),
		Required: req.Required,
		Order:    len(existing),
	}
	for _, in := range req.Options {
		q.Options = append(q.Options, AnswerOption{ID: s.idGen(), Text: strings.TrimSpace(in.Text), Weight: in.Weight})
	}
	if err := s.store.AddQuestion(q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *QuizService) DeleteQuestion(id string) error {
	ok, err := s.store.DeleteQuestion(id)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("question not found")
	}
	return nil
}

func (s *QuizService) ListQuestions(quizID string) ([]*Question, error) {
	if _, err := s.Get(quizID); err != nil {
		return nil, err
	}
	return s.store.ListQuestions(quizID)
}
