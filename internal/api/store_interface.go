package api

import "github.com/oraz/quizadmin/internal/services"

// Store is the persistence boundary of the admin API. The in-memory store is
// the default; internal/db provides sqlite and postgres implementations. The
// service layer consumes narrow slices of this interface.
type Store interface {
	AddQuiz(q *services.Quiz) error
	GetQuiz(id string) (*services.Quiz, error)
	UpdateQuiz(q *services.Quiz) error
	DeleteQuiz(id string) (bool, error)
	ListQuizzes(search string, status services.QuizStatus, page, perPage int) ([]*services.Quiz, int, error)

	AddQuestion(q *services.Question) error
	GetQuestion(id string) (*services.Question, error)
	DeleteQuestion(id string) (bool, error)
	ListQuestions(quizID string) ([]*services.Question, error)

	AddSession(s *services.Session) error
	GetSession(id string) (*services.Session, error)
	UpdateSession(s *services.Session) error
	DeleteSession(id string) (bool, error)
	FindSessionByEmail(quizID, email string) (*services.Session, error)
	ListSessions(quizID string, status services.SessionStatus, page, perPage int) ([]*services.Session, int, error)
	ListSessionsByQuiz(quizID string) ([]*services.Session, error)

	AddMailMessage(m *services.MailMessage) error
	GetMailMessage(id string) (*services.MailMessage, error)
	ListMailMessages(quizID string) ([]*services.MailMessage, error)

	UpsertVerificationCode(vc *services.VerificationCode) error
	GetVerificationCode(quizID, email string) (*services.VerificationCode, error)
	DeleteVerificationCode(quizID, email string) error

	AddUser(u *services.User) error
	FindUserByEmail(email string) (*services.User, error)

	AddAudit(e services.AuditEntry)
	ListAudit() []services.AuditEntry
}

var _ Store = (*MemoryStore)(nil)
