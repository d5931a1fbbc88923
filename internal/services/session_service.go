package services

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// SessionStore abstracts persistence operations required by SessionService.
type SessionStore interface {
	GetQuiz(id string) (*Quiz, error)
	ListQuestions(quizID string) ([]*Question, error)
	FindSessionByEmail(quizID, email string) (*Session, error)
	AddSession(s *Session) error
	GetSession(id string) (*Session, error)
	UpdateSession(s *Session) error
	DeleteSession(id string) (bool, error)
	ListSessions(quizID string, status SessionStatus, page, perPage int) ([]*Session, int, error)
	GetMailMessage(id string) (*MailMessage, error)
	AddAudit(entry AuditEntry)
}

// Mailer delivers invitation mail. Transport (SMTP etc.) lives behind it;
// the lifecycle never retries a failed send.
type Mailer interface {
	Send(to, subject, body string) error
}

// SessionService drives the invitation lifecycle:
//
//	NOT_STARTED -> MAIL_SENDED -> IN_PROGRESS -> COMPLETED
//
// DispatchMail may repeat while MAIL_SENDED, Start is legal from either of
// the first two states, and Delete is legal from any state.
type SessionService struct {
	store    SessionStore
	mailer   Mailer
	validate *validator.Validate
	linkBase string
	now      func() time.Time
	idGen    func() string
}

func NewSessionService(store SessionStore, mailer Mailer, linkBase string) *SessionService {
	return &SessionService{
		store:    store,
		mailer:   mailer,
		validate: validator.New(),
		linkBase: strings.TrimRight(linkBase, "/"),
		now:      func() time.Time { return time.Now().UTC() },
		idGen:    func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:12] },
	}
}

// Create registers a new invitation for a quiz. Email is optional; when
// present it must be well-formed and not already invited to this quiz.
func (s *SessionService) Create(quizID, email string) (*Session, error) {
	quiz, err := s.store.GetQuiz(quizID)
	if err != nil {
		return nil, err
	}
	if quiz == nil {
		return nil, NewNotFoundError("quiz not found")
	}
	email = strings.TrimSpace(email)
	if email != "" {
		if err := s.validate.Var(email, "email"); err != nil {
			return nil, ErrInvalidEmail
		}
		existing, err := s.store.FindSessionByEmail(quizID, email)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, ErrDuplicateRecipient
		}
	}
	sess := &Session{
		ID:        s.idGen(),
		QuizID:    quizID,
		Email:     email,
		Status:    SessionNotStarted,
		CreatedAt: s.now(),
	}
	// The store enforces (quiz, email) uniqueness; a concurrent create for
	// the same pair surfaces here instead of double-creating.
	if err := s.store.AddSession(sess); err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: "admin", Action: "create_session", Target: sess.ID, Note: email})
	return sess, nil
}

// DispatchMail sends (or re-sends) the invitation using the given template.
// Re-dispatch while MAIL_SENDED is permitted and moves the mail-sent stamp
// forward to now.
func (s *SessionService) DispatchMail(sessionID, mailMessageID string) (*Session, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("session not found")
	}
	if sess.Status != SessionNotStarted && sess.Status != SessionMailSended {
		return nil, ErrIllegalTransition
	}
	if sess.Email == "" {
		return nil, NewInvalidError("session has no recipient email")
	}
	msg, err := s.store.GetMailMessage(mailMessageID)
	if err != nil {
		return nil, err
	}
	if msg == nil || msg.QuizID != sess.QuizID {
		return nil, NewNotFoundError("mail message not found")
	}
	body := strings.ReplaceAll(msg.Body, "{{sessionLink}}", s.SessionLink(sess.ID))
	if err := s.mailer.Send(sess.Email, msg.Subject, body); err != nil {
		return nil, err
	}
	sentAt := s.now()
	sess.MailSentAt = &sentAt
	sess.Status = SessionMailSended
	if err := s.store.UpdateSession(sess); err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: sentAt, Actor: "admin", Action: "dispatch_mail", Target: sess.ID, Note: mailMessageID})
	return sess, nil
}

// Start moves a session into IN_PROGRESS. The started stamp is set once.
func (s *SessionService) Start(sessionID string) (*Session, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("session not found")
	}
	if sess.Status != SessionNotStarted && sess.Status != SessionMailSended {
		return nil, ErrIllegalTransition
	}
	startedAt := s.now()
	sess.StartedAt = &startedAt
	sess.Status = SessionInProgress
	if err := s.store.UpdateSession(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Complete finalizes an in-progress session. The submission must contain one
// answer for every required question; afterwards it is frozen.
func (s *SessionService) Complete(sessionID string) (*Session, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("session not found")
	}
	if sess.Status != SessionInProgress {
		return nil, ErrIllegalTransition
	}
	questions, err := s.store.ListQuestions(sess.QuizID)
	if err != nil {
		return nil, err
	}
	for _, q := range questions {
		if !q.Required {
			continue
		}
		if _, ok := sess.Answered(q.ID); !ok {
			return nil, ErrIncompleteSubmission
		}
	}
	completedAt := s.now()
	sess.CompletedAt = &completedAt
	sess.Status = SessionCompleted
	if err := s.store.UpdateSession(sess); err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: completedAt, Actor: "respondent", Action: "complete_session", Target: sess.ID})
	return sess, nil
}

// Delete removes a session in any state. Irreversible.
func (s *SessionService) Delete(sessionID string) error {
	ok, err := s.store.DeleteSession(sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("session not found")
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: "admin", Action: "delete_session", Target: sessionID})
	return nil
}

// Get returns a session by id.
func (s *SessionService) Get(sessionID string) (*Session, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("session not found")
	}
	return sess, nil
}

type SessionPage struct {
	Data []*Session     `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

// List returns a page of a quiz's sessions, optionally filtered by status.
func (s *SessionService) List(quizID string, status SessionStatus, page, perPage int) (*SessionPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	sessions, total, err := s.store.ListSessions(quizID, status, page, perPage)
	if err != nil {
		return nil, err
	}
	return &SessionPage{Data: sessions, Meta: NewPaginationMeta(total, page, perPage)}, nil
}

// SessionLink is the URL respondents open to take the quiz.
func (s *SessionService) SessionLink(sessionID string) string {
	return s.linkBase + "/take/" + sessionID
}
