package services

import "time"

type QuizStatus string

const (
	QuizActive   QuizStatus = "ACTIVE"
	QuizInactive QuizStatus = "INACTIVE"
	QuizDraft    QuizStatus = "DRAFT"
)

type SessionStatus string

// MAIL_SENDED is the historical wire constant; clients depend on the exact
// spelling, so it stays.
const (
	SessionNotStarted SessionStatus = "NOT_STARTED"
	SessionMailSended SessionStatus = "MAIL_SENDED"
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionCompleted  SessionStatus = "COMPLETED"
)

type Quiz struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Status      QuizStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type AnswerOption struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Weight int    `json:"weight"`
}

type Question struct {
	ID       string         `json:"id"`
	QuizID   string         `json:"quizId"`
	Title    string         `json:"title"`
	Required bool           `json:"required"`
	Order    int            `json:"order"`
	Options  []AnswerOption `json:"options"`
}

// MaxWeight returns the highest option weight, the 100% mark for scoring.
func (q *Question) MaxWeight() int {
	max := 0
	for _, opt := range q.Options {
		if opt.Weight > max {
			max = opt.Weight
		}
	}
	return max
}

// Option looks up an answer option by id.
func (q *Question) Option(id string) (AnswerOption, bool) {
	for _, opt := range q.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return AnswerOption{}, false
}

// Answer is one (question, chosen option) pair of a session submission.
type Answer struct {
	QuestionID string `json:"questionId"`
	AnswerID   string `json:"answerId"`
}

// Session is a single invitation to answer a quiz. Email is optional: link
// based sessions carry no recipient.
type Session struct {
	ID          string        `json:"id"`
	QuizID      string        `json:"quizId"`
	Email       string        `json:"email,omitempty"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	MailSentAt  *time.Time    `json:"mailSentAt,omitempty"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
	Submission  []Answer      `json:"submission,omitempty"`
}

// Answered returns the chosen option for a question, if any.
func (s *Session) Answered(questionID string) (string, bool) {
	for _, a := range s.Submission {
		if a.QuestionID == questionID {
			return a.AnswerID, true
		}
	}
	return "", false
}

// MailMessage is an email template bound to a quiz. Body may contain the
// {{sessionLink}} placeholder.
type MailMessage struct {
	ID      string `json:"id"`
	QuizID  string `json:"quizId"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type VerificationCode struct {
	QuizID    string
	Email     string
	Code      string
	ExpiresAt time.Time
}

type User struct {
	ID        string
	Email     string
	PassHash  []byte
	Roles     []string
	CreatedAt time.Time
}

type AuditEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Note   string    `json:"note,omitempty"`
}
