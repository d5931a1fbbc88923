package services

import (
	"crypto/rand"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// MailStore abstracts persistence operations required by MailService.
type MailStore interface {
	GetQuiz(id string) (*Quiz, error)
	AddMailMessage(m *MailMessage) error
	GetMailMessage(id string) (*MailMessage, error)
	ListMailMessages(quizID string) ([]*MailMessage, error)
	UpsertVerificationCode(vc *VerificationCode) error
	GetVerificationCode(quizID, email string) (*VerificationCode, error)
	DeleteVerificationCode(quizID, email string) error
}

// LogMailer writes outgoing mail to the process log instead of an SMTP
// relay. The production relay is an external collaborator.
type LogMailer struct{}

func (LogMailer) Send(to, subject, body string) error {
	log.Printf("mail: to=%s subject=%q bytes=%d", to, subject, len(body))
	return nil
}

const verificationCodeTTL = 15 * time.Minute

// MailService manages per-quiz mail templates and the email verification
// codes respondents use to claim a session link.
type MailService struct {
	store    MailStore
	mailer   Mailer
	validate *validator.Validate
	now      func() time.Time
	idGen    func() string
	codeGen  func() string
}

func NewMailService(store MailStore, mailer Mailer) *MailService {
	return &MailService{
		store:    store,
		mailer:   mailer,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
		idGen:    func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:12] },
		codeGen:  randomDigits,
	}
}

// randomDigits produces a 6-digit numeric code.
func randomDigits() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process is in serious trouble;
		// surface an obviously unusable code rather than panic.
		log.Printf("mail: generate code: %v", err)
		return "000000"
	}
	out := make([]byte, 6)
	for i, v := range b {
		out[i] = '0' + v%10
	}
	return string(out)
}

func (s *MailService) CreateTemplate(quizID, subject, body string) (*MailMessage, error) {
	quiz, err := s.store.GetQuiz(quizID)
	if err != nil {
		return nil, err
	}
	if quiz == nil {
		return nil, NewNotFoundError("quiz not found")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, NewInvalidError("subject required")
	}
	if strings.TrimSpace(body) == "" {
		return nil, NewInvalidError("body required")
	}
	msg := &MailMessage{ID: s.idGen(), QuizID: quizID, Subject: subject, Body: body}
	if err := s.store.AddMailMessage(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *MailService) ListTemplates(quizID string) ([]*MailMessage, error) {
	quiz, err := s.store.GetQuiz(quizID)
	if err != nil {
		return nil, err
	}
	if quiz == nil {
		return nil, NewNotFoundError("quiz not found")
	}
	return s.store.ListMailMessages(quizID)
}

// SendVerificationCode mails a short-lived single-use code to the address.
// Re-sending replaces any previous code for the same (quiz, email) pair.
func (s *MailService) SendVerificationCode(quizID, email string) error {
	quiz, err := s.store.GetQuiz(quizID)
	if err != nil {
		return err
	}
	if quiz == nil {
		return NewNotFoundError("quiz not found")
	}
	email = strings.TrimSpace(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return ErrInvalidEmail
	}
	code := s.codeGen()
	vc := &VerificationCode{QuizID: quizID, Email: email, Code: code, ExpiresAt: s.now().Add(verificationCodeTTL)}
	if err := s.store.UpsertVerificationCode(vc); err != nil {
		return err
	}
	body := fmt.Sprintf("Your verification code for %q is %s. It expires in %d minutes.",
		quiz.Title, code, int(verificationCodeTTL.Minutes()))
	return s.mailer.Send(email, "Survey verification code", body)
}

// VerifyCode checks a submitted code. A matching, unexpired code is consumed
// on success.
func (s *MailService) VerifyCode(quizID, email, code string) error {
	email = strings.TrimSpace(email)
	vc, err := s.store.GetVerificationCode(quizID, email)
	if err != nil {
		return err
	}
	if vc == nil || vc.Code != strings.TrimSpace(code) {
		return NewInvalidError("verification code does not match")
	}
	if s.now().After(vc.ExpiresAt) {
		_ = s.store.DeleteVerificationCode(quizID, email)
		return NewInvalidError("verification code expired")
	}
	return s.store.DeleteVerificationCode(quizID, email)
}
