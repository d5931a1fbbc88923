package services

import (
	"errors"
	"testing"
	"time"
)

type stubMailStore struct {
	quiz  *Quiz
	mails map[string]*MailMessage
	codes map[string]*VerificationCode
}

func newStubMailStore() *stubMailStore {
	return &stubMailStore{
		quiz:  &Quiz{ID: "Q1", Title: "Safety survey", Status: QuizActive},
		mails: map[string]*MailMessage{},
		codes: map[string]*VerificationCode{},
	}
}

func (s *stubMailStore) GetQuiz(id string) (*Quiz, error) {
	if s.quiz != nil && s.quiz.ID == id {
		return s.quiz, nil
	}
	return nil, nil
}

func (s *stubMailStore) AddMailMessage(m *MailMessage) error { s.mails[m.ID] = m; return nil }

func (s *stubMailStore) GetMailMessage(id string) (*MailMessage, error) { return s.mails[id], nil }

func (s *stubMailStore) ListMailMessages(quizID string) ([]*MailMessage, error) {
	out := []*MailMessage{}
	for _, m := range s.mails {
		if m.QuizID == quizID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *stubMailStore) UpsertVerificationCode(vc *VerificationCode) error {
	s.codes[vc.QuizID+"|"+vc.Email] = vc
	return nil
}

func (s *stubMailStore) GetVerificationCode(quizID, email string) (*VerificationCode, error) {
	return s.codes[quizID+"|"+email], nil
}

func (s *stubMailStore) DeleteVerificationCode(quizID, email string) error {
	delete(s.codes, quizID+"|"+email)
	return nil
}

func TestVerificationCodeRoundTrip(t *testing.T) {
	store := newStubMailStore()
	mailer := &stubMailer{}
	svc := NewMailService(store, mailer)
	svc.codeGen = func() string { return "123456" }

	if err := svc.SendVerificationCode("Q1", "jan@kpo.kz"); err != nil {
		t.Fatalf("SendVerificationCode error: %v", err)
	}
	if len(mailer.sent) != 1 || mailer.sent[0] != "jan@kpo.kz" {
		t.Fatalf("mail not sent: %+v", mailer.sent)
	}

	if err := svc.VerifyCode("Q1", "jan@kpo.kz", "000000"); err == nil {
		t.Fatalf("wrong code must not verify")
	}
	if err := svc.VerifyCode("Q1", "jan@kpo.kz", "123456"); err != nil {
		t.Fatalf("VerifyCode error: %v", err)
	}
	// Single use: the code is consumed.
	if err := svc.VerifyCode("Q1", "jan@kpo.kz", "123456"); err == nil {
		t.Fatalf("consumed code must not verify again")
	}
}

func TestVerificationCodeExpiry(t *testing.T) {
	store := newStubMailStore()
	svc := NewMailService(store, &stubMailer{})
	svc.codeGen = func() string { return "654321" }
	issued := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	if err := svc.SendVerificationCode("Q1", "jan@kpo.kz"); err != nil {
		t.Fatalf("SendVerificationCode error: %v", err)
	}
	svc.now = func() time.Time { return issued.Add(verificationCodeTTL + time.Minute) }
	if err := svc.VerifyCode("Q1", "jan@kpo.kz", "654321"); err == nil {
		t.Fatalf("expired code must not verify")
	}
	if len(store.codes) != 0 {
		t.Fatalf("expired code must be dropped")
	}
}

func TestSendVerificationCodeValidatesEmail(t *testing.T) {
	svc := NewMailService(newStubMailStore(), &stubMailer{})
	if err := svc.SendVerificationCode("Q1", "broken"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("error = %v, want ErrInvalidEmail", err)
	}
}

func TestCreateTemplate(t *testing.T) {
	store := newStubMailStore()
	svc := NewMailService(store, &stubMailer{})

	msg, err := svc.CreateTemplate("Q1", "Invitation", "Hello, open {{sessionLink}}")
	if err != nil {
		t.Fatalf("CreateTemplate error: %v", err)
	}
	if msg.ID == "" || msg.QuizID != "Q1" {
		t.Fatalf("template not initialized: %+v", msg)
	}
	if _, err := svc.CreateTemplate("Q1", "", "body"); err == nil {
		t.Fatalf("empty subject must fail")
	}
	list, err := svc.ListTemplates("Q1")
	if err != nil || len(list) != 1 {
		t.Fatalf("ListTemplates = (%v, %d), want 1 template", err, len(list))
	}
}

func TestRandomDigitsShape(t *testing.T) {
	svc := NewMailService(newStubMailStore(), &stubMailer{})
	code := svc.codeGen()
	if len(code) != 6 {
		t.Fatalf("code length = %d, want 6", len(code))
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Fatalf("non-digit in code %q", code)
		}
	}
}
