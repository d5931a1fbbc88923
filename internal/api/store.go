package api

import (
	"sort"
	"strings"
	"sync"

	"github.com/oraz/quizadmin/internal/services"
)

// MemoryStore is the default Store. Every value is copied on the way in and
// out so callers never share mutable state with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	quizzes   map[string]*services.Quiz
	questions map[string]*services.Question
	sessions  map[string]*services.Session
	mails     map[string]*services.MailMessage
	codes     map[string]*services.VerificationCode
	users     map[string]*services.User
	audit     []services.AuditEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quizzes:   make(map[string]*services.Quiz),
		questions: make(map[string]*services.Question),
		sessions:  make(map[string]*services.Session),
		mails:     make(map[string]*services.MailMessage),
		codes:     make(map[string]*services.VerificationCode),
		users:     make(map[string]*services.User),
	}
}

func codeKey(quizID, email string) string {
	return quizID + "|" + strings.ToLower(email)
}

func copyQuiz(q *services.Quiz) *services.Quiz {
	c := *q
	c.Tags = append([]string(nil), q.Tags...)
	return &c
}

func copyQuestion(q *services.Question) *services.Question {
	c := *q
	c.Options = append([]services.AnswerOption(nil), q.Options...)
	return &c
}

func copySession(s *services.Session) *services.Session {
	c := *s
	c.Submission = append([]services.Answer(nil), s.Submission...)
	return &c
}

func (m *MemoryStore) AddQuiz(q *services.Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.ID] = copyQuiz(q)
	return nil
}

func (m *MemoryStore) GetQuiz(id string) (*services.Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok {
		return nil, nil
	}
	return copyQuiz(q), nil
}

func (m *MemoryStore) UpdateQuiz(q *services.Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.ID] = copyQuiz(q)
	return nil
}

// DeleteQuiz removes the quiz and cascades to its questions, sessions, mail
// templates and pending verification codes.
func (m *MemoryStore) DeleteQuiz(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quizzes[id]; !ok {
		return false, nil
	}
	delete(m.quizzes, id)
	for qid, q := range m.questions {
		if q.QuizID == id {
			delete(m.questions, qid)
		}
	}
	for sid, s := range m.sessions {
		if s.QuizID == id {
			delete(m.sessions, sid)
		}
	}
	for mid, msg := range m.mails {
		if msg.QuizID == id {
			delete(m.mails, mid)
		}
	}
	for key, vc := range m.codes {
		if vc.QuizID == id {
			delete(m.codes, key)
		}
	}
	return true, nil
}

func (m *MemoryStore) ListQuizzes(search string, status services.QuizStatus, page, perPage int) ([]*services.Quiz, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	search = strings.ToLower(strings.TrimSpace(search))
	matched := make([]*services.Quiz, 0, len(m.quizzes))
	for _, q := range m.quizzes {
		if status != "" && q.Status != status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(q.Title), search) {
			continue
		}
		matched = append(matched, q)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	pageItems := paginate(matched, page, perPage)
	out := make([]*services.Quiz, len(pageItems))
	for i, q := range pageItems {
		out[i] = copyQuiz(q)
	}
	return out, total, nil
}

func (m *MemoryStore) AddQuestion(q *services.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.ID] = copyQuestion(q)
	return nil
}

func (m *MemoryStore) GetQuestion(id string) (*services.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return nil, nil
	}
	return copyQuestion(q), nil
}

func (m *MemoryStore) DeleteQuestion(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[id]; !ok {
		return false, nil
	}
	delete(m.questions, id)
	return true, nil
}

func (m *MemoryStore) ListQuestions(quizID string) ([]*services.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*services.Question, 0)
	for _, q := range m.questions {
		if q.QuizID == quizID {
			out = append(out, copyQuestion(q))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// AddSession enforces (quiz, email) uniqueness for addressed sessions.
func (m *MemoryStore) AddSession(s *services.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Email != "" {
		for _, existing := range m.sessions {
			if existing.QuizID == s.QuizID && strings.EqualFold(existing.Email, s.Email) {
				return services.ErrDuplicateRecipient
			}
		}
	}
	m.sessions[s.ID] = copySession(s)
	return nil
}

func (m *MemoryStore) GetSession(id string) (*services.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return copySession(s), nil
}

func (m *MemoryStore) UpdateSession(s *services.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = copySession(s)
	return nil
}

func (m *MemoryStore) DeleteSession(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false, nil
	}
	delete(m.sessions, id)
	return true, nil
}

func (m *MemoryStore) FindSessionByEmail(quizID, email string) (*services.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.QuizID == quizID && s.Email != "" && strings.EqualFold(s.Email, email) {
			return copySession(s), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ListSessions(quizID string, status services.SessionStatus, page, perPage int) ([]*services.Session, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]*services.Session, 0)
	for _, s := range m.sessions {
		if quizID != "" && s.QuizID != quizID {
			continue
		}
		if status != "" && s.Status != status {
			continue
		}
		matched = append(matched, s)
	}
	sortSessions(matched)
	total := len(matched)
	pageItems := paginate(matched, page, perPage)
	out := make([]*services.Session, len(pageItems))
	for i, s := range pageItems {
		out[i] = copySession(s)
	}
	return out, total, nil
}

func (m *MemoryStore) ListSessionsByQuiz(quizID string) ([]*services.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*services.Session, 0)
	for _, s := range m.sessions {
		if s.QuizID == quizID {
			out = append(out, copySession(s))
		}
	}
	sortSessions(out)
	return out, nil
}

func (m *MemoryStore) AddMailMessage(msg *services.MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *msg
	m.mails[msg.ID] = &c
	return nil
}

func (m *MemoryStore) GetMailMessage(id string) (*services.MailMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.mails[id]
	if !ok {
		return nil, nil
	}
	c := *msg
	return &c, nil
}

func (m *MemoryStore) ListMailMessages(quizID string) ([]*services.MailMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*services.MailMessage, 0)
	for _, msg := range m.mails {
		if msg.QuizID == quizID {
			c := *msg
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpsertVerificationCode(vc *services.VerificationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *vc
	m.codes[codeKey(vc.QuizID, vc.Email)] = &c
	return nil
}

func (m *MemoryStore) GetVerificationCode(quizID, email string) (*services.VerificationCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vc, ok := m.codes[codeKey(quizID, email)]
	if !ok {
		return nil, nil
	}
	c := *vc
	return &c, nil
}

func (m *MemoryStore) DeleteVerificationCode(quizID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.codes, codeKey(quizID, email))
	return nil
}

func (m *MemoryStore) AddUser(u *services.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *u
	c.Roles = append([]string(nil), u.Roles...)
	c.PassHash = append([]byte(nil), u.PassHash...)
	m.users[strings.ToLower(u.Email)] = &c
	return nil
}

func (m *MemoryStore) FindUserByEmail(email string) (*services.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (m *MemoryStore) AddAudit(e services.AuditEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
}

func (m *MemoryStore) ListAudit() []services.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]services.AuditEntry(nil), m.audit...)
}

func sortSessions(sessions []*services.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
}

func paginate[T any](items []T, page, perPage int) []T {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	start := (page - 1) * perPage
	if start >= len(items) {
		return nil
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
