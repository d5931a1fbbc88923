package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/oraz/quizadmin/internal/api"
	"github.com/oraz/quizadmin/internal/services"
)

// SQLiteStore persists the console state in a single sqlite file. Nested
// values (tags, question options, submissions) live in JSON columns.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

var _ api.Store = (*SQLiteStore)(nil)

func encodeJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeStrings(ns sql.NullString) []string {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		log.Printf("sqlite store: decode string list: %v", err)
		return nil
	}
	return out
}

func decodeOptions(s string) []services.AnswerOption {
	var out []services.AnswerOption
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		log.Printf("sqlite store: decode options: %v", err)
		return nil
	}
	return out
}

func decodeAnswers(ns sql.NullString) []services.Answer {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	var out []services.Answer
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		log.Printf("sqlite store: decode submission: %v", err)
		return nil
	}
	return out
}

func encodeTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func encodeTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: encodeTime(*t), Valid: true}
}

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		log.Printf("sqlite store: decode time %q: %v", s, err)
	}
	return t
}

func decodeTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := decodeTime(ns.String)
	return &t
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func (s *SQLiteStore) AddQuiz(q *services.Quiz) error {
	tags, err := encodeJSON(q.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO quizzes (id, title, description, tags, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		q.ID, q.Title, q.Description, tags, string(q.Status), encodeTime(q.CreatedAt))
	return err
}

func (s *SQLiteStore) GetQuiz(id string) (*services.Quiz, error) {
	row := s.db.QueryRow(`SELECT id, title, description, tags, status, created_at FROM quizzes WHERE id = ?`, id)
	return scanQuiz(row)
}

func scanQuiz(row *sql.Row) (*services.Quiz, error) {
	var q services.Quiz
	var tags sql.NullString
	var status, created string
	err := row.Scan(&q.ID, &q.Title, &q.Description, &tags, &status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	q.Tags = decodeStrings(tags)
	q.Status = services.QuizStatus(status)
	q.CreatedAt = decodeTime(created)
	return &q, nil
}

func (s *SQLiteStore) UpdateQuiz(q *services.Quiz) error {
	tags, err := encodeJSON(q.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE quizzes SET title = ?, description = ?, tags = ?, status = ? WHERE id = ?`,
		q.Title, q.Description, tags, string(q.Status), q.ID)
	return err
}

func (s *SQLiteStore) DeleteQuiz(id string) (bool, error) {
	// Foreign keys cascade to questions, sessions, templates and codes.
	res, err := s.db.Exec(`DELETE FROM quizzes WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) ListQuizzes(search string, status services.QuizStatus, page, perPage int) ([]*services.Quiz, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if search != "" {
		where = append(where, "lower(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(search)+"%")
	}
	if status != "" {
		where = append(where, "status = ?")
		args = append(args, string(status))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM quizzes WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	args = append(args, perPage, (page-1)*perPage)
	rows, err := s.db.Query(`SELECT id, title, description, tags, status, created_at FROM quizzes WHERE `+cond+
		` ORDER BY created_at, id LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*services.Quiz
	for rows.Next() {
		var q services.Quiz
		var tags sql.NullString
		var st, created string
		if err := rows.Scan(&q.ID, &q.Title, &q.Description, &tags, &st, &created); err != nil {
			return nil, 0, err
		}
		q.Tags = decodeStrings(tags)
		q.Status = services.QuizStatus(st)
		q.CreatedAt = decodeTime(created)
		out = append(out, &q)
	}
	return out, total, rows.Err()
}

func (s *SQLiteStore) AddQuestion(q *services.Question) error {
	opts, err := encodeJSON(q.Options)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO questions (id, quiz_id, title, required, ord, options) VALUES (?, ?, ?, ?, ?, ?)`,
		q.ID, q.QuizID, q.Title, q.Required, q.Order, opts.String)
	return err
}

func (s *SQLiteStore) GetQuestion(id string) (*services.Question, error) {
	var q services.Question
	var opts string
	err := s.db.QueryRow(`SELECT id, quiz_id, title, required, ord, options FROM questions WHERE id = ?`, id).
		Scan(&q.ID, &q.QuizID, &q.Title, &q.Required, &q.Order, &opts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	q.Options = decodeOptions(opts)
	return &q, nil
}

func (s *SQLiteStore) DeleteQuestion(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM questions WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) ListQuestions(quizID string) ([]*services.Question, error) {
	rows, err := s.db.Query(`SELECT id, quiz_id, title, required, ord, options FROM questions WHERE quiz_id = ? ORDER BY ord, id`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*services.Question
	for rows.Next() {
		var q services.Question
		var opts string
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Title, &q.Required, &q.Order, &opts); err != nil {
			return nil, err
		}
		q.Options = decodeOptions(opts)
		out = append(out, &q)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddSession(sess *services.Session) error {
	sub, err := encodeJSON(sess.Submission)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO sessions (id, quiz_id, email, status, created_at, mail_sent_at, started_at, completed_at, submission)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.QuizID, sess.Email, string(sess.Status), encodeTime(sess.CreatedAt),
		encodeTimePtr(sess.MailSentAt), encodeTimePtr(sess.StartedAt), encodeTimePtr(sess.CompletedAt), sub)
	if isUniqueViolation(err) {
		return services.ErrDuplicateRecipient
	}
	return err
}

func scanSession(scan func(dest ...any) error) (*services.Session, error) {
	var sess services.Session
	var status, created string
	var mailSent, started, completed, sub sql.NullString
	err := scan(&sess.ID, &sess.QuizID, &sess.Email, &status, &created, &mailSent, &started, &completed, &sub)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess.Status = services.SessionStatus(status)
	sess.CreatedAt = decodeTime(created)
	sess.MailSentAt = decodeTimePtr(mailSent)
	sess.StartedAt = decodeTimePtr(started)
	sess.CompletedAt = decodeTimePtr(completed)
	sess.Submission = decodeAnswers(sub)
	return &sess, nil
}

const sessionCols = `id, quiz_id, email, status, created_at, mail_sent_at, started_at, completed_at, submission`

func (s *SQLiteStore) GetSession(id string) (*services.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id)
	return scanSession(row.Scan)
}

func (s *SQLiteStore) UpdateSession(sess *services.Session) error {
	sub, err := encodeJSON(sess.Submission)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE sessions SET email = ?, status = ?, mail_sent_at = ?, started_at = ?, completed_at = ?, submission = ? WHERE id = ?`,
		sess.Email, string(sess.Status), encodeTimePtr(sess.MailSentAt), encodeTimePtr(sess.StartedAt),
		encodeTimePtr(sess.CompletedAt), sub, sess.ID)
	return err
}

func (s *SQLiteStore) DeleteSession(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) FindSessionByEmail(quizID, email string) (*services.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionCols+` FROM sessions WHERE quiz_id = ? AND email <> '' AND lower(email) = lower(?)`, quizID, email)
	return scanSession(row.Scan)
}

func (s *SQLiteStore) ListSessions(quizID string, status services.SessionStatus, page, perPage int) ([]*services.Session, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if quizID != "" {
		where = append(where, "quiz_id = ?")
		args = append(args, quizID)
	}
	if status != "" {
		where = append(where, "status = ?")
		args = append(args, string(status))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	args = append(args, perPage, (page-1)*perPage)
	rows, err := s.db.Query(`SELECT `+sessionCols+` FROM sessions WHERE `+cond+` ORDER BY created_at, id LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out, err := collectSessions(rows)
	return out, total, err
}

func (s *SQLiteStore) ListSessionsByQuiz(quizID string) ([]*services.Session, error) {
	rows, err := s.db.Query(`SELECT `+sessionCols+` FROM sessions WHERE quiz_id = ? ORDER BY created_at, id`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

func collectSessions(rows *sql.Rows) ([]*services.Session, error) {
	var out []*services.Session
	for rows.Next() {
		sess, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddMailMessage(m *services.MailMessage) error {
	_, err := s.db.Exec(`INSERT INTO mail_messages (id, quiz_id, subject, body) VALUES (?, ?, ?, ?)`,
		m.ID, m.QuizID, m.Subject, m.Body)
	return err
}

func (s *SQLiteStore) GetMailMessage(id string) (*services.MailMessage, error) {
	var m services.MailMessage
	err := s.db.QueryRow(`SELECT id, quiz_id, subject, body FROM mail_messages WHERE id = ?`, id).
		Scan(&m.ID, &m.QuizID, &m.Subject, &m.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLiteStore) ListMailMessages(quizID string) ([]*services.MailMessage, error) {
	rows, err := s.db.Query(`SELECT id, quiz_id, subject, body FROM mail_messages WHERE quiz_id = ? ORDER BY id`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*services.MailMessage
	for rows.Next() {
		var m services.MailMessage
		if err := rows.Scan(&m.ID, &m.QuizID, &m.Subject, &m.Body); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertVerificationCode(vc *services.VerificationCode) error {
	_, err := s.db.Exec(`INSERT INTO verification_codes (quiz_id, email, code, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(quiz_id, email) DO UPDATE SET code = excluded.code, expires_at = excluded.expires_at`,
		vc.QuizID, vc.Email, vc.Code, encodeTime(vc.ExpiresAt))
	return err
}

func (s *SQLiteStore) GetVerificationCode(quizID, email string) (*services.VerificationCode, error) {
	var vc services.VerificationCode
	var expires string
	err := s.db.QueryRow(`SELECT quiz_id, email, code, expires_at FROM verification_codes WHERE quiz_id = ? AND email = ?`, quizID, email).
		Scan(&vc.QuizID, &vc.Email, &vc.Code, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	vc.ExpiresAt = decodeTime(expires)
	return &vc, nil
}

func (s *SQLiteStore) DeleteVerificationCode(quizID, email string) error {
	_, err := s.db.Exec(`DELETE FROM verification_codes WHERE quiz_id = ? AND email = ?`, quizID, email)
	return err
}

func (s *SQLiteStore) AddUser(u *services.User) error {
	roles, err := encodeJSON(u.Roles)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO users (id, email, pass_hash, roles, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PassHash, roles, encodeTime(u.CreatedAt))
	if isUniqueViolation(err) {
		return services.NewConflictError("email exists")
	}
	return err
}

func (s *SQLiteStore) FindUserByEmail(email string) (*services.User, error) {
	var u services.User
	var roles sql.NullString
	var created string
	err := s.db.QueryRow(`SELECT id, email, pass_hash, roles, created_at FROM users WHERE lower(email) = lower(?)`, email).
		Scan(&u.ID, &u.Email, &u.PassHash, &roles, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Roles = decodeStrings(roles)
	u.CreatedAt = decodeTime(created)
	return &u, nil
}

func (s *SQLiteStore) AddAudit(e services.AuditEntry) {
	_, err := s.db.Exec(`INSERT INTO audit_log (ts, actor, action, target, note) VALUES (?, ?, ?, ?, ?)`,
		encodeTime(e.Time), e.Actor, e.Action, e.Target, e.Note)
	if err != nil {
		log.Printf("sqlite store: add audit: %v", err)
	}
}

func (s *SQLiteStore) ListAudit() []services.AuditEntry {
	rows, err := s.db.Query(`SELECT ts, actor, action, target, note FROM audit_log ORDER BY seq`)
	if err != nil {
		log.Printf("sqlite store: list audit: %v", err)
		return nil
	}
	defer rows.Close()
	var out []services.AuditEntry
	for rows.Next() {
		var e services.AuditEntry
		var ts string
		if err := rows.Scan(&ts, &e.Actor, &e.Action, &e.Target, &e.Note); err != nil {
			log.Printf("sqlite store: scan audit: %v", err)
			return out
		}
		e.Time = decodeTime(ts)
		out = append(out, e)
	}
	return out
}
