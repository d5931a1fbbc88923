package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/oraz/quizadmin/internal/api"
	"github.com/oraz/quizadmin/internal/services"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS quizzes (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    tags        JSONB,
    status      TEXT NOT NULL DEFAULT 'DRAFT',
    created_at  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS questions (
    id       TEXT PRIMARY KEY,
    quiz_id  TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
    title    TEXT NOT NULL,
    required BOOLEAN NOT NULL DEFAULT FALSE,
    ord      INTEGER NOT NULL DEFAULT 0,
    options  JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_questions_quiz ON questions(quiz_id);
CREATE TABLE IF NOT EXISTS sessions (
    id           TEXT PRIMARY KEY,
    quiz_id      TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
    email        TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'NOT_STARTED',
    created_at   TIMESTAMPTZ NOT NULL,
    mail_sent_at TIMESTAMPTZ,
    started_at   TIMESTAMPTZ,
    completed_at TIMESTAMPTZ,
    submission   JSONB
);
CREATE INDEX IF NOT EXISTS idx_sessions_quiz ON sessions(quiz_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_quiz_email
    ON sessions(quiz_id, lower(email)) WHERE email <> '';
CREATE TABLE IF NOT EXISTS mail_messages (
    id      TEXT PRIMARY KEY,
    quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
    subject TEXT NOT NULL,
    body    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mail_messages_quiz ON mail_messages(quiz_id);
CREATE TABLE IF NOT EXISTS verification_codes (
    quiz_id    TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
    email      TEXT NOT NULL,
    code       TEXT NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (quiz_id, email)
);
CREATE TABLE IF NOT EXISTS users (
    id         TEXT PRIMARY KEY,
    email      TEXT NOT NULL UNIQUE,
    pass_hash  BYTEA NOT NULL,
    roles      JSONB,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS audit_log (
    seq    BIGSERIAL PRIMARY KEY,
    ts     TIMESTAMPTZ NOT NULL,
    actor  TEXT NOT NULL,
    action TEXT NOT NULL,
    target TEXT NOT NULL DEFAULT '',
    note   TEXT NOT NULL DEFAULT ''
);
`

// PostgresStore persists the console state in PostgreSQL. Same column model
// as the sqlite store with native timestamp and jsonb types.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if _, err := db.Exec(pgSchema); err != nil {
		return nil, fmt.Errorf("ensure postgres schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

var _ api.Store = (*PostgresStore)(nil)

func isPgUniqueViolation(err error) bool {
	var perr *pq.Error
	return errors.As(err, &perr) && perr.Code == "23505"
}

func pgNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func pgTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func pgJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *PostgresStore) AddQuiz(q *services.Quiz) error {
	tags, err := pgJSON(q.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO quizzes (id, title, description, tags, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		q.ID, q.Title, q.Description, tags, string(q.Status), q.CreatedAt.UTC())
	return err
}

func (s *PostgresStore) GetQuiz(id string) (*services.Quiz, error) {
	var q services.Quiz
	var tags []byte
	var status string
	err := s.db.QueryRow(`SELECT id, title, description, tags, status, created_at FROM quizzes WHERE id = $1`, id).
		Scan(&q.ID, &q.Title, &q.Description, &tags, &status, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &q.Tags); err != nil {
			log.Printf("postgres store: decode tags: %v", err)
		}
	}
	q.Status = services.QuizStatus(status)
	return &q, nil
}

func (s *PostgresStore) UpdateQuiz(q *services.Quiz) error {
	tags, err := pgJSON(q.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE quizzes SET title = $1, description = $2, tags = $3, status = $4 WHERE id = $5`,
		q.Title, q.Description, tags, string(q.Status), q.ID)
	return err
}

func (s *PostgresStore) DeleteQuiz(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM quizzes WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *PostgresStore) ListQuizzes(search string, status services.QuizStatus, page, perPage int) ([]*services.Quiz, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	if search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		where = append(where, fmt.Sprintf("lower(title) LIKE $%d", len(args)))
	}
	if status != "" {
		args = append(args, string(status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
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
	query := fmt.Sprintf(`SELECT id, title, description, tags, status, created_at FROM quizzes WHERE %s ORDER BY created_at, id LIMIT $%d OFFSET $%d`,
		cond, len(args)-1, len(args))
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*services.Quiz
	for rows.Next() {
		var q services.Quiz
		var tags []byte
		var st string
		if err := rows.Scan(&q.ID, &q.Title, &q.Description, &tags, &st, &q.CreatedAt); err != nil {
			return nil, 0, err
		}
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &q.Tags); err != nil {
				log.Printf("postgres store: decode tags: %v", err)
			}
		}
		q.Status = services.QuizStatus(st)
		out = append(out, &q)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) AddQuestion(q *services.Question) error {
	opts, err := pgJSON(q.Options)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO questions (id, quiz_id, title, required, ord, options) VALUES ($1, $2, $3, $4, $5, $6)`,
		q.ID, q.QuizID, q.Title, q.Required, q.Order, opts)
	return err
}

func (s *PostgresStore) GetQuestion(id string) (*services.Question, error) {
	var q services.Question
	var opts []byte
	err := s.db.QueryRow(`SELECT id, quiz_id, title, required, ord, options FROM questions WHERE id = $1`, id).
		Scan(&q.ID, &q.QuizID, &q.Title, &q.Required, &q.Order, &opts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(opts, &q.Options); err != nil {
		log.Printf("postgres store: decode options: %v", err)
	}
	return &q, nil
}

func (s *PostgresStore) DeleteQuestion(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *PostgresStore) ListQuestions(quizID string) ([]*services.Question, error) {
	rows, err := s.db.Query(`SELECT id, quiz_id, title, required, ord, options FROM questions WHERE quiz_id = $1 ORDER BY ord, id`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*services.Question
	for rows.Next() {
		var q services.Question
		var opts []byte
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Title, &q.Required, &q.Order, &opts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(opts, &q.Options); err != nil {
			log.Printf("postgres store: decode options: %v", err)
		}
		out = append(out, &q)
	}
	return out, rows.Err()
}

const pgSessionCols = `id, quiz_id, email, status, created_at, mail_sent_at, started_at, completed_at, submission`

func (s *PostgresStore) AddSession(sess *services.Session) error {
	sub, err := pgJSON(sess.Submission)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO sessions (`+pgSessionCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.ID, sess.QuizID, sess.Email, string(sess.Status), sess.CreatedAt.UTC(),
		pgNullTime(sess.MailSentAt), pgNullTime(sess.StartedAt), pgNullTime(sess.CompletedAt), sub)
	if isPgUniqueViolation(err) {
		return services.ErrDuplicateRecipient
	}
	return err
}

func pgScanSession(scan func(dest ...any) error) (*services.Session, error) {
	var sess services.Session
	var status string
	var mailSent, started, completed sql.NullTime
	var sub []byte
	err := scan(&sess.ID, &sess.QuizID, &sess.Email, &status, &sess.CreatedAt, &mailSent, &started, &completed, &sub)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess.Status = services.SessionStatus(status)
	sess.MailSentAt = pgTimePtr(mailSent)
	sess.StartedAt = pgTimePtr(started)
	sess.CompletedAt = pgTimePtr(completed)
	if len(sub) > 0 {
		if err := json.Unmarshal(sub, &sess.Submission); err != nil {
			log.Printf("postgres store: decode submission: %v", err)
		}
	}
	return &sess, nil
}

func (s *PostgresStore) GetSession(id string) (*services.Session, error) {
	row := s.db.QueryRow(`SELECT `+pgSessionCols+` FROM sessions WHERE id = $1`, id)
	return pgScanSession(row.Scan)
}

func (s *PostgresStore) UpdateSession(sess *services.Session) error {
	sub, err := pgJSON(sess.Submission)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE sessions SET email = $1, status = $2, mail_sent_at = $3, started_at = $4, completed_at = $5, submission = $6 WHERE id = $7`,
		sess.Email, string(sess.Status), pgNullTime(sess.MailSentAt), pgNullTime(sess.StartedAt),
		pgNullTime(sess.CompletedAt), sub, sess.ID)
	return err
}

func (s *PostgresStore) DeleteSession(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *PostgresStore) FindSessionByEmail(quizID, email string) (*services.Session, error) {
	row := s.db.QueryRow(`SELECT `+pgSessionCols+` FROM sessions WHERE quiz_id = $1 AND email <> '' AND lower(email) = lower($2)`, quizID, email)
	return pgScanSession(row.Scan)
}

func (s *PostgresStore) ListSessions(quizID string, status services.SessionStatus, page, perPage int) ([]*services.Session, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	if quizID != "" {
		args = append(args, quizID)
		where = append(where, fmt.Sprintf("quiz_id = $%d", len(args)))
	}
	if status != "" {
		args = append(args, string(status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
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
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE %s ORDER BY created_at, id LIMIT $%d OFFSET $%d`,
		pgSessionCols, cond, len(args)-1, len(args))
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out, err := pgCollectSessions(rows)
	return out, total, err
}

func (s *PostgresStore) ListSessionsByQuiz(quizID string) ([]*services.Session, error) {
	rows, err := s.db.Query(`SELECT `+pgSessionCols+` FROM sessions WHERE quiz_id = $1 ORDER BY created_at, id`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgCollectSessions(rows)
}

func pgCollectSessions(rows *sql.Rows) ([]*services.Session, error) {
	var out []*services.Session
	for rows.Next() {
		sess, err := pgScanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddMailMessage(m *services.MailMessage) error {
	_, err := s.db.Exec(`INSERT INTO mail_messages (id, quiz_id, subject, body) VALUES ($1, $2, $3, $4)`,
		m.ID, m.QuizID, m.Subject, m.Body)
	return err
}

func (s *PostgresStore) GetMailMessage(id string) (*services.MailMessage, error) {
	var m services.MailMessage
	err := s.db.QueryRow(`SELECT id, quiz_id, subject, body FROM mail_messages WHERE id = $1`, id).
		Scan(&m.ID, &m.QuizID, &m.Subject, &m.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) ListMailMessages(quizID string) ([]*services.MailMessage, error) {
	rows, err := s.db.Query(`SELECT id, quiz_id, subject, body FROM mail_messages WHERE quiz_id = $1 ORDER BY id`, quizID)
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

func (s *PostgresStore) UpsertVerificationCode(vc *services.VerificationCode) error {
	_, err := s.db.Exec(`INSERT INTO verification_codes (quiz_id, email, code, expires_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (quiz_id, email) DO UPDATE SET code = EXCLUDED.code, expires_at = EXCLUDED.expires_at`,
		vc.QuizID, vc.Email, vc.Code, vc.ExpiresAt.UTC())
	return err
}

func (s *PostgresStore) GetVerificationCode(quizID, email string) (*services.VerificationCode, error) {
	var vc services.VerificationCode
	err := s.db.QueryRow(`SELECT quiz_id, email, code, expires_at FROM verification_codes WHERE quiz_id = $1 AND email = $2`, quizID, email).
		Scan(&vc.QuizID, &vc.Email, &vc.Code, &vc.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vc, nil
}

func (s *PostgresStore) DeleteVerificationCode(quizID, email string) error {
	_, err := s.db.Exec(`DELETE FROM verification_codes WHERE quiz_id = $1 AND email = $2`, quizID, email)
	return err
}

func (s *PostgresStore) AddUser(u *services.User) error {
	roles, err := pgJSON(u.Roles)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO users (id, email, pass_hash, roles, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.PassHash, roles, u.CreatedAt.UTC())
	if isPgUniqueViolation(err) {
		return services.NewConflictError("email exists")
	}
	return err
}

func (s *PostgresStore) FindUserByEmail(email string) (*services.User, error) {
	var u services.User
	var roles []byte
	err := s.db.QueryRow(`SELECT id, email, pass_hash, roles, created_at FROM users WHERE lower(email) = lower($1)`, email).
		Scan(&u.ID, &u.Email, &u.PassHash, &roles, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(roles) > 0 {
		if err := json.Unmarshal(roles, &u.Roles); err != nil {
			log.Printf("postgres store: decode roles: %v", err)
		}
	}
	return &u, nil
}

func (s *PostgresStore) AddAudit(e services.AuditEntry) {
	_, err := s.db.Exec(`INSERT INTO audit_log (ts, actor, action, target, note) VALUES ($1, $2, $3, $4, $5)`,
		e.Time.UTC(), e.Actor, e.Action, e.Target, e.Note)
	if err != nil {
		log.Printf("postgres store: add audit: %v", err)
	}
}

func (s *PostgresStore) ListAudit() []services.AuditEntry {
	rows, err := s.db.Query(`SELECT ts, actor, action, target, note FROM audit_log ORDER BY seq`)
	if err != nil {
		log.Printf("postgres store: list audit: %v", err)
		return nil
	}
	defer rows.Close()
	var out []services.AuditEntry
	for rows.Next() {
		var e services.AuditEntry
		if err := rows.Scan(&e.Time, &e.Actor, &e.Action, &e.Target, &e.Note); err != nil {
			log.Printf("postgres store: scan audit: %v", err)
			return out
		}
		out = append(out, e)
	}
	return out
}
