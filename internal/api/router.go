package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/oraz/quizadmin/internal/middleware"
	"github.com/oraz/quizadmin/internal/services"
)

// Router wires the HTTP surface of the admin console to the service layer.
// Admin routes expect a bearer token attached by middleware.WithAuth;
// respondent routes (start, submit-answer, end) are open so invitation links
// work without an account.
type Router struct {
	store    Store
	quizzes  *services.QuizService
	sessions *services.SessionService
	answers  *services.AnswerService
	stats    *services.StatisticsService
	mail     *services.MailService
	auth     *services.AuthService
}

func NewRouter(store Store, mailer services.Mailer, linkBase string) *Router {
	return &Router{
		store:    store,
		quizzes:  services.NewQuizService(store),
		sessions: services.NewSessionService(store, mailer, linkBase),
		answers:  services.NewAnswerService(store),
		stats:    services.NewStatisticsService(store),
		mail:     services.NewMailService(store, mailer),
		auth:     services.NewAuthService(store, middleware.SignToken),
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/register", rt.handleRegister)            // POST
	mux.HandleFunc("/api/auth/login", rt.handleLogin)                  // POST
	mux.HandleFunc("/api/auth/refresh-tokens", rt.handleRefresh)       // GET
	mux.HandleFunc("/api/auth/logout", rt.handleLogout)                // POST
	mux.HandleFunc("/api/quiz", rt.handleQuizCollection)               // GET, POST
	mux.HandleFunc("/api/quiz/", rt.handleQuizScoped)                  // GET/PUT/DELETE /api/quiz/{id}[/...]
	mux.HandleFunc("/api/statistics/combined", rt.handleCombinedStats) // POST
	mux.HandleFunc("/api/audit", rt.handleAudit)                       // GET
	mux.HandleFunc("/api/sessions", rt.handleSessionCollection)        // GET, POST
	mux.HandleFunc("/api/sessions/", rt.handleSessionScoped)           // /api/sessions/{id}[/...]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service failures onto HTTP statuses. Lifecycle violations
// and duplicate recipients are conflicts; an incomplete submission is the one
// 422 in the API.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrInvalidEmail):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrDuplicateRecipient),
		errors.Is(err, services.ErrIllegalTransition),
		errors.Is(err, services.ErrSessionNotActive),
		errors.Is(err, services.ErrSessionClosed):
		status = http.StatusConflict
	case errors.Is(err, services.ErrIncompleteSubmission):
		status = http.StatusUnprocessableEntity
	default:
		if se, ok := services.AsServiceError(err); ok {
			switch se.Code {
			case services.ErrorInvalid:
				status = http.StatusBadRequest
			case services.ErrorUnauthorized:
				status = http.StatusUnauthorized
			case services.ErrorForbidden:
				status = http.StatusForbidden
			case services.ErrorNotFound:
				status = http.StatusNotFound
			case services.ErrorConflict:
				status = http.StatusConflict
			}
		}
	}
	writeJSON(w, status, map[string]any{"message": err.Error()})
}

func (rt *Router) requireAdmin(w http.ResponseWriter, r *http.Request) (*middleware.Claims, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "unauthorized"})
		return nil, false
	}
	return claims, true
}

// POST /api/auth/register
func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email          string `json:"email"`
		Password       string `json:"password"`
		PasswordRepeat string `json:"passwordRepeat"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := rt.auth.Register(req.Email, req.Password, req.PasswordRepeat)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// POST /api/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := rt.auth.Login(req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/auth/refresh-tokens — reissue a token for the bearer.
func (rt *Router) handleRefresh(w http.ResponseWriter, r *http.Request) {
	claims, ok := rt.requireAdmin(w, r)
	if !ok {
		return
	}
	res, err := rt.auth.Refresh(claims.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/auth/logout — tokens are stateless, so this only confirms.
func (rt *Router) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// GET|POST /api/quiz
func (rt *Router) handleQuizCollection(w http.ResponseWriter, r *http.Request) {
	if _, ok := rt.requireAdmin(w, r); !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		page, perPage := pageParams(r)
		out, err := rt.quizzes.List(r.URL.Query().Get("search"), services.QuizStatus(r.URL.Query().Get("status")), page, perPage)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var req services.CreateQuizRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		quiz, err := rt.quizzes.Create(req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, quiz)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// /api/quiz/{id} and its sub-resources. Reads respondents need (the quiz
// itself, its questions, the verification-code gate) stay open; everything
// that mutates or aggregates is admin-only.
func (rt *Router) handleQuizScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/quiz/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		rt.handleQuizItem(w, r, id)
		return
	}
	switch parts[1] {
	case "questions":
		if len(parts) == 3 && r.Method == http.MethodDelete {
			if _, ok := rt.requireAdmin(w, r); !ok {
				return
			}
			rt.deleteQuestion(w, id, parts[2])
			return
		}
		rt.handleQuestions(w, r, id)
	case "stats":
		if _, ok := rt.requireAdmin(w, r); !ok {
			return
		}
		rt.handleStatistics(w, r, id)
	case "company-averages":
		if _, ok := rt.requireAdmin(w, r); !ok {
			return
		}
		rt.handleCompanyAverages(w, r, id)
	case "mail-messages":
		if _, ok := rt.requireAdmin(w, r); !ok {
			return
		}
		rt.handleMailMessages(w, r, id)
	case "send-verification-code":
		rt.handleSendCode(w, r, id)
	case "verify-code":
		rt.handleVerifyCode(w, r, id)
	case "export":
		if _, ok := rt.requireAdmin(w, r); !ok {
			return
		}
		rt.handleExport(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (rt *Router) handleQuizItem(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		quiz, err := rt.quizzes.Get(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, quiz)
	case http.MethodPatch, http.MethodPut:
		if _, ok := rt.requireAdmin(w, r); !ok {
			return
		}
		var req services.UpdateQuizRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		quiz, err := rt.quizzes.Update(id, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, quiz)
	case http.MethodDelete:
		if _, ok := rt.requireAdmin(w, r); !ok {
			return
		}
		if err := rt.quizzes.Delete(id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET|POST /api/quiz/{id}/questions
func (rt *Router) handleQuestions(w http.ResponseWriter, r *http.Request, quizID string) {
	switch r.Method {
	case http.MethodGet:
		questions, err := rt.quizzes.ListQuestions(quizID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"quizId": quizID, "questions": questions})
	case http.MethodPost:
		if _, ok := rt.requireAdmin(w, r); !ok {
			return
		}
		var req services.CreateQuestionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		q, err := rt.quizzes.AddQuestion(quizID, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (rt *Router) deleteQuestion(w http.ResponseWriter, quizID, questionID string) {
	q, err := rt.store.GetQuestion(questionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if q == nil || q.QuizID != quizID {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "question not found"})
		return
	}
	if err := rt.quizzes.DeleteQuestion(questionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// GET /api/quiz/{id}/stats?searchEmail=...
func (rt *Router) handleStatistics(w http.ResponseWriter, r *http.Request, quizID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := rt.stats.Snapshot(quizID, r.URL.Query().Get("searchEmail"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /api/quiz/{id}/company-averages?searchEmail=
func (rt *Router) handleCompanyAverages(w http.ResponseWriter, r *http.Request, quizID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	avgs, err := rt.stats.CompanyAverages(quizID, r.URL.Query().Get("searchEmail"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quizId": quizID, "companies": avgs})
}

// GET|POST /api/quiz/{id}/mail-messages
func (rt *Router) handleMailMessages(w http.ResponseWriter, r *http.Request, quizID string) {
	switch r.Method {
	case http.MethodGet:
		msgs, err := rt.mail.ListTemplates(quizID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"quizId": quizID, "mailMessages": msgs})
	case http.MethodPost:
		var req struct {
			Subject string `json:"subject"`
			Body    string `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		msg, err := rt.mail.CreateTemplate(quizID, req.Subject, req.Body)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// POST /api/quiz/{id}/send-verification-code
func (rt *Router) handleSendCode(w http.ResponseWriter, r *http.Request, quizID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := rt.mail.SendVerificationCode(quizID, req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// GET /api/quiz/{id}/verify-code?email=&code= (POST with a JSON body works too)
func (rt *Router) handleVerifyCode(w http.ResponseWriter, r *http.Request, quizID string) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	switch r.Method {
	case http.MethodGet:
		req.Email = r.URL.Query().Get("email")
		req.Code = r.URL.Query().Get("code")
	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := rt.mail.VerifyCode(quizID, req.Email, req.Code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// GET /api/quiz/{id}/export — CSV of the quiz's sessions.
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request, quizID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := rt.quizzes.Get(quizID); err != nil {
		writeError(w, err)
		return
	}
	sessions, err := rt.store.ListSessionsByQuiz(quizID)
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := services.ExportSessionsCSV(services.SessionRows(sessions))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=sessions.csv")
	_, _ = w.Write(b)
}

// POST /api/statistics/combined — { "quizIds": ["..."] }
func (rt *Router) handleCombinedStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := rt.requireAdmin(w, r); !ok {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		QuizIDs []string `json:"quizIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	combined, err := rt.stats.Combined(req.QuizIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, combined)
}

// GET /api/audit — the admin action trail, newest last.
func (rt *Router) handleAudit(w http.ResponseWriter, r *http.Request) {
	if _, ok := rt.requireAdmin(w, r); !ok {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": rt.store.ListAudit()})
}

// GET|POST /api/sessions
func (rt *Router) handleSessionCollection(w http.ResponseWriter, r *http.Request) {
	if _, ok := rt.requireAdmin(w, r); !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		page, perPage := pageParams(r)
		out, err := rt.sessions.List(r.URL.Query().Get("quizId"), services.SessionStatus(r.URL.Query().Get("status")), page, perPage)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var req struct {
			QuizID string `json:"quizId"`
			Email  string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sess, err := rt.sessions.Create(req.QuizID, req.Email)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sess)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// /api/sessions/{id} and lifecycle triggers. DELETE and mail dispatch stay
// behind auth; fetch, start, submit-answer and end come from respondents
// holding the link.
func (rt *Router) handleSessionScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			// Open: the take-the-survey page loads its session by link id.
			sess, err := rt.sessions.Get(id)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, sess)
		case http.MethodDelete:
			if _, ok := rt.requireAdmin(w, r); !ok {
				return
			}
			if err := rt.sessions.Delete(id); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	switch parts[1] {
	case "send":
		if _, ok := rt.requireAdmin(w, r); !ok {
			return
		}
		var req struct {
			MailMessageID string `json:"mailMessageId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sess, err := rt.sessions.DispatchMail(id, req.MailMessageID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	case "start":
		sess, err := rt.sessions.Start(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	case "submit-answer":
		var req struct {
			QuestionID string `json:"questionId"`
			AnswerID   string `json:"answerId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := rt.answers.Record(id, req.QuestionID, req.AnswerID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "end":
		sess, err := rt.sessions.Complete(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	default:
		http.NotFound(w, r)
	}
}

func pageParams(r *http.Request) (int, int) {
	page := atoiDefault(r.URL.Query().Get("page"), 1)
	perPage := atoiDefault(r.URL.Query().Get("perPage"), 10)
	return page, perPage
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
