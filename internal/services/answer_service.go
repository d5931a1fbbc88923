package services

// AnswerStore abstracts persistence operations required by AnswerService.
type AnswerStore interface {
	GetSession(id string) (*Session, error)
	GetQuestion(id string) (*Question, error)
	UpdateSession(s *Session) error
}

// AnswerService records answers into a session's submission while the
// session is IN_PROGRESS. Completion freezes the submission; the service
// never mutates a completed session.
type AnswerService struct {
	store AnswerStore
}

func NewAnswerService(store AnswerStore) *AnswerService {
	return &AnswerService{store: store}
}

// Record upserts the chosen option for a question. Last write wins per
// question; the first-answer order of the submission is preserved.
func (s *AnswerService) Record(sessionID, questionID, answerID string) error {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return NewNotFoundError("session not found")
	}
	switch sess.Status {
	case SessionCompleted:
		return ErrSessionClosed
	case SessionInProgress:
	default:
		return ErrSessionNotActive
	}
	q, err := s.store.GetQuestion(questionID)
	if err != nil {
		return err
	}
	if q == nil || q.QuizID != sess.QuizID {
		return NewNotFoundError("question not found")
	}
	if _, ok := q.Option(answerID); !ok {
		return NewInvalidError("unknown answer option")
	}
	replaced := false
	for i, a := range sess.Submission {
		if a.QuestionID == questionID {
			sess.Submission[i].AnswerID = answerID
			replaced = true
			break
		}
	}
	if !replaced {
		sess.Submission = append(sess.Submission, Answer{QuestionID: questionID, AnswerID: answerID})
	}
	return s.store.UpdateSession(sess)
}
