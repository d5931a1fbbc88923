package services

import (
	"sort"
	"strings"
	"time"
)

// StatisticsStore abstracts the read-only access the aggregator needs.
type StatisticsStore interface {
	GetQuiz(id string) (*Quiz, error)
	ListQuestions(quizID string) ([]*Question, error)
	ListSessionsByQuiz(quizID string) ([]*Session, error)
}

// CompanyClassifier maps a recipient email to a cohort key. The default takes
// the part before '@'; the exact parsing rule is a product decision, so it is
// pluggable.
type CompanyClassifier func(email string) string

func DefaultCompanyClassifier(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return ""
}

// statsFirstYear is where every dashboard series begins.
const statsFirstYear = 2019

// baselineTransitionYear is the one year that has both baseline and live
// data; its live counts are added on top of the baseline. Later years are
// live only, earlier years baseline only.
const baselineTransitionYear = 2023

// yearBaseline holds the historical per-year counts recorded before the
// system tracked sessions. Values are fixed; they are the test oracle for
// MergeYearCounts.
var yearBaseline = map[int]YearCount{
	2019: {Year: 2019, TotalSessions: 92, CompletedSessions: 7},
	2020: {Year: 2020, TotalSessions: 83, CompletedSessions: 8},
	2021: {Year: 2021, TotalSessions: 33, CompletedSessions: 5},
	2022: {Year: 2022, TotalSessions: 44, CompletedSessions: 9},
	2023: {Year: 2023, TotalSessions: 40, CompletedSessions: 11},
}

type YearCount struct {
	Year              int `json:"year"`
	TotalSessions     int `json:"totalSessions"`
	CompletedSessions int `json:"completedSessions"`
}

type OptionCount struct {
	AnswerID string `json:"answerId"`
	Text     string `json:"text"`
	Count    int    `json:"count"`
}

type QuestionStatistics struct {
	QuestionID   string        `json:"questionId"`
	Title        string        `json:"title"`
	Options      []OptionCount `json:"options"`
	AverageScore float64       `json:"averageScore"`
	Responses    int           `json:"responses"`
}

// QuizStatistics is a derived snapshot over a quiz's sessions. It is never
// persisted; every call recomputes it from the current store contents.
type QuizStatistics struct {
	QuizID            string               `json:"quizId"`
	Count             int                  `json:"count"`
	TotalSessions     int                  `json:"totalSessions"`
	CompletedSessions int                  `json:"completedSessions"`
	Questions         []QuestionStatistics `json:"questions"`
	OverallAverage    float64              `json:"overallAverage"`
	SessionsByYear    []YearCount          `json:"sessionsByYear"`
}

type CompanyAverage struct {
	Company      string  `json:"company"`
	AverageScore float64 `json:"averageScore"`
	Count        int     `json:"count"`
}

type CombinedStatistics struct {
	TotalSessions     int         `json:"totalSessions"`
	CompletedSessions int         `json:"completedSessions"`
	SessionsByYear    []YearCount `json:"sessionsByYear"`
}

type StatisticsService struct {
	store    StatisticsStore
	classify CompanyClassifier
	now      func() time.Time
}

func NewStatisticsService(store StatisticsStore) *StatisticsService {
	return &StatisticsService{
		store:    store,
		classify: DefaultCompanyClassifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// MergeYearCounts resolves one year of the sent-vs-completed series from the
// fixed baseline and the live counts:
//
//   - years before 2023 report the baseline alone, live data ignored;
//   - 2023 reports baseline plus live (the transition year holds partial
//     real data);
//   - 2024 onward reports live counts only;
//   - any year newer than currentYear-1 reports zero, whatever the inputs.
func MergeYearCounts(year, currentYear int, live YearCount) YearCount {
	out := YearCount{Year: year}
	if year > currentYear-1 {
		return out
	}
	base, hasBase := yearBaseline[year]
	switch {
	case year < baselineTransitionYear:
		if hasBase {
			out.TotalSessions = base.TotalSessions
			out.CompletedSessions = base.CompletedSessions
		}
	case year == baselineTransitionYear:
		out.TotalSessions = base.TotalSessions + live.TotalSessions
		out.CompletedSessions = base.CompletedSessions + live.CompletedSessions
	default:
		out.TotalSessions = live.TotalSessions
		out.CompletedSessions = live.CompletedSessions
	}
	return out
}

// Snapshot computes the statistics for one quiz. emailFilter, when non-empty,
// restricts the tally/average computations to sessions whose recipient email
// contains the substring; the per-year series always covers all sessions.
func (s *StatisticsService) Snapshot(quizID, emailFilter string) (*QuizStatistics, error) {
	quiz, err := s.store.GetQuiz(quizID)
	if err != nil {
		return nil, err
	}
	if quiz == nil {
		return nil, NewNotFoundError("quiz not found")
	}
	questions, err := s.store.ListQuestions(quizID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessionsByQuiz(quizID)
	if err != nil {
		return nil, err
	}

	completed := make([]*Session, 0, len(sessions))
	matched := make([]*Session, 0, len(sessions))
	for _, sess := range sessions {
		if sess.Status != SessionCompleted {
			continue
		}
		completed = append(completed, sess)
		if emailFilter == "" || strings.Contains(sess.Email, emailFilter) {
			matched = append(matched, sess)
		}
	}

	stats := &QuizStatistics{
		QuizID:            quizID,
		Count:             len(matched),
		TotalSessions:     len(sessions),
		CompletedSessions: len(completed),
		Questions:         buildQuestionStatistics(questions, matched),
		SessionsByYear:    s.sessionsByYear(sessions),
	}
	stats.OverallAverage = overallAverage(stats.Questions)
	return stats, nil
}

// CompanyAverages groups completed sessions by the company derived from the
// recipient email and scores each group like the overall average. emailFilter
// narrows the cohort the same way it does in Snapshot. Sessions without an
// email (or an unclassifiable one) are left out.
func (s *StatisticsService) CompanyAverages(quizID, emailFilter string) ([]CompanyAverage, error) {
	quiz, err := s.store.GetQuiz(quizID)
	if err != nil {
		return nil, err
	}
	if quiz == nil {
		return nil, NewNotFoundError("quiz not found")
	}
	questions, err := s.store.ListQuestions(quizID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessionsByQuiz(quizID)
	if err != nil {
		return nil, err
	}
	groups := map[string][]*Session{}
	for _, sess := range sessions {
		if sess.Status != SessionCompleted {
			continue
		}
		if emailFilter != "" && !strings.Contains(sess.Email, emailFilter) {
			continue
		}
		company := s.classify(sess.Email)
		if company == "" {
			continue
		}
		groups[company] = append(groups[company], sess)
	}
	companies := make([]string, 0, len(groups))
	for c := range groups {
		companies = append(companies, c)
	}
	sort.Strings(companies)
	out := make([]CompanyAverage, 0, len(companies))
	for _, c := range companies {
		qs := buildQuestionStatistics(questions, groups[c])
		out = append(out, CompanyAverage{Company: c, AverageScore: overallAverage(qs), Count: len(groups[c])})
	}
	return out, nil
}

// SetClassifier overrides the email-to-company mapping.
func (s *StatisticsService) SetClassifier(fn CompanyClassifier) {
	if fn != nil {
		s.classify = fn
	}
}

// Combined sums per-quiz snapshots across the selection. Year buckets add up
// as computed per quiz; the baseline merge is not applied a second time. An
// empty selection yields zero totals and an all-zero series.
func (s *StatisticsService) Combined(quizIDs []string) (*CombinedStatistics, error) {
	out := &CombinedStatistics{SessionsByYear: emptyYearSeries(statsFirstYear, s.now().Year())}
	byYear := map[int]*YearCount{}
	for i := range out.SessionsByYear {
		byYear[out.SessionsByYear[i].Year] = &out.SessionsByYear[i]
	}
	for _, id := range quizIDs {
		snap, err := s.Snapshot(id, "")
		if err != nil {
			return nil, err
		}
		out.TotalSessions += snap.TotalSessions
		out.CompletedSessions += snap.CompletedSessions
		for _, yc := range snap.SessionsByYear {
			if bucket, ok := byYear[yc.Year]; ok {
				bucket.TotalSessions += yc.TotalSessions
				bucket.CompletedSessions += yc.CompletedSessions
			}
		}
	}
	return out, nil
}

func (s *StatisticsService) sessionsByYear(sessions []*Session) []YearCount {
	currentYear := s.now().Year()
	live := map[int]YearCount{}
	for _, sess := range sessions {
		yc := live[sess.CreatedAt.Year()]
		yc.TotalSessions++
		live[sess.CreatedAt.Year()] = yc
		if sess.CompletedAt != nil {
			yc = live[sess.CompletedAt.Year()]
			yc.CompletedSessions++
			live[sess.CompletedAt.Year()] = yc
		}
	}
	out := make([]YearCount, 0, currentYear-statsFirstYear+1)
	for year := statsFirstYear; year <= currentYear; year++ {
		out = append(out, MergeYearCounts(year, currentYear, live[year]))
	}
	return out
}

func buildQuestionStatistics(questions []*Question, sessions []*Session) []QuestionStatistics {
	out := make([]QuestionStatistics, 0, len(questions))
	for _, q := range questions {
		qs := QuestionStatistics{QuestionID: q.ID, Title: q.Title}
		counts := map[string]int{}
		weightSum := 0
		for _, sess := range sessions {
			answerID, ok := sess.Answered(q.ID)
			if !ok {
				continue
			}
			opt, ok := q.Option(answerID)
			if !ok {
				continue
			}
			counts[answerID]++
			weightSum += opt.Weight
			qs.Responses++
		}
		for _, opt := range q.Options {
			qs.Options = append(qs.Options, OptionCount{AnswerID: opt.ID, Text: opt.Text, Count: counts[opt.ID]})
		}
		if qs.Responses > 0 && q.MaxWeight() > 0 {
			qs.AverageScore = float64(weightSum) / float64(qs.Responses) / float64(q.MaxWeight()) * 100
		}
		out = append(out, qs)
	}
	return out
}

// overallAverage is the unweighted mean over questions that received at
// least one response.
func overallAverage(questions []QuestionStatistics) float64 {
	sum := 0.0
	n := 0
	for _, q := range questions {
		if q.Responses == 0 {
			continue
		}
		sum += q.AverageScore
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func emptyYearSeries(first, last int) []YearCount {
	out := make([]YearCount, 0, last-first+1)
	for year := first; year <= last; year++ {
		out = append(out, YearCount{Year: year})
	}
	return out
}
