package services

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"
)

type SessionRow struct {
	SessionID   string
	Email       string
	Status      SessionStatus
	CreatedAt   time.Time
	CompletedAt *time.Time
	Answered    int
}

// ExportSessionsCSV renders a quiz's sessions into CSV for offline analysis.
func ExportSessionsCSV(rows []SessionRow) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"session_id", "email", "status", "created_at", "completed_at", "answered"})
	for _, r := range rows {
		completed := ""
		if r.CompletedAt != nil {
			completed = r.CompletedAt.Format(time.RFC3339)
		}
		rec := []string{
			r.SessionID,
			r.Email,
			string(r.Status),
			r.CreatedAt.Format(time.RFC3339),
			completed,
			strconv.Itoa(r.Answered),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// SessionRows flattens sessions for export.
func SessionRows(sessions []*Session) []SessionRow {
	out := make([]SessionRow, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionRow{
			SessionID:   s.ID,
			Email:       s.Email,
			Status:      s.Status,
			CreatedAt:   s.CreatedAt,
			CompletedAt: s.CompletedAt,
			Answered:    len(s.Submission),
		})
	}
	return out
}
