package services

import (
	"strings"
	"testing"
	"time"
)

func TestExportSessionsCSV(t *testing.T) {
	created := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	done := created.Add(20 * time.Minute)
	rows := SessionRows([]*Session{
		{ID: "S1", Email: "jan@kpo.kz", Status: SessionCompleted, CreatedAt: created, CompletedAt: &done,
			Submission: []Answer{{QuestionID: "QU1", AnswerID: "O1"}}},
		{ID: "S2", Status: SessionNotStarted, CreatedAt: created},
	})
	b, err := ExportSessionsCSV(rows)
	if err != nil {
		t.Fatalf("ExportSessionsCSV error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want header + 2 rows", len(lines))
	}
	if lines[0] != "session_id,email,status,created_at,completed_at,answered" {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "S1,jan@kpo.kz,COMPLETED") || !strings.HasSuffix(lines[1], ",1") {
		t.Fatalf("unexpected first row: %s", lines[1])
	}
	if !strings.Contains(lines[2], "S2,,NOT_STARTED") {
		t.Fatalf("unexpected second row: %s", lines[2])
	}
}
