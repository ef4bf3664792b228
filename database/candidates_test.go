package database

import (
	"strings"
	"testing"
)

func TestCandidateQuery(t *testing.T) {
	eventID := uint(7)

	tests := []struct {
		name     string
		eventID  *uint
		contains []string
		excludes []string
		args     int
	}{
		{
			name:     "global",
			contains: []string{"FROM users u", "u.embedding IS NOT NULL", "length(u.embedding) > 0", "ORDER BY u.id ASC"},
			excludes: []string{"event_registrations"},
			args:     0,
		},
		{
			name:     "event scoped",
			eventID:  &eventID,
			contains: []string{"JOIN event_registrations er ON er.user_id = u.id", "er.event_id = ?"},
			args:     1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := CandidateQuery(tt.eventID).ToSql()
			if err != nil {
				t.Fatalf("ToSql failed: %v", err)
			}
			for _, s := range tt.contains {
				if !strings.Contains(sql, s) {
					t.Errorf("query %q missing %q", sql, s)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(sql, s) {
					t.Errorf("query %q should not contain %q", sql, s)
				}
			}
			if len(args) != tt.args {
				t.Errorf("args = %v, want %d", args, tt.args)
			}
		})
	}
}

func TestPhotosByEventQuery(t *testing.T) {
	sql, args, err := PhotosByEventQuery(3, true).ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}
	if !strings.Contains(sql, "NOT EXISTS") || len(args) != 1 || args[0] != uint(3) {
		t.Errorf("unexpected query %q %v", sql, args)
	}

	sql, _, _ = PhotosByEventQuery(3, false).ToSql()
	if strings.Contains(sql, "NOT EXISTS") {
		t.Errorf("unfiltered query should not exclude tagged photos: %q", sql)
	}
}
