package store

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestWriteAndReadEvents(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	e, err := s.WriteEvent("work.assigned", "org/app", 42, "w1", "assigned to worker")
	if err != nil {
		t.Fatalf("WriteEvent failed: %v", err)
	}
	if e.ID == "" {
		t.Error("Event ID should not be empty")
	}

	if _, err := s.WriteEvent("work.completed", "org/app", 42, "w1", ""); err != nil {
		t.Fatalf("WriteEvent failed: %v", err)
	}
	if _, err := s.WriteEvent("pr.merged", "org/app", 7, "", ""); err != nil {
		t.Fatalf("WriteEvent failed: %v", err)
	}

	events, err := s.RecentEvents("", 10)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("Expected 3 events, got %d", len(events))
	}

	// Filter by action
	events, err = s.RecentEvents("pr.merged", 10)
	if err != nil {
		t.Fatalf("RecentEvents with filter failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 pr.merged event, got %d", len(events))
	}
	if events[0].IssueNumber != 7 {
		t.Errorf("Expected issue 7, got %d", events[0].IssueNumber)
	}
}

func TestIssueEvents(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	s.WriteEvent("work.assigned", "org/app", 42, "w1", "")
	s.WriteEvent("work.failed", "org/app", 42, "w1", "boom")
	s.WriteEvent("work.assigned", "org/app", 43, "w2", "")

	events, err := s.IssueEvents(42)
	if err != nil {
		t.Fatalf("IssueEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events for issue 42, got %d", len(events))
	}
	if events[0].Action != "work.assigned" {
		t.Errorf("Expected oldest-first ordering, got %s first", events[0].Action)
	}
}

func TestRecentEvents_LimitDefault(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	for i := 0; i < 60; i++ {
		if _, err := s.WriteEvent("work.assigned", "org/app", i, "w1", ""); err != nil {
			t.Fatalf("WriteEvent failed: %v", err)
		}
	}

	events, err := s.RecentEvents("", 0)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 50 {
		t.Errorf("Expected default limit of 50, got %d", len(events))
	}
}
