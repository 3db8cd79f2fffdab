package store

import (
	"testing"
	"time"

	"github.com/dohr-michael/selfware-kernel/internal/kernel"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	cp := kernel.TaskCheckpoint{
		TaskID:          "task_abc123",
		TaskDescription: "say hi",
		Status:          kernel.StatusExecuting,
		CurrentStep:     2,
		Messages:        []kernel.Message{{Role: kernel.RoleUser, Content: "hi"}},
	}
	if err := s.Save(cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load("task_abc123")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.CurrentStep != 2 || loaded.TaskDescription != "say hi" {
		t.Fatalf("unexpected loaded checkpoint: %+v", loaded)
	}
	if loaded.UpdatedAt.IsZero() {
		t.Fatal("expected UpdatedAt to be set by Save")
	}
}

func TestSaveRejectsWriteAfterTerminal(t *testing.T) {
	s := newTestStore(t)
	cp := kernel.TaskCheckpoint{TaskID: "t1", Status: kernel.StatusCompleted}
	if err := s.Save(cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cp.Status = kernel.StatusExecuting
	cp.CurrentStep = 5
	if err := s.Save(cp); err != ErrCheckpointTerminal {
		t.Fatalf("expected ErrCheckpointTerminal, got %v", err)
	}
}

func TestLoadForResumeRejectsTerminal(t *testing.T) {
	s := newTestStore(t)
	cp := kernel.TaskCheckpoint{TaskID: "t1", Status: kernel.StatusFailed}
	if err := s.Save(cp); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.LoadForResume("t1"); err != ErrTerminalLoad {
		t.Fatalf("expected ErrTerminalLoad, got %v", err)
	}
}

func TestListOrdersByUpdatedAtDescending(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(kernel.TaskCheckpoint{TaskID: "first", Status: kernel.StatusExecuting}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := s.Save(kernel.TaskCheckpoint{TaskID: "second", Status: kernel.StatusExecuting}); err != nil {
		t.Fatal(err)
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].TaskID != "second" {
		t.Fatalf("expected most recently updated first, got %+v", list)
	}
}

func TestSaveRedactsSecrets(t *testing.T) {
	s := newTestStore(t)
	cp := kernel.TaskCheckpoint{
		TaskID: "secret-task",
		Status: kernel.StatusExecuting,
		Messages: []kernel.Message{
			{Role: kernel.RoleTool, Content: "api_key: \"abcdefghijklmnopqrstuvwxyz12345\""},
		},
	}
	if err := s.Save(cp); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := s.Load("secret-task")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Messages[0].Content == cp.Messages[0].Content {
		t.Fatalf("expected secret redacted on disk, got %q", loaded.Messages[0].Content)
	}
}

func TestShouldPersistAlwaysWhenContinuousWorkDisabled(t *testing.T) {
	p := &PersistencePolicy{ContinuousWorkEnabled: false}
	if !p.ShouldPersist(0) {
		t.Fatal("expected always-persist when continuous work disabled")
	}
}

func TestShouldPersistFirstSaveAfterResumeAlwaysPersists(t *testing.T) {
	p := &PersistencePolicy{ContinuousWorkEnabled: true, IntervalTools: 10, IntervalSecs: 60}
	if !p.ShouldPersist(0) {
		t.Fatal("expected first save after start/resume to always persist")
	}
}

func TestShouldPersistThresholds(t *testing.T) {
	p := &PersistencePolicy{ContinuousWorkEnabled: true, IntervalTools: 5, IntervalSecs: 3600}
	p.RecordPersist(0)

	if p.ShouldPersist(3) {
		t.Fatal("expected no persist before tool-call threshold reached")
	}
	if !p.ShouldPersist(5) {
		t.Fatal("expected persist once tool-call threshold reached")
	}
}

func TestShouldPersistZeroIntervalsMeansAlways(t *testing.T) {
	p := &PersistencePolicy{ContinuousWorkEnabled: true, IntervalTools: 0, IntervalSecs: 0}
	p.RecordPersist(0)
	if !p.ShouldPersist(0) {
		t.Fatal("expected always-persist when both thresholds are zero")
	}
}
