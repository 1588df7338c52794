package cmd

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"spinframe/pkg/api"

	tea "github.com/charmbracelet/bubbletea"
)

func TestWatchModel_PollsUntilTerminal(t *testing.T) {
	m := newWatchModel(nil, "job-1", time.Millisecond)

	next, cmd := m.Update(jobMsg{job: &api.JobResponse{ID: "job-1", Status: api.StatusProcessing, Progress: 25, CurrentModel: "ring-01", CurrentMaterial: "platinum"}})
	m = next.(watchModel)
	if cmd == nil {
		t.Fatal("expected a tick while the job is processing")
	}
	if view := m.View(); !strings.Contains(view, "rendering ring-01-platinum") {
		t.Errorf("view = %q", view)
	}

	next, cmd = m.Update(jobMsg{job: &api.JobResponse{ID: "job-1", Status: api.StatusCompleted, Progress: 100}})
	m = next.(watchModel)
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.Quit once the job is terminal")
	}
}

func TestWatchModel_ErrorQuits(t *testing.T) {
	m := newWatchModel(nil, "job-1", time.Millisecond)

	next, cmd := m.Update(jobMsg{err: errors.New("boom")})
	if next.(watchModel).err == nil {
		t.Error("expected error to be kept")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.Quit on error")
	}
}

func TestWatchModel_DetachOnQ(t *testing.T) {
	m := newWatchModel(nil, "job-1", time.Millisecond)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if !next.(watchModel).detached {
		t.Error("expected detached")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.Quit")
	}
}

func TestWatchCommand_Plain(t *testing.T) {
	old := watchInterval
	watchInterval = time.Millisecond
	defer func() { watchInterval = old }()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		job := api.JobResponse{ID: "job-1", Status: api.StatusProcessing, Progress: float64(n) * 25, CompletedUnits: int(n), TotalUnits: 4}
		if n >= 4 {
			job.Status = api.StatusCompleted
			job.Progress = 100
		}
		json.NewEncoder(w).Encode(job)
	}))
	defer server.Close()

	output := runCLI(t, server.URL, "watch", "job-1", "--plain")

	if !strings.Contains(output, "processing 25.0%") {
		t.Errorf("expected progress lines, got: %s", output)
	}
	if !strings.Contains(output, "Job job-1 completed") {
		t.Errorf("expected completion summary, got: %s", output)
	}
	if calls.Load() != 4 {
		t.Errorf("polled %d times, want 4", calls.Load())
	}
}

func TestWatchCommand_PlainStopped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.JobResponse{ID: "job-1", Status: api.StatusStopped, Progress: 13.9})
	}))
	defer server.Close()

	output := runCLI(t, server.URL, "watch", "job-1", "--plain")

	if !strings.Contains(output, "Job job-1 stopped at 13.9%") {
		t.Errorf("expected stopped summary, got: %s", output)
	}
}
