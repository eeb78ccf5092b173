package schedule

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewCronJob(t *testing.T) {
	job := NewCronJob("briefing", "0 0 7 * * *")
	if job.ID == "" {
		t.Error("job ID should not be empty")
	}
	if job.Kind != "cron" || job.Expr != "0 0 7 * * *" {
		t.Errorf("job = %+v", job)
	}
	if !job.Enabled {
		t.Error("job should be enabled by default")
	}
}

func TestNewIntervalJob(t *testing.T) {
	job := NewIntervalJob("keepalive", time.Minute)
	if job.Kind != "every" || job.EveryMs != 60000 {
		t.Errorf("job = %+v", job)
	}
}

func TestService_AddAndListJobs(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "jobs.json")
	s := NewService(storePath)

	job, err := s.AddJob(NewIntervalJob("refresh", time.Minute))
	if err != nil {
		t.Fatalf("AddJob error: %v", err)
	}
	if job.Name != "refresh" {
		t.Errorf("name = %q, want refresh", job.Name)
	}

	jobs := s.ListJobs()
	if len(jobs) != 1 || jobs[0].Name != "refresh" {
		t.Fatalf("jobs = %v", jobs)
	}

	// Verify persistence
	data, err := os.ReadFile(storePath)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	var stored []Job
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("stored jobs = %d, want 1", len(stored))
	}
}

func TestService_RemoveJob(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "jobs.json"))

	job, _ := s.AddJob(NewIntervalJob("rm-test", time.Second))

	if !s.RemoveJob(job.ID) {
		t.Error("RemoveJob returned false")
	}
	if len(s.ListJobs()) != 0 {
		t.Error("job not removed")
	}
	if s.RemoveJob("nonexistent") {
		t.Error("RemoveJob should return false for nonexistent")
	}
}

func TestService_EnsureJob(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "jobs.json"))

	if err := s.EnsureJob("briefing", "0 0 7 * * *"); err != nil {
		t.Fatalf("EnsureJob error: %v", err)
	}
	if err := s.EnsureJob("briefing", "0 0 7 * * *"); err != nil {
		t.Fatalf("EnsureJob error: %v", err)
	}
	if got := len(s.ListJobs()); got != 1 {
		t.Errorf("jobs = %d, want 1 after duplicate ensure", got)
	}
}

func TestService_FireRecordsOutcome(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "jobs.json"))
	var fired []string
	s.OnTrigger = func(job Job) error {
		fired = append(fired, job.Name)
		return nil
	}

	job, _ := s.AddJob(NewIntervalJob("refresh", time.Minute))
	s.fire(job.ID)

	if len(fired) != 1 || fired[0] != "refresh" {
		t.Fatalf("fired = %v", fired)
	}
	got := s.ListJobs()[0]
	if got.LastStatus != "ok" || got.LastRunAtMs == 0 {
		t.Errorf("job state = %+v, want ok with run timestamp", got)
	}
}

func TestService_FireRecordsError(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "jobs.json"))
	s.OnTrigger = func(Job) error { return os.ErrDeadlineExceeded }

	job, _ := s.AddJob(NewIntervalJob("refresh", time.Minute))
	s.fire(job.ID)

	got := s.ListJobs()[0]
	if got.LastStatus != "error" || got.LastError == "" {
		t.Errorf("job state = %+v, want recorded error", got)
	}
}

func TestService_LoadExistingStore(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "jobs.json")
	first := NewService(storePath)
	if _, err := first.AddJob(NewCronJob("briefing", "0 0 7 * * *")); err != nil {
		t.Fatalf("AddJob error: %v", err)
	}

	second := NewService(storePath)
	second.OnTrigger = func(Job) error { return nil }
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := second.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer second.Stop()

	if got := len(second.ListJobs()); got != 1 {
		t.Errorf("jobs after restart = %d, want 1", got)
	}
}
