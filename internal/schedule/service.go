// Package schedule runs time-driven feed refreshes: cron-expression jobs
// ("briefing at 07:00") and fixed-interval jobs, persisted to a JSON store so
// they survive restarts.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	rcron "github.com/robfig/cron/v3"
)

// Job is one scheduled refresh trigger.
type Job struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Kind    string `json:"kind"` // "cron" or "every"
	Expr    string `json:"expr,omitempty"`
	EveryMs int64  `json:"everyMs,omitempty"`
	Enabled bool   `json:"enabled"`

	LastRunAtMs int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
	LastError   string `json:"lastError,omitempty"`
}

// NewCronJob creates an enabled job driven by a cron expression
// (seconds-resolution, robfig syntax).
func NewCronJob(name, expr string) Job {
	return Job{ID: uuid.NewString(), Name: name, Kind: "cron", Expr: expr, Enabled: true}
}

// NewIntervalJob creates an enabled job that fires every interval.
func NewIntervalJob(name string, every time.Duration) Job {
	return Job{ID: uuid.NewString(), Name: name, Kind: "every", EveryMs: every.Milliseconds(), Enabled: true}
}

// Service owns the job store and the timers. OnTrigger is invoked for every
// firing job; its error is recorded on the job but never stops the service.
type Service struct {
	storePath string
	OnTrigger func(job Job) error

	mu      sync.Mutex
	jobs    []Job
	cron    *rcron.Cron
	entries map[string]rcron.EntryID // job ID -> cron entry ID
	cancel  context.CancelFunc
}

func NewService(storePath string) *Service {
	return &Service{
		storePath: storePath,
		entries:   make(map[string]rcron.EntryID),
	}
}

func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel

	if err := s.loadLocked(); err != nil {
		log.Printf("[schedule] load jobs warning: %v", err)
	}

	s.cron = rcron.New(rcron.WithSeconds())
	for i := range s.jobs {
		if s.jobs[i].Enabled && s.jobs[i].Kind == "cron" {
			s.registerLocked(s.jobs[i])
		}
	}
	count := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	go s.tickLoop(runCtx)
	log.Printf("[schedule] started with %d jobs", count)
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	cron := s.cron
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if cron != nil {
		stopCtx := cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			log.Printf("[schedule] stop timeout waiting for running jobs")
		}
	}
	log.Printf("[schedule] stopped")
}

// registerLocked adds a cron-kind job to the cron runner. Caller holds s.mu.
func (s *Service) registerLocked(job Job) {
	id, err := s.cron.AddFunc(job.Expr, func() { s.fire(job.ID) })
	if err != nil {
		log.Printf("[schedule] register %s (%s): %v", job.Name, job.Expr, err)
		return
	}
	s.entries[job.ID] = id
}

// tickLoop drives "every" jobs off a one-second ticker.
func (s *Service) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now().UnixMilli()
			var due []string
			s.mu.Lock()
			for i := range s.jobs {
				job := &s.jobs[i]
				if job.Enabled && job.Kind == "every" && job.EveryMs > 0 &&
					now >= job.LastRunAtMs+job.EveryMs {
					due = append(due, job.ID)
				}
			}
			s.mu.Unlock()
			for _, id := range due {
				s.fire(id)
			}
		case <-ctx.Done():
			return
		}
	}
}

// fire runs one job by id and records the outcome on it.
func (s *Service) fire(id string) {
	s.mu.Lock()
	var job *Job
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			job = &s.jobs[i]
			break
		}
	}
	if job == nil || !job.Enabled {
		s.mu.Unlock()
		return
	}
	snapshot := *job
	trigger := s.OnTrigger
	s.mu.Unlock()

	log.Printf("[schedule] firing %s (%s)", snapshot.Name, snapshot.ID)
	var err error
	if trigger == nil {
		err = fmt.Errorf("no trigger handler set")
	} else {
		err = trigger(snapshot)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jobs {
		if s.jobs[i].ID != id {
			continue
		}
		s.jobs[i].LastRunAtMs = time.Now().UnixMilli()
		if err != nil {
			s.jobs[i].LastStatus = "error"
			s.jobs[i].LastError = err.Error()
			log.Printf("[schedule] job %s error: %v", snapshot.Name, err)
		} else {
			s.jobs[i].LastStatus = "ok"
			s.jobs[i].LastError = ""
		}
		break
	}
	if err := s.saveLocked(); err != nil {
		log.Printf("[schedule] save jobs warning: %v", err)
	}
}

// AddJob appends a job and persists the store. Cron-kind jobs are registered
// immediately when the service is running.
func (s *Service) AddJob(job Job) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = append(s.jobs, job)
	if job.Kind == "cron" && job.Enabled && s.cron != nil {
		s.registerLocked(job)
	}
	if err := s.saveLocked(); err != nil {
		return Job{}, fmt.Errorf("save jobs: %w", err)
	}
	return job, nil
}

func (s *Service) RemoveJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, job := range s.jobs {
		if job.ID != id {
			continue
		}
		if entryID, ok := s.entries[id]; ok && s.cron != nil {
			s.cron.Remove(entryID)
			delete(s.entries, id)
		}
		s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
		if err := s.saveLocked(); err != nil {
			log.Printf("[schedule] save jobs warning: %v", err)
		}
		return true
	}
	return false
}

func (s *Service) ListJobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// EnsureJob adds a cron job by name unless one with that name exists.
// Used to seed configured jobs at startup without duplicating them on every
// restart.
func (s *Service) EnsureJob(name, expr string) error {
	s.mu.Lock()
	for _, job := range s.jobs {
		if job.Name == name {
			s.mu.Unlock()
			return nil
		}
	}
	s.mu.Unlock()
	_, err := s.AddJob(NewCronJob(name, expr))
	return err
}

func (s *Service) loadLocked() error {
	data, err := os.ReadFile(s.storePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &s.jobs)
}

func (s *Service) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.jobs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.storePath, data, 0644)
}
