package bomimport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AnimaI/SMD-Manager/catalog"
	"github.com/AnimaI/SMD-Manager/config"
)

type Status string

const (
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusUnknown   Status = "unknown"
)

const trackerKeyPrefix = "import_job:"

type FailedRow struct {
	CatalogNumber string `json:"digikey_number"`
	Error         string `json:"error"`
}

type JobDetails struct {
	Device          string      `json:"device,omitempty"`
	TotalParts      int         `json:"total_parts"`
	ProcessedParts  int         `json:"processed_parts"`
	SuccessfulParts int         `json:"successful_parts"`
	FailedParts     []FailedRow `json:"failed_parts,omitempty"`
}

// JobState is the externally visible state of one import job.
type JobState struct {
	Status    Status     `json:"status"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message"`
	Details   JobDetails `json:"details"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (s JobState) clone() JobState {
	if s.Details.FailedParts != nil {
		s.Details.FailedParts = append([]FailedRow(nil), s.Details.FailedParts...)
	}
	return s
}

// Finished reports whether the job reached a terminal status.
func (s JobState) Finished() bool {
	return s.Status == StatusCompleted || s.Status == StatusError
}

func UnknownJob() JobState {
	return JobState{Status: StatusUnknown, Message: "Unknown tracking ID"}
}

// Tracker keeps import job states in memory. Writers are the import workers;
// readers are progress polls. When a shared store is configured every state
// change is mirrored there so that other replicas can answer polls.
type Tracker struct {
	mu     sync.RWMutex
	jobs   map[string]*JobState
	ttl    time.Duration
	shared catalog.SharedStore
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewTracker(ttl time.Duration, shared catalog.SharedStore, logger logrus.FieldLogger) *Tracker {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Tracker{
		jobs:   make(map[string]*JobState),
		ttl:    ttl,
		shared: shared,
		logger: logger,
		now:    time.Now,
	}
}

// Start registers a new job in the uploading state.
func (t *Tracker) Start(ctx context.Context, id, message string) {
	t.Update(ctx, id, func(s *JobState) {
		s.Status = StatusUploading
		s.Progress = 0
		s.Message = message
	})
}

// Update applies fn to the job's state, creating the entry if needed.
func (t *Tracker) Update(ctx context.Context, id string, fn func(*JobState)) {
	t.mu.Lock()
	state, ok := t.jobs[id]
	if !ok {
		state = &JobState{Status: StatusUploading}
		t.jobs[id] = state
	}
	fn(state)
	state.UpdatedAt = t.now()
	snapshot := state.clone()
	t.mu.Unlock()

	t.mirror(ctx, id, snapshot)
}

// Progress sets the progress percentage and message of a running job.
func (t *Tracker) Progress(ctx context.Context, id string, progress int, message string) {
	t.Update(ctx, id, func(s *JobState) {
		s.Progress = progress
		s.Message = message
	})
}

// Complete marks the job as finished successfully.
func (t *Tracker) Complete(ctx context.Context, id, message string, failed []FailedRow) {
	t.Update(ctx, id, func(s *JobState) {
		s.Status = StatusCompleted
		s.Progress = 100
		s.Message = message
		s.Details.FailedParts = failed
	})
}

// Fail moves the job to the error state with the given message.
func (t *Tracker) Fail(ctx context.Context, id, message string) {
	t.Update(ctx, id, func(s *JobState) {
		s.Status = StatusError
		s.Message = message
	})
}

// Get returns a copy of the job's state. Jobs unknown locally are looked up in
// the shared store.
func (t *Tracker) Get(ctx context.Context, id string) (JobState, bool) {
	t.mu.RLock()
	state, ok := t.jobs[id]
	var snapshot JobState
	if ok {
		snapshot = state.clone()
	}
	t.mu.RUnlock()
	if ok {
		return snapshot, true
	}

	if t.shared == nil {
		return UnknownJob(), false
	}
	raw, found, err := t.shared.Get(ctx, trackerKeyPrefix+id)
	if err != nil {
		config.LogError(t.logger, "bomimport", "Tracker.Get", "shared store read failed", id, err)
		return UnknownJob(), false
	}
	if !found {
		return UnknownJob(), false
	}
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		config.LogError(t.logger, "bomimport", "Tracker.Get", "undecodable job state", id, err)
		return UnknownJob(), false
	}
	return snapshot, true
}

// Sweep drops jobs whose last update is older than the TTL and returns how
// many were removed.
func (t *Tracker) Sweep() int {
	cutoff := t.now().Add(-t.ttl)
	removed := 0

	t.mu.Lock()
	defer t.mu.Unlock()
	for id, state := range t.jobs {
		if state.UpdatedAt.Before(cutoff) {
			delete(t.jobs, id)
			removed++
		}
	}
	return removed
}

// Run sweeps on every tick until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				t.logger.WithField("removed", n).Debug("swept finished import jobs")
			}
		}
	}
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.jobs)
}

func (t *Tracker) mirror(ctx context.Context, id string, state JobState) {
	if t.shared == nil {
		return
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := t.shared.Set(ctx, trackerKeyPrefix+id, string(raw), t.ttl); err != nil {
		config.LogError(t.logger, "bomimport", "Tracker.mirror", "shared store write failed", id, err)
	}
}
