// Package cron implements spec §4.6's cron engine: a small set of named jobs,
// each a cron-expression schedule plus a forced-sync prompt routed through the
// same scheduler/session machinery as any other turn, with bounded retry on
// a failed run.
//
// No concrete teacher source models a cron *engine* — internal/heartbeat's
// per-channel ticker is the closest sibling and this package follows the
// same "small scheduler type driven by config, evaluated against
// internal/clock" shape. Schedule matching itself is delegated to
// adhocore/gronx, already present in the teacher's go.mod for exactly this
// purpose (go.mod's only cron-expression library).
package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/goclaw/internal/clock"
)

// RetryConfig controls backoff on a failed job run.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig matches CronConfig's documented JSON defaults
// (internal/config.CronConfig: 3 retries, 2s base, 30s max).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
}

// Job is one configured cron entry (spec §4.6 cron.add/cron.list fields).
type Job struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Expr       string `json:"expr"`       // standard 5-field cron expression
	SessionKey string `json:"sessionKey"` // forced-sync run target
	Prompt     string `json:"prompt"`
	Enabled    bool   `json:"enabled"`
	LastRunAt  int64  `json:"lastRunAt,omitempty"`
	LastError  string `json:"lastError,omitempty"`
}

// RunFunc executes one forced-sync run for a job, mirroring
// heartbeat.RunFunc's signature so both schedulers can share a caller-side
// adapter over the same scheduler.Scheduler.
type RunFunc func(ctx context.Context, sessionKey, prompt string) (string, error)

// Engine evaluates configured jobs against gronx on a 1-minute tick and
// invokes RunFunc for every job whose expression matches, retrying failed
// runs per RetryConfig with exponential backoff.
type Engine struct {
	mu      sync.RWMutex
	writeMu sync.Mutex
	path    string
	jobs    map[string]*Job

	run    RunFunc
	retry  RetryConfig
	clock  clock.Clock
	gron   gronx.Gronx
}

// NewEngine loads cron-jobs.json (if present) from dir and constructs an
// Engine ready to Start. run may be nil only in tests that exercise
// CRUD without ticking.
func NewEngine(dir string, run RunFunc, retry RetryConfig) (*Engine, error) {
	e := &Engine{
		jobs:  make(map[string]*Job),
		run:   run,
		retry: retry,
		clock: clock.Real(),
		gron:  gronx.New(),
	}
	if dir == "" {
		return e, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cron state dir: %w", err)
	}
	e.path = filepath.Join(dir, "cron-jobs.json")

	data, err := os.ReadFile(e.path)
	if os.IsNotExist(err) {
		return e, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cron jobs: %w", err)
	}
	var idx map[string]*Job
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse cron jobs %s: %w", e.path, err)
	}
	e.jobs = idx
	return e, nil
}

// Add registers (or replaces) a job and persists the job set.
func (e *Engine) Add(job Job) error {
	if !gronx.IsValid(job.Expr) {
		return fmt.Errorf("cron: invalid expression %q", job.Expr)
	}
	e.mu.Lock()
	e.jobs[job.ID] = &job
	e.mu.Unlock()
	return e.save()
}

// Remove deletes a job by ID and persists the job set.
func (e *Engine) Remove(id string) error {
	e.mu.Lock()
	_, existed := e.jobs[id]
	delete(e.jobs, id)
	e.mu.Unlock()
	if !existed {
		return fmt.Errorf("cron: no job %q", id)
	}
	return e.save()
}

// List returns every configured job.
func (e *Engine) List() []Job {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Job, 0, len(e.jobs))
	for _, j := range e.jobs {
		out = append(out, *j)
	}
	return out
}

// Start evaluates jobs against the wall clock every minute until ctx is
// cancelled. A job matching the current minute runs once, retried up to
// RetryConfig.MaxRetries times with exponential backoff on failure.
func (e *Engine) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// RunNow triggers job id immediately regardless of its schedule, honoring
// the same retry policy as a due tick (spec §4.6 "cron.runNow").
func (e *Engine) RunNow(ctx context.Context, id string) error {
	e.mu.RLock()
	j, ok := e.jobs[id]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("cron: no job %q", id)
	}
	go e.runWithRetry(ctx, j)
	return nil
}

func (e *Engine) tick(ctx context.Context) {
	now := e.clock.Now()
	e.mu.RLock()
	due := make([]*Job, 0)
	for _, j := range e.jobs {
		if !j.Enabled {
			continue
		}
		if ok, err := e.gron.IsDue(j.Expr, now); err == nil && ok {
			due = append(due, j)
		}
	}
	e.mu.RUnlock()

	for _, j := range due {
		go e.runWithRetry(ctx, j)
	}
}

func (e *Engine) runWithRetry(ctx context.Context, j *Job) {
	if e.run == nil {
		return
	}
	delay := e.retry.BaseDelay
	var lastErr error
	for attempt := 0; attempt <= e.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			delay *= 2
			if delay > e.retry.MaxDelay {
				delay = e.retry.MaxDelay
			}
		}
		_, err := e.run(ctx, j.SessionKey, j.Prompt)
		if err == nil {
			e.recordResult(j.ID, e.clock.Now(), "")
			return
		}
		lastErr = err
		slog.Warn("cron job run failed", "job", j.ID, "attempt", attempt, "error", err)
	}
	e.recordResult(j.ID, e.clock.Now(), lastErr.Error())
}

func (e *Engine) recordResult(id string, at time.Time, errMsg string) {
	e.mu.Lock()
	if j, ok := e.jobs[id]; ok {
		j.LastRunAt = at.UnixMilli()
		j.LastError = errMsg
	}
	e.mu.Unlock()
	if err := e.save(); err != nil {
		slog.Warn("cron: failed to persist job result", "job", id, "error", err)
	}
}

func (e *Engine) save() error {
	if e.path == "" {
		return nil
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.RLock()
	data, err := json.MarshalIndent(e.jobs, "", "  ")
	e.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal cron jobs: %w", err)
	}

	dir := filepath.Dir(e.path)
	tmp, err := os.CreateTemp(dir, "cron-jobs-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cron jobs file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp cron jobs file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp cron jobs file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, e.path); err != nil {
		return fmt.Errorf("rename temp cron jobs file: %w", err)
	}
	cleanup = false
	return nil
}
