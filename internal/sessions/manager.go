package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/goclaw/internal/clock"
)

// Manager is the L2 session store: an in-memory map backed by a single
// sessions.json index file, matching spec §6's filesystem layout
// ("sessions.json — session-store index, top-level object { [sessionKey]: Session }").
//
// Writes go through save, which re-reads the on-disk copy and merges by
// max(updatedAt) before an atomic temp-file+fsync+rename, so concurrent
// writers from different goroutines never regress updatedAt (spec §3
// invariant 2). The whole store shares one file-level write mutex — this is
// the "single writer actor" described in spec §5.
type Manager struct {
	mu       sync.RWMutex
	writeMu  sync.Mutex
	sessions map[string]*Session
	path     string // full path to sessions.json, "" disables persistence
	clock    clock.Clock
}

// NewManager loads sessions.json (if present) from dir and returns a Manager.
func NewManager(dir string, clk clock.Clock) (*Manager, error) {
	if clk == nil {
		clk = clock.Real()
	}
	m := &Manager{
		sessions: make(map[string]*Session),
		clock:    clk,
	}
	if dir == "" {
		return m, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	m.path = filepath.Join(dir, "sessions.json")

	onDisk, err := loadIndex(m.path)
	if err != nil {
		return nil, err
	}
	m.sessions = onDisk
	return m, nil
}

func loadIndex(path string) (map[string]*Session, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return make(map[string]*Session), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session index: %w", err)
	}
	var idx map[string]*Session
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse session index %s: %w", path, err)
	}
	if idx == nil {
		idx = make(map[string]*Session)
	}
	return idx, nil
}

// GetOrCreate returns the session for key, creating it lazily on first
// authorized inbound message (spec §3 Lifecycles — sessions are never deleted).
func (m *Manager) GetOrCreate(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[key]; ok {
		return s
	}
	s := NewSession(key, m.clock.Now())
	m.sessions[key] = s
	return s
}

// Get returns the session for key, or nil if it does not exist.
func (m *Manager) Get(key string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[key]
}

// Mutate applies fn to the session under write lock, advances updatedAt
// (monotonically), and persists. This is the single entry point every
// component should use to change Session fields, so the updatedAt invariant
// holds uniformly (heartbeat's non-mutation rule is enforced by heartbeat
// calling a narrower helper instead of Mutate — see heartbeat package).
func (m *Manager) Mutate(key string, fn func(s *Session)) error {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if !ok {
		s = NewSession(key, m.clock.Now())
		m.sessions[key] = s
	}
	fn(s)
	s.touch(m.clock.Now().UnixMilli())
	m.mu.Unlock()

	return m.save()
}

// New resets a session's sessionId, preserving history metadata, implementing
// the "/new" directive (spec §4.1) and the tombstone lifecycle (spec §3).
func (m *Manager) New(key string) error {
	return m.Mutate(key, func(s *Session) {
		s.SessionID = ""
		s.Primed = false
	})
}

// List returns every session key currently known, for "status"/"nodes.list"-
// style control-plane queries.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.sessions))
	for k := range m.sessions {
		keys = append(keys, k)
	}
	return keys
}

// save snapshots the in-memory index, merges against the on-disk copy by
// max(updatedAt) per session, and writes atomically (temp file + fsync +
// rename), mirroring the teacher's atomic session-file write in
// internal/sessions/manager.go.
func (m *Manager) save() error {
	if m.path == "" {
		return nil
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	onDisk, err := loadIndex(m.path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	merged := make(map[string]*Session, len(m.sessions))
	for k, s := range m.sessions {
		cp := *s
		cp.mergeOnDisk(onDisk[k])
		merged[k] = &cp
		m.sessions[k] = &cp
	}
	// Keep any sessions present on disk but not yet loaded into memory
	// (e.g. written by a sibling process) instead of dropping them.
	for k, s := range onDisk {
		if _, ok := merged[k]; !ok {
			merged[k] = s
			m.sessions[k] = s
		}
	}
	m.mu.Unlock()

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session index: %w", err)
	}

	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, "sessions-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session index: %w", err)
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
		return fmt.Errorf("write temp session index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp session index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		return fmt.Errorf("rename temp session index: %w", err)
	}
	cleanup = false
	return nil
}

// AppendLog appends one NDJSON record to sessions/<sanitized-key>.jsonl — the
// per-session replay/debug log named in spec §6. This log is not the
// authoritative store (sessions.json is); it is append-only and never
// read back by Manager.
func (m *Manager) AppendLog(dir, key string, record any) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, sanitizeFilename(key)+".jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}

func sanitizeFilename(key string) string {
	return strings.ReplaceAll(key, ":", "_")
}
