package store

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// pairingRecord is one sender's pairing state on one channel.
type pairingRecord struct {
	Channel    string `json:"channel"`
	ChatID     string `json:"chatId"`
	Kind       string `json:"kind"`
	Code       string `json:"code"`
	Approved   bool   `json:"approved"`
	RequestedAt int64 `json:"requestedAt"`
}

// FilePairingStore persists pairing records to a single JSON file, following
// the same atomic temp-file+fsync+rename pattern as internal/bridge.PairStore
// and internal/sessions.Manager.
type FilePairingStore struct {
	mu      sync.RWMutex
	writeMu sync.Mutex
	path    string

	records map[string]*pairingRecord // key: senderID+"|"+channel
}

// NewFilePairingStore loads pairings.json (if present) from dir.
func NewFilePairingStore(dir string) (*FilePairingStore, error) {
	s := &FilePairingStore{records: make(map[string]*pairingRecord)}
	if dir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create pairing state dir: %w", err)
	}
	s.path = filepath.Join(dir, "pairings.json")

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pairings: %w", err)
	}
	var idx map[string]*pairingRecord
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse pairings %s: %w", s.path, err)
	}
	s.records = idx
	return s, nil
}

func pairingKey(senderID, channel string) string {
	return senderID + "|" + channel
}

// IsPaired reports whether senderID has an approved pairing record on channel.
func (s *FilePairingStore) IsPaired(senderID, channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[pairingKey(senderID, channel)]
	return ok && rec.Approved
}

// RequestPairing issues a pairing code for senderID, or returns the existing
// unapproved code if one is already outstanding.
func (s *FilePairingStore) RequestPairing(senderID, channel, chatID, kind string) (string, error) {
	s.mu.Lock()
	key := pairingKey(senderID, channel)
	if rec, ok := s.records[key]; ok && !rec.Approved {
		s.mu.Unlock()
		return rec.Code, nil
	}

	code, err := generatePairingCode()
	if err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("generate pairing code: %w", err)
	}
	s.records[key] = &pairingRecord{
		Channel:     channel,
		ChatID:      chatID,
		Kind:        kind,
		Code:        code,
		RequestedAt: time.Now().UnixMilli(),
	}
	s.mu.Unlock()

	if err := s.save(); err != nil {
		return "", err
	}
	return code, nil
}

// Approve marks the pairing record matching code as approved, returning the
// sender/channel it belongs to. Used by the operator-facing `pairing approve`
// command.
func (s *FilePairingStore) Approve(code string) (senderID, channel string, err error) {
	s.mu.Lock()
	var found *pairingRecord
	var foundKey string
	for key, rec := range s.records {
		if rec.Code == code && !rec.Approved {
			found = rec
			foundKey = key
			break
		}
	}
	if found == nil {
		s.mu.Unlock()
		return "", "", fmt.Errorf("pairing: no pending request for code %q", code)
	}
	found.Approved = true
	channel = found.Channel
	senderID = foundKey[:len(foundKey)-len(found.Channel)-1]
	s.mu.Unlock()

	if err := s.save(); err != nil {
		return "", "", err
	}
	return senderID, channel, nil
}

func (s *FilePairingStore) save() error {
	if s.path == "" {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	data, err := json.MarshalIndent(s.records, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal pairings: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "pairings-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp pairings file: %w", err)
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
		return fmt.Errorf("write temp pairings file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp pairings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename temp pairings file: %w", err)
	}
	cleanup = false
	return nil
}

// generatePairingCode returns a 6-digit numeric code, easy to read aloud or
// type back into a CLI approval command.
func generatePairingCode() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	n := (uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])) % 1000000
	return fmt.Sprintf("%06d", n), nil
}
