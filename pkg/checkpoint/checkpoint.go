// Package checkpoint implements the checkpoint manager from section
// 4.11: atomic temp-file-plus-rename persistence of progress snapshots,
// one file per checkpoint, with a blake2b checksum guarding against
// partial or corrupted reads and an optional secondary SQL catalog for
// queryable history.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/pyferris/pyferris/internal/config"
	"github.com/pyferris/pyferris/pkg/pferrors"
)

// Checkpoint is a persisted snapshot of an operation's progress.
type Checkpoint struct {
	ID        string            `json:"id"`
	Operation string            `json:"operation"`
	State     map[string]string `json:"state"`
	Progress  float64           `json:"progress"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"`
}

// record is the on-disk envelope: the checkpoint payload plus a
// checksum of its JSON encoding, so a half-written file is detectable.
type record struct {
	Checkpoint Checkpoint `json:"checkpoint"`
	Checksum   string     `json:"checksum"`
}

// Manager persists Checkpoint records as individual files under
// CheckpointDir, honoring an optional per-operation MaxCheckpoints cap.
type Manager struct {
	cfg   config.CheckpointConfig
	log   *slog.Logger
	index *sqlIndex

	mu sync.Mutex
}

// New builds a Manager rooted at cfg.CheckpointDir, creating the
// directory if needed. If cfg.SQLDSN is set, a secondary sqlx/lib-pq
// catalog is opened for queryable checkpoint history; failures there are
// logged and otherwise non-fatal (the file store remains authoritative).
func New(cfg config.CheckpointConfig, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(cfg.CheckpointDir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create dir: %w", err)
	}
	m := &Manager{cfg: cfg, log: log}
	if cfg.SQLDSN != "" {
		idx, err := newSQLIndex(cfg.SQLDSN)
		if err != nil {
			log.Warn("checkpoint: sql catalog unavailable, continuing file-only", "error", err)
		} else {
			m.index = idx
		}
	}
	return m, nil
}

func checksum(c Checkpoint) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(payload)
	return fmt.Sprintf("%x", sum), nil
}

func (m *Manager) fileName(c Checkpoint) string {
	return fmt.Sprintf("%s-%020d-%s.json", sanitize(c.Operation), c.Timestamp.UnixNano(), c.ID)
}

func sanitize(s string) string {
	return strings.ReplaceAll(s, string(filepath.Separator), "_")
}

// SaveCheckpoint writes a new checkpoint for operation, atomically via a
// temp file plus rename within CheckpointDir, then enforces
// MaxCheckpoints by deleting the oldest surplus files for that operation.
func (m *Manager) SaveCheckpoint(operation string, state map[string]string, progress float64, metadata map[string]string) (Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := Checkpoint{
		ID:        uuid.NewString(),
		Operation: operation,
		State:     state,
		Progress:  progress,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}

	sum, err := checksum(c)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: marshal: %w", err)
	}
	rec := record{Checkpoint: c, Checksum: sum}

	payload, err := json.Marshal(rec)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: marshal record: %w", err)
	}

	final := filepath.Join(m.cfg.CheckpointDir, m.fileName(c))
	tmp, err := os.CreateTemp(m.cfg.CheckpointDir, ".tmp-checkpoint-*")
	if err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Checkpoint{}, fmt.Errorf("checkpoint: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Checkpoint{}, fmt.Errorf("checkpoint: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Checkpoint{}, fmt.Errorf("checkpoint: close temp: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return Checkpoint{}, fmt.Errorf("checkpoint: rename: %w", err)
	}

	if m.index != nil {
		if err := m.index.insert(c); err != nil {
			m.log.Warn("checkpoint: sql catalog insert failed", "error", err)
		}
	}

	m.enforceMaxLocked(operation)
	return c, nil
}

func (m *Manager) enforceMaxLocked(operation string) {
	if m.cfg.MaxCheckpoints <= 0 {
		return
	}
	entries, err := m.listFilesLocked(operation)
	if err != nil {
		m.log.Warn("checkpoint: list for eviction failed", "error", err)
		return
	}
	if len(entries) <= m.cfg.MaxCheckpoints {
		return
	}
	// entries are newest-first; drop the oldest surplus.
	for _, e := range entries[m.cfg.MaxCheckpoints:] {
		if err := os.Remove(e.path); err != nil {
			m.log.Warn("checkpoint: evict failed", "file", e.path, "error", err)
		}
	}
}

type fileEntry struct {
	path string
	c    Checkpoint
	ok   bool
}

// listFilesLocked reads every checkpoint file for operation (or all
// operations if empty), sorted newest-first by timestamp. Corrupt files
// (checksum mismatch or decode failure) are skipped and logged, per the
// CheckpointCorrupt recovery policy.
func (m *Manager) listFilesLocked(operation string) ([]fileEntry, error) {
	dirEntries, err := os.ReadDir(m.cfg.CheckpointDir)
	if err != nil {
		return nil, err
	}
	var out []fileEntry
	for _, de := range dirEntries {
		if de.IsDir() || strings.HasPrefix(de.Name(), ".tmp-checkpoint-") {
			continue
		}
		path := filepath.Join(m.cfg.CheckpointDir, de.Name())
		c, err := m.readAndVerify(path)
		if err != nil {
			m.log.Warn("checkpoint: skipping corrupt file", "file", path, "error", err)
			continue
		}
		if operation != "" && c.Operation != operation {
			continue
		}
		out = append(out, fileEntry{path: path, c: c, ok: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].c.Timestamp.After(out[j].c.Timestamp) })
	return out, nil
}

func (m *Manager) readAndVerify(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checkpoint{}, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Checkpoint{}, pferrors.New(pferrors.KindCheckpointCorrupt, "checkpoint.read", err)
	}
	sum, err := checksum(rec.Checkpoint)
	if err != nil {
		return Checkpoint{}, pferrors.New(pferrors.KindCheckpointCorrupt, "checkpoint.read", err)
	}
	if sum != rec.Checksum {
		return Checkpoint{}, pferrors.New(pferrors.KindCheckpointCorrupt, "checkpoint.read", fmt.Errorf("checksum mismatch"))
	}
	return rec.Checkpoint, nil
}

// GetLatestCheckpoint returns the most recent checkpoint for operation,
// or false if none exist.
func (m *Manager) GetLatestCheckpoint(operation string) (Checkpoint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, err := m.listFilesLocked(operation)
	if err != nil {
		return Checkpoint{}, false, err
	}
	if len(entries) == 0 {
		return Checkpoint{}, false, nil
	}
	return entries[0].c, true, nil
}

// ListCheckpoints returns every checkpoint for operation (or all
// operations if empty), sorted newest-first.
func (m *Manager) ListCheckpoints(operation string) ([]Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, err := m.listFilesLocked(operation)
	if err != nil {
		return nil, err
	}
	out := make([]Checkpoint, len(entries))
	for i, e := range entries {
		out[i] = e.c
	}
	return out, nil
}

// Close releases the secondary SQL catalog connection, if any.
func (m *Manager) Close() error {
	if m.index != nil {
		return m.index.close()
	}
	return nil
}
