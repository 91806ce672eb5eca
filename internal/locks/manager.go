package locks

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"codenerd-core/internal/logging"
	"codenerd-core/internal/types"
)

// ErrKind is the closed set of lock-manager error kinds (§7).
type ErrKind int

const (
	ErrLockConflict ErrKind = iota
	ErrLockExpired
	ErrDriftDetected
)

// LockError carries a conflict or drift finding back to the caller.
type LockError struct {
	Kind     ErrKind
	Path     string
	Conflict *types.Conflict
}

func (e *LockError) Error() string {
	switch e.Kind {
	case ErrLockConflict:
		return "locks: conflict on " + e.Path
	case ErrDriftDetected:
		return "locks: drift detected on " + e.Path
	default:
		return "locks: expired lock on " + e.Path
	}
}

// Manager coordinates soft locks over a Store backend.
type Manager struct {
	store Store
	now   func() time.Time
}

// NewManager constructs a Manager over the given backend.
func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

func sha256Hex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// sweepExpired removes path's lock if it has expired, per "expired locks
// are silently swept before the check" (§4.2).
func (m *Manager) sweepExpired(path string) {
	lock, ok := m.store.Get(path)
	if !ok {
		return
	}
	if lock.Expired(m.now()) {
		logging.LocksDebug("sweeping expired lock on %s (agent=%s)", path, lock.AgentID)
		m.store.Delete(path)
	}
}

// Acquire records a new lock if none exists, succeeds idempotently for the
// lock's own holder, and otherwise fails with a Conflict(ConcurrentEdit).
func (m *Manager) Acquire(agentID, path string, kind types.LockKind, diskContent string, ttl time.Duration) (types.SoftLock, error) {
	m.sweepExpired(path)

	if existing, ok := m.store.Get(path); ok {
		if existing.AgentID == agentID {
			logging.LocksDebug("idempotent re-acquire by %s on %s", agentID, path)
			return existing, nil
		}
		conflict := types.Conflict{
			ID:         uuid.NewString(),
			FilePath:   path,
			AgentA:     existing.AgentID,
			AgentB:     agentID,
			Kind:       types.ConcurrentEdit,
			DetectedAt: m.now(),
		}
		logging.Locks("lock conflict on %s between %s and %s", path, existing.AgentID, agentID)
		return types.SoftLock{}, &LockError{Kind: ErrLockConflict, Path: path, Conflict: &conflict}
	}

	lock := types.SoftLock{
		FilePath:   path,
		AgentID:    agentID,
		AcquiredAt: m.now(),
		FileHash:   sha256Hex(diskContent),
		Kind:       kind,
		TTL:        ttl,
	}
	m.store.Put(lock)
	logging.Locks("lock acquired by %s on %s (kind=%d)", agentID, path, kind)
	return lock, nil
}

// Release removes agentID's lock on path, if it is the current holder.
func (m *Manager) Release(agentID, path string) {
	if existing, ok := m.store.Get(path); ok && existing.AgentID == agentID {
		m.store.Delete(path)
		logging.LocksDebug("lock released by %s on %s", agentID, path)
	}
}

// DriftResult is returned by DetectDrift.
type DriftResult struct {
	Drifted  bool
	OldHash  string
	NewHash  string
}

// DetectDrift is read-only: it never mutates the lock. It compares the
// lock's recorded hash against the current content's hash.
func (m *Manager) DetectDrift(path, currentContent string) (DriftResult, bool) {
	lock, ok := m.store.Get(path)
	if !ok {
		return DriftResult{}, false
	}
	current := sha256Hex(currentContent)
	if current != lock.FileHash {
		return DriftResult{Drifted: true, OldHash: lock.FileHash, NewHash: current}, true
	}
	return DriftResult{Drifted: false, OldHash: lock.FileHash, NewHash: current}, true
}

// ActiveLocksByPath groups every non-expired lock by path, used by the
// coordinator's conflict detection (§4.5).
func (m *Manager) ActiveLocksByPath() map[string][]types.SoftLock {
	out := map[string][]types.SoftLock{}
	now := m.now()
	m.store.Range(func(l types.SoftLock) bool {
		if !l.Expired(now) {
			out[l.FilePath] = append(out[l.FilePath], l)
		}
		return true
	})
	return out
}

// ReleaseAll drops every lock held by agentID, used on agent shutdown.
func (m *Manager) ReleaseAll(agentID string) {
	var toRelease []string
	m.store.Range(func(l types.SoftLock) bool {
		if l.AgentID == agentID {
			toRelease = append(toRelease, l.FilePath)
		}
		return true
	})
	for _, p := range toRelease {
		m.store.Delete(p)
	}
}
