// Package tofs implements the Transactional Overlay Filesystem: a
// union/copy-on-write layer over the real workspace with tombstone
// deletion, materialization for external tools, and a per-transaction IR
// cache with MVCC-style isolation (§4.1).
package tofs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"codenerd-core/internal/diffengine"
	"codenerd-core/internal/logging"
	"codenerd-core/internal/types"
)

// Transaction is the mutable state behind one TOFS session: the overlay,
// tombstones, per-transaction IR cache, file snapshots for drift
// detection, and a lazily built symbol table. A single mutex protects all
// of it; the discipline is lock-once-per-public-method — unexported
// *Locked helpers assume the caller already holds the lock, which avoids
// needing a genuinely reentrant primitive (§9 DESIGN NOTES).
type Transaction struct {
	ID        uuid.UUID
	Root      string
	CreatedAt time.Time

	mu          sync.Mutex
	overlay     map[string]string
	tombstones  map[string]struct{}
	irCache     map[string]IR
	snapshots   map[string]types.FileSnapshot
	symbolCache map[string]string // nil until first BuildSymbolTable
	disposed    bool

	diff  *diffengine.Engine
	parse ParseConfig
	canon *Canonicalizer
}

// Begin starts a new transaction rooted at an on-disk workspace.
func Begin(root string) *Transaction {
	id := uuid.New()
	logging.TOFS("begin transaction %s at %s", id, root)
	return &Transaction{
		ID:         id,
		Root:       root,
		CreatedAt:  time.Now(),
		overlay:    map[string]string{},
		tombstones: map[string]struct{}{},
		irCache:    map[string]IR{},
		snapshots:  map[string]types.FileSnapshot{},
		diff:       diffengine.New(),
		parse:      DefaultParseConfig(),
		canon:      NewCanonicalizer(root),
	}
}

func (t *Transaction) checkAlive() error {
	if t.disposed {
		return newErr(KindSecurity, "", errTransactionDisposed)
	}
	return nil
}

var errTransactionDisposed = &disposedErr{}

type disposedErr struct{}

func (*disposedErr) Error() string { return "transaction already committed or rolled back" }

// Exists reports whether path is visible through the overlay/disk union.
func (t *Transaction) Exists(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.existsLocked(path)
}

func (t *Transaction) existsLocked(path string) bool {
	path = t.canon.Normalize(path)
	if _, tomb := t.tombstones[path]; tomb {
		return false
	}
	if _, ok := t.overlay[path]; ok {
		return true
	}
	_, err := os.Stat(filepath.Join(t.Root, path))
	return err == nil
}

// Read resolves path in order: tombstone -> NotFound; overlay -> overlaid
// content; disk -> on-disk content. The disk step resolves symlinks and
// enforces the workspace jail (§4.1 Path canonicalization).
func (t *Transaction) Read(path string) (string, error) {
	if err := types.ValidatePath(path); err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkAlive(); err != nil {
		return "", err
	}
	path = t.canon.Normalize(path)
	if _, tomb := t.tombstones[path]; tomb {
		return "", newErr(KindNotFound, path, nil)
	}
	if content, ok := t.overlay[path]; ok {
		return content, nil
	}
	full, rerr := t.canon.ResolveOnDisk(path)
	if rerr != nil {
		return "", rerr
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", newErr(KindNotFound, path, err)
	}
	return string(data), nil
}

// Write places content in the overlay and resurrects path if it was
// tombstoned.
func (t *Transaction) Write(path, content string) error {
	if err := types.ValidatePath(path); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkAlive(); err != nil {
		return err
	}
	path = t.canon.Normalize(path)
	delete(t.tombstones, path)
	t.overlay[path] = content
	t.invalidateSymbolCacheLocked()
	logging.TOFSDebug("write %s (%d bytes)", path, len(content))
	return nil
}

// Delete tombstones path and evicts any overlay entry. Disk is untouched.
func (t *Transaction) Delete(path string) error {
	if err := types.ValidatePath(path); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkAlive(); err != nil {
		return err
	}
	path = t.canon.Normalize(path)
	delete(t.overlay, path)
	t.tombstones[path] = struct{}{}
	t.invalidateSymbolCacheLocked()
	logging.TOFSDebug("delete %s", path)
	return nil
}

// List returns the union of disk traversal and overlay keys minus
// tombstones, optionally filtered by prefix/suffix, sorted for
// determinism.
func (t *Transaction) List(prefix, suffix string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := map[string]struct{}{}
	for p := range t.overlay {
		seen[p] = struct{}{}
	}
	err := filepath.Walk(t.Root, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(t.Root, p)
		if rerr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		seen[rel] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		if _, tomb := t.tombstones[p]; tomb {
			continue
		}
		if prefix != "" && !strings.HasPrefix(p, prefix) {
			continue
		}
		if suffix != "" && !strings.HasSuffix(p, suffix) {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// GetModifiedFiles returns overlay paths whose content differs from disk
// (or that have no disk counterpart).
func (t *Transaction) GetModifiedFiles() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for p, content := range t.overlay {
		disk, err := os.ReadFile(filepath.Join(t.Root, p))
		if err != nil || string(disk) != content {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// GetDeletedFiles returns tombstoned paths that exist on disk.
func (t *Transaction) GetDeletedFiles() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for p := range t.tombstones {
		if _, err := os.Stat(filepath.Join(t.Root, p)); err == nil {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// GetDiff produces a FileChange per overlaid/tombstoned path, classified
// Create/Modify/Delete as appropriate.
func (t *Transaction) GetDiff() ([]types.FileChange, error) {
	t.mu.Lock()
	paths := map[string]struct{}{}
	for p := range t.overlay {
		paths[p] = struct{}{}
	}
	for p := range t.tombstones {
		paths[p] = struct{}{}
	}
	overlaySnapshot := make(map[string]string, len(t.overlay))
	for p, c := range t.overlay {
		overlaySnapshot[p] = c
	}
	tombSnapshot := make(map[string]struct{}, len(t.tombstones))
	for p := range t.tombstones {
		tombSnapshot[p] = struct{}{}
	}
	root := t.Root
	engine := t.diff
	t.mu.Unlock()

	var out []types.FileChange
	for p := range paths {
		diskContent, diskErr := os.ReadFile(filepath.Join(root, p))
		hasDisk := diskErr == nil

		_, isTomb := tombSnapshot[p]
		overlayContent, inOverlay := overlaySnapshot[p]

		var oldPtr, newPtr *string
		switch {
		case isTomb && hasDisk:
			s := string(diskContent)
			oldPtr = &s
		case inOverlay && !hasDisk:
			newPtr = &overlayContent
		case inOverlay && hasDisk && string(diskContent) != overlayContent:
			s := string(diskContent)
			oldPtr = &s
			newPtr = &overlayContent
		default:
			continue
		}

		fc, err := engine.ComputeFileChange(p, oldPtr, newPtr)
		if err != nil {
			return nil, err
		}
		out = append(out, fc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Snapshot records the current on-disk identity of path for later drift
// detection.
func (t *Transaction) Snapshot(path string) error {
	path = t.canon.Normalize(path)
	info, err := os.Stat(filepath.Join(t.Root, path))
	if err != nil {
		return newErr(KindNotFound, path, err)
	}
	data, err := os.ReadFile(filepath.Join(t.Root, path))
	if err != nil {
		return newErr(KindNotFound, path, err)
	}
	sum := sha256.Sum256(data)
	snap, err := types.NewFileSnapshot(path, info.ModTime().UnixNano(), info.Size(), hex.EncodeToString(sum[:]))
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshots[path] = snap
	return nil
}

// CheckDrift compares a previously recorded snapshot against the file's
// current on-disk hash. A mismatch is an ExternalDrift error and the
// caller must abort the transaction (§4.1 Failure semantics, §8 scenario
//3).
func (t *Transaction) CheckDrift(path string) error {
	path = t.canon.Normalize(path)
	t.mu.Lock()
	snap, ok := t.snapshots[path]
	t.mu.Unlock()
	if !ok {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(t.Root, path))
	if err != nil {
		return newErr(KindExternalDrift, path, err)
	}
	sum := sha256.Sum256(data)
	current := hex.EncodeToString(sum[:])
	if current != snap.SHA256 {
		return newErr(KindExternalDrift, path, nil)
	}
	return nil
}

// GetOrParseIR returns the cached IR for path if present, else parses
// content under the circuit breaker described in §4.1 and caches the
// result. Never returns a nil/zero-variant-less IR.
func (t *Transaction) GetOrParseIR(ctx context.Context, path, content string) (IR, error) {
	path = t.canon.Normalize(path)
	t.mu.Lock()
	if cached, ok := t.irCache[path]; ok {
		t.mu.Unlock()
		return cached, nil
	}
	cfg := t.parse
	t.mu.Unlock()

	ir := parseIR(ctx, cfg, path, []byte(content))

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		// Transaction ended while parsing ran off-lock; drop the result.
		return ir, nil
	}
	t.irCache[path] = ir
	t.invalidateSymbolCacheLocked()
	return ir, nil
}

func (t *Transaction) invalidateSymbolCacheLocked() {
	t.symbolCache = nil
}

// SymbolTable lazily builds (on first call after invalidation) and returns
// a defensive copy of the FQN -> path projection over the current IR
// cache.
func (t *Transaction) SymbolTable() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.symbolCache == nil {
		table := map[string]string{}
		for path, ir := range t.irCache {
			for fqn, p := range ir.SymbolOf(path) {
				table[fqn] = p
			}
		}
		t.symbolCache = table
	}
	out := make(map[string]string, len(t.symbolCache))
	for k, v := range t.symbolCache {
		out[k] = v
	}
	return out
}

// Dispose discards the IR cache and snapshots, making them unreachable
// (§8 testable property: after commit/rollback, ir_cache and snapshots are
// unreachable).
func (t *Transaction) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.irCache = nil
	t.snapshots = nil
	t.symbolCache = nil
	t.disposed = true
}

// Commit writes every overlaid path to disk and removes every tombstoned
// path, then disposes the transaction. Called on loop acceptance or
// convergence (§4.4 "Begin Txn ... commit").
func (t *Transaction) Commit() error {
	t.mu.Lock()
	if err := t.checkAlive(); err != nil {
		t.mu.Unlock()
		return err
	}
	overlay := make(map[string]string, len(t.overlay))
	for p, c := range t.overlay {
		overlay[p] = c
	}
	tombstones := make([]string, 0, len(t.tombstones))
	for p := range t.tombstones {
		tombstones = append(tombstones, p)
	}
	root := t.Root
	t.mu.Unlock()

	for _, p := range tombstones {
		full := filepath.Join(root, p)
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return newErr(KindDiskFull, p, err)
		}
	}
	for p, content := range overlay {
		full := filepath.Join(root, p)
		if dir := filepath.Dir(full); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return newErr(KindDiskFull, p, err)
			}
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return newErr(KindDiskFull, p, err)
		}
	}

	logging.TOFS("commit transaction %s: %d written, %d deleted", t.ID, len(overlay), len(tombstones))
	t.Dispose()
	return nil
}

// Rollback discards the overlay and tombstones without touching disk,
// then disposes the transaction. Called on oscillation, budget
// exhaustion, external drift, or any uncaught iteration error.
func (t *Transaction) Rollback() {
	logging.TOFS("rollback transaction %s", t.ID)
	t.mu.Lock()
	t.overlay = nil
	t.tombstones = nil
	t.mu.Unlock()
	t.Dispose()
}
