// Package coordinator implements the Multi-Agent Coordinator (§4.5):
// lifecycle for concurrent agent sessions, round-robin task distribution,
// periodic lock-store synchronization, conflict detection across every
// active lock, and arbitration via C3's three-way merge. Grounded in the
// teacher's internal/session.Spawner (subagent lifecycle under a
// maxActive cap, mutex-guarded registry) generalized from in-process
// subagents to soft-lock-coordinated agent sessions that may be remote.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"codenerd-core/internal/locks"
	"codenerd-core/internal/logging"
	"codenerd-core/internal/types"
)

// AgentSession is a registered participant in the coordinated workspace.
type AgentSession struct {
	ID        string
	Name      string
	StartedAt time.Time
}

// Resolution records how the coordinator disposed of one detected
// conflict.
type Resolution struct {
	Conflict types.Conflict
	Auto     bool
	Merge    locks.MergeResult
}

// Coordinator supervises concurrent agent sessions over a shared
// locks.Manager. Its own bookkeeping (active agents, round-robin cursor)
// is process-local; the lock store beneath it may itself be distributed
// (§4.2), which is how multiple Coordinator instances across processes
// stay consistent with each other.
type Coordinator struct {
	mu           sync.Mutex
	locks        *locks.Manager
	agents       map[string]*AgentSession
	order        []string // insertion order, for round-robin
	nextIdx      int
	syncInterval time.Duration
}

// NewCoordinator constructs a Coordinator over the given lock manager.
// syncInterval governs RunSync's cadence; a non-positive value leaves
// RunSync unusable (callers drive synchronization manually via Sync()).
func NewCoordinator(lockManager *locks.Manager, syncInterval time.Duration) *Coordinator {
	return &Coordinator{
		locks:        lockManager,
		agents:       map[string]*AgentSession{},
		syncInterval: syncInterval,
	}
}

// Spawn registers a new agent session under the coordinator's
// round-robin distribution and conflict detection.
func (c *Coordinator) Spawn(id, name string) *AgentSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := &AgentSession{ID: id, Name: name, StartedAt: time.Now()}
	c.agents[id] = a
	c.order = append(c.order, id)
	logging.Coordinator("spawned agent %s (%s)", id, name)
	return a
}

// Shutdown releases every lock the agent still holds and removes it
// from the coordinator's registry (§4.5 "Shutdown releases every lock
// the agent still holds").
func (c *Coordinator) Shutdown(agentID string) {
	c.locks.ReleaseAll(agentID)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.agents, agentID)
	for i, id := range c.order {
		if id == agentID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	logging.Coordinator("shut down agent %s", agentID)
}

// Assignment maps a task to the agent it was distributed to.
type Assignment struct {
	Task    string
	AgentID string
}

// DistributeTasks hands each task to the next agent in round-robin
// order (§4.5 "distribute tasks round-robin"). Returns an error if no
// agents are registered.
func (c *Coordinator) DistributeTasks(tasks []string) ([]Assignment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.order) == 0 {
		return nil, fmt.Errorf("coordinator: no active agents to distribute tasks to")
	}
	out := make([]Assignment, 0, len(tasks))
	for _, t := range tasks {
		agentID := c.order[c.nextIdx%len(c.order)]
		c.nextIdx++
		out = append(out, Assignment{Task: t, AgentID: agentID})
	}
	return out, nil
}

// DetectConflicts groups every active lock by path and reports a
// ConcurrentEdit conflict for any path with two or more distinct
// holders, recording the first two holders per path (§4.5 "Detect
// conflicts").
func (c *Coordinator) DetectConflicts() []types.Conflict {
	byPath := c.locks.ActiveLocksByPath()

	var conflicts []types.Conflict
	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		holders := byPath[path]
		seen := map[string]struct{}{}
		var distinct []types.SoftLock
		for _, l := range holders {
			if _, ok := seen[l.AgentID]; ok {
				continue
			}
			seen[l.AgentID] = struct{}{}
			distinct = append(distinct, l)
		}
		if len(distinct) < 2 {
			continue
		}
		conflicts = append(conflicts, types.Conflict{
			ID:         fmt.Sprintf("conflict-%s", path),
			FilePath:   path,
			AgentA:     distinct[0].AgentID,
			AgentB:     distinct[1].AgentID,
			Kind:       types.ConcurrentEdit,
			DetectedAt: time.Now(),
		})
	}
	return conflicts
}

// Resolve attempts an automatic three-way merge for conflict; on
// success the conflict is marked auto-resolved, otherwise the caller
// must surface the ManualRequired result to a human or arbitrating
// policy (§4.5 "Resolve").
func (c *Coordinator) Resolve(conflict types.Conflict, base, ours, theirs string) Resolution {
	merge := locks.ThreeWayMerge(base, ours, theirs)
	auto := merge.Strategy == locks.StrategyAuto
	if auto {
		logging.Coordinator("auto-resolved conflict on %s between %s and %s", conflict.FilePath, conflict.AgentA, conflict.AgentB)
	} else {
		logging.Coordinator("conflict on %s between %s and %s requires manual resolution", conflict.FilePath, conflict.AgentA, conflict.AgentB)
	}
	return Resolution{Conflict: conflict, Auto: auto, Merge: merge}
}

// Sync performs one round of conflict detection, auto-resolving every
// conflict it can via Resolve with the given content-lookup function.
// contentFn must return (base, ours, theirs) for a conflict's file path;
// a conflict is skipped (left for the caller to handle) if contentFn
// returns an error.
func (c *Coordinator) Sync(contentFn func(path, agentA, agentB string) (base, ours, theirs string, err error)) []Resolution {
	var out []Resolution
	for _, conflict := range c.DetectConflicts() {
		base, ours, theirs, err := contentFn(conflict.FilePath, conflict.AgentA, conflict.AgentB)
		if err != nil {
			logging.Get(logging.CategoryCoordinator).Warn("sync: cannot load content for %s: %v", conflict.FilePath, err)
			continue
		}
		out = append(out, c.Resolve(conflict, base, ours, theirs))
	}
	return out
}

// RunSync drives Sync on a ticker until ctx is cancelled. Intended to be
// started as a background goroutine by the session root (§4.5 "drive
// periodic state synchronization with the lock store").
func (c *Coordinator) RunSync(ctx context.Context, contentFn func(path, agentA, agentB string) (base, ours, theirs string, err error)) {
	if c.syncInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sync(contentFn)
		}
	}
}

// ActiveAgents returns a snapshot of every currently registered agent
// session, ordered by spawn sequence.
func (c *Coordinator) ActiveAgents() []AgentSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AgentSession, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.agents[id])
	}
	return out
}
