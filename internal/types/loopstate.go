package types

import (
	"fmt"
	"time"
)

// LoopStatus is the status of a LoopState. Only Running may transition;
// once any other value is reached the state is frozen.
type LoopStatus int

const (
	Running LoopStatus = iota
	Converged
	Oscillating
	BudgetExceeded
	LoopFailed
	Aborted
)

func (s LoopStatus) String() string {
	switch s {
	case Running:
		return "running"
	case Converged:
		return "converged"
	case Oscillating:
		return "oscillating"
	case BudgetExceeded:
		return "budget_exceeded"
	case LoopFailed:
		return "failed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is anything other than Running.
func (s LoopStatus) IsTerminal() bool { return s != Running }

// LoopState is the immutable record of a single patch-pipeline session.
//
// Invariant: status may only transition from Running to any terminal
// value; once terminal, the state is frozen (WithX methods become no-ops
// that return the receiver unchanged).
type LoopState struct {
	TaskID           string
	Status           LoopStatus
	Iteration        int
	Patches          []Patch
	Budget           Budget
	BestPatch        *Patch
	ConvergenceScore float64
	StartedAt        time.Time
}

// NewLoopState constructs a fresh Running LoopState.
func NewLoopState(taskID string, budget Budget, startedAt time.Time) (LoopState, error) {
	if taskID == "" {
		return LoopState{}, fmt.Errorf("loop_state: task_id must be non-empty")
	}
	return LoopState{
		TaskID:    taskID,
		Status:    Running,
		Budget:    budget,
		StartedAt: startedAt,
	}, nil
}

// frozen reports whether mutation must be rejected (state already
// terminal).
func (s LoopState) frozen() bool { return s.Status.IsTerminal() }

// WithPatch appends a patch and recomputes BestPatch by pass rate. If the
// state is already terminal, returns the receiver unchanged.
func (s LoopState) WithPatch(p Patch, passRate float64) LoopState {
	if s.frozen() {
		return s
	}
	s.Patches = append(append([]Patch(nil), s.Patches...), p)
	if s.BestPatch == nil {
		best := p
		s.BestPatch = &best
		s.ConvergenceScore = passRate
	} else if passRate > s.ConvergenceScore {
		best := p
		s.BestPatch = &best
		s.ConvergenceScore = passRate
	}
	return s
}

// WithIteration returns a copy with the iteration counter advanced.
func (s LoopState) WithIteration(n int) LoopState {
	if s.frozen() {
		return s
	}
	s.Iteration = n
	return s
}

// WithBudget returns a copy with a new budget snapshot.
func (s LoopState) WithBudget(b Budget) LoopState {
	if s.frozen() {
		return s
	}
	s.Budget = b
	return s
}

// WithStatus transitions the state to a terminal status. No-op if already
// terminal (status may only leave Running once).
func (s LoopState) WithStatus(status LoopStatus) LoopState {
	if s.frozen() {
		return s
	}
	s.Status = status
	return s
}
