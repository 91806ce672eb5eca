// Package pipeline implements the 8-step iterative patch pipeline (§4.4):
// Scope -> Safety -> Generate -> Lint/Build/Type -> Semantic Contract ->
// HCG Update -> Spec Validation -> Tests, wrapped in one TOFS transaction
// per task with convergence, oscillation, and budget-exhaustion terminal
// states. Grounded in the teacher's internal/autopoiesis/ouroboros.go
// "Transactional State Machine" loop (proposal -> audit -> simulation ->
// commit, with a retry/feedback cycle and panic recovery), generalized
// from tool generation to multi-file source patches.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"codenerd-core/internal/capability"
	"codenerd-core/internal/config"
	"codenerd-core/internal/logging"
	"codenerd-core/internal/tofs"
	"codenerd-core/internal/types"
)

// Loop owns one patch-pipeline session: the capability handles it was
// injected with at the session boundary (§9 "hold by handle in the
// pipeline, inject at the session boundary") and the tunables from
// config.PipelineConfig.
type Loop struct {
	LLM     capability.LLM
	Sandbox capability.Sandbox
	HCG     capability.HCG
	Config  config.PipelineConfig
	Root    string
}

// NewLoop constructs a Loop over the three capability interfaces and a
// workspace root.
func NewLoop(llm capability.LLM, sandbox capability.Sandbox, hcg capability.HCG, cfg config.PipelineConfig, root string) *Loop {
	return &Loop{LLM: llm, Sandbox: sandbox, HCG: hcg, Config: cfg, Root: root}
}

// IterationResult is the outcome of one pass through S1-S8: a nil Patch
// means the iteration failed before a patch existed (S1-S3); a non-nil
// Patch always carries a terminal per-iteration status (Failed or
// Accepted). Errors are step-tagged and become the next iteration's
// feedback string; Warnings never affect control flow (§4.4, §7).
type IterationResult struct {
	Patch     *types.Patch
	PassRate  float64
	Errors    []string
	Warnings  []string
	LLMCalled bool
	RanTests  bool
}

func (r IterationResult) feedback() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return strings.Join(r.Errors, "\n")
}

// Run drives one full session for taskID/taskDescription to a terminal
// LoopState, inside a single TOFS transaction (§4.4 "Begin Txn ...").
// The only errors Run itself returns are the terminal, not-retryable
// kind named in §4.4 S1 (empty scope), a failure to build the LoopState
// or to commit the transaction, or a genuinely uncaught panic recovered
// below — ordinary capability-call errors are intermediate
// step failures captured in IterationResult.Errors and fed back as the
// next iteration's prompt, never propagated out of Run (§7).
func (l *Loop) Run(ctx context.Context, taskID, taskDescription string, budget types.Budget) (result types.LoopState, err error) {
	state, err := types.NewLoopState(taskID, budget, time.Now())
	if err != nil {
		return state, err
	}

	txn := tofs.Begin(l.Root)
	logging.Pipeline("=== loop start: task=%s txn=%s ===", taskID, txn.ID)
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryPipeline).Error("panic in patch pipeline: %v", r)
			txn.Rollback()
			result = state.WithStatus(types.LoopFailed)
			err = fmt.Errorf("pipeline: panic: %v", r)
		}
	}()

	feedback := ""
	for {
		iterStart := time.Now()
		iterResult, terminalErr := l.runIteration(ctx, txn, taskDescription, feedback)
		if terminalErr != nil {
			logging.Get(logging.CategoryPipeline).Error("iteration %d: terminal error: %v", state.Iteration, terminalErr)
			txn.Rollback()
			return state.WithStatus(types.LoopFailed), terminalErr
		}

		b := state.Budget.WithIteration(1).WithWallClock(time.Since(iterStart))
		if iterResult.LLMCalled {
			b = b.WithLLMCalls(1)
		}
		if iterResult.RanTests {
			b = b.WithTestRuns(1)
		}
		state = state.WithBudget(b)
		feedback = iterResult.feedback()

		for _, w := range iterResult.Warnings {
			logging.Get(logging.CategoryPipeline).Warn("iteration %d: %s", state.Iteration, w)
		}

		if iterResult.Patch != nil {
			state = state.WithPatch(*iterResult.Patch, iterResult.PassRate)
		}
		state = state.WithIteration(state.Iteration + 1)

		// Terminal checks run in §4.4 order: convergence, then oscillation,
		// then the acceptance short-cut, then budget exhaustion. Both
		// history checks look at the full patch sequence, so an
		// oscillating-but-currently-passing patch rolls back instead of
		// being committed by the short-cut.
		if n := len(state.Patches); n >= 2 {
			last := state.Patches[n-1]
			prev := state.Patches[n-2]
			if last.Status == types.Accepted && HasConverged(prev, last, l.Config.ConvergenceThreshold) {
				logging.Pipeline("iteration %d: converged (diff ratio below threshold)", state.Iteration)
				if cerr := txn.Commit(); cerr != nil {
					return state.WithStatus(types.LoopFailed), cerr
				}
				return state.WithStatus(types.Converged), nil
			}
		}

		if IsOscillating(state.Patches, l.Config.OscillationWindowSize, l.Config.OscillationSimilarityThreshold) {
			logging.Pipeline("iteration %d: oscillation detected, rolling back", state.Iteration)
			txn.Rollback()
			return state.WithStatus(types.Oscillating), nil
		}

		if iterResult.Patch != nil && iterResult.Patch.Status == types.Accepted {
			logging.Pipeline("iteration %d: patch accepted, committing", state.Iteration)
			if cerr := txn.Commit(); cerr != nil {
				return state.WithStatus(types.LoopFailed), cerr
			}
			return state.WithStatus(types.Converged), nil
		}

		if state.Budget.IsExceeded() {
			logging.Pipeline("iteration %d: budget exceeded (%v), rolling back", state.Iteration, state.Budget.ExceededDimensions())
			txn.Rollback()
			return state.WithStatus(types.BudgetExceeded), nil
		}
	}
}

// runIteration executes S1 through S8 once. A non-nil error here is the
// terminal, non-retryable class (currently only EmptyScopeError); every
// other failure is folded into the returned IterationResult.
func (l *Loop) runIteration(ctx context.Context, txn *tofs.Transaction, taskDescription, feedback string) (IterationResult, error) {
	// S1: Scope selection.
	paths, err := l.HCG.QueryScope(ctx, taskDescription, l.Config.MaxFilesInScope)
	if err != nil {
		return IterationResult{Errors: []string{stepErr(StepScope, err).Error()}}, nil
	}
	if len(paths) == 0 {
		return IterationResult{}, &EmptyScopeError{TaskID: taskDescription}
	}

	// S2: Safety filters.
	paths, err = ApplySafetyFilters(paths, l.Config.ForbiddenPathPatterns)
	if err != nil {
		return IterationResult{Errors: []string{stepErr(StepSafety, err).Error()}}, nil
	}
	if len(paths) == 0 {
		return IterationResult{Errors: []string{stepErr(StepSafety, fmt.Errorf("every candidate path was filtered out")).Error()}}, nil
	}

	// S3: LLM patch generation.
	content := map[string]string{}
	for _, p := range paths {
		c, rerr := txn.Read(p)
		if rerr != nil {
			if tofs.IsKind(rerr, tofs.KindNotFound) {
				content[p] = ""
				continue
			}
			return IterationResult{Errors: []string{stepErr(StepGenerate, rerr).Error()}}, nil
		}
		content[p] = c
	}

	// The LLM call counts against the budget the moment it is attempted,
	// even when it errors: an erroring adapter must still saturate
	// MaxLLMCalls rather than retry unmetered.
	patch, err := l.LLM.GeneratePatch(ctx, taskDescription, paths, content, feedback)
	if err != nil {
		return IterationResult{LLMCalled: true, Errors: []string{stepErr(StepGenerate, err).Error()}}, nil
	}
	for _, fc := range patch.Files {
		switch fc.Kind {
		case types.Delete:
			if werr := txn.Delete(fc.Path); werr != nil {
				return IterationResult{LLMCalled: true, Errors: []string{stepErr(StepGenerate, werr).Error()}}, nil
			}
		default:
			if werr := txn.Write(fc.Path, fc.NewContent); werr != nil {
				return IterationResult{LLMCalled: true, Errors: []string{stepErr(StepGenerate, werr).Error()}}, nil
			}
			if _, perr := txn.GetOrParseIR(ctx, fc.Path, fc.NewContent); perr != nil {
				logging.Get(logging.CategoryPipeline).Warn("IR parse for %s: %v", fc.Path, perr)
			}
		}
	}

	// S4: Lint / build / type-check.
	var s4Errors []string
	for _, fc := range patch.Files {
		if fc.Kind == types.Delete {
			continue
		}
		if serr := l.Sandbox.ValidateSyntax(ctx, fc.NewContent, languageOf(fc.Path)); serr != nil {
			s4Errors = append(s4Errors, fmt.Sprintf("%s: syntax error: %v", fc.Path, serr))
		}
	}
	if len(s4Errors) == 0 {
		lint, lerr := l.Sandbox.RunLinter(ctx, patch)
		if lerr != nil {
			s4Errors = append(s4Errors, fmt.Sprintf("linter: %v", lerr))
		} else if lint.Score < l.Config.LintPassScore {
			s4Errors = append(s4Errors, lint.Errors...)
			s4Errors = append(s4Errors, fmt.Sprintf("lint score %.2f below threshold %.2f", lint.Score, l.Config.LintPassScore))
		}
	}
	if len(s4Errors) == 0 {
		if terr := l.Sandbox.RunTypeCheck(ctx, patch); terr != nil {
			s4Errors = append(s4Errors, fmt.Sprintf("type check: %v", terr))
		}
	}
	if len(s4Errors) == 0 {
		if berr := l.Sandbox.Build(ctx, patch); berr != nil {
			s4Errors = append(s4Errors, fmt.Sprintf("build: %v", berr))
		}
	}
	if len(s4Errors) > 0 {
		failed := patch.WithStatus(types.Failed)
		return IterationResult{Patch: &failed, LLMCalled: true, Errors: []string{stepErr(StepLintBuildType, fmt.Errorf("%s", strings.Join(s4Errors, "; "))).Error()}}, nil
	}

	// S5: Semantic-contract validation.
	renameCheck, rerr := ValidateSemanticContract(ctx, l.HCG, patch, nil)
	if rerr != nil {
		failed := patch.WithStatus(types.Failed)
		return IterationResult{Patch: &failed, LLMCalled: true, Errors: []string{stepErr(StepSemanticContract, rerr).Error()}}, nil
	}
	if !renameCheck.Passed {
		failed := patch.WithStatus(types.Failed)
		msg := fmt.Sprintf("rename validation failed: action=%d missing=%v", renameCheck.Action, renameCheck.MissingFiles)
		return IterationResult{Patch: &failed, LLMCalled: true, Errors: []string{stepErr(StepSemanticContract, fmt.Errorf("%s", msg)).Error()}}, nil
	}

	// S6: HCG incremental update. Failures are warnings, never terminal.
	var warnings []string
	if ok, uerr := l.HCG.IncrementalUpdate(ctx, patch); uerr != nil || !ok {
		warnings = append(warnings, fmt.Sprintf("HCG incremental update failed: %v", uerr))
	}

	// S7: Spec validation (architecture, security, integrity).
	var s7Violations []string
	for _, check := range []struct {
		name string
		fn   func(context.Context, types.Patch) (types.ValidationResult, error)
	}{
		{"architecture", l.HCG.VerifyArchitecture},
		{"security", l.HCG.VerifySecurity},
		{"integrity", l.HCG.VerifyIntegrity},
	} {
		res, verr := check.fn(ctx, patch)
		if verr != nil {
			s7Violations = append(s7Violations, fmt.Sprintf("%s validator error: %v", check.name, verr))
			continue
		}
		if res.HasCritical() {
			for _, v := range res.Violations {
				if v.Severity == types.SeverityCritical {
					s7Violations = append(s7Violations, fmt.Sprintf("%s: %s", check.name, v.Description))
				}
			}
		}
	}
	if len(s7Violations) > 0 {
		failed := patch.WithStatus(types.Failed)
		return IterationResult{Patch: &failed, LLMCalled: true, Errors: []string{stepErr(StepSpecValidation, fmt.Errorf("%s", strings.Join(s7Violations, "; "))).Error()}, Warnings: warnings}, nil
	}

	// S8: Test execution.
	mat, merr := txn.PrepareForExternalTool()
	if merr != nil {
		failed := patch.WithStatus(types.Failed)
		return IterationResult{Patch: &failed, LLMCalled: true, Errors: []string{stepErr(StepTests, merr).Error()}, Warnings: warnings}, nil
	}
	defer mat.Cleanup()

	testResult, terr := l.Sandbox.ExecuteTests(ctx, patch)
	if terr != nil {
		failed := patch.WithStatus(types.Failed)
		return IterationResult{Patch: &failed, LLMCalled: true, Errors: []string{stepErr(StepTests, terr).Error()}, Warnings: warnings, RanTests: true}, nil
	}

	if testResult.PassRate >= 1.0 {
		accepted := patch.WithStatus(types.Accepted)
		return IterationResult{Patch: &accepted, PassRate: testResult.PassRate, LLMCalled: true, Warnings: warnings, RanTests: true}, nil
	}
	failed := patch.WithStatus(types.Failed)
	return IterationResult{
		Patch:     &failed,
		PassRate:  testResult.PassRate,
		Errors:    []string{stepErr(StepTests, fmt.Errorf("pass_rate %.2f, errors=%v", testResult.PassRate, testResult.Errors)).Error()},
		Warnings:  warnings,
		LLMCalled: true,
		RanTests:  true,
	}, nil
}

func languageOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".ts", ".tsx":
		return "typescript"
	case ".js", ".jsx":
		return "javascript"
	case ".rs":
		return "rust"
	case ".java":
		return "java"
	default:
		return "text"
	}
}
