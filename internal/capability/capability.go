// Package capability defines the narrow external collaborator interfaces
// named in §6: LLM, Sandbox, and HCG. The core never imports a concrete
// LLM SDK, sandbox runner, or graph-index client — only these interfaces,
// injected at the session boundary. Mirrors the teacher's
// internal/core.LLMClient pattern: a minimal interface a consumer needs,
// not a full SDK surface.
package capability

import (
	"context"

	"codenerd-core/internal/types"
)

// LLM is the sole interface through which the pipeline reaches a language
// model. A concrete implementation adapts a specific provider's SDK.
type LLM interface {
	// GeneratePatch proposes a multi-file patch for task given the current
	// content of each path in scope and the feedback accumulated from the
	// previous iteration (empty on the first iteration).
	GeneratePatch(ctx context.Context, task string, paths []string, content map[string]string, feedback string) (types.Patch, error)
}

// LintResult is the outcome of Sandbox.RunLinter.
type LintResult struct {
	Score    float64
	Errors   []string
	Warnings []string
}

// TestResult is the outcome of Sandbox.ExecuteTests.
type TestResult struct {
	PassRate float64
	Passed   int
	Failed   int
	Errors   []string
	Coverage float64
}

// CoverageResult is the outcome of Sandbox.MeasureCoverage.
type CoverageResult struct {
	Branch    float64
	Line      float64
	Condition float64
	Uncovered []string
}

// FlakinessResult is the outcome of Sandbox.DetectFlakiness.
type FlakinessResult struct {
	Ratio       float64
	FailedCount int
	IsFlaky     bool
}

// Sandbox is the narrow interface to a sandboxed syntax/lint/type/build/
// test runner (§6).
type Sandbox interface {
	ValidateSyntax(ctx context.Context, code, lang string) error
	RunLinter(ctx context.Context, patch types.Patch) (LintResult, error)
	RunTypeCheck(ctx context.Context, patch types.Patch) error
	Build(ctx context.Context, patch types.Patch) error
	ExecuteTests(ctx context.Context, patch types.Patch) (TestResult, error)
	MeasureCoverage(ctx context.Context, test, target string) (CoverageResult, error)
	DetectFlakiness(ctx context.Context, test string, iterations int) (FlakinessResult, error)
}

// RenameAction classifies why a rename-without-caller-update rejection
// occurred (§4.4 S5, §8 scenario 6).
type RenameAction int

const (
	RenameActionNone RenameAction = iota
	RenameActionUpdateCallersFirst
	RenameActionSeparateFromSignature
)

// RenameCheckResult is the outcome of HCG-assisted rename validation.
type RenameCheckResult struct {
	Passed       bool
	MissingFiles []string
	Action       RenameAction
}

// HCG is the narrow interface to the external Hierarchical Code Graph
// index and query engine (§6).
type HCG interface {
	QueryScope(ctx context.Context, task string, maxFiles int) ([]string, error)
	FindCallers(ctx context.Context, fqn, version string) ([]string, error)
	ExtractContract(ctx context.Context, fqn, version string) (types.ValidationResult, error)
	DetectRenames(ctx context.Context, patch types.Patch) (map[string]string, error)
	IncrementalUpdate(ctx context.Context, patch types.Patch) (bool, error)
	VerifyArchitecture(ctx context.Context, patch types.Patch) (types.ValidationResult, error)
	VerifySecurity(ctx context.Context, patch types.Patch) (types.ValidationResult, error)
	VerifyIntegrity(ctx context.Context, patch types.Patch) (types.ValidationResult, error)
}
