package pipeline

import (
	"context"
	"sync"

	"codenerd-core/internal/capability"
	"codenerd-core/internal/types"
)

// fakeLLM returns the next patch in Patches on each GeneratePatch call,
// recording every call's feedback for assertions.
type fakeLLM struct {
	mu        sync.Mutex
	Patches   []types.Patch
	idx       int
	Feedbacks []string
	Err       error
}

func (f *fakeLLM) GeneratePatch(ctx context.Context, task string, paths []string, content map[string]string, feedback string) (types.Patch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Feedbacks = append(f.Feedbacks, feedback)
	if f.Err != nil {
		return types.Patch{}, f.Err
	}
	if f.idx >= len(f.Patches) {
		return f.Patches[len(f.Patches)-1], nil
	}
	p := f.Patches[f.idx]
	f.idx++
	return p, nil
}

// fakeSandbox passes everything by default; fields let a test inject a
// specific failure at a specific step.
type fakeSandbox struct {
	LintScore     float64
	LintErr       error
	TypeCheckErr  error
	BuildErr      error
	SyntaxErr     error
	TestPassRates []float64
	testIdx       int
	TestErr       error
}

func newFakeSandbox() *fakeSandbox {
	return &fakeSandbox{LintScore: 1.0, TestPassRates: []float64{1.0}}
}

func (s *fakeSandbox) ValidateSyntax(ctx context.Context, code, lang string) error { return s.SyntaxErr }

func (s *fakeSandbox) RunLinter(ctx context.Context, patch types.Patch) (capability.LintResult, error) {
	if s.LintErr != nil {
		return capability.LintResult{}, s.LintErr
	}
	return capability.LintResult{Score: s.LintScore}, nil
}

func (s *fakeSandbox) RunTypeCheck(ctx context.Context, patch types.Patch) error { return s.TypeCheckErr }

func (s *fakeSandbox) Build(ctx context.Context, patch types.Patch) error { return s.BuildErr }

func (s *fakeSandbox) ExecuteTests(ctx context.Context, patch types.Patch) (capability.TestResult, error) {
	if s.TestErr != nil {
		return capability.TestResult{}, s.TestErr
	}
	rate := 1.0
	if s.testIdx < len(s.TestPassRates) {
		rate = s.TestPassRates[s.testIdx]
	} else if len(s.TestPassRates) > 0 {
		rate = s.TestPassRates[len(s.TestPassRates)-1]
	}
	s.testIdx++
	passed := int(rate * 10)
	return capability.TestResult{PassRate: rate, Passed: passed, Failed: 10 - passed}, nil
}

func (s *fakeSandbox) MeasureCoverage(ctx context.Context, test, target string) (capability.CoverageResult, error) {
	return capability.CoverageResult{}, nil
}

func (s *fakeSandbox) DetectFlakiness(ctx context.Context, test string, iterations int) (capability.FlakinessResult, error) {
	return capability.FlakinessResult{}, nil
}

// fakeHCG answers scope/rename/spec queries from fixed fields so tests
// can drive each pipeline step deterministically.
type fakeHCG struct {
	ScopePaths     []string
	ScopeErr       error
	Callers        map[string][]string
	Renames        map[string]string
	ArchViolations []types.Violation
	SecViolations  []types.Violation
	IntViolations  []types.Violation
	UpdateErr      error
}

func newFakeHCG(paths ...string) *fakeHCG {
	return &fakeHCG{ScopePaths: paths, Callers: map[string][]string{}}
}

func (h *fakeHCG) QueryScope(ctx context.Context, task string, maxFiles int) ([]string, error) {
	return h.ScopePaths, h.ScopeErr
}

func (h *fakeHCG) FindCallers(ctx context.Context, fqn, version string) ([]string, error) {
	return h.Callers[fqn], nil
}

func (h *fakeHCG) ExtractContract(ctx context.Context, fqn, version string) (types.ValidationResult, error) {
	return types.ValidationResult{Passed: true}, nil
}

func (h *fakeHCG) DetectRenames(ctx context.Context, patch types.Patch) (map[string]string, error) {
	return h.Renames, nil
}

func (h *fakeHCG) IncrementalUpdate(ctx context.Context, patch types.Patch) (bool, error) {
	if h.UpdateErr != nil {
		return false, h.UpdateErr
	}
	return true, nil
}

func (h *fakeHCG) VerifyArchitecture(ctx context.Context, patch types.Patch) (types.ValidationResult, error) {
	return types.ValidationResult{Passed: len(h.ArchViolations) == 0, Violations: h.ArchViolations}, nil
}

func (h *fakeHCG) VerifySecurity(ctx context.Context, patch types.Patch) (types.ValidationResult, error) {
	return types.ValidationResult{Passed: len(h.SecViolations) == 0, Violations: h.SecViolations}, nil
}

func (h *fakeHCG) VerifyIntegrity(ctx context.Context, patch types.Patch) (types.ValidationResult, error) {
	return types.ValidationResult{Passed: len(h.IntViolations) == 0, Violations: h.IntViolations}, nil
}

var (
	_ capability.LLM     = (*fakeLLM)(nil)
	_ capability.Sandbox = (*fakeSandbox)(nil)
	_ capability.HCG     = (*fakeHCG)(nil)
)
