// Package sandboxexec is a concrete capability.Sandbox that shells out to
// the Go toolchain (go vet/build/test) via os/exec, following the
// teacher's internal/shards/tester.runTests direct-execution fallback:
// build a command line, run it with a context timeout, and classify the
// outcome from its combined output. It is the reference adapter wired at
// the cmd/nerd session boundary; other languages plug in alongside it by
// implementing the same capability.Sandbox interface.
package sandboxexec

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"codenerd-core/internal/capability"
	"codenerd-core/internal/logging"
	"codenerd-core/internal/types"
)

// Sandbox runs Go toolchain commands against a materialized copy of a
// patch's files rooted at Dir.
type Sandbox struct {
	Dir     string
	Timeout time.Duration
}

// New constructs a Sandbox rooted at dir, the directory an external tool
// sees a patch materialized into (tofs.Materialization.Dir).
func New(dir string, timeout time.Duration) *Sandbox {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Sandbox{Dir: dir, Timeout: timeout}
}

func (s *Sandbox) run(ctx context.Context, name string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, name, args...)
	cmd.Dir = s.Dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// ValidateSyntax writes code to a scratch file under Dir and runs gofmt -l
// against it; a non-empty gofmt diagnostic or parse failure is a syntax
// error. Non-Go languages are accepted without a check, matching the
// teacher's "unknown framework" permissiveness.
func (s *Sandbox) ValidateSyntax(ctx context.Context, code, lang string) error {
	if lang != "go" {
		return nil
	}
	tmp, err := os.CreateTemp(s.Dir, "syntax-*.go")
	if err != nil {
		return fmt.Errorf("sandboxexec: scratch file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(code); err != nil {
		tmp.Close()
		return fmt.Errorf("sandboxexec: write scratch file: %w", err)
	}
	tmp.Close()

	out, err := s.run(ctx, "gofmt", "-l", tmp.Name())
	if err != nil {
		return fmt.Errorf("sandboxexec: gofmt: %w: %s", err, out)
	}
	if strings.TrimSpace(out) != "" {
		return fmt.Errorf("sandboxexec: syntax/format error: %s", out)
	}
	return nil
}

// RunLinter runs `go vet` over the package directories touched by patch
// and scores 1.0 if it's clean, 0.0 with every vet line as an error
// otherwise. go vet doubles as the teacher's nearest lint-equivalent
// check; a dedicated linter binary (golangci-lint) is not assumed present
// in the sandbox.
func (s *Sandbox) RunLinter(ctx context.Context, patch types.Patch) (capability.LintResult, error) {
	pkgs := packageDirs(patch)
	if len(pkgs) == 0 {
		return capability.LintResult{Score: 1.0}, nil
	}
	out, err := s.run(ctx, "go", append([]string{"vet"}, pkgs...)...)
	if err != nil {
		lines := nonEmptyLines(out)
		return capability.LintResult{Score: 0, Errors: lines}, nil
	}
	return capability.LintResult{Score: 1.0}, nil
}

// RunTypeCheck runs `go build -o /dev/null` over the touched packages;
// Go's compiler performs type checking as part of compilation, so a
// successful build implies the patch type-checks.
func (s *Sandbox) RunTypeCheck(ctx context.Context, patch types.Patch) error {
	pkgs := packageDirs(patch)
	if len(pkgs) == 0 {
		return nil
	}
	out, err := s.run(ctx, "go", append([]string{"build", "-o", os.DevNull}, pkgs...)...)
	if err != nil {
		return fmt.Errorf("sandboxexec: type check failed: %s", out)
	}
	return nil
}

// Build runs `go build ./...` over the whole module rooted at Dir.
func (s *Sandbox) Build(ctx context.Context, patch types.Patch) error {
	out, err := s.run(ctx, "go", "build", "./...")
	if err != nil {
		return fmt.Errorf("sandboxexec: build failed: %s", out)
	}
	return nil
}

// ExecuteTests runs `go test` over the touched packages and parses the
// summary line counts out of its output (the same "combined output,
// substring-classified" approach as the teacher's containsFailure/
// parsePassedTests helpers).
func (s *Sandbox) ExecuteTests(ctx context.Context, patch types.Patch) (capability.TestResult, error) {
	pkgs := packageDirs(patch)
	if len(pkgs) == 0 {
		pkgs = []string{"./..."}
	}
	out, err := s.run(ctx, "go", append([]string{"test"}, pkgs...)...)
	passed, failed := countTestOutcomes(out)
	total := passed + failed
	result := capability.TestResult{Passed: passed, Failed: failed}
	if total == 0 {
		if err != nil {
			result.Errors = nonEmptyLines(out)
			return result, nil
		}
		result.PassRate = 1.0
		return result, nil
	}
	result.PassRate = float64(passed) / float64(total)
	if err != nil {
		result.Errors = nonEmptyLines(out)
	}
	return result, nil
}

// MeasureCoverage runs `go test -cover` for target and parses the single
// "coverage: NN.N% of statements" summary line.
func (s *Sandbox) MeasureCoverage(ctx context.Context, test, target string) (capability.CoverageResult, error) {
	out, _ := s.run(ctx, "go", "test", "-cover", target)
	for _, line := range strings.Split(out, "\n") {
		idx := strings.Index(line, "coverage:")
		if idx < 0 {
			continue
		}
		rest := strings.TrimSpace(line[idx+len("coverage:"):])
		pctStr := strings.TrimSuffix(strings.Fields(rest)[0], "%")
		pct, perr := strconv.ParseFloat(pctStr, 64)
		if perr == nil {
			return capability.CoverageResult{Line: pct / 100.0}, nil
		}
	}
	return capability.CoverageResult{}, nil
}

// DetectFlakiness runs `go test target` iterations times (a run fails on
// a non-zero exit or a "FAIL" in its output) and reports the failure
// ratio across runs (§4.4/§6 flakiness detection).
func (s *Sandbox) DetectFlakiness(ctx context.Context, target string, iterations int) (capability.FlakinessResult, error) {
	if iterations <= 0 {
		iterations = 1
	}
	failed := 0
	for i := 0; i < iterations; i++ {
		out, err := s.run(ctx, "go", "test", target)
		if err != nil || strings.Contains(out, "FAIL") {
			failed++
		}
	}
	ratio := float64(failed) / float64(iterations)
	logging.Get(logging.CategoryPipeline).Debug("flakiness for %s: %d/%d runs failed", target, failed, iterations)
	return capability.FlakinessResult{Ratio: ratio, FailedCount: failed, IsFlaky: failed > 0 && failed < iterations}, nil
}

// packageDirs reduces a patch's touched Go files to their unique
// containing-directory import paths, relative to Dir ("./pkg/sub").
func packageDirs(patch types.Patch) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, fc := range patch.Files {
		if filepath.Ext(fc.Path) != ".go" {
			continue
		}
		dir := filepath.Dir(fc.Path)
		rel := "./" + filepath.ToSlash(dir)
		if dir == "." {
			rel = "./"
		}
		if _, ok := seen[rel]; ok {
			continue
		}
		seen[rel] = struct{}{}
		out = append(out, rel)
	}
	return out
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

// countTestOutcomes tallies `--- PASS:`/`--- FAIL:` lines from `go test
// -v`-style output; plain (non -v) output with no per-test lines falls
// back to a single pass/fail verdict handled by the caller.
func countTestOutcomes(out string) (passed, failed int) {
	for _, l := range strings.Split(out, "\n") {
		t := strings.TrimSpace(l)
		switch {
		case strings.HasPrefix(t, "--- PASS:"):
			passed++
		case strings.HasPrefix(t, "--- FAIL:"):
			failed++
		}
	}
	return passed, failed
}

var _ capability.Sandbox = (*Sandbox)(nil)
