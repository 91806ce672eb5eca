package hcg

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"codenerd-core/internal/capability"
	"codenerd-core/internal/logging"
	"codenerd-core/internal/types"
)

// ArchRule flags an import forbidden from a given path prefix, e.g. a
// "domain" layer forbidden from importing "infra" packages.
type ArchRule struct {
	FromPrefix        string
	ForbiddenImport   string
	Description       string
}

// Client implements capability.HCG over an Engine, plus the
// pattern-based spec validators (§4.4 S7) that don't need the fact
// store.
type Client struct {
	engine   *Engine
	archRules []ArchRule
}

var _ capability.HCG = (*Client)(nil)

// NewClient wraps engine with the spec validators. archRules is the
// architecture layering policy (empty disables the check).
func NewClient(engine *Engine, archRules []ArchRule) *Client {
	return &Client{engine: engine, archRules: archRules}
}

// QueryScope ranks every indexed file by how many of task's significant
// words appear in its path or one of its defined symbols, returning the
// top maxFiles paths. This is a deliberately simple scorer: the full-text/
// embedding-based scope selection a production HCG would use lives
// outside this core (§1 "Out of scope... the code-graph indexer").
func (c *Client) QueryScope(ctx context.Context, task string, maxFiles int) ([]string, error) {
	words := significantWords(task)
	if len(words) == 0 || maxFiles <= 0 {
		return nil, nil
	}

	facts, err := c.engine.Facts("file")
	if err != nil {
		return nil, err
	}
	defines, err := c.engine.Facts("defines")
	if err != nil {
		return nil, err
	}
	symbolsByPath := map[string][]string{}
	for _, row := range defines {
		if len(row) == 2 {
			symbolsByPath[row[1]] = append(symbolsByPath[row[1]], row[0])
		}
	}

	type scored struct {
		path  string
		score int
	}
	var ranked []scored
	for _, row := range facts {
		if len(row) != 1 {
			continue
		}
		path := row[0]
		score := 0
		haystack := strings.ToLower(path + " " + strings.Join(symbolsByPath[path], " "))
		for _, w := range words {
			if strings.Contains(haystack, w) {
				score++
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{path, score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) > maxFiles {
		ranked = ranked[:maxFiles]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.path
	}
	return out, nil
}

func significantWords(task string) []string {
	fields := strings.FieldsFunc(strings.ToLower(task), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	})
	var out []string
	for _, f := range fields {
		if len(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}

// FindCallers returns the caller argument of every direct calls(caller,
// fqn) fact. Facts written by IncrementalUpdate carry the calling file's
// path as the caller; facts added directly may carry a caller FQN.
func (c *Client) FindCallers(ctx context.Context, fqn, version string) ([]string, error) {
	rows, err := c.engine.Query(ctx, fmt.Sprintf("calls(Caller, %q)", fqn))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if v, ok := r["Caller"]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// ExtractContract reports whether fqn is defined anywhere in the graph,
// as a ValidationResult so callers can reuse the uniform contract shape
// (§3 SemanticContract).
func (c *Client) ExtractContract(ctx context.Context, fqn, version string) (types.ValidationResult, error) {
	rows, err := c.engine.Query(ctx, fmt.Sprintf("defines(%q, Path)", fqn))
	if err != nil {
		return types.ValidationResult{}, err
	}
	if len(rows) == 0 {
		return types.ValidationResult{
			Passed:     false,
			Violations: []types.Violation{{Description: fmt.Sprintf("symbol %s not found in graph", fqn), Severity: types.SeverityMajor}},
		}, nil
	}
	return types.ValidationResult{Passed: true}, nil
}

var funcDeclRe = regexp.MustCompile(`(?m)^func\s+(?:\([^)]*\)\s+)?([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// DetectRenames applies the heuristic named in Open Question (b): for
// each modified file, a function that disappears and one that appears
// are flagged as a rename when their bodies' diff ratio indicates high
// similarity (≥0.85). This does not attempt full AST-based detection;
// a planner-supplied explicit rename list should be preferred where
// available and is not overridden by this heuristic.
func (c *Client) DetectRenames(ctx context.Context, patch types.Patch) (map[string]string, error) {
	renames := map[string]string{}
	dmp := diffmatchpatch.New()

	for _, f := range patch.Files {
		if f.Kind != types.Modify {
			continue
		}
		oldFns := extractFunctions(f.OldContent)
		newFns := extractFunctions(f.NewContent)

		var removed, added []string
		for name := range oldFns {
			if _, ok := newFns[name]; !ok {
				removed = append(removed, name)
			}
		}
		for name := range newFns {
			if _, ok := oldFns[name]; !ok {
				added = append(added, name)
			}
		}

		for _, oldName := range removed {
			bestRatio := 0.0
			bestMatch := ""
			for _, newName := range added {
				ratio := bodySimilarity(dmp, oldFns[oldName], newFns[newName])
				if ratio > bestRatio {
					bestRatio = ratio
					bestMatch = newName
				}
			}
			if bestRatio >= 0.85 {
				renames[oldName] = bestMatch
				logging.HCG("detected likely rename %s -> %s (similarity=%.2f) in %s", oldName, bestMatch, bestRatio, f.Path)
			}
		}
	}
	return renames, nil
}

func extractFunctions(content string) map[string]string {
	out := map[string]string{}
	matches := funcDeclRe.FindAllStringSubmatchIndex(content, -1)
	for i, m := range matches {
		name := content[m[2]:m[3]]
		start := m[0]
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		out[name] = content[start:end]
	}
	return out
}

func bodySimilarity(dmp *diffmatchpatch.DiffMatchPatch, a, b string) float64 {
	diffs := dmp.DiffMain(a, b, false)
	common := 0
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			common += len(d.Text)
		}
	}
	total := len(a)
	if len(b) > total {
		total = len(b)
	}
	if total == 0 {
		return 1.0
	}
	return float64(common) / float64(total)
}

// IncrementalUpdate re-derives file/defines/calls facts (imports are not
// extracted) for every changed file in the patch from a lightweight scan,
// and submits them
// via ReplaceFactsForFile (§4.4 S6: failures here are warnings, not
// terminal, enforced by the pipeline caller, not here).
func (c *Client) IncrementalUpdate(ctx context.Context, patch types.Patch) (bool, error) {
	for _, f := range patch.Files {
		if f.Kind == types.Delete {
			if err := c.engine.ReplaceFactsForFile(f.Path, nil); err != nil {
				return false, err
			}
			continue
		}
		facts := []Fact{{Predicate: "file", Args: []string{f.Path}}}
		for name := range extractFunctions(f.NewContent) {
			facts = append(facts, Fact{Predicate: "defines", Args: []string{name, f.Path}})
		}
		for _, callee := range extractCalls(f.NewContent) {
			facts = append(facts, Fact{Predicate: "calls", Args: []string{f.Path, callee}})
		}
		if err := c.engine.ReplaceFactsForFile(f.Path, facts); err != nil {
			return false, err
		}
	}
	return true, nil
}

var callExprRe = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

func extractCalls(content string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range callExprRe.FindAllStringSubmatch(content, -1) {
		name := m[1]
		switch name {
		case "if", "for", "switch", "func", "return":
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// VerifyArchitecture flags forbidden-import violations per the configured
// layering policy (§4.4 S7).
func (c *Client) VerifyArchitecture(ctx context.Context, patch types.Patch) (types.ValidationResult, error) {
	var violations []types.Violation
	for _, f := range patch.Files {
		for _, rule := range c.archRules {
			if !strings.HasPrefix(f.Path, rule.FromPrefix) {
				continue
			}
			if strings.Contains(f.NewContent, rule.ForbiddenImport) {
				violations = append(violations, types.Violation{
					Description: fmt.Sprintf("%s: %s", f.Path, rule.Description),
					Severity:    types.SeverityCritical,
				})
			}
		}
	}
	return types.ValidationResult{Passed: len(violations) == 0, Violations: violations}, nil
}

var dangerousCallPatterns = []string{"exec.Command", "os/exec", "unsafe.Pointer", "sql.Open"}

// VerifySecurity scans for dangerous call patterns and a minimal taint
// source->sink shape: string-built SQL passed to a query call (§4.4 S7).
func (c *Client) VerifySecurity(ctx context.Context, patch types.Patch) (types.ValidationResult, error) {
	var violations []types.Violation
	sqlBuildRe := regexp.MustCompile(`fmt\.Sprintf\([^)]*SELECT|fmt\.Sprintf\([^)]*INSERT|fmt\.Sprintf\([^)]*UPDATE`)
	for _, f := range patch.Files {
		for _, pattern := range dangerousCallPatterns {
			if strings.Contains(f.NewContent, pattern) {
				violations = append(violations, types.Violation{
					Description: fmt.Sprintf("%s: uses sensitive call %s", f.Path, pattern),
					Severity:    types.SeverityMinor,
				})
			}
		}
		if sqlBuildRe.MatchString(f.NewContent) {
			violations = append(violations, types.Violation{
				Description: fmt.Sprintf("%s: SQL string built via fmt.Sprintf, possible injection", f.Path),
				Severity:    types.SeverityCritical,
			})
		}
	}
	return types.ValidationResult{Passed: !hasCritical(violations), Violations: violations}, nil
}

// VerifyIntegrity flags resource-open-without-close patterns (§4.4 S7):
// a call that opens a resource with no matching Close within the same
// file.
func (c *Client) VerifyIntegrity(ctx context.Context, patch types.Patch) (types.ValidationResult, error) {
	openRe := regexp.MustCompile(`\b(os\.Open|os\.Create|net\.Dial|sql\.Open)\(`)
	var violations []types.Violation
	for _, f := range patch.Files {
		opens := len(openRe.FindAllString(f.NewContent, -1))
		closes := strings.Count(f.NewContent, ".Close()")
		if opens > closes {
			violations = append(violations, types.Violation{
				Description: fmt.Sprintf("%s: %d resource open(s) without a matching Close()", f.Path, opens-closes),
				Severity:    types.SeverityMajor,
			})
		}
	}
	return types.ValidationResult{Passed: len(violations) == 0, Violations: violations}, nil
}

func hasCritical(vs []types.Violation) bool {
	for _, v := range vs {
		if v.Severity == types.SeverityCritical {
			return true
		}
	}
	return false
}
