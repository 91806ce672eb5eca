// Package retrieval implements the hybrid retrieval pipeline (§4.3):
// adaptive top-K query analysis, contextual expansion, four parallel
// search strategies fused by weighted RRF, a lightweight reranker,
// dependency-aware ordering, and a cached cross-encoder final rerank.
package retrieval

import (
	"regexp"
	"strings"
)

// Complexity classifies a query's estimated retrieval difficulty.
type Complexity int

const (
	Simple Complexity = iota
	Medium
	Complex
)

func (c Complexity) String() string {
	switch c {
	case Simple:
		return "simple"
	case Medium:
		return "medium"
	default:
		return "complex"
	}
}

// Intent biases strategy weights and top-K (§4.3 stage 1/4).
type Intent int

const (
	IntentGeneral Intent = iota
	IntentDefinitional // symbol-heavy
	IntentFlowTracing  // graph-heavy
)

// AdaptiveTopKTable maps complexity to a base K, clamped to [Min, Max].
type AdaptiveTopKTable struct {
	Min, Default, Max int
	ByComplexity      map[Complexity]int
}

// DefaultAdaptiveTopKTable returns the baseline table; callers normally
// build one from config.RetrievalConfig instead.
func DefaultAdaptiveTopKTable(min, def, max int) AdaptiveTopKTable {
	return AdaptiveTopKTable{
		Min:     min,
		Default: def,
		Max:     max,
		ByComplexity: map[Complexity]int{
			Simple:  min + (def-min)/2,
			Medium:  def,
			Complex: def + (max-def)/2,
		},
	}
}

var (
	identifierRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*(::|\.)[A-Za-z_][A-Za-z0-9_]*`)
	pathRe       = regexp.MustCompile(`[\w./-]+\.\w{1,5}`)
	boolOpRe     = regexp.MustCompile(`(?i)\b(and|or|not)\b`)
)

// QueryAnalysis is the result of stage 1.
type QueryAnalysis struct {
	TokenCount      int
	HasIdentifier   bool
	HasPath         bool
	HasBooleanOps   bool
	Specificity     float64
	Complexity      Complexity
	TopK            int
}

// AnalyzeQuery implements stage 1: token count, code-identifier and
// file-path detection, boolean-operator detection, and specificity
// combine into a complexity level and an adaptive top-K.
func AnalyzeQuery(query string, intent Intent, table AdaptiveTopKTable) QueryAnalysis {
	tokens := strings.Fields(query)
	hasIdent := identifierRe.MatchString(query)
	hasPath := pathRe.MatchString(query)
	hasBool := boolOpRe.MatchString(query)

	specificity := specificityScore(len(tokens), hasIdent, hasPath, hasBool)
	complexity := classifyComplexity(len(tokens), specificity)

	k := table.ByComplexity[complexity]
	if k == 0 {
		k = table.Default
	}
	k = applyIntentClamp(k, intent, table)
	if k < table.Min {
		k = table.Min
	}
	if k > table.Max {
		k = table.Max
	}

	return QueryAnalysis{
		TokenCount:    len(tokens),
		HasIdentifier: hasIdent,
		HasPath:       hasPath,
		HasBooleanOps: hasBool,
		Specificity:   specificity,
		Complexity:    complexity,
		TopK:          k,
	}
}

func specificityScore(tokenCount int, hasIdent, hasPath, hasBool bool) float64 {
	score := 0.0
	if tokenCount >= 8 {
		score += 0.3
	} else if tokenCount >= 4 {
		score += 0.15
	}
	if hasIdent {
		score += 0.3
	}
	if hasPath {
		score += 0.25
	}
	if hasBool {
		score += 0.15
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func classifyComplexity(tokenCount int, specificity float64) Complexity {
	switch {
	case tokenCount <= 3 && specificity < 0.3:
		return Simple
	case tokenCount >= 10 || specificity >= 0.7:
		return Complex
	default:
		return Medium
	}
}

func applyIntentClamp(k int, intent Intent, table AdaptiveTopKTable) int {
	switch intent {
	case IntentDefinitional:
		if k > table.Default {
			return table.Default
		}
	case IntentFlowTracing:
		if k < table.Default {
			return table.Default
		}
	}
	return k
}
