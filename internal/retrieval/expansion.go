package retrieval

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"codenerd-core/internal/types"
)

// Go-native term extraction patterns, the analog of the original
// source's per-language regexes (def \w+\(, class [A-Z]\w*, a leading
// var-assignment pattern): function declarations reuse hcg/client.go's
// funcDeclRe exactly, type declarations cover struct/interface
// definitions, and var/const declarations stand in for the original's
// bare assignment pattern.
var (
	vocabFuncRe = regexp.MustCompile(`(?m)^func\s+(?:\([^)]*\)\s+)?([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	vocabTypeRe = regexp.MustCompile(`(?m)^type\s+([A-Z][A-Za-z0-9_]*)\s+(?:struct|interface)\b`)
	vocabVarRe  = regexp.MustCompile(`(?m)^\s*(?:var|const)\s+([a-zA-Z_][A-Za-z0-9_]*)\b`)
)

// maxVarTermsPerChunk mirrors the original's cap on bare-assignment
// extraction (limited to 20 per chunk) — function and type declarations
// are unambiguous enough not to need the same cap.
const maxVarTermsPerChunk = 20

// cooccurrenceWindow matches the original's sliding window size for
// counting term companions (10 tokens in both directions).
const cooccurrenceWindow = 10

// CodebaseTerm is one vocabulary entry: a name observed in the indexed
// codebase, its kind, how often it recurs, and which files it came
// from. Grounded in contextual_expansion.py's CodebaseTerm dataclass.
type CodebaseTerm struct {
	Term      string
	Kind      string // "function", "type", "variable"
	Frequency int
	Files     map[string]struct{}
	Embedding []float32
}

// Vocabulary learns a codebase's function/type/variable names from
// indexed chunks (§4.3 stage 2: "a codebase vocabulary... learned from
// indexed chunks"), tracking both term frequency and which terms tend
// to appear near each other. Grounded in
// CodebaseVocabulary.learn_from_chunks/_extract_terms/cooccurrence.
type Vocabulary struct {
	terms        map[string]*CodebaseTerm
	cooccurrence map[string]map[string]int
}

// NewVocabulary returns an empty vocabulary.
func NewVocabulary() *Vocabulary {
	return &Vocabulary{
		terms:        map[string]*CodebaseTerm{},
		cooccurrence: map[string]map[string]int{},
	}
}

type extractedTerm struct {
	name string
	kind string
	pos  int
}

// LearnFromChunks extracts vocabulary terms from every chunk's content,
// accumulating frequency, file membership, and co-occurrence counts. It
// merges into existing state, so it may be called again as new chunks
// are indexed.
func (v *Vocabulary) LearnFromChunks(chunks []types.RetrievalChunk) {
	for _, c := range chunks {
		tokens := extractTerms(c.Content)
		for _, tok := range tokens {
			t, ok := v.terms[tok.name]
			if !ok {
				t = &CodebaseTerm{Term: tok.name, Kind: tok.kind, Files: map[string]struct{}{}}
				v.terms[tok.name] = t
			}
			t.Frequency++
			t.Files[c.FilePath] = struct{}{}
		}
		v.updateCooccurrence(tokens)
	}
}

func extractTerms(content string) []extractedTerm {
	var found []extractedTerm
	for _, m := range vocabFuncRe.FindAllStringSubmatchIndex(content, -1) {
		found = append(found, extractedTerm{name: content[m[2]:m[3]], kind: "function", pos: m[2]})
	}
	for _, m := range vocabTypeRe.FindAllStringSubmatchIndex(content, -1) {
		found = append(found, extractedTerm{name: content[m[2]:m[3]], kind: "type", pos: m[2]})
	}
	varCount := 0
	for _, m := range vocabVarRe.FindAllStringSubmatchIndex(content, -1) {
		if varCount >= maxVarTermsPerChunk {
			break
		}
		found = append(found, extractedTerm{name: content[m[2]:m[3]], kind: "variable", pos: m[2]})
		varCount++
	}
	sort.Slice(found, func(i, j int) bool { return found[i].pos < found[j].pos })
	return found
}

// updateCooccurrence increments, for every pair of tokens within
// cooccurrenceWindow positions of each other in the extraction order,
// a symmetric companion count.
func (v *Vocabulary) updateCooccurrence(tokens []extractedTerm) {
	for i, t := range tokens {
		lo := i - cooccurrenceWindow
		if lo < 0 {
			lo = 0
		}
		hi := i + cooccurrenceWindow
		if hi >= len(tokens) {
			hi = len(tokens) - 1
		}
		for j := lo; j <= hi; j++ {
			if j == i || tokens[j].name == t.name {
				continue
			}
			m, ok := v.cooccurrence[t.name]
			if !ok {
				m = map[string]int{}
				v.cooccurrence[t.name] = m
			}
			m[tokens[j].name]++
		}
	}
}

// Len reports how many distinct terms have been learned.
func (v *Vocabulary) Len() int { return len(v.terms) }

type cooccurringTerm struct {
	Term  string
	Count int
}

// CooccurringTerms returns term's companions ranked by count,
// descending, truncated to topK (CodebaseVocabulary.get_cooccurring_terms).
func (v *Vocabulary) CooccurringTerms(term string, topK int) []cooccurringTerm {
	companions := v.cooccurrence[term]
	out := make([]cooccurringTerm, 0, len(companions))
	for name, count := range companions {
		out = append(out, cooccurringTerm{Term: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

type scoredTerm struct {
	Term       string
	Similarity float64
}

// similarTerms encodes query with model (caching per-term vectors in
// cache) and returns vocabulary terms whose embedding exceeds
// threshold cosine similarity with it, sorted descending and truncated
// to topK (CodebaseVocabulary.find_similar_terms).
func (v *Vocabulary) similarTerms(ctx context.Context, model EmbeddingModel, cache *EmbeddingCache, query string, topK int, threshold float64) ([]scoredTerm, error) {
	queryVec, err := model.EncodeTerm(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: encode query term: %w", err)
	}
	var out []scoredTerm
	for name, t := range v.terms {
		vec, err := termEmbedding(ctx, model, cache, t)
		if err != nil {
			continue
		}
		sim := cosineSimilarity(queryVec, vec)
		if sim >= threshold {
			out = append(out, scoredTerm{Term: name, Similarity: sim})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func termEmbedding(ctx context.Context, model EmbeddingModel, cache *EmbeddingCache, t *CodebaseTerm) ([]float32, error) {
	if t.Embedding != nil {
		return t.Embedding, nil
	}
	if cache != nil {
		if vec, ok := cache.GetTerm(t.Term); ok {
			t.Embedding = vec
			return vec, nil
		}
	}
	vec, err := model.EncodeTerm(ctx, t.Term)
	if err != nil {
		return nil, err
	}
	t.Embedding = vec
	if cache != nil {
		cache.SetTerm(t.Term, vec)
	}
	return vec, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	dotP, na, nb := 0.0, 0.0, 0.0
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dotP += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dotP / (math.Sqrt(na) * math.Sqrt(nb))
}

// QueryExpander implements stage 2 end to end: embedding similarity
// over a learned Vocabulary supplies candidate terms, a co-occurrence
// boost favors terms that frequently appear near the already-similar
// ones, and the two signals blend 0.7/0.3 exactly as
// ContextualQueryExpander.expand does.
type QueryExpander struct {
	Vocabulary          *Vocabulary
	Model               EmbeddingModel
	Cache               *EmbeddingCache
	MaxExpansions       int
	SimilarityThreshold float64
	FrequencyMin        int
}

// NewQueryExpander returns an expander with the original's default
// tuning (max_expansions=10, similarity_threshold=0.6, frequency_min=2).
func NewQueryExpander(vocab *Vocabulary, model EmbeddingModel, cache *EmbeddingCache) *QueryExpander {
	return &QueryExpander{
		Vocabulary:          vocab,
		Model:               model,
		Cache:               cache,
		MaxExpansions:       10,
		SimilarityThreshold: 0.6,
		FrequencyMin:        2,
	}
}

// Expand implements stage 2: when no embedding model or vocabulary is
// configured, the query passes through unchanged (other strategies
// still see the exact original text); otherwise it appends up to
// MaxExpansions ranked companion terms.
func (e *QueryExpander) Expand(ctx context.Context, query string) string {
	if e == nil || e.Model == nil || e.Vocabulary == nil || e.Vocabulary.Len() == 0 {
		return query
	}

	similar, err := e.Vocabulary.similarTerms(ctx, e.Model, e.Cache, query, e.MaxExpansions*2, e.SimilarityThreshold)
	if err != nil || len(similar) == 0 {
		return query
	}

	filtered := similar[:0:0]
	for _, s := range similar {
		if e.Vocabulary.terms[s.Term].Frequency >= e.FrequencyMin {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		return query
	}

	top := filtered
	if len(top) > 5 {
		top = top[:5]
	}
	coBoost := map[string]float64{}
	for _, s := range top {
		for _, comp := range e.Vocabulary.CooccurringTerms(s.Term, 10) {
			coBoost[comp.Term] += float64(comp.Count) * s.Similarity
		}
	}
	maxBoost := 0.0
	for _, b := range coBoost {
		if b > maxBoost {
			maxBoost = b
		}
	}

	type ranked struct {
		term  string
		score float64
	}
	results := make([]ranked, 0, len(filtered))
	for _, s := range filtered {
		score := s.Similarity
		if b, ok := coBoost[s.Term]; ok && maxBoost > 0 {
			score = 0.7*s.Similarity + 0.3*(b/maxBoost)
		}
		results = append(results, ranked{term: s.Term, score: score})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > e.MaxExpansions {
		results = results[:e.MaxExpansions]
	}

	seen := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(query)) {
		seen[w] = struct{}{}
	}
	var extra []string
	for _, r := range results {
		lw := strings.ToLower(r.term)
		if _, dup := seen[lw]; dup {
			continue
		}
		seen[lw] = struct{}{}
		extra = append(extra, r.term)
	}
	if len(extra) == 0 {
		return query
	}
	return query + " " + strings.Join(extra, " ")
}
