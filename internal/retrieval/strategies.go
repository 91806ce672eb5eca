package retrieval

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"codenerd-core/internal/types"
)

// Strategy is one of the four parallel retrieval lanes (§4.3 stage 3).
type Strategy interface {
	Name() string
	Search(ctx context.Context, query string, topK int) ([]types.RetrievalChunk, error)
}

// StrategyResult pairs a strategy's name with its ranked chunks, in the
// shape weighted RRF (stage 4) needs.
type StrategyResult struct {
	Strategy string
	Chunks   []types.RetrievalChunk
}

// RunStrategies fans the query out to every strategy concurrently via
// errgroup, same idiom as the teacher's campaign intelligence gatherer:
// each goroutine always returns nil and records its own failure into a
// mutex-guarded slice instead of aborting the group, so one strategy's
// failure yields an empty result for that strategy only, never aborts
// the others (§4.3 stage 3 "never aborts on a single-strategy failure").
func RunStrategies(ctx context.Context, strategies []Strategy, query string, topK int) ([]StrategyResult, []string) {
	var (
		mu      sync.Mutex
		results = make([]StrategyResult, len(strategies))
		errs    []string
	)
	addError := func(msg string) {
		mu.Lock()
		errs = append(errs, msg)
		mu.Unlock()
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for i, s := range strategies {
		i, s := i, s
		eg.Go(func() error {
			chunks, err := s.Search(egCtx, query, topK)
			if err != nil {
				addError(s.Name() + ": " + err.Error())
				results[i] = StrategyResult{Strategy: s.Name()}
				return nil
			}
			results[i] = StrategyResult{Strategy: s.Name(), Chunks: chunks}
			return nil
		})
	}
	_ = eg.Wait()
	return results, errs
}

// VectorSearcher performs embedding-similarity lookup over an index
// supplied by the host program (§4.3 stage 3 "vector").
type VectorSearcher struct {
	Index VectorIndex
}

// VectorIndex abstracts the embedding store so this package stays
// storage-agnostic (the capability.* pattern, narrow per-consumer
// interface rather than a full vector-DB SDK surface).
type VectorIndex interface {
	SimilaritySearch(ctx context.Context, query string, topK int) ([]types.RetrievalChunk, error)
}

func (v *VectorSearcher) Name() string { return "vector" }

func (v *VectorSearcher) Search(ctx context.Context, query string, topK int) ([]types.RetrievalChunk, error) {
	if v.Index == nil {
		return nil, nil
	}
	return v.Index.SimilaritySearch(ctx, query, topK)
}

// LexicalSearcher performs term-overlap ranking over an in-memory corpus
// (§4.3 stage 3 "lexical" — a BM25-style signal without an external
// search engine dependency).
type LexicalSearcher struct {
	Corpus LexicalCorpus
}

type LexicalCorpus interface {
	LexicalSearch(ctx context.Context, query string, topK int) ([]types.RetrievalChunk, error)
}

func (l *LexicalSearcher) Name() string { return "lexical" }

func (l *LexicalSearcher) Search(ctx context.Context, query string, topK int) ([]types.RetrievalChunk, error) {
	if l.Corpus == nil {
		return nil, nil
	}
	return l.Corpus.LexicalSearch(ctx, query, topK)
}

// SymbolSearcher resolves query terms against defined symbol names via
// the HCG (§4.3 stage 3 "symbol").
type SymbolSearcher struct {
	HCG SymbolScoper
}

type SymbolScoper interface {
	QueryScope(ctx context.Context, task string, maxFiles int) ([]string, error)
}

func (s *SymbolSearcher) Name() string { return "symbol" }

func (s *SymbolSearcher) Search(ctx context.Context, query string, topK int) ([]types.RetrievalChunk, error) {
	if s.HCG == nil {
		return nil, nil
	}
	paths, err := s.HCG.QueryScope(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	chunks := make([]types.RetrievalChunk, len(paths))
	for i, p := range paths {
		chunks[i] = types.RetrievalChunk{
			ChunkID:  "symbol:" + p,
			FilePath: p,
			Score:    1.0 - float64(i)*(1.0/float64(len(paths)+1)),
			Kind:     "symbol",
		}
	}
	return chunks, nil
}

// GraphSearcher walks caller/callee edges out from any seed chunk whose
// FQN is known, one hop, via the HCG (§4.3 stage 3 "graph").
type GraphSearcher struct {
	HCG   GraphWalker
	Seeds func() []string
}

type GraphWalker interface {
	FindCallers(ctx context.Context, fqn, version string) ([]string, error)
}

func (g *GraphSearcher) Name() string { return "graph" }

func (g *GraphSearcher) Search(ctx context.Context, query string, topK int) ([]types.RetrievalChunk, error) {
	if g.HCG == nil || g.Seeds == nil {
		return nil, nil
	}
	var chunks []types.RetrievalChunk
	for _, seed := range g.Seeds() {
		callers, err := g.HCG.FindCallers(ctx, seed, "")
		if err != nil {
			continue
		}
		for _, c := range callers {
			chunks = append(chunks, types.RetrievalChunk{ChunkID: "graph:" + c, FQN: c, Kind: "graph", Score: 1.0})
			if len(chunks) >= topK {
				return chunks, nil
			}
		}
	}
	return chunks, nil
}
