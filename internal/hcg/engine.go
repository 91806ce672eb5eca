// Package hcg provides an in-process Hierarchical Code Graph backed by
// Google Mangle: a Datalog fact store over CALLS/IMPORTS/DEFINES facts
// that answers scope selection, caller lookup, and spec-validation
// queries. Adapted from the teacher's internal/mangle.Engine wrapper,
// trimmed to the facts this domain needs and without the persistence
// layer (the HCG here is process-local, rebuilt from IR on each
// incremental update).
package hcg

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	_ "github.com/google/mangle/packages"
	"github.com/google/mangle/parse"
	"github.com/google/mangle/unionfind"
)

// schema declares the closed set of predicates this HCG reasons over,
// matching the edge kinds named in §4.3 stage 6 (narrowed to the subset
// a Go-only IR layer can emit: CALLS and IMPORTS; INHERITS/IMPLEMENTS/
// REFERENCES_TYPE/INSTANTIATES are language-specific and left to a
// richer IR layer than this core's tree-sitter-only parser provides).
const schema = `
Decl file(Path) bound [/string].
Decl defines(Fqn, Path) bound [/string, /string].
Decl calls(CallerFqn, CalleeFqn) bound [/string, /string].
Decl imports(Path, ImportedPath) bound [/string, /string].

Decl reachable(A, B)
  bound [/string, /string].
reachable(A, B) :- calls(A, B).
reachable(A, B) :- calls(A, C), reachable(C, B).
`

// Engine is the Mangle-backed fact store and query surface.
type Engine struct {
	mu             sync.RWMutex
	store          factstore.ConcurrentFactStore
	baseStore      factstore.FactStoreWithRemove
	programInfo    *analysis.ProgramInfo
	queryContext   *mengine.QueryContext
	predicateIndex map[string]ast.PredicateSym
	fileFacts      map[string][]ast.Atom
}

// NewEngine constructs an Engine with the schema above already loaded.
func NewEngine() (*Engine, error) {
	baseStore := factstore.NewSimpleInMemoryStore()
	e := &Engine{
		baseStore:      baseStore,
		store:          factstore.NewConcurrentFactStore(baseStore),
		predicateIndex: make(map[string]ast.PredicateSym),
		fileFacts:      make(map[string][]ast.Atom),
	}
	if err := e.loadSchema(schema); err != nil {
		return nil, fmt.Errorf("hcg: load schema: %w", err)
	}
	return e, nil
}

func (e *Engine) loadSchema(src string) error {
	unit, err := parse.Unit(bytes.NewReader([]byte(src)))
	if err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return fmt.Errorf("analyze schema: %w", err)
	}
	e.programInfo = programInfo

	predToDecl := make(map[ast.PredicateSym]*ast.Decl, len(programInfo.Decls))
	for sym, decl := range programInfo.Decls {
		e.predicateIndex[sym.Symbol] = sym
		predToDecl[sym] = decl
	}

	predToRules := make(map[ast.PredicateSym][]ast.Clause)
	for _, clause := range programInfo.Rules {
		predToRules[clause.Head.Predicate] = append(predToRules[clause.Head.Predicate], clause)
	}

	e.queryContext = &mengine.QueryContext{
		PredToRules: predToRules,
		PredToDecl:  predToDecl,
		Store:       e.store,
	}
	return nil
}

// Fact is a single tuple over one of the declared predicates.
type Fact struct {
	Predicate string
	Args      []string
}

func (e *Engine) toAtom(f Fact) (ast.Atom, error) {
	sym, ok := e.predicateIndex[f.Predicate]
	if !ok {
		return ast.Atom{}, fmt.Errorf("predicate %s not declared", f.Predicate)
	}
	if len(f.Args) != sym.Arity {
		return ast.Atom{}, fmt.Errorf("predicate %s expects %d args, got %d", f.Predicate, sym.Arity, len(f.Args))
	}
	args := make([]ast.BaseTerm, len(f.Args))
	for i, a := range f.Args {
		args[i] = ast.String(a)
	}
	return ast.Atom{Predicate: sym, Args: args}, nil
}

// AddFacts inserts facts and re-evaluates derived predicates.
func (e *Engine) AddFacts(facts []Fact) error {
	e.mu.Lock()
	for _, f := range facts {
		atom, err := e.toAtom(f)
		if err != nil {
			e.mu.Unlock()
			return err
		}
		if e.store.Add(atom) && len(atom.Args) > 0 {
			if path, ok := atom.Args[0].(ast.Constant); ok && path.Type == ast.StringType {
				e.fileFacts[path.Symbol] = append(e.fileFacts[path.Symbol], atom)
			}
		}
	}
	programInfo := e.programInfo
	store := e.store
	e.mu.Unlock()

	_, err := mengine.EvalProgramWithStats(programInfo, store)
	return err
}

// ReplaceFactsForFile evicts every fact recorded for path (the facts an
// earlier ReplaceFactsForFile call submitted for path, plus any added
// fact whose first argument is path), then inserts facts and records them
// under path, matching the incremental-update semantics §4.4 S6 requires
// (re-indexing a single changed file, not the whole graph).
func (e *Engine) ReplaceFactsForFile(path string, facts []Fact) error {
	e.mu.Lock()
	for _, atom := range e.fileFacts[path] {
		e.baseStore.Remove(atom)
	}
	delete(e.fileFacts, path)
	e.mu.Unlock()
	if err := e.AddFacts(facts); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, f := range facts {
		if atom, err := e.toAtom(f); err == nil {
			e.fileFacts[path] = append(e.fileFacts[path], atom)
		}
	}
	return nil
}

// Query runs a ground or variable-bearing query (Mangle atom syntax,
// e.g. "calls(\"a.Foo\", X)") and returns one map per result row, keyed
// by variable name.
func (e *Engine) Query(ctx context.Context, query string) ([]map[string]string, error) {
	atom, err := parse.Atom(query)
	if err != nil {
		return nil, fmt.Errorf("hcg: parse query %q: %w", query, err)
	}

	e.mu.RLock()
	qc := e.queryContext
	decl, ok := qc.PredToDecl[atom.Predicate]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("hcg: predicate %s not declared", atom.Predicate.Symbol)
	}
	if len(decl.Modes()) == 0 {
		return nil, fmt.Errorf("hcg: predicate %s has no modes", atom.Predicate.Symbol)
	}
	mode := decl.Modes()[0]

	type binding struct {
		name string
		idx  int
	}
	var vars []binding
	for i, arg := range atom.Args {
		if v, ok := arg.(ast.Variable); ok {
			vars = append(vars, binding{name: v.Symbol, idx: i})
		}
	}

	var rows []map[string]string
	err = qc.EvalQuery(atom, mode, unionfind.New(), func(fact ast.Atom) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		row := make(map[string]string, len(vars))
		for _, b := range vars {
			if b.idx >= len(fact.Args) {
				continue
			}
			if c, ok := fact.Args[b.idx].(ast.Constant); ok {
				row[b.name] = c.Symbol
			}
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Facts returns every stored fact for a predicate, as (args...) tuples.
func (e *Engine) Facts(predicate string) ([][]string, error) {
	e.mu.RLock()
	sym, ok := e.predicateIndex[predicate]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("hcg: predicate %s not declared", predicate)
	}

	var out [][]string
	err := e.store.GetFacts(ast.NewQuery(sym), func(atom ast.Atom) error {
		row := make([]string, len(atom.Args))
		for i, arg := range atom.Args {
			if c, ok := arg.(ast.Constant); ok {
				row[i] = c.Symbol
			}
		}
		out = append(out, row)
		return nil
	})
	return out, err
}
