package tofs

// IRVariant tags the shape of an IR document, replacing a dynamic
// duck-typed "has .nodes, .edges" protocol with a single closed tag set
// (§9 DESIGN NOTES).
type IRVariant int

const (
	VariantParsed IRVariant = iota
	VariantGenerated
	VariantOpaqueBlob
	VariantLfsPointer
	VariantErrorDoc
	VariantPartial
)

// IRNode is one definition extracted from a source file: a function,
// class, method, or similar top-level symbol.
type IRNode struct {
	FQN       string
	Kind      string // "function", "class", "method", "variable", ...
	StartLine int
	EndLine   int
}

// IREdge is a directed relationship between two FQNs within or across
// files (calls, inherits, imports, ...).
type IREdge struct {
	From string
	To   string
	Kind string // "calls", "inherits", "imports", ...
}

// IR is the per-file intermediate representation cached by a transaction.
// get_or_parse_ir always returns a valid IR — never nil — with Variant
// distinguishing a fully parsed document from every placeholder case.
type IR struct {
	FilePath string
	Variant  IRVariant
	Nodes    []IRNode
	Edges    []IREdge
	Err      error // set only when Variant == VariantErrorDoc
}

// SymbolOf returns the FQN -> path entries this IR document contributes to
// the symbol table.
func (ir IR) SymbolOf(path string) map[string]string {
	out := make(map[string]string, len(ir.Nodes))
	for _, n := range ir.Nodes {
		out[n.FQN] = path
	}
	return out
}
