package tofs

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"golang.org/x/text/unicode/norm"

	"codenerd-core/internal/logging"
)

// ParseConfig controls the circuit breaker thresholds used by
// get_or_parse_ir. Defaults match §6 EXTERNAL INTERFACES.
type ParseConfig struct {
	MaxFileSize    int64 // ir_max_file_size, default 5 MiB
	ParseTimeout   time.Duration // ir_parse_timeout_seconds, default 5s
	GeneratedDirs  []string      // e.g. "build", "dist", "node_modules"
}

// DefaultParseConfig mirrors §6's documented defaults.
func DefaultParseConfig() ParseConfig {
	return ParseConfig{
		MaxFileSize:   5 * 1024 * 1024,
		ParseTimeout:  5 * time.Second,
		GeneratedDirs: []string{"build", "dist", "node_modules", "vendor", ".generated"},
	}
}

var generatedMarkers = []string{
	"@generated",
	"DO NOT EDIT",
	"Code generated by",
}

var generatedExtensions = map[string]bool{
	".pb.go":  true,
	".min.js": true,
}

// lfsPointerHeader is the literal header Git-LFS writes at the top of a
// pointer file.
const lfsPointerHeader = "version https://git-lfs.github.com/spec/v1"

// parseIR runs the circuit breaker described in §4.1 and, absent any
// short-circuit, parses content with tree-sitter. It never returns a nil
// IR: every branch yields a typed placeholder or a parsed document.
func parseIR(ctx context.Context, cfg ParseConfig, path string, content []byte) IR {
	normalized := normalizeContent(content)

	if isGeneratedPath(path, cfg) || containsGeneratedMarker(normalized) {
		return IR{FilePath: path, Variant: VariantGenerated}
	}
	if int64(len(normalized)) > cfg.MaxFileSize {
		return IR{FilePath: path, Variant: VariantOpaqueBlob}
	}
	if bytes.HasPrefix(normalized, []byte(lfsPointerHeader)) {
		return IR{FilePath: path, Variant: VariantLfsPointer}
	}

	return parseWithTimeout(ctx, cfg, path, normalized)
}

// normalizeContent applies Unicode NFC and CRLF->LF normalization ahead of
// parsing, matching the path-canonicalization discipline used elsewhere in
// TOFS (§4.1 Path canonicalization). Invalid UTF-8 is left byte-for-byte
// as-is; NFC over a broken encoding would corrupt it further.
func normalizeContent(content []byte) []byte {
	s := strings.ReplaceAll(string(content), "\r\n", "\n")
	if !utf8.ValidString(s) {
		return []byte(s)
	}
	return []byte(norm.NFC.String(s))
}

func isGeneratedPath(path string, cfg ParseConfig) bool {
	for ext := range generatedExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		for _, dir := range cfg.GeneratedDirs {
			if part == dir {
				return true
			}
		}
	}
	return false
}

func containsGeneratedMarker(content []byte) bool {
	head := content
	if len(head) > 4096 {
		head = head[:4096]
	}
	for _, m := range generatedMarkers {
		if bytes.Contains(head, []byte(m)) {
			return true
		}
	}
	return false
}

type parseResult struct {
	ir  IR
	err error
}

// parseWithTimeout runs the tree-sitter parse on a cancellable worker and
// falls back to a partial parse on recoverable syntax errors, or an error
// IR on timeout/unrecoverable failure.
func parseWithTimeout(ctx context.Context, cfg ParseConfig, path string, content []byte) IR {
	timer := logging.StartTimer(logging.CategoryTOFS, "parseIR:"+path)
	defer timer.Stop()

	ctx, cancel := context.WithTimeout(ctx, cfg.ParseTimeout)
	defer cancel()

	resultCh := make(chan parseResult, 1)
	go func() {
		nodes, edges, perr := parseGoLike(ctx, path, content)
		resultCh <- parseResult{ir: IR{FilePath: path, Variant: VariantParsed, Nodes: nodes, Edges: edges}, err: perr}
	}()

	select {
	case <-ctx.Done():
		logging.Get(logging.CategoryTOFS).Warn("parse timeout: %s", path)
		return IR{FilePath: path, Variant: VariantErrorDoc, Err: ctx.Err()}
	case res := <-resultCh:
		if res.err == nil {
			return res.ir
		}
		if partial, ok := res.err.(*partialParseError); ok {
			return IR{FilePath: path, Variant: VariantPartial, Nodes: partial.nodes, Edges: partial.edges, Err: res.err}
		}
		return IR{FilePath: path, Variant: VariantErrorDoc, Err: res.err}
	}
}

type partialParseError struct {
	nodes []IRNode
	edges []IREdge
}

func (e *partialParseError) Error() string { return "partial parse: recoverable syntax errors" }

// parseGoLike uses tree-sitter's Go grammar to extract top-level function
// and method definitions plus call edges. Other languages reuse the same
// best-effort extraction via tree-sitter's error-recovery node walking;
// this module ships the Go grammar only (matching the teacher's
// multi-language TreeSitterParser, scoped down: the language-specific
// grammar set is a product concern outside this core's §1 scope).
func parseGoLike(ctx context.Context, path string, content []byte) ([]IRNode, []IREdge, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	var nodes []IRNode
	var edges []IREdge
	var hasError bool

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.IsError() || n.IsMissing() {
			hasError = true
		}
		switch n.Type() {
		case "function_declaration", "method_declaration":
			name := functionName(n, content)
			if name != "" {
				nodes = append(nodes, IRNode{
					FQN:       name,
					Kind:      "function",
					StartLine: int(n.StartPoint().Row) + 1,
					EndLine:   int(n.EndPoint().Row) + 1,
				})
			}
		case "call_expression":
			if callee := calleeName(n, content); callee != "" && len(nodes) > 0 {
				edges = append(edges, IREdge{From: nodes[len(nodes)-1].FQN, To: callee, Kind: "calls"})
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)

	if hasError {
		return nil, nil, &partialParseError{nodes: nodes, edges: edges}
	}
	return nodes, edges, nil
}

func functionName(n *sitter.Node, content []byte) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "identifier" || c.Type() == "field_identifier" {
			return c.Content(content)
		}
	}
	return ""
}

func calleeName(n *sitter.Node, content []byte) string {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	return fn.Content(content)
}
