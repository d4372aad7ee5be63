package symbols

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"go.uber.org/zap"
)

// TreeSitterMapper parses sources with tree-sitter and extracts declaration
// symbols. One parser instance is shared across languages, so Map holds a
// lock for the duration of a parse.
type TreeSitterMapper struct {
	mu     sync.Mutex
	parser *sitter.Parser
	logger *zap.Logger
}

// NewTreeSitterMapper returns a mapper for the bundled grammars.
func NewTreeSitterMapper(logger *zap.Logger) *TreeSitterMapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TreeSitterMapper{
		parser: sitter.NewParser(),
		logger: logger.Named("symbols"),
	}
}

// Close releases the underlying parser.
func (m *TreeSitterMapper) Close() {
	m.parser.Close()
}

// Available always holds for the compiled-in grammars.
func (m *TreeSitterMapper) Available() bool { return true }

// Supports reports whether the path's extension maps to a bundled grammar.
func (m *TreeSitterMapper) Supports(path string) bool {
	lang, _ := languageFor(path)
	return lang != nil
}

func languageFor(path string) (*sitter.Language, string) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return golang.GetLanguage(), "go"
	case ".py":
		return python.GetLanguage(), "python"
	case ".rs":
		return rust.GetLanguage(), "rust"
	case ".js", ".jsx", ".mjs":
		return javascript.GetLanguage(), "javascript"
	case ".ts", ".tsx":
		return typescript.GetLanguage(), "typescript"
	}
	return nil, ""
}

// Map extracts symbols from the file content. Unsupported paths yield no
// symbols and no error.
func (m *TreeSitterMapper) Map(ctx context.Context, path string, content []byte) ([]Symbol, error) {
	lang, langName := languageFor(path)
	if lang == nil {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.parser.SetLanguage(lang)
	tree, err := m.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	defer tree.Close()

	var syms []Symbol
	switch langName {
	case "go":
		syms = extractGo(tree.RootNode(), content)
	case "python":
		syms = extractPython(tree.RootNode(), content)
	case "rust":
		syms = extractRust(tree.RootNode(), content)
	case "javascript":
		syms = extractJavaScript(tree.RootNode(), content)
	case "typescript":
		syms = extractTypeScript(tree.RootNode(), content)
	}

	m.logger.Debug("mapped file",
		zap.String("path", path),
		zap.String("language", langName),
		zap.Int("symbols", len(syms)))
	return syms, nil
}

func nodeSpan(n *sitter.Node) (int, int) {
	return int(n.StartPoint().Row) + 1, int(n.EndPoint().Row) + 1
}

func extractGo(root *sitter.Node, content []byte) []Symbol {
	var syms []Symbol
	text := func(n *sitter.Node) string { return n.Content(content) }

	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := text(nameNode)
				sig := "func " + name
				if params := n.ChildByFieldName("parameters"); params != nil {
					sig += text(params)
				}
				if result := n.ChildByFieldName("result"); result != nil {
					sig += " " + text(result)
				}
				start, end := nodeSpan(n)
				syms = append(syms, Symbol{Name: name, Kind: "function", Signature: sig, StartLine: start, EndLine: end})
			}

		case "method_declaration":
			nameNode := n.ChildByFieldName("name")
			receiverNode := n.ChildByFieldName("receiver")
			if nameNode != nil && receiverNode != nil {
				name := text(nameNode)
				sig := "func " + text(receiverNode) + " " + name
				if params := n.ChildByFieldName("parameters"); params != nil {
					sig += text(params)
				}
				if result := n.ChildByFieldName("result"); result != nil {
					sig += " " + text(result)
				}
				start, end := nodeSpan(n)
				syms = append(syms, Symbol{Name: name, Kind: "method", Signature: sig, StartLine: start, EndLine: end})
			}

		case "type_declaration":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				spec := n.NamedChild(i)
				if spec.Type() != "type_spec" {
					continue
				}
				nameNode := spec.ChildByFieldName("name")
				if nameNode == nil {
					continue
				}
				name := text(nameNode)
				kind := "type"
				if typeNode := spec.ChildByFieldName("type"); typeNode != nil {
					switch typeNode.Type() {
					case "struct_type":
						kind = "struct"
					case "interface_type":
						kind = "interface"
					}
				}
				start, end := nodeSpan(n)
				syms = append(syms, Symbol{Name: name, Kind: kind, Signature: "type " + name, StartLine: start, EndLine: end})
			}
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return syms
}

func extractPython(root *sitter.Node, content []byte) []Symbol {
	var syms []Symbol
	text := func(n *sitter.Node) string { return n.Content(content) }

	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "class_definition":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := text(nameNode)
				start, end := nodeSpan(n)
				syms = append(syms, Symbol{Name: name, Kind: "class", Signature: "class " + name, StartLine: start, EndLine: end})
			}
		case "function_definition":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := text(nameNode)
				sig := "def " + name
				if params := n.ChildByFieldName("parameters"); params != nil {
					sig += text(params)
				}
				start, end := nodeSpan(n)
				syms = append(syms, Symbol{Name: name, Kind: "function", Signature: sig, StartLine: start, EndLine: end})
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return syms
}

func extractRust(root *sitter.Node, content []byte) []Symbol {
	var syms []Symbol
	text := func(n *sitter.Node) string { return n.Content(content) }

	declare := func(n *sitter.Node, kind, keyword string) {
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			name := text(nameNode)
			sig := keyword + " " + name
			if kind == "function" {
				if params := n.ChildByFieldName("parameters"); params != nil {
					sig += text(params)
				}
			}
			start, end := nodeSpan(n)
			syms = append(syms, Symbol{Name: name, Kind: kind, Signature: sig, StartLine: start, EndLine: end})
		}
	}

	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_item":
			declare(n, "function", "fn")
		case "struct_item":
			declare(n, "struct", "struct")
		case "enum_item":
			declare(n, "enum", "enum")
		case "mod_item":
			declare(n, "module", "mod")
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return syms
}

func extractJavaScript(root *sitter.Node, content []byte) []Symbol {
	var syms []Symbol
	text := func(n *sitter.Node) string { return n.Content(content) }

	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "class_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := text(nameNode)
				start, end := nodeSpan(n)
				syms = append(syms, Symbol{Name: name, Kind: "class", Signature: "class " + name, StartLine: start, EndLine: end})
			}
		case "function_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := text(nameNode)
				sig := "function " + name
				if params := n.ChildByFieldName("parameters"); params != nil {
					sig += text(params)
				}
				start, end := nodeSpan(n)
				syms = append(syms, Symbol{Name: name, Kind: "function", Signature: sig, StartLine: start, EndLine: end})
			}
		case "lexical_declaration":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				if child.Type() != "variable_declarator" {
					continue
				}
				nameNode := child.ChildByFieldName("name")
				valueNode := child.ChildByFieldName("value")
				if nameNode == nil || valueNode == nil {
					continue
				}
				if valueNode.Type() == "arrow_function" || valueNode.Type() == "function_expression" || valueNode.Type() == "function" {
					name := text(nameNode)
					start, end := nodeSpan(n)
					syms = append(syms, Symbol{Name: name, Kind: "function", Signature: "const " + name + " = ...", StartLine: start, EndLine: end})
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return syms
}

func extractTypeScript(root *sitter.Node, content []byte) []Symbol {
	var syms []Symbol
	text := func(n *sitter.Node) string { return n.Content(content) }

	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "class_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := text(nameNode)
				start, end := nodeSpan(n)
				syms = append(syms, Symbol{Name: name, Kind: "class", Signature: "class " + name, StartLine: start, EndLine: end})
			}
		case "function_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := text(nameNode)
				sig := "function " + name
				if params := n.ChildByFieldName("parameters"); params != nil {
					sig += text(params)
				}
				start, end := nodeSpan(n)
				syms = append(syms, Symbol{Name: name, Kind: "function", Signature: sig, StartLine: start, EndLine: end})
			}
		case "interface_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := text(nameNode)
				start, end := nodeSpan(n)
				syms = append(syms, Symbol{Name: name, Kind: "interface", Signature: "interface " + name, StartLine: start, EndLine: end})
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return syms
}
