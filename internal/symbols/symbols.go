// Package symbols extracts structural summaries ("code maps") from source
// files. The tree-sitter mapper handles the grammars bundled with the
// module; callers treat paths it cannot parse as plain text.
package symbols

import (
	"context"
	"fmt"
	"strings"
)

// Symbol is one extracted declaration with its line span.
type Symbol struct {
	Name      string
	Kind      string // function, method, class, struct, interface, enum, module, type
	Signature string
	StartLine int // 1-based
	EndLine   int // 1-based, inclusive
}

// Mapper produces structural summaries per path.
//
// Map returns nil symbols without error for syntactically empty files;
// parse failures are errors the caller downgrades to whole-file handling.
// Available reports whether the mapper can work at all; Supports narrows
// that to a specific path.
type Mapper interface {
	Map(ctx context.Context, path string, content []byte) ([]Symbol, error)
	Supports(path string) bool
	Available() bool
}

// NullMapper is the stand-in when structural summaries are disabled or no
// real mapper could be constructed.
type NullMapper struct{}

func (NullMapper) Map(context.Context, string, []byte) ([]Symbol, error) { return nil, nil }
func (NullMapper) Supports(string) bool                                  { return false }
func (NullMapper) Available() bool                                       { return false }

// FormatMap renders symbols as an indented summary block. The condensed
// form lists kind and name per line; the full form lists signatures.
func FormatMap(syms []Symbol, full bool) string {
	var sb strings.Builder
	for _, s := range syms {
		if full && s.Signature != "" {
			fmt.Fprintf(&sb, "  %s\n", s.Signature)
			continue
		}
		fmt.Fprintf(&sb, "  %s %s\n", s.Kind, s.Name)
	}
	return strings.TrimRight(sb.String(), "\n")
}
