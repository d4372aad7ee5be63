package symbols

import (
	"context"
	"strings"
	"testing"
)

const goSample = `package sample

func Add(a, b int) int {
	return a + b
}

type Counter struct {
	n int
}

func (c *Counter) Inc() {
	c.n++
}
`

func TestMapGoFile(t *testing.T) {
	m := NewTreeSitterMapper(nil)
	defer m.Close()

	syms, err := m.Map(context.Background(), "sample.go", []byte(goSample))
	if err != nil {
		t.Fatalf("Map: %v", err)
	}

	byName := make(map[string]Symbol)
	for _, s := range syms {
		byName[s.Name] = s
	}

	add, ok := byName["Add"]
	if !ok {
		t.Fatalf("Add not extracted, symbols: %v", syms)
	}
	if add.Kind != "function" || add.StartLine != 3 {
		t.Errorf("Add = %+v, want function starting at line 3", add)
	}
	if !strings.Contains(add.Signature, "(a, b int)") {
		t.Errorf("Add signature = %q", add.Signature)
	}

	counter, ok := byName["Counter"]
	if !ok {
		t.Fatalf("Counter not extracted")
	}
	if counter.Kind != "struct" || counter.StartLine != 7 {
		t.Errorf("Counter = %+v, want struct starting at line 7", counter)
	}

	inc, ok := byName["Inc"]
	if !ok {
		t.Fatalf("Inc not extracted")
	}
	if inc.Kind != "method" || inc.StartLine != 11 {
		t.Errorf("Inc = %+v, want method starting at line 11", inc)
	}
}

func TestMapPythonFile(t *testing.T) {
	m := NewTreeSitterMapper(nil)
	defer m.Close()

	content := "class Engine:\n    def run(self):\n        pass\n\ndef main():\n    pass\n"
	syms, err := m.Map(context.Background(), "engine.py", []byte(content))
	if err != nil {
		t.Fatalf("Map: %v", err)
	}

	var kinds []string
	for _, s := range syms {
		kinds = append(kinds, s.Kind+":"+s.Name)
	}
	joined := strings.Join(kinds, ",")
	for _, want := range []string{"class:Engine", "function:run", "function:main"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %s in %s", want, joined)
		}
	}
}

func TestMapUnsupportedExtension(t *testing.T) {
	m := NewTreeSitterMapper(nil)
	defer m.Close()

	syms, err := m.Map(context.Background(), "notes.txt", []byte("just text"))
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if syms != nil {
		t.Errorf("expected no symbols for unsupported extension, got %v", syms)
	}
	if m.Supports("notes.txt") {
		t.Error("Supports(notes.txt) = true")
	}
	if !m.Supports("main.go") {
		t.Error("Supports(main.go) = false")
	}
}

func TestFormatMap(t *testing.T) {
	syms := []Symbol{
		{Name: "Add", Kind: "function", Signature: "func Add(a, b int) int"},
		{Name: "Counter", Kind: "struct", Signature: "type Counter"},
	}

	condensed := FormatMap(syms, false)
	if condensed != "  function Add\n  struct Counter" {
		t.Errorf("condensed = %q", condensed)
	}

	full := FormatMap(syms, true)
	if !strings.Contains(full, "func Add(a, b int) int") {
		t.Errorf("full = %q", full)
	}
}

func TestNullMapper(t *testing.T) {
	var m Mapper = NullMapper{}
	if m.Available() {
		t.Error("NullMapper reports available")
	}
	syms, err := m.Map(context.Background(), "a.go", nil)
	if err != nil || syms != nil {
		t.Errorf("NullMapper.Map = %v, %v", syms, err)
	}
}
