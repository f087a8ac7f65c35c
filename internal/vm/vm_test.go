package vm

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"maru/internal/compiler"
	"maru/internal/heap"
	"maru/internal/lexer"
	"maru/internal/parser"
)

// compileAndRun drives a maru source string through the full
// lexer/parser/compiler pipeline, builds a fresh VM over it, and
// returns whatever the script wrote via print, captured off a
// redirected stdout.
func compileAndRun(t *testing.T, src string) (string, error) {
	t.Helper()

	toks, err := lexer.New(src).Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	stmts, err := parser.New(toks).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	interner := heap.NewInterner()
	comp := compiler.New(interner)
	prog, err := comp.CompileModules([]string{"test"}, [][]parser.Node{stmts})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	interner.Promote()

	machine := New(prog, interner)

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	saved := os.Stdout
	os.Stdout = w
	runErr := machine.Run(0)
	os.Stdout = saved
	w.Close()

	var buf bytes.Buffer
	io.Copy(&buf, r)
	r.Close()

	return strings.TrimRight(buf.String(), "\n"), runErr
}

func TestEndToEndScenarios(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "sum over a range",
			src:  "sum=0; for i in 10 sum=sum+i end; print(sum)",
			want: "45",
		},
		{
			name: "sum over a vector",
			src:  "sum=0; for v in [1,2,3] sum=sum+v end; print(sum)",
			want: "6",
		},
		{
			name: "coroutine yields collected into a vector",
			src: "function iter() for i in 3 lib.yield(i) end end; " +
				"cor=lib.coroutine(iter); a=[]; for i in cor a[#a]=i end; print(a)",
			want: "[0, 1, 2]",
		},
		{
			name: "meta == drives vector equality",
			src: `objA=[1,2,3]; objB=[1,2,4]; ` +
				`m={"==" = function(a,b) return a[0]==b[0] and a[1]==b[1] end}; ` +
				`lib.setmeta(objA,m); lib.setmeta(objB,m); print(objA==objB)`,
			want: "true",
		},
		{
			name: "variadic min picks the smallest argument",
			src:  "min = lib.min; print(min(2,1,3))",
			want: "1",
		},
		{
			name: "make(x) captures x lexically",
			src:  "function make(x) return function() return x end end; f = make(7); print(f())",
			want: "7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := compileAndRun(t, tt.src)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestContinueSkipsAssert exercises `continue` unwinding a loop
// iteration before reaching lib.assert, per the boundary behavior
// that a skipped statement never runs.
func TestContinueSkipsAssert(t *testing.T) {
	src := "i=10; while i>0 i=i-1; if i==5 continue end; lib.assert(i!=5) end"
	_, err := compileAndRun(t, src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

// TestEmptyForZeroIterations checks the `for i in 0` boundary: the
// body must never execute.
func TestEmptyForZeroIterations(t *testing.T) {
	src := "n=0; for i in 0 n=n+1 end; print(n)"
	got, err := compileAndRun(t, src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != "0" {
		t.Errorf("output = %q, want %q", got, "0")
	}
}

// TestOrShortCircuits checks that `a or b` doesn't evaluate b when a
// is truthy — a side-effecting b would otherwise show up in output.
func TestOrShortCircuits(t *testing.T) {
	src := `function boom() print("evaluated") return 1 end; print(1 or boom())`
	got, err := compileAndRun(t, src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != "1" {
		t.Errorf("output = %q, want %q (boom should never print)", got, "1")
	}
}

// TestMapKeyRemovalOnNilAssign checks that assigning nil to a map key
// removes it rather than storing a nil entry.
func TestMapKeyRemovalOnNilAssign(t *testing.T) {
	src := `m={}; m["a"]=1; m["a"]=nil; print(#m)`
	got, err := compileAndRun(t, src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != "0" {
		t.Errorf("output = %q, want %q", got, "0")
	}
}

// TestDivisionByZeroErrors checks that integer division by zero
// surfaces as a runtime error rather than panicking the dispatch
// loop.
func TestDivisionByZeroErrors(t *testing.T) {
	src := "x=1/0; print(x)"
	_, err := compileAndRun(t, src)
	if err == nil {
		t.Fatalf("expected division-by-zero error, got nil")
	}
}
