package host

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"maru/internal/value"
)

// captureStdout runs fn with os.Stdout redirected into a pipe and
// returns whatever it wrote, trimmed of its trailing newline.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	saved := os.Stdout
	os.Stdout = w
	fn()
	os.Stdout = saved
	w.Close()

	var buf bytes.Buffer
	io.Copy(&buf, r)
	r.Close()
	return strings.TrimRight(buf.String(), "\n")
}

func TestNewRunRoundTrip(t *testing.T) {
	h, err := New([]Module{{Name: "main", Source: "sum=0; for i in 10 sum=sum+i end; print(sum)"}}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out := captureStdout(t, func() {
		if err := h.Run(0); err != nil {
			t.Fatalf("Run: %v", err)
		}
	})
	if out != "45" {
		t.Fatalf("output = %q, want %q", out, "45")
	}
	if h.Err() != "" {
		t.Fatalf("Err() = %q, want empty", h.Err())
	}
}

func TestRunNamedResolvesByModuleName(t *testing.T) {
	h, err := New([]Module{
		{Name: "first", Source: "print(1)"},
		{Name: "second", Source: "print(2)"},
	}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out := captureStdout(t, func() {
		if err := h.RunNamed("second"); err != nil {
			t.Fatalf("RunNamed: %v", err)
		}
	})
	if out != "2" {
		t.Fatalf("output = %q, want %q", out, "2")
	}
}

func TestRunRecordsLastError(t *testing.T) {
	h, err := New([]Module{{Name: "main", Source: "x=1/0"}}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := h.Run(0); err == nil {
		t.Fatalf("expected division-by-zero error")
	}
	if h.Err() == "" {
		t.Fatalf("Err() empty after a failing run")
	}
}

// TestCallbackRegistrationAndUserdata exercises the embedding-surface
// callback and userdata plumbing: a host function registered under
// lib.<name> receives arguments through the Stack ABI and can see the
// userdata value through a second callback.
func TestCallbackRegistrationAndUserdata(t *testing.T) {
	type counter struct{ n int }
	c := &counter{}

	callbacks := []Callback{
		{Name: "bump", Fn: func(abi value.Stack, argc int) (int, error) {
			if argc != 1 {
				return 0, nil
			}
			n := abi.Pop()
			c.n += int(ToInt(n))
			abi.Push(MakeInt(int64(c.n)))
			return 1, nil
		}},
		{Name: "isud", Fn: func(abi value.Stack, argc int) (int, error) {
			if argc != 1 {
				return 0, nil
			}
			abi.Push(MakeBool(IsUserdata(abi.Pop())))
			return 1, nil
		}},
	}

	h, err := New([]Module{{Name: "main", Source: "print(lib.bump(3)); print(lib.bump(4)); print(lib.isud(userdata))"}}, callbacks, c)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out := captureStdout(t, func() {
		if err := h.Run(0); err != nil {
			t.Fatalf("Run: %v", err)
		}
	})
	if out != "3\n7\ntrue" {
		t.Fatalf("output = %q, want %q", out, "3\n7\ntrue")
	}
	if c.n != 7 {
		t.Fatalf("counter.n = %d, want 7", c.n)
	}
}

func TestDestroyDropsReferences(t *testing.T) {
	h, err := New([]Module{{Name: "main", Source: "print(1)"}}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.Destroy()
	if h.machine != nil || h.prog != nil {
		t.Fatalf("Destroy did not clear internal references")
	}
}
