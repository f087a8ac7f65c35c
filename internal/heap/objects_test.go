package heap

import (
	"testing"

	"maru/internal/value"
)

func TestMapObjSetGetDel(t *testing.T) {
	m := &MapObj{}

	m.Set(value.Int(3), value.String(&value.Str{Bytes: "three"}))
	m.Set(value.Int(1), value.String(&value.Str{Bytes: "one"}))
	m.Set(value.Int(2), value.String(&value.Str{Bytes: "two"}))

	if m.Len() != 3 {
		t.Fatalf("len = %d, want 3", m.Len())
	}
	if len(m.Keys) != len(m.Vals) {
		t.Fatalf("|Keys|=%d != |Vals|=%d", len(m.Keys), len(m.Vals))
	}
	for i := 1; i < len(m.Keys); i++ {
		if Compare(m.Keys[i-1], m.Keys[i]) >= 0 {
			t.Fatalf("keys not strictly sorted at %d: %v, %v", i, m.Keys[i-1], m.Keys[i])
		}
	}

	v, ok := m.Get(value.Int(2))
	if !ok || v.Str.Bytes != "two" {
		t.Fatalf("Get(2) = %v, %v; want \"two\", true", v, ok)
	}

	m.Set(value.Int(2), value.String(&value.Str{Bytes: "TWO"}))
	v, ok = m.Get(value.Int(2))
	if !ok || v.Str.Bytes != "TWO" {
		t.Fatalf("Get(2) after overwrite = %v, %v; want \"TWO\", true", v, ok)
	}
	if m.Len() != 3 {
		t.Fatalf("overwrite changed length: %d", m.Len())
	}

	m.Del(value.Int(1))
	if m.Len() != 2 {
		t.Fatalf("len after Del = %d, want 2", m.Len())
	}
	if _, ok := m.Get(value.Int(1)); ok {
		t.Fatalf("key 1 still present after Del")
	}
}

// TestMapObjNilAssignDeletes checks the Set-nil-deletes invariant
// directly at the MapObj level.
func TestMapObjNilAssignDeletes(t *testing.T) {
	m := &MapObj{}
	key := value.String(&value.Str{Bytes: "k"})
	m.Set(key, value.Int(1))
	if m.Len() != 1 {
		t.Fatalf("len = %d, want 1", m.Len())
	}
	m.Set(key, value.Nil())
	if m.Len() != 0 {
		t.Fatalf("len after nil-assign = %d, want 0", m.Len())
	}
}

// TestMapObjManyKeysSorted exercises the binary-search path above
// linearScanThreshold.
func TestMapObjManyKeysSorted(t *testing.T) {
	m := &MapObj{}
	for i := 20; i >= 0; i-- {
		m.Set(value.Int(int64(i)), value.Int(int64(i*10)))
	}
	if m.Len() != 21 {
		t.Fatalf("len = %d, want 21", m.Len())
	}
	for i := 0; i <= 20; i++ {
		v, ok := m.Get(value.Int(int64(i)))
		if !ok || v.Int() != int64(i*10) {
			t.Fatalf("Get(%d) = %v, %v; want %d, true", i, v, ok, i*10)
		}
	}
	for i := 1; i < len(m.Keys); i++ {
		if Compare(m.Keys[i-1], m.Keys[i]) >= 0 {
			t.Fatalf("keys not sorted at %d", i)
		}
	}
}
