package heap

import "maru/internal/value"

// VectorObj is the growable, 0-indexed sequence value. Meta is an
// optional map or callable consulted for operator dispatch.
type VectorObj struct {
	Items []value.Value
	Meta value.Value
}

// MapObj keeps two parallel vectors, Keys and Vals, sorted by Keys
// under Compare's total order. |Keys| == |Vals| is an invariant
// maintained by Set/Del below.
type MapObj struct {
	Keys []value.Value
	Vals []value.Value
	Meta value.Value
}

// linearScanThreshold is a small linear-scan threshold below which a
// linear scan beats the branchy overhead of binary search on
// typically-tiny maps.
const linearScanThreshold = 8

// find returns the index of key in m.Keys and true if present,
// otherwise the insertion point (lower bound) and false.
func (m *MapObj) find(key value.Value) (int, bool) {
	n := len(m.Keys)
	if n <= linearScanThreshold {
		for i := 0; i < n; i++ {
			c := Compare(m.Keys[i], key)
			if c == 0 {
				return i, true
			}
			if c > 0 {
				return i, false
			}
		}
		return n, false
	}
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		c := Compare(m.Keys[mid], key)
		switch {
		case c == 0:
			return mid, true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

// Get returns the value bound to key, or nil with ok=false.
func (m *MapObj) Get(key value.Value) (value.Value, bool) {
	i, ok := m.find(key)
	if !ok {
		return value.Nil(), false
	}
	return m.Vals[i], true
}

// Set binds key to val. Assigning nil deletes the key instead — a map
// never contains a key whose value is nil.
func (m *MapObj) Set(key, val value.Value) {
	i, ok := m.find(key)
	if val.IsNil() {
		if ok {
			m.delAt(i)
		}
		return
	}
	if ok {
		m.Vals[i] = val
		return
	}
	m.Keys = append(m.Keys, value.Nil())
	copy(m.Keys[i+1:], m.Keys[i:])
	m.Keys[i] = key
	m.Vals = append(m.Vals, value.Nil())
	copy(m.Vals[i+1:], m.Vals[i:])
	m.Vals[i] = val
}

// Del removes key if present.
func (m *MapObj) Del(key value.Value) {
	if i, ok := m.find(key); ok {
		m.delAt(i)
	}
}

func (m *MapObj) delAt(i int) {
	m.Keys = append(m.Keys[:i], m.Keys[i+1:]...)
	m.Vals = append(m.Vals[:i], m.Vals[i+1:]...)
}

func (m *MapObj) Len() int { return len(m.Keys) }

// UserdataObj is an opaque host-owned pointer plus an optional meta
// value.
type UserdataObj struct {
	Ptr any
	Meta value.Value
}
