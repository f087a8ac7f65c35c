package heap

import (
	"sort"

	"maru/internal/value"
)

// Interner implements a two-region string table: an "old"
// region fixed at the end of compilation and a "young" region
// allocated at runtime. intern does a binary search of old, then
// young, inserting into young on a miss. Promote moves young into old
// after compilation finishes; subsequent interning starts a fresh
// young region. Because both regions are kept sorted and unique,
// string equality reduces to pointer equality.
type Interner struct {
	old []*value.Str
	young []*value.Str
}

func NewInterner() *Interner {
	return &Interner{}
}

func search(region []*value.Str, s string) (int, bool) {
	lo, hi := 0, len(region)
	for lo < hi {
		mid := (lo + hi) / 2
		if region[mid].Bytes == s {
			return mid, true
		}
		if region[mid].Bytes < s {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, false
}

// Intern returns the unique *value.Str for s, allocating it in the
// young region on first sight.
func (in *Interner) Intern(s string) *value.Str {
	if i, ok := search(in.old, s); ok {
		return in.old[i]
	}
	if i, ok := search(in.young, s); ok {
		return in.young[i]
	}
	i, _ := search(in.young, s)
	str := &value.Str{Bytes: s}
	in.young = append(in.young, nil)
	copy(in.young[i+1:], in.young[i:])
	in.young[i] = str
	return str
}

// Promote moves every young string into the old region. Called once
// at the end of VM creation, after all modules have compiled.
func (in *Interner) Promote() {
	if len(in.young) == 0 {
		return
	}
	merged := make([]*value.Str, 0, len(in.old)+len(in.young))
	i, j := 0, 0
	for i < len(in.old) && j < len(in.young) {
		if in.old[i].Bytes <= in.young[j].Bytes {
			merged = append(merged, in.old[i])
			i++
		} else {
			merged = append(merged, in.young[j])
			j++
		}
	}
	merged = append(merged, in.old[i:]...)
	merged = append(merged, in.young[j:]...)
	in.old = merged
	in.young = nil
}

// SweepYoung drops every young string not present in live, compacting
// the young array in place; the old region is never swept.
func (in *Interner) SweepYoung(live map[*value.Str]bool) {
	kept := in.young[:0]
	for _, s := range in.young {
		if live[s] {
			kept = append(kept, s)
		}
	}
	in.young = kept
	sort.Slice(in.young, func(i, j int) bool { return in.young[i].Bytes < in.young[j].Bytes })
}

// Young exposes the young region for the collector's mark phase.
func (in *Interner) Young() []*value.Str { return in.young }
