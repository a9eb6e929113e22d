// Package albumtable implements a fixed-capacity, open-addressing
// Robin-Hood hash table keyed on a 52-bit album id, following
// original_source/src/album_table.rs. The table is built once (Insert) and
// then optimized purely for lookups (Get); there is no delete.
package albumtable

import "github.com/astrid-voss/musium/internal/prim"

// entry is one slot in the table. An empty slot has key == 0 (AlbumID(0) is
// the reserved empty sentinel).
type entry[V any] struct {
	key   prim.AlbumID
	value V
	used  bool
}

// Table is a Robin-Hood open-addressing hash table over AlbumID keys.
//
// Probe-length convention (resolving Open Question): maxProbe
// is tracked as a COUNT of slots that must be probed from an entry's ideal
// bucket to find it, not as a maximum offset. Get therefore scans
// [base, base+maxProbe) — maxProbe slots starting at base — which correctly
// covers every inserted key because Insert only ever increases maxProbe to
// cover the distance of the entry it just placed, and distance-from-ideal
// for a slot at offset d from base is d+1 slots probed (including base
// itself). We store maxProbe as that slot count directly, so no "+1" is
// needed at lookup time; insertion computes the count consistently with the
// table below.
type Table[V any] struct {
	slots    []entry[V]
	mask     uint64 // capacity-1, capacity is a power of two
	maxProbe int
	size     int
}

// New returns a table sized to comfortably hold at least capacityHint
// entries without excessive Robin-Hood churn (load factor kept under 0.7).
func New[V any](capacityHint int) *Table[V] {
	cap := nextPow2(capacityHint*10/7 + 1)
	if cap < 8 {
		cap = 8
	}
	return &Table[V]{
		slots: make([]entry[V], cap),
		mask:  uint64(cap - 1),
	}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// ideal returns k's home slot using the identity hash for AlbumID: the id
// already looks like a hash (derived from a UUID), so no further mixing is
// applied.
func (t *Table[V]) ideal(k prim.AlbumID) uint64 {
	return uint64(k) & t.mask
}

// probeLen returns the number of slots (counting the ideal bucket as 1) an
// entry currently sitting at index idx has been probed, given it wants
// ideal bucket ideal(key).
func (t *Table[V]) probeLen(idx uint64, key prim.AlbumID) int {
	ideal := t.ideal(key)
	return int((idx-ideal)&t.mask) + 1
}

// Insert places key/value into the table, evicting along a Robin-Hood chain
// as needed: when the incoming entry's probe length exceeds the resident's,
// they swap and the (now evicted) resident continues probing forward.
// Insert panics if key is the reserved empty sentinel AlbumID(0).
func (t *Table[V]) Insert(key prim.AlbumID, value V) {
	if key == 0 {
		panic("albumtable: cannot insert the empty sentinel AlbumID(0)")
	}
	idx := t.ideal(key)
	curKey, curVal := key, value
	curProbe := 1
	for {
		slot := &t.slots[idx]
		if !slot.used {
			slot.used = true
			slot.key = curKey
			slot.value = curVal
			if curProbe > t.maxProbe {
				t.maxProbe = curProbe
			}
			t.size++
			return
		}
		if slot.key == curKey {
			// Overwrite; probe length unchanged.
			slot.value = curVal
			return
		}
		residentProbe := t.probeLen(idx, slot.key)
		if residentProbe < curProbe {
			// Steal: the incoming entry is "poorer" (probed further from
			// its ideal bucket than the resident), so it keeps the slot.
			slot.key, curKey = curKey, slot.key
			slot.value, curVal = curVal, slot.value
			if curProbe > t.maxProbe {
				t.maxProbe = curProbe
			}
			curProbe = residentProbe
		}
		idx = (idx + 1) & t.mask
		curProbe++
	}
}

// Get looks up key, scanning at most maxProbe slots starting at its ideal
// bucket (see the Table doc comment for why maxProbe slots, not +1, is
// correct).
func (t *Table[V]) Get(key prim.AlbumID) (V, bool) {
	var zero V
	if key == 0 || len(t.slots) == 0 {
		return zero, false
	}
	idx := t.ideal(key)
	for i := 0; i < t.maxProbe; i++ {
		slot := &t.slots[idx]
		if !slot.used {
			return zero, false
		}
		if slot.key == key {
			return slot.value, true
		}
		idx = (idx + 1) & t.mask
	}
	return zero, false
}

// Len reports how many entries have been inserted.
func (t *Table[V]) Len() int { return t.size }

// MaxProbeLen exposes the current worst-case probe length, mostly for tests.
func (t *Table[V]) MaxProbeLen() int { return t.maxProbe }
