// Package wordindex implements the sorted key-prefix search index that
// backs search-as-you-type over artists, albums, and tracks.
//
// The real engine packs everything into four flat byte/uint32 arrays for
// cache-friendly binary search; this implementation keeps the same
// structure — sorted unique keys, a value range per key, packed Meta per
// value — using Go slices of the natural element type instead of raw bytes,
// since MemoryIndex is already immutable and GC-owned rather than
// mmap'd.
package wordindex

import (
	"container/heap"
	"sort"
)

// Triple is one row of build input: a normalized word, the id of the
// artist/album/track it was derived from, and its (pre-frequency) metadata.
type Triple struct {
	Word  string
	Value uint64
	Meta  Meta
}

// Index is the built, immutable search structure.
type Index struct {
	keys  []string // sorted, unique
	start []int32  // per key: offset into values/metas
	// values/metas are grouped by key in the same order as keys; the range
	// for keys[i] is [start[i], start[i+1]).
	values []uint64
	metas  []Meta
}

// Build constructs an Index from possibly-unsorted, possibly-duplicated
// triples. The log-frequency field of each value's Meta is fixed up here
// once the true per-key value count is known.
func Build(triples []Triple) *Index {
	sorted := make([]Triple, len(triples))
	copy(sorted, triples)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Word != sorted[j].Word {
			return sorted[i].Word < sorted[j].Word
		}
		return sorted[i].Value < sorted[j].Value
	})

	idx := &Index{}
	i := 0
	for i < len(sorted) {
		j := i
		for j < len(sorted) && sorted[j].Word == sorted[i].Word {
			j++
		}
		group := sorted[i:j]
		logFreq := ilog2(len(group))
		idx.keys = append(idx.keys, group[0].Word)
		idx.start = append(idx.start, int32(len(idx.values)))
		for _, tr := range group {
			idx.values = append(idx.values, tr.Value)
			idx.metas = append(idx.metas, tr.Meta.withLogFrequency(logFreq))
		}
		i = j
	}
	idx.start = append(idx.start, int32(len(idx.values))) // sentinel

	return idx
}

func ilog2(n int) int {
	if n <= 1 {
		return 0
	}
	l := 0
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}

// valueRange returns the half-open [lo,hi) slice indices for keys[keyIdx].
func (idx *Index) valueRange(keyIdx int) (int32, int32) {
	return idx.start[keyIdx], idx.start[keyIdx+1]
}

// PrefixRange returns the half-open key-index range [lower, upper) of keys
// that have needle as a prefix, using two binary searches that each compare
// needle to the min(|needle|, |key|) prefix of key.
func (idx *Index) PrefixRange(needle string) (lower, upper int) {
	lower = sort.Search(len(idx.keys), func(i int) bool {
		return comparePrefix(idx.keys[i], needle) >= 0
	})
	upper = sort.Search(len(idx.keys), func(i int) bool {
		return comparePrefix(idx.keys[i], needle) > 0
	})
	return lower, upper
}

// comparePrefix compares key to needle restricted to the first
// min(len(key), len(needle)) bytes of key, the way a prefix-search
// comparator must: it treats key as "equal" to needle as soon as it has
// needle as a prefix, regardless of what follows.
func comparePrefix(key, needle string) int {
	n := len(key)
	if len(needle) < n {
		n = len(needle)
	}
	truncated := key[:n]
	if truncated < needle {
		return -1
	}
	if truncated > needle {
		return 1
	}
	// truncated == needle: key has needle as a prefix (or key == needle's
	// prefix exactly) when len(key) >= len(needle); otherwise key is a
	// strict prefix of needle, i.e. key < needle lexicographically beyond
	// the compared range.
	if len(key) < len(needle) {
		return -1
	}
	return 0
}

// Match is one search result: a value id plus one metadata per needle (for
// the prefix-matched last needle, the meta from the shortest matching key).
type Match struct {
	Value uint64
	Metas []Meta // one per needle, in needle order
}

// keyValueIter walks one prefix-matched key's value range; iterHeap merges
// them in unionPrefix.
type keyValueIter struct {
	values []uint64
	metas  []Meta
	pos    int
}

func (it *keyValueIter) done() bool { return it.pos >= len(it.values) }
func (it *keyValueIter) head() uint64 {
	return it.values[it.pos]
}

type iterHeap []*keyValueIter

func (h iterHeap) Len() int            { return len(h) }
func (h iterHeap) Less(i, j int) bool  { return h[i].head() < h[j].head() }
func (h iterHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *iterHeap) Push(x interface{}) { *h = append(*h, x.(*keyValueIter)) }
func (h *iterHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// unionPrefix merges the value ranges of every key in [lower,upper) into a
// single value-sorted stream via a min-heap, returning one (value, bestMeta)
// pair per distinct value (best = the meta with the fewest leftover
// characters, i.e. from the key closest to an exact match — ties keep the
// first one encountered).
func (idx *Index) unionPrefix(lower, upper int) []struct {
	value uint64
	meta  Meta
} {
	h := make(iterHeap, 0, upper-lower)
	for k := lower; k < upper; k++ {
		lo, hi := idx.valueRange(k)
		if lo == hi {
			continue
		}
		h = append(h, &keyValueIter{values: idx.values[lo:hi], metas: idx.metas[lo:hi]})
	}
	heap.Init(&h)

	var out []struct {
		value uint64
		meta  Meta
	}
	for h.Len() > 0 {
		smallest := h[0].head()
		var bestMeta Meta
		haveBest := false
		for h.Len() > 0 && h[0].head() == smallest {
			it := h[0]
			if !haveBest || it.metas[it.pos].WordLen() < bestMeta.WordLen() {
				bestMeta = it.metas[it.pos]
				haveBest = true
			}
			it.pos++
			if it.done() {
				heap.Pop(&h)
			} else {
				heap.Fix(&h, 0)
			}
		}
		out = append(out, struct {
			value uint64
			meta  Meta
		}{smallest, bestMeta})
	}
	return out
}

// Search performs a conjunctive multi-word search: every needle but the
// last must be an exact key match; the last needle is a prefix match
// whose candidate keys are unioned; results are intersected by value id
// across all needles.
func (idx *Index) Search(needles []string) []Match {
	if len(needles) == 0 {
		return nil
	}

	type candidateSet struct {
		values []uint64
		metas  []Meta
	}
	sets := make([]candidateSet, len(needles))

	for i, needle := range needles {
		if i < len(needles)-1 {
			lo, hi := idx.PrefixRange(needle)
			// exact match only: the key itself must equal needle.
			found := false
			for k := lo; k < hi; k++ {
				if idx.keys[k] == needle {
					vlo, vhi := idx.valueRange(k)
					sets[i] = candidateSet{values: idx.values[vlo:vhi], metas: idx.metas[vlo:vhi]}
					found = true
					break
				}
			}
			if !found {
				return nil
			}
		} else {
			lo, hi := idx.PrefixRange(needle)
			if lo == hi {
				return nil
			}
			merged := idx.unionPrefix(lo, hi)
			values := make([]uint64, len(merged))
			metas := make([]Meta, len(merged))
			for j, m := range merged {
				values[j] = m.value
				metas[j] = m.meta
			}
			sets[i] = candidateSet{values: values, metas: metas}
		}
	}

	// Intersect by value, sweeping the smallest head forward (classic
	// sorted merge-intersection across N lists).
	pos := make([]int, len(sets))
	var out []Match
	for {
		// Find max head value across non-exhausted sets; advance any set
		// whose head is behind it. When all heads agree, emit a match.
		allPresent := true
		var maxVal uint64
		for i := range sets {
			if pos[i] >= len(sets[i].values) {
				return out
			}
			if i == 0 || sets[i].values[pos[i]] > maxVal {
				maxVal = sets[i].values[pos[i]]
			}
		}
		for i := range sets {
			for pos[i] < len(sets[i].values) && sets[i].values[pos[i]] < maxVal {
				pos[i]++
			}
			if pos[i] >= len(sets[i].values) {
				return out
			}
			if sets[i].values[pos[i]] != maxVal {
				allPresent = false
			}
		}
		if allPresent {
			metas := make([]Meta, len(sets))
			for i := range sets {
				metas[i] = sets[i].metas[pos[i]]
			}
			out = append(out, Match{Value: maxVal, Metas: metas})
			for i := range sets {
				pos[i]++
			}
		}
	}
}

// Penalty computes the ranking penalty for one needle/match pair using a
// six-step formula. Lower is better.
func Penalty(m Meta, needleLen int) float64 {
	excess := float64(m.WordLen() - needleLen)
	penalty := excess * excess
	logFreq := float64(m.LogFrequency())
	penalty *= logFreq + 1
	penalty = 10*penalty + float64(m.WordIndex())
	penalty += 10 * logFreq * logFreq
	penalty *= float64(3 - int(m.Rank()))
	return penalty
}

// tieBreak is the final comparator term: -100*word_len/total_len.
func tieBreak(m Meta) float64 {
	if m.TotalLen() == 0 {
		return 0
	}
	return -100 * float64(m.WordLen()) / float64(m.TotalLen())
}

// RankMatches sorts matches ascending by the penalty of a single
// representative meta per match — the first of its per-needle metas with a
// nonzero Rank, paired with that needle's length — then by that same meta's
// tie break term. Only one meta is considered per match, not all of them:
// a multi-word query matching in both the title and the artist should rank
// by its best hit, not be penalized twice over.
func RankMatches(matches []Match, needleLens []int) {
	sort.SliceStable(matches, func(i, j int) bool {
		mi, nli := rankingMeta(matches[i], needleLens)
		mj, nlj := rankingMeta(matches[j], needleLens)
		pi, pj := Penalty(mi, nli), Penalty(mj, nlj)
		if pi != pj {
			return pi < pj
		}
		return tieBreak(mi) < tieBreak(mj)
	})
}

// rankingMeta returns the first (meta, needleLen) pair among m's per-needle
// metas whose Rank is nonzero, falling back to the first pair if every meta
// is RankTertiary.
func rankingMeta(m Match, needleLens []int) (Meta, int) {
	for i, meta := range m.Metas {
		nl := 0
		if i < len(needleLens) {
			nl = needleLens[i]
		}
		if meta.Rank() > RankTertiary {
			return meta, nl
		}
	}
	nl := 0
	if len(needleLens) > 0 {
		nl = needleLens[0]
	}
	return m.Metas[0], nl
}
