// Package shuffle reorders a queue of tracks so the same artist is spread
// out as evenly as possible, grounded in shuffle.rs's partition-then-merge
// design: partition by artist, shuffle within each partition, then merge
// the partitions back together biggest-first so no partition is starved.
//
// "2-badness" is the number of adjacent pairs in the result that share an
// artist. For a multiset of n tracks where the most frequent artist occurs
// k times, the lowest achievable 2-badness is max(0, k-1-(n-k)): you need
// at least k-1 "other" tracks to separate k same-artist tracks, so if fewer
// than k-1 others exist, some adjacency is unavoidable.
package shuffle

import (
	"math/rand/v2"

	"github.com/astrid-voss/musium/internal/prim"
)

// TrackRef is the minimal information shuffle needs about a queued track:
// its position in the caller's original slice, and the album/artist it
// belongs to for partitioning.
type TrackRef struct {
	Index    int
	AlbumID  prim.AlbumID
	ArtistID prim.ArtistID
}

// NewSource builds a ChaCha8-backed PRNG source seeded from a 32-byte key.
// math/rand/v2's ChaCha8 is used instead of a third-party crate: it's the
// same algorithm the original implementation pins (rand_chacha::ChaCha8Rng),
// and the standard library already ships it, so there is nothing for an
// external dependency to add here.
func NewSource(seed [32]byte) *rand.ChaCha8 {
	return rand.NewChaCha8(seed)
}

// Shuffle returns a permutation of refs (same elements, reordered) such
// that tracks by the same artist are interleaved with other artists as
// evenly as the track multiset allows, leaving ties broken by rng.
//
// The algorithm proceeds in two levels, mirroring shuffle_internal and
// shuffle_internal_artist:
//  1. Partition by artist. Shuffle the tracks within each artist partition
//     by partitioning further by album, riffling each album independently,
//     then merging the per-album runs back together.
//  2. Merge the artist partitions back together with the same greedy,
//     largest-remaining-first interleave, which is what bounds the
//     resulting 2-badness at the theoretical optimum.
func Shuffle(rng *rand.Rand, refs []TrackRef) []TrackRef {
	if len(refs) == 0 {
		return nil
	}

	byArtist := partitionBy(refs, func(t TrackRef) prim.ArtistID { return t.ArtistID })
	artistRuns := make([][]TrackRef, 0, len(byArtist))
	for _, tracks := range byArtist {
		artistRuns = append(artistRuns, shuffleWithinArtist(rng, tracks))
	}

	return mergeGreedy(rng, artistRuns)
}

// shuffleWithinArtist randomizes track order within a single artist's
// tracks without regard for 2-badness (all of these tracks share an
// artist, so their relative order doesn't affect artist-adjacency): each
// album's tracks are shuffled as a run, then the album runs are interleaved
// for variety so one album doesn't dominate a long stretch.
func shuffleWithinArtist(rng *rand.Rand, tracks []TrackRef) []TrackRef {
	byAlbum := partitionBy(tracks, func(t TrackRef) prim.AlbumID { return t.AlbumID })
	albumRuns := make([][]TrackRef, 0, len(byAlbum))
	for _, albumTracks := range byAlbum {
		shuffleSlice(rng, albumTracks)
		albumRuns = append(albumRuns, albumTracks)
	}
	return mergeGreedy(rng, albumRuns)
}

// partitionBy groups tracks by key, preserving each group's relative
// input order. Map iteration order (used by the caller to build a slice of
// groups) is randomized by Go itself, which only adds to the shuffle.
func partitionBy[K comparable](tracks []TrackRef, key func(TrackRef) K) map[K][]TrackRef {
	groups := make(map[K][]TrackRef)
	for _, t := range tracks {
		groups[key(t)] = append(groups[key(t)], t)
	}
	return groups
}

// shuffleSlice performs an in-place Fisher-Yates shuffle.
func shuffleSlice(rng *rand.Rand, s []TrackRef) {
	for i := len(s) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

// mergeQueue is one partition's remaining tracks, tagged with a stable id
// so "same group as the last pick" comparisons survive queues being
// removed from the working slice (a plain slice index would be reassigned
// to a different group once an earlier queue is spliced out).
type mergeQueue struct {
	id    int
	items []TrackRef
}

// mergeGreedy interleaves a set of runs (each internally already ordered)
// by always taking the next element from whichever remaining run is
// longest, breaking ties uniformly at random. When the longest run is the
// group of the previous pick, it instead takes one element from the
// second-longest run to avoid consecutive repeats, which is the
// standard greedy construction for minimizing adjacent repeats in a
// multiset merge (the same idea used to solve "reorganize string"), and it
// realizes the 2-badness lower bound from the package doc.
func mergeGreedy(rng *rand.Rand, runs [][]TrackRef) []TrackRef {
	total := 0
	queues := make([]mergeQueue, 0, len(runs))
	for _, r := range runs {
		if len(r) == 0 {
			continue
		}
		total += len(r)
		queues = append(queues, mergeQueue{id: len(queues), items: r})
	}
	if len(queues) == 0 {
		return nil
	}
	if len(queues) == 1 {
		return queues[0].items
	}

	result := make([]TrackRef, 0, total)
	lastGroup := -1

	for len(queues) > 0 {
		first, second := pickTwoLargest(rng, queues)

		take := first
		if queues[first].id == lastGroup && second >= 0 {
			take = second
		}

		result = append(result, queues[take].items[0])
		queues[take].items = queues[take].items[1:]
		lastGroup = queues[take].id

		if len(queues[take].items) == 0 {
			queues = append(queues[:take], queues[take+1:]...)
		}
	}

	return result
}

// pickTwoLargest returns the positions (within queues) of the longest and
// second-longest (by remaining length) queues, breaking ties uniformly at
// random. second is -1 when fewer than two non-empty queues remain.
func pickTwoLargest(rng *rand.Rand, queues []mergeQueue) (first, second int) {
	first, second = -1, -1
	var firstLen, secondLen int

	// Collect candidates tied for the top length, then pick randomly among
	// them, so repeated runs with the same length distribution don't
	// always interleave in the same pattern.
	for i, q := range queues {
		switch {
		case len(q.items) > firstLen:
			second, secondLen = first, firstLen
			first, firstLen = i, len(q.items)
		case len(q.items) > secondLen:
			second, secondLen = i, len(q.items)
		}
	}

	tiedFirst := make([]int, 0, len(queues))
	for i, q := range queues {
		if len(q.items) == firstLen {
			tiedFirst = append(tiedFirst, i)
		}
	}
	if len(tiedFirst) > 1 {
		first = tiedFirst[rng.IntN(len(tiedFirst))]
		// Recompute second excluding the chosen first, since ties may
		// have shifted which index is "second longest".
		second = -1
		secondLen = 0
		for i, q := range queues {
			if i == first {
				continue
			}
			if len(q.items) > secondLen {
				second, secondLen = i, len(q.items)
			}
		}
	}

	return first, second
}
