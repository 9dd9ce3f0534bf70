package engine

import (
	"github.com/hailam/gochess/internal/board"
)

// TTFlag indicates the type of bound stored in the transposition table.
type TTFlag uint8

const (
	TTExact      TTFlag = iota // Exact score
	TTLowerBound               // Failed high (beta cutoff)
	TTUpperBound               // Failed low
)

// TTEntry represents an entry in the transposition table.
type TTEntry struct {
	Key      uint64     // Full 64-bit Zobrist hash for verification
	BestMove board.Move // Best move found
	Score    int16      // Score (bounded by flag)
	Depth    int8       // Search depth
	Flag     TTFlag     // Type of bound
	Age      uint8      // Generation for replacement
}

// TTStats is a snapshot of transposition table usage.
type TTStats struct {
	Size       uint64
	Capacity   uint64
	UsageRatio float64
	Hits       uint64
	Misses     uint64
	HitRate    float64
	Collisions uint64
}

// TranspositionTable is a fixed-capacity hash table for caching search
// results, keyed by full Zobrist hash. The search runs single-threaded,
// so no internal locking is needed.
type TranspositionTable struct {
	entries []TTEntry
	size    uint64
	mask    uint64
	age     uint8

	hits       uint64
	misses     uint64
	probes     uint64
	collisions uint64
}

// NewTranspositionTable creates a transposition table with the given size in MB.
func NewTranspositionTable(sizeMB int) *TranspositionTable {
	entrySize := uint64(16) // sizeof(TTEntry), rounded up
	numEntries := (uint64(sizeMB) * 1024 * 1024) / entrySize
	numEntries = roundDownToPowerOf2(numEntries)
	if numEntries == 0 {
		numEntries = 1
	}

	return &TranspositionTable{
		entries: make([]TTEntry, numEntries),
		size:    numEntries,
		mask:    numEntries - 1,
	}
}

// roundDownToPowerOf2 rounds n down to the nearest power of 2.
func roundDownToPowerOf2(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return (n + 1) >> 1
}

// Probe returns the raw entry stored under hash, if any. Quiescence stores
// entries at depth 0 (see Worker.quiescenceInternal), so a slot is "empty"
// only by its zero Key, not by a zero Depth — requiring Depth > 0 here
// would make every quiescence-stored entry permanently unretrievable.
func (tt *TranspositionTable) Probe(hash uint64) (TTEntry, bool) {
	idx := hash & tt.mask
	entry := tt.entries[idx]
	if entry.Key == hash && entry.Key != 0 {
		return entry, true
	}
	return TTEntry{}, false
}

// Lookup probes the table for a usable bound at or above requestedDepth,
// consistent with the alpha/beta window. Returns (true, score) on a hit.
func (tt *TranspositionTable) Lookup(hash uint64, requestedDepth, alpha, beta, ply int) (int, bool) {
	tt.probes++

	entry, ok := tt.Probe(hash)
	if !ok || int(entry.Depth) < requestedDepth {
		tt.misses++
		return 0, false
	}

	score := AdjustScoreFromTT(int(entry.Score), ply)
	switch entry.Flag {
	case TTExact:
		tt.hits++
		return score, true
	case TTLowerBound:
		if score >= beta {
			tt.hits++
			return score, true
		}
	case TTUpperBound:
		if score <= alpha {
			tt.hits++
			return score, true
		}
	}

	tt.misses++
	return 0, false
}

// Store inserts or replaces an entry under hash. Replacement happens when
// the bucket is empty, the incoming depth is at least the existing depth,
// the incoming bound is exact, or the existing entry is from a search more
// than two generations old; otherwise the existing entry is kept and the
// attempt is counted as a collision.
func (tt *TranspositionTable) Store(hash uint64, depth int, score int, flag TTFlag, bestMove board.Move) {
	idx := hash & tt.mask
	entry := &tt.entries[idx]

	empty := entry.Depth == 0 && entry.Key == 0
	replace := empty ||
		depth >= int(entry.Depth) ||
		flag == TTExact ||
		tt.age > entry.Age+2

	if !replace {
		tt.collisions++
		return
	}

	entry.Key = hash
	entry.BestMove = bestMove
	entry.Score = int16(score)
	entry.Depth = int8(depth)
	entry.Flag = flag
	entry.Age = tt.age
}

// IncrementAge starts a new search generation; if age wraps, the table is
// cleared rather than retaining entries tagged with a stale small age.
func (tt *TranspositionTable) IncrementAge() {
	if tt.age == 255 {
		tt.Clear()
		return
	}
	tt.age++
}

// NewSearch is an alias for IncrementAge kept for callers using the
// engine's earlier naming.
func (tt *TranspositionTable) NewSearch() {
	tt.IncrementAge()
}

// Clear empties the table and resets statistics and age.
func (tt *TranspositionTable) Clear() {
	for i := range tt.entries {
		tt.entries[i] = TTEntry{}
	}
	tt.age = 0
	tt.hits = 0
	tt.misses = 0
	tt.probes = 0
	tt.collisions = 0
}

// HashFull returns the permille of the table that is used in the current
// search generation, sampled over the first 1000 entries.
func (tt *TranspositionTable) HashFull() int {
	sampleSize := 1000
	if uint64(sampleSize) > tt.size {
		sampleSize = int(tt.size)
	}
	if sampleSize == 0 {
		return 0
	}

	used := 0
	for i := 0; i < sampleSize; i++ {
		if tt.entries[i].Depth > 0 && tt.entries[i].Age == tt.age {
			used++
		}
	}
	return (used * 1000) / sampleSize
}

// GetStats returns a snapshot of table usage and hit/miss/collision counts.
func (tt *TranspositionTable) GetStats() TTStats {
	hitRate := 0.0
	if tt.probes > 0 {
		hitRate = float64(tt.hits) / float64(tt.probes) * 100
	}
	return TTStats{
		Size:       tt.size,
		Capacity:   tt.size,
		UsageRatio: float64(tt.HashFull()) / 10,
		Hits:       tt.hits,
		Misses:     tt.misses,
		HitRate:    hitRate,
		Collisions: tt.collisions,
	}
}

// Size returns the number of entries in the table.
func (tt *TranspositionTable) Size() uint64 {
	return tt.size
}

// AdjustScoreFromTT converts a mate score stored relative to this node
// back into one relative to the root, by ply distance.
func AdjustScoreFromTT(score int, ply int) int {
	if score > Mate-MaxPly {
		return score - ply
	}
	if score < -Mate+MaxPly {
		return score + ply
	}
	return score
}

// AdjustScoreToTT converts a root-relative mate score into one relative
// to the current node, for storage.
func AdjustScoreToTT(score int, ply int) int {
	if score > Mate-MaxPly {
		return score + ply
	}
	if score < -Mate+MaxPly {
		return score - ply
	}
	return score
}
