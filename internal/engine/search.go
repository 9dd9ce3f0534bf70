package engine

import (
	"sync/atomic"

	"github.com/hailam/gochess/internal/board"
)

// Search constants
const (
	Inf    = 32000 // alpha-beta sentinel, kept clear of Mate so negation never overflows
	Mate   = 30000
	MaxPly = 128 // array-sizing safety margin, above MaxDepth+MaxQuiescencePly
)

// Tunable search parameters. These are fixed at compile time; no
// caller-facing option overrides them.
const (
	maxSearchDepth      = 64
	maxQuiescencePly    = 10
	deltaMargin         = 200
	seeQuiescenceThreshold = -20
	lazyEvalMargin      = 150
	nodesPerTimeCheck   = 1024

	staticNullMoveBase   = 120 // beta + staticNullMoveBase*depth
	nullMoveBaseReduction = 3
	nullMoveMaxReduction  = 4
	nullMoveMinReduction  = 2
	nullMoveVerifyDepth   = 5
	nullMoveEvalCeiling   = 9000 // |staticEval| below this to attempt null move

	futilityBase  = 125
	futilityScale = 100
	futilityNotImprovingExtra = 125
	maxFutilityDepth = 3

	maxLMPDepth = 3

	lmrMinDepth  = 3
	lmrMinMoveIndex = 4
)

// PVTable stores the principal variation discovered at each ply.
type PVTable struct {
	length [MaxPly]int
	moves  [MaxPly][MaxPly]board.Move
}

// Searcher owns one search's mutable state: the transposition table
// pointer, pawn hash cache, move orderer, and a cooperative stop flag.
// The driver (Engine) creates one Searcher and reuses it across calls;
// nothing here is shared across concurrent searches.
type Searcher struct {
	worker   *Worker
	stopFlag atomic.Bool
}

// NewSearcher creates a new searcher backed by the given transposition
// table.
func NewSearcher(tt *TranspositionTable) *Searcher {
	pawnTable := NewPawnTable(1) // 1MB pawn hash table
	s := &Searcher{}
	s.worker = NewWorker(tt, pawnTable, &s.stopFlag)
	return s
}

// Stop signals the in-progress search to unwind as soon as the next node
// check runs.
func (s *Searcher) Stop() {
	s.stopFlag.Store(true)
}

// Reset clears the stop flag and per-search worker state (node count,
// killers, history) ahead of a new call to Search.
func (s *Searcher) Reset() {
	s.stopFlag.Store(false)
	s.worker.Reset()
}

// Nodes returns the number of nodes visited by the most recent search.
func (s *Searcher) Nodes() uint64 {
	return s.worker.Nodes()
}

// Search runs negamax at the given depth with a full window.
func (s *Searcher) Search(pos *board.Position, depth int) (board.Move, int) {
	return s.SearchWithBounds(pos, depth, -Inf, Inf)
}

// SetRootHistory seeds repetition detection with the game's position
// history prior to the position being searched.
func (s *Searcher) SetRootHistory(hashes []uint64) {
	s.worker.SetRootHistory(hashes)
}

// SearchWithBounds runs negamax at the given depth within a caller-chosen
// alpha/beta window (used by the driver's aspiration-window loop).
func (s *Searcher) SearchWithBounds(pos *board.Position, depth, alpha, beta int) (board.Move, int) {
	s.worker.InitSearch(pos)
	return s.worker.SearchDepth(depth, alpha, beta)
}

// GetPV returns the principal variation from the most recent search.
func (s *Searcher) GetPV() []board.Move {
	return s.worker.GetPV()
}

// ClearOrderer clears killer moves and history scores.
func (s *Searcher) ClearOrderer() {
	s.worker.orderer.Clear()
}

// IsStopped reports whether the search has been asked to stop.
func (s *Searcher) IsStopped() bool {
	return s.stopFlag.Load()
}

// SetTimeLimit arms the worker's internal deadline, checked every
// nodesPerTimeCheck nodes during the search.
func (s *Searcher) SetTimeLimit(d int64) {
	s.worker.SetTimeLimitNanos(d)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
