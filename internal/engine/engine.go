package engine

import (
	"time"

	"github.com/hailam/gochess/internal/board"
	"github.com/hailam/gochess/internal/book"
)

// SearchInfo contains information about the current search, reported
// after each completed iterative-deepening depth.
type SearchInfo struct {
	Depth    int
	Score    int
	Nodes    uint64
	Time     time.Duration
	PV       []board.Move
	HashFull int // Permille of hash table used
}

// SearchLimits specifies constraints on a single getBestMove call.
type SearchLimits struct {
	Depth    int           // Maximum depth (0 = no limit)
	MoveTime time.Duration // Time for this move (0 = defaultTimeLimit, 10s)
}

// Difficulty represents the AI difficulty level.
type Difficulty int

const (
	Easy   Difficulty = iota // ~2-3 ply, 500ms
	Medium                   // ~4-5 ply, 2s
	Hard                     // ~6+ ply, 5s
)

// DifficultySettings maps difficulty to search limits.
var DifficultySettings = map[Difficulty]SearchLimits{
	Easy:   {Depth: 3, MoveTime: 500 * time.Millisecond},
	Medium: {Depth: 5, MoveTime: 2 * time.Second},
	Hard:   {Depth: 7, MoveTime: 5 * time.Second},
}

const defaultTimeLimit = 10 * time.Second

// Engine is the chess search engine: an opening book, a transposition
// table, and the negamax searcher that sits on top of them. Nothing here
// is safe to share across goroutines; callers driving concurrent searches
// must each own their own Engine.
type Engine struct {
	searcher   *Searcher
	tt         *TranspositionTable
	difficulty Difficulty

	book         *book.Book
	useBook      bool
	maxBookMoves int
	plyPlayed    int

	// OnInfo is called once per completed iterative-deepening depth.
	OnInfo func(SearchInfo)
}

// NewEngine creates a new chess engine with the given transposition table
// size in MB.
func NewEngine(ttSizeMB int) *Engine {
	tt := NewTranspositionTable(ttSizeMB)
	return &Engine{
		searcher:     NewSearcher(tt),
		tt:           tt,
		difficulty:   Medium,
		maxBookMoves: 20,
	}
}

// SetDifficulty sets the engine difficulty.
func (e *Engine) SetDifficulty(d Difficulty) {
	e.difficulty = d
}

// SetBook installs (or replaces) the opening book consulted at the root.
func (e *Engine) SetBook(b *book.Book) {
	e.book = b
}

// SetMaxBookMoves sets the ply count up to which book lookups are still
// attempted; beyond it, the book is skipped even if enabled.
func (e *Engine) SetMaxBookMoves(n int) {
	e.maxBookMoves = n
}

// EnableOpeningBook toggles whether the root move is taken from the book
// when available.
func (e *Engine) EnableOpeningBook(enabled bool) {
	e.useBook = enabled
}

// NotifyPlyPlayed advances the engine's ply counter, used to gate book
// lookups past maxBookMoves. Call once per half-move played in the game.
func (e *Engine) NotifyPlyPlayed() {
	e.plyPlayed++
}

// GetBestMove is the engine's only search entry point: it probes the
// opening book, then runs iterative-deepening negamax under the current
// difficulty's limits and returns the best move found.
func (e *Engine) GetBestMove(pos *board.Position) board.Move {
	if e.useBook && e.book != nil && e.plyPlayed < e.maxBookMoves {
		if move, ok := e.book.Probe(pos); ok {
			return move
		}
	}

	limits := DifficultySettings[e.difficulty]
	return e.SearchWithLimits(pos, limits)
}

// SearchWithLimits runs the iterative-deepening search directly, bypassing
// the opening book. Used by callers that want to search a fixed position
// (e.g. analysis) without the book's side effects.
func (e *Engine) SearchWithLimits(pos *board.Position, limits SearchLimits) board.Move {
	e.searcher.Reset()
	e.tt.NewSearch()

	startTime := time.Now()
	var bestMove board.Move
	var bestScore int

	maxDepth := maxSearchDepth
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}

	moveTime := limits.MoveTime
	if moveTime <= 0 {
		moveTime = defaultTimeLimit
	}
	deadline := startTime.Add(moveTime)
	e.searcher.SetTimeLimit(int64(moveTime))

	rootMoves := pos.GenerateLegalMoves()
	if rootMoves.Len() == 0 {
		return board.NoMove
	}
	if rootMoves.Len() == 1 {
		return rootMoves.Get(0)
	}

	const initialWindow = 50

	for depth := 1; depth <= maxDepth; depth++ {
		if time.Now().After(deadline) {
			break
		}

		var move board.Move
		var score int

		if depth >= 5 && bestMove != board.NoMove {
			window := initialWindow
			alpha := bestScore - window
			beta := bestScore + window

			for {
				move, score = e.searcher.SearchWithBounds(pos, depth, alpha, beta)

				if e.searcher.IsStopped() {
					break
				}

				if score <= alpha {
					alpha = -Inf
				} else if score >= beta {
					beta = Inf
				} else {
					break
				}

				if alpha == -Inf && beta == Inf {
					break
				}
			}
		} else {
			move, score = e.searcher.Search(pos, depth)
		}

		// A deadline trip latches IsStopped() (see Worker.stopped), but check
		// the wall clock directly too: an aborted iteration's move/score must
		// never overwrite the last fully-completed depth's result.
		if e.searcher.IsStopped() || time.Now().After(deadline) {
			break
		}

		if move != board.NoMove {
			bestMove = move
			bestScore = score
		}

		if e.OnInfo != nil {
			elapsed := time.Since(startTime)
			e.OnInfo(SearchInfo{
				Depth:    depth,
				Score:    bestScore,
				Nodes:    e.searcher.Nodes(),
				Time:     elapsed,
				PV:       e.searcher.GetPV(),
				HashFull: e.tt.HashFull(),
			})
		}

		if score > Mate-100 || score < -Mate+100 {
			break
		}

		elapsed := time.Since(startTime)
		remaining := moveTime - elapsed
		if remaining < elapsed {
			break
		}
	}

	if bestMove == board.NoMove {
		bestMove = rootMoves.Get(0)
	}

	return bestMove
}

// Stop stops the current search.
func (e *Engine) Stop() {
	e.searcher.Stop()
}

// Clear clears the transposition table and move-ordering caches.
func (e *Engine) Clear() {
	e.tt.Clear()
	e.searcher.ClearOrderer()
}

// Perft performs a perft test (for debugging move generation).
func (e *Engine) Perft(pos *board.Position, depth int) uint64 {
	if depth == 0 {
		return 1
	}

	moves := pos.GenerateLegalMoves()
	if depth == 1 {
		return uint64(moves.Len())
	}

	var nodes uint64
	for i := 0; i < moves.Len(); i++ {
		move := moves.Get(i)
		undo := pos.MakeMove(move)
		nodes += e.Perft(pos, depth-1)
		pos.UnmakeMove(move, undo)
	}

	return nodes
}

// Evaluate returns the static evaluation of a position.
func (e *Engine) Evaluate(pos *board.Position) int {
	return Evaluate(pos)
}

// ScoreToString converts a score to a human-readable string.
func ScoreToString(score int) string {
	if score > Mate-100 {
		mateIn := (Mate - score + 1) / 2
		return "Mate in " + itoa(mateIn)
	}
	if score < -Mate+100 {
		mateIn := (Mate + score + 1) / 2
		return "Mated in " + itoa(mateIn)
	}

	sign := ""
	if score < 0 {
		sign = "-"
		score = -score
	}
	pawns := score / 100
	centipawns := score % 100

	return sign + itoa(pawns) + "." + itoa(centipawns)
}

// itoa avoids pulling in fmt for a single integer-to-string conversion.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	if n < 0 {
		return "-" + itoa(-n)
	}
	s := ""
	for n > 0 {
		s = string('0'+byte(n%10)) + s
		n /= 10
	}
	return s
}
