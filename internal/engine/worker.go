package engine

import (
	"sync/atomic"
	"time"

	"github.com/hailam/gochess/internal/board"
)

// Worker holds all per-search mutable state: the position being searched,
// move ordering tables, node counters, and the undo/eval stacks indexed by
// ply. The search runs single-threaded, so a Worker is never shared across
// goroutines.
type Worker struct {
	pos *board.Position

	orderer *MoveOrderer

	nodes uint64
	pv    PVTable

	undoStack [MaxPly]board.UndoInfo
	evalStack [MaxPly]int

	posHistory    []uint64
	rootPosHashes []uint64

	tt        *TranspositionTable
	pawnTable *PawnTable
	stopFlag  *atomic.Bool

	deadline time.Time
	hasDeadline bool

	depth int
}

// NewWorker creates a new search worker bound to the given transposition
// and pawn hash tables.
func NewWorker(tt *TranspositionTable, pawnTable *PawnTable, stopFlag *atomic.Bool) *Worker {
	return &Worker{
		orderer:   NewMoveOrderer(),
		tt:        tt,
		pawnTable: pawnTable,
		stopFlag:  stopFlag,
	}
}

// Nodes returns the number of nodes searched so far.
func (w *Worker) Nodes() uint64 {
	return w.nodes
}

// Reset clears node count and move-ordering state ahead of a new search.
func (w *Worker) Reset() {
	w.nodes = 0
	w.orderer.Clear()
	w.hasDeadline = false
}

// SetRootHistory sets the position history from the game, used for
// repetition detection.
func (w *Worker) SetRootHistory(hashes []uint64) {
	w.rootPosHashes = make([]uint64, len(hashes))
	copy(w.rootPosHashes, hashes)
}

// SetTimeLimitNanos arms a wall-clock deadline, checked alongside the stop
// flag every nodesPerTimeCheck nodes.
func (w *Worker) SetTimeLimitNanos(nanos int64) {
	w.hasDeadline = true
	w.deadline = time.Now().Add(time.Duration(nanos))
}

// InitSearch copies pos so the caller's position is left untouched by the
// search's make/unmake churn, and seeds repetition history.
func (w *Worker) InitSearch(pos *board.Position) {
	w.pos = pos.Copy()

	w.posHistory = make([]uint64, 0, len(w.rootPosHashes)+MaxPly)
	w.posHistory = append(w.posHistory, w.rootPosHashes...)
	w.posHistory = append(w.posHistory, w.pos.Hash)
}

// SearchDepth runs negamax from the root at the given depth and window.
// If no PV was recorded and the search was not stopped, it falls back to
// the first legal move; a stopped search with no PV returns NoMove.
func (w *Worker) SearchDepth(depth, alpha, beta int) (board.Move, int) {
	w.depth = depth

	score := w.negamax(depth, 0, alpha, beta, board.NoMove)

	var bestMove board.Move
	if w.pv.length[0] > 0 {
		bestMove = w.pv.moves[0][0]
	}

	if bestMove == board.NoMove && !w.stopFlag.Load() {
		moves := w.pos.GenerateLegalMoves()
		if moves.Len() > 0 {
			bestMove = moves.Get(0)
		}
	}

	return bestMove, score
}

// evaluate returns the static evaluation of the current position, using
// the pawn hash table to cache pawn-structure terms across nodes.
func (w *Worker) evaluate() int {
	return EvaluateWithPawnTable(w.pos, w.pawnTable)
}

// stopped reports whether the search should unwind: either the caller
// asked us to stop, or (if armed) the deadline has passed. A deadline trip
// latches stopFlag so the driver's IsStopped() sees it too — otherwise the
// driver would have no way to tell a time-aborted iteration from a
// completed one and could commit its partial result.
func (w *Worker) stopped() bool {
	if w.stopFlag.Load() {
		return true
	}
	if w.hasDeadline && time.Now().After(w.deadline) {
		w.stopFlag.Store(true)
		return true
	}
	return false
}

// GetPV returns the principal variation from the last search.
func (w *Worker) GetPV() []board.Move {
	pv := make([]board.Move, w.pv.length[0])
	for i := 0; i < w.pv.length[0]; i++ {
		pv[i] = w.pv.moves[0][i]
	}
	return pv
}

// isDraw reports a draw by the fifty-move rule, insufficient material, or
// a repeated position (a single repetition suffices during search, since
// a side that can force a true threefold will keep choosing to repeat).
func (w *Worker) isDraw() bool {
	if w.pos.HalfMoveClock >= 100 {
		return true
	}
	if w.pos.IsInsufficientMaterial() {
		return true
	}

	if len(w.posHistory) > 0 {
		currentHash := w.pos.Hash
		count := 0
		for _, h := range w.posHistory {
			if h == currentHash {
				count++
				if count >= 2 {
					return true
				}
			}
		}
	}

	return false
}

// negamax searches the current position to depth, returning a score from
// the side-to-move's perspective.
func (w *Worker) negamax(depth, ply int, alpha, beta int, prevMove board.Move) int {
	if ply >= MaxPly-1 {
		return w.evaluate()
	}

	if w.nodes&(nodesPerTimeCheck-1) == 0 && w.stopped() {
		return alpha
	}

	w.nodes++
	w.pv.length[ply] = ply

	// Mate-distance pruning: a shorter mate can never be worth more than
	// one found sooner, so window bounds past the mate horizon are dead.
	if matedAlpha := -Mate + ply; alpha < matedAlpha {
		alpha = matedAlpha
	}
	if matingBeta := Mate - ply; beta > matingBeta {
		beta = matingBeta
	}
	if alpha >= beta {
		return alpha
	}

	if ply > 0 && w.isDraw() {
		return 0
	}

	if depth <= 0 {
		return w.quiescence(ply, alpha, beta)
	}

	pvNode := beta-alpha > 1

	// Transposition table probe
	var ttMove board.Move
	ttEntry, found := w.tt.Probe(w.pos.Hash)
	if found {
		ttMove = ttEntry.BestMove
		if ttMove != board.NoMove {
			piece := w.pos.PieceAt(ttMove.From())
			if piece == board.NoPiece || piece.Color() != w.pos.SideToMove {
				ttMove = board.NoMove
			}
		}

		if !pvNode {
			if score, ok := w.tt.Lookup(w.pos.Hash, depth, alpha, beta, ply); ok {
				if ply == 0 && ttMove != board.NoMove {
					w.pv.moves[0][0] = ttMove
					w.pv.length[0] = 1
				}
				return score
			}
		}
	}

	inCheck := w.pos.InCheck()

	moves := w.pos.GenerateLegalMoves()
	if moves.Len() == 0 {
		if inCheck {
			return -Mate + ply
		}
		return 0
	}

	extension := 0
	if inCheck {
		extension = 1
	}

	staticEval := w.evaluate()
	w.evalStack[ply] = staticEval

	improving := false
	if ply >= 2 {
		improving = staticEval > w.evalStack[ply-2]
	}

	scores := w.orderer.ScoreMoves(w.pos, moves, ply, ttMove)

	// Null-move pruning, gated on non-pawn material, low zugzwang risk, and
	// a static eval not already wildly outside the mating range.
	if !inCheck && !pvNode && depth >= 3 &&
		w.pos.HasNonPawnMaterial() && !w.isPossibleZugzwang() &&
		abs(staticEval) < nullMoveEvalCeiling {

		if staticEval >= beta+staticNullMoveBase*depth {
			return beta
		}

		materialAdvantage := abs(staticEval) / 100
		bonus := materialAdvantage / 200
		if bonus > 3 {
			bonus = 3
		}
		R := nullMoveBaseReduction + depth/4 + bonus
		if IsEndgame(w.pos) {
			R--
		}
		if R < nullMoveMinReduction {
			R = nullMoveMinReduction
		}
		maxR := depth - 1
		if maxR > nullMoveMaxReduction {
			maxR = nullMoveMaxReduction
		}
		if R > maxR {
			R = maxR
		}

		nullUndo := w.pos.MakeNullMove()
		nullScore := -w.negamax(depth-1-R, ply+1, -beta, -beta+1, board.NoMove)
		w.pos.UnmakeNullMove(nullUndo)

		if nullScore >= beta {
			critical := depth >= nullMoveVerifyDepth && abs(staticEval-beta) <= nullMoveBaseReduction*100
			if !critical || w.verifyNullMove(moves, scores, depth, ply, beta) {
				return beta
			}
		}
	}

	bestScore := -Inf
	bestMove := board.NoMove
	flag := TTUpperBound
	movesSearched := 0
	mover := w.pos.SideToMove

	for i := 0; i < moves.Len(); i++ {
		PickMove(moves, scores, i)
		move := moves.Get(i)

		isCapture := move.IsCapture(w.pos)
		isPromotion := move.IsPromotion()
		isQuiet := !isCapture && !isPromotion

		// Late move pruning: deep into a quiet move list at shallow depth,
		// further moves are exceedingly unlikely to matter. Never applied at
		// the root, where every move is searched.
		if ply > 0 && depth <= maxLMPDepth && isQuiet && !inCheck && i >= 3+3*depth {
			continue
		}

		w.undoStack[ply] = w.pos.MakeMove(move)
		if !w.undoStack[ply].Valid {
			continue
		}

		givesCheck := w.pos.InCheck()

		// Futility pruning: once a move is made, a quiet non-checking move
		// that can't plausibly lift the static eval to alpha is skipped
		// (below the root only).
		if ply > 0 && depth <= maxFutilityDepth && isQuiet && !givesCheck {
			margin := futilityBase + futilityScale*depth
			if !improving {
				margin += futilityNotImprovingExtra
			}
			if staticEval+margin <= alpha {
				w.pos.UnmakeMove(move, w.undoStack[ply])
				continue
			}
		}

		w.posHistory = append(w.posHistory, w.pos.Hash)
		movesSearched++

		newDepth := depth - 1 + extension

		reduction := 0
		if depth >= lmrMinDepth && i >= lmrMinMoveIndex && isQuiet && !givesCheck {
			reduction = 1 + depth/6 + i/6
			if improving {
				reduction--
			}
			if reduction < 1 {
				reduction = 1
			}
			if reduction > newDepth-1 {
				reduction = newDepth - 1
			}
			if reduction < 0 {
				reduction = 0
			}
		}

		var score int
		switch {
		case movesSearched == 1:
			score = -w.negamax(newDepth, ply+1, -beta, -alpha, move)
		case reduction > 0:
			reducedDepth := newDepth - reduction
			score = -w.negamax(reducedDepth, ply+1, -alpha-1, -alpha, move)
			if score > alpha {
				score = -w.negamax(newDepth, ply+1, -alpha-1, -alpha, move)
			}
			if score > alpha && score < beta {
				score = -w.negamax(newDepth, ply+1, -beta, -alpha, move)
			}
		default:
			score = -w.negamax(newDepth, ply+1, -alpha-1, -alpha, move)
			if score > alpha && score < beta {
				score = -w.negamax(newDepth, ply+1, -beta, -alpha, move)
			}
		}

		w.posHistory = w.posHistory[:len(w.posHistory)-1]
		w.pos.UnmakeMove(move, w.undoStack[ply])

		if w.stopped() {
			return alpha
		}

		if score > bestScore {
			bestScore = score
			bestMove = move

			if score > alpha {
				alpha = score
				flag = TTExact

				w.pv.moves[ply][ply] = move
				for j := ply + 1; j < w.pv.length[ply+1]; j++ {
					w.pv.moves[ply][j] = w.pv.moves[ply+1][j]
				}
				w.pv.length[ply] = w.pv.length[ply+1]
			}
		}

		if score >= beta {
			if ply == 0 && bestMove != board.NoMove {
				w.pv.moves[0][0] = bestMove
				w.pv.length[0] = 1
			}

			w.tt.Store(w.pos.Hash, depth, AdjustScoreToTT(score, ply), TTLowerBound, bestMove)

			if isQuiet {
				w.orderer.UpdateKillers(move, ply)
				w.orderer.UpdateHistory(mover, move, depth, true)
				for j := 0; j < i; j++ {
					other := moves.Get(j)
					if other != move && other.IsQuiet(w.pos) {
						w.orderer.UpdateHistory(mover, other, depth, false)
					}
				}
			}

			return score
		}
	}

	if bestMove == board.NoMove && moves.Len() > 0 {
		bestMove = moves.Get(0)
		if bestScore == -Inf {
			bestScore = alpha
		}
	}

	w.tt.Store(w.pos.Hash, depth, AdjustScoreToTT(bestScore, ply), flag, bestMove)

	return bestScore
}

// isPossibleZugzwang flags positions where null-move pruning is unsafe: the
// side to move has no rook or queen and very little material left, the
// classic king-and-pawn-endgame shape where passing is never truly an
// option for the real opponent.
func (w *Worker) isPossibleZugzwang() bool {
	side := w.pos.SideToMove
	if w.pos.Pieces[side][board.Rook]|w.pos.Pieces[side][board.Queen] != 0 {
		return false
	}
	return w.pos.Occupied[side].PopCount() <= 5
}

// verifyNullMove re-checks a null-move cutoff that looked critical (deep,
// with the static eval sitting close to beta) by searching the top few
// ordered moves at reduced depth and requiring at least one to also reach
// beta before trusting the cutoff.
func (w *Worker) verifyNullMove(rootMoves *board.MoveList, scores []int, depth, ply, beta int) bool {
	verifyDepth := depth / 2
	if verifyDepth < 1 {
		verifyDepth = 1
	}

	limit := rootMoves.Len()
	if limit > 5 {
		limit = 5
	}

	for i := 0; i < limit; i++ {
		PickMove(rootMoves, scores, i)
		move := rootMoves.Get(i)
		undo := w.pos.MakeMove(move)
		if !undo.Valid {
			continue
		}
		score := -w.negamax(verifyDepth, ply+1, -beta, -beta+1, move)
		w.pos.UnmakeMove(move, undo)
		if score >= beta {
			return true
		}
	}
	return false
}

// quiescence extends the search along capture sequences until the
// position is quiet, to avoid misjudging positions mid-exchange.
func (w *Worker) quiescence(ply int, alpha, beta int) int {
	return w.quiescenceInternal(ply, 0, alpha, beta)
}

func (w *Worker) quiescenceInternal(ply, qPly int, alpha, beta int) int {
	if ply >= MaxPly || qPly > maxQuiescencePly {
		return w.evaluate()
	}

	if w.stopped() {
		return alpha
	}

	w.nodes++

	hash := w.pos.Hash

	var ttMove board.Move
	if score, ok := w.tt.Lookup(hash, 0, alpha, beta, ply); ok {
		return score
	}
	if ttEntry, found := w.tt.Probe(hash); found {
		ttMove = ttEntry.BestMove
	}

	lazyEval := EvaluateMaterial(w.pos)
	if lazyEval-lazyEvalMargin >= beta {
		return beta
	}
	if lazyEval+lazyEvalMargin <= alpha {
		return alpha
	}

	inCheck := w.pos.InCheck()

	var standPat int
	if !inCheck {
		standPat = w.evaluate()

		if standPat >= beta {
			w.tt.Store(hash, 0, AdjustScoreToTT(beta, ply), TTLowerBound, board.NoMove)
			return beta
		}
		if standPat > alpha {
			alpha = standPat
		}

		bigDelta := QueenValue
		if standPat+bigDelta < alpha {
			return alpha
		}
	}

	var moves *board.MoveList
	if inCheck {
		moves = w.pos.GenerateLegalMoves()
	} else {
		moves = w.pos.GenerateCaptures()
	}
	scores := w.orderer.ScoreMoves(w.pos, moves, ply, ttMove)

	searched := 0
	for i := 0; i < moves.Len(); i++ {
		PickMove(moves, scores, i)
		move := moves.Get(i)

		if !inCheck {
			var captureValue int
			if move.IsEnPassant() {
				captureValue = PawnValue
			} else {
				capturedPiece := w.pos.PieceAt(move.To())
				if capturedPiece != board.NoPiece {
					captureValue = pieceValues[capturedPiece.Type()]
				}
			}
			if move.IsPromotion() {
				captureValue += QueenValue - PawnValue
			}
			if standPat+captureValue+deltaMargin < alpha {
				continue
			}

			if !isGoodCapture(w.pos, move, seeQuiescenceThreshold) {
				continue
			}
		}

		undo := w.pos.MakeMove(move)
		if !undo.Valid {
			continue
		}
		searched++

		score := -w.quiescenceInternal(ply+1, qPly+1, -beta, -alpha)
		w.pos.UnmakeMove(move, undo)

		if score >= beta {
			w.tt.Store(hash, 0, AdjustScoreToTT(beta, ply), TTLowerBound, move)
			return beta
		}
		if score > alpha {
			alpha = score
		}
	}

	if inCheck && searched == 0 {
		return -Mate + ply
	}

	w.tt.Store(hash, 0, AdjustScoreToTT(alpha, ply), TTUpperBound, board.NoMove)
	return alpha
}
