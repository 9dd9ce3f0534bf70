package engine

import (
	"github.com/hailam/gochess/internal/board"
)

// Move ordering score bands. A TT move always sorts first; captures sort
// by MVV-LVA plus an SEE-gated bonus or penalty; quiet moves fall back to
// the history table, with a small nudge for killer moves.
const (
	ttMoveScore        = 1 << 30
	goodCaptureWeight  = 5000
	killerBonus        = 50
	queenPromoBonus    = 100000
	rookPromoBonus     = 500
	minorPromoBonus    = 300
	enPassantMVVLVA    = 1000
)

// mvvLVA implements MVV_LVA(victim, attacker) := 6*victim - attacker + 10,
// using PieceType ordinals (Pawn=0 .. King=5) as the victim/attacker rank.
func mvvLVA(victim, attacker board.PieceType) int {
	return 6*int(victim) - int(attacker) + 10
}

// MoveOrderer owns the per-search killer and history tables used to order
// moves ahead of and during the main search.
type MoveOrderer struct {
	killers [MaxPly][2]board.Move
	history [2][64][64]int // [side][from][to]
}

// NewMoveOrderer creates a new move orderer.
func NewMoveOrderer() *MoveOrderer {
	return &MoveOrderer{}
}

// Clear resets killers and history for a new search.
func (mo *MoveOrderer) Clear() {
	for i := range mo.killers {
		mo.killers[i][0] = board.NoMove
		mo.killers[i][1] = board.NoMove
	}
	for s := range mo.history {
		for i := range mo.history[s] {
			for j := range mo.history[s][i] {
				mo.history[s][i][j] = 0
			}
		}
	}
}

// ScoreMoves assigns an ordering score to every move in the list.
func (mo *MoveOrderer) ScoreMoves(pos *board.Position, moves *board.MoveList, ply int, ttMove board.Move) []int {
	scores := make([]int, moves.Len())
	for i := 0; i < moves.Len(); i++ {
		scores[i] = mo.scoreMove(pos, moves.Get(i), ply, ttMove)
	}
	return scores
}

// scoreMove returns the ordering score for a single move, per the capture
// (MVV-LVA + SEE), promotion, killer, and history rules.
func (mo *MoveOrderer) scoreMove(pos *board.Position, m board.Move, ply int, ttMove board.Move) int {
	if m == ttMove {
		return ttMoveScore
	}

	if m.IsEnPassant() {
		return mvvLVA(board.Pawn, board.Pawn) + enPassantMVVLVA
	}

	if m.IsCapture(pos) {
		attackerPiece := pos.PieceAt(m.From())
		victimPiece := pos.PieceAt(m.To())
		if attackerPiece == board.NoPiece || victimPiece == board.NoPiece {
			return 0
		}
		score := mvvLVA(victimPiece.Type(), attackerPiece.Type())
		if score < 6000 {
			if isGoodCapture(pos, m, 0) {
				score += goodCaptureWeight
			} else {
				score = 0
			}
		}
		return score
	}

	if m.IsPromotion() {
		switch m.Promotion() {
		case board.Queen:
			return queenPromoBonus
		case board.Rook:
			return rookPromoBonus
		default:
			return minorPromoBonus
		}
	}

	score := mo.history[int(pos.SideToMove)][m.From()][m.To()]
	if mo.isKiller(m, ply) {
		score += killerBonus
	}
	return score
}

func (mo *MoveOrderer) isKiller(m board.Move, ply int) bool {
	if ply >= MaxPly {
		return false
	}
	return m == mo.killers[ply][0] || m == mo.killers[ply][1]
}

// SortMoves sorts moves by their scores, descending, via selection sort
// (the move lists involved are small enough that this stays cheap).
func SortMoves(moves *board.MoveList, scores []int) {
	n := moves.Len()
	for i := 0; i < n-1; i++ {
		best := i
		for j := i + 1; j < n; j++ {
			if scores[j] > scores[best] {
				best = j
			}
		}
		if best != i {
			moves.Swap(i, best)
			scores[i], scores[best] = scores[best], scores[i]
		}
	}
}

// PickMove selects the best-scoring move among moves[index:] and swaps it
// into position index, allowing the caller to sort lazily one move at a
// time instead of up front.
func PickMove(moves *board.MoveList, scores []int, index int) {
	best := index
	for j := index + 1; j < moves.Len(); j++ {
		if scores[j] > scores[best] {
			best = j
		}
	}
	if best != index {
		moves.Swap(index, best)
		scores[index], scores[best] = scores[best], scores[index]
	}
}

// UpdateKillers records m as the newest killer move at ply, unless it is
// already the primary killer there.
func (mo *MoveOrderer) UpdateKillers(m board.Move, ply int) {
	if ply >= MaxPly {
		return
	}
	if mo.killers[ply][0] == m {
		return
	}
	mo.killers[ply][1] = mo.killers[ply][0]
	mo.killers[ply][0] = m
}

// UpdateHistory adjusts the butterfly history score for a quiet move by
// +/- depth^2, rescaling the whole table if it threatens to overflow.
func (mo *MoveOrderer) UpdateHistory(side board.Color, m board.Move, depth int, isGood bool) {
	from, to := m.From(), m.To()
	bonus := depth * depth

	if isGood {
		mo.history[side][from][to] += bonus
		if mo.history[side][from][to] > 400000 {
			for s := range mo.history {
				for i := range mo.history[s] {
					for j := range mo.history[s][i] {
						mo.history[s][i][j] /= 2
					}
				}
			}
		}
	} else {
		mo.history[side][from][to] -= bonus
		if mo.history[side][from][to] < -400000 {
			mo.history[side][from][to] = -400000
		}
	}
}
