// Command gochess is a thin terminal front end over the search engine: it
// reads a FEN (or starts from the initial position), searches it under a
// chosen depth/time budget, and prints the chosen move. It carries no
// search logic of its own.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"time"

	"github.com/hailam/gochess/internal/board"
	"github.com/hailam/gochess/internal/book"
	"github.com/hailam/gochess/internal/engine"
	"github.com/hailam/gochess/internal/storage"
)

var (
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
	fen        = flag.String("fen", "", "FEN to search (defaults to the starting position)")
	depth      = flag.Int("depth", 0, "maximum search depth (0 = no depth cap; difficulty default if -movetime is also 0)")
	moveTime   = flag.Duration("movetime", 0, "time budget for the move (0 = 10s; difficulty default if -depth is also 0)")
	hashMB     = flag.Int("hash", 64, "transposition table size in MB")
	difficulty = flag.String("difficulty", "medium", "easy, medium, or hard")
	bookPath   = flag.String("book", "", "Polyglot opening book file")
	perftDepth = flag.Int("perft", 0, "run a perft count to this depth instead of searching")
)

func main() {
	flag.Parse()

	if profilePath := profilePathFromFlags(); profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatalf("create cpu profile: %v", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatalf("start cpu profile: %v", err)
		}
		defer pprof.StopCPUProfile()
	}

	pos, err := loadPosition(*fen)
	if err != nil {
		log.Fatalf("load position: %v", err)
	}

	eng := engine.NewEngine(*hashMB)
	eng.SetDifficulty(parseDifficulty(*difficulty))

	if *bookPath != "" {
		if err := loadBook(eng, *bookPath); err != nil {
			log.Printf("opening book not loaded: %v", err)
		}
	}

	if *perftDepth > 0 {
		runPerft(eng, pos, *perftDepth)
		return
	}

	runSearch(eng, pos)
}

func profilePathFromFlags() string {
	if *cpuprofile != "" {
		return *cpuprofile
	}
	return os.Getenv("CPUPROFILE")
}

func loadPosition(fenStr string) (*board.Position, error) {
	if fenStr == "" {
		return board.NewPosition(), nil
	}
	return board.ParseFEN(fenStr)
}

func parseDifficulty(s string) engine.Difficulty {
	switch s {
	case "easy":
		return engine.Easy
	case "hard":
		return engine.Hard
	default:
		return engine.Medium
	}
}

func loadBook(eng *engine.Engine, path string) error {
	cache, err := storage.OpenBookCache()
	if err != nil {
		return fmt.Errorf("open book cache: %w", err)
	}
	defer cache.Close()

	b, err := book.LoadPolyglotCached(path, cache)
	if err != nil {
		return fmt.Errorf("load book: %w", err)
	}

	eng.SetBook(b)
	eng.EnableOpeningBook(true)
	return nil
}

func runSearch(eng *engine.Engine, pos *board.Position) {
	limits := engine.SearchLimits{Depth: *depth, MoveTime: *moveTime}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	eng.OnInfo = func(info engine.SearchInfo) {
		fmt.Fprintf(w, "depth %-2d score %-8s nodes %-10d time %s\n",
			info.Depth, engine.ScoreToString(info.Score), info.Nodes, info.Time.Round(time.Millisecond))
	}

	start := time.Now()
	var move board.Move
	if limits.Depth == 0 && limits.MoveTime == 0 {
		move = eng.GetBestMove(pos)
	} else {
		move = eng.SearchWithLimits(pos, limits)
	}
	elapsed := time.Since(start)

	fmt.Fprintf(w, "bestmove %s (%s)\n", move.String(), elapsed.Round(time.Millisecond))
}

func runPerft(eng *engine.Engine, pos *board.Position, depth int) {
	start := time.Now()
	nodes := eng.Perft(pos, depth)
	elapsed := time.Since(start)
	fmt.Printf("perft(%d) = %d nodes in %s\n", depth, nodes, elapsed.Round(time.Millisecond))
}
