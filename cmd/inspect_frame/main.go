package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/opunsoars/pitchly/internal/adapters/inbound/tracking_sqlite"
	"github.com/opunsoars/pitchly/internal/config"
	"github.com/opunsoars/pitchly/internal/core/pitchcontrol"
	"github.com/opunsoars/pitchly/internal/telemetry"
)

// shades maps attacking control onto characters, defence-held to attack-held.
const shades = " .:-=+*#%@"

func main() {
	cfg := config.Load()
	frameID := flag.Int64("frame", -1, "frame id to evaluate")
	eventID := flag.Int64("event", -1, "event id to evaluate (overrides -frame)")
	dbPath := flag.String("db", cfg.FramesDBPath, "path to frames store")
	paramsPath := flag.String("params", cfg.ModelParamsPath, "model params YAML")
	cellsX := flag.Int("nx", cfg.GridCellsX, "grid cells along the pitch length")
	players := flag.Bool("players", false, "list per-player control share")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *frameID < 0 && *eventID < 0 {
		fmt.Fprintln(os.Stderr, "usage: go run ./cmd/inspect_frame -frame <id> | -event <id> [-nx 50] [-players]")
		os.Exit(1)
	}
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	telemetry.Init(level)

	params, err := config.LoadModelParams(*paramsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "params: %v\n", err)
		os.Exit(1)
	}
	eval, err := pitchcontrol.NewEvaluator(params,
		pitchcontrol.WithField(pitchcontrol.Field{Length: cfg.FieldLength, Width: cfg.FieldWidth}),
		pitchcontrol.WithCellsX(*cellsX))
	if err != nil {
		fmt.Fprintf(os.Stderr, "evaluator: %v\n", err)
		os.Exit(1)
	}
	store, err := tracking_sqlite.OpenStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	var surf *pitchcontrol.Surface
	if *eventID >= 0 {
		ev, err := store.LoadEvent(ctx, *eventID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		frame, err := store.LoadFrame(ctx, ev.StartFrame)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		surf, err = eval.EvaluateEvent(ctx, ev, frame, *players)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		fmt.Printf("=== Event %d (%s, %s) at frame %d ===\n", ev.ID, ev.Type, ev.Team, ev.StartFrame)
	} else {
		frame, err := store.LoadFrame(ctx, *frameID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		surf, err = eval.Evaluate(ctx, frame, *players)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		fmt.Printf("=== Frame %d (period %d, t=%.2fs) ===\n", frame.ID, frame.Period, frame.Time)
	}

	printSurface(surf)
	printStats(surf)
	if *players {
		printPlayers("Attacking", surf.AttackPlayers)
		printPlayers("Defending", surf.DefensePlayers)
	}
}

// printSurface draws the attacking control field, top row = +y.
func printSurface(s *pitchcontrol.Surface) {
	fmt.Printf("attacking=%s", s.Attacking)
	if s.Ball != nil {
		fmt.Printf("  ball=%s", s.Ball)
	}
	fmt.Println()

	border := "+" + strings.Repeat("-", len(s.XGrid)) + "+"
	fmt.Println(border)
	for row := len(s.Attack) - 1; row >= 0; row-- {
		var b strings.Builder
		b.WriteByte('|')
		for _, v := range s.Attack[row] {
			idx := int(v * float64(len(shades)-1))
			idx = max(0, min(idx, len(shades)-1))
			b.WriteByte(shades[idx])
		}
		b.WriteByte('|')
		fmt.Println(b.String())
	}
	fmt.Println(border)
}

func printStats(s *pitchcontrol.Surface) {
	st := s.Stats
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintf(w, "cells\t%d\n", st.Cells)
	fmt.Fprintf(w, "contested\t%d\n", st.Contested)
	fmt.Fprintf(w, "dominant attack\t%d\n", st.DominantAttack)
	fmt.Fprintf(w, "dominant defence\t%d\n", st.DominantDefense)
	fmt.Fprintf(w, "non-converged\t%d\n", st.NonConverged)
	fmt.Fprintf(w, "max steps\t%d\n", st.MaxSteps)
	fmt.Fprintf(w, "checksum\t%.4f\n", st.Checksum)
	fmt.Fprintf(w, "elapsed\t%s\n", st.Elapsed)
	w.Flush()
}

// printPlayers lists each player's share of the pitch, largest first.
func printPlayers(title string, m map[string][][]float64) {
	type share struct {
		id    string
		total float64
	}
	var shares []share
	var cells int
	for id, grid := range m {
		var sum float64
		cells = 0
		for _, row := range grid {
			for _, v := range row {
				sum += v
				cells++
			}
		}
		shares = append(shares, share{id, sum})
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].total > shares[j].total })

	fmt.Printf("\n%s players\n", title)
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	for _, s := range shares {
		fmt.Fprintf(w, "  %s\t%5.1f%%\n", s.id, 100*s.total/float64(max(cells, 1)))
	}
	w.Flush()
}
