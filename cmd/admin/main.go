package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	persistlog "github.com/O7410/Industria/internal/persistence/log"
	"github.com/O7410/Industria/internal/persistence/snapshot"
	"github.com/O7410/Industria/internal/protocol"
	"github.com/O7410/Industria/internal/sim/replay"
	"github.com/O7410/Industria/internal/sim/tuning"
	"github.com/O7410/Industria/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "health":
			healthCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	snapPath := fs.String("snapshot", "", "snapshot path")
	_ = fs.Parse(args)
	if strings.TrimSpace(*snapPath) == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(summarize(snap))
}

type kindSummary struct {
	Kind     string  `json:"kind"`
	Networks int     `json:"networks"`
	Pipes    int     `json:"pipes"`
	Amount   float64 `json:"amount"`
}

type snapshotSummary struct {
	WorldID   string        `json:"world_id"`
	Tick      uint64        `json:"tick"`
	Digest    string        `json:"digest"`
	NextSeq   uint64        `json:"next_network_seq"`
	Terminals int           `json:"terminals"`
	Kinds     []kindSummary `json:"kinds"`
}

// summarize totals networks, pipes and resource held in pipes per kind.
func summarize(snap snapshot.SnapshotV1) snapshotSummary {
	out := snapshotSummary{
		WorldID:   snap.Header.WorldID,
		Tick:      snap.Header.Tick,
		Digest:    snap.Header.Digest,
		NextSeq:   snap.NextNetworkSeq,
		Terminals: len(snap.Terminals),
	}
	byKind := map[string]*kindSummary{}
	for _, k := range snap.Kinds {
		byKind[k.Name] = &kindSummary{Kind: k.Name}
	}
	for _, n := range snap.Networks {
		ks := byKind[n.Kind]
		if ks == nil {
			ks = &kindSummary{Kind: n.Kind}
			byKind[n.Kind] = ks
		}
		ks.Networks++
		ks.Pipes += len(n.Pipes)
		if n.CentralAmount != nil {
			ks.Amount += *n.CentralAmount
		}
		for _, p := range n.Pipes {
			ks.Amount += p.Amount
		}
	}
	for _, ks := range byKind {
		out.Kinds = append(out.Kinds, *ks)
	}
	sort.Slice(out.Kinds, func(i, j int) bool { return out.Kinds[i].Kind < out.Kinds[j].Kind })
	return out
}

func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	snapPath := fs.String("snapshot", "", "base snapshot (optional; defaults to the latest one before -since_tick)")
	tuningPath := fs.String("tuning", "./configs/tuning.yaml", "tuning used when no base snapshot exists")
	aabb := fs.String("aabb", "", "AABB filter: x1,y1,z1:x2,y2,z2 (required)")
	sinceTick := fs.Uint64("since_tick", 0, "drop edits inside the AABB from this tick on (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "replay up to tick (inclusive, optional; defaults to the end of the tick log)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	if strings.TrimSpace(*aabb) == "" {
		fmt.Fprintln(os.Stderr, "missing -aabb")
		os.Exit(2)
	}
	lo, hi, err := parseAABB(*aabb)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -aabb:", err)
		os.Exit(2)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	base := strings.TrimSpace(*snapPath)
	if base == "" && *sinceTick > 0 {
		base = latestSnapshotBefore(worldDir, *sinceTick)
	}

	var w *world.World
	if base != "" {
		snap, err := snapshot.ReadSnapshot(base)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		if snap.Header.Tick >= *sinceTick {
			fmt.Fprintf(os.Stderr, "base snapshot tick %d is not before -since_tick %d\n", snap.Header.Tick, *sinceTick)
			os.Exit(2)
		}
		if w, err = replay.WorldFromSnapshot(snap); err != nil {
			fmt.Fprintln(os.Stderr, "world:", err)
			os.Exit(1)
		}
	} else {
		tune, err := tuning.Load(*tuningPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		if w, err = world.New(world.ConfigFromTuning(*worldID, tune)); err != nil {
			fmt.Fprintln(os.Stderr, "world:", err)
			os.Exit(1)
		}
	}

	snap, res, err := rollback(w, persistlog.TickDir(worldDir), *sinceTick, *toTick, lo, hi)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rollback:", err)
		os.Exit(1)
	}
	if strings.TrimSpace(*outPath) == "" {
		*outPath = filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.rollback.snap.zst", snap.Header.Tick))
	}
	if err := snapshot.WriteSnapshot(*outPath, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("rollback ok: base=%s tick=%d aabb=%s since=%d stepped=%d dropped=%d out=%s\n",
		filepath.Base(base), snap.Header.Tick, *aabb, *sinceTick, res.Stepped, res.Dropped, *outPath)
}

// rollback replays the tick log onto w while dropping edits inside [lo, hi]
// from sinceTick on, and returns a snapshot of the rewritten state.
func rollback(w *world.World, ticksDir string, sinceTick, toTick uint64, lo, hi [3]int) (snapshot.SnapshotV1, replay.Result, error) {
	files, err := persistlog.ListTickFiles(ticksDir)
	if err != nil {
		return snapshot.SnapshotV1{}, replay.Result{}, err
	}
	res, err := replay.Run(w, files, replay.Options{
		ToTick:   toTick,
		NoVerify: true,
		Keep: func(tick uint64, e protocol.Edit) bool {
			return tick < sinceTick || !replay.WithinAABB(e.Pos, lo, hi)
		},
	})
	if err != nil {
		return snapshot.SnapshotV1{}, res, err
	}
	if res.Stepped == 0 {
		return snapshot.SnapshotV1{}, res, fmt.Errorf("no logged ticks after tick %d", w.CurrentTick())
	}
	return w.ExportSnapshot(res.LastTick), res, nil
}

func parseAABB(s string) (lo, hi [3]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return lo, hi, fmt.Errorf("expected x1,y1,z1:x2,y2,z2")
	}
	a, err := parseVec3(parts[0])
	if err != nil {
		return lo, hi, err
	}
	b, err := parseVec3(parts[1])
	if err != nil {
		return lo, hi, err
	}
	for i := 0; i < 3; i++ {
		if a[i] <= b[i] {
			lo[i], hi[i] = a[i], b[i]
		} else {
			lo[i], hi[i] = b[i], a[i]
		}
	}
	return lo, hi, nil
}

func parseVec3(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}

// latestSnapshotBefore returns the newest <tick>.snap.zst with tick < before.
func latestSnapshotBefore(worldDir string, before uint64) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if tick >= before {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
