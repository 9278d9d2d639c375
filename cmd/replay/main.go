package main

import (
	"flag"
	"fmt"
	"os"

	persistlog "github.com/O7410/Industria/internal/persistence/log"
	"github.com/O7410/Industria/internal/persistence/snapshot"
	"github.com/O7410/Industria/internal/sim/replay"
	"github.com/O7410/Industria/internal/sim/tuning"
	"github.com/O7410/Industria/internal/sim/world"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (optional; without it replay starts a fresh world at tick 0)")
		worldDir   = flag.String("world_dir", "", "world data dir; tick logs are read from <world_dir>/ticks")
		ticksDir   = flag.String("ticks", "", "tick log dir containing ticks-*.jsonl.zst (overrides -world_dir)")
		worldID    = flag.String("world", "world_1", "world id for a fresh replay")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "tuning for a fresh replay")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	var (
		w   *world.World
		err error
	)
	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fatal("read snapshot", err)
		}
		fmt.Printf("snapshot v%d world=%s tick=%d digest=%s kinds=%d networks=%d terminals=%d\n",
			snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.Header.Digest,
			len(snap.Kinds), len(snap.Networks), len(snap.Terminals))
		w, err = replay.WorldFromSnapshot(snap)
		if err != nil {
			fatal("world", err)
		}
	} else {
		tune, err := tuning.Load(*tuningPath)
		if err != nil {
			fatal("load tuning", err)
		}
		w, err = world.New(world.ConfigFromTuning(*worldID, tune))
		if err != nil {
			fatal("world", err)
		}
	}

	dir := *ticksDir
	if dir == "" && *worldDir != "" {
		dir = persistlog.TickDir(*worldDir)
	}
	if dir == "" {
		return
	}
	files, err := persistlog.ListTickFiles(dir)
	if err != nil {
		fatal("list tick logs", err)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick logs found in", dir)
		os.Exit(1)
	}

	startTick := w.CurrentTick()
	res, err := replay.Run(w, files, replay.Options{FromTick: *fromTick, ToTick: *toTick})
	if err != nil {
		fatal("replay", err)
	}
	fmt.Printf("replay ok: checked=%d ticks (from tick=%d, last=%d)\n", res.Checked, startTick, res.LastTick)
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
