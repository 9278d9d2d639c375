package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/O7410/Industria/internal/persistence/indexdb"
	"github.com/O7410/Industria/internal/persistence/snapshot"
)

func snapshotDir(worldDir string) string { return filepath.Join(worldDir, "snapshots") }

func snapshotPath(worldDir string, tick uint64) string {
	return filepath.Join(snapshotDir(worldDir), fmt.Sprintf("%d.snap.zst", tick))
}

// latestSnapshot prefers the index, then falls back to scanning the
// snapshot directory. Returns "" when there is nothing to resume from.
func latestSnapshot(worldDir string, idx *indexdb.SQLiteIndex) string {
	if idx != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		info, err := idx.LatestSnapshot(ctx)
		cancel()
		if err == nil {
			if _, statErr := os.Stat(info.Path); statErr == nil {
				return info.Path
			}
		}
	}
	return latestSnapshotOnDisk(worldDir)
}

func latestSnapshotOnDisk(worldDir string) string {
	dir := snapshotDir(worldDir)
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
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

// snapshotWriter persists snapshots handed over by the world loop.
type snapshotWriter struct {
	worldDir string
	index    snapshotRecorder
	log      *log.Logger
}

func (sw snapshotWriter) write(snap snapshot.SnapshotV1) (string, error) {
	path := snapshotPath(sw.worldDir, snap.Header.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	if sw.index != nil {
		sw.index.RecordSnapshot(path, snap)
	}
	return path, nil
}

func (sw snapshotWriter) run(ctx context.Context, ch <-chan snapshot.SnapshotV1) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			path, err := sw.write(snap)
			if err != nil {
				sw.log.Printf("snapshot write: %v", err)
				continue
			}
			sw.log.Printf("snapshot tick=%d path=%s", snap.Header.Tick, path)
		}
	}
}
