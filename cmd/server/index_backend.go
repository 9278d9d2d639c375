package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/O7410/Industria/internal/persistence/indexdb"
	"github.com/O7410/Industria/internal/persistence/snapshot"
	"github.com/O7410/Industria/internal/sim/world"
)

// openRuntimeIndex opens the SQLite read model, or nil when indexing is off.
// The index never feeds back into the simulation.
func openRuntimeIndex(worldDir string, disableDB bool) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("INDUSTRIA_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}
	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported INDUSTRIA_INDEX_BACKEND: %s", backend)
	}
}

type snapshotRecorder interface {
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

type multiTickLogger []world.TickLogger

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	var first error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.WriteTick(entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}
