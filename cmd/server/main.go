package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/O7410/Industria/internal/observability"
	persistlog "github.com/O7410/Industria/internal/persistence/log"
	"github.com/O7410/Industria/internal/persistence/snapshot"
	"github.com/O7410/Industria/internal/sim/tuning"
	"github.com/O7410/Industria/internal/sim/world"
	"github.com/O7410/Industria/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id (also the network id namespace)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (tick digests, edits, snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	ctx, cancel := signalContext()
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), logger)
	if err != nil {
		logger.Fatalf("init tracing: %v", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index: %v", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir, idx)
	}

	// Tuning is required for a fresh world; a resumed world carries its own.
	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil {
		if snapshotToLoad == "" || !os.IsNotExist(tuneErr) {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
		logger.Printf("tuning not found (%s); using snapshot parameters", tp)
		tune = tuning.Defaults()
	}
	if idx != nil {
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index: upsert tuning: %v", err)
		}
	}

	collector, err := observability.NewPipeCollector(nil)
	if err != nil {
		logger.Fatalf("metrics: %v", err)
	}
	worldLog := log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds)

	var w *world.World
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		w, err = world.New(world.ConfigFromSnapshot(snap), world.WithLogger(worldLog), world.WithRecorder(collector))
		if err != nil {
			logger.Fatalf("world: %v", err)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	} else {
		w, err = world.New(world.ConfigFromTuning(*worldID, tune), world.WithLogger(worldLog), world.WithRecorder(collector))
		if err != nil {
			logger.Fatalf("world: %v", err)
		}
	}

	tickLog := persistlog.NewTickLogger(worldDir)
	defer tickLog.Close()
	tickLoggers := multiTickLogger{tickLog}
	if idx != nil {
		tickLoggers = append(tickLoggers, idx)
	}
	w.SetTickLogger(tickLoggers)

	writer := snapshotWriter{worldDir: worldDir, log: logger}
	if idx != nil {
		writer.index = idx
	}
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go writer.run(ctx, snapCh)

	syncSrv := ws.NewServer(w, logger, collector, world.ErrorCode)
	w.SetBroadcaster(syncSrv)

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("world stopped: %v", err)
		}
	}()

	enableAdmin := envBool("INDUSTRIA_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprof := envBool("INDUSTRIA_ENABLE_PPROF_HTTP", false)
	if !enableAdmin {
		logger.Printf("admin endpoints disabled (INDUSTRIA_ENABLE_ADMIN_HTTP=false)")
	}
	mux := newMux(httpDeps{
		world:       w,
		index:       idx,
		snapshots:   writer,
		metrics:     collector.Handler(),
		sync:        syncSrv.Handler(),
		enableAdmin: enableAdmin,
		enablePprof: enablePprof,
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("world=%s tick_rate_hz=%d listening on %s", *worldID, w.TickRateHz(), *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-worldDone
	if idx != nil {
		fctx, fcancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := idx.Flush(fctx); err != nil {
			logger.Printf("index flush: %v", err)
		}
		fcancel()
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
