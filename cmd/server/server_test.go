package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/O7410/Industria/internal/persistence/indexdb"
	"github.com/O7410/Industria/internal/persistence/snapshot"
	"github.com/O7410/Industria/internal/sim/world"
)

type fakeWorld struct {
	tick uint64
	snap snapshot.SnapshotV1
	err  error
}

func (f *fakeWorld) ID() string                  { return "w1" }
func (f *fakeWorld) CurrentTick() uint64         { return f.tick }
func (f *fakeWorld) Metrics() world.WorldMetrics { return world.WorldMetrics{Tick: f.tick} }
func (f *fakeWorld) RequestSnapshot(context.Context) (snapshot.SnapshotV1, error) {
	return f.snap, f.err
}

func testSnapshot(tick uint64) snapshot.SnapshotV1 {
	return snapshot.SnapshotV1{
		Header:   snapshot.Header{Version: snapshot.Version, WorldID: "w1", Tick: tick, Digest: "abc"},
		TickRate: 20,
		Kinds:    []snapshot.KindV1{{Name: "heat", TransferRate: 1}},
	}
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestHealthz(t *testing.T) {
	mux := newMux(httpDeps{world: &fakeWorld{tick: 42}})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var resp struct {
		OK      bool   `json:"ok"`
		WorldID string `json:"world_id"`
		Tick    uint64 `json:"tick"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OK || resp.WorldID != "w1" || resp.Tick != 42 {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestAdminSnapshot_WritesFileAndIsLoopbackOnly(t *testing.T) {
	dir := t.TempDir()
	fw := &fakeWorld{snap: testSnapshot(7)}
	mux := newMux(httpDeps{
		world:       fw,
		snapshots:   snapshotWriter{worldDir: dir, log: quietLogger()},
		enableAdmin: true,
	})

	remote := httptest.NewRequest(http.MethodPost, "/admin/v1/snapshot", nil)
	remote.RemoteAddr = "203.0.113.9:4000"
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, remote)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("remote status=%d, want 403", rr.Code)
	}

	get := httptest.NewRequest(http.MethodGet, "/admin/v1/snapshot", nil)
	get.RemoteAddr = "127.0.0.1:4000"
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, get)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status=%d, want 405", rr.Code)
	}

	post := httptest.NewRequest(http.MethodPost, "/admin/v1/snapshot", nil)
	post.RemoteAddr = "127.0.0.1:4000"
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, post)
	if rr.Code != http.StatusOK {
		t.Fatalf("POST status=%d body=%s", rr.Code, rr.Body.String())
	}
	got, err := snapshot.ReadSnapshot(snapshotPath(dir, 7))
	if err != nil {
		t.Fatalf("read written snapshot: %v", err)
	}
	if got.Header.Tick != 7 || got.Header.Digest != "abc" {
		t.Fatalf("header=%+v", got.Header)
	}

	fw.err = errors.New("world stopped")
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, post)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("failing world status=%d, want 503", rr.Code)
	}
}

func TestAdminDisabled(t *testing.T) {
	mux := newMux(httpDeps{world: &fakeWorld{}})
	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:1"
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rr.Code)
	}
}

func TestLatestSnapshotOnDisk(t *testing.T) {
	dir := t.TempDir()
	if got := latestSnapshotOnDisk(dir); got != "" {
		t.Fatalf("empty dir gave %q", got)
	}
	w := snapshotWriter{worldDir: dir, log: quietLogger()}
	for _, tick := range []uint64{30, 300, 90} {
		if _, err := w.write(testSnapshot(tick)); err != nil {
			t.Fatalf("write %d: %v", tick, err)
		}
	}
	_ = os.WriteFile(filepath.Join(snapshotDir(dir), "notes.txt"), []byte("x"), 0o644)
	if got, want := latestSnapshotOnDisk(dir), snapshotPath(dir, 300); got != want {
		t.Fatalf("latest=%q, want %q", got, want)
	}
}

func TestLatestSnapshot_UsesIndex(t *testing.T) {
	dir := t.TempDir()
	idx, err := indexdb.OpenSQLite(filepath.Join(dir, "index", "world.sqlite"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	defer idx.Close()

	w := snapshotWriter{worldDir: dir, index: idx, log: quietLogger()}
	if _, err := w.write(testSnapshot(60)); err != nil {
		t.Fatalf("write: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got, want := latestSnapshot(dir, idx), snapshotPath(dir, 60); got != want {
		t.Fatalf("latest=%q, want %q", got, want)
	}

	// A stale index row falls back to the directory scan.
	if err := os.Remove(snapshotPath(dir, 60)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := latestSnapshot(dir, idx); got != "" {
		t.Fatalf("stale index gave %q", got)
	}
}

type errTickLogger struct{ n int }

func (e *errTickLogger) WriteTick(world.TickLogEntry) error {
	e.n++
	return errors.New("disk full")
}

func TestMultiTickLogger_WritesAllAndReportsFirstError(t *testing.T) {
	a, b := &errTickLogger{}, &errTickLogger{}
	m := multiTickLogger{a, nil, b}
	if err := m.WriteTick(world.TickLogEntry{Tick: 1}); err == nil {
		t.Fatalf("expected error")
	}
	if a.n != 1 || b.n != 1 {
		t.Fatalf("writes a=%d b=%d", a.n, b.n)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:80": true,
		"[::1]:9000":   true,
		"10.0.0.1:80":  false,
		"garbage":      false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v, want %v", in, got, want)
		}
	}
}
