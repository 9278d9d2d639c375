package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/O7410/Industria/internal/persistence/indexdb"
	"github.com/O7410/Industria/internal/persistence/snapshot"
	"github.com/O7410/Industria/internal/sim/world"
)

// runtimeWorld is what the HTTP surface needs from the world.
type runtimeWorld interface {
	ID() string
	CurrentTick() uint64
	Metrics() world.WorldMetrics
	RequestSnapshot(ctx context.Context) (snapshot.SnapshotV1, error)
}

type httpDeps struct {
	world       runtimeWorld
	index       *indexdb.SQLiteIndex
	snapshots   snapshotWriter
	metrics     http.Handler
	sync        http.Handler
	enableAdmin bool
	enablePprof bool
}

func newMux(d httpDeps) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		resp := struct {
			OK      bool               `json:"ok"`
			WorldID string             `json:"world_id"`
			Tick    uint64             `json:"tick"`
			World   world.WorldMetrics `json:"world"`
			Index   *indexdb.Stats     `json:"index,omitempty"`
		}{
			OK:      true,
			WorldID: d.world.ID(),
			Tick:    d.world.CurrentTick(),
			World:   d.world.Metrics(),
		}
		if d.index != nil {
			st := d.index.Stats()
			resp.Index = &st
		}
		writeJSON(rw, http.StatusOK, resp)
	})
	if d.metrics != nil {
		mux.Handle("/metrics", d.metrics)
	}
	if d.sync != nil {
		mux.Handle("/v1/sync", d.sync)
	}

	if d.enableAdmin {
		// Local-only admin endpoints; none of them affect the simulation.
		mux.HandleFunc("/admin/v1/state", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			writeJSON(rw, http.StatusOK, map[string]any{
				"world_id": d.world.ID(),
				"tick":     d.world.CurrentTick(),
				"metrics":  d.world.Metrics(),
			})
		}))
		mux.HandleFunc("/admin/v1/snapshot", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			snap, err := d.world.RequestSnapshot(ctx)
			if err != nil {
				writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
				return
			}
			path, err := d.snapshots.write(snap)
			if err != nil {
				writeJSON(rw, http.StatusInternalServerError, map[string]any{"ok": false, "tick": snap.Header.Tick, "error": err.Error()})
				return
			}
			writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": snap.Header.Tick, "path": path, "digest": snap.Header.Digest})
		}))
	}
	if d.enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
