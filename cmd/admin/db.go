package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	tick := fs.Uint64("tick", 0, "snapshot tick for sizes (optional; defaults to latest)")
	limit := fs.Int("limit", 20, "result limit")
	aabb := fs.String("aabb", "", "AABB filter for edits: x1,y1,z1:x2,y2,z2 (optional)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, q, *tick, *limit, *aabb, printJSON); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runQuery prints the rows of one named index query through emit.
func runQuery(db *sql.DB, q string, tick uint64, limit int, aabb string, emit func(any)) error {
	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,digest,terminals FROM snapshots ORDER BY tick DESC LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick      int64  `json:"tick"`
				Path      string `json:"path"`
				Digest    string `json:"digest"`
				Terminals int    `json:"terminals"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.Digest, &r.Terminals); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "sizes":
		if tick == 0 {
			lt, err := latestSnapshotTick(db)
			if err != nil {
				return fmt.Errorf("latest tick: %w", err)
			}
			if lt == 0 {
				return fmt.Errorf("no snapshots found")
			}
			tick = lt
		}
		rows, err := db.Query(`SELECT kind,networks,pipes FROM network_sizes WHERE tick=? ORDER BY kind`, int64(tick))
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick     uint64 `json:"tick"`
				Kind     string `json:"kind"`
				Networks int    `json:"networks"`
				Pipes    int    `json:"pipes"`
			}
			if err := rows.Scan(&r.Kind, &r.Networks, &r.Pipes); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Tick = tick
			emit(r)
		}
		return rows.Err()

	case "ticks":
		rows, err := db.Query(`SELECT tick,digest,edits FROM ticks ORDER BY tick DESC LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick   int64  `json:"tick"`
				Digest string `json:"digest"`
				Edits  int    `json:"edits"`
			}
			if err := rows.Scan(&r.Tick, &r.Digest, &r.Edits); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "edits":
		query := `SELECT tick,seq,raw_json FROM edits ORDER BY tick DESC, seq DESC LIMIT ?`
		params := []any{limit}
		if strings.TrimSpace(aabb) != "" {
			lo, hi, err := parseAABB(aabb)
			if err != nil {
				return fmt.Errorf("bad -aabb: %w", err)
			}
			query = `SELECT tick,seq,raw_json FROM edits
				WHERE x BETWEEN ? AND ? AND y BETWEEN ? AND ? AND z BETWEEN ? AND ?
				ORDER BY tick DESC, seq DESC LIMIT ?`
			params = []any{lo[0], hi[0], lo[1], hi[1], lo[2], hi[2], limit}
		}
		rows, err := db.Query(query, params...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				r struct {
					Tick int64           `json:"tick"`
					Seq  int             `json:"seq"`
					Edit json.RawMessage `json:"edit"`
				}
				raw string
			)
			if err := rows.Scan(&r.Tick, &r.Seq, &raw); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Edit = json.RawMessage(raw)
			emit(r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query %q (snapshots|sizes|ticks|edits)", q)
	}
}

func latestSnapshotTick(db *sql.DB) (uint64, error) {
	var tick sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(tick) FROM snapshots`).Scan(&tick); err != nil {
		return 0, err
	}
	if !tick.Valid || tick.Int64 < 0 {
		return 0, nil
	}
	return uint64(tick.Int64), nil
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
