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
	limit := fs.Int("limit", 20, "result limit")
	session := fs.String("session", "", "session_id filter (edits)")
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

	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,seed,segments,agents,virtual_total FROM snapshots ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick         int64  `json:"tick"`
				Path         string `json:"path"`
				Seed         int64  `json:"seed"`
				Segments     int    `json:"segments"`
				Agents       int    `json:"agents"`
				VirtualTotal int64  `json:"virtual_total"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.Seed, &r.Segments, &r.Agents, &r.VirtualTotal); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "ticks":
		rows, err := db.Query(`SELECT tick,digest,edits FROM ticks ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick   int64  `json:"tick"`
				Digest string `json:"digest"`
				Edits  int    `json:"edits"`
			}
			if err := rows.Scan(&r.Tick, &r.Digest, &r.Edits); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "edits":
		query := `SELECT tick,seq,session_id,op,edit_json FROM edits ORDER BY tick DESC, seq DESC LIMIT ?`
		qargs := []any{*limit}
		if strings.TrimSpace(*session) != "" {
			query = `SELECT tick,seq,session_id,op,edit_json FROM edits WHERE session_id=? ORDER BY tick DESC, seq DESC LIMIT ?`
			qargs = []any{strings.TrimSpace(*session), *limit}
		}
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick      int64           `json:"tick"`
				Seq       int             `json:"seq"`
				SessionID string          `json:"session_id"`
				Op        string          `json:"op"`
				Edit      json.RawMessage `json:"edit"`
			}
			var raw string
			if err := rows.Scan(&r.Tick, &r.Seq, &r.SessionID, &r.Op, &raw); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.Edit = json.RawMessage(raw)
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "stats":
		rows, err := db.Query(`SELECT tick,real_agents,virtual_total,commuting,commute_volume,avg_congestion,graph_nodes,graph_edges,graph_generation,step_ms FROM stats ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick          int64   `json:"tick"`
				RealAgents    int     `json:"real_agents"`
				VirtualTotal  int64   `json:"virtual_total"`
				Commuting     int     `json:"commuting"`
				CommuteVolume float64 `json:"commute_volume"`
				AvgCongestion float64 `json:"avg_congestion"`
				GraphNodes    int     `json:"graph_nodes"`
				GraphEdges    int     `json:"graph_edges"`
				GraphGen      int64   `json:"graph_generation"`
				StepMS        float64 `json:"step_ms"`
			}
			if err := rows.Scan(&r.Tick, &r.RealAgents, &r.VirtualTotal, &r.Commuting, &r.CommuteVolume, &r.AvgCongestion, &r.GraphNodes, &r.GraphEdges, &r.GraphGen, &r.StepMS); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown query %q (want snapshots|ticks|edits|stats)\n", q)
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
