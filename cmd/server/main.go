package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	persistlog "cityflow.sim/internal/persistence/log"
	"cityflow.sim/internal/persistence/snapshot"
	"cityflow.sim/internal/sim/catalogs"
	"cityflow.sim/internal/sim/tuning"
	"cityflow.sim/internal/sim/world"
	"cityflow.sim/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "city_1", "world id")
		seed       = flag.Int64("seed", 1337, "world seed (used only when starting a fresh world)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable sqlite indexing (ticks + catalogs + snapshot metadata)")

		gridW         = flag.Int("grid_width", 256, "grid width in cells (fresh world only)")
		gridH         = flag.Int("grid_height", 256, "grid height in cells (fresh world only)")
		cellSize      = flag.Float64("cell_size", 16, "cell size in world units (fresh world only)")
		waterPermille = flag.Int("water_permille", 0, "water region density permille (fresh world only)")
		population    = flag.Uint64("population", 50000, "total citizen population (fresh world only)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	var w *world.World
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}

	// Load tuning (required for fresh world; optional for snapshot resumes).
	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil {
		if snapshotToLoad == "" || !os.IsNotExist(tuneErr) {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	if idx != nil {
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		w, err = world.NewFromSnapshot(snap, cats, &tune)
		if err != nil {
			logger.Fatalf("restore world: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d segments=%d agents=%d",
			filepath.Base(snapshotToLoad), w.CurrentTick(), len(snap.Segments), len(snap.Agents))
	} else {
		w, err = world.New(world.WorldConfig{
			ID:                 *worldID,
			Seed:               *seed,
			TickRateHz:         tune.TickRateHz,
			DayTicks:           tune.DayTicks,
			GridWidth:          *gridW,
			GridHeight:         *gridH,
			CellSize:           *cellSize,
			WaterPermille:      *waterPermille,
			TotalPopulation:    *population,
			SnapshotEveryTicks: tune.SnapshotEveryTicks,
			Tuning:             &tune,
		}, cats)
		if err != nil {
			logger.Fatalf("world: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(worldDir)
	defer tickLog.Close()
	w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
			}
		}
	}()

	// Stats sampler for the index (coarse; the tick loop never blocks on it).
	if idx != nil {
		go func() {
			t := time.NewTicker(5 * time.Second)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					idx.RecordStats(w.Metrics())
				}
			}
		}()
	}

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(w, *worldID))

	if envBool("CF_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID string             `json:"world_id"`
				Tick    uint64             `json:"tick"`
				Metrics world.WorldMetrics `json:"metrics"`
			}{
				WorldID: *worldID,
				Tick:    w.CurrentTick(),
				Metrics: w.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
	} else {
		logger.Printf("admin endpoints disabled (CF_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("CF_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, &tune, logger).Handler())

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

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func metricsHandler(w *world.World, worldID string) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := w.Metrics()
		tick := w.CurrentTick()
		if m.Tick != 0 {
			tick = m.Tick
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP cityflow_world_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE cityflow_world_tick gauge\n")
		fmt.Fprintf(rw, "cityflow_world_tick{world=%q} %d\n", worldID, tick)

		fmt.Fprintf(rw, "# HELP cityflow_world_agents Materialized citizen count.\n")
		fmt.Fprintf(rw, "# TYPE cityflow_world_agents gauge\n")
		fmt.Fprintf(rw, "cityflow_world_agents{world=%q} %d\n", worldID, m.RealAgents)

		fmt.Fprintf(rw, "# HELP cityflow_world_virtual_population Aggregated virtual citizen count.\n")
		fmt.Fprintf(rw, "# TYPE cityflow_world_virtual_population gauge\n")
		fmt.Fprintf(rw, "cityflow_world_virtual_population{world=%q} %d\n", worldID, m.VirtualTotal)

		fmt.Fprintf(rw, "# HELP cityflow_world_commuting Citizens currently en route.\n")
		fmt.Fprintf(rw, "# TYPE cityflow_world_commuting gauge\n")
		fmt.Fprintf(rw, "cityflow_world_commuting{world=%q} %d\n", worldID, m.Commuting)

		fmt.Fprintf(rw, "# HELP cityflow_world_clients Current number of connected editor clients.\n")
		fmt.Fprintf(rw, "# TYPE cityflow_world_clients gauge\n")
		fmt.Fprintf(rw, "cityflow_world_clients{world=%q} %d\n", worldID, m.Clients)

		fmt.Fprintf(rw, "# HELP cityflow_world_segments Road segment count.\n")
		fmt.Fprintf(rw, "# TYPE cityflow_world_segments gauge\n")
		fmt.Fprintf(rw, "cityflow_world_segments{world=%q} %d\n", worldID, m.Segments)

		fmt.Fprintf(rw, "# HELP cityflow_routing_graph Routing graph size.\n")
		fmt.Fprintf(rw, "# TYPE cityflow_routing_graph gauge\n")
		fmt.Fprintf(rw, "cityflow_routing_graph{world=%q,unit=%q} %d\n", worldID, "nodes", m.GraphNodes)
		fmt.Fprintf(rw, "cityflow_routing_graph{world=%q,unit=%q} %d\n", worldID, "edges", m.GraphEdges)

		fmt.Fprintf(rw, "# HELP cityflow_routing_graph_generation Store generation of the live routing graph.\n")
		fmt.Fprintf(rw, "# TYPE cityflow_routing_graph_generation counter\n")
		fmt.Fprintf(rw, "cityflow_routing_graph_generation{world=%q} %d\n", worldID, m.GraphGen)

		fmt.Fprintf(rw, "# HELP cityflow_routing_graph_failures_total Graph rebuilds that failed validation.\n")
		fmt.Fprintf(rw, "# TYPE cityflow_routing_graph_failures_total counter\n")
		fmt.Fprintf(rw, "cityflow_routing_graph_failures_total{world=%q} %d\n", worldID, m.GraphFailures)

		fmt.Fprintf(rw, "# HELP cityflow_paths_total Path requests by outcome.\n")
		fmt.Fprintf(rw, "# TYPE cityflow_paths_total counter\n")
		fmt.Fprintf(rw, "cityflow_paths_total{world=%q,outcome=%q} %d\n", worldID, "served", m.PathsServed)
		fmt.Fprintf(rw, "cityflow_paths_total{world=%q,outcome=%q} %d\n", worldID, "deferred", m.PathsDeferred)
		fmt.Fprintf(rw, "cityflow_paths_total{world=%q,outcome=%q} %d\n", worldID, "degraded", m.PathsDegraded)

		fmt.Fprintf(rw, "# HELP cityflow_avg_congestion Mean load/capacity ratio over all segments.\n")
		fmt.Fprintf(rw, "# TYPE cityflow_avg_congestion gauge\n")
		fmt.Fprintf(rw, "cityflow_avg_congestion{world=%q} %.6f\n", worldID, m.AvgCongestion)

		fmt.Fprintf(rw, "# HELP cityflow_commute_volume Traffic deposited in the last tick.\n")
		fmt.Fprintf(rw, "# TYPE cityflow_commute_volume gauge\n")
		fmt.Fprintf(rw, "cityflow_commute_volume{world=%q} %.6f\n", worldID, m.CommuteVolume)

		fmt.Fprintf(rw, "# HELP cityflow_world_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE cityflow_world_queue_depth gauge\n")
		fmt.Fprintf(rw, "cityflow_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.QueueDepths.Inbox)
		fmt.Fprintf(rw, "cityflow_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "queries", m.QueueDepths.Queries)
		fmt.Fprintf(rw, "cityflow_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "join", m.QueueDepths.Join)
		fmt.Fprintf(rw, "cityflow_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "leave", m.QueueDepths.Leave)

		fmt.Fprintf(rw, "# HELP cityflow_world_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE cityflow_world_step_ms gauge\n")
		fmt.Fprintf(rw, "cityflow_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)
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

func latestSnapshot(worldDir string) string {
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
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
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

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}
