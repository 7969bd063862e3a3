package world

import (
	"fmt"
	"sync/atomic"

	"cityflow.sim/internal/persistence/snapshot"
	"cityflow.sim/internal/protocol"
	"cityflow.sim/internal/sim/catalogs"
	"cityflow.sim/internal/sim/tuning"
)

type JoinRequest struct {
	Name  string
	Stats bool
	Out   chan []byte
	Resp  chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

// EditEnvelope carries one road edit from a session into the world loop.
// The response is delivered after the edit is applied at a tick boundary.
type EditEnvelope struct {
	SessionID string
	Edit      protocol.EditMsg
	Resp      chan protocol.ResultMsg
}

type PathQueryReq struct {
	Query protocol.QueryMsg
	Resp  chan protocol.PathMsg
}

type RecordedEdit struct {
	SessionID string           `json:"session_id"`
	Edit      protocol.EditMsg `json:"edit"`
}

type TickLogEntry struct {
	Tick      uint64         `json:"tick"`
	Viewpoint [2]float64     `json:"viewpoint"`
	Edits     []RecordedEdit `json:"edits,omitempty"`
	Digest    string         `json:"digest"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type clientState struct {
	Out   chan []byte
	Stats bool
}

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine; the
// routing graph and metrics are the two read-only views published for
// everyone else.
type World struct {
	cfg  WorldConfig
	cats *catalogs.Catalogs
	tun  *tuning.Tuning

	clock Clock

	tick    atomic.Uint64
	metrics atomic.Value

	grid    *CellGrid
	store   *SegmentStore
	graph   atomic.Pointer[CSRGraph]
	traffic *TrafficField
	ratios  map[SegmentID]float64
	vpop    *VirtualPopulation

	agents       map[AgentID]*Agent
	nextAgentNum uint64

	// Per-district road cell cache, invalidated by store generation.
	districtRoads    map[int][]CellPos
	districtRoadsGen uint64

	// viewpoint anchors the level-of-detail tiers; collaborating editors
	// steer it through SetViewpoint.
	viewpoint Vec2

	clients        map[string]*clientState
	nextSessionNum atomic.Uint64

	inbox       chan EditEnvelope
	queries     chan PathQueryReq
	join        chan JoinRequest
	leave       chan string
	viewpointCh chan Vec2
	stop        chan struct{}

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger TickLogger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	graphFailures uint64
	pathsServed   uint64
	pathsDeferred uint64
	pathsDegraded uint64
	commuteVolume float64
}

func New(cfg WorldConfig, cats *catalogs.Catalogs) (*World, error) {
	cfg.applyDefaults()
	if cats == nil {
		return nil, fmt.Errorf("world: nil catalogs")
	}
	cfg.Catalogs = cats

	grid := NewCellGrid(cfg.GridWidth, cfg.GridHeight, cfg.CellSize)
	grid.SeedWater(cfg.Seed, cfg.WaterRegionSize, cfg.WaterPermille)

	w := &World{
		cfg:           cfg,
		cats:          cats,
		tun:           cfg.Tuning,
		clock:         Clock{DayTicks: cfg.DayTicks},
		grid:          grid,
		store:         NewSegmentStore(grid, cats, cfg.Tuning),
		traffic:       NewTrafficField(cfg.GridWidth, cfg.GridHeight),
		ratios:        map[SegmentID]float64{},
		vpop:          NewVirtualPopulation(cfg.GridWidth, cfg.GridHeight, cfg.Tuning.DistrictSizeCells),
		agents:        map[AgentID]*Agent{},
		districtRoads: map[int][]CellPos{},
		viewpoint:     Vec2{X: float64(cfg.GridWidth) * cfg.CellSize / 2, Y: float64(cfg.GridHeight) * cfg.CellSize / 2},
		clients:       map[string]*clientState{},
		inbox:         make(chan EditEnvelope, 1024),
		queries:       make(chan PathQueryReq, 256),
		join:          make(chan JoinRequest, 64),
		leave:         make(chan string, 64),
		viewpointCh:   make(chan Vec2, 16),
		stop:          make(chan struct{}),
	}
	w.vpop.Seed(cfg.Seed, cfg.TotalPopulation)

	g, err := BuildGraph(w.store)
	if err != nil {
		return nil, err
	}
	w.graph.Store(g)
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Inbox() chan<- EditEnvelope   { return w.inbox }
func (w *World) Queries() chan<- PathQueryReq { return w.queries }
func (w *World) Join() chan<- JoinRequest     { return w.join }
func (w *World) Leave() chan<- string         { return w.leave }
func (w *World) SetViewpoint(p Vec2)          { w.viewpointCh <- p }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// Graph returns the currently published routing graph. Safe from any
// goroutine; the returned graph is immutable.
func (w *World) Graph() *CSRGraph { return w.graph.Load() }

func (w *World) Stop() { close(w.stop) }

func (w *World) newSessionID() string {
	return fmt.Sprintf("s-%d", w.nextSessionNum.Add(1))
}

func (w *World) welcome() protocol.WelcomeMsg {
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		WorldParams: protocol.WorldParams{
			TickRateHz: w.cfg.TickRateHz,
			GridSize:   [2]int{w.cfg.GridWidth, w.cfg.GridHeight},
			CellSize:   w.cfg.CellSize,
			DayTicks:   w.cfg.DayTicks,
			Seed:       w.cfg.Seed,
		},
		Catalogs: protocol.CatalogDigests{
			RoadClasses:  protocol.DigestRef{Count: len(w.cats.Roads.Palette), Digest: w.cats.Roads.Digest},
			Profiles:     protocol.DigestRef{Count: len(w.cats.Profiles.Palette), Digest: w.cats.Profiles.Digest},
			TuningDigest: w.tun.Digest,
		},
	}
}
