package world

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"voxelstream.ai/internal/persistence/overrides"
	"voxelstream.ai/internal/protocol"
	"voxelstream.ai/internal/sim/world/demand"
	"voxelstream.ai/internal/sim/world/genq"
	"voxelstream.ai/internal/sim/world/geometry"
	"voxelstream.ai/internal/sim/world/relocation"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

var (
	// ErrStopped is returned by requests issued after the world loop exited.
	ErrStopped         = errors.New("world stopped")
	ErrUnknownObserver = errors.New("unknown observer")
	ErrInvalidBlock    = errors.New("invalid block")
	ErrOutOfBounds     = errors.New("position out of bounds")
)

type Config struct {
	TickInterval time.Duration

	// DefaultRadius applies to joins that do not declare a radius.
	DefaultRadius        int
	ViewRadiusMargin     int
	EvictionGraceChunks  int
	GenerationBatchLimit int
	// PinnedRadius < 0 pins nothing.
	PinnedRadius int

	Height  int
	YOffset int
	Seed    int64
	Spawn   geometry.Vec3d

	RelocationMaxWaitTicks uint64
}

// Generator is the world's view of the generation scheduler.
type Generator interface {
	Submit(rec demand.Record) (bool, error)
	Drain(max int) ([]genq.Result, error)
	InFlight(c store.ChunkCoord) bool
	Stats() genq.Stats
}

type Observer struct {
	ID     string
	Name   string
	Pos    geometry.Vec3d
	Radius int

	// Previous view, updated at the end of every tick.
	PrevRadius int
	PrevChunk  store.ChunkCoord

	out chan []byte
}

type JoinRequest struct {
	Name   string
	Pos    *geometry.Vec3d // nil spawns at Config.Spawn
	Radius int             // < 0 uses Config.DefaultRadius
	Out    chan []byte     // optional STATUS sink
	Resp   chan JoinResponse
}

type JoinResponse struct {
	ObserverID string
	Welcome    protocol.WelcomeMsg
}

// MoveRequest carries observer-position updates. Nil fields are unchanged.
type MoveRequest struct {
	ID     string
	Pos    *geometry.Vec3d
	Radius *int
}

type RelocateRequest struct {
	ID   string
	Pos  geometry.Vec3d
	Resp chan error
}

type SetBlockResult struct {
	Tick     uint64
	From     uint16
	Resident bool
}

type setBlockReq struct {
	Actor   string
	X, Y, Z int
	Block   uint16
	Resp    chan setBlockResp
}

type setBlockResp struct {
	Result SetBlockResult
	Err    error
}

type chunkReq struct {
	Coord store.ChunkCoord
	Resp  chan chunkResp
}

type chunkResp struct {
	Chunk *store.Chunk
	OK    bool
}

// StepInput is everything applied at one tick boundary.
type StepInput struct {
	Joins       []JoinRequest
	Leaves      []string
	Moves       []MoveRequest
	Relocations []RelocateRequest
}

type lateEdit struct {
	x, y, z int
	block   uint16
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type TickLogEntry struct {
	Tick      uint64   `json:"tick"`
	Joins     []string `json:"joins,omitempty"`
	Leaves    []string `json:"leaves,omitempty"`
	Observers int      `json:"observers"`

	Demanded  int `json:"demanded"`
	Submitted int `json:"submitted"`
	Inserted  int `json:"inserted"`
	Discarded int `json:"discarded"`
	Evicted   int `json:"evicted"`

	Failed       int      `json:"failed"`
	FailedChunks [][2]int `json:"failed_chunks,omitempty"`

	RelocationsCommitted []string `json:"relocations_committed,omitempty"`
	RelocationsExpired   []string `json:"relocations_expired,omitempty"`

	Resident int     `json:"resident"`
	InFlight int     `json:"in_flight"`
	StepMS   float64 `json:"step_ms"`
}

type AuditEntry struct {
	Tick     uint64 `json:"tick"`
	Actor    string `json:"actor"`
	Action   string `json:"action"` // "SET_BLOCK"
	Pos      [3]int `json:"pos"`
	From     uint16 `json:"from"`
	To       uint16 `json:"to"`
	Resident bool   `json:"resident"`
	// FromUnknown marks a non-resident edit whose previous block could not
	// be rebuilt; From is meaningless then.
	FromUnknown bool `json:"from_unknown,omitempty"`
}

// World owns the chunk store, the observer set and the relocation queue.
// All of it is touched only from the world loop goroutine; other goroutines
// go through the request channels.
type World struct {
	cfg    Config
	logger *log.Logger

	tick atomic.Uint64

	chunks      *store.ChunkStore
	gen         Generator
	writer      overrides.Writer
	blockSource genq.Synthesizer
	relocations *relocation.Queue

	observers       map[string]*Observer
	nextObserverNum atomic.Uint64

	// Block edits made while the chunk was being generated, replayed onto the
	// result before it is inserted.
	lateEdits map[store.ChunkCoord][]lateEdit

	join     chan JoinRequest
	leave    chan string
	move     chan MoveRequest
	relocate chan RelocateRequest
	setBlock chan setBlockReq
	chunkReq chan chunkReq

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	tickLogger  TickLogger
	auditLogger AuditLogger

	totals  Totals
	metrics atomic.Value
}

func New(cfg Config, gen Generator, writer overrides.Writer, logger *log.Logger) (*World, error) {
	if gen == nil {
		return nil, fmt.Errorf("world: nil generator")
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("world: tick interval must be > 0")
	}
	if cfg.Height <= 0 || cfg.YOffset < 0 || cfg.YOffset >= cfg.Height {
		return nil, fmt.Errorf("world: bad height %d / y offset %d", cfg.Height, cfg.YOffset)
	}
	if cfg.GenerationBatchLimit <= 0 {
		cfg.GenerationBatchLimit = 4096
	}
	if cfg.DefaultRadius < 0 {
		cfg.DefaultRadius = 0
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[world] ", log.LstdFlags|log.Lmicroseconds)
	}

	w := &World{
		cfg:         cfg,
		logger:      logger,
		chunks:      store.NewChunkStore(cfg.Height),
		gen:         gen,
		writer:      writer,
		relocations: relocation.NewQueue(cfg.RelocationMaxWaitTicks),
		observers:   map[string]*Observer{},
		lateEdits:   map[store.ChunkCoord][]lateEdit{},
		join:        make(chan JoinRequest, 64),
		leave:       make(chan string, 64),
		move:        make(chan MoveRequest, 1024),
		relocate:    make(chan RelocateRequest, 256),
		setBlock:    make(chan setBlockReq, 256),
		chunkReq:    make(chan chunkReq, 64),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	if cfg.PinnedRadius >= 0 {
		for c := range geometry.Viewable(store.ChunkCoord{}, cfg.PinnedRadius) {
			w.chunks.Pin(c)
		}
	}
	w.metrics.Store(WorldMetrics{PinnedChunks: w.chunks.PinnedLen()})
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)   { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger) { w.auditLogger = l }

// SetBlockSource sets how the previous block of an edit to a non-resident
// chunk is rebuilt. It must read overrides through the world's writer so
// that pending edits are seen. Call before Run.
func (w *World) SetBlockSource(s genq.Synthesizer) { w.blockSource = s }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Config() Config { return w.cfg }
