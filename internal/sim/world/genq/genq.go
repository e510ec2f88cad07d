// Package genq runs chunk synthesis on a bounded worker pool, off the world
// loop goroutine.
//
// The world loop is the only caller of Submit, Drain and InFlight. Workers see
// coordinates through the job queue and hand chunks back through the results
// queue; they never touch the chunk store. A coordinate is in flight from the
// Submit that accepted it until the Drain that returns its result, success or
// failure, so at most one worker ever synthesizes a given coordinate.
package genq

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"voxelstream.ai/internal/sim/world/demand"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

// ErrClosed is structural: the job or results queue is gone and the world can
// no longer regenerate chunks.
var ErrClosed = errors.New("generation queue closed")

type Config struct {
	Workers         int
	QueueCapacity   int
	ResultsCapacity int
}

// Result is one finished job. Chunk is nil iff Err is set.
type Result struct {
	Coord store.ChunkCoord
	Chunk *store.Chunk
	Err   error
	Tick  uint64 // tick of the demand record
}

type Stats struct {
	Generated uint64
	Failed    uint64
	Rejected  uint64
	Queued    int
	InFlight  int
}

type Scheduler struct {
	cfg    Config
	synth  Synthesizer
	logger *log.Logger

	mu      sync.RWMutex // orders Submit sends against Close
	closed  bool
	jobs    chan demand.Record
	results chan Result

	inFlight map[store.ChunkCoord]struct{}

	generated atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

func NewScheduler(cfg Config, synth Synthesizer, logger *log.Logger) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1024
	}
	if cfg.ResultsCapacity <= 0 {
		cfg.ResultsCapacity = cfg.QueueCapacity
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[genq] ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Scheduler{
		cfg:      cfg,
		synth:    synth,
		logger:   logger,
		jobs:     make(chan demand.Record, cfg.QueueCapacity),
		results:  make(chan Result, cfg.ResultsCapacity),
		inFlight: map[store.ChunkCoord]struct{}{},
	}
}

// Run starts the workers and blocks until ctx is done or Close drains the job
// queue. The results queue is closed on return.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.results)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Workers; i++ {
		g.Go(func() error { return s.work(gctx) })
	}
	return g.Wait()
}

func (s *Scheduler) work(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case rec, ok := <-s.jobs:
			if !ok {
				return nil
			}
			res := Result{Coord: rec.Coord, Tick: rec.Tick}
			res.Chunk, res.Err = s.synth.Synthesize(ctx, rec.Coord)
			if res.Err == nil && res.Chunk == nil {
				res.Err = errors.New("synthesizer returned no chunk")
			}
			if res.Err != nil {
				res.Chunk = nil
				s.failed.Add(1)
				s.logger.Printf("generate chunk %s: %v", rec.Coord, res.Err)
			} else {
				s.generated.Add(1)
			}
			select {
			case s.results <- res:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Submit enqueues rec without blocking. It reports false, with no error, when
// the coordinate is already in flight or the queue is full; the caller
// re-demands it on a later tick.
func (s *Scheduler) Submit(rec demand.Record) (bool, error) {
	if _, ok := s.inFlight[rec.Coord]; ok {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}
	select {
	case s.jobs <- rec:
		s.inFlight[rec.Coord] = struct{}{}
		return true, nil
	default:
		s.rejected.Add(1)
		return false, nil
	}
}

// Drain returns up to max finished results (all available if max <= 0)
// without blocking, and releases their coordinates from the in-flight set.
// It returns ErrClosed once the results queue has been closed.
func (s *Scheduler) Drain(max int) ([]Result, error) {
	var out []Result
	for max <= 0 || len(out) < max {
		select {
		case r, ok := <-s.results:
			if !ok {
				return out, ErrClosed
			}
			delete(s.inFlight, r.Coord)
			out = append(out, r)
		default:
			return out, nil
		}
	}
	return out, nil
}

func (s *Scheduler) InFlight(c store.ChunkCoord) bool {
	_, ok := s.inFlight[c]
	return ok
}

func (s *Scheduler) InFlightLen() int { return len(s.inFlight) }

// Stats is read from the world loop, like InFlight.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Generated: s.generated.Load(),
		Failed:    s.failed.Load(),
		Rejected:  s.rejected.Load(),
		Queued:    len(s.jobs),
		InFlight:  len(s.inFlight),
	}
}

// Close stops accepting jobs. Workers finish what is queued and Run returns.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.jobs)
}
