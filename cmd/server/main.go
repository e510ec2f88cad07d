package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	persistlog "voxelstream.ai/internal/persistence/log"
	"voxelstream.ai/internal/persistence/overrides"
	"voxelstream.ai/internal/protocol"
	"voxelstream.ai/internal/sim/tuning"
	"voxelstream.ai/internal/sim/world"
	"voxelstream.ai/internal/sim/world/genq"
	"voxelstream.ai/internal/sim/world/geometry"
	"voxelstream.ai/internal/sim/world/terrain/gen"
	"voxelstream.ai/internal/transport/inspect"
	"voxelstream.ai/internal/transport/ws"
)

func main() {
	var (
		addr           = flag.String("addr", ":8080", "http listen address")
		dataDir        = flag.String("data", "./data", "runtime data directory")
		tuningPath     = flag.String("tuning", "", "path to tuning.yaml (empty: built-in defaults)")
		seed           = flag.Int64("seed", 0, "worldgen seed (overrides tuning.yaml when non-zero)")
		dbDriver       = flag.String("db", "", "override store: sqlite | postgres | memory (overrides tuning.yaml)")
		pgDSN          = flag.String("pg_dsn", "", "postgres dsn (or set VS_PG_DSN)")
		disableTickLog = flag.Bool("disable_tick_log", false, "disable the per-tick JSONL log")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	if *seed != 0 {
		tune.WorldGen.Seed = *seed
	}
	if d := strings.TrimSpace(*dbDriver); d != "" {
		tune.Database.Driver = strings.ToLower(d)
	}
	if d := strings.TrimSpace(*pgDSN); d != "" {
		tune.Database.DSN = d
	}
	if err := tune.Validate(); err != nil {
		logger.Fatalf("tuning: %v", err)
	}
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	layout := overrides.Layout{YOffset: tune.YOffset}
	gateway, err := openGateway(ctx, tune.Database, *dataDir, layout, logger)
	if err != nil {
		logger.Fatalf("open override store: %v", err)
	}
	defer gateway.Close()

	terrain, err := gen.New(gen.Config{
		Mode:                            tune.WorldGen.Mode,
		Seed:                            tune.WorldGen.Seed,
		Height:                          tune.ChunkHeight,
		SurfaceY:                        tune.WorldGen.SurfaceY,
		BiomeRegionSize:                 tune.WorldGen.BiomeRegionSize,
		OreClusterProbScalePermille:     tune.WorldGen.OreClusterProbScalePermille,
		TerrainClusterProbScalePermille: tune.WorldGen.TerrainClusterProbScalePermille,
	})
	if err != nil {
		logger.Fatalf("worldgen: %v", err)
	}

	writer := overrides.NewAsyncWriter(gateway, layout, log.New(os.Stdout, "[overrides] ", log.LstdFlags|log.Lmicroseconds))
	synth := genq.Overlay{Gen: terrain, Overrides: writer}
	sched := genq.NewScheduler(genq.Config{
		Workers:         tune.WorkerPoolSize,
		QueueCapacity:   tune.QueueCapacity,
		ResultsCapacity: tune.ResultsCapacity,
	}, synth, log.New(os.Stdout, "[genq] ", log.LstdFlags|log.Lmicroseconds))

	w, err := world.New(world.Config{
		TickInterval:           tune.TickInterval(),
		DefaultRadius:          tune.ViewRadius,
		ViewRadiusMargin:       tune.ViewRadiusMargin,
		EvictionGraceChunks:    tune.EvictionGraceChunks,
		GenerationBatchLimit:   tune.GenerationBatchLimit,
		PinnedRadius:           tune.PinnedRadius,
		Height:                 tune.ChunkHeight,
		YOffset:                tune.YOffset,
		Seed:                   tune.WorldGen.Seed,
		Spawn:                  geometry.Vec3d{X: 0.5, Y: float64(tune.WorldGen.SurfaceY - tune.YOffset + 1), Z: 0.5},
		RelocationMaxWaitTicks: uint64(tune.RelocationMaxWaitTicks),
	}, sched, writer, log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	w.SetBlockSource(synth)

	if !*disableTickLog {
		tickLog := persistlog.NewTickLogger(*dataDir)
		defer tickLog.Close()
		w.SetTickLogger(tickLog)
	}
	auditLog := persistlog.NewAuditLogger(*dataDir)
	defer auditLog.Close()
	w.SetAuditLogger(auditLog)

	validator, err := protocol.NewValidator()
	if err != nil {
		logger.Fatalf("protocol schemas: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(w, writer))
	mux.HandleFunc("/v1/ws", ws.NewServer(w, validator, logger).Handler())

	if envBool("VS_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		inspectSrv := inspect.NewServer(w, logger)
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				Tick    uint64             `json:"tick"`
				Metrics world.WorldMetrics `json:"metrics"`
			}{
				Tick:    w.CurrentTick(),
				Metrics: w.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/bootstrap", inspectSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/chunk", inspectSrv.ChunkHandler())
	} else {
		logger.Printf("admin endpoints disabled (VS_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("VS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return writer.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error {
		// Workers drain what is queued once the world stops submitting.
		defer sched.Close()
		err := w.Run(gctx)
		if gctx.Err() != nil {
			// Shutdown: a closed results queue here is expected.
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	g.Go(func() error {
		logger.Printf("listening on %s (seed=%d db=%s)", *addr, tune.WorldGen.Seed, tune.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatalf("stopped: %v", err)
	}
	logger.Printf("stopped at tick %d", w.CurrentTick())
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
