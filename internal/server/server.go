package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/OCharnyshevich/minecraft-world/internal/server/config"
	"github.com/OCharnyshevich/minecraft-world/internal/server/inspect"
	"github.com/OCharnyshevich/minecraft-world/internal/server/storage"
	"github.com/OCharnyshevich/minecraft-world/internal/server/world"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/gen"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/settings"
)

// Server owns one level: it opens it from disk, pregenerates the spawn
// area, serves the inspect endpoint and saves everything on shutdown.
type Server struct {
	cfg *config.Config
	log *slog.Logger

	storage *storage.Storage
	info    *storage.LevelInfo
	index   *storage.Index
	level   *world.Level
}

// New creates a new Server with the given config and logger.
func New(cfg *config.Config, log *slog.Logger) *Server {
	return &Server{cfg: cfg, log: log}
}

// open prepares storage, the generator and the level.
func (s *Server) open() error {
	st, err := storage.New(s.cfg.Dir, s.log)
	if err != nil {
		return err
	}
	info, err := st.OpenLevel(s.cfg.Seed, s.cfg.Generator, s.cfg.Preset)
	if err != nil {
		return err
	}

	preset, err := s.loadPreset(info.Preset)
	if err != nil {
		return err
	}
	var generator gen.Generator
	switch info.Generator {
	case "flat":
		generator = gen.NewFlatGenerator(preset.Settings.Shape)
	default:
		ctx, err := gen.NewContext(preset, info.Seed)
		if err != nil {
			return err
		}
		generator = gen.NewNoiseGenerator(ctx)
	}

	opts, err := s.cfg.Chunk.Options()
	if err != nil {
		return err
	}
	index, err := storage.OpenIndex(st.IndexPath())
	if err != nil {
		return err
	}

	var chunkIO world.ChunkIO
	switch s.cfg.Chunk.Format {
	case "linear":
		chunkIO = world.NewLinearIO(st.RegionDir(), opts.Level, s.log)
		s.log.Info("chunk storage", "format", "linear", "level", opts.Level)
	default:
		chunkIO = world.NewRegionIO(st.RegionDir(), opts, s.log)
		s.log.Info("chunk storage", "format", "anvil", "compression", opts.Compression, "write_in_place", opts.InPlace)
	}

	s.storage, s.info, s.index = st, info, index
	s.level = world.NewLevel(generator,
		chunkIO,
		world.Options{Workers: s.cfg.Workers, FetchBuffer: s.cfg.FetchBuffer, Index: index},
		s.log)
	return nil
}

func (s *Server) loadPreset(name string) (*settings.Preset, error) {
	if s.cfg.DataDir != "" {
		p, err := settings.LoadDir(s.cfg.DataDir)
		if err != nil {
			return nil, err
		}
		s.log.Info("loaded worldgen data", "dir", s.cfg.DataDir)
		return p, nil
	}
	return settings.Open(name)
}

// pregenerate fetches the square of PregenRadius chunks around spawn and
// writes it to disk.
func (s *Server) pregenerate(ctx context.Context) error {
	if s.cfg.PregenRadius <= 0 {
		return nil
	}
	start := time.Now()
	positions := inspect.Square(0, 0, s.cfg.PregenRadius)
	var failed int
	for res := range s.level.FetchChunks(ctx, positions) {
		if res.Kind == world.KindError {
			failed++
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.level.SaveDirty(ctx); err != nil {
		return fmt.Errorf("save pregenerated chunks: %w", err)
	}
	s.log.Info("spawn area ready",
		"chunks", len(positions),
		"failed", failed,
		"spawnY", s.level.SpawnHeight(),
		"took", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// close drains the level and writes everything back.
func (s *Server) close() error {
	s.level.BlockAndAwaitOngoingTasks()
	errs := []error{s.level.Close(context.Background())}
	errs = append(errs, s.storage.SaveLevel(s.info), s.index.Close())
	return errors.Join(errs...)
}

// Start opens the level and blocks until the context is cancelled, then
// saves and closes it.
func (s *Server) Start(ctx context.Context) error {
	if err := s.open(); err != nil {
		return fmt.Errorf("open level: %w", err)
	}
	s.log.Info("server started",
		"dir", s.cfg.Dir,
		"uuid", s.info.UUID,
		"generator", s.info.Generator,
		"preset", s.info.Preset,
		"seed", s.info.Seed,
	)

	err := s.pregenerate(ctx)
	if err == nil {
		err = s.serve(ctx)
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	s.log.Info("server shutting down")
	if cerr := s.close(); cerr != nil {
		s.log.Error("close level", "error", cerr)
		err = errors.Join(err, cerr)
	}
	return err
}

// serve runs the inspect endpoint, if configured, until ctx is done.
func (s *Server) serve(ctx context.Context) error {
	if s.cfg.Inspect.Addr == "" {
		<-ctx.Done()
		return nil
	}
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.cfg.Inspect.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Inspect.Addr, err)
	}
	srv := &http.Server{
		Handler:           inspect.NewHandler(s.level, s.log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("inspect endpoint listening", "addr", listener.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(listener) }()
	select {
	case err := <-errc:
		return fmt.Errorf("serve inspect: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("shutdown inspect endpoint", "error", err)
	}
	return nil
}

// Level returns the running level, or nil before Start opened it.
func (s *Server) Level() *world.Level { return s.level }
