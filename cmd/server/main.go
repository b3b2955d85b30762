package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/OCharnyshevich/minecraft-world/internal/server"
	"github.com/OCharnyshevich/minecraft-world/internal/server/config"
)

func main() {
	cfg := config.DefaultConfig()

	configPath := flag.String("config", "world.yaml", "path to the YAML config file")
	flag.StringVar(&cfg.Dir, "dir", cfg.Dir, "level directory")
	flag.Int64Var(&cfg.Seed, "seed", cfg.Seed, "world seed for a new level")
	flag.StringVar(&cfg.Generator, "generator", cfg.Generator, "generator for a new level: noise or flat")
	flag.StringVar(&cfg.Preset, "preset", cfg.Preset, "worldgen preset for a new level")
	flag.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory of worldgen documents overriding the preset")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent chunk loads (0 = number of CPUs)")
	flag.IntVar(&cfg.FetchBuffer, "fetch-buffer", cfg.FetchBuffer, "buffered results per chunk fetch")
	flag.IntVar(&cfg.PregenRadius, "pregen-radius", cfg.PregenRadius, "chunks around spawn generated at startup")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flag.StringVar(&cfg.Chunk.Format, "chunk-format", cfg.Chunk.Format, "region file format: anvil or linear")
	flag.StringVar(&cfg.Chunk.Compression, "compression", cfg.Chunk.Compression, "chunk compression: none, gzip, zlib, lz4 or zstd")
	flag.IntVar(&cfg.Chunk.Level, "compression-level", cfg.Chunk.Level, "compression level (0 = default)")
	flag.StringVar(&cfg.Chunk.WriteInPlace, "write-in-place", cfg.Chunk.WriteInPlace, "sector reuse on rewrite: off, reuse or trim")
	flag.StringVar(&cfg.Inspect.Addr, "inspect-addr", cfg.Inspect.Addr, "address of the inspect endpoint (empty disables it)")
	flag.Parse()

	explicit := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fromFile, err := config.LoadFile(*configPath)
	if err != nil {
		slog.Error("load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	config.Merge(cfg, fromFile, explicit)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	level, _ := cfg.SlogLevel()
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := server.New(cfg, log)
	if err := srv.Start(ctx); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
