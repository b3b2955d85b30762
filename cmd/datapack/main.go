// Command datapack downloads a directory of worldgen documents and checks
// that it loads as a preset. The server uses it through -data-dir.
package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	get "github.com/hashicorp/go-getter"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/settings"
)

func main() {
	var (
		src  = flag.String("src", "", "source url, e.g. git::https://example.com/repo.git//presets/overworld")
		out  = flag.String("o", "./data", "output dir path")
		name = flag.String("name", "custom", "name of the downloaded preset directory")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if *src == "" {
		log.Error("source url required")
		os.Exit(2)
	}
	if *out == "" || *name == "" {
		log.Error("output dir and name required")
		os.Exit(2)
	}

	path := filepath.Join(*out, *name)
	if err := os.RemoveAll(path); err != nil {
		log.Error("clear output dir", "path", path, "error", err)
		os.Exit(1)
	}

	log.Info("start downloading worldgen data", "src", *src, "path", path)
	if err := get.Get(path, *src); err != nil {
		log.Error("download worldgen data", "error", err)
		os.Exit(1)
	}

	p, err := settings.LoadDir(path)
	if err != nil {
		log.Error("downloaded data is not a valid preset", "path", path, "error", err)
		os.Exit(1)
	}
	log.Info("done downloading worldgen data", "path", path, "preset", p.Name,
		"noises", len(p.Noises), "biomes", len(p.Biomes))
}
