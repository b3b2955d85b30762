package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/chunk"
)

// Chunk states kept in the index.
const (
	StateGenerated = "generated"
	StateSaved     = "saved"
)

// Entry is the index row of one chunk.
type Entry struct {
	Pos         chunk.Pos
	State       string
	GeneratedAt time.Time // zero if the chunk was generated before indexing
	SavedAt     time.Time // zero until the first save
	Size        int       // uncompressed payload bytes of the last save
}

// Index is a SQLite table of every chunk the level has generated or saved.
// It is bookkeeping only; region files stay the source of truth.
type Index struct {
	db  *sql.DB
	now func() time.Time
}

// OpenIndex opens or creates the index database at path.
func OpenIndex(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS chunks (
			x INTEGER NOT NULL,
			z INTEGER NOT NULL,
			region_x INTEGER NOT NULL,
			region_z INTEGER NOT NULL,
			state TEXT NOT NULL,
			generated_at INTEGER,
			saved_at INTEGER,
			size INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (x, z)
		);`,
		`CREATE INDEX IF NOT EXISTS chunks_region ON chunks (region_x, region_z);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("init index: %w", err)
		}
	}
	return &Index{db: db, now: time.Now}, nil
}

// RecordGenerated notes that pos was produced by the generator.
func (ix *Index) RecordGenerated(ctx context.Context, pos chunk.Pos) error {
	rx, rz := pos.Region()
	_, err := ix.db.ExecContext(ctx, `
		INSERT INTO chunks (x, z, region_x, region_z, state, generated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (x, z) DO UPDATE SET state = excluded.state, generated_at = excluded.generated_at`,
		pos.X, pos.Z, rx, rz, StateGenerated, ix.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("record generated chunk %s: %w", pos, err)
	}
	return nil
}

// RecordSaved notes that pos was written with a payload of size bytes.
func (ix *Index) RecordSaved(ctx context.Context, pos chunk.Pos, size int) error {
	rx, rz := pos.Region()
	_, err := ix.db.ExecContext(ctx, `
		INSERT INTO chunks (x, z, region_x, region_z, state, saved_at, size)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (x, z) DO UPDATE SET state = excluded.state, saved_at = excluded.saved_at, size = excluded.size`,
		pos.X, pos.Z, rx, rz, StateSaved, ix.now().UnixMilli(), size)
	if err != nil {
		return fmt.Errorf("record saved chunk %s: %w", pos, err)
	}
	return nil
}

// Lookup returns the entry of pos. The boolean is false if pos is not indexed.
func (ix *Index) Lookup(ctx context.Context, pos chunk.Pos) (Entry, bool, error) {
	var (
		e              = Entry{Pos: pos}
		generated, sav sql.NullInt64
	)
	err := ix.db.QueryRowContext(ctx,
		`SELECT state, generated_at, saved_at, size FROM chunks WHERE x = ? AND z = ?`,
		pos.X, pos.Z).Scan(&e.State, &generated, &sav, &e.Size)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("lookup chunk %s: %w", pos, err)
	}
	if generated.Valid {
		e.GeneratedAt = time.UnixMilli(generated.Int64)
	}
	if sav.Valid {
		e.SavedAt = time.UnixMilli(sav.Int64)
	}
	return e, true, nil
}

// RegionChunks returns the indexed chunks of region (rx, rz) ordered by z, then x.
func (ix *Index) RegionChunks(ctx context.Context, rx, rz int32) ([]chunk.Pos, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT x, z FROM chunks WHERE region_x = ? AND region_z = ? ORDER BY z, x`, rx, rz)
	if err != nil {
		return nil, fmt.Errorf("list region %d, %d: %w", rx, rz, err)
	}
	defer rows.Close()
	var out []chunk.Pos
	for rows.Next() {
		var p chunk.Pos
		if err := rows.Scan(&p.X, &p.Z); err != nil {
			return nil, fmt.Errorf("list region %d, %d: %w", rx, rz, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Count returns the number of indexed chunks in state, or of all chunks
// when state is empty.
func (ix *Index) Count(ctx context.Context, state string) (int, error) {
	var (
		n   int
		err error
	)
	if state == "" {
		err = ix.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	} else {
		err = ix.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE state = ?`, state).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (ix *Index) Close() error {
	return ix.db.Close()
}
