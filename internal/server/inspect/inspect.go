// Package inspect serves a read-only view of a level over HTTP: level
// counters as JSON and a WebSocket that streams chunk summaries as chunks
// are fetched.
package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/OCharnyshevich/minecraft-world/internal/server/world"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/chunk"
)

// MaxRadius bounds the square a single fetch request may ask for.
const MaxRadius = 16

const writeTimeout = 5 * time.Second

// Level is the part of world.Level the endpoint uses.
type Level interface {
	FetchChunks(ctx context.Context, positions []chunk.Pos) <-chan world.LoadedData
	Stats() world.Stats
}

// Request asks for the square of chunks within Radius of Center.
type Request struct {
	Type   string   `json:"type"` // "FETCH"
	Center [2]int32 `json:"center"`
	Radius int      `json:"radius"`
}

// Summary describes one fetched chunk.
type Summary struct {
	Type       string `json:"type"` // "CHUNK"
	X          int32  `json:"x"`
	Z          int32  `json:"z"`
	Kind       string `json:"kind"`
	Error      string `json:"error,omitempty"`
	Status     string `json:"status,omitempty"`
	SurfaceMin int32  `json:"surface_min,omitempty"`
	SurfaceMax int32  `json:"surface_max,omitempty"`
	Sections   int    `json:"sections,omitempty"` // sections holding a non-air block
}

// Done ends the reply to one request.
type Done struct {
	Type  string `json:"type"` // "DONE"
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

// Handler routes /stats and /ws.
type Handler struct {
	level Level
	log   *slog.Logger
	mux   *http.ServeMux

	upgrader websocket.Upgrader
	sessions atomic.Int64
}

// NewHandler returns a Handler serving level.
func NewHandler(level Level, log *slog.Logger) *Handler {
	h := &Handler{
		level: level,
		log:   log,
		mux:   http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
	}
	h.mux.HandleFunc("GET /stats", h.serveStats)
	h.mux.HandleFunc("GET /ws", h.serveWS)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) serveStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.level.Stats())
}

// serveWS answers each FETCH request with one CHUNK message per chunk, in
// completion order, followed by DONE. Closing the socket abandons delivery.
func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade websocket", "error", err)
		return
	}
	defer conn.Close()
	id := h.sessions.Add(1)
	h.log.Debug("inspect session opened", "session", id, "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	requests := make(chan Request)
	go func() {
		defer cancel()
		defer close(requests)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req Request
			if err := json.Unmarshal(msg, &req); err != nil {
				req = Request{Type: "malformed"}
			}
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	for req := range requests {
		if err := h.answer(ctx, conn, req); err != nil {
			h.log.Debug("inspect session write", "session", id, "error", err)
			break
		}
	}
	cancel()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	h.log.Debug("inspect session closed", "session", id)
}

func (h *Handler) answer(ctx context.Context, conn *websocket.Conn, req Request) error {
	if req.Type != "FETCH" {
		return write(conn, Done{Type: "DONE", Error: fmt.Sprintf("unknown request type %q", req.Type)})
	}
	if req.Radius < 0 || req.Radius > MaxRadius {
		return write(conn, Done{Type: "DONE", Error: fmt.Sprintf("radius must be between 0 and %d", MaxRadius)})
	}

	var n int
	for res := range h.level.FetchChunks(ctx, Square(req.Center[0], req.Center[1], req.Radius)) {
		if err := write(conn, Summarize(res)); err != nil {
			return err
		}
		n++
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return write(conn, Done{Type: "DONE", Count: n})
}

func write(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

// Square lists the chunks within radius of (cx, cz), row by row.
func Square(cx, cz int32, radius int) []chunk.Pos {
	r := int32(radius)
	out := make([]chunk.Pos, 0, (2*r+1)*(2*r+1))
	for z := cz - r; z <= cz+r; z++ {
		for x := cx - r; x <= cx+r; x++ {
			out = append(out, chunk.Pos{X: x, Z: z})
		}
	}
	return out
}

// Summarize describes a fetch result.
func Summarize(res world.LoadedData) Summary {
	s := Summary{Type: "CHUNK", X: res.Pos.X, Z: res.Pos.Z, Kind: res.Kind.String()}
	switch res.Kind {
	case world.KindError:
		s.Error = res.Err.Error()
	case world.KindLoaded:
		res.Chunk.View(func(d *chunk.Data) {
			s.Status = string(d.Status)
			s.SurfaceMin, s.SurfaceMax = d.Heightmaps.WorldSurface[0], d.Heightmaps.WorldSurface[0]
			for _, y := range d.Heightmaps.WorldSurface {
				s.SurfaceMin = min(s.SurfaceMin, y)
				s.SurfaceMax = max(s.SurfaceMax, y)
			}
			for _, sec := range d.Sections.List {
				if !sec.Empty() {
					s.Sections++
				}
			}
		})
	}
	return s
}
