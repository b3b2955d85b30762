package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/OCharnyshevich/minecraft-world/internal/server/world"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/anvil"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/chunk"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/gen"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/sampler"
)

var testShape = sampler.Shape{MinY: -64, Height: 384, CellWidth: 4, CellHeight: 8}

func newTestServer(t *testing.T) (*httptest.Server, *world.Level) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	level := world.NewLevel(gen.NewFlatGenerator(testShape),
		world.NewRegionIO(t.TempDir(), anvil.Options{}, log), world.Options{}, log)
	srv := httptest.NewServer(NewHandler(level, log))
	t.Cleanup(func() {
		srv.Close()
		level.Close(context.Background())
	})
	return srv, level
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readReply reads CHUNK messages until DONE.
func readReply(t *testing.T, conn *websocket.Conn) ([]Summary, Done) {
	t.Helper()
	var chunks []Summary
	for {
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var head struct{ Type string }
		if err := json.Unmarshal(msg, &head); err != nil {
			t.Fatalf("decode %s: %v", msg, err)
		}
		switch head.Type {
		case "CHUNK":
			var s Summary
			if err := json.Unmarshal(msg, &s); err != nil {
				t.Fatal(err)
			}
			chunks = append(chunks, s)
		case "DONE":
			var d Done
			if err := json.Unmarshal(msg, &d); err != nil {
				t.Fatal(err)
			}
			return chunks, d
		default:
			t.Fatalf("unexpected message %s", msg)
		}
	}
}

func TestStreamsSquare(t *testing.T) {
	srv, level := newTestServer(t)
	conn := dial(t, srv)

	if err := conn.WriteJSON(Request{Type: "FETCH", Center: [2]int32{10, -3}, Radius: 1}); err != nil {
		t.Fatal(err)
	}
	chunks, done := readReply(t, conn)
	if done.Error != "" || done.Count != 9 {
		t.Fatalf("done: got %+v, want count 9", done)
	}
	seen := make(map[chunk.Pos]bool)
	for _, s := range chunks {
		if s.Kind != "loaded" || s.Status != string(chunk.StatusFull) {
			t.Errorf("chunk (%d, %d): got kind %s status %s", s.X, s.Z, s.Kind, s.Status)
		}
		if s.SurfaceMin != testShape.MinY+5 || s.SurfaceMax != testShape.MinY+5 {
			t.Errorf("chunk (%d, %d): surface got %d..%d, want %d", s.X, s.Z, s.SurfaceMin, s.SurfaceMax, testShape.MinY+5)
		}
		if s.Sections != 1 {
			t.Errorf("chunk (%d, %d): sections got %d, want 1", s.X, s.Z, s.Sections)
		}
		seen[chunk.Pos{X: s.X, Z: s.Z}] = true
	}
	for _, pos := range Square(10, -3, 1) {
		if !seen[pos] {
			t.Errorf("no summary for chunk %s", pos)
		}
	}
	if got := level.Stats().Generated; got != 9 {
		t.Errorf("generated: got %d, want 9", got)
	}

	// A second request on the same socket is served from memory.
	if err := conn.WriteJSON(Request{Type: "FETCH", Center: [2]int32{10, -3}, Radius: 0}); err != nil {
		t.Fatal(err)
	}
	if _, done := readReply(t, conn); done.Count != 1 {
		t.Errorf("second request: got count %d, want 1", done.Count)
	}
	if got := level.Stats().Generated; got != 9 {
		t.Errorf("generated after second request: got %d, want 9", got)
	}
}

func TestRejectsBadRequests(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	tests := []struct {
		name string
		msg  string
		want string
	}{
		{"unknown type", `{"type":"SUBSCRIBE"}`, "unknown request type"},
		{"radius", `{"type":"FETCH","radius":17}`, "radius"},
		{"malformed", `{"type":`, "unknown request type"},
	}
	for _, tt := range tests {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.msg)); err != nil {
			t.Fatal(err)
		}
		chunks, done := readReply(t, conn)
		if len(chunks) != 0 || !strings.Contains(done.Error, tt.want) {
			t.Errorf("%s: got %d chunks and error %q, want error containing %q", tt.name, len(chunks), done.Error, tt.want)
		}
	}
}

func TestStats(t *testing.T) {
	srv, level := newTestServer(t)
	if _, err := level.Fetch(context.Background(), chunk.Pos{X: 1, Z: 1}); err != nil {
		t.Fatal(err)
	}
	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var st world.Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Loaded != 1 || st.Generated != 1 {
		t.Errorf("stats: got %+v, want one loaded and generated chunk", st)
	}
}

func TestSummarizeError(t *testing.T) {
	s := Summarize(world.Failed(chunk.Pos{X: 2, Z: 3}, errors.New("bad sector")))
	if s.Kind != "error" || s.Error != "bad sector" || s.X != 2 || s.Z != 3 {
		t.Errorf("got %+v", s)
	}
	if s := Summarize(world.Missing(chunk.Pos{})); s.Kind != "missing" || s.Status != "" {
		t.Errorf("missing: got %+v", s)
	}
}
