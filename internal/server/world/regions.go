package world

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/chunk"
)

type regionKey struct{ x, z int32 }

func keyOf(pos chunk.Pos) regionKey {
	x, z := pos.Region()
	return regionKey{x, z}
}

type regionHandle[R any] struct {
	region   R
	users    int
	watchers int
}

// regionCache keeps region files open while an operation uses them or a
// chunk inside them is watched.
type regionCache[R any] struct {
	log   *slog.Logger
	open  func(k regionKey) (R, error)
	close func(R) error

	opening singleflight.Group

	mu      sync.Mutex
	regions map[regionKey]*regionHandle[R]
	closed  bool
}

func newRegionCache[R any](open func(regionKey) (R, error), closeFn func(R) error, log *slog.Logger) *regionCache[R] {
	return &regionCache[R]{
		log:     log,
		open:    open,
		close:   closeFn,
		regions: make(map[regionKey]*regionHandle[R]),
	}
}

// acquire returns the open handle of region k with a user reference taken.
// Concurrent opens of the same region share one open call.
func (rc *regionCache[R]) acquire(k regionKey) (*regionHandle[R], error) {
	for {
		rc.mu.Lock()
		if rc.closed {
			rc.mu.Unlock()
			return nil, ErrClosed
		}
		if h, ok := rc.regions[k]; ok {
			h.users++
			rc.mu.Unlock()
			return h, nil
		}
		rc.mu.Unlock()

		_, err, _ := rc.opening.Do(fmt.Sprintf("%d.%d", k.x, k.z), func() (any, error) {
			r, err := rc.open(k)
			if err != nil {
				return nil, err
			}
			rc.mu.Lock()
			defer rc.mu.Unlock()
			if rc.closed {
				rc.close(r)
				return nil, ErrClosed
			}
			if _, ok := rc.regions[k]; ok {
				rc.close(r)
				return nil, nil
			}
			rc.regions[k] = &regionHandle[R]{region: r}
			rc.log.Debug("region opened", "x", k.x, "z", k.z)
			return nil, nil
		})
		if err != nil {
			return nil, fmt.Errorf("open region %d, %d: %w", k.x, k.z, err)
		}
	}
}

// release drops a user reference and closes the region once nothing holds it.
func (rc *regionCache[R]) release(k regionKey, h *regionHandle[R]) {
	rc.mu.Lock()
	h.users--
	idle := rc.dropIfIdle(k, h)
	rc.mu.Unlock()
	if idle {
		rc.closeRegion(k, h)
	}
}

func (rc *regionCache[R]) dropIfIdle(k regionKey, h *regionHandle[R]) bool {
	if h.users > 0 || h.watchers > 0 || rc.regions[k] != h {
		return false
	}
	delete(rc.regions, k)
	return true
}

func (rc *regionCache[R]) closeRegion(k regionKey, h *regionHandle[R]) {
	if err := rc.close(h.region); err != nil {
		rc.log.Warn("close region", "x", k.x, "z", k.z, "error", err)
		return
	}
	rc.log.Debug("region closed", "x", k.x, "z", k.z)
}

func (rc *regionCache[R]) watch(k regionKey) error {
	h, err := rc.acquire(k)
	if err != nil {
		return err
	}
	rc.mu.Lock()
	h.watchers++
	rc.mu.Unlock()
	rc.release(k, h)
	return nil
}

func (rc *regionCache[R]) unwatch(k regionKey) {
	rc.mu.Lock()
	h, ok := rc.regions[k]
	if !ok || h.watchers == 0 {
		rc.mu.Unlock()
		return
	}
	h.watchers--
	idle := rc.dropIfIdle(k, h)
	rc.mu.Unlock()
	if idle {
		rc.closeRegion(k, h)
	}
}

func (rc *regionCache[R]) count() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.regions)
}

// closeAll closes every region. Later acquires fail with ErrClosed.
func (rc *regionCache[R]) closeAll() error {
	rc.mu.Lock()
	rc.closed = true
	regions := rc.regions
	rc.regions = make(map[regionKey]*regionHandle[R])
	rc.mu.Unlock()

	var errs []error
	for k, h := range regions {
		if err := rc.close(h.region); err != nil {
			errs = append(errs, fmt.Errorf("close region %d, %d: %w", k.x, k.z, err))
		}
	}
	return errors.Join(errs...)
}
