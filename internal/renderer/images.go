package renderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/sync/singleflight"

	"github.com/ivlev/scenecut/internal/source"
)

var ErrImageUnavailable = errors.New("image not available")

// LoadState is the state of an asynchronously loaded resource.
type LoadState int

const (
	LoadReady LoadState = iota
	LoadPending
	LoadFailed
)

func (s LoadState) String() string {
	switch s {
	case LoadReady:
		return "ready"
	case LoadPending:
		return "pending"
	default:
		return "failed"
	}
}

// Quality selects the resampling kernel used when bitmaps are scaled.
type Quality int

const (
	QualityMedium Quality = iota
	QualityLow
	QualityHigh
)

func ParseQuality(s string) Quality {
	switch strings.ToLower(s) {
	case "low", "fast":
		return QualityLow
	case "high", "best":
		return QualityHigh
	default:
		return QualityMedium
	}
}

func (q Quality) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityHigh:
		return "high"
	default:
		return "medium"
	}
}

func (q Quality) scaler() draw.Scaler {
	switch q {
	case QualityLow:
		return draw.NearestNeighbor
	case QualityHigh:
		return draw.CatmullRom
	default:
		return draw.ApproxBiLinear
	}
}

type imageResult struct {
	src string
	im  image.Image
	err error
}

// ImageStore loads bitmaps through a source.Loader in the background.
// Finished loads are queued and only become visible when Drain runs, so
// the frame loop decides when new pixels show up.
type ImageStore struct {
	loader source.Loader
	log    *slog.Logger
	group  singleflight.Group
	wg     sync.WaitGroup

	mu      sync.Mutex
	images  map[string]image.Image
	failed  map[string]error
	pending map[string]bool
	done    []imageResult
}

func NewImageStore(loader source.Loader, log *slog.Logger) *ImageStore {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ImageStore{
		loader:  loader,
		log:     log,
		images:  make(map[string]image.Image),
		failed:  make(map[string]error),
		pending: make(map[string]bool),
	}
}

func (s *ImageStore) fetch(ctx context.Context, src string) (image.Image, error) {
	v, err, _ := s.group.Do(src, func() (res any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("load image %s: panic: %v", src, r)
			}
		}()
		if s.loader == nil {
			return nil, fmt.Errorf("load image %s: no loader", src)
		}
		im, err := s.loader.Load(ctx, src)
		if err != nil {
			return nil, err
		}
		if im == nil {
			return nil, fmt.Errorf("load image %s: empty result", src)
		}
		return im, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(image.Image), nil
}

// Load fetches src synchronously. Failures are remembered.
func (s *ImageStore) Load(ctx context.Context, src string) (image.Image, error) {
	s.mu.Lock()
	if im, ok := s.images[src]; ok {
		s.mu.Unlock()
		return im, nil
	}
	if err, ok := s.failed[src]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrImageUnavailable, err)
	}
	s.mu.Unlock()

	im, err := s.fetch(ctx, src)
	s.apply(imageResult{src: src, im: im, err: err})
	return im, err
}

// Request starts a background load unless src is known or in flight.
func (s *ImageStore) Request(src string) {
	s.mu.Lock()
	_, ok := s.images[src]
	_, bad := s.failed[src]
	if ok || bad || s.pending[src] {
		s.mu.Unlock()
		return
	}
	s.pending[src] = true
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		im, err := s.fetch(context.Background(), src)
		s.mu.Lock()
		s.done = append(s.done, imageResult{src: src, im: im, err: err})
		s.mu.Unlock()
	}()
}

// Drain publishes finished loads and returns their sources.
func (s *ImageStore) Drain() []string {
	s.mu.Lock()
	done := s.done
	s.done = nil
	s.mu.Unlock()

	srcs := make([]string, 0, len(done))
	for _, r := range done {
		s.apply(r)
		srcs = append(srcs, r.src)
	}
	return srcs
}

// Wait blocks until all background loads finished, then drains.
func (s *ImageStore) Wait() []string {
	s.wg.Wait()
	return s.Drain()
}

func (s *ImageStore) apply(r imageResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, r.src)
	if r.err != nil {
		if _, seen := s.failed[r.src]; !seen {
			s.log.Warn("image load failed", "source", r.src, "err", r.err)
		}
		s.failed[r.src] = r.err
		return
	}
	s.images[r.src] = r.im
}

// Image returns the bitmap for src if it is ready. Unknown sources are
// requested in the background.
func (s *ImageStore) Image(src string) (image.Image, LoadState) {
	s.mu.Lock()
	im, ok := s.images[src]
	_, bad := s.failed[src]
	s.mu.Unlock()
	switch {
	case ok:
		return im, LoadReady
	case bad:
		return nil, LoadFailed
	default:
		s.Request(src)
		return nil, LoadPending
	}
}

func (s *ImageStore) State(src string) LoadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.images[src]; ok {
		return LoadReady
	}
	if _, ok := s.failed[src]; ok {
		return LoadFailed
	}
	return LoadPending
}

func (s *ImageStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Forget drops a loaded or failed source so the next use loads it again.
func (s *ImageStore) Forget(src string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.images, src)
	delete(s.failed, src)
}

// Scale resamples im to w x h with the kernel for q.
func Scale(im image.Image, w, h int, q Quality) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, max(1, w), max(1, h)))
	q.scaler().Scale(dst, dst.Bounds(), im, im.Bounds(), draw.Src, nil)
	return dst
}
