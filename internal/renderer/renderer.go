// Package renderer turns scroll progress into pixels: it resolves the target
// frame through the cache and paints it cover-fit onto an RGBA surface.
package renderer

import (
	"image"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/ivlev/framescroll/internal/cache"
	"github.com/ivlev/framescroll/internal/scroll"
	"github.com/ivlev/framescroll/internal/system"
)

type Options struct {
	Width, Height int
	// Reveal receives every progress update. Nil disables reveal tracking.
	Reveal *scroll.Reveal
	// Pool recycles surfaces across resizes. Nil uses a private pool.
	Pool *system.ImagePool
	// Scaler defaults to draw.ApproxBiLinear.
	Scaler draw.Scaler
	Logger zerolog.Logger
}

// Update describes the outcome of one scroll update.
type Update struct {
	Progress float64
	Index    int
	// Drawn is false only when the cache held no frame at all.
	Drawn bool
	// Source is the index actually painted, which differs from Index when a
	// neighbor stood in for a frame that is not loaded yet.
	Source   int
	Revealed []string
}

type Renderer struct {
	frames *cache.Cache
	total  int
	reveal *scroll.Reveal
	pool   *system.ImagePool
	scaler draw.Scaler
	log    zerolog.Logger

	mu      sync.Mutex
	surface *image.RGBA
	index   int

	draws atomic.Uint64
}

func New(frames *cache.Cache, opts Options) *Renderer {
	if opts.Width <= 0 {
		opts.Width = 1
	}
	if opts.Height <= 0 {
		opts.Height = 1
	}
	if opts.Pool == nil {
		opts.Pool = system.NewImagePool()
	}
	if opts.Scaler == nil {
		opts.Scaler = draw.ApproxBiLinear
	}
	return &Renderer{
		frames:  frames,
		total:   frames.Cap(),
		reveal:  opts.Reveal,
		pool:    opts.Pool,
		scaler:  opts.Scaler,
		log:     opts.Logger.With().Str("component", "renderer").Logger(),
		surface: blank(opts.Pool.Get(opts.Width, opts.Height)),
	}
}

// OnScrollUpdate maps progress to a frame and repaints. It always redraws,
// even when the index did not change, so a resize or cleared surface never
// leaves stale pixels behind.
func (r *Renderer) OnScrollUpdate(progress float64) Update {
	u, _ := r.update(progress, false)
	return u
}

// Capture is OnScrollUpdate that also returns a copy of the surface it
// painted. Paint and copy share one lock hold, so concurrent updates cannot
// swap the pixels out from under the returned index.
func (r *Renderer) Capture(progress float64) (Update, *image.RGBA) {
	return r.update(progress, true)
}

func (r *Renderer) update(progress float64, capture bool) (Update, *image.RGBA) {
	progress = scroll.Clamp(progress)
	index := scroll.FrameIndex(progress, r.total)

	var img *image.RGBA
	r.mu.Lock()
	r.index = index
	src, drawn := r.paintLocked(index)
	if capture {
		img = r.copyLocked()
	}
	r.mu.Unlock()

	u := Update{Progress: progress, Index: index, Drawn: drawn, Source: src}
	if r.reveal != nil {
		u.Revealed = r.reveal.Update(progress)
		for _, row := range u.Revealed {
			r.log.Debug().Str("row", row).Float64("progress", progress).Msg("row revealed")
		}
	}
	return u, img
}

// OnResize swaps in a surface of the new size and repaints the last rendered
// index. The index itself is left alone.
func (r *Renderer) OnResize(width, height int) bool {
	if width <= 0 || height <= 0 {
		r.log.Warn().Int("width", width).Int("height", height).Msg("ignoring empty resize")
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.surface
	r.surface = blank(r.pool.Get(width, height))
	r.pool.Put(old)

	_, drawn := r.paintLocked(r.index)
	return drawn
}

// paintLocked draws the best available frame for index. Callers hold r.mu.
func (r *Renderer) paintLocked(index int) (int, bool) {
	img, src, ok := r.frames.Nearest(index)
	if !ok {
		return -1, false
	}

	bounds := r.surface.Bounds()
	ib := img.Bounds()
	fit := CoverFit(float64(ib.Dx()), float64(ib.Dy()), float64(bounds.Dx()), float64(bounds.Dy()))

	draw.Draw(r.surface, bounds, image.Black, image.Point{}, draw.Src)
	r.scaler.Scale(r.surface, fit.Image(), img, ib, draw.Src, nil)
	r.draws.Add(1)
	return src, true
}

// Index is the last frame index requested by a scroll update.
func (r *Renderer) Index() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index
}

func (r *Renderer) Size() (width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.surface.Bounds()
	return b.Dx(), b.Dy()
}

// Draws counts paints since construction.
func (r *Renderer) Draws() uint64 {
	return r.draws.Load()
}

// Snapshot copies the current surface.
func (r *Renderer) Snapshot() *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyLocked()
}

// Current copies the surface together with the index it was painted for.
func (r *Renderer) Current() (int, *image.RGBA) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index, r.copyLocked()
}

func (r *Renderer) copyLocked() *image.RGBA {
	out := image.NewRGBA(r.surface.Bounds())
	copy(out.Pix, r.surface.Pix)
	return out
}

// View calls fn with the live surface while holding the render lock. fn must
// not retain the image.
func (r *Renderer) View(fn func(surface *image.RGBA)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.surface)
}

// Reveal exposes the reveal flags, nil when not configured.
func (r *Renderer) Reveal() *scroll.Reveal {
	return r.reveal
}

func blank(img *image.RGBA) *image.RGBA {
	draw.Draw(img, img.Bounds(), image.Black, image.Point{}, draw.Src)
	return img
}
