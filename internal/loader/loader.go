// Package loader populates a frame cache from a numbered image sequence.
//
// Frame 0 is loaded first on its own because nothing can be painted until it
// exists. The remaining frames are split into two tiers:
//
//   - high: [1, cutoff) fetched with a high priority hint and decoded as soon
//     as the bytes arrive;
//   - low:  [cutoff, total) fetched at normal priority with the decode handed
//     to the idle scheduler.
//
// Each tier runs through its own limiter of MaxConcurrent in-flight
// fetch+decode pipelines. Failed frames are logged and counted as terminal so
// progress always reaches 100.
package loader

import (
	"bytes"
	"context"
	"image"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/framescroll/internal/cache"
	"github.com/ivlev/framescroll/internal/idle"
	"github.com/ivlev/framescroll/internal/source"
)

const (
	DefaultMaxConcurrent = 6
	DefaultIdleTimeout   = 3 * time.Second
)

type Tier int

const (
	TierBootstrap Tier = iota
	TierHigh
	TierLow
)

func (t Tier) String() string {
	switch t {
	case TierBootstrap:
		return "bootstrap"
	case TierHigh:
		return "high"
	default:
		return "low"
	}
}

// Callbacks are invoked from loader goroutines, one at a time.
type Callbacks struct {
	// OnFirstFrame fires once frame 0 is decoded and cached, before any tiered
	// work starts. It never fires if frame 0 fails.
	OnFirstFrame func()
	// OnProgress receives round(terminal/total*100) after every frame settles.
	OnProgress func(percent int)
	// OnComplete fires exactly once, after the last frame settles.
	OnComplete func()
}

type Options struct {
	MaxConcurrent int
	// Cutoff is the first index of the low priority tier. Values outside
	// [1, total] are clamped.
	Cutoff      int
	IdleTimeout time.Duration
	// Scheduler defers low tier decodes. Nil decodes immediately.
	Scheduler *idle.Scheduler
	Logger    zerolog.Logger
}

// Stats is a point-in-time view of loading progress.
type Stats struct {
	Total      int
	Ready      int
	Failed     int
	Terminal   int
	Percent    int
	FirstFrame bool
	Complete   bool
}

type Loader struct {
	seq   source.Sequence
	src   source.Source
	cache *cache.Cache
	opts  Options
	log   zerolog.Logger

	started atomic.Bool
	done    chan struct{}

	ready      atomic.Int64
	failed     atomic.Int64
	firstFrame atomic.Bool

	// notifyMu serializes callbacks and guards terminal.
	notifyMu sync.Mutex
	terminal int
	cb       Callbacks
}

func New(seq source.Sequence, src source.Source, c *cache.Cache, opts Options) *Loader {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Cutoff < 1 {
		opts.Cutoff = 1
	}
	if opts.Cutoff > seq.TotalFrames {
		opts.Cutoff = seq.TotalFrames
	}
	return &Loader{
		seq:   seq,
		src:   src,
		cache: c,
		opts:  opts,
		log:   opts.Logger.With().Str("component", "loader").Logger(),
		done:  make(chan struct{}),
	}
}

// Start begins loading in the background. Only the first call has any
// effect; later calls return false and schedule nothing.
func (l *Loader) Start(ctx context.Context, cb Callbacks) bool {
	if !l.started.CompareAndSwap(false, true) {
		l.log.Debug().Msg("start ignored, already loading")
		return false
	}
	l.cb = cb

	if l.seq.TotalFrames <= 0 {
		l.notifyMu.Lock()
		l.finishLocked()
		l.notifyMu.Unlock()
		return true
	}

	go l.run(ctx)
	return true
}

// Done is closed once every frame has settled.
func (l *Loader) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until loading completes or ctx ends.
func (l *Loader) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loader) Stats() Stats {
	l.notifyMu.Lock()
	terminal := l.terminal
	l.notifyMu.Unlock()

	total := l.seq.TotalFrames
	return Stats{
		Total:      total,
		Ready:      int(l.ready.Load()),
		Failed:     int(l.failed.Load()),
		Terminal:   terminal,
		Percent:    percent(terminal, total),
		FirstFrame: l.firstFrame.Load(),
		Complete:   total == 0 || terminal == total,
	}
}

func (l *Loader) run(ctx context.Context) {
	start := time.Now()
	l.log.Info().
		Int("frames", l.seq.TotalFrames).
		Int("cutoff", l.opts.Cutoff).
		Int("max_concurrent", l.opts.MaxConcurrent).
		Msg("loading sequence")

	if l.loadFrame(ctx, 0, TierBootstrap) {
		l.firstFrame.Store(true)
		l.log.Debug().Dur("elapsed", time.Since(start)).Msg("first frame ready")
		if l.cb.OnFirstFrame != nil {
			l.cb.OnFirstFrame()
		}
	} else {
		l.log.Error().Msg("first frame unavailable, nothing can be painted")
	}
	l.settle()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		l.runTier(ctx, TierHigh, 1, l.opts.Cutoff)
	}()
	go func() {
		defer wg.Done()
		l.runTier(ctx, TierLow, l.opts.Cutoff, l.seq.TotalFrames)
	}()
	wg.Wait()

	l.log.Info().
		Int64("ready", l.ready.Load()).
		Int64("failed", l.failed.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("sequence loaded")
}

// runTier starts one task per index in [from, to), in index order, keeping at
// most MaxConcurrent in flight. g.Go blocks until a slot frees up.
func (l *Loader) runTier(ctx context.Context, tier Tier, from, to int) {
	var g errgroup.Group
	g.SetLimit(l.opts.MaxConcurrent)
	for i := from; i < to; i++ {
		g.Go(func() error {
			l.loadFrame(ctx, i, tier)
			l.settle()
			return nil
		})
	}
	g.Wait()
}

// loadFrame runs one fetch+decode pipeline. Failures are logged and
// reported as false, never returned.
func (l *Loader) loadFrame(ctx context.Context, index int, tier Tier) bool {
	path := l.seq.Path(index)
	logger := l.log.With().Int("index", index).Str("tier", tier.String()).Logger()

	pri := source.PriorityNormal
	if tier != TierLow {
		pri = source.PriorityHigh
		release := l.opts.Scheduler.Busy()
		defer release()
	}

	data, err := l.fetch(ctx, path, pri)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("frame fetch failed")
		l.failed.Add(1)
		return false
	}

	var (
		img       image.Image
		decodeErr error
	)
	decode := func() { img, decodeErr = source.Decode(bytes.NewReader(data)) }

	if tier == TierLow {
		if err := l.opts.Scheduler.Do(ctx, l.opts.IdleTimeout, decode); err != nil {
			decodeErr = err
		}
	} else {
		decode()
	}
	if decodeErr != nil {
		logger.Warn().Err(decodeErr).Str("path", path).Msg("frame decode failed")
		l.failed.Add(1)
		return false
	}

	l.cache.Put(index, img)
	l.ready.Add(1)
	return true
}

func (l *Loader) fetch(ctx context.Context, path string, pri source.Priority) ([]byte, error) {
	rc, err := l.src.Open(ctx, path, pri)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// settle records one more terminal frame and notifies the host.
func (l *Loader) settle() {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.terminal++
	if l.cb.OnProgress != nil {
		l.cb.OnProgress(percent(l.terminal, l.seq.TotalFrames))
	}
	if l.terminal == l.seq.TotalFrames {
		l.finishLocked()
	}
}

func (l *Loader) finishLocked() {
	if l.cb.OnComplete != nil {
		l.cb.OnComplete()
	}
	close(l.done)
}

func percent(n, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(float64(n) / float64(total) * 100))
}
