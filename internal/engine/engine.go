package engine

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ivlev/framescroll/internal/cache"
	"github.com/ivlev/framescroll/internal/config"
	"github.com/ivlev/framescroll/internal/idle"
	"github.com/ivlev/framescroll/internal/loader"
	"github.com/ivlev/framescroll/internal/renderer"
	"github.com/ivlev/framescroll/internal/scroll"
	"github.com/ivlev/framescroll/internal/source"
	"github.com/ivlev/framescroll/internal/system"
)

var (
	initMu      sync.Mutex
	initialized bool
	shared      *idle.Scheduler
)

// Init performs the one-time, process-wide setup every player relies on: it
// starts the shared idle scheduler that low priority frames decode on. Call
// it once from main before creating players. Only the first call does
// anything; it reports whether this call was that one.
func Init() bool {
	initMu.Lock()
	defer initMu.Unlock()
	if initialized {
		return false
	}
	shared = idle.New(idle.DefaultTick)
	shared.Start(context.Background())
	initialized = true
	return true
}

// Scheduler returns the shared idle scheduler, nil before Init.
func Scheduler() *idle.Scheduler {
	initMu.Lock()
	defer initMu.Unlock()
	return shared
}

// Status is the host-facing view of a player.
type Status struct {
	ID         string `json:"id"`
	Percent    int    `json:"percent"`
	Ready      int    `json:"ready"`
	Failed     int    `json:"failed"`
	Total      int    `json:"total"`
	FirstFrame bool   `json:"first_frame"`
	Complete   bool   `json:"complete"`
	Index      int    `json:"index"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	// Revealed is never nil, so it always encodes as a JSON array.
	Revealed []string `json:"revealed"`
}

// Player is one banner: a sequence, its cache, the loader filling it and the
// renderer painting from it.
type Player struct {
	ID       string
	Sequence source.Sequence

	frames   *cache.Cache
	loader   *loader.Loader
	renderer *renderer.Renderer
	reveal   *scroll.Reveal
	log      zerolog.Logger

	mu  sync.RWMutex
	pin scroll.Pin
}

func NewPlayer(cfg *config.Config, src source.Source, log zerolog.Logger) (*Player, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	log = log.With().Str("player", id).Logger()

	seq := SequenceFromConfig(cfg)

	maxConcurrent := cfg.Loader.MaxConcurrent
	if maxConcurrent == 0 {
		maxConcurrent = loader.DefaultMaxConcurrent
		if info, err := system.Probe(); err == nil {
			maxConcurrent = system.RecommendedConcurrency(info)
		} else {
			log.Warn().Err(err).Msg("host probe failed, using default concurrency")
		}
	}

	frames := cache.New(seq.TotalFrames)
	reveal := scroll.NewReveal(Thresholds(cfg.Reveal))

	p := &Player{
		ID:       id,
		Sequence: seq,
		frames:   frames,
		loader: loader.New(seq, src, frames, loader.Options{
			MaxConcurrent: maxConcurrent,
			Cutoff:        cfg.Loader.HighPriorityCutoff,
			IdleTimeout:   time.Duration(cfg.Loader.IdleTimeoutMs) * time.Millisecond,
			Scheduler:     Scheduler(),
			Logger:        log,
		}),
		renderer: renderer.New(frames, renderer.Options{
			Width:  cfg.Surface.Width,
			Height: cfg.Surface.Height,
			Reveal: reveal,
			Logger: log,
		}),
		reveal: reveal,
		log:    log,
		pin:    scroll.Pin{Start: cfg.Pin.Start, End: cfg.Pin.End},
	}
	return p, nil
}

func SequenceFromConfig(cfg *config.Config) source.Sequence {
	return source.Sequence{
		BasePath:    cfg.Sequence.BasePath,
		Prefix:      cfg.Sequence.Prefix,
		Digits:      cfg.Sequence.Digits,
		Ext:         cfg.Sequence.Ext,
		TotalFrames: cfg.Sequence.TotalFrames,
	}
}

func Thresholds(rows []config.RevealRow) []scroll.Threshold {
	out := make([]scroll.Threshold, 0, len(rows))
	for _, r := range rows {
		out = append(out, scroll.Threshold{Progress: r.Threshold, Row: r.Row})
	}
	return out
}

// Start begins loading. Once the first frame is in, the surface is painted at
// the current index so the host has something to show before any scroll.
func (p *Player) Start(ctx context.Context, cb loader.Callbacks) bool {
	first := cb.OnFirstFrame
	cb.OnFirstFrame = func() {
		p.renderer.OnResize(p.renderer.Size())
		if first != nil {
			first()
		}
	}
	return p.loader.Start(ctx, cb)
}

func (p *Player) Wait(ctx context.Context) error {
	return p.loader.Wait(ctx)
}

func (p *Player) Done() <-chan struct{} {
	return p.loader.Done()
}

// Scroll delivers one progress tick from the host.
func (p *Player) Scroll(progress float64) renderer.Update {
	return p.renderer.OnScrollUpdate(progress)
}

// ScrollTo converts a scroll offset through the pin and delivers it.
func (p *Player) ScrollTo(offset float64) renderer.Update {
	p.mu.RLock()
	pin := p.pin
	p.mu.RUnlock()
	return p.Scroll(pin.Progress(offset))
}

// Capture scrolls to progress and returns the surface painted for it.
func (p *Player) Capture(progress float64) (renderer.Update, *image.RGBA) {
	return p.renderer.Capture(progress)
}

// CaptureAt is Capture for a scroll offset.
func (p *Player) CaptureAt(offset float64) (renderer.Update, *image.RGBA) {
	p.mu.RLock()
	pin := p.pin
	p.mu.RUnlock()
	return p.Capture(pin.Progress(offset))
}

func (p *Player) Resize(width, height int) bool {
	return p.renderer.OnResize(width, height)
}

func (p *Player) Snapshot() *image.RGBA {
	return p.renderer.Snapshot()
}

func (p *Player) Renderer() *renderer.Renderer {
	return p.renderer
}

func (p *Player) Status() Status {
	st := p.loader.Stats()
	w, h := p.renderer.Size()
	revealed := p.reveal.Rows()
	if revealed == nil {
		revealed = []string{}
	}
	return Status{
		ID:         p.ID,
		Percent:    st.Percent,
		Ready:      st.Ready,
		Failed:     st.Failed,
		Total:      st.Total,
		FirstFrame: st.FirstFrame,
		Complete:   st.Complete,
		Index:      p.renderer.Index(),
		Width:      w,
		Height:     h,
		Revealed:   revealed,
	}
}

// Apply takes the parts of a reloaded config that can change on a live
// player: reveal rows, surface size and pin geometry. Sequence and loader
// settings only apply to new players.
func (p *Player) Apply(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if seq := SequenceFromConfig(cfg); seq != p.Sequence {
		p.log.Warn().Msg("sequence settings changed, restart to apply them")
	}

	p.reveal.Replace(Thresholds(cfg.Reveal))

	p.mu.Lock()
	p.pin = scroll.Pin{Start: cfg.Pin.Start, End: cfg.Pin.End}
	p.mu.Unlock()

	if w, h := p.renderer.Size(); w != cfg.Surface.Width || h != cfg.Surface.Height {
		p.renderer.OnResize(cfg.Surface.Width, cfg.Surface.Height)
	}
	p.log.Info().Int("reveal_rows", len(cfg.Reveal)).Msg("config applied")
	return nil
}

func (p *Player) String() string {
	return fmt.Sprintf("player %s (%d frames)", p.ID, p.Sequence.TotalFrames)
}
