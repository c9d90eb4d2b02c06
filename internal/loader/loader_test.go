package loader

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/framescroll/internal/cache"
	"github.com/ivlev/framescroll/internal/idle"
	"github.com/ivlev/framescroll/internal/source"
)

func testSequence(total int) source.Sequence {
	return source.Sequence{BasePath: "mem", Prefix: "Sequence_", Digits: 5, Ext: "png", TotalFrames: total}
}

func pngFrame(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: shade, B: shade, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func memorySource(t *testing.T, seq source.Sequence) *source.MemorySource {
	src := source.NewMemorySource()
	for i := 0; i < seq.TotalFrames; i++ {
		src.Put(seq.Path(i), pngFrame(t, uint8(i)))
	}
	return src
}

// recorder collects callback activity.
type recorder struct {
	mu         sync.Mutex
	progress   []int
	completes  int
	firstFrame int
	events     []string
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnFirstFrame: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.firstFrame++
			r.events = append(r.events, "first-frame")
		},
		OnProgress: func(p int) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.progress = append(r.progress, p)
		},
		OnComplete: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.completes++
		},
	}
}

func (r *recorder) event(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func waitDone(t *testing.T, l *Loader) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("loader did not finish: %v", err)
	}
}

func checkCompletion(t *testing.T, r *recorder, total int) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.completes != 1 {
		t.Errorf("OnComplete called %d times", r.completes)
	}
	if len(r.progress) != total {
		t.Errorf("OnProgress called %d times, want %d", len(r.progress), total)
	}
	if len(r.progress) > 0 && r.progress[len(r.progress)-1] != 100 {
		t.Errorf("last progress = %d", r.progress[len(r.progress)-1])
	}
	for i := 1; i < len(r.progress); i++ {
		if r.progress[i] < r.progress[i-1] {
			t.Errorf("progress went backwards: %v", r.progress)
			break
		}
	}
}

func TestLoadsEverything(t *testing.T) {
	seq := testSequence(12)
	c := cache.New(seq.TotalFrames)
	l := New(seq, memorySource(t, seq), c, Options{MaxConcurrent: 3, Cutoff: 4, Logger: zerolog.Nop()})

	r := &recorder{}
	if !l.Start(context.Background(), r.callbacks()) {
		t.Fatal("Start returned false")
	}
	waitDone(t, l)

	checkCompletion(t, r, seq.TotalFrames)
	if c.Len() != seq.TotalFrames {
		t.Errorf("cache holds %d frames", c.Len())
	}
	st := l.Stats()
	if st.Ready != 12 || st.Failed != 0 || !st.Complete || !st.FirstFrame || st.Percent != 100 {
		t.Errorf("stats = %+v", st)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	seq := testSequence(20)
	src := memorySource(t, seq)
	l := New(seq, src, cache.New(seq.TotalFrames), Options{MaxConcurrent: 2, Cutoff: 8, Logger: zerolog.Nop()})

	r := &recorder{}
	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Start(context.Background(), r.callbacks()) {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	waitDone(t, l)

	if accepted.Load() != 1 {
		t.Errorf("%d Start calls accepted", accepted.Load())
	}
	for i := 0; i < seq.TotalFrames; i++ {
		if n := src.Opens(seq.Path(i)); n != 1 {
			t.Errorf("frame %d fetched %d times", i, n)
		}
	}
	if l.Start(context.Background(), r.callbacks()) {
		t.Error("Start after completion accepted")
	}
	checkCompletion(t, r, seq.TotalFrames)
}

// slowSource delays every fetch and tracks in-flight fetches per tier.
type slowSource struct {
	inner  *source.MemorySource
	seq    source.Sequence
	cutoff int
	delay  func(index int) time.Duration
	onOpen func(index int)

	mu       sync.Mutex
	inFlight map[Tier]int
	peak     map[Tier]int
}

func newSlowSource(inner *source.MemorySource, seq source.Sequence, cutoff int) *slowSource {
	return &slowSource{
		inner:    inner,
		seq:      seq,
		cutoff:   cutoff,
		inFlight: make(map[Tier]int),
		peak:     make(map[Tier]int),
	}
}

func (s *slowSource) tierOf(index int) Tier {
	switch {
	case index == 0:
		return TierBootstrap
	case index < s.cutoff:
		return TierHigh
	default:
		return TierLow
	}
}

func (s *slowSource) Open(ctx context.Context, path string, pri source.Priority) (io.ReadCloser, error) {
	index := -1
	for i := 0; i < s.seq.TotalFrames; i++ {
		if s.seq.Path(i) == path {
			index = i
			break
		}
	}
	tier := s.tierOf(index)

	if s.onOpen != nil {
		s.onOpen(index)
	}

	s.mu.Lock()
	s.inFlight[tier]++
	if s.inFlight[tier] > s.peak[tier] {
		s.peak[tier] = s.inFlight[tier]
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight[tier]--
		s.mu.Unlock()
	}()

	if s.delay != nil {
		time.Sleep(s.delay(index))
	}
	return s.inner.Open(ctx, path, pri)
}

func TestConcurrencyBoundPerTier(t *testing.T) {
	seq := testSequence(30)
	const maxConcurrent = 3
	src := newSlowSource(memorySource(t, seq), seq, 10)
	src.delay = func(int) time.Duration { return 5 * time.Millisecond }

	l := New(seq, src, cache.New(seq.TotalFrames), Options{MaxConcurrent: maxConcurrent, Cutoff: 10, Logger: zerolog.Nop()})
	r := &recorder{}
	l.Start(context.Background(), r.callbacks())
	waitDone(t, l)

	src.mu.Lock()
	defer src.mu.Unlock()
	for _, tier := range []Tier{TierHigh, TierLow} {
		if src.peak[tier] > maxConcurrent {
			t.Errorf("%s tier peaked at %d in-flight fetches", tier, src.peak[tier])
		}
		if src.peak[tier] < 2 {
			t.Errorf("%s tier never ran in parallel (peak %d)", tier, src.peak[tier])
		}
		t.Logf("%s tier peak: %d", tier, src.peak[tier])
	}
	checkCompletion(t, r, seq.TotalFrames)
}

// Ten frames, cutoff 5, two in flight per tier; later frames finish first.
func TestReverseCompletionOrder(t *testing.T) {
	seq := testSequence(10)
	r := &recorder{}

	src := newSlowSource(memorySource(t, seq), seq, 5)
	src.delay = func(index int) time.Duration {
		if index == 0 {
			return 0
		}
		return time.Duration(seq.TotalFrames-index) * 3 * time.Millisecond
	}
	src.onOpen = func(index int) {
		if index > 0 {
			r.event("open-tiered")
		}
	}

	c := cache.New(seq.TotalFrames)
	l := New(seq, src, c, Options{MaxConcurrent: 2, Cutoff: 5, Logger: zerolog.Nop()})
	l.Start(context.Background(), r.callbacks())
	waitDone(t, l)

	checkCompletion(t, r, seq.TotalFrames)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.firstFrame != 1 {
		t.Fatalf("OnFirstFrame called %d times", r.firstFrame)
	}
	if len(r.events) == 0 || r.events[0] != "first-frame" {
		t.Errorf("first frame hook did not precede tiered work: %v", r.events)
	}
	if c.Len() != seq.TotalFrames {
		t.Errorf("cache holds %d frames", c.Len())
	}
}

func TestFailuresCountTowardCompletion(t *testing.T) {
	seq := testSequence(10)
	src := memorySource(t, seq)
	// Missing frames 3 and 7 (fetch failure) plus a corrupt frame 8.
	missing := source.NewMemorySource()
	for i := 0; i < seq.TotalFrames; i++ {
		switch i {
		case 3, 7:
		case 8:
			missing.Put(seq.Path(i), []byte("corrupt"))
		default:
			rc, _ := src.Open(context.Background(), seq.Path(i), source.PriorityNormal)
			data, _ := io.ReadAll(rc)
			missing.Put(seq.Path(i), data)
		}
	}

	c := cache.New(seq.TotalFrames)
	l := New(seq, missing, c, Options{MaxConcurrent: 2, Cutoff: 5, Logger: zerolog.Nop()})
	r := &recorder{}
	l.Start(context.Background(), r.callbacks())
	waitDone(t, l)

	checkCompletion(t, r, seq.TotalFrames)
	st := l.Stats()
	if st.Ready != 7 || st.Failed != 3 || st.Percent != 100 {
		t.Errorf("stats = %+v", st)
	}
	if _, ok := c.Get(8); ok {
		t.Error("corrupt frame was cached")
	}
}

func TestMissingFirstFrame(t *testing.T) {
	seq := testSequence(6)
	src := source.NewMemorySource()
	for i := 1; i < seq.TotalFrames; i++ {
		src.Put(seq.Path(i), pngFrame(t, 10))
	}

	l := New(seq, src, cache.New(seq.TotalFrames), Options{MaxConcurrent: 2, Cutoff: 3, Logger: zerolog.Nop()})
	r := &recorder{}
	l.Start(context.Background(), r.callbacks())
	waitDone(t, l)

	checkCompletion(t, r, seq.TotalFrames)
	if r.firstFrame != 0 {
		t.Error("first frame hook fired without frame 0")
	}
	if l.Stats().FirstFrame {
		t.Error("stats report a first frame")
	}
}

func TestLowTierUsesIdleScheduler(t *testing.T) {
	seq := testSequence(16)
	sched := idle.New(time.Millisecond)
	sched.Start(context.Background())
	defer sched.Stop()

	c := cache.New(seq.TotalFrames)
	l := New(seq, memorySource(t, seq), c, Options{
		MaxConcurrent: 4,
		Cutoff:        4,
		IdleTimeout:   50 * time.Millisecond,
		Scheduler:     sched,
		Logger:        zerolog.Nop(),
	})
	r := &recorder{}
	l.Start(context.Background(), r.callbacks())
	waitDone(t, l)

	checkCompletion(t, r, seq.TotalFrames)
	if c.Len() != seq.TotalFrames {
		t.Errorf("cache holds %d frames", c.Len())
	}
}

func TestCancelDuringIdleDecode(t *testing.T) {
	seq := testSequence(40)
	sched := idle.New(time.Millisecond)
	sched.Start(context.Background())
	defer sched.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := newSlowSource(memorySource(t, seq), seq, 4)
	var once sync.Once
	src.onOpen = func(index int) {
		if index >= 10 {
			once.Do(cancel)
		}
	}

	c := cache.New(seq.TotalFrames)
	l := New(seq, src, c, Options{
		MaxConcurrent: 4,
		Cutoff:        4,
		IdleTimeout:   50 * time.Millisecond,
		Scheduler:     sched,
		Logger:        zerolog.Nop(),
	})
	r := &recorder{}
	l.Start(ctx, r.callbacks())
	waitDone(t, l)

	checkCompletion(t, r, seq.TotalFrames)
	stats := l.Stats()
	if stats.Ready+stats.Failed != seq.TotalFrames {
		t.Errorf("ready %d + failed %d != %d", stats.Ready, stats.Failed, seq.TotalFrames)
	}
	if stats.Failed == 0 {
		t.Error("no frame failed after cancellation")
	}
	if c.Len() != stats.Ready {
		t.Errorf("cache holds %d frames, %d reported ready", c.Len(), stats.Ready)
	}
}

func TestOptionClamping(t *testing.T) {
	seq := testSequence(5)
	l := New(seq, source.NewMemorySource(), cache.New(5), Options{Cutoff: 99})
	if l.opts.Cutoff != 5 || l.opts.MaxConcurrent != DefaultMaxConcurrent || l.opts.IdleTimeout != DefaultIdleTimeout {
		t.Errorf("opts = %+v", l.opts)
	}
	l = New(seq, source.NewMemorySource(), cache.New(5), Options{Cutoff: -3})
	if l.opts.Cutoff != 1 {
		t.Errorf("cutoff = %d", l.opts.Cutoff)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		n, total, want int
	}{
		{0, 201, 0},
		{1, 201, 0},
		{2, 201, 1},
		{100, 201, 50},
		{201, 201, 100},
		{0, 0, 100},
	}
	for _, tt := range tests {
		if got := percent(tt.n, tt.total); got != tt.want {
			t.Errorf("percent(%d, %d) = %d, want %d", tt.n, tt.total, got, tt.want)
		}
	}
}
