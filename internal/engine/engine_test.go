package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/framescroll/internal/config"
	"github.com/ivlev/framescroll/internal/director"
	"github.com/ivlev/framescroll/internal/loader"
	"github.com/ivlev/framescroll/internal/source"
	"github.com/ivlev/framescroll/internal/video"
)

func testConfig(total int) *config.Config {
	cfg := config.Default()
	cfg.Sequence.BasePath = "mem"
	cfg.Sequence.Ext = "png"
	cfg.Sequence.TotalFrames = total
	cfg.Loader.HighPriorityCutoff = 3
	cfg.Loader.MaxConcurrent = 2
	cfg.Surface = config.SurfaceConfig{Width: 8, Height: 4}
	cfg.Pin = config.PinConfig{Start: 100, End: 1100}
	return cfg
}

func frameSource(t *testing.T, cfg *config.Config) *source.MemorySource {
	t.Helper()
	seq := SequenceFromConfig(cfg)
	src := source.NewMemorySource()
	for i := 0; i < seq.TotalFrames; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 8, 4))
		for p := 0; p < len(img.Pix); p += 4 {
			img.Pix[p], img.Pix[p+1], img.Pix[p+2], img.Pix[p+3] = uint8(i*10), 0, 0, 255
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			t.Fatal(err)
		}
		src.Put(seq.Path(i), buf.Bytes())
	}
	return src
}

func startedPlayer(t *testing.T, cfg *config.Config) *Player {
	t.Helper()
	p, err := NewPlayer(cfg, frameSource(t, cfg), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	if !p.Start(t.Context(), loader.Callbacks{}) {
		t.Fatal("first Start returned false")
	}
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("loading did not finish: %v", err)
	}
	return p
}

func TestInitOnce(t *testing.T) {
	Init()
	if Init() {
		t.Error("second Init reported first-time initialization")
	}
	s := Scheduler()
	if s == nil || !s.Running() {
		t.Fatal("shared scheduler not running after Init")
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if Init() {
				t.Error("concurrent Init re-initialized")
			}
		}()
	}
	wg.Wait()
	if Scheduler() != s {
		t.Error("shared scheduler replaced")
	}
}

func TestNewPlayerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(10)
	cfg.Loader.HighPriorityCutoff = 0
	if _, err := NewPlayer(cfg, source.NewMemorySource(), zerolog.Nop()); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestPlayerLifecycle(t *testing.T) {
	cfg := testConfig(10)
	p := startedPlayer(t, cfg)

	if p.Start(t.Context(), loader.Callbacks{}) {
		t.Error("second Start returned true")
	}

	st := p.Status()
	if !st.Complete || !st.FirstFrame || st.Percent != 100 || st.Ready != 10 {
		t.Fatalf("status = %+v", st)
	}
	if st.ID == "" || st.ID != p.ID {
		t.Errorf("status id %q, player id %q", st.ID, p.ID)
	}

	u := p.Scroll(1)
	if !u.Drawn || u.Index != 9 {
		t.Errorf("Scroll(1) = %+v", u)
	}
	if got := p.Snapshot().RGBAAt(0, 0); got.R != 90 {
		t.Errorf("pixel after Scroll(1) = %v, want frame 9", got)
	}
	if len(p.Status().Revealed) != 3 {
		t.Errorf("revealed = %v", p.Status().Revealed)
	}
}

func TestStatusRevealedEncodesAsArray(t *testing.T) {
	cfg := testConfig(4)
	p, err := NewPlayer(cfg, frameSource(t, cfg), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(p.Status())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`"revealed":[]`)) {
		t.Errorf("status = %s", data)
	}
}

func TestScrollToUsesPin(t *testing.T) {
	p := startedPlayer(t, testConfig(11))

	tests := []struct {
		offset float64
		index  int
	}{
		{0, 0},
		{100, 0},
		{600, 5},
		{1100, 10},
		{5000, 10},
	}
	for _, tt := range tests {
		if u := p.ScrollTo(tt.offset); u.Index != tt.index {
			t.Errorf("ScrollTo(%v) index = %d, want %d", tt.offset, u.Index, tt.index)
		}
	}
}

func TestResizeKeepsIndex(t *testing.T) {
	p := startedPlayer(t, testConfig(10))
	p.Scroll(0.5)
	before := p.Status().Index

	if !p.Resize(16, 16) {
		t.Fatal("resize did not draw")
	}
	st := p.Status()
	if st.Index != before || st.Width != 16 || st.Height != 16 {
		t.Errorf("after resize: %+v, index before %d", st, before)
	}
}

func TestApply(t *testing.T) {
	cfg := testConfig(10)
	p := startedPlayer(t, cfg)

	next := testConfig(10)
	next.Surface = config.SurfaceConfig{Width: 20, Height: 10}
	next.Pin = config.PinConfig{Start: 0, End: 10}
	next.Reveal = []config.RevealRow{{Threshold: 0.1, Row: "late-row"}}
	if err := p.Apply(next); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if w, h := p.Renderer().Size(); w != 20 || h != 10 {
		t.Errorf("size = %dx%d", w, h)
	}
	if u := p.ScrollTo(10); u.Index != 9 {
		t.Errorf("new pin not applied, index %d", u.Index)
	}
	if !p.Renderer().Reveal().Visible("late-row") {
		t.Error("new reveal row not tracked")
	}

	bad := testConfig(10)
	bad.Surface.Width = 0
	if err := p.Apply(bad); err == nil {
		t.Error("Apply accepted an invalid config")
	}
}

type fakeEncoder struct {
	params video.Params
	frames []image.RGBA
	closed bool
	failAt int
}

func (e *fakeEncoder) Open(ctx context.Context, path string, params video.Params) (video.Stream, error) {
	e.params = params
	return e, nil
}

func (e *fakeEncoder) WriteFrame(img *image.RGBA) error {
	if e.failAt > 0 && len(e.frames)+1 == e.failAt {
		return errors.New("pipe closed")
	}
	cp := *img
	cp.Pix = append([]uint8(nil), img.Pix...)
	e.frames = append(e.frames, cp)
	return nil
}

func (e *fakeEncoder) Close() error {
	e.closed = true
	return nil
}

func TestExport(t *testing.T) {
	p := startedPlayer(t, testConfig(10))
	enc := &fakeEncoder{}

	report, err := Export(t.Context(), p, enc, "out.mp4", ExportOptions{FPS: 10, Duration: 1.5, VideoEncoder: "libx264", Quality: 23})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if report.Frames != 15 || len(enc.frames) != 15 {
		t.Fatalf("frames = %d / %d, want 15", report.Frames, len(enc.frames))
	}
	if !enc.closed {
		t.Error("stream not closed")
	}
	if enc.params.Width != 8 || enc.params.Height != 4 || enc.params.FPS != 10 {
		t.Errorf("params = %+v", enc.params)
	}

	first := enc.frames[0].RGBAAt(0, 0)
	last := enc.frames[len(enc.frames)-1].RGBAAt(0, 0)
	if first.R != 0 || last.R != 90 {
		t.Errorf("sweep went from %v to %v, want frame 0 to frame 9", first, last)
	}
	for i := 1; i < len(enc.frames); i++ {
		if enc.frames[i].RGBAAt(0, 0).R < enc.frames[i-1].RGBAAt(0, 0).R {
			t.Errorf("frame %d goes backwards", i)
		}
	}
}

func TestExportScenario(t *testing.T) {
	p := startedPlayer(t, testConfig(10))
	enc := &fakeEncoder{}

	scenario := &director.Scenario{
		Duration: 1,
		Keyframes: []director.Keyframe{
			{Time: 0, Progress: 1},
			{Time: 1, Progress: 0},
		},
	}
	report, err := Export(t.Context(), p, enc, "out.mp4", ExportOptions{FPS: 12, Duration: 99, Scenario: scenario})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if report.Frames != 12 {
		t.Errorf("frames = %d, want 12 (scenario duration wins)", report.Frames)
	}
	if first, last := enc.frames[0].RGBAAt(0, 0), enc.frames[11].RGBAAt(0, 0); first.R != 90 || last.R != 0 {
		t.Errorf("scenario not followed: first %v last %v", first, last)
	}

	bad := &director.Scenario{Duration: 1}
	if _, err := Export(t.Context(), p, &fakeEncoder{}, "out.mp4", ExportOptions{FPS: 12, Scenario: bad}); err == nil {
		t.Error("invalid scenario accepted")
	}
}

func TestExportErrors(t *testing.T) {
	p := startedPlayer(t, testConfig(10))

	if _, err := Export(t.Context(), p, &fakeEncoder{}, "out.mp4", ExportOptions{FPS: 0, Duration: 1}); err == nil {
		t.Error("zero fps accepted")
	}

	enc := &fakeEncoder{failAt: 3}
	report, err := Export(t.Context(), p, enc, "out.mp4", ExportOptions{FPS: 10, Duration: 1})
	if err == nil {
		t.Fatal("write failure not reported")
	}
	if report.Frames != 2 || !enc.closed {
		t.Errorf("frames=%d closed=%v", report.Frames, enc.closed)
	}
}

func TestExportWithoutFrames(t *testing.T) {
	cfg := testConfig(4)
	p, err := NewPlayer(cfg, source.NewMemorySource(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	p.Start(t.Context(), loader.Callbacks{})
	if _, err := Export(t.Context(), p, &fakeEncoder{}, "out.mp4", ExportOptions{FPS: 10, Duration: 1}); err == nil {
		t.Error("export of an empty sequence succeeded")
	}
}
