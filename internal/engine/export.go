package engine

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/ivlev/framescroll/internal/director"
	"github.com/ivlev/framescroll/internal/scroll"
	"github.com/ivlev/framescroll/internal/video"
)

type ExportOptions struct {
	FPS          int
	Duration     float64
	VideoEncoder string
	Quality      int
	AudioPath    string
	// Scenario scripts the scroll. Nil sweeps top to bottom with easing.
	Scenario *director.Scenario
}

type ExportReport struct {
	Frames   int
	Missing  int
	LoadTime time.Duration
	Elapsed  time.Duration
}

// Export plays the sequence as a scripted scroll and streams every rendered
// surface to enc. Without a scenario the scroll runs top to bottom, eased in
// and out.
func Export(ctx context.Context, p *Player, enc video.Encoder, path string, opts ExportOptions) (ExportReport, error) {
	var report ExportReport
	progressAt := func(t float64) float64 { return scroll.EaseInOutCubic(t / opts.Duration) }
	if opts.Scenario != nil {
		if err := opts.Scenario.Validate(); err != nil {
			return report, err
		}
		opts.Duration = opts.Scenario.Duration
		progressAt = opts.Scenario.ProgressAt
	}
	if opts.FPS <= 0 || opts.Duration <= 0 {
		return report, fmt.Errorf("export needs positive fps and duration, got %d fps / %.2fs", opts.FPS, opts.Duration)
	}

	start := time.Now()
	if err := p.Wait(ctx); err != nil {
		return report, fmt.Errorf("waiting for frames: %w", err)
	}
	report.LoadTime = time.Since(start)

	st := p.Status()
	if !st.FirstFrame && st.Ready == 0 {
		return report, fmt.Errorf("no frame of %d could be loaded", st.Total)
	}
	report.Missing = st.Failed

	width, height := p.renderer.Size()
	stream, err := enc.Open(ctx, path, video.Params{
		Width:        width,
		Height:       height,
		FPS:          opts.FPS,
		VideoEncoder: opts.VideoEncoder,
		Quality:      opts.Quality,
		AudioPath:    opts.AudioPath,
	})
	if err != nil {
		return report, err
	}

	frames := int(math.Round(opts.Duration * float64(opts.FPS)))
	if frames < 2 {
		frames = 2
	}

	for i := 0; i < frames; i++ {
		if err := ctx.Err(); err != nil {
			stream.Close()
			return report, err
		}
		t := float64(i) / float64(frames-1) * opts.Duration
		p.Scroll(progressAt(t))

		var writeErr error
		p.renderer.View(func(surface *image.RGBA) {
			writeErr = stream.WriteFrame(surface)
		})
		if writeErr != nil {
			stream.Close()
			return report, fmt.Errorf("frame %d/%d: %w", i+1, frames, writeErr)
		}
		report.Frames++
	}

	if err := stream.Close(); err != nil {
		return report, err
	}
	report.Elapsed = time.Since(start)

	p.log.Info().
		Str("output", path).
		Int("frames", report.Frames).
		Int("missing_sources", report.Missing).
		Dur("load", report.LoadTime).
		Dur("total", report.Elapsed).
		Msg("export finished")
	return report, nil
}
