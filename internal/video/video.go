package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
)

// Params describes the output of one export.
type Params struct {
	Width, Height int
	FPS           int
	VideoEncoder  string
	Quality       int
	// AudioPath is muxed under the video when set; the shorter stream wins.
	AudioPath string
}

// Encoder opens a frame stream that ends up as a video file.
type Encoder interface {
	Open(ctx context.Context, path string, params Params) (Stream, error)
}

// Stream accepts frames in presentation order. Every frame must match the
// size given to Open.
type Stream interface {
	WriteFrame(img *image.RGBA) error
	Close() error
}

// FFmpegEncoder pipes raw RGBA frames into ffmpeg's stdin.
type FFmpegEncoder struct {
	// Binary defaults to "ffmpeg" on PATH.
	Binary string
}

func (e *FFmpegEncoder) Open(ctx context.Context, path string, params Params) (Stream, error) {
	if params.Width <= 0 || params.Height <= 0 || params.FPS <= 0 {
		return nil, fmt.Errorf("invalid stream params %dx%d@%d", params.Width, params.Height, params.FPS)
	}
	bin := e.Binary
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin, e.buildFFmpegArgs(path, params)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}

	return &ffmpegStream{
		cmd:    cmd,
		stdin:  stdin,
		out:    &out,
		bounds: image.Rect(0, 0, params.Width, params.Height),
	}, nil
}

func (e *FFmpegEncoder) buildFFmpegArgs(path string, params Params) []string {
	encoder := params.VideoEncoder
	if encoder == "" {
		encoder = "libx264"
	}

	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", params.Width, params.Height),
		"-framerate", fmt.Sprintf("%d", params.FPS),
		"-i", "-",
	}
	if params.AudioPath != "" {
		args = append(args, "-i", params.AudioPath, "-map", "0:v", "-map", "1:a", "-shortest")
	}
	args = append(args, "-pix_fmt", "yuv420p", "-c:v", encoder)

	switch encoder {
	case "h264_videotoolbox":
		bitrate := params.Quality * 100
		args = append(args, "-b:v", fmt.Sprintf("%dk", bitrate))
	case "h264_nvenc":
		args = append(args, "-cq", fmt.Sprintf("%d", params.Quality))
	default: // libx264
		args = append(args, "-crf", fmt.Sprintf("%d", params.Quality), "-preset", "medium")
	}

	return append(args, path)
}

type ffmpegStream struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	out    *bytes.Buffer
	bounds image.Rectangle
	closed bool
}

func (s *ffmpegStream) WriteFrame(img *image.RGBA) error {
	if s.closed {
		return errors.New("write to closed stream")
	}
	if img.Bounds().Size() != s.bounds.Size() {
		return fmt.Errorf("frame %v does not match stream %v", img.Bounds().Size(), s.bounds.Size())
	}
	return writeRawRGBA(s.stdin, img)
}

func (s *ffmpegStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg wait error: %w, output: %s", err, s.out.String())
	}
	return nil
}

// writeRawRGBA writes tightly packed RGBA rows, repacking when the image has
// padding or a non-zero origin.
func writeRawRGBA(w io.Writer, img *image.RGBA) error {
	bounds := img.Bounds()
	if img.Stride != bounds.Dx()*4 || bounds.Min != (image.Point{}) {
		packed := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(packed, packed.Bounds(), img, bounds.Min, draw.Src)
		img = packed
	}
	_, err := w.Write(img.Pix)
	return err
}
