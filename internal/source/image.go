package source

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/webp"
)

// Decode turns fetched bytes into a ready-to-draw image. webp, png and jpeg
// are registered.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// Dimensions reads only the image header of the frame at path.
func Dimensions(ctx context.Context, src Source, path string) (width, height int, err error) {
	rc, err := src.Open(ctx, path, PriorityNormal)
	if err != nil {
		return 0, 0, err
	}
	defer rc.Close()

	cfg, _, err := image.DecodeConfig(rc)
	if err != nil {
		return 0, 0, fmt.Errorf("decode header %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// Load fetches and decodes a single frame.
func Load(ctx context.Context, src Source, path string, pri Priority) (image.Image, error) {
	rc, err := src.Open(ctx, path, pri)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return Decode(rc)
}
