package scroll

import "math"

// Clamp limits progress to [0, 1]. NaN maps to 0.
func Clamp(progress float64) float64 {
	if math.IsNaN(progress) || progress < 0 {
		return 0
	}
	if progress > 1 {
		return 1
	}
	return progress
}

// FrameIndex maps scroll progress to a frame: floor(progress*(total-1)),
// clamped to [0, total-1].
func FrameIndex(progress float64, total int) int {
	if total <= 1 {
		return 0
	}
	idx := int(math.Floor(Clamp(progress) * float64(total-1)))
	if idx < 0 {
		return 0
	}
	if idx > total-1 {
		return total - 1
	}
	return idx
}

// Pin is the scroll range, in pixels, over which the pinned container
// plays its sequence.
type Pin struct {
	Start float64
	End   float64
}

// Progress converts a scroll offset into [0, 1] progress.
func (p Pin) Progress(offset float64) float64 {
	span := p.End - p.Start
	if span <= 0 {
		if offset >= p.End {
			return 1
		}
		return 0
	}
	return Clamp((offset - p.Start) / span)
}

// EaseInOutCubic shapes a scripted scroll sweep so playback accelerates out
// of the first frame and settles into the last.
func EaseInOutCubic(t float64) float64 {
	t = Clamp(t)
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}
