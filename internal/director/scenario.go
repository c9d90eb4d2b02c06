package director

import (
	"fmt"
	"sort"

	"github.com/ivlev/framescroll/internal/scroll"
)

// Scenario is a scripted scroll: where the page is at each point in time.
type Scenario struct {
	Version   string     `yaml:"version"`
	Duration  float64    `yaml:"duration"` // Total duration in seconds
	Keyframes []Keyframe `yaml:"keyframes"`
}

// Keyframe pins the scroll progress at a time offset.
type Keyframe struct {
	Time     float64 `yaml:"time"` // Time offset in seconds
	Progress float64 `yaml:"progress"`
	Focus    string  `yaml:"focus,omitempty"` // Row being shown, if any
}

// Validate checks that keyframes are in time order and inside the duration.
func (s *Scenario) Validate() error {
	if s.Duration <= 0 {
		return fmt.Errorf("scenario duration must be positive, got %.2f", s.Duration)
	}
	if len(s.Keyframes) == 0 {
		return fmt.Errorf("scenario has no keyframes")
	}
	if !sort.SliceIsSorted(s.Keyframes, func(i, j int) bool { return s.Keyframes[i].Time < s.Keyframes[j].Time }) {
		return fmt.Errorf("scenario keyframes are not in time order")
	}
	for i, kf := range s.Keyframes {
		if kf.Time < 0 || kf.Time > s.Duration {
			return fmt.Errorf("keyframe %d at %.2fs outside [0, %.2f]", i, kf.Time, s.Duration)
		}
		if kf.Progress < 0 || kf.Progress > 1 {
			return fmt.Errorf("keyframe %d progress %.3f outside [0, 1]", i, kf.Progress)
		}
	}
	return nil
}

// ProgressAt returns the scroll progress at time t. Between two keyframes the
// scroll eases in and out; outside the keyframes it holds the nearest one.
func (s *Scenario) ProgressAt(t float64) float64 {
	kfs := s.Keyframes
	if len(kfs) == 0 {
		return scroll.Clamp(t / s.Duration)
	}
	if t <= kfs[0].Time {
		return kfs[0].Progress
	}
	last := kfs[len(kfs)-1]
	if t >= last.Time {
		return last.Progress
	}

	i := sort.Search(len(kfs), func(i int) bool { return kfs[i].Time > t })
	from, to := kfs[i-1], kfs[i]
	span := to.Time - from.Time
	if span <= 0 {
		return to.Progress
	}
	eased := scroll.EaseInOutCubic((t - from.Time) / span)
	return from.Progress + (to.Progress-from.Progress)*eased
}
