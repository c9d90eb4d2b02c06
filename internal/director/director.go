package director

import (
	"fmt"
	"sort"

	"github.com/ivlev/framescroll/internal/scroll"
)

// Director plans a scroll through the page that stops at every reveal row.
type Director struct {
	MinDwell float64 // Minimum time parked at a row (seconds)
	MaxDwell float64 // Maximum time parked at a row (seconds)
}

func NewDirector() *Director {
	return &Director{
		MinDwell: 0.5,
		MaxDwell: 2.0,
	}
}

// GenerateScenario scrolls from the top to the bottom over totalDuration,
// parking at each threshold long enough for its row to be seen.
func (d *Director) GenerateScenario(thresholds []scroll.Threshold, totalDuration float64) (*Scenario, error) {
	if totalDuration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %.2f", totalDuration)
	}

	stops := d.sortThresholds(thresholds)
	dwell := d.calculateDwellTime(totalDuration, len(stops))
	travel := (totalDuration - dwell*float64(len(stops))) / float64(len(stops)+1)

	keyframes := []Keyframe{{Time: 0, Progress: 0, Focus: "top"}}
	current := 0.0
	for _, stop := range stops {
		current += travel
		keyframes = append(keyframes, Keyframe{Time: current, Progress: stop.Progress, Focus: stop.Row})
		current += dwell
		keyframes = append(keyframes, Keyframe{Time: current, Progress: stop.Progress, Focus: stop.Row})
	}
	keyframes = append(keyframes, Keyframe{Time: totalDuration, Progress: 1, Focus: "bottom"})

	return &Scenario{
		Version:   "1.0",
		Duration:  totalDuration,
		Keyframes: keyframes,
	}, nil
}

// sortThresholds orders stops top to bottom and merges rows that share a
// threshold into one stop.
func (d *Director) sortThresholds(thresholds []scroll.Threshold) []scroll.Threshold {
	sorted := make([]scroll.Threshold, 0, len(thresholds))
	for _, th := range thresholds {
		if th.Progress <= 0 || th.Progress >= 1 {
			// Already visible at the top or only at the very end.
			continue
		}
		sorted = append(sorted, th)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Progress < sorted[j].Progress })

	merged := sorted[:0]
	for _, th := range sorted {
		if n := len(merged); n > 0 && merged[n-1].Progress == th.Progress {
			merged[n-1].Row += "+" + th.Row
			continue
		}
		merged = append(merged, th)
	}
	return merged
}

// calculateDwellTime splits half of the duration between the stops, clamped
// to the dwell bounds, and never lets dwelling eat the whole duration.
func (d *Director) calculateDwellTime(totalDuration float64, stops int) float64 {
	if stops == 0 {
		return 0
	}

	dwell := totalDuration / 2 / float64(stops)
	if dwell < d.MinDwell {
		dwell = d.MinDwell
	}
	if dwell > d.MaxDwell {
		dwell = d.MaxDwell
	}
	if dwell*float64(stops) >= totalDuration {
		dwell = totalDuration / 2 / float64(stops)
	}
	return dwell
}
