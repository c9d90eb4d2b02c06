package scroll

import (
	"sort"
	"sync"
)

type Threshold struct {
	Progress float64
	Row      string
}

// Reveal tracks one-way visibility flags: once progress reaches a row's
// threshold the row stays visible, even if the user scrolls back.
type Reveal struct {
	mu         sync.Mutex
	thresholds []Threshold
	visible    map[string]bool
	order      []string
}

func NewReveal(thresholds []Threshold) *Reveal {
	sorted := make([]Threshold, len(thresholds))
	copy(sorted, thresholds)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Progress < sorted[j].Progress
	})
	return &Reveal{
		thresholds: sorted,
		visible:    make(map[string]bool, len(sorted)),
	}
}

// Update flips every not-yet-visible row whose threshold is <= progress and
// returns the rows revealed by this call, in threshold order.
func (r *Reveal) Update(progress float64) []string {
	progress = Clamp(progress)

	r.mu.Lock()
	defer r.mu.Unlock()

	var revealed []string
	for _, th := range r.thresholds {
		if r.visible[th.Row] || progress < th.Progress {
			continue
		}
		r.visible[th.Row] = true
		r.order = append(r.order, th.Row)
		revealed = append(revealed, th.Row)
	}
	return revealed
}

func (r *Reveal) Visible(row string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visible[row]
}

// Rows lists every visible row in the order it was revealed.
func (r *Reveal) Rows() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := make([]string, len(r.order))
	copy(rows, r.order)
	return rows
}

// Replace swaps the threshold set. Rows already visible stay visible.
func (r *Reveal) Replace(thresholds []Threshold) {
	next := NewReveal(thresholds)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.thresholds = next.thresholds
}
