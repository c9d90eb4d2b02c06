// Package idle runs low-priority work when nothing more important is
// contending for it, with a per-task upper bound on how long it may wait.
//
// Work is queued with Do and executed on the scheduler's own goroutine, one
// task at a time. Contending work brackets itself with Busy; queued tasks
// only run while the busy count is zero, unless their deadline has passed.
package idle

import (
	"context"
	"sync"
	"time"
)

const DefaultTick = 16 * time.Millisecond

type task struct {
	fn       func()
	deadline time.Time
	done     chan struct{}
	canceled bool
	started  bool
}

type Scheduler struct {
	tick time.Duration

	mu      sync.Mutex
	queue   []*task
	busy    int
	running bool
	wake    chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a stopped scheduler. A tick <= 0 uses DefaultTick.
func New(tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{
		tick: tick,
		wake: make(chan struct{}, 1),
	}
}

// Start launches the drain loop. It is a no-op if already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop ends the drain loop. Tasks still queued run immediately on the
// caller's goroutine so no waiter is left hanging.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()
	for _, t := range pending {
		s.run(t)
	}
}

// Running reports whether the drain loop is active.
func (s *Scheduler) Running() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Busy marks contending work in progress. The returned func releases it and
// is safe to call more than once.
func (s *Scheduler) Busy() (release func()) {
	if s == nil {
		return func() {}
	}
	s.mu.Lock()
	s.busy++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.busy--
			idle := s.busy == 0 && len(s.queue) > 0
			s.mu.Unlock()
			if idle {
				s.signal()
			}
		})
	}
}

// Do queues fn and blocks until it has run or ctx ends. fn runs at the next
// idle moment, or once timeout has elapsed even if the scheduler never goes
// idle. A nil or stopped scheduler runs fn right away. If ctx ends after fn
// has started, Do waits for it to return and reports success, so callers
// never share state with a still-running fn.
func (s *Scheduler) Do(ctx context.Context, timeout time.Duration, fn func()) error {
	if s == nil {
		fn()
		return nil
	}

	t := &task{fn: fn, done: make(chan struct{})}
	if timeout > 0 {
		t.deadline = time.Now().Add(timeout)
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		fn()
		return nil
	}
	s.queue = append(s.queue, t)
	s.mu.Unlock()
	s.signal()

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		select {
		case <-t.done:
			s.mu.Unlock()
			return nil
		default:
		}
		if t.started {
			s.mu.Unlock()
			<-t.done
			return nil
		}
		t.canceled = true
		s.mu.Unlock()
		return ctx.Err()
	}
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.wake:
		}
		s.drain(ctx)
	}
}

// drain runs every task that is eligible right now: all of them while idle,
// only the overdue ones while busy.
func (s *Scheduler) drain(ctx context.Context) {
	for ctx.Err() == nil {
		t := s.next(time.Now())
		if t == nil {
			return
		}
		s.run(t)
	}
}

func (s *Scheduler) next(now time.Time) *task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var picked *task
	kept := s.queue[:0]
	for _, t := range s.queue {
		if t.canceled {
			continue
		}
		overdue := !t.deadline.IsZero() && !now.Before(t.deadline)
		if picked == nil && (s.busy == 0 || overdue) {
			picked = t
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(s.queue); i++ {
		s.queue[i] = nil
	}
	s.queue = kept
	return picked
}

func (s *Scheduler) run(t *task) {
	s.mu.Lock()
	canceled := t.canceled
	t.started = !canceled
	s.mu.Unlock()
	if !canceled {
		t.fn()
	}
	close(t.done)
}
