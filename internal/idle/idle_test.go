package idle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestNilSchedulerRunsImmediately(t *testing.T) {
	var s *Scheduler
	ran := false
	if err := s.Do(context.Background(), time.Second, func() { ran = true }); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Error("fn did not run")
	}
	s.Busy()()
}

func TestStoppedSchedulerRunsImmediately(t *testing.T) {
	s := New(time.Millisecond)
	ran := false
	s.Do(context.Background(), 0, func() { ran = true })
	if !ran {
		t.Error("fn did not run on a scheduler that was never started")
	}
}

func TestRunsWhenIdle(t *testing.T) {
	s := New(time.Millisecond)
	s.Start(context.Background())
	defer s.Stop()

	var ran atomic.Bool
	if err := s.Do(context.Background(), time.Minute, func() { ran.Store(true) }); err != nil {
		t.Fatal(err)
	}
	if !ran.Load() {
		t.Error("fn did not run")
	}
}

func TestWaitsWhileBusy(t *testing.T) {
	s := New(time.Millisecond)
	s.Start(context.Background())
	defer s.Stop()

	release := s.Busy()
	var ran atomic.Bool
	done := make(chan struct{})
	go func() {
		s.Do(context.Background(), time.Minute, func() { ran.Store(true) })
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	if ran.Load() {
		t.Fatal("task ran while the scheduler was busy")
	}

	release()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run after release")
	}
	if !ran.Load() {
		t.Error("fn did not run")
	}
}

func TestDeadlineOverridesBusy(t *testing.T) {
	s := New(time.Millisecond)
	s.Start(context.Background())
	defer s.Stop()

	release := s.Busy()
	defer release()

	start := time.Now()
	var ran atomic.Bool
	if err := s.Do(context.Background(), 20*time.Millisecond, func() { ran.Store(true) }); err != nil {
		t.Fatal(err)
	}
	if !ran.Load() {
		t.Fatal("fn did not run")
	}
	if waited := time.Since(start); waited < 20*time.Millisecond {
		t.Errorf("ran after %v, before its deadline", waited)
	}
}

func TestFIFOOrder(t *testing.T) {
	s := New(time.Millisecond)
	release := s.Busy()
	s.Start(context.Background())
	defer s.Stop()

	order := make(chan int, 3)
	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func(i int) {
			s.Do(context.Background(), time.Minute, func() { order <- i })
			done <- struct{}{}
		}(i)
		// Give each goroutine time to enqueue before the next one.
		time.Sleep(5 * time.Millisecond)
	}
	release()
	for i := 0; i < 3; i++ {
		<-done
	}
	for want := 0; want < 3; want++ {
		if got := <-order; got != want {
			t.Errorf("position %d ran task %d", want, got)
		}
	}
}

func TestCanceledTaskIsSkipped(t *testing.T) {
	s := New(time.Millisecond)
	s.Start(context.Background())
	defer s.Stop()

	release := s.Busy()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	var ran atomic.Bool
	err := s.Do(ctx, time.Minute, func() { ran.Store(true) })
	if err == nil {
		t.Fatal("expected context error")
	}
	release()
	time.Sleep(20 * time.Millisecond)
	if ran.Load() {
		t.Error("canceled task ran")
	}
}

func TestCancelWhileRunningWaitsForFn(t *testing.T) {
	s := New(time.Millisecond)
	s.Start(context.Background())
	defer s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	finished := false
	go func() {
		<-started
		cancel()
	}()

	err := s.Do(ctx, time.Minute, func() {
		close(started)
		time.Sleep(30 * time.Millisecond)
		finished = true
	})
	if err != nil {
		t.Fatalf("Do returned %v for a task that already started", err)
	}
	if !finished {
		t.Error("Do returned before fn finished")
	}
}

func TestStopFlushesQueue(t *testing.T) {
	s := New(time.Hour)
	s.Start(context.Background())
	release := s.Busy()
	defer release()

	done := make(chan struct{})
	go func() {
		s.Do(context.Background(), time.Hour, func() {})
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	s.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter still blocked after Stop")
	}
}
