package node

import (
	"context"
	"testing"
	"time"
)

func TestLoopRunsInOrder(t *testing.T) {
	l := NewLoop()
	go l.Run(context.Background())
	defer l.Shutdown()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Dispatch(func() { got = append(got, i) })
	}

	var res []int
	if !l.Do(func() { res = append(res, got...) }) {
		t.Fatalf("Do should run on a live loop")
	}

	if len(res) != 100 {
		t.Fatalf("expected 100 calls, got %d", len(res))
	}
	for i, v := range res {
		if v != i {
			t.Fatalf("call %d ran at position %d", v, i)
		}
	}
}

func TestLoopBackgroundDispatchesBack(t *testing.T) {
	l := NewLoop()
	go l.Run(context.Background())
	defer l.Shutdown()

	done := make(chan string, 1)
	l.Background(func() {
		l.Dispatch(func() { done <- "loop" })
	})

	select {
	case v := <-done:
		if v != "loop" {
			t.Fatalf("unexpected %s", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("background result never reached the loop")
	}

	l.Wait()
}

func TestLoopStopsOnContext(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
	}
}

func TestLoopDoAfterShutdown(t *testing.T) {
	l := NewLoop()
	go l.Run(context.Background())
	l.Shutdown()

	if l.Do(func() {}) {
		t.Fatalf("Do should fail after Shutdown")
	}
}
