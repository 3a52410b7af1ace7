package node

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/matchmaker/src/common"
)

// chanExecutor hands dispatched functions to the test.
type chanExecutor chan func()

func (c chanExecutor) Dispatch(f func())   { c <- f }
func (c chanExecutor) Background(f func()) { go f() }

type fakeTimer struct {
	fire    chan time.Time
	timeout chan time.Duration
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{
		fire:    make(chan time.Time, 1),
		timeout: make(chan time.Duration, 4),
	}
}

func (f *fakeTimer) factory(d time.Duration) <-chan time.Time {
	f.timeout <- d
	return f.fire
}

func newTestSupervisor(t *testing.T) (*Supervisor, chanExecutor, *fakeTimer, *[]error) {
	exec := make(chanExecutor, 4)
	timer := newFakeTimer()
	var errs []error

	s := NewSupervisor(timer.factory,
		exec,
		func(err error) { errs = append(errs, err) },
		nil,
		common.NewTestEntry(t, "supervisor"))

	go s.Run()

	return s, exec, timer, &errs
}

func nextDispatch(t *testing.T, exec chanExecutor) func() {
	select {
	case f := <-exec:
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("nothing dispatched")
	}
	return nil
}

func expectNoDispatch(t *testing.T, exec chanExecutor) {
	select {
	case <-exec:
		t.Fatalf("unexpected dispatch")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSupervisorExpires(t *testing.T) {
	s, exec, timer, errs := newTestSupervisor(t)
	defer s.Shutdown()

	s.Arm(30 * time.Second)
	if d := <-timer.timeout; d != 30*time.Second {
		t.Fatalf("timer should be set to 30s, got %s", d)
	}

	timer.fire <- time.Now()
	nextDispatch(t, exec)()

	if len(*errs) != 1 || !common.Is((*errs)[0], common.Timeout) {
		t.Fatalf("expected one Timeout error, got %v", *errs)
	}
	if s.Armed() {
		t.Fatalf("supervisor should not be armed after expiry")
	}
}

func TestSupervisorDisarm(t *testing.T) {
	s, exec, timer, errs := newTestSupervisor(t)
	defer s.Shutdown()

	s.Arm(time.Second)
	<-timer.timeout
	s.Disarm()

	timer.fire <- time.Now()
	expectNoDispatch(t, exec)

	if len(*errs) != 0 {
		t.Fatalf("disarmed supervisor should not time out")
	}
}

func TestSupervisorIgnoresStaleExpiry(t *testing.T) {
	s, exec, timer, errs := newTestSupervisor(t)
	defer s.Shutdown()

	s.Arm(time.Second)
	<-timer.timeout

	timer.fire <- time.Now()
	expiry := nextDispatch(t, exec)

	// disarmed on the loop before the expiry got its turn
	s.Disarm()
	expiry()

	if len(*errs) != 0 {
		t.Fatalf("stale expiry should be ignored, got %v", *errs)
	}
}
