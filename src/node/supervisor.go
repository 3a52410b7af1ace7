package node

import (
	"time"

	"github.com/mosaicnetworks/matchmaker/src/common"
	"github.com/mosaicnetworks/matchmaker/src/metrics"
	"github.com/sirupsen/logrus"
)

type timerFactory func(time.Duration) <-chan time.Time

type arming struct {
	gen     uint64
	timeout time.Duration
}

// Supervisor bounds the time between the roster and the transport becoming
// Connected. Arm and Disarm must be called on the control loop; expiry is
// dispatched back onto it.
type Supervisor struct {
	timerFactory timerFactory
	exec         common.Executor
	onTimeout    func(error)
	metrics      metrics.Collector
	logger       *logrus.Entry

	armCh      chan arming   //receives instruction to start the timer
	disarmCh   chan struct{} //receives instruction to stop the timer
	shutdownCh chan struct{} //receives instruction to exit Run loop

	// owned by the control loop
	gen   uint64
	armed bool
}

// NewSupervisor ...
func NewSupervisor(timerFactory timerFactory,
	exec common.Executor,
	onTimeout func(error),
	collector metrics.Collector,
	logger *logrus.Entry) *Supervisor {

	return &Supervisor{
		timerFactory: timerFactory,
		exec:         exec,
		onTimeout:    onTimeout,
		metrics:      metrics.OrNop(collector),
		logger:       logger,
		armCh:        make(chan arming),
		disarmCh:     make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

// NewTimeoutSupervisor returns a Supervisor backed by time.After.
func NewTimeoutSupervisor(exec common.Executor,
	onTimeout func(error),
	collector metrics.Collector,
	logger *logrus.Entry) *Supervisor {

	return NewSupervisor(time.After, exec, onTimeout, collector, logger)
}

// Run owns the timer. It returns after Shutdown.
func (s *Supervisor) Run() {
	var (
		timer   <-chan time.Time
		current arming
	)

	for {
		select {
		case <-timer:
			timer = nil
			fired := current
			s.exec.Dispatch(func() {
				s.expire(fired)
			})
		case a := <-s.armCh:
			current = a
			timer = s.timerFactory(a.timeout)
		case <-s.disarmCh:
			timer = nil
		case <-s.shutdownCh:
			return
		}
	}
}

// Arm starts the timer, replacing any running one.
func (s *Supervisor) Arm(timeout time.Duration) {
	s.gen++
	s.armed = true

	s.logger.WithField("timeout", timeout).Debug("Supervisor armed")

	select {
	case s.armCh <- arming{gen: s.gen, timeout: timeout}:
	case <-s.shutdownCh:
	}
}

// Disarm stops the timer. An expiry already dispatched is ignored.
func (s *Supervisor) Disarm() {
	if !s.armed {
		return
	}
	s.armed = false

	s.logger.Debug("Supervisor disarmed")

	select {
	case s.disarmCh <- struct{}{}:
	case <-s.shutdownCh:
	}
}

// Armed ...
func (s *Supervisor) Armed() bool {
	return s.armed
}

func (s *Supervisor) expire(a arming) {
	if !s.armed || a.gen != s.gen {
		return
	}
	s.armed = false

	err := common.NewErr(common.Timeout, "session not connected after "+a.timeout.String())

	s.metrics.SessionTimeout()
	s.logger.WithError(err).Error("Session timeout")

	s.onTimeout(err)
}

// Shutdown stops the Run loop.
func (s *Supervisor) Shutdown() {
	close(s.shutdownCh)
}
