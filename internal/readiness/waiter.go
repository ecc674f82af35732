// Package readiness implements the fixed-interval poll loop used to wait for
// remote resources (feature groups, queries, training jobs, endpoints) to
// reach a terminal state.
package readiness

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// State is the coarse provisioning state a probe reports.
type State int

const (
	StatePending State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Status is a single probe observation. Detail carries the service-reported
// status string or failure reason.
type Status struct {
	State  State
	Detail string
}

// Probe checks a remote resource once. A returned error is a transport or
// protocol failure and aborts the wait unmodified; terminal resource states
// are reported through Status instead.
type Probe func(ctx context.Context) (Status, error)

// Sleeper abstracts the delay between polls so waits are testable without
// real time passing.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a real timer, honoring context cancellation.
type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// ProvisioningError is returned when a resource reaches a failed terminal
// state. It names the resource so multi-resource workflows fail with a
// pinpointed message.
type ProvisioningError struct {
	Resource string
	Detail   string
}

func (e *ProvisioningError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s failed to provision", e.Resource)
	}
	return fmt.Sprintf("%s failed to provision: %s", e.Resource, e.Detail)
}

// WaitTimeoutError is returned when a resource is still pending after MaxWait.
type WaitTimeoutError struct {
	Resource   string
	Waited     time.Duration
	LastDetail string
}

func (e *WaitTimeoutError) Error() string {
	if e.LastDetail == "" {
		return fmt.Sprintf("timed out after %s waiting for %s", e.Waited, e.Resource)
	}
	return fmt.Sprintf("timed out after %s waiting for %s (last status: %s)", e.Waited, e.Resource, e.LastDetail)
}

// Waiter polls a Probe at a fixed interval until the resource is ready,
// failed, timed out, or the context is cancelled.
type Waiter struct {
	Interval time.Duration
	MaxWait  time.Duration // <= 0 disables the bound
	Sleeper  Sleeper       // nil means TimerSleeper
	Logger   *slog.Logger  // nil means slog.Default()
}

// New creates a Waiter with the given poll interval and total wait bound.
// A non-positive interval defaults to 5s.
func New(interval, maxWait time.Duration) Waiter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return Waiter{Interval: interval, MaxWait: maxWait}
}

// Wait probes immediately, then once per interval. It returns nil when the
// probe reports ready, *ProvisioningError when it reports failed,
// *WaitTimeoutError when MaxWait elapses while still pending, and the
// probe's own error unmodified when a check itself fails.
func (w Waiter) Wait(ctx context.Context, resource string, probe Probe) error {
	interval := w.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	sleeper := w.Sleeper
	if sleeper == nil {
		sleeper = TimerSleeper{}
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var waited time.Duration
	for {
		status, err := probe(ctx)
		if err != nil {
			return err
		}

		switch status.State {
		case StateReady:
			return nil
		case StateFailed:
			return &ProvisioningError{Resource: resource, Detail: status.Detail}
		}

		logger.Debug("resource pending", "resource", resource, "status", status.Detail, "waited", waited)

		if w.MaxWait > 0 && waited+interval > w.MaxWait {
			return &WaitTimeoutError{Resource: resource, Waited: waited, LastDetail: status.Detail}
		}
		if err := sleeper.Sleep(ctx, interval); err != nil {
			return err
		}
		waited += interval
	}
}
