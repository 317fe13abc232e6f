package chrono

import (
	"context"
	"fmt"
	"sync"
	"time"

	"apti-backend/internal/components/telemetry"
	"apti-backend/lib/timezone"

	"github.com/robfig/cron/v3"
)

// SchedulerAPI is the interface that anything depending on things happening on a fixed interval should use.
type SchedulerAPI interface {
	// Every runs callback each time interval elapses. A run that is still going
	// when the next one is due causes that next run to be skipped.
	Every(interval time.Duration, callback func()) error
	// Stop cancels every scheduled callback and waits for running ones to
	// finish or for ctx to be done.
	Stop(ctx context.Context) error
}

// StandardScheduler is the standard implementation of SchedulerAPI using `github.com/robfig/cron/v3`
type StandardScheduler struct {
	cron *cron.Cron
}

// NewStandardScheduler is the constructor of StandardScheduler, it starts immediately.
func NewStandardScheduler(tel telemetry.API) StandardScheduler {
	logger := cronLogger{tel: tel}
	cronner := cron.New(
		cron.WithLogger(logger),
		cron.WithLocation(timezone.Location),
		cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		),
	)
	cronner.Start()

	return StandardScheduler{cron: cronner}
}

func (s StandardScheduler) Every(interval time.Duration, callback func()) error {
	if interval < time.Second {
		return fmt.Errorf("interval must be at least a second, got %s", interval)
	}
	s.cron.Schedule(cron.Every(interval), cron.FuncJob(callback))
	return nil
}

func (s StandardScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct {
	tel telemetry.API
}

func (l cronLogger) formatParams(keysAndValues []any) []any {
	params := []any{}
	for i := 0; i < len(keysAndValues)/2; i++ {
		idx := i * 2
		key := keysAndValues[idx]
		value := keysAndValues[idx+1]
		params = append(params, fmt.Sprintf("%v: %v", key, value))
	}
	return params
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug(
		fmt.Sprintf("cron: %s", msg),
		l.formatParams(keysAndValues)...,
	)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.tel.ReportBroken(
		"cron",
		append([]any{fmt.Errorf("%s: %w", msg, err)}, l.formatParams(keysAndValues)...)...,
	)
}

// ManualScheduler is a SchedulerAPI whose callbacks only run when Fire is called.
type ManualScheduler struct {
	mutex     sync.Mutex
	intervals []time.Duration
	callbacks []func()
	stopped   bool
}

func (m *ManualScheduler) Every(interval time.Duration, callback func()) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.intervals = append(m.intervals, interval)
	m.callbacks = append(m.callbacks, callback)
	return nil
}

func (m *ManualScheduler) Stop(context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.stopped = true
	return nil
}

// Intervals returns the intervals of every scheduled callback in registration order.
func (m *ManualScheduler) Intervals() []time.Duration {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]time.Duration(nil), m.intervals...)
}

// Stopped reports whether Stop was called.
func (m *ManualScheduler) Stopped() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.stopped
}

// Fire synchronously runs the callback registered at index i, it is a no-op once stopped.
func (m *ManualScheduler) Fire(i int) {
	m.mutex.Lock()
	if m.stopped || i >= len(m.callbacks) {
		m.mutex.Unlock()
		return
	}
	callback := m.callbacks[i]
	m.mutex.Unlock()
	callback()
}
