package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Machine is one VM as seen by the dispatcher.
type Machine interface {
	Name() string
	Up(ctx context.Context) error
	Down(ctx context.Context) error
}

// Observer is notified when a per-VM action finishes.
type Observer interface {
	ObserveVMAction(action string, d time.Duration, err error)
}

// Dispatcher fans a fleet action out to every machine and joins on all of
// them, regardless of individual failures.
type Dispatcher struct {
	// SettleDelay is waited after the last task has been started and before
	// the join.
	SettleDelay time.Duration
	// Concurrency bounds the number of actions in flight. Zero means
	// unbounded.
	Concurrency int
	Logger      zerolog.Logger
	Observer    Observer
}

// Run starts one task per machine in the given order and returns once every
// task has finished. Tasks are not cancelled when ctx is; only the settle
// wait is cut short.
func (d *Dispatcher) Run(ctx context.Context, action Action, machines []Machine) *Report {
	report := &Report{Action: action, Results: make([]Result, len(machines))}
	taskCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	if d.Concurrency > 0 {
		g.SetLimit(d.Concurrency)
	}

	for i, m := range machines {
		report.Results[i] = Result{VM: m.Name(), Action: action}
		g.Go(func() error {
			start := time.Now()
			err := d.invoke(taskCtx, action, m)
			elapsed := time.Since(start)

			report.Results[i].Err = err
			report.Results[i].Duration = elapsed

			log := d.Logger.With().Str("vm", m.Name()).Str("action", string(action)).Logger()
			if err != nil {
				log.Error().Err(err).Dur("duration", elapsed).Msg("VM action failed")
			} else {
				log.Info().Dur("duration", elapsed).Msg("VM action finished")
			}
			if d.Observer != nil {
				d.Observer.ObserveVMAction(string(action), elapsed, err)
			}
			return nil
		})
	}

	d.settle(ctx)
	_ = g.Wait()

	return report
}

func (d *Dispatcher) invoke(ctx context.Context, action Action, m Machine) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s: %v", action, r)
		}
	}()

	switch action {
	case ActionSpinup:
		return m.Up(ctx)
	case ActionTeardown:
		return m.Down(ctx)
	default:
		return fmt.Errorf("action %q cannot be dispatched per VM", action)
	}
}

func (d *Dispatcher) settle(ctx context.Context) {
	if d.SettleDelay <= 0 {
		return
	}
	timer := time.NewTimer(d.SettleDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
