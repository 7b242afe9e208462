// Package scheduler runs the unattended renewal loop: on a fixed interval
// it lists persisted orders whose certificates expire within the notice
// window and renews the auto-renew ones, one at a time.
//
// A check never fails the scheduler. Individual renewal errors are logged
// and counted, and the order is picked up again on the next tick.
//
// Usage:
//
//	sched, err := scheduler.New(store, renewalService,
//		scheduler.WithLogger(log),
//	)
//	if err != nil {
//		return err
//	}
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(sched.Run(ctx))
package scheduler
