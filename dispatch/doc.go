// Package dispatch runs work on a host application's single designated thread.
//
// Hosts that require all state-touching calls to happen on one thread expose
// that thread through a Scheduler, typically their idle or deferred-callback
// hook. A Dispatcher queues work from any goroutine and asks the Scheduler to
// run Drain, which executes queued items one at a time in FIFO order:
//
//	loop := dispatch.NewLoop(nil)
//	go loop.Run(ctx)
//
//	d := dispatch.New(loop)
//	v, err := d.Submit(ctx, 30*time.Second, func(ctx context.Context) (any, error) {
//	    return host.Query(), nil
//	})
//
// Submit returns *TimeoutError when the budget elapses and *FaultError when
// the work panics.
package dispatch
