// Package coordinator schedules background index checks.
//
// A Coordinator wraps a sync.Manager and calls Sync once at start and then
// every configured interval. Each wait is moved by a random offset of up to
// 10% of the interval so that several instances sharing a cache directory do
// not contend for the build lock at the same moment.
//
//	coord, err := coordinator.New(manager, 10*time.Minute)
//	if err != nil {
//	    return err
//	}
//	go func() { _ = coord.Start(ctx) }()
//	defer coord.Stop()
//
// A failed check is logged and the loop keeps running. Stop cancels the
// context handed to the running check and waits for it to return.
package coordinator
