// Package poll provides the concurrency primitives used by polling consumers.
//
// A Gate guarantees that at most one poll cycle is in flight per consumer.
// A Scheduler triggers poll cycles on a single background goroutine, either
// at a fixed interval or after a random delay, and skips a cycle when the
// gate is still held instead of queueing behind it.
//
// # Usage
//
//	gate := &poll.Gate{}
//	s := poll.NewScheduler(poll.SchedulerConfig{
//	    Name:     "orders",
//	    Interval: 5 * time.Second,
//	    Policy:   poll.PolicyRandom,
//	}, gate, pollOnce, onError, logger)
//
//	if err := s.Start(ctx); err != nil {
//	    return err
//	}
//	defer s.Stop()
//
// # Shutdown
//
// Stop cancels the next trigger and waits up to ShutdownTimeout for an
// in-flight poll. After that it returns ErrShutdownTimeout and leaves the
// poll running; the gate may stay held until that poll returns.
package poll
