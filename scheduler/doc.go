// Package scheduler paces calls to a single rate-limited API.
//
// A Scheduler runs submitted work in submission order. A task is dispatched only when
// fewer than the configured number of tasks are running and the minimum spacing (plus a
// small random jitter) has elapsed since the previous dispatch. When the spacing has not
// elapsed yet, a single timer is armed for the remaining delay.
//
// Callers report throttled responses with ReportThrottled, which waits the delay suggested
// by the API or an exponential backoff, and successful responses with RecordSuccess.
// Once the configured number of consecutive throttle signals is reached, the scheduler
// enters the cooldown state: nothing is dispatched until the cooldown period elapses,
// after which the counter is reset and dispatch resumes.
//
//	s := scheduler.New(scheduler.WithLogPrefix("api"))
//	defer s.Close(ctx)
//
//	v, err := scheduler.Do(ctx, s, "personality:42", func(ctx context.Context, s *scheduler.Scheduler) (*Reply, error) {
//		for attempt := 0; ; {
//			reply, err := client.Call(ctx)
//			var throttled *ThrottledError
//			if !errors.As(err, &throttled) {
//				s.RecordSuccess()
//				return reply, err
//			}
//			if attempt, err = s.ReportThrottled(ctx, "call", throttled.RetryAfter, attempt); err != nil {
//				return nil, err
//			}
//		}
//	})
//
// Time is read through a clockwork.Clock, so tests can drive the scheduler with a fake clock.
package scheduler
