// Package logging provides the log/slog plumbing shared by the pool and the scheduler.
//
// Components in this module accept a *slog.Logger and fall back to NewNope when none is
// configured. NewHandler decorates any slog.Handler with context extractors, so values
// carried by the context (for example the request context of the task the scheduler is
// currently running) are attached to every record logged with that context:
//
//	logger := slog.New(logging.NewHandler(
//		slog.NewJSONHandler(os.Stderr, nil),
//		scheduler.RequestContextExtractor,
//	))
//	s := scheduler.New(scheduler.WithLogger(logger))
package logging
