package logging

import (
	"context"
	"io"
	"log/slog"
)

// ContextExtractor extracts a slog attribute from context.
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

// Handler wraps a slog.Handler and adds the attributes found by its extractors
// to every record. Extraction happens per call so request-scoped values stay fresh.
type Handler struct {
	next       slog.Handler
	extractors []ContextExtractor
}

var _ slog.Handler = (*Handler)(nil)

// NewHandler creates a new decorated handler. Nil extractors are dropped.
func NewHandler(next slog.Handler, extractors ...ContextExtractor) *Handler {
	clean := make([]ContextExtractor, 0, len(extractors))
	for _, ex := range extractors {
		if ex != nil {
			clean = append(clean, ex)
		}
	}
	return &Handler{next: next, extractors: clean}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle adds the extracted attributes and delegates to the wrapped handler.
func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	for _, ex := range h.extractors {
		if attr, ok := ex(ctx); ok {
			rec.AddAttrs(attr)
		}
	}
	return h.next.Handle(ctx, rec)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{next: h.next.WithAttrs(attrs), extractors: h.extractors}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name), extractors: h.extractors}
}

// New creates a JSON logger writing to w at the given level, decorated with the extractors.
func New(w io.Writer, level slog.Leveler, extractors ...ContextExtractor) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(NewHandler(h, extractors...))
}

// NewNope creates a logger that discards all output.
func NewNope() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Error returns an attribute holding err under the "error" key.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}
