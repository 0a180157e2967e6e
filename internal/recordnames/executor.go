package recordnames

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "namegofer/recordnames"

// SourceResult is the outcome of fetching one source: names or a failure
type SourceResult struct {
	Names Names
	Err   error
}

// Failed returns true if the fetch failed
func (r SourceResult) Failed() bool {
	return r.Err != nil
}

// Executor fetches every source of an aggregated request concurrently
type Executor struct {
	fetcher       Fetcher
	maxConcurrent int
	tracer        trace.Tracer
	logger        zerolog.Logger

	fetches  atomic.Uint64
	failures atomic.Uint64
}

// NewExecutor creates an Executor. maxConcurrent <= 0 means no limit.
func NewExecutor(fetcher Fetcher, maxConcurrent int, logger zerolog.Logger) *Executor {
	return &Executor{
		fetcher:       fetcher,
		maxConcurrent: maxConcurrent,
		tracer:        otel.Tracer(tracerName),
		logger:        logger.With().Str("component", "executor").Logger(),
	}
}

// Execute issues one fetch per source and waits for all of them to settle.
// A failing source never stops its siblings; the failure is captured in its
// SourceResult. The result covers every source of req exactly once.
func (e *Executor) Execute(ctx context.Context, req *AggregatedRequest) map[SourceID]SourceResult {
	results := make(map[SourceID]SourceResult, req.Len())
	var mu sync.Mutex

	// Plain Group, not WithContext: a failure must not cancel the others
	var eg errgroup.Group
	if e.maxConcurrent > 0 {
		eg.SetLimit(e.maxConcurrent)
	}

	for _, source := range req.Sources() {
		records := req.Records(source)
		eg.Go(func() error {
			res := e.fetch(ctx, source, records)
			mu.Lock()
			results[source] = res
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	return results
}

// fetch runs a single source fetch inside its own span
func (e *Executor) fetch(ctx context.Context, source SourceID, records []RecordID) (res SourceResult) {
	ctx, span := e.tracer.Start(ctx, "recordnames.fetch", trace.WithAttributes(
		attribute.Int64("source.id", int64(source)),
		attribute.Int("records.count", len(records)),
	))
	defer span.End()

	e.fetches.Add(1)

	defer func() {
		if r := recover(); r != nil {
			res = SourceResult{Err: fmt.Errorf("fetch of data source %d panicked: %v", source, r)}
		}
		if res.Err != nil {
			e.failures.Add(1)
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			e.logger.Warn().
				Err(res.Err).
				Int64("source", int64(source)).
				Int("records", len(records)).
				Msg("record names fetch failed")
			return
		}
		span.SetAttributes(attribute.Int("names.count", len(res.Names)))
	}()

	names, err := e.fetcher.FetchRecordNames(ctx, source, records)
	if err != nil {
		return SourceResult{Err: err}
	}
	return SourceResult{Names: names}
}

// Fetches returns the number of fetches issued
func (e *Executor) Fetches() uint64 {
	return e.fetches.Load()
}

// Failures returns the number of failed fetches
func (e *Executor) Failures() uint64 {
	return e.failures.Load()
}
