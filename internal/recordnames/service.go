package recordnames

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"namegofer/internal/callgroup"
)

// Options configures a Service
type Options struct {
	GraceDelay           time.Duration // <= 0 means callgroup.DefaultDelay
	MaxConcurrentFetches int           // <= 0 means unbounded
	MaxRecordIDs         int           // per lookup, <= 0 means unbounded
}

// Stats are lookup counters since the Service was created
type Stats struct {
	Batches       uint64 `json:"batches"`
	Calls         uint64 `json:"calls"`
	Fetches       uint64 `json:"fetches"`
	FailedFetches uint64 `json:"failedFetches"`
}

// Service coalesces record name lookups into one fetch per data source per
// grace window
type Service struct {
	grouper  *callgroup.Grouper[Lookup, Names]
	executor *Executor
	opts     Options
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// NewService creates a Service on top of fetcher
func NewService(fetcher Fetcher, opts Options, logger zerolog.Logger) *Service {
	s := &Service{
		executor: NewExecutor(fetcher, opts.MaxConcurrentFetches, logger),
		opts:     opts,
		tracer:   otel.Tracer(tracerName),
		logger:   logger.With().Str("component", "recordnames").Logger(),
	}
	s.grouper = callgroup.New(opts.GraceDelay, s.runBatch, logger)
	return s
}

// RequestNames returns the names of records in source. Ids the source has
// no record for are absent from the result. If the fetch of source failed
// the fetch error is returned as is.
func (s *Service) RequestNames(ctx context.Context, source SourceID, records []RecordID) (Names, error) {
	if err := s.validate(source, records); err != nil {
		return nil, err
	}
	return s.grouper.Do(ctx, Lookup{Source: source, Records: records})
}

// Enqueue joins the open batch without waiting. The channel receives
// exactly one result. Callers issuing several lookups at once use it so
// that all of them land in the same batch.
func (s *Service) Enqueue(ctx context.Context, source SourceID, records []RecordID) <-chan callgroup.Result[Names] {
	if err := s.validate(source, records); err != nil {
		ch := make(chan callgroup.Result[Names], 1)
		ch <- callgroup.Result[Names]{Err: err}
		return ch
	}
	return s.grouper.Call(ctx, Lookup{Source: source, Records: records})
}

func (s *Service) validate(source SourceID, records []RecordID) error {
	if source <= 0 {
		return ErrInvalidSource
	}
	if len(records) == 0 {
		return ErrNoRecordIDs
	}
	if s.opts.MaxRecordIDs > 0 && len(records) > s.opts.MaxRecordIDs {
		return fmt.Errorf("%w: %d given, at most %d allowed", ErrTooManyRecordIDs, len(records), s.opts.MaxRecordIDs)
	}
	return nil
}

// runBatch is the group function: aggregate, fetch, resolve
func (s *Service) runBatch(ctx context.Context, calls []Lookup) (callgroup.Resolver[Lookup, Names], error) {
	req := Aggregate(calls)

	ctx, span := s.tracer.Start(ctx, "recordnames.batch", trace.WithAttributes(
		attribute.Int("calls.count", len(calls)),
		attribute.Int("sources.count", req.Len()),
		attribute.Int("records.count", req.RecordCount()),
	))
	defer span.End()

	s.logger.Debug().
		Int("calls", len(calls)).
		Int("sources", req.Len()).
		Int("records", req.RecordCount()).
		Msg("executing batch")

	results := s.executor.Execute(ctx, req)
	return Resolve(results), nil
}

// GraceDelay returns the current grace window
func (s *Service) GraceDelay() time.Duration {
	return s.grouper.Delay()
}

// SetGraceDelay changes the grace window of batches opened from now on
func (s *Service) SetGraceDelay(delay time.Duration) {
	s.grouper.SetDelay(delay)
}

// Flush dispatches the open batch now
func (s *Service) Flush() {
	s.grouper.Flush()
}

// Stats returns the counters
func (s *Service) Stats() Stats {
	gs := s.grouper.Stats()
	return Stats{
		Batches:       gs.Groups,
		Calls:         gs.Calls,
		Fetches:       s.executor.Fetches(),
		FailedFetches: s.executor.Failures(),
	}
}

// Close dispatches the open batch and rejects later lookups
func (s *Service) Close() {
	s.grouper.Close()
	s.logger.Info().Msg("record names service closed")
}
