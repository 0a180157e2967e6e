package recordnames

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"namegofer/internal/callgroup"
)

func newTestService(f Fetcher) *Service {
	return NewService(f, Options{GraceDelay: 30 * time.Millisecond, MaxRecordIDs: 10}, zerolog.Nop())
}

func TestService_SameSourceInWindowIsFetchedOnce(t *testing.T) {
	f := newFakeFetcher()
	s := newTestService(f)
	defer s.Close()

	// Enqueue joins the batch before returning, so all ten calls land in one
	// window no matter how the scheduler runs them
	ctx := context.Background()
	pending := make([]<-chan callgroup.Result[Names], 10)
	for i := range pending {
		pending[i] = s.Enqueue(ctx, 1, []RecordID{1})
	}
	for _, ch := range pending {
		res := <-ch
		require.NoError(t, res.Err)
		assert.Equal(t, Names{1: "BMW"}, res.Value)
	}

	assert.Len(t, f.fetchesFor(1), 1)
	assert.Equal(t, uint64(1), s.Stats().Fetches)
	assert.Equal(t, uint64(10), s.Stats().Calls)
}

func TestService_CallsApartAreSeparateBatches(t *testing.T) {
	f := newFakeFetcher()
	s := NewService(f, Options{GraceDelay: 5 * time.Millisecond}, zerolog.Nop())
	defer s.Close()

	ctx := context.Background()
	_, err := s.RequestNames(ctx, 1, []RecordID{1, 2})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = s.RequestNames(ctx, 1, []RecordID{1, 2})
	require.NoError(t, err)

	// No caching across batches: the identical request is fetched again
	assert.Len(t, f.fetchesFor(1), 2)
	assert.Equal(t, uint64(2), s.Stats().Batches)
}

func TestService_PerCallerFiltering(t *testing.T) {
	f := newFakeFetcher()
	s := newTestService(f)
	defer s.Close()

	ctx := context.Background()
	a := s.Enqueue(ctx, 1, []RecordID{1, 2})
	b := s.Enqueue(ctx, 1, []RecordID{2, 3})

	resA := <-a
	resB := <-b
	require.NoError(t, resA.Err)
	require.NoError(t, resB.Err)
	assert.Equal(t, Names{1: "BMW", 2: "Audi"}, resA.Value)
	assert.Equal(t, Names{2: "Audi", 3: "2Cv"}, resB.Value)

	fetches := f.fetchesFor(1)
	require.Len(t, fetches, 1)
	assert.ElementsMatch(t, []RecordID{1, 2, 3}, fetches[0].Records)
}

func TestService_FailureIsolation(t *testing.T) {
	boom := errors.New("data source improperly configured")
	f := newFakeFetcher()
	f.errs[1] = boom
	s := newTestService(f)
	defer s.Close()

	ctx := context.Background()
	x1 := s.Enqueue(ctx, 1, []RecordID{1})
	x2 := s.Enqueue(ctx, 1, []RecordID{2})
	y := s.Enqueue(ctx, 2, []RecordID{10, 11})

	assert.Same(t, boom, (<-x1).Err)
	assert.Same(t, boom, (<-x2).Err)

	resY := <-y
	require.NoError(t, resY.Err)
	assert.Equal(t, Names{10: "Paris", 11: "Lyon"}, resY.Value)
	assert.Equal(t, uint64(1), s.Stats().FailedFetches)
}

func TestService_MissingIdentifierIsNotAnError(t *testing.T) {
	f := newFakeFetcher()
	s := newTestService(f)
	defer s.Close()

	names, err := s.RequestNames(context.Background(), 1, []RecordID{5})
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)
}

func TestService_DuplicateIDsInOneCall(t *testing.T) {
	f := newFakeFetcher()
	s := newTestService(f)
	defer s.Close()

	names, err := s.RequestNames(context.Background(), 1, []RecordID{4, 4, 4})
	require.NoError(t, err)
	assert.Equal(t, Names{4: "Tesla"}, names)
	assert.Equal(t, []RecordID{4}, f.fetchesFor(1)[0].Records)
}

func TestService_RejectsInvalidInputEagerly(t *testing.T) {
	f := newFakeFetcher()
	s := newTestService(f)
	defer s.Close()

	ctx := context.Background()
	_, err := s.RequestNames(ctx, 1, nil)
	assert.ErrorIs(t, err, ErrNoRecordIDs)

	_, err = s.RequestNames(ctx, 0, []RecordID{1})
	assert.ErrorIs(t, err, ErrInvalidSource)

	many := make([]RecordID, 11)
	for i := range many {
		many[i] = RecordID(i + 1)
	}
	res := <-s.Enqueue(ctx, 1, many)
	assert.ErrorIs(t, res.Err, ErrTooManyRecordIDs)

	assert.Empty(t, f.fetches())
}

func TestService_ClosedServiceRejects(t *testing.T) {
	s := newTestService(newFakeFetcher())
	s.Close()

	_, err := s.RequestNames(context.Background(), 1, []RecordID{1})
	assert.ErrorIs(t, err, callgroup.ErrClosed)
}

func TestService_SetGraceDelay(t *testing.T) {
	s := newTestService(newFakeFetcher())
	defer s.Close()

	s.SetGraceDelay(75 * time.Millisecond)
	assert.Equal(t, 75*time.Millisecond, s.GraceDelay())
}

func TestResolve(t *testing.T) {
	boom := errors.New("boom")
	resolve := Resolve(map[SourceID]SourceResult{
		1: {Names: Names{1: "a", 2: "b"}},
		2: {Err: boom},
	})

	names, err := resolve(Lookup{Source: 1, Records: []RecordID{2, 9}})
	require.NoError(t, err)
	assert.Equal(t, Names{2: "b"}, names)

	_, err = resolve(Lookup{Source: 2, Records: []RecordID{1}})
	assert.Same(t, boom, err)

	names, err = resolve(Lookup{Source: 3, Records: []RecordID{1}})
	assert.NoError(t, err)
	assert.Nil(t, names)
}
