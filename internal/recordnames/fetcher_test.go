package recordnames

import (
	"context"
	"sync"
	"time"
)

type fetchCall struct {
	Source  SourceID
	Records []RecordID
}

// fakeFetcher serves names from memory and records every fetch
type fakeFetcher struct {
	mu     sync.Mutex
	names  map[SourceID]Names
	errs   map[SourceID]error
	delay  time.Duration
	calls  []fetchCall
	active int
	peak   int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		names: map[SourceID]Names{
			1: {1: "BMW", 2: "Audi", 3: "2Cv", 4: "Tesla"},
			2: {10: "Paris", 11: "Lyon"},
		},
		errs: map[SourceID]error{},
	}
}

func (f *fakeFetcher) FetchRecordNames(ctx context.Context, source SourceID, records []RecordID) (Names, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{Source: source, Records: append([]RecordID(nil), records...)})
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	delay := f.delay
	err := f.errs[source]
	all := f.names[source]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}

	out := make(Names)
	for _, id := range records {
		if name, ok := all[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func (f *fakeFetcher) fetches() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

func (f *fakeFetcher) fetchesFor(source SourceID) []fetchCall {
	var out []fetchCall
	for _, c := range f.fetches() {
		if c.Source == source {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeFetcher) peakConcurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}
