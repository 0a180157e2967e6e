package recordnames

// AggregatedRequest is the per source union of the record ids of a batch.
// Sources and ids keep the order of their first occurrence.
type AggregatedRequest struct {
	sources []SourceID
	records map[SourceID][]RecordID
	seen    map[SourceID]map[RecordID]struct{}
}

// Aggregate merges the lookups of a batch
func Aggregate(calls []Lookup) *AggregatedRequest {
	req := &AggregatedRequest{
		records: make(map[SourceID][]RecordID),
		seen:    make(map[SourceID]map[RecordID]struct{}),
	}
	for _, call := range calls {
		req.Add(call)
	}
	return req
}

// Add unions one lookup into the request
func (r *AggregatedRequest) Add(call Lookup) {
	seen, ok := r.seen[call.Source]
	if !ok {
		seen = make(map[RecordID]struct{}, len(call.Records))
		r.seen[call.Source] = seen
		r.sources = append(r.sources, call.Source)
	}

	for _, id := range call.Records {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		r.records[call.Source] = append(r.records[call.Source], id)
	}
}

// Sources returns the sources in order of first occurrence
func (r *AggregatedRequest) Sources() []SourceID {
	return r.sources
}

// Records returns the deduplicated ids requested for a source
func (r *AggregatedRequest) Records(source SourceID) []RecordID {
	return r.records[source]
}

// Len returns the number of distinct sources
func (r *AggregatedRequest) Len() int {
	return len(r.sources)
}

// RecordCount returns the number of distinct (source, record) pairs
func (r *AggregatedRequest) RecordCount() int {
	total := 0
	for _, ids := range r.records {
		total += len(ids)
	}
	return total
}
