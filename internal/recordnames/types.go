package recordnames

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SourceID identifies a data source the names are looked up in
type SourceID int64

// RecordID identifies a record within a data source
type RecordID int64

// Names maps record ids to their display names
type Names map[RecordID]string

// Lookup is one caller's request: the records it wants named in one source
type Lookup struct {
	Source  SourceID
	Records []RecordID
}

// Fetcher performs the actual lookup of one data source
type Fetcher interface {
	FetchRecordNames(ctx context.Context, source SourceID, records []RecordID) (Names, error)
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context, source SourceID, records []RecordID) (Names, error)

// FetchRecordNames calls f
func (f FetcherFunc) FetchRecordNames(ctx context.Context, source SourceID, records []RecordID) (Names, error) {
	return f(ctx, source, records)
}

var (
	// ErrNoRecordIDs is returned for a lookup without record ids
	ErrNoRecordIDs = errors.New("at least one record id is required")
	// ErrInvalidSource is returned for a non-positive data source id
	ErrInvalidSource = errors.New("data source id must be positive")
	// ErrTooManyRecordIDs is returned when a lookup exceeds the configured limit
	ErrTooManyRecordIDs = errors.New("too many record ids")
)

// JoinRecordIDs serializes ids as the comma separated list the API expects
func JoinRecordIDs(ids []RecordID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join(parts, ",")
}

// ParseRecordIDs parses a comma separated list of record ids.
// Empty elements are skipped; an empty string yields no ids.
func ParseRecordIDs(s string) ([]RecordID, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	ids := make([]RecordID, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid record id '%s'", p)
		}
		ids = append(ids, RecordID(n))
	}
	return ids, nil
}

// ParseNames converts an API answer keyed by stringified record id.
// The second return value lists keys that are not record ids.
func ParseNames(raw map[string]string) (Names, []string) {
	names := make(Names, len(raw))
	var skipped []string
	for k, v := range raw {
		n, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			skipped = append(skipped, k)
			continue
		}
		names[RecordID(n)] = v
	}
	return names, skipped
}

// Strings converts names to the wire form keyed by stringified record id.
// It never returns nil, so an empty lookup encodes as {}.
func (n Names) Strings() map[string]string {
	out := make(map[string]string, len(n))
	for id, name := range n {
		out[strconv.FormatInt(int64(id), 10)] = name
	}
	return out
}
