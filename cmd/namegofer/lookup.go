package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"namegofer/internal/apiclient"
	"namegofer/internal/recordnames"
)

var lookupOpts struct {
	apiURL     string
	authToken  string
	published  bool
	source     int64
	ids        string
	graceDelay time.Duration
	timeout    time.Duration
	verbose    bool
}

var lookupCmd = &cobra.Command{
	Use:   "lookup [source:id,id...]...",
	Short: "Look up record names once and print them as JSON",
	Long: `Runs the given lookups concurrently through the coalescer, so lookups of
the same data source are answered by a single API request.

  namegofer lookup --api-url http://localhost:8000/api --data-source 3 --ids 1,2
  namegofer lookup --api-url http://localhost:8000/api 3:1,2 3:4 7:10`,
	RunE: runLookup,
}

func init() {
	f := lookupCmd.Flags()
	f.StringVar(&lookupOpts.apiURL, "api-url", "", "base URL of the builder API")
	f.StringVar(&lookupOpts.authToken, "token", "", "JWT sent to the builder API")
	f.BoolVar(&lookupOpts.published, "published", false, "use the published data source endpoint")
	f.Int64Var(&lookupOpts.source, "data-source", 0, "data source id")
	f.StringVar(&lookupOpts.ids, "ids", "", "comma separated record ids")
	f.DurationVar(&lookupOpts.graceDelay, "grace-delay", 50*time.Millisecond, "grace window")
	f.DurationVar(&lookupOpts.timeout, "timeout", 5*time.Second, "request timeout")
	f.BoolVarP(&lookupOpts.verbose, "verbose", "v", false, "log batches to stderr")
	lookupCmd.MarkFlagRequired("api-url")
}

// lookupResult is one line of output
type lookupResult struct {
	Source  recordnames.SourceID   `json:"dataSourceId"`
	Records []recordnames.RecordID `json:"recordIds"`
	Names   recordnames.Names      `json:"names,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

func runLookup(cmd *cobra.Command, args []string) error {
	lookups, err := parseLookups(lookupOpts.source, lookupOpts.ids, args)
	if err != nil {
		return err
	}

	level := "warn"
	if lookupOpts.verbose {
		level = "debug"
	}
	logger := setupLogger(level)

	client, err := apiclient.New(apiclient.Config{
		BaseURL:        lookupOpts.apiURL,
		AuthToken:      lookupOpts.authToken,
		Published:      lookupOpts.published,
		RequestTimeout: lookupOpts.timeout,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	service := recordnames.NewService(client, recordnames.Options{GraceDelay: lookupOpts.graceDelay}, logger)
	defer service.Close()

	results := make([]lookupResult, len(lookups))
	var wg sync.WaitGroup
	for i, l := range lookups {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := lookupResult{Source: l.Source, Records: l.Records}
			names, err := service.RequestNames(cmd.Context(), l.Source, l.Records)
			if err != nil {
				res.Error = err.Error()
			} else {
				res.Names = names
			}
			results[i] = res
		}()
	}
	wg.Wait()

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	stats := service.Stats()
	logger.Debug().
		Uint64("calls", stats.Calls).
		Uint64("batches", stats.Batches).
		Uint64("fetches", stats.Fetches).
		Msg("lookup finished")
	return nil
}

// parseLookups builds the lookups from the flags and "source:id,id" args
func parseLookups(source int64, ids string, args []string) ([]recordnames.Lookup, error) {
	var lookups []recordnames.Lookup

	if source != 0 || ids != "" {
		records, err := recordnames.ParseRecordIDs(ids)
		if err != nil {
			return nil, err
		}
		lookups = append(lookups, recordnames.Lookup{Source: recordnames.SourceID(source), Records: records})
	}

	for _, arg := range args {
		src, list, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("invalid lookup '%s', expected source:id,id", arg)
		}
		n, err := strconv.ParseInt(src, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid data source '%s'", src)
		}
		records, err := recordnames.ParseRecordIDs(list)
		if err != nil {
			return nil, err
		}
		lookups = append(lookups, recordnames.Lookup{Source: recordnames.SourceID(n), Records: records})
	}

	if len(lookups) == 0 {
		return nil, fmt.Errorf("nothing to look up: pass --data-source and --ids or source:id,id arguments")
	}
	return lookups, nil
}
