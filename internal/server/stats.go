package server

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"namegofer/internal/apiclient"
	"namegofer/internal/recordnames"
)

// statsLogger periodically logs lookup counters since the previous line
type statsLogger struct {
	service *recordnames.Service
	client  *apiclient.Client
	logger  zerolog.Logger

	mu       sync.Mutex
	interval time.Duration
	last     recordnames.Stats
	resetCh  chan time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  bool
}

func newStatsLogger(service *recordnames.Service, client *apiclient.Client, logger zerolog.Logger) *statsLogger {
	return &statsLogger{
		service: service,
		client:  client,
		logger:  logger.With().Str("component", "stats").Logger(),
		resetCh: make(chan time.Duration, 1),
		stopCh:  make(chan struct{}),
	}
}

// Start begins logging every interval. A zero interval keeps the loop
// idle until SetInterval enables it.
func (sl *statsLogger) Start(interval time.Duration) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.running {
		return
	}
	sl.running = true
	sl.interval = interval

	sl.wg.Add(1)
	go sl.run(interval)
}

// SetInterval changes the interval of a running loop
func (sl *statsLogger) SetInterval(interval time.Duration) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if !sl.running || interval == sl.interval {
		return
	}
	sl.interval = interval

	// keep only the newest value
	select {
	case <-sl.resetCh:
	default:
	}
	sl.resetCh <- interval
}

// Stop ends the loop
func (sl *statsLogger) Stop() {
	sl.mu.Lock()
	if !sl.running {
		sl.mu.Unlock()
		return
	}
	sl.running = false
	sl.mu.Unlock()

	close(sl.stopCh)
	sl.wg.Wait()
}

func (sl *statsLogger) run(interval time.Duration) {
	defer sl.wg.Done()

	var ticker *time.Ticker
	var tick <-chan time.Time
	reset := func(d time.Duration) {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
		if d > 0 {
			ticker = time.NewTicker(d)
			tick = ticker.C
		}
	}
	reset(interval)
	defer func() { reset(0) }()

	for {
		select {
		case <-sl.stopCh:
			return
		case d := <-sl.resetCh:
			interval = d
			reset(d)
			sl.logger.Debug().Dur("interval", d).Msg("statistics interval changed")
		case <-tick:
			sl.logCurrent(interval)
		}
	}
}

// logCurrent logs the counters accumulated since the previous call
func (sl *statsLogger) logCurrent(interval time.Duration) {
	now := sl.service.Stats()

	sl.mu.Lock()
	prev := sl.last
	sl.last = now
	sl.mu.Unlock()

	sl.logger.Info().
		Dur("interval", interval).
		Uint64("calls", now.Calls-prev.Calls).
		Uint64("batches", now.Batches-prev.Batches).
		Uint64("fetches", now.Fetches-prev.Fetches).
		Uint64("failedFetches", now.FailedFetches-prev.FailedFetches).
		Uint64("httpRequests", sl.client.SwapRequestCount()).
		Msg("lookup statistics")
}
