package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"namegofer/internal/callgroup"
	"namegofer/internal/config"
	"namegofer/internal/jsonrpc"
	"namegofer/internal/recordnames"
)

func startServer(t *testing.T) (*Server, *atomic.Int32) {
	t.Helper()

	var apiCalls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"1":"BMW","2":"Audi"}`))
	}))
	t.Cleanup(api.Close)

	interval := 0
	cfg := &config.Config{
		Host:             "127.0.0.1",
		Port:             0,
		LogLevel:         "info",
		APIURL:           api.URL,
		GraceDelay:       40,
		RequestTimeout:   2000,
		MaxRecordIDs:     100,
		StatsLogInterval: &interval,
	}

	srv, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Stop(ctx)
	})
	return srv, &apiCalls
}

func TestServer_HTTPAndWebSocketShareBatches(t *testing.T) {
	srv, apiCalls := startServer(t)
	base := "http://" + srv.Addr()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		resp, err := http.Get(base + "/data-source/3/record-names/?record_ids=1")
		if !assert.NoError(t, err) {
			return
		}
		defer resp.Body.Close()
		var names map[string]string
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(&names))
		assert.Equal(t, map[string]string{"1": "BMW"}, names)
	}()

	go func() {
		defer wg.Done()
		conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws", nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))

		assert.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"jsonrpc":"2.0","id":1,"method":"recordNames","params":[3,[2]]}`)))
		var resp jsonrpc.Response
		if !assert.NoError(t, conn.ReadJSON(&resp)) {
			return
		}
		var names map[string]string
		assert.NoError(t, resp.GetResultAs(&names))
		assert.Equal(t, map[string]string{"2": "Audi"}, names)
	}()

	wg.Wait()

	// both callers usually land in one batch; never more than one fetch each
	assert.LessOrEqual(t, apiCalls.Load(), int32(2))
	assert.Equal(t, uint64(2), srv.Service().Stats().Calls)
}

func TestServer_Health(t *testing.T) {
	srv, _ := startServer(t)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_ApplyConfig(t *testing.T) {
	srv, _ := startServer(t)

	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prevLevel) })

	interval := 1000
	next := *srv.cfg
	next.GraceDelay = 120
	next.LogLevel = "warn"
	next.StatsLogInterval = &interval

	srv.ApplyConfig(&next)

	assert.Equal(t, 120*time.Millisecond, srv.Service().GraceDelay())
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	srv.stats.mu.Lock()
	assert.Equal(t, time.Second, srv.stats.interval)
	srv.stats.mu.Unlock()
}

func TestServer_StopRejectsNewLookups(t *testing.T) {
	srv, _ := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	_, err := srv.Service().RequestNames(context.Background(), 1, []recordnames.RecordID{1})
	assert.ErrorIs(t, err, callgroup.ErrClosed)

	_, err = http.Get("http://" + srv.Addr() + "/healthz")
	assert.Error(t, err)
}
