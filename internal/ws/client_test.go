package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"namegofer/internal/apiclient"
	"namegofer/internal/jsonrpc"
	"namegofer/internal/recordnames"
)

func dial(t *testing.T, fetch recordnames.FetcherFunc) (*websocket.Conn, *atomic.Int32) {
	t.Helper()

	var fetches atomic.Int32
	counted := recordnames.FetcherFunc(func(ctx context.Context, source recordnames.SourceID, records []recordnames.RecordID) (recordnames.Names, error) {
		fetches.Add(1)
		return fetch(ctx, source, records)
	})
	service := recordnames.NewService(counted, recordnames.Options{GraceDelay: 30 * time.Millisecond}, zerolog.Nop())
	t.Cleanup(service.Close)

	srv := httptest.NewServer(NewHandler(service, zerolog.Nop()))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn, &fetches
}

func cities(_ context.Context, source recordnames.SourceID, records []recordnames.RecordID) (recordnames.Names, error) {
	if source == 404 {
		return nil, &apiclient.APIError{StatusCode: 404, Code: apiclient.CodeDataSourceDoesNotExist}
	}
	if source == 403 {
		return nil, &apiclient.APIError{StatusCode: 403, Code: apiclient.CodePermissionDenied}
	}
	all := recordnames.Names{10: "Paris", 11: "Lyon", 12: "Nice"}
	out := recordnames.Names{}
	for _, id := range records {
		if name, ok := all[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func TestClient_RecordNames(t *testing.T) {
	conn, _ := dial(t, cities)

	req, err := jsonrpc.NewRequest(MethodRecordNames, []any{2, []int64{10, 99}}, jsonrpc.NewIDInt(1))
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var resp jsonrpc.Response
	require.NoError(t, conn.ReadJSON(&resp))
	require.False(t, resp.HasError())

	var names map[string]string
	require.NoError(t, resp.GetResultAs(&names))
	assert.Equal(t, map[string]string{"10": "Paris"}, names)
}

func TestClient_BatchSharesOneFetch(t *testing.T) {
	conn, fetches := dial(t, cities)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`[
		{"jsonrpc":"2.0","id":"a","method":"recordNames","params":[2,[10]]},
		{"jsonrpc":"2.0","id":"b","method":"recordNames","params":[2,[11,12]]},
		{"jsonrpc":"2.0","id":"c","method":"recordNames","params":[404,[1]]},
		{"jsonrpc":"2.0","id":"d","method":"nope","params":[]}
	]`)))

	var responses []jsonrpc.Response
	require.NoError(t, conn.ReadJSON(&responses))
	require.Len(t, responses, 4)

	var a, b map[string]string
	require.NoError(t, responses[0].GetResultAs(&a))
	require.NoError(t, responses[1].GetResultAs(&b))
	assert.Equal(t, map[string]string{"10": "Paris"}, a)
	assert.Equal(t, map[string]string{"11": "Lyon", "12": "Nice"}, b)

	require.True(t, responses[2].HasError())
	assert.Equal(t, jsonrpc.CodeDataSourceNotFound, responses[2].Error.Code)
	require.True(t, responses[3].HasError())
	assert.Equal(t, jsonrpc.CodeMethodNotFound, responses[3].Error.Code)

	// one fetch for source 2, one for source 404
	assert.Equal(t, int32(2), fetches.Load())
}

func TestClient_InvalidInput(t *testing.T) {
	conn, fetches := dial(t, cities)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":`)))
	var resp jsonrpc.Response
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, jsonrpc.CodeParseError, resp.Error.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","id":2,"method":"recordNames","params":["x"]}`)))
	resp = jsonrpc.Response{}
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, jsonrpc.CodeInvalidParams, resp.Error.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","id":3,"method":"recordNames","params":[2,[]]}`)))
	resp = jsonrpc.Response{}
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, jsonrpc.CodeInvalidParams, resp.Error.Code)

	assert.Zero(t, fetches.Load())
}

func TestClient_NotificationGetsNoAnswer(t *testing.T) {
	conn, _ := dial(t, cities)

	notification, err := jsonrpc.NewRequest(MethodRecordNames, []any{2, []int64{10}}, jsonrpc.NewIDNull())
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(notification))

	req, err := jsonrpc.NewRequest(MethodRecordNames, []any{2, []int64{11}}, jsonrpc.NewIDInt(9))
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var resp jsonrpc.Response
	require.NoError(t, conn.ReadJSON(&resp))
	out, err := resp.ID.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "9", string(out))
}

func TestClient_PermissionDenied(t *testing.T) {
	conn, _ := dial(t, cities)

	req, err := jsonrpc.NewRequest(MethodRecordNames, []any{403, []int64{1}}, jsonrpc.NewIDString("x"))
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var resp jsonrpc.Response
	require.NoError(t, conn.ReadJSON(&resp))
	require.True(t, resp.HasError())
	assert.Equal(t, jsonrpc.CodePermissionDenied, resp.Error.Code)
}
