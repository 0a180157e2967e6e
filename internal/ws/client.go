package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"namegofer/internal/apiclient"
	"namegofer/internal/callgroup"
	"namegofer/internal/jsonrpc"
	"namegofer/internal/proxy"
	"namegofer/internal/recordnames"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
)

// MethodRecordNames is the only method served: params are
// [dataSourceId, [recordId, ...]], the result is the id to name map
const MethodRecordNames = "recordNames"

// Enqueuer joins lookups to the coalescer without waiting for them
type Enqueuer interface {
	Enqueue(ctx context.Context, source recordnames.SourceID, records []recordnames.RecordID) <-chan callgroup.Result[recordnames.Names]
}

// Client is one WebSocket connection
type Client struct {
	conn     *websocket.Conn
	lookups  Enqueuer
	session  string
	logger   zerolog.Logger
	inflight sync.WaitGroup

	sendChan  chan []byte
	closeChan chan struct{}
	closeOnce sync.Once
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, lookups Enqueuer, session string, logger zerolog.Logger) *Client {
	return &Client{
		conn:      conn,
		lookups:   lookups,
		session:   session,
		logger:    logger.With().Str("session", session).Logger(),
		sendChan:  make(chan []byte, 256),
		closeChan: make(chan struct{}),
	}
}

// Run starts the write loop and reads until the connection closes
func (c *Client) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.writePump(ctx)
	c.readPump(ctx)

	cancel()
	c.inflight.Wait()
}

// readPump reads messages until an error. Each message is handled in its
// own goroutine so that pipelined requests share a grace window.
func (c *Client) readPump(ctx context.Context) {
	defer c.Close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("read error")
			}
			return
		}

		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			c.handleMessage(ctx, data)
		}()
	}
}

// writePump writes queued messages and keeps the connection alive
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeChan:
			return
		case data := <-c.sendChan:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug().Err(err).Msg("write error")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage answers a single request or a batch. All lookups of a
// batch are enqueued before any is awaited.
func (c *Client) handleMessage(ctx context.Context, data []byte) {
	requests, isBatch, err := jsonrpc.ParseBatchRequest(data)
	if err != nil {
		c.sendResponse(jsonrpc.NewErrorResponse(jsonrpc.NewIDNull(), jsonrpc.ErrParse))
		return
	}

	pending := make([]func() *jsonrpc.Response, len(requests))
	for i, req := range requests {
		pending[i] = c.start(ctx, req)
	}

	responses := make([]*jsonrpc.Response, 0, len(requests))
	for i, req := range requests {
		resp := pending[i]()
		if resp == nil || req.IsNotification() {
			continue
		}
		responses = append(responses, resp)
	}

	switch {
	case len(responses) == 0:
	case isBatch:
		c.sendBatchResponse(responses)
	default:
		c.sendResponse(responses[0])
	}
}

// start validates req and enqueues its lookup. The returned func waits
// for the answer.
func (c *Client) start(ctx context.Context, req *jsonrpc.Request) func() *jsonrpc.Response {
	fail := func(rpcErr *jsonrpc.Error) func() *jsonrpc.Response {
		return func() *jsonrpc.Response {
			return jsonrpc.NewErrorResponse(req.ID, rpcErr)
		}
	}

	if err := req.Validate(); err != nil {
		return fail(jsonrpc.NewError(jsonrpc.CodeInvalidRequest, err.Error()))
	}
	if req.Method != MethodRecordNames {
		return fail(jsonrpc.ErrMethodNotFound)
	}

	var source recordnames.SourceID
	var records []recordnames.RecordID
	if err := req.UnmarshalParams(&source, &records); err != nil {
		return fail(jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error()))
	}

	resultChan := c.lookups.Enqueue(ctx, source, records)

	return func() *jsonrpc.Response {
		select {
		case <-ctx.Done():
			return nil
		case res := <-resultChan:
			if res.Err != nil {
				c.logger.Debug().Err(res.Err).Int64("source", int64(source)).Msg("lookup failed")
				return jsonrpc.NewErrorResponse(req.ID, rpcError(source, res.Err))
			}
			resp, err := jsonrpc.NewResponse(req.ID, res.Value.Strings())
			if err != nil {
				return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrInternal)
			}
			return resp
		}
	}
}

// rpcError converts a lookup error to a JSON-RPC error carrying the HTTP
// style status and code in its data
func rpcError(source recordnames.SourceID, err error) *jsonrpc.Error {
	status, code := proxy.ClassifyError(err)
	data := map[string]any{"dataSourceId": source, "status": status, "error": code}

	var apiErr *apiclient.APIError
	switch {
	case status == http.StatusBadRequest && code == proxy.CodeRequestValidation:
		if errors.Is(err, recordnames.ErrTooManyRecordIDs) {
			return jsonrpc.NewErrorWithData(jsonrpc.CodeTooManyRecordIDs, err.Error(), data)
		}
		return jsonrpc.NewErrorWithData(jsonrpc.CodeInvalidParams, err.Error(), data)
	case apiclient.IsNotFound(err):
		return jsonrpc.NewErrorWithData(jsonrpc.CodeDataSourceNotFound, err.Error(), data)
	case apiclient.IsImproperlyConfigured(err):
		return jsonrpc.NewErrorWithData(jsonrpc.CodeImproperlyConfigured, err.Error(), data)
	case apiclient.IsPermissionDenied(err):
		return jsonrpc.NewErrorWithData(jsonrpc.CodePermissionDenied, err.Error(), data)
	case status == http.StatusServiceUnavailable && !errors.As(err, &apiErr):
		return jsonrpc.NewErrorWithData(jsonrpc.CodeServiceUnavailable, err.Error(), data)
	default:
		return jsonrpc.NewErrorWithData(jsonrpc.CodeLookupFailed, err.Error(), data)
	}
}

// sendResponse sends a JSON-RPC response
func (c *Client) sendResponse(resp *jsonrpc.Response) {
	data, err := resp.Bytes()
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshal response")
		return
	}
	c.send(data)
}

// sendBatchResponse sends a batch of JSON-RPC responses
func (c *Client) sendBatchResponse(responses []*jsonrpc.Response) {
	data, err := jsonrpc.MarshalBatchResponse(responses)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshal batch response")
		return
	}
	c.send(data)
}

// send queues data for the write loop
func (c *Client) send(data []byte) {
	select {
	case c.sendChan <- data:
	case <-c.closeChan:
	default:
		c.logger.Warn().Msg("send channel full, dropping message")
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		c.conn.Close()
		c.logger.Debug().Msg("client closed")
	})
}
