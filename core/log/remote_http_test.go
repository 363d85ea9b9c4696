package log

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ebogdum/fsbridge/invocation"
)

type receivedBatch struct {
	header http.Header
	body   []byte
}

// batchCollector records every request and answers with the next status in
// statuses, repeating the last one.
type batchCollector struct {
	mu       sync.Mutex
	statuses []int
	batches  []receivedBatch
	requests atomic.Int32
}

func (c *batchCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := int(c.requests.Add(1)) - 1
	body, _ := io.ReadAll(r.Body)

	c.mu.Lock()
	c.batches = append(c.batches, receivedBatch{header: r.Header.Clone(), body: body})
	status := http.StatusAccepted
	if len(c.statuses) > 0 {
		status = c.statuses[len(c.statuses)-1]
		if n < len(c.statuses) {
			status = c.statuses[n]
		}
	}
	c.mu.Unlock()

	w.WriteHeader(status)
}

func (c *batchCollector) received() []receivedBatch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]receivedBatch(nil), c.batches...)
}

func newCollectorFactory(t *testing.T, collector *batchCollector, retryMax int) *HTTPClientFactory {
	t.Helper()
	server := httptest.NewServer(collector)
	t.Cleanup(server.Close)

	factory, err := NewHTTPClientFactory(HTTPClientConfig{
		Endpoint:     server.URL + "/v1/entries",
		AuthToken:    "token",
		Timeout:      5 * time.Second,
		Headers:      map[string]string{"X-Fsbridge-Node": "node-1"},
		RetryMax:     retryMax,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	return factory
}

func TestHTTPClientPostsBatch(t *testing.T) {
	collector := &batchCollector{}
	factory := newCollectorFactory(t, collector, -1)

	shipper := NewShipper(factory, DefaultShipperOptions(), zaptest.NewLogger(t))
	logger := New("adapter", zaptest.NewLogger(t), shipper)
	ctx := invocation.Begin(context.Background())

	logger.Finest(ctx, "not shipped")
	logger.Info(ctx, "hello %s", "world")
	require.NoError(t, shipper.Close(context.Background()))

	batches := collector.received()
	require.Len(t, batches, 1)
	assert.Equal(t, "Bearer token", batches[0].header.Get("Authorization"))
	assert.Equal(t, "application/json", batches[0].header.Get("Content-Type"))
	assert.Equal(t, "node-1", batches[0].header.Get("X-Fsbridge-Node"))

	var raw struct {
		LogName string `json:"logName"`
		Entries []struct {
			Severity     string `json:"severity"`
			Message      string `json:"message"`
			LogName      string `json:"logName"`
			Timestamp    string `json:"timestamp"`
			InvocationID string `json:"invocationId"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(batches[0].body, &raw))
	assert.Equal(t, "gcs-connector", raw.LogName)
	require.Len(t, raw.Entries, 1)
	assert.Equal(t, "INFO", raw.Entries[0].Severity)
	assert.Equal(t, "hello world", raw.Entries[0].Message)
	assert.Equal(t, "gcs-connector", raw.Entries[0].LogName)
	assert.Equal(t, invocation.Current(ctx), raw.Entries[0].InvocationID)
	_, err := time.Parse(time.RFC3339Nano, raw.Entries[0].Timestamp)
	assert.NoError(t, err)

	assert.Equal(t, ShipperStats{Shipped: 1}, shipper.Stats())
}

func TestHTTPClientFlush(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []int
		retryMax     int
		wantErr      bool
		wantRequests int32
	}{
		{"accepted", []int{http.StatusAccepted}, 2, false, 1},
		{"transient failure retried", []int{http.StatusServiceUnavailable, http.StatusOK}, 2, false, 2},
		{"retries exhausted", []int{http.StatusInternalServerError}, 2, true, 3},
		{"retries disabled", []int{http.StatusInternalServerError}, -1, true, 1},
		{"client error not retried", []int{http.StatusBadRequest}, 2, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := &batchCollector{statuses: tt.statuses}
			factory := newCollectorFactory(t, collector, tt.retryMax)
			ctx := context.Background()

			client, err := factory.NewClient(ctx)
			require.NoError(t, err)
			defer client.Close()

			require.NoError(t, client.Write(ctx, []Entry{{
				Severity:  Info,
				Message:   "m",
				LogName:   LogName,
				Timestamp: time.Now().UTC(),
			}}))
			err = client.Flush(ctx)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantRequests, collector.requests.Load())

			// Every attempt carries the full batch.
			for _, b := range collector.received() {
				assert.Contains(t, string(b.body), `"message":"m"`)
			}
		})
	}
}

func TestHTTPClientEmptyFlushAndClose(t *testing.T) {
	collector := &batchCollector{}
	factory := newCollectorFactory(t, collector, -1)
	ctx := context.Background()

	client, err := factory.NewClient(ctx)
	require.NoError(t, err)
	require.NoError(t, client.Flush(ctx))
	assert.Zero(t, collector.requests.Load())

	require.NoError(t, client.Close())
	assert.Error(t, client.Write(ctx, []Entry{{Message: "late"}}))
	assert.Error(t, client.Flush(ctx))
}

func TestNewHTTPClientFactoryRequiresEndpoint(t *testing.T) {
	_, err := NewHTTPClientFactory(HTTPClientConfig{})
	assert.Error(t, err)
}
