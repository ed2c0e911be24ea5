package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aodh/internal/query"
	"github.com/roach88/aodh/internal/testutil"
)

// recorded is what the fake service saw for one request.
type recorded struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     string
}

// fakeService serves canned responses on the alarm API routes and records
// every request.
type fakeService struct {
	t        *testing.T
	server   *httptest.Server
	mu       sync.Mutex
	requests []recorded
	status   int
	header   http.Header
	response string
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	f := &fakeService{t: t, status: http.StatusOK, header: http.Header{}, response: "[]"}

	router := httprouter.New()
	router.POST("/v2/query/alarms", f.handle)
	router.POST("/v2/query/alarms/history", f.handle)
	router.GET("/v2/alarms", f.handle)
	router.GET("/v2/alarms/:alarm_id/history", f.handle)

	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeService) handle(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, err := io.ReadAll(r.Body)
	assert.NoError(f.t, err)
	f.mu.Lock()
	f.requests = append(f.requests, recorded{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Header:   r.Header.Clone(),
		Body:     string(body),
	})
	f.mu.Unlock()

	for k, vs := range f.header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(f.status)
	io.WriteString(w, f.response)
}

func (f *fakeService) last() recorded {
	f.t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(f.t, f.requests)
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, f *fakeService, opts Options) *Client {
	t.Helper()
	opts.Endpoint = f.server.URL
	if opts.Logger == nil {
		logger, _ := test.NewNullLogger()
		opts.Logger = logger
	}
	c, err := New(opts)
	require.NoError(t, err)
	c.newID = testutil.NewSequentialIDs("req").Next
	return c
}

func TestNew_ValidatesEndpoint(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Endpoint: "ftp://alarming"})
	assert.Error(t, err)

	c, err := New(Options{Endpoint: "http://alarming:8042/prefix"})
	require.NoError(t, err)
	assert.Equal(t, "http://alarming:8042/prefix/v2/alarms", c.resolve("v2/alarms", ""))
}

func TestQueryAlarms_SendsFilterString(t *testing.T) {
	f := newFakeService(t)
	f.response = `[{"alarm_id": "a1", "type": "event", "name": "disk", "state": "alarm", "severity": "low", "enabled": true, "extra": 1}]`
	c := newTestClient(t, f, Options{Token: "secret"})

	filter := query.MustCompile(`state="alarm" and cpu<=10`)
	alarms, err := c.QueryAlarms(context.Background(), filter, QueryOptions{})
	require.NoError(t, err)

	req := f.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/v2/query/alarms", req.Path)
	assert.Equal(t, `{"filter":"{\"and\": [{\"<=\": {\"cpu\": 10.0}}, {\"=\": {\"state\": \"alarm\"}}]}"}`, req.Body)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	assert.Equal(t, "secret", req.Header.Get(HeaderAuthToken))
	assert.Equal(t, "req-0001", req.Header.Get(HeaderRequestID))
	assert.Empty(t, req.Header.Get(HeaderUserID))

	require.Len(t, alarms, 1)
	assert.Equal(t, Alarm{AlarmID: "a1", Type: "event", Name: "disk", State: "alarm", Severity: "low", Enabled: true}, alarms[0])
}

func TestQueryAlarms_OptionalFields(t *testing.T) {
	f := newFakeService(t)
	c := newTestClient(t, f, Options{})

	alarms, err := c.QueryAlarms(context.Background(), nil, QueryOptions{OrderBy: `[{"name": "asc"}]`, Limit: 5})
	require.NoError(t, err)
	assert.NotNil(t, alarms)
	assert.Empty(t, alarms)
	assert.Equal(t, `{"orderby":"[{\"name\": \"asc\"}]","limit":5}`, f.last().Body)
}

func TestSearchHistory(t *testing.T) {
	f := newFakeService(t)
	f.response = `[{"alarm_id": "a1", "timestamp": "2024-03-01T12:00:00", "type": "state transition", "detail": "{\"state\": \"alarm\"}"}]`
	c := newTestClient(t, f, Options{UserID: "u1", ProjectID: "p1", Roles: "admin"})

	entries, err := c.SearchHistory(context.Background(), nil)
	require.NoError(t, err)

	req := f.last()
	assert.Equal(t, "/v2/query/alarms/history", req.Path)
	assert.Equal(t, `{}`, req.Body)
	assert.Equal(t, "u1", req.Header.Get(HeaderUserID))
	assert.Equal(t, "p1", req.Header.Get(HeaderProjectID))
	assert.Equal(t, "admin", req.Header.Get(HeaderRoles))
	assert.Empty(t, req.Header.Get(HeaderAuthToken))

	require.Len(t, entries, 1)
	assert.Equal(t, "state transition", entries[0].Type)

	_, err = c.SearchHistory(context.Background(), query.MustCompile(`alarm_id="a1"`))
	require.NoError(t, err)
	assert.Equal(t, `{"filter":"{\"=\": {\"alarm_id\": \"a1\"}}"}`, f.last().Body)
}

func TestListAlarms_QueryString(t *testing.T) {
	f := newFakeService(t)
	c := newTestClient(t, f, Options{})

	items, err := query.CompileCompact("type=event;severity!=string::low")
	require.NoError(t, err)

	_, err = c.ListAlarms(context.Background(), items, Pagination{
		Limit:  10,
		Marker: "a b",
		Sorts:  []string{"name:asc", "state:desc"},
	})
	require.NoError(t, err)

	req := f.last()
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/v2/alarms", req.Path)
	assert.Equal(t,
		"q.field=type&q.op=eq&q.value=event&q.type="+
			"&q.field=severity&q.op=ne&q.value=low&q.type=string"+
			"&limit=10&marker=a+b&sort=name%3Aasc&sort=state%3Adesc",
		req.RawQuery)
	assert.Empty(t, req.Body)
	assert.Empty(t, req.Header.Get("Content-Type"))

	_, err = c.ListAlarms(context.Background(), nil, Pagination{})
	require.NoError(t, err)
	assert.Empty(t, f.last().RawQuery)
}

func TestHTTPError_FromJSONFault(t *testing.T) {
	f := newFakeService(t)
	f.status = http.StatusBadRequest
	f.header.Set(HeaderRequestID, "req-server")
	f.response = `{"error_message": {"faultstring": "Unknown argument: \"foo\""}}`
	c := newTestClient(t, f, Options{})

	_, err := c.QueryAlarms(context.Background(), query.MustCompile(`foo=1`), QueryOptions{})
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
	assert.Equal(t, `Unknown argument: "foo"`, httpErr.Message)
	assert.Equal(t, "req-server", httpErr.RequestID)
	assert.Equal(t, http.MethodPost, httpErr.Method)
	assert.Equal(t, `Unknown argument: "foo" (HTTP 400) (Request-ID: req-server)`, httpErr.Error())
}

func TestHTTPError_Variants(t *testing.T) {
	testCases := []struct {
		name        string
		status      int
		contentType string
		retryAfter  string
		body        string
		message     string
		wantRetry   int
	}{
		{"text body", http.StatusServiceUnavailable, "text/plain; charset=utf-8", "", "maintenance\n", "maintenance", 0},
		{"default message", http.StatusForbidden, "application/json", "", `{}`, "Forbidden", 0},
		{"unknown status", http.StatusTeapot, "application/octet-stream", "", "x", "Unknown Error", 0},
		{"rate limit", http.StatusTooManyRequests, "application/json", "7", `{}`, "Rate limit", 7},
		{"over limit bad header", http.StatusRequestEntityTooLarge, "application/json", "soon", `{}`, "Over limit", 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeService(t)
			f.status = tc.status
			f.header.Set("Content-Type", tc.contentType)
			if tc.retryAfter != "" {
				f.header.Set("Retry-After", tc.retryAfter)
			}
			f.response = tc.body
			c := newTestClient(t, f, Options{})

			_, err := c.ListAlarms(context.Background(), nil, Pagination{})
			var httpErr *HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tc.message, httpErr.Message)
			assert.Equal(t, tc.wantRetry, httpErr.RetryAfter)
			assert.Equal(t, "req-0001", httpErr.RequestID)
		})
	}
}

func TestHTTPError_NotFound(t *testing.T) {
	f := newFakeService(t)
	c := newTestClient(t, f, Options{})

	// Unrouted path: httprouter answers 404 with a text body.
	err := c.do(context.Background(), http.MethodGet, "v2/missing", "", nil, nil)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
	assert.Equal(t, "404 page not found", httpErr.Message)
}

func TestClient_DebugLogging(t *testing.T) {
	f := newFakeService(t)
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	c := newTestClient(t, f, Options{Logger: logger})

	_, err := c.ListAlarms(context.Background(), nil, Pagination{})
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, log.DebugLevel, entry.Level)
	assert.Equal(t, "Alarm API request", entry.Message)
	assert.Equal(t, http.MethodGet, entry.Data["method"])
	assert.Equal(t, "req-0001", entry.Data["requestID"])
	assert.Equal(t, http.StatusOK, entry.Data["status"])
}

func TestClient_ContextCanceled(t *testing.T) {
	f := newFakeService(t)
	c := newTestClient(t, f, Options{Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListAlarms(ctx, nil, Pagination{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.requests)
}

func TestClient_RejectsMalformedResponse(t *testing.T) {
	f := newFakeService(t)
	f.response = `{"not": "a list"`
	c := newTestClient(t, f, Options{})

	_, err := c.ListAlarms(context.Background(), nil, Pagination{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestPagination_Encode(t *testing.T) {
	assert.Equal(t, "", Pagination{}.Encode())
	assert.Equal(t, "limit=3", Pagination{Limit: 3}.Encode())
	assert.Equal(t, "marker=m%2F1&sort=name%3Aasc", Pagination{Marker: "m/1", Sorts: []string{"name:asc"}}.Encode())
	assert.Equal(t, "limit=1&marker=x", Pagination{Limit: 1, Marker: "x"}.Encode())
}

func TestAlarmHistory_GetsPagedHistory(t *testing.T) {
	f := newFakeService(t)
	f.response = `[{"alarm_id": "a1", "timestamp": "2024-03-01T12:30:00", "type": "state transition", "detail": "{\"state\": \"alarm\"}", "event_id": "e9"}]`
	c := newTestClient(t, f, Options{Token: "secret"})

	entries, err := c.AlarmHistory(context.Background(), "a1", Pagination{Limit: 2, Marker: "e8", Sorts: []string{"timestamp:desc"}})
	require.NoError(t, err)

	req := f.last()
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/v2/alarms/a1/history", req.Path)
	assert.Equal(t, "limit=2&marker=e8&sort=timestamp%3Adesc", req.RawQuery)
	assert.Empty(t, req.Body)

	require.Len(t, entries, 1)
	assert.Equal(t, HistoryEntry{
		AlarmID:   "a1",
		Timestamp: "2024-03-01T12:30:00",
		Type:      "state transition",
		Detail:    `{"state": "alarm"}`,
		EventID:   "e9",
	}, entries[0])
}

func TestAlarmHistory_RejectsBadIDs(t *testing.T) {
	f := newFakeService(t)
	c := newTestClient(t, f, Options{})

	for _, id := range []string{"", "  ", "a/b"} {
		_, err := c.AlarmHistory(context.Background(), id, Pagination{})
		assert.Error(t, err, "id %q", id)
	}
	assert.Empty(t, f.requests)
}
