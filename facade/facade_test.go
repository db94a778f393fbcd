package facade_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/incident-bridge/engine"
	"github.com/wippyai/incident-bridge/facade"
	"github.com/wippyai/incident-bridge/guest"
	"github.com/wippyai/incident-bridge/proxy"
	"github.com/wippyai/incident-bridge/runtime"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	handle *runtime.Handle
	pool   *facade.Pool
	server *facade.Server
}

func newHarness(t *testing.T, register bool, opts ...guest.Option) *harness {
	t.Helper()
	ctx := context.Background()

	eng, err := engine.New(ctx, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close(ctx) })

	if register {
		_, err := eng.Register(ctx, proxy.ServiceName, guest.IncidentService(opts...))
		require.NoError(t, err)
	}

	loader := runtime.NewLoader()
	loader.OnLoad(eng)
	exec := runtime.NewExecutor(loader.Handle())

	incidents, err := proxy.NewIncidentService(exec, runtime.NewMarshaller())
	require.NoError(t, err)

	pool := facade.NewPool(exec, 2, 8)
	t.Cleanup(pool.Close)

	return &harness{
		handle: loader.Handle(),
		pool:   pool,
		server: facade.NewServer(":0", facade.New(pool, incidents), loader.Handle()),
	}
}

func (h *harness) post(t *testing.T, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_CreateIncident(t *testing.T) {
	h := newHarness(t, true)

	rec := h.post(t, "/incident/create", "application/json",
		`{"title":"Title","description":"Description","priority":"High"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "INC-1", rec.Body.String())
	require.NotEmpty(t, rec.Header().Get(facade.RequestIDHeader))

	form := url.Values{"title": {"Disk full"}, "description": {"db-01"}, "priority": {"Low"}}
	rec = h.post(t, "/incident/create", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "INC-2", rec.Body.String())

	// Workers keep their attachments between requests.
	require.Eventually(t, func() bool { return h.handle.Attached() == 2 }, time.Second, 10*time.Millisecond)
}

func TestServer_ChangeStatus(t *testing.T) {
	h := newHarness(t, true)

	rec := h.post(t, "/incident/change_status", "application/json",
		`{"id":"1","status":"Open","assignee":"User","comment":"Comment"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Open", rec.Body.String())
}

func TestServer_Errors(t *testing.T) {
	tests := []struct {
		name     string
		register bool
		path     string
		body     string
		code     int
		contains string
	}{
		{
			name: "service missing",
			path: "/incident/change_status",
			body: `{"id":"1","status":"Open","assignee":"User","comment":"Comment"}`,
			code: http.StatusInternalServerError, contains: "service_not_found",
		},
		{
			name:     "guest rejects empty title",
			register: true,
			path:     "/incident/create",
			body:     `{"title":"","description":"d","priority":"p"}`,
			code:     http.StatusInternalServerError, contains: "title must not be empty",
		},
		{
			name:     "NUL in argument",
			register: true,
			path:     "/incident/create",
			body:     `{"title":"a\u0000b","description":"d","priority":"p"}`,
			code:     http.StatusInternalServerError, contains: "embedded NUL",
		},
		{
			name:     "undecodable body",
			register: true,
			path:     "/incident/create",
			body:     `{"title":`,
			code:     http.StatusBadRequest, contains: "invalid request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.register)
			rec := h.post(t, tt.path, "application/json", tt.body)
			require.Equal(t, tt.code, rec.Code)
			require.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

func TestServer_RequestIDPropagated(t *testing.T) {
	h := newHarness(t, true)
	id := "6f1c2b1e-7d7a-4c55-9a43-2f7f0a4d9c11"

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(facade.RequestIDHeader, id)
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, id, rec.Header().Get(facade.RequestIDHeader))
}

func TestServer_Health(t *testing.T) {
	h := newHarness(t, true)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status     string   `json:"status"`
		APIVersion string   `json:"api_version"`
		Services   []string `json:"services"`
		Workers    int      `json:"workers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body.Status)
	require.Equal(t, runtime.APIVersion.String(), body.APIVersion)
	require.Equal(t, []string{proxy.ServiceName}, body.Services)
	require.Equal(t, 2, body.Workers)
}

func TestServer_ConcurrentRequests(t *testing.T) {
	h := newHarness(t, true)

	const n = 16
	var wg sync.WaitGroup
	codes := make([]int, n)
	bodies := make([]string, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			title := "Title"
			if i%4 == 0 {
				title = ""
			}
			rec := h.post(t, "/incident/create", "application/json",
				`{"title":"`+title+`","description":"d","priority":"p"}`)
			codes[i], bodies[i] = rec.Code, rec.Body.String()
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := range n {
		if i%4 == 0 {
			require.Equal(t, http.StatusInternalServerError, codes[i])
			continue
		}
		require.Equal(t, http.StatusOK, codes[i], bodies[i])
		require.False(t, seen[bodies[i]], "duplicate id %s", bodies[i])
		seen[bodies[i]] = true
	}
}

type blockingIncidents struct {
	release chan struct{}
	started chan struct{}
}

func (b *blockingIncidents) CreateIncident(ctx context.Context, title, _, _ string) (string, error) {
	close(b.started)
	<-b.release
	return "INC-" + title, nil
}

func (b *blockingIncidents) ChangeStatus(ctx context.Context, _, status, _, _ string) (string, error) {
	return status, nil
}

func TestFacade_WaiterGivesUpJobFinishes(t *testing.T) {
	h := newHarness(t, true)
	inc := &blockingIncidents{release: make(chan struct{}), started: make(chan struct{})}
	f := facade.New(h.pool, inc)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := f.CreateRecord(ctx, "x", "d", "p")
		errc <- err
	}()

	<-inc.started
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	close(inc.release)
	// The worker is free again once the abandoned job completes.
	status, err := f.ChangeStatus(context.Background(), "1", "Open", "u", "c")
	require.NoError(t, err)
	require.Equal(t, "Open", status)
}

func TestPool_PanicAndClose(t *testing.T) {
	h := newHarness(t, true)

	err := h.pool.Submit(context.Background(), func(context.Context) error { panic("boom") })
	require.ErrorContains(t, err, "job panicked")

	got, err := facade.Do(context.Background(), h.pool, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	require.Equal(t, 7, got)

	h.pool.Close()
	h.pool.Close()
	require.Eventually(t, func() bool { return h.handle.Attached() == 0 }, time.Second, 10*time.Millisecond)

	err = h.pool.Submit(context.Background(), func(context.Context) error { return nil })
	require.ErrorIs(t, err, facade.ErrPoolClosed)
}
