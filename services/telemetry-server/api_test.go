package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-telemetry/internal/access"
	"tenant-telemetry/internal/auth"
	"tenant-telemetry/internal/hub"
	"tenant-telemetry/internal/metrics"
	"tenant-telemetry/internal/model"
	"tenant-telemetry/internal/store/memory"
)

var (
	root    = model.Principal{UserID: "root", Role: model.RolePlatformAdmin}
	adminA  = model.Principal{UserID: "adm-a", Role: model.RoleTenantAdmin, CompanyID: "A"}
	memberA = model.Principal{UserID: "mem-a", Role: model.RoleMember, CompanyID: "A"}
	memberB = model.Principal{UserID: "mem-b", Role: model.RoleMember, CompanyID: "B"}
)

type testServer struct {
	srv  *httptest.Server
	base time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stores, sensors := memory.Stores()

	for _, s := range []model.Sensor{
		{ID: "id-a1", SensorID: "a1", Name: "Sklad", CompanyID: "A", IsActive: true},
		{ID: "id-a2", SensorID: "a2", Name: "Kancelář", CompanyID: "A", IsActive: true},
		{ID: "id-b1", SensorID: "b1", Name: "Hala", CompanyID: "B", IsActive: true},
	} {
		_, err := sensors.Put(s)
		require.NoError(t, err)
	}

	base := time.Unix(1700000000, 0).UTC()
	for i := 0; i < 5; i++ {
		temp := 20.0 + float64(i)
		_, err := stores.Readings.Save(context.Background(), model.Reading{SensorID: "a1", Timestamp: base.Add(time.Duration(i) * time.Minute), Temperature: &temp})
		require.NoError(t, err)
	}

	authn := auth.NewStatic()
	authn.Add("root", root)
	authn.Add("adm-a", adminA)
	authn.Add("mem-a", memberA)
	authn.Add("mem-b", memberB)

	m := metrics.New()
	resolver := access.NewResolver(stores.Sensors, stores.Access, logger)
	h := hub.New(hub.Config{}, resolver, stores, m, logger)
	api := NewAPIHandler(h, resolver, stores, authn, logger)

	srv := httptest.NewServer(CorsMiddleware(buildMux(api, h, m, logger)))
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, base: base}
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]any](t, resp)["status"])

	resp = ts.do(t, "GET", "/metrics", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_RequiresToken(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, "GET", "/api/sensors", "", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, "GET", "/api/sensors", "wrong", "").StatusCode)
}

func TestAPI_ListSensors(t *testing.T) {
	ts := newTestServer(t)

	views := decode[[]hub.SensorView](t, ts.do(t, "GET", "/api/sensors", "mem-a", ""))
	require.Len(t, views, 2)
	assert.Equal(t, "a1", views[0].SensorID)
	require.NotNil(t, views[0].LastReading)
	assert.Equal(t, 24.0, *views[0].LastReading.Temperature)

	views = decode[[]hub.SensorView](t, ts.do(t, "GET", "/api/sensors", "root", ""))
	assert.Len(t, views, 3)
}

func TestAPI_Latest(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name  string
		path  string
		token string
		code  int
		count int
	}{
		{"default limit", "/api/sensors/a1/latest", "mem-a", http.StatusOK, 5},
		{"explicit limit", "/api/sensors/a1/latest?limit=2", "mem-a", http.StatusOK, 2},
		{"no readings", "/api/sensors/a2/latest", "adm-a", http.StatusOK, 0},
		{"foreign tenant", "/api/sensors/b1/latest", "mem-a", http.StatusForbidden, -1},
		{"unknown sensor", "/api/sensors/ghost/latest", "root", http.StatusNotFound, -1},
		{"bad limit", "/api/sensors/a1/latest?limit=abc", "mem-a", http.StatusBadRequest, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, "GET", tt.path, tt.token, "")
			require.Equal(t, tt.code, resp.StatusCode)
			if tt.count >= 0 {
				assert.Len(t, decode[[]model.Reading](t, resp), tt.count)
			}
		})
	}
}

func TestAPI_Range(t *testing.T) {
	ts := newTestServer(t)
	start := ts.base.Add(time.Minute).Unix()
	end := ts.base.Add(3 * time.Minute).Unix()

	resp := ts.do(t, "GET", "/api/sensors/a1/range?start="+itoa(start)+"&end="+itoa(end), "mem-a", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	readings := decode[[]model.Reading](t, resp)
	require.Len(t, readings, 3)
	assert.True(t, readings[0].Timestamp.Before(readings[2].Timestamp))

	resp = ts.do(t, "GET", "/api/sensors/a1/range?start="+itoa(end)+"&end="+itoa(start), "mem-a", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/sensors/a1/range", "mem-b", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAPI_GrantLifecycle(t *testing.T) {
	ts := newTestServer(t)
	body := `{"sensorId":"a1","userId":"mem-b","description":"audit"}`

	resp := ts.do(t, "POST", "/api/access", "adm-a", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	g := decode[model.AccessGrant](t, resp)
	assert.True(t, g.CanView, "canView defaults to true")
	assert.Equal(t, "id-a1", g.SensorID)
	assert.Equal(t, "adm-a", g.CreatedBy)

	assert.Equal(t, http.StatusConflict, ts.do(t, "POST", "/api/access", "adm-a", body).StatusCode)
	assert.Equal(t, http.StatusForbidden, ts.do(t, "POST", "/api/access", "mem-a", `{"sensorId":"a2","userId":"x"}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, "POST", "/api/access", "adm-a", `{`).StatusCode)

	mine := decode[[]model.AccessGrant](t, ts.do(t, "GET", "/api/access/me", "mem-b", ""))
	require.Len(t, mine, 1)

	// s grantem vidí host i cizí senzor
	views := decode[[]hub.SensorView](t, ts.do(t, "GET", "/api/sensors", "mem-b", ""))
	assert.Len(t, views, 2)

	assert.Equal(t, http.StatusNoContent, ts.do(t, "DELETE", "/api/access?sensorId=a1&userId=mem-b", "mem-b", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, ts.do(t, "DELETE", "/api/access?sensorId=a1&userId=mem-b", "adm-a", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, "DELETE", "/api/access", "adm-a", "").StatusCode)

	mine = decode[[]model.AccessGrant](t, ts.do(t, "GET", "/api/access/me", "mem-b", ""))
	assert.Empty(t, mine)
}

func TestAPI_LogsPlatformAdminOnly(t *testing.T) {
	ts := newTestServer(t)

	require.Equal(t, http.StatusOK, ts.do(t, "GET", "/api/sensors/a1/latest", "mem-a", "").StatusCode)

	assert.Equal(t, http.StatusForbidden, ts.do(t, "GET", "/api/logs", "adm-a", "").StatusCode)

	resp := ts.do(t, "GET", "/api/logs?userId=mem-a", "root", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decode[[]model.AccessLogEntry](t, resp)
	require.Len(t, entries, 1)
	assert.Equal(t, model.ActionViewedLogs, entries[0].Action)
	assert.Equal(t, "a1", entries[0].SensorID)
}

func TestCorsMiddleware_Preflight(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "OPTIONS", "/api/sensors", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
