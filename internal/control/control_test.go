package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/alphaprobe/extension"
	"github.com/hazyhaar/alphaprobe/host"
	"github.com/hazyhaar/alphaprobe/host/inproc"
	"github.com/hazyhaar/alphaprobe/internal/fetcher"
	"github.com/hazyhaar/alphaprobe/observability"
	"github.com/hazyhaar/alphaprobe/probe"
)

type fixture struct {
	h   *inproc.Host
	ext *extension.Extension
	api http.Handler
	img *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Pix[3] = 0
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dot.png" {
			http.NotFound(w, r)
			return
		}
		w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)

	h := inproc.New(inproc.WithFetcher(fetcher.New()))
	ext := extension.New(h)
	require.NoError(t, ext.Init(context.Background()))
	t.Cleanup(ext.Close)
	h.Install(context.Background())

	return &fixture{h: h, ext: ext, api: New(h, nil).Handler(), img: srv}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.api.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) openTab(t *testing.T) host.TabID {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/v1/tabs", `{"url":"`+f.img.URL+`/"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		TabID host.TabID `json:"tab_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.TabID)
	return resp.TabID
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMenus(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/v1/menus", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"checkImage","title":"Check if PNG is Transparent","contexts":["image"]}]`, rec.Body.String())
}

func TestTabs_Lifecycle(t *testing.T) {
	f := newFixture(t)
	id := f.openTab(t)

	rec := f.do(t, http.MethodGet, "/v1/tabs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tabs []host.Tab
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tabs))
	require.Len(t, tabs, 1)
	assert.Equal(t, id, tabs[0].ID)

	rec = f.do(t, http.MethodDelete, "/v1/tabs/"+string(id), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/v1/tabs/"+string(id), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOpenTab_BadRequest(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/tabs", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/tabs", `{`).Code)
}

func TestClick_RunsProbe(t *testing.T) {
	f := newFixture(t)
	id := f.openTab(t)

	rec := f.do(t, http.MethodPost, "/v1/tabs/"+string(id)+"/menus/checkImage/click", `{"src_url":"dot.png"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	f.ext.Wait()
	assert.Equal(t, []string{probe.MsgTransparent}, f.h.Alerts(id))
}

func TestClick_Errors(t *testing.T) {
	f := newFixture(t)
	id := f.openTab(t)

	rec := f.do(t, http.MethodPost, "/v1/tabs/tab_missing/menus/checkImage/click", `{"src_url":"dot.png"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/tabs/"+string(id)+"/menus/unknown/click", `{"src_url":"dot.png"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/tabs/"+string(id)+"/menus/checkImage/click", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.ext.Wait()
	assert.Empty(t, f.h.Alerts(id))
}

func TestRecoverer(t *testing.T) {
	s := New(panicking{}, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/tabs", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type panicking struct{ Controller }

func (panicking) Tabs() []host.Tab { panic("boom") }

func TestMiddleware_HeadersAndHead(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodHead, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestMiddleware_BodyLimit(t *testing.T) {
	f := newFixture(t)
	big := `{"url":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	rec := f.do(t, http.MethodPost, "/v1/tabs", big)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.h.Tabs())
}

func TestMiddleware_HeadOnlyMatchesGetRoutes(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodHead, "/v1/tabs/tab_x", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type storedMetrics struct {
	got  observability.Filter
	rows []observability.Metric
	err  error
}

func (m *storedMetrics) Query(_ context.Context, f observability.Filter) ([]observability.Metric, error) {
	m.got = f
	return m.rows, m.err
}

func TestMetrics_NotMountedWithoutReader(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/metrics", "").Code)
}

func TestMetrics_Query(t *testing.T) {
	m := &storedMetrics{rows: []observability.Metric{{
		Name:   observability.MetricMenuClicks,
		Value:  1,
		Labels: map[string]string{"menu_item_id": "checkImage"},
		Unit:   "count",
	}}}
	api := New(inproc.New(), nil, WithMetrics(m)).Handler()

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/metrics?name=menu_clicks&since=1h&limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "menu_clicks", m.got.Name)
	assert.Equal(t, 5, m.got.Limit)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), m.got.Since, time.Minute)

	var got []observability.Metric
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "checkImage", got[0].Labels["menu_item_id"])
}

func TestMetrics_DefaultsAndBadParams(t *testing.T) {
	m := &storedMetrics{rows: []observability.Metric{}}
	api := New(inproc.New(), nil, WithMetrics(m)).Handler()
	get := func(path string) int {
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, get("/v1/metrics"))
	assert.Equal(t, 100, m.got.Limit)
	assert.True(t, m.got.Since.IsZero())

	assert.Equal(t, http.StatusBadRequest, get("/v1/metrics?since=yesterday"))
	assert.Equal(t, http.StatusBadRequest, get("/v1/metrics?since=-1h"))
	assert.Equal(t, http.StatusBadRequest, get("/v1/metrics?limit=0"))

	m.err = errors.New("disk gone")
	assert.Equal(t, http.StatusInternalServerError, get("/v1/metrics"))
}
