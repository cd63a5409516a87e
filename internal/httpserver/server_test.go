package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tinytelemetry/canopy/internal/charts"
	"github.com/tinytelemetry/canopy/internal/dashboard"
	"github.com/tinytelemetry/canopy/internal/duckdb"
	"github.com/tinytelemetry/canopy/internal/model"
	"github.com/tinytelemetry/canopy/internal/scheduler"
	"github.com/tinytelemetry/canopy/internal/templates"
	"github.com/tinytelemetry/canopy/internal/visibility"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *dashboard.Engine, http.Handler) {
	t.Helper()
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sched := scheduler.New(nil)
	t.Cleanup(sched.Close)

	fetch := charts.FetcherFunc(func(_ context.Context, kind model.ChartKind) (int, string, error) {
		if kind == model.ChartAirflow {
			return http.StatusBadGateway, "", nil
		}
		return http.StatusOK, `{"image":"iVBORw0KGgo` + string(kind) + `"}`, nil
	})
	cache, err := charts.New(charts.Options{Fetcher: fetch, Scheduler: sched})
	if err != nil {
		t.Fatalf("charts.New: %v", err)
	}

	engine, err := dashboard.New(dashboard.Options{
		Repository:      templates.NewRepository(store),
		Visibility:      visibility.New(),
		Cache:           cache,
		RefreshInterval: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("dashboard.New: %v", err)
	}

	srv := NewServer("", engine, WithHealthChecker(store))
	srv.startTime = time.Now()
	return srv, engine, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

func bootstrap(t *testing.T, h http.Handler) []model.Template {
	t.Helper()
	if w := do(t, h, http.MethodPost, "/api/templates/bootstrap", ""); w.Code != http.StatusOK {
		t.Fatalf("bootstrap status = %d; body: %s", w.Code, w.Body.String())
	}
	w := do(t, h, http.MethodGet, "/api/templates", "")
	var body struct {
		Templates []model.Template `json:"templates"`
	}
	decode(t, w, &body)
	return body.Templates
}

func byName(t *testing.T, rows []model.Template, name string) model.Template {
	t.Helper()
	for _, r := range rows {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("template %q not listed", name)
	return model.Template{}
}

func TestHealthEndpoint(t *testing.T) {
	_, _, h := newTestServer(t)

	w := do(t, h, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]interface{}
	decode(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("health status = %v, want ok", body["status"])
	}
	if _, ok := body["row_counts"]; !ok {
		t.Errorf("health body has no row_counts: %v", body)
	}
}

func TestHealthEndpoint_WrongMethod(t *testing.T) {
	_, _, h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/api/health", "")
	// Gin returns 404 unless HandleMethodNotAllowed is set
	if w.Code != http.StatusMethodNotAllowed && w.Code != http.StatusNotFound {
		t.Errorf("health POST status = %d, want 405 or 404", w.Code)
	}
}

func TestBootstrapIsIdempotent(t *testing.T) {
	_, _, h := newTestServer(t)

	rows := bootstrap(t, h)
	if len(rows) != 3 {
		t.Fatalf("templates after bootstrap = %d, want 3", len(rows))
	}

	w := do(t, h, http.MethodPost, "/api/templates/bootstrap", "")
	var body struct {
		Inserted int `json:"inserted"`
	}
	decode(t, w, &body)
	if body.Inserted != 0 {
		t.Errorf("second bootstrap inserted %d, want 0", body.Inserted)
	}
}

func TestTemplateCRUD(t *testing.T) {
	_, _, h := newTestServer(t)

	create := `{"name":"Ops","description":"ops board","preview":"/previews/ops.png",
		"config":{"layout":"flex","refreshInterval":4000,
		"components":[{"id":"t1","type":"temperature","position":{"x":0,"y":0,"w":8,"h":4},"title":"Temp","visible":true}]}}`
	w := do(t, h, http.MethodPost, "/api/templates", create)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d; body: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID int64 `json:"id"`
	}
	decode(t, w, &created)
	path := "/api/templates/" + strconv.FormatInt(created.ID, 10)

	w = do(t, h, http.MethodGet, path, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got model.Template
	decode(t, w, &got)
	if got.Config.Layout != model.LayoutFlex || got.Config.RefreshIntervalMs != 4000 {
		t.Errorf("config = %+v", got.Config)
	}
	if got.Config.Theme.PrimaryColor != model.DefaultPrimaryColor {
		t.Errorf("theme default not applied: %+v", got.Config.Theme)
	}

	w = do(t, h, http.MethodPatch, path, `{"name":"Ops v2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d; body: %s", w.Code, w.Body.String())
	}
	decode(t, w, &got)
	if got.Name != "Ops v2" || got.Description != "ops board" {
		t.Errorf("patched = %q / %q", got.Name, got.Description)
	}

	if w = do(t, h, http.MethodDelete, path, ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w = do(t, h, http.MethodGet, path, ""); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
	if w = do(t, h, http.MethodDelete, path, ""); w.Code != http.StatusNoContent {
		t.Errorf("second delete status = %d, want 204", w.Code)
	}
}

func TestCreateRejectsInvalidTemplate(t *testing.T) {
	_, _, h := newTestServer(t)

	cases := map[string]string{
		"missing name":  `{"description":"d","preview":"p"}`,
		"bad interval":  `{"name":"n","description":"d","preview":"p","config":{"refreshInterval":10}}`,
		"bad component": `{"name":"n","description":"d","preview":"p","config":{"components":[{"id":"x","type":"radar","position":{"w":1,"h":1}}]}}`,
		"not json":      `{`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/templates", body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestInvalidTemplateID(t *testing.T) {
	_, _, h := newTestServer(t)

	for _, id := range []string{"abc", "0", "-3"} {
		if w := do(t, h, http.MethodGet, "/api/templates/"+id, ""); w.Code != http.StatusBadRequest {
			t.Errorf("GET id %q status = %d, want 400", id, w.Code)
		}
	}
}

func TestSearchFilters(t *testing.T) {
	_, _, h := newTestServer(t)
	rows := bootstrap(t, h)
	energy := byName(t, rows, "Energy Analysis")

	path := "/api/templates/" + strconv.FormatInt(energy.ID, 10) + "/toggle"
	if w := do(t, h, http.MethodPost, path, ""); w.Code != http.StatusNoContent {
		t.Fatalf("toggle status = %d", w.Code)
	}

	var body struct {
		Templates []model.Template `json:"templates"`
		Count     int              `json:"count"`
	}
	decode(t, do(t, h, http.MethodGet, "/api/templates?status=inactive", ""), &body)
	if body.Count != 1 || body.Templates[0].Name != "Energy Analysis" {
		t.Errorf("inactive = %+v", body.Templates)
	}

	decode(t, do(t, h, http.MethodGet, "/api/templates?q=STATUS", ""), &body)
	if body.Count != 1 || body.Templates[0].Name != "System Status" {
		t.Errorf("search STATUS = %+v", body.Templates)
	}

	if w := do(t, h, http.MethodGet, "/api/templates?status=bogus", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bogus status filter = %d, want 400", w.Code)
	}
}

func TestDuplicateTemplate(t *testing.T) {
	_, _, h := newTestServer(t)
	rows := bootstrap(t, h)
	classic := byName(t, rows, "Classic Monitoring")
	base := "/api/templates/" + strconv.FormatInt(classic.ID, 10)

	w := do(t, h, http.MethodPost, base+"/duplicate", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("duplicate status = %d; body: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID int64 `json:"id"`
	}
	decode(t, w, &created)

	var dup model.Template
	decode(t, do(t, h, http.MethodGet, "/api/templates/"+strconv.FormatInt(created.ID, 10), ""), &dup)
	if dup.Name != "Classic Monitoring - copy" || dup.IsActive {
		t.Errorf("duplicate = %q active=%v", dup.Name, dup.IsActive)
	}
	if len(dup.Config.Components) != len(classic.Config.Components) {
		t.Errorf("duplicate components = %d, want %d", len(dup.Config.Components), len(classic.Config.Components))
	}

	w = do(t, h, http.MethodPost, base+"/duplicate", `{"name":"Mine"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("named duplicate status = %d", w.Code)
	}

	if w = do(t, h, http.MethodPost, "/api/templates/999/duplicate", ""); w.Code != http.StatusNotFound {
		t.Errorf("duplicate missing status = %d, want 404", w.Code)
	}
}

func TestSelectTemplateAndRenderDashboard(t *testing.T) {
	_, engine, h := newTestServer(t)
	rows := bootstrap(t, h)
	classic := byName(t, rows, "Classic Monitoring")

	engine.RefreshNow(context.Background())

	path := "/api/templates/" + strconv.FormatInt(classic.ID, 10) + "/select"
	if w := do(t, h, http.MethodPost, path, ""); w.Code != http.StatusOK {
		t.Fatalf("select status = %d; body: %s", w.Code, w.Body.String())
	}

	var vis visibilityResponse
	decode(t, do(t, h, http.MethodGet, "/api/visibility", ""), &vis)
	if vis.Stats.Visible != 3 || vis.SelectAll != visibility.SelectSome {
		t.Errorf("visibility after select = %+v", vis)
	}

	w := do(t, h, http.MethodGet, "/api/dashboard", "")
	if w.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d", w.Code)
	}
	var frame dashboard.Frame
	decode(t, w, &frame)
	if frame.TemplateName != "Classic Monitoring" || frame.Empty {
		t.Fatalf("frame = %q empty=%v", frame.TemplateName, frame.Empty)
	}
	if len(frame.Charts) != 3 {
		t.Fatalf("charts = %d, want 3", len(frame.Charts))
	}
	if frame.Charts[0].Payload != "data:image/png;base64,iVBORw0KGgotemperature" {
		t.Errorf("first chart payload = %q", frame.Charts[0].Payload)
	}

	if w := do(t, h, http.MethodPost, "/api/templates/404/select", ""); w.Code != http.StatusNotFound {
		t.Errorf("select missing status = %d, want 404", w.Code)
	}
}

func TestVisibilityEndpoints(t *testing.T) {
	_, _, h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/api/visibility/all", `{"visible":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("all status = %d", w.Code)
	}
	var vis visibilityResponse
	decode(t, w, &vis)
	if vis.SelectAll != visibility.SelectNone || len(vis.Visible) != 0 {
		t.Errorf("after hide all = %+v", vis)
	}

	var frame dashboard.Frame
	decode(t, do(t, h, http.MethodGet, "/api/dashboard", ""), &frame)
	if !frame.Empty || frame.Guidance == "" {
		t.Errorf("empty frame = %+v", frame)
	}

	w = do(t, h, http.MethodPost, "/api/visibility/humidity/toggle", "")
	var toggled struct {
		Kind    model.ComponentKind `json:"kind"`
		Visible bool                `json:"visible"`
	}
	decode(t, w, &toggled)
	if !toggled.Visible {
		t.Errorf("humidity toggle = %+v", toggled)
	}

	if w = do(t, h, http.MethodPost, "/api/visibility/weather/toggle", ""); w.Code != http.StatusBadRequest {
		t.Errorf("toggle weather status = %d, want 400", w.Code)
	}

	w = do(t, h, http.MethodPut, "/api/visibility", `{"kinds":["energy","status"]}`)
	decode(t, w, &vis)
	if len(vis.Visible) != 2 || vis.State[model.KindHumidity] {
		t.Errorf("after set exact = %+v", vis)
	}

	if w = do(t, h, http.MethodPost, "/api/visibility/all", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("all without flag status = %d, want 400", w.Code)
	}

	if w = do(t, h, http.MethodPost, "/api/overview", ""); w.Code != http.StatusOK {
		t.Fatalf("overview status = %d", w.Code)
	}
	decode(t, do(t, h, http.MethodGet, "/api/visibility", ""), &vis)
	if vis.SelectAll != visibility.SelectAll {
		t.Errorf("overview visibility = %+v", vis)
	}
}

func TestRefreshEndpoints(t *testing.T) {
	_, engine, h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/api/refresh", "")
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d", w.Code)
	}
	var round roundResponse
	decode(t, w, &round)
	if round.Round == "" || len(round.Succeeded) != 5 {
		t.Errorf("round = %+v", round)
	}
	if _, ok := round.Failed[model.ChartAirflow]; !ok {
		t.Errorf("airflow should fail: %+v", round.Failed)
	}

	w = do(t, h, http.MethodPost, "/api/refresh?kind=energy", "")
	decode(t, w, &round)
	if len(round.Succeeded) != 1 || round.Succeeded[0] != model.ChartEnergy {
		t.Errorf("single refresh = %+v", round)
	}
	if w = do(t, h, http.MethodPost, "/api/refresh?kind=radar", ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown kind status = %d, want 400", w.Code)
	}

	if w = do(t, h, http.MethodPut, "/api/refresh", `{"intervalMs":500}`); w.Code != http.StatusBadRequest {
		t.Errorf("short interval status = %d, want 400", w.Code)
	}
	w = do(t, h, http.MethodPut, "/api/refresh", `{"intervalMs":30000}`)
	if w.Code != http.StatusOK {
		t.Fatalf("set interval status = %d; body: %s", w.Code, w.Body.String())
	}
	st := engine.RefreshState()
	if !st.Running || st.Interval != 30*time.Second {
		t.Errorf("refresh state = %+v", st)
	}

	if w = do(t, h, http.MethodDelete, "/api/refresh", ""); w.Code != http.StatusOK {
		t.Fatalf("pause status = %d", w.Code)
	}
	st = engine.RefreshState()
	if st.Running || !st.Paused {
		t.Errorf("after pause = %+v", st)
	}
}

func TestGinRecovery(t *testing.T) {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("panic recovery status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestStartStop(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.addr = "127.0.0.1:0"
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
