package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DealScanner/internal/control"
	"DealScanner/internal/infrastructure/scheduler"
	"DealScanner/internal/scanner"
)

type fakeController struct {
	scraping   *bool
	sources    map[string]bool
	jobCalls   []string
	healthErr  error
	collectErr error
}

func newFakeController() *fakeController {
	return &fakeController{sources: map[string]bool{"pelando": true}}
}

func (f *fakeController) Status() control.Status {
	return control.Status{
		Running:         true,
		ScrapingAllowed: true,
		Sources:         []control.SourceStatus{{Name: "pelando", Enabled: f.sources["pelando"]}},
		Validation:      control.ValidationStatus{Total: 3, Blocked: 1, ByReason: map[string]int{"raw_store_url": 1}},
	}
}

func (f *fakeController) Health(context.Context) (control.Health, error) {
	if f.healthErr != nil {
		return control.Health{Error: f.healthErr.Error()}, f.healthErr
	}
	return control.Health{StoreOK: true, SourcesEnabled: 1}, nil
}

func (f *fakeController) SetScraping(on bool) error {
	if on {
		return control.ErrEnvironmentLocked
	}
	f.scraping = &on
	return nil
}

func (f *fakeController) SetSourceEnabled(name string, on bool) error {
	if _, ok := f.sources[name]; !ok {
		return fmt.Errorf("%w: %s", scanner.ErrUnknownSource, name)
	}
	f.sources[name] = on
	return nil
}

func (f *fakeController) CollectNow(context.Context) (control.CollectResult, error) {
	if f.collectErr != nil {
		return control.CollectResult{}, f.collectErr
	}
	return control.CollectResult{Sources: 1, Collected: 4, Duplicates: 1, Queued: 3}, nil
}

func (f *fakeController) EnableJob(_ context.Context, id string) error {
	return f.jobCall("enable", id)
}

func (f *fakeController) DisableJob(_ context.Context, id string) error {
	return f.jobCall("disable", id)
}

func (f *fakeController) TriggerJob(_ context.Context, id string) error {
	return f.jobCall("trigger", id)
}

func (f *fakeController) jobCall(action, id string) error {
	if id != "collect-offers" {
		return fmt.Errorf("%w: %s", scheduler.ErrUnknownJob, id)
	}
	f.jobCalls = append(f.jobCalls, action+":"+id)
	return nil
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	router := NewRouter(newFakeController(), nil, nil)

	rec := do(t, router, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var st control.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Running)
	assert.Equal(t, 1, st.Validation.ByReason["raw_store_url"])
	require.Len(t, st.Sources, 1)
	assert.Equal(t, "pelando", st.Sources[0].Name)
}

func TestHealthEndpoint(t *testing.T) {
	ctrl := newFakeController()
	router := NewRouter(ctrl, nil, nil)

	rec := do(t, router, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store_ok":true`)

	ctrl.healthErr = errors.New("store unreachable")
	rec = do(t, router, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "store unreachable")
}

func TestScrapingSwitch(t *testing.T) {
	ctrl := newFakeController()
	router := NewRouter(ctrl, nil, nil)

	rec := do(t, router, http.MethodPost, "/scraping/off")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, ctrl.scraping)
	assert.False(t, *ctrl.scraping)

	rec = do(t, router, http.MethodPost, "/scraping/on")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "locked")

	rec = do(t, router, http.MethodGet, "/scraping/on")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSourceToggle(t *testing.T) {
	ctrl := newFakeController()
	router := NewRouter(ctrl, nil, nil)

	rec := do(t, router, http.MethodPost, "/sources/pelando/disable")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, ctrl.sources["pelando"])

	rec = do(t, router, http.MethodPost, "/sources/nope/enable")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobActions(t *testing.T) {
	ctrl := newFakeController()
	router := NewRouter(ctrl, nil, nil)

	for _, action := range []string{"disable", "enable", "trigger"} {
		rec := do(t, router, http.MethodPost, "/jobs/collect-offers/"+action)
		require.Equal(t, http.StatusOK, rec.Code, action)
	}
	assert.Equal(t, []string{"disable:collect-offers", "enable:collect-offers", "trigger:collect-offers"}, ctrl.jobCalls)

	rec := do(t, router, http.MethodPost, "/jobs/missing/enable")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCollectNow(t *testing.T) {
	ctrl := newFakeController()
	router := NewRouter(ctrl, nil, nil)

	rec := do(t, router, http.MethodPost, "/collect")
	require.Equal(t, http.StatusOK, rec.Code)

	var result control.CollectResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 3, result.Queued)
	assert.Equal(t, 1, result.Duplicates)

	ctrl.collectErr = fmt.Errorf("collect cancelled: %w", context.Canceled)
	rec = do(t, router, http.MethodPost, "/collect")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestMetricsMount(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("dealscanner_offers_published_total 2\n"))
	})

	rec := do(t, NewRouter(newFakeController(), metrics, nil), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "dealscanner_offers_published_total"))

	rec = do(t, NewRouter(newFakeController(), nil, nil), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
