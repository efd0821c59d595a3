package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leeaandrob/xrpdigest/internal/content"
	"github.com/leeaandrob/xrpdigest/internal/models"
	"github.com/leeaandrob/xrpdigest/internal/scheduler"
	"github.com/leeaandrob/xrpdigest/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cret"

type fakeRunner struct {
	res   *content.Result
	err   error
	calls atomic.Int32
}

func (f *fakeRunner) GenerateWeeklyDigest(context.Context) (*content.Result, error) {
	f.calls.Add(1)
	return f.res, f.err
}

type fakeReader struct {
	digests map[string]*models.Digest
	err     error
}

func (f *fakeReader) GetDigest(_ context.Context, slug string) (*models.Digest, error) {
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.digests[slug]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return d, nil
}

func (f *fakeReader) ListDigests(_ context.Context, limit int) ([]models.Digest, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Digest, 0, len(f.digests))
	for _, d := range f.digests {
		out = append(out, *d)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeReader) GetStats(context.Context) (*storage.Stats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &storage.Stats{TotalDigests: int64(len(f.digests)), LatestSlug: "2026-02-09"}, nil
}

func sampleDigest() *models.Digest {
	return &models.Digest{
		Slug:      "2026-02-09",
		Title:     "XRP grinds higher",
		WeekRange: "Feb 9 - Feb 15, 2026",
		HTML:      `<article class="xrp-digest"><h1>XRP grinds higher</h1></article>`,
	}
}

func successRunner() *fakeRunner {
	return &fakeRunner{res: &content.Result{
		RunID:   "run-1",
		Digest:  sampleDigest(),
		Sources: map[string]bool{"news": true, "price": false},
	}}
}

func newTestServer(runner scheduler.Runner, reader DigestReader, sched *scheduler.Scheduler) *Server {
	return NewServer(Config{CronSecret: testSecret, TriggerRPM: 600, TriggerBurst: 10}, runner, reader, sched)
}

func do(t *testing.T, srv *Server, method, target string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func bearer(secret string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + secret}
}

func TestTrigger_Success(t *testing.T) {
	runner := successRunner()
	srv := newTestServer(runner, &fakeReader{}, nil)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec, body := do(t, srv, method, "/api/cron/weekly-digest", bearer(testSecret))
		require.Equal(t, http.StatusOK, rec.Code, method)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "2026-02-09", body["slug"])
		assert.Equal(t, "XRP grinds higher", body["title"])
		assert.Equal(t, "Feb 9 - Feb 15, 2026", body["week_range"])
		assert.Equal(t, "run-1", body["run_id"])
		assert.Equal(t, map[string]any{"news": true, "price": false}, body["sources"])
	}
	assert.Equal(t, int32(2), runner.calls.Load())
}

func TestTrigger_QuerySecret(t *testing.T) {
	srv := newTestServer(successRunner(), &fakeReader{}, nil)
	rec, _ := do(t, srv, http.MethodGet, "/api/cron/weekly-digest?secret="+testSecret, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTrigger_EitherSecretFormIsAccepted(t *testing.T) {
	runner := successRunner()
	srv := newTestServer(runner, &fakeReader{}, nil)

	cases := map[string]struct {
		target string
		header map[string]string
	}{
		"query with stale bearer": {"/api/cron/weekly-digest?secret=" + testSecret, bearer("old-secret")},
		"bearer with stale query": {"/api/cron/weekly-digest?secret=old-secret", bearer(testSecret)},
		"lowercase scheme":        {"/api/cron/weekly-digest", map[string]string{"Authorization": "bearer " + testSecret}},
		"uppercase scheme":        {"/api/cron/weekly-digest", map[string]string{"Authorization": "BEARER " + testSecret}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec, _ := do(t, srv, http.MethodPost, tc.target, tc.header)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
	assert.Equal(t, int32(len(cases)), runner.calls.Load())
}

func TestTrigger_Unauthorized(t *testing.T) {
	runner := successRunner()
	srv := newTestServer(runner, &fakeReader{}, nil)

	cases := map[string]struct {
		target string
		header map[string]string
	}{
		"missing":      {"/api/cron/weekly-digest", nil},
		"wrong bearer": {"/api/cron/weekly-digest", bearer("nope")},
		"wrong query":  {"/api/cron/weekly-digest?secret=nope", nil},
		"basic scheme": {"/api/cron/weekly-digest", map[string]string{"Authorization": "Basic " + testSecret}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec, body := do(t, srv, http.MethodPost, tc.target, tc.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Unauthorized", body["error"])
		})
	}
	assert.Zero(t, runner.calls.Load())
}

func TestTrigger_EmptySecretRejectsEveryone(t *testing.T) {
	runner := successRunner()
	srv := NewServer(Config{}, runner, &fakeReader{}, nil)

	rec, _ := do(t, srv, http.MethodPost, "/api/cron/weekly-digest", bearer(""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = do(t, srv, http.MethodPost, "/api/cron/weekly-digest?secret=", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, runner.calls.Load())
}

func TestTrigger_RateLimited(t *testing.T) {
	runner := successRunner()
	srv := NewServer(Config{CronSecret: testSecret, TriggerRPM: 1, TriggerBurst: 1}, runner, &fakeReader{}, nil)

	rec, _ := do(t, srv, http.MethodPost, "/api/cron/weekly-digest", bearer(testSecret))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := do(t, srv, http.MethodPost, "/api/cron/weekly-digest", bearer(testSecret))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, body["error"])
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestTrigger_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"conflict", &content.ConflictError{Slug: "2026-02-09"}, http.StatusConflict},
		{"synthesis", fmt.Errorf("%w: %w", content.ErrSynthesis, errors.New("upstream 503")), http.StatusBadGateway},
		{"malformed", fmt.Errorf("%w: no JSON object", content.ErrMalformedOutput), http.StatusUnprocessableEntity},
		{"persistence", fmt.Errorf("%w: connection reset", content.ErrPersistence), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(&fakeRunner{err: tc.err}, &fakeReader{}, nil)
			rec, body := do(t, srv, http.MethodPost, "/api/cron/weekly-digest", bearer(testSecret))
			assert.Equal(t, tc.status, rec.Code)
			assert.NotEmpty(t, body["error"])
			if tc.status == http.StatusConflict {
				assert.Equal(t, "2026-02-09", body["slug"])
				assert.NotContains(t, body, "detail")
			} else {
				assert.Equal(t, tc.err.Error(), body["detail"])
			}
		})
	}
}

func TestDigestRoutes(t *testing.T) {
	reader := &fakeReader{digests: map[string]*models.Digest{"2026-02-09": sampleDigest()}}
	srv := newTestServer(successRunner(), reader, nil)

	rec, body := do(t, srv, http.MethodGet, "/api/digests/2026-02-09", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "XRP grinds higher", body["title"])

	rec, body = do(t, srv, http.MethodGet, "/api/digests/2026-01-05", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Digest not found", body["error"])

	rec, body = do(t, srv, http.MethodGet, "/api/digests?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, _ = do(t, srv, http.MethodGet, "/api/digests/2026-02-09/html", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `<article class="xrp-digest">`)
}

func TestDigestRoutes_StoreFailure(t *testing.T) {
	srv := newTestServer(successRunner(), &fakeReader{err: errors.New("down")}, nil)

	for _, target := range []string{"/api/digests/2026-02-09", "/api/digests", "/api/stats"} {
		rec, _ := do(t, srv, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, target)
	}
}

func TestStatsAndHealth(t *testing.T) {
	reader := &fakeReader{digests: map[string]*models.Digest{"2026-02-09": sampleDigest()}}
	srv := newTestServer(successRunner(), reader, nil)

	rec, body := do(t, srv, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["total_digests"])
	assert.Equal(t, "2026-02-09", body["latest_slug"])

	rec, body = do(t, srv, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestGetLimit(t *testing.T) {
	cases := map[string]int{
		"":           12,
		"?limit=5":   5,
		"?limit=0":   12,
		"?limit=-1":  12,
		"?limit=x":   12,
		"?limit=100": 100,
		"?limit=101": 12,
	}
	for query, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/digests"+query, nil)
		assert.Equal(t, want, getLimit(req, 12), query)
	}
}

func TestAdminRoutes(t *testing.T) {
	done := make(chan struct{}, 1)
	runner := successRunner()
	sched, err := scheduler.NewScheduler(runner, "", time.Second)
	require.NoError(t, err)
	require.NoError(t, sched.AddJob("ping", scheduler.DefaultDigestSchedule, func(context.Context) error {
		done <- struct{}{}
		return nil
	}))
	defer sched.Stop()

	srv := newTestServer(runner, &fakeReader{}, sched)

	rec, _ := do(t, srv, http.MethodGet, "/api/admin/jobs", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := do(t, srv, http.MethodGet, "/api/admin/jobs", bearer(testSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["count"])

	rec, _ = do(t, srv, http.MethodPost, "/api/admin/jobs/ping/run", bearer(testSecret))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job was not triggered")
	}

	rec, _ = do(t, srv, http.MethodPost, "/api/admin/jobs/missing/run", bearer(testSecret))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRunJob_BusyJob(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	runner := successRunner()
	sched, err := scheduler.NewScheduler(runner, "", time.Second)
	require.NoError(t, err)
	require.NoError(t, sched.AddJob("slow", scheduler.DefaultDigestSchedule, func(context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	}))
	defer sched.Stop()
	defer close(release)

	srv := newTestServer(runner, &fakeReader{}, sched)

	rec, _ := do(t, srv, http.MethodPost, "/api/admin/jobs/slow/run", bearer(testSecret))
	require.Equal(t, http.StatusAccepted, rec.Code)
	<-started

	rec, body := do(t, srv, http.MethodPost, "/api/admin/jobs/slow/run", bearer(testSecret))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, body["error"], "already running")
}

func TestAdminRoutes_NoScheduler(t *testing.T) {
	srv := newTestServer(successRunner(), &fakeReader{}, nil)
	rec, _ := do(t, srv, http.MethodGet, "/api/admin/jobs", bearer(testSecret))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
