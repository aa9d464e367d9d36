package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/italolelis/potd_downloader/internal/cycle"
	"github.com/italolelis/potd_downloader/internal/downloader"
	"github.com/italolelis/potd_downloader/internal/logctx"
	"github.com/italolelis/potd_downloader/internal/potd"
	"github.com/italolelis/potd_downloader/internal/storage"
	"github.com/italolelis/potd_downloader/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	result *cycle.Result
	err    error
	calls  int
}

func (m *mockRunner) Run(context.Context) (*cycle.Result, error) {
	m.calls++

	return m.result, m.err
}

type mockRepository struct {
	pictures []storage.PictureRecord
	err      error
	limit    int
}

func (m *mockRepository) GetPictures(_ context.Context, limit int) ([]storage.PictureRecord, error) {
	m.limit = limit

	return m.pictures, m.err
}

func newTestServer(t *testing.T, runner CycleRunner, repo storage.PictureReadRepository, user, pass string) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(NewRouter(nil, NewPicturesHandler(runner, repo, user, pass)))
	t.Cleanup(ts.Close)

	return ts
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, &mockRunner{}, &mockRepository{}, "", "")

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestListPictures(t *testing.T) {
	repo := &mockRepository{pictures: []storage.PictureRecord{
		{ID: 2, FileName: "2024-5-4.jpeg", Status: storage.StatusDownloaded, DownloadedAt: time.Date(2024, 5, 4, 6, 0, 0, 0, time.UTC)},
		{ID: 1, FileName: "2024-5-3.jpeg", Status: storage.StatusArchived, DownloadedAt: time.Date(2024, 5, 3, 6, 0, 0, 0, time.UTC)},
	}}
	ts := newTestServer(t, &mockRunner{}, repo, "", "")

	resp, err := http.Get(ts.URL + "/api/pictures?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, 5, repo.limit)

	var got []storage.PictureRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, "2024-5-4.jpeg", got[0].FileName)
}

func TestListPictures_EmptyIsArray(t *testing.T) {
	ts := newTestServer(t, &mockRunner{}, &mockRepository{}, "", "")

	resp, err := http.Get(ts.URL + "/api/pictures")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got []storage.PictureRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestListPictures_InvalidLimit(t *testing.T) {
	ts := newTestServer(t, &mockRunner{}, &mockRepository{}, "", "")

	resp, err := http.Get(ts.URL + "/api/pictures?limit=abc")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListPictures_StorageError(t *testing.T) {
	ts := newTestServer(t, &mockRunner{}, &mockRepository{err: errors.New("database is locked")}, "", "")

	resp, err := http.Get(ts.URL + "/api/pictures")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestRunCycle(t *testing.T) {
	runner := &mockRunner{result: &cycle.Result{
		ID:      "cycle-1",
		Trigger: cycle.TriggerManual,
		Picture: &downloader.Picture{FileName: "2024-5-3.jpeg"},
	}}
	ts := newTestServer(t, runner, &mockRepository{}, "", "")

	resp, err := http.Post(ts.URL+"/api/cycles", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, runner.calls)

	var got cycle.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "cycle-1", got.ID)
	assert.Equal(t, "2024-5-3.jpeg", got.Picture.FileName)
}

func TestRunCycle_AccessLogCarriesCycle(t *testing.T) {
	runner := &mockRunner{result: &cycle.Result{
		ID:      "cycle-7",
		Trigger: cycle.TriggerManual,
		Picture: &downloader.Picture{FileName: "2024-5-3.jpeg"},
	}}

	var buf bytes.Buffer

	router := NewRouter(nil, NewPicturesHandler(runner, &mockRepository{}, "", ""))

	req := httptest.NewRequest(http.MethodPost, "/api/cycles", nil)
	req = req.WithContext(logctx.WithLogger(req.Context(), slog.New(slog.NewJSONHandler(&buf, nil))))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "http request completed", entry["msg"])
	assert.Equal(t, "/api/cycles", entry["route"])
	assert.Equal(t, "cycle-7", entry["cycle_id"])
	assert.Equal(t, cycle.TriggerManual, entry["trigger"])
	assert.Equal(t, "2024-5-3.jpeg", entry["picture"])
	assert.Equal(t, rec.Header().Get(telemetry.RequestIDHeader), entry["request_id"])
}

func TestRunCycle_AccessLogCarriesErrorCategory(t *testing.T) {
	runner := &mockRunner{err: fmt.Errorf("run: %w", potd.ErrCycleInProgress)}

	var buf bytes.Buffer

	router := NewRouter(nil, NewPicturesHandler(runner, &mockRepository{}, "", ""))

	req := httptest.NewRequest(http.MethodPost, "/api/cycles", nil)
	req = req.WithContext(logctx.WithLogger(req.Context(), slog.New(slog.NewJSONHandler(&buf, nil))))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "cycle_in_progress", entry["cycle_error"])
}

func TestRunCycle_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"in progress", potd.ErrCycleInProgress, http.StatusConflict, "cycle_in_progress"},
		{"request", &potd.RequestError{Operation: "download", URL: "https://example.com", StatusCode: 404}, http.StatusBadGateway, "upstream_request"},
		{"missing field", &potd.MissingFieldError{Endpoint: "https://example.com", Field: "url"}, http.StatusBadGateway, "invalid_metadata"},
		{"filesystem", fmt.Errorf("failed to download picture: %w", &potd.WriteError{Path: "x", Err: errors.New("disk full")}), http.StatusInternalServerError, "filesystem"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &mockRunner{err: tt.err}, &mockRepository{}, "", "")

			resp, err := http.Post(ts.URL+"/api/cycles", "application/json", nil)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.kind, body.Error)
			assert.Equal(t, tt.err.Error(), body.Message)
		})
	}
}

func TestBasicAuth(t *testing.T) {
	ts := newTestServer(t, &mockRunner{}, &mockRepository{}, "admin", "secret")

	resp, err := http.Get(ts.URL + "/api/pictures")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/pictures", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "wrong")

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.SetBasicAuth("admin", "secret")

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// health checks stay public
	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
