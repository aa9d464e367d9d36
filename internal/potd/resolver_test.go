package potd_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/italolelis/potd_downloader/internal/httpclient"
	"github.com/italolelis/potd_downloader/internal/potd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(t *testing.T, status int, body string) *potd.Resolver {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(ts.Close)

	client := httpclient.New(httpclient.Config{Timeout: time.Second, MaxTries: 1})

	return potd.NewResolver(ts.URL, client)
}

func TestResolvePictureURL(t *testing.T) {
	r := newResolver(t, http.StatusOK, `{"start_date":"20240503","url":"https://example.com/img.png","copyright":"c"}`)

	url, err := r.ResolvePictureURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/img.png", url)
}

func TestResolvePictureURL_ReturnsURLVerbatim(t *testing.T) {
	r := newResolver(t, http.StatusOK, `{"url":"not even a url"}`)

	url, err := r.ResolvePictureURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "not even a url", url)
}

func TestResolvePictureURL_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "missing url field",
			status: http.StatusOK,
			body:   `{}`,
			check: func(t *testing.T, err error) {
				var target *potd.MissingFieldError
				require.True(t, errors.As(err, &target), "expected MissingFieldError, got %T", err)
				assert.Equal(t, "url", target.Field)
			},
		},
		{
			name:   "invalid json",
			status: http.StatusOK,
			body:   `<html>`,
			check: func(t *testing.T, err error) {
				var target *potd.DecodeError
				assert.True(t, errors.As(err, &target), "expected DecodeError, got %T", err)
			},
		},
		{
			name:   "not a map of strings",
			status: http.StatusOK,
			body:   `{"url": 42}`,
			check: func(t *testing.T, err error) {
				var target *potd.DecodeError
				assert.True(t, errors.As(err, &target), "expected DecodeError, got %T", err)
			},
		},
		{
			name:   "json array",
			status: http.StatusOK,
			body:   `["https://example.com/img.png"]`,
			check: func(t *testing.T, err error) {
				var target *potd.DecodeError
				assert.True(t, errors.As(err, &target), "expected DecodeError, got %T", err)
			},
		},
		{
			name:   "null body",
			status: http.StatusOK,
			body:   `null`,
			check: func(t *testing.T, err error) {
				var target *potd.DecodeError
				assert.True(t, errors.As(err, &target), "expected DecodeError, got %T", err)
			},
		},
		{
			name:   "trailing data after object",
			status: http.StatusOK,
			body:   `{"url":"https://example.com/img.png"} trailing`,
			check: func(t *testing.T, err error) {
				var target *potd.DecodeError
				assert.True(t, errors.As(err, &target), "expected DecodeError, got %T", err)
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `oops`,
			check: func(t *testing.T, err error) {
				var target *potd.RequestError
				require.True(t, errors.As(err, &target), "expected RequestError, got %T", err)
				assert.Equal(t, http.StatusInternalServerError, target.StatusCode)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver(t, tt.status, tt.body)

			url, err := r.ResolvePictureURL(context.Background())
			require.Error(t, err)
			assert.Empty(t, url)
			tt.check(t, err)
		})
	}
}

func TestNewResolver_DefaultEndpoint(t *testing.T) {
	r := potd.NewResolver("", httpclient.New(httpclient.Config{}))
	assert.Equal(t, potd.DefaultEndpoint, r.Endpoint())
}
