package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	t.Parallel()

	t.Run("returns body and sends configured headers", func(t *testing.T) {
		t.Parallel()

		var gotUA, gotCookie, gotCustom string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUA = r.Header.Get("User-Agent")
			gotCookie = r.Header.Get("Cookie")
			gotCustom = r.Header.Get("X-Catalog")
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html><body>Hello</body></html>"))
		}))
		defer server.Close()

		f := New(server.Client(),
			WithUserAgent("prodscrape-test"),
			WithCookie("lang=th"),
			WithHeaders(map[string]string{"X-Catalog": "1"}),
		)
		page, err := f.Fetch(context.Background(), server.URL)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, page.StatusCode)
		assert.Equal(t, "<html><body>Hello</body></html>", string(page.Body))
		assert.False(t, page.Truncated)
		assert.Equal(t, "prodscrape-test", gotUA)
		assert.Equal(t, "lang=th", gotCookie)
		assert.Equal(t, "1", gotCustom)
	})

	t.Run("error status pages are returned as content by default", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("<html><body>Not here</body></html>"))
		}))
		defer server.Close()

		page, err := New(server.Client()).Fetch(context.Background(), server.URL)

		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, page.StatusCode)
		assert.Contains(t, string(page.Body), "Not here")
	})

	t.Run("strict status rejects non-2xx", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		_, err := New(server.Client(), WithStrictStatus(true)).Fetch(context.Background(), server.URL)

		assert.ErrorIs(t, err, ErrUnexpectedStatus)
	})

	t.Run("network failure returns ErrFetch", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		_, err := New(nil).Fetch(context.Background(), url)

		assert.ErrorIs(t, err, ErrFetch)
	})

	t.Run("invalid URL returns ErrFetch", func(t *testing.T) {
		t.Parallel()

		_, err := New(nil).Fetch(context.Background(), "://bad")

		assert.ErrorIs(t, err, ErrFetch)
	})

	t.Run("body is truncated at the size limit", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("0123456789"))
		}))
		defer server.Close()

		page, err := New(server.Client(), WithMaxBodySize(4)).Fetch(context.Background(), server.URL)

		require.NoError(t, err)
		assert.Equal(t, "0123", string(page.Body))
		assert.True(t, page.Truncated)
	})

	t.Run("timeout aborts slow responses", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		_, err := New(server.Client(), WithTimeout(50*time.Millisecond)).Fetch(context.Background(), server.URL)

		assert.ErrorIs(t, err, ErrFetch)
	})

	t.Run("legacy charset is decoded to UTF-8", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
			// "café" in Latin-1
			_, _ = w.Write([]byte{'c', 'a', 'f', 0xe9})
		}))
		defer server.Close()

		page, err := New(server.Client()).Fetch(context.Background(), server.URL)

		require.NoError(t, err)
		assert.Equal(t, "café", string(page.Body))
	})
}
