package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransportRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Echo-Method", r.Method)
		w.Header().Set("X-Echo-Request-Id", r.Header.Get("X-Request-ID"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(PoolConfig{})
	defer tr.Close()

	resp, err := tr.Do(context.Background(), &Request{
		Method: http.MethodPost,
		URL:    srv.URL + "/api/matches",
		Header: http.Header{"X-Request-ID": {"req-1"}},
		Body:   []byte(`{"user":"u1"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.True(t, resp.OK())
	assert.Equal(t, `{"user":"u1"}`, string(resp.Body))
	assert.Equal(t, http.MethodPost, resp.Header.Get("X-Echo-Method"))
	assert.Equal(t, "req-1", resp.Header.Get("X-Echo-Request-Id"))
}

func TestHTTPTransportDefaultsToGet(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
	}))
	defer srv.Close()

	resp, err := NewHTTPTransport(PoolConfig{}).Do(context.Background(), &Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, http.MethodGet, method)
}

func TestHTTPTransportNon2xxIsAResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	resp, err := NewHTTPTransport(PoolConfig{}).Do(context.Background(), &Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.False(t, resp.OK())
}

func TestHTTPTransportConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPTransport(PoolConfig{}).Do(context.Background(), &Request{URL: url})
	assert.Error(t, err)
}

func TestHTTPTransportHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewHTTPTransport(PoolConfig{}).Do(ctx, &Request{URL: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPoolConfigDefaults(t *testing.T) {
	assert.Equal(t, DefaultPoolConfig(), PoolConfig{}.withDefaults())

	custom := PoolConfig{MaxIdleConnsPerHost: 3}.withDefaults()
	assert.Equal(t, 3, custom.MaxIdleConnsPerHost)
	assert.Equal(t, 100, custom.MaxIdleConns)
}

func TestFuncAdapter(t *testing.T) {
	var tr Transport = Func(func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{Status: http.StatusNoContent}, nil
	})

	resp, err := tr.Do(context.Background(), &Request{URL: "http://unused"})
	require.NoError(t, err)
	assert.True(t, resp.OK())
}
