package legacy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGet_Hit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/legacy/data/user:1001", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"key":"user:1001","value":"Dr. Heisenberg"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, nil)
	val, ok := c.Get(context.Background(), "user:1001")
	assert.True(t, ok)
	assert.Equal(t, []byte("Dr. Heisenberg"), val)
}

func TestGet_404IsMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, nil)
	_, ok := c.Get(context.Background(), "missing")
	assert.False(t, ok)
}

func TestGet_NonJSONBodyIsMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, nil)
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestGet_TimeoutIsMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`{"key":"k","value":"v"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Millisecond, nil)
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestGet_ServerErrorIsMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, nil)
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}
