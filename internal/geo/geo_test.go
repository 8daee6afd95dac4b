package geo_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"courtside/internal/geo"
)

func TestSearchDecodesPlaces(t *testing.T) {
	var gotUA, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotQuery = r.URL.Query().Get("q")
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[{"lat":"37.5665","lon":"126.9780","display_name":"Seoul"},{"lat":"x","lon":"1","display_name":"bad"}]`))
	}))
	defer srv.Close()

	c := geo.NewClient(srv.URL, 100)
	places, err := c.Search(context.Background(), "Seoul gym")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotUA != geo.DefaultUserAgent || gotQuery != "Seoul gym" {
		t.Fatalf("unexpected request ua=%q q=%q", gotUA, gotQuery)
	}
	if len(places) != 1 || places[0].Address != "Seoul" || places[0].Lat != 37.5665 {
		t.Fatalf("unexpected places: %+v", places)
	}
}

func TestSearchBlankQuerySkipsNetwork(t *testing.T) {
	c := geo.NewClient("http://127.0.0.1:1", 100)
	places, err := c.Search(context.Background(), "   ")
	if err != nil || places != nil {
		t.Fatalf("expected no call, got %v %v", places, err)
	}
}

func TestReverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("lat") == "0" {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_, _ = w.Write([]byte(`{"lat":"1","lon":"2","display_name":"Court 3"}`))
	}))
	defer srv.Close()

	c := geo.NewClient(srv.URL, 100)
	p, err := c.Reverse(context.Background(), 1.5, 2.5)
	if err != nil || p.Address != "Court 3" || p.Lat != 1.5 {
		t.Fatalf("reverse: %+v err=%v", p, err)
	}
	if _, err := c.Reverse(context.Background(), 0, 0); err == nil {
		t.Fatalf("expected error for empty address")
	}
	if got := geo.CoordLabel(1.5, 2.25); got != "1.500000, 2.250000" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestDebouncerRunsOnlyLast(t *testing.T) {
	d := geo.NewDebouncer(50 * time.Millisecond)
	ctx := context.Background()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		ran   []string
		super int
	)
	for i, q := range []string{"s", "se", "seo"} {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			_, err := geo.Do(ctx, d, "session-1", func(context.Context) (string, error) {
				mu.Lock()
				ran = append(ran, q)
				mu.Unlock()
				return q, nil
			})
			if errors.Is(err, geo.ErrSuperseded) {
				mu.Lock()
				super++
				mu.Unlock()
			}
		}(q)
		if i < 2 {
			time.Sleep(10 * time.Millisecond)
		}
	}
	wg.Wait()

	if len(ran) != 1 || ran[0] != "seo" || super != 2 {
		t.Fatalf("expected only the last query to run, ran=%v superseded=%d", ran, super)
	}
}

func TestDebouncerKeysAreIndependent(t *testing.T) {
	d := geo.NewDebouncer(10 * time.Millisecond)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			_, errs[i] = geo.Do(context.Background(), d, key, func(context.Context) (int, error) { return i, nil })
		}(i, key)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("key %d: %v", i, err)
		}
	}
}
