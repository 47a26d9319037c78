package acquire

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/sourcecheck/internal/cache"
	"github.com/ppiankov/sourcecheck/internal/model"
)

func testHTTPConfig() model.HTTPConfig {
	cfg := model.DefaultConfig().HTTP
	cfg.Timeout = 5 * time.Second
	return cfg
}

func newTestService() *Service {
	return NewService(cache.NewMemoryCache(cache.NoExpiration, 0), testHTTPConfig())
}

func TestAcquire_CachesContent(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, "<html><body><p>Cached page</p></body></html>")
	}))
	defer server.Close()

	svc := newTestService()
	ctx := context.Background()

	first, err := svc.Acquire(ctx, server.URL)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if first.Content != "Cached page" || first.FromCache {
		t.Errorf("Unexpected first result: %+v", first)
	}

	second, err := svc.Acquire(ctx, server.URL)
	if err != nil {
		t.Fatalf("Second acquire failed: %v", err)
	}
	if !second.FromCache || second.Content != first.Content {
		t.Errorf("Expected cache hit with identical content, got %+v", second)
	}
	if hits.Load() != 1 {
		t.Errorf("Expected 1 network fetch, got %d", hits.Load())
	}
}

func TestAcquire_FinalURLCached(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = fmt.Fprint(w, "<p>Moved content</p>")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	svc := newTestService()
	ctx := context.Background()

	res, err := svc.Acquire(ctx, server.URL+"/old")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if res.FinalURL != server.URL+"/new" {
		t.Errorf("Expected final URL %s/new, got %s", server.URL, res.FinalURL)
	}

	before := hits.Load()
	res, err = svc.Acquire(ctx, server.URL+"/new")
	if err != nil {
		t.Fatalf("Acquire of final URL failed: %v", err)
	}
	if !res.FromCache || res.Content != "Moved content" {
		t.Errorf("Expected final URL served from cache, got %+v", res)
	}
	if hits.Load() != before {
		t.Errorf("Expected no network I/O for final URL, got %d extra", hits.Load()-before)
	}
}

func TestAcquire_FailureNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = fmt.Fprint(w, "<p>Recovered</p>")
	}))
	defer server.Close()

	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Acquire(ctx, server.URL)
	var acqErr *Error
	if !errors.As(err, &acqErr) {
		t.Fatalf("Expected *Error, got %v", err)
	}
	if acqErr.Kind != KindStatus || acqErr.StatusCode != http.StatusNotFound {
		t.Errorf("Unexpected error: %+v", acqErr)
	}
	if acqErr.URL != server.URL {
		t.Errorf("Expected error to name the requested URL, got %s", acqErr.URL)
	}

	fail.Store(false)
	res, err := svc.Acquire(ctx, server.URL)
	if err != nil {
		t.Fatalf("Expected retry after failure to fetch, got %v", err)
	}
	if res.FromCache {
		t.Error("Expected failure to leave no cache entry")
	}
}

func TestAcquire_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "<html><head><script>x()</script></head><body>   </body></html>")
	}))
	defer server.Close()

	_, err := newTestService().Acquire(context.Background(), server.URL)
	var acqErr *Error
	if !errors.As(err, &acqErr) || acqErr.Kind != KindEmpty {
		t.Errorf("Expected KindEmpty, got %v", err)
	}
}

func TestAcquire_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	cfg := testHTTPConfig()
	cfg.Timeout = 100 * time.Millisecond
	svc := NewService(cache.NewMemoryCache(cache.NoExpiration, 0), cfg)

	_, err := svc.Acquire(context.Background(), server.URL)
	var acqErr *Error
	if !errors.As(err, &acqErr) || acqErr.Kind != KindTimeout {
		t.Errorf("Expected KindTimeout, got %v", err)
	}
}

func TestAcquire_InvalidURL(t *testing.T) {
	_, err := newTestService().Acquire(context.Background(), "ftp://example.test/file")
	var acqErr *Error
	if !errors.As(err, &acqErr) || acqErr.Kind != KindInvalidURL {
		t.Errorf("Expected KindInvalidURL, got %v", err)
	}
}

func TestAcquire_UnwrapsRedirector(t *testing.T) {
	var paths []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		_, _ = fmt.Fprint(w, "<p>Real page</p>")
	}))
	defer server.Close()

	wrapped := "https://www.google.com/url?q=" + url.QueryEscape(server.URL+"/page")
	res, err := newTestService().Acquire(context.Background(), wrapped)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if res.Content != "Real page" {
		t.Errorf("Unexpected content %q", res.Content)
	}
	if len(paths) != 1 || paths[0] != "/page" {
		t.Errorf("Expected a single fetch of /page, got %v", paths)
	}
}

func TestAcquire_ConcurrentCollapse(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = fmt.Fprint(w, "<p>Shared</p>")
	}))
	defer server.Close()

	svc := newTestService()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Acquire(context.Background(), server.URL)
			if err == nil && res.Content != "Shared" {
				err = fmt.Errorf("unexpected content %q", res.Content)
			}
			errs <- err
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Acquire failed: %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("Expected identical acquisitions collapsed into 1 fetch, got %d", hits.Load())
	}
}

func TestAcquire_PlainTextBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprint(w, "a <b>literal</b>   text")
	}))
	defer server.Close()

	res, err := newTestService().Acquire(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if res.Content != "a <b>literal</b> text" {
		t.Errorf("Expected plain body kept verbatim, got %q", res.Content)
	}
}

func TestAcquire_NonTextBody(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	}))
	defer server.Close()

	svc := newTestService()
	for i := 0; i < 2; i++ {
		res, err := svc.Acquire(context.Background(), server.URL)
		var acqErr *Error
		if !errors.As(err, &acqErr) || acqErr.Kind != KindNonText {
			t.Fatalf("Expected KindNonText, got %v", err)
		}
		if res.Content != "" {
			t.Errorf("Expected no content, got %q", res.Content)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("Expected nothing cached and 2 requests, got %d", got)
	}
}

func TestIsTextual(t *testing.T) {
	tests := map[string]bool{
		"":                         true,
		"text/html; charset=utf-8": true,
		"text/plain":               true,
		"application/xhtml+xml":    true,
		"application/xml":          true,
		"application/pdf":          false,
		"image/png":                false,
		"application/octet-stream": false,
		"not a media type;;":       false,
	}
	for contentType, want := range tests {
		if got := isTextual(contentType); got != want {
			t.Errorf("isTextual(%q) = %v, want %v", contentType, got, want)
		}
	}
}
