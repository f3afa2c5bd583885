// ABOUTME: Tests for the render cache covering hits, expiry, eviction, sweeping, and concurrent access.
// ABOUTME: A counting fake stands in for graphviz.
package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeDOTRenderer counts invocations and returns fixed output.
type fakeDOTRenderer struct {
	callCount atomic.Int64
	output    []byte
	err       error
}

func (f *fakeDOTRenderer) render(ctx context.Context, dotText string, format string) ([]byte, error) {
	f.callCount.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func TestRenderCacheReturnsCachedResult(t *testing.T) {
	renderer := &fakeDOTRenderer{output: []byte("<svg>routes</svg>")}
	cache := NewRenderCache(renderer.render, 5*time.Minute, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		data, err := cache.RenderDOTSource(ctx, "digraph routes { Source -> n1 }", "svg")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if string(data) != "<svg>routes</svg>" {
			t.Errorf("call %d: got %s", i, data)
		}
	}
	if renderer.callCount.Load() != 1 {
		t.Errorf("expected 1 renderer call, got %d", renderer.callCount.Load())
	}
	hits, misses := cache.Stats()
	if hits != 2 || misses != 1 {
		t.Errorf("stats = %d hits, %d misses; want 2 and 1", hits, misses)
	}
}

func TestRenderCacheKeysOnTextAndFormat(t *testing.T) {
	renderer := &fakeDOTRenderer{output: []byte("out")}
	cache := NewRenderCache(renderer.render, 5*time.Minute, 0)
	ctx := context.Background()

	_, _ = cache.RenderDOTSource(ctx, "digraph a {}", "svg")
	_, _ = cache.RenderDOTSource(ctx, "digraph a {}", "png")
	_, _ = cache.RenderDOTSource(ctx, "digraph b {}", "svg")

	if renderer.callCount.Load() != 3 {
		t.Errorf("expected 3 renderer calls, got %d", renderer.callCount.Load())
	}
	if cache.Len() != 3 {
		t.Errorf("expected 3 entries, got %d", cache.Len())
	}
}

func TestRenderCacheExpiry(t *testing.T) {
	renderer := &fakeDOTRenderer{output: []byte("out")}
	cache := NewRenderCache(renderer.render, 10*time.Millisecond, 0)
	ctx := context.Background()

	_, _ = cache.RenderDOTSource(ctx, "digraph a {}", "svg")
	time.Sleep(20 * time.Millisecond)
	_, _ = cache.RenderDOTSource(ctx, "digraph a {}", "svg")

	if renderer.callCount.Load() != 2 {
		t.Errorf("expected re-render after expiry, got %d calls", renderer.callCount.Load())
	}
}

func TestRenderCacheDoesNotCacheErrors(t *testing.T) {
	renderer := &fakeDOTRenderer{err: errors.New("graphviz exploded")}
	cache := NewRenderCache(renderer.render, 5*time.Minute, 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cache.RenderDOTSource(ctx, "digraph a {}", "svg"); err == nil {
			t.Fatal("expected error")
		}
	}
	if renderer.callCount.Load() != 2 {
		t.Errorf("errors must not be cached, got %d calls", renderer.callCount.Load())
	}
	if cache.Len() != 0 {
		t.Errorf("cache should be empty, has %d", cache.Len())
	}
}

func TestRenderCacheEvictsOldest(t *testing.T) {
	renderer := &fakeDOTRenderer{output: []byte("out")}
	cache := NewRenderCache(renderer.render, 5*time.Minute, 2)
	ctx := context.Background()

	_, _ = cache.RenderDOTSource(ctx, "digraph first {}", "svg")
	time.Sleep(time.Millisecond)
	_, _ = cache.RenderDOTSource(ctx, "digraph second {}", "svg")
	time.Sleep(time.Millisecond)
	_, _ = cache.RenderDOTSource(ctx, "digraph third {}", "svg")

	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}
	_, _ = cache.RenderDOTSource(ctx, "digraph second {}", "svg")
	if renderer.callCount.Load() != 3 {
		t.Errorf("second should still be cached, got %d calls", renderer.callCount.Load())
	}
	_, _ = cache.RenderDOTSource(ctx, "digraph first {}", "svg")
	if renderer.callCount.Load() != 4 {
		t.Errorf("first should have been evicted, got %d calls", renderer.callCount.Load())
	}
}

func TestRenderCacheSweep(t *testing.T) {
	renderer := &fakeDOTRenderer{output: []byte("out")}
	cache := NewRenderCache(renderer.render, 10*time.Millisecond, 0)
	ctx := context.Background()

	_, _ = cache.RenderDOTSource(ctx, "digraph a {}", "svg")
	_, _ = cache.RenderDOTSource(ctx, "digraph b {}", "svg")
	time.Sleep(20 * time.Millisecond)

	if n := cache.Sweep(); n != 2 {
		t.Errorf("Sweep dropped %d, want 2", n)
	}
	if cache.Len() != 0 {
		t.Errorf("cache should be empty after sweep, has %d", cache.Len())
	}
}

func TestRenderCacheConcurrentAccess(t *testing.T) {
	renderer := &fakeDOTRenderer{output: []byte("out")}
	cache := NewRenderCache(renderer.render, 5*time.Minute, 8)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dot := fmt.Sprintf("digraph g%d {}", i%10)
			if _, err := cache.RenderDOTSource(ctx, dot, "svg"); err != nil {
				t.Errorf("goroutine %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if cache.Len() > 8 {
		t.Errorf("cache exceeded its bound: %d entries", cache.Len())
	}
}
