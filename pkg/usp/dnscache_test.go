package usp

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestDNSCacheCachesWithinTTL(t *testing.T) {
	var calls int32
	c := NewDNSCache(time.Hour)
	c.resolver = func(ctx context.Context, host string) ([]string, error) {
		atomic.AddInt32(&calls, 1)
		return []string{"10.0.0.1"}, nil
	}

	for i := 0; i < 5; i++ {
		addrs, err := c.Lookup(context.Background(), "example.test")
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if len(addrs) != 1 || addrs[0] != "10.0.0.1" {
			t.Fatalf("Lookup() = %v, want [10.0.0.1]", addrs)
		}
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("resolver called %d times, want 1", got)
	}
}

func TestDNSCacheExpiresAfterTTL(t *testing.T) {
	var calls int32
	c := NewDNSCache(10 * time.Millisecond)
	c.resolver = func(ctx context.Context, host string) ([]string, error) {
		atomic.AddInt32(&calls, 1)
		return []string{"10.0.0.1"}, nil
	}

	if _, err := c.Lookup(context.Background(), "example.test"); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, err := c.Lookup(context.Background(), "example.test"); err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("resolver called %d times, want 2 (expiry should force a second lookup)", got)
	}
}

func TestDNSCacheCollapsesConcurrentLookups(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	c := NewDNSCache(time.Hour)
	c.resolver = func(ctx context.Context, host string) ([]string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []string{"10.0.0.1"}, nil
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			c.Lookup(context.Background(), "example.test")
			done <- struct{}{}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	for i := 0; i < 10; i++ {
		<-done
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("resolver called %d times, want 1 (singleflight should collapse concurrent lookups)", got)
	}
}
