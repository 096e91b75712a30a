package cache_test

import (
	"testing"
	"time"

	"github.com/boddenberg/fintrack-go/internal/domain"
	"github.com/boddenberg/fintrack-go/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[*domain.DebtSummaryResponse](5 * time.Minute)
	defer c.Close()

	summary := &domain.DebtSummaryResponse{Summary: domain.DebtSummary{InstallmentsCount: 2}}
	c.Set("2024-03", summary)

	got, ok := c.Get("2024-03")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if got.Summary.InstallmentsCount != 2 {
		t.Errorf("expected 2 installments, got %d", got.Summary.InstallmentsCount)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	if _, ok := c.Get("2024-01"); ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)
	defer c.Close()

	c.Set("2024-03", "value")
	time.Sleep(100 * time.Millisecond)

	if _, ok := c.Get("2024-03"); ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("2024-03", "value")
	c.Delete("2024-03")

	if _, ok := c.Get("2024-03"); ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestCache_Purge(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("2024-03", "a")
	c.Set("2024-04", "b")
	c.Purge()

	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
}

func TestCache_CloseTwice(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	c.Close()
	c.Close()

	c.Set("k", "v")
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected cache to stay usable after Close")
	}
}
