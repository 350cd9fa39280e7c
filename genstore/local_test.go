package genstore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLocalSnapshotManyIncludesAllAndZeroForMissing(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	keys := []string{"store-v1", "store-v2", "store-v3"}
	// store-v2 deleted twice
	for i := 0; i < 2; i++ {
		if _, err := s.Bump(ctx, "store-v2"); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.SnapshotMany(ctx, keys)
	if err != nil {
		t.Fatal(err)
	}
	if got["store-v1"] != 0 || got["store-v2"] != 2 || got["store-v3"] != 0 {
		t.Fatalf("got=%v want v1=0,v2=2,v3=0", got)
	}
}

func TestLocalBumpReturnsNewGeneration(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	g1, _ := s.Bump(ctx, "k")
	g2, _ := s.Bump(ctx, "k")
	if g1 != 1 || g2 != 2 {
		t.Fatalf("bump sequence = %d,%d; want 1,2", g1, g2)
	}
	if snap, _ := s.Snapshot(ctx, "k"); snap != 2 {
		t.Fatalf("snapshot = %d, want 2", snap)
	}
}

func TestLocalCleanupPrunesOld(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, time.Second)
	t.Cleanup(func() { _ = s.Close(ctx) })

	if _, err := s.Bump(ctx, "old"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(1200 * time.Millisecond)
	s.Cleanup(time.Second)

	g, err := s.Snapshot(ctx, "old")
	if err != nil {
		t.Fatal(err)
	}
	if g != 0 {
		t.Fatalf("expected pruned -> 0, got %d", g)
	}
}

func TestLocalRetentionExpiresUntouchedCounters(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 50*time.Millisecond)
	t.Cleanup(func() { _ = s.Close(ctx) })

	if _, err := s.Bump(ctx, "ranksewa-v1"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(80 * time.Millisecond)
	if g, _ := s.Snapshot(ctx, "ranksewa-v1"); g != 0 {
		t.Fatalf("expired counter should read 0, got %d", g)
	}
	if g, _ := s.Bump(ctx, "ranksewa-v1"); g != 1 {
		t.Fatalf("bump after expiry = %d, want 1", g)
	}
}

func TestLocalConcurrentBumps(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Bump(ctx, "ranksewa-static-v3")
		}()
	}
	wg.Wait()
	if g, _ := s.Snapshot(ctx, "ranksewa-static-v3"); g != 50 {
		t.Fatalf("gen=%d after 50 bumps", g)
	}
}

func TestLocalRestoreOnlyRaises(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	if raised, _ := s.Restore(ctx, "ranksewa-v1", 3); !raised {
		t.Fatal("restore from 0 to 3 should raise")
	}
	if g, _ := s.Snapshot(ctx, "ranksewa-v1"); g != 3 {
		t.Fatalf("gen=%d after restore, want 3", g)
	}
	if raised, _ := s.Restore(ctx, "ranksewa-v1", 2); raised {
		t.Fatal("restore must not lower a counter")
	}
	if g, _ := s.Bump(ctx, "ranksewa-v1"); g != 4 {
		t.Fatalf("bump after restore = %d, want 4", g)
	}
}

func TestLocalCloseIsIdempotent(t *testing.T) {
	s := NewLocalGenStore(10*time.Millisecond, time.Minute)
	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}
