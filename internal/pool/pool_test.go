package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMapPreservesInputOrder(t *testing.T) {
	// Tasks complete in reverse submission order; results must still line
	// up positionally.
	const n = 8
	items := make([]int, n)
	for i := range items {
		items[i] = i
	}
	out, err := Map(context.Background(), items, n, func(_ context.Context, item, i int) (string, error) {
		time.Sleep(time.Duration(n-i) * 5 * time.Millisecond)
		return fmt.Sprintf("result-%d", item), nil
	})
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}
	for i, s := range out {
		if !s.Ok() {
			t.Fatalf("task %d unexpectedly failed: %v", i, s.Err)
		}
		if want := fmt.Sprintf("result-%d", i); s.Value != want {
			t.Fatalf("slot %d holds %q, want %q", i, s.Value, want)
		}
	}
}

func TestMapIsolatesFailures(t *testing.T) {
	boom := errors.New("boom")
	out, err := Map(context.Background(), []int{0, 1, 2, 3, 4}, 2, func(_ context.Context, item, _ int) (int, error) {
		if item == 2 {
			return 0, boom
		}
		return item * 10, nil
	})
	if err != nil {
		t.Fatalf("map itself must not fail: %v", err)
	}
	for i, s := range out {
		if i == 2 {
			if !errors.Is(s.Err, boom) {
				t.Fatalf("slot 2 should carry the task error, got %v", s.Err)
			}
			continue
		}
		if !s.Ok() || s.Value != i*10 {
			t.Fatalf("sibling %d affected by failure: %+v", i, s)
		}
	}
}

func TestMapHonorsConcurrencyCeiling(t *testing.T) {
	const limit = 3
	var (
		mu       sync.Mutex
		inflight int
		peak     int
	)
	_, err := Map(context.Background(), make([]struct{}, 20), limit, func(_ context.Context, _ struct{}, _ int) (struct{}, error) {
		mu.Lock()
		inflight++
		if inflight > peak {
			peak = inflight
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		inflight--
		mu.Unlock()
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}
	if peak > limit {
		t.Fatalf("observed %d concurrent tasks, limit is %d", peak, limit)
	}
}

func TestMapRejectsInvalidLimit(t *testing.T) {
	if _, err := Map(context.Background(), []int{1}, 0, func(_ context.Context, item, _ int) (int, error) {
		return item, nil
	}); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}

func TestMapEmptyInput(t *testing.T) {
	out, err := Map(context.Background(), nil, 4, func(_ context.Context, item, _ int) (int, error) {
		return item, nil
	})
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty result, got %d entries", len(out))
	}
}

func TestMapCapturesPanics(t *testing.T) {
	out, err := Map(context.Background(), []int{0, 1}, 2, func(_ context.Context, item, _ int) (int, error) {
		if item == 1 {
			panic("bad task")
		}
		return item, nil
	})
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}
	if out[0].Err != nil {
		t.Fatalf("healthy task affected: %v", out[0].Err)
	}
	if out[1].Err == nil {
		t.Fatalf("expected panic to settle as error")
	}
}
