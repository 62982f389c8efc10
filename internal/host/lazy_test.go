package host

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
)

func TestLazyWorkerSpawnsOnce(t *testing.T) {
	var spawns atomic.Int32
	lw := NewLazyWorker(func(ctx context.Context) (*Client, error) {
		spawns.Add(1)
		_, w := io.Pipe()
		r, _ := io.Pipe()
		return newClient(w, r, newLogger()), nil
	})
	t.Cleanup(func() { _ = lw.Close() })

	var wg sync.WaitGroup
	clients := make([]*Client, 8)
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := lw.Get(context.Background())
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			clients[i] = c
		}(i)
	}
	wg.Wait()

	if got := spawns.Load(); got != 1 {
		t.Fatalf("spawned %d times, want 1", got)
	}
	for i := 1; i < len(clients); i++ {
		if clients[i] != clients[0] {
			t.Fatal("callers received different clients")
		}
	}
}

func TestLazyWorkerRetriesAfterFailure(t *testing.T) {
	attempts := 0
	lw := NewLazyWorker(func(ctx context.Context) (*Client, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("model load failed")
		}
		_, w := io.Pipe()
		r, _ := io.Pipe()
		return newClient(w, r, newLogger()), nil
	})
	t.Cleanup(func() { _ = lw.Close() })

	if _, err := lw.Get(context.Background()); err == nil {
		t.Fatal("expected first spawn to fail")
	}
	if _, err := lw.Get(context.Background()); err != nil {
		t.Fatalf("second spawn: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}
