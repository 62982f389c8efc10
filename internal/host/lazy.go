package host

import (
	"context"
	"sync"
)

// LazyWorker defers spawning a worker until the first request needs it.
// Model loads are expensive; a host that only ever synthesizes should
// never pay for a recognition model.
type LazyWorker struct {
	spawn func(context.Context) (*Client, error)

	mu     sync.RWMutex
	client *Client
}

func NewLazyWorker(spawn func(context.Context) (*Client, error)) *LazyWorker {
	return &LazyWorker{spawn: spawn}
}

// Get returns the running worker, spawning it on first use. Concurrent
// callers share a single spawn.
func (l *LazyWorker) Get(ctx context.Context) (*Client, error) {
	l.mu.RLock()
	client := l.client
	l.mu.RUnlock()
	if client != nil {
		return client, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		return l.client, nil
	}
	client, err := l.spawn(ctx)
	if err != nil {
		return nil, err
	}
	l.client = client
	return client, nil
}

// Close shuts down the worker if it was ever spawned.
func (l *LazyWorker) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client == nil {
		return nil
	}
	err := l.client.Close()
	l.client = nil
	return err
}
