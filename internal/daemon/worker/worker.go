// Package worker implements the Transfer Worker Pool: a fixed set of
// workers that pull task ids, drive an API Session against the ambient
// credentials, and migrate the task from the active store to the
// completed store.
package worker

import (
	"context"

	"github.com/ecmwf-go/retriever/internal/daemon/store"
)

// Processor runs one task's data to completion (submit, poll, download)
// via an API Session. It reports an error when the transfer fails.
type Processor func(ctx context.Context, taskData map[string]string) error

// Pool is the fixed-size Transfer Worker Pool.
type Pool struct {
	size    int
	stores  *store.Stores
	process Processor
}

func New(size int, stores *store.Stores, process Processor) *Pool {
	return &Pool{size: size, stores: stores, process: process}
}

// Run launches size worker goroutines consuming taskIDs until the
// channel is closed (poison-pill shutdown in the channel idiom), and
// blocks until all of them have exited.
func (p *Pool) Run(ctx context.Context, taskIDs <-chan string) {
	done := make(chan struct{}, p.size)
	for i := 0; i < p.size; i++ {
		go func() {
			p.worker(ctx, taskIDs)
			done <- struct{}{}
		}()
	}
	for i := 0; i < p.size; i++ {
		<-done
	}
}

func (p *Pool) worker(ctx context.Context, taskIDs <-chan string) {
	for taskID := range taskIDs {
		p.processOne(ctx, taskID)
	}
}

func (p *Pool) processOne(ctx context.Context, taskID string) {
	rec, ok := p.stores.SetActive(taskID)
	if !ok {
		return
	}

	final := store.StatusCompleted
	if err := p.process(ctx, rec.TaskData); err != nil {
		final = store.StatusFailed
	}

	p.stores.Migrate(taskID, final)
}
