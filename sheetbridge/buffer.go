// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sheetbridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBufferFull is returned by Enqueue when the bounded queue has no room.
// Senders are expected to back off and retry.
var ErrBufferFull = errors.New("buffer_full")

const (
	defaultBufferSize    = 256
	defaultFlushInterval = 5 * time.Second
)

// Buffer is a bounded queue of normalized sync events with a periodic flush
// loop, for batched processing of bursty webhook traffic. The queue owns its
// flush policy; Drain applies everything currently queued synchronously so
// the policy is testable without timers.
type Buffer struct {
	engine   *Engine
	logger   *slog.Logger
	events   chan *SyncEvent
	interval time.Duration

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewBuffer creates a bounded event buffer. Size and interval fall back to
// defaults when non-positive.
func NewBuffer(engine *Engine, size int, interval time.Duration, logger *slog.Logger) *Buffer {
	if size <= 0 {
		size = defaultBufferSize
	}
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Buffer{
		engine:   engine,
		logger:   logger,
		events:   make(chan *SyncEvent, size),
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Enqueue adds an event to the queue without blocking.
func (b *Buffer) Enqueue(event *SyncEvent) error {
	select {
	case b.events <- event:
		return nil
	default:
		return ErrBufferFull
	}
}

// Len returns the number of events currently queued.
func (b *Buffer) Len() int {
	return len(b.events)
}

// Drain applies every event currently queued and returns how many were
// applied. Events that fail to apply are logged and counted into the joined
// error; draining continues past them.
func (b *Buffer) Drain(ctx context.Context) (int, error) {
	applied := 0
	var errs []error
	for {
		select {
		case <-ctx.Done():
			return applied, ctx.Err()
		case event := <-b.events:
			if _, err := b.engine.Apply(ctx, event); err != nil {
				b.logger.Error("Failed to apply buffered event",
					"table", event.TableID, "row_id", event.RowID, "error", err)
				errs = append(errs, err)
				continue
			}
			applied++
		default:
			return applied, errors.Join(errs...)
		}
	}
}

// Start launches the flush loop. It runs until Stop is called or ctx is
// cancelled, with a final drain on the way out.
func (b *Buffer) Start(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				// Queued events were already acknowledged to the caller,
				// so cancellation must not lose them.
				b.finalDrain(ctx)
				return
			case <-b.done:
				b.finalDrain(ctx)
				return
			case <-ticker.C:
				if n, err := b.Drain(ctx); err != nil {
					b.logger.Error("Buffer flush failed", "applied", n, "error", err)
				} else if n > 0 {
					b.logger.Debug("Buffer flushed", "applied", n)
				}
			}
		}
	}()
}

func (b *Buffer) finalDrain(ctx context.Context) {
	if n, err := b.Drain(context.WithoutCancel(ctx)); err != nil {
		b.logger.Error("Final buffer drain failed", "applied", n, "error", err)
	}
}

// Stop shuts down the flush loop and waits for the final drain.
func (b *Buffer) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
	b.wg.Wait()
}
