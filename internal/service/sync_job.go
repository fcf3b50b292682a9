package service

import (
	"context"
	"sync"
	"time"

	"github.com/urlguard/urlguard/internal/logger"
)

type syncJob struct {
	syncService SyncService
	log         *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSyncJob creates a syncJob that calls syncService.SyncOnce on a ticker.
// The job is idle until Start is called.
func NewSyncJob(syncService SyncService, log *logger.Logger) SyncJob {
	return &syncJob{syncService: syncService, log: log}
}

// Start implements SyncJob. It stops any previously running job, then
// launches a background goroutine that runs one cycle immediately and then
// every interval. If interval is zero or negative it defaults to 30 minutes.
// The goroutine exits when ctx is cancelled or Stop is called.
func (j *syncJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	j.Stop()

	j.mu.Lock()
	jobCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.wg.Add(1)
	j.mu.Unlock()

	go func() {
		defer j.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()

		j.runOnce(jobCtx)
		for {
			select {
			case <-jobCtx.Done():
				return
			case <-t.C:
				j.runOnce(jobCtx)
			}
		}
	}()
}

func (j *syncJob) runOnce(ctx context.Context) {
	if err := j.syncService.SyncOnce(ctx); err != nil {
		j.log.Error().Err(err).Msg("sync cycle finished with errors")
	}
}

// Stop implements SyncJob. It cancels the background goroutine's context and
// blocks until the goroutine has fully exited. Safe to call when the job is
// not running (no-op in that case).
func (j *syncJob) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.cancel = nil
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	j.wg.Wait()
}
