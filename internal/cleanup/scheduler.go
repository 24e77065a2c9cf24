package cleanup

import (
	"sync"
	"time"

	"github.com/hbomb79/Tikfetch/internal/metrics"
	"github.com/hbomb79/Tikfetch/internal/store"
	"github.com/hbomb79/Tikfetch/pkg/logger"
	tsync "github.com/hbomb79/Tikfetch/pkg/sync"
)

var log = logger.Get("Cleanup")

type (
	Config struct {
		Delay time.Duration `yaml:"delay" env:"CLEANUP_DELAY" env-default:"5s" validate:"gte=0"`
	}

	Deleter interface {
		Delete(key store.Key) error
	}

	pending struct {
		timer *time.Timer
	}

	// Scheduler deletes stored files a short while after they've been
	// delivered. Each key has at most one pending deletion; scheduling
	// a key again replaces (and restarts) its timer.
	Scheduler struct {
		delay   time.Duration
		store   Deleter
		metrics *metrics.Observer

		timers tsync.TypedSyncMap[store.Key, *pending]
		wg     sync.WaitGroup
		mu     sync.Mutex
		closed bool
	}
)

func New(config Config, deleter Deleter, observer *metrics.Observer) *Scheduler {
	return &Scheduler{delay: config.Delay, store: deleter, metrics: observer}
}

// Schedule arranges for the key to be deleted once the configured delay
// has elapsed. Once the scheduler has been drained, the deletion is
// performed immediately instead.
func (scheduler *Scheduler) Schedule(key store.Key) {
	scheduler.mu.Lock()
	if scheduler.closed {
		scheduler.mu.Unlock()
		scheduler.delete(key)
		return
	}
	defer scheduler.mu.Unlock()

	p := &pending{}
	if prev, ok := scheduler.timers.Swap(key, p); ok && prev.timer.Stop() {
		scheduler.wg.Done()
		log.Emit(logger.VERBOSE, "Rescheduled cleanup of %s\n", key)
	}

	scheduler.wg.Add(1)
	p.timer = time.AfterFunc(scheduler.delay, func() {
		defer scheduler.wg.Done()
		if scheduler.timers.CompareAndDelete(key, p) {
			scheduler.delete(key)
		}
	})
}

// Pending returns the number of deletions waiting on their timer.
func (scheduler *Scheduler) Pending() int {
	count := 0
	scheduler.timers.Range(func(store.Key, *pending) bool {
		count++
		return true
	})

	return count
}

// Drain stops every pending timer and performs the deletions they were
// waiting on immediately, then waits for any deletion which was already
// in progress. Calls to Schedule after Drain delete synchronously.
func (scheduler *Scheduler) Drain() {
	scheduler.mu.Lock()
	if scheduler.closed {
		scheduler.mu.Unlock()
		return
	}
	scheduler.closed = true

	var keys []store.Key
	scheduler.timers.Range(func(key store.Key, p *pending) bool {
		// A timer which cannot be stopped has already fired and will
		// perform (and account for) its own deletion.
		if p.timer.Stop() {
			scheduler.timers.CompareAndDelete(key, p)
			scheduler.wg.Done()
			keys = append(keys, key)
		}
		return true
	})
	scheduler.mu.Unlock()

	if len(keys) > 0 {
		log.Emit(logger.STOP, "Draining %d pending cleanup(s)\n", len(keys))
	}
	for _, key := range keys {
		scheduler.delete(key)
	}

	scheduler.wg.Wait()
}

func (scheduler *Scheduler) delete(key store.Key) {
	if err := scheduler.store.Delete(key); err != nil {
		log.Emit(logger.WARNING, "Cleanup of %s failed: %v\n", key, err)
		return
	}

	scheduler.metrics.RecordCleanup()
}
