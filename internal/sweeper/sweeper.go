package sweeper

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/hbomb79/Tikfetch/internal/metrics"
	"github.com/hbomb79/Tikfetch/internal/store"
	"github.com/hbomb79/Tikfetch/pkg/logger"
)

var log = logger.Get("Sweeper")

type (
	Config struct {
		Interval time.Duration `yaml:"interval" env:"SWEEP_INTERVAL" env-default:"1h" validate:"gt=0"`
		MaxAge   time.Duration `yaml:"max_age" env:"SWEEP_MAX_AGE" env-default:"1h" validate:"gt=0"`
	}

	// FileStore is the subset of the store the sweeper requires
	// to find and evict expired files.
	FileStore interface {
		ScanOlderThan(maxAge time.Duration) iter.Seq2[store.StoredFile, error]
		Delete(key store.Key) error
		RemoveStaleStaging(maxAge time.Duration) (int, error)
	}

	// Sweeper periodically evicts stored files which have outlived
	// the configured maximum age.
	Sweeper struct {
		config  Config
		store   FileStore
		metrics *metrics.Observer
	}
)

func New(config Config, fileStore FileStore, observer *metrics.Observer) *Sweeper {
	return &Sweeper{config: config, store: fileStore, metrics: observer}
}

// Run sweeps the store once immediately, and then once every
// interval until the context is cancelled. A failing (or panicking)
// cycle is logged and does not stop the sweeper.
func (sweeper *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(sweeper.config.Interval)
	defer ticker.Stop()

	log.Emit(logger.INFO, "Sweeping files older than %s every %s\n", sweeper.config.MaxAge, sweeper.config.Interval)
	sweeper.Sweep()

	for {
		select {
		case <-ticker.C:
			sweeper.Sweep()
		case <-ctx.Done():
			return nil
		}
	}
}

// Sweep performs a single cycle, returning the number of files evicted.
func (sweeper *Sweeper) Sweep() int {
	evicted, err := sweeper.sweep()
	if err != nil {
		log.Emit(logger.ERROR, "Sweep cycle failed after evicting %d file(s): %v\n", evicted, err)
	} else if evicted > 0 {
		log.Emit(logger.REMOVE, "Sweep evicted %d expired file(s)\n", evicted)
	} else {
		log.Emit(logger.VERBOSE, "Sweep found no expired files\n")
	}

	sweeper.metrics.RecordSweep(evicted, err != nil)
	return evicted
}

func (sweeper *Sweeper) sweep() (evicted int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panic: %v", r)
		}
	}()

	var failures int
	for file, scanErr := range sweeper.store.ScanOlderThan(sweeper.config.MaxAge) {
		if scanErr != nil {
			log.Emit(logger.WARNING, "Sweep scan error: %v\n", scanErr)
			failures++
			continue
		}

		if delErr := sweeper.store.Delete(file.Key); delErr != nil {
			log.Emit(logger.WARNING, "Failed to evict %s: %v\n", file.Path, delErr)
			failures++
			continue
		}

		log.Emit(logger.DEBUG, "Evicted %s (age %s)\n", file.Path, file.Age().Round(time.Second))
		evicted++
	}

	// Staging directories left behind by an interrupted download are
	// not counted as evictions.
	abandoned, stagingErr := sweeper.store.RemoveStaleStaging(sweeper.config.MaxAge)
	if abandoned > 0 {
		log.Emit(logger.DEBUG, "Removed %d abandoned staging director(ies)\n", abandoned)
	}
	if stagingErr != nil {
		log.Emit(logger.WARNING, "Failed to clear staging directories: %v\n", stagingErr)
	}

	if failures > 0 {
		return evicted, fmt.Errorf("%d file(s) could not be swept", failures)
	}
	if stagingErr != nil {
		return evicted, stagingErr
	}

	return evicted, nil
}
