package sweeper_test

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hbomb79/Tikfetch/internal/store"
	"github.com/hbomb79/Tikfetch/internal/sweeper"
	"github.com/hbomb79/Tikfetch/pkg/logger"
	"github.com/hbomb79/Tikfetch/tests/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

// flakyStore panics on the first scan, and then fails to delete
// the first key it's asked to delete.
type flakyStore struct {
	scans   atomic.Int32
	deletes atomic.Int32
}

func (s *flakyStore) ScanOlderThan(time.Duration) iter.Seq2[store.StoredFile, error] {
	return func(yield func(store.StoredFile, error) bool) {
		if s.scans.Add(1) == 1 {
			panic("test: scan exploded")
		}

		for _, id := range []string{"1", "2"} {
			if !yield(store.StoredFile{Key: store.Key(id + ".mp4")}, nil) {
				return
			}
		}
	}
}

func (s *flakyStore) Delete(store.Key) error {
	if s.deletes.Add(1) == 1 {
		return errors.New("test: permission denied")
	}
	return nil
}

func (s *flakyStore) RemoveStaleStaging(time.Duration) (int, error) { return 0, nil }

func Test_Sweep_EvictsOnlyExpiredFiles(t *testing.T) {
	s, err := store.New(store.Config{Dir: t.TempDir(), Prefix: "tiktok_"})
	require.NoError(t, err)

	old := helpers.WriteFile(t, s.Dir(), "tiktok_1.mp4", []byte("old"))
	fresh := helpers.WriteFile(t, s.Dir(), "tiktok_2.mp4", []byte("fresh"))
	foreign := helpers.WriteFile(t, s.Dir(), "unrelated.mp4", []byte("foreign"))
	helpers.Backdate(t, old, 2*time.Hour)
	helpers.Backdate(t, foreign, 2*time.Hour)

	sw := sweeper.New(sweeper.Config{Interval: time.Hour, MaxAge: time.Hour}, s, nil)
	assert.Equal(t, 1, sw.Sweep())

	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, foreign)
}

func Test_Sweep_RemovesAbandonedStagingDirs(t *testing.T) {
	s, err := store.New(store.Config{Dir: t.TempDir(), Prefix: "tiktok_"})
	require.NoError(t, err)

	dead := filepath.Join(s.Dir(), store.StagingPrefix+"dead")
	live := filepath.Join(s.Dir(), store.StagingPrefix+"live")
	require.NoError(t, os.Mkdir(dead, 0o755))
	require.NoError(t, os.Mkdir(live, 0o755))
	part := helpers.WriteFile(t, dead, "media.mp4.part", []byte("partial"))
	helpers.WriteFile(t, live, "media.mp4.part", []byte("partial"))
	helpers.Backdate(t, part, 2*time.Hour)
	helpers.Backdate(t, dead, 2*time.Hour)

	sw := sweeper.New(sweeper.Config{Interval: time.Hour, MaxAge: time.Hour}, s, nil)
	assert.Equal(t, 0, sw.Sweep(), "staging directories are not counted as evictions")

	assert.NoDirExists(t, dead)
	assert.DirExists(t, live)
}

func Test_Sweep_FailuresAreIsolated(t *testing.T) {
	fs := &flakyStore{}
	sw := sweeper.New(sweeper.Config{Interval: time.Hour, MaxAge: time.Hour}, fs, nil)

	assert.NotPanics(t, func() { assert.Equal(t, 0, sw.Sweep()) }, "panicking cycle must be recovered")
	assert.Equal(t, 1, sw.Sweep(), "a failed delete must not stop the remaining evictions")
	assert.Equal(t, 2, sw.Sweep())
}

func Test_Run_SweepsImmediatelyAndOnInterval(t *testing.T) {
	fs := &flakyStore{}
	sw := sweeper.New(sweeper.Config{Interval: 20 * time.Millisecond, MaxAge: time.Hour}, fs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, sw.Run(ctx))
	}()

	assert.Eventually(t, func() bool { return fs.scans.Load() >= 3 }, 2*time.Second, 10*time.Millisecond,
		"sweeper should continue running after a panicking cycle")

	cancel()
	wg.Wait()
}
