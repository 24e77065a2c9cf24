package store

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hbomb79/Tikfetch/pkg/logger"
	"golang.org/x/sync/singleflight"
)

var log = logger.Get("FileStore")

// StagingPrefix names the scratch directories producers create inside
// the store directory while content is being materialised.
const StagingPrefix = ".staging-"

var ErrNotCreated = errors.New("producer reported success but no file exists at the target path")

type (
	Config struct {
		Dir    string `yaml:"dir" env:"TEMP_DIR"`
		Prefix string `yaml:"prefix" env:"STORE_PREFIX" env-default:"tiktok_"`
	}

	// StoredFile is a materialised piece of content on disk.
	StoredFile struct {
		Key       Key
		Path      string
		CreatedAt time.Time
		Size      int64
	}

	// Producer is responsible for placing the content for a key
	// at the path provided. It must not leave a partial file behind
	// at the path if it fails.
	Producer func(path string) error

	// Store maps content keys on to files inside of a single
	// shared directory. Concurrent claims for the same key are
	// collapsed so that only one producer runs, while claims for
	// different keys proceed independently.
	Store struct {
		dir    string
		prefix string
		flight singleflight.Group
	}
)

// New creates a Store rooted at the directory specified by the config,
// creating it if it's missing. An empty Dir defaults to the OS temp directory.
func New(config Config) (*Store, error) {
	dir := config.Dir
	if dir == "" {
		dir = os.TempDir()
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store directory '%s': %w", dir, err)
	}

	if info, err := os.Stat(abs); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("store path '%s' is not a directory", abs)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("store path '%s' could not be created: %w", abs, err)
		}
	} else {
		return nil, fmt.Errorf("store path '%s' could not be accessed: %w", abs, err)
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = "tiktok_"
	}

	return &Store{dir: abs, prefix: prefix}, nil
}

func (store *Store) Dir() string { return store.dir }

// Filename returns the on-disk filename for the key.
func (store *Store) Filename(key Key) string { return store.prefix + string(key) }

// PathFor returns the absolute path a key is (or would be) stored at.
func (store *Store) PathFor(key Key) string {
	return filepath.Join(store.dir, store.Filename(key))
}

// Locate checks whether a file for the key exists.
func (store *Store) Locate(key Key) (StoredFile, bool) {
	path := store.PathFor(key)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return StoredFile{}, false
	}

	return StoredFile{Key: key, Path: path, CreatedAt: info.ModTime(), Size: info.Size()}, true
}

// ClaimOrReuse ensures a file exists for the key, running the producer
// to create it if necessary. At most one producer runs per key at any
// time; concurrent callers for a key wait for that producer and share its
// outcome. If the file already exists once the claim is won, the producer
// is not run at all.
func (store *Store) ClaimOrReuse(key Key, producer Producer) (StoredFile, error) {
	v, err, shared := store.flight.Do(string(key), func() (any, error) {
		if existing, ok := store.Locate(key); ok {
			log.Emit(logger.DEBUG, "Claim for %s satisfied by existing file\n", key)
			return existing, nil
		}

		path := store.PathFor(key)
		if err := runProducer(producer, path); err != nil {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				log.Emit(logger.WARNING, "Failed to remove stray file %s after producer failure: %v\n", path, rmErr)
			}
			return StoredFile{}, err
		}

		created, ok := store.Locate(key)
		if !ok {
			return StoredFile{}, ErrNotCreated
		}

		log.Emit(logger.NEW, "Materialised %s (%d bytes)\n", created.Path, created.Size)
		return created, nil
	})

	if shared {
		log.Emit(logger.VERBOSE, "Claim for %s shared with concurrent caller\n", key)
	}
	if err != nil {
		return StoredFile{}, err
	}

	return v.(StoredFile), nil
}

// Delete removes the file for the key if it exists. Removing a key
// which has no file is not an error.
func (store *Store) Delete(key Key) error {
	path := store.PathFor(key)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Emit(logger.DEBUG, "Delete of %s skipped, file already gone\n", key)
			return nil
		}

		log.Emit(logger.ERROR, "Failed to delete %s: %v\n", path, err)
		return fmt.Errorf("failed to delete stored file %s: %w", key, err)
	}

	log.Emit(logger.REMOVE, "Deleted stored file %s\n", path)
	return nil
}

// ScanOlderThan returns a lazy sequence over the stored files whose
// age exceeds maxAge. Each call to the returned sequence re-reads the
// store directory. Failure to read the directory is yielded as an error
// with a zero StoredFile.
func (store *Store) ScanOlderThan(maxAge time.Duration) iter.Seq2[StoredFile, error] {
	return func(yield func(StoredFile, error) bool) {
		entries, err := os.ReadDir(store.dir)
		if err != nil {
			yield(StoredFile{}, fmt.Errorf("failed to read store directory %s: %w", store.dir, err))
			return
		}

		now := time.Now()
		for _, entry := range entries {
			if !entry.Type().IsRegular() || !strings.HasPrefix(entry.Name(), store.prefix) {
				continue
			}

			key, ok := parseKey(store.prefix, entry.Name())
			if !ok {
				continue
			}

			info, err := entry.Info()
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				if !yield(StoredFile{}, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)) {
					return
				}
				continue
			}

			if now.Sub(info.ModTime()) <= maxAge {
				continue
			}

			file := StoredFile{Key: key, Path: filepath.Join(store.dir, entry.Name()), CreatedAt: info.ModTime(), Size: info.Size()}
			if !yield(file, nil) {
				return
			}
		}
	}
}

// RemoveStaleStaging deletes staging directories which have seen no
// activity for longer than maxAge. These are normally removed by the
// producer that created them, so any which linger were abandoned by a
// process that did not exit cleanly. Returns the number removed.
func (store *Store) RemoveStaleStaging(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(store.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read store directory %s: %w", store.dir, err)
	}

	removed := 0
	var errs []error
	now := time.Now()
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), StagingPrefix) {
			continue
		}

		path := filepath.Join(store.dir, entry.Name())
		lastActive, err := latestModTime(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		if now.Sub(lastActive) <= maxAge {
			continue
		}

		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove staging directory %s: %w", path, err))
			continue
		}

		log.Emit(logger.REMOVE, "Removed abandoned staging directory %s\n", path)
		removed++
	}

	return removed, errors.Join(errs...)
}

// latestModTime returns the most recent modification time of the
// directory or any of its immediate entries. Writes to a file inside
// the directory do not touch the directory's own mtime.
func latestModTime(dir string) (time.Time, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return time.Time{}, err
	}

	latest := info.ModTime()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return time.Time{}, err
	}
	for _, entry := range entries {
		entryInfo, err := entry.Info()
		if err != nil {
			continue
		}
		if entryInfo.ModTime().After(latest) {
			latest = entryInfo.ModTime()
		}
	}

	return latest, nil
}

// Age returns how long ago the file was created.
func (file StoredFile) Age() time.Duration { return time.Since(file.CreatedAt) }

// Complete reports whether the file contains any content.
func (file StoredFile) Complete() bool { return file.Size > 0 }

func runProducer(producer Producer, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("producer panic: %v", r)
		}
	}()

	return producer(path)
}
