package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/hbomb79/Tikfetch/internal/extract"
	"github.com/hbomb79/Tikfetch/internal/metrics"
	"github.com/hbomb79/Tikfetch/internal/store"
	"github.com/hbomb79/Tikfetch/internal/trouble"
	"github.com/hbomb79/Tikfetch/pkg/logger"
)

var log = logger.Get("Fetch")

type (
	// FileStore is the subset of the store which the coordinator
	// requires to materialise and check media files.
	FileStore interface {
		Filename(key store.Key) string
		Locate(key store.Key) (store.StoredFile, bool)
		ClaimOrReuse(key store.Key, producer store.Producer) (store.StoredFile, error)
		Delete(key store.Key) error
	}

	// Result describes a media file which was materialised on disk
	// and is ready to be served.
	Result struct {
		Key       store.Key
		Path      string
		Filename  string
		SizeBytes int64
		Title     string
		Uploader  string
		Duration  float64
		CacheHit  bool
	}

	// Coordinator drives a single fetch request through validation,
	// metadata resolution, deduplicated download and verification.
	Coordinator struct {
		extractor extract.Extractor
		store     FileStore
		metrics   *metrics.Observer
	}
)

func NewCoordinator(extractor extract.Extractor, fileStore FileStore, observer *metrics.Observer) *Coordinator {
	return &Coordinator{extractor: extractor, store: fileStore, metrics: observer}
}

// Fetch resolves the URL to a media file on disk, downloading it only if
// an existing copy is not available. Any error returned is a trouble.Trouble.
//
// The download itself is detached from the cancellation of ctx, as other
// callers may be waiting on the same download. It is still bounded by
// the timeout of the extractor.
func (c *Coordinator) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	result, err := c.fetch(ctx, rawURL)
	if err != nil {
		reason := trouble.ReasonOf(err)
		c.metrics.RecordFetch(reason.String())
		log.Emit(logger.WARNING, "Fetch of %q failed: %v\n", rawURL, err)
		return nil, err
	}

	c.metrics.RecordFetch("success")
	return result, nil
}

func (c *Coordinator) fetch(ctx context.Context, rawURL string) (*Result, error) {
	if !ValidateURL(rawURL) {
		return nil, trouble.Newf(trouble.InvalidURL, "url %q does not match an accepted pattern", rawURL)
	}
	url := normaliseURL(rawURL)

	log.Emit(logger.DEBUG, "Resolving metadata for %s\n", url)
	meta, err := c.extractor.FetchMetadata(ctx, url)
	if err != nil {
		return nil, trouble.From(err)
	}

	key, err := store.NewKey(meta.ID, meta.Ext)
	if err != nil {
		return nil, trouble.New(trouble.MetadataExtractionFailed, err)
	}

	log.Emit(logger.DEBUG, "Looking up %s\n", key)
	cacheHit := false
	if existing, ok := c.store.Locate(key); ok {
		if existing.Complete() {
			cacheHit = true
		} else {
			log.Emit(logger.WARNING, "Found empty file for %s, discarding and downloading again\n", key)
			if err := c.store.Delete(key); err != nil {
				return nil, trouble.From(err)
			}
		}
	}
	c.metrics.RecordCacheLookup(cacheHit)

	if !cacheHit {
		log.Emit(logger.DEBUG, "Downloading %s\n", key)
		if _, err := c.store.ClaimOrReuse(key, c.producer(ctx, url)); err != nil {
			if errors.Is(err, store.ErrNotCreated) {
				return nil, trouble.New(trouble.FileNotCreated, err)
			}
			return nil, trouble.From(err)
		}
	}

	log.Emit(logger.DEBUG, "Verifying %s\n", key)
	file, ok := c.store.Locate(key)
	if !ok || !file.Complete() {
		return nil, trouble.Newf(trouble.FileNotCreated, "file for %s missing or empty after download", key)
	}

	log.Emit(logger.SUCCESS, "Delivered %s (cache hit: %v)\n", key, cacheHit)
	return &Result{
		Key:       key,
		Path:      file.Path,
		Filename:  c.store.Filename(key),
		SizeBytes: file.Size,
		Title:     meta.Title,
		Uploader:  meta.Uploader,
		Duration:  meta.Duration,
		CacheHit:  cacheHit,
	}, nil
}

func (c *Coordinator) producer(ctx context.Context, url string) store.Producer {
	detached := context.WithoutCancel(ctx)
	return func(path string) error {
		started := time.Now()
		defer func() { c.metrics.RecordDownload(time.Since(started)) }()

		return c.extractor.FetchMedia(detached, url, path)
	}
}
