package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Tikfetch/internal/store"
	"github.com/hbomb79/Tikfetch/internal/trouble"
	"github.com/hbomb79/Tikfetch/pkg/logger"
	"github.com/mitchellh/mapstructure"
)

// CommandRunner executes an external command and returns the
// contents of its stdout and stderr.
type CommandRunner func(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, err error)

// requestHeaders is the fixed header profile sent to the target
// platform by the engine, in addition to the user agent and referer.
var requestHeaders = []string{
	"Accept:text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language:en-US,en;q=0.5",
	"Accept-Encoding:gzip, deflate",
	"Connection:keep-alive",
	"Upgrade-Insecure-Requests:1",
}

// Fragments which indicate an incomplete artifact left by the engine
// inside of the staging directory.
var incompleteSuffixes = []string{".part", ".ytdl", ".temp", ".tmp"}

// pipeWaitDelay is how long a cancelled engine process may hold its
// output pipes open before they are forcibly closed.
const pipeWaitDelay = 3 * time.Second

// YtDlp is an Extractor which drives the yt-dlp binary.
type YtDlp struct {
	config Config
	run    CommandRunner
}

// New constructs the default Extractor for the config provided: a
// yt-dlp extractor, wrapped with a metadata cache if one is configured.
func New(config Config) Extractor {
	return NewCachingExtractor(NewYtDlp(config), config.MetadataCacheSize, config.MetadataCacheTTL)
}

func NewYtDlp(config Config) *YtDlp {
	return NewYtDlpWithRunner(config, execRunner)
}

// NewYtDlpWithRunner constructs a YtDlp which uses the runner provided
// to execute the engine, rather than spawning a real process.
func NewYtDlpWithRunner(config Config, runner CommandRunner) *YtDlp {
	config.applyDefaults()
	return &YtDlp{config: config, run: runner}
}

// FetchMetadata asks the engine to resolve the URL without downloading
// any media. No files are written.
func (y *YtDlp) FetchMetadata(ctx context.Context, url string) (*Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, y.config.Timeout)
	defer cancel()

	args := append(y.commonArgs(), "--dump-single-json", "--skip-download", url)
	stdout, stderr, err := y.run(ctx, y.config.BinPath, args...)
	if err != nil {
		t := classify(err, string(stderr))
		log.Emit(logger.ERROR, "Metadata extraction for %s failed: %v\n", url, t)
		return nil, t
	}

	meta, err := decodeMetadata(stdout)
	if err != nil {
		log.Emit(logger.ERROR, "Metadata extraction for %s returned unusable payload: %v\n", url, err)
		return nil, trouble.New(trouble.MetadataExtractionFailed, err)
	}

	log.Emit(logger.DEBUG, "Resolved metadata for %s: id=%s ext=%s title=%q\n", url, meta.ID, meta.Ext, meta.Title)
	return meta, nil
}

// FetchMedia downloads the media for the URL and places it at targetPath.
// The engine writes in to a private staging directory alongside the target,
// and the result is renamed in to place only once the engine succeeds. The
// staging directory is always removed.
func (y *YtDlp) FetchMedia(ctx context.Context, url string, targetPath string) error {
	ctx, cancel := context.WithTimeout(ctx, y.config.Timeout)
	defer cancel()

	stagingDir := filepath.Join(filepath.Dir(targetPath), store.StagingPrefix+uuid.NewString())
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return trouble.Newf(trouble.Unknown, "failed to create staging directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(stagingDir); err != nil {
			log.Emit(logger.WARNING, "Failed to remove staging directory %s: %v\n", stagingDir, err)
		}
	}()

	args := append(y.commonArgs(),
		"-o", filepath.Join(stagingDir, "media.%(ext)s"),
		url,
	)

	log.Emit(logger.NEW, "Downloading %s to %s\n", url, targetPath)
	if _, stderr, err := y.run(ctx, y.config.BinPath, args...); err != nil {
		t := classify(err, string(stderr))
		log.Emit(logger.ERROR, "Download of %s failed: %v\n", url, t)
		return t
	}

	produced, err := findProducedFile(stagingDir)
	if err != nil {
		return trouble.New(trouble.FileNotCreated, err)
	}

	if err := os.Rename(produced, targetPath); err != nil {
		return trouble.Newf(trouble.Unknown, "failed to move downloaded file in to place: %w", err)
	}

	log.Emit(logger.SUCCESS, "Downloaded %s\n", targetPath)
	return nil
}

func (y *YtDlp) commonArgs() []string {
	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--no-progress",
		"-f", y.config.Format,
		"--user-agent", y.config.UserAgent,
		"--referer", y.config.Referer,
	}
	for _, header := range requestHeaders {
		args = append(args, "--add-header", header)
	}

	return args
}

// decodeMetadata decodes the JSON document emitted by the engine. The
// engine is loose with its types (numbers as strings, nulls), so the
// payload is decoded to a map first and then weakly decoded in to Metadata.
func decodeMetadata(payload []byte) (*Metadata, error) {
	var raw map[string]any
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("metadata is not valid JSON: %w", err)
	}
	if raw == nil {
		return nil, errors.New("metadata payload was empty")
	}

	var meta Metadata
	metaDecoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       jsonNumberToInt,
		Result:           &meta,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata decoder: %w", err)
	}
	if err := metaDecoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("metadata malformed: %w", err)
	}

	if strings.TrimSpace(meta.ID) == "" {
		return nil, errors.New("metadata did not contain a video id")
	}
	if meta.Ext == "" {
		meta.Ext = "mp4"
	}
	if meta.Title == "" {
		meta.Title = "TikTok Video"
	}
	if meta.Uploader == "" {
		meta.Uploader = "Unknown"
	}

	return &meta, nil
}

// jsonNumberToInt allows integer fields to be populated from JSON numbers
// which carry a fractional part (e.g. "like_count": 45.0).
func jsonNumberToInt(_ reflect.Type, to reflect.Type, data any) (any, error) {
	number, ok := data.(json.Number)
	if !ok {
		return data, nil
	}

	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if i, err := number.Int64(); err == nil {
			return i, nil
		}
		f, err := number.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %q is not numeric: %w", number, err)
		}
		return int64(f), nil
	default:
		return data, nil
	}
}

// findProducedFile returns the path of the (largest) completed file
// inside of the staging directory.
func findProducedFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read staging directory: %w", err)
	}

	var (
		best     string
		bestSize int64 = -1
	)
	for _, entry := range entries {
		if !entry.Type().IsRegular() || isIncomplete(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			best, bestSize = filepath.Join(dir, entry.Name()), info.Size()
		}
	}

	if best == "" {
		return "", errors.New("engine reported success but produced no file")
	}

	return best, nil
}

func isIncomplete(name string) bool {
	for _, suffix := range incompleteSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}

	return false
}

// execRunner spawns the command in its own process group so that, when
// the context ends, any helpers it started (e.g. ffmpeg) are killed with
// it. WaitDelay bounds how long Run waits on pipes held open by anything
// which survives.
func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = pipeWaitDelay
	configureProcessGroup(cmd)

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w: %v", ctxErr, err)
	}

	return stdout.Bytes(), stderr.Bytes(), err
}
