// Package extract is the boundary between Tikfetch and the external
// media extraction engine. Engine-specific failures are translated in
// to trouble.Reason values here, and nowhere else.
package extract

import (
	"context"
	"time"

	"github.com/hbomb79/Tikfetch/pkg/logger"
)

var log = logger.Get("Extractor")

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	defaultReferer   = "https://www.tiktok.com/"
)

type (
	// Metadata is the information the engine was able to resolve for
	// a URL without downloading the media itself.
	Metadata struct {
		ID          string  `mapstructure:"id"`
		Ext         string  `mapstructure:"ext"`
		Title       string  `mapstructure:"title"`
		Uploader    string  `mapstructure:"uploader"`
		Duration    float64 `mapstructure:"duration"`
		UploadDate  string  `mapstructure:"upload_date"`
		ViewCount   int64   `mapstructure:"view_count"`
		LikeCount   int64   `mapstructure:"like_count"`
		Description string  `mapstructure:"description"`
		Thumbnail   string  `mapstructure:"thumbnail"`
		Filesize    int64   `mapstructure:"filesize"`
	}

	// Extractor is implemented by anything capable of resolving
	// metadata for, and downloading, a source URL.
	Extractor interface {
		FetchMetadata(ctx context.Context, url string) (*Metadata, error)
		FetchMedia(ctx context.Context, url string, targetPath string) error
	}

	Config struct {
		BinPath           string        `yaml:"bin_path" env:"YTDLP_BIN" env-default:"yt-dlp"`
		Timeout           time.Duration `yaml:"timeout" env:"YTDLP_TIMEOUT" env-default:"2m" validate:"gt=0"`
		Format            string        `yaml:"format" env:"YTDLP_FORMAT" env-default:"best[ext=mp4]/best"`
		UserAgent         string        `yaml:"user_agent" env:"YTDLP_USER_AGENT"`
		Referer           string        `yaml:"referer" env:"YTDLP_REFERER"`
		MetadataCacheSize int           `yaml:"metadata_cache_size" env:"METADATA_CACHE_SIZE" env-default:"128" validate:"gte=0"`
		MetadataCacheTTL  time.Duration `yaml:"metadata_cache_ttl" env:"METADATA_CACHE_TTL" env-default:"5m" validate:"gte=0"`
	}
)

// applyDefaults fills in zero values which the config loader would
// normally populate, so that a hand-built Config is usable.
func (config *Config) applyDefaults() {
	if config.BinPath == "" {
		config.BinPath = "yt-dlp"
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	if config.Format == "" {
		config.Format = "best[ext=mp4]/best"
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if config.Referer == "" {
		config.Referer = defaultReferer
	}
}
