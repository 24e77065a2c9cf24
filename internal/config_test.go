package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hbomb79/Tikfetch/pkg/logger"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_LoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5000", config.RestConfig.HostAddr)
	assert.Equal(t, "tiktok_", config.Store.Prefix)
	assert.Equal(t, "yt-dlp", config.Extractor.BinPath)
	assert.Equal(t, 2*time.Minute, config.Extractor.Timeout)
	assert.Equal(t, "best[ext=mp4]/best", config.Extractor.Format)
	assert.Equal(t, 128, config.Extractor.MetadataCacheSize)
	assert.Equal(t, time.Hour, config.Sweeper.Interval)
	assert.Equal(t, time.Hour, config.Sweeper.MaxAge)
	assert.Equal(t, 5*time.Second, config.Cleanup.Delay)
	assert.Equal(t, logger.INFO.Level(), config.MinLogLevel())
}

func Test_LoadConfig_EnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rest:
  host_address: "127.0.0.1:9000"
store:
  dir: "`+dir+`"
sweeper:
  interval: 10m
  max_age: 30m
log_level: debug
`), 0o644))

	t.Setenv("SWEEP_MAX_AGE", "2h")
	t.Setenv("CLEANUP_DELAY", "1s")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", config.RestConfig.HostAddr)
	assert.Equal(t, dir, config.Store.Dir)
	assert.Equal(t, 10*time.Minute, config.Sweeper.Interval)
	assert.Equal(t, 2*time.Hour, config.Sweeper.MaxAge)
	assert.Equal(t, time.Second, config.Cleanup.Delay)
	assert.Equal(t, logger.DEBUG.Level(), config.MinLogLevel())
}

func Test_LoadConfig_PortOverridesListenPort(t *testing.T) {
	t.Setenv("PORT", "8081")

	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5000", config.RestConfig.HostAddr)
	assert.Equal(t, "0.0.0.0:8081", config.RestConfig.Addr())
}

func Test_LoadConfig_ExpandsHomeDirectory(t *testing.T) {
	t.Setenv("TEMP_DIR", "~/tikfetch")

	config, err := LoadConfig("")
	require.NoError(t, err)

	home, err := homedir.Dir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "tikfetch"), config.Store.Dir)
}

func Test_LoadConfig_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		env   string
		value string
	}{
		{"SWEEP_INTERVAL", "0s"},
		{"YTDLP_TIMEOUT", "-1s"},
		{"API_HOST_ADDR", "not an address"},
		{"LOG_LEVEL", "chatty"},
		{"PORT", "http"},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := LoadConfig("")
			assert.Error(t, err)
		})
	}
}

func Test_LoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
