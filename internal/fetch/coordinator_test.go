package fetch_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/hbomb79/Tikfetch/internal/extract"
	"github.com/hbomb79/Tikfetch/internal/fetch"
	"github.com/hbomb79/Tikfetch/internal/fetch/mocks"
	"github.com/hbomb79/Tikfetch/internal/metrics"
	"github.com/hbomb79/Tikfetch/internal/store"
	"github.com/hbomb79/Tikfetch/internal/trouble"
	"github.com/hbomb79/Tikfetch/pkg/logger"
	"github.com/hbomb79/Tikfetch/tests/helpers"
	"github.com/labstack/gommon/random"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	videoID  = "1234567890123456789"
	videoURL = "https://www.tiktok.com/@user/video/" + videoID
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

func newStore(t *testing.T) *store.Store {
	s, err := store.New(store.Config{Dir: t.TempDir(), Prefix: "tiktok_"})
	require.NoError(t, err)

	return s
}

// writeMedia returns a FetchMedia implementation which writes the
// content given to the target path.
func writeMedia(content string) func(context.Context, string, string) error {
	return func(_ context.Context, _ string, path string) error {
		return os.WriteFile(path, []byte(content), 0o644)
	}
}

func Test_Fetch_DownloadsAndNamesFile(t *testing.T) {
	s := newStore(t)
	ex := mocks.NewMockExtractor(t)
	ex.EXPECT().FetchMetadata(mock.Anything, videoURL).
		Return(&extract.Metadata{ID: videoID, Ext: "mp4", Title: "A dance", Uploader: "user", Duration: 15}, nil).Once()
	ex.EXPECT().FetchMedia(mock.Anything, videoURL, s.PathFor(store.Key(videoID+".mp4"))).
		RunAndReturn(writeMedia("video-bytes")).Once()

	result, err := fetch.NewCoordinator(ex, s, nil).Fetch(context.Background(), videoURL)
	require.NoError(t, err)

	assert.Equal(t, "tiktok_"+videoID+".mp4", result.Filename)
	assert.Equal(t, s.PathFor(result.Key), result.Path)
	assert.EqualValues(t, len("video-bytes"), result.SizeBytes)
	assert.Equal(t, "A dance", result.Title)
	assert.Equal(t, "user", result.Uploader)
	assert.False(t, result.CacheHit)
	assert.FileExists(t, result.Path)
}

func Test_Fetch_InvalidURLMakesNoEngineCall(t *testing.T) {
	ex := mocks.NewMockExtractor(t)

	result, err := fetch.NewCoordinator(ex, newStore(t), nil).Fetch(context.Background(), "https://example.com/video/1")
	assert.Nil(t, result)
	assert.Equal(t, trouble.InvalidURL, trouble.ReasonOf(err))
	ex.AssertNotCalled(t, "FetchMetadata", mock.Anything, mock.Anything)
}

func Test_Fetch_MetadataFailureCarriesReason(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	ex.EXPECT().FetchMetadata(mock.Anything, videoURL).
		Return(nil, trouble.New(trouble.PrivateVideo, errors.New("ERROR: [TikTok] 1: Private video"))).Once()

	_, err := fetch.NewCoordinator(ex, newStore(t), nil).Fetch(context.Background(), videoURL)
	assert.Equal(t, trouble.PrivateVideo, trouble.ReasonOf(err))
}

func Test_Fetch_UnclassifiedMetadataFailureIsUnknown(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	ex.EXPECT().FetchMetadata(mock.Anything, videoURL).Return(nil, errors.New("boom")).Once()

	_, err := fetch.NewCoordinator(ex, newStore(t), nil).Fetch(context.Background(), videoURL)
	assert.Equal(t, trouble.Unknown, trouble.ReasonOf(err))
}

func Test_Fetch_DownloadReportsSuccessButNoFile(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	ex.EXPECT().FetchMetadata(mock.Anything, videoURL).Return(&extract.Metadata{ID: videoID, Ext: "mp4"}, nil).Once()
	ex.EXPECT().FetchMedia(mock.Anything, videoURL, mock.Anything).Return(nil).Once()

	_, err := fetch.NewCoordinator(ex, newStore(t), nil).Fetch(context.Background(), videoURL)
	assert.Equal(t, trouble.FileNotCreated, trouble.ReasonOf(err))
}

func Test_Fetch_DownloadFailureCarriesReason(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	ex.EXPECT().FetchMetadata(mock.Anything, videoURL).Return(&extract.Metadata{ID: videoID, Ext: "mp4"}, nil).Once()
	ex.EXPECT().FetchMedia(mock.Anything, videoURL, mock.Anything).
		Return(trouble.New(trouble.AccessDenied, errors.New("HTTP Error 403"))).Once()

	s := newStore(t)
	_, err := fetch.NewCoordinator(ex, s, nil).Fetch(context.Background(), videoURL)
	assert.Equal(t, trouble.AccessDenied, trouble.ReasonOf(err))
	assert.NoFileExists(t, s.PathFor(store.Key(videoID+".mp4")))
}

func Test_Fetch_UnsafeMetadataIsRejected(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	ex.EXPECT().FetchMetadata(mock.Anything, videoURL).Return(&extract.Metadata{ID: "../../etc/passwd", Ext: "mp4"}, nil).Once()

	_, err := fetch.NewCoordinator(ex, newStore(t), nil).Fetch(context.Background(), videoURL)
	assert.Equal(t, trouble.MetadataExtractionFailed, trouble.ReasonOf(err))
}

func Test_Fetch_CacheHitSkipsDownload(t *testing.T) {
	s := newStore(t)
	helpers.WriteFile(t, s.Dir(), "tiktok_"+videoID+".mp4", []byte("already-here"))

	ex := mocks.NewMockExtractor(t)
	ex.EXPECT().FetchMetadata(mock.Anything, videoURL).Return(&extract.Metadata{ID: videoID, Ext: "mp4"}, nil).Once()

	result, err := fetch.NewCoordinator(ex, s, nil).Fetch(context.Background(), videoURL)
	require.NoError(t, err)
	assert.True(t, result.CacheHit)
	ex.AssertNotCalled(t, "FetchMedia", mock.Anything, mock.Anything, mock.Anything)
}

func Test_Fetch_EmptyCachedFileIsDownloadedAgain(t *testing.T) {
	s := newStore(t)
	helpers.WriteFile(t, s.Dir(), "tiktok_"+videoID+".mp4", nil)

	ex := mocks.NewMockExtractor(t)
	ex.EXPECT().FetchMetadata(mock.Anything, videoURL).Return(&extract.Metadata{ID: videoID, Ext: "mp4"}, nil).Once()
	ex.EXPECT().FetchMedia(mock.Anything, videoURL, mock.Anything).RunAndReturn(writeMedia("fresh")).Once()

	result, err := fetch.NewCoordinator(ex, s, nil).Fetch(context.Background(), videoURL)
	require.NoError(t, err)
	assert.False(t, result.CacheHit)
	assert.EqualValues(t, len("fresh"), result.SizeBytes)
}

func Test_Fetch_EmptyDownloadIsNotDelivered(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	ex.EXPECT().FetchMetadata(mock.Anything, videoURL).Return(&extract.Metadata{ID: videoID, Ext: "mp4"}, nil).Once()
	ex.EXPECT().FetchMedia(mock.Anything, videoURL, mock.Anything).RunAndReturn(writeMedia("")).Once()

	_, err := fetch.NewCoordinator(ex, newStore(t), nil).Fetch(context.Background(), videoURL)
	assert.Equal(t, trouble.FileNotCreated, trouble.ReasonOf(err))
}

func Test_Fetch_EvictedFileIsDownloadedAgain(t *testing.T) {
	s := newStore(t)
	ex := mocks.NewMockExtractor(t)
	ex.EXPECT().FetchMetadata(mock.Anything, videoURL).Return(&extract.Metadata{ID: videoID, Ext: "mp4"}, nil).Twice()
	ex.EXPECT().FetchMedia(mock.Anything, videoURL, mock.Anything).RunAndReturn(writeMedia("video")).Twice()

	coordinator := fetch.NewCoordinator(ex, s, nil)
	first, err := coordinator.Fetch(context.Background(), videoURL)
	require.NoError(t, err)
	require.NoError(t, s.Delete(first.Key))

	second, err := coordinator.Fetch(context.Background(), videoURL)
	require.NoError(t, err)
	assert.False(t, second.CacheHit)
	assert.FileExists(t, second.Path)
}

func Test_Fetch_ConcurrentCallersShareOneDownload(t *testing.T) {
	const callers = 12
	s := newStore(t)
	ex := mocks.NewMockExtractor(t)
	ex.EXPECT().FetchMetadata(mock.Anything, videoURL).Return(&extract.Metadata{ID: videoID, Ext: "mp4"}, nil).Times(callers)
	ex.EXPECT().FetchMedia(mock.Anything, videoURL, mock.Anything).
		RunAndReturn(func(ctx context.Context, url, path string) error {
			time.Sleep(100 * time.Millisecond)
			return writeMedia("video")(ctx, url, path)
		}).Once()

	coordinator := fetch.NewCoordinator(ex, s, nil)
	wg := sync.WaitGroup{}
	results := make([]*fetch.Result, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = coordinator.Fetch(context.Background(), videoURL)
		}()
	}
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Path, results[i].Path)
	}
}

func Test_Fetch_DownloadSurvivesCallerCancellation(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	ex.EXPECT().FetchMetadata(mock.Anything, videoURL).Return(&extract.Metadata{ID: videoID, Ext: "mp4"}, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	ex.EXPECT().FetchMedia(mock.Anything, videoURL, mock.Anything).
		RunAndReturn(func(downloadCtx context.Context, url, path string) error {
			cancel()
			assert.NoError(t, downloadCtx.Err(), "download must not observe caller cancellation")
			return writeMedia("video")(downloadCtx, url, path)
		}).Once()

	_, err := fetch.NewCoordinator(ex, newStore(t), nil).Fetch(ctx, videoURL)
	assert.NoError(t, err)
}

func Test_Fetch_TrimsSurroundingWhitespace(t *testing.T) {
	ex := mocks.NewMockExtractor(t)
	ex.EXPECT().FetchMetadata(mock.Anything, videoURL).Return(nil, trouble.New(trouble.NotFound, nil)).Once()

	_, err := fetch.NewCoordinator(ex, newStore(t), nil).Fetch(context.Background(), "  "+videoURL+"\n")
	assert.Equal(t, trouble.NotFound, trouble.ReasonOf(err))
}

func Test_Fetch_RecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	observer, err := metrics.New(reg)
	require.NoError(t, err)

	id := random.String(16, random.Numeric)
	url := "https://www.tiktok.com/@user/video/" + id
	ex := mocks.NewMockExtractor(t)
	ex.EXPECT().FetchMetadata(mock.Anything, url).Return(&extract.Metadata{ID: id, Ext: "mp4"}, nil).Once()
	ex.EXPECT().FetchMedia(mock.Anything, url, mock.Anything).RunAndReturn(writeMedia("video")).Once()

	coordinator := fetch.NewCoordinator(ex, newStore(t), observer)
	_, err = coordinator.Fetch(context.Background(), url)
	require.NoError(t, err)
	_, err = coordinator.Fetch(context.Background(), "not a url")
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "tikfetch_fetch_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series for success and one for INVALID_URL")

	count, err = testutil.GatherAndCount(reg, "tikfetch_download_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
