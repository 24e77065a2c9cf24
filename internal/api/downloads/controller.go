package downloads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Tikfetch/internal/api/pages"
	"github.com/hbomb79/Tikfetch/internal/fetch"
	"github.com/hbomb79/Tikfetch/internal/store"
	"github.com/hbomb79/Tikfetch/internal/trouble"
	"github.com/hbomb79/Tikfetch/pkg/logger"
	"github.com/labstack/echo/v4"
)

const (
	msgMissingURL      = "Please enter a TikTok video URL"
	msgInvalidURL      = "Please enter a valid TikTok video URL"
	msgServeFailed     = "Error serving download file"
	msgUnexpectedError = "An unexpected error occurred. Please try again."

	defaultContentType = "video/mp4"
)

var (
	log = logger.Get("DownloadsController")

	mobileAgents = []string{"android", "iphone", "ipad", "ipod", "blackberry", "windows phone", "mobile", "mobi"}
)

type (
	DownloadRequest struct {
		VideoURL string `form:"video_url" validate:"required,tiktokurl"`
	}

	Fetcher interface {
		Fetch(ctx context.Context, rawURL string) (*fetch.Result, error)
	}

	CleanupScheduler interface {
		Schedule(key store.Key)
	}

	Controller struct {
		fetcher  Fetcher
		cleanup  CleanupScheduler
		validate *validator.Validate
	}
)

func New(validate *validator.Validate, fetcher Fetcher, cleanup CleanupScheduler) *Controller {
	return &Controller{fetcher: fetcher, cleanup: cleanup, validate: validate}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("", controller.download)
}

func (controller *Controller) download(ec echo.Context) error {
	var request DownloadRequest
	if err := ec.Bind(&request); err != nil {
		log.Emit(logger.WARNING, "Failed to bind download request: %v\n", err)
		return pages.RedirectWithFlash(ec, msgUnexpectedError)
	}

	request.VideoURL = strings.TrimSpace(request.VideoURL)
	if err := controller.validate.Struct(request); err != nil {
		return pages.RedirectWithFlash(ec, validationMessage(err))
	}

	result, err := controller.fetcher.Fetch(ec.Request().Context(), request.VideoURL)
	if err != nil {
		if trouble.ReasonOf(err) == trouble.InvalidURL {
			return pages.RedirectWithFlash(ec, msgInvalidURL)
		}
		return pages.RedirectWithFlash(ec, fmt.Sprintf("Download failed: %s", trouble.ReasonOf(err).Message()))
	}

	if err := controller.serve(ec, result); err != nil {
		log.Emit(logger.ERROR, "Failed to serve %s: %v\n", result.Path, err)
		return pages.RedirectWithFlash(ec, msgServeFailed)
	}

	// A rejected range or a conditional hit means the client did not
	// receive the file, so it is left for a retry (or the sweeper).
	if status := ec.Response().Status; status == http.StatusOK || status == http.StatusPartialContent {
		controller.cleanup.Schedule(result.Key)
	} else {
		log.Emit(logger.DEBUG, "Not scheduling cleanup of %s, response status was %d\n", result.Key, status)
	}

	return nil
}

// serve streams the file to the client. Errors are only returned if
// nothing has been written to the response yet.
func (controller *Controller) serve(ec echo.Context, result *fetch.Result) error {
	file, err := os.Open(result.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	contentType, err := detectContentType(file)
	if err != nil {
		return err
	}

	header := ec.Response().Header()
	header.Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, result.Filename))
	header.Set(echo.HeaderContentType, contentType)
	header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	header.Set("Pragma", "no-cache")
	header.Set("Expires", "0")
	if isMobile(ec.Request().UserAgent()) {
		header.Set("Content-Transfer-Encoding", "binary")
		header.Set(echo.HeaderXContentTypeOptions, "nosniff")
		header.Set("Content-Description", "File Transfer")
		header.Set("Accept-Ranges", "bytes")
		header.Set(echo.HeaderContentSecurityPolicy, "default-src 'none'")
	}

	log.Emit(logger.INFO, "Serving %s (%d bytes, %s)\n", result.Filename, info.Size(), contentType)
	http.ServeContent(ec.Response(), ec.Request(), result.Filename, info.ModTime(), file)
	return nil
}

// detectContentType sniffs the media type of the file, falling back to
// mp4 when the content is not recognised as audio or video. The reader
// is rewound before returning.
func detectContentType(file io.ReadSeeker) (string, error) {
	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return "", fmt.Errorf("failed to sniff content type: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind file: %w", err)
	}

	for m := mtype; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "video/") || strings.HasPrefix(m.String(), "audio/") {
			return mtype.String(), nil
		}
	}

	return defaultContentType, nil
}

func isMobile(userAgent string) bool {
	agent := strings.ToLower(userAgent)
	for _, marker := range mobileAgents {
		if strings.Contains(agent, marker) {
			return true
		}
	}

	return false
}

func validationMessage(err error) string {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, fieldErr := range validationErrs {
			if fieldErr.Tag() == "required" {
				return msgMissingURL
			}
		}
	}

	return msgInvalidURL
}
