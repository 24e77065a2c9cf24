package pages

import (
	"fmt"
	html "html/template"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	IndexTemplate = "index"

	flashCookie = "flash"
	flashMaxAge = 60 * time.Second
)

type (
	// IndexPage is the data the index template is rendered with.
	IndexPage struct {
		FormAction string
		Flash      string
	}

	// Renderer implements echo.Renderer over the set of page templates.
	Renderer struct {
		templates map[string]*html.Template
	}
)

var templateIndex = mustHTML(IndexTemplate, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<meta name="viewport" content="width=device-width, initial-scale=1">
	<title>TikTok Video Downloader</title>
</head>
<body>
<main>
	<h1>TikTok Video Downloader</h1>
	{{ if .Flash }}<p id="flash-message" role="alert">{{ .Flash }}</p>{{ end }}
	<form action="{{ .FormAction }}" method="POST">
		<label for="video_url">TikTok video URL</label>
		<input type="url" id="video_url" name="video_url" placeholder="https://www.tiktok.com/@user/video/..." required>
		<input type="submit" value="Download">
	</form>
</main>
</body>
</html>`)

func mustHTML(name, s string) *html.Template {
	return html.Must(html.New(name).Parse(s))
}

func NewRenderer() *Renderer {
	return &Renderer{templates: map[string]*html.Template{IndexTemplate: templateIndex}}
}

func (r *Renderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	tmpl, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("template %q does not exist", name)
	}

	return tmpl.Execute(w, data)
}

// Index renders the index page with the status code and flash message provided.
func Index(ec echo.Context, status int, flash string) error {
	return ec.Render(status, IndexTemplate, IndexPage{FormAction: "/download", Flash: flash})
}

// RedirectWithFlash stores the message in the flash cookie and
// redirects the client back to the index page.
func RedirectWithFlash(ec echo.Context, message string) error {
	ec.SetCookie(&http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(message),
		Path:     "/",
		MaxAge:   int(flashMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return ec.Redirect(http.StatusFound, "/")
}

// PopFlash returns the flash message carried by the request (if any)
// and instructs the client to discard it.
func PopFlash(ec echo.Context) string {
	cookie, err := ec.Cookie(flashCookie)
	if err != nil || cookie.Value == "" {
		return ""
	}

	ec.SetCookie(&http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	message, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return ""
	}

	return message
}

// SetRoutes registers the index page.
func SetRoutes(ec *echo.Echo) {
	ec.GET("/", func(ec echo.Context) error {
		return Index(ec, http.StatusOK, PopFlash(ec))
	})
}
