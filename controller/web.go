package controller

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/billingcat/smartbill/model"
	"github.com/billingcat/smartbill/ocr"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

//go:embed public/views/*.html
var viewsFS embed.FS

//go:embed static
var staticFS embed.FS

type appError struct {
	Code   string // stable internal error code for ops/support
	Status int    // HTTP status
	Err    error  // original error, never sent to the client
	Public string // safe text for users (optional)
}

func (e *appError) Error() string { return fmt.Sprintf("%s: %v", e.Code, e.Err) }
func (e *appError) Unwrap() error { return e.Err }

func ErrInvalid(err error, public string) *appError {
	return &appError{Code: "INVALID_INPUT", Status: http.StatusBadRequest, Err: err, Public: public}
}
func ErrInternal(err error) *appError {
	return &appError{Code: "INTERNAL", Status: http.StatusInternalServerError, Err: err}
}

// The Template type implements rendering functionality for echo.
type Template struct {
	templates *template.Template
}

// Render is the echo way of rendering templates.
func (t *Template) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return t.templates.ExecuteTemplate(w, name, data)
}

// TextExtractor returns the text of a stored document.
type TextExtractor interface {
	ExtractFile(ctx context.Context, path string) (string, error)
}

// Tagger labels the tokens of a text with BIO entity tags. It is optional;
// tagged entities only fill fields the extraction rules left unknown.
type Tagger interface {
	Tag(ctx context.Context, text string) (tokens, labels []string, err error)
}

// Options configure the web application.
type Options struct {
	Extractor TextExtractor
	Tagger    Tagger
	Logger    *slog.Logger
}

type controller struct {
	model     *model.Store
	extractor TextExtractor
	tagger    Tagger
	logger    *slog.Logger
}

// NewLogger returns the application logger: text and debug level in
// development, JSON and info level otherwise.
func NewLogger(mode string) *slog.Logger {
	if mode == "development" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func (ctrl *controller) root(c echo.Context) error {
	return c.Render(http.StatusOK, "index.html", map[string]any{
		"title": "Smart Bill",
	})
}

func (ctrl *controller) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// New sets up the echo instance with all routes and middleware.
func New(store *model.Store, opts Options) *echo.Echo {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	extractor := opts.Extractor
	if extractor == nil {
		ocrcfg := store.Config.OCR
		extractor = &ocr.Extractor{Recognizer: ocr.NewAzureRecognizer(ocrcfg.Endpoint, ocrcfg.APIKey, ocrcfg.Language)}
	}

	tmpl := &Template{
		templates: template.Must(template.New("t").ParseFS(viewsFS, "public/views/*.html")),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	bodyLimit := store.Config.BodyLimit
	if bodyLimit == "" {
		bodyLimit = "20M"
	}
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(middleware.RequestID())
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisablePrintStack: true,
	}))
	e.Use(accessLog(logger))
	e.HTTPErrorHandler = errorHandler(logger)
	e.Renderer = tmpl

	ctrl := controller{model: store, extractor: extractor, tagger: opts.Tagger, logger: logger}
	e.GET("/", ctrl.root)
	e.GET("/health", ctrl.health)
	e.StaticFS("/static", echo.MustSubFS(staticFS, "static"))
	ctrl.invoiceInit(e)
	return e
}

// NewController is the entry point: it builds the application and serves it
// until ctx is done.
func NewController(ctx context.Context, store *model.Store, opts Options) error {
	e := New(store, opts)
	addr := fmt.Sprintf(":%d", store.Config.Port)

	errc := make(chan error, 1)
	go func() {
		errc <- e.Start(addr)
	}()
	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("cannot start application %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}

// accessLog puts a request scoped logger into the context and logs every
// request with a level derived from the status.
func accessLog(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			res := c.Response()
			rid := res.Header().Get(echo.HeaderXRequestID)

			reqLogger := logger.With(
				"request_id", rid,
			).WithGroup("http").With(
				"method", req.Method,
				"path", req.URL.Path,
				"remote_ip", c.RealIP(),
			)
			c.Set("logger", reqLogger)

			err := next(c)
			if err != nil {
				// let the error handler write the response so the status is known
				c.Error(err)
				err = nil
			}
			if shouldSkipAccessLog(c) {
				return err
			}

			attrs := []any{
				"status", res.Status,
				"latency_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			}
			switch {
			case res.Status >= 500:
				reqLogger.Error("http_request", attrs...)
			case res.Status >= 400:
				reqLogger.Warn("http_request", attrs...)
			default:
				reqLogger.Info("http_request", attrs...)
			}
			return err
		}
	}
}

// requestLogger returns the logger stored by accessLog.
func (ctrl *controller) requestLogger(c echo.Context) *slog.Logger {
	if l, ok := c.Get("logger").(*slog.Logger); ok && l != nil {
		return l
	}
	return ctrl.logger
}

// errorHandler logs everything internally and sends only a safe payload.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		l, _ := c.Get("logger").(*slog.Logger)
		if l == nil {
			l = logger
		}

		var ae *appError
		var he *echo.HTTPError
		switch {
		case errors.As(err, &ae):
		case errors.As(err, &he):
			// only 4xx messages reach the user, 5xx are masked
			public := ""
			if he.Code >= 400 && he.Code < 500 {
				public = fmt.Sprint(he.Message)
			}
			ae = &appError{
				Code:   httpStatusToCode(he.Code),
				Status: he.Code,
				Err:    fmt.Errorf("%v", he.Message),
				Public: public,
			}
		default:
			ae = ErrInternal(err)
		}

		attrs := []any{
			"status", ae.Status,
			"code", ae.Code,
			"error", ae.Err.Error(),
		}
		if ae.Status >= 500 {
			l.Error("handler_error", attrs...)
		} else {
			l.Warn("handler_error", attrs...)
		}

		_ = c.JSON(ae.Status, map[string]any{
			"error":      userMessage(ae),
			"error_code": ae.Code,
			"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
		})
	}
}

func userMessage(ae *appError) string {
	if ae.Public != "" {
		return ae.Public
	}
	switch ae.Code {
	case "INVALID_INPUT":
		return "The input is invalid. Please check it and try again."
	case "NOT_FOUND":
		return "The requested resource was not found."
	case "METHOD_NOT_ALLOWED":
		return "This HTTP method is not supported here."
	default:
		return "An error occurred. Please try again later."
	}
}

func httpStatusToCode(status int) string {
	switch status {
	case 400:
		return "INVALID_INPUT"
	case 404:
		return "NOT_FOUND"
	case 405:
		return "METHOD_NOT_ALLOWED"
	case 413:
		return "TOO_LARGE"
	default:
		if status >= 500 {
			return "INTERNAL"
		}
		return "ERROR"
	}
}

func shouldSkipAccessLog(c echo.Context) bool {
	p := c.Request().URL.Path
	if strings.HasPrefix(p, "/static/") {
		return true
	}
	switch p {
	case "/favicon.ico", "/robots.txt", "/health":
		return true
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".css", ".js", ".map", ".png", ".jpg", ".jpeg", ".svg", ".ico", ".webp":
		return true
	}
	m := c.Request().Method
	return m == http.MethodHead || m == http.MethodOptions
}
