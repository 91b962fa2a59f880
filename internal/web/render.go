package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/miroyo/internal/errors"
	"github.com/hpungsan/miroyo/internal/logging"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
}

// CardPageData is the template data for a shared card.
type CardPageData struct {
	PageData
	CardHTML template.HTML
	ShareURL string
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// errorMessages are the user-facing texts per error code. Internal
// messages never reach the client.
var errorMessages = map[errors.ErrorCode]string{
	errors.ErrBadRequest:           "リクエストの内容が正しくありません。",
	errors.ErrForbidden:            "このリクエストは許可されていません。",
	errors.ErrMethodNotAllowed:     "このメソッドは使えません。",
	errors.ErrUnsupportedMediaType: "JSONで送信してください。",
	errors.ErrRateLimit:            "リクエストが多すぎます。少し待ってからもう一度試してください。",
	errors.ErrTimeout:              "応答に時間がかかりすぎました。",
	errors.ErrShareTooLarge:        "シェアするデータが大きすぎます。成果を短くしてください。",
	errors.ErrInvalidShare:         "シェアリンクが壊れているようです。",
	errors.ErrServerError:          "サーバーでエラーが発生しました。",
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	logger    *zap.Logger
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string, logger *zap.Logger) *Renderer {
	// Parse layout as the base template
	layoutTmpl := template.Must(template.New("layout").ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"card":   "card.html",
		"error":  "error.html",
		"result": "result.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{
		templates: templates,
		version:   version,
		logger:    logger,
	}
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	log := logging.FromContext(req.Context(), r.logger)

	t, ok := r.templates[name]
	if !ok {
		log.Error("template not found", zap.String("template", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		log.Error("template execution error", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation. Only
// the error code and a fixed message leave the process.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	mErr := errors.From(err)
	logError(logging.FromContext(req.Context(), r.logger), mErr)

	if strings.Contains(req.Header.Get("Accept"), "application/json") {
		renderErrorJSON(w, mErr)
		return
	}

	r.renderPageStatus(w, req, mErr.Status, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Error %d", mErr.Status),
			Version: r.version,
		},
		StatusCode: mErr.Status,
		Message:    errorMessages[mErr.Code],
	})
}

// renderErrorJSON writes the {"error": code} body used by the API.
func renderErrorJSON(w http.ResponseWriter, mErr *errors.MiroyoError) {
	if mErr.Code == errors.ErrMethodNotAllowed {
		w.Header().Set("Allow", http.MethodPost)
	}
	renderJSON(w, mErr.Status, map[string]string{"error": string(mErr.Code)})
}

// logError records the internal detail of a failed request.
func logError(log *zap.Logger, mErr *errors.MiroyoError) {
	fields := []zap.Field{
		zap.String("code", string(mErr.Code)),
		zap.String("category", string(mErr.Category)),
		zap.Int("status", mErr.Status),
		zap.String("detail", mErr.Message),
	}
	if cause := mErr.LoggableCause(); cause != nil {
		fields = append(fields, zap.NamedError("cause", cause))
	}
	if mErr.Status >= http.StatusInternalServerError {
		log.Error("request failed", fields...)
		return
	}
	log.Info("request rejected", fields...)
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
