package web

import (
	"bytes"
	"encoding/json"
	"html/template"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/miroyo/internal/achievement"
	"github.com/hpungsan/miroyo/internal/card"
	"github.com/hpungsan/miroyo/internal/config"
	"github.com/hpungsan/miroyo/internal/errors"
	"github.com/hpungsan/miroyo/internal/logging"
	"github.com/hpungsan/miroyo/internal/pipeline"
	"github.com/hpungsan/miroyo/internal/share"
)

// Handlers contains HTTP route handlers.
type Handlers struct {
	pipeline *pipeline.Pipeline
	cfg      *config.Config
	renderer *Renderer
	logger   *zap.Logger
}

// ShareResponse is the body of a successful POST /api/share.
type ShareResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// HandleInterpret handles /api/interpret. Every outcome is JSON: the
// normalized Result on success, {"error": code} otherwise.
func (h *Handlers) HandleInterpret(w http.ResponseWriter, r *http.Request) {
	result, err := h.pipeline.Handle(r.Context(), pipeline.Request{
		Method: r.Method,
		Host:   r.Host,
		Header: r.Header,
		Body:   r.Body,
	})
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleShare handles POST /api/share: a Result in, its share token and
// link out. Results over the share ceiling are refused, never truncated.
func (h *Handlers) HandleShare(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "application/json") {
		h.renderAPIError(w, r, errors.NewUnsupportedMediaType(contentType))
		return
	}

	result, err := decodeResult(r.Body)
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}

	token, err := share.Encode(result)
	if err != nil {
		h.renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, ShareResponse{
		Token: token,
		URL:   share.URL(h.cfg.BaseURL, token),
	})
}

// HandleCard handles GET /card/{token}: the shared Result rendered
// server-side.
func (h *Handlers) HandleCard(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	result, err := share.Decode(token)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	html, err := card.HTML(result)
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInternal(err))
		return
	}

	h.renderer.renderPageStatus(w, r, http.StatusOK, "card", CardPageData{
		PageData: PageData{
			Title:   result.PeriodLabel,
			Version: h.renderer.version,
		},
		CardHTML: template.HTML(html),
		ShareURL: share.URL(h.cfg.BaseURL, token),
	})
}

// HandleResult handles GET /result, the target of every share link. The
// token is in the fragment, so the page's script forwards it to
// /card/{token}.
func (h *Handlers) HandleResult(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPageStatus(w, r, http.StatusOK, "result", PageData{
		Title:   "みろよ",
		Version: h.renderer.version,
	})
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) renderAPIError(w http.ResponseWriter, r *http.Request, err error) {
	mErr := errors.From(err)
	logError(logging.FromContext(r.Context(), h.logger), mErr)
	renderErrorJSON(w, mErr)
}

// decodeResult reads a Result from a JSON body and checks every field
// limit.
func decodeResult(body io.Reader) (achievement.Result, error) {
	data, err := io.ReadAll(io.LimitReader(body, pipeline.MaxBodyBytes+1))
	if err != nil || len(data) > pipeline.MaxBodyBytes {
		return achievement.Result{}, errors.NewBadRequest("unreadable or oversized body")
	}

	var result achievement.Result
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&result); err != nil {
		return achievement.Result{}, errors.NewBadRequest("body is not a Result")
	}
	if err := result.Validate(); err != nil {
		return achievement.Result{}, errors.NewBadRequest(err.Error())
	}
	return result, nil
}
