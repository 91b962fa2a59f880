// Package pipeline validates interpret requests and turns accepted text
// into a normalized Result through the model.
//
// Checks run in a fixed order and the first failure decides the error:
// method, content type, origin, credential, rate limit, body. The model
// is only called once every check has passed.
package pipeline

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/hpungsan/miroyo/internal/achievement"
	"github.com/hpungsan/miroyo/internal/errors"
	"github.com/hpungsan/miroyo/internal/logging"
	"github.com/hpungsan/miroyo/internal/model"
	"github.com/hpungsan/miroyo/internal/ratelimit"
)

// Defaults applied by New when Options leaves a field zero.
const (
	DefaultTimeout            = 15 * time.Second
	DefaultMaxInputChars      = 1000
	DefaultMaxConcurrentCalls = 8
	// MaxBodyBytes bounds how much of a request body is read.
	MaxBodyBytes = 64 << 10
)

// UnknownIdentity is the rate-limit key used when no client address is known.
const UnknownIdentity = "unknown"

// Request is the transport-neutral view of an HTTP request.
type Request struct {
	Method string
	Host   string
	Header http.Header
	Body   io.Reader
}

// Options configures a Pipeline.
type Options struct {
	// Extractor calls the model. Nil means no credential is configured and
	// every request that reaches the credential check fails.
	Extractor          model.Extractor
	Limiter            ratelimit.Store
	Logger             *zap.Logger
	Timeout            time.Duration
	MaxInputChars      int
	MaxConcurrentCalls int
}

// Pipeline runs the request checks and the model call.
type Pipeline struct {
	extractor     model.Extractor
	limiter       ratelimit.Store
	logger        *zap.Logger
	timeout       time.Duration
	maxInputChars int
	sem           *semaphore.Weighted
}

// New creates a Pipeline. A nil Limiter gets an in-memory store with the
// default limit.
func New(opts Options) *Pipeline {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = DefaultMaxInputChars
	}
	if opts.MaxConcurrentCalls <= 0 {
		opts.MaxConcurrentCalls = DefaultMaxConcurrentCalls
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewMemoryStore(ratelimit.DefaultLimit, ratelimit.DefaultWindow)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Pipeline{
		extractor:     opts.Extractor,
		limiter:       opts.Limiter,
		logger:        opts.Logger,
		timeout:       opts.Timeout,
		maxInputChars: opts.MaxInputChars,
		sem:           semaphore.NewWeighted(int64(opts.MaxConcurrentCalls)),
	}
}

// Handle runs every check against req and, if all pass, interprets the
// body's text. Errors are *errors.MiroyoError.
func (p *Pipeline) Handle(ctx context.Context, req Request) (*achievement.Result, error) {
	if req.Method != http.MethodPost {
		return nil, errors.NewMethodNotAllowed(req.Method)
	}

	contentType := req.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "application/json") {
		return nil, errors.NewUnsupportedMediaType(contentType)
	}

	if invalidOrigin(req) {
		return nil, errors.NewForbidden("origin does not match host")
	}
	if crossSite(req.Header) {
		return nil, errors.NewForbidden("cross-site request")
	}

	if err := p.admit(ctx, ClientIdentity(req.Header)); err != nil {
		return nil, err
	}

	text, err := readText(req.Body)
	if err != nil {
		return nil, err
	}
	if err := p.checkText(text); err != nil {
		return nil, err
	}

	return p.call(ctx, text)
}

// Interpret runs the credential, rate-limit and text checks for a caller
// that is not an HTTP client (CLI, MCP) and then calls the model.
func (p *Pipeline) Interpret(ctx context.Context, identity, text string) (*achievement.Result, error) {
	if identity == "" {
		identity = UnknownIdentity
	}
	if err := p.admit(ctx, identity); err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if err := p.checkText(text); err != nil {
		return nil, err
	}

	return p.call(ctx, text)
}

// admit covers the credential and rate-limit checks.
func (p *Pipeline) admit(ctx context.Context, identity string) error {
	if p.extractor == nil {
		return errors.NewMisconfigured("model API key is not configured")
	}

	allowed, err := p.limiter.CheckAndIncrement(ctx, identity)
	if err != nil {
		return errors.NewInternal(err)
	}
	if !allowed {
		return errors.NewRateLimited(identity)
	}
	return nil
}

func (p *Pipeline) checkText(text string) error {
	if text == "" {
		return errors.NewBadRequest("text is empty")
	}
	if n := achievement.CountChars(text); n > p.maxInputChars {
		return errors.NewBadRequest("text is too long")
	}
	return nil
}

type extraction struct {
	text string
	err  error
}

// call runs the model under the timeout. Waiting for a concurrency slot
// counts against the same budget. On timeout the call's context is
// canceled and its late result is dropped.
func (p *Pipeline) call(ctx context.Context, text string) (*achievement.Result, error) {
	log := logging.FromContext(ctx, p.logger)

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.sem.Acquire(callCtx, 1); err != nil {
		return nil, p.contextError(callCtx, err)
	}

	done := make(chan extraction, 1)
	go func() {
		defer p.sem.Release(1)
		out, err := p.extractor.Extract(callCtx, text)
		done <- extraction{text: out, err: err}
	}()

	var res extraction
	select {
	case res = <-done:
	case <-callCtx.Done():
		log.Warn("model call abandoned", zap.Error(callCtx.Err()))
		return nil, p.contextError(callCtx, callCtx.Err())
	}

	if res.err != nil {
		if callCtx.Err() != nil {
			return nil, p.contextError(callCtx, res.err)
		}
		if model.IsRateLimited(res.err) {
			log.Warn("model provider rate limited the request")
			return nil, errors.NewUpstreamRateLimited(res.err)
		}
		status, message := model.Describe(res.err)
		log.Error("model call failed", zap.Int("status", status), zap.String("message", message))
		return nil, errors.NewUpstream(res.err)
	}

	result := achievement.NormalizeJSON([]byte(res.text))
	return &result, nil
}

// contextError maps a context failure to timeout when the call's own
// deadline fired, and to an internal error when the caller went away.
func (p *Pipeline) contextError(callCtx context.Context, err error) error {
	if stderrors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return errors.NewTimeout(err)
	}
	return errors.NewInternal(err)
}
