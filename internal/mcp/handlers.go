package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hpungsan/miroyo/internal/achievement"
	"github.com/hpungsan/miroyo/internal/card"
	"github.com/hpungsan/miroyo/internal/config"
	"github.com/hpungsan/miroyo/internal/errors"
	"github.com/hpungsan/miroyo/internal/logging"
	"github.com/hpungsan/miroyo/internal/pipeline"
	"github.com/hpungsan/miroyo/internal/share"
)

// Identity is the rate-limit key for tool calls arriving over stdio.
const Identity = "mcp:stdio"

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	pipeline *pipeline.Pipeline
	cfg      *config.Config
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(p *pipeline.Pipeline, cfg *config.Config, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{pipeline: p, cfg: cfg, logger: logger}
}

// InterpretRequest represents the arguments for achievement_interpret.
type InterpretRequest struct {
	Text string `json:"text"`
}

// EncodeRequest represents the arguments for share_encode.
type EncodeRequest struct {
	Result json.RawMessage `json:"result"`
}

// TokenRequest represents the arguments for share_decode and share_card.
type TokenRequest struct {
	Token  string `json:"token"`
	Format string `json:"format,omitempty"`
}

// ShareOutput is the result of share_encode.
type ShareOutput struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// HandleInterpret handles the achievement_interpret tool.
func (h *Handlers) HandleInterpret(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = h.withRequestLogger(ctx, req)

	input, err := decode[InterpretRequest](req)
	if err != nil {
		return h.errorResult(ctx, errors.NewBadRequest(err.Error())), nil
	}

	result, err := h.pipeline.Interpret(ctx, Identity, input.Text)
	if err != nil {
		return h.errorResult(ctx, err), nil
	}
	return successResult(result)
}

// HandleEncode handles the share_encode tool.
func (h *Handlers) HandleEncode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = h.withRequestLogger(ctx, req)

	input, err := decode[EncodeRequest](req)
	if err != nil {
		return h.errorResult(ctx, errors.NewBadRequest(err.Error())), nil
	}
	if len(input.Result) == 0 || string(input.Result) == "null" {
		return h.errorResult(ctx, errors.NewBadRequest("result is required")), nil
	}

	var result achievement.Result
	if err := json.Unmarshal(input.Result, &result); err != nil {
		return h.errorResult(ctx, errors.NewBadRequest("result is not a Result")), nil
	}
	if err := result.Validate(); err != nil {
		return h.errorResult(ctx, errors.NewBadRequest(err.Error())), nil
	}

	token, err := share.Encode(result)
	if err != nil {
		return h.errorResult(ctx, err), nil
	}
	return successResult(ShareOutput{
		Token: token,
		URL:   share.URL(h.cfg.BaseURL, token),
	})
}

// HandleDecode handles the share_decode tool.
func (h *Handlers) HandleDecode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = h.withRequestLogger(ctx, req)

	result, err := h.decodeToken(req)
	if err != nil {
		return h.errorResult(ctx, err), nil
	}
	return successResult(result)
}

// HandleCard handles the share_card tool.
func (h *Handlers) HandleCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = h.withRequestLogger(ctx, req)

	result, err := h.decodeToken(req)
	if err != nil {
		return h.errorResult(ctx, err), nil
	}

	switch format := req.GetString("format", formatMarkdown); format {
	case formatMarkdown:
		return mcp.NewToolResultText(card.Markdown(result)), nil
	case formatHTML:
		out, err := card.HTML(result)
		if err != nil {
			return h.errorResult(ctx, errors.NewInternal(err)), nil
		}
		return mcp.NewToolResultText(out), nil
	default:
		return h.errorResult(ctx, errors.NewBadRequest("format must be markdown or html")), nil
	}
}

func (h *Handlers) decodeToken(req mcp.CallToolRequest) (achievement.Result, error) {
	input, err := decode[TokenRequest](req)
	if err != nil {
		return achievement.Result{}, errors.NewBadRequest(err.Error())
	}
	token := share.TokenFromURL(input.Token)
	if token == "" {
		return achievement.Result{}, errors.NewBadRequest("token is required")
	}
	return share.Decode(token)
}

func (h *Handlers) withRequestLogger(ctx context.Context, req mcp.CallToolRequest) context.Context {
	id := logging.NewRequestID()
	return logging.WithRequestID(ctx, h.logger.With(zap.String("tool", req.Params.Name)), id)
}

// errorResult creates an MCP error result. Only the code, status and
// category reach the client; the message and any loggable cause are logged.
func (h *Handlers) errorResult(ctx context.Context, err error) *mcp.CallToolResult {
	mErr := errors.From(err)

	logger := logging.FromContext(ctx, h.logger)
	if mErr.Status >= 500 {
		fields := []zap.Field{
			zap.String("code", string(mErr.Code)),
			zap.String("category", string(mErr.Category)),
			zap.String("reason", mErr.Message),
		}
		if cause := mErr.LoggableCause(); cause != nil {
			fields = append(fields, zap.NamedError("cause", cause))
		}
		logger.Error("tool call failed", fields...)
	} else {
		logger.Info("tool call rejected", zap.String("code", string(mErr.Code)), zap.String("reason", mErr.Message))
	}

	payload := map[string]any{
		"error": map[string]any{
			"code":     mErr.Code,
			"status":   mErr.Status,
			"category": mErr.Category,
		},
	}
	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
