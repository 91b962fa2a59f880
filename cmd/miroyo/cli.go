package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/miroyo/internal/achievement"
	"github.com/hpungsan/miroyo/internal/card"
	"github.com/hpungsan/miroyo/internal/config"
	"github.com/hpungsan/miroyo/internal/db"
	"github.com/hpungsan/miroyo/internal/errors"
	"github.com/hpungsan/miroyo/internal/logging"
	"github.com/hpungsan/miroyo/internal/model"
	"github.com/hpungsan/miroyo/internal/pipeline"
	"github.com/hpungsan/miroyo/internal/ratelimit"
	"github.com/hpungsan/miroyo/internal/share"
	"github.com/hpungsan/miroyo/internal/web"
)

// cliIdentity is the rate-limit key for `miroyo interpret`.
const cliIdentity = "cli"

// env carries the loaded config and the resources commands open.
type env struct {
	cfg     *config.Config
	baseDir string
	logger  *zap.Logger

	// extractor, when set, is used instead of building a Gemini client.
	extractor model.Extractor

	closers []func() error
}

// Close releases everything newPipeline opened.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i]()
	}
	e.closers = nil
}

// newPipeline wires the extractor and rate limiter chosen by config.
func (e *env) newPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	if e.logger == nil {
		e.logger = zap.NewNop()
	}

	extractor, err := e.newExtractor(ctx)
	if err != nil {
		return nil, err
	}
	limiter, err := e.newLimiter()
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Options{
		Extractor:          extractor,
		Limiter:            limiter,
		Logger:             e.logger,
		Timeout:            e.cfg.ModelTimeout(),
		MaxInputChars:      e.cfg.MaxInputChars,
		MaxConcurrentCalls: e.cfg.MaxConcurrentCalls,
	}), nil
}

// newExtractor returns nil (not an error) when no API key is set, so the
// server still starts and answers server_error per request.
func (e *env) newExtractor(ctx context.Context) (model.Extractor, error) {
	if e.extractor != nil {
		return e.extractor, nil
	}
	if e.cfg.APIKey == "" {
		e.logger.Warn("no model API key configured; interpret requests will fail",
			zap.String("env", config.EnvAPIKey))
		return nil, nil
	}

	prompt, err := model.LoadSystemPrompt(e.cfg.SystemPromptPath)
	if err != nil {
		return nil, err
	}

	temperature := config.DefaultTemperature
	if e.cfg.Temperature != nil {
		temperature = *e.cfg.Temperature
	}

	g, err := model.NewGemini(ctx, model.Options{
		APIKey:          e.cfg.APIKey,
		Model:           e.cfg.Model,
		Temperature:     temperature,
		MaxOutputTokens: e.cfg.MaxOutputTokens,
		SystemPrompt:    prompt,
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("model configured", zap.String("model", g.Model()))
	return g, nil
}

func (e *env) newLimiter() (ratelimit.Store, error) {
	switch e.cfg.RateLimitStore {
	case config.StoreSQLite:
		database, err := db.Init(e.baseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		db.ConfigurePool(database, e.cfg)
		e.closers = append(e.closers, database.Close)
		return ratelimit.NewSQLiteStore(database, e.cfg.RateLimitRequests, e.cfg.RateLimitWindow()), nil
	default:
		return ratelimit.NewMemoryStore(e.cfg.RateLimitRequests, e.cfg.RateLimitWindow()), nil
	}
}

// newCLIApp creates the CLI application with all commands.
// e is nil only for --help and --version.
func newCLIApp(e *env) *cli.App {
	app := &cli.App{
		Name:    "miroyo",
		Usage:   "Turn what you did into a shareable achievement card",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Usage: "Log at debug level"},
		},
		Before: func(c *cli.Context) error {
			if e == nil || e.logger != nil {
				return nil
			}
			logger, err := logging.New(c.Bool("verbose"))
			if err != nil {
				return err
			}
			e.logger = logger
			return nil
		},
		After: func(_ *cli.Context) error {
			if e != nil && e.logger != nil {
				_ = e.logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(e),
			interpretCmd(e),
			encodeCmd(e),
			decodeCmd(),
			cardCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd creates the serve command.
func serveCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and card pages",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Address to bind (default from config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port to listen on (default from config)"},
			&cli.StringFlag{Name: "base-url", Usage: "Public origin for share links"},
		},
		Action: func(c *cli.Context) error {
			if c.IsSet("bind") {
				e.cfg.Bind = c.String("bind")
			}
			if c.IsSet("port") {
				e.cfg.Port = c.Int("port")
			}
			if c.IsSet("base-url") {
				e.cfg.BaseURL = c.String("base-url")
			}
			if err := e.cfg.Validate(); err != nil {
				return cli.Exit(err.Error(), 1)
			}

			p, err := e.newPipeline(c.Context)
			if err != nil {
				return outputError(err)
			}
			srv, err := web.NewServer(p, e.cfg, e.logger, Version)
			if err != nil {
				return outputError(err)
			}
			return web.Run(srv, e.logger)
		},
	}
}

// interpretCmd creates the interpret command.
func interpretCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "interpret",
		Usage:     "Interpret what you did (argument or stdin) into a Result",
		ArgsUsage: "[text]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "share", Usage: "Also print the share token and link"},
		},
		Action: func(c *cli.Context) error {
			text, err := textInput(c, pipeline.MaxBodyBytes)
			if err != nil {
				return outputError(err)
			}

			p, err := e.newPipeline(c.Context)
			if err != nil {
				return outputError(err)
			}
			result, err := p.Interpret(c.Context, cliIdentity, text)
			if err != nil {
				return outputError(err)
			}

			if !c.Bool("share") {
				return outputJSON(c.App.Writer, result)
			}
			token, err := share.Encode(*result)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, interpretOutput{
				Result: *result,
				shareOutput: shareOutput{
					Token: token,
					URL:   share.URL(e.cfg.BaseURL, token),
				},
			})
		},
	}
}

// encodeCmd creates the encode command.
func encodeCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "encode",
		Usage: "Encode a Result (JSON on stdin) into a share token and link",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "base-url", Usage: "Public origin for the link (default from config)"},
			&cli.BoolFlag{Name: "legacy", Usage: "Use the uncompressed token format"},
		},
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewBadRequest("Result JSON must be piped via stdin"))
			}
			data, err := readStdin(pipeline.MaxBodyBytes)
			if err != nil {
				return outputError(errors.NewBadRequest(err.Error()))
			}

			var result achievement.Result
			if err := json.Unmarshal([]byte(data), &result); err != nil {
				return outputError(errors.NewBadRequest("stdin is not a Result"))
			}
			if err := result.Validate(); err != nil {
				return outputError(errors.NewBadRequest(err.Error()))
			}

			format := share.CurrentFormat
			if c.Bool("legacy") {
				format = share.FormatLegacy
			}
			token, err := share.EncodeFormat(result, format)
			if err != nil {
				return outputError(err)
			}

			baseURL := e.cfg.BaseURL
			if c.IsSet("base-url") {
				baseURL = c.String("base-url")
			}
			return outputJSON(c.App.Writer, shareOutput{Token: token, URL: share.URL(baseURL, token)})
		},
	}
}

// decodeCmd creates the decode command.
func decodeCmd() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode a share token or link into a Result",
		ArgsUsage: "<token|url>",
		Action: func(c *cli.Context) error {
			result, err := decodeArg(c)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, result)
		},
	}
}

// cardCmd creates the card command.
func cardCmd() *cli.Command {
	return &cli.Command{
		Name:      "card",
		Usage:     "Render the card for a share token or link",
		ArgsUsage: "<token|url>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "html", Usage: "Render HTML instead of Markdown"},
		},
		Action: func(c *cli.Context) error {
			result, err := decodeArg(c)
			if err != nil {
				return outputError(err)
			}

			out := card.Markdown(result)
			if c.Bool("html") {
				if out, err = card.HTML(result); err != nil {
					return outputError(errors.NewInternal(err))
				}
			}
			_, err = fmt.Fprint(c.App.Writer, out)
			return err
		},
	}
}

// Helper functions

type shareOutput struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

type interpretOutput struct {
	Result achievement.Result `json:"result"`
	shareOutput
}

// decodeArg reads a token or link from the first argument or stdin.
func decodeArg(c *cli.Context) (achievement.Result, error) {
	input, err := textInput(c, share.MaxTokenLength*2)
	if err != nil {
		return achievement.Result{}, err
	}
	token := share.TokenFromURL(input)
	if token == "" {
		return achievement.Result{}, errors.NewBadRequest("token is required")
	}
	return share.Decode(token)
}

// textInput returns the joined arguments, or stdin when none are given.
func textInput(c *cli.Context, limit int64) (string, error) {
	if c.NArg() > 0 {
		return strings.Join(c.Args().Slice(), " "), nil
	}
	if !stdinHasData() {
		return "", errors.NewBadRequest("input must be an argument or piped via stdin")
	}
	text, err := readStdin(limit)
	if err != nil {
		return "", errors.NewBadRequest(err.Error())
	}
	return text, nil
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// outputError formats error for CLI. The local user sees the cause.
func outputError(err error) error {
	mErr := errors.From(err)
	msg := fmt.Sprintf("[%s] %s", mErr.Code, mErr.Message)
	if mErr.Err != nil {
		msg += ": " + mErr.Err.Error()
	}
	return cli.Exit(msg, 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("stdin exceeds %d bytes", limit)
	}
	return strings.TrimSpace(string(data)), nil
}
