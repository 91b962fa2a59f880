package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/miroyo/internal/pipeline"
)

var interpretToolDef = mcp.NewTool("achievement_interpret",
	mcp.WithDescription("Interpret a free-text description of what the user accomplished "+
		"(Japanese or English) into a structured Result with a DJ-style comment and trivia."),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("What the user did, e.g. \"今週は毎日5km走った\"."),
		mcp.MaxLength(pipeline.DefaultMaxInputChars),
	),
)

var encodeToolDef = mcp.NewTool("share_encode",
	mcp.WithDescription("Encode a normalized Result into a share token and link. "+
		"Fails with share_data_too_large instead of truncating."),
	mcp.WithObject("result",
		mcp.Required(),
		mcp.Description("A Result as returned by achievement_interpret."),
	),
	mcp.WithReadOnlyHintAnnotation(true),
)

var decodeToolDef = mcp.NewTool("share_decode",
	mcp.WithDescription("Decode a share token or share link back into a Result."),
	mcp.WithString("token",
		mcp.Required(),
		mcp.Description("A share token, or a full link whose fragment holds one."),
	),
	mcp.WithReadOnlyHintAnnotation(true),
)

var cardToolDef = mcp.NewTool("share_card",
	mcp.WithDescription("Render the achievement card for a share token or link."),
	mcp.WithString("token",
		mcp.Required(),
		mcp.Description("A share token, or a full link whose fragment holds one."),
	),
	mcp.WithString("format",
		mcp.Description("Output format."),
		mcp.Enum(formatMarkdown, formatHTML),
		mcp.DefaultString(formatMarkdown),
	),
	mcp.WithReadOnlyHintAnnotation(true),
)

const (
	formatMarkdown = "markdown"
	formatHTML     = "html"
)
