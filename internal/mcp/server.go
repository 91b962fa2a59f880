package mcp

import (
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hpungsan/miroyo/internal/config"
	"github.com/hpungsan/miroyo/internal/pipeline"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"achievement", "share"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"achievement_interpret": {
		def:     interpretToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleInterpret },
	},
	"share_encode": {
		def:     encodeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEncode },
	},
	"share_decode": {
		def:     decodeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDecode },
	},
	"share_card": {
		def:     cardToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCard },
	},
}

// AllToolNames returns a sorted list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "share_encode" → "share").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	sort.Strings(tools)
	return tools
}

// EnabledTools returns the sorted tool names left after applying
// cfg.DisabledTypes and cfg.DisabledTools.
func EnabledTools(cfg *config.Config) []string {
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	enabled := make([]string, 0, len(toolRegistry))
	for _, name := range AllToolNames() {
		if !disabled[name] {
			enabled = append(enabled, name)
		}
	}
	return enabled
}

// NewServer creates a new MCP server with the miroyo tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(p *pipeline.Pipeline, cfg *config.Config, logger *zap.Logger, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"miroyo",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(p, cfg, logger)
	for _, name := range EnabledTools(cfg) {
		entry := toolRegistry[name]
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(p *pipeline.Pipeline, cfg *config.Config, logger *zap.Logger, version string) error {
	s := NewServer(p, cfg, logger, version)
	return server.ServeStdio(s)
}
