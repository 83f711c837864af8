package mcp

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/ccpro/internal/config"
	"github.com/hpungsan/ccpro/internal/session"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"promotion", "note", "budget"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"promotion_search": {
		def:     promotionSearchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromotionSearch },
	},
	"promotion_list": {
		def:     promotionListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromotionList },
	},
	"note_store": {
		def:     noteStoreToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleNoteStore },
	},
	"note_update": {
		def:     noteUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleNoteUpdate },
	},
	"note_delete": {
		def:     noteDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleNoteDelete },
	},
	"note_list": {
		def:     noteListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleNoteList },
	},
	"budget_add": {
		def:     budgetAddToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBudgetAdd },
	},
	"budget_add_plan": {
		def:     budgetAddPlanToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBudgetAddPlan },
	},
	"budget_remove": {
		def:     budgetRemoveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBudgetRemove },
	},
	"budget_show": {
		def:     budgetShowToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBudgetShow },
	},
	"budget_save": {
		def:     budgetSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBudgetSave },
	},
	"budget_saved": {
		def:     budgetSavedToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBudgetSaved },
	},
}

// AllToolNames returns all valid tool names, sorted.
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
// Tool names follow the pattern "type_action" (e.g., "note_store" → "note").
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
	return tools
}

// NewServer creates a new MCP server with ccpro tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(db *sql.DB, cfg *config.Config, scratch *session.Scratch, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"ccpro",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db, cfg, scratch)

	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, cfg *config.Config, scratch *session.Scratch, version string) error {
	s := NewServer(db, cfg, scratch, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
