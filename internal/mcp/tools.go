package mcp

import "github.com/mark3labs/mcp-go/mcp"

var promotionSearchToolDef = mcp.NewTool("promotion_search",
	mcp.WithDescription("Search promotions by keyword. Combines the keyword index with a substring filter over the cached listing; results are grouped by type (plan, text, image, price). A blank query returns the full listing."),
	mcp.WithString("query", mcp.Description("Search term")),
	mcp.WithBoolean("refresh", mcp.Description("Reload the cached listing before searching")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var promotionListToolDef = mcp.NewTool("promotion_list",
	mcp.WithDescription("List promotions, newest first."),
	mcp.WithNumber("limit", mcp.Description("Page size (default from config, max 100)")),
	mcp.WithString("cursor", mcp.Description("next_cursor from a previous page")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var noteStoreToolDef = mcp.NewTool("note_store",
	mcp.WithDescription("Create a personal note for the signed-in user."),
	mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
	mcp.WithString("content", mcp.Description("Note body (markdown)")),
)

var noteUpdateToolDef = mcp.NewTool("note_update",
	mcp.WithDescription("Edit a note. Omitted fields are left unchanged."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	mcp.WithString("title", mcp.Description("New title")),
	mcp.WithString("content", mcp.Description("New content")),
)

var noteDeleteToolDef = mcp.NewTool("note_delete",
	mcp.WithDescription("Delete a note owned by the signed-in user."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	mcp.WithDestructiveHintAnnotation(true),
)

var noteListToolDef = mcp.NewTool("note_list",
	mcp.WithDescription("List the signed-in user's notes. With a query, matching notes are returned in a single page."),
	mcp.WithString("sort", mcp.Description("Sort field"), mcp.Enum("createdAt", "updatedAt", "title")),
	mcp.WithString("query", mcp.Description("Optional search term")),
	mcp.WithNumber("limit", mcp.Description("Page size (default from config, max 100)")),
	mcp.WithString("cursor", mcp.Description("next_cursor from a previous page")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var budgetAddToolDef = mcp.NewTool("budget_add",
	mcp.WithDescription("Add a manual line to the working budget."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Line description")),
	mcp.WithString("unit_price", mcp.Required(), mcp.Description("Unit price as a decimal string, e.g. \"2000.50\"")),
	mcp.WithNumber("quantity", mcp.Description("Quantity (default 1)")),
)

var budgetAddPlanToolDef = mcp.NewTool("budget_add_plan",
	mcp.WithDescription("Add one unit of a promotion plan to the working budget at its final price."),
	mcp.WithString("promotion_id", mcp.Required(), mcp.Description("Promotion id")),
	mcp.WithString("plan", mcp.Description("Plan name; optional when the promotion has a single plan")),
)

var budgetRemoveToolDef = mcp.NewTool("budget_remove",
	mcp.WithDescription("Remove a line from the working budget by its zero-based index."),
	mcp.WithNumber("index", mcp.Required(), mcp.Description("Line index")),
)

var budgetShowToolDef = mcp.NewTool("budget_show",
	mcp.WithDescription("Show the working budget with its total and the plain-text quote."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var budgetSaveToolDef = mcp.NewTool("budget_save",
	mcp.WithDescription("Save the working budget for the signed-in user. Pass id to overwrite a saved budget."),
	mcp.WithString("name", mcp.Description("Budget name (default: dated name)")),
	mcp.WithString("id", mcp.Description("Saved budget id to overwrite")),
)

var budgetSavedToolDef = mcp.NewTool("budget_saved",
	mcp.WithDescription("List the signed-in user's saved budgets, newest first."),
	mcp.WithNumber("limit", mcp.Description("Page size (default from config, max 100)")),
	mcp.WithString("cursor", mcp.Description("next_cursor from a previous page")),
	mcp.WithReadOnlyHintAnnotation(true),
)
