package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func domainArg() mcp.ToolOption {
	return mcp.WithString("domain",
		mcp.Required(),
		mcp.Description(`Site host including any port, e.g. "app.example.com" or "localhost:3000"`),
	)
}

func (s *Server) registerTools() {
	s.addTool(mcp.NewTool("domain_list",
		mcp.WithDescription("List domains that have saved sessions."),
	), s.handleDomainList)

	s.addTool(mcp.NewTool("session_list",
		mcp.WithDescription("List the saved sessions of a domain in display order, with the active session name."),
		domainArg(),
	), s.handleSessionList)

	s.addTool(mcp.NewTool("session_save",
		mcp.WithDescription("Capture the domain's current cookies and local storage under a name and mark it active. An existing session with the same name is overwritten."),
		domainArg(),
		mcp.WithString("name", mcp.Required(), mcp.Description("Session name")),
	), s.handleSessionSave)

	s.addTool(mcp.NewTool("session_restore",
		mcp.WithDescription("Switch the domain to a saved session. The currently active session is saved first, then the page is reloaded."),
		domainArg(),
		mcp.WithString("name", mcp.Required(), mcp.Description("Session name")),
	), s.handleSessionRestore)

	s.addTool(mcp.NewTool("session_rename",
		mcp.WithDescription("Rename the session at a list position. A different session already using the new name is replaced."),
		domainArg(),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Zero-based position in session_list")),
		mcp.WithString("name", mcp.Required(), mcp.Description("New name")),
	), s.handleSessionRename)

	s.addTool(mcp.NewTool("session_delete",
		mcp.WithDescription("Delete the session at a list position."),
		domainArg(),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Zero-based position in session_list")),
	), s.handleSessionDelete)

	s.addTool(mcp.NewTool("session_reorder",
		mcp.WithDescription("Move a session from one list position to another."),
		domainArg(),
		mcp.WithNumber("from", mcp.Required(), mcp.Description("Current position")),
		mcp.WithNumber("to", mcp.Required(), mcp.Description("Target position")),
	), s.handleSessionReorder)

	s.addTool(mcp.NewTool("site_reset",
		mcp.WithDescription("Save the active session, then clear the domain's cookies and local storage and reload."),
		domainArg(),
	), s.handleSiteReset)
}
