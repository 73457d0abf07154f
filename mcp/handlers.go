package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agungkristd/session-switcher/session"
)

func (s *Server) manager(req mcp.CallToolRequest) (*session.Manager, *mcp.CallToolResult) {
	domain, err := req.RequireString("domain")
	if err != nil || domain == "" {
		return nil, ValidationError("domain is required")
	}
	m, err := s.registry.ForDomain(domain)
	if err != nil {
		return nil, sessionError("", err)
	}
	return m, nil
}

func (s *Server) handleDomainList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	domains, err := s.registry.Store().Domains(ctx)
	if err != nil {
		return InternalError(err), nil
	}
	return jsonResult(map[string]any{"domains": domains})
}

type sessionSummary struct {
	Index    int                `json:"index"`
	Name     string             `json:"name"`
	Active   bool               `json:"active"`
	Cookies  int                `json:"cookies"`
	Created  session.UnixMilli  `json:"timestamp"`
	LastUsed *session.UnixMilli `json:"lastUsed,omitempty"`
}

type listResult struct {
	Domain     string           `json:"domain"`
	ActiveName string           `json:"active_name,omitempty"`
	Sessions   []sessionSummary `json:"sessions"`
}

// summarize leaves out cookie values and storage, which are credentials.
func summarize(v session.View) listResult {
	out := listResult{
		Domain:     v.Domain,
		ActiveName: v.ActiveName,
		Sessions:   make([]sessionSummary, len(v.Sessions)),
	}
	for i, sess := range v.Sessions {
		out.Sessions[i] = sessionSummary{
			Index:    i,
			Name:     sess.Name,
			Active:   sess.Name == v.ActiveName,
			Cookies:  len(sess.Cookies),
			Created:  sess.CreatedAt,
			LastUsed: sess.LastUsedAt,
		}
	}
	return out
}

func (s *Server) handleSessionList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, errResult := s.manager(req)
	if errResult != nil {
		return errResult, nil
	}
	v, err := m.View(ctx)
	if err != nil {
		return InternalError(err), nil
	}
	return jsonResult(summarize(v))
}

func (s *Server) handleSessionSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, errResult := s.manager(req)
	if errResult != nil {
		return errResult, nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return ValidationError("name is required"), nil
	}

	v, err := m.Save(ctx, name, session.SaveOptions{})
	if err != nil {
		return sessionError(name, err), nil
	}
	return jsonResult(summarize(v))
}

func (s *Server) handleSessionRestore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, errResult := s.manager(req)
	if errResult != nil {
		return errResult, nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return ValidationError("name is required"), nil
	}

	v, err := m.Restore(ctx, name)
	if err != nil {
		return sessionError(name, err), nil
	}
	return jsonResult(summarize(v))
}

func (s *Server) handleSessionRename(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, errResult := s.manager(req)
	if errResult != nil {
		return errResult, nil
	}
	index, err := req.RequireInt("index")
	if err != nil {
		return ValidationError("index is required"), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return ValidationError("name is required"), nil
	}

	v, err := m.Rename(ctx, index, name)
	if err != nil {
		return sessionError(name, err), nil
	}
	return jsonResult(summarize(v))
}

func (s *Server) handleSessionDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, errResult := s.manager(req)
	if errResult != nil {
		return errResult, nil
	}
	index, err := req.RequireInt("index")
	if err != nil {
		return ValidationError("index is required"), nil
	}

	v, err := m.Delete(ctx, index)
	if err != nil {
		return InternalError(err), nil
	}
	return jsonResult(summarize(v))
}

func (s *Server) handleSessionReorder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, errResult := s.manager(req)
	if errResult != nil {
		return errResult, nil
	}
	from, err := req.RequireInt("from")
	if err != nil {
		return ValidationError("from is required"), nil
	}
	to, err := req.RequireInt("to")
	if err != nil {
		return ValidationError("to is required"), nil
	}

	v, err := m.Reorder(ctx, from, to)
	if err != nil {
		return InternalError(err), nil
	}
	return jsonResult(summarize(v))
}

func (s *Server) handleSiteReset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, errResult := s.manager(req)
	if errResult != nil {
		return errResult, nil
	}

	v, err := m.ResetSite(ctx)
	if err != nil {
		return sessionError("", err), nil
	}
	return jsonResult(summarize(v))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}
