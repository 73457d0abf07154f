package ws

import (
	"context"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/agungkristd/session-switcher/rpc"
	"github.com/agungkristd/session-switcher/session"
)

func (h *rpcMethodHandler) handleSessionListSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, m *session.Manager) {
	id, rec, err := h.sessionListWatcher.Subscribe(ctx, m.Domain(), h.state.getNotifier())
	if err != nil {
		h.replySessionError(ctx, conn, req.ID, "list", err)
		return
	}
	h.state.trackSubscription(id, h.sessionListWatcher)
	h.log.Debug("subscribed to session list", "watchId", id, "domain", m.Domain())

	result := rpc.SessionListSubscribeResult{
		ID:         id,
		Domain:     m.Domain(),
		Sessions:   rec.Sessions,
		ActiveName: rec.ActiveSessionName,
	}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send session list subscribe response", "error", err)
	}
}

func (h *rpcMethodHandler) handleSessionSave(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, m *session.Manager) {
	var params rpc.SessionSaveParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	view, err := m.Save(ctx, params.Name, session.SaveOptions{})
	h.replyView(ctx, conn, req, "save", view, err)
}

func (h *rpcMethodHandler) handleSessionRestore(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, m *session.Manager) {
	var params rpc.SessionRestoreParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	view, err := m.Restore(ctx, params.Name)
	h.replyView(ctx, conn, req, "restore", view, err)
}

func (h *rpcMethodHandler) handleSessionRename(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, m *session.Manager) {
	var params rpc.SessionRenameParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	view, err := m.Rename(ctx, params.Index, params.Name)
	h.replyView(ctx, conn, req, "rename", view, err)
}

func (h *rpcMethodHandler) handleSessionDelete(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, m *session.Manager) {
	var params rpc.SessionDeleteParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	view, err := m.Delete(ctx, params.Index)
	h.replyView(ctx, conn, req, "delete", view, err)
}

func (h *rpcMethodHandler) handleSessionReorder(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, m *session.Manager) {
	var params rpc.SessionReorderParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	view, err := m.Reorder(ctx, params.From, params.To)
	h.replyView(ctx, conn, req, "reorder", view, err)
}

func (h *rpcMethodHandler) handleSessionResetSite(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, m *session.Manager) {
	view, err := m.ResetSite(ctx)
	h.replyView(ctx, conn, req, "reset", view, err)
}

func (h *rpcMethodHandler) handleSessionSubmitName(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, m *session.Manager) {
	var params rpc.SessionSubmitNameParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if !params.Mode.IsValid() {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid mode")
		return
	}

	sub, err := m.SubmitName(ctx, params.Name, params.Mode)
	if err != nil {
		h.replySessionError(ctx, conn, req.ID, "submit", err)
		return
	}

	// With confirmations turned off the overwrite goes through directly.
	if sub.Outcome == session.OutcomeNeedsConfirmation && !h.settingsStore.Get().ConfirmOverwrite {
		view, err := m.Confirm(ctx, *sub.Pending)
		if err != nil {
			h.replySessionError(ctx, conn, req.ID, "submit", err)
			return
		}
		sub = session.Submission{Outcome: session.OutcomeApplied, View: view}
	}

	if err := conn.Reply(ctx, req.ID, sub); err != nil {
		h.log.Error("failed to send session submit_name response", "error", err)
	}
}

func (h *rpcMethodHandler) handleSessionConfirm(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, m *session.Manager) {
	var params rpc.SessionConfirmParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if !params.Pending.Mode.IsValid() {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid mode")
		return
	}

	view, err := m.Confirm(ctx, params.Pending)
	h.replyView(ctx, conn, req, "confirm", view, err)
}

func (h *rpcMethodHandler) replyView(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, op string, view session.View, err error) {
	if err != nil {
		h.replySessionError(ctx, conn, req.ID, op, err)
		return
	}
	if err := conn.Reply(ctx, req.ID, view); err != nil {
		h.log.Error("failed to send session "+op+" response", "error", err)
	}
}
