package ws

import (
	"context"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/agungkristd/session-switcher/rpc"
)

func (h *rpcMethodHandler) handleSettingsSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	notifier := h.state.getNotifier()
	id, settings := h.settingsWatcher.Subscribe(notifier)
	h.state.trackSubscription(id, h.settingsWatcher)
	h.log.Debug("subscribed to settings", "watchId", id)

	result := rpc.SettingsSubscribeResult{
		ID:       id,
		Settings: settings,
	}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send settings subscribe response", "error", err)
	}
}

func (h *rpcMethodHandler) handleSettingsUpdate(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var patch rpc.SettingsUpdateParams
	if err := unmarshalParams(req, &patch); err != nil || patch.IsEmpty() {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	if err := patch.ApplyTo(h.settingsStore.Get()).Validate(); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, err.Error())
		return
	}
	updated, err := h.settingsStore.Apply(patch)
	if err != nil {
		h.log.Error("failed to update settings", "error", err)
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to update settings")
		return
	}
	if patch.ConfirmOverwrite != nil {
		h.log.Info("overwrite confirmation changed", "confirmOverwrite", updated.ConfirmOverwrite)
	}

	if err := conn.Reply(ctx, req.ID, rpc.SettingsUpdateResult{Settings: updated}); err != nil {
		h.log.Error("failed to send settings update response", "error", err)
	}
}
