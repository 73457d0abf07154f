// Package rpc defines JSON-RPC 2.0 wire format types for WebSocket communication.
// These types represent the params and result structures for all RPC methods.
package rpc

import (
	"github.com/agungkristd/session-switcher/session"
	"github.com/agungkristd/session-switcher/settings"
)

// Client → Server

type AuthParams struct {
	Token string `json:"token"`
	// URL of the page the client is showing. Empty = the browser's active tab.
	URL   string `json:"url,omitempty"`
	TabID string `json:"tab_id,omitempty"`
}

type AuthResult struct {
	Version string       `json:"version"`
	Domain  string       `json:"domain"`
	View    session.View `json:"view"`
}

// Session management

type SessionSaveParams struct {
	Name string `json:"name"`
}

type SessionRestoreParams struct {
	Name string `json:"name"`
}

type SessionRenameParams struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

type SessionDeleteParams struct {
	Index int `json:"index"`
}

type SessionReorderParams struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type SessionSubmitNameParams struct {
	Name string       `json:"name"`
	Mode session.Mode `json:"mode"`
}

type SessionConfirmParams struct {
	Pending session.PendingAction `json:"pending"`
}

type SessionListSubscribeResult struct {
	ID         string            `json:"id"`
	Domain     string            `json:"domain"`
	Sessions   []session.Session `json:"sessions"`
	ActiveName string            `json:"active_name,omitempty"`
}

// Settings

type SettingsSubscribeResult struct {
	ID       string            `json:"id"`
	Settings settings.Settings `json:"settings"`
}

// SettingsUpdateParams is a partial update: omitted fields keep their value.
type SettingsUpdateParams = settings.Patch

type SettingsUpdateResult struct {
	Settings settings.Settings `json:"settings"`
}
