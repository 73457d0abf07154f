package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/agungkristd/session-switcher/logger"
	"github.com/agungkristd/session-switcher/rpc"
	"github.com/agungkristd/session-switcher/session"
	"github.com/agungkristd/session-switcher/settings"
	"github.com/agungkristd/session-switcher/site"
	"github.com/agungkristd/session-switcher/watch"
)

// RPCHandler handles JSON-RPC 2.0 over WebSocket.
type RPCHandler struct {
	token              string
	version            string
	devMode            bool
	registry           *session.Registry
	settingsStore      *settings.Store
	sessionListWatcher *watch.SessionListWatcher
	settingsWatcher    *watch.SettingsWatcher
}

func NewRPCHandler(token, version string, devMode bool, registry *session.Registry, settingsStore *settings.Store) *RPCHandler {
	sessionListWatcher := watch.NewSessionListWatcher(registry.Store())
	sessionListWatcher.Start()
	settingsWatcher := watch.NewSettingsWatcher(settingsStore)
	settingsWatcher.Start()

	return &RPCHandler{
		token:              token,
		version:            version,
		devMode:            devMode,
		registry:           registry,
		settingsStore:      settingsStore,
		sessionListWatcher: sessionListWatcher,
		settingsWatcher:    settingsWatcher,
	}
}

// Stop stops the RPC handler and releases resources.
func (h *RPCHandler) Stop() {
	h.sessionListWatcher.Stop()
	h.settingsWatcher.Stop()
}

func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.devMode,
	})
	if err != nil {
		slog.Error("failed to accept websocket", "error", err)
		return
	}

	stream := newWebSocketStream(conn)
	connID := uuid.Must(uuid.NewV7()).String()
	h.HandleStream(r.Context(), stream, connID)
}

func (h *RPCHandler) HandleStream(ctx context.Context, stream jsonrpc2.ObjectStream, connID string) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "websocket connection crashed", "connId", connID)
		}
	}()

	log := slog.With("connId", connID)
	log.Info("new connection")

	state := &rpcConnState{
		connID: connID,
		log:    log,
	}

	handler := &rpcMethodHandler{
		RPCHandler: h,
		state:      state,
		log:        log,
	}

	rpcConn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.AsyncHandler(handler))
	state.setConn(rpcConn)

	<-rpcConn.DisconnectNotify()

	state.cleanup()
	log.Info("connection closed")
}

// rpcConnState tracks per-connection state.
type rpcConnState struct {
	mu            sync.Mutex
	connID        string
	conn          *jsonrpc2.Conn
	notifier      *JSONRPCNotifier
	log           *slog.Logger
	manager       *session.Manager         // set after auth
	subscriptions map[string]watch.Watcher // subID → watcher for cleanup
}

func (s *rpcConnState) setConn(conn *jsonrpc2.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.notifier = NewJSONRPCNotifier(conn)
	s.subscriptions = make(map[string]watch.Watcher)
	s.mu.Unlock()
}

func (s *rpcConnState) getNotifier() watch.Notifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifier
}

func (s *rpcConnState) getManager() *session.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager
}

func (s *rpcConnState) setManager(m *session.Manager) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manager = m
}

func (s *rpcConnState) trackSubscription(id string, watcher watch.Watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[id] = watcher
}

func (s *rpcConnState) untrackSubscription(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, id)
}

func (s *rpcConnState) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, watcher := range s.subscriptions {
		watcher.Unsubscribe(id)
	}
	s.subscriptions = nil
	s.manager = nil
}

type rpcMethodHandler struct {
	*RPCHandler
	state *rpcConnState
	log   *slog.Logger
}

func (h *rpcMethodHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "rpc handler panic", "method", req.Method, "connId", h.state.connID)
		}
	}()

	h.log.Debug("received request", "method", req.Method, "id", req.ID)

	// Auth must be the first request
	m := h.state.getManager()
	if m == nil {
		if req.Method != "auth" {
			h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidRequest, "first request must be auth")
			conn.Close()
			return
		}
		h.handleAuth(ctx, conn, req)
		return
	}

	switch req.Method {
	// session namespace
	case "session.list.subscribe":
		h.handleSessionListSubscribe(ctx, conn, req, m)
	case "session.list.unsubscribe":
		h.handleWatcherUnsubscribe(ctx, conn, req, h.sessionListWatcher, "session list")
	case "session.save":
		h.handleSessionSave(ctx, conn, req, m)
	case "session.restore":
		h.handleSessionRestore(ctx, conn, req, m)
	case "session.rename":
		h.handleSessionRename(ctx, conn, req, m)
	case "session.delete":
		h.handleSessionDelete(ctx, conn, req, m)
	case "session.reorder":
		h.handleSessionReorder(ctx, conn, req, m)
	case "session.reset_site":
		h.handleSessionResetSite(ctx, conn, req, m)
	case "session.submit_name":
		h.handleSessionSubmitName(ctx, conn, req, m)
	case "session.confirm":
		h.handleSessionConfirm(ctx, conn, req, m)
	// settings namespace
	case "settings.subscribe":
		h.handleSettingsSubscribe(ctx, conn, req)
	case "settings.unsubscribe":
		h.handleWatcherUnsubscribe(ctx, conn, req, h.settingsWatcher, "settings")
	case "settings.update":
		h.handleSettingsUpdate(ctx, conn, req)
	default:
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (h *rpcMethodHandler) handleAuth(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.AuthParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		conn.Close()
		return
	}

	if subtle.ConstantTimeCompare([]byte(params.Token), []byte(h.token)) != 1 {
		h.log.Warn("invalid auth token")
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidRequest, "invalid token")
		conn.Close()
		return
	}

	target, err := h.resolveSite(ctx, params)
	if err != nil {
		h.log.Warn("no site to bind", "url", params.URL, "error", err)
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "no active site")
		conn.Close()
		return
	}

	m, err := h.registry.ForSite(target)
	if err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "no active site")
		conn.Close()
		return
	}

	view, err := m.View(ctx)
	if err != nil {
		h.log.Error("failed to load sessions", "domain", m.Domain(), "error", err)
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to load sessions")
		conn.Close()
		return
	}

	h.state.setManager(m)
	h.log.Info("authenticated", "domain", m.Domain(), "url", target.URL)

	result := rpc.AuthResult{
		Version: h.version,
		Domain:  m.Domain(),
		View:    view,
	}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send auth response", "error", err)
	}
}

func (h *rpcMethodHandler) resolveSite(ctx context.Context, params rpc.AuthParams) (site.Site, error) {
	if params.URL == "" {
		return h.registry.Driver().CurrentSite(ctx)
	}
	s, err := site.FromURL(params.URL)
	if err != nil {
		return site.Site{}, err
	}
	s.TabID = params.TabID
	return s, nil
}

func (h *rpcMethodHandler) replyError(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, code int64, message string) {
	err := &jsonrpc2.Error{
		Code:    code,
		Message: message,
	}
	if replyErr := conn.ReplyWithError(ctx, id, err); replyErr != nil {
		h.log.Error("failed to send error response", "error", replyErr)
	}
}

// replySessionError maps session and site errors onto JSON-RPC codes.
func (h *rpcMethodHandler) replySessionError(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, op string, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidName):
		h.replyError(ctx, conn, id, jsonrpc2.CodeInvalidParams, "name is required")
	case errors.Is(err, session.ErrSessionNotFound):
		h.replyError(ctx, conn, id, jsonrpc2.CodeInvalidParams, "session not found")
	case errors.Is(err, site.ErrNoSite):
		h.replyError(ctx, conn, id, jsonrpc2.CodeInvalidParams, "no tab open for this site")
	default:
		h.log.Error("session operation failed", "op", op, "error", err)
		h.replyError(ctx, conn, id, jsonrpc2.CodeInternalError, "failed to "+op+" session")
	}
}

func unmarshalParams(req *jsonrpc2.Request, v interface{}) error {
	if req.Params == nil {
		return errors.New("params required")
	}
	return json.Unmarshal(*req.Params, v)
}

type unsubscribeParams struct {
	ID string `json:"id"`
}

func (h *rpcMethodHandler) handleWatcherUnsubscribe(
	ctx context.Context,
	conn *jsonrpc2.Conn,
	req *jsonrpc2.Request,
	watcher watch.Watcher,
	logName string,
) {
	var params unsubscribeParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if params.ID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "id is required")
		return
	}

	watcher.Unsubscribe(params.ID)
	h.state.untrackSubscription(params.ID)
	h.log.Debug("unsubscribed", "watcher", logName, "watchId", params.ID)

	if err := conn.Reply(ctx, req.ID, struct{}{}); err != nil {
		h.log.Error("failed to send "+logName+" unsubscribe response", "error", err)
	}
}

// webSocketStream adapts coder/websocket to jsonrpc2.ObjectStream.
type webSocketStream struct {
	conn *websocket.Conn
	mu   sync.Mutex // protects writes
}

func newWebSocketStream(conn *websocket.Conn) *webSocketStream {
	return &webSocketStream{conn: conn}
}

func (s *webSocketStream) ReadObject(v interface{}) error {
	_, data, err := s.conn.Read(context.Background())
	if err != nil {
		// Treat normal close frames as EOF so jsonrpc2 shuts down gracefully
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return io.EOF
		}
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *webSocketStream) WriteObject(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(context.Background(), websocket.MessageText, data)
}

func (s *webSocketStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

var _ jsonrpc2.ObjectStream = (*webSocketStream)(nil)
