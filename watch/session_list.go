package watch

import (
	"context"
	"log/slog"

	"github.com/agungkristd/session-switcher/session"
)

// SessionListWatcher notifies subscribers of a domain when its record
// changes. Store listeners must not block, so events are queued and sent
// from a separate goroutine.
type SessionListWatcher struct {
	*BaseWatcher
	store   session.Store
	eventCh chan session.ChangeEvent
}

func NewSessionListWatcher(store session.Store) *SessionListWatcher {
	w := &SessionListWatcher{
		BaseWatcher: NewBaseWatcher("sl"),
		store:       store,
		eventCh:     make(chan session.ChangeEvent, 64),
	}
	store.AddOnChangeListener(w)
	return w
}

func (w *SessionListWatcher) Start() error {
	go w.eventLoop()
	slog.Info("SessionListWatcher started")
	return nil
}

func (w *SessionListWatcher) Stop() {
	w.Cancel()
	slog.Info("SessionListWatcher stopped")
}

func (w *SessionListWatcher) eventLoop() {
	for {
		select {
		case <-w.Context().Done():
			return
		case event := <-w.eventCh:
			w.notifyChange(event)
		}
	}
}

type SessionListChangedParams struct {
	ID         string            `json:"id"`
	Domain     string            `json:"domain"`
	Sessions   []session.Session `json:"sessions"`
	ActiveName string            `json:"active_name,omitempty"`
}

func (w *SessionListWatcher) notifyChange(event session.ChangeEvent) {
	n := w.NotifyTopic(event.Domain, "session.list.changed", func(sub *Subscription) any {
		return SessionListChangedParams{
			ID:         sub.ID,
			Domain:     event.Domain,
			Sessions:   event.Record.Sessions,
			ActiveName: event.Record.ActiveSessionName,
		}
	})
	if n > 0 {
		slog.Debug("notified session list change", "domain", event.Domain, "subscribers", n)
	}
}

// Subscribe registers a subscriber for domain and returns the subscription
// ID with the domain's current record.
func (w *SessionListWatcher) Subscribe(ctx context.Context, domain string, notifier Notifier) (string, session.DomainRecord, error) {
	id := w.GenerateID()
	// Add before loading so a change between the two is not missed.
	w.AddSubscription(&Subscription{ID: id, Topic: domain, Notifier: notifier})

	rec, err := w.store.Load(ctx, domain)
	if err != nil {
		w.RemoveSubscription(id)
		return "", session.DomainRecord{}, err
	}
	return id, rec, nil
}

// OnSessionChange implements session.OnChangeListener.
func (w *SessionListWatcher) OnSessionChange(event session.ChangeEvent) {
	if w.Context().Err() != nil {
		return
	}

	select {
	case w.eventCh <- event:
	default:
		slog.Warn("session list change event dropped (buffer full)", "domain", event.Domain)
	}
}
