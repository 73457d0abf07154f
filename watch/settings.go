package watch

import (
	"log/slog"

	"github.com/agungkristd/session-switcher/settings"
)

// SettingsWatcher notifies subscribers when settings are updated.
type SettingsWatcher struct {
	*BaseWatcher
	store   *settings.Store
	eventCh chan settings.Settings
}

func NewSettingsWatcher(store *settings.Store) *SettingsWatcher {
	w := &SettingsWatcher{
		BaseWatcher: NewBaseWatcher("st"),
		store:       store,
		eventCh:     make(chan settings.Settings, 16),
	}
	store.AddOnChangeListener(w)
	return w
}

func (w *SettingsWatcher) Start() error {
	go w.eventLoop()
	slog.Info("SettingsWatcher started")
	return nil
}

func (w *SettingsWatcher) Stop() {
	w.Cancel()
	slog.Info("SettingsWatcher stopped")
}

func (w *SettingsWatcher) eventLoop() {
	for {
		select {
		case <-w.Context().Done():
			return
		case s := <-w.eventCh:
			w.notifyChange(s)
		}
	}
}

func (w *SettingsWatcher) notifyChange(s settings.Settings) {
	if !w.HasSubscriptions() {
		return
	}

	w.NotifyAll("settings.changed", func(sub *Subscription) any {
		return SettingsChangedParams{
			ID:       sub.ID,
			Settings: s,
		}
	})

	slog.Debug("notified settings change")
}

// Subscribe registers a subscriber and returns the subscription ID along with
// the current settings.
func (w *SettingsWatcher) Subscribe(notifier Notifier) (string, settings.Settings) {
	id := w.GenerateID()
	w.AddSubscription(&Subscription{ID: id, Notifier: notifier})
	return id, w.store.Get()
}

type SettingsChangedParams struct {
	ID       string            `json:"id"`
	Settings settings.Settings `json:"settings"`
}

// OnSettingsChange implements settings.OnChangeListener.
func (w *SettingsWatcher) OnSettingsChange(s settings.Settings) {
	if w.Context().Err() != nil {
		return
	}

	select {
	case w.eventCh <- s:
	default:
		slog.Warn("settings change event dropped (buffer full)")
	}
}
