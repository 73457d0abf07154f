package watch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Subscription is one client's interest in a watcher. Topic narrows which
// changes it receives; watchers without topics leave it empty.
type Subscription struct {
	ID       string
	Topic    string
	Notifier Notifier
}

// BaseWatcher provides common subscription management for all watcher types.
type BaseWatcher struct {
	idPrefix string

	subMu         sync.RWMutex
	subscriptions map[string]*Subscription

	ctx    context.Context
	cancel context.CancelFunc
}

func NewBaseWatcher(idPrefix string) *BaseWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &BaseWatcher{
		idPrefix:      idPrefix,
		subscriptions: make(map[string]*Subscription),
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (b *BaseWatcher) GenerateID() string {
	return b.idPrefix + "_" + uuid.NewString()
}

func (b *BaseWatcher) AddSubscription(sub *Subscription) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	b.subscriptions[sub.ID] = sub
}

func (b *BaseWatcher) RemoveSubscription(id string) *Subscription {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	sub, ok := b.subscriptions[id]
	if !ok {
		return nil
	}

	delete(b.subscriptions, id)
	return sub
}

// Subscriptions returns the subscriptions on topic. An empty topic matches
// every subscription.
func (b *BaseWatcher) Subscriptions(topic string) []*Subscription {
	b.subMu.RLock()
	defer b.subMu.RUnlock()

	subs := make([]*Subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		if topic == "" || sub.Topic == topic {
			subs = append(subs, sub)
		}
	}
	return subs
}

func (b *BaseWatcher) GetSubscription(id string) *Subscription {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	return b.subscriptions[id]
}

// NotifyTopic sends method to every subscription on topic and returns how
// many were notified. Delivery errors are logged and otherwise ignored.
func (b *BaseWatcher) NotifyTopic(topic, method string, makeParams func(sub *Subscription) any) int {
	subs := b.Subscriptions(topic)
	for _, sub := range subs {
		n := Notification{Method: method, Params: makeParams(sub)}
		if err := sub.Notifier.Notify(b.ctx, n); err != nil {
			slog.Debug("failed to notify subscriber",
				"id", sub.ID,
				"error", err)
		}
	}
	return len(subs)
}

func (b *BaseWatcher) NotifyAll(method string, makeParams func(sub *Subscription) any) int {
	return b.NotifyTopic("", method, makeParams)
}

func (b *BaseWatcher) Context() context.Context { return b.ctx }
func (b *BaseWatcher) Cancel()                  { b.cancel() }

func (b *BaseWatcher) HasSubscriptions() bool {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	return len(b.subscriptions) > 0
}

func (b *BaseWatcher) Unsubscribe(id string) {
	b.RemoveSubscription(id)
}

// Watcher is the part of a watcher a connection needs to clean up after
// itself.
type Watcher interface {
	Unsubscribe(id string)
}

var _ Watcher = (*BaseWatcher)(nil)
