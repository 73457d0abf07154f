package session

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Store persists one DomainRecord per domain.
type Store interface {
	// Load returns the record for domain. An unknown domain yields an empty
	// record with revision zero. A dangling active pointer is cleared in the
	// returned record.
	Load(ctx context.Context, domain string) (DomainRecord, error)
	// Commit atomically replaces the record for domain. It fails with
	// ErrConflict unless rec.Revision equals the stored revision.
	Commit(ctx context.Context, domain string, rec DomainRecord) (DomainRecord, error)
	// Domains lists domains that have a stored record, sorted.
	Domains(ctx context.Context) ([]string, error)

	AddOnChangeListener(listener OnChangeListener)
}

const (
	commitRetries = 5
	retryBackoff  = 5 * time.Millisecond
)

// Update loads the record for domain, applies fn and commits the result,
// retrying when another writer got in between. fn must be free of side
// effects outside the record.
func Update(ctx context.Context, st Store, domain string, fn func(rec *DomainRecord) error) (DomainRecord, error) {
	var err error
	for attempt := 0; attempt < commitRetries; attempt++ {
		var rec DomainRecord
		rec, err = st.Load(ctx, domain)
		if err != nil {
			return DomainRecord{}, err
		}
		rec = rec.Clone()
		if err = fn(&rec); err != nil {
			return DomainRecord{}, err
		}
		var stored DomainRecord
		stored, err = st.Commit(ctx, domain, rec)
		if errors.Is(err, ErrConflict) {
			slog.Debug("commit conflict, retrying", "domain", domain, "attempt", attempt+1)
			// Jitter so two writers in lock step stop colliding.
			wait := time.Duration(rand.Int64N(int64(retryBackoff) * int64(attempt+1)))
			select {
			case <-ctx.Done():
				return DomainRecord{}, ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		return stored, err
	}
	return DomainRecord{}, err
}

// LoadSessions returns the session list for domain, empty if unknown.
func LoadSessions(ctx context.Context, st Store, domain string) ([]Session, error) {
	rec, err := st.Load(ctx, domain)
	if err != nil {
		return nil, err
	}
	return rec.Clone().Sessions, nil
}

// ReplaceSessions overwrites the full session list for domain. The active
// pointer is left as is.
func ReplaceSessions(ctx context.Context, st Store, domain string, sessions []Session) error {
	_, err := Update(ctx, st, domain, func(rec *DomainRecord) error {
		rec.Sessions = sessions
		return nil
	})
	return err
}

func AppendSession(ctx context.Context, st Store, domain string, s Session) error {
	_, err := Update(ctx, st, domain, func(rec *DomainRecord) error {
		rec.Sessions = append(rec.Sessions, s)
		return nil
	})
	return err
}

// GetActiveSession returns the active session name for domain.
func GetActiveSession(ctx context.Context, st Store, domain string) (string, bool, error) {
	rec, err := st.Load(ctx, domain)
	if err != nil {
		return "", false, err
	}
	return rec.ActiveSessionName, rec.ActiveSessionName != "", nil
}

// SetActiveSession sets the active pointer; an empty name clears it.
func SetActiveSession(ctx context.Context, st Store, domain, name string) error {
	_, err := Update(ctx, st, domain, func(rec *DomainRecord) error {
		rec.ActiveSessionName = name
		return nil
	})
	return err
}

func healOnLoad(domain string, rec *DomainRecord) {
	dangling := rec.ActiveSessionName
	if rec.heal() {
		slog.Warn("cleared dangling active session", "domain", domain, "name", dangling)
	}
}

func notify(listeners []OnChangeListener, event ChangeEvent) {
	for _, l := range listeners {
		l.OnSessionChange(event)
	}
}
