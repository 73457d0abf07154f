package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// The browser extension kept two entries per domain in its key-value
// storage: "<host>" holding {"sessions": [...]} and "<host>_active" holding
// the bare active session name. DecodeLegacy and EncodeLegacy convert between
// that layout and DomainRecords.

const legacyActiveSuffix = "_active"

type legacyDomain struct {
	Sessions []Session `json:"sessions"`
}

// DecodeLegacy parses a dump of the extension's storage. Entries of any other
// shape are skipped.
func DecodeLegacy(r io.Reader) (map[string]DomainRecord, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode legacy dump: %w", err)
	}

	records := make(map[string]DomainRecord)
	active := make(map[string]string)

	for key, value := range raw {
		var name string
		if strings.HasSuffix(key, legacyActiveSuffix) && json.Unmarshal(value, &name) == nil {
			active[strings.TrimSuffix(key, legacyActiveSuffix)] = name
			continue
		}
		var d legacyDomain
		if err := json.Unmarshal(value, &d); err != nil || d.Sessions == nil {
			slog.Debug("skipping legacy entry", "key", key)
			continue
		}
		records[key] = DomainRecord{Sessions: d.Sessions}
	}

	for domain, name := range active {
		rec, ok := records[domain]
		if !ok {
			continue
		}
		rec.ActiveSessionName = name
		healOnLoad(domain, &rec)
		records[domain] = rec
	}
	return records, nil
}

// EncodeLegacy writes records in the extension's two-key layout.
func EncodeLegacy(w io.Writer, records map[string]DomainRecord) error {
	out := make(map[string]any, len(records)*2)
	for domain, rec := range records {
		out[domain] = legacyDomain{Sessions: rec.Clone().Sessions}
		if rec.ActiveSessionName != "" {
			out[domain+legacyActiveSuffix] = rec.ActiveSessionName
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// Import replaces the stored record of every domain in records. It returns
// the imported domains in order.
func Import(ctx context.Context, st Store, records map[string]DomainRecord) ([]string, error) {
	domains := slices.Sorted(maps.Keys(records))
	for _, domain := range domains {
		src := records[domain]
		_, err := Update(ctx, st, domain, func(rec *DomainRecord) error {
			rec.Sessions = dedupeNames(domain, src.Clone().Sessions)
			rec.ActiveSessionName = src.ActiveSessionName
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", domain, err)
		}
	}
	return domains, nil
}

// dedupeNames drops later sessions that repeat an earlier name. Old
// extension builds could produce such lists when renaming onto an existing
// name.
func dedupeNames(domain string, sessions []Session) []Session {
	seen := make(map[string]bool, len(sessions))
	out := sessions[:0]
	for _, s := range sessions {
		if seen[s.Name] {
			slog.Warn("dropping duplicate session on import", "domain", domain, "name", s.Name)
			continue
		}
		seen[s.Name] = true
		out = append(out, s)
	}
	return out
}

// Export loads every stored domain.
func Export(ctx context.Context, st Store) (map[string]DomainRecord, error) {
	domains, err := st.Domains(ctx)
	if err != nil {
		return nil, err
	}
	records := make(map[string]DomainRecord, len(domains))
	for _, domain := range domains {
		rec, err := st.Load(ctx, domain)
		if err != nil {
			return nil, err
		}
		records[domain] = rec
	}
	return records, nil
}
