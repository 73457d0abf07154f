package session

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const legacyDump = `{
  "app.test": {"sessions": [
    {"name": "work", "timestamp": 1700000000000, "cookies": [{"name": "sid", "value": "w", "domain": "app.test", "hostOnly": true, "path": "/", "secure": true, "httpOnly": true, "session": true}], "localStorage": {"b": "2", "a": "1"}},
    {"name": "home", "timestamp": 1700000001000, "lastUsed": 1700000002000, "cookies": []}
  ]},
  "app.test_active": "home",
  "other.test": {"sessions": [
    {"name": "dup", "timestamp": 1, "cookies": []},
    {"name": "dup", "timestamp": 2, "cookies": []}
  ]},
  "other.test_active": "ghost",
  "settings": 42
}`

func TestDecodeLegacy(t *testing.T) {
	records, err := DecodeLegacy(strings.NewReader(legacyDump))
	if err != nil {
		t.Fatalf("DecodeLegacy: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	app := records["app.test"]
	if diff := cmp.Diff([]string{"work", "home"}, names(app.Sessions)); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}
	if app.ActiveSessionName != "home" {
		t.Errorf("active = %q, want home", app.ActiveSessionName)
	}
	work := app.Sessions[0]
	if !work.Cookies[0].HostOnly || !work.Cookies[0].HTTPOnly {
		t.Errorf("cookie flags lost: %+v", work.Cookies[0])
	}
	if work.Storage == nil {
		t.Fatal("storage missing")
	}
	var keys []string
	for pair := work.Storage.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	if diff := cmp.Diff([]string{"b", "a"}, keys); diff != "" {
		t.Errorf("storage key order mismatch (-want +got):\n%s", diff)
	}
	if lu := app.Sessions[1].LastUsedAt; lu == nil || *lu != 1700000002000 {
		t.Errorf("lastUsed = %v", lu)
	}

	if other := records["other.test"]; other.ActiveSessionName != "" {
		t.Errorf("dangling pointer kept: %q", other.ActiveSessionName)
	}
}

func TestDecodeLegacy_Invalid(t *testing.T) {
	if _, err := DecodeLegacy(strings.NewReader("not json")); err == nil {
		t.Fatal("expected error")
	}
}

func TestImport_DedupesAndReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := AppendSession(ctx, s, "app.test", Session{Name: "stale"}); err != nil {
		t.Fatal(err)
	}

	records, err := DecodeLegacy(strings.NewReader(legacyDump))
	if err != nil {
		t.Fatal(err)
	}
	domains, err := Import(ctx, s, records)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if diff := cmp.Diff([]string{"app.test", "other.test"}, domains); diff != "" {
		t.Errorf("domains mismatch (-want +got):\n%s", diff)
	}

	app, _ := s.Load(ctx, "app.test")
	if diff := cmp.Diff([]string{"work", "home"}, names(app.Sessions)); diff != "" {
		t.Errorf("app.test sessions mismatch (-want +got):\n%s", diff)
	}
	other, _ := s.Load(ctx, "other.test")
	if len(other.Sessions) != 1 || other.Sessions[0].CreatedAt != 1 {
		t.Errorf("other.test = %+v, want first dup only", other.Sessions)
	}
}

func TestExportRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	records, _ := DecodeLegacy(strings.NewReader(legacyDump))
	if _, err := Import(ctx, s, records); err != nil {
		t.Fatal(err)
	}

	exported, err := Export(ctx, s)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	var buf bytes.Buffer
	if err := EncodeLegacy(&buf, exported); err != nil {
		t.Fatalf("EncodeLegacy: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	var active string
	if err := json.Unmarshal(raw["app.test_active"], &active); err != nil || active != "home" {
		t.Errorf("app.test_active = %s, want \"home\"", raw["app.test_active"])
	}
	if _, ok := raw["other.test_active"]; ok {
		t.Error("other.test_active written for record without active session")
	}

	again, err := DecodeLegacy(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(names(exported["app.test"].Sessions), names(again["app.test"].Sessions)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
