package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/agungkristd/session-switcher/site"
)

const testHost = "app.test"

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type testEnv struct {
	m      *Manager
	driver *site.MemoryDriver
	store  *FileStore
	clock  *fakeClock
}

func newTestManager(t *testing.T) *testEnv {
	t.Helper()
	store := newTestStore(t)
	driver := site.NewMemoryDriver("https://" + testHost + "/dashboard")
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	target, err := site.FromURL("https://" + testHost + "/dashboard")
	if err != nil {
		t.Fatalf("FromURL: %v", err)
	}
	return &testEnv{
		m:      NewManager(target, store, driver, WithClock(clock.Now)),
		driver: driver,
		store:  store,
		clock:  clock,
	}
}

// login replaces the live state with a cookie and storage entry for user.
func (e *testEnv) login(user string) {
	e.driver.SetLive(testHost, site.Snapshot{
		Cookies: []site.Cookie{{Name: "sid", Value: user, Domain: testHost, HostOnly: true, Path: "/", Session: true}},
		Storage: site.NewStorage("user", user),
	})
}

func (e *testEnv) liveUser(t *testing.T) string {
	t.Helper()
	live := e.driver.Live(testHost)
	if len(live.Cookies) == 0 {
		return ""
	}
	return live.Cookies[0].Value
}

func mustSave(t *testing.T, m *Manager, name string) View {
	t.Helper()
	v, err := m.Save(context.Background(), name, SaveOptions{})
	if err != nil {
		t.Fatalf("Save %q: %v", name, err)
	}
	return v
}

func names(sessions []Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.Name
	}
	return out
}

func storageValue(s Session, key string) string {
	if s.Storage == nil {
		return ""
	}
	v, _ := s.Storage.Get(key)
	return v
}

func sessionNamed(t *testing.T, v View, name string) Session {
	t.Helper()
	for _, s := range v.Sessions {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("session %q not in %v", name, names(v.Sessions))
	return Session{}
}

// --- Save ---

func TestSave_CreatesAndActivates(t *testing.T) {
	e := newTestManager(t)
	e.login("alice")

	v := mustSave(t, e.m, "alice")

	if diff := cmp.Diff([]string{"alice"}, names(v.Sessions)); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}
	if v.ActiveName != "alice" {
		t.Errorf("active = %q, want alice", v.ActiveName)
	}
	s := v.Sessions[0]
	if len(s.Cookies) != 1 || s.Cookies[0].Value != "alice" {
		t.Errorf("cookies = %+v", s.Cookies)
	}
	if got := storageValue(s, "user"); got != "alice" {
		t.Errorf("storage user = %q, want alice", got)
	}
	if s.LastUsedAt != nil {
		t.Errorf("lastUsed = %v, want nil", *s.LastUsedAt)
	}
	if s.CreatedAt != NewUnixMilli(e.clock.t) {
		t.Errorf("createdAt = %d, want %d", s.CreatedAt, NewUnixMilli(e.clock.t))
	}
}

func TestSave_EmptyName(t *testing.T) {
	e := newTestManager(t)
	for _, name := range []string{"", "   "} {
		if _, err := e.m.Save(context.Background(), name, SaveOptions{}); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Save(%q) err = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestSave_OverwriteKeepsPositionAndCreatedAt(t *testing.T) {
	e := newTestManager(t)
	e.login("v1")
	first := mustSave(t, e.m, "a")
	mustSave(t, e.m, "b")

	e.clock.Advance(time.Minute)
	e.login("v2")
	v := mustSave(t, e.m, "a")

	if diff := cmp.Diff([]string{"a", "b"}, names(v.Sessions)); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}
	a := v.Sessions[0]
	if a.Cookies[0].Value != "v2" {
		t.Errorf("cookie = %q, want v2", a.Cookies[0].Value)
	}
	if a.CreatedAt != first.Sessions[0].CreatedAt {
		t.Errorf("createdAt changed: %d -> %d", first.Sessions[0].CreatedAt, a.CreatedAt)
	}
	if a.UpdatedAt != NewUnixMilli(e.clock.t) {
		t.Errorf("updatedAt = %d, want %d", a.UpdatedAt, NewUnixMilli(e.clock.t))
	}
}

func TestSave_NamesStayUnique(t *testing.T) {
	e := newTestManager(t)
	for _, name := range []string{"a", "b", "a", "c", "b", "a"} {
		e.login(name)
		mustSave(t, e.m, name)
	}

	v, _ := e.m.View(context.Background())
	if diff := cmp.Diff([]string{"a", "b", "c"}, names(v.Sessions)); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}
}

func TestSave_Idempotent(t *testing.T) {
	e := newTestManager(t)
	e.login("first")
	mustSave(t, e.m, "x")
	e.login("second")
	v := mustSave(t, e.m, "x")

	if len(v.Sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(v.Sessions))
	}
	if got := storageValue(v.Sessions[0], "user"); got != "second" {
		t.Errorf("storage user = %q, want second", got)
	}
}

func TestSave_SkipActivation(t *testing.T) {
	e := newTestManager(t)
	e.login("a")
	mustSave(t, e.m, "a")

	v, err := e.m.Save(context.Background(), "b", SaveOptions{SkipActivation: true})
	if err != nil {
		t.Fatal(err)
	}
	if v.ActiveName != "a" {
		t.Errorf("active = %q, want a", v.ActiveName)
	}
}

func TestSave_RestrictedPageSkipsStorage(t *testing.T) {
	e := newTestManager(t)
	e.m.Retarget(site.Site{URL: "chrome://settings"})
	e.login("a")

	v := mustSave(t, e.m, "a")
	if v.Sessions[0].Storage != nil {
		t.Error("expected no storage snapshot on restricted page")
	}
	if v.Sessions[0].Cookies == nil {
		t.Error("cookies is nil, want empty slice")
	}
}

// --- Restore ---

func TestRestore_AutoSavesActiveFirst(t *testing.T) {
	e := newTestManager(t)
	ctx := context.Background()

	e.login("x")
	mustSave(t, e.m, "X")
	e.login("y")
	mustSave(t, e.m, "Y")
	if _, err := e.m.Restore(ctx, "X"); err != nil {
		t.Fatal(err)
	}

	// Unsaved changes while X is active.
	e.login("x-changed")

	v, err := e.m.Restore(ctx, "Y")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if got := storageValue(sessionNamed(t, v, "X"), "user"); got != "x-changed" {
		t.Errorf("X storage = %q, want x-changed", got)
	}
	if got := e.liveUser(t); got != "y" {
		t.Errorf("live user = %q, want y", got)
	}
	if v.ActiveName != "Y" {
		t.Errorf("active = %q, want Y", v.ActiveName)
	}
	if got := e.driver.Reloads(testHost); got != 2 {
		t.Errorf("reloads = %d, want 2", got)
	}
}

func TestRestore_SameSessionDoesNotAutoSave(t *testing.T) {
	e := newTestManager(t)
	ctx := context.Background()

	e.login("orig")
	mustSave(t, e.m, "a")
	e.login("drift")

	v, err := e.m.Restore(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got := storageValue(v.Sessions[0], "user"); got != "orig" {
		t.Errorf("stored user = %q, want orig", got)
	}
	if got := e.liveUser(t); got != "orig" {
		t.Errorf("live user = %q, want orig", got)
	}
}

func TestRestore_ReplacesLiveState(t *testing.T) {
	e := newTestManager(t)
	e.login("a")
	mustSave(t, e.m, "a")

	// Extra cookie set after the save must not survive the restore.
	live := e.driver.Live(testHost)
	live.Cookies = append(live.Cookies, site.Cookie{Name: "tracking", Value: "1", Domain: testHost, Path: "/"})
	e.driver.SetLive(testHost, live)

	if _, err := e.m.Restore(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	got := e.driver.Live(testHost)
	if len(got.Cookies) != 1 || got.Cookies[0].Name != "sid" {
		t.Errorf("live cookies = %+v, want only sid", got.Cookies)
	}
}

func TestRestore_NotFound(t *testing.T) {
	e := newTestManager(t)
	e.login("a")
	mustSave(t, e.m, "a")

	_, err := e.m.Restore(context.Background(), "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
	if got := e.liveUser(t); got != "a" {
		t.Errorf("live user = %q, want a (untouched)", got)
	}
	if got := e.driver.Reloads(testHost); got != 0 {
		t.Errorf("reloads = %d, want 0", got)
	}
}

func TestRestore_SetsLastUsed(t *testing.T) {
	e := newTestManager(t)
	e.login("a")
	mustSave(t, e.m, "a")
	e.clock.Advance(time.Hour)

	v, err := e.m.Restore(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	lu := v.Sessions[0].LastUsedAt
	if lu == nil || *lu != NewUnixMilli(e.clock.t) {
		t.Errorf("lastUsed = %v, want %d", lu, NewUnixMilli(e.clock.t))
	}
}

// --- Rename ---

func TestRename_ActiveFollows(t *testing.T) {
	e := newTestManager(t)
	mustSave(t, e.m, "a")
	mustSave(t, e.m, "b")

	v, err := e.m.Rename(context.Background(), 1, "bee")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "bee"}, names(v.Sessions)); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}
	if v.ActiveName != "bee" {
		t.Errorf("active = %q, want bee", v.ActiveName)
	}
}

func TestRename_InactiveKeepsPointer(t *testing.T) {
	e := newTestManager(t)
	mustSave(t, e.m, "a")
	mustSave(t, e.m, "b")

	v, err := e.m.Rename(context.Background(), 0, "ay")
	if err != nil {
		t.Fatal(err)
	}
	if v.ActiveName != "b" {
		t.Errorf("active = %q, want b", v.ActiveName)
	}
}

func TestRename_ReplacesExisting(t *testing.T) {
	e := newTestManager(t)
	e.login("a")
	mustSave(t, e.m, "a")
	e.login("b")
	mustSave(t, e.m, "b")
	e.login("c")
	mustSave(t, e.m, "c")

	v, err := e.m.Rename(context.Background(), 2, "a")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"b", "a"}, names(v.Sessions)); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}
	if got := storageValue(sessionNamed(t, v, "a"), "user"); got != "c" {
		t.Errorf("a now holds %q, want c", got)
	}
	if v.ActiveName != "a" {
		t.Errorf("active = %q, want a", v.ActiveName)
	}
}

func TestRename_ReplacingActiveClearsPointer(t *testing.T) {
	e := newTestManager(t)
	mustSave(t, e.m, "a")
	mustSave(t, e.m, "b")

	v, err := e.m.Rename(context.Background(), 0, "b")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"b"}, names(v.Sessions)); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}
	if v.ActiveName != "" {
		t.Errorf("active = %q, want none", v.ActiveName)
	}
}

func TestRename_NoOps(t *testing.T) {
	e := newTestManager(t)
	mustSave(t, e.m, "a")
	before, _ := e.store.Load(context.Background(), testHost)

	cases := []struct {
		name  string
		index int
		to    string
	}{
		{"same name", 0, "a"},
		{"negative index", -1, "x"},
		{"out of range", 3, "x"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := e.m.Rename(context.Background(), tc.index, tc.to)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]string{"a"}, names(v.Sessions)); diff != "" {
				t.Errorf("sessions mismatch (-want +got):\n%s", diff)
			}
		})
	}

	after, _ := e.store.Load(context.Background(), testHost)
	if after.Revision != before.Revision {
		t.Errorf("revision %d -> %d, want unchanged", before.Revision, after.Revision)
	}
}

func TestRename_EmptyName(t *testing.T) {
	e := newTestManager(t)
	mustSave(t, e.m, "a")
	if _, err := e.m.Rename(context.Background(), 0, " "); !errors.Is(err, ErrInvalidName) {
		t.Errorf("err = %v, want ErrInvalidName", err)
	}
}

// --- Delete ---

func TestDelete_ActiveClearsPointer(t *testing.T) {
	e := newTestManager(t)
	mustSave(t, e.m, "a")
	mustSave(t, e.m, "b")

	v, err := e.m.Delete(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a"}, names(v.Sessions)); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}
	if v.ActiveName != "" {
		t.Errorf("active = %q, want none", v.ActiveName)
	}
}

func TestDelete_OtherKeepsPointer(t *testing.T) {
	e := newTestManager(t)
	mustSave(t, e.m, "a")
	mustSave(t, e.m, "b")

	v, err := e.m.Delete(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if v.ActiveName != "b" {
		t.Errorf("active = %q, want b", v.ActiveName)
	}
}

func TestDelete_OutOfRange(t *testing.T) {
	e := newTestManager(t)
	mustSave(t, e.m, "a")

	for _, idx := range []int{-1, 1, 42} {
		v, err := e.m.Delete(context.Background(), idx)
		if err != nil {
			t.Fatalf("Delete(%d): %v", idx, err)
		}
		if len(v.Sessions) != 1 {
			t.Errorf("Delete(%d) removed a session", idx)
		}
	}
}

// --- Reorder ---

func TestReorder(t *testing.T) {
	cases := []struct {
		name     string
		from, to int
		want     []string
	}{
		{"front to back", 0, 2, []string{"B", "C", "A"}},
		{"back to front", 2, 0, []string{"C", "A", "B"}},
		{"middle", 1, 2, []string{"A", "C", "B"}},
		{"same index", 1, 1, []string{"A", "B", "C"}},
		{"from out of range", 5, 0, []string{"A", "B", "C"}},
		{"to out of range", 0, 3, []string{"A", "B", "C"}},
		{"negative", -1, 0, []string{"A", "B", "C"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestManager(t)
			for _, n := range []string{"A", "B", "C"} {
				mustSave(t, e.m, n)
			}
			v, err := e.m.Reorder(context.Background(), tc.from, tc.to)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, names(v.Sessions)); diff != "" {
				t.Errorf("sessions mismatch (-want +got):\n%s", diff)
			}
			if v.ActiveName != "C" {
				t.Errorf("active = %q, want C", v.ActiveName)
			}
		})
	}
}

// --- ResetSite ---

func TestResetSite_SavesThenClears(t *testing.T) {
	e := newTestManager(t)
	e.login("a")
	mustSave(t, e.m, "a")
	e.login("a-later")

	v, err := e.m.ResetSite(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := storageValue(v.Sessions[0], "user"); got != "a-later" {
		t.Errorf("saved user = %q, want a-later", got)
	}
	if v.ActiveName != "" {
		t.Errorf("active = %q, want none", v.ActiveName)
	}
	live := e.driver.Live(testHost)
	if len(live.Cookies) != 0 || live.Storage != nil {
		t.Errorf("live state not cleared: %+v", live)
	}
	if got := e.driver.Reloads(testHost); got != 1 {
		t.Errorf("reloads = %d, want 1", got)
	}
}

func TestResetSite_NoActiveSession(t *testing.T) {
	e := newTestManager(t)
	e.login("anon")

	v, err := e.m.ResetSite(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(v.Sessions) != 0 {
		t.Errorf("sessions = %v, want none", names(v.Sessions))
	}
	if got := e.liveUser(t); got != "" {
		t.Errorf("live user = %q, want cleared", got)
	}
}

// --- SubmitName / Confirm ---

func TestSubmitName_Create(t *testing.T) {
	e := newTestManager(t)
	e.login("a")

	sub, err := e.m.SubmitName(context.Background(), "  work  ", CreateMode())
	if err != nil {
		t.Fatal(err)
	}
	if sub.Outcome != OutcomeApplied {
		t.Fatalf("outcome = %q, want applied", sub.Outcome)
	}
	if diff := cmp.Diff([]string{"work"}, names(sub.View.Sessions)); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitName_CreateCollisionNeedsConfirmation(t *testing.T) {
	e := newTestManager(t)
	ctx := context.Background()
	e.login("old")
	mustSave(t, e.m, "work")
	e.login("new")

	sub, err := e.m.SubmitName(ctx, "work", CreateMode())
	if err != nil {
		t.Fatal(err)
	}
	if sub.Outcome != OutcomeNeedsConfirmation {
		t.Fatalf("outcome = %q, want needs_confirmation", sub.Outcome)
	}
	want := &PendingAction{Name: "work", Mode: CreateMode()}
	if diff := cmp.Diff(want, sub.Pending); diff != "" {
		t.Errorf("pending mismatch (-want +got):\n%s", diff)
	}
	if got := storageValue(sub.View.Sessions[0], "user"); got != "old" {
		t.Errorf("stored before confirm = %q, want old", got)
	}

	v, err := e.m.Confirm(ctx, *sub.Pending)
	if err != nil {
		t.Fatal(err)
	}
	if got := storageValue(v.Sessions[0], "user"); got != "new" {
		t.Errorf("stored after confirm = %q, want new", got)
	}
}

func TestSubmitName_RenameCollision(t *testing.T) {
	e := newTestManager(t)
	ctx := context.Background()
	mustSave(t, e.m, "a")
	mustSave(t, e.m, "b")

	sub, err := e.m.SubmitName(ctx, "a", RenameMode(1))
	if err != nil {
		t.Fatal(err)
	}
	if sub.Outcome != OutcomeNeedsConfirmation {
		t.Fatalf("outcome = %q, want needs_confirmation", sub.Outcome)
	}

	v, err := e.m.Confirm(ctx, *sub.Pending)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a"}, names(v.Sessions)); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}
	if v.ActiveName != "a" {
		t.Errorf("active = %q, want a", v.ActiveName)
	}
}

func TestSubmitName_Ignored(t *testing.T) {
	e := newTestManager(t)
	mustSave(t, e.m, "a")

	cases := []struct {
		name  string
		input string
		mode  Mode
		want  Outcome
	}{
		{"empty create", "", CreateMode(), OutcomeIgnored},
		{"blank rename", "  ", RenameMode(0), OutcomeIgnored},
		{"stale rename index", "x", RenameMode(4), OutcomeIgnored},
		{"rename to own name", "a", RenameMode(0), OutcomeUnchanged},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub, err := e.m.SubmitName(context.Background(), tc.input, tc.mode)
			if err != nil {
				t.Fatal(err)
			}
			if sub.Outcome != tc.want {
				t.Errorf("outcome = %q, want %q", sub.Outcome, tc.want)
			}
			if sub.Pending != nil {
				t.Error("unexpected pending action")
			}
		})
	}
}

func TestSubmitName_InvalidMode(t *testing.T) {
	e := newTestManager(t)
	if _, err := e.m.SubmitName(context.Background(), "x", Mode{Kind: "bogus"}); err == nil {
		t.Fatal("expected error for invalid mode")
	}
}

// --- Observer ---

type countingObserver struct {
	ops       []string
	autoSaves int
}

func (o *countingObserver) ObserveOperation(_, op string, _ error) { o.ops = append(o.ops, op) }
func (o *countingObserver) ObserveAutoSave(string)                 { o.autoSaves++ }

func TestObserver(t *testing.T) {
	store := newTestStore(t)
	driver := site.NewMemoryDriver("https://" + testHost + "/")
	obs := &countingObserver{}
	m := NewManager(site.Site{URL: "https://" + testHost + "/"}, store, driver, WithObserver(obs))
	ctx := context.Background()

	mustSave(t, m, "a")
	mustSave(t, m, "b")
	if _, err := m.Restore(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"save", "save", "restore"}, obs.ops); diff != "" {
		t.Errorf("ops mismatch (-want +got):\n%s", diff)
	}
	if obs.autoSaves != 1 {
		t.Errorf("autoSaves = %d, want 1", obs.autoSaves)
	}
}

// --- End to end ---

func TestScenario_WorkAndHome(t *testing.T) {
	e := newTestManager(t)
	ctx := context.Background()

	e.login("work")
	v := mustSave(t, e.m, "work")
	if v.ActiveName != "work" || v.Sessions[0].LastUsedAt != nil {
		t.Fatalf("after save work: %+v", v)
	}

	e.login("home")
	v = mustSave(t, e.m, "home")
	if diff := cmp.Diff([]string{"work", "home"}, names(v.Sessions)); diff != "" {
		t.Fatalf("sessions mismatch (-want +got):\n%s", diff)
	}
	if v.ActiveName != "home" {
		t.Fatalf("active = %q, want home", v.ActiveName)
	}

	v, err := e.m.Restore(ctx, "work")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"work", "home"}, names(v.Sessions)); diff != "" {
		t.Fatalf("sessions mismatch (-want +got):\n%s", diff)
	}
	if v.Sessions[0].LastUsedAt == nil {
		t.Error("work lastUsed not set")
	}
	if v.Sessions[1].LastUsedAt != nil {
		t.Error("home lastUsed set by auto-save")
	}
	if got := storageValue(v.Sessions[1], "user"); got != "home" {
		t.Errorf("home storage = %q, want home", got)
	}
	if v.ActiveName != "work" {
		t.Fatalf("active = %q, want work", v.ActiveName)
	}

	v, err = e.m.Delete(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"home"}, names(v.Sessions)); diff != "" {
		t.Fatalf("sessions mismatch (-want +got):\n%s", diff)
	}
	if v.ActiveName != "" {
		t.Fatalf("active = %q, want none", v.ActiveName)
	}

	v, err = e.m.Reorder(ctx, 5, 9)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"home"}, names(v.Sessions)); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}
}

func TestSave_TrimsName(t *testing.T) {
	e := newTestManager(t)
	e.login("alice")
	mustSave(t, e.m, "work")

	v := mustSave(t, e.m, "  work ")
	if diff := cmp.Diff([]string{"work"}, names(v.Sessions)); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}
	if v.ActiveName != "work" {
		t.Errorf("active = %q, want work", v.ActiveName)
	}
}

func TestRename_TrimsName(t *testing.T) {
	e := newTestManager(t)
	e.login("alice")
	mustSave(t, e.m, "a")
	mustSave(t, e.m, "b")

	v, err := e.m.Rename(context.Background(), 0, " b ")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"b"}, names(v.Sessions)); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_ConcurrentSavesKeepNamesUnique(t *testing.T) {
	e := newTestManager(t)
	e.login("alice")

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.m.Save(context.Background(), fmt.Sprintf("n%d", i%5), SaveOptions{}); err != nil {
				t.Errorf("Save: %v", err)
			}
		}()
	}
	wg.Wait()

	v, err := e.m.View(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	got := names(v.Sessions)
	slices.Sort(got)
	if diff := cmp.Diff([]string{"n0", "n1", "n2", "n3", "n4"}, got); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_SavesAcrossStoreInstances(t *testing.T) {
	dir := t.TempDir()
	driver := site.NewMemoryDriver("https://" + testHost + "/")
	target, _ := site.FromURL("https://" + testHost + "/")

	var managers []*Manager
	for range 2 {
		st, err := NewFileStore(dir)
		if err != nil {
			t.Fatal(err)
		}
		managers = append(managers, NewManager(target, st, driver))
	}

	var wg sync.WaitGroup
	for mi, m := range managers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 10 {
				if _, err := m.Save(context.Background(), fmt.Sprintf("m%d-%d", mi, i), SaveOptions{}); err != nil {
					t.Errorf("Save: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	fresh, _ := NewFileStore(dir)
	sessions, _ := LoadSessions(context.Background(), fresh, testHost)
	if len(sessions) != 20 {
		t.Errorf("stored %d sessions, want 20", len(sessions))
	}
}

// conflictOnceStore fails the first Commit as if another writer got in.
type conflictOnceStore struct {
	Store
	failed bool
}

func (s *conflictOnceStore) Commit(ctx context.Context, domain string, rec DomainRecord) (DomainRecord, error) {
	if !s.failed {
		s.failed = true
		return DomainRecord{}, ErrConflict
	}
	return s.Store.Commit(ctx, domain, rec)
}

func TestManager_LogsOncePerCommittedChange(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	inner := newTestStore(t)
	ctx := context.Background()
	if err := ReplaceSessions(ctx, inner, testHost, []Session{{Name: "a"}, {Name: "b"}}); err != nil {
		t.Fatal(err)
	}
	target, _ := site.FromURL("https://" + testHost + "/")
	st := &conflictOnceStore{Store: inner}
	m := NewManager(target, st, site.NewMemoryDriver(""))

	if _, err := m.Rename(ctx, 0, "z"); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), "session renamed"); n != 1 {
		t.Errorf("rename logged %d times, want 1:\n%s", n, buf.String())
	}

	st.failed = false
	if _, err := m.Delete(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), "session deleted"); n != 1 {
		t.Errorf("delete logged %d times, want 1:\n%s", n, buf.String())
	}

	buf.Reset()
	if _, err := m.Delete(ctx, 9); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "session deleted") {
		t.Errorf("no-op delete logged:\n%s", buf.String())
	}
}
