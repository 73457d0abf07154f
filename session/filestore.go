package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

type indexData struct {
	Domains map[string]DomainRecord `json:"domains"`
}

// FileStore persists all domain records in one JSON file with flock-based
// inter-process safety. Another process (e.g. the MCP server) may share the
// data directory; StartWatching picks up its writes.
type FileStore struct {
	dataDir   string
	mu        sync.RWMutex
	domains   map[string]DomainRecord
	listeners []OnChangeListener

	// writeGen is incremented on every in-process commit.
	// reloadFromDisk uses it to skip stale fsnotify-triggered reloads.
	writeGen atomic.Int64

	watcher    *fsnotify.Watcher
	debounce   *time.Timer
	debounceMu sync.Mutex
}

func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, "sessions"), 0755); err != nil {
		return nil, err
	}

	store := &FileStore{dataDir: dataDir}
	idx, err := store.readIndexFromDisk()
	if err != nil {
		return nil, err
	}
	store.domains = idx.Domains
	return store, nil
}

func (s *FileStore) indexPath() string {
	return filepath.Join(s.dataDir, "sessions", "index.json")
}

// --- Read operations ---

func (s *FileStore) Load(_ context.Context, domain string) (DomainRecord, error) {
	s.mu.RLock()
	rec := s.domains[domain].Clone()
	s.mu.RUnlock()

	healOnLoad(domain, &rec)
	return rec, nil
}

func (s *FileStore) Domains(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.domains)), nil
}

// --- Write operations ---

func (s *FileStore) Commit(_ context.Context, domain string, rec DomainRecord) (DomainRecord, error) {
	s.mu.Lock()

	var committed DomainRecord
	// Domains another process wrote since our last read. Adopting the disk
	// index here also makes the pending reload a no-op, so they are
	// broadcast from here.
	var external []ChangeEvent
	err := s.withFileLock(syscall.LOCK_EX, func() error {
		idx, err := s.readIndexFile()
		if err != nil {
			return err
		}
		old := s.domains

		current := idx.Domains[domain]
		if current.Revision != rec.Revision {
			// Someone else wrote; keep what they wrote so the retry sees it.
			s.domains = idx.Domains
			external = diffDomains(old, idx.Domains)
			return fmt.Errorf("%w: %s at revision %d, have %d", ErrConflict, domain, current.Revision, rec.Revision)
		}

		for _, e := range diffDomains(old, idx.Domains) {
			if e.Domain != domain {
				external = append(external, e)
			}
		}

		committed = rec.Clone()
		committed.Revision = current.Revision + 1
		idx.Domains[domain] = committed

		if err := s.writeIndexFile(idx); err != nil {
			external = nil
			return err
		}
		s.domains = idx.Domains
		return nil
	})
	listeners := s.copyListeners()
	if err == nil {
		s.writeGen.Add(1)
	}
	s.mu.Unlock()

	for _, e := range external {
		notify(listeners, e)
	}
	if err != nil {
		return DomainRecord{}, err
	}

	notify(listeners, ChangeEvent{Domain: domain, Record: committed.Clone()})
	return committed, nil
}

// --- Listener management ---

func (s *FileStore) AddOnChangeListener(listener OnChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// Caller must hold s.mu (read or write).
func (s *FileStore) copyListeners() []OnChangeListener {
	return slices.Clone(s.listeners)
}

// --- File I/O with flock ---
//
// A dedicated lock file (index.json.lock) is used for flock because the data
// file is replaced via rename, which changes its inode.

func (s *FileStore) lockPath() string {
	return s.indexPath() + ".lock"
}

func (s *FileStore) withFileLock(how int, fn func() error) error {
	lockF, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer lockF.Close()

	if err := syscall.Flock(int(lockF.Fd()), how); err != nil {
		return fmt.Errorf("flock: %w", err)
	}
	defer syscall.Flock(int(lockF.Fd()), syscall.LOCK_UN)

	return fn()
}

func (s *FileStore) readIndexFromDisk() (indexData, error) {
	var idx indexData
	err := s.withFileLock(syscall.LOCK_SH, func() error {
		var err error
		idx, err = s.readIndexFile()
		return err
	})
	return idx, err
}

// Caller must hold the file lock.
func (s *FileStore) readIndexFile() (indexData, error) {
	f, err := os.Open(s.indexPath())
	if os.IsNotExist(err) {
		return indexData{Domains: map[string]DomainRecord{}}, nil
	}
	if err != nil {
		return indexData{}, err
	}
	defer f.Close()

	var idx indexData
	if err := json.NewDecoder(f).Decode(&idx); err != nil {
		return indexData{}, fmt.Errorf("decode %s: %w", s.indexPath(), err)
	}
	if idx.Domains == nil {
		idx.Domains = map[string]DomainRecord{}
	}
	return idx, nil
}

// writeIndexFile writes the index atomically using write-temp-fsync-rename.
// Caller must hold the exclusive file lock.
func (s *FileStore) writeIndexFile(idx indexData) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}

	path := s.indexPath()
	tmpPath := path + ".tmp"

	// 0600: the file holds live credentials.
	tmpF, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmpF.Write(data); err != nil {
		tmpF.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpF.Sync(); err != nil {
		tmpF.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmpF.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp to index: %w", err)
	}
	return nil
}

// --- fsnotify: detect writes from other processes ---

func (s *FileStore) StartWatching() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	if err := watcher.Add(filepath.Dir(s.indexPath())); err != nil {
		watcher.Close()
		return err
	}

	go s.watchLoop()
	slog.Info("session store watching for external changes", "path", s.indexPath())
	return nil
}

func (s *FileStore) StopWatching() {
	s.debounceMu.Lock()
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounceMu.Unlock()

	if s.watcher != nil {
		s.watcher.Close()
	}
}

func (s *FileStore) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != "index.json" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.scheduleReload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("session store fsnotify error", "error", err)
		}
	}
}

const reloadDebounce = 100 * time.Millisecond

func (s *FileStore) scheduleReload() {
	s.debounceMu.Lock()
	defer s.debounceMu.Unlock()

	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(reloadDebounce, s.reloadFromDisk)
}

func (s *FileStore) reloadFromDisk() {
	genBefore := s.writeGen.Load()

	idx, err := s.readIndexFromDisk()
	if err != nil {
		slog.Error("failed to reload session index", "error", err)
		return
	}

	s.mu.Lock()
	if s.writeGen.Load() != genBefore {
		s.mu.Unlock()
		return
	}
	old := s.domains
	s.domains = idx.Domains
	listeners := s.copyListeners()
	s.mu.Unlock()

	for _, e := range diffDomains(old, idx.Domains) {
		notify(listeners, e)
	}
}

func diffDomains(old, updated map[string]DomainRecord) []ChangeEvent {
	var events []ChangeEvent
	for _, domain := range slices.Sorted(maps.Keys(updated)) {
		rec := updated[domain]
		if prev, ok := old[domain]; ok && prev.Revision == rec.Revision {
			continue
		}
		events = append(events, ChangeEvent{Domain: domain, Record: rec.Clone()})
	}
	return events
}

var _ Store = (*FileStore)(nil)
