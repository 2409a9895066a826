package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"channel-chat/internal/models"
)

// ErrNoChange can be returned by an Update callback to indicate the
// mutation turned out to be a no-op; the store then skips the disk
// write and reports success.
var ErrNoChange = errors.New("store: no change")

// document is the on-disk shape: a single JSON object wrapping the
// code-to-channel mapping.
type document struct {
	Channels map[string]*models.Channel `json:"channels"`
}

// Store is the single source of truth for channel records, backed by
// one JSON file rewritten wholesale on every mutation. A store-wide
// mutex serializes every read-modify-write sequence, so two
// concurrent joins can never lose an update.
type Store struct {
	path string

	mu       sync.Mutex
	channels map[string]*models.Channel
	loaded   bool
}

// New returns a store backed by the file at path. The file is read
// lazily on first access; a missing file is the first-run state.
func New(path string) *Store {
	return &Store{path: path}
}

// ReadAll loads the persisted mapping fresh from disk and returns a
// deep copy. Missing or corrupt backing data yields an empty mapping,
// never an error: absence of data is indistinguishable from first run.
func (s *Store) ReadAll() map[string]*models.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reload()
	return cloneAll(s.channels)
}

// Get returns a deep copy of one channel from the in-memory mirror.
func (s *Store) Get(code string) (*models.Channel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLoaded()
	ch, ok := s.channels[code]
	if !ok {
		return nil, false
	}
	return cloneChannel(ch), true
}

// Has reports whether a channel with the given code exists.
func (s *Store) Has(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLoaded()
	_, ok := s.channels[code]
	return ok
}

// WriteAll replaces the persisted mapping with the given one.
func (s *Store) WriteAll(channels map[string]*models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(cloneAll(channels))
}

// Update runs fn against a copy of the current mapping and persists
// the result. The whole read-modify-write sequence holds the store
// lock, so concurrent create/join/publish calls serialize here. If fn
// returns ErrNoChange nothing is written and Update reports success;
// any other error aborts the mutation and is returned as-is.
func (s *Store) Update(fn func(channels map[string]*models.Channel) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLoaded()
	next := cloneAll(s.channels)
	if err := fn(next); err != nil {
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		return err
	}
	return s.write(next)
}

// ensureLoaded populates the mirror from disk once. Callers hold mu.
func (s *Store) ensureLoaded() {
	if !s.loaded {
		s.reload()
	}
}

// reload reads the backing file into the mirror. Callers hold mu.
func (s *Store) reload() {
	s.loaded = true
	s.channels = make(map[string]*models.Channel)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("channel store unreadable, starting empty", "path", s.path, "error", err)
		}
		return
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Warn("channel store corrupt, starting empty", "path", s.path, "error", err)
		return
	}
	if doc.Channels != nil {
		s.channels = doc.Channels
	}
}

// write persists the mapping via a temp file and an atomic rename, so
// a concurrent reader of the path never observes a partially written
// document. On success the mirror is swapped to the new mapping.
// Callers hold mu.
func (s *Store) write(channels map[string]*models.Channel) error {
	data, err := json.MarshalIndent(document{Channels: channels}, "", "  ")
	if err != nil {
		slog.Error("failed to marshal channel store", "path", s.path, "error", err)
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		slog.Error("failed to create temp store file", "dir", dir, "error", err)
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		slog.Error("failed to write channel store", "path", tmp.Name(), "error", err)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		slog.Error("failed to sync channel store", "path", tmp.Name(), "error", err)
		return err
	}
	if err := tmp.Close(); err != nil {
		slog.Error("failed to close channel store", "path", tmp.Name(), "error", err)
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		slog.Error("failed to replace channel store", "path", s.path, "error", err)
		return err
	}

	s.channels = channels
	s.loaded = true
	return nil
}

func cloneAll(channels map[string]*models.Channel) map[string]*models.Channel {
	out := make(map[string]*models.Channel, len(channels))
	for code, ch := range channels {
		out[code] = cloneChannel(ch)
	}
	return out
}

// cloneChannel copies a channel with fresh, non-nil slices so empty
// participant and message lists marshal as [] rather than null.
func cloneChannel(ch *models.Channel) *models.Channel {
	c := *ch
	c.Participants = make([]models.User, len(ch.Participants))
	copy(c.Participants, ch.Participants)
	c.Messages = make([]models.Message, len(ch.Messages))
	copy(c.Messages, ch.Messages)
	return &c
}
