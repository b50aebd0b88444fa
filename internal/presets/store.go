// Package presets keeps the observable, name-sorted list of saved tank
// presets and persists it through a pluggable Source.
package presets

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/iwvelando/tank-quote/internal/client"
	"github.com/iwvelando/tank-quote/internal/tank"
	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// ErrNameRequired is returned when a preset operation is given an empty name.
// It is the same value the API client returns.
var ErrNameRequired = client.ErrPresetNameRequired

// Source persists presets.
type Source interface {
	List(ctx context.Context) ([]tank.Preset, error)
	Save(ctx context.Context, name string, params tank.TankParams) error
	Delete(ctx context.Context, name string) error
}

// Store holds the current preset list. The list is replaced whole after
// every successful source call and subscribers receive each new list.
type Store struct {
	source Source
	logger *zap.Logger

	mu          sync.Mutex
	presets     []tank.Preset
	version     uint64
	nextID      int
	subscribers map[int]*subscriber
}

// subscriber delivers lists to fn in version order, dropping any list older
// than the last one delivered.
type subscriber struct {
	fn func([]tank.Preset)

	mu        sync.Mutex
	delivered uint64
	started   bool
}

func (s *subscriber) deliver(version uint64, list []tank.Preset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started && version <= s.delivered {
		return
	}
	s.started = true
	s.delivered = version
	s.fn(clonePresets(list))
}

// NewStore returns an empty Store backed by source.
func NewStore(source Source, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		source:      source,
		logger:      logger,
		presets:     []tank.Preset{},
		subscribers: make(map[int]*subscriber),
	}
}

// Load replaces the list with the source's contents.
func (s *Store) Load(ctx context.Context) ([]tank.Preset, error) {
	list, err := s.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load presets: %w", err)
	}
	sorted := sortByName(list)
	s.replace(sorted)
	s.logger.Debug("presets loaded",
		zap.String("op", "presets.Load"),
		zap.Int("count", len(sorted)),
	)
	return clonePresets(sorted), nil
}

// List returns a copy of the current list.
func (s *Store) List() []tank.Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePresets(s.presets)
}

// Subscribe calls fn with the current list and again after every change.
// Calls to fn never overlap and never go back to an older list. fn may call
// List but must not Save or Delete on the same store. The returned function
// removes the subscription.
func (s *Store) Subscribe(fn func([]tank.Preset)) func() {
	sub := &subscriber{fn: fn}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = sub
	version, current := s.version, s.presets
	s.mu.Unlock()

	sub.deliver(version, current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

// Save stores params under name, replacing any preset with the same name.
func (s *Store) Save(ctx context.Context, name string, params tank.TankParams) error {
	if name == "" {
		return ErrNameRequired
	}
	if err := s.source.Save(ctx, name, params); err != nil {
		return fmt.Errorf("failed to save preset %q: %w", name, err)
	}

	s.update(func(list []tank.Preset) []tank.Preset {
		return sortByName(append(without(list, name), tank.Preset{Name: name, Params: params}))
	})
	s.logger.Info("preset saved",
		zap.String("op", "presets.Save"),
		zap.String("preset", name),
	)
	return nil
}

// Delete removes the preset called name.
func (s *Store) Delete(ctx context.Context, name string) error {
	if name == "" {
		return ErrNameRequired
	}
	if err := s.source.Delete(ctx, name); err != nil {
		return fmt.Errorf("failed to delete preset %q: %w", name, err)
	}

	s.update(func(list []tank.Preset) []tank.Preset {
		return without(list, name)
	})
	s.logger.Info("preset deleted",
		zap.String("op", "presets.Delete"),
		zap.String("preset", name),
	)
	return nil
}

func (s *Store) replace(list []tank.Preset) {
	s.update(func([]tank.Preset) []tank.Preset { return list })
}

// update swaps in the list built by fn and notifies subscribers outside the
// lock. Each list carries the version it was stored under.
func (s *Store) update(fn func([]tank.Preset) []tank.Preset) {
	s.mu.Lock()
	s.presets = fn(clonePresets(s.presets))
	s.version++
	version, snapshot := s.version, s.presets
	subs := make([]*subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(version, snapshot)
	}
}

func without(list []tank.Preset, name string) []tank.Preset {
	out := make([]tank.Preset, 0, len(list))
	for _, p := range list {
		if p.Name != name {
			out = append(out, p)
		}
	}
	return out
}

// sortByName orders presets case-insensitively, falling back to byte order
// for names that collate equal.
func sortByName(list []tank.Preset) []tank.Preset {
	sorted := clonePresets(list)
	c := collate.New(language.Und, collate.IgnoreCase)
	sort.SliceStable(sorted, func(i, j int) bool {
		if cmp := c.CompareString(sorted[i].Name, sorted[j].Name); cmp != 0 {
			return cmp < 0
		}
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}

func clonePresets(list []tank.Preset) []tank.Preset {
	out := make([]tank.Preset, len(list))
	copy(out, list)
	return out
}
