// Package storygraph holds the authored, read-only story graph: scenes keyed by
// id and connected by choice edges.
package storygraph

import (
	"ambient-novel/internal/domain"
)

// Store provides read-only lookup from scene id to Scene. It is validated at
// construction and never mutated afterwards, so it is safe for concurrent use.
type Store struct {
	scenes map[string]*domain.Scene
	order  []string
	entry  string
}

// New validates the scenes and builds a Store. Any data-integrity problem
// (dangling nextScene, empty dialogue, bad ending metadata) is returned as a
// *ConfigError; such errors are fatal and must not be retried.
func New(scenes []domain.Scene, entry string) (*Store, error) {
	if err := Validate(scenes, entry); err != nil {
		return nil, err
	}

	s := &Store{
		scenes: make(map[string]*domain.Scene, len(scenes)),
		order:  make([]string, 0, len(scenes)),
		entry:  entry,
	}
	for i := range scenes {
		sc := scenes[i]
		s.scenes[sc.ID] = &sc
		s.order = append(s.order, sc.ID)
	}
	return s, nil
}

// Scene resolves id. The returned scene is shared and must not be modified.
func (s *Store) Scene(id string) (*domain.Scene, error) {
	sc, ok := s.scenes[id]
	if !ok {
		return nil, &domain.UnknownSceneError{SceneID: id}
	}
	return sc, nil
}

// Has reports whether id is a scene of this store.
func (s *Store) Has(id string) bool {
	_, ok := s.scenes[id]
	return ok
}

// Entry is the id of the scene every session starts on.
func (s *Store) Entry() string {
	return s.entry
}

// IDs returns scene ids in authored order.
func (s *Store) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len is the number of scenes.
func (s *Store) Len() int {
	return len(s.order)
}
