package persona

// Store exposes persona retrieval for the orchestrator and HTTP handlers.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
	Human() Persona
	IsHuman(id string) bool
}

// MemoryStore implements Store with an in-memory slice, suitable for a fixed
// seeded roster.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns the predefined persona list.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}

// Human returns the local-operator persona.
func (s *MemoryStore) Human() Persona {
	for _, item := range s.items {
		if item.IsUser {
			return item
		}
	}
	return Persona{}
}

// IsHuman reports whether the identifier belongs to the local operator.
func (s *MemoryStore) IsHuman(id string) bool {
	p, ok := s.FindByID(id)
	return ok && p.IsUser
}
