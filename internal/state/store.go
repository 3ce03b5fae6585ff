// Package state holds the canonical view of every tracked layer: the
// single source of truth the reconciliation loop converges and the UI
// reads.
package state

import "sync"

// BackgroundID keys the synthetic aggregate entry representing all
// basemap-classified layers as one control.
const BackgroundID = "Background"

// Kind determines a layer's mutation path.
type Kind int

const (
	KindNative Kind = iota
	KindCustom
)

func (k Kind) String() string {
	if k == KindCustom {
		return "custom"
	}
	return "native"
}

// Membership says whether an entry is folded into the Background
// aggregate or shown individually.
type Membership int

const (
	Individual Membership = iota
	BackgroundMember
)

// Entry is the tracked state of one layer. Indeterminate is only
// meaningful on the synthetic Background aggregate: some but not all
// members visible.
type Entry struct {
	ID            string
	Kind          Kind
	Visible       bool
	Indeterminate bool
	Opacity       float64
	Name          string
	NameOverride  bool
	Membership    Membership
	CustomType    string
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	Kind         *Kind
	Visible      *bool
	Opacity      *float64
	Name         *string
	NameOverride *bool
	Membership   *Membership
	CustomType   *string
}

// Store maps layer IDs to entries and synthesizes the Background
// aggregate on read. Writes are counted only when they change state, so
// callers can assert reconciliation idempotency cheaply.
type Store struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []string
	writes  uint64
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*Entry)}
}

// Upsert creates or patches an entry. The synthetic Background ID is
// rejected; aggregate writes fan out through the mutation funnel instead.
func (s *Store) Upsert(id string, p Patch) {
	if id == "" || id == BackgroundID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		e = &Entry{ID: id, Opacity: 1}
		s.entries[id] = e
		s.order = append(s.order, id)
		s.writes++
	}
	if applyPatch(e, p) && ok {
		s.writes++
	}
}

func applyPatch(e *Entry, p Patch) bool {
	changed := false
	if p.Kind != nil && e.Kind != *p.Kind {
		e.Kind = *p.Kind
		changed = true
	}
	if p.Visible != nil && e.Visible != *p.Visible {
		e.Visible = *p.Visible
		changed = true
	}
	if p.Opacity != nil && e.Opacity != *p.Opacity {
		e.Opacity = *p.Opacity
		changed = true
	}
	if p.Name != nil && !e.NameOverride && e.Name != *p.Name {
		e.Name = *p.Name
		changed = true
	}
	if p.NameOverride != nil && *p.NameOverride {
		// Override names bypass the NameOverride gate above.
		if p.Name != nil && e.Name != *p.Name {
			e.Name = *p.Name
			changed = true
		}
		if !e.NameOverride {
			e.NameOverride = true
			changed = true
		}
	}
	if p.Membership != nil && e.Membership != *p.Membership {
		e.Membership = *p.Membership
		changed = true
	}
	if p.CustomType != nil && e.CustomType != *p.CustomType {
		e.CustomType = *p.CustomType
		changed = true
	}
	return changed
}

// Remove drops an entry; reports whether it existed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.writes++
	return true
}

func (s *Store) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == BackgroundID {
		agg, ok := s.aggregateLocked()
		return agg, ok
	}
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// IDs returns every tracked layer ID (never the synthetic aggregate) in
// insertion order.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// BackgroundMembers lists IDs folded into the aggregate, in insertion
// order.
func (s *Store) BackgroundMembers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, id := range s.order {
		if s.entries[id].Membership == BackgroundMember {
			out = append(out, id)
		}
	}
	return out
}

// Snapshot returns the display-ordered view: the Background aggregate
// first when it has members, then individual entries in insertion order.
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.order)+1)
	if agg, ok := s.aggregateLocked(); ok {
		out = append(out, agg)
	}
	for _, id := range s.order {
		e := s.entries[id]
		if e.Membership == BackgroundMember {
			continue
		}
		out = append(out, *e)
	}
	return out
}

// aggregateLocked derives the synthetic entry: visible when any member
// is, indeterminate when some but not all are, opacity as the member
// mean.
func (s *Store) aggregateLocked() (Entry, bool) {
	var members []*Entry
	for _, id := range s.order {
		if e := s.entries[id]; e.Membership == BackgroundMember {
			members = append(members, e)
		}
	}
	if len(members) == 0 {
		return Entry{}, false
	}

	visible := 0
	sum := 0.0
	for _, m := range members {
		if m.Visible {
			visible++
		}
		sum += m.Opacity
	}
	return Entry{
		ID:            BackgroundID,
		Kind:          KindNative,
		Name:          BackgroundID,
		Visible:       visible > 0,
		Indeterminate: visible > 0 && visible < len(members),
		Opacity:       sum / float64(len(members)),
		Membership:    Individual,
	}, true
}

// Writes is a monotonic count of state-changing operations.
func (s *Store) Writes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Len counts tracked entries, excluding the synthetic aggregate.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
