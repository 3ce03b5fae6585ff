package maphost

import (
	"fmt"
	"sync"
)

// MemoryLayer is a layer held by the in-memory host.
type MemoryLayer struct {
	ID      string
	Kind    string
	Visible bool
	Opacity float64
	Source  SourceDescriptor
}

// Memory is an in-memory Host implementation. It backs the demo daemon and
// the engine tests; mutations emit the same notification streams a real
// map engine would.
type Memory struct {
	mu      sync.Mutex
	order   []string
	layers  map[string]*MemoryLayer
	subs    map[int]func(Event)
	nextSub int
}

func NewMemory() *Memory {
	return &Memory{
		layers: make(map[string]*MemoryLayer),
		subs:   make(map[int]func(Event)),
	}
}

// AddLayer inserts or replaces a layer and emits a style-changed event.
func (m *Memory) AddLayer(l MemoryLayer) {
	m.mu.Lock()
	if _, ok := m.layers[l.ID]; !ok {
		m.order = append(m.order, l.ID)
	}
	cp := l
	m.layers[l.ID] = &cp
	m.mu.Unlock()

	m.emit(Event{Kind: EventStyleChanged})
}

// RemoveLayer drops a layer and emits a style-changed event. Removing an
// unknown ID is a no-op.
func (m *Memory) RemoveLayer(id string) {
	m.mu.Lock()
	if _, ok := m.layers[id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.layers, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.emit(Event{Kind: EventStyleChanged})
}

// EmitSourceEvent simulates the host finishing a content or metadata load.
func (m *Memory) EmitSourceEvent(kind EventKind, sourceID string) {
	m.emit(Event{Kind: kind, SourceID: sourceID})
}

func (m *Memory) AllLayerIDs() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out, nil
}

func (m *Memory) LayerKind(id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.layers[id]
	if !ok {
		return "", fmt.Errorf("maphost: no such layer %q", id)
	}
	return l.Kind, nil
}

func (m *Memory) Visibility(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.layers[id]
	if !ok {
		return false, fmt.Errorf("maphost: no such layer %q", id)
	}
	return l.Visible, nil
}

func (m *Memory) Opacity(id string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.layers[id]
	if !ok {
		return 0, fmt.Errorf("maphost: no such layer %q", id)
	}
	return l.Opacity, nil
}

func (m *Memory) SetVisibility(id string, visible bool) error {
	m.mu.Lock()
	l, ok := m.layers[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("maphost: no such layer %q", id)
	}
	l.Visible = visible
	src := l.Source.ID
	m.mu.Unlock()

	m.emit(Event{Kind: EventContentLoaded, SourceID: src})
	return nil
}

func (m *Memory) SetOpacity(id string, opacity float64) error {
	m.mu.Lock()
	l, ok := m.layers[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("maphost: no such layer %q", id)
	}
	l.Opacity = opacity
	src := l.Source.ID
	m.mu.Unlock()

	m.emit(Event{Kind: EventContentLoaded, SourceID: src})
	return nil
}

func (m *Memory) SourceDescriptor(id string) (SourceDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.layers[id]
	if !ok {
		return SourceDescriptor{}, fmt.Errorf("maphost: no such layer %q", id)
	}
	return l.Source, nil
}

func (m *Memory) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Memory) emit(ev Event) {
	m.mu.Lock()
	fns := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
