// Package registry tracks adapters for layers the host map engine knows
// nothing about. Each adapter owns a disjoint ID namespace; disjointness
// is not enforced and a collision is caller responsibility.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/opengeos/maplibre-gl-layer-control/internal/metrics"
)

// LayerState is an adapter's view of one layer.
type LayerState struct {
	Visible bool
	Opacity float64
}

// Adapter is the mandatory capability set every custom-layer integration
// must provide.
type Adapter interface {
	TypeTag() string
	LayerIDs() []string
	State(id string) (LayerState, error)
	SetVisibility(id string, visible bool) error
	SetOpacity(id string, opacity float64) error
}

// Optional capabilities, probed with type assertions at call time.

// SymbolTyper reports a display subtype for a layer ("cog", "vector-tile",
// ...). Display only; reconciliation ignores it.
type SymbolTyper interface {
	SymbolType(id string) (string, bool)
}

// BoundsProvider reports a layer's [west, south, east, north] extent.
type BoundsProvider interface {
	Bounds(id string) ([4]float64, bool)
}

// Namer supplies a human display name for a layer, overriding the
// ID-derived label.
type Namer interface {
	DisplayName(id string) (string, bool)
}

// NativeSubLayerLister exposes native sub-layer IDs for style-editing
// passthrough.
type NativeSubLayerLister interface {
	NativeSubLayerIDs(id string) []string
}

// ChangeNotifier lets an adapter push its own add/remove events. The
// registry subscribes on Register and aggregates all adapters into one
// stream.
type ChangeNotifier interface {
	OnChange(fn func(Event)) func()
}

type EventKind int

const (
	EventAdd EventKind = iota
	EventRemove
)

type Event struct {
	Kind    EventKind
	LayerID string
	TypeTag string
}

// Registry owns the adapter set and the tombstones of explicitly removed
// custom layer IDs. A tombstoned ID is never re-added from adapter
// enumeration; only a fresh adapter "add" event re-arms it.
type Registry struct {
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	adapters   map[string]Adapter
	order      []string
	unsubs     map[string]func()
	tombstones map[string]struct{}
	subs       map[int]func(Event)
	nextSub    int
}

func New(log zerolog.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		log:        log,
		metrics:    m,
		adapters:   make(map[string]Adapter),
		unsubs:     make(map[string]func()),
		tombstones: make(map[string]struct{}),
		subs:       make(map[int]func(Event)),
	}
}

// Register adds an adapter under its type tag and hooks its change stream
// when it has one.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return errors.New("registry: nil adapter")
	}
	tag := strings.TrimSpace(a.TypeTag())
	if tag == "" {
		return errors.New("registry: adapter has empty type tag")
	}

	r.mu.Lock()
	if _, ok := r.adapters[tag]; ok {
		r.mu.Unlock()
		return fmt.Errorf("registry: adapter %q already registered", tag)
	}
	r.adapters[tag] = a
	r.order = append(r.order, tag)
	r.mu.Unlock()

	if n, ok := a.(ChangeNotifier); ok {
		unsub := n.OnChange(func(ev Event) {
			ev.TypeTag = tag
			r.dispatch(ev)
		})
		r.mu.Lock()
		r.unsubs[tag] = unsub
		r.mu.Unlock()
	}

	r.log.Info().Str("type", tag).Msg("custom layer adapter registered")
	return nil
}

// Unregister removes an adapter and detaches its change stream. Layer
// entries it contributed are cleaned up by the next reconciliation pass.
func (r *Registry) Unregister(typeTag string) {
	r.mu.Lock()
	unsub := r.unsubs[typeTag]
	delete(r.unsubs, typeTag)
	if _, ok := r.adapters[typeTag]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.adapters, typeTag)
	for i, v := range r.order {
		if v == typeTag {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	r.log.Info().Str("type", typeTag).Msg("custom layer adapter unregistered")
}

// dispatch forwards an adapter event to subscribers, re-arming tombstones
// on explicit adds: re-registration intentionally un-removes a layer.
func (r *Registry) dispatch(ev Event) {
	r.mu.Lock()
	if ev.Kind == EventAdd {
		delete(r.tombstones, ev.LayerID)
	}
	fns := make([]func(Event), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// OnChange subscribes to the aggregated adapter event stream.
func (r *Registry) OnChange(fn func(Event)) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// AllLayerIDs enumerates every registered adapter's layers. A failing
// adapter contributes nothing; the rest still enumerate.
func (r *Registry) AllLayerIDs() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tag := range r.adapterOrder() {
		a, ok := r.adapter(tag)
		if !ok {
			continue
		}
		var ids []string
		err := r.safeCall(tag, func() error {
			ids = a.LayerIDs()
			return nil
		})
		if err != nil {
			continue
		}
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// AdapterFor finds the adapter owning id, if any.
func (r *Registry) AdapterFor(id string) (Adapter, bool) {
	for _, tag := range r.adapterOrder() {
		a, ok := r.adapter(tag)
		if !ok {
			continue
		}
		var owns bool
		err := r.safeCall(tag, func() error {
			for _, v := range a.LayerIDs() {
				if v == id {
					owns = true
					break
				}
			}
			return nil
		})
		if err == nil && owns {
			return a, true
		}
	}
	return nil, false
}

// State reads a layer's state through its adapter; ok=false when no
// adapter owns the ID or the read failed.
func (r *Registry) State(id string) (LayerState, bool) {
	a, ok := r.AdapterFor(id)
	if !ok {
		return LayerState{}, false
	}
	var st LayerState
	err := r.safeCall(a.TypeTag(), func() error {
		var err error
		st, err = a.State(id)
		return err
	})
	if err != nil {
		return LayerState{}, false
	}
	return st, true
}

// SetVisibility attempts the mutation through the owning adapter. A
// missing adapter or any adapter failure reports handled=false so the
// caller can fall back to the native path.
func (r *Registry) SetVisibility(id string, visible bool) bool {
	a, ok := r.AdapterFor(id)
	if !ok {
		return false
	}
	err := r.safeCall(a.TypeTag(), func() error {
		return a.SetVisibility(id, visible)
	})
	return err == nil
}

// SetOpacity mirrors SetVisibility for opacity writes.
func (r *Registry) SetOpacity(id string, opacity float64) bool {
	a, ok := r.AdapterFor(id)
	if !ok {
		return false
	}
	err := r.safeCall(a.TypeTag(), func() error {
		return a.SetOpacity(id, opacity)
	})
	return err == nil
}

// SymbolType probes the optional capability on the owning adapter.
func (r *Registry) SymbolType(id string) (string, bool) {
	a, ok := r.AdapterFor(id)
	if !ok {
		return "", false
	}
	st, ok := a.(SymbolTyper)
	if !ok {
		return "", false
	}
	var typ string
	var found bool
	err := r.safeCall(a.TypeTag(), func() error {
		typ, found = st.SymbolType(id)
		return nil
	})
	if err != nil || !found {
		return "", false
	}
	return typ, true
}

// DisplayName probes the optional Namer capability on the owning
// adapter.
func (r *Registry) DisplayName(id string) (string, bool) {
	a, ok := r.AdapterFor(id)
	if !ok {
		return "", false
	}
	n, ok := a.(Namer)
	if !ok {
		return "", false
	}
	var name string
	var found bool
	err := r.safeCall(a.TypeTag(), func() error {
		name, found = n.DisplayName(id)
		return nil
	})
	if err != nil || !found {
		return "", false
	}
	return name, true
}

// Tombstone marks id as explicitly removed by the user.
func (r *Registry) Tombstone(id string) {
	r.mu.Lock()
	r.tombstones[id] = struct{}{}
	r.mu.Unlock()
}

func (r *Registry) Tombstoned(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tombstones[id]
	return ok
}

// TombstonedIDs lists the current tombstone set, for persistence.
func (r *Registry) TombstonedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.tombstones))
	for id := range r.tombstones {
		out = append(out, id)
	}
	return out
}

func (r *Registry) adapterOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) adapter(tag string) (Adapter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.adapters[tag]
	return a, ok
}

// safeCall isolates adapter misbehavior: errors and panics both surface
// as a plain error, which callers translate to handled=false. One broken
// adapter must never break native layer mutation.
func (r *Registry) safeCall(tag string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("adapter %q panicked: %v", tag, p)
		}
		if err != nil {
			r.metrics.IncAdapterFailure(tag)
			r.log.Warn().Err(err).Str("type", tag).Msg("custom layer adapter call failed")
		}
	}()
	return fn()
}
