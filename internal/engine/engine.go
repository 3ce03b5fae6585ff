// Package engine keeps the canonical layer state converged against a
// live, externally mutable host map. The host's layer list can change
// under us at any time, so every pass re-snapshots instead of trusting
// cached assumptions; change notifications only decide when to look, not
// what is true.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/opengeos/maplibre-gl-layer-control/internal/basemap"
	"github.com/opengeos/maplibre-gl-layer-control/internal/classify"
	"github.com/opengeos/maplibre-gl-layer-control/internal/maphost"
	"github.com/opengeos/maplibre-gl-layer-control/internal/metrics"
	"github.com/opengeos/maplibre-gl-layer-control/internal/naming"
	"github.com/opengeos/maplibre-gl-layer-control/internal/persist"
	"github.com/opengeos/maplibre-gl-layer-control/internal/registry"
	"github.com/opengeos/maplibre-gl-layer-control/internal/state"
)

// Options configures an Engine.
type Options struct {
	// Debounce batches bursts of host notifications into one pass.
	Debounce time.Duration
	// Settle is how long the mutation guard stays raised after a user
	// mutation; it must exceed Debounce so the host's own notifications
	// land inside the window. Enforced in New.
	Settle time.Duration

	// ExplicitTargets short-circuits classification when non-empty.
	ExplicitTargets []string
	// ExclusionPatterns are glob patterns forced to Background.
	ExclusionPatterns []string
	// ExcludeDrawnLayers adds the built-in drawing-tool pattern set.
	ExcludeDrawnLayers bool

	// Basemap carries the authoritative style description, when the
	// caller managed to fetch one before attach.
	Basemap *basemap.StyleInfo

	// Persist stores user overrides and tombstones across sessions.
	Persist *persist.Store

	Scheduler Scheduler
}

// Engine wires the classifier, state store, custom layer registry and
// host map together, and serializes reconciliation against user
// mutations through the guard flag.
type Engine struct {
	log     zerolog.Logger
	host    maphost.Host
	reg     *registry.Registry
	store   *state.Store
	cls     *classify.Classifier
	metrics *metrics.Metrics
	persist *persist.Store
	sched   Scheduler

	debounceDelay time.Duration
	settleDelay   time.Duration
	opts          Options

	mu          sync.Mutex
	suppressed  bool
	pending     bool
	debouncers  map[maphost.EventKind]Timer
	settleTimer Timer
	unsubHost   func()
	unsubReg    func()
	attached    bool
	closed      bool
}

func New(log zerolog.Logger, host maphost.Host, reg *registry.Registry, m *metrics.Metrics, opts Options) *Engine {
	db := opts.Debounce
	if db <= 0 {
		db = 120 * time.Millisecond
	}
	st := opts.Settle
	if st <= db {
		st = db + 200*time.Millisecond
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = NewScheduler()
	}

	return &Engine{
		log:           log,
		host:          host,
		reg:           reg,
		store:         state.NewStore(),
		metrics:       m,
		persist:       opts.Persist,
		sched:         sched,
		debounceDelay: db,
		settleDelay:   st,
		opts:          opts,
		debouncers:    make(map[maphost.EventKind]Timer),
	}
}

// Attach snapshots the host, builds the immutable classification
// context, seeds the state store, restores persisted user intent and
// subscribes to change notifications. Call once.
func (e *Engine) Attach(ctx context.Context) error {
	e.mu.Lock()
	if e.attached {
		e.mu.Unlock()
		return nil
	}
	e.attached = true
	e.mu.Unlock()

	e.restoreTombstones(ctx)

	initialIDs, err := e.host.AllLayerIDs()
	if err != nil {
		return err
	}
	var sourceIDs []string
	seenSrc := make(map[string]struct{})
	for _, id := range initialIDs {
		src, err := e.host.SourceDescriptor(id)
		if err != nil {
			// Layer vanished between enumeration and lookup; the next
			// pass re-converges.
			e.log.Debug().Err(err).Str("layer", id).Msg("initial source read failed")
			continue
		}
		if src.ID == "" {
			continue
		}
		if _, ok := seenSrc[src.ID]; ok {
			continue
		}
		seenSrc[src.ID] = struct{}{}
		sourceIDs = append(sourceIDs, src.ID)
	}

	ctxOpts := classify.ContextOptions{
		ExplicitTargets:    e.opts.ExplicitTargets,
		InitialLayerIDs:    initialIDs,
		InitialSourceIDs:   sourceIDs,
		ExclusionPatterns:  e.opts.ExclusionPatterns,
		ExcludeDrawnLayers: e.opts.ExcludeDrawnLayers,
	}
	if e.opts.Basemap != nil {
		ctxOpts.StyleURLs = e.opts.Basemap.StyleURLs()
	}
	cctx := classify.NewContext(ctxOpts)
	if e.opts.Basemap != nil {
		cctx.ProvideBasemapLayerIDs(e.opts.Basemap.LayerIDs)
	}
	e.cls = classify.New(cctx)

	e.reconcileOnce()
	e.restoreOverrides(ctx)

	e.mu.Lock()
	e.unsubHost = e.host.Subscribe(e.onHostEvent)
	e.unsubReg = e.reg.OnChange(e.onRegistryEvent)
	e.mu.Unlock()

	e.log.Info().
		Int("layers", e.store.Len()).
		Int("background_members", len(e.store.BackgroundMembers())).
		Msg("layer engine attached")
	return nil
}

// ProvideBasemap installs a late-arriving authoritative basemap style.
// Only the first style ever provided takes effect; existing entries keep
// their grouping, new layers classify against the authoritative set.
func (e *Engine) ProvideBasemap(info basemap.StyleInfo) {
	e.mu.Lock()
	cls := e.cls
	e.mu.Unlock()
	if cls == nil {
		return
	}
	if cls.Context().ProvideBasemapLayerIDs(info.LayerIDs) {
		e.Reconcile()
	}
}

// Snapshot returns the display-ordered state view: the Background
// aggregate first when present, then individual layers.
func (e *Engine) Snapshot() []state.Entry {
	return e.store.Snapshot()
}

// RegisterAdapter installs a custom layer adapter and folds its layers
// into tracked state.
func (e *Engine) RegisterAdapter(a registry.Adapter) error {
	if err := e.reg.Register(a); err != nil {
		return err
	}
	e.Reconcile()
	return nil
}

// UnregisterAdapter detaches an adapter; its layers untrack on the
// following pass.
func (e *Engine) UnregisterAdapter(typeTag string) {
	e.reg.Unregister(typeTag)
	e.Reconcile()
}

// Reconcile runs one pass now, unless a user mutation holds the guard;
// then exactly one pass is queued for when the guard drops.
func (e *Engine) Reconcile() {
	e.mu.Lock()
	if e.closed || e.cls == nil {
		e.mu.Unlock()
		return
	}
	if e.suppressed {
		e.pending = true
		e.mu.Unlock()
		e.metrics.IncReconcileSuppressed()
		e.log.Debug().Msg("reconcile deferred; mutation guard raised")
		return
	}
	e.mu.Unlock()
	e.reconcileOnce()
}

func (e *Engine) reconcileOnce() {
	start := time.Now()
	e.metrics.IncReconcilePass()
	defer func() {
		e.metrics.ObserveReconcileDuration(time.Since(start))
		e.metrics.SetLayersTracked(e.store.Len())
	}()

	currentIDs, err := e.host.AllLayerIDs()
	if err != nil {
		e.log.Warn().Err(err).Msg("host layer snapshot failed; pass skipped")
		return
	}
	current := make(map[string]struct{}, len(currentIDs))
	for _, id := range currentIDs {
		current[id] = struct{}{}
	}

	// Removals first. Custom entries are never removed by map absence;
	// the host has no knowledge of them.
	for _, id := range e.store.IDs() {
		entry, ok := e.store.Get(id)
		if !ok || entry.Kind == state.KindCustom {
			continue
		}
		if _, live := current[id]; !live {
			e.store.Remove(id)
			e.log.Debug().Str("layer", id).Msg("layer gone from host; untracked")
		}
	}

	for _, id := range currentIDs {
		if id == state.BackgroundID || e.store.Has(id) {
			continue
		}
		e.addNativeLayer(id)
	}

	e.reconcileCustom()
}

// addNativeLayer classifies and seeds one newly observed layer. Any host
// read failure skips just this entry; the next debounce cycle
// re-converges.
func (e *Engine) addNativeLayer(id string) {
	src, err := e.host.SourceDescriptor(id)
	if err != nil {
		e.log.Debug().Err(err).Str("layer", id).Msg("source read failed; entry skipped this pass")
		return
	}
	group := e.cls.ClassifyOne(id, src)
	e.metrics.IncClassification(group.String())

	vis, err := e.host.Visibility(id)
	if err != nil {
		e.log.Debug().Err(err).Str("layer", id).Msg("visibility read failed; entry skipped this pass")
		return
	}
	op, err := e.host.Opacity(id)
	if err != nil {
		e.log.Debug().Err(err).Str("layer", id).Msg("opacity read failed; entry skipped this pass")
		return
	}

	membership := state.Individual
	if group == classify.GroupBackground {
		membership = state.BackgroundMember
	}
	kind := state.KindNative
	name := naming.FromID(id)
	e.store.Upsert(id, state.Patch{
		Kind:       &kind,
		Visible:    &vis,
		Opacity:    &op,
		Name:       &name,
		Membership: &membership,
	})
	if membership == state.Individual {
		e.log.Debug().Str("layer", id).Msg("tracking new layer")
	}
}

// reconcileCustom diffs the registry's reported IDs against tracked
// custom entries. Tombstoned IDs never resurrect from enumeration; only
// a fresh adapter add event re-arms them.
func (e *Engine) reconcileCustom() {
	regIDs := e.reg.AllLayerIDs()
	regSet := make(map[string]struct{}, len(regIDs))
	for _, id := range regIDs {
		regSet[id] = struct{}{}
	}

	for _, id := range e.store.IDs() {
		entry, ok := e.store.Get(id)
		if !ok || entry.Kind != state.KindCustom {
			continue
		}
		if _, live := regSet[id]; !live {
			e.store.Remove(id)
			e.log.Debug().Str("layer", id).Msg("custom layer no longer reported; untracked")
		}
	}

	for _, id := range regIDs {
		if e.reg.Tombstoned(id) || e.store.Has(id) {
			continue
		}
		st, ok := e.reg.State(id)
		if !ok {
			continue
		}
		kind := state.KindCustom
		membership := state.Individual
		cands := []naming.Candidate{{Name: naming.FromID(id), Source: "derived"}}
		if n, ok := e.reg.DisplayName(id); ok {
			cands = append(cands, naming.Candidate{Name: n, Source: "adapter"})
		}
		name, _ := naming.ChooseBest(cands)
		patch := state.Patch{
			Kind:       &kind,
			Visible:    &st.Visible,
			Opacity:    &st.Opacity,
			Name:       &name,
			Membership: &membership,
		}
		if ct, ok := e.reg.SymbolType(id); ok {
			patch.CustomType = &ct
		}
		e.store.Upsert(id, patch)
	}
}

// onHostEvent debounces each notification stream independently; a new
// event restarts the pending delay rather than firing twice.
func (e *Engine) onHostEvent(ev maphost.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if t, ok := e.debouncers[ev.Kind]; ok && t != nil {
		t.Reset(e.debounceDelay)
		return
	}
	kind := ev.Kind
	e.debouncers[kind] = e.sched.AfterFunc(e.debounceDelay, func() {
		e.mu.Lock()
		delete(e.debouncers, kind)
		closed := e.closed
		e.mu.Unlock()
		if closed {
			return
		}
		e.Reconcile()
	})
}

func (e *Engine) onRegistryEvent(ev registry.Event) {
	switch ev.Kind {
	case registry.EventRemove:
		if e.store.Remove(ev.LayerID) {
			e.log.Debug().Str("layer", ev.LayerID).Str("type", ev.TypeTag).Msg("adapter removed layer")
		}
		e.metrics.SetLayersTracked(e.store.Len())
	case registry.EventAdd:
		// The registry already cleared the tombstone; forget the
		// persisted one too so the un-remove survives a restart.
		if e.persist != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := e.persist.RemoveTombstone(ctx, ev.LayerID); err != nil {
				e.log.Warn().Err(err).Str("layer", ev.LayerID).Msg("tombstone removal not persisted")
			}
			cancel()
		}
		e.Reconcile()
	}
}

func (e *Engine) restoreTombstones(ctx context.Context) {
	if e.persist == nil {
		return
	}
	ids, err := e.persist.Tombstones(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("persisted tombstones unavailable")
		return
	}
	for _, id := range ids {
		e.reg.Tombstone(id)
	}
}

// restoreOverrides re-applies persisted user intent to freshly seeded
// entries and pushes it back at the owning layer. Runs before event
// subscription, so the resulting host notifications cause no churn.
func (e *Engine) restoreOverrides(ctx context.Context) {
	if e.persist == nil {
		return
	}
	overrides, err := e.persist.Overrides(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("persisted overrides unavailable")
		return
	}
	for id, o := range overrides {
		if !e.store.Has(id) {
			continue
		}
		patch := state.Patch{Visible: o.Visible, Opacity: o.Opacity}
		if o.Name != nil {
			overridden := true
			patch.Name = o.Name
			patch.NameOverride = &overridden
		}
		e.store.Upsert(id, patch)

		if o.Visible != nil {
			if !e.reg.SetVisibility(id, *o.Visible) {
				if err := e.host.SetVisibility(id, *o.Visible); err != nil {
					e.log.Debug().Err(err).Str("layer", id).Msg("visibility restore failed")
				}
			}
		}
		if o.Opacity != nil {
			if !e.reg.SetOpacity(id, *o.Opacity) {
				if err := e.host.SetOpacity(id, *o.Opacity); err != nil {
					e.log.Debug().Err(err).Str("layer", id).Msg("opacity restore failed")
				}
			}
		}
	}
}

// Close detaches from the host and registry and stops all timers.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	unsubHost, unsubReg := e.unsubHost, e.unsubReg
	for _, t := range e.debouncers {
		t.Stop()
	}
	e.debouncers = make(map[maphost.EventKind]Timer)
	if e.settleTimer != nil {
		e.settleTimer.Stop()
		e.settleTimer = nil
	}
	e.mu.Unlock()

	if unsubHost != nil {
		unsubHost()
	}
	if unsubReg != nil {
		unsubReg()
	}
}
