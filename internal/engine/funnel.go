package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opengeos/maplibre-gl-layer-control/internal/persist"
	"github.com/opengeos/maplibre-gl-layer-control/internal/state"
)

// ErrUnknownLayer is returned for mutations against IDs the engine does
// not track.
var ErrUnknownLayer = errors.New("engine: unknown layer")

// SetVisibility funnels a user-initiated visibility change: guard up,
// optimistic store write, adapter attempt, native fallback. Mutating the
// Background aggregate fans out to every member.
//
// Both the adapter and the native path trigger asynchronous host
// notifications that would otherwise race a reconciliation pass reading
// stale pre-mutation state; the guard stays raised for a settle window
// longer than the debounce delay so those notifications land inside it.
func (e *Engine) SetVisibility(id string, visible bool) error {
	targets, err := e.mutationTargets(id)
	if err != nil {
		return err
	}
	e.raiseGuard()
	defer e.scheduleRelease()

	for _, t := range targets {
		v := visible
		e.store.Upsert(t, state.Patch{Visible: &v})
		e.saveOverride(t, persist.Override{Visible: &v})
		if e.reg.SetVisibility(t, visible) {
			e.metrics.IncMutation("visibility", "adapter")
			continue
		}
		if err := e.host.SetVisibility(t, visible); err != nil {
			e.log.Warn().Err(err).Str("layer", t).Msg("native visibility write failed")
			continue
		}
		e.metrics.IncMutation("visibility", "native")
	}
	return nil
}

// SetOpacity mirrors SetVisibility; opacity is clamped to [0, 1].
func (e *Engine) SetOpacity(id string, opacity float64) error {
	opacity = clamp01(opacity)
	targets, err := e.mutationTargets(id)
	if err != nil {
		return err
	}
	e.raiseGuard()
	defer e.scheduleRelease()

	for _, t := range targets {
		o := opacity
		e.store.Upsert(t, state.Patch{Opacity: &o})
		e.saveOverride(t, persist.Override{Opacity: &o})
		if e.reg.SetOpacity(t, opacity) {
			e.metrics.IncMutation("opacity", "adapter")
			continue
		}
		if err := e.host.SetOpacity(t, opacity); err != nil {
			e.log.Warn().Err(err).Str("layer", t).Msg("native opacity write failed")
			continue
		}
		e.metrics.IncMutation("opacity", "native")
	}
	return nil
}

// SetName records a user display-name override. Overrides stick: derived
// names never overwrite them.
func (e *Engine) SetName(id, name string) error {
	if id == state.BackgroundID || !e.store.Has(id) {
		return fmt.Errorf("%w: %q", ErrUnknownLayer, id)
	}
	overridden := true
	e.store.Upsert(id, state.Patch{Name: &name, NameOverride: &overridden})
	e.saveOverride(id, persist.Override{Name: &name})
	return nil
}

// RemoveCustomLayer tombstones id and drops its entry. The adapter may
// keep reporting the ID; reconciliation will not resurrect it until the
// adapter emits a fresh add event.
func (e *Engine) RemoveCustomLayer(id string) {
	e.reg.Tombstone(id)
	e.store.Remove(id)
	e.metrics.SetLayersTracked(e.store.Len())
	if e.persist != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := e.persist.AddTombstone(ctx, id); err != nil {
			e.log.Warn().Err(err).Str("layer", id).Msg("tombstone not persisted")
		}
	}
	e.log.Info().Str("layer", id).Msg("custom layer removed")
}

func (e *Engine) mutationTargets(id string) ([]string, error) {
	if id == state.BackgroundID {
		members := e.store.BackgroundMembers()
		if len(members) == 0 {
			return nil, fmt.Errorf("%w: background aggregate has no members", ErrUnknownLayer)
		}
		return members, nil
	}
	if !e.store.Has(id) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLayer, id)
	}
	return []string{id}, nil
}

func (e *Engine) raiseGuard() {
	e.mu.Lock()
	e.suppressed = true
	e.mu.Unlock()
}

// scheduleRelease arms (or extends) the settle timer. Overlapping
// mutations share one timer; the guard drops once, after the last
// mutation's window.
func (e *Engine) scheduleRelease() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		e.suppressed = false
		return
	}
	if e.settleTimer != nil {
		e.settleTimer.Reset(e.settleDelay)
		return
	}
	e.settleTimer = e.sched.AfterFunc(e.settleDelay, e.releaseGuard)
}

// releaseGuard drops the guard and runs the single deferred pass. One
// pass is enough no matter how many triggers queued while suppressed.
func (e *Engine) releaseGuard() {
	e.mu.Lock()
	e.suppressed = false
	e.pending = false
	e.settleTimer = nil
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return
	}
	e.reconcileOnce()
}

func (e *Engine) saveOverride(id string, o persist.Override) {
	if e.persist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.persist.SaveOverride(ctx, id, o); err != nil {
		e.log.Warn().Err(err).Str("layer", id).Msg("override not persisted")
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
