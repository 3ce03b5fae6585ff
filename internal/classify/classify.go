// Package classify decides, from indirect signals only, whether a map
// layer belongs to the basemap background or is user-added content. There
// is no authoritative flag anywhere in the host engine; the verdict
// follows a strict precedence order and deliberately fails open toward
// treating ambiguous layers as user content.
package classify

import (
	"net/url"
	"path"
	"strings"

	"github.com/opengeos/maplibre-gl-layer-control/internal/maphost"
)

// Group is a classification verdict.
type Group int

const (
	GroupIndividual Group = iota
	GroupBackground
)

func (g Group) String() string {
	if g == GroupBackground {
		return "background"
	}
	return "individual"
}

// Result partitions a set of layer IDs.
type Result struct {
	Individual []string
	Background []string
}

// Classifier applies the precedence rules against one Context. Source
// heuristic verdicts (the last-resort rule) are memoized per layer ID at
// first sight so an ambiguous source URL cannot make a layer's
// classification flap between passes.
type Classifier struct {
	ctx  *Context
	memo map[string]Group
}

func New(ctx *Context) *Classifier {
	if ctx == nil {
		ctx = NewContext(ContextOptions{})
	}
	return &Classifier{ctx: ctx, memo: make(map[string]Group)}
}

func (c *Classifier) Context() *Context { return c.ctx }

// Classify partitions layerIDs. sourceOf resolves a layer's source
// descriptor; it is only consulted when the heuristic rule applies.
func (c *Classifier) Classify(layerIDs []string, sourceOf func(id string) maphost.SourceDescriptor) Result {
	var out Result
	for _, id := range layerIDs {
		var src maphost.SourceDescriptor
		if sourceOf != nil {
			src = sourceOf(id)
		}
		switch c.ClassifyOne(id, src) {
		case GroupBackground:
			out.Background = append(out.Background, id)
		default:
			out.Individual = append(out.Individual, id)
		}
	}
	return out
}

// ClassifyOne applies the precedence order to a single layer. First
// matching rule wins; later rules are never consulted.
//
//  1. Exclusion pattern match: Background.
//  2. Explicit mode: listed IDs are Individual, everything else Background.
//  3. Authoritative basemap set, when provided and non-empty: membership
//     decides.
//  4. Source heuristic, memoized at first sight.
func (c *Classifier) ClassifyOne(id string, src maphost.SourceDescriptor) Group {
	if c.matchesExclusion(id) {
		return GroupBackground
	}
	if c.ctx.explicitMode() {
		if c.ctx.isExplicit(id) {
			return GroupIndividual
		}
		return GroupBackground
	}
	if c.ctx.HasBasemapSet() {
		if c.ctx.inBasemapSet(id) {
			return GroupBackground
		}
		return GroupIndividual
	}
	if g, ok := c.memo[id]; ok {
		return g
	}
	g := heuristicGroup(c.ctx, id, src)
	c.memo[id] = g
	return g
}

func (c *Classifier) matchesExclusion(id string) bool {
	for _, pat := range c.ctx.patterns {
		ok, err := path.Match(pat, id)
		if err != nil {
			// Malformed pattern; never let it hide a layer.
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// heuristicGroup is the last-resort source heuristic. The bias is toward
// Individual: a false "user layer" shows an extra panel row, while a false
// "background" hides real user content inside the aggregate.
func heuristicGroup(ctx *Context, id string, src maphost.SourceDescriptor) Group {
	if ctx.isInitialLayer(id) {
		return GroupBackground
	}
	if src.Type == maphost.SourceNone && src.ID == "" {
		return GroupBackground
	}
	if src.ID != "" && ctx.isInitialSource(src.ID) {
		return GroupBackground
	}

	switch src.Type {
	case maphost.SourceImage, maphost.SourceVideo, maphost.SourceCanvas:
		return GroupIndividual
	case maphost.SourceGeoJSON:
		if src.Inline || src.DataURL == "" {
			return GroupIndividual
		}
		return urlGroup(ctx, src.DataURL)
	}

	urls := make([]string, 0, len(src.Tiles)+1)
	if src.URL != "" {
		urls = append(urls, src.URL)
	}
	urls = append(urls, src.Tiles...)
	if len(urls) == 0 {
		// Tile source with no resolvable URL at all; treat as user content.
		return GroupIndividual
	}
	for _, raw := range urls {
		if urlGroup(ctx, raw) == GroupBackground {
			return GroupBackground
		}
	}
	return GroupIndividual
}

// urlGroup classifies a single source URL. Unparsable URLs classify
// Individual (fail open toward visibility).
func urlGroup(ctx *Context, raw string) Group {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return GroupIndividual
	}
	u, err := url.Parse(raw)
	if err != nil {
		return GroupIndividual
	}
	// mapbox:// style and tileset references always resolve to the
	// provider's API.
	if strings.EqualFold(u.Scheme, "mapbox") {
		return GroupBackground
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return GroupIndividual
	}
	if ctx.isStyleHost(host) || knownBasemapHost(host) {
		return GroupBackground
	}
	return GroupIndividual
}
