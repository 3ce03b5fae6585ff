package classify

import (
	"net/url"
	"strings"
	"sync"
)

// Built-in exclusion patterns for drawing-tool scratch layers. These must
// never surface as user content even when added after attach.
var drawnLayerPatterns = []string{
	"gl-draw-*",
	"mapbox-gl-draw-*",
	"maplibre-gl-draw-*",
}

// ContextOptions configures a classification Context at engine attach time.
type ContextOptions struct {
	// ExplicitTargets, when non-empty, puts classification in explicit
	// mode: listed IDs are Individual, everything else is Background.
	ExplicitTargets []string

	// InitialLayerIDs / InitialSourceIDs snapshot what the map carried at
	// attach time; anything present then is presumptively basemap.
	InitialLayerIDs  []string
	InitialSourceIDs []string

	// ExclusionPatterns are glob patterns forcibly classified Background.
	ExclusionPatterns []string

	// ExcludeDrawnLayers appends the built-in drawing-tool pattern set.
	ExcludeDrawnLayers bool

	// StyleURLs are sprite/glyph URLs of the attached style; their hosts
	// count as basemap hosts for the source heuristic.
	StyleURLs []string
}

// Context is the immutable snapshot the classifier decides against. The
// attach-time sets never change after construction; the authoritative
// basemap layer set may be provided at most once, asynchronously.
type Context struct {
	explicitTargets  map[string]struct{}
	initialLayerIDs  map[string]struct{}
	initialSourceIDs map[string]struct{}
	patterns         []string
	styleHosts       map[string]struct{}

	mu         sync.RWMutex
	basemapIDs map[string]struct{} // nil until provided
}

func NewContext(opts ContextOptions) *Context {
	c := &Context{
		explicitTargets:  toSet(opts.ExplicitTargets),
		initialLayerIDs:  toSet(opts.InitialLayerIDs),
		initialSourceIDs: toSet(opts.InitialSourceIDs),
		styleHosts:       make(map[string]struct{}),
	}
	c.patterns = append(c.patterns, opts.ExclusionPatterns...)
	if opts.ExcludeDrawnLayers {
		c.patterns = append(c.patterns, drawnLayerPatterns...)
	}
	for _, raw := range opts.StyleURLs {
		if h := hostOf(raw); h != "" {
			c.styleHosts[h] = struct{}{}
		}
	}
	return c
}

// ProvideBasemapLayerIDs installs the authoritative basemap layer set.
// Only the first call takes effect; it reports whether the set was stored.
func (c *Context) ProvideBasemapLayerIDs(ids []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.basemapIDs != nil {
		return false
	}
	c.basemapIDs = toSet(ids)
	return true
}

// HasBasemapSet reports whether the authoritative set was provided and is
// non-empty.
func (c *Context) HasBasemapSet() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.basemapIDs) > 0
}

func (c *Context) inBasemapSet(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.basemapIDs[id]
	return ok
}

func (c *Context) explicitMode() bool { return len(c.explicitTargets) > 0 }

func (c *Context) isExplicit(id string) bool {
	_, ok := c.explicitTargets[id]
	return ok
}

func (c *Context) isInitialLayer(id string) bool {
	_, ok := c.initialLayerIDs[id]
	return ok
}

func (c *Context) isInitialSource(id string) bool {
	_, ok := c.initialSourceIDs[id]
	return ok
}

func (c *Context) isStyleHost(host string) bool {
	_, ok := c.styleHosts[strings.ToLower(host)]
	return ok
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out[id] = struct{}{}
	}
	return out
}

func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
