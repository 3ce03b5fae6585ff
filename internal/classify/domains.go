package classify

import "strings"

// Domains whose tile/sprite/glyph URLs mark a source as basemap-provided.
// Matching is by exact host or subdomain suffix.
var basemapProviderDomains = []string{
	"tile.openstreetmap.org",
	"tiles.openfreemap.org",
	"openfreemap.org",
	"basemaps.cartocdn.com",
	"cartocdn.com",
	"api.maptiler.com",
	"maptiler.com",
	"tiles.stadiamaps.com",
	"stadiamaps.com",
	"server.arcgisonline.com",
	"arcgisonline.com",
	"api.mapbox.com",
	"mapbox.com",
	"tile.opentopomap.org",
	"demotiles.maplibre.org",
	"maplibre.org",
	"tile.thunderforest.com",
	"mt0.google.com",
	"mt1.google.com",
}

func knownBasemapHost(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}
	for _, d := range basemapProviderDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
