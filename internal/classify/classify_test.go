package classify

import (
	"testing"

	"github.com/opengeos/maplibre-gl-layer-control/internal/maphost"
)

func sortedContains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func TestClassify_InitialLayersBecomeBackground(t *testing.T) {
	ctx := NewContext(ContextOptions{
		InitialLayerIDs: []string{"basemap-water", "basemap-roads"},
	})
	c := New(ctx)

	res := c.Classify(
		[]string{"basemap-water", "basemap-roads", "user-fill-1"},
		func(id string) maphost.SourceDescriptor {
			if id == "user-fill-1" {
				return maphost.SourceDescriptor{ID: "user-src", Type: maphost.SourceGeoJSON, Inline: true}
			}
			return maphost.SourceDescriptor{ID: "basemap", Type: maphost.SourceVector}
		},
	)

	if len(res.Background) != 2 || !sortedContains(res.Background, "basemap-water") || !sortedContains(res.Background, "basemap-roads") {
		t.Fatalf("expected both basemap layers background, got %v", res.Background)
	}
	if len(res.Individual) != 1 || res.Individual[0] != "user-fill-1" {
		t.Fatalf("expected user-fill-1 individual, got %v", res.Individual)
	}
}

func TestClassify_ExplicitModeShortCircuits(t *testing.T) {
	ctx := NewContext(ContextOptions{
		ExplicitTargets: []string{"user-fill-1"},
		// These would otherwise classify user-fill-1 background.
		InitialLayerIDs: []string{"user-fill-1", "basemap-water", "basemap-roads"},
	})
	c := New(ctx)

	res := c.Classify(
		[]string{"basemap-water", "basemap-roads", "user-fill-1"},
		func(string) maphost.SourceDescriptor { return maphost.SourceDescriptor{} },
	)

	if len(res.Individual) != 1 || res.Individual[0] != "user-fill-1" {
		t.Fatalf("expected only explicit target individual, got %v", res.Individual)
	}
	if len(res.Background) != 2 {
		t.Fatalf("expected everything else background, got %v", res.Background)
	}
}

func TestClassify_BasemapSetIsAuthoritative(t *testing.T) {
	ctx := NewContext(ContextOptions{})
	if !ctx.ProvideBasemapLayerIDs([]string{"water", "roads"}) {
		t.Fatalf("expected first provide to succeed")
	}
	c := New(ctx)

	// Sources that the heuristic would classify the other way around.
	src := func(id string) maphost.SourceDescriptor {
		switch id {
		case "water":
			// Inline GeoJSON heuristically reads as user content.
			return maphost.SourceDescriptor{ID: "s1", Type: maphost.SourceGeoJSON, Inline: true}
		default:
			// Known provider host heuristically reads as basemap.
			return maphost.SourceDescriptor{ID: "s2", Type: maphost.SourceRaster, Tiles: []string{"https://tile.openstreetmap.org/{z}/{x}/{y}.png"}}
		}
	}

	if g := c.ClassifyOne("water", src("water")); g != GroupBackground {
		t.Fatalf("expected water background (set member), got %v", g)
	}
	if g := c.ClassifyOne("my-tiles", src("my-tiles")); g != GroupIndividual {
		t.Fatalf("expected my-tiles individual (not in set), got %v", g)
	}
}

func TestContext_BasemapSetIsWriteOnce(t *testing.T) {
	ctx := NewContext(ContextOptions{})
	if !ctx.ProvideBasemapLayerIDs([]string{"water"}) {
		t.Fatalf("first provide should store")
	}
	if ctx.ProvideBasemapLayerIDs([]string{"roads"}) {
		t.Fatalf("second provide should be rejected")
	}
	c := New(ctx)
	if g := c.ClassifyOne("water", maphost.SourceDescriptor{}); g != GroupBackground {
		t.Fatalf("first set should win, got %v for water", g)
	}
	if g := c.ClassifyOne("roads", maphost.SourceDescriptor{ID: "x", Type: maphost.SourceGeoJSON, Inline: true}); g != GroupIndividual {
		t.Fatalf("second set must not apply, got %v for roads", g)
	}
}

func TestClassify_ExclusionPatternBeatsExplicitTargets(t *testing.T) {
	ctx := NewContext(ContextOptions{
		ExplicitTargets:    []string{"gl-draw-polygon-fill"},
		ExcludeDrawnLayers: true,
	})
	c := New(ctx)

	if g := c.ClassifyOne("gl-draw-polygon-fill", maphost.SourceDescriptor{}); g != GroupBackground {
		t.Fatalf("drawing-tool layer must never surface as user content, got %v", g)
	}
}

func TestClassify_CustomExclusionPatterns(t *testing.T) {
	ctx := NewContext(ContextOptions{
		ExclusionPatterns: []string{"scratch-*"},
	})
	c := New(ctx)

	src := maphost.SourceDescriptor{ID: "s", Type: maphost.SourceGeoJSON, Inline: true}
	if g := c.ClassifyOne("scratch-42", src); g != GroupBackground {
		t.Fatalf("expected pattern match background, got %v", g)
	}
	if g := c.ClassifyOne("real-42", src); g != GroupIndividual {
		t.Fatalf("expected non-match individual, got %v", g)
	}
}

func TestHeuristic_SourceKinds(t *testing.T) {
	ctx := NewContext(ContextOptions{
		InitialSourceIDs: []string{"composite"},
		StyleURLs:        []string{"https://styles.example-cdn.net/sprite"},
	})

	cases := []struct {
		name string
		id   string
		src  maphost.SourceDescriptor
		want Group
	}{
		{"sourceless is background", "bg", maphost.SourceDescriptor{}, GroupBackground},
		{"initial source is background", "l1", maphost.SourceDescriptor{ID: "composite", Type: maphost.SourceVector}, GroupBackground},
		{"inline geojson is individual", "l2", maphost.SourceDescriptor{ID: "d", Type: maphost.SourceGeoJSON, Inline: true}, GroupIndividual},
		{"image source is individual", "l3", maphost.SourceDescriptor{ID: "img", Type: maphost.SourceImage}, GroupIndividual},
		{"video source is individual", "l4", maphost.SourceDescriptor{ID: "vid", Type: maphost.SourceVideo}, GroupIndividual},
		{"canvas source is individual", "l5", maphost.SourceDescriptor{ID: "cv", Type: maphost.SourceCanvas}, GroupIndividual},
		{
			"provider tiles are background", "l6",
			maphost.SourceDescriptor{ID: "osm", Type: maphost.SourceRaster, Tiles: []string{"https://tile.openstreetmap.org/{z}/{x}/{y}.png"}},
			GroupBackground,
		},
		{
			"style sprite host is background", "l7",
			maphost.SourceDescriptor{ID: "sp", Type: maphost.SourceVector, URL: "https://styles.example-cdn.net/tiles.json"},
			GroupBackground,
		},
		{
			"unknown host is individual", "l8",
			maphost.SourceDescriptor{ID: "mine", Type: maphost.SourceRaster, Tiles: []string{"https://tiles.my-company.io/{z}/{x}/{y}.png"}},
			GroupIndividual,
		},
		{
			"mapbox scheme is background", "l9",
			maphost.SourceDescriptor{ID: "mb", Type: maphost.SourceVector, URL: "mapbox://mapbox.mapbox-streets-v8"},
			GroupBackground,
		},
		{
			"unparsable URL fails open to individual", "l10",
			maphost.SourceDescriptor{ID: "bad", Type: maphost.SourceRaster, Tiles: []string{"%zzzz://not-a-url"}},
			GroupIndividual,
		},
		{
			"geojson url on provider host is background", "l11",
			maphost.SourceDescriptor{ID: "gj", Type: maphost.SourceGeoJSON, DataURL: "https://api.maptiler.com/data/x.geojson"},
			GroupBackground,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := New(ctx)
			if g := c.ClassifyOne(tc.id, tc.src); g != tc.want {
				t.Fatalf("got %v, want %v", g, tc.want)
			}
		})
	}
}

func TestClassify_HeuristicVerdictDoesNotFlap(t *testing.T) {
	c := New(NewContext(ContextOptions{}))

	unknown := maphost.SourceDescriptor{ID: "s", Type: maphost.SourceRaster, Tiles: []string{"https://tiles.my-company.io/{z}/{x}/{y}.png"}}
	if g := c.ClassifyOne("tiles-1", unknown); g != GroupIndividual {
		t.Fatalf("first sight should classify individual, got %v", g)
	}

	// The source now resolves to a provider host; the memoized verdict
	// must hold so the entry does not flap between groups.
	provider := maphost.SourceDescriptor{ID: "s", Type: maphost.SourceRaster, Tiles: []string{"https://tile.openstreetmap.org/{z}/{x}/{y}.png"}}
	if g := c.ClassifyOne("tiles-1", provider); g != GroupIndividual {
		t.Fatalf("memoized verdict should hold, got %v", g)
	}
}

func TestKnownBasemapHost(t *testing.T) {
	cases := map[string]bool{
		"tile.openstreetmap.org":  true,
		"a.tile.openstreetmap.org": true,
		"api.maptiler.com":        true,
		"tiles.my-company.io":     false,
		"openstreetmap.org.evil.io": false,
		"": false,
	}
	for host, want := range cases {
		if got := knownBasemapHost(host); got != want {
			t.Fatalf("knownBasemapHost(%q) = %v, want %v", host, got, want)
		}
	}
}
