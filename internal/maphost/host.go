package maphost

// SourceType enumerates the source kinds the host map can report.
type SourceType string

const (
	SourceNone    SourceType = ""
	SourceVector  SourceType = "vector"
	SourceRaster  SourceType = "raster"
	SourceGeoJSON SourceType = "geojson"
	SourceImage   SourceType = "image"
	SourceVideo   SourceType = "video"
	SourceCanvas  SourceType = "canvas"
)

// SourceDescriptor is a read-only view of a layer's source as the host map
// reports it. A layer with no source (e.g. a background paint layer) has
// Type == SourceNone and an empty ID.
type SourceDescriptor struct {
	ID    string
	Type  SourceType
	URL   string   // TileJSON / style-sheet URL, if any
	Tiles []string // tile URL templates, if any

	// GeoJSON sources either carry an inline payload or point at a URL.
	DataURL string
	Inline  bool
}

// EventKind distinguishes the host's three asynchronous notification streams.
type EventKind int

const (
	EventStyleChanged EventKind = iota
	EventContentLoaded
	EventMetadataLoaded
)

func (k EventKind) String() string {
	switch k {
	case EventStyleChanged:
		return "style_changed"
	case EventContentLoaded:
		return "content_loaded"
	case EventMetadataLoaded:
		return "metadata_loaded"
	default:
		return "unknown"
	}
}

// Event is a single change notification from the host map. Events are
// batched, unordered and may overlap with user-driven mutations; consumers
// must re-snapshot rather than trust any cached view.
type Event struct {
	Kind     EventKind
	SourceID string // set for content/metadata events, empty for style changes
}

// Host is the live map this engine reconciles against. The host's layer
// list is mutated by multiple callers (this engine and arbitrary external
// code), so every read can fail transiently when a layer vanishes between
// enumeration and lookup.
type Host interface {
	AllLayerIDs() ([]string, error)
	LayerKind(id string) (string, error)
	Visibility(id string) (bool, error)
	Opacity(id string) (float64, error)
	SetVisibility(id string, visible bool) error
	SetOpacity(id string, opacity float64) error
	SourceDescriptor(id string) (SourceDescriptor, error)

	// Subscribe registers fn on all three notification streams and returns
	// an unsubscribe func.
	Subscribe(fn func(Event)) func()
}
