// Package basemap fetches an authoritative basemap style description
// once, at attach time. Its layer set is the strongest classification
// signal short of explicit configuration; when the fetch fails the
// session falls back to heuristics permanently rather than retrying.
package basemap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StyleInfo is the subset of a style document the classifier consumes.
type StyleInfo struct {
	LayerIDs  []string
	SourceIDs []string
	SpriteURL string
	GlyphsURL string
}

// StyleURLs returns the sprite/glyph URLs whose hosts count as basemap
// hosts.
func (s StyleInfo) StyleURLs() []string {
	var out []string
	if s.SpriteURL != "" {
		out = append(out, s.SpriteURL)
	}
	if s.GlyphsURL != "" {
		out = append(out, s.GlyphsURL)
	}
	return out
}

type styleDoc struct {
	Layers []struct {
		ID string `json:"id"`
	} `json:"layers"`
	Sources map[string]json.RawMessage `json:"sources"`
	Sprite  string                     `json:"sprite"`
	Glyphs  string                     `json:"glyphs"`
}

const maxStyleBytes = 8 << 20

// Fetch downloads and parses the style at styleURL. The request is
// bounded by timeout on top of whatever deadline ctx carries.
func Fetch(ctx context.Context, styleURL string, timeout time.Duration) (StyleInfo, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, styleURL, nil)
	if err != nil {
		return StyleInfo{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return StyleInfo{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return StyleInfo{}, fmt.Errorf("basemap: style fetch returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStyleBytes))
	if err != nil {
		return StyleInfo{}, err
	}
	return Parse(body)
}

// Parse extracts layer IDs, source IDs and sprite/glyph URLs from a style
// JSON document.
func Parse(data []byte) (StyleInfo, error) {
	var doc styleDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return StyleInfo{}, fmt.Errorf("basemap: parse style: %w", err)
	}

	info := StyleInfo{
		SpriteURL: doc.Sprite,
		GlyphsURL: doc.Glyphs,
	}
	for _, l := range doc.Layers {
		if l.ID != "" {
			info.LayerIDs = append(info.LayerIDs, l.ID)
		}
	}
	for id := range doc.Sources {
		info.SourceIDs = append(info.SourceIDs, id)
	}
	return info, nil
}
