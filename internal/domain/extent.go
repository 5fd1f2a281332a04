package domain

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Extent is a lon/lat bounding box.
type Extent struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// DocumentExtent returns the bounding box of every feature geometry that
// decodes, or nil if none do. Undecodable geometries are skipped, not
// reported.
func DocumentExtent(doc *Document) *Extent {
	bounds := geom.NewBounds(geom.XY)
	found := false

	for _, f := range doc.Features {
		raw := f.Geometry()
		if len(raw) == 0 || isNull(raw) {
			continue
		}
		var g geom.T
		if err := geojson.Unmarshal(raw, &g); err != nil || g == nil {
			continue
		}
		if g.Bounds().IsEmpty() {
			continue
		}
		bounds.Extend(g)
		found = true
	}

	if !found {
		return nil
	}
	return &Extent{
		MinLon: bounds.Min(0),
		MinLat: bounds.Min(1),
		MaxLon: bounds.Max(0),
		MaxLat: bounds.Max(1),
	}
}
