package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const featureCollectionType = "FeatureCollection"

// Document is a GeoJSON FeatureCollection. Members other than "features" are
// kept as raw JSON and written back unchanged.
type Document struct {
	Features []Feature
	members  map[string]json.RawMessage
}

// Feature is one GeoJSON feature. Only properties are decoded; geometry, id
// and any foreign members stay raw.
type Feature struct {
	Properties map[string]any
	members    map[string]json.RawMessage
}

// NewFeature builds a feature with the given properties and raw geometry.
// A nil geometry omits the member.
func NewFeature(properties map[string]any, geometry json.RawMessage) Feature {
	f := Feature{
		Properties: properties,
		members:    map[string]json.RawMessage{"type": json.RawMessage(`"Feature"`)},
	}
	if f.Properties == nil {
		f.Properties = map[string]any{}
	}
	if geometry != nil {
		f.members["geometry"] = geometry
	}
	return f
}

// Geometry returns the feature's raw geometry member, or nil if absent.
func (f Feature) Geometry() json.RawMessage {
	return f.members["geometry"]
}

// ParseDocument decodes an upstream response body into a Document.
func ParseDocument(data []byte) (*Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: decode geojson: %w", ErrParse, err)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: geojson document is null", ErrParse)
	}

	if rawType, ok := top["type"]; ok {
		var typ string
		if err := json.Unmarshal(rawType, &typ); err != nil || typ != featureCollectionType {
			return nil, fmt.Errorf("%w: unsupported geojson type %s", ErrParse, rawType)
		}
	}

	rawFeatures, ok := top["features"]
	if !ok || isNull(rawFeatures) {
		if msg := upstreamError(top); msg != "" {
			return nil, fmt.Errorf("%w: upstream returned error: %s", ErrParse, msg)
		}
		return nil, fmt.Errorf("%w: missing features", ErrParse)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(rawFeatures, &items); err != nil {
		return nil, fmt.Errorf("%w: features is not an array: %w", ErrParse, err)
	}

	doc := &Document{
		Features: make([]Feature, 0, len(items)),
		members:  top,
	}
	delete(doc.members, "features")

	for i, item := range items {
		f, err := parseFeature(item)
		if err != nil {
			return nil, fmt.Errorf("%w: feature %d: %w", ErrParse, i, err)
		}
		doc.Features = append(doc.Features, f)
	}
	return doc, nil
}

func parseFeature(data json.RawMessage) (Feature, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return Feature{}, err
	}
	if members == nil {
		return Feature{}, fmt.Errorf("feature is null")
	}

	props := map[string]any{}
	if raw, ok := members["properties"]; ok && !isNull(raw) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&props); err != nil {
			return Feature{}, fmt.Errorf("decode properties: %w", err)
		}
	}
	delete(members, "properties")

	return Feature{Properties: props, members: members}, nil
}

// MarshalJSON writes the feature with its raw members and current properties.
func (f Feature) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.members)+1)
	for k, v := range f.members {
		out[k] = v
	}
	props := f.Properties
	if props == nil {
		props = map[string]any{}
	}
	out["properties"] = props
	return json.Marshal(out)
}

// MarshalJSON writes the collection. Keys are emitted in sorted order, so the
// same document always serializes to the same bytes.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.members)+1)
	for k, v := range d.members {
		out[k] = v
	}
	features := d.Features
	if features == nil {
		features = []Feature{}
	}
	out["features"] = features
	return json.Marshal(out)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// upstreamError extracts the message of an ArcGIS error envelope.
func upstreamError(top map[string]json.RawMessage) string {
	raw, ok := top["error"]
	if !ok {
		return ""
	}
	var envelope struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Message == "" {
		return string(raw)
	}
	return fmt.Sprintf("%d %s", envelope.Code, envelope.Message)
}
