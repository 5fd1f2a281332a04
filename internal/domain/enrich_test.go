package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enrichAt(t *testing.T, nowMs int64, body string) (*Document, EnrichStats) {
	t.Helper()
	e := NewEnricher(clockwork.NewFakeClockAt(time.UnixMilli(nowMs)))
	doc, stats, err := e.Enrich([]byte(body))
	require.NoError(t, err)
	return doc, stats
}

func TestEnrich_OneHourLater(t *testing.T) {
	doc, stats := enrichAt(t, 1600003600000,
		`{"type":"FeatureCollection","features":[{"properties":{"UTCDATETIME":1600000000000}}]}`)

	require.Len(t, doc.Features, 1)
	assert.Equal(t, int64(1), doc.Features[0].Properties[PropHoursAgo])
	assert.Equal(t, 1, stats.Features)
	assert.Zero(t, stats.InvalidTimestamps)
}

func TestEnrich_SharedNowAcrossFeatures(t *testing.T) {
	const now = int64(1600000000000)
	body := `{"type":"FeatureCollection","features":[
		{"properties":{"UTCDATETIME":1600000000000}},
		{"properties":{"UTCDATETIME":1599996400001}},
		{"properties":{"UTCDATETIME":1599996400000}},
		{"properties":{"UTCDATETIME":1599913600000}}
	]}`
	doc, stats := enrichAt(t, now, body)

	want := []int64{0, 0, 1, 24}
	require.Len(t, doc.Features, len(want))
	for i, w := range want {
		assert.Equal(t, w, doc.Features[i].Properties[PropHoursAgo], "feature %d", i)
	}
	assert.Equal(t, time.UnixMilli(1600000000000).UTC(), stats.Newest)
	assert.Equal(t, time.UnixMilli(1599913600000).UTC(), stats.Oldest)
}

func TestEnrich_PreservesOrderAndProperties(t *testing.T) {
	body := `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":7,"properties":{"OBJECTID":7,"UTCDATETIME":1600000000000,"STROKETYPE":"GROUND","hoursago":99}},
		{"type":"Feature","id":3,"properties":{"OBJECTID":3,"UTCDATETIME":1600000000000,"AMPLITUDE":-12.5}}
	]}`
	doc, _ := enrichAt(t, 1600007200000, body)

	require.Len(t, doc.Features, 2)
	first := doc.Features[0].Properties
	assert.Equal(t, json.Number("7"), first["OBJECTID"])
	assert.Equal(t, "GROUND", first["STROKETYPE"])
	assert.Equal(t, int64(2), first[PropHoursAgo], "existing hoursago is overwritten")
	assert.Len(t, first, 4)

	second := doc.Features[1].Properties
	assert.Equal(t, json.Number("3"), second["OBJECTID"])
	assert.Equal(t, json.Number("-12.5"), second["AMPLITUDE"])
	assert.Len(t, second, 4)
}

func TestEnrich_FutureTimestampFloorsNegative(t *testing.T) {
	doc, _ := enrichAt(t, 1600000000000,
		`{"features":[{"properties":{"UTCDATETIME":1600000000001}}]}`)
	assert.Equal(t, int64(-1), doc.Features[0].Properties[PropHoursAgo])
}

func TestEnrich_InvalidTimestampsBecomeNull(t *testing.T) {
	body := `{"type":"FeatureCollection","features":[
		{"properties":{"OBJECTID":1}},
		{"properties":{"UTCDATETIME":"yesterday"}},
		{"properties":{"UTCDATETIME":null}},
		{"properties":{"UTCDATETIME":"1600000000000"}},
		{"geometry":null},
		{"properties":{"UTCDATETIME":-9223372036854775808}},
		{"properties":{"UTCDATETIME":1e300}},
		{"properties":{"UTCDATETIME":"8640000000000001"}}
	]}`
	doc, stats := enrichAt(t, 1600003600000, body)

	require.Len(t, doc.Features, 8)
	assert.Equal(t, 7, stats.InvalidTimestamps)
	for _, i := range []int{0, 1, 2, 4, 5, 6, 7} {
		v, ok := doc.Features[i].Properties[PropHoursAgo]
		assert.True(t, ok, "feature %d has hoursago", i)
		assert.Nil(t, v, "feature %d", i)
	}
	assert.Equal(t, int64(1), doc.Features[3].Properties[PropHoursAgo])

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"hoursago":null`)
}

func TestEnrich_TimestampRangeBoundary(t *testing.T) {
	doc, stats := enrichAt(t, 0,
		`{"features":[{"properties":{"UTCDATETIME":-8640000000000000}}]}`)
	assert.Equal(t, 0, stats.InvalidTimestamps)
	assert.Equal(t, int64(2400000000), doc.Features[0].Properties[PropHoursAgo])
}

func TestEnrich_FractionalTimestamp(t *testing.T) {
	doc, _ := enrichAt(t, 1600003600000,
		`{"features":[{"properties":{"UTCDATETIME":1600000000000.5}}]}`)
	assert.Equal(t, int64(0), doc.Features[0].Properties[PropHoursAgo])
}

func TestEnrich_ParseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>502 Bad Gateway</html>`},
		{"truncated", `{"type":"FeatureCollection","features":[`},
		{"null document", `null`},
		{"array document", `[1,2,3]`},
		{"missing features", `{"type":"FeatureCollection"}`},
		{"null features", `{"type":"FeatureCollection","features":null}`},
		{"features not array", `{"type":"FeatureCollection","features":{}}`},
		{"wrong type", `{"type":"Feature","features":[]}`},
		{"null feature", `{"features":[null]}`},
		{"arcgis error", `{"error":{"code":400,"message":"Invalid query parameters"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEnricher(clockwork.NewFakeClock())
			_, _, err := e.Enrich([]byte(tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestEnrich_ArcGISErrorMessage(t *testing.T) {
	_, err := ParseDocument([]byte(`{"error":{"code":400,"message":"Invalid query parameters"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400 Invalid query parameters")
}

func TestEnrich_EmptyCollection(t *testing.T) {
	doc, stats := enrichAt(t, 1600000000000, `{"type":"FeatureCollection","features":[]}`)
	assert.Empty(t, doc.Features)
	assert.Zero(t, stats.Features)
	assert.Nil(t, stats.Extent)
	assert.True(t, stats.Newest.IsZero())
}

func TestHoursAgo(t *testing.T) {
	assert.Equal(t, int64(0), HoursAgo(3599999, 0))
	assert.Equal(t, int64(1), HoursAgo(3600000, 0))
	assert.Equal(t, int64(-1), HoursAgo(0, 1))
	assert.Equal(t, int64(-1), HoursAgo(0, 3600000))
	assert.Equal(t, int64(-2), HoursAgo(0, 3600001))
}
