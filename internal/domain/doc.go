// Package domain models BLM Alaska Interagency Coordination Center (AICC)
// lightning strike data and the enrichment applied before it is loaded into
// PostGIS.
//
// # Data Source
//
// Strikes are served by the AICC ArcGIS MapServer as a GeoJSON
// FeatureCollection (query with f=geojson). Two layers are consumed: the
// current strikes and the previous day's strikes. Each is a [Feed].
//
// # Upstream Conventions
//
// Observation time:
//
//	properties.UTCDATETIME is an epoch-millisecond timestamp, e.g.
//	1600000000000 = 2020-09-13T12:26:40Z. ArcGIS normally emits it as a JSON
//	number; numeric strings are tolerated.
//
// Error envelopes:
//
//	ArcGIS reports query failures with HTTP 200 and a body of the form
//	{"error":{"code":400,"message":"..."}}. These carry no "features" member
//	and are rejected by [ParseDocument].
//
// # Enrichment
//
// Every feature gets properties.hoursago = floor((now - UTCDATETIME) / 1h),
// with one "now" shared by the whole document. A feature whose UTCDATETIME is
// missing or not numeric gets hoursago = null and is counted in
// [EnrichStats.InvalidTimestamps]; the feature itself is kept.
//
// Numeric properties are decoded as [encoding/json.Number] so that identifiers
// and timestamps are written back with their original digits.
package domain
