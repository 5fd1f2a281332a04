package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Property names read and written by the enricher.
const (
	PropObservedAt = "UTCDATETIME"
	PropHoursAgo   = "hoursago"
)

const msPerHour = int64(time.Hour / time.Millisecond)

// EnrichStats summarizes one enrichment pass.
type EnrichStats struct {
	Features          int
	InvalidTimestamps int
	Newest            time.Time
	Oldest            time.Time
	Extent            *Extent
}

// Enricher parses upstream bodies and stamps each feature with its age.
type Enricher struct {
	clock clockwork.Clock
}

// NewEnricher creates an Enricher. A nil clock uses real time.
func NewEnricher(clock clockwork.Clock) *Enricher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Enricher{clock: clock}
}

// Enrich parses body as a FeatureCollection and sets hoursago on every feature.
// Errors wrap ErrParse.
func (e *Enricher) Enrich(body []byte) (*Document, EnrichStats, error) {
	doc, err := ParseDocument(body)
	if err != nil {
		return nil, EnrichStats{}, err
	}
	return doc, EnrichDocument(doc, e.clock.Now()), nil
}

// EnrichDocument sets hoursago on every feature relative to now. Features
// whose observation time is unusable get a null hoursago.
func EnrichDocument(doc *Document, now time.Time) EnrichStats {
	stats := EnrichStats{Features: len(doc.Features)}
	nowMs := now.UnixMilli()

	for i := range doc.Features {
		props := doc.Features[i].Properties
		if props == nil {
			props = map[string]any{}
			doc.Features[i].Properties = props
		}

		observed, ok := observedMillis(props[PropObservedAt])
		if !ok {
			props[PropHoursAgo] = nil
			stats.InvalidTimestamps++
			continue
		}
		props[PropHoursAgo] = observed.hoursBefore(nowMs)

		at := observed.at()
		if stats.Newest.IsZero() || at.After(stats.Newest) {
			stats.Newest = at
		}
		if stats.Oldest.IsZero() || at.Before(stats.Oldest) {
			stats.Oldest = at
		}
	}

	stats.Extent = DocumentExtent(doc)
	return stats
}

// HoursAgo returns floor((nowMs - observedMs) / 1h).
func HoursAgo(nowMs, observedMs int64) int64 {
	return floorDiv(nowMs-observedMs, msPerHour)
}

// millis is an epoch-millisecond value that kept its integer form when the
// input allowed it.
type millis struct {
	i       int64
	f       float64
	integer bool
}

func (m millis) hoursBefore(nowMs int64) int64 {
	if m.integer {
		return HoursAgo(nowMs, m.i)
	}
	return int64(math.Floor((float64(nowMs) - m.f) / float64(msPerHour)))
}

func (m millis) at() time.Time {
	if m.integer {
		return time.UnixMilli(m.i).UTC()
	}
	return time.UnixMilli(int64(m.f)).UTC()
}

func observedMillis(v any) (millis, bool) {
	switch t := v.(type) {
	case json.Number:
		return parseMillis(t.String())
	case string:
		return parseMillis(strings.TrimSpace(t))
	case float64:
		return floatMillis(t)
	case int64:
		return intMillis(t)
	case int:
		return intMillis(int64(t))
	default:
		return millis{}, false
	}
}

func parseMillis(s string) (millis, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return intMillis(i)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return millis{}, false
	}
	return floatMillis(f)
}

// maxMillis bounds accepted timestamps to ±100,000,000 days around the epoch,
// the range of an ECMAScript Date.
const maxMillis = 8.64e15

func intMillis(i int64) (millis, bool) {
	if i > maxMillis || i < -maxMillis {
		return millis{}, false
	}
	return millis{i: i, integer: true}, true
}

func floatMillis(f float64) (millis, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > maxMillis {
		return millis{}, false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return millis{i: int64(f), integer: true}, true
	}
	return millis{f: f}, true
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
