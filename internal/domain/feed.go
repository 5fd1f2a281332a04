package domain

// Feed names the two AICC lightning layers.
const (
	FeedCurrent  = "current"
	FeedPrevious = "previous"
)

// Feed describes one lightning time window: where to fetch it, where to stage
// it on disk, and which PostGIS table it overwrites.
type Feed struct {
	Name        string
	URL         string
	StagingPath string
	Table       string
}
