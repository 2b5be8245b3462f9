package ingest

import (
	"time"
)

// Observation is one reported snapshot of a content item's engagement, as
// supplied by the upstream feed. The pipeline consumes observations one at a
// time and is agnostic to how they were fetched.
type Observation struct {
	Locator       string // source URL of the asset; input to the identity resolver
	Title         string
	Score         int64
	CommentCount  int64
	ObservedAt    time.Time
	CreatedAt     time.Time // content creation time reported upstream
	Community     string
	CommunitySize int64
	Raw           map[string]any
}
