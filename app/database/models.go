package database

import (
	"time"
)

// ContentRecord is one row of content_records: a distinct piece of content
// identified by the digest of its source locator.
type ContentRecord struct {
	ID                  string
	Community           string
	CommunitySize       int64
	ContentSource       string
	Title               string
	Locator             string
	AssetKey            string
	AssetBucket         string
	CurrentScore        int64
	CurrentCommentCount int64
	Posted              bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Observation is one engagement snapshot appended to a record's ledger.
// seq is assigned by the store and is 1-indexed.
type Observation struct {
	ObservedAt   time.Time
	Score        int64
	CommentCount int64
}

// RecordStatus is the result of a Lookup: whether the record was posted and
// how many observations its ledger holds.
type RecordStatus struct {
	Posted       bool
	LedgerLength int
}

// AccountState tracks the daily publication budget for one downstream account.
type AccountState struct {
	AccountID   string
	PostsToday  int
	WindowStart time.Time
}

// CommunityStats is an aggregate row for the status API.
type CommunityStats struct {
	Community string
	Total     int
	Posted    int
}
