package domain

import "time"

// Item represents a single unit of migration work. ResolvedURL and
// Descriptor are filled per attempt: source URLs are short-lived and must
// not be reused across attempts.
type Item struct {
	ID          string
	ResolvedURL string
	Descriptor  string
}

// Rendition is one encoded variant offered by the source API.
type Rendition struct {
	Src       string `json:"src"`
	Container string `json:"container"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Token is a bearer credential. ExpiresIn is advisory; the token is
// replaced reactively on authorization failure, never on a timer.
type Token struct {
	Value     string
	ExpiresIn int
}

// ErrorRecord is one per-item failure, persisted at run end for triage.
type ErrorRecord struct {
	ID      string `json:"id"`
	Message string `json:"error"`
}

// SourceEntry mirrors one row of a sources dump; a nil URL means the item
// had no usable source.
type SourceEntry struct {
	ID  string  `json:"id"`
	URL *string `json:"url"`
}

// RunSummary is the operator-facing outcome of a whole run.
type RunSummary struct {
	RunID     string
	Total     int
	Skipped   int
	Succeeded int
	Failed    int
	Bytes     int64
	Elapsed   time.Duration

	// ItemsPerMinute is nil until at least one second has elapsed.
	ItemsPerMinute *float64
}
