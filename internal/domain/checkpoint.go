package domain

import "time"

// Checkpoint is the durable crawl position of one (kind, name) source.
type Checkpoint struct {
	ID         string `db:"id"          json:"id"`
	SourceKind string `db:"source_kind" json:"source_kind"`
	SourceName string `db:"source_name" json:"source_name"`
	// Cursor is opaque to storage; crawlers keep typed JSON payloads in it.
	Cursor        *string   `db:"cursor"         json:"cursor,omitempty"`
	PageNo        int       `db:"page_no"        json:"page_no"`
	UpsertedTotal int       `db:"upserted_total" json:"upserted_total"`
	Done          bool      `db:"done"           json:"done"`
	UpdatedAt     time.Time `db:"updated_at"     json:"updated_at"`
}

// RunnerSourceName is the reserved checkpoint name a multi-source crawler
// uses to remember which source to resume from.
const RunnerSourceName = "__runner__"
