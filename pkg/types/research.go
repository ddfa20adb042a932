// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ResearchStatus tracks an entity's research run.
type ResearchStatus string

const (
	StatusPending   ResearchStatus = "pending"
	StatusCompleted ResearchStatus = "completed"
	StatusFailed    ResearchStatus = "failed"
)

// Terminal reports whether no further transition is allowed without a new run.
func (s ResearchStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// EntityResearchRecord is the cached research state for one entity, such as
// an uploaded document.
type EntityResearchRecord struct {
	// EntityID identifies the entity (e.g. an uploaded file ID).
	EntityID string `json:"fileId" yaml:"entity_id"`

	// Queries are the queries issued for this run.
	Queries []Query `json:"queries" yaml:"queries"`

	// Status is pending, completed, or failed.
	Status ResearchStatus `json:"status" yaml:"status"`

	// Results is non-empty only when Status is completed.
	Results []ResultSet `json:"results" yaml:"results"`

	// CreatedAt starts the record's TTL.
	CreatedAt time.Time `json:"timestamp" yaml:"created_at"`

	// UpdatedAt is the time of the last transition.
	UpdatedAt time.Time `json:"updatedAt" yaml:"updated_at"`
}
