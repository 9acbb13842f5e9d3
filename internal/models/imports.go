package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Import resource types
const (
	ImportExpense     = "expense"
	ImportLease       = "lease"
	ImportTransaction = "transaction"
)

// Staging statuses
const (
	StagingPending   = "pending"
	StagingValidated = "validated"
	StagingCommitted = "committed"
	StagingError     = "error"
)

type StagingRow struct {
	ID                string         `db:"id" json:"id"`
	TeamID            string         `db:"team_id" json:"team_id"`
	ImportedBy        string         `db:"imported_by" json:"imported_by"`
	ResourceType      string         `db:"resource_type" json:"resource_type"`
	RawData           types.JSONText `db:"raw_data" json:"raw_data"`
	StandardizedData  types.JSONText `db:"standardized_data" json:"standardized_data,omitempty"`
	ImportHash        string         `db:"import_hash" json:"import_hash"`
	Status            string         `db:"status" json:"status"`
	MatchScore        *float64       `db:"match_score" json:"match_score,omitempty"`
	MatchedResourceID *string        `db:"matched_resource_id" json:"matched_resource_id,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// StagingColumns is the select list matching StagingRow.
const StagingColumns = `id, team_id, imported_by, resource_type, raw_data, standardized_data, import_hash,
	status, match_score, matched_resource_id, created_at, updated_at`
