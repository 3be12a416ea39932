package model

import "time"

// Source is the root configuration unit for a document-producing origin
// (e.g., a court). Its identifier is a short opaque string chosen by the
// client at creation time and is immutable afterwards.
type Source struct {
	SourceID                string    `json:"source_id"`
	SourceName              string    `json:"source_name"`
	CountryCode             *string   `json:"country_code,omitempty"`
	PrimaryLanguage         *string   `json:"primary_language,omitempty"`
	SecondaryLanguages      []string  `json:"secondary_languages,omitempty"`
	LegalSystem             *string   `json:"legal_system,omitempty"`
	DocumentType            *string   `json:"document_type,omitempty"`
	IsActive                bool      `json:"is_active"`
	Phase                   int       `json:"phase"`
	TotalDocumentsProcessed int       `json:"total_documents_processed"`
	AvgAccuracy             *float64  `json:"avg_accuracy,omitempty"`
	AvgCostPerDocument      *float64  `json:"avg_cost_per_document,omitempty"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// SourcePatch holds the updatable source configuration fields. Only non-nil
// fields are applied; everything else keeps its stored value.
type SourcePatch struct {
	SourceName         *string  `json:"source_name,omitempty"`
	IsActive           *bool    `json:"is_active,omitempty"`
	Phase              *int     `json:"phase,omitempty"`
	AvgAccuracy        *float64 `json:"avg_accuracy,omitempty"`
	AvgCostPerDocument *float64 `json:"avg_cost_per_document,omitempty"`
}

// IsZero reports whether the patch carries no changes.
func (p SourcePatch) IsZero() bool {
	return p.SourceName == nil && p.IsActive == nil && p.Phase == nil &&
		p.AvgAccuracy == nil && p.AvgCostPerDocument == nil
}
