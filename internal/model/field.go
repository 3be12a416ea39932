package model

import (
	"encoding/json"
	"time"
)

// FieldDefinition specifies one piece of data to extract from a document:
// how to find it, how to validate it, and the confidence bar it must clear.
// Field names are unique within a source.
type FieldDefinition struct {
	FieldID             string          `json:"field_id"`
	SourceID            string          `json:"source_id"`
	FieldName           string          `json:"field_name"`
	FieldDisplayName    *string         `json:"field_display_name,omitempty"`
	FieldCategory       *string         `json:"field_category,omitempty"`
	FieldType           *string         `json:"field_type,omitempty"`
	ExtractionMethod    *string         `json:"extraction_method,omitempty"`
	ExtractionSection   *string         `json:"extraction_section,omitempty"`
	RegexPattern        *string         `json:"regex_pattern,omitempty"`
	LLMPromptTemplateID *string         `json:"llm_prompt_template_id,omitempty"`
	IsRequired          bool            `json:"is_required"`
	ValidationRules     json.RawMessage `json:"validation_rules,omitempty"`
	ConfidenceThreshold float64         `json:"confidence_threshold"`
	NormalizationRules  json.RawMessage `json:"normalization_rules,omitempty"`
	DisplayOrder        *int            `json:"display_order,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// DefaultConfidenceThreshold applies when a field definition is created
// without an explicit threshold.
const DefaultConfidenceThreshold = 0.75

// FieldPatch holds the updatable field definition attributes. Only non-nil
// fields are applied.
type FieldPatch struct {
	FieldName           *string         `json:"field_name,omitempty"`
	FieldDisplayName    *string         `json:"field_display_name,omitempty"`
	FieldCategory       *string         `json:"field_category,omitempty"`
	FieldType           *string         `json:"field_type,omitempty"`
	ExtractionMethod    *string         `json:"extraction_method,omitempty"`
	ExtractionSection   *string         `json:"extraction_section,omitempty"`
	RegexPattern        *string         `json:"regex_pattern,omitempty"`
	LLMPromptTemplateID *string         `json:"llm_prompt_template_id,omitempty"`
	IsRequired          *bool           `json:"is_required,omitempty"`
	ValidationRules     json.RawMessage `json:"validation_rules,omitempty"`
	ConfidenceThreshold *float64        `json:"confidence_threshold,omitempty"`
	NormalizationRules  json.RawMessage `json:"normalization_rules,omitempty"`
	DisplayOrder        *int            `json:"display_order,omitempty"`
}

// IsZero reports whether the patch carries no changes.
func (p FieldPatch) IsZero() bool {
	return p.FieldName == nil && p.FieldDisplayName == nil && p.FieldCategory == nil &&
		p.FieldType == nil && p.ExtractionMethod == nil && p.ExtractionSection == nil &&
		p.RegexPattern == nil && p.LLMPromptTemplateID == nil && p.IsRequired == nil &&
		p.ValidationRules == nil && p.ConfidenceThreshold == nil &&
		p.NormalizationRules == nil && p.DisplayOrder == nil
}
