package model

import (
	"encoding/json"
	"time"
)

// PromptTemplate is reusable LLM instruction text associated with a source.
// The (template_name, version) pair is unique within a source so multiple
// revisions of the same template can coexist.
type PromptTemplate struct {
	TemplateID    string          `json:"template_id"`
	SourceID      string          `json:"source_id"`
	TemplateName  string          `json:"template_name"`
	TemplateType  *string         `json:"template_type,omitempty"`
	LanguageCode  *string         `json:"language_code,omitempty"`
	PromptText    string          `json:"prompt_text"`
	Variables     json.RawMessage `json:"variables,omitempty"`
	UsageCount    int             `json:"usage_count"`
	AvgConfidence *float64        `json:"avg_confidence,omitempty"`
	AvgTokensUsed *int            `json:"avg_tokens_used,omitempty"`
	IsActive      bool            `json:"is_active"`
	Version       int             `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
