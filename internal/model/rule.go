package model

import "time"

// NormalizationRule is a text transformation applied to extracted content
// before it is considered final. Lower priority runs first. Rule names
// carry no uniqueness constraint.
type NormalizationRule struct {
	RuleID          string    `json:"rule_id"`
	SourceID        string    `json:"source_id"`
	RuleName        string    `json:"rule_name"`
	RuleType        *string   `json:"rule_type,omitempty"`
	Pattern         string    `json:"pattern"`
	Replacement     *string   `json:"replacement,omitempty"`
	IsRegex         bool      `json:"is_regex"`
	ApplyToSections []string  `json:"apply_to_sections,omitempty"`
	Priority        int       `json:"priority"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DefaultRulePriority applies when a rule is created without an explicit
// priority.
const DefaultRulePriority = 100
