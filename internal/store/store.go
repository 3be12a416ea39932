// Package store persists document-source configuration: sources, extraction
// profiles, field definitions, normalization rules, and prompt templates.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dataminer/internal/model"
)

// Sentinel errors. Callers distinguish them with eris.Is; everything else
// coming out of a store is an internal failure.
var (
	// ErrNotFound reports that the referenced entity does not exist.
	ErrNotFound = eris.New("not found")
	// ErrDuplicate reports a uniqueness violation, either caught by a
	// pre-check or raised by the storage constraint itself.
	ErrDuplicate = eris.New("duplicate")
)

// Pagination bounds for list operations. Total counts are computed over the
// full filtered set regardless of the page requested.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// FieldFilter narrows field definition listings. Nil members are ignored.
type FieldFilter struct {
	Category   *string
	FieldType  *string
	IsRequired *bool
	Limit      int
	Offset     int
}

// RuleFilter narrows normalization rule listings.
type RuleFilter struct {
	IsActive *bool
	Limit    int
	Offset   int
}

// TemplateFilter narrows prompt template listings.
type TemplateFilter struct {
	IsActive *bool
	Limit    int
	Offset   int
}

// Store is the persistence contract for the configuration service. Get
// methods return (nil, nil) when the entity does not exist; mutations on a
// missing entity return ErrNotFound, and unique violations ErrDuplicate.
type Store interface {
	// Sources
	ListSources(ctx context.Context) ([]model.Source, error)
	GetSource(ctx context.Context, sourceID string) (*model.Source, error)
	CreateSource(ctx context.Context, src model.Source) (*model.Source, error)
	UpdateSource(ctx context.Context, sourceID string, patch model.SourcePatch) (*model.Source, error)

	// Extraction profiles
	ListProfiles(ctx context.Context, sourceID string) ([]model.ExtractionProfile, error)
	GetProfile(ctx context.Context, profileID string) (*model.ExtractionProfile, error)
	CreateProfile(ctx context.Context, p model.ExtractionProfile) (*model.ExtractionProfile, error)
	ProfileNameExists(ctx context.Context, sourceID, profileName string) (bool, error)

	// Field definitions
	ListFields(ctx context.Context, sourceID string, filter FieldFilter) ([]model.FieldDefinition, int, error)
	GetField(ctx context.Context, fieldID string) (*model.FieldDefinition, error)
	CreateField(ctx context.Context, fd model.FieldDefinition) (*model.FieldDefinition, error)
	UpdateField(ctx context.Context, fieldID string, patch model.FieldPatch) (*model.FieldDefinition, error)
	DeleteField(ctx context.Context, fieldID string) error
	// FieldNameExists excludes excludeFieldID from the match when non-empty,
	// so renaming a field to its own name is not reported as a duplicate.
	FieldNameExists(ctx context.Context, sourceID, fieldName, excludeFieldID string) (bool, error)

	// Normalization rules
	ListRules(ctx context.Context, sourceID string, filter RuleFilter) ([]model.NormalizationRule, int, error)
	GetRule(ctx context.Context, ruleID string) (*model.NormalizationRule, error)
	CreateRule(ctx context.Context, r model.NormalizationRule) (*model.NormalizationRule, error)
	DeleteRule(ctx context.Context, ruleID string) error

	// Prompt templates
	ListTemplates(ctx context.Context, sourceID string, filter TemplateFilter) ([]model.PromptTemplate, int, error)
	GetTemplate(ctx context.Context, templateID string) (*model.PromptTemplate, error)
	CreateTemplate(ctx context.Context, t model.PromptTemplate) (*model.PromptTemplate, error)
	DeleteTemplate(ctx context.Context, templateID string) error
	TemplateNameVersionExists(ctx context.Context, sourceID, templateName string, version int) (bool, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// ClampLimit normalizes a requested page size into the allowed range.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
