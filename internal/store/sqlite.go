package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"modernc.org/sqlite"

	"github.com/sells-group/dataminer/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It exists for
// local development and tests; production deployments use Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS document_sources (
	source_id                 TEXT PRIMARY KEY,
	source_name               TEXT NOT NULL,
	country_code              TEXT,
	primary_language          TEXT,
	secondary_languages       TEXT,
	legal_system              TEXT,
	document_type             TEXT,
	is_active                 BOOLEAN NOT NULL DEFAULT 1,
	phase                     INTEGER NOT NULL DEFAULT 1,
	total_documents_processed INTEGER NOT NULL DEFAULT 0,
	avg_accuracy              REAL,
	avg_cost_per_document     REAL,
	created_at                DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at                DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS source_extraction_profiles (
	profile_id                     TEXT PRIMARY KEY,
	source_id                      TEXT NOT NULL REFERENCES document_sources(source_id) ON DELETE CASCADE,
	profile_name                   TEXT NOT NULL,
	is_active                      BOOLEAN NOT NULL DEFAULT 1,
	is_default                     BOOLEAN NOT NULL DEFAULT 0,
	pdf_extraction_method          TEXT NOT NULL DEFAULT 'pdfplumber',
	ocr_threshold                  REAL NOT NULL DEFAULT 0.80,
	ocr_language                   TEXT,
	use_document_ai_fallback       BOOLEAN NOT NULL DEFAULT 1,
	segmentation_method            TEXT NOT NULL DEFAULT 'section_based',
	segment_size_tokens            INTEGER NOT NULL DEFAULT 3000,
	segment_overlap_tokens         INTEGER NOT NULL DEFAULT 200,
	llm_model_quick                TEXT NOT NULL DEFAULT 'gemini-1.5-flash',
	llm_model_detailed             TEXT NOT NULL DEFAULT 'gemini-1.5-pro',
	llm_temperature                REAL NOT NULL DEFAULT 0.1,
	max_retries                    INTEGER NOT NULL DEFAULT 2,
	max_cost_per_document          REAL NOT NULL DEFAULT 2.00,
	enable_deep_dive_pass          BOOLEAN NOT NULL DEFAULT 1,
	deep_dive_confidence_threshold REAL NOT NULL DEFAULT 0.75,
	version                        INTEGER NOT NULL DEFAULT 1,
	created_at                     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at                     DATETIME NOT NULL DEFAULT (datetime('now')),
	CONSTRAINT uq_profiles_source_name UNIQUE (source_id, profile_name)
);

CREATE TABLE IF NOT EXISTS source_field_definitions (
	field_id               TEXT PRIMARY KEY,
	source_id              TEXT NOT NULL REFERENCES document_sources(source_id) ON DELETE CASCADE,
	field_name             TEXT NOT NULL,
	field_display_name     TEXT,
	field_category         TEXT,
	field_type             TEXT,
	extraction_method      TEXT,
	extraction_section     TEXT,
	regex_pattern          TEXT,
	llm_prompt_template_id TEXT,
	is_required            BOOLEAN NOT NULL DEFAULT 0,
	validation_rules       TEXT,
	confidence_threshold   REAL NOT NULL DEFAULT 0.75,
	normalization_rules    TEXT,
	display_order          INTEGER,
	created_at             DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at             DATETIME NOT NULL DEFAULT (datetime('now')),
	CONSTRAINT uq_fields_source_name UNIQUE (source_id, field_name)
);

CREATE TABLE IF NOT EXISTS source_normalization_rules (
	rule_id           TEXT PRIMARY KEY,
	source_id         TEXT NOT NULL REFERENCES document_sources(source_id) ON DELETE CASCADE,
	rule_name         TEXT NOT NULL,
	rule_type         TEXT,
	pattern           TEXT NOT NULL,
	replacement       TEXT,
	is_regex          BOOLEAN NOT NULL DEFAULT 0,
	apply_to_sections TEXT,
	priority          INTEGER NOT NULL DEFAULT 100,
	is_active         BOOLEAN NOT NULL DEFAULT 1,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS source_prompt_templates (
	template_id     TEXT PRIMARY KEY,
	source_id       TEXT NOT NULL REFERENCES document_sources(source_id) ON DELETE CASCADE,
	template_name   TEXT NOT NULL,
	template_type   TEXT,
	language_code   TEXT,
	prompt_text     TEXT NOT NULL,
	variables       TEXT,
	usage_count     INTEGER NOT NULL DEFAULT 0,
	avg_confidence  REAL,
	avg_tokens_used INTEGER,
	is_active       BOOLEAN NOT NULL DEFAULT 1,
	version         INTEGER NOT NULL DEFAULT 1,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	CONSTRAINT uq_templates_source_name_version UNIQUE (source_id, template_name, version)
);

CREATE INDEX IF NOT EXISTS idx_profiles_source_id ON source_extraction_profiles(source_id);
CREATE INDEX IF NOT EXISTS idx_fields_source_id ON source_field_definitions(source_id);
CREATE INDEX IF NOT EXISTS idx_fields_category ON source_field_definitions(source_id, field_category);
CREATE INDEX IF NOT EXISTS idx_rules_source_id ON source_normalization_rules(source_id);
CREATE INDEX IF NOT EXISTS idx_templates_source_id ON source_prompt_templates(source_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isSQLiteUnique reports whether err is a UNIQUE or PRIMARY KEY constraint
// violation.
func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == 2067 || code == 1555 // SQLITE_CONSTRAINT_UNIQUE, _PRIMARYKEY
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

// Sources

func scanSourceRow(row scannable) (*model.Source, error) {
	var src model.Source
	var langs []byte
	err := row.Scan(&src.SourceID, &src.SourceName, &src.CountryCode, &src.PrimaryLanguage, &langs,
		&src.LegalSystem, &src.DocumentType, &src.IsActive, &src.Phase, &src.TotalDocumentsProcessed,
		&src.AvgAccuracy, &src.AvgCostPerDocument, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if src.SecondaryLanguages, err = unmarshalStrings(langs); err != nil {
		return nil, err
	}
	return &src, nil
}

func (s *SQLiteStore) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM document_sources ORDER BY source_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		src, err := scanSourceRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		sources = append(sources, *src)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: list sources iterate")
}

func (s *SQLiteStore) GetSource(ctx context.Context, sourceID string) (*model.Source, error) {
	src, err := scanSourceRow(s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM document_sources WHERE source_id = ?`,
		sourceID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get source %s", sourceID)
	}
	return src, nil
}

func (s *SQLiteStore) CreateSource(ctx context.Context, src model.Source) (*model.Source, error) {
	now := time.Now().UTC()
	src.CreatedAt, src.UpdatedAt = now, now

	langsJSON, err := marshalStrings(src.SecondaryLanguages)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create source")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO document_sources
		 (source_id, source_name, country_code, primary_language, secondary_languages,
		  legal_system, document_type, is_active, phase, total_documents_processed,
		  avg_accuracy, avg_cost_per_document, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.SourceID, src.SourceName, src.CountryCode, src.PrimaryLanguage, nullBytes(langsJSON),
		src.LegalSystem, src.DocumentType, src.IsActive, src.Phase, src.TotalDocumentsProcessed,
		src.AvgAccuracy, src.AvgCostPerDocument, src.CreatedAt, src.UpdatedAt,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, eris.Wrapf(ErrDuplicate, "source %s", src.SourceID)
		}
		return nil, eris.Wrapf(err, "sqlite: insert source %s", src.SourceID)
	}
	return &src, nil
}

func (s *SQLiteStore) UpdateSource(ctx context.Context, sourceID string, patch model.SourcePatch) (*model.Source, error) {
	if patch.IsZero() {
		src, err := s.GetSource(ctx, sourceID)
		if err != nil {
			return nil, err
		}
		if src == nil {
			return nil, eris.Wrapf(ErrNotFound, "source %s", sourceID)
		}
		return src, nil
	}

	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	if patch.SourceName != nil {
		sets = append(sets, "source_name = ?")
		args = append(args, *patch.SourceName)
	}
	if patch.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *patch.IsActive)
	}
	if patch.Phase != nil {
		sets = append(sets, "phase = ?")
		args = append(args, *patch.Phase)
	}
	if patch.AvgAccuracy != nil {
		sets = append(sets, "avg_accuracy = ?")
		args = append(args, *patch.AvgAccuracy)
	}
	if patch.AvgCostPerDocument != nil {
		sets = append(sets, "avg_cost_per_document = ?")
		args = append(args, *patch.AvgCostPerDocument)
	}
	args = append(args, sourceID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE document_sources SET `+strings.Join(sets, ", ")+` WHERE source_id = ?`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update source %s", sourceID)
	}
	if err := checkRowsAffected(res, "source", sourceID); err != nil {
		return nil, err
	}
	src, err := s.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, eris.Wrapf(ErrNotFound, "source %s", sourceID)
	}
	return src, nil
}

// Extraction profiles

func scanProfileRow(row scannable) (*model.ExtractionProfile, error) {
	var p model.ExtractionProfile
	err := row.Scan(&p.ProfileID, &p.SourceID, &p.ProfileName, &p.IsActive, &p.IsDefault,
		&p.PDFExtractionMethod, &p.OCRThreshold, &p.OCRLanguage, &p.UseDocumentAIFallback,
		&p.SegmentationMethod, &p.SegmentSizeTokens, &p.SegmentOverlapTokens,
		&p.LLMModelQuick, &p.LLMModelDetailed, &p.LLMTemperature, &p.MaxRetries,
		&p.MaxCostPerDocument, &p.EnableDeepDivePass, &p.DeepDiveConfidenceThreshold,
		&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) ListProfiles(ctx context.Context, sourceID string) ([]model.ExtractionProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM source_extraction_profiles
		 WHERE source_id = ? ORDER BY profile_name`,
		sourceID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list profiles")
	}
	defer rows.Close()

	var profiles []model.ExtractionProfile
	for rows.Next() {
		p, err := scanProfileRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan profile")
		}
		profiles = append(profiles, *p)
	}
	return profiles, eris.Wrap(rows.Err(), "sqlite: list profiles iterate")
}

func (s *SQLiteStore) GetProfile(ctx context.Context, profileID string) (*model.ExtractionProfile, error) {
	p, err := scanProfileRow(s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM source_extraction_profiles WHERE profile_id = ?`,
		profileID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get profile %s", profileID)
	}
	return p, nil
}

func (s *SQLiteStore) CreateProfile(ctx context.Context, p model.ExtractionProfile) (*model.ExtractionProfile, error) {
	if p.ProfileID == "" {
		p.ProfileID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_extraction_profiles
		 (profile_id, source_id, profile_name, is_active, is_default,
		  pdf_extraction_method, ocr_threshold, ocr_language, use_document_ai_fallback,
		  segmentation_method, segment_size_tokens, segment_overlap_tokens,
		  llm_model_quick, llm_model_detailed, llm_temperature, max_retries,
		  max_cost_per_document, enable_deep_dive_pass, deep_dive_confidence_threshold,
		  version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ProfileID, p.SourceID, p.ProfileName, p.IsActive, p.IsDefault,
		p.PDFExtractionMethod, p.OCRThreshold, p.OCRLanguage, p.UseDocumentAIFallback,
		p.SegmentationMethod, p.SegmentSizeTokens, p.SegmentOverlapTokens,
		p.LLMModelQuick, p.LLMModelDetailed, p.LLMTemperature, p.MaxRetries,
		p.MaxCostPerDocument, p.EnableDeepDivePass, p.DeepDiveConfidenceThreshold,
		p.Version, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, eris.Wrapf(ErrDuplicate, "profile %s for source %s", p.ProfileName, p.SourceID)
		}
		return nil, eris.Wrapf(err, "sqlite: insert profile for source %s", p.SourceID)
	}
	return &p, nil
}

func (s *SQLiteStore) ProfileNameExists(ctx context.Context, sourceID, profileName string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM source_extraction_profiles WHERE source_id = ? AND profile_name = ?)`,
		sourceID, profileName,
	).Scan(&exists)
	return exists, eris.Wrap(err, "sqlite: profile name exists")
}

// Field definitions

func scanFieldRow(row scannable) (*model.FieldDefinition, error) {
	var fd model.FieldDefinition
	var validation, normalization []byte
	err := row.Scan(&fd.FieldID, &fd.SourceID, &fd.FieldName, &fd.FieldDisplayName, &fd.FieldCategory,
		&fd.FieldType, &fd.ExtractionMethod, &fd.ExtractionSection, &fd.RegexPattern, &fd.LLMPromptTemplateID,
		&fd.IsRequired, &validation, &fd.ConfidenceThreshold, &normalization, &fd.DisplayOrder,
		&fd.CreatedAt, &fd.UpdatedAt)
	if err != nil {
		return nil, err
	}
	fd.ValidationRules = json.RawMessage(validation)
	fd.NormalizationRules = json.RawMessage(normalization)
	return &fd, nil
}

func sqliteFieldFilterClause(filter FieldFilter, args []any) (string, []any) {
	clause := ""
	if filter.Category != nil {
		clause += ` AND field_category = ?`
		args = append(args, *filter.Category)
	}
	if filter.FieldType != nil {
		clause += ` AND field_type = ?`
		args = append(args, *filter.FieldType)
	}
	if filter.IsRequired != nil {
		clause += ` AND is_required = ?`
		args = append(args, *filter.IsRequired)
	}
	return clause, args
}

func (s *SQLiteStore) ListFields(ctx context.Context, sourceID string, filter FieldFilter) ([]model.FieldDefinition, int, error) {
	args := []any{sourceID}
	clause, args := sqliteFieldFilterClause(filter, args)

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM source_field_definitions WHERE source_id = ?`+clause,
		args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count fields")
	}

	limit := ClampLimit(filter.Limit)
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fieldColumns+` FROM source_field_definitions
		 WHERE source_id = ?`+clause+`
		 ORDER BY display_order NULLS LAST, field_name
		 LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list fields")
	}
	defer rows.Close()

	var fields []model.FieldDefinition
	for rows.Next() {
		fd, err := scanFieldRow(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "sqlite: scan field")
		}
		fields = append(fields, *fd)
	}
	return fields, total, eris.Wrap(rows.Err(), "sqlite: list fields iterate")
}

func (s *SQLiteStore) GetField(ctx context.Context, fieldID string) (*model.FieldDefinition, error) {
	fd, err := scanFieldRow(s.db.QueryRowContext(ctx,
		`SELECT `+fieldColumns+` FROM source_field_definitions WHERE field_id = ?`,
		fieldID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get field %s", fieldID)
	}
	return fd, nil
}

func (s *SQLiteStore) CreateField(ctx context.Context, fd model.FieldDefinition) (*model.FieldDefinition, error) {
	if fd.FieldID == "" {
		fd.FieldID = uuid.New().String()
	}
	now := time.Now().UTC()
	fd.CreatedAt, fd.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_field_definitions
		 (field_id, source_id, field_name, field_display_name, field_category,
		  field_type, extraction_method, extraction_section, regex_pattern, llm_prompt_template_id,
		  is_required, validation_rules, confidence_threshold, normalization_rules, display_order,
		  created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fd.FieldID, fd.SourceID, fd.FieldName, fd.FieldDisplayName, fd.FieldCategory,
		fd.FieldType, fd.ExtractionMethod, fd.ExtractionSection, fd.RegexPattern, fd.LLMPromptTemplateID,
		fd.IsRequired, nullBytes(fd.ValidationRules), fd.ConfidenceThreshold, nullBytes(fd.NormalizationRules), fd.DisplayOrder,
		fd.CreatedAt, fd.UpdatedAt,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, eris.Wrapf(ErrDuplicate, "field %s for source %s", fd.FieldName, fd.SourceID)
		}
		return nil, eris.Wrapf(err, "sqlite: insert field for source %s", fd.SourceID)
	}
	return &fd, nil
}

func (s *SQLiteStore) UpdateField(ctx context.Context, fieldID string, patch model.FieldPatch) (*model.FieldDefinition, error) {
	if patch.IsZero() {
		fd, err := s.GetField(ctx, fieldID)
		if err != nil {
			return nil, err
		}
		if fd == nil {
			return nil, eris.Wrapf(ErrNotFound, "field %s", fieldID)
		}
		return fd, nil
	}

	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	addSet := func(col string, val any) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}
	if patch.FieldName != nil {
		addSet("field_name", *patch.FieldName)
	}
	if patch.FieldDisplayName != nil {
		addSet("field_display_name", *patch.FieldDisplayName)
	}
	if patch.FieldCategory != nil {
		addSet("field_category", *patch.FieldCategory)
	}
	if patch.FieldType != nil {
		addSet("field_type", *patch.FieldType)
	}
	if patch.ExtractionMethod != nil {
		addSet("extraction_method", *patch.ExtractionMethod)
	}
	if patch.ExtractionSection != nil {
		addSet("extraction_section", *patch.ExtractionSection)
	}
	if patch.RegexPattern != nil {
		addSet("regex_pattern", *patch.RegexPattern)
	}
	if patch.LLMPromptTemplateID != nil {
		addSet("llm_prompt_template_id", *patch.LLMPromptTemplateID)
	}
	if patch.IsRequired != nil {
		addSet("is_required", *patch.IsRequired)
	}
	if patch.ValidationRules != nil {
		addSet("validation_rules", nullBytes(patch.ValidationRules))
	}
	if patch.ConfidenceThreshold != nil {
		addSet("confidence_threshold", *patch.ConfidenceThreshold)
	}
	if patch.NormalizationRules != nil {
		addSet("normalization_rules", nullBytes(patch.NormalizationRules))
	}
	if patch.DisplayOrder != nil {
		addSet("display_order", *patch.DisplayOrder)
	}
	args = append(args, fieldID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE source_field_definitions SET `+strings.Join(sets, ", ")+` WHERE field_id = ?`,
		args...,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, eris.Wrapf(ErrDuplicate, "field rename %s", fieldID)
		}
		return nil, eris.Wrapf(err, "sqlite: update field %s", fieldID)
	}
	if err := checkRowsAffected(res, "field", fieldID); err != nil {
		return nil, err
	}
	fd, err := s.GetField(ctx, fieldID)
	if err != nil {
		return nil, err
	}
	if fd == nil {
		return nil, eris.Wrapf(ErrNotFound, "field %s", fieldID)
	}
	return fd, nil
}

func (s *SQLiteStore) DeleteField(ctx context.Context, fieldID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM source_field_definitions WHERE field_id = ?`,
		fieldID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete field %s", fieldID)
	}
	return checkRowsAffected(res, "field", fieldID)
}

func (s *SQLiteStore) FieldNameExists(ctx context.Context, sourceID, fieldName, excludeFieldID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM source_field_definitions WHERE source_id = ? AND field_name = ?`
	args := []any{sourceID, fieldName}
	if excludeFieldID != "" {
		query += ` AND field_id <> ?`
		args = append(args, excludeFieldID)
	}
	query += `)`

	var exists bool
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&exists)
	return exists, eris.Wrap(err, "sqlite: field name exists")
}

// Normalization rules

func scanRuleRow(row scannable) (*model.NormalizationRule, error) {
	var r model.NormalizationRule
	var sections []byte
	err := row.Scan(&r.RuleID, &r.SourceID, &r.RuleName, &r.RuleType, &r.Pattern, &r.Replacement,
		&r.IsRegex, &sections, &r.Priority, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if r.ApplyToSections, err = unmarshalStrings(sections); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) ListRules(ctx context.Context, sourceID string, filter RuleFilter) ([]model.NormalizationRule, int, error) {
	clause := ""
	args := []any{sourceID}
	if filter.IsActive != nil {
		clause = ` AND is_active = ?`
		args = append(args, *filter.IsActive)
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM source_normalization_rules WHERE source_id = ?`+clause,
		args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count rules")
	}

	limit := ClampLimit(filter.Limit)
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM source_normalization_rules
		 WHERE source_id = ?`+clause+`
		 ORDER BY priority, rule_name
		 LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list rules")
	}
	defer rows.Close()

	var rules []model.NormalizationRule
	for rows.Next() {
		r, err := scanRuleRow(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "sqlite: scan rule")
		}
		rules = append(rules, *r)
	}
	return rules, total, eris.Wrap(rows.Err(), "sqlite: list rules iterate")
}

func (s *SQLiteStore) GetRule(ctx context.Context, ruleID string) (*model.NormalizationRule, error) {
	r, err := scanRuleRow(s.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM source_normalization_rules WHERE rule_id = ?`,
		ruleID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get rule %s", ruleID)
	}
	return r, nil
}

func (s *SQLiteStore) CreateRule(ctx context.Context, r model.NormalizationRule) (*model.NormalizationRule, error) {
	if r.RuleID == "" {
		r.RuleID = uuid.New().String()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	sectionsJSON, err := marshalStrings(r.ApplyToSections)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create rule")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO source_normalization_rules
		 (rule_id, source_id, rule_name, rule_type, pattern, replacement,
		  is_regex, apply_to_sections, priority, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RuleID, r.SourceID, r.RuleName, r.RuleType, r.Pattern, r.Replacement,
		r.IsRegex, nullBytes(sectionsJSON), r.Priority, r.IsActive, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert rule for source %s", r.SourceID)
	}
	return &r, nil
}

func (s *SQLiteStore) DeleteRule(ctx context.Context, ruleID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM source_normalization_rules WHERE rule_id = ?`,
		ruleID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete rule %s", ruleID)
	}
	return checkRowsAffected(res, "rule", ruleID)
}

// Prompt templates

func scanTemplateRow(row scannable) (*model.PromptTemplate, error) {
	var t model.PromptTemplate
	var variables []byte
	err := row.Scan(&t.TemplateID, &t.SourceID, &t.TemplateName, &t.TemplateType, &t.LanguageCode,
		&t.PromptText, &variables, &t.UsageCount, &t.AvgConfidence, &t.AvgTokensUsed,
		&t.IsActive, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Variables = json.RawMessage(variables)
	return &t, nil
}

func (s *SQLiteStore) ListTemplates(ctx context.Context, sourceID string, filter TemplateFilter) ([]model.PromptTemplate, int, error) {
	clause := ""
	args := []any{sourceID}
	if filter.IsActive != nil {
		clause = ` AND is_active = ?`
		args = append(args, *filter.IsActive)
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM source_prompt_templates WHERE source_id = ?`+clause,
		args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count templates")
	}

	limit := ClampLimit(filter.Limit)
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM source_prompt_templates
		 WHERE source_id = ?`+clause+`
		 ORDER BY template_name, version
		 LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list templates")
	}
	defer rows.Close()

	var templates []model.PromptTemplate
	for rows.Next() {
		t, err := scanTemplateRow(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "sqlite: scan template")
		}
		templates = append(templates, *t)
	}
	return templates, total, eris.Wrap(rows.Err(), "sqlite: list templates iterate")
}

func (s *SQLiteStore) GetTemplate(ctx context.Context, templateID string) (*model.PromptTemplate, error) {
	t, err := scanTemplateRow(s.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM source_prompt_templates WHERE template_id = ?`,
		templateID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get template %s", templateID)
	}
	return t, nil
}

func (s *SQLiteStore) CreateTemplate(ctx context.Context, t model.PromptTemplate) (*model.PromptTemplate, error) {
	if t.TemplateID == "" {
		t.TemplateID = uuid.New().String()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_prompt_templates
		 (template_id, source_id, template_name, template_type, language_code,
		  prompt_text, variables, usage_count, avg_confidence, avg_tokens_used,
		  is_active, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TemplateID, t.SourceID, t.TemplateName, t.TemplateType, t.LanguageCode,
		t.PromptText, nullBytes(t.Variables), t.UsageCount, t.AvgConfidence, t.AvgTokensUsed,
		t.IsActive, t.Version, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, eris.Wrapf(ErrDuplicate, "template %s v%d for source %s", t.TemplateName, t.Version, t.SourceID)
		}
		return nil, eris.Wrapf(err, "sqlite: insert template for source %s", t.SourceID)
	}
	return &t, nil
}

func (s *SQLiteStore) DeleteTemplate(ctx context.Context, templateID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM source_prompt_templates WHERE template_id = ?`,
		templateID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete template %s", templateID)
	}
	return checkRowsAffected(res, "template", templateID)
}

func (s *SQLiteStore) TemplateNameVersionExists(ctx context.Context, sourceID, templateName string, version int) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM source_prompt_templates WHERE source_id = ? AND template_name = ? AND version = ?)`,
		sourceID, templateName, version,
	).Scan(&exists)
	return exists, eris.Wrap(err, "sqlite: template name version exists")
}

// nullBytes maps an empty byte slice to a typed nil so the driver writes
// NULL instead of an empty string.
func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
