package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dataminer/internal/db"
	"github.com/sells-group/dataminer/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.NewPool(ctx, connString, poolCfg)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migratePostgres(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505). The named unique constraints are the
// authoritative guard behind the application-level duplicate pre-checks.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// marshalStrings encodes a string list for a JSONB column, mapping an empty
// list to NULL.
func marshalStrings(ss []string) ([]byte, error) {
	if len(ss) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(ss)
	return b, eris.Wrap(err, "marshal string list")
}

func unmarshalStrings(b []byte) ([]string, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var ss []string
	err := json.Unmarshal(b, &ss)
	return ss, eris.Wrap(err, "unmarshal string list")
}

// rawJSON converts a RawMessage parameter to a JSONB argument, mapping
// empty to NULL.
func rawJSON(m json.RawMessage) any {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}

// Sources

const sourceColumns = `source_id, source_name, country_code, primary_language, secondary_languages,
	legal_system, document_type, is_active, phase, total_documents_processed,
	avg_accuracy, avg_cost_per_document, created_at, updated_at`

func scanSource(row pgx.Row) (*model.Source, error) {
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

func (s *PostgresStore) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sourceColumns+` FROM document_sources ORDER BY source_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		sources = append(sources, *src)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: list sources iterate")
}

func (s *PostgresStore) GetSource(ctx context.Context, sourceID string) (*model.Source, error) {
	src, err := scanSource(s.pool.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM document_sources WHERE source_id = $1`,
		sourceID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get source %s", sourceID)
	}
	return src, nil
}

func (s *PostgresStore) CreateSource(ctx context.Context, src model.Source) (*model.Source, error) {
	now := time.Now().UTC()
	src.CreatedAt, src.UpdatedAt = now, now

	langsJSON, err := marshalStrings(src.SecondaryLanguages)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create source")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO document_sources
		 (source_id, source_name, country_code, primary_language, secondary_languages,
		  legal_system, document_type, is_active, phase, total_documents_processed,
		  avg_accuracy, avg_cost_per_document, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		src.SourceID, src.SourceName, src.CountryCode, src.PrimaryLanguage, langsJSON,
		src.LegalSystem, src.DocumentType, src.IsActive, src.Phase, src.TotalDocumentsProcessed,
		src.AvgAccuracy, src.AvgCostPerDocument, src.CreatedAt, src.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, eris.Wrapf(ErrDuplicate, "source %s", src.SourceID)
		}
		return nil, eris.Wrapf(err, "postgres: insert source %s", src.SourceID)
	}
	return &src, nil
}

func (s *PostgresStore) UpdateSource(ctx context.Context, sourceID string, patch model.SourcePatch) (*model.Source, error) {
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

	sets := []string{"updated_at = now()"}
	args := []any{}
	argIdx := 1

	addSet := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argIdx))
		args = append(args, val)
		argIdx++
	}
	if patch.SourceName != nil {
		addSet("source_name", *patch.SourceName)
	}
	if patch.IsActive != nil {
		addSet("is_active", *patch.IsActive)
	}
	if patch.Phase != nil {
		addSet("phase", *patch.Phase)
	}
	if patch.AvgAccuracy != nil {
		addSet("avg_accuracy", *patch.AvgAccuracy)
	}
	if patch.AvgCostPerDocument != nil {
		addSet("avg_cost_per_document", *patch.AvgCostPerDocument)
	}

	args = append(args, sourceID)
	query := fmt.Sprintf(`UPDATE document_sources SET %s WHERE source_id = $%d`,
		strings.Join(sets, ", "), argIdx)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update source %s", sourceID)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "source %s", sourceID)
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

const profileColumns = `profile_id, source_id, profile_name, is_active, is_default,
	pdf_extraction_method, ocr_threshold, ocr_language, use_document_ai_fallback,
	segmentation_method, segment_size_tokens, segment_overlap_tokens,
	llm_model_quick, llm_model_detailed, llm_temperature, max_retries,
	max_cost_per_document, enable_deep_dive_pass, deep_dive_confidence_threshold,
	version, created_at, updated_at`

func scanProfile(row pgx.Row) (*model.ExtractionProfile, error) {
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

func (s *PostgresStore) ListProfiles(ctx context.Context, sourceID string) ([]model.ExtractionProfile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+profileColumns+` FROM source_extraction_profiles
		 WHERE source_id = $1 ORDER BY profile_name`,
		sourceID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list profiles")
	}
	defer rows.Close()

	var profiles []model.ExtractionProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan profile")
		}
		profiles = append(profiles, *p)
	}
	return profiles, eris.Wrap(rows.Err(), "postgres: list profiles iterate")
}

func (s *PostgresStore) GetProfile(ctx context.Context, profileID string) (*model.ExtractionProfile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM source_extraction_profiles WHERE profile_id = $1`,
		profileID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get profile %s", profileID)
	}
	return p, nil
}

func (s *PostgresStore) CreateProfile(ctx context.Context, p model.ExtractionProfile) (*model.ExtractionProfile, error) {
	if p.ProfileID == "" {
		p.ProfileID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_extraction_profiles
		 (profile_id, source_id, profile_name, is_active, is_default,
		  pdf_extraction_method, ocr_threshold, ocr_language, use_document_ai_fallback,
		  segmentation_method, segment_size_tokens, segment_overlap_tokens,
		  llm_model_quick, llm_model_detailed, llm_temperature, max_retries,
		  max_cost_per_document, enable_deep_dive_pass, deep_dive_confidence_threshold,
		  version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		p.ProfileID, p.SourceID, p.ProfileName, p.IsActive, p.IsDefault,
		p.PDFExtractionMethod, p.OCRThreshold, p.OCRLanguage, p.UseDocumentAIFallback,
		p.SegmentationMethod, p.SegmentSizeTokens, p.SegmentOverlapTokens,
		p.LLMModelQuick, p.LLMModelDetailed, p.LLMTemperature, p.MaxRetries,
		p.MaxCostPerDocument, p.EnableDeepDivePass, p.DeepDiveConfidenceThreshold,
		p.Version, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, eris.Wrapf(ErrDuplicate, "profile %s for source %s", p.ProfileName, p.SourceID)
		}
		return nil, eris.Wrapf(err, "postgres: insert profile for source %s", p.SourceID)
	}
	return &p, nil
}

func (s *PostgresStore) ProfileNameExists(ctx context.Context, sourceID, profileName string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM source_extraction_profiles WHERE source_id = $1 AND profile_name = $2)`,
		sourceID, profileName,
	).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: profile name exists")
}

// Field definitions

const fieldColumns = `field_id, source_id, field_name, field_display_name, field_category,
	field_type, extraction_method, extraction_section, regex_pattern, llm_prompt_template_id,
	is_required, validation_rules, confidence_threshold, normalization_rules, display_order,
	created_at, updated_at`

func scanField(row pgx.Row) (*model.FieldDefinition, error) {
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

// fieldFilterClause builds the WHERE tail shared by the list and count
// queries so total always reflects the same filtered set.
func fieldFilterClause(filter FieldFilter, args []any) (string, []any) {
	clause := ""
	argIdx := len(args) + 1
	if filter.Category != nil {
		clause += fmt.Sprintf(` AND field_category = $%d`, argIdx)
		args = append(args, *filter.Category)
		argIdx++
	}
	if filter.FieldType != nil {
		clause += fmt.Sprintf(` AND field_type = $%d`, argIdx)
		args = append(args, *filter.FieldType)
		argIdx++
	}
	if filter.IsRequired != nil {
		clause += fmt.Sprintf(` AND is_required = $%d`, argIdx)
		args = append(args, *filter.IsRequired)
	}
	return clause, args
}

func (s *PostgresStore) ListFields(ctx context.Context, sourceID string, filter FieldFilter) ([]model.FieldDefinition, int, error) {
	args := []any{sourceID}
	clause, args := fieldFilterClause(filter, args)

	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM source_field_definitions WHERE source_id = $1`+clause,
		args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count fields")
	}

	limit := ClampLimit(filter.Limit)
	argIdx := len(args) + 1
	query := fmt.Sprintf(
		`SELECT `+fieldColumns+` FROM source_field_definitions
		 WHERE source_id = $1%s
		 ORDER BY display_order NULLS LAST, field_name
		 LIMIT $%d OFFSET $%d`,
		clause, argIdx, argIdx+1,
	)
	args = append(args, limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list fields")
	}
	defer rows.Close()

	var fields []model.FieldDefinition
	for rows.Next() {
		fd, err := scanField(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "postgres: scan field")
		}
		fields = append(fields, *fd)
	}
	return fields, total, eris.Wrap(rows.Err(), "postgres: list fields iterate")
}

func (s *PostgresStore) GetField(ctx context.Context, fieldID string) (*model.FieldDefinition, error) {
	fd, err := scanField(s.pool.QueryRow(ctx,
		`SELECT `+fieldColumns+` FROM source_field_definitions WHERE field_id = $1`,
		fieldID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get field %s", fieldID)
	}
	return fd, nil
}

func (s *PostgresStore) CreateField(ctx context.Context, fd model.FieldDefinition) (*model.FieldDefinition, error) {
	if fd.FieldID == "" {
		fd.FieldID = uuid.New().String()
	}
	now := time.Now().UTC()
	fd.CreatedAt, fd.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_field_definitions
		 (field_id, source_id, field_name, field_display_name, field_category,
		  field_type, extraction_method, extraction_section, regex_pattern, llm_prompt_template_id,
		  is_required, validation_rules, confidence_threshold, normalization_rules, display_order,
		  created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		fd.FieldID, fd.SourceID, fd.FieldName, fd.FieldDisplayName, fd.FieldCategory,
		fd.FieldType, fd.ExtractionMethod, fd.ExtractionSection, fd.RegexPattern, fd.LLMPromptTemplateID,
		fd.IsRequired, rawJSON(fd.ValidationRules), fd.ConfidenceThreshold, rawJSON(fd.NormalizationRules), fd.DisplayOrder,
		fd.CreatedAt, fd.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, eris.Wrapf(ErrDuplicate, "field %s for source %s", fd.FieldName, fd.SourceID)
		}
		return nil, eris.Wrapf(err, "postgres: insert field for source %s", fd.SourceID)
	}
	return &fd, nil
}

func (s *PostgresStore) UpdateField(ctx context.Context, fieldID string, patch model.FieldPatch) (*model.FieldDefinition, error) {
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

	sets := []string{"updated_at = now()"}
	args := []any{}
	argIdx := 1

	addSet := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argIdx))
		args = append(args, val)
		argIdx++
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
		addSet("validation_rules", rawJSON(patch.ValidationRules))
	}
	if patch.ConfidenceThreshold != nil {
		addSet("confidence_threshold", *patch.ConfidenceThreshold)
	}
	if patch.NormalizationRules != nil {
		addSet("normalization_rules", rawJSON(patch.NormalizationRules))
	}
	if patch.DisplayOrder != nil {
		addSet("display_order", *patch.DisplayOrder)
	}

	args = append(args, fieldID)
	query := fmt.Sprintf(`UPDATE source_field_definitions SET %s WHERE field_id = $%d`,
		strings.Join(sets, ", "), argIdx)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, eris.Wrapf(ErrDuplicate, "field rename %s", fieldID)
		}
		return nil, eris.Wrapf(err, "postgres: update field %s", fieldID)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "field %s", fieldID)
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

func (s *PostgresStore) DeleteField(ctx context.Context, fieldID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM source_field_definitions WHERE field_id = $1`,
		fieldID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete field %s", fieldID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "field %s", fieldID)
	}
	return nil
}

func (s *PostgresStore) FieldNameExists(ctx context.Context, sourceID, fieldName, excludeFieldID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM source_field_definitions WHERE source_id = $1 AND field_name = $2`
	args := []any{sourceID, fieldName}
	if excludeFieldID != "" {
		query += ` AND field_id <> $3`
		args = append(args, excludeFieldID)
	}
	query += `)`

	var exists bool
	err := s.pool.QueryRow(ctx, query, args...).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: field name exists")
}

// Normalization rules

const ruleColumns = `rule_id, source_id, rule_name, rule_type, pattern, replacement,
	is_regex, apply_to_sections, priority, is_active, created_at, updated_at`

func scanRule(row pgx.Row) (*model.NormalizationRule, error) {
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

func (s *PostgresStore) ListRules(ctx context.Context, sourceID string, filter RuleFilter) ([]model.NormalizationRule, int, error) {
	clause := ""
	args := []any{sourceID}
	if filter.IsActive != nil {
		clause = ` AND is_active = $2`
		args = append(args, *filter.IsActive)
	}

	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM source_normalization_rules WHERE source_id = $1`+clause,
		args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count rules")
	}

	limit := ClampLimit(filter.Limit)
	argIdx := len(args) + 1
	query := fmt.Sprintf(
		`SELECT `+ruleColumns+` FROM source_normalization_rules
		 WHERE source_id = $1%s
		 ORDER BY priority, rule_name
		 LIMIT $%d OFFSET $%d`,
		clause, argIdx, argIdx+1,
	)
	args = append(args, limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list rules")
	}
	defer rows.Close()

	var rules []model.NormalizationRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "postgres: scan rule")
		}
		rules = append(rules, *r)
	}
	return rules, total, eris.Wrap(rows.Err(), "postgres: list rules iterate")
}

func (s *PostgresStore) GetRule(ctx context.Context, ruleID string) (*model.NormalizationRule, error) {
	r, err := scanRule(s.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM source_normalization_rules WHERE rule_id = $1`,
		ruleID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get rule %s", ruleID)
	}
	return r, nil
}

func (s *PostgresStore) CreateRule(ctx context.Context, r model.NormalizationRule) (*model.NormalizationRule, error) {
	if r.RuleID == "" {
		r.RuleID = uuid.New().String()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	sectionsJSON, err := marshalStrings(r.ApplyToSections)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create rule")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO source_normalization_rules
		 (rule_id, source_id, rule_name, rule_type, pattern, replacement,
		  is_regex, apply_to_sections, priority, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.RuleID, r.SourceID, r.RuleName, r.RuleType, r.Pattern, r.Replacement,
		r.IsRegex, sectionsJSON, r.Priority, r.IsActive, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert rule for source %s", r.SourceID)
	}
	return &r, nil
}

func (s *PostgresStore) DeleteRule(ctx context.Context, ruleID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM source_normalization_rules WHERE rule_id = $1`,
		ruleID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete rule %s", ruleID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "rule %s", ruleID)
	}
	return nil
}

// Prompt templates

const templateColumns = `template_id, source_id, template_name, template_type, language_code,
	prompt_text, variables, usage_count, avg_confidence, avg_tokens_used,
	is_active, version, created_at, updated_at`

func scanTemplate(row pgx.Row) (*model.PromptTemplate, error) {
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

func (s *PostgresStore) ListTemplates(ctx context.Context, sourceID string, filter TemplateFilter) ([]model.PromptTemplate, int, error) {
	clause := ""
	args := []any{sourceID}
	if filter.IsActive != nil {
		clause = ` AND is_active = $2`
		args = append(args, *filter.IsActive)
	}

	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM source_prompt_templates WHERE source_id = $1`+clause,
		args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count templates")
	}

	limit := ClampLimit(filter.Limit)
	argIdx := len(args) + 1
	query := fmt.Sprintf(
		`SELECT `+templateColumns+` FROM source_prompt_templates
		 WHERE source_id = $1%s
		 ORDER BY template_name, version
		 LIMIT $%d OFFSET $%d`,
		clause, argIdx, argIdx+1,
	)
	args = append(args, limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list templates")
	}
	defer rows.Close()

	var templates []model.PromptTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "postgres: scan template")
		}
		templates = append(templates, *t)
	}
	return templates, total, eris.Wrap(rows.Err(), "postgres: list templates iterate")
}

func (s *PostgresStore) GetTemplate(ctx context.Context, templateID string) (*model.PromptTemplate, error) {
	t, err := scanTemplate(s.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM source_prompt_templates WHERE template_id = $1`,
		templateID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get template %s", templateID)
	}
	return t, nil
}

func (s *PostgresStore) CreateTemplate(ctx context.Context, t model.PromptTemplate) (*model.PromptTemplate, error) {
	if t.TemplateID == "" {
		t.TemplateID = uuid.New().String()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_prompt_templates
		 (template_id, source_id, template_name, template_type, language_code,
		  prompt_text, variables, usage_count, avg_confidence, avg_tokens_used,
		  is_active, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		t.TemplateID, t.SourceID, t.TemplateName, t.TemplateType, t.LanguageCode,
		t.PromptText, rawJSON(t.Variables), t.UsageCount, t.AvgConfidence, t.AvgTokensUsed,
		t.IsActive, t.Version, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, eris.Wrapf(ErrDuplicate, "template %s v%d for source %s", t.TemplateName, t.Version, t.SourceID)
		}
		return nil, eris.Wrapf(err, "postgres: insert template for source %s", t.SourceID)
	}
	return &t, nil
}

func (s *PostgresStore) DeleteTemplate(ctx context.Context, templateID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM source_prompt_templates WHERE template_id = $1`,
		templateID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete template %s", templateID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "template %s", templateID)
	}
	return nil
}

func (s *PostgresStore) TemplateNameVersionExists(ctx context.Context, sourceID, templateName string, version int) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM source_prompt_templates WHERE source_id = $1 AND template_name = $2 AND version = $3)`,
		sourceID, templateName, version,
	).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: template name version exists")
}
