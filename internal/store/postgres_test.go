package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dataminer/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

var testTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func sourceRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"source_id", "source_name", "country_code", "primary_language", "secondary_languages",
		"legal_system", "document_type", "is_active", "phase", "total_documents_processed",
		"avg_accuracy", "avg_cost_per_document", "created_at", "updated_at",
	})
}

func TestPostgresStore_GetSource_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM document_sources WHERE source_id = \$1`).
		WithArgs("MISSING").
		WillReturnError(pgx.ErrNoRows)

	src, err := s.GetSource(context.Background(), "MISSING")
	require.NoError(t, err)
	assert.Nil(t, src)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSource_DecodesLanguages(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cc := "DE"
	mock.ExpectQuery(`FROM document_sources WHERE source_id = \$1`).
		WithArgs("DE_BGH").
		WillReturnRows(sourceRows().AddRow(
			"DE_BGH", "Bundesgerichtshof", &cc, ptr("de"), []byte(`["en","fr"]`),
			ptr("civil_law"), ptr("court_opinion"), true, 2, 104,
			ptr(0.91), ptr(0.42), testTime, testTime,
		))

	src, err := s.GetSource(context.Background(), "DE_BGH")
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.Equal(t, []string{"en", "fr"}, src.SecondaryLanguages)
	assert.Equal(t, "DE", *src.CountryCode)
	assert.Equal(t, 104, src.TotalDocumentsProcessed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSource_Duplicate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO document_sources`).
		WillReturnError(uniqueViolation("document_sources_pkey"))

	_, err := s.CreateSource(context.Background(), model.Source{
		SourceID:   "US_SDNY",
		SourceName: "SDNY",
		IsActive:   true,
		Phase:      1,
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateSource_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE document_sources SET`).
		WithArgs("Renamed", "MISSING").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err := s.UpdateSource(context.Background(), "MISSING", model.SourcePatch{
		SourceName: ptr("Renamed"),
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateSource_AppliesPatchAndRefetches(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE document_sources SET updated_at = now\(\), source_name = \$1, phase = \$2 WHERE source_id = \$3`).
		WithArgs("Renamed", 3, "US_SDNY").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`FROM document_sources WHERE source_id = \$1`).
		WithArgs("US_SDNY").
		WillReturnRows(sourceRows().AddRow(
			"US_SDNY", "Renamed", nil, nil, nil,
			nil, nil, true, 3, 0,
			nil, nil, testTime, testTime,
		))

	src, err := s.UpdateSource(context.Background(), "US_SDNY", model.SourcePatch{
		SourceName: ptr("Renamed"),
		Phase:      ptr(3),
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", src.SourceName)
	assert.Equal(t, 3, src.Phase)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ProfileNameExists(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT EXISTS .+ FROM source_extraction_profiles WHERE source_id = \$1 AND profile_name = \$2`).
		WithArgs("US_SDNY", "default").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := s.ProfileNameExists(context.Background(), "US_SDNY", "default")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateProfile_Duplicate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO source_extraction_profiles`).
		WillReturnError(uniqueViolation("uq_profiles_source_name"))

	p := model.DefaultProfile()
	p.SourceID = "US_SDNY"
	p.ProfileName = "default"
	_, err := s.CreateProfile(context.Background(), p)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func fieldRowsMock() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"field_id", "source_id", "field_name", "field_display_name", "field_category",
		"field_type", "extraction_method", "extraction_section", "regex_pattern", "llm_prompt_template_id",
		"is_required", "validation_rules", "confidence_threshold", "normalization_rules", "display_order",
		"created_at", "updated_at",
	})
}

func TestPostgresStore_ListFields_SharesFilterBetweenCountAndPage(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM source_field_definitions WHERE source_id = \$1 AND field_category = \$2`).
		WithArgs("US_SDNY", "party").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(`FROM source_field_definitions\s+WHERE source_id = \$1 AND field_category = \$2\s+ORDER BY display_order NULLS LAST, field_name\s+LIMIT \$3 OFFSET \$4`).
		WithArgs("US_SDNY", "party", 5, 5).
		WillReturnRows(fieldRowsMock().AddRow(
			"7c3de1f0-0000-4000-8000-000000000001", "US_SDNY", "plaintiff_name", nil, ptr("party"),
			ptr("string"), nil, nil, nil, nil,
			true, []byte(`{"max_length":200}`), 0.75, nil, ptr(1),
			testTime, testTime,
		))

	fields, total, err := s.ListFields(context.Background(), "US_SDNY", FieldFilter{
		Category: ptr("party"),
		Limit:    5,
		Offset:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, fields, 1)
	assert.Equal(t, "plaintiff_name", fields[0].FieldName)
	assert.JSONEq(t, `{"max_length":200}`, string(fields[0].ValidationRules))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FieldNameExists_ExcludesSelf(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT EXISTS .+ AND field_name = \$2 AND field_id <> \$3`).
		WithArgs("US_SDNY", "case_number", "7c3de1f0-0000-4000-8000-000000000001").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := s.FieldNameExists(context.Background(), "US_SDNY", "case_number",
		"7c3de1f0-0000-4000-8000-000000000001")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateField_DuplicateRename(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE source_field_definitions SET`).
		WithArgs("case_number", "7c3de1f0-0000-4000-8000-000000000001").
		WillReturnError(uniqueViolation("uq_fields_source_name"))

	_, err := s.UpdateField(context.Background(), "7c3de1f0-0000-4000-8000-000000000001",
		model.FieldPatch{FieldName: ptr("case_number")})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteField_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM source_field_definitions WHERE field_id = \$1`).
		WithArgs("7c3de1f0-0000-4000-8000-000000000001").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteField(context.Background(), "7c3de1f0-0000-4000-8000-000000000001")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateTemplate_DuplicateNameVersion(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO source_prompt_templates`).
		WillReturnError(uniqueViolation("uq_templates_source_name_version"))

	_, err := s.CreateTemplate(context.Background(), model.PromptTemplate{
		SourceID:     "US_SDNY",
		TemplateName: "quick_pass",
		PromptText:   "Extract the parties.",
		IsActive:     true,
		Version:      1,
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteRule_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM source_normalization_rules WHERE rule_id = \$1`).
		WithArgs("11111111-2222-4333-8444-555555555555").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteRule(context.Background(), "11111111-2222-4333-8444-555555555555")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppliedMigrations_RowIterationError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	rows := pgxmock.NewRows([]string{"filename"}).
		AddRow("0001_configuration_schema.sql").
		RowError(0, errors.New("connection reset"))
	mock.ExpectQuery(`SELECT filename FROM schema_migrations`).WillReturnRows(rows)

	_, err = appliedMigrations(context.Background(), mock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store: read migration rows")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func ptr[T any](v T) *T { return &v }
