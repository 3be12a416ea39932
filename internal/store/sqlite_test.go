package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dataminer/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedTestSource(t *testing.T, st *SQLiteStore, sourceID string) {
	t.Helper()
	_, err := st.CreateSource(context.Background(), model.Source{
		SourceID:   sourceID,
		SourceName: sourceID + " test source",
		IsActive:   true,
		Phase:      1,
	})
	require.NoError(t, err)
}

func TestSQLiteStore_SourceRoundTrip(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	cc := "DE"
	pl := "de"
	_, err := st.CreateSource(ctx, model.Source{
		SourceID:           "DE_BGH",
		SourceName:         "Bundesgerichtshof",
		CountryCode:        &cc,
		PrimaryLanguage:    &pl,
		SecondaryLanguages: []string{"en", "fr"},
		IsActive:           true,
		Phase:              2,
	})
	require.NoError(t, err)

	got, err := st.GetSource(ctx, "DE_BGH")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Bundesgerichtshof", got.SourceName)
	assert.Equal(t, "DE", *got.CountryCode)
	assert.Equal(t, "de", *got.PrimaryLanguage)
	assert.Equal(t, []string{"en", "fr"}, got.SecondaryLanguages)
	assert.Equal(t, 2, got.Phase)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLiteStore_GetSource_Missing(t *testing.T) {
	st := newTestSQLite(t)

	got, err := st.GetSource(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_CreateSource_DuplicateID(t *testing.T) {
	st := newTestSQLite(t)
	seedTestSource(t, st, "US_SDNY")

	_, err := st.CreateSource(context.Background(), model.Source{
		SourceID:   "US_SDNY",
		SourceName: "again",
		IsActive:   true,
		Phase:      1,
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicate))
}

func TestSQLiteStore_UpdateSource_Patch(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()
	seedTestSource(t, st, "US_SDNY")

	updated, err := st.UpdateSource(ctx, "US_SDNY", model.SourcePatch{
		Phase:       ptr(4),
		AvgAccuracy: ptr(0.93),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Phase)
	assert.InDelta(t, 0.93, *updated.AvgAccuracy, 0.0001)
	// Untouched fields keep their values
	assert.Equal(t, "US_SDNY test source", updated.SourceName)
	assert.True(t, updated.IsActive)
}

func TestSQLiteStore_UpdateSource_Missing(t *testing.T) {
	st := newTestSQLite(t)

	_, err := st.UpdateSource(context.Background(), "NOPE", model.SourcePatch{Phase: ptr(2)})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLiteStore_ProfileUniquePerSource(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()
	seedTestSource(t, st, "US_SDNY")
	seedTestSource(t, st, "DE_BGH")

	p := model.DefaultProfile()
	p.SourceID = "US_SDNY"
	p.ProfileName = "default"
	_, err := st.CreateProfile(ctx, p)
	require.NoError(t, err)

	// Same name under the same source conflicts
	dup := model.DefaultProfile()
	dup.SourceID = "US_SDNY"
	dup.ProfileName = "default"
	_, err = st.CreateProfile(ctx, dup)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicate))

	// Same name under a different source is fine
	other := model.DefaultProfile()
	other.SourceID = "DE_BGH"
	other.ProfileName = "default"
	created, err := st.CreateProfile(ctx, other)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ProfileID)

	exists, err := st.ProfileNameExists(ctx, "US_SDNY", "default")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = st.ProfileNameExists(ctx, "US_SDNY", "bulk")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLiteStore_ProfileDefaultsPersist(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()
	seedTestSource(t, st, "US_SDNY")

	p := model.DefaultProfile()
	p.SourceID = "US_SDNY"
	p.ProfileName = "default"
	created, err := st.CreateProfile(ctx, p)
	require.NoError(t, err)

	got, err := st.GetProfile(ctx, created.ProfileID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "pdfplumber", got.PDFExtractionMethod)
	assert.InDelta(t, 0.80, got.OCRThreshold, 0.0001)
	assert.Equal(t, 3000, got.SegmentSizeTokens)
	assert.Equal(t, 200, got.SegmentOverlapTokens)
	assert.Equal(t, "gemini-1.5-flash", got.LLMModelQuick)
	assert.Equal(t, "gemini-1.5-pro", got.LLMModelDetailed)
	assert.InDelta(t, 0.1, got.LLMTemperature, 0.0001)
	assert.Equal(t, 2, got.MaxRetries)
	assert.InDelta(t, 2.00, got.MaxCostPerDocument, 0.0001)
	assert.True(t, got.EnableDeepDivePass)
	assert.InDelta(t, 0.75, got.DeepDiveConfidenceThreshold, 0.0001)
	assert.Equal(t, 1, got.Version)
}

func TestSQLiteStore_FieldLifecycle(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()
	seedTestSource(t, st, "FIELD_TEST")

	created, err := st.CreateField(ctx, model.FieldDefinition{
		SourceID:            "FIELD_TEST",
		FieldName:           "case_number",
		FieldCategory:       ptr("metadata"),
		FieldType:           ptr("string"),
		IsRequired:          true,
		ConfidenceThreshold: 0.75,
		ValidationRules:     json.RawMessage(`{"pattern":"^[0-9]{2}-cv-[0-9]+$"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.FieldID)

	// Duplicate name in the same source conflicts
	_, err = st.CreateField(ctx, model.FieldDefinition{
		SourceID:            "FIELD_TEST",
		FieldName:           "case_number",
		ConfidenceThreshold: 0.75,
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicate))

	// Patch updates only the provided members
	updated, err := st.UpdateField(ctx, created.FieldID, model.FieldPatch{
		ConfidenceThreshold: ptr(0.9),
		DisplayOrder:        ptr(1),
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.9, updated.ConfidenceThreshold, 0.0001)
	assert.Equal(t, 1, *updated.DisplayOrder)
	assert.Equal(t, "case_number", updated.FieldName)
	assert.JSONEq(t, `{"pattern":"^[0-9]{2}-cv-[0-9]+$"}`, string(updated.ValidationRules))

	// Renaming to the same name, excluding self, is not a duplicate
	exists, err := st.FieldNameExists(ctx, "FIELD_TEST", "case_number", created.FieldID)
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = st.FieldNameExists(ctx, "FIELD_TEST", "case_number", "")
	require.NoError(t, err)
	assert.True(t, exists)

	// Delete, then a second delete reports not found
	require.NoError(t, st.DeleteField(ctx, created.FieldID))
	err = st.DeleteField(ctx, created.FieldID)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))

	got, err := st.GetField(ctx, created.FieldID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_ListFields_PaginationMath(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()
	seedTestSource(t, st, "US_SDNY")

	for i := 0; i < 12; i++ {
		_, err := st.CreateField(ctx, model.FieldDefinition{
			SourceID:            "US_SDNY",
			FieldName:           string(rune('a'+i)) + "_field",
			FieldCategory:       ptr("metadata"),
			ConfidenceThreshold: 0.75,
			DisplayOrder:        ptr(i),
		})
		require.NoError(t, err)
	}

	page1, total, err := st.ListFields(ctx, "US_SDNY", FieldFilter{Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	assert.Len(t, page1, 5)
	assert.Equal(t, "a_field", page1[0].FieldName)

	page3, total, err := st.ListFields(ctx, "US_SDNY", FieldFilter{Limit: 5, Offset: 10})
	require.NoError(t, err)
	// Total reflects the full filtered set, not the page
	assert.Equal(t, 12, total)
	assert.Len(t, page3, 2)
	assert.Equal(t, "k_field", page3[0].FieldName)

	empty, total, err := st.ListFields(ctx, "US_SDNY", FieldFilter{Limit: 5, Offset: 20})
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	assert.Empty(t, empty)
}

func TestSQLiteStore_ListFields_Filters(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()
	seedTestSource(t, st, "US_SDNY")

	mk := func(name, category, fieldType string, required bool) {
		_, err := st.CreateField(ctx, model.FieldDefinition{
			SourceID:            "US_SDNY",
			FieldName:           name,
			FieldCategory:       &category,
			FieldType:           &fieldType,
			IsRequired:          required,
			ConfidenceThreshold: 0.75,
		})
		require.NoError(t, err)
	}
	mk("case_number", "metadata", "string", true)
	mk("filing_date", "metadata", "date", false)
	mk("plaintiff_name", "party", "string", true)

	fields, total, err := st.ListFields(ctx, "US_SDNY", FieldFilter{Category: ptr("metadata")})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, fields, 2)

	fields, total, err = st.ListFields(ctx, "US_SDNY", FieldFilter{
		Category:   ptr("metadata"),
		IsRequired: ptr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, fields, 1)
	assert.Equal(t, "case_number", fields[0].FieldName)

	fields, total, err = st.ListFields(ctx, "US_SDNY", FieldFilter{FieldType: ptr("date")})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, fields, 1)
	assert.Equal(t, "filing_date", fields[0].FieldName)
}

func TestSQLiteStore_RuleLifecycle(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()
	seedTestSource(t, st, "US_SDNY")

	created, err := st.CreateRule(ctx, model.NormalizationRule{
		SourceID:        "US_SDNY",
		RuleName:        "strip page numbers",
		Pattern:         `Page \d+ of \d+`,
		IsRegex:         true,
		ApplyToSections: []string{"header", "footer"},
		Priority:        10,
		IsActive:        true,
	})
	require.NoError(t, err)

	got, err := st.GetRule(ctx, created.RuleID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"header", "footer"}, got.ApplyToSections)
	assert.True(t, got.IsRegex)

	_, err = st.CreateRule(ctx, model.NormalizationRule{
		SourceID: "US_SDNY",
		RuleName: "inactive rule",
		Pattern:  "x",
		Priority: 200,
	})
	require.NoError(t, err)

	active, total, err := st.ListRules(ctx, "US_SDNY", RuleFilter{IsActive: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, active, 1)
	assert.Equal(t, "strip page numbers", active[0].RuleName)

	all, total, err := st.ListRules(ctx, "US_SDNY", RuleFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	// Ordered by priority ascending
	assert.Equal(t, "strip page numbers", all[0].RuleName)

	require.NoError(t, st.DeleteRule(ctx, created.RuleID))
	err = st.DeleteRule(ctx, created.RuleID)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLiteStore_TemplateNameVersionUnique(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()
	seedTestSource(t, st, "US_SDNY")

	v1, err := st.CreateTemplate(ctx, model.PromptTemplate{
		SourceID:     "US_SDNY",
		TemplateName: "quick_pass",
		PromptText:   "Extract the parties.",
		Variables:    json.RawMessage(`{"max_parties":10}`),
		IsActive:     true,
		Version:      1,
	})
	require.NoError(t, err)

	// Same name and version conflicts
	_, err = st.CreateTemplate(ctx, model.PromptTemplate{
		SourceID:     "US_SDNY",
		TemplateName: "quick_pass",
		PromptText:   "Other text.",
		IsActive:     true,
		Version:      1,
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicate))

	// A new version of the same template coexists
	_, err = st.CreateTemplate(ctx, model.PromptTemplate{
		SourceID:     "US_SDNY",
		TemplateName: "quick_pass",
		PromptText:   "Extract the parties and their counsel.",
		IsActive:     true,
		Version:      2,
	})
	require.NoError(t, err)

	exists, err := st.TemplateNameVersionExists(ctx, "US_SDNY", "quick_pass", 2)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = st.TemplateNameVersionExists(ctx, "US_SDNY", "quick_pass", 3)
	require.NoError(t, err)
	assert.False(t, exists)

	got, err := st.GetTemplate(ctx, v1.TemplateID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, `{"max_parties":10}`, string(got.Variables))

	templates, total, err := st.ListTemplates(ctx, "US_SDNY", TemplateFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, templates, 2)
	// Ordered by name then version
	assert.Equal(t, 1, templates[0].Version)
	assert.Equal(t, 2, templates[1].Version)

	require.NoError(t, st.DeleteTemplate(ctx, v1.TemplateID))
	err = st.DeleteTemplate(ctx, v1.TemplateID)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLiteStore_ListSources_Ordered(t *testing.T) {
	st := newTestSQLite(t)
	seedTestSource(t, st, "US_SDNY")
	seedTestSource(t, st, "DE_BGH")
	seedTestSource(t, st, "FR_CCASS")

	sources, err := st.ListSources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 3)
	assert.Equal(t, "DE_BGH", sources[0].SourceID)
	assert.Equal(t, "FR_CCASS", sources[1].SourceID)
	assert.Equal(t, "US_SDNY", sources[2].SourceID)
}
