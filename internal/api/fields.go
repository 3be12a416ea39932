package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/sells-group/dataminer/internal/model"
	"github.com/sells-group/dataminer/internal/store"
)

type fieldListResponse struct {
	Fields []model.FieldDefinition `json:"fields"`
	Total  int                     `json:"total"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
}

func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	src := s.resolveSource(w, r)
	if src == nil {
		return
	}

	limit, offset, failures := parsePagination(r)
	filter := store.FieldFilter{Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("category"); raw != "" {
		filter.Category = &raw
	}
	if raw := r.URL.Query().Get("field_type"); raw != "" {
		filter.FieldType = &raw
	}
	required, failure := parseBoolParam(r, "is_required")
	if failure != nil {
		failures = append(failures, *failure)
	}
	filter.IsRequired = required
	if len(failures) > 0 {
		validationFailed(w, r, failures...)
		return
	}

	fields, total, err := s.store.ListFields(r.Context(), src.SourceID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if fields == nil {
		fields = []model.FieldDefinition{}
	}
	writeJSON(w, http.StatusOK, fieldListResponse{
		Fields: fields,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleGetField(w http.ResponseWriter, r *http.Request) {
	fieldID, ok := parseUUIDParam(w, r, "fieldID")
	if !ok {
		return
	}
	fd, err := s.store.GetField(r.Context(), fieldID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if fd == nil {
		notFound(w, r, "field "+fieldID+" not found")
		return
	}
	writeJSON(w, http.StatusOK, fd)
}

type createFieldRequest struct {
	FieldName           string          `json:"field_name"`
	FieldDisplayName    *string         `json:"field_display_name"`
	FieldCategory       *string         `json:"field_category"`
	FieldType           *string         `json:"field_type"`
	ExtractionMethod    *string         `json:"extraction_method"`
	ExtractionSection   *string         `json:"extraction_section"`
	RegexPattern        *string         `json:"regex_pattern"`
	LLMPromptTemplateID *string         `json:"llm_prompt_template_id"`
	IsRequired          *bool           `json:"is_required"`
	ValidationRules     json.RawMessage `json:"validation_rules"`
	ConfidenceThreshold *float64        `json:"confidence_threshold"`
	NormalizationRules  json.RawMessage `json:"normalization_rules"`
	DisplayOrder        *int            `json:"display_order"`
}

func (s *Server) handleCreateField(w http.ResponseWriter, r *http.Request) {
	src := s.resolveSource(w, r)
	if src == nil {
		return
	}

	var req createFieldRequest
	if !decodeBody(w, r, &req) {
		return
	}

	fd := model.FieldDefinition{
		SourceID:            src.SourceID,
		FieldName:           req.FieldName,
		FieldDisplayName:    req.FieldDisplayName,
		FieldCategory:       req.FieldCategory,
		FieldType:           req.FieldType,
		ExtractionMethod:    req.ExtractionMethod,
		ExtractionSection:   req.ExtractionSection,
		RegexPattern:        req.RegexPattern,
		LLMPromptTemplateID: req.LLMPromptTemplateID,
		ValidationRules:     req.ValidationRules,
		NormalizationRules:  req.NormalizationRules,
		DisplayOrder:        req.DisplayOrder,
		ConfidenceThreshold: model.DefaultConfidenceThreshold,
	}
	if req.IsRequired != nil {
		fd.IsRequired = *req.IsRequired
	}
	if req.ConfidenceThreshold != nil {
		fd.ConfidenceThreshold = *req.ConfidenceThreshold
	}

	v := &validator{}
	v.required("field_name", fd.FieldName)
	v.maxLen("field_name", fd.FieldName, 100)
	v.maxLenPtr("field_display_name", fd.FieldDisplayName, 200)
	v.maxLenPtr("field_category", fd.FieldCategory, 50)
	v.maxLenPtr("field_type", fd.FieldType, 50)
	v.maxLenPtr("extraction_method", fd.ExtractionMethod, 50)
	v.maxLenPtr("extraction_section", fd.ExtractionSection, 100)
	v.rangeFloat("confidence_threshold", fd.ConfidenceThreshold, 0, 1)
	if req.LLMPromptTemplateID != nil {
		if _, err := uuid.Parse(*req.LLMPromptTemplateID); err != nil {
			v.fail("llm_prompt_template_id", "must be a valid UUID")
		}
	}
	if err := v.err(); err != nil {
		writeError(w, r, err)
		return
	}
	fd.ConfidenceThreshold = model.Round2(fd.ConfidenceThreshold)

	exists, err := s.store.FieldNameExists(r.Context(), src.SourceID, fd.FieldName, "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if exists {
		conflict(w, r, "field "+fd.FieldName+" already exists for source "+src.SourceID)
		return
	}

	created, err := s.store.CreateField(r.Context(), fd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	fieldID, ok := parseUUIDParam(w, r, "fieldID")
	if !ok {
		return
	}

	var patch model.FieldPatch
	if !decodeBody(w, r, &patch) {
		return
	}

	v := &validator{}
	if patch.FieldName != nil && *patch.FieldName == "" {
		v.fail("field_name", "must not be empty")
	}
	v.maxLenPtr("field_name", patch.FieldName, 100)
	v.maxLenPtr("field_display_name", patch.FieldDisplayName, 200)
	v.maxLenPtr("field_category", patch.FieldCategory, 50)
	v.maxLenPtr("field_type", patch.FieldType, 50)
	v.maxLenPtr("extraction_method", patch.ExtractionMethod, 50)
	v.maxLenPtr("extraction_section", patch.ExtractionSection, 100)
	if patch.ConfidenceThreshold != nil {
		v.rangeFloat("confidence_threshold", *patch.ConfidenceThreshold, 0, 1)
	}
	if err := v.err(); err != nil {
		writeError(w, r, err)
		return
	}
	if patch.ConfidenceThreshold != nil {
		rounded := model.Round2(*patch.ConfidenceThreshold)
		patch.ConfidenceThreshold = &rounded
	}

	existing, err := s.store.GetField(r.Context(), fieldID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if existing == nil {
		notFound(w, r, "field "+fieldID+" not found")
		return
	}

	// Renaming to the current name is not a conflict; exclude this row
	// from the duplicate check.
	if patch.FieldName != nil && *patch.FieldName != existing.FieldName {
		exists, err := s.store.FieldNameExists(r.Context(), existing.SourceID, *patch.FieldName, fieldID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if exists {
			conflict(w, r, "field "+*patch.FieldName+" already exists for source "+existing.SourceID)
			return
		}
	}

	updated, err := s.store.UpdateField(r.Context(), fieldID, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteField(w http.ResponseWriter, r *http.Request) {
	fieldID, ok := parseUUIDParam(w, r, "fieldID")
	if !ok {
		return
	}
	if err := s.store.DeleteField(r.Context(), fieldID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
