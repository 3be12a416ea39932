package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sells-group/dataminer/internal/model"
	"github.com/sells-group/dataminer/internal/store"
)

type templateListResponse struct {
	Templates []model.PromptTemplate `json:"templates"`
	Total     int                    `json:"total"`
	Limit     int                    `json:"limit"`
	Offset    int                    `json:"offset"`
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	src := s.resolveSource(w, r)
	if src == nil {
		return
	}

	limit, offset, failures := parsePagination(r)
	active, failure := parseBoolParam(r, "is_active")
	if failure != nil {
		failures = append(failures, *failure)
	}
	if len(failures) > 0 {
		validationFailed(w, r, failures...)
		return
	}

	templates, total, err := s.store.ListTemplates(r.Context(), src.SourceID, store.TemplateFilter{
		IsActive: active,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if templates == nil {
		templates = []model.PromptTemplate{}
	}
	writeJSON(w, http.StatusOK, templateListResponse{
		Templates: templates,
		Total:     total,
		Limit:     limit,
		Offset:    offset,
	})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	templateID, ok := parseUUIDParam(w, r, "templateID")
	if !ok {
		return
	}
	tpl, err := s.store.GetTemplate(r.Context(), templateID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if tpl == nil {
		notFound(w, r, "template "+templateID+" not found")
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

type createTemplateRequest struct {
	TemplateName string          `json:"template_name"`
	TemplateType *string         `json:"template_type"`
	LanguageCode *string         `json:"language_code"`
	PromptText   string          `json:"prompt_text"`
	Variables    json.RawMessage `json:"variables"`
	IsActive     *bool           `json:"is_active"`
	Version      *int            `json:"version"`
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	src := s.resolveSource(w, r)
	if src == nil {
		return
	}

	var req createTemplateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	v := &validator{}
	v.required("template_name", req.TemplateName)
	v.maxLen("template_name", req.TemplateName, 100)
	v.maxLenPtr("template_type", req.TemplateType, 50)
	v.required("prompt_text", req.PromptText)
	version := 1
	if req.Version != nil {
		version = *req.Version
		if version < 1 {
			v.fail("version", "must be >= 1, got %d", version)
		}
	}
	if req.LanguageCode != nil {
		v.languageCode("language_code", *req.LanguageCode)
		v.maxLen("language_code", *req.LanguageCode, 10)
	}
	if err := v.err(); err != nil {
		writeError(w, r, err)
		return
	}

	tpl := model.PromptTemplate{
		SourceID:     src.SourceID,
		TemplateName: req.TemplateName,
		TemplateType: req.TemplateType,
		PromptText:   req.PromptText,
		Variables:    req.Variables,
		IsActive:     true,
		Version:      version,
	}
	if req.LanguageCode != nil {
		lang := model.NormalizeLanguageCode(*req.LanguageCode)
		tpl.LanguageCode = &lang
	}
	if req.IsActive != nil {
		tpl.IsActive = *req.IsActive
	}

	exists, err := s.store.TemplateNameVersionExists(r.Context(), src.SourceID, tpl.TemplateName, tpl.Version)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if exists {
		conflict(w, r, fmt.Sprintf("template %s version %d already exists for source %s",
			tpl.TemplateName, tpl.Version, src.SourceID))
		return
	}

	created, err := s.store.CreateTemplate(r.Context(), tpl)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	templateID, ok := parseUUIDParam(w, r, "templateID")
	if !ok {
		return
	}
	if err := s.store.DeleteTemplate(r.Context(), templateID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
