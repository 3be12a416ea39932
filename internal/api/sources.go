package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/dataminer/internal/model"
)

// resolveSource loads the source named in the path, writing a 404 when it
// does not exist. Returns nil after writing a response.
func (s *Server) resolveSource(w http.ResponseWriter, r *http.Request) *model.Source {
	sourceID := chi.URLParam(r, "sourceID")
	src, err := s.store.GetSource(r.Context(), sourceID)
	if err != nil {
		writeError(w, r, err)
		return nil
	}
	if src == nil {
		notFound(w, r, "source "+sourceID+" not found")
		return nil
	}
	return src
}

type sourceListResponse struct {
	Sources []model.Source `json:"sources"`
	Total   int            `json:"total"`
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sources == nil {
		sources = []model.Source{}
	}
	writeJSON(w, http.StatusOK, sourceListResponse{Sources: sources, Total: len(sources)})
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	src := s.resolveSource(w, r)
	if src == nil {
		return
	}
	writeJSON(w, http.StatusOK, src)
}

type createSourceRequest struct {
	SourceID           string   `json:"source_id"`
	SourceName         string   `json:"source_name"`
	CountryCode        *string  `json:"country_code"`
	PrimaryLanguage    *string  `json:"primary_language"`
	SecondaryLanguages []string `json:"secondary_languages"`
	LegalSystem        *string  `json:"legal_system"`
	DocumentType       *string  `json:"document_type"`
	Phase              *int     `json:"phase"`
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req createSourceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	v := &validator{}
	v.required("source_id", req.SourceID)
	v.maxLen("source_id", req.SourceID, 20)
	v.required("source_name", req.SourceName)
	v.maxLen("source_name", req.SourceName, 200)
	v.maxLenPtr("country_code", req.CountryCode, 3)
	v.maxLenPtr("legal_system", req.LegalSystem, 50)
	v.maxLenPtr("document_type", req.DocumentType, 100)
	phase := 1
	if req.Phase != nil {
		phase = *req.Phase
		v.rangeInt("phase", phase, 1, 5)
	}
	if req.PrimaryLanguage != nil {
		v.languageCode("primary_language", *req.PrimaryLanguage)
		v.maxLen("primary_language", *req.PrimaryLanguage, 10)
	}
	for _, code := range req.SecondaryLanguages {
		v.languageCode("secondary_languages", code)
	}
	if err := v.err(); err != nil {
		writeError(w, r, err)
		return
	}

	src := model.Source{
		SourceID:           req.SourceID,
		SourceName:         req.SourceName,
		LegalSystem:        req.LegalSystem,
		DocumentType:       req.DocumentType,
		IsActive:           true,
		Phase:              phase,
		SecondaryLanguages: model.NormalizeLanguageCodes(req.SecondaryLanguages),
	}
	if req.CountryCode != nil {
		cc := model.NormalizeCountryCode(*req.CountryCode)
		src.CountryCode = &cc
	}
	if req.PrimaryLanguage != nil {
		pl := model.NormalizeLanguageCode(*req.PrimaryLanguage)
		src.PrimaryLanguage = &pl
	}

	created, err := s.store.CreateSource(r.Context(), src)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateSourceConfig(w http.ResponseWriter, r *http.Request) {
	src := s.resolveSource(w, r)
	if src == nil {
		return
	}

	var patch model.SourcePatch
	if !decodeBody(w, r, &patch) {
		return
	}

	v := &validator{}
	if patch.SourceName != nil && *patch.SourceName == "" {
		v.fail("source_name", "must not be empty")
	}
	v.maxLenPtr("source_name", patch.SourceName, 200)
	if patch.Phase != nil {
		v.rangeInt("phase", *patch.Phase, 1, 5)
	}
	if patch.AvgAccuracy != nil {
		v.rangeFloat("avg_accuracy", *patch.AvgAccuracy, 0, 1)
	}
	if patch.AvgCostPerDocument != nil {
		v.nonNegative("avg_cost_per_document", *patch.AvgCostPerDocument)
	}
	if err := v.err(); err != nil {
		writeError(w, r, err)
		return
	}

	if patch.AvgAccuracy != nil {
		rounded := model.Round2(*patch.AvgAccuracy)
		patch.AvgAccuracy = &rounded
	}
	if patch.AvgCostPerDocument != nil {
		rounded := model.Round2(*patch.AvgCostPerDocument)
		patch.AvgCostPerDocument = &rounded
	}

	updated, err := s.store.UpdateSource(r.Context(), src.SourceID, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
