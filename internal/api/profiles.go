package api

import (
	"net/http"

	"github.com/sells-group/dataminer/internal/model"
)

type profileListResponse struct {
	Profiles []model.ExtractionProfile `json:"profiles"`
	Total    int                       `json:"total"`
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	src := s.resolveSource(w, r)
	if src == nil {
		return
	}
	profiles, err := s.store.ListProfiles(r.Context(), src.SourceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if profiles == nil {
		profiles = []model.ExtractionProfile{}
	}
	writeJSON(w, http.StatusOK, profileListResponse{Profiles: profiles, Total: len(profiles)})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profileID, ok := parseUUIDParam(w, r, "profileID")
	if !ok {
		return
	}
	p, err := s.store.GetProfile(r.Context(), profileID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if p == nil {
		notFound(w, r, "profile "+profileID+" not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type createProfileRequest struct {
	ProfileName                 string   `json:"profile_name"`
	IsActive                    *bool    `json:"is_active"`
	IsDefault                   *bool    `json:"is_default"`
	PDFExtractionMethod         *string  `json:"pdf_extraction_method"`
	OCRThreshold                *float64 `json:"ocr_threshold"`
	OCRLanguage                 *string  `json:"ocr_language"`
	UseDocumentAIFallback       *bool    `json:"use_document_ai_fallback"`
	SegmentationMethod          *string  `json:"segmentation_method"`
	SegmentSizeTokens           *int     `json:"segment_size_tokens"`
	SegmentOverlapTokens        *int     `json:"segment_overlap_tokens"`
	LLMModelQuick               *string  `json:"llm_model_quick"`
	LLMModelDetailed            *string  `json:"llm_model_detailed"`
	LLMTemperature              *float64 `json:"llm_temperature"`
	MaxRetries                  *int     `json:"max_retries"`
	MaxCostPerDocument          *float64 `json:"max_cost_per_document"`
	EnableDeepDivePass          *bool    `json:"enable_deep_dive_pass"`
	DeepDiveConfidenceThreshold *float64 `json:"deep_dive_confidence_threshold"`
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	src := s.resolveSource(w, r)
	if src == nil {
		return
	}

	var req createProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p := model.DefaultProfile()
	p.SourceID = src.SourceID
	p.ProfileName = req.ProfileName
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if req.IsDefault != nil {
		p.IsDefault = *req.IsDefault
	}
	if req.PDFExtractionMethod != nil {
		p.PDFExtractionMethod = *req.PDFExtractionMethod
	}
	if req.OCRThreshold != nil {
		p.OCRThreshold = *req.OCRThreshold
	}
	if req.UseDocumentAIFallback != nil {
		p.UseDocumentAIFallback = *req.UseDocumentAIFallback
	}
	if req.SegmentationMethod != nil {
		p.SegmentationMethod = *req.SegmentationMethod
	}
	if req.SegmentSizeTokens != nil {
		p.SegmentSizeTokens = *req.SegmentSizeTokens
	}
	if req.SegmentOverlapTokens != nil {
		p.SegmentOverlapTokens = *req.SegmentOverlapTokens
	}
	if req.LLMModelQuick != nil {
		p.LLMModelQuick = *req.LLMModelQuick
	}
	if req.LLMModelDetailed != nil {
		p.LLMModelDetailed = *req.LLMModelDetailed
	}
	if req.LLMTemperature != nil {
		p.LLMTemperature = *req.LLMTemperature
	}
	if req.MaxRetries != nil {
		p.MaxRetries = *req.MaxRetries
	}
	if req.MaxCostPerDocument != nil {
		p.MaxCostPerDocument = *req.MaxCostPerDocument
	}
	if req.EnableDeepDivePass != nil {
		p.EnableDeepDivePass = *req.EnableDeepDivePass
	}
	if req.DeepDiveConfidenceThreshold != nil {
		p.DeepDiveConfidenceThreshold = *req.DeepDiveConfidenceThreshold
	}

	v := &validator{}
	v.required("profile_name", p.ProfileName)
	v.maxLen("profile_name", p.ProfileName, 100)
	v.maxLen("pdf_extraction_method", p.PDFExtractionMethod, 50)
	v.maxLen("segmentation_method", p.SegmentationMethod, 50)
	v.maxLen("llm_model_quick", p.LLMModelQuick, 50)
	v.maxLen("llm_model_detailed", p.LLMModelDetailed, 50)
	v.rangeFloat("ocr_threshold", p.OCRThreshold, 0, 1)
	v.rangeFloat("llm_temperature", p.LLMTemperature, 0, 2)
	v.rangeInt("segment_size_tokens", p.SegmentSizeTokens, 100, 10000)
	v.rangeInt("segment_overlap_tokens", p.SegmentOverlapTokens, 0, 1000)
	v.rangeInt("max_retries", p.MaxRetries, 0, 10)
	v.nonNegative("max_cost_per_document", p.MaxCostPerDocument)
	v.rangeFloat("deep_dive_confidence_threshold", p.DeepDiveConfidenceThreshold, 0, 1)
	if p.SegmentOverlapTokens >= p.SegmentSizeTokens {
		v.fail("segment_overlap_tokens",
			"segment_overlap_tokens (%d) must be less than segment_size_tokens (%d)",
			p.SegmentOverlapTokens, p.SegmentSizeTokens)
	}
	if req.OCRLanguage != nil {
		v.languageCode("ocr_language", *req.OCRLanguage)
		v.maxLen("ocr_language", *req.OCRLanguage, 10)
	}
	if err := v.err(); err != nil {
		writeError(w, r, err)
		return
	}

	if req.OCRLanguage != nil {
		lang := model.NormalizeLanguageCode(*req.OCRLanguage)
		p.OCRLanguage = &lang
	}
	p.OCRThreshold = model.Round2(p.OCRThreshold)
	p.LLMTemperature = model.Round1(p.LLMTemperature)
	p.MaxCostPerDocument = model.Round2(p.MaxCostPerDocument)
	p.DeepDiveConfidenceThreshold = model.Round2(p.DeepDiveConfidenceThreshold)

	// Friendly conflict before the write; the unique constraint backs it up.
	exists, err := s.store.ProfileNameExists(r.Context(), src.SourceID, p.ProfileName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if exists {
		conflict(w, r, "profile "+p.ProfileName+" already exists for source "+src.SourceID)
		return
	}

	created, err := s.store.CreateProfile(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
