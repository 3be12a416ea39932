package model

import "time"

// ExtractionProfile is a named bundle of processing parameters (OCR,
// segmentation, model choice, cost and retry limits) for a source.
// Profile names are unique within a source.
type ExtractionProfile struct {
	ProfileID                   string    `json:"profile_id"`
	SourceID                    string    `json:"source_id"`
	ProfileName                 string    `json:"profile_name"`
	IsActive                    bool      `json:"is_active"`
	IsDefault                   bool      `json:"is_default"`
	PDFExtractionMethod         string    `json:"pdf_extraction_method"`
	OCRThreshold                float64   `json:"ocr_threshold"`
	OCRLanguage                 *string   `json:"ocr_language,omitempty"`
	UseDocumentAIFallback       bool      `json:"use_document_ai_fallback"`
	SegmentationMethod          string    `json:"segmentation_method"`
	SegmentSizeTokens           int       `json:"segment_size_tokens"`
	SegmentOverlapTokens        int       `json:"segment_overlap_tokens"`
	LLMModelQuick               string    `json:"llm_model_quick"`
	LLMModelDetailed            string    `json:"llm_model_detailed"`
	LLMTemperature              float64   `json:"llm_temperature"`
	MaxRetries                  int       `json:"max_retries"`
	MaxCostPerDocument          float64   `json:"max_cost_per_document"`
	EnableDeepDivePass          bool      `json:"enable_deep_dive_pass"`
	DeepDiveConfidenceThreshold float64   `json:"deep_dive_confidence_threshold"`
	Version                     int       `json:"version"`
	CreatedAt                   time.Time `json:"created_at"`
	UpdatedAt                   time.Time `json:"updated_at"`
}

// DefaultProfile returns an ExtractionProfile carrying the documented
// defaults for every parameter the caller leaves unset.
func DefaultProfile() ExtractionProfile {
	return ExtractionProfile{
		IsActive:                    true,
		IsDefault:                   false,
		PDFExtractionMethod:         "pdfplumber",
		OCRThreshold:                0.80,
		UseDocumentAIFallback:       true,
		SegmentationMethod:          "section_based",
		SegmentSizeTokens:           3000,
		SegmentOverlapTokens:        200,
		LLMModelQuick:               "gemini-1.5-flash",
		LLMModelDetailed:            "gemini-1.5-pro",
		LLMTemperature:              0.1,
		MaxRetries:                  2,
		MaxCostPerDocument:          2.00,
		EnableDeepDivePass:          true,
		DeepDiveConfidenceThreshold: 0.75,
		Version:                     1,
	}
}
