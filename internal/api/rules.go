package api

import (
	"net/http"

	"github.com/sells-group/dataminer/internal/model"
	"github.com/sells-group/dataminer/internal/store"
)

type ruleListResponse struct {
	Rules  []model.NormalizationRule `json:"rules"`
	Total  int                       `json:"total"`
	Limit  int                       `json:"limit"`
	Offset int                       `json:"offset"`
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
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

	rules, total, err := s.store.ListRules(r.Context(), src.SourceID, store.RuleFilter{
		IsActive: active,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rules == nil {
		rules = []model.NormalizationRule{}
	}
	writeJSON(w, http.StatusOK, ruleListResponse{Rules: rules, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := parseUUIDParam(w, r, "ruleID")
	if !ok {
		return
	}
	rule, err := s.store.GetRule(r.Context(), ruleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rule == nil {
		notFound(w, r, "rule "+ruleID+" not found")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

type createRuleRequest struct {
	RuleName        string   `json:"rule_name"`
	RuleType        *string  `json:"rule_type"`
	Pattern         string   `json:"pattern"`
	Replacement     *string  `json:"replacement"`
	IsRegex         *bool    `json:"is_regex"`
	ApplyToSections []string `json:"apply_to_sections"`
	Priority        *int     `json:"priority"`
	IsActive        *bool    `json:"is_active"`
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	src := s.resolveSource(w, r)
	if src == nil {
		return
	}

	var req createRuleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	v := &validator{}
	v.required("rule_name", req.RuleName)
	v.maxLen("rule_name", req.RuleName, 100)
	v.maxLenPtr("rule_type", req.RuleType, 50)
	v.required("pattern", req.Pattern)
	if err := v.err(); err != nil {
		writeError(w, r, err)
		return
	}

	rule := model.NormalizationRule{
		SourceID:        src.SourceID,
		RuleName:        req.RuleName,
		RuleType:        req.RuleType,
		Pattern:         req.Pattern,
		Replacement:     req.Replacement,
		ApplyToSections: req.ApplyToSections,
		Priority:        model.DefaultRulePriority,
		IsActive:        true,
	}
	if req.IsRegex != nil {
		rule.IsRegex = *req.IsRegex
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	created, err := s.store.CreateRule(r.Context(), rule)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := parseUUIDParam(w, r, "ruleID")
	if !ok {
		return
	}
	if err := s.store.DeleteRule(r.Context(), ruleID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
