package report

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/medireport/platform/internal/catalog"
)

// Fallback reasons, also used as metric labels
const (
	ReasonNoJSON      = "no_json"
	ReasonInvalidJSON = "invalid_json"
	ReasonSchema      = "schema"
)

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ParseResult is the outcome of parsing a model response
type ParseResult struct {
	Report *StructuredReport
	// FallbackReason is empty when the model's JSON was used
	FallbackReason string
}

// Fallback reports whether the report was synthesized
func (p ParseResult) Fallback() bool {
	return p.FallbackReason != ""
}

// ParseResponse extracts the largest {...} span from raw and decodes it as a
// StructuredReport. Only text that is not JSON at all falls back, unless
// strict is set: then a mistyped field or a failed Validate falls back too.
// In lenient mode mistyped fields are coerced and the model's findings are
// kept.
func ParseResponse(raw, testType string, params Parameters, strict bool) ParseResult {
	match := jsonObjectPattern.FindString(raw)
	if match == "" {
		return ParseResult{Report: Fallback(raw, testType, params), FallbackReason: ReasonNoJSON}
	}

	data := []byte(match)
	if !json.Valid(data) {
		return ParseResult{Report: Fallback(raw, testType, params), FallbackReason: ReasonInvalidJSON}
	}

	if strict {
		var parsed StructuredReport
		if err := json.Unmarshal(data, &parsed); err != nil {
			return ParseResult{Report: Fallback(raw, testType, params), FallbackReason: ReasonSchema}
		}
		if err := Validate(&parsed); err != nil {
			return ParseResult{Report: Fallback(raw, testType, params), FallbackReason: ReasonSchema}
		}
		parsed.RawResponse = nil
		return ParseResult{Report: &parsed}
	}

	parsed, err := decodeLenient(data)
	if err != nil {
		return ParseResult{Report: Fallback(raw, testType, params), FallbackReason: ReasonInvalidJSON}
	}
	return ParseResult{Report: parsed}
}

// Fallback builds the deterministic substitute report. Every submitted
// parameter is listed as normal regardless of its value, in catalog order.
func Fallback(raw, testType string, params Parameters) *StructuredReport {
	summary := strings.TrimSpace(strings.SplitN(raw, "\n", 2)[0])
	if summary == "" {
		summary = "AI analysis completed"
	}

	findings := make([]KeyFinding, 0, len(params))
	for _, name := range params.InCatalogOrder(testType) {
		findings = append(findings, KeyFinding{
			Parameter:      name,
			Value:          Text(params[name]),
			ReferenceRange: catalog.ReferenceRange(testType, name),
			Status:         StatusNormal,
			Interpretation: "Within expected range",
		})
	}

	rawResponse := raw
	return &StructuredReport{
		Summary:           summary,
		KeyFindings:       findings,
		Recommendations:   []string{"Continue current health maintenance", "Schedule routine follow-up"},
		OverallAssessment: "Test results reviewed",
		FollowUpRequired:  false,
		CriticalFlags:     []string{},
		RawResponse:       &rawResponse,
	}
}

// Validate checks a decoded report against the report contract
func Validate(r *StructuredReport) error {
	if r == nil {
		return fmt.Errorf("report is empty")
	}
	if strings.TrimSpace(r.Summary) == "" {
		return fmt.Errorf("summary is required")
	}
	for i, f := range r.KeyFindings {
		if strings.TrimSpace(f.Parameter) == "" {
			return fmt.Errorf("keyFindings[%d]: parameter is required", i)
		}
		if !f.Status.IsValid() {
			return fmt.Errorf("keyFindings[%d]: invalid status %q", i, f.Status)
		}
	}
	return nil
}
