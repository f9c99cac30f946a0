package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/medireport/platform/internal/catalog"
)

// FindingStatus classifies a single lab value
type FindingStatus string

const (
	StatusNormal     FindingStatus = "normal"
	StatusAbnormal   FindingStatus = "abnormal"
	StatusBorderline FindingStatus = "borderline"
)

// IsValid reports whether s is one of the three allowed statuses
func (s FindingStatus) IsValid() bool {
	switch s {
	case StatusNormal, StatusAbnormal, StatusBorderline:
		return true
	}
	return false
}

// StructuredReport is the report contract produced by the model
type StructuredReport struct {
	Summary           string            `json:"summary"`
	KeyFindings       []KeyFinding      `json:"keyFindings"`
	Recommendations   []string          `json:"recommendations"`
	TreatmentOptions  *TreatmentOptions `json:"treatmentOptions,omitempty"`
	OverallAssessment string            `json:"overallAssessment"`
	FollowUpRequired  bool              `json:"followUpRequired"`
	CriticalFlags     []string          `json:"criticalFlags"`
	RawResponse       *string           `json:"rawResponse,omitempty"`
}

// KeyFinding is the interpretation of one parameter
type KeyFinding struct {
	Parameter      string        `json:"parameter"`
	Value          Text          `json:"value"`
	ReferenceRange string        `json:"referenceRange"`
	Status         FindingStatus `json:"status"`
	Interpretation string        `json:"interpretation"`
}

// TreatmentOptions groups treatment suggestions
type TreatmentOptions struct {
	Lifestyle   []string `json:"lifestyle"`
	Medical     []string `json:"medical"`
	Medications []string `json:"medications"`
}

// IsFallback reports whether the report was synthesized locally
func (r *StructuredReport) IsFallback() bool {
	return r != nil && r.RawResponse != nil
}

// Clone returns a deep copy of the report
func (r *StructuredReport) Clone() *StructuredReport {
	if r == nil {
		return nil
	}
	out := *r
	if r.KeyFindings != nil {
		out.KeyFindings = append([]KeyFinding{}, r.KeyFindings...)
	}
	out.Recommendations = cloneStrings(r.Recommendations)
	out.CriticalFlags = cloneStrings(r.CriticalFlags)
	if r.TreatmentOptions != nil {
		out.TreatmentOptions = &TreatmentOptions{
			Lifestyle:   cloneStrings(r.TreatmentOptions.Lifestyle),
			Medical:     cloneStrings(r.TreatmentOptions.Medical),
			Medications: cloneStrings(r.TreatmentOptions.Medications),
		}
	}
	if r.RawResponse != nil {
		raw := *r.RawResponse
		out.RawResponse = &raw
	}
	return &out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}

// Text is a string that accepts any JSON value. Models often emit
// "value": 250 instead of "value": "250 mg/dL"; objects and arrays are kept
// as their compact JSON text.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	s, err := looseText(data)
	if err != nil {
		return err
	}
	*t = Text(s)
	return nil
}

// Parameters maps a parameter name to its raw submitted value
type Parameters map[string]string

// UnmarshalJSON accepts string, number and boolean values and keeps
// numbers in their literal textual form.
func (p *Parameters) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*p = nil
		return nil
	}
	out := make(Parameters, len(raw))
	for k, v := range raw {
		s, err := scalarText(v)
		if err != nil {
			return fmt.Errorf("parameter %q: %w", k, err)
		}
		out[k] = s
	}
	*p = out
	return nil
}

// InCatalogOrder returns the parameter names in the order the catalog lists
// them for testType, followed by any other names in sorted order.
func (p Parameters) InCatalogOrder(testType string) []string {
	names := make([]string, 0, len(p))
	listed := make(map[string]bool, len(p))
	for _, def := range catalog.Lookup(testType) {
		if _, ok := p[def.Name]; ok && !listed[def.Name] {
			names = append(names, def.Name)
			listed[def.Name] = true
		}
	}

	var rest []string
	for k := range p {
		if !listed[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// Float parses a parameter value, reporting false if absent or not numeric
func (p Parameters) Float(name string) (float64, bool) {
	v, ok := p[name]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Clone returns a copy of the parameter map
func (p Parameters) Clone() Parameters {
	if p == nil {
		return nil
	}
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func scalarText(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	case '{', '[':
		return "", fmt.Errorf("expected a scalar value, got %s", data)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
}

// looseText renders any JSON value as text: strings unquoted, numbers and
// booleans by their literal, objects and arrays as compact JSON.
func looseText(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return "", err
		}
		return buf.String(), nil
	default:
		return string(data), nil
	}
}
