package report

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *StructuredReport {
	return &StructuredReport{
		Summary: "Elevated total cholesterol with otherwise normal lipid values.",
		KeyFindings: []KeyFinding{
			{
				Parameter:      "Total Cholesterol",
				Value:          "250 mg/dL",
				ReferenceRange: "<200 mg/dL",
				Status:         StatusAbnormal,
				Interpretation: "Hypercholesterolemia",
			},
			{
				Parameter:      "HDL Cholesterol",
				Value:          "55 mg/dL",
				ReferenceRange: ">40 (M), >50 (F) mg/dL",
				Status:         StatusNormal,
				Interpretation: "Protective level",
			},
		},
		Recommendations: []string{"Repeat fasting lipid panel in 3 months"},
		TreatmentOptions: &TreatmentOptions{
			Lifestyle:   []string{"Reduce saturated fat intake"},
			Medical:     []string{"Cardiovascular risk assessment"},
			Medications: []string{"Statins if lifestyle changes are insufficient"},
		},
		OverallAssessment: "Moderate cardiovascular risk",
		FollowUpRequired:  true,
		CriticalFlags:     []string{},
	}
}

// --- Prompt ---

func TestBuildPromptDeterministic(t *testing.T) {
	params := Parameters{"Triglycerides": "140", "Total Cholesterol": "250", "LDL Cholesterol": "160"}

	first := BuildPrompt("lipid", params)
	for i := 0; i < 10; i++ {
		if got := BuildPrompt("lipid", params.Clone()); got != first {
			t.Fatal("Expected identical prompt for identical input")
		}
	}
}

func TestBuildPromptContents(t *testing.T) {
	prompt := BuildPrompt("lipid", Parameters{"Total Cholesterol": "250", "HDL Cholesterol": "<40"})

	assert.True(t, strings.HasPrefix(prompt,
		"As a medical AI assistant, analyze the following lipid test results and provide a comprehensive medical report in JSON format."))
	assert.Contains(t, prompt, "Test Type: lipid\n")
	assert.Contains(t, prompt, "Parameters: {\n  \"HDL Cholesterol\": \"<40\",\n  \"Total Cholesterol\": \"250\"\n}")
	assert.Contains(t, prompt, "Reference Ranges for lipid tests:\n")

	for _, line := range []string{
		"- Total Cholesterol: <200 mg/dL",
		"- HDL Cholesterol: >40 (M), >50 (F) mg/dL",
		"- LDL Cholesterol: <100 mg/dL",
		"- Triglycerides: <150 mg/dL",
		"- Non-HDL Cholesterol: <130 mg/dL",
	} {
		assert.Contains(t, prompt, line)
	}

	for _, field := range []string{`"summary"`, `"keyFindings"`, `"recommendations"`, `"treatmentOptions"`,
		`"overallAssessment"`, `"followUpRequired": true/false`, `"criticalFlags"`} {
		assert.Contains(t, prompt, field)
	}
	assert.True(t, strings.HasSuffix(prompt, "Provide accurate medical terminology and reference ranges appropriate for the test type."))
}

func TestBuildPromptUnitlessRange(t *testing.T) {
	prompt := BuildPrompt("urine", Parameters{"pH": "6.0"})
	assert.Contains(t, prompt, "- pH: 4.6-8.0 \n")
}

func TestBuildPromptUnknownType(t *testing.T) {
	prompt := BuildPrompt("cardiac", nil)
	assert.Contains(t, prompt, "Parameters: {}\n")
	assert.Contains(t, prompt, "Reference Ranges for cardiac tests:\n\n")
}

// --- Parsing ---

func TestParseResponseRoundTrip(t *testing.T) {
	want := sampleReport()
	encoded, err := json.MarshalIndent(want, "", "  ")
	require.NoError(t, err)

	raw := "Here is the analysis you requested:\n\n" + string(encoded) + "\n\nLet me know if you need anything else."
	result := ParseResponse(raw, "lipid", Parameters{"Total Cholesterol": "250"}, false)

	assert.False(t, result.Fallback())
	assert.Equal(t, want, result.Report)
}

func TestParseResponseNoJSON(t *testing.T) {
	params := Parameters{"Total Cholesterol": "250", "LDL Cholesterol": "160", "Triglycerides": "140"}
	raw := "The results suggest elevated cholesterol.\nPlease consult a physician."

	result := ParseResponse(raw, "lipid", params, false)
	require.True(t, result.Fallback())
	assert.Equal(t, ReasonNoJSON, result.FallbackReason)

	r := result.Report
	assert.Equal(t, "The results suggest elevated cholesterol.", r.Summary)
	require.Len(t, r.KeyFindings, len(params))
	for _, f := range r.KeyFindings {
		assert.Equal(t, StatusNormal, f.Status)
		assert.Equal(t, "Within expected range", f.Interpretation)
	}

	// catalog order
	assert.Equal(t, "Total Cholesterol", r.KeyFindings[0].Parameter)
	assert.Equal(t, "LDL Cholesterol", r.KeyFindings[1].Parameter)
	assert.Equal(t, Text("160"), r.KeyFindings[1].Value)
	assert.Equal(t, "<100 mg/dL", r.KeyFindings[1].ReferenceRange)
	assert.Equal(t, "Triglycerides", r.KeyFindings[2].Parameter)

	assert.Equal(t, []string{"Continue current health maintenance", "Schedule routine follow-up"}, r.Recommendations)
	assert.Equal(t, "Test results reviewed", r.OverallAssessment)
	assert.False(t, r.FollowUpRequired)
	assert.NotNil(t, r.CriticalFlags)
	assert.Empty(t, r.CriticalFlags)
	assert.Nil(t, r.TreatmentOptions)
	require.NotNil(t, r.RawResponse)
	assert.Equal(t, raw, *r.RawResponse)
	assert.True(t, r.IsFallback())
}

func TestParseResponseInvalidJSON(t *testing.T) {
	raw := `Result: {"summary": "broken", "keyFindings": [ }`
	result := ParseResponse(raw, "blood", Parameters{"Hemoglobin": "13.5"}, false)

	assert.Equal(t, ReasonInvalidJSON, result.FallbackReason)
	require.Len(t, result.Report.KeyFindings, 1)
	assert.Equal(t, "12.0-16.0 g/dL", result.Report.KeyFindings[0].ReferenceRange)
}

func TestParseResponseGreedySpan(t *testing.T) {
	// first { to last } spans two objects, which is not valid JSON
	raw := `{"summary": "a"} and {"summary": "b"}`
	result := ParseResponse(raw, "blood", Parameters{}, false)
	assert.Equal(t, ReasonInvalidJSON, result.FallbackReason)
}

func TestParseResponseEmptyText(t *testing.T) {
	result := ParseResponse("", "thyroid", Parameters{"TSH": "2.1"}, false)
	assert.Equal(t, "AI analysis completed", result.Report.Summary)
	assert.Equal(t, "0.4-4.0 mIU/L", result.Report.KeyFindings[0].ReferenceRange)
}

func TestParseResponseNumericValues(t *testing.T) {
	raw := `{"summary":"s","keyFindings":[{"parameter":"TSH","value":2.1,"referenceRange":"0.4-4.0","status":"normal","interpretation":"ok"}],
		"recommendations":[],"overallAssessment":"fine","followUpRequired":false,"criticalFlags":[]}`
	result := ParseResponse(raw, "thyroid", Parameters{"TSH": "2.1"}, false)

	require.False(t, result.Fallback())
	assert.Equal(t, Text("2.1"), result.Report.KeyFindings[0].Value)
}

func TestParseResponseMistypedFieldsKeepFindings(t *testing.T) {
	raw := `Analysis:
{"summary":"LDL is high","keyFindings":[{"parameter":"LDL Cholesterol","value":{"amount":190,"unit":"mg/dL"},"referenceRange":"<100 mg/dL","status":"abnormal","interpretation":"Very high"},"ignored"],
"recommendations":"Start a statin","treatmentOptions":["diet"],"overallAssessment":"High risk","followUpRequired":"yes","criticalFlags":"None"}`
	params := Parameters{"LDL Cholesterol": "190"}

	result := ParseResponse(raw, "lipid", params, false)
	require.False(t, result.Fallback(), "valid JSON with odd types is still the model's report")

	r := result.Report
	assert.Equal(t, "LDL is high", r.Summary)
	require.Len(t, r.KeyFindings, 1)
	assert.Equal(t, StatusAbnormal, r.KeyFindings[0].Status)
	assert.Equal(t, Text(`{"amount":190,"unit":"mg/dL"}`), r.KeyFindings[0].Value)
	assert.Equal(t, []string{"Start a statin"}, r.Recommendations)
	assert.Nil(t, r.TreatmentOptions)
	assert.True(t, r.FollowUpRequired)
	assert.Equal(t, []string{"None"}, r.CriticalFlags)
	assert.Nil(t, r.RawResponse)
	assert.Equal(t, RiskHigh, RiskLevel(r, params))

	strict := ParseResponse(raw, "lipid", params, true)
	assert.Equal(t, ReasonSchema, strict.FallbackReason)
}

func TestLooseBool(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`true`, true},
		{`false`, false},
		{`"Yes"`, true},
		{`"no"`, false},
		{`1`, true},
		{`0`, false},
		{`null`, false},
		{``, false},
	}
	for _, tt := range tests {
		if got := looseBool([]byte(tt.raw)); got != tt.want {
			t.Errorf("looseBool(%s) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestInCatalogOrder(t *testing.T) {
	params := Parameters{
		"Triglycerides":       "140",
		"Non-HDL Cholesterol": "150",
		"HDL Cholesterol":     "45",
		"Total Cholesterol":   "250",
		"LDL Cholesterol":     "160",
		"Apolipoprotein B":    "110",
		"Lp(a)":               "30",
	}

	assert.Equal(t, []string{
		"Total Cholesterol", "HDL Cholesterol", "LDL Cholesterol", "Triglycerides", "Non-HDL Cholesterol",
		"Apolipoprotein B", "Lp(a)",
	}, params.InCatalogOrder("lipid"))

	assert.Equal(t, []string{"HDL Cholesterol", "LDL Cholesterol"},
		Parameters{"LDL Cholesterol": "1", "HDL Cholesterol": "2"}.InCatalogOrder("cardiac"))
}

func TestFallbackCatalogOrder(t *testing.T) {
	params := Parameters{
		"Triglycerides":       "140",
		"Non-HDL Cholesterol": "150",
		"HDL Cholesterol":     "45",
		"Total Cholesterol":   "250",
		"LDL Cholesterol":     "160",
	}

	r := Fallback("text", "lipid", params)

	names := make([]string, len(r.KeyFindings))
	for i, f := range r.KeyFindings {
		names[i] = f.Parameter
	}
	assert.Equal(t, []string{"Total Cholesterol", "HDL Cholesterol", "LDL Cholesterol", "Triglycerides", "Non-HDL Cholesterol"}, names)
}

func TestParseResponseStrictSchema(t *testing.T) {
	raw := `{"summary":"","keyFindings":[{"parameter":"ALT","status":"elevated"}]}`
	params := Parameters{"ALT": "80"}

	lenient := ParseResponse(raw, "liver", params, false)
	assert.False(t, lenient.Fallback(), "lenient mode trusts the parsed object")
	assert.Equal(t, FindingStatus("elevated"), lenient.Report.KeyFindings[0].Status)

	strict := ParseResponse(raw, "liver", params, true)
	assert.Equal(t, ReasonSchema, strict.FallbackReason)
	assert.Equal(t, StatusNormal, strict.Report.KeyFindings[0].Status)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *StructuredReport)
		wantErr bool
	}{
		{"valid", func(r *StructuredReport) {}, false},
		{"empty summary", func(r *StructuredReport) { r.Summary = "  " }, true},
		{"missing parameter", func(r *StructuredReport) { r.KeyFindings[0].Parameter = "" }, true},
		{"bad status", func(r *StructuredReport) { r.KeyFindings[1].Status = "high" }, true},
		{"no findings", func(r *StructuredReport) { r.KeyFindings = nil }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sampleReport()
			tt.mutate(r)
			err := Validate(r)
			if tt.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}

	if Validate(nil) == nil {
		t.Error("Expected error for nil report")
	}
}

// --- Risk ---

func TestFindingsRiskLevel(t *testing.T) {
	tests := []struct {
		name     string
		statuses []FindingStatus
		expected Level
	}{
		{"single abnormal", []FindingStatus{StatusAbnormal}, RiskHigh},
		{"two borderline", []FindingStatus{StatusBorderline, StatusBorderline}, RiskMedium},
		{"one borderline", []FindingStatus{StatusBorderline, StatusNormal}, RiskLow},
		{"single normal", []FindingStatus{StatusNormal}, RiskLow},
		{"empty", nil, RiskLow},
		{"abnormal wins over borderline", []FindingStatus{StatusBorderline, StatusBorderline, StatusAbnormal}, RiskHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := make([]KeyFinding, len(tt.statuses))
			for i, s := range tt.statuses {
				findings[i] = KeyFinding{Parameter: "p", Status: s}
			}
			if got := FindingsRiskLevel(findings); got != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestParametersRiskLevel(t *testing.T) {
	tests := []struct {
		name     string
		params   Parameters
		expected Level
	}{
		{"high cholesterol", Parameters{"Total Cholesterol": "250"}, RiskHigh},
		{"borderline cholesterol", Parameters{"Total Cholesterol": "210"}, RiskMedium},
		{"high glucose", Parameters{"Glucose": "130"}, RiskHigh},
		{"raised glucose", Parameters{"Glucose": "110"}, RiskMedium},
		{"low hemoglobin", Parameters{"Hemoglobin": "9.5"}, RiskHigh},
		{"slightly low hemoglobin", Parameters{"Hemoglobin": "11"}, RiskMedium},
		{"all normal", Parameters{"Total Cholesterol": "180", "Glucose": "90", "Hemoglobin": "14"}, RiskLow},
		{"medium then high", Parameters{"Total Cholesterol": "210", "Hemoglobin": "8"}, RiskHigh},
		{"non numeric ignored", Parameters{"Total Cholesterol": "n/a"}, RiskLow},
		{"nothing relevant", Parameters{"TSH": "9"}, RiskLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParametersRiskLevel(tt.params); got != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestRiskLevelPrecedence(t *testing.T) {
	params := Parameters{"Total Cholesterol": "300"}

	withFindings := &StructuredReport{KeyFindings: []KeyFinding{{Parameter: "Total Cholesterol", Status: StatusNormal}}}
	assert.Equal(t, RiskLow, RiskLevel(withFindings, params), "findings take precedence over raw values")

	assert.Equal(t, RiskHigh, RiskLevel(&StructuredReport{}, params))
	assert.Equal(t, RiskHigh, RiskLevel(nil, params))
	assert.Equal(t, RiskLow, RiskLevel(nil, nil))
}

// --- Types ---

func TestParametersUnmarshal(t *testing.T) {
	var p Parameters
	err := json.Unmarshal([]byte(`{"Total Cholesterol": 250, "HDL Cholesterol": "45", "Glucose": 98.50, "Ketones": null, "Flag": true}`), &p)
	require.NoError(t, err)

	assert.Equal(t, "250", p["Total Cholesterol"])
	assert.Equal(t, "45", p["HDL Cholesterol"])
	assert.Equal(t, "98.50", p["Glucose"])
	assert.Equal(t, "", p["Ketones"])
	assert.Equal(t, "true", p["Flag"])

	assert.Error(t, json.Unmarshal([]byte(`{"x": {"nested": 1}}`), &p))
}

func TestCloneIsDeep(t *testing.T) {
	r := sampleReport()
	raw := "raw"
	r.RawResponse = &raw

	c := r.Clone()
	c.KeyFindings[0].Status = StatusNormal
	c.Recommendations[0] = "changed"
	c.TreatmentOptions.Lifestyle[0] = "changed"
	*c.RawResponse = "changed"

	assert.Equal(t, StatusAbnormal, r.KeyFindings[0].Status)
	assert.Equal(t, "Repeat fasting lipid panel in 3 months", r.Recommendations[0])
	assert.Equal(t, "Reduce saturated fat intake", r.TreatmentOptions.Lifestyle[0])
	assert.Equal(t, "raw", *r.RawResponse)
}
