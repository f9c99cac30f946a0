package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/medireport/platform/internal/catalog"
)

const schemaText = `{
  "summary": "Executive summary of the test results",
  "keyFindings": [
    {
      "parameter": "parameter name",
      "value": "test value with unit",
      "referenceRange": "normal reference range with units",
      "status": "normal/abnormal/borderline",
      "interpretation": "clinical interpretation"
    }
  ],
  "recommendations": [
    "Clinical recommendation 1",
    "Clinical recommendation 2"
  ],
  "treatmentOptions": {
    "lifestyle": [
      "Lifestyle modification 1",
      "Lifestyle modification 2"
    ],
    "medical": [
      "Medical intervention 1",
      "Medical intervention 2"
    ],
    "medications": [
      "Common medication class/type if applicable"
    ]
  },
  "overallAssessment": "Overall clinical assessment",
  "followUpRequired": true/false,
  "criticalFlags": ["any critical issues if present"]
}`

const focusText = `Focus on:
1. Clinical significance of each parameter
2. Relationships between different test values
3. Potential health implications
4. Actionable recommendations for the physician
5. Any values outside normal ranges and their clinical significance

Provide accurate medical terminology and reference ranges appropriate for the test type.`

// BuildPrompt renders the instruction sent to the model. The output is
// deterministic for equal input: parameters are printed with sorted keys.
func BuildPrompt(testType string, params Parameters) string {
	var b strings.Builder

	fmt.Fprintf(&b, "As a medical AI assistant, analyze the following %s test results and provide a comprehensive medical report in JSON format.\n\n", testType)

	b.WriteString("Patient Test Data:\n")
	fmt.Fprintf(&b, "Test Type: %s\n", testType)
	fmt.Fprintf(&b, "Parameters: %s\n\n", formatParameters(params))

	fmt.Fprintf(&b, "Reference Ranges for %s tests:\n", testType)
	defs := catalog.Lookup(testType)
	lines := make([]string, len(defs))
	for i, def := range defs {
		lines[i] = fmt.Sprintf("- %s: %s %s", def.Name, def.NormalRange, def.Unit)
	}
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\n")

	b.WriteString("Please provide a detailed analysis in the following JSON structure:\n")
	b.WriteString(schemaText)
	b.WriteString("\n\n")
	b.WriteString(focusText)

	return b.String()
}

// formatParameters prints params as 2-space indented JSON without HTML escaping
func formatParameters(params Parameters) string {
	if params == nil {
		params = Parameters{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]string(params)); err != nil {
		return "{}"
	}
	return strings.TrimRight(buf.String(), "\n")
}
