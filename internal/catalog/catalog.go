package catalog

import (
	"strings"
)

// TestType identifies a lab panel
type TestType string

const (
	TestTypeBlood   TestType = "blood"
	TestTypeUrine   TestType = "urine"
	TestTypeLipid   TestType = "lipid"
	TestTypeThyroid TestType = "thyroid"
	TestTypeLiver   TestType = "liver"
)

// ValueKind describes how a parameter value is entered
type ValueKind string

const (
	ValueKindNumber ValueKind = "number"
	ValueKindText   ValueKind = "text"
)

// ReferenceRangeUnavailable is used when no catalog entry matches a parameter
const ReferenceRangeUnavailable = "Reference range not available"

// ParameterDef describes one lab parameter of a panel
type ParameterDef struct {
	Name        string    `json:"name"`
	Unit        string    `json:"unit"`
	NormalRange string    `json:"normalRange"`
	ValueKind   ValueKind `json:"type"`
	Step        *float64  `json:"step,omitempty"`
}

// TestTypeOption is a selectable panel with its display label
type TestTypeOption struct {
	Value TestType `json:"value"`
	Label string   `json:"label"`
}

func step(v float64) *float64 { return &v }

var testTypes = []TestTypeOption{
	{Value: TestTypeBlood, Label: "Blood Panel"},
	{Value: TestTypeUrine, Label: "Urine Analysis"},
	{Value: TestTypeLipid, Label: "Lipid Profile"},
	{Value: TestTypeThyroid, Label: "Thyroid Function"},
	{Value: TestTypeLiver, Label: "Liver Function"},
}

var parameters = map[TestType][]ParameterDef{
	TestTypeBlood: {
		{Name: "Hemoglobin", Unit: "g/dL", NormalRange: "12.0-16.0", ValueKind: ValueKindNumber, Step: step(0.1)},
		{Name: "White Blood Cells", Unit: "×10³/μL", NormalRange: "4.0-11.0", ValueKind: ValueKindNumber, Step: step(0.1)},
		{Name: "Platelets", Unit: "×10³/μL", NormalRange: "150-450", ValueKind: ValueKindNumber},
		{Name: "Glucose", Unit: "mg/dL", NormalRange: "70-100", ValueKind: ValueKindNumber},
		{Name: "Hematocrit", Unit: "%", NormalRange: "36-46", ValueKind: ValueKindNumber, Step: step(0.1)},
	},
	TestTypeUrine: {
		{Name: "Protein", Unit: "mg/dL", NormalRange: "0-8", ValueKind: ValueKindNumber, Step: step(0.1)},
		{Name: "Glucose", Unit: "mg/dL", NormalRange: "0", ValueKind: ValueKindNumber},
		{Name: "Specific Gravity", Unit: "", NormalRange: "1.003-1.030", ValueKind: ValueKindNumber, Step: step(0.001)},
		{Name: "pH", Unit: "", NormalRange: "4.6-8.0", ValueKind: ValueKindNumber, Step: step(0.1)},
		{Name: "Ketones", Unit: "mg/dL", NormalRange: "Negative", ValueKind: ValueKindNumber},
	},
	TestTypeLipid: {
		{Name: "Total Cholesterol", Unit: "mg/dL", NormalRange: "<200", ValueKind: ValueKindNumber},
		{Name: "HDL Cholesterol", Unit: "mg/dL", NormalRange: ">40 (M), >50 (F)", ValueKind: ValueKindNumber},
		{Name: "LDL Cholesterol", Unit: "mg/dL", NormalRange: "<100", ValueKind: ValueKindNumber},
		{Name: "Triglycerides", Unit: "mg/dL", NormalRange: "<150", ValueKind: ValueKindNumber},
		{Name: "Non-HDL Cholesterol", Unit: "mg/dL", NormalRange: "<130", ValueKind: ValueKindNumber},
	},
	TestTypeThyroid: {
		{Name: "TSH", Unit: "mIU/L", NormalRange: "0.4-4.0", ValueKind: ValueKindNumber, Step: step(0.01)},
		{Name: "Free T4", Unit: "ng/dL", NormalRange: "0.8-1.8", ValueKind: ValueKindNumber, Step: step(0.01)},
		{Name: "Free T3", Unit: "pg/mL", NormalRange: "2.3-4.2", ValueKind: ValueKindNumber, Step: step(0.01)},
		{Name: "T4 Total", Unit: "μg/dL", NormalRange: "4.5-12.0", ValueKind: ValueKindNumber, Step: step(0.1)},
	},
	TestTypeLiver: {
		{Name: "ALT", Unit: "U/L", NormalRange: "7-56", ValueKind: ValueKindNumber},
		{Name: "AST", Unit: "U/L", NormalRange: "10-40", ValueKind: ValueKindNumber},
		{Name: "Bilirubin Total", Unit: "mg/dL", NormalRange: "0.2-1.2", ValueKind: ValueKindNumber, Step: step(0.1)},
		{Name: "Alkaline Phosphatase", Unit: "U/L", NormalRange: "44-147", ValueKind: ValueKindNumber},
		{Name: "Albumin", Unit: "g/dL", NormalRange: "3.5-5.0", ValueKind: ValueKindNumber, Step: step(0.1)},
	},
}

// Lookup returns the ordered parameter definitions for a test type.
// Unknown test types yield an empty slice.
func Lookup(testType string) []ParameterDef {
	defs, ok := parameters[TestType(testType)]
	if !ok {
		return []ParameterDef{}
	}
	out := make([]ParameterDef, len(defs))
	copy(out, defs)
	return out
}

// TestTypes lists every supported panel in display order
func TestTypes() []TestTypeOption {
	out := make([]TestTypeOption, len(testTypes))
	copy(out, testTypes)
	return out
}

// IsValidTestType reports whether testType is a known panel
func IsValidTestType(testType string) bool {
	_, ok := parameters[TestType(testType)]
	return ok
}

// DisplayName returns the label of a panel, or the raw value if unknown
func DisplayName(testType string) string {
	for _, opt := range testTypes {
		if string(opt.Value) == testType {
			return opt.Label
		}
	}
	return testType
}

// ReferenceRange finds the catalog range for a submitted parameter name.
// Names match case-insensitively when either one contains the other.
func ReferenceRange(testType, parameter string) string {
	name := strings.ToLower(parameter)
	for _, def := range parameters[TestType(testType)] {
		defName := strings.ToLower(def.Name)
		if strings.Contains(name, defName) || strings.Contains(defName, name) {
			return strings.TrimSpace(def.NormalRange + " " + def.Unit)
		}
	}
	return ReferenceRangeUnavailable
}
